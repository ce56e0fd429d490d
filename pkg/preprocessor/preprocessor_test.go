package preprocessor

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/xplshn/chibicc/pkg/token"
	"github.com/xplshn/chibicc/pkg/util"
)

func run(t *testing.T, src string) (string, error) {
	t.Helper()
	p := New(nil)
	out, err := p.Run(p.TokenizeString("test.c", []byte(src)))
	if err != nil {
		return "", err
	}
	var buf bytes.Buffer
	if err := PrintTokens(&buf, out); err != nil {
		t.Fatal(err)
	}
	return strings.TrimSuffix(buf.String(), "\n"), nil
}

func TestExpansion(t *testing.T) {
	tests := []struct {
		name string
		src  string
		want string
	}{
		{"object-like", "#define N 42\nN\n", "42"},
		{"self-reference", "#define A 1+A\nA\n", "1+A"},
		{"mutual recursion", "#define T U\n#define U T\nT U\n", "T U"},
		{"function-like", "#define SQ(x) ((x)*(x))\nSQ(1+2)\n", "((1+2)*(1+2))"},
		{"object-like paste", "#define CAT a ## b\nCAT\n", "ab"},
		{"pasted hashes", "#define hash_hash # ## #\nx hash_hash y\n", "x ## y"},
		{"adjacent strings kept", "char *s = \"ab\" \"cd\";\n", `char *s = "ab" "cd";`},
		{"strings across lines", "\"ab\"\n  \"cd\" L\"e\";\n", "\"ab\"\n\"cd\" L\"e\";"},
		{"name without call", "#define F(x) x\nF + 1\n", "F + 1"},
		{"stringize", "#define S(x) #x\nS(a+b)\n", `"a+b"`},
		{"stringize spacing", "#define S(x) #x\nS( a  +  b )\n", `"a + b"`},
		{"stringize escapes", "#define S(x) #x\nS(\"q\\n\")\n", `"\"q\\n\""`},
		{"stringize char literal", "#define S(x) #x\nS('\\n')\n", `"'\\n'"`},
		{"stringize bare backslash", "#define S(x) #x\nS(: @\\n)\n", `": @\n"`},
		{"paste", "#define P(a,b) a##b\nP(fo,o)\n", "foo"},
		{"paste empty", "#define P(a,b) a##b\nP(,o)\n", "o"},
		{"nested call", "#define ID(x) x\n#define TWO ID(2)\nID(TWO)\n", "2"},
		{"gnu comma empty", "#define F(fmt, ...) f(fmt,##__VA_ARGS__)\nF(a)\n", "f(a)"},
		{"gnu comma", "#define F(fmt, ...) f(fmt,##__VA_ARGS__)\nF(a, b, c)\n", "f(a,b, c)"},
		{"named variadic", "#define V(args...) g(args)\nV(1, 2)\n", "g(1, 2)"},
		{"va opt empty", "#define G(x, ...) x __VA_OPT__( + __VA_ARGS__)\nG(1)\n", "1"},
		{"va opt", "#define G(x, ...) x __VA_OPT__( + __VA_ARGS__)\nG(1, 2)\n", "1 + 2"},
		{"undef", "#define X 1\n#undef X\nX\n", "X"},
		{"line", "a\n__LINE__\n", "a\n2"},
		{"line directive", "#line 10\n__LINE__\n", "10"},
		{"file", "__FILE__\n", `"test.c"`},
		{"counter", "__COUNTER__ __COUNTER__\n", "0 1"},
		{"date", "__DATE__\n", `"Jul 24 2020"`},
		{"predefined", "__STDC_VERSION__ __x86_64__\n", "201112L 1"},
		{"null directive", "#\nx\n", "x"},
		{"pragma", "#pragma weak foo\nx\n", "x"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := run(t, tt.src)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if diff := cmp.Diff(tt.want, got); diff != "" {
				t.Errorf("output mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestConditionals(t *testing.T) {
	tests := []struct {
		name string
		src  string
		want string
	}{
		{"if false", "#if 0\nx\n#endif\ny\n", "y"},
		{"elif", "#if 0\nx\n#elif 1\ny\n#else\nz\n#endif\n", "y"},
		{"else", "#if 0\nx\n#elif 0\ny\n#else\nz\n#endif\n", "z"},
		{"first wins", "#if 1\nx\n#elif 1\ny\n#endif\n", "x"},
		{"ifdef", "#define A\n#ifdef A\na\n#endif\n#ifndef A\nb\n#endif\n", "a"},
		{"defined", "#define A 2\n#if defined(A) && A > 1\nyes\n#endif\n", "yes"},
		{"defined bare", "#if defined B\nyes\n#else\nno\n#endif\n", "no"},
		{"unknown ident is zero", "#if FOO\nx\n#else\ny\n#endif\n", "y"},
		{"nested skip", "#if 0\n#if 1\nx\n#endif\n#else\ny\n#endif\n", "y"},
		{"arithmetic", "#if (1 << 4) == 16 && -1 < 0\nok\n#endif\n", "ok"},
		{"char constant", "#if 'a' == 97\nok\n#endif\n", "ok"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := run(t, tt.src)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if diff := cmp.Diff(tt.want, got); diff != "" {
				t.Errorf("output mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestErrors(t *testing.T) {
	tests := []struct {
		name string
		src  string
		want string
	}{
		{"unterminated if", "#if 1\nx\n", "unterminated conditional directive"},
		{"stray endif", "#endif\n", "stray #endif"},
		{"stray else", "#else\n", "stray #else"},
		{"stray elif", "#elif 1\n", "stray #elif"},
		{"elif after else", "#if 0\n#else\n#elif 1\n#endif\n", "stray #elif"},
		{"invalid directive", "#foo\n", "invalid preprocessor directive"},
		{"error directive", "#error stop\n", "error"},
		{"stringize non-param", "#define H(x) #y\nH(1)\n", "'#' is not followed by a macro parameter"},
		{"paste at start", "#define H(x) ## x\nH(1)\n", "'##' cannot appear at start of macro expansion"},
		{"paste at end", "#define H(x) x ##\nH(1)\n", "'##' cannot appear at end of macro expansion"},
		{"invalid paste", "#define H(a, b) a ## b\nH(+, /)\n", "pasting forms '+/', an invalid token"},
		{"too many arguments", "#define I(x) x\nI(1, 2)\n", "too many arguments"},
		{"premature end", "#define I(x) x\nI(1\n", "premature end of input"},
		{"no expression", "#if\n#endif\n", "no expression"},
		{"bad macro name", "#define 1 2\n", "macro name must be an identifier"},
		{"missing include", "#include \"does-not-exist.h\"\n", "cannot open file"},
		{"include without name", "#include 1\n", "expected a filename"},
		{"mixed wide strings", "u\"a\" L\"b\"\n", "unsupported non-standard concatenation of string literals"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := run(t, tt.src)
			if err == nil {
				t.Fatalf("expected error containing %q", tt.want)
			}
			if !strings.Contains(err.Error(), tt.want) {
				t.Errorf("error = %q, want it to contain %q", err, tt.want)
			}
		})
	}
}

func TestStringConcatenation(t *testing.T) {
	p := New(nil)
	out, err := p.Run(p.TokenizeString("test.c", []byte("\"ab\" \"c\"\n;\n\"x\" L\"y\"\n")))
	if err != nil {
		t.Fatal(err)
	}

	if diff := cmp.Diff([]byte("abc\x00"), out.Str); diff != "" {
		t.Errorf("narrow join mismatch (-want +got):\n%s", diff)
	}
	if len(out.Joined) != 2 {
		t.Errorf("narrow join kept %d parts, want 2", len(out.Joined))
	}
	semi := out.Next
	if !semi.Is(";") || semi.Next.Kind != token.Str || semi.Next.Next.Kind != token.EOF {
		t.Fatalf("expected string, ';', string; got %v then %v", semi, semi.Next)
	}

	wide := semi.Next
	if wide.Lit != token.LitInt {
		t.Errorf("wide join lit = %v, want LitInt", wide.Lit)
	}
	want := []byte{'x', 0, 0, 0, 'y', 0, 0, 0, 0, 0, 0, 0}
	if diff := cmp.Diff(want, wide.Str); diff != "" {
		t.Errorf("wide join mismatch (-want +got):\n%s", diff)
	}
}

func TestUnterminatedConditionalLine(t *testing.T) {
	p := New(nil)
	_, err := p.Run(p.TokenizeString("cond.c", []byte("int a;\n#ifdef A\n#if 1\n#endif\nint b;\n")))
	var d *util.Diagnostic
	if !errors.As(err, &d) {
		t.Fatalf("expected a diagnostic, got %v", err)
	}
	got := struct {
		Line    int
		Message string
	}{d.Line, d.Message}
	want := struct {
		Line    int
		Message string
	}{2, "unterminated conditional directive"}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("diagnostic mismatch (-want +got):\n%s", diff)
	}
}

func TestStdatomicHeader(t *testing.T) {
	tests := []struct {
		use  string
		want string
	}{
		{"atomic_fetch_add(&c, 1)", "((*(&c) += (1)) - (1))"},
		{"atomic_load_explicit(&c, memory_order_relaxed)", "(*(&c))"},
		{"atomic_compare_exchange_strong(&c, &e, 2)", "__builtin_compare_and_swap((&c), (&e), (2))"},
		{"atomic_exchange(&c, 3)", "__builtin_atomic_exchange((&c), (3))"},
	}

	for _, tt := range tests {
		t.Run(tt.use, func(t *testing.T) {
			got, err := run(t, "#include <stdatomic.h>\n"+tt.use+"\n")
			if err != nil {
				t.Fatal(err)
			}
			last := got[strings.LastIndexByte(got, '\n')+1:]
			if diff := cmp.Diff(tt.want, last); diff != "" {
				t.Errorf("expansion mismatch (-want +got):\n%s", diff)
			}
			if !strings.Contains(got, "typedef _Atomic int atomic_int;") {
				t.Errorf("atomic_int typedef missing from:\n%s", got)
			}
		})
	}
}

func writeFile(t *testing.T, path, src string) {
	t.Helper()
	if err := os.WriteFile(path, []byte(src), 0o644); err != nil {
		t.Fatal(err)
	}
}

func TestIncludes(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "guard.h"), "#ifndef GUARD_H\n#define GUARD_H\nint g;\n#endif\n")
	writeFile(t, filepath.Join(dir, "once.h"), "#pragma once\nint o;\n")
	if err := os.Mkdir(filepath.Join(dir, "sys"), 0o755); err != nil {
		t.Fatal(err)
	}
	writeFile(t, filepath.Join(dir, "sys", "lib.h"), "int lib;\n")

	main := filepath.Join(dir, "main.c")
	src := "#include \"guard.h\"\n#include \"guard.h\"\n#include \"once.h\"\n#include \"once.h\"\n" +
		"#define HDR <lib.h>\n#include HDR\n#include <stdarg.h>\nthe_end\n"
	writeFile(t, main, src)

	p := New(nil)
	p.cfg.IncludePaths = []string{filepath.Join(dir, "sys")}
	tok, err := p.TokenizeFile(main)
	if err != nil {
		t.Fatal(err)
	}
	out, err := p.Run(tok)
	if err != nil {
		t.Fatal(err)
	}

	var text []string
	for tk := out; tk.Kind != token.EOF; tk = tk.Next {
		text = append(text, tk.Text)
	}
	joined := strings.Join(text, " ")
	for _, want := range []string{"int g ;", "int o ;", "int lib ;", "the_end"} {
		if strings.Count(joined, want) != 1 {
			t.Errorf("expected %q exactly once in %q", want, joined)
		}
	}
	if !p.IsDefined("va_start") {
		t.Error("builtin <stdarg.h> was not included")
	}

	var names []string
	for _, f := range p.Files() {
		names = append(names, filepath.Base(f.Name))
	}
	want := []string{"main.c", "guard.h", "once.h", "lib.h", "stdarg.h"}
	if diff := cmp.Diff(want, names); diff != "" {
		t.Errorf("files read mismatch (-want +got):\n%s", diff)
	}

	var deps bytes.Buffer
	if err := p.PrintDependencies(&deps, main, DepOptions{Phony: true}); err != nil {
		t.Fatal(err)
	}
	wantDeps := "main.o: \\\n  " + main + " \\\n  " + filepath.Join(dir, "guard.h") +
		" \\\n  " + filepath.Join(dir, "once.h") + " \\\n  " + filepath.Join(dir, "sys", "lib.h") + "\n\n" +
		filepath.Join(dir, "guard.h") + ":\n\n" + filepath.Join(dir, "once.h") + ":\n\n" +
		filepath.Join(dir, "sys", "lib.h") + ":\n\n"
	if diff := cmp.Diff(wantDeps, deps.String()); diff != "" {
		t.Errorf("dependencies mismatch (-want +got):\n%s", diff)
	}
}

func TestIncludeNext(t *testing.T) {
	dir := t.TempDir()
	for _, d := range []string{"a", "b"} {
		if err := os.Mkdir(filepath.Join(dir, d), 0o755); err != nil {
			t.Fatal(err)
		}
	}
	writeFile(t, filepath.Join(dir, "a", "x.h"), "first\n#include_next <x.h>\n")
	writeFile(t, filepath.Join(dir, "b", "x.h"), "second\n")

	p := New(nil)
	p.cfg.IncludePaths = []string{filepath.Join(dir, "a"), filepath.Join(dir, "b")}
	out, err := p.Run(p.TokenizeString("main.c", []byte("#include <x.h>\n")))
	if err != nil {
		t.Fatal(err)
	}
	var buf bytes.Buffer
	PrintTokens(&buf, out)
	if diff := cmp.Diff("first\nsecond\n", buf.String()); diff != "" {
		t.Errorf("output mismatch (-want +got):\n%s", diff)
	}
}

func TestDefineAndQuoteMakefile(t *testing.T) {
	p := New(nil)
	p.Define("VERSION", "3")
	if got, err := run(t, "VERSION\n"); err != nil || got != "VERSION" {
		t.Fatalf("fresh preprocessor should not see VERSION, got %q, %v", got, err)
	}
	out, err := p.Run(p.TokenizeString("v.c", []byte("VERSION\n")))
	if err != nil {
		t.Fatal(err)
	}
	if out.Kind != token.Num || out.Val != 3 {
		t.Errorf("VERSION expanded to %v", out)
	}

	if got, want := QuoteMakefile(`a b$c#d`), `a\ b$$c\#d`; got != want {
		t.Errorf("QuoteMakefile = %q, want %q", got, want)
	}
	if !strings.Contains(DumpTokens(out), `"v.c"`) && !strings.Contains(DumpTokens(out), "v.c") {
		t.Errorf("DumpTokens does not mention the file: %s", DumpTokens(out))
	}
}

func TestForceInclude(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "pre.h"), "#define N 7\n")
	if err := os.Mkdir(filepath.Join(dir, "inc"), 0o755); err != nil {
		t.Fatal(err)
	}
	writeFile(t, filepath.Join(dir, "inc", "cfg.h"), "int cfg;\n")

	p := New(nil)
	p.cfg.IncludePaths = []string{filepath.Join(dir, "inc")}
	tok := p.TokenizeString("main.c", []byte("N\n"))
	tok, err := p.ForceInclude(tok, []string{filepath.Join(dir, "pre.h"), "cfg.h"})
	if err != nil {
		t.Fatal(err)
	}
	out, err := p.Run(tok)
	if err != nil {
		t.Fatal(err)
	}
	var buf bytes.Buffer
	PrintTokens(&buf, out)
	if diff := cmp.Diff("int cfg;\n7\n", buf.String()); diff != "" {
		t.Errorf("output mismatch (-want +got):\n%s", diff)
	}

	if _, err := p.ForceInclude(tok, []string{"missing.h"}); err == nil {
		t.Error("expected an error for a missing -include file")
	}
}
