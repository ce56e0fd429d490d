package parser

import (
	"encoding/binary"
	"math"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/xplshn/chibicc/pkg/ast"
	"github.com/xplshn/chibicc/pkg/config"
	"github.com/xplshn/chibicc/pkg/lexer"
	"github.com/xplshn/chibicc/pkg/token"
	"github.com/xplshn/chibicc/pkg/util"
)

func tokens(t *testing.T, src string) *token.Token {
	t.Helper()
	f := token.NewFile("test.c", 1, lexer.Normalize([]byte(src)))
	tok := lexer.Tokenize(f, config.NewConfig())
	lexer.ConvertPPTokens(tok)
	return tok
}

func parse(t *testing.T, src string) (*ast.Program, error) {
	t.Helper()
	return NewParser(tokens(t, src), nil).Parse()
}

func mustParse(t *testing.T, src string) *ast.Program {
	t.Helper()
	prog, err := parse(t, src)
	if err != nil {
		t.Fatalf("parse %q: %v", src, err)
	}
	return prog
}

func global(t *testing.T, prog *ast.Program, name string) *ast.Obj {
	t.Helper()
	for _, v := range prog.Globals {
		if v.Name == name {
			return v
		}
	}
	t.Fatalf("no global %q", name)
	return nil
}

func TestDeclarators(t *testing.T) {
	tests := []struct {
		src  string
		name string
		want string
	}{
		{"int (*fp)(int);", "fp", "*func(int) int"},
		{"char *argv[3];", "argv", "[3]*char"},
		{"int m[2][3];", "m", "[2][3]int"},
		{"int (*ap)[4];", "ap", "*[4]int"},
		{"unsigned long long n;", "n", "unsigned long"},
		{"long unsigned int n;", "n", "unsigned long"},
		{"short signed s;", "s", "short"},
		{"long double ld;", "ld", "long double"},
		{"int f(int a, char *b[]);", "f", "func(int, **char) int"},
		{"void v(void);", "v", "func() void"},
		{"int g();", "g", "func(...) int"},
		{"int printf(char *fmt, ...);", "printf", "func(*char, ...) int"},
		{"typedef int T[2]; T t;", "t", "[2]int"},
		{"int x; typeof(x) *px;", "px", "*int"},
		{"_Atomic(long) al;", "al", "long"},
	}

	for _, tt := range tests {
		t.Run(tt.src, func(t *testing.T) {
			prog := mustParse(t, tt.src)
			if got := global(t, prog, tt.name).Ty.String(); got != tt.want {
				t.Errorf("type of %s = %q, want %q", tt.name, got, tt.want)
			}
		})
	}
}

func TestStructLayout(t *testing.T) {
	type mem struct {
		Name      string
		Offset    int64
		BitOffset int64
	}
	tests := []struct {
		name    string
		src     string
		size    int64
		align   int64
		members []mem
	}{
		{
			name: "padding", src: "struct S { char a; int b; } s;",
			size: 8, align: 4,
			members: []mem{{"a", 0, 0}, {"b", 4, 0}},
		},
		{
			name: "packed", src: "struct __attribute__((packed)) P { char a; int b; } s;",
			size: 5, align: 1,
			members: []mem{{"a", 0, 0}, {"b", 1, 0}},
		},
		{
			name: "bit-fields", src: "struct B { int a:3; int b:5; int c:30; } s;",
			size: 8, align: 4,
			members: []mem{{"a", 0, 0}, {"b", 0, 3}, {"c", 4, 0}},
		},
		{
			name: "union", src: "union U { char c; double d; int i[3]; } s;",
			size: 16, align: 8,
			members: []mem{{"c", 0, 0}, {"d", 0, 0}, {"i", 0, 0}},
		},
		{
			name: "flexible array", src: "struct F { int n; char d[]; } s;",
			size: 4, align: 4,
			members: []mem{{"n", 0, 0}, {"d", 4, 0}},
		},
		{
			name: "aligned member", src: "struct A { char c; _Alignas(16) int x; } s;",
			size: 32, align: 16,
			members: []mem{{"c", 0, 0}, {"x", 16, 0}},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ty := global(t, mustParse(t, tt.src), "s").Ty
			if ty.Size != tt.size || ty.Align != tt.align {
				t.Errorf("size/align = %d/%d, want %d/%d", ty.Size, ty.Align, tt.size, tt.align)
			}
			var got []mem
			for _, m := range ty.Members {
				got = append(got, mem{m.Name.Text, m.Offset, m.BitOffset})
			}
			if diff := cmp.Diff(tt.members, got); diff != "" {
				t.Errorf("members mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestAnonymousMembers(t *testing.T) {
	prog := mustParse(t, `
struct S { int a; union { int b; char c; }; struct { int d; } named; } s;
int f(void) { return s.b + s.c + s.named.d; }
`)
	ty := global(t, prog, "s").Ty
	if ty.Size != 12 {
		t.Errorf("size = %d, want 12", ty.Size)
	}
	if m := getStructMember(ty, &token.Token{Text: "c"}); m == nil || m.Name != nil {
		t.Errorf("c should be found through the anonymous union, got %+v", m)
	}
}

func initInts(t *testing.T, v *ast.Obj, size int) []int64 {
	t.Helper()
	var out []int64
	for i := 0; i+size <= len(v.InitData); i += size {
		switch size {
		case 1:
			out = append(out, int64(int8(v.InitData[i])))
		case 4:
			out = append(out, int64(int32(binary.LittleEndian.Uint32(v.InitData[i:]))))
		case 8:
			out = append(out, int64(binary.LittleEndian.Uint64(v.InitData[i:])))
		}
	}
	return out
}

func TestGlobalInitializers(t *testing.T) {
	tests := []struct {
		name string
		src  string
		size int
		want []int64
	}{
		{"scalar", "int x = 3 * 4 + 1;", 4, []int64{13}},
		{"enum", "enum E { A, B = 5, C }; int x[3] = {A, B, C};", 4, []int64{0, 5, 6}},
		{"string", `char x[] = "hi";`, 1, []int64{'h', 'i', 0}},
		{"string truncated", `char x[2] = "hello";`, 1, []int64{'h', 'e'}},
		{"wide string", `int x[] = L"ab";`, 4, []int64{'a', 'b', 0}},
		{"designator", "int x[4] = {1, [2] = 5, 6};", 4, []int64{1, 0, 5, 6}},
		{"range designator", "int x[5] = {[1 ... 3] = 7};", 4, []int64{0, 7, 7, 7, 0}},
		{"implicit length", "int x[] = {1, 2, [5] = 3};", 4, []int64{1, 2, 0, 0, 0, 3}},
		{"struct designator", "struct { int a, b, c; } x = {.b = 2, 3};", 4, []int64{0, 2, 3}},
		{"nested designator", "struct { struct { int a, b; } s; int c; } x = {.s.a = 1, 2, 3};", 4, []int64{1, 2, 3}},
		{"brace elision", "struct { int a[2]; int b; } x = {1, 2, 3};", 4, []int64{1, 2, 3}},
		{"union member", "union { char c; int i; } x = {.i = 258};", 4, []int64{258}},
		{"bit-fields", "struct { int a:4; int :4; int b:8; } x = {1, 2};", 4, []int64{0x201}},
		{"char sign", "char x[] = {-1, 200};", 1, []int64{-1, -56}},
		{"cast", "long x = (char)300;", 8, []int64{44}},
		{"sizeof", "long x = sizeof(struct { char c; long l; });", 8, []int64{16}},
		{"scalar braces", "int x = {7};", 4, []int64{7}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v := global(t, mustParse(t, tt.src), "x")
			if diff := cmp.Diff(tt.want, initInts(t, v, tt.size)); diff != "" {
				t.Errorf("init data mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestFloatInitializers(t *testing.T) {
	prog := mustParse(t, "float f = 1.5f; double d = 1.0 / 4; long double ld = 1;")

	if got := math.Float32frombits(binary.LittleEndian.Uint32(global(t, prog, "f").InitData)); got != 1.5 {
		t.Errorf("f = %v, want 1.5", got)
	}
	if got := math.Float64frombits(binary.LittleEndian.Uint64(global(t, prog, "d").InitData)); got != 0.25 {
		t.Errorf("d = %v, want 0.25", got)
	}

	want := make([]byte, 16)
	binary.LittleEndian.PutUint64(want, 1<<63)
	binary.LittleEndian.PutUint16(want[8:], 16383)
	if diff := cmp.Diff(want, global(t, prog, "ld").InitData); diff != "" {
		t.Errorf("ld mismatch (-want +got):\n%s", diff)
	}
}

func TestRelocations(t *testing.T) {
	prog := mustParse(t, `
int g[4];
int *p = &g[1];
int *q = g + 2;
char *s = "abc";
struct { int a; int *b; } st = {1, &g[3]};
`)
	g := global(t, prog, "g")

	tests := []struct {
		name   string
		offset int64
		addend int64
	}{
		{"p", 0, 4},
		{"q", 0, 8},
		{"st", 8, 12},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v := global(t, prog, tt.name)
			if len(v.Rel) != 1 {
				t.Fatalf("got %d relocations, want 1", len(v.Rel))
			}
			r := v.Rel[0]
			if r.Target != g || r.Offset != tt.offset || r.Addend != tt.addend {
				t.Errorf("relocation = {%s %d %d}, want {g %d %d}", r.Symbol(), r.Offset, r.Addend, tt.offset, tt.addend)
			}
		})
	}

	s := global(t, prog, "s")
	if len(s.Rel) != 1 || !strings.HasPrefix(s.Rel[0].Symbol(), ".L..") {
		t.Errorf("string pointer should refer to an anonymous literal, got %+v", s.Rel)
	}
}

func TestFunctions(t *testing.T) {
	prog := mustParse(t, `
struct Big { long a[3]; };
struct Big mk(void) { struct Big b = {0}; return b; }
int add(int a, int b) { return a + b; }
int sum(int n, ...) { return n; }
static inline int used(void) { return 1; }
static inline int unused(void) { return 2; }
int main(void) { return add(1, 2) + used(); }
`)

	t.Run("params", func(t *testing.T) {
		var names []string
		for _, v := range global(t, prog, "add").Params {
			names = append(names, v.Name)
		}
		if diff := cmp.Diff([]string{"a", "b"}, names); diff != "" {
			t.Errorf("params mismatch (-want +got):\n%s", diff)
		}
	})

	t.Run("hidden return buffer", func(t *testing.T) {
		fn := global(t, prog, "mk")
		if len(fn.Params) != 1 || fn.Params[0].Name != "" || fn.Params[0].Ty.Kind != ast.TyPtr {
			t.Errorf("mk should take one hidden pointer parameter, got %+v", fn.Params)
		}
	})

	t.Run("va area", func(t *testing.T) {
		if fn := global(t, prog, "sum"); fn.VaArea == nil || fn.VaArea.Ty.Size != 136 {
			t.Errorf("sum should have a 136-byte register save area")
		}
		if global(t, prog, "add").VaArea != nil {
			t.Errorf("add is not variadic")
		}
	})

	t.Run("liveness", func(t *testing.T) {
		for name, want := range map[string]bool{"main": true, "add": true, "used": true, "unused": false} {
			if got := global(t, prog, name).IsLive; got != want {
				t.Errorf("%s.IsLive = %v, want %v", name, got, want)
			}
		}
	})
}

func TestTentativeDefinitions(t *testing.T) {
	prog := mustParse(t, "int x; int x; int x = 3; int y; int y; extern int z;")

	count := map[string]int{}
	for _, v := range prog.Globals {
		count[v.Name]++
	}
	if diff := cmp.Diff(map[string]int{"alloca": 1, "x": 1, "y": 1, "z": 1}, count); diff != "" {
		t.Errorf("globals mismatch (-want +got):\n%s", diff)
	}
	if x := global(t, prog, "x"); x.IsTentative || len(x.InitData) != 4 {
		t.Errorf("x should be the initialized definition")
	}
	if !global(t, prog, "y").IsTentative {
		t.Errorf("y should stay tentative")
	}
}

func TestExternInheritsStatic(t *testing.T) {
	prog := mustParse(t, "static int s; extern int s; static int s = 2;")

	var defs int
	for _, v := range prog.Globals {
		if v.Name != "s" {
			continue
		}
		if !v.IsStatic {
			t.Errorf("declaration of s lost internal linkage")
		}
		if v.IsDefinition {
			defs++
			if len(v.InitData) != 4 {
				t.Errorf("the definition of s should carry its initializer")
			}
		}
	}
	if defs != 1 {
		t.Errorf("got %d definitions of s, want 1", defs)
	}
}

func TestSwitchCases(t *testing.T) {
	prog := mustParse(t, `
int f(int x) {
  switch (x) {
  case 1: return 10;
  case 2 ... 4: return 20;
  default: return 0;
  case 9: return 90;
  }
}
`)
	body := global(t, prog, "f").Body
	sw := body.Body[0]
	if sw.Type != ast.Switch {
		t.Fatalf("first statement is %v, want Switch", sw.Type)
	}
	var got [][2]int64
	for _, c := range sw.Cases {
		got = append(got, [2]int64{c.Begin, c.End})
	}
	if diff := cmp.Diff([][2]int64{{1, 1}, {2, 4}, {9, 9}}, got); diff != "" {
		t.Errorf("cases mismatch (-want +got):\n%s", diff)
	}
	if sw.DefaultCase == nil {
		t.Errorf("missing default case")
	}
}

func TestParseErrors(t *testing.T) {
	tests := []struct {
		src  string
		want string
	}{
		{"int x = y;", "undefined variable"},
		{"int main() { return foo(); }", "implicit declaration of a function"},
		{"int main() { break; }", "stray break"},
		{"int main() { continue; }", "stray continue"},
		{"int main() { case 1: ; }", "stray case"},
		{"int main() { goto L; }", "use of undeclared label"},
		{"int f(int); int main() { return f(1, 2); }", "too many arguments"},
		{"int f(int, int); int main() { return f(1); }", "too few arguments"},
		{"int a[1/0];", "division by zero"},
		{"int main() { int x; return x.y; }", "not a struct nor a union"},
		{"struct S { int a; } s; int main() { return s.b; }", "no such member"},
		{"int main() { struct { int a:3; } s; return &s.a != 0; }", "cannot take address of bitfield"},
		{"typedef static int T;", "typedef may not be used together"},
		{"int f(void) { return 0; } int f(void) { return 1; }", "redefinition of f"},
		{"int x; int x(void);", "redeclared as a different kind of symbol"},
		{"void v;", "variable declared void"},
		{"int main() { int n = 3; int a[n] = {1}; }", "variable-sized object may not be initialized"},
		{"int main() { switch (1) { case 3 ... 1: ; } }", "empty case range specified"},
		{"int x[2] = {[5] = 1};", "array designator index exceeds array bounds"},
		{"short long x;", "invalid type"},
		{"int main() { int x; static int *p = &x; }", "not a compile-time constant"},
		{"int main() { return 1 }", "expected ';'"},
		{"int x = 1; int x = 2;", "redefinition of x"},
		{"int x = 1; extern int x; int x = 2;", "redefinition of x"},
		{"int x; char x;", "conflicting types for x"},
		{"int g; static int g;", "static declaration follows a non-static declaration"},
		{"static int g; int g;", "non-static declaration follows a static declaration"},
		{"int n; int a[n];", "variable length array declaration not allowed at file scope"},
		{"typedef int T; int T;", "redeclared as a different kind of symbol"},
	}

	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			_, err := parse(t, tt.src)
			if err == nil {
				t.Fatalf("parse %q succeeded, want error %q", tt.src, tt.want)
			}
			if !strings.Contains(err.Error(), tt.want) {
				t.Errorf("error = %q, want it to contain %q", err, tt.want)
			}
		})
	}
}

func TestEvalConstExpr(t *testing.T) {
	tests := []struct {
		src  string
		want int64
	}{
		{"1 + 2 * 3", 7},
		{"(1 ? 2 : 3) << 2", 8},
		{"10 / 3", 3},
		{"-7 % 3", -1},
		{"!0 && 3", 1},
		{"0 || 0", 0},
		{"(char)300", 44},
		{"(_Bool)2", 1},
		{"-1 < 0u", 0},
		{"-1 < 0", 1},
		{"~0 >> 60", -1},
		{"0xffffffffffffffffUL >> 60", 15},
		{"sizeof(int)", 4},
		{"'a'", 97},
	}

	for _, tt := range tests {
		t.Run(tt.src, func(t *testing.T) {
			var got int64
			var rest *token.Token
			err := func() (err error) {
				defer util.Recover(&err)
				got, rest = EvalConstExpr(tokens(t, tt.src))
				return nil
			}()
			if err != nil {
				t.Fatal(err)
			}
			if got != tt.want {
				t.Errorf("EvalConstExpr(%q) = %d, want %d", tt.src, got, tt.want)
			}
			if rest.Kind != token.EOF {
				t.Errorf("trailing token %q", rest.Text)
			}
		})
	}
}
