package lexer

import (
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/xplshn/chibicc/pkg/config"
	"github.com/xplshn/chibicc/pkg/token"
	"github.com/xplshn/chibicc/pkg/util"
)

type tokSummary struct {
	Kind     token.Kind
	Text     string
	Line     int
	AtBOL    bool
	HasSpace bool
}

func lex(t *testing.T, src string) *token.Token {
	t.Helper()
	f := token.NewFile("test.c", 1, Normalize([]byte(src)))
	return Tokenize(f, config.NewConfig())
}

func lexErr(src string) (err error) {
	defer util.Recover(&err)
	f := token.NewFile("test.c", 1, Normalize([]byte(src)))
	Tokenize(f, config.NewConfig())
	return nil
}

func summarize(tok *token.Token) []tokSummary {
	var out []tokSummary
	for ; tok != nil; tok = tok.Next {
		out = append(out, tokSummary{tok.Kind, tok.Text, tok.LineNo, tok.AtBOL, tok.HasSpace})
	}
	return out
}

func TestTokenize(t *testing.T) {
	src := "int x = a<<=1; /* c */ y->z...\n  1.5e+3f 0x1F .5 'a' \\\n$id\n"
	want := []tokSummary{
		{token.Ident, "int", 1, true, false},
		{token.Ident, "x", 1, false, true},
		{token.Punct, "=", 1, false, true},
		{token.Ident, "a", 1, false, true},
		{token.Punct, "<<=", 1, false, false},
		{token.PPNum, "1", 1, false, false},
		{token.Punct, ";", 1, false, false},
		{token.Ident, "y", 1, false, true},
		{token.Punct, "->", 1, false, false},
		{token.Ident, "z", 1, false, false},
		{token.Punct, "...", 1, false, false},
		{token.PPNum, "1.5e+3f", 2, true, true},
		{token.PPNum, "0x1F", 2, false, true},
		{token.PPNum, ".5", 2, false, true},
		{token.Num, "'a'", 2, false, true},
		{token.Ident, "$id", 2, false, true},
		{token.EOF, "", 3, true, false},
	}
	if diff := cmp.Diff(want, summarize(lex(t, src))); diff != "" {
		t.Errorf("tokens mismatch (-want +got):\n%s", diff)
	}
}

func TestStringLiterals(t *testing.T) {
	tests := []struct {
		src string
		lit token.Lit
		str []byte
	}{
		{`"a\tb\x41\101\e"`, token.LitChar, []byte{'a', '\t', 'b', 'A', 'A', 27, 0}},
		{`u8"é"`, token.LitChar, []byte{0xc3, 0xa9, 0}},
		{`u"é😀"`, token.LitUShort, []byte{0xe9, 0, 0x3d, 0xd8, 0x00, 0xde, 0, 0}},
		{`L"é"`, token.LitInt, []byte{0xe9, 0, 0, 0, 0, 0, 0, 0}},
		{`U"\u3042"`, token.LitUInt, []byte{0x42, 0x30, 0, 0, 0, 0, 0, 0}},
	}
	for _, tt := range tests {
		t.Run(tt.src, func(t *testing.T) {
			tok := lex(t, tt.src)
			if tok.Kind != token.Str || tok.Lit != tt.lit {
				t.Fatalf("got %v lit %v", tok.Kind, tok.Lit)
			}
			if diff := cmp.Diff(tt.str, tok.Str); diff != "" {
				t.Errorf("contents mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestCharLiterals(t *testing.T) {
	tests := []struct {
		src string
		val int64
		lit token.Lit
	}{
		{`'a'`, 97, token.LitInt},
		{`'\377'`, -1, token.LitInt},
		{`'\n'`, 10, token.LitInt},
		{`u'あ'`, 0x3042, token.LitUShort},
		{`L'😀'`, 0x1f600, token.LitInt},
		{`U'\xffffffff'`, -1, token.LitUInt},
	}
	for _, tt := range tests {
		t.Run(tt.src, func(t *testing.T) {
			tok := lex(t, tt.src)
			if tok.Val != tt.val || tok.Lit != tt.lit {
				t.Errorf("got val %d lit %v, want %d %v", tok.Val, tok.Lit, tt.val, tt.lit)
			}
		})
	}
}

func TestNumbers(t *testing.T) {
	tests := []struct {
		src  string
		lit  token.Lit
		val  int64
		fval float64
	}{
		{"0", token.LitInt, 0, 0},
		{"2147483647", token.LitInt, 2147483647, 0},
		{"2147483648", token.LitLong, 2147483648, 0},
		{"0x80000000", token.LitUInt, 0x80000000, 0},
		{"0x100000000", token.LitLong, 0x100000000, 0},
		{"0xffffffffffffffff", token.LitULong, -1, 0},
		{"4294967296u", token.LitULong, 4294967296, 0},
		{"10U", token.LitUInt, 10, 0},
		{"10L", token.LitLong, 10, 0},
		{"10llu", token.LitULong, 10, 0},
		{"10uL", token.LitULong, 10, 0},
		{"0b101", token.LitInt, 5, 0},
		{"017", token.LitInt, 15, 0},
		{"1.5", token.LitDouble, 0, 1.5},
		{"1.5f", token.LitFloat, 0, 1.5},
		{"2.5L", token.LitLDouble, 0, 2.5},
		{"1e3", token.LitDouble, 0, 1000},
		{"0x1p4", token.LitDouble, 0, 16},
		{".25", token.LitDouble, 0, 0.25},
	}
	for _, tt := range tests {
		t.Run(tt.src, func(t *testing.T) {
			tok := lex(t, tt.src)
			ConvertPPTokens(tok)
			if tok.Kind != token.Num || tok.Lit != tt.lit || tok.Val != tt.val || tok.FVal != tt.fval {
				t.Errorf("got %v lit=%v val=%d fval=%g", tok.Kind, tok.Lit, tok.Val, tok.FVal)
			}
		})
	}
}

func TestKeywordConversion(t *testing.T) {
	tok := lex(t, "int foo return")
	ConvertPPTokens(tok)
	got := []token.Kind{tok.Kind, tok.Next.Kind, tok.Next.Next.Kind}
	want := []token.Kind{token.Keyword, token.Ident, token.Keyword}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("kinds mismatch (-want +got):\n%s", diff)
	}
}

func TestLexicalErrors(t *testing.T) {
	tests := []struct {
		src  string
		msg  string
		line int
	}{
		{"int x;\nchar *s = \"abc;\nint y;", "unclosed string literal", 2},
		{"/* never closed", "unclosed block comment", 1},
		{"int a;\n\nx = \x01;", "invalid token", 3},
		{"'a", "unclosed char literal", 1},
		{"\"\\x\"", "invalid hex escape sequence", 1},
	}
	for _, tt := range tests {
		t.Run(tt.msg, func(t *testing.T) {
			err := lexErr(tt.src)
			var d *util.Diagnostic
			if !errors.As(err, &d) {
				t.Fatalf("expected diagnostic, got %v", err)
			}
			if d.Message != tt.msg || d.Line != tt.line {
				t.Errorf("got %q at line %d, want %q at line %d", d.Message, d.Line, tt.msg, tt.line)
			}
		})
	}
}

func TestInvalidNumber(t *testing.T) {
	err := func() (err error) {
		defer util.Recover(&err)
		ConvertPPTokens(lex(t, "1.2.3"))
		return nil
	}()
	if err == nil || err.(*util.Diagnostic).Message != "invalid numeric constant" {
		t.Errorf("got %v", err)
	}
}

func TestNormalize(t *testing.T) {
	tests := map[string]string{
		"\xef\xbb\xbfint":      "int\n",
		"a\r\nb\rc":            "a\nb\nc\n",
		"#define X 1 \\\n+ 2\nY": "#define X 1 + 2\n\nY\n",
		"\\u00e9 \\u12 \\\\u0041": "é \\u12 \\\\u0041\n",
	}
	for in, want := range tests {
		if got := Normalize([]byte(in)); got != want {
			t.Errorf("Normalize(%q) = %q, want %q", in, got, want)
		}
	}
}
