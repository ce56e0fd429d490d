package util

import (
	"bytes"
	"encoding/binary"
	"errors"
	"math"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/xplshn/chibicc/pkg/config"
	"github.com/xplshn/chibicc/pkg/token"
)

func TestUTF8RoundTrip(t *testing.T) {
	for _, c := range []rune{'a', 0x7F, 0xE9, 0x7FF, 0x3042, 0xD800, 0xFFFF, 0x1F600} {
		buf := AppendUTF8(nil, c)
		got, n, err := DecodeUTF8(string(buf), 0)
		if err != nil || got != c || n != len(buf) {
			t.Errorf("U+%04X: decoded %U (%d bytes, %v) from % x", c, got, n, err, buf)
		}
	}
}

func TestDecodeUTF8Invalid(t *testing.T) {
	for _, s := range []string{"\x80", "\xC3", "\xE3\x81", "\xE3\x41\x42"} {
		if _, _, err := DecodeUTF8(s, 0); !errors.Is(err, ErrInvalidUTF8) {
			t.Errorf("%q: got %v", s, err)
		}
	}
}

func TestIdentRanges(t *testing.T) {
	tests := []struct {
		c      rune
		first  bool
		second bool
	}{
		{'a', true, true},
		{'$', true, true},
		{'1', false, true},
		{0xBE, true, true},
		{0x27D8, false, false},
		{0x3000, false, false},
		{0x0301, false, true},
	}
	for _, tt := range tests {
		if IsIdent1(tt.c) != tt.first || IsIdent2(tt.c) != tt.second {
			t.Errorf("U+%04X: IsIdent1=%v IsIdent2=%v", tt.c, IsIdent1(tt.c), IsIdent2(tt.c))
		}
	}
}

func TestDisplayWidth(t *testing.T) {
	tests := map[string]int{
		"abc":        3,
		"日本語":        6,
		"é":    1,
		"\tx":        1,
		"ｱｲｳ":        3,
		"😀":          2,
	}
	for s, want := range tests {
		if got := DisplayWidth(s); got != want {
			t.Errorf("DisplayWidth(%q) = %d, want %d", s, got, want)
		}
	}
}

func TestErrorRecovered(t *testing.T) {
	f := token.NewFile("x.c", 1, "int main() {\n  return @;\n}\n")
	tok := &token.Token{Kind: token.Punct, Text: "@", Loc: 22, File: f, Filename: "x.c", LineNo: 2}

	var err error
	func() {
		defer Recover(&err)
		Error(tok, "invalid token")
	}()

	var d *Diagnostic
	if !errors.As(err, &d) {
		t.Fatalf("got %T, want *Diagnostic", err)
	}
	want := &Diagnostic{
		Filename: "x.c", Line: 2, Column: 10, Span: 1,
		Message: "invalid token", Source: "  return @;", Indent: 9,
	}
	if diff := cmp.Diff(want, d); diff != "" {
		t.Errorf("diagnostic mismatch (-want +got):\n%s", diff)
	}

	var buf bytes.Buffer
	d.Fprint(&buf, false)
	wantText := "x.c:2: error: invalid token\n    return @;\n           ^\n"
	if diff := cmp.Diff(wantText, buf.String()); diff != "" {
		t.Errorf("output mismatch (-want +got):\n%s", diff)
	}
}

func TestWarnRespectsConfig(t *testing.T) {
	var buf bytes.Buffer
	old := Stderr
	Stderr = &buf
	defer func() { Stderr = old }()

	cfg := config.NewConfig()
	tok := &token.Token{Text: "x", Filename: "a.c", LineNo: 3}
	Warn(cfg, config.WarnUnknownPragmas, tok, "ignoring pragma")
	if buf.Len() != 0 {
		t.Fatalf("disabled warning printed %q", buf.String())
	}
	Warn(cfg, config.WarnExtraTokens, tok, "extra token")
	if got, want := buf.String(), "a.c:3: warning: extra token [-Wextra-tokens]\n"; got != want {
		t.Errorf("got %q, want %q", got, want)
	}
}

func TestAlign(t *testing.T) {
	if AlignTo(13, 8) != 16 || AlignTo(16, 8) != 16 || AlignTo(0, 4) != 0 {
		t.Error("AlignTo")
	}
	if AlignDown(13, 8) != 8 || AlignDown(16, 8) != 16 {
		t.Error("AlignDown")
	}
}

func TestPutFloat80(t *testing.T) {
	tests := []struct {
		in   float64
		mant uint64
		exp  uint16
	}{
		{0, 0, 0},
		{1, 1 << 63, 0x3fff},
		{0.5, 1 << 63, 0x3ffe},
		{-2, 1 << 63, 0xc000},
		{3, 3 << 62, 0x4000},
		{math.SmallestNonzeroFloat64, 1 << 63, 0x3fff - 1074},
	}
	for _, tt := range tests {
		buf := make([]byte, 16)
		PutFloat80(buf, tt.in)
		got := [2]uint64{binary.LittleEndian.Uint64(buf), uint64(binary.LittleEndian.Uint16(buf[8:]))}
		if diff := cmp.Diff([2]uint64{tt.mant, uint64(tt.exp)}, got); diff != "" {
			t.Errorf("PutFloat80(%g) mismatch (-want +got):\n%s", tt.in, diff)
		}
	}
}
