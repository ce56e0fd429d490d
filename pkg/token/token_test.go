package token

import (
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestHidesetOperations(t *testing.T) {
	a := NewHideset("A").Union(NewHideset("B"))
	b := NewHideset("B").Union(NewHideset("C"))

	tests := []struct {
		name string
		hs   *Hideset
		want []string
	}{
		{"union", a.Union(b), []string{"A", "B", "B", "C"}},
		{"intersection", a.Intersection(b), []string{"B"}},
		{"empty union", (*Hideset)(nil).Union(b), []string{"B", "C"}},
		{"empty intersection", a.Intersection(nil), nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if diff := cmp.Diff(tt.want, tt.hs.Names()); diff != "" {
				t.Errorf("names mismatch (-want +got):\n%s", diff)
			}
		})
	}

	if !a.Contains("A") || a.Contains("C") {
		t.Errorf("Contains gave wrong answer for %v", a.Names())
	}
	// The receiver is never modified.
	if diff := cmp.Diff([]string{"A", "B"}, a.Names()); diff != "" {
		t.Errorf("union mutated receiver:\n%s", diff)
	}
}

func TestAddHidesetCopiesTokens(t *testing.T) {
	t2 := &Token{Kind: Ident, Text: "y"}
	t1 := &Token{Kind: Ident, Text: "x", Next: t2}
	out := AddHideset(t1, NewHideset("M"))
	if out == t1 || out.Next == t2 {
		t.Fatal("AddHideset must copy tokens")
	}
	if !out.Hideset.Contains("M") || !out.Next.Hideset.Contains("M") {
		t.Fatal("hideset not applied")
	}
	if t1.Hideset != nil {
		t.Fatal("original token modified")
	}
}

func TestFilePosition(t *testing.T) {
	f := NewFile("a.c", 1, "int x;\n  return y;\n")
	pos := f.Position(9)
	if pos.Line != 2 || pos.Column != 3 {
		t.Errorf("Position(9) = %d:%d, want 2:3", pos.Line, pos.Column)
	}
	line, start := f.Line(12)
	if line != "  return y;" || start != 7 {
		t.Errorf("Line(12) = %q, %d", line, start)
	}
}

func TestJoin(t *testing.T) {
	c := &Token{Kind: Ident, Text: "b", HasSpace: true}
	b := &Token{Kind: Punct, Text: "+", Next: c}
	a := &Token{Kind: Ident, Text: "a", Next: b}
	if got := Join(a, nil); got != "a+ b" {
		t.Errorf("Join = %q", got)
	}
}
