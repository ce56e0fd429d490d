package token

import (
	"fmt"
	"strings"
)

type Kind int

const (
	Ident Kind = iota
	Punct
	Keyword
	Str
	Num
	PPNum
	EOF
)

var kindNames = [...]string{
	Ident:   "Ident",
	Punct:   "Punct",
	Keyword: "Keyword",
	Str:     "Str",
	Num:     "Num",
	PPNum:   "PPNum",
	EOF:     "EOF",
}

func (k Kind) String() string {
	if int(k) < len(kindNames) {
		return kindNames[k]
	}
	return fmt.Sprintf("Kind(%d)", int(k))
}

// Lit records the C type of a literal. For Num tokens it is the type of the
// value; for Str tokens it is the element type of the array.
type Lit int

const (
	LitNone Lit = iota
	LitChar
	LitUShort
	LitInt
	LitUInt
	LitLong
	LitULong
	LitFloat
	LitDouble
	LitLDouble
)

// Size is the storage size of one value of the literal type in bytes.
func (l Lit) Size() int {
	switch l {
	case LitChar:
		return 1
	case LitUShort:
		return 2
	case LitInt, LitUInt, LitFloat:
		return 4
	case LitLong, LitULong, LitDouble:
		return 8
	case LitLDouble:
		return 16
	}
	return 0
}

func (l Lit) IsFloat() bool { return l == LitFloat || l == LitDouble || l == LitLDouble }

// Token is one element of the linked token stream shared by the tokenizer,
// the preprocessor and the parser.
type Token struct {
	Kind Kind
	Next *Token

	Val  int64   // Num: integer value
	FVal float64 // Num: floating value
	Lit  Lit
	Str  []byte // Str: decoded contents including the terminator

	Text string // spelling in the source
	Loc  int    // byte offset of Text in File.Contents

	File      *File
	Filename  string
	LineNo    int
	LineDelta int
	AtBOL     bool
	HasSpace  bool

	Hideset *Hideset
	Origin  *Token   // macro invocation this token was expanded from
	Joined  []*Token // Str: the adjacent literals merged into this one
}

// Copy returns a shallow copy detached from the stream.
func (t *Token) Copy() *Token {
	c := *t
	c.Next = nil
	return &c
}

// Is reports whether the token is spelled s. Punctuators, keywords and
// identifiers compare by their text.
func (t *Token) Is(s string) bool { return t.Kind != Str && t.Text == s }

// StrLen is the number of array elements of a string literal, terminator included.
func (t *Token) StrLen() int {
	if t.Kind != Str || t.Lit.Size() == 0 {
		return 0
	}
	return len(t.Str) / t.Lit.Size()
}

// Column returns the 1-based column of the token within its physical line.
func (t *Token) Column() int {
	if t.File == nil {
		return 0
	}
	return t.File.Position(t.Loc).Column
}

func (t *Token) String() string {
	switch t.Kind {
	case EOF:
		return "EOF"
	case Str:
		return fmt.Sprintf("%s %s", t.Kind, t.Text)
	}
	return fmt.Sprintf("%s %q", t.Kind, t.Text)
}

// NewEOF returns an EOF token positioned at tmpl.
func NewEOF(tmpl *Token) *Token {
	t := tmpl.Copy()
	t.Kind = EOF
	t.Text = ""
	t.Str = nil
	return t
}

// Last returns the final token of a stream, normally EOF.
func Last(tok *Token) *Token {
	for tok.Next != nil {
		tok = tok.Next
	}
	return tok
}

// Join renders tokens from tok up to (not including) end, inserting a space
// wherever the source had whitespace.
func Join(tok, end *Token) string {
	var sb strings.Builder
	for t := tok; t != end && t.Kind != EOF; t = t.Next {
		if t != tok && t.HasSpace {
			sb.WriteByte(' ')
		}
		sb.WriteString(t.Text)
	}
	return sb.String()
}
