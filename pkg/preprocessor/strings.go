package preprocessor

import (
	"strings"

	"github.com/xplshn/chibicc/pkg/lexer"
	"github.com/xplshn/chibicc/pkg/token"
	"github.com/xplshn/chibicc/pkg/util"
)

type strKind int

const (
	strNone strKind = iota
	strUTF8
	strUTF16
	strUTF32
	strWide
)

func stringKind(tok *token.Token) strKind {
	switch {
	case strings.HasPrefix(tok.Text, "u8"):
		return strUTF8
	case tok.Text[0] == '"':
		return strNone
	case tok.Text[0] == 'u':
		return strUTF16
	case tok.Text[0] == 'U':
		return strUTF32
	case tok.Text[0] == 'L':
		return strWide
	}
	util.Unreachable()
	return strNone
}

// joinAdjacentStringLiterals concatenates runs of string literals. Plain
// literals next to a wide literal are widened first.
func joinAdjacentStringLiterals(tok *token.Token) {
	for tok1 := tok; tok1.Kind != token.EOF; {
		if tok1.Kind != token.Str || tok1.Next.Kind != token.Str {
			tok1 = tok1.Next
			continue
		}

		kind := stringKind(tok1)
		lit := tok1.Lit
		for t := tok1.Next; t.Kind == token.Str; t = t.Next {
			k := stringKind(t)
			if kind == strNone {
				kind, lit = k, t.Lit
			} else if k != strNone && kind != k {
				util.Error(t, "unsupported non-standard concatenation of string literals")
			}
		}

		if lit.Size() > 1 {
			for t := tok1; t.Kind == token.Str; t = t.Next {
				if t.Lit.Size() == 1 {
					next := t.Next
					*t = *lexer.RetokenizeString(t, lit)
					t.Next = next
				}
			}
		}

		for tok1.Kind == token.Str {
			tok1 = tok1.Next
		}
	}

	for tok1 := tok; tok1.Kind != token.EOF; {
		if tok1.Kind != token.Str || tok1.Next.Kind != token.Str {
			tok1 = tok1.Next
			continue
		}

		tok2 := tok1.Next
		for tok2.Kind == token.Str {
			tok2 = tok2.Next
		}

		elem := tok1.Lit.Size()
		var buf []byte
		var parts []*token.Token
		for t := tok1; t != tok2; t = t.Next {
			buf = append(buf, t.Str[:len(t.Str)-elem]...)
			parts = append(parts, t.Copy())
		}
		tok1.Joined = parts
		buf = append(buf, make([]byte, elem)...)

		tok1.Str = buf
		tok1.Next = tok2
		tok1 = tok2
	}
}
