package lexer

import (
	"encoding/binary"
	"strings"

	"github.com/xplshn/chibicc/pkg/config"
	"github.com/xplshn/chibicc/pkg/token"
	"github.com/xplshn/chibicc/pkg/util"
)

// Lexer turns one source file into a linked list of preprocessing tokens.
type Lexer struct {
	file     *token.File
	src      string
	pos      int
	atBOL    bool
	hasSpace bool
	cfg      *config.Config
}

func NewLexer(file *token.File, cfg *config.Config) *Lexer {
	return &Lexer{file: file, src: file.Contents, atBOL: true, cfg: cfg}
}

// Tokenize scans the whole file. Lexical errors are raised with util.ErrorAt.
func Tokenize(file *token.File, cfg *config.Config) *token.Token {
	return NewLexer(file, cfg).Tokenize()
}

func (l *Lexer) Tokenize() *token.Token {
	var head token.Token
	cur := &head
	for {
		tok := l.Next()
		cur.Next = tok
		cur = tok
		if tok.Kind == token.EOF {
			return head.Next
		}
	}
}

// Next returns the next token, skipping whitespace and comments.
func (l *Lexer) Next() *token.Token {
	for l.pos < len(l.src) {
		start := l.pos
		ch := l.src[l.pos]

		switch {
		case strings.HasPrefix(l.src[start:], "//"):
			for l.pos < len(l.src) && l.src[l.pos] != '\n' {
				l.pos++
			}
			l.hasSpace = true
			continue
		case strings.HasPrefix(l.src[start:], "/*"):
			end := strings.Index(l.src[start+2:], "*/")
			if end < 0 {
				util.ErrorAt(l.file, start, "unclosed block comment")
			}
			l.pos = start + 2 + end + 2
			l.hasSpace = true
			continue
		case ch == '\n':
			l.pos++
			l.atBOL, l.hasSpace = true, false
			continue
		case isSpace(ch):
			l.pos++
			l.hasSpace = true
			continue
		}

		if isDigit(ch) || (ch == '.' && l.peekAt(1) != 0 && isDigit(l.peekAt(1))) {
			return l.ppNumber(start)
		}

		switch {
		case ch == '"':
			return l.stringLiteral(start, start, token.LitChar)
		case strings.HasPrefix(l.src[start:], "u8\""):
			return l.stringLiteral(start, start+2, token.LitChar)
		case strings.HasPrefix(l.src[start:], "u\""):
			return l.stringLiteral(start, start+1, token.LitUShort)
		case strings.HasPrefix(l.src[start:], "L\""):
			return l.stringLiteral(start, start+1, token.LitInt)
		case strings.HasPrefix(l.src[start:], "U\""):
			return l.stringLiteral(start, start+1, token.LitUInt)
		case ch == '\'':
			tok := l.charLiteral(start, start, token.LitInt)
			tok.Val = int64(int8(tok.Val))
			return tok
		case strings.HasPrefix(l.src[start:], "u'"):
			tok := l.charLiteral(start, start+1, token.LitUShort)
			tok.Val &= 0xffff
			return tok
		case strings.HasPrefix(l.src[start:], "L'"):
			return l.charLiteral(start, start+1, token.LitInt)
		case strings.HasPrefix(l.src[start:], "U'"):
			return l.charLiteral(start, start+1, token.LitUInt)
		}

		if n := l.identLength(start); n > 0 {
			l.pos += n
			return l.makeToken(token.Ident, start, l.pos)
		}
		if n := punctLength(l.src[start:]); n > 0 {
			l.pos += n
			return l.makeToken(token.Punct, start, l.pos)
		}
		util.ErrorAt(l.file, start, "invalid token")
	}
	return l.makeToken(token.EOF, l.pos, l.pos)
}

func (l *Lexer) peekAt(off int) byte {
	if l.pos+off < len(l.src) {
		return l.src[l.pos+off]
	}
	return 0
}

func (l *Lexer) makeToken(kind token.Kind, start, end int) *token.Token {
	tok := &token.Token{
		Kind:     kind,
		Text:     l.src[start:end],
		Loc:      start,
		File:     l.file,
		Filename: l.file.DisplayName,
		LineNo:   l.file.Position(start).Line,
		AtBOL:    l.atBOL,
		HasSpace: l.hasSpace,
	}
	l.atBOL, l.hasSpace = false, false
	return tok
}

func (l *Lexer) ppNumber(start int) *token.Token {
	l.pos++
	for l.pos < len(l.src) {
		c := l.src[l.pos]
		if strings.IndexByte("eEpP", c) >= 0 && (l.peekAt(1) == '+' || l.peekAt(1) == '-') {
			l.pos += 2
		} else if isAlnum(c) || c == '.' {
			l.pos++
		} else {
			break
		}
	}
	return l.makeToken(token.PPNum, start, l.pos)
}

func (l *Lexer) identLength(start int) int {
	c, n, err := util.DecodeUTF8(l.src, start)
	if err != nil {
		util.ErrorAt(l.file, start, "invalid UTF-8 sequence")
	}
	if !util.IsIdent1(c) || !l.dollarAllowed(c, start) {
		return 0
	}
	p := start + n
	for p < len(l.src) {
		c, n, err = util.DecodeUTF8(l.src, p)
		if err != nil {
			util.ErrorAt(l.file, p, "invalid UTF-8 sequence")
		}
		if !util.IsIdent2(c) || !l.dollarAllowed(c, p) {
			break
		}
		p += n
	}
	return p - start
}

func (l *Lexer) dollarAllowed(c rune, at int) bool {
	if c != '$' || l.cfg == nil {
		return true
	}
	if !l.cfg.IsFeatureEnabled(config.FeatDollarIdents) {
		return false
	}
	if l.cfg.IsWarningEnabled(config.WarnPedantic) {
		tok := &token.Token{Text: "$", Loc: at, File: l.file, Filename: l.file.DisplayName, LineNo: l.file.Position(at).Line}
		util.Warn(l.cfg, config.WarnPedantic, tok, "'$' in identifier")
	}
	return true
}

var puncts = []string{
	"<<=", ">>=", "...", "==", "!=", "<=", ">=", "->", "+=",
	"-=", "*=", "/=", "++", "--", "%=", "&=", "|=", "^=", "&&",
	"||", "<<", ">>", "##",
}

func punctLength(s string) int {
	for _, p := range puncts {
		if strings.HasPrefix(s, p) {
			return len(p)
		}
	}
	if isPunct(s[0]) {
		return 1
	}
	return 0
}

// stringEnd returns the offset of the closing quote of a literal whose body
// starts at p.
func (l *Lexer) stringEnd(p int) int {
	start := p
	for ; p < len(l.src) && l.src[p] != '"'; p++ {
		if l.src[p] == '\n' {
			break
		}
		if l.src[p] == '\\' {
			p++
		}
	}
	if p >= len(l.src) || l.src[p] != '"' {
		util.ErrorAt(l.file, start-1, "unclosed string literal")
	}
	return p
}

func (l *Lexer) stringLiteral(start, quote int, lit token.Lit) *token.Token {
	end := l.stringEnd(quote + 1)
	body := decodeBody(l.file, l.src[:end], quote+1, lit)
	l.pos = end + 1
	tok := l.makeToken(token.Str, start, end+1)
	tok.Lit = lit
	tok.Str = body
	return tok
}

// decodeBody decodes a string literal body src[p:] into elements of the
// given width, appending the terminator.
func decodeBody(f *token.File, src string, p int, lit token.Lit) []byte {
	var out []byte
	put := func(c uint32) {
		switch lit.Size() {
		case 1:
			out = append(out, byte(c))
		case 2:
			out = binary.LittleEndian.AppendUint16(out, uint16(c))
		default:
			out = binary.LittleEndian.AppendUint32(out, c)
		}
	}

	for p < len(src) {
		if src[p] == '\\' {
			c, next := readEscapedChar(f, src, p+1)
			p = next
			put(uint32(c))
			continue
		}
		if lit.Size() == 1 {
			put(uint32(src[p]))
			p++
			continue
		}
		c, n, err := util.DecodeUTF8(src, p)
		if err != nil {
			util.ErrorAt(f, p, "invalid UTF-8 sequence")
		}
		p += n
		if lit.Size() == 2 && c >= 0x10000 {
			c -= 0x10000
			put(uint32(0xd800 + (c>>10)&0x3ff))
			put(uint32(0xdc00 + c&0x3ff))
			continue
		}
		put(uint32(c))
	}
	put(0)
	return out
}

func readEscapedChar(f *token.File, src string, p int) (int, int) {
	if p >= len(src) {
		return '\\', p
	}
	if isOctal(src[p]) {
		c := int(src[p] - '0')
		p++
		for i := 0; i < 2 && p < len(src) && isOctal(src[p]); i++ {
			c = c<<3 + int(src[p]-'0')
			p++
		}
		return c, p
	}

	if src[p] == 'x' {
		p++
		if p >= len(src) || !isHex(src[p]) {
			util.ErrorAt(f, p, "invalid hex escape sequence")
		}
		var c int32
		for ; p < len(src) && isHex(src[p]); p++ {
			c = c<<4 + int32(fromHex(src[p]))
		}
		return int(c), p
	}

	switch src[p] {
	case 'a':
		return '\a', p + 1
	case 'b':
		return '\b', p + 1
	case 't':
		return '\t', p + 1
	case 'n':
		return '\n', p + 1
	case 'v':
		return '\v', p + 1
	case 'f':
		return '\f', p + 1
	case 'r':
		return '\r', p + 1
	case 'e': // GNU
		return 27, p + 1
	}
	return int(src[p]), p + 1
}

func (l *Lexer) charLiteral(start, quote int, lit token.Lit) *token.Token {
	p := quote + 1
	if p >= len(l.src) {
		util.ErrorAt(l.file, start, "unclosed char literal")
	}

	var c int
	if l.src[p] == '\\' {
		c, p = readEscapedChar(l.file, l.src, p+1)
	} else {
		r, n, err := util.DecodeUTF8(l.src, p)
		if err != nil {
			util.ErrorAt(l.file, p, "invalid UTF-8 sequence")
		}
		c, p = int(r), p+n
	}

	end := strings.IndexByte(l.src[p:], '\'')
	if end < 0 {
		util.ErrorAt(l.file, p, "unclosed char literal")
	}
	l.pos = p + end + 1
	tok := l.makeToken(token.Num, start, l.pos)
	tok.Val = int64(c)
	tok.Lit = lit
	return tok
}

// RetokenizeString re-reads a plain string literal as a wide literal with
// the given element type. Used when adjacent literals of mixed kinds are
// concatenated.
func RetokenizeString(tok *token.Token, lit token.Lit) *token.Token {
	t := tok.Copy()
	t.Next = tok.Next
	start := tok.Loc + strings.IndexByte(tok.Text, '"') + 1
	end := tok.Loc + len(tok.Text) - 1
	t.Str = decodeBody(tok.File, tok.File.Contents[:end], start, lit)
	t.Lit = lit
	return t
}

func isSpace(c byte) bool { return c == ' ' || c == '\t' || c == '\v' || c == '\f' || c == '\r' || c == '\n' }
func isDigit(c byte) bool { return '0' <= c && c <= '9' }
func isOctal(c byte) bool { return '0' <= c && c <= '7' }
func isAlpha(c byte) bool { return ('a' <= c && c <= 'z') || ('A' <= c && c <= 'Z') }
func isAlnum(c byte) bool { return isAlpha(c) || isDigit(c) }
func isHex(c byte) bool { return isDigit(c) || ('a' <= c && c <= 'f') || ('A' <= c && c <= 'F') }
func isPunct(c byte) bool { return c > ' ' && c < 0x7f && !isAlnum(c) }
func fromHex(c byte) int {
	switch {
	case isDigit(c):
		return int(c - '0')
	case 'a' <= c && c <= 'f':
		return int(c-'a') + 10
	}
	return int(c-'A') + 10
}
