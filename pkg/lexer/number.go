package lexer

import (
	"math"
	"strconv"
	"strings"

	"github.com/xplshn/chibicc/pkg/hashmap"
	"github.com/xplshn/chibicc/pkg/token"
	"github.com/xplshn/chibicc/pkg/util"
	"modernc.org/mathutil"
)

var keywords = func() *hashmap.Map[bool] {
	m := hashmap.New[bool]()
	for _, kw := range []string{
		"return", "if", "else", "for", "while", "int", "sizeof", "char",
		"struct", "union", "short", "long", "void", "typedef", "_Bool",
		"enum", "static", "goto", "break", "continue", "switch", "case",
		"default", "extern", "_Alignof", "_Alignas", "do", "signed",
		"unsigned", "const", "volatile", "auto", "register", "restrict",
		"__restrict", "__restrict__", "_Noreturn", "float", "double",
		"typeof", "asm", "_Thread_local", "__thread", "_Atomic",
		"__attribute__", "__asm__", "inline", "_Generic",
	} {
		m.Put(kw, true)
	}
	return m
}()

func IsKeyword(s string) bool { return keywords.Has(s) }

// ConvertPPTokens turns identifiers that spell keywords into Keyword tokens
// and pp-numbers into typed Num tokens. It runs once preprocessing is done.
func ConvertPPTokens(tok *token.Token) {
	for t := tok; t != nil && t.Kind != token.EOF; t = t.Next {
		if t.Kind == token.Ident && IsKeyword(t.Text) {
			t.Kind = token.Keyword
		} else if t.Kind == token.PPNum {
			convertPPNumber(t)
		}
	}
}

func convertPPNumber(tok *token.Token) {
	if convertPPInt(tok) {
		return
	}

	s := tok.Text
	lit := token.LitDouble
	switch s[len(s)-1] {
	case 'f', 'F':
		if !isHexFloat(s) || strings.ContainsAny(s, "pP") {
			lit, s = token.LitFloat, s[:len(s)-1]
		}
	case 'l', 'L':
		lit, s = token.LitLDouble, s[:len(s)-1]
	}

	val, err := strconv.ParseFloat(s, 64)
	if err != nil && !isRangeErr(err) || strings.ContainsRune(s, '_') {
		util.Error(tok, "invalid numeric constant")
	}
	tok.Kind = token.Num
	tok.FVal = val
	tok.Lit = lit
}

func isHexFloat(s string) bool { return len(s) > 2 && s[0] == '0' && (s[1] == 'x' || s[1] == 'X') }

func isRangeErr(err error) bool {
	ne, ok := err.(*strconv.NumError)
	return ok && ne.Err == strconv.ErrRange
}

// parseUint reads digits of the given base from s, saturating on overflow
// like strtoul, and returns the value and the number of bytes consumed.
func parseUint(s string, base uint64) (uint64, int) {
	var v uint64
	overflow := false
	i := 0
	for ; i < len(s); i++ {
		var d uint64
		c := s[i]
		switch {
		case isDigit(c):
			d = uint64(c - '0')
		case 'a' <= c && c <= 'z':
			d = uint64(c-'a') + 10
		case 'A' <= c && c <= 'Z':
			d = uint64(c-'A') + 10
		default:
			d = base
		}
		if d >= base {
			break
		}
		if v > (math.MaxUint64-d)/base {
			overflow = true
		}
		v = v*base + d
	}
	if overflow {
		v = math.MaxUint64
	}
	return v, i
}

func convertPPInt(tok *token.Token) bool {
	s := tok.Text
	lower := strings.ToLower(s)

	base := uint64(10)
	switch {
	case strings.HasPrefix(lower, "0x") && len(s) > 2 && isHex(s[2]):
		s, base = s[2:], 16
	case strings.HasPrefix(lower, "0b") && len(s) > 2 && (s[2] == '0' || s[2] == '1'):
		s, base = s[2:], 2
	case s[0] == '0':
		base = 8
	}

	val, n := parseUint(s, base)
	s = s[n:]

	var l, u bool
	switch suf := strings.ToLower(s); {
	case suf == "llu" && (s == "LLU" || s == "LLu" || s == "llU" || s == "llu"),
		suf == "ull" && (s == "ULL" || s == "Ull" || s == "uLL" || s == "ull"):
		l, u = true, true
	case suf == "lu" || suf == "ul":
		l, u = true, true
	case s == "LL" || s == "ll":
		l = true
	case s == "L" || s == "l":
		l = true
	case s == "U" || s == "u":
		u = true
	case s != "":
		return false
	}

	bits := mathutil.BitLenUint64(val)
	var lit token.Lit
	if base == 10 {
		switch {
		case l && u:
			lit = token.LitULong
		case l:
			lit = token.LitLong
		case u:
			lit = pick(bits > 32, token.LitULong, token.LitUInt)
		default:
			lit = pick(bits > 31, token.LitLong, token.LitInt)
		}
	} else {
		switch {
		case l && u:
			lit = token.LitULong
		case l:
			lit = pick(bits > 63, token.LitULong, token.LitLong)
		case u:
			lit = pick(bits > 32, token.LitULong, token.LitUInt)
		case bits > 63:
			lit = token.LitULong
		case bits > 32:
			lit = token.LitLong
		case bits > 31:
			lit = token.LitUInt
		default:
			lit = token.LitInt
		}
	}

	tok.Kind = token.Num
	tok.Val = int64(val)
	tok.Lit = lit
	return true
}

func pick(cond bool, a, b token.Lit) token.Lit {
	if cond {
		return a
	}
	return b
}
