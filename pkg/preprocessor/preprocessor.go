// Package preprocessor implements the C preprocessor. It consumes the token
// list produced by the lexer and returns a new list with macros expanded
// and directives evaluated.
//
// Every token carries a hideset: the names of the macros it was expanded
// from. A macro is never expanded again inside its own expansion, which
// guarantees termination even for mutually recursive definitions.
package preprocessor

import (
	"strconv"

	"github.com/xplshn/chibicc/pkg/config"
	"github.com/xplshn/chibicc/pkg/hashmap"
	"github.com/xplshn/chibicc/pkg/lexer"
	"github.com/xplshn/chibicc/pkg/parser"
	"github.com/xplshn/chibicc/pkg/token"
	"github.com/xplshn/chibicc/pkg/util"
)

type condCtx int

const (
	inThen condCtx = iota
	inElif
	inElse
)

// condIncl is one level of the #if stack.
type condIncl struct {
	next     *condIncl
	ctx      condCtx
	tok      *token.Token
	included bool
}

// Preprocessor holds the macro table and include state of one compilation.
type Preprocessor struct {
	cfg   *config.Config
	files *token.Registry

	macros     *hashmap.Map[*Macro]
	cond       *condIncl
	pragmaOnce *hashmap.Map[bool]
	guards     *hashmap.Map[string]
	found      *hashmap.Map[string]

	includeNextIdx int
	counter        int

	// BaseFile is the main input file, reported by __BASE_FILE__.
	BaseFile string
}

func New(cfg *config.Config) *Preprocessor {
	if cfg == nil {
		cfg = config.NewConfig()
	}
	p := &Preprocessor{
		cfg:        cfg,
		files:      &token.Registry{},
		macros:     hashmap.New[*Macro](),
		pragmaOnce: hashmap.New[bool](),
		guards:     hashmap.New[string](),
		found:      hashmap.New[string](),
	}
	p.initMacros()
	return p
}

// Files lists every source file read so far, in the order it was opened.
func (p *Preprocessor) Files() []*token.File { return p.files.Files() }

// Define adds an object-like macro whose body is the tokenized text.
func (p *Preprocessor) Define(name, body string) {
	f := token.NewFile("<built-in>", 1, body)
	p.addMacro(name, true, lexer.Tokenize(f, p.cfg))
}

func (p *Preprocessor) Undef(name string) { p.macros.Delete(name) }

func (p *Preprocessor) IsDefined(name string) bool { return p.macros.Has(name) }

func (p *Preprocessor) Macro(name string) *Macro { return p.macros.Lookup(name) }

// Run preprocesses a token list. Keywords and numbers are converted, adjacent
// string literals joined and #line adjustments applied to the result.
func (p *Preprocessor) Run(tok *token.Token) (out *token.Token, err error) {
	defer util.Recover(&err)

	tok = p.expandAll(tok)
	if p.cond != nil {
		util.Error(p.cond.tok, "unterminated conditional directive")
	}
	lexer.ConvertPPTokens(tok)
	joinAdjacentStringLiterals(tok)

	for t := tok; t != nil; t = t.Next {
		t.LineNo += t.LineDelta
	}
	return tok, nil
}

func isHash(tok *token.Token) bool { return tok.AtBOL && tok.Is("#") }

func skip(tok *token.Token, s string) *token.Token {
	if !tok.Is(s) {
		util.Error(tok, "expected '%s'", s)
	}
	return tok.Next
}

// skipLine skips extraneous tokens before the end of a directive line.
func (p *Preprocessor) skipLine(tok *token.Token) *token.Token {
	if tok.AtBOL {
		return tok
	}
	util.Warn(p.cfg, config.WarnExtraTokens, tok, "extra token")
	for !tok.AtBOL {
		tok = tok.Next
	}
	return tok
}

// copyLine copies the tokens up to the end of the line into a new list
// terminated by EOF. It also returns the first token of the next line.
func copyLine(tok *token.Token) (*token.Token, *token.Token) {
	var head token.Token
	cur := &head
	for ; !tok.AtBOL; tok = tok.Next {
		cur.Next = tok.Copy()
		cur = cur.Next
	}
	cur.Next = token.NewEOF(tok)
	return head.Next, tok
}

// appendTokens copies tok1, without its EOF, in front of tok2.
func appendTokens(tok1, tok2 *token.Token) *token.Token {
	if tok1.Kind == token.EOF {
		return tok2
	}
	var head token.Token
	cur := &head
	for ; tok1.Kind != token.EOF; tok1 = tok1.Next {
		cur.Next = tok1.Copy()
		cur = cur.Next
	}
	cur.Next = tok2
	return head.Next
}

func itoa(n int) string { return strconv.Itoa(n) }

func isCondStart(tok *token.Token) bool {
	return isHash(tok) && (tok.Next.Is("if") || tok.Next.Is("ifdef") || tok.Next.Is("ifndef"))
}

func skipCondIncl2(tok *token.Token) *token.Token {
	for tok.Kind != token.EOF {
		if isCondStart(tok) {
			tok = skipCondIncl2(tok.Next.Next)
			continue
		}
		if isHash(tok) && tok.Next.Is("endif") {
			return tok.Next.Next
		}
		tok = tok.Next
	}
	return tok
}

// skipCondIncl skips to the next #elif, #else or #endif at this nesting
// level. Nested conditionals are skipped whole.
func skipCondIncl(tok *token.Token) *token.Token {
	for tok.Kind != token.EOF {
		if isCondStart(tok) {
			tok = skipCondIncl2(tok.Next.Next)
			continue
		}
		if isHash(tok) && (tok.Next.Is("elif") || tok.Next.Is("else") || tok.Next.Is("endif")) {
			break
		}
		tok = tok.Next
	}
	return tok
}

func (p *Preprocessor) pushCondIncl(tok *token.Token, included bool) {
	p.cond = &condIncl{next: p.cond, ctx: inThen, tok: tok, included: included}
}

// readConstExpr copies an #if line, replacing defined(X) with 0 or 1.
func (p *Preprocessor) readConstExpr(tok *token.Token) (*token.Token, *token.Token) {
	tok, rest := copyLine(tok)

	var head token.Token
	cur := &head
	for tok.Kind != token.EOF {
		if tok.Is("defined") {
			start := tok
			tok = tok.Next
			hasParen := tok.Is("(")
			if hasParen {
				tok = tok.Next
			}
			if tok.Kind != token.Ident {
				util.Error(start, "macro name must be an identifier")
			}
			defined := p.findMacro(tok) != nil
			tok = tok.Next
			if hasParen {
				tok = skip(tok, ")")
			}

			n := 0
			if defined {
				n = 1
			}
			cur.Next = p.newNumToken(n, start)
			cur = cur.Next
			continue
		}
		cur.Next = tok
		cur = tok
		tok = tok.Next
	}
	cur.Next = tok
	return head.Next, rest
}

// evalConstExpr evaluates the expression of an #if or #elif directive.
// tok is the directive name.
func (p *Preprocessor) evalConstExpr(tok *token.Token) (int64, *token.Token) {
	start := tok
	expr, rest := p.readConstExpr(tok.Next)
	expr = p.expandAll(expr)

	if expr.Kind == token.EOF {
		util.Error(start, "no expression")
	}

	// Identifiers left after expansion evaluate to 0.
	for t := expr; t.Kind != token.EOF; t = t.Next {
		if t.Kind == token.Ident {
			next := t.Next
			*t = *p.newNumToken(0, t)
			t.Next = next
		}
	}

	lexer.ConvertPPTokens(expr)

	val, rest2 := parser.EvalConstExpr(expr)
	if rest2.Kind != token.EOF {
		util.Error(rest2, "extra token")
	}
	return val, rest
}

// expandAll visits every token, expanding macros and evaluating directives.
func (p *Preprocessor) expandAll(tok *token.Token) *token.Token {
	var head token.Token
	cur := &head

	for tok.Kind != token.EOF {
		if rest, ok := p.expandMacro(tok); ok {
			tok = rest
			continue
		}

		if !isHash(tok) {
			tok.LineDelta = tok.File.LineDelta
			tok.Filename = tok.File.DisplayName
			cur.Next = tok
			cur = tok
			tok = tok.Next
			continue
		}

		start := tok
		tok = tok.Next
		tok = p.directive(start, tok)
	}

	cur.Next = tok
	return head.Next
}

// directive evaluates one directive line. hash is the '#' and tok the
// directive name; the returned token is where scanning resumes.
func (p *Preprocessor) directive(hash, tok *token.Token) *token.Token {
	switch {
	case tok.Is("include"):
		name, quoted, rest := p.readIncludeFilename(tok.Next)
		if quoted {
			if path, ok := p.searchRelative(hash.File.Name, name); ok {
				return p.includeFile(rest, path, hash.Next.Next)
			}
		}
		path := p.SearchInclude(name)
		if path == "" {
			path = name
		}
		return p.includeFile(rest, path, hash.Next.Next)

	case tok.Is("include_next"):
		name, _, rest := p.readIncludeFilename(tok.Next)
		path := p.searchIncludeNext(name)
		if path == "" {
			path = name
		}
		return p.includeFile(rest, path, hash.Next.Next)

	case tok.Is("define"):
		return p.readMacroDefinition(tok.Next)

	case tok.Is("undef"):
		tok = tok.Next
		if tok.Kind != token.Ident {
			util.Error(tok, "macro name must be an identifier")
		}
		p.Undef(tok.Text)
		return p.skipLine(tok.Next)

	case tok.Is("if"):
		val, rest := p.evalConstExpr(tok)
		p.pushCondIncl(hash, val != 0)
		if val == 0 {
			rest = skipCondIncl(rest)
		}
		return rest

	case tok.Is("ifdef"), tok.Is("ifndef"):
		defined := p.findMacro(tok.Next) != nil
		included := defined == tok.Is("ifdef")
		p.pushCondIncl(tok, included)
		tok = p.skipLine(tok.Next.Next)
		if !included {
			tok = skipCondIncl(tok)
		}
		return tok

	case tok.Is("elif"):
		if p.cond == nil || p.cond.ctx == inElse {
			util.Error(hash, "stray #elif")
		}
		p.cond.ctx = inElif

		if !p.cond.included {
			val, rest := p.evalConstExpr(tok)
			if val != 0 {
				p.cond.included = true
				return rest
			}
			return skipCondIncl(rest)
		}
		return skipCondIncl(tok)

	case tok.Is("else"):
		if p.cond == nil || p.cond.ctx == inElse {
			util.Error(hash, "stray #else")
		}
		p.cond.ctx = inElse
		tok = p.skipLine(tok.Next)
		if p.cond.included {
			tok = skipCondIncl(tok)
		}
		return tok

	case tok.Is("endif"):
		if p.cond == nil {
			util.Error(hash, "stray #endif")
		}
		p.cond = p.cond.next
		return p.skipLine(tok.Next)

	case tok.Is("line"):
		return p.readLineMarker(tok.Next)

	case tok.Kind == token.PPNum:
		return p.readLineMarker(tok)

	case tok.Is("pragma") && tok.Next.Is("once"):
		p.pragmaOnce.Put(tok.File.Name, true)
		return p.skipLine(tok.Next.Next)

	case tok.Is("pragma"):
		if !tok.Next.AtBOL {
			util.Warn(p.cfg, config.WarnUnknownPragmas, tok.Next, "ignoring #pragma %s", tok.Next.Text)
		}
		for {
			tok = tok.Next
			if tok.AtBOL {
				return tok
			}
		}

	case tok.Is("error"):
		util.Error(tok, "error")

	case tok.AtBOL:
		// A '#' alone on a line is the null directive.
		return tok
	}

	util.Error(tok, "invalid preprocessor directive")
	return nil
}

// readLineMarker handles #line and GNU "# N "file"" markers.
func (p *Preprocessor) readLineMarker(tok *token.Token) *token.Token {
	start := tok
	line, rest := copyLine(tok)
	line = p.expandAll(line)
	lexer.ConvertPPTokens(line)

	if line.Kind != token.Num || line.Lit != token.LitInt {
		util.Error(line, "invalid line marker")
	}
	// The marker names the number of the line that follows it.
	start.File.LineDelta = int(line.Val) - (start.LineNo + 1)

	line = line.Next
	if line.Kind == token.EOF {
		return rest
	}
	if line.Kind != token.Str {
		util.Error(line, "filename expected")
	}
	start.File.DisplayName = string(line.Str[:len(line.Str)-1])
	return rest
}
