package preprocessor

import (
	"strings"

	"github.com/xplshn/chibicc/pkg/config"
	"github.com/xplshn/chibicc/pkg/lexer"
	"github.com/xplshn/chibicc/pkg/token"
	"github.com/xplshn/chibicc/pkg/util"
)

type handlerFunc func(tmpl *token.Token) *token.Token

// Macro is a #define'd name. Builtins such as __LINE__ carry a handler
// instead of a body.
type Macro struct {
	Name       string
	ObjLike    bool
	Params     []string
	VaArgsName string
	Body       *token.Token

	handler handlerFunc
}

type macroArg struct {
	name     string
	isVaArgs bool
	tok      *token.Token
}

func (p *Preprocessor) findMacro(tok *token.Token) *Macro {
	if tok.Kind != token.Ident {
		return nil
	}
	return p.macros.Lookup(tok.Text)
}

func (p *Preprocessor) addMacro(name string, objLike bool, body *token.Token) *Macro {
	m := &Macro{Name: name, ObjLike: objLike, Body: body}
	p.macros.Put(name, m)
	return m
}

func sameDefinition(a, b *Macro) bool {
	if a.handler != nil || b.handler != nil {
		return false
	}
	if a.ObjLike != b.ObjLike || a.VaArgsName != b.VaArgsName || strings.Join(a.Params, ",") != strings.Join(b.Params, ",") {
		return false
	}
	return token.Join(a.Body, nil) == token.Join(b.Body, nil)
}

func (p *Preprocessor) readMacroParams(tok *token.Token) (params []string, vaArgsName string, rest *token.Token) {
	for !tok.Is(")") {
		if len(params) > 0 {
			tok = skip(tok, ",")
		}

		if tok.Is("...") {
			return params, "__VA_ARGS__", skip(tok.Next, ")")
		}
		if tok.Kind != token.Ident {
			util.Error(tok, "expected an identifier")
		}
		if tok.Next.Is("...") {
			return params, tok.Text, skip(tok.Next.Next, ")")
		}

		params = append(params, tok.Text)
		tok = tok.Next
	}
	return params, "", tok.Next
}

func (p *Preprocessor) readMacroDefinition(tok *token.Token) *token.Token {
	if tok.Kind != token.Ident {
		util.Error(tok, "macro name must be an identifier")
	}
	nameTok := tok
	tok = tok.Next

	m := &Macro{Name: nameTok.Text, ObjLike: true}
	if !tok.HasSpace && tok.Is("(") {
		m.ObjLike = false
		m.Params, m.VaArgsName, tok = p.readMacroParams(tok.Next)
	}

	var rest *token.Token
	m.Body, rest = copyLine(tok)

	if old := p.macros.Lookup(m.Name); old != nil && !sameDefinition(old, m) {
		util.Warn(p.cfg, config.WarnMacroRedefined, nameTok, "'%s' macro redefined", m.Name)
	}
	p.macros.Put(m.Name, m)
	return rest
}

func readMacroArgOne(tok *token.Token, readRest bool) (*macroArg, *token.Token) {
	var head token.Token
	cur := &head
	level := 0

	for {
		if level == 0 && tok.Is(")") {
			break
		}
		if level == 0 && !readRest && tok.Is(",") {
			break
		}
		if tok.Kind == token.EOF {
			util.Error(tok, "premature end of input")
		}

		if tok.Is("(") {
			level++
		} else if tok.Is(")") {
			level--
		}
		cur.Next = tok.Copy()
		cur = cur.Next
		tok = tok.Next
	}

	cur.Next = token.NewEOF(tok)
	return &macroArg{tok: head.Next}, tok
}

// readMacroArgs collects the arguments of a function-like macro call.
// tok is the macro name; the returned token is the closing parenthesis.
func readMacroArgs(tok *token.Token, m *Macro) ([]*macroArg, *token.Token) {
	start := tok
	tok = tok.Next.Next

	var args []*macroArg
	for i, name := range m.Params {
		if i > 0 {
			tok = skip(tok, ",")
		}
		var arg *macroArg
		arg, tok = readMacroArgOne(tok, false)
		arg.name = name
		args = append(args, arg)
	}

	if m.VaArgsName != "" {
		var arg *macroArg
		if tok.Is(")") {
			arg = &macroArg{tok: token.NewEOF(tok)}
		} else {
			if len(m.Params) > 0 {
				tok = skip(tok, ",")
			}
			arg, tok = readMacroArgOne(tok, true)
		}
		arg.name = m.VaArgsName
		arg.isVaArgs = true
		args = append(args, arg)
	} else if !tok.Is(")") {
		util.Error(start, "too many arguments")
	}

	skip(tok, ")")
	return args, tok
}

func findArg(args []*macroArg, tok *token.Token) *macroArg {
	if tok.Kind != token.Ident && tok.Kind != token.Keyword {
		return nil
	}
	for _, a := range args {
		if a.name == tok.Text {
			return a
		}
	}
	return nil
}

func hasVarArgs(args []*macroArg) bool {
	for _, a := range args {
		if a.isVaArgs {
			return a.tok.Kind != token.EOF
		}
	}
	return false
}

// quoteString wraps s in double quotes, escaping backslashes and quotes.
func quoteString(s string) string {
	var sb strings.Builder
	sb.Grow(len(s) + 2)
	sb.WriteByte('"')
	escapeString(&sb, s)
	sb.WriteByte('"')
	return sb.String()
}

func escapeString(sb *strings.Builder, s string) {
	for i := 0; i < len(s); i++ {
		if s[i] == '\\' || s[i] == '"' {
			sb.WriteByte('\\')
		}
		sb.WriteByte(s[i])
	}
}

// tokenizeText lexes a synthesized snippet. The result is positioned at
// tmpl for diagnostics and line information.
func (p *Preprocessor) tokenizeText(s string, tmpl *token.Token) *token.Token {
	f := token.NewFile(tmpl.File.Name, tmpl.File.FileNo, s)
	f.DisplayName = tmpl.File.DisplayName
	f.LineDelta = tmpl.File.LineDelta
	tok := lexer.Tokenize(f, p.cfg)
	for t := tok; t != nil; t = t.Next {
		t.LineNo = tmpl.LineNo
	}
	tok.AtBOL = false
	tok.HasSpace = tmpl.HasSpace
	return tok
}

func (p *Preprocessor) newStrToken(s string, tmpl *token.Token) *token.Token {
	return p.tokenizeText(quoteString(s), tmpl)
}

func (p *Preprocessor) newNumToken(val int, tmpl *token.Token) *token.Token {
	return p.tokenizeText(itoa(val)+"\n", tmpl)
}

// stringize spells arg as a string literal. Backslashes and quotes are
// escaped only inside string and character literals, so `a\n` stays as is.
func (p *Preprocessor) stringize(hash, arg *token.Token) *token.Token {
	var sb strings.Builder
	sb.WriteByte('"')
	for t := arg; t != nil && t.Kind != token.EOF; t = t.Next {
		if t != arg && t.HasSpace {
			sb.WriteByte(' ')
		}
		if t.Kind == token.Str || strings.ContainsRune(t.Text, '\'') {
			escapeString(&sb, t.Text)
			continue
		}
		sb.WriteString(t.Text)
	}
	sb.WriteByte('"')
	return p.tokenizeText(sb.String(), hash)
}

func (p *Preprocessor) paste(lhs, rhs *token.Token) *token.Token {
	buf := lhs.Text + rhs.Text
	tok := p.tokenizeText(buf, lhs)
	if tok.Next.Kind != token.EOF {
		util.Error(lhs, "pasting forms '%s', an invalid token", buf)
	}
	return tok
}

// subst replaces the parameters of a function-like macro body with the
// call's arguments, applying # and ## along the way.
func (p *Preprocessor) subst(tok *token.Token, args []*macroArg) *token.Token {
	var head token.Token
	cur := &head
	emit := func(t *token.Token) {
		cur.Next = t.Copy()
		cur = cur.Next
	}
	emitList := func(list *token.Token) {
		for t := list; t.Kind != token.EOF; t = t.Next {
			emit(t)
		}
	}

	for tok.Kind != token.EOF {
		if tok.Is("#") {
			arg := findArg(args, tok.Next)
			if arg == nil {
				util.Error(tok.Next, "'#' is not followed by a macro parameter")
			}
			cur.Next = p.stringize(tok, arg.tok)
			cur = cur.Next
			tok = tok.Next.Next
			continue
		}

		// [GNU] ,##__VA_ARGS__ drops the comma when the variadic part is empty.
		if tok.Is(",") && tok.Next.Is("##") {
			if arg := findArg(args, tok.Next.Next); arg != nil && arg.isVaArgs {
				if arg.tok.Kind == token.EOF {
					tok = tok.Next.Next.Next
				} else {
					emit(tok)
					tok = tok.Next.Next
				}
				continue
			}
		}

		if tok.Is("##") {
			if cur == &head {
				util.Error(tok, "'##' cannot appear at start of macro expansion")
			}
			if tok.Next.Kind == token.EOF {
				util.Error(tok, "'##' cannot appear at end of macro expansion")
			}

			if arg := findArg(args, tok.Next); arg != nil {
				if arg.tok.Kind != token.EOF {
					pasted := p.paste(cur, arg.tok)
					pasted.Next = nil
					*cur = *pasted
					emitList(arg.tok.Next)
				}
				tok = tok.Next.Next
				continue
			}

			pasted := p.paste(cur, tok.Next)
			pasted.Next = nil
			*cur = *pasted
			tok = tok.Next.Next
			continue
		}

		arg := findArg(args, tok)

		if arg != nil && tok.Next.Is("##") {
			rhs := tok.Next.Next

			if arg.tok.Kind == token.EOF {
				if arg2 := findArg(args, rhs); arg2 != nil {
					emitList(arg2.tok)
				} else {
					emit(rhs)
				}
				tok = rhs.Next
				continue
			}

			emitList(arg.tok)
			tok = tok.Next
			continue
		}

		if tok.Is("__VA_OPT__") && tok.Next.Is("(") {
			opt, rest := readMacroArgOne(tok.Next.Next, true)
			if hasVarArgs(args) {
				emitList(p.subst(opt.tok, args))
			}
			tok = skip(rest, ")")
			continue
		}

		// Arguments are fully macro-expanded before they are substituted.
		if arg != nil {
			t := p.expandAll(arg.tok)
			t.AtBOL = tok.AtBOL
			t.HasSpace = tok.HasSpace
			emitList(t)
			tok = tok.Next
			continue
		}

		emit(tok)
		tok = tok.Next
	}

	cur.Next = tok
	return head.Next
}

// pasteBody applies the ## operators of an object-like macro body.
func (p *Preprocessor) pasteBody(tok *token.Token) *token.Token {
	var head token.Token
	cur := &head
	for ; tok.Kind != token.EOF; tok = tok.Next {
		if !tok.Is("##") {
			cur.Next = tok.Copy()
			cur = cur.Next
			continue
		}
		if cur == &head {
			util.Error(tok, "'##' cannot appear at start of macro expansion")
		}
		if tok.Next.Kind == token.EOF {
			util.Error(tok, "'##' cannot appear at end of macro expansion")
		}
		pasted := p.paste(cur, tok.Next)
		pasted.Next = nil
		*cur = *pasted
		tok = tok.Next
	}
	cur.Next = tok
	return head.Next
}

// expandMacro expands the macro named by tok, if any, and returns the
// token stream that replaces it.
func (p *Preprocessor) expandMacro(tok *token.Token) (*token.Token, bool) {
	if tok.Hideset.Contains(tok.Text) {
		return nil, false
	}
	m := p.findMacro(tok)
	if m == nil {
		return nil, false
	}

	if m.handler != nil {
		rest := m.handler(tok)
		rest.AtBOL = tok.AtBOL
		rest.HasSpace = tok.HasSpace
		rest.Next = tok.Next
		return rest, true
	}

	if m.ObjLike {
		hs := tok.Hideset.Union(token.NewHideset(m.Name))
		body := token.AddHideset(p.pasteBody(m.Body), hs)
		for t := body; t.Kind != token.EOF; t = t.Next {
			t.Origin = tok
		}
		rest := appendTokens(body, tok.Next)
		rest.AtBOL = tok.AtBOL
		rest.HasSpace = tok.HasSpace
		return rest, true
	}

	// A function-like macro name without an argument list is an
	// ordinary identifier.
	if !tok.Next.Is("(") {
		return nil, false
	}

	macroTok := tok
	args, rparen := readMacroArgs(tok, m)

	// The tokens of one invocation may carry different hidesets. The
	// expansion gets the intersection of the name's and the closing
	// parenthesis', plus the macro itself.
	hs := macroTok.Hideset.Intersection(rparen.Hideset)
	hs = hs.Union(token.NewHideset(m.Name))

	body := p.subst(m.Body, args)
	body = token.AddHideset(body, hs)
	for t := body; t.Kind != token.EOF; t = t.Next {
		t.Origin = macroTok
	}
	rest := appendTokens(body, rparen.Next)
	rest.AtBOL = macroTok.AtBOL
	rest.HasSpace = macroTok.HasSpace
	return rest, true
}
