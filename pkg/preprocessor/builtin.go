package preprocessor

import "github.com/xplshn/chibicc/pkg/token"

// Fixed so that output does not depend on when it was produced.
const (
	buildDate      = "Jul 24 2020"
	buildTime      = "01:32:50"
	buildTimestamp = "Fri Jul 24 01:32:50 2020"
)

var predefined = [][2]string{
	{"_LP64", "1"},
	{"__C99_MACRO_WITH_VA_ARGS", "1"},
	{"__ELF__", "1"},
	{"__LP64__", "1"},
	{"__SIZEOF_DOUBLE__", "8"},
	{"__SIZEOF_FLOAT__", "4"},
	{"__SIZEOF_INT__", "4"},
	{"__SIZEOF_LONG_DOUBLE__", "8"},
	{"__SIZEOF_LONG_LONG__", "8"},
	{"__SIZEOF_LONG__", "8"},
	{"__SIZEOF_POINTER__", "8"},
	{"__SIZEOF_PTRDIFF_T__", "8"},
	{"__SIZEOF_SHORT__", "2"},
	{"__SIZEOF_SIZE_T__", "8"},
	{"__SIZE_TYPE__", "unsigned long"},
	{"__STDC_HOSTED__", "1"},
	{"__STDC_NO_COMPLEX__", "1"},
	{"__STDC_UTF_16__", "1"},
	{"__STDC_UTF_32__", "1"},
	{"__STDC_VERSION__", "201112L"},
	{"__STDC__", "1"},
	{"__USER_LABEL_PREFIX__", ""},
	{"__alignof__", "_Alignof"},
	{"__amd64", "1"},
	{"__amd64__", "1"},
	{"__chibicc__", "1"},
	{"__const__", "const"},
	{"__gnu_linux__", "1"},
	{"__inline__", "inline"},
	{"__linux", "1"},
	{"__linux__", "1"},
	{"__signed__", "signed"},
	{"__typeof__", "typeof"},
	{"__unix", "1"},
	{"__unix__", "1"},
	{"__volatile__", "volatile"},
	{"__x86_64", "1"},
	{"__x86_64__", "1"},
	{"linux", "1"},
	{"unix", "1"},
	{"__DATE__", `"` + buildDate + `"`},
	{"__TIME__", `"` + buildTime + `"`},
}

func (p *Preprocessor) initMacros() {
	for _, d := range predefined {
		p.Define(d[0], d[1])
	}

	p.addBuiltin("__FILE__", p.fileMacro)
	p.addBuiltin("__LINE__", p.lineMacro)
	p.addBuiltin("__COUNTER__", p.counterMacro)
	p.addBuiltin("__TIMESTAMP__", p.timestampMacro)
	p.addBuiltin("__BASE_FILE__", p.baseFileMacro)
}

func (p *Preprocessor) addBuiltin(name string, fn handlerFunc) {
	m := p.addMacro(name, true, nil)
	m.handler = fn
}

// origin follows a token back to the source text it was expanded from.
func origin(tok *token.Token) *token.Token {
	for tok.Origin != nil {
		tok = tok.Origin
	}
	return tok
}

func (p *Preprocessor) fileMacro(tmpl *token.Token) *token.Token {
	tmpl = origin(tmpl)
	return p.newStrToken(tmpl.File.DisplayName, tmpl)
}

func (p *Preprocessor) lineMacro(tmpl *token.Token) *token.Token {
	tmpl = origin(tmpl)
	return p.newNumToken(tmpl.LineNo+tmpl.File.LineDelta, tmpl)
}

// __COUNTER__ expands to 0, 1, 2 and so on.
func (p *Preprocessor) counterMacro(tmpl *token.Token) *token.Token {
	n := p.counter
	p.counter++
	return p.newNumToken(n, tmpl)
}

func (p *Preprocessor) timestampMacro(tmpl *token.Token) *token.Token {
	return p.newStrToken(buildTimestamp, tmpl)
}

func (p *Preprocessor) baseFileMacro(tmpl *token.Token) *token.Token {
	return p.newStrToken(p.BaseFile, tmpl)
}
