package preprocessor

import (
	"embed"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/xplshn/chibicc/pkg/lexer"
	"github.com/xplshn/chibicc/pkg/token"
	"github.com/xplshn/chibicc/pkg/util"
)

//go:embed include/*.h
var builtinHeaders embed.FS

// BuiltinDir names the compiler's own header directory. It is searched
// after the -I paths and before the system ones.
const BuiltinDir = "<chibicc>/include"

func builtinName(path string) (string, bool) {
	if rest, ok := strings.CutPrefix(path, BuiltinDir+"/"); ok {
		return "include/" + rest, true
	}
	return "", false
}

// FileExists reports whether path names a readable file or a builtin header.
func FileExists(path string) bool {
	if name, ok := builtinName(path); ok {
		_, err := fs.Stat(builtinHeaders, name)
		return err == nil
	}
	_, err := os.Stat(path)
	return err == nil
}

func readSource(path string) ([]byte, error) {
	if name, ok := builtinName(path); ok {
		return builtinHeaders.ReadFile(name)
	}
	if path == "-" {
		return io.ReadAll(os.Stdin)
	}
	return os.ReadFile(path)
}

// TokenizeFile reads, registers and tokenizes a source file. "-" reads
// standard input.
func (p *Preprocessor) TokenizeFile(path string) (tok *token.Token, err error) {
	src, err := readSource(path)
	if err != nil {
		return nil, err
	}
	defer util.Recover(&err)
	return p.TokenizeString(path, src), nil
}

// TokenizeString registers src under name and tokenizes it.
func (p *Preprocessor) TokenizeString(name string, src []byte) *token.Token {
	f := p.files.Add(name, lexer.Normalize(src))
	p.cfg.Infof("reading %s", name)
	return lexer.Tokenize(f, p.cfg)
}

func (p *Preprocessor) searchPaths() []string {
	paths := make([]string, 0, len(p.cfg.IncludePaths)+len(p.cfg.SystemIncludePaths)+len(p.cfg.IdirAfter)+1)
	paths = append(paths, p.cfg.IncludePaths...)
	paths = append(paths, BuiltinDir)
	paths = append(paths, p.cfg.SystemIncludePaths...)
	return append(paths, p.cfg.IdirAfter...)
}

// SearchInclude looks name up in the include paths and returns the first
// match, or "" if there is none. Results are cached.
func (p *Preprocessor) SearchInclude(name string) string {
	if filepath.IsAbs(name) {
		return name
	}
	if path, ok := p.found.Get(name); ok {
		return path
	}

	for i, dir := range p.searchPaths() {
		path := dir + "/" + name
		if !FileExists(path) {
			continue
		}
		p.found.Put(name, path)
		p.includeNextIdx = i + 1
		return path
	}
	return ""
}

// searchIncludeNext continues the search after the directory where the
// previous include was found.
func (p *Preprocessor) searchIncludeNext(name string) string {
	paths := p.searchPaths()
	for ; p.includeNextIdx < len(paths); p.includeNextIdx++ {
		path := paths[p.includeNextIdx] + "/" + name
		if FileExists(path) {
			return path
		}
	}
	return ""
}

func (p *Preprocessor) searchRelative(from, name string) (string, bool) {
	if filepath.IsAbs(name) {
		return name, FileExists(name)
	}
	path := filepath.Dir(from) + "/" + name
	if _, ok := builtinName(from); ok {
		path = BuiltinDir + "/" + name
	}
	return path, FileExists(path)
}

// readIncludeFilename reads the operand of #include. It reports whether
// the name was double-quoted.
func (p *Preprocessor) readIncludeFilename(tok *token.Token) (string, bool, *token.Token) {
	// Escape sequences in "foo.h" are not interpreted, so the spelling is
	// used rather than the decoded string.
	if tok.Kind == token.Str {
		return tok.Text[1 : len(tok.Text)-1], true, p.skipLine(tok.Next)
	}

	if tok.Is("<") {
		start := tok
		for ; !tok.Is(">"); tok = tok.Next {
			if tok.AtBOL || tok.Kind == token.EOF {
				util.Error(tok, "expected '>'")
			}
		}
		return token.Join(start.Next, tok), false, p.skipLine(tok.Next)
	}

	// #include FOO expands FOO to one of the forms above.
	if tok.Kind == token.Ident {
		line, rest := copyLine(tok)
		line = p.expandAll(line)
		name, quoted, _ := p.readIncludeFilename(line)
		return name, quoted, rest
	}

	util.Error(tok, "expected a filename")
	return "", false, nil
}

// detectIncludeGuard recognizes files wrapped entirely in
//
//	#ifndef FOO_H
//	#define FOO_H
//	...
//	#endif
//
// and returns the guard macro name.
func detectIncludeGuard(tok *token.Token) string {
	if !isHash(tok) || !tok.Next.Is("ifndef") {
		return ""
	}
	tok = tok.Next.Next
	if tok.Kind != token.Ident {
		return ""
	}

	macro := tok.Text
	tok = tok.Next
	if !isHash(tok) || !tok.Next.Is("define") || !tok.Next.Next.Is(macro) {
		return ""
	}

	for tok.Kind != token.EOF {
		if !isHash(tok) {
			tok = tok.Next
			continue
		}
		if tok.Next.Is("endif") && tok.Next.Next.Kind == token.EOF {
			return macro
		}
		if isCondStart(tok) {
			tok = skipCondIncl2(tok.Next.Next)
		} else {
			tok = tok.Next
		}
	}
	return ""
}

func (p *Preprocessor) includeFile(tok *token.Token, path string, nameTok *token.Token) *token.Token {
	if p.pragmaOnce.Has(path) {
		return tok
	}

	// A guarded file read before is skipped without opening it while its
	// guard macro is still defined.
	if guard, ok := p.guards.Get(path); ok && p.macros.Has(guard) {
		return tok
	}

	src, err := readSource(path)
	if err != nil {
		util.Error(nameTok, "%s: cannot open file: %v", path, unwrapPathError(err))
	}
	tok2 := p.TokenizeString(path, src)

	if guard := detectIncludeGuard(tok2); guard != "" {
		p.guards.Put(path, guard)
	}
	return appendTokens(tok2, tok)
}

func unwrapPathError(err error) error {
	if pe, ok := err.(*fs.PathError); ok {
		return pe.Err
	}
	return err
}

// ForceInclude tokenizes each file named by -include and places its tokens
// in front of tok. A name that does not exist relative to the working
// directory is looked up in the include paths.
func (p *Preprocessor) ForceInclude(tok *token.Token, names []string) (*token.Token, error) {
	for i := len(names) - 1; i >= 0; i-- {
		path := names[i]
		if !FileExists(path) {
			if path = p.SearchInclude(names[i]); path == "" {
				return nil, fmt.Errorf("%s: cannot open file: no such file or directory", names[i])
			}
		}
		tok2, err := p.TokenizeFile(path)
		if err != nil {
			return nil, fmt.Errorf("%s: cannot open file: %w", path, unwrapPathError(err))
		}
		tok = appendTokens(tok2, tok)
	}
	return tok, nil
}
