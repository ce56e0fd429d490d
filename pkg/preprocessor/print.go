package preprocessor

import (
	"bufio"
	"fmt"
	"io"
	"path/filepath"
	"reflect"
	"strings"

	"github.com/xplshn/chibicc/pkg/token"
	"modernc.org/strutil"
)

// PrintTokens writes preprocessed tokens as C source text, one logical
// line per output line.
func PrintTokens(w io.Writer, tok *token.Token) error {
	bw := bufio.NewWriter(w)
	for first := true; tok.Kind != token.EOF; tok = tok.Next {
		if !first && tok.AtBOL {
			bw.WriteByte('\n')
		}
		if tok.HasSpace && !tok.AtBOL {
			bw.WriteByte(' ')
		}
		if tok.Joined == nil {
			bw.WriteString(tok.Text)
		}
		for i, part := range tok.Joined {
			switch {
			case i == 0:
			case part.AtBOL:
				bw.WriteByte('\n')
			case part.HasSpace:
				bw.WriteByte(' ')
			}
			bw.WriteString(part.Text)
		}
		first = false
	}
	bw.WriteByte('\n')
	return bw.Flush()
}

// DepOptions controls the make rule written by PrintDependencies.
type DepOptions struct {
	Target string // already quoted; empty means <base>.o
	Phony  bool   // add an empty rule for every header
}

// QuoteMakefile escapes s for use as a make target.
func QuoteMakefile(s string) string {
	var sb strings.Builder
	for i := 0; i < len(s); i++ {
		switch c := s[i]; c {
		case '$':
			sb.WriteString("$$")
		case '#':
			sb.WriteString(`\#`)
		case ' ', '\t':
			for k := i - 1; k >= 0 && s[k] == '\\'; k-- {
				sb.WriteByte('\\')
			}
			sb.WriteByte('\\')
			sb.WriteByte(c)
		default:
			sb.WriteByte(c)
		}
	}
	return sb.String()
}

// ReplaceExt replaces the extension of the base name of path.
func ReplaceExt(path, ext string) string {
	base := filepath.Base(path)
	return strings.TrimSuffix(base, filepath.Ext(base)) + ext
}

// PrintDependencies writes a make rule listing every file read while
// preprocessing base. The compiler's builtin headers are left out.
func (p *Preprocessor) PrintDependencies(w io.Writer, base string, opts DepOptions) error {
	bw := bufio.NewWriter(w)
	target := opts.Target
	if target == "" {
		target = QuoteMakefile(ReplaceExt(base, ".o"))
	}
	fmt.Fprintf(bw, "%s:", target)

	var deps []string
	for _, f := range p.Files() {
		if _, ok := builtinName(f.Name); ok {
			continue
		}
		deps = append(deps, f.Name)
	}
	for _, name := range deps {
		fmt.Fprintf(bw, " \\\n  %s", name)
	}
	bw.WriteString("\n\n")

	if opts.Phony {
		for _, name := range deps[min(1, len(deps)):] {
			fmt.Fprintf(bw, "%s:\n\n", QuoteMakefile(name))
		}
	}
	return bw.Flush()
}

var dumpHooks = strutil.PrettyPrintHooks{
	reflect.TypeOf((*token.Token)(nil)): func(f strutil.Formatter, v interface{}, prefix, suffix string) {
		t := v.(*token.Token)
		f.Format(prefix)
		f.Format("%s:%d: %s", t.Filename, t.LineNo, t.Kind)
		switch t.Kind {
		case token.Num:
			if t.Lit.IsFloat() {
				f.Format(" %v", t.FVal)
			} else {
				f.Format(" %d", t.Val)
			}
		case token.EOF:
		default:
			f.Format(" %q", t.Text)
		}
		if names := t.Hideset.Names(); len(names) != 0 {
			f.Format(" hideset=%v", names)
		}
		f.Format(suffix)
	},
}

// DumpTokens pretty-prints a token list for --dump-tokens.
func DumpTokens(tok *token.Token) string {
	var toks []*token.Token
	for ; tok != nil; tok = tok.Next {
		toks = append(toks, tok)
	}
	return strutil.PrettyString(toks, "", "", dumpHooks)
}
