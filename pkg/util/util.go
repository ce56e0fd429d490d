package util

import (
	"fmt"
	"io"
	"os"
	"runtime"
	"strings"

	"github.com/xplshn/chibicc/pkg/config"
	"github.com/xplshn/chibicc/pkg/token"
	"golang.org/x/term"
)

// Diagnostic is a located compiler message. Errors are raised as a panic
// carrying a *Diagnostic and turned back into an error by Recover.
type Diagnostic struct {
	Filename string
	Line     int
	Column   int // 1-based byte column, 0 when unknown
	Span     int
	Message  string
	Source   string // physical source line, when known
	Indent   int    // display columns before the caret
	Warning  string // warning group for warnings, empty for errors
}

func (d *Diagnostic) Error() string {
	if d.Filename == "" {
		return d.Message
	}
	return fmt.Sprintf("%s:%d: %s", d.Filename, d.Line, d.Message)
}

// Fprint writes the diagnostic and a caret-annotated excerpt of its source line.
func (d *Diagnostic) Fprint(w io.Writer, color bool) {
	paint := func(code, s string) string {
		if !color {
			return s
		}
		return "\033[" + code + "m" + s + "\033[0m"
	}

	kind, code := "error:", "31"
	if d.Warning != "" {
		kind, code = "warning:", "33"
	}
	if d.Filename != "" {
		fmt.Fprintf(w, "%s:%d: ", d.Filename, d.Line)
	}
	fmt.Fprintf(w, "%s %s", paint(code, kind), d.Message)
	if d.Warning != "" {
		fmt.Fprintf(w, " [-W%s]", d.Warning)
	}
	fmt.Fprintln(w)

	if d.Column == 0 {
		return
	}
	fmt.Fprintf(w, "  %s\n", d.Source)
	marker := "^"
	if d.Span > 1 {
		marker += strings.Repeat("~", d.Span-1)
	}
	fmt.Fprintf(w, "  %s%s\n", strings.Repeat(" ", d.Indent), paint("32", marker))
}

// Stderr receives warnings as they are issued.
var Stderr io.Writer = os.Stderr

// ColorEnabled reports whether w is a terminal that should get ANSI colours.
func ColorEnabled(w io.Writer) bool {
	f, ok := w.(*os.File)
	return ok && term.IsTerminal(int(f.Fd()))
}

func locate(f *token.File, loc, line, span int, msg string) *Diagnostic {
	d := &Diagnostic{Message: msg, Line: line, Span: span}
	if f == nil {
		return d
	}
	d.Filename = f.DisplayName
	if d.Filename == "" {
		d.Filename = f.Name
	}
	src, start := f.Line(loc)
	d.Source = src
	d.Column = loc - start + 1
	d.Indent = DisplayWidth(f.Contents[start:loc])
	return d
}

func tokDiagnostic(tok *token.Token, msg string) *Diagnostic {
	if tok == nil {
		return &Diagnostic{Message: msg}
	}
	span := len(tok.Text)
	if span == 0 {
		span = 1
	}
	d := locate(tok.File, tok.Loc, tok.LineNo, span, msg)
	if tok.Filename != "" {
		d.Filename = tok.Filename
	}
	return d
}

// Error reports a fatal error at tok.
func Error(tok *token.Token, format string, args ...any) {
	panic(tokDiagnostic(tok, fmt.Sprintf(format, args...)))
}

// ErrorAt reports a fatal error at a byte offset of f. The tokenizer uses
// it before a token exists.
func ErrorAt(f *token.File, loc int, format string, args ...any) {
	line := f.Position(loc).Line
	panic(locate(f, loc, line, 1, fmt.Sprintf(format, args...)))
}

// Fatalf reports a fatal error that has no source location.
func Fatalf(format string, args ...any) {
	panic(&Diagnostic{Message: fmt.Sprintf(format, args...)})
}

// Unreachable reports an internal compiler error at the caller's location.
func Unreachable() {
	_, file, line, _ := runtime.Caller(1)
	Fatalf("internal error at %s:%d", file, line)
}

// Recover converts a diagnostic panic into *errp. Other panics propagate.
func Recover(errp *error) {
	if r := recover(); r != nil {
		d, ok := r.(*Diagnostic)
		if !ok {
			panic(r)
		}
		*errp = d
	}
}

// Warn prints a warning at tok if the warning group is enabled.
func Warn(cfg *config.Config, wt config.Warning, tok *token.Token, format string, args ...any) {
	if cfg == nil || !cfg.IsWarningEnabled(wt) {
		return
	}
	d := tokDiagnostic(tok, fmt.Sprintf(format, args...))
	d.Warning = cfg.Warnings[wt].Name
	d.Fprint(Stderr, ColorEnabled(Stderr))
}

// AlignTo rounds n up to the nearest multiple of align.
func AlignTo(n, align int64) int64 {
	if align <= 0 {
		return n
	}
	return (n + align - 1) / align * align
}

// AlignDown rounds n down to the nearest multiple of align.
func AlignDown(n, align int64) int64 {
	return AlignTo(n-align+1, align)
}
