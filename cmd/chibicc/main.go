package main

import (
	"errors"
	"fmt"
	"io"
	"os"
	"reflect"
	"runtime"
	"strings"

	"github.com/sanity-io/litter"
	"github.com/xplshn/chibicc/pkg/ast"
	"github.com/xplshn/chibicc/pkg/cli"
	"github.com/xplshn/chibicc/pkg/codegen"
	"github.com/xplshn/chibicc/pkg/config"
	"github.com/xplshn/chibicc/pkg/parser"
	"github.com/xplshn/chibicc/pkg/preprocessor"
	"github.com/xplshn/chibicc/pkg/token"
	"github.com/xplshn/chibicc/pkg/util"
)

type options struct {
	outFile    string
	target     string
	depFile    string
	depTargets []string
	forced     []string
	macroOps   []func(*preprocessor.Preprocessor)

	assemble   bool
	preprocess bool
	depsOnly   bool
	depsToo    bool
	depsPhony  bool
	dumpTokens bool
	dumpAST    bool
	verbose    bool
	noStdInc   bool
}

func main() {
	app := cli.NewApp("chibicc")
	app.Synopsis = "[options] <file.c> ..."
	app.Description = "A small C11 compiler that turns each C source file into x86-64 System V assembly. Assembling and linking are left to the system toolchain."
	app.Authors = []string{"xplshn"}
	app.Repository = "<https://github.com/xplshn/chibicc>"
	app.Since = 2025

	var opts options
	cfg := config.NewConfig()

	fs := app.FlagSet
	fs.String(&opts.outFile, "o", "", "Place the output into <file>. '-' is standard output.", "file")
	fs.String(&opts.target, "target", "", "Set the target ABI. Defaults to the host.", "target")
	fs.Func("std", "Specify the language standard (c11 by default).", "std", cfg.ApplyStd)
	fs.Bool(&opts.assemble, "S", true, "Compile to assembly (the only output format).")
	fs.Bool(&opts.preprocess, "E", false, "Preprocess only and print the result.")
	fs.Bool(&opts.depsOnly, "M", false, "Print a make rule for the input's dependencies and stop.")
	fs.Bool(&opts.depsToo, "MD", false, "Write a make rule to <file>.d while compiling.")
	fs.Bool(&opts.depsPhony, "MP", false, "Add a phony target for every header.")
	fs.String(&opts.depFile, "MF", "", "Write the dependency rule to <file>.", "file")
	fs.Func("MT", "Use <target> as the make rule target.", "target", func(s string) error {
		opts.depTargets = append(opts.depTargets, s)
		return nil
	})
	fs.Func("MQ", "Like -MT, quoting make's special characters.", "target", func(s string) error {
		opts.depTargets = append(opts.depTargets, preprocessor.QuoteMakefile(s))
		return nil
	})
	fs.Func("I", "Add <dir> to the include path.", "dir", func(s string) error {
		cfg.IncludePaths = append(cfg.IncludePaths, s)
		return nil
	})
	fs.Func("idirafter", "Add <dir> to the include path after the system directories.", "dir", func(s string) error {
		cfg.IdirAfter = append(cfg.IdirAfter, s)
		return nil
	})
	fs.Func("D", "Define <macro>, as NAME or NAME=VALUE.", "macro", func(s string) error {
		name, body, ok := strings.Cut(s, "=")
		if !ok {
			body = "1"
		}
		opts.macroOps = append(opts.macroOps, func(pp *preprocessor.Preprocessor) { pp.Define(name, body) })
		return nil
	})
	fs.Func("U", "Undefine <macro>.", "macro", func(s string) error {
		opts.macroOps = append(opts.macroOps, func(pp *preprocessor.Preprocessor) { pp.Undef(s) })
		return nil
	})
	fs.List(&opts.forced, "include", nil, "Process <file> as if it were included at the top of the input.", "file")
	fs.Bool(&opts.dumpTokens, "dump-tokens", false, "Print the preprocessed tokens and stop.")
	fs.Bool(&opts.dumpAST, "dump-ast", false, "Print the parsed program and stop.")
	fs.Bool(&opts.verbose, "v", false, "Report each compilation stage on stderr.")
	fs.Bool(&opts.noStdInc, "nostdinc", false, "Do not search the system include directories.")

	cfg.SetupFlagGroups(fs)

	app.Action = func(inputs []string) error {
		err := run(cfg, &opts, inputs)
		if err != nil {
			report(err)
		}
		return err
	}

	if err := app.Run(os.Args[1:]); err != nil {
		os.Exit(1)
	}
}

func run(cfg *config.Config, opts *options, inputs []string) error {
	cfg.Verbose, cfg.Log = opts.verbose, os.Stderr
	if opts.noStdInc {
		cfg.SystemIncludePaths = nil
	}

	if err := cfg.SetTarget(runtime.GOOS, runtime.GOARCH, opts.target); err != nil {
		return err
	}

	if len(inputs) == 0 {
		return errors.New("no input files")
	}
	if len(inputs) > 1 && opts.outFile != "" {
		return errors.New("cannot specify '-o' with multiple files")
	}

	for _, input := range inputs {
		if err := compile(cfg, opts, input); err != nil {
			return err
		}
	}
	return nil
}

func compile(cfg *config.Config, opts *options, input string) error {
	pp := preprocessor.New(cfg)
	pp.BaseFile = input
	for _, op := range opts.macroOps {
		op(pp)
	}

	cfg.Infof("preprocessing %s", input)
	tok, err := pp.TokenizeFile(input)
	if err != nil {
		return err
	}
	if tok, err = pp.ForceInclude(tok, opts.forced); err != nil {
		return err
	}
	if tok, err = pp.Run(tok); err != nil {
		return err
	}

	if opts.depsOnly || opts.depsToo {
		if err := writeDependencies(pp, opts, input); err != nil {
			return err
		}
		if opts.depsOnly {
			return nil
		}
	}

	if opts.dumpTokens {
		_, err := fmt.Println(preprocessor.DumpTokens(tok))
		return err
	}
	if opts.preprocess {
		return writeOutput(opts.outFile, func(w io.Writer) error { return preprocessor.PrintTokens(w, tok) })
	}

	cfg.Infof("parsing %s", input)
	prog, err := parser.NewParser(tok, cfg).Parse()
	if err != nil {
		return err
	}
	prog.Files = pp.Files()

	if opts.dumpAST {
		_, err := fmt.Println(dumpProgram(prog))
		return err
	}

	backend, err := codegen.NewBackend(cfg)
	if err != nil {
		return err
	}
	cfg.Infof("generating %s code for %s", cfg.Target, input)
	buf, err := backend.Generate(prog, cfg)
	if err != nil {
		return err
	}

	out := opts.outFile
	if out == "" {
		out = preprocessor.ReplaceExt(input, ".s")
	}
	cfg.Infof("writing %s", out)
	return writeOutput(out, func(w io.Writer) error {
		_, err := buf.WriteTo(w)
		return err
	})
}

// writeDependencies honours -M, -MD and friends. With -M the rule goes to
// the -MF file or standard output; -MD defaults to the output name with a
// .d extension.
func writeDependencies(pp *preprocessor.Preprocessor, opts *options, input string) error {
	path := opts.depFile
	if path == "" && opts.depsToo && !opts.depsOnly {
		base := input
		if opts.outFile != "" && opts.outFile != "-" {
			base = opts.outFile
		}
		path = preprocessor.ReplaceExt(base, ".d")
	}
	depOpts := preprocessor.DepOptions{
		Target: strings.Join(opts.depTargets, " "),
		Phony:  opts.depsPhony,
	}
	return writeOutput(path, func(w io.Writer) error { return pp.PrintDependencies(w, input, depOpts) })
}

func writeOutput(path string, write func(io.Writer) error) error {
	if path == "" || path == "-" {
		return write(os.Stdout)
	}
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("cannot open output file: %s: %w", path, err)
	}
	if err := write(f); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

var (
	tokenPtr = reflect.TypeOf((*token.Token)(nil))
	filePtr  = reflect.TypeOf((*token.File)(nil))
	typePtr  = reflect.TypeOf((*ast.Type)(nil))
)

// dumpProgram renders the program for --dump-ast. Token links are left out
// since every token reaches the rest of the file through Next.
func dumpProgram(prog *ast.Program) string {
	opts := litter.Options{
		HidePrivateFields: true,
		HideZeroValues:    true,
		FieldFilter: func(f reflect.StructField, _ reflect.Value) bool {
			if f.Type == tokenPtr || f.Type == filePtr {
				return false
			}
			return !(f.Name == "Origin" && f.Type == typePtr)
		},
	}
	return opts.Sdump(prog.Globals)
}

func report(err error) {
	var d *util.Diagnostic
	if errors.As(err, &d) {
		d.Fprint(os.Stderr, util.ColorEnabled(os.Stderr))
		return
	}
	fmt.Fprintf(os.Stderr, "chibicc: error: %v\n", err)
}
