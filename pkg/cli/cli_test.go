package cli

import (
	"bytes"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
)

type parsed struct {
	Out     string
	Dump    bool
	MD      bool
	M       bool
	MF      string
	Std     string
	Incl    []string
	Defines []string
	Groups  []string
	Args    []string
}

func newTestSet(p *parsed) *FlagSet {
	fs := NewFlagSet("test")
	fs.String(&p.Out, "o", "", "Output file", "file")
	fs.String(&p.MF, "MF", "", "Dependency file", "file")
	fs.String(&p.Std, "std", "c11", "Language standard", "std")
	fs.Bool(&p.Dump, "dump-tokens", false, "Dump tokens")
	fs.Bool(&p.MD, "MD", false, "Write dependencies")
	fs.Bool(&p.M, "M", false, "Print dependencies")
	fs.List(&p.Incl, "I", nil, "Include path", "dir")
	fs.Func("D", "Define", "macro", func(s string) error { p.Defines = append(p.Defines, "D"+s); return nil })
	fs.Func("U", "Undefine", "macro", func(s string) error { p.Defines = append(p.Defines, "U"+s); return nil })
	fs.AddFlagGroup("Feature Flags", "f", "feature", "", []FlagGroupEntry{{Name: "pic"}}, func(s string) error {
		p.Groups = append(p.Groups, s)
		return nil
	})
	return fs
}

func TestParse(t *testing.T) {
	tests := []struct {
		name string
		args []string
		want parsed
	}{
		{
			name: "separate and joined values",
			args: []string{"-o", "a.s", "-Iinc", "-I", "sys", "x.c"},
			want: parsed{Out: "a.s", Std: "c11", Incl: []string{"inc", "sys"}, Args: []string{"x.c"}},
		},
		{
			name: "glued output name",
			args: []string{"-oout.s", "-"},
			want: parsed{Out: "out.s", Std: "c11", Args: []string{"-"}},
		},
		{
			name: "defines keep their order",
			args: []string{"-DA=1", "-UA", "-D", "B"},
			want: parsed{Std: "c11", Defines: []string{"DA=1", "UA", "DB"}, Args: []string{}},
		},
		{
			name: "longest prefix wins",
			args: []string{"-MFdeps.d", "-MD", "-M", "y.c"},
			want: parsed{MF: "deps.d", MD: true, M: true, Std: "c11", Args: []string{"y.c"}},
		},
		{
			name: "equals and double dash",
			args: []string{"-std=gnu11", "--dump-tokens", "--", "-weird.c"},
			want: parsed{Std: "gnu11", Dump: true, Args: []string{"-weird.c"}},
		},
		{
			name: "group prefix",
			args: []string{"-fpic", "-fno-common", "-fPIC"},
			want: parsed{Std: "c11", Groups: []string{"pic", "no-common", "PIC"}, Args: []string{}},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var got parsed
			fs := newTestSet(&got)
			if err := fs.Parse(tt.args); err != nil {
				t.Fatalf("Parse: %v", err)
			}
			got.Args = fs.Args()
			if diff := cmp.Diff(tt.want, got); diff != "" {
				t.Errorf("parse mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestParseErrors(t *testing.T) {
	for _, args := range [][]string{{"-q"}, {"-o"}, {"-Mq"}} {
		var p parsed
		if err := newTestSet(&p).Parse(args); err == nil {
			t.Errorf("Parse(%q) succeeded, want an error", args)
		}
	}
}

func TestHelpPage(t *testing.T) {
	var p parsed
	var out bytes.Buffer
	app := NewApp("cc")
	app.FlagSet = newTestSet(&p)
	app.Synopsis = "[options] file..."
	app.Authors = []string{"someone"}
	app.Stdout = &out

	if err := app.Run([]string{"--help"}); err != nil {
		t.Fatal(err)
	}
	help := out.String()
	for _, want := range []string{"cc [options] file...", "-o <file>", "--dump-tokens", "-f<feature>", "-fno-<feature>", "pic"} {
		if !strings.Contains(help, want) {
			t.Errorf("help page lacks %q:\n%s", want, help)
		}
	}
	if strings.Contains(help, "-f <feature>") {
		t.Errorf("group prefix listed as an ordinary option:\n%s", help)
	}
}

func TestRunReportsUsage(t *testing.T) {
	var stderr bytes.Buffer
	app := NewApp("cc")
	app.Synopsis = "[options] file..."
	app.Stderr = &stderr
	called := false
	app.Action = func([]string) error { called = true; return nil }

	if err := app.Run([]string{"-nope"}); err == nil {
		t.Fatal("expected an error")
	}
	if called {
		t.Error("action ran after a parse error")
	}
	if !strings.Contains(stderr.String(), "unknown argument: '-nope'") {
		t.Errorf("unexpected diagnostics: %q", stderr.String())
	}
}

func TestWrapText(t *testing.T) {
	got := wrapText("one two three four", 9)
	if diff := cmp.Diff([]string{"one two", "three", "four"}, got); diff != "" {
		t.Errorf("wrap mismatch (-want +got):\n%s", diff)
	}
}
