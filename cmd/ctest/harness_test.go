package main

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func build(binary string, runs ...TestRun) *BuildResult {
	return &BuildResult{BinaryPath: binary, Runs: runs}
}

func run(name, stdout string, code int) TestRun {
	return TestRun{Name: name, Result: Execution{Stdout: stdout, ExitCode: code}}
}

func TestCompareResults(t *testing.T) {
	tests := []struct {
		name     string
		ref      *BuildResult
		target   *BuildResult
		ignored  []string
		status   string
		wantDiff []string
	}{
		{
			name:   "identical",
			ref:    build("/tmp/ref-1", run("no_args", "ok\n", 0), run("one_arg", "hello\n", 1)),
			target: build("/tmp/target-1", run("one_arg", "hello\n", 1), run("no_args", "ok\n", 0)),
			status: "PASS",
		},
		{
			name:   "own path is normalized",
			ref:    build("/tmp/ref-1", run("no_args", "usage: /tmp/ref-1 <n>\n", 2)),
			target: build("/tmp/target-1", run("no_args", "usage: /tmp/target-1 <n>\n", 2)),
			status: "PASS",
		},
		{
			name:     "exit code",
			ref:      build("", run("no_args", "", 0)),
			target:   build("", run("no_args", "", 3)),
			status:   "FAIL",
			wantDiff: []string{"exit code mismatch", "Target: 3"},
		},
		{
			name:     "stdout",
			ref:      build("", run("no_args", "1\n2\n", 0)),
			target:   build("", run("no_args", "1\n3\n", 0)),
			status:   "FAIL",
			wantDiff: []string{"STDOUT mismatch"},
		},
		{
			name:    "ignored lines",
			ref:     build("", run("no_args", "time: 10\nok\n", 0)),
			target:  build("", run("no_args", "time: 12\nok\n", 0)),
			ignored: []string{"time:"},
			status:  "PASS",
		},
		{
			name:     "missing run",
			ref:      build("", run("no_args", "", 0), run("numeric", "", 0)),
			target:   build("", run("no_args", "", 0)),
			status:   "FAIL",
			wantDiff: []string{"'numeric' missing"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := compareResults("x.c", tt.ref, tt.target, tt.ignored)
			if got.Status != tt.status {
				t.Fatalf("status = %s, want %s\n%s", got.Status, tt.status, got.Diff)
			}
			for _, want := range tt.wantDiff {
				if !strings.Contains(got.Diff, want) {
					t.Errorf("diff lacks %q:\n%s", want, got.Diff)
				}
			}
		})
	}
}

func TestFilterOutput(t *testing.T) {
	got := filterOutput("a\nskip me\nb\n", []string{"skip", ""})
	if diff := cmp.Diff("a\nb\n", got); diff != "" {
		t.Errorf("filter mismatch (-want +got):\n%s", diff)
	}
	if got := filterOutput("a\n", nil); got != "a\n" {
		t.Errorf("no filters changed the output to %q", got)
	}
}

func TestHashAndGlob(t *testing.T) {
	dir := t.TempDir()
	for name, src := range map[string]string{
		"a.c": "int main() { return 0; }\n",
		"b.c": "int main() { return 0; }\n",
		"c.c": "int main() { return 1; }\n",
	} {
		if err := os.WriteFile(filepath.Join(dir, name), []byte(src), 0o644); err != nil {
			t.Fatal(err)
		}
	}
	if err := os.Mkdir(filepath.Join(dir, "d.c"), 0o755); err != nil {
		t.Fatal(err)
	}

	files, err := expandGlobPatterns(filepath.Join(dir, "*.c") + " " + filepath.Join(dir, "a.c"))
	if err != nil {
		t.Fatal(err)
	}
	var names []string
	for _, f := range files {
		names = append(names, filepath.Base(f))
	}
	if diff := cmp.Diff([]string{"a.c", "b.c", "c.c"}, names); diff != "" {
		t.Errorf("glob mismatch (-want +got):\n%s", diff)
	}

	ha, _ := hashFile(files[0])
	hb, _ := hashFile(files[1])
	hc, _ := hashFile(files[2])
	if ha != hb || ha == hc {
		t.Errorf("hashes a=%s b=%s c=%s: identical files must collide, different ones must not", ha, hb, hc)
	}
}

func TestGoldenPath(t *testing.T) {
	s := &suite{}
	if got := s.goldenPath("tests/arith.c"); got != filepath.Join("tests", ".arith.c.json") {
		t.Errorf("goldenPath = %s", got)
	}
	s.goldenDir = "golden"
	if got := s.goldenPath("tests/arith.c"); got != filepath.Join("golden", ".arith.c.json") {
		t.Errorf("goldenPath with -dir = %s", got)
	}
}
