package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"os"
	"os/exec"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/cespare/xxhash/v2"
	"github.com/google/go-cmp/cmp"
)

type Execution struct {
	Stdout         string        `json:"stdout"`
	Stderr         string        `json:"stderr"`
	ExitCode       int           `json:"exitCode"`
	Duration       time.Duration `json:"duration"`
	TimedOut       bool          `json:"timed_out"`
	UnstableOutput bool          `json:"unstable_output,omitempty"`
}

type TestRun struct {
	Name   string    `json:"name"`
	Args   []string  `json:"args,omitempty"`
	Input  string    `json:"input,omitempty"`
	Result Execution `json:"result"`
}

// BuildResult is what one toolchain did with a test program. For chibicc
// Compile is the C to assembly step and Assemble the cc step after it.
type BuildResult struct {
	BinaryPath string     `json:"binary_path,omitempty"`
	Compile    Execution  `json:"compile"`
	Assemble   *Execution `json:"assemble,omitempty"`
	Runs       []TestRun  `json:"runs"`
}

type FileTestResult struct {
	File      string       `json:"file"`
	Status    string       `json:"status"` // PASS, FAIL, SKIP, ERROR
	Message   string       `json:"message,omitempty"`
	Diff      string       `json:"diff,omitempty"`
	Reference *BuildResult `json:"reference,omitempty"`
	Target    *BuildResult `json:"target,omitempty"`
}

type TestSuiteResults map[string]*FileTestResult

const bothFailed = "Both compilers rejected the program"

// testCases are the argument vectors every program is run with. Programs
// that read standard input get the arguments as input lines instead.
var testCases = map[string][]string{
	"no_args":    {},
	"one_arg":    {"hello"},
	"numeric":    {"42"},
	"negative":   {"-7"},
	"two_args":   {"foo", "bar"},
	"empty_line": {""},
}

type suite struct {
	refCompiler    string
	refArgs        string
	targetCompiler string
	targetArgs     string
	testFiles      string
	skipFiles      string
	outputJSON     string
	goldenDir      string
	generateGolden string
	ignoreLines    []string
	timeout        time.Duration
	jobs           int
	runs           int
	useCache       bool
	verbose        bool

	tempDir string
}

// hashFile computes the xxhash of a file's content.
func hashFile(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()
	h := xxhash.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", err
	}
	return fmt.Sprintf("%x", h.Sum64()), nil
}

func (s *suite) goldenPath(sourceFile string) string {
	name := "." + filepath.Base(sourceFile) + ".json"
	if s.goldenDir != "" {
		return filepath.Join(s.goldenDir, name)
	}
	return filepath.Join(filepath.Dir(sourceFile), name)
}

// writeGolden records the reference compiler's behaviour on sourceFile so
// that later runs can do without it.
func (s *suite) writeGolden(sourceFile string) error {
	log.Printf("Generating golden file for %s...", sourceFile)
	fileHash, err := hashFile(sourceFile)
	if err != nil {
		return fmt.Errorf("could not hash %s: %w", sourceFile, err)
	}
	result, err := s.buildAndRun(s.referenceBuild(), sourceFile, "ref-"+fileHash)
	if err != nil {
		return fmt.Errorf("could not build %s with %s: %w", sourceFile, s.refCompiler, err)
	}

	data, err := json.MarshalIndent(result, "", "  ")
	if err != nil {
		return err
	}
	if s.goldenDir != "" {
		if err := os.MkdirAll(s.goldenDir, 0o755); err != nil {
			return err
		}
	}
	path := s.goldenPath(sourceFile)
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return err
	}
	log.Printf("%s[SUCCESS]%s Golden file created at %s", cGreen, cNone, path)
	return nil
}

// runSuite tests every matching file and reports whether all passed.
func (s *suite) runSuite() bool {
	_, err := exec.LookPath(s.refCompiler)
	refFound := err == nil
	if !refFound && !s.useCache {
		log.Printf("%s[WARN]%s Reference compiler '%s' not found. Will rely on golden files.", cYellow, cNone, s.refCompiler)
	}

	files, err := expandGlobPatterns(s.testFiles)
	if err != nil {
		log.Printf("%s[ERROR]%s Invalid glob pattern(s): %v", cRed, cNone, err)
		return false
	}
	if len(files) == 0 {
		log.Println("No test files found matching the pattern(s).")
		return true
	}

	skip := make(map[string]bool)
	for _, f := range strings.Fields(s.skipFiles) {
		if abs, err := filepath.Abs(f); err == nil {
			skip[abs] = true
		}
	}

	tasks := make(chan string, len(files))
	results := make(chan *FileTestResult, len(files))
	var wg sync.WaitGroup

	for i := 0; i < s.jobs; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for file := range tasks {
				results <- s.testFile(file, refFound)
			}
		}()
	}

	// Identical programs are only tested once.
	seen := make(map[string]string)
	for _, file := range files {
		if skip[file] {
			results <- &FileTestResult{File: file, Status: "SKIP", Message: "Explicitly skipped"}
			continue
		}
		fileHash, err := hashFile(file)
		if err != nil {
			results <- &FileTestResult{File: file, Status: "ERROR", Message: fmt.Sprintf("Failed to read file for hashing: %v", err)}
			continue
		}
		if orig, ok := seen[fileHash]; ok {
			results <- &FileTestResult{File: file, Status: "SKIP", Message: fmt.Sprintf("Content is identical to %s", orig)}
			continue
		}
		seen[fileHash] = file
		tasks <- file
	}
	close(tasks)

	wg.Wait()
	close(results)

	var all []*FileTestResult
	for r := range results {
		all = append(all, r)
	}
	sort.Slice(all, func(i, j int) bool { return all[i].File < all[j].File })

	s.printSummary(all)
	return !hasFailures(s.writeJSONReport(all))
}

func (s *suite) testFile(file string, refFound bool) *FileTestResult {
	fileHash, err := hashFile(file)
	if err != nil {
		return &FileTestResult{File: file, Status: "ERROR", Message: "Failed to hash source file"}
	}

	golden := s.goldenPath(file)
	_, err = os.Stat(golden)
	hasGolden := err == nil

	if (s.useCache || !refFound) && hasGolden {
		return s.testWithGolden(file, golden, fileHash)
	}
	if !refFound {
		return &FileTestResult{File: file, Status: "SKIP", Message: fmt.Sprintf("Reference compiler '%s' not found and no golden file exists", s.refCompiler)}
	}

	var ref, target *BuildResult
	var refErr, targetErr error
	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		ref, refErr = s.buildAndRun(s.referenceBuild(), file, "ref-"+fileHash)
	}()
	go func() {
		defer wg.Done()
		target, targetErr = s.buildAndRun(s.targetBuild(), file, "target-"+fileHash)
	}()
	wg.Wait()

	switch {
	case refErr != nil && targetErr != nil:
		return &FileTestResult{File: file, Status: "PASS", Message: bothFailed, Reference: ref, Target: target}
	case targetErr != nil:
		return &FileTestResult{
			File:      file,
			Status:    "FAIL",
			Message:   "chibicc failed, but the reference compiler succeeded",
			Diff:      buildLog(target),
			Reference: ref,
			Target:    target,
		}
	case refErr != nil:
		return &FileTestResult{
			File:      file,
			Status:    "FAIL",
			Message:   "chibicc succeeded, but the reference compiler failed",
			Diff:      buildLog(ref),
			Reference: ref,
			Target:    target,
		}
	}
	return compareResults(file, ref, target, s.ignoreLines)
}

func (s *suite) testWithGolden(file, golden, fileHash string) *FileTestResult {
	data, err := os.ReadFile(golden)
	if err != nil {
		return &FileTestResult{File: file, Status: "ERROR", Message: fmt.Sprintf("Could not read golden file %s: %v", golden, err)}
	}
	var ref BuildResult
	if err := json.Unmarshal(data, &ref); err != nil {
		return &FileTestResult{File: file, Status: "ERROR", Message: fmt.Sprintf("Could not parse golden file %s: %v", golden, err)}
	}

	target, err := s.buildAndRun(s.targetBuild(), file, "target-"+fileHash)
	if err != nil {
		return &FileTestResult{
			File:      file,
			Status:    "FAIL",
			Message:   "chibicc failed, but the golden file expected success",
			Diff:      buildLog(target),
			Reference: &ref,
			Target:    target,
		}
	}
	r := compareResults(file, &ref, target, s.ignoreLines)
	r.Message += " (against golden file)"
	return r
}

func buildLog(r *BuildResult) string {
	if r.Assemble != nil && r.Assemble.ExitCode != 0 {
		return "Assembler STDERR:\n" + r.Assemble.Stderr
	}
	return "Compiler STDERR:\n" + r.Compile.Stderr
}

// compareResults matches the runs of target against ref by name. Output
// is compared after dropping ignored lines and replacing each binary's own
// path, which differs between the two builds.
func compareResults(file string, ref, target *BuildResult, ignored []string) *FileTestResult {
	var diffs strings.Builder
	failed := false

	targetRuns := make(map[string]TestRun, len(target.Runs))
	for _, run := range target.Runs {
		targetRuns[run.Name] = run
	}
	refRuns := append([]TestRun(nil), ref.Runs...)
	sort.Slice(refRuns, func(i, j int) bool { return refRuns[i].Name < refRuns[j].Name })

	const placeholder = "__BINARY__"
	normalize := func(out, binary string) string {
		out = filterOutput(out, ignored)
		if binary != "" {
			out = strings.ReplaceAll(out, binary, placeholder)
			out = strings.ReplaceAll(out, filepath.Base(binary), placeholder)
		}
		return out
	}

	for _, refRun := range refRuns {
		targetRun, ok := targetRuns[refRun.Name]
		if !ok {
			failed = true
			fmt.Fprintf(&diffs, "Test run '%s' missing in target results.\n", refRun.Name)
			continue
		}
		rr, tr := refRun.Result, targetRun.Result

		if rr.UnstableOutput != tr.UnstableOutput {
			failed = true
			fmt.Fprintf(&diffs, "Run '%s' output stability mismatch:\n  - Ref:    %v\n  - Target: %v\n", refRun.Name, rr.UnstableOutput, tr.UnstableOutput)
		}
		if rr.ExitCode != tr.ExitCode {
			failed = true
			fmt.Fprintf(&diffs, "Run '%s' exit code mismatch:\n  - Ref:    %d\n  - Target: %d\n", refRun.Name, rr.ExitCode, tr.ExitCode)
		}
		if normalize(rr.Stdout, ref.BinaryPath) != normalize(tr.Stdout, target.BinaryPath) {
			failed = true
			fmt.Fprintf(&diffs, "Run '%s' STDOUT mismatch:\n%s", refRun.Name, cmp.Diff(rr.Stdout, tr.Stdout))
		}
		if normalize(rr.Stderr, ref.BinaryPath) != normalize(tr.Stderr, target.BinaryPath) {
			failed = true
			fmt.Fprintf(&diffs, "Run '%s' STDERR mismatch:\n%s", refRun.Name, cmp.Diff(rr.Stderr, tr.Stderr))
		}
	}

	if failed {
		return &FileTestResult{File: file, Status: "FAIL", Message: "Runtime output or exit code mismatch", Diff: diffs.String(), Reference: ref, Target: target}
	}
	return &FileTestResult{File: file, Status: "PASS", Message: "All test cases passed", Reference: ref, Target: target}
}

// executeCommand runs a command with a timeout and captures its output,
// optionally piping data to stdin.
func executeCommand(ctx context.Context, command, stdinData string, args ...string) Execution {
	start := time.Now()
	cmd := exec.CommandContext(ctx, command, args...)
	var stdout, stderr bytes.Buffer
	cmd.Stdout, cmd.Stderr = &stdout, &stderr
	if stdinData != "" {
		cmd.Stdin = strings.NewReader(stdinData)
	}

	err := cmd.Run()
	res := Execution{Stdout: stdout.String(), Stderr: stderr.String(), Duration: time.Since(start)}

	var exitErr *exec.ExitError
	switch {
	case errors.Is(ctx.Err(), context.DeadlineExceeded):
		res.TimedOut, res.ExitCode = true, -1
	case errors.As(err, &exitErr):
		res.ExitCode = exitErr.ExitCode()
	case err != nil:
		res.ExitCode = -2
		res.Stderr += "\nExecution error: " + err.Error()
	}
	return res
}

// buildFunc turns a C file into an executable at binary.
type buildFunc func(ctx context.Context, source, binary string) (compile Execution, assemble *Execution)

func (s *suite) referenceBuild() buildFunc {
	return func(ctx context.Context, source, binary string) (Execution, *Execution) {
		args := append(strings.Fields(s.refArgs), "-o", binary, source)
		return executeCommand(ctx, s.refCompiler, "", args...), nil
	}
}

// targetBuild compiles with chibicc to assembly and lets the reference
// compiler assemble and link the result.
func (s *suite) targetBuild() buildFunc {
	return func(ctx context.Context, source, binary string) (Execution, *Execution) {
		asm := binary + ".s"
		args := append(strings.Fields(s.targetArgs), "-o", asm, source)
		compile := executeCommand(ctx, s.targetCompiler, "", args...)
		if compile.ExitCode != 0 || compile.TimedOut {
			return compile, nil
		}
		assemble := executeCommand(ctx, s.refCompiler, "", "-o", binary, asm)
		return compile, &assemble
	}
}

func (s *suite) buildAndRun(build buildFunc, sourceFile, name string) (*BuildResult, error) {
	ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
	defer cancel()

	binary := filepath.Join(s.tempDir, name)
	compile, assemble := build(ctx, sourceFile, binary)
	result := &BuildResult{Compile: compile, Assemble: assemble}
	if compile.ExitCode != 0 || compile.TimedOut {
		return result, fmt.Errorf("compilation failed with exit code %d", compile.ExitCode)
	}
	if assemble != nil && (assemble.ExitCode != 0 || assemble.TimedOut) {
		return result, fmt.Errorf("assembling failed with exit code %d", assemble.ExitCode)
	}
	if _, err := os.Stat(binary); err != nil {
		return result, fmt.Errorf("no binary was created at %s", binary)
	}
	result.BinaryPath = binary

	// A program that is still running after a short while is taken to be
	// waiting for standard input.
	probeCtx, probeCancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	readsStdin := executeCommand(probeCtx, binary, "").TimedOut
	probeCancel()

	names := make([]string, 0, len(testCases))
	for name := range testCases {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		args, input := testCases[name], ""
		if readsStdin {
			input = strings.Join(args, "\n") + "\n"
			args = nil
		}
		run := s.runCase(binary, args, input)
		result.Runs = append(result.Runs, TestRun{Name: name, Args: args, Input: input, Result: run})
		if run.TimedOut {
			break
		}
	}
	return result, nil
}

// runCase runs a binary up to s.runs times and keeps the fastest run. Runs
// that disagree with the first mark the result unstable.
func (s *suite) runCase(binary string, args []string, input string) Execution {
	var first Execution
	var fastest time.Duration
	for i := 0; i < s.runs; i++ {
		ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
		run := executeCommand(ctx, binary, input, args...)
		cancel()

		if i == 0 {
			first, fastest = run, run.Duration
			if run.TimedOut {
				break
			}
			continue
		}
		if run.ExitCode != first.ExitCode ||
			filterOutput(run.Stdout, s.ignoreLines) != filterOutput(first.Stdout, s.ignoreLines) ||
			filterOutput(run.Stderr, s.ignoreLines) != filterOutput(first.Stderr, s.ignoreLines) {
			first.UnstableOutput = true
			break
		}
		fastest = min(fastest, run.Duration)
	}
	first.Duration = fastest
	return first
}

// filterOutput removes lines containing any of the given substrings.
func filterOutput(output string, ignored []string) string {
	if len(ignored) == 0 || output == "" {
		return output
	}
	lines := strings.Split(output, "\n")
	kept := lines[:0:0]
	for _, line := range lines {
		drop := false
		for _, sub := range ignored {
			if sub != "" && strings.Contains(line, sub) {
				drop = true
				break
			}
		}
		if !drop {
			kept = append(kept, line)
		}
	}
	return strings.Join(kept, "\n")
}

func expandGlobPatterns(patterns string) ([]string, error) {
	var files []string
	seen := make(map[string]bool)
	for _, pattern := range strings.Fields(patterns) {
		matches, err := filepath.Glob(pattern)
		if err != nil {
			return nil, fmt.Errorf("bad pattern %s: %w", pattern, err)
		}
		for _, m := range matches {
			abs, err := filepath.Abs(m)
			if err != nil || seen[abs] {
				continue
			}
			if info, err := os.Stat(abs); err == nil && info.Mode().IsRegular() {
				files = append(files, abs)
				seen[abs] = true
			}
		}
	}
	return files, nil
}
