// ctest compiles each test program with a reference C compiler and with
// chibicc, runs both binaries and compares what they print and return.
package main

import (
	"fmt"
	"log"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"time"

	"github.com/xplshn/chibicc/pkg/cli"
)

const (
	cRed     = "\x1b[91m"
	cYellow  = "\x1b[93m"
	cGreen   = "\x1b[92m"
	cCyan    = "\x1b[96m"
	cMagenta = "\x1b[95m"
	cBold    = "\x1b[1m"
	cNone    = "\x1b[0m"
)

func main() {
	log.SetFlags(0)

	app := cli.NewApp("ctest")
	app.Synopsis = "[options] [file.c ...]"
	app.Description = "Differential tester: every program is built with the reference compiler and with chibicc (assembled by the reference compiler), run with the same inputs, and the exit codes and outputs are compared."
	app.Authors = []string{"xplshn"}
	app.Since = 2025

	s := &suite{}
	var timeout, jobs, runs string
	var ignore string

	fs := app.FlagSet
	fs.String(&s.refCompiler, "ref-compiler", "cc", "Reference compiler, also used to assemble and link.", "path")
	fs.String(&s.refArgs, "ref-args", "", "Extra arguments for the reference compiler.", "args")
	fs.String(&s.targetCompiler, "target-compiler", "./chibicc", "Compiler under test.", "path")
	fs.String(&s.targetArgs, "target-args", "", "Extra arguments for the compiler under test.", "args")
	fs.String(&s.testFiles, "test-files", "tests/*.c", "Glob pattern(s) of programs to test.", "glob")
	fs.String(&s.skipFiles, "skip-files", "", "Files to skip.", "files")
	fs.String(&s.outputJSON, "output", ".test_results.json", "JSON report file.", "file")
	fs.String(&s.goldenDir, "dir", "", "Directory of golden .json files (default: next to each source).", "dir")
	fs.String(&s.generateGolden, "generate-golden", "", "Write the golden result of <file> and exit.", "file")
	fs.String(&timeout, "timeout", "5s", "Timeout for every command.", "duration")
	fs.String(&jobs, "j", "4", "Number of parallel jobs.", "n")
	fs.String(&runs, "runs", "3", "Runs per case; the fastest is reported.", "n")
	fs.String(&ignore, "ignore-lines", "", "Comma-separated substrings; matching output lines are ignored.", "list")
	fs.Bool(&s.useCache, "cached", false, "Prefer golden files over the reference compiler.")
	fs.Bool(&s.verbose, "v", false, "Show per-case timings.")

	app.Action = func(files []string) error {
		var err error
		if s.timeout, err = time.ParseDuration(timeout); err != nil {
			return fmt.Errorf("invalid -timeout: %w", err)
		}
		if s.jobs, err = strconv.Atoi(jobs); err != nil || s.jobs < 1 {
			return fmt.Errorf("invalid -j value '%s'", jobs)
		}
		if s.runs, err = strconv.Atoi(runs); err != nil || s.runs < 1 {
			s.runs = 1
		}
		if ignore != "" {
			s.ignoreLines = strings.Split(ignore, ",")
		}
		if len(files) > 0 {
			s.testFiles = strings.Join(files, " ")
		}

		tempDir, err := os.MkdirTemp("", "ctest-*")
		if err != nil {
			return fmt.Errorf("failed to create temp directory: %w", err)
		}
		defer os.RemoveAll(tempDir)
		s.tempDir = tempDir
		setupInterruptHandler(tempDir)

		if s.generateGolden != "" {
			return s.writeGolden(s.generateGolden)
		}
		if !s.runSuite() {
			return fmt.Errorf("test failures")
		}
		return nil
	}

	if err := app.Run(os.Args[1:]); err != nil {
		log.Printf("%s[ERROR]%s %v", cRed, cNone, err)
		os.Exit(1)
	}
}

func setupInterruptHandler(tempDir string) {
	c := make(chan os.Signal, 1)
	signal.Notify(c, os.Interrupt)
	go func() {
		<-c
		os.RemoveAll(tempDir)
		fmt.Printf("\n%s[INTERRUPT]%s Test run cancelled. Cleaning up...\n", cYellow, cNone)
		os.Exit(1)
	}()
}
