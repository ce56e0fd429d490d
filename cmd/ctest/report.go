package main

import (
	"encoding/json"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"
	"time"
)

func formatDuration(d time.Duration) string {
	if d < time.Millisecond {
		return fmt.Sprintf("%6dµs", d.Microseconds())
	}
	return fmt.Sprintf("%6dms", d.Milliseconds())
}

func totalRuntime(r *BuildResult) time.Duration {
	var total time.Duration
	for _, run := range r.Runs {
		total += run.Result.Duration
	}
	return total
}

// compileTime includes the assembling step for chibicc builds.
func compileTime(r *BuildResult) time.Duration {
	d := r.Compile.Duration
	if r.Assemble != nil {
		d += r.Assemble.Duration
	}
	return d
}

// timingPair prints two labelled durations with the faster one highlighted.
func timingPair(label string, target, ref time.Duration, targetName, refName string, width int) string {
	targetColor, refColor := cNone, cNone
	if target < ref {
		targetColor = cMagenta
	} else if ref < target {
		refColor = cMagenta
	}
	return fmt.Sprintf("[%-*s: %s%s%s | %-*s: %s%s%s]",
		width, targetName+label, targetColor, formatDuration(target), cNone,
		width, refName+label, refColor, formatDuration(ref), cNone)
}

func (s *suite) printSummary(results []*FileTestResult) {
	var passed, failed, skipped, errored int
	var compared, ranFiles int
	var targetComp, refComp, targetRun, refRun time.Duration

	targetName, refName := filepath.Base(s.targetCompiler), filepath.Base(s.refCompiler)
	width := max(len(targetName), len(refName)) + len("_comp")

	for _, result := range results {
		fmt.Println("----------------------------------------------------------------------")
		fmt.Printf("Testing %s%s%s...\n", cCyan, result.File, cNone)

		switch result.Status {
		case "PASS":
			passed++
			fmt.Printf("  [%sPASS%s] %s\n", cGreen, cNone, result.Message)
		case "FAIL":
			failed++
			fmt.Printf("  [%sFAIL%s] %s\n", cRed, cNone, result.Message)
			fmt.Print(formatDiff(result.Diff))
		case "SKIP":
			skipped++
			fmt.Printf("  [%sSKIP%s] %s\n", cYellow, cNone, result.Message)
		case "ERROR":
			errored++
			fmt.Printf("  [%sERROR%s] %s\n", cRed, cNone, result.Message)
		}

		if result.Target == nil || result.Reference == nil {
			continue
		}
		compared++
		targetComp += compileTime(result.Target)
		refComp += compileTime(result.Reference)
		if result.Message == bothFailed {
			continue
		}
		ranFiles++
		targetRun += totalRuntime(result.Target)
		refRun += totalRuntime(result.Reference)

		if result.Status != "PASS" {
			continue
		}
		if s.verbose {
			refRuns := make(map[string]TestRun, len(result.Reference.Runs))
			for _, run := range result.Reference.Runs {
				refRuns[run.Name] = run
			}
			for _, run := range result.Target.Runs {
				if ref, ok := refRuns[run.Name]; ok {
					fmt.Printf("  [%sPASS%s] %-10s %s\n", cGreen, cNone, run.Name,
						timingPair("", run.Result.Duration, ref.Result.Duration, targetName, refName, width))
				}
			}
		}
		fmt.Printf("  %s\n", timingPair("_comp", compileTime(result.Target), compileTime(result.Reference), targetName, refName, width))
		fmt.Printf("  %s\n", timingPair("_runt", totalRuntime(result.Target), totalRuntime(result.Reference), targetName, refName, width))
	}

	fmt.Println("----------------------------------------------------------------------")
	fmt.Printf("%sTest Summary:%s %s%d Passed%s, %s%d Failed%s, %s%d Skipped%s, %s%d Errored%s, %d Total\n",
		cBold, cNone, cGreen, passed, cNone, cRed, failed, cNone, cYellow, skipped, cNone, cRed, errored, cNone, len(results))

	if compared > 0 {
		fmt.Println("---")
		printRatio("to compile", targetName, refName, targetComp/time.Duration(compared), refComp/time.Duration(compared))
	}
	if ranFiles > 0 {
		printRatio("to run", targetName, refName, targetRun/time.Duration(ranFiles), refRun/time.Duration(ranFiles))
	}
}

func printRatio(what, targetName, refName string, target, ref time.Duration) {
	switch {
	case target > ref && ref > 0:
		fmt.Printf("On average, %s%s%s was %s%.2fx%s slower %s than %s.\n", cBold, targetName, cNone, cRed, float64(target)/float64(ref), cNone, what, refName)
	case ref > target && target > 0:
		fmt.Printf("On average, %s%s%s was %s%.2fx%s faster %s than %s.\n", cBold, targetName, cNone, cGreen, float64(ref)/float64(target), cNone, what, refName)
	}
}

func formatDiff(diff string) string {
	if diff == "" {
		return ""
	}
	var sb strings.Builder
	sb.WriteString("    --- Diff ---\n")
	for _, line := range strings.Split(diff, "\n") {
		switch trimmed := strings.TrimSpace(line); {
		case strings.HasPrefix(trimmed, "-"):
			sb.WriteString(cRed)
		case strings.HasPrefix(trimmed, "+"):
			sb.WriteString(cGreen)
		}
		sb.WriteString("    " + line + cNone + "\n")
	}
	return sb.String()
}

func (s *suite) writeJSONReport(results []*FileTestResult) TestSuiteResults {
	resultsMap := make(TestSuiteResults, len(results))
	for _, r := range results {
		resultsMap[r.File] = r
	}

	data, err := json.MarshalIndent(resultsMap, "", "  ")
	if err != nil {
		log.Printf("%s[ERROR]%s Failed to marshal results to JSON: %v", cRed, cNone, err)
		return resultsMap
	}

	out := s.outputJSON
	if s.goldenDir != "" {
		if err := os.MkdirAll(s.goldenDir, 0o755); err != nil {
			log.Printf("%s[ERROR]%s Failed to create dir %s: %v", cRed, cNone, s.goldenDir, err)
		}
		out = filepath.Join(s.goldenDir, s.outputJSON)
	}
	if err := os.WriteFile(out, data, 0o644); err != nil {
		log.Printf("%s[ERROR]%s Failed to write JSON report to %s: %v", cRed, cNone, out, err)
	} else {
		fmt.Printf("Full test report saved to %s\n", out)
	}
	return resultsMap
}

func hasFailures(results TestSuiteResults) bool {
	for _, r := range results {
		if r.Status == "FAIL" || r.Status == "ERROR" {
			return true
		}
	}
	return false
}
