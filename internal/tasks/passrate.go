package tasks

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

var (
	passedRe = regexp.MustCompile(`(\d+)\s+passed`)
	failedRe = regexp.MustCompile(`(\d+)\s+failed`)
)

// PassRate interprets test output and exit code as the fraction of passing tests.
func PassRate(output string, exitCode int) float64 {
	if exitCode == 0 {
		return 1.0
	}
	if strings.Contains(output, "<testsuite") {
		return parseJUnitXML(output)
	}

	// Summaries come last, after per-file counts.
	rate := 0.0
	for _, line := range strings.Split(output, "\n") {
		if r, ok := parseCounts(strings.TrimSpace(line)); ok {
			rate = r
		}
	}
	return rate
}

// parseCounts understands lines mentioning "N passed" and "M failed" in any
// order (pytest, jest, vitest) and the karma/jasmine style
// "Executed N of T (M FAILED)".
func parseCounts(line string) (float64, bool) {
	var failed, total int
	if m := passedRe.FindStringSubmatch(line); m != nil {
		passed, _ := strconv.Atoi(m[1])
		if f := failedRe.FindStringSubmatch(line); f != nil {
			failed, _ = strconv.Atoi(f[1])
		}
		if total = passed + failed; total > 0 {
			return float64(passed) / float64(total), true
		}
	}
	if idx := strings.Index(line, "Executed "); idx >= 0 {
		var executed int
		if n, _ := fmt.Sscanf(line[idx:], "Executed %d of %d (%d FAILED)", &executed, &total, &failed); n == 3 && executed > 0 {
			return float64(executed-failed) / float64(executed), true
		}
	}
	return 0, false
}

func parseJUnitXML(output string) float64 {
	var tests, failures, errors int
	for _, line := range strings.Split(output, "\n") {
		if !strings.Contains(line, "<testsuite") {
			continue
		}
		fmt.Sscanf(extractAttr(line, "tests"), "%d", &tests)
		fmt.Sscanf(extractAttr(line, "failures"), "%d", &failures)
		fmt.Sscanf(extractAttr(line, "errors"), "%d", &errors)
		if tests > 0 {
			passed := tests - failures - errors
			if passed < 0 {
				passed = 0
			}
			return float64(passed) / float64(tests)
		}
	}
	return 0.0
}

func extractAttr(line, attr string) string {
	key := attr + `="`
	idx := strings.Index(line, key)
	if idx < 0 {
		return ""
	}
	start := idx + len(key)
	end := strings.Index(line[start:], `"`)
	if end < 0 {
		return ""
	}
	return line[start : start+end]
}
