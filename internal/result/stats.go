package result

type BuildStats struct {
	SuccessfulInitialBuilds     int `json:"successful_initial_builds"`
	SuccessfulBuildsAfterRepair int `json:"successful_builds_after_repair"`
	FailedBuilds                int `json:"failed_builds"`
}

type RuntimeStats struct {
	AppsWithErrors    int `json:"apps_with_errors"`
	AppsWithoutErrors int `json:"apps_without_errors"`
}

type AccessibilityStats struct {
	AppsWithErrors               int `json:"apps_with_errors"`
	AppsWithoutErrorsAfterRepair int `json:"apps_without_errors_after_repair"`
	AppsWithoutErrors            int `json:"apps_without_errors"`
}

type TestStats struct {
	SuccessfulInitialTests     int `json:"successful_initial_tests"`
	SuccessfulTestsAfterRepair int `json:"successful_tests_after_repair"`
	FailedTests                int `json:"failed_tests"`
	NoTestsRun                 int `json:"no_tests_run"`
}

type ScoreBucket struct {
	Name      string  `json:"name"`
	Min       float64 `json:"min"`
	Max       float64 `json:"max"`
	AppsCount int     `json:"apps_count"`
}

type Stats struct {
	Builds        BuildStats          `json:"builds"`
	Runtime       *RuntimeStats       `json:"runtime,omitempty"`
	Accessibility *AccessibilityStats `json:"accessibility,omitempty"`
	Tests         *TestStats          `json:"tests,omitempty"`
	Buckets       []ScoreBucket       `json:"buckets"`
}

// scoreBuckets are percentage ranges, upper bound inclusive for the last one.
var scoreBuckets = []ScoreBucket{
	{Name: "Excellent", Min: 98, Max: 100},
	{Name: "Great", Min: 85, Max: 98},
	{Name: "Good", Min: 71, Max: 85},
	{Name: "Poor", Min: 0, Max: 71},
}

// CalculateStats summarizes build, runtime, accessibility and test outcomes
// across a set of results.
func CalculateStats(results []AssessmentResult) Stats {
	var s Stats
	var runtime RuntimeStats
	var a11y AccessibilityStats
	var tests TestStats
	sawServe, sawAxe, sawTests := false, false, false

	buckets := make([]ScoreBucket, len(scoreBuckets))
	copy(buckets, scoreBuckets)

	for _, r := range results {
		switch {
		case r.FinalAttempt.BuildResult.Status != BuildSuccess:
			s.Builds.FailedBuilds++
		case r.RepairAttempts == 0:
			s.Builds.SuccessfulInitialBuilds++
		default:
			s.Builds.SuccessfulBuildsAfterRepair++
		}

		if serve := r.FinalAttempt.ServeTestingResult; serve != nil {
			sawServe = true
			if serve.RuntimeErrors != "" || serve.ErrorMessage != "" {
				runtime.AppsWithErrors++
			} else {
				runtime.AppsWithoutErrors++
			}

			if serve.AxeViolations != nil || r.AxeRepairAttempts > 0 {
				sawAxe = true
			}
			switch {
			case len(serve.AxeViolations) > 0:
				a11y.AppsWithErrors++
			case r.AxeRepairAttempts > 0:
				a11y.AppsWithoutErrorsAfterRepair++
			default:
				a11y.AppsWithoutErrors++
			}
		}

		switch {
		case r.TestResult == nil:
			tests.NoTestsRun++
		case !r.TestResult.Passed:
			sawTests = true
			tests.FailedTests++
		case r.TestRepairAttempts == 0:
			sawTests = true
			tests.SuccessfulInitialTests++
		default:
			sawTests = true
			tests.SuccessfulTestsAfterRepair++
		}

		if r.Score.MaxOverallPoints > 0 {
			pct := r.Score.TotalPoints / r.Score.MaxOverallPoints * 100
			for i := range buckets {
				if pct >= buckets[i].Min && (pct < buckets[i].Max || buckets[i].Max == 100) {
					buckets[i].AppsCount++
					break
				}
			}
		}
	}

	if sawServe {
		s.Runtime = &runtime
	}
	if sawAxe {
		s.Accessibility = &a11y
	}
	if sawTests {
		s.Tests = &tests
	}
	s.Buckets = buckets
	return s
}
