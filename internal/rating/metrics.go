package rating

import (
	"path"
	"strings"

	"github.com/angular/web-codegen-scorer/internal/result"
)

// CodeMetrics summarizes how generated source is organized.
type CodeMetrics struct {
	Score         float64
	FileCount     int
	TotalLOC      int
	MaxFileLOC    int
	MaxFileName   string
	TestFileCount int
}

var sourceExts = map[string]bool{".ts": true, ".js": true, ".tsx": true, ".jsx": true, ".html": true, ".css": true, ".scss": true}

// ComputeCodeMetrics rewards several small files over one monolith and the
// presence of tests.
func ComputeCodeMetrics(files []result.File) CodeMetrics {
	var m CodeMetrics
	for _, f := range files {
		name := path.Base(f.FilePath)
		if !sourceExts[strings.ToLower(path.Ext(name))] || strings.HasSuffix(name, ".d.ts") {
			continue
		}
		if strings.Contains(name, ".spec.") || strings.Contains(name, ".test.") {
			m.TestFileCount++
		}
		loc := countLOC(f.Code)
		m.FileCount++
		m.TotalLOC += loc
		if loc > m.MaxFileLOC {
			m.MaxFileLOC = loc
			m.MaxFileName = f.FilePath
		}
	}
	m.Score = metricsScore(m)
	return m
}

func metricsScore(m CodeMetrics) float64 {
	if m.FileCount == 0 {
		return 0
	}
	score := 0.0

	switch {
	case m.FileCount >= 3:
		score += 0.4
	case m.FileCount == 2:
		score += 0.3
	case m.FileCount == 1:
		score += 0.1
	}

	switch {
	case m.MaxFileLOC <= 200:
		score += 0.3
	case m.MaxFileLOC <= 500:
		score += 0.2
	case m.MaxFileLOC <= 800:
		score += 0.1
	}

	switch {
	case m.TestFileCount >= 3:
		score += 0.3
	case m.TestFileCount >= 1:
		score += 0.2
	}

	if score > 1.0 {
		score = 1.0
	}
	return score
}

// countLOC counts non-empty, non-comment lines.
func countLOC(code string) int {
	count := 0
	inBlockComment := false
	for _, line := range strings.Split(code, "\n") {
		trimmed := strings.TrimSpace(line)
		if trimmed == "" {
			continue
		}
		if inBlockComment {
			if strings.Contains(trimmed, "*/") {
				inBlockComment = false
			}
			continue
		}
		if strings.HasPrefix(trimmed, "/*") {
			inBlockComment = !strings.Contains(trimmed, "*/")
			continue
		}
		if strings.HasPrefix(trimmed, "//") {
			continue
		}
		count++
	}
	return count
}
