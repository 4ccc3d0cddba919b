package result

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/klauspost/compress/zstd"
)

// ReportFile is the compressed run report inside a run directory.
const ReportFile = "report.json.zst"

var (
	zstdEncoder *zstd.Encoder
	zstdDecoder *zstd.Decoder
)

func init() {
	var err error
	zstdEncoder, err = zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault))
	if err != nil {
		panic("result: zstd encoder initialization failed: " + err.Error())
	}
	zstdDecoder, err = zstd.NewReader(nil)
	if err != nil {
		panic("result: zstd decoder initialization failed: " + err.Error())
	}
}

// CreateRunDir creates <base>/runs/<timestamp> and points <base>/latest at it.
func CreateRunDir(baseDir string) (string, error) {
	stamp := time.Now().UTC().Format("2006-01-02T15-04-05.000")
	runDir, err := filepath.Abs(filepath.Join(baseDir, "runs", stamp))
	if err != nil {
		return "", fmt.Errorf("resolving run dir: %w", err)
	}
	if err := os.MkdirAll(runDir, 0o755); err != nil {
		return "", fmt.Errorf("creating run dir: %w", err)
	}
	latest := filepath.Join(baseDir, "latest")
	os.Remove(latest)
	if err := os.Symlink(runDir, latest); err != nil {
		return "", fmt.Errorf("creating latest symlink: %w", err)
	}
	return runDir, nil
}

// AppsDir holds one project directory per prompt when generated apps are
// kept for inspection.
func AppsDir(runDir string) string {
	return filepath.Join(runDir, "apps")
}

func WriteRun(runDir string, run *RunInfo) error {
	data, err := json.Marshal(run)
	if err != nil {
		return fmt.Errorf("marshaling run: %w", err)
	}
	compressed := zstdEncoder.EncodeAll(data, nil)
	if err := os.WriteFile(filepath.Join(runDir, ReportFile), compressed, 0o644); err != nil {
		return fmt.Errorf("writing report: %w", err)
	}
	return nil
}

func ReadRun(path string) (*RunInfo, error) {
	compressed, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading report: %w", err)
	}
	data, err := zstdDecoder.DecodeAll(compressed, nil)
	if err != nil {
		return nil, fmt.Errorf("decompressing report %s: %w", path, err)
	}
	var run RunInfo
	if err := json.Unmarshal(data, &run); err != nil {
		return nil, fmt.Errorf("parsing report %s: %w", path, err)
	}
	return &run, nil
}

// LoadRuns reads every stored run under <base>/runs, oldest first.
func LoadRuns(baseDir string) ([]*RunInfo, error) {
	pattern := filepath.Join(baseDir, "runs", "*", ReportFile)
	paths, err := filepath.Glob(pattern)
	if err != nil {
		return nil, fmt.Errorf("listing runs: %w", err)
	}
	sort.Strings(paths)

	runs := make([]*RunInfo, 0, len(paths))
	for _, p := range paths {
		run, err := ReadRun(p)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				continue
			}
			return nil, err
		}
		runs = append(runs, run)
	}
	return runs, nil
}
