package pricing_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/angular/web-codegen-scorer/internal/pricing"
	"github.com/angular/web-codegen-scorer/internal/result"
)

func abs(x float64) float64 {
	if x < 0 {
		return -x
	}
	return x
}

const table = `gemini:
  gemini-2.5-pro:
    input: 0.00125
    output: 0.01
openai:
  gpt-5:
    input: 0.00125
    output: 0.01
  gpt-5-mini:
    input: 0.00025
    output: 0.002
`

func TestLoadPricing(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "pricing.yaml")
	os.WriteFile(path, []byte(table), 0o644)

	tbl, err := pricing.Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	cost := tbl.Cost("openai", "gpt-5-mini", result.Usage{InputTokens: 4000, OutputTokens: 500, ThinkingTokens: 500})
	want := 4*0.00025 + 1*0.002
	if abs(cost-want) > 0.000001 {
		t.Errorf("got %f, want %f", cost, want)
	}
}

func TestCostAnyProvider(t *testing.T) {
	tbl, err := pricing.Parse([]byte(table))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	cost := tbl.Cost("", "gemini-2.5-pro", result.Usage{InputTokens: 1000, OutputTokens: 1000})
	if abs(cost-0.01125) > 0.000001 {
		t.Errorf("got %f, want 0.01125", cost)
	}
}

func TestCostUnknownModel(t *testing.T) {
	tbl := &pricing.Table{}
	if cost := tbl.Cost("unknown", "unknown", result.Usage{InputTokens: 1000}); cost != 0 {
		t.Errorf("expected 0 for unknown model, got %f", cost)
	}
	var none *pricing.Table
	if cost := none.Cost("", "gpt-5", result.Usage{InputTokens: 1000}); cost != 0 {
		t.Errorf("expected 0 for nil table, got %f", cost)
	}
}

func TestParseInvalid(t *testing.T) {
	if _, err := pricing.Parse([]byte("gemini: [")); err == nil {
		t.Error("expected parse error")
	}
}
