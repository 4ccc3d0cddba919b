// Package pricing estimates the cost of a run from token usage.
package pricing

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/angular/web-codegen-scorer/internal/result"
)

// ModelPricing is in USD per 1K tokens.
type ModelPricing struct {
	Input  float64 `yaml:"input"`
	Output float64 `yaml:"output"`
}

// Table maps provider to model to prices.
type Table struct {
	Providers map[string]map[string]ModelPricing
}

func Load(path string) (*Table, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading pricing file: %w", err)
	}
	return Parse(data)
}

func Parse(data []byte) (*Table, error) {
	var providers map[string]map[string]ModelPricing
	if err := yaml.Unmarshal(data, &providers); err != nil {
		return nil, fmt.Errorf("parsing pricing file: %w", err)
	}
	return &Table{Providers: providers}, nil
}

// Lookup finds a model's prices. An empty provider searches every provider.
func (t *Table) Lookup(provider, model string) (ModelPricing, bool) {
	if t == nil || t.Providers == nil {
		return ModelPricing{}, false
	}
	if provider != "" {
		p, ok := t.Providers[provider][model]
		return p, ok
	}
	for _, models := range t.Providers {
		if p, ok := models[model]; ok {
			return p, true
		}
	}
	return ModelPricing{}, false
}

// Cost estimates the price of usage. Thinking tokens are billed as output.
// Unknown models cost 0.
func (t *Table) Cost(provider, model string, u result.Usage) float64 {
	p, ok := t.Lookup(provider, model)
	if !ok {
		return 0
	}
	output := u.OutputTokens + u.ThinkingTokens
	return (float64(u.InputTokens)/1000.0)*p.Input + (float64(output)/1000.0)*p.Output
}
