// Package pricing implements the static per-(provider, model) cost table (C1).
package pricing

import (
	"os"
	"path/filepath"
	"sync"

	"gopkg.in/yaml.v3"

	"github.com/aegis-run/governor/internal/metrics"
)

// Rate is the cost per 1000 tokens for one side of a call.
type Rate struct {
	InputPer1K  float64 `yaml:"input_per_1k"`
	OutputPer1K float64 `yaml:"output_per_1k"`
}

type document struct {
	Defaults struct {
		InputPer1K  float64 `yaml:"input_per_1k"`
		OutputPer1K float64 `yaml:"output_per_1k"`
	} `yaml:"defaults"`
	// Providers maps provider -> model -> Rate
	Providers map[string]map[string]Rate `yaml:"providers"`
}

// Table is a pure, concurrent-safe (provider, model) -> rate lookup.
//
// Lookups never fail: an unknown (provider, model) pair returns the
// configured default rate and increments a fallback counter. Pricing
// changes require a config reload, never a code change.
type Table struct {
	mu       sync.RWMutex
	doc      document
	path     string
}

var defaultPaths = []string{
	os.Getenv("GOVERNOR_PRICING_PATH"),
	"/app/config/pricing.yaml",
	"./config/pricing.yaml",
}

// findUpConfig searches parent directories for config/pricing.yaml starting at CWD.
func findUpConfig() (string, bool) {
	wd, err := os.Getwd()
	if err != nil {
		return "", false
	}
	for i := 0; i < 6; i++ {
		cand := filepath.Join(wd, "config", "pricing.yaml")
		if _, err := os.Stat(cand); err == nil {
			return cand, true
		}
		wd = filepath.Dir(wd)
	}
	return "", false
}

// NewTable loads a pricing table from the given path, or from the default
// search locations if path is empty.
func NewTable(path string) (*Table, error) {
	t := &Table{}
	if path == "" {
		for _, p := range defaultPaths {
			if p == "" {
				continue
			}
			if _, err := os.Stat(p); err == nil {
				path = p
				break
			}
		}
	}
	if path == "" {
		if p, ok := findUpConfig(); ok {
			path = p
		}
	}
	t.path = path
	if err := t.Reload(); err != nil {
		return nil, err
	}
	return t, nil
}

// Reload re-reads the backing YAML document. Safe to call concurrently with
// lookups; a failed reload keeps the previously loaded document in place.
func (t *Table) Reload() error {
	if t.path == "" {
		t.mu.Lock()
		t.doc = document{}
		t.mu.Unlock()
		return nil
	}
	data, err := os.ReadFile(t.path)
	if err != nil {
		return err
	}
	var doc document
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return err
	}
	t.mu.Lock()
	t.doc = doc
	t.mu.Unlock()
	return nil
}

func (t *Table) lookup(provider, model string) (Rate, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	models, ok := t.doc.Providers[provider]
	if !ok {
		return Rate{}, false
	}
	rate, ok := models[model]
	return rate, ok
}

func (t *Table) defaults() Rate {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return Rate{InputPer1K: t.doc.Defaults.InputPer1K, OutputPer1K: t.doc.Defaults.OutputPer1K}
}

// RateFor returns the configured rate for (provider, model), falling back to
// the table's default rate (never an error) when the pair is unknown.
func (t *Table) RateFor(provider, model string) Rate {
	if rate, ok := t.lookup(provider, model); ok {
		return rate
	}
	reason := "unknown_model"
	if model == "" {
		reason = "missing_model"
	}
	metrics.PricingFallbacks.WithLabelValues(reason).Inc()
	return t.defaults()
}

// CostEstimate is C6's pure cost function: (in/1000)*inRate + (out/1000)*outRate.
func (t *Table) CostEstimate(provider, model string, inputTokens, outputTokens int) float64 {
	if inputTokens < 0 {
		inputTokens = 0
	}
	if outputTokens < 0 {
		outputTokens = 0
	}
	rate := t.RateFor(provider, model)
	return (float64(inputTokens)/1000.0)*rate.InputPer1K + (float64(outputTokens)/1000.0)*rate.OutputPer1K
}
