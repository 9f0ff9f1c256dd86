package pricing

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeTable(t *testing.T, dir string, yaml string) string {
	t.Helper()
	path := filepath.Join(dir, "pricing.yaml")
	require.NoError(t, os.WriteFile(path, []byte(yaml), 0o644))
	return path
}

func TestRateForKnownModel(t *testing.T) {
	dir := t.TempDir()
	path := writeTable(t, dir, `
defaults:
  input_per_1k: 0.001
  output_per_1k: 0.002
providers:
  anthropic:
    claude-3-haiku:
      input_per_1k: 0.00025
      output_per_1k: 0.00125
`)
	tbl, err := NewTable(path)
	require.NoError(t, err)

	rate := tbl.RateFor("anthropic", "claude-3-haiku")
	assert.Equal(t, 0.00025, rate.InputPer1K)
	assert.Equal(t, 0.00125, rate.OutputPer1K)
}

func TestRateForUnknownModelFallsBackToDefault(t *testing.T) {
	dir := t.TempDir()
	path := writeTable(t, dir, `
defaults:
  input_per_1k: 0.001
  output_per_1k: 0.002
providers:
  anthropic:
    claude-3-haiku:
      input_per_1k: 0.00025
      output_per_1k: 0.00125
`)
	tbl, err := NewTable(path)
	require.NoError(t, err)

	rate := tbl.RateFor("openai", "gpt-unreleased")
	assert.Equal(t, 0.001, rate.InputPer1K)
	assert.Equal(t, 0.002, rate.OutputPer1K)
}

func TestCostEstimate(t *testing.T) {
	dir := t.TempDir()
	path := writeTable(t, dir, `
defaults:
  input_per_1k: 0
  output_per_1k: 0
providers:
  anthropic:
    claude-3-haiku:
      input_per_1k: 0.001
      output_per_1k: 0.002
`)
	tbl, err := NewTable(path)
	require.NoError(t, err)

	cost := tbl.CostEstimate("anthropic", "claude-3-haiku", 1000, 500)
	assert.InDelta(t, 0.001+0.001, cost, 1e-9)
}

func TestCostEstimateNegativeTokensTreatedAsZero(t *testing.T) {
	tbl := &Table{}
	cost := tbl.CostEstimate("anthropic", "claude-3-haiku", -5, -5)
	assert.Equal(t, 0.0, cost)
}

func TestReloadPicksUpChanges(t *testing.T) {
	dir := t.TempDir()
	path := writeTable(t, dir, `
defaults:
  input_per_1k: 0.001
  output_per_1k: 0.002
providers: {}
`)
	tbl, err := NewTable(path)
	require.NoError(t, err)
	assert.Equal(t, 0.001, tbl.RateFor("x", "y").InputPer1K)

	writeTable(t, dir, `
defaults:
  input_per_1k: 0.009
  output_per_1k: 0.009
providers: {}
`)
	require.NoError(t, tbl.Reload())
	assert.Equal(t, 0.009, tbl.RateFor("x", "y").InputPer1K)
}
