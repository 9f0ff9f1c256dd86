package routing

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeYAML(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func testTable(t *testing.T) *Table {
	dir := t.TempDir()
	routes := writeYAML(t, dir, "routing.yaml", `
routes:
  "nutrition:meal-text":
    quality:
      primary: {provider: anthropic, model: claude-3-opus}
      fallbacks:
        - {provider: openai, model: gpt-4}
      defaults: {max_tokens: 1000, temperature: 0.7}
    balanced:
      primary: {provider: anthropic, model: claude-3-sonnet}
      fallbacks: []
      defaults: {max_tokens: 800, temperature: 0.5}
    cost:
      primary: {provider: anthropic, model: claude-3-haiku}
      fallbacks: []
      defaults: {max_tokens: 500, temperature: 0.3}
`)
	degraded := writeYAML(t, dir, "routing.degraded.yaml", `
routes:
  "nutrition:meal-text":
    primary: {provider: anthropic, model: claude-3-haiku}
    fallbacks: []
    defaults: {max_tokens: 400, temperature: 0.2}
`)
	tbl, err := NewTable(routes, degraded)
	require.NoError(t, err)
	return tbl
}

func TestSelectByPreference(t *testing.T) {
	tbl := testTable(t)
	route, err := tbl.Select("nutrition:meal-text", PreferenceCost)
	require.NoError(t, err)
	assert.Equal(t, "claude-3-haiku", route.Primary.Model)
}

func TestSelectUnknownRequestType(t *testing.T) {
	tbl := testTable(t)
	_, err := tbl.Select("budget:unknown-task", PreferenceQuality)
	assert.ErrorIs(t, err, ErrUnknownRequestType)
}

func TestSelectDegraded(t *testing.T) {
	tbl := testTable(t)
	route, ok := tbl.SelectDegraded("nutrition:meal-text")
	require.True(t, ok)
	assert.LessOrEqual(t, route.Defaults.MaxTokens, 600)
}

func TestNormalizeLegacyAlias(t *testing.T) {
	assert.Equal(t, "nutrition:meal-scan", NormalizeRequestType("meal-scan"))
	assert.Equal(t, "fitness:coach-chat", NormalizeRequestType("coach-chat"))
	assert.Equal(t, "budget:already-canonical", NormalizeRequestType("budget:already-canonical"))
}

func TestChainOrdersPrimaryFirst(t *testing.T) {
	route := Route{
		Primary:   ModelRef{Provider: "a", Model: "m1"},
		Fallbacks: []ModelRef{{Provider: "b", Model: "m2"}, {Provider: "c", Model: "m3"}},
	}
	chain := route.Chain()
	require.Len(t, chain, 3)
	assert.Equal(t, "m1", chain[0].Model)
	assert.Equal(t, "m3", chain[2].Model)
}
