package catalog

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefault(t *testing.T) {
	c := Default()
	require.Greater(t, c.Len(), 0)

	m, err := c.Lookup("gemini-2.0-flash")
	require.NoError(t, err)
	assert.Equal(t, "openrouter", m.Provider)
	assert.Equal(t, "google/gemini-2.0-flash-001", m.ResolveAs)
	assert.Equal(t, "gemini-2.0-flash", m.Name)
}

func TestLookup_NotFound(t *testing.T) {
	_, err := Default().Lookup("does-not-exist")
	assert.True(t, errors.Is(err, ErrModelNotFound))
}

func TestLoad_Formats(t *testing.T) {
	dir := t.TempDir()
	files := map[string]string{
		"models.yaml": `
models:
  m1:
    provider: openai
    resolve_as: gpt-x
    max_output_tokens: 100
    price_points_input: 1.5
    price_points_output: 3
`,
		"models.toml": `
[models.m1]
provider = "openai"
resolve_as = "gpt-x"
max_output_tokens = 100
price_points_input = 1.5
price_points_output = 3.0
`,
		"models.json": `{"models": {"m1": {"provider": "openai", "resolve_as": "gpt-x", "max_output_tokens": 100, "price_points_input": 1.5, "price_points_output": 3}}}`,
		"list.json":   `[{"m1": {"provider": "openai", "resolve_as": "gpt-x", "max_output_tokens": 100, "price_points_input": 1.5, "price_points_output": 3}}]`,
	}

	for name, content := range files {
		t.Run(name, func(t *testing.T) {
			path := filepath.Join(dir, name)
			require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

			c, err := Load(path)
			require.NoError(t, err)

			m, err := c.Lookup("m1")
			require.NoError(t, err)
			assert.Equal(t, "openai", m.Provider)
			assert.Equal(t, "gpt-x", m.ResolveAs)
			assert.Equal(t, 100, m.MaxOutputTokens)
			assert.InDelta(t, 1.5, m.PriceInput, 1e-9)
			assert.InDelta(t, 3.0, m.PriceOutput, 1e-9)
		})
	}
}

func TestLoad_Errors(t *testing.T) {
	dir := t.TempDir()

	_, err := Load(filepath.Join(dir, "missing.yaml"))
	assert.Error(t, err)

	bad := filepath.Join(dir, "models.ini")
	require.NoError(t, os.WriteFile(bad, []byte("x"), 0o644))
	_, err = Load(bad)
	assert.Error(t, err)

	noProvider := filepath.Join(dir, "np.yaml")
	require.NoError(t, os.WriteFile(noProvider, []byte("models:\n  m1:\n    resolve_as: x\n"), 0o644))
	_, err = Load(noProvider)
	assert.Error(t, err)
}

func TestLoad_EmptyPathIsDefault(t *testing.T) {
	c, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, Default().Len(), c.Len())
}

func TestNew_ResolveAsDefaultsToName(t *testing.T) {
	c, err := New(map[string]Model{"plain": {Provider: "mock"}})
	require.NoError(t, err)
	m, err := c.Lookup("plain")
	require.NoError(t, err)
	assert.Equal(t, "plain", m.ResolveAs)
}

func TestClampMaxTokens(t *testing.T) {
	m := Model{MaxOutputTokens: 8192}
	assert.Equal(t, 8192, m.ClampMaxTokens(0))
	assert.Equal(t, 8192, m.ClampMaxTokens(100000))
	assert.Equal(t, 500, m.ClampMaxTokens(500))

	unbounded := Model{}
	assert.Equal(t, 500, unbounded.ClampMaxTokens(500))
}

func TestAvailable(t *testing.T) {
	c, err := New(map[string]Model{
		"a": {Provider: "openrouter"},
		"b": {Provider: "openai"},
		"c": {Provider: "openrouter"},
	})
	require.NoError(t, err)

	avail := c.Available(func(p string) bool { return p == "openrouter" }, nil)
	names := []string{}
	for _, m := range avail.Models() {
		names = append(names, m.Name)
	}
	assert.Equal(t, []string{"a", "c"}, names)
}
