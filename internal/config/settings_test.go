package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoadSettings_AppliesDefaults(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "settings.yaml", "provider: anthropic\n")

	s, err := LoadSettings(path)
	require.NoError(t, err)
	assert.Equal(t, "anthropic", s.Provider)
	assert.Equal(t, "auto", s.Mode)
	assert.Equal(t, 1000, s.MaxTurns)
	assert.Equal(t, 0.80, s.AutoCompactThreshold)
	assert.Equal(t, 50000, s.TodoMaxChars)
	assert.Equal(t, SchedulerLegacy, s.SchedulerType)
}

func TestLoadSettings_MissingProviderFails(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "settings.yaml", "mode: chat\n")

	_, err := LoadSettings(path)
	assert.Error(t, err)
}

func TestLoadSettings_MissingFileStillAppliesEnvAndDefaults(t *testing.T) {
	t.Setenv("GOOSE_PROVIDER", "openai")
	path := filepath.Join(t.TempDir(), "nonexistent.yaml")

	s, err := LoadSettings(path)
	require.NoError(t, err)
	assert.Equal(t, "openai", s.Provider)
}

func TestLoadSettings_EnvOverridesFile(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "settings.yaml", "provider: anthropic\nmax_turns: 5\n")
	t.Setenv("GOOSE_MAX_TURNS", "42")

	s, err := LoadSettings(path)
	require.NoError(t, err)
	assert.Equal(t, 42, s.MaxTurns)
}

func TestLoadSettings_ExpandsEnvVarsWithDefault(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "settings.yaml", "provider: ${TEST_PROVIDER:-anthropic}\n")

	s, err := LoadSettings(path)
	require.NoError(t, err)
	assert.Equal(t, "anthropic", s.Provider)
}

func TestNormalizeName(t *testing.T) {
	assert.Equal(t, "my_tool_v2", normalizeName("My-Tool v2"))
}
