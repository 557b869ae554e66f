package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agentrt/goagent/pkg/permission"
)

func TestPermissionsFile_LoadMissingIsEmpty(t *testing.T) {
	f, err := LoadPermissionsFile(filepath.Join(t.TempDir(), "missing.yaml"))
	require.NoError(t, err)
	_, ok := f.Get("fs__delete_file")
	assert.False(t, ok)
}

func TestPermissionsFile_SetPersistsAndGetReturnsIt(t *testing.T) {
	path := filepath.Join(t.TempDir(), "permissions.yaml")
	f, err := LoadPermissionsFile(path)
	require.NoError(t, err)

	require.NoError(t, f.Set("fs__delete_file", permission.LevelNeverAllow))

	level, ok := f.Get("fs__delete_file")
	require.True(t, ok)
	assert.Equal(t, permission.LevelNeverAllow, level)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "never_allow")

	reloaded, err := LoadPermissionsFile(path)
	require.NoError(t, err)
	level, ok = reloaded.Get("fs__delete_file")
	require.True(t, ok)
	assert.Equal(t, permission.LevelNeverAllow, level)
}
