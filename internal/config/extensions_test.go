package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agentrt/goagent/pkg/extension"
)

func TestExtensionsFile_LoadMissingIsEmpty(t *testing.T) {
	f, err := LoadExtensionsFile(filepath.Join(t.TempDir(), "missing.yaml"))
	require.NoError(t, err)
	assert.Empty(t, f.Entries)
}

func TestExtensionsFile_UpsertAndEnabled(t *testing.T) {
	f := &ExtensionsFile{}
	f.Upsert(true, extension.Config{Name: "fs", Kind: extension.KindBuiltin})
	f.Upsert(false, extension.Config{Name: "web", Kind: extension.KindStdio})

	enabled := f.Enabled()
	require.Len(t, enabled, 1)
	assert.Equal(t, "fs", enabled[0].Name)

	// Upsert again with the same normalised name replaces, not appends.
	f.Upsert(true, extension.Config{Name: "FS", Kind: extension.KindBuiltin})
	assert.Len(t, f.Entries, 2)
}

func TestExtensionsFile_RemoveByNormalizedName(t *testing.T) {
	f := &ExtensionsFile{}
	f.Upsert(true, extension.Config{Name: "My Tool", Kind: extension.KindBuiltin})
	assert.True(t, f.Remove("my-tool"))
	assert.Empty(t, f.Entries)
}

func TestExtensionsFile_SaveAndReload(t *testing.T) {
	f := &ExtensionsFile{}
	f.Upsert(true, extension.Config{Name: "fs", Kind: extension.KindBuiltin})

	path := filepath.Join(t.TempDir(), "extensions.yaml")
	require.NoError(t, f.Save(path))

	_, err := os.Stat(path)
	require.NoError(t, err)

	reloaded, err := LoadExtensionsFile(path)
	require.NoError(t, err)
	require.Len(t, reloaded.Entries, 1)
	assert.Equal(t, "fs", reloaded.Entries[0].Config.Name)
}
