package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/agentrt/goagent/pkg/extension"
)

// ExtensionEntry is one row of the extensions file (spec.md §6.3: "an
// ordered list of entries {enabled, config: ExtensionConfig}").
type ExtensionEntry struct {
	Enabled bool             `yaml:"enabled"`
	Config  extension.Config `yaml:"config"`
}

// ExtensionsFile is the persisted, ordered extensions list, keyed by
// each entry's normalised name for lookup.
type ExtensionsFile struct {
	Entries []ExtensionEntry
}

// LoadExtensionsFile reads an extensions file from path. A missing file
// yields an empty ExtensionsFile, not an error.
func LoadExtensionsFile(path string) (*ExtensionsFile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return &ExtensionsFile{}, nil
		}
		return nil, fmt.Errorf("config: read extensions file %s: %w", path, err)
	}

	var entries []ExtensionEntry
	if err := yaml.Unmarshal(data, &entries); err != nil {
		return nil, fmt.Errorf("config: parse extensions file %s: %w", path, err)
	}
	return &ExtensionsFile{Entries: entries}, nil
}

// Save writes f back to path as YAML.
func (f *ExtensionsFile) Save(path string) error {
	data, err := yaml.Marshal(f.Entries)
	if err != nil {
		return fmt.Errorf("config: marshal extensions file: %w", err)
	}
	return os.WriteFile(path, data, 0o644)
}

// Enabled returns the Config of every entry with Enabled set, in file
// order — the set an extension manager should register at startup.
func (f *ExtensionsFile) Enabled() []extension.Config {
	var out []extension.Config
	for _, e := range f.Entries {
		if e.Enabled {
			out = append(out, e.Config)
		}
	}
	return out
}

// Upsert adds or replaces the entry for cfg.Name (matched by normalised
// name), preserving its position if it already existed.
func (f *ExtensionsFile) Upsert(enabled bool, cfg extension.Config) {
	key := normalizeName(cfg.Name)
	for i, e := range f.Entries {
		if normalizeName(e.Config.Name) == key {
			f.Entries[i] = ExtensionEntry{Enabled: enabled, Config: cfg}
			return
		}
	}
	f.Entries = append(f.Entries, ExtensionEntry{Enabled: enabled, Config: cfg})
}

// Remove deletes the entry named name (normalised), reporting whether
// anything was removed.
func (f *ExtensionsFile) Remove(name string) bool {
	key := normalizeName(name)
	for i, e := range f.Entries {
		if normalizeName(e.Config.Name) == key {
			f.Entries = append(f.Entries[:i], f.Entries[i+1:]...)
			return true
		}
	}
	return false
}
