package config

import (
	"fmt"
	"os"
	"sync"

	"gopkg.in/yaml.v3"

	"github.com/agentrt/goagent/pkg/permission"
)

// PermissionsFile is the persisted mapping tool_name -> PermissionLevel
// (spec.md §6.3). It implements permission.PolicyStore directly, so it
// can back a permission.Gate without an adapter.
type PermissionsFile struct {
	mu     sync.RWMutex
	levels map[string]permission.Level
	path   string
}

// LoadPermissionsFile reads a permissions file from path. A missing
// file yields an empty PermissionsFile, not an error.
func LoadPermissionsFile(path string) (*PermissionsFile, error) {
	levels := map[string]permission.Level{}
	if data, err := os.ReadFile(path); err == nil {
		var raw map[string]string
		if err := yaml.Unmarshal(data, &raw); err != nil {
			return nil, fmt.Errorf("config: parse permissions file %s: %w", path, err)
		}
		for tool, level := range raw {
			levels[tool] = permission.Level(level)
		}
	} else if !os.IsNotExist(err) {
		return nil, fmt.Errorf("config: read permissions file %s: %w", path, err)
	}
	return &PermissionsFile{levels: levels, path: path}, nil
}

// Get implements permission.PolicyStore.
func (f *PermissionsFile) Get(toolName string) (permission.Level, bool) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	level, ok := f.levels[toolName]
	return level, ok
}

// Set stores a policy override for toolName and persists the file.
func (f *PermissionsFile) Set(toolName string, level permission.Level) error {
	f.mu.Lock()
	f.levels[toolName] = level
	snapshot := make(map[string]string, len(f.levels))
	for k, v := range f.levels {
		snapshot[k] = string(v)
	}
	f.mu.Unlock()

	data, err := yaml.Marshal(snapshot)
	if err != nil {
		return fmt.Errorf("config: marshal permissions file: %w", err)
	}
	return os.WriteFile(f.path, data, 0o644)
}

var _ permission.PolicyStore = (*PermissionsFile)(nil)
