// Package config implements the runtime's persisted-state facade
// (spec.md §6.2 configuration surface, §6.3 persisted state): the
// process-wide Settings value, the extensions file, the permissions
// file, and per-session records, each readable from a YAML document on
// disk with every key overridable from the process environment.
package config

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
	"sync"

	"github.com/fsnotify/fsnotify"
	"github.com/joho/godotenv"
	"github.com/mitchellh/mapstructure"
	"gopkg.in/yaml.v3"
)

// SchedulerType selects the scheduler backend (spec.md §6.2 GOOSE_SCHEDULER_TYPE).
type SchedulerType string

const (
	SchedulerLegacy   SchedulerType = "legacy"
	SchedulerTemporal SchedulerType = "temporal"
)

// Settings is the process-wide configuration value (spec.md §9 "Model
// [config/permissions/extensions] as a single Settings value initialised
// at startup and passed explicitly; avoid implicit globals"). Every
// field except LogLevel and LogFormat corresponds to a GOOSE_* key from
// spec.md §6.2.
type Settings struct {
	Provider string `yaml:"provider"` // GOOSE_PROVIDER — required, no default
	Model    string `yaml:"model"`    // GOOSE_MODEL — provider default if empty

	Mode string `yaml:"mode"` // GOOSE_MODE: auto|approve|smart_approve|chat

	MaxTurns               int     `yaml:"max_turns"`                // GOOSE_MAX_TURNS
	AutoCompactThreshold   float64 `yaml:"auto_compact_threshold"`   // GOOSE_AUTO_COMPACT_THRESHOLD
	TodoMaxChars           int     `yaml:"todo_max_chars"`           // GOOSE_TODO_MAX_CHARS
	EnableRouter           bool    `yaml:"enable_router"`            // GOOSE_ENABLE_ROUTER
	CLIMinPriority         float64 `yaml:"cli_min_priority"`         // GOOSE_CLI_MIN_PRIORITY
	SchedulerType          SchedulerType `yaml:"scheduler_type"`     // GOOSE_SCHEDULER_TYPE

	LogLevel  string `yaml:"log_level"`
	LogFormat string `yaml:"log_format"`
}

// SetDefaults fills in every key's documented default (spec.md §6.2)
// for fields left at their zero value.
func (s *Settings) SetDefaults() {
	if s.Mode == "" {
		s.Mode = "auto"
	}
	if s.MaxTurns == 0 {
		s.MaxTurns = 1000
	}
	if s.AutoCompactThreshold == 0 {
		s.AutoCompactThreshold = 0.80
	}
	if s.TodoMaxChars == 0 {
		s.TodoMaxChars = 50000
	}
	if s.CLIMinPriority == 0 {
		s.CLIMinPriority = 0.5
	}
	if s.SchedulerType == "" {
		s.SchedulerType = SchedulerLegacy
	}
	if s.LogLevel == "" {
		s.LogLevel = "warn"
	}
	if s.LogFormat == "" {
		s.LogFormat = "simple"
	}
}

// Validate reports the one hard requirement spec.md §6.2 names: a
// provider must be configured.
func (s *Settings) Validate() error {
	if s.Provider == "" {
		return fmt.Errorf("config: provider is required (GOOSE_PROVIDER)")
	}
	return nil
}

// envOverrides maps each GOOSE_* environment variable to the Settings
// field it overrides (spec.md §6.2 "any may be overridden by the
// process environment").
var envOverrides = map[string]func(*Settings, string) error{
	"GOOSE_PROVIDER": func(s *Settings, v string) error { s.Provider = v; return nil },
	"GOOSE_MODEL":    func(s *Settings, v string) error { s.Model = v; return nil },
	"GOOSE_MODE":     func(s *Settings, v string) error { s.Mode = v; return nil },
	"GOOSE_MAX_TURNS": func(s *Settings, v string) error {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("GOOSE_MAX_TURNS: %w", err)
		}
		s.MaxTurns = n
		return nil
	},
	"GOOSE_AUTO_COMPACT_THRESHOLD": func(s *Settings, v string) error {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return fmt.Errorf("GOOSE_AUTO_COMPACT_THRESHOLD: %w", err)
		}
		s.AutoCompactThreshold = f
		return nil
	},
	"GOOSE_TODO_MAX_CHARS": func(s *Settings, v string) error {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("GOOSE_TODO_MAX_CHARS: %w", err)
		}
		s.TodoMaxChars = n
		return nil
	},
	"GOOSE_ENABLE_ROUTER": func(s *Settings, v string) error {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("GOOSE_ENABLE_ROUTER: %w", err)
		}
		s.EnableRouter = b
		return nil
	},
	"GOOSE_CLI_MIN_PRIORITY": func(s *Settings, v string) error {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return fmt.Errorf("GOOSE_CLI_MIN_PRIORITY: %w", err)
		}
		s.CLIMinPriority = f
		return nil
	},
	"GOOSE_SCHEDULER_TYPE": func(s *Settings, v string) error { s.SchedulerType = SchedulerType(v); return nil },
}

// applyEnvOverrides applies every set GOOSE_* environment variable on
// top of a parsed Settings value.
func applyEnvOverrides(s *Settings) error {
	for key, apply := range envOverrides {
		v, ok := os.LookupEnv(key)
		if !ok || v == "" {
			continue
		}
		if err := apply(s, v); err != nil {
			return err
		}
	}
	return nil
}

// envVarPattern matches ${VAR}, ${VAR:-default}, and $VAR, mirroring the
// expansion the config loader performs on every string value before
// decoding (teacher's pkg/config/loader.go expandEnvVars /
// pkg/config/env.go expandEnvVars).
var envVarPattern = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)(:-(.*?))?\}|\$([A-Za-z_][A-Za-z0-9_]*)`)

func expandEnvString(s string) string {
	return envVarPattern.ReplaceAllStringFunc(s, func(match string) string {
		groups := envVarPattern.FindStringSubmatch(match)
		name := groups[1]
		if name == "" {
			name = groups[4]
		}
		if val, ok := os.LookupEnv(name); ok {
			return val
		}
		if groups[2] != "" {
			return groups[3]
		}
		return ""
	})
}

func expandEnvValue(v any) any {
	switch val := v.(type) {
	case string:
		return expandEnvString(val)
	case map[string]any:
		out := make(map[string]any, len(val))
		for k, vv := range val {
			out[k] = expandEnvValue(vv)
		}
		return out
	case []any:
		out := make([]any, len(val))
		for i, vv := range val {
			out[i] = expandEnvValue(vv)
		}
		return out
	default:
		return v
	}
}

// LoadSettings reads a YAML settings document from path (if it exists),
// expands ${VAR} references, decodes it, applies GOOSE_* environment
// overrides, fills in defaults, and validates the result. A missing
// file is not an error: Settings starts from an empty document and
// env/defaults alone may satisfy Validate.
func LoadSettings(path string) (*Settings, error) {
	raw := map[string]any{}
	if data, err := os.ReadFile(path); err == nil {
		if err := yaml.Unmarshal(data, &raw); err != nil {
			return nil, fmt.Errorf("config: parse %s: %w", path, err)
		}
	} else if !os.IsNotExist(err) {
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}

	expanded := expandEnvValue(raw).(map[string]any)

	settings := &Settings{}
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           settings,
		TagName:          "yaml",
		WeaklyTypedInput: true,
		DecodeHook: mapstructure.ComposeDecodeHookFunc(
			mapstructure.StringToTimeDurationHookFunc(),
		),
	})
	if err != nil {
		return nil, fmt.Errorf("config: build decoder: %w", err)
	}
	if err := decoder.Decode(expanded); err != nil {
		return nil, fmt.Errorf("config: decode: %w", err)
	}

	if err := applyEnvOverrides(settings); err != nil {
		return nil, err
	}

	settings.SetDefaults()
	if err := settings.Validate(); err != nil {
		return nil, err
	}
	return settings, nil
}

// LoadDotEnv loads .env.local then .env from dir into the process
// environment, matching the teacher's LoadEnvFiles layering (later
// files don't override variables .env.local already set).
func LoadDotEnv(dir string) error {
	for _, name := range []string{".env.local", ".env"} {
		path := filepath.Join(dir, name)
		if err := godotenv.Load(path); err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("config: load %s: %w", path, err)
		}
	}
	return nil
}

// Watcher reloads Settings from path whenever the file changes on disk,
// invoking onChange with the freshly validated value. It blocks until
// ctx is cancelled.
type Watcher struct {
	path     string
	onChange func(*Settings)

	mu      sync.Mutex
	watcher *fsnotify.Watcher
}

// NewWatcher builds a Watcher for path.
func NewWatcher(path string, onChange func(*Settings)) *Watcher {
	return &Watcher{path: path, onChange: onChange}
}

// Run watches path's containing directory for changes and reloads on
// every write, until ctx is cancelled.
func (w *Watcher) Run(ctx context.Context) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("config: create watcher: %w", err)
	}
	w.mu.Lock()
	w.watcher = watcher
	w.mu.Unlock()
	defer watcher.Close()

	dir := filepath.Dir(w.path)
	if err := watcher.Add(dir); err != nil {
		return fmt.Errorf("config: watch %s: %w", dir, err)
	}

	target := filepath.Base(w.path)
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case ev, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Base(ev.Name) != target {
				continue
			}
			if !(ev.Op&(fsnotify.Write|fsnotify.Create) != 0) {
				continue
			}
			settings, err := LoadSettings(w.path)
			if err != nil {
				continue
			}
			w.onChange(settings)
		case _, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
		}
	}
}

// normalizeName lowercases and collapses non-alphanumerics to '_'
// (spec.md §6.3 extensions file key normalisation).
func normalizeName(name string) string {
	var b strings.Builder
	for _, r := range strings.ToLower(name) {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') {
			b.WriteRune(r)
		} else {
			b.WriteRune('_')
		}
	}
	return b.String()
}
