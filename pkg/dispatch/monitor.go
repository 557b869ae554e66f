package dispatch

import (
	"encoding/json"
	"sort"
	"sync"
)

// RepetitionMonitor rejects a tool call once the same (name, arguments)
// pair has been issued more than MaxRepetitions times in a row
// (spec.md §4.5). A zero MaxRepetitions disables the monitor.
type RepetitionMonitor struct {
	MaxRepetitions int

	mu      sync.Mutex
	lastKey string
	count   int
}

// Observe records one tool call and reports whether it should be
// rejected for exceeding the repetition cap.
func (m *RepetitionMonitor) Observe(name string, args map[string]any) bool {
	if m.MaxRepetitions <= 0 {
		return false
	}

	key := canonicalKey(name, args)

	m.mu.Lock()
	defer m.mu.Unlock()

	if key == m.lastKey {
		m.count++
	} else {
		m.lastKey = key
		m.count = 1
	}

	return m.count > m.MaxRepetitions
}

// Reset clears the monitor's state — used by the retry governor (pkg/retrygov)
// when it rewinds a conversation and restarts the reply loop.
func (m *RepetitionMonitor) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.lastKey = ""
	m.count = 0
}

// canonicalKey produces a stable key for (name, arguments) by marshaling
// the arguments with sorted object keys, per spec.md §4.5
// "Canonicalisation: JSON with sorted object keys."
func canonicalKey(name string, args map[string]any) string {
	b, err := json.Marshal(canonicalize(args))
	if err != nil {
		// Fall back to name-only keying rather than panicking on
		// unmarshalable arguments; still deterministic.
		return name
	}
	return name + "\x00" + string(b)
}

func canonicalize(v any) any {
	switch val := v.(type) {
	case map[string]any:
		keys := make([]string, 0, len(val))
		for k := range val {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		out := make(orderedMap, 0, len(keys))
		for _, k := range keys {
			out = append(out, kv{k, canonicalize(val[k])})
		}
		return out
	case []any:
		out := make([]any, len(val))
		for i, e := range val {
			out[i] = canonicalize(e)
		}
		return out
	default:
		return val
	}
}

// orderedMap marshals as a JSON object with keys in the order given,
// which canonicalize always populates in sorted order.
type kv struct {
	Key   string
	Value any
}
type orderedMap []kv

func (m orderedMap) MarshalJSON() ([]byte, error) {
	buf := []byte{'{'}
	for i, e := range m {
		if i > 0 {
			buf = append(buf, ',')
		}
		kb, err := json.Marshal(e.Key)
		if err != nil {
			return nil, err
		}
		vb, err := json.Marshal(e.Value)
		if err != nil {
			return nil, err
		}
		buf = append(buf, kb...)
		buf = append(buf, ':')
		buf = append(buf, vb...)
	}
	buf = append(buf, '}')
	return buf, nil
}
