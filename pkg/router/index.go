package router

import (
	"sort"
	"strings"
	"sync"

	"github.com/agentrt/goagent/pkg/provider"
)

// Index is an in-memory lexical index over tool descriptions. Spec.md
// §4.9 describes "a vector index of tool descriptions"; no embeddings
// provider is wired anywhere in this module (see SPEC_FULL.md's domain
// stack — no vector store or embeddings SDK has a component to live in),
// so the index scores by term overlap instead of cosine similarity over
// embeddings. It is rebuilt from the caller's current tool list on every
// Sync call, which is how "re-index on extension add/remove" is
// satisfied in practice: the extension manager's tool list is already
// re-fetched fresh every turn (pkg/reply.Engine.activeTools), so there is
// no separate add/remove event to hook.
type Index struct {
	mu      sync.RWMutex
	entries map[string][]string // tool name -> lowercased term set
}

// NewIndex builds an empty Index.
func NewIndex() *Index {
	return &Index{entries: make(map[string][]string)}
}

// Sync replaces the index's contents with the given tool definitions.
func (idx *Index) Sync(tools []provider.ToolDefinition) {
	idx.mu.Lock()
	defer idx.mu.Unlock()
	idx.entries = make(map[string][]string, len(tools))
	for _, t := range tools {
		idx.entries[t.Name] = tokenize(t.Name + " " + t.Description)
	}
}

// Search ranks tool names by term-overlap score against query, returning
// at most topK names in descending score order. Ties break by name for
// determinism.
func (idx *Index) Search(query string, topK int) []string {
	queryTerms := tokenize(query)
	if len(queryTerms) == 0 {
		return nil
	}
	queryCounts := termCounts(queryTerms)

	idx.mu.RLock()
	defer idx.mu.RUnlock()

	type scored struct {
		name  string
		score int
	}
	var candidates []scored
	for name, terms := range idx.entries {
		score := 0
		for _, term := range terms {
			score += queryCounts[term]
		}
		if score > 0 {
			candidates = append(candidates, scored{name, score})
		}
	}

	sort.Slice(candidates, func(i, j int) bool {
		if candidates[i].score != candidates[j].score {
			return candidates[i].score > candidates[j].score
		}
		return candidates[i].name < candidates[j].name
	})

	if topK > 0 && len(candidates) > topK {
		candidates = candidates[:topK]
	}
	out := make([]string, len(candidates))
	for i, c := range candidates {
		out[i] = c.name
	}
	return out
}

func tokenize(s string) []string {
	fields := strings.FieldsFunc(strings.ToLower(s), func(r rune) bool {
		return !('a' <= r && r <= 'z') && !('0' <= r && r <= '9')
	})
	return fields
}

func termCounts(terms []string) map[string]int {
	counts := make(map[string]int, len(terms))
	for _, t := range terms {
		counts[t]++
	}
	return counts
}
