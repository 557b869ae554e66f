// Package router implements the tool-route manager (spec.md §4.9): an
// optional pre-selection pass that narrows the tool list offered to the
// main provider down to the subset relevant to the user's latest
// message, via an LLM call plus a lexical pre-filter so the narrowing
// prompt itself stays small.
package router

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"

	"github.com/agentrt/goagent/pkg/convo"
	"github.com/agentrt/goagent/pkg/dispatch"
	"github.com/agentrt/goagent/pkg/provider"
)

// defaultCandidates bounds how many lexically-ranked candidates are
// offered to the LLM narrowing call, keeping that prompt's size bounded
// regardless of how many tools are registered.
const defaultCandidates = 40

// defaultSystemPrompt instructs the narrowing call to answer with a bare
// JSON array of tool names, nothing else.
const defaultSystemPrompt = "You select which tools are relevant to a user's request. Given a list of available tools and the user's latest message, respond with a JSON array of the tool names (exact strings from the list) that are plausibly needed. Respond with only the JSON array, no other text."

// Router narrows a turn's tool list via router_llm_search (spec.md §4.9)
// and serves the platform router_llm_search tool directly when a model
// calls it explicitly.
type Router struct {
	Provider    provider.Provider
	Index       *Index
	Candidates  int // lexical shortlist size fed to the LLM call; defaults to defaultCandidates
	MinToolsForNarrowing int // at or below this tool count, Narrow is a no-op

	mu              sync.RWMutex
	disabledRecipes map[string]bool
}

// New builds a Router backed by the given provider for its narrowing
// calls.
func New(p provider.Provider) *Router {
	return &Router{Provider: p, Index: NewIndex(), disabledRecipes: make(map[string]bool)}
}

// SetRecipeDisabled implements "a recipe can disable the router for its
// lifetime" (spec.md §4.9). ForRecipe consults this to decide whether to
// return r or a pass-through narrower for that recipe's turns.
func (r *Router) SetRecipeDisabled(recipeID string, disabled bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if disabled {
		r.disabledRecipes[recipeID] = true
		return
	}
	delete(r.disabledRecipes, recipeID)
}

func (r *Router) recipeDisabled(recipeID string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.disabledRecipes[recipeID]
}

// passThrough narrows nothing — used when a recipe has disabled the
// router.
type passThrough struct{}

func (passThrough) Narrow(_ context.Context, tools []provider.ToolDefinition, _ string) ([]provider.ToolDefinition, error) {
	return tools, nil
}

// narrower is the subset of pkg/reply.Router this package exposes, kept
// local so router doesn't import pkg/reply (which already imports this
// package's consumer-facing interface, not the other way around).
type narrower interface {
	Narrow(ctx context.Context, tools []provider.ToolDefinition, query string) ([]provider.ToolDefinition, error)
}

// ForRecipe returns the narrower a given recipe should use this reply:
// r itself, or a no-op pass-through if that recipe disabled the router.
func (r *Router) ForRecipe(recipeID string) narrower {
	if r.recipeDisabled(recipeID) {
		return passThrough{}
	}
	return r
}

// Narrow implements pkg/reply.Router.
func (r *Router) Narrow(ctx context.Context, tools []provider.ToolDefinition, query string) ([]provider.ToolDefinition, error) {
	minTools := r.MinToolsForNarrowing
	if minTools <= 0 {
		minTools = 1
	}
	if len(tools) <= minTools || query == "" {
		return tools, nil
	}

	r.Index.Sync(tools)

	candidateLimit := r.Candidates
	if candidateLimit <= 0 {
		candidateLimit = defaultCandidates
	}
	shortlistNames := r.Index.Search(query, candidateLimit)
	if len(shortlistNames) == 0 {
		return tools, nil
	}

	byName := make(map[string]provider.ToolDefinition, len(tools))
	for _, t := range tools {
		byName[t.Name] = t
	}
	shortlist := make([]provider.ToolDefinition, 0, len(shortlistNames))
	for _, name := range shortlistNames {
		if t, ok := byName[name]; ok {
			shortlist = append(shortlist, t)
		}
	}

	selected, err := r.search(ctx, shortlist, query)
	if err != nil {
		return nil, err
	}
	if len(selected) == 0 {
		return tools, nil
	}

	out := make([]provider.ToolDefinition, 0, len(selected))
	for _, name := range selected {
		if t, ok := byName[name]; ok {
			out = append(out, t)
		}
	}
	if len(out) == 0 {
		return tools, nil
	}
	return out, nil
}

// search performs the actual router_llm_search LLM call against
// candidates, returning the tool names the model selected.
func (r *Router) search(ctx context.Context, candidates []provider.ToolDefinition, query string) ([]string, error) {
	if r.Provider == nil {
		// No narrowing provider configured: fall back to the lexical
		// shortlist itself.
		names := make([]string, len(candidates))
		for i, c := range candidates {
			names[i] = c.Name
		}
		return names, nil
	}

	var b strings.Builder
	b.WriteString("Available tools:\n")
	for _, c := range candidates {
		fmt.Fprintf(&b, "- %s: %s\n", c.Name, c.Description)
	}
	fmt.Fprintf(&b, "\nUser's latest message: %s\n", query)

	msg, _, err := r.Provider.Complete(ctx, &provider.Request{
		System:   defaultSystemPrompt,
		Messages: []*convo.Message{convo.NewMessage(convo.RoleUser, &convo.Text{Value: b.String()})},
	})
	if err != nil {
		return nil, fmt.Errorf("router_llm_search: %w", err)
	}

	var names []string
	if err := json.Unmarshal([]byte(extractJSONArray(msg.Text())), &names); err != nil {
		return nil, fmt.Errorf("router_llm_search: parse response: %w", err)
	}
	return names, nil
}

// extractJSONArray trims any leading/trailing prose a model adds around
// the requested JSON array, taking the first '[' through the last ']'.
func extractJSONArray(s string) string {
	start := strings.Index(s, "[")
	end := strings.LastIndex(s, "]")
	if start < 0 || end < start {
		return "[]"
	}
	return s[start : end+1]
}

// Sink implements dispatch.Sink for the platform router_llm_search tool,
// serving an explicit call the model makes itself (as opposed to the
// engine's own pre-turn Narrow substitution).
type Sink struct {
	Router *Router
	// Tools is consulted for the full candidate list an explicit
	// router_llm_search call searches over — normally the same list the
	// engine built for the turn.
	Tools func(ctx context.Context) ([]provider.ToolDefinition, error)
}

func (s Sink) Dispatch(ctx context.Context, requestID string, call *convo.ToolCall, cancel <-chan struct{}) (dispatch.Handle, error) {
	if call.Name != dispatch.ToolRouterLLMSearch {
		return dispatch.Handle{}, fmt.Errorf("router sink: unsupported tool %q", call.Name)
	}
	query, _ := call.Arguments["query"].(string)

	tools, err := s.Tools(ctx)
	if err != nil {
		return syncHandle(convo.ErrResult("router_error", err.Error())), nil
	}

	selected, err := s.Router.Narrow(ctx, tools, query)
	if err != nil {
		return syncHandle(convo.ErrResult("router_error", err.Error())), nil
	}

	items := make([]convo.ResultItem, 0, len(selected))
	for _, t := range selected {
		items = append(items, convo.ResultItem{Type: convo.ResultText, Text: fmt.Sprintf("%s: %s", t.Name, t.Description)})
	}
	return syncHandle(convo.OkResult(items...)), nil
}

func syncHandle(result *convo.ToolResult) dispatch.Handle {
	ch := make(chan *convo.ToolResult, 1)
	ch <- result
	close(ch)
	return dispatch.Handle{Result: ch}
}
