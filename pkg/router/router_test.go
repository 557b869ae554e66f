package router

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agentrt/goagent/pkg/convo"
	"github.com/agentrt/goagent/pkg/provider"
	"github.com/agentrt/goagent/pkg/provider/providertest"
)

func toolDefs(names ...string) []provider.ToolDefinition {
	out := make([]provider.ToolDefinition, len(names))
	for i, n := range names {
		out[i] = provider.ToolDefinition{Name: n, Description: "does things with " + n}
	}
	return out
}

func TestIndex_SearchRanksByTermOverlap(t *testing.T) {
	idx := NewIndex()
	idx.Sync([]provider.ToolDefinition{
		{Name: "fs__read_file", Description: "Read the contents of a file from disk"},
		{Name: "fs__write_file", Description: "Write content to a file on disk"},
		{Name: "web__search", Description: "Search the web for a query"},
	})

	got := idx.Search("read a file", 2)
	require.NotEmpty(t, got)
	assert.Equal(t, "fs__read_file", got[0])
}

func TestIndex_SearchEmptyQueryReturnsNothing(t *testing.T) {
	idx := NewIndex()
	idx.Sync(toolDefs("fs__read_file"))
	assert.Empty(t, idx.Search("", 5))
}

func TestRouter_NarrowBelowThresholdIsNoOp(t *testing.T) {
	r := New(nil)
	tools := toolDefs("fs__read_file")
	out, err := r.Narrow(context.Background(), tools, "read a.txt")
	require.NoError(t, err)
	assert.Equal(t, tools, out)
}

func TestRouter_NarrowSelectsSubsetViaLLM(t *testing.T) {
	tools := toolDefs("fs__read_file", "fs__write_file", "web__search", "shell__run", "editor__open_diff")

	mock := providertest.New(providertest.Turn{
		Message: convo.NewMessage(convo.RoleAssistant, &convo.Text{Value: `["fs__read_file"]`}),
	})

	r := New(mock)
	r.MinToolsForNarrowing = 1
	out, err := r.Narrow(context.Background(), tools, "read the contents of a.txt")
	require.NoError(t, err)
	require.Len(t, out, 1)
	assert.Equal(t, "fs__read_file", out[0].Name)
}

func TestRouter_NarrowFallsBackToFullListWhenLLMSelectsNothing(t *testing.T) {
	tools := toolDefs("fs__read_file", "fs__write_file")

	mock := providertest.New(providertest.Turn{
		Message: convo.NewMessage(convo.RoleAssistant, &convo.Text{Value: `[]`}),
	})

	r := New(mock)
	r.MinToolsForNarrowing = 1
	out, err := r.Narrow(context.Background(), tools, "read a file")
	require.NoError(t, err)
	assert.Equal(t, tools, out)
}

func TestRouter_ForRecipeDisabledReturnsPassThrough(t *testing.T) {
	tools := toolDefs("fs__read_file", "fs__write_file", "web__search")
	mock := providertest.New(providertest.Turn{
		Message: convo.NewMessage(convo.RoleAssistant, &convo.Text{Value: `["fs__read_file"]`}),
	})

	r := New(mock)
	r.MinToolsForNarrowing = 1
	r.SetRecipeDisabled("no-router-recipe", true)

	out, err := r.ForRecipe("no-router-recipe").Narrow(context.Background(), tools, "read a file")
	require.NoError(t, err)
	assert.Equal(t, tools, out)
	assert.Equal(t, 0, mock.CallCount(), "pass-through narrower must not call the provider")
}

func TestSink_DispatchRejectsUnknownTool(t *testing.T) {
	s := Sink{
		Router: New(nil),
		Tools:  func(context.Context) ([]provider.ToolDefinition, error) { return nil, nil },
	}
	_, err := s.Dispatch(context.Background(), "r1", &convo.ToolCall{Name: "not_router_llm_search"}, nil)
	assert.Error(t, err)
}

func TestSink_DispatchReturnsMatchingTools(t *testing.T) {
	tools := toolDefs("fs__read_file", "fs__write_file")
	s := Sink{
		Router: New(nil),
		Tools:  func(context.Context) ([]provider.ToolDefinition, error) { return tools, nil },
	}

	handle, err := s.Dispatch(context.Background(), "r1", &convo.ToolCall{
		Name:      "router_llm_search",
		Arguments: map[string]any{"query": "read a file"},
	}, nil)
	require.NoError(t, err)

	result := <-handle.Result
	require.False(t, result.IsErr())
	assert.NotEmpty(t, result.Items)
}
