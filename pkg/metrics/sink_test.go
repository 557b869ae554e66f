package metrics

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agentrt/goagent/internal/config"
	"github.com/agentrt/goagent/pkg/convo"
	"github.com/agentrt/goagent/pkg/dispatch"
)

func TestTodoSink_WriteThenRead(t *testing.T) {
	store, err := config.NewSessionStore(t.TempDir())
	require.NoError(t, err)
	rec, err := NewRecorder(nil, store, "s1", "")
	require.NoError(t, err)

	sink := &TodoSink{Recorder: rec}

	handle, err := sink.Dispatch(context.Background(), "req-1", &convo.ToolCall{
		Name:      dispatch.ToolTodoWrite,
		Arguments: map[string]any{"content": "- [ ] ship it"},
	}, nil)
	require.NoError(t, err)
	result := <-handle.Result
	assert.False(t, result.IsErr())

	handle, err = sink.Dispatch(context.Background(), "req-2", &convo.ToolCall{Name: dispatch.ToolTodoRead}, nil)
	require.NoError(t, err)
	result = <-handle.Result
	require.Len(t, result.Items, 1)
	assert.Equal(t, "- [ ] ship it", result.Items[0].Text)
}

func TestTodoSink_WriteRejectsOverBudgetContent(t *testing.T) {
	rec, err := NewRecorder(nil, nil, "s1", "")
	require.NoError(t, err)
	sink := &TodoSink{Recorder: rec, MaxChars: 10}

	handle, err := sink.Dispatch(context.Background(), "req-1", &convo.ToolCall{
		Name:      dispatch.ToolTodoWrite,
		Arguments: map[string]any{"content": strings.Repeat("x", 11)},
	}, nil)
	require.NoError(t, err)
	result := <-handle.Result
	assert.True(t, result.IsErr())
	assert.Equal(t, "todo_too_large", result.ErrorKind)
}

func TestTodoSink_DispatchRejectsUnknownTool(t *testing.T) {
	sink := &TodoSink{Recorder: &Recorder{}}
	_, err := sink.Dispatch(context.Background(), "req-1", &convo.ToolCall{Name: "other_tool"}, nil)
	assert.ErrorIs(t, err, dispatch.ErrToolNotFound)
}
