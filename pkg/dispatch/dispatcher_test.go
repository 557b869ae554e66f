package dispatch

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agentrt/goagent/pkg/convo"
)

func sinkReturning(result *convo.ToolResult) Sink {
	return SinkFunc(func(ctx context.Context, requestID string, call *convo.ToolCall, cancel <-chan struct{}) (Handle, error) {
		return single(result), nil
	})
}

func drain(t *testing.T, h Handle) *convo.ToolResult {
	t.Helper()
	result, ok := <-h.Result
	require.True(t, ok, "result channel closed without a value")
	return result
}

func TestDispatcher_RepetitionMonitorRejectsBeforeRouting(t *testing.T) {
	d := &Dispatcher{
		Monitor:    &RepetitionMonitor{MaxRepetitions: 2},
		Extensions: sinkReturning(convo.OkResult(convo.ResultItem{Type: convo.ResultText, Text: "ok"})),
	}
	call := &convo.ToolCall{Name: "dev__shell", Arguments: map[string]any{"cmd": "ls"}}

	h1, err := d.Dispatch(context.Background(), "1", call, nil)
	require.NoError(t, err)
	assert.False(t, drain(t, h1).IsErr())

	h2, err := d.Dispatch(context.Background(), "2", call, nil)
	require.NoError(t, err)
	assert.False(t, drain(t, h2).IsErr())

	h3, err := d.Dispatch(context.Background(), "3", call, nil)
	require.NoError(t, err)
	res := drain(t, h3)
	require.True(t, res.IsErr())
	assert.Equal(t, "tool_repetition", res.ErrorKind)
}

func TestDispatcher_PlatformToolsRouteBeforeExtensionFallback(t *testing.T) {
	var hit string
	make := func(name string) Sink {
		return SinkFunc(func(ctx context.Context, requestID string, call *convo.ToolCall, cancel <-chan struct{}) (Handle, error) {
			hit = name
			return single(convo.OkResult()), nil
		})
	}

	d := &Dispatcher{
		Scheduler:          make("scheduler"),
		ExtensionLifecycle: make("lifecycle"),
		FinalOutput:        make("final"),
		SubAgent:           make("subagent"),
		DynamicTask:        make("dynamic_task"),
		ResourceReader:     make("resource"),
		ExtensionDirectory: make("directory"),
		Todo:               make("todo"),
		Router:             make("router"),
		Extensions:         make("extensions"),
	}

	cases := map[string]string{
		ToolManageSchedule:           "scheduler",
		ToolManageExtensions:         "lifecycle",
		ToolFinalOutput:              "final",
		ToolSubagentExecuteTask:      "subagent",
		ToolDynamicTaskCreate:        "dynamic_task",
		ToolReadResource:             "resource",
		ToolListResources:            "resource",
		ToolSearchAvailableExtensions: "directory",
		ToolTodoRead:                 "todo",
		ToolTodoWrite:                "todo",
		ToolRouterLLMSearch:          "router",
		"ext__some_tool":             "extensions",
	}

	for name, want := range cases {
		hit = ""
		_, err := d.Dispatch(context.Background(), "r", &convo.ToolCall{Name: name}, nil)
		require.NoError(t, err, name)
		assert.Equal(t, want, hit, name)
	}
}

func TestDispatcher_FrontendToolsBypassEverythingElse(t *testing.T) {
	d := &Dispatcher{
		FrontendTools: map[string]bool{"ui__confirm": true},
		Extensions:    sinkReturning(convo.OkResult()),
	}
	_, err := d.Dispatch(context.Background(), "1", &convo.ToolCall{Name: "ui__confirm"}, nil)
	assert.ErrorIs(t, err, ErrFrontendToolExecutionRequired)
}

func TestDispatcher_SubRecipeResolverConsultedBeforeExtensions(t *testing.T) {
	resolver := &stubResolver{owned: map[string]bool{"recipe__build": true}}
	d := &Dispatcher{
		SubRecipes: resolver,
		Extensions: sinkReturning(convo.OkResult()),
	}

	_, err := d.Dispatch(context.Background(), "1", &convo.ToolCall{Name: "recipe__build"}, nil)
	require.NoError(t, err)
	assert.True(t, resolver.called)
}

func TestDispatcher_UnknownToolWithNoExtensionsIsNotFound(t *testing.T) {
	d := &Dispatcher{}
	_, err := d.Dispatch(context.Background(), "1", &convo.ToolCall{Name: "mystery__tool"}, nil)
	assert.ErrorIs(t, err, ErrToolNotFound)
}

func TestDispatcher_LargeResponseHandlerAppliesToResult(t *testing.T) {
	d := &Dispatcher{
		Extensions: sinkReturning(convo.OkResult(convo.ResultItem{Type: convo.ResultText, Text: "huge"})),
		LargeResponseHandler: func(r *convo.ToolResult) *convo.ToolResult {
			return convo.OkResult(convo.ResultItem{Type: convo.ResultText, Text: "truncated"})
		},
	}
	h, err := d.Dispatch(context.Background(), "1", &convo.ToolCall{Name: "ext__tool"}, nil)
	require.NoError(t, err)
	res := drain(t, h)
	require.Len(t, res.Items, 1)
	assert.Equal(t, "truncated", res.Items[0].Text)
}

type stubResolver struct {
	owned  map[string]bool
	called bool
}

func (s *stubResolver) Owns(name string) bool { return s.owned[name] }

func (s *stubResolver) Dispatch(ctx context.Context, requestID string, call *convo.ToolCall, cancel <-chan struct{}) (Handle, error) {
	s.called = true
	return single(convo.OkResult()), nil
}
