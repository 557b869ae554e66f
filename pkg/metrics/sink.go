package metrics

import (
	"context"
	"fmt"

	"github.com/agentrt/goagent/pkg/convo"
	"github.com/agentrt/goagent/pkg/dispatch"
)

// TodoSink implements dispatch.Sink for todo_read/todo_write (spec.md
// §4.3 tool table: "session metadata (requires session; validates char
// budget, default 50 000)"). It reads and writes through the same
// Recorder that tracks per-turn token metrics, since both live in one
// session record (spec.md §6.4 "Session record").
type TodoSink struct {
	Recorder *Recorder
	MaxChars int
}

func (s *TodoSink) maxChars() int {
	if s.MaxChars > 0 {
		return s.MaxChars
	}
	return 50000
}

// Dispatch answers a todo_read or todo_write call synchronously.
func (s *TodoSink) Dispatch(ctx context.Context, requestID string, call *convo.ToolCall, cancel <-chan struct{}) (dispatch.Handle, error) {
	switch call.Name {
	case dispatch.ToolTodoRead:
		return handleNow(s.read()), nil
	case dispatch.ToolTodoWrite:
		return handleNow(s.write(call.Arguments)), nil
	default:
		return dispatch.Handle{}, dispatch.ErrToolNotFound
	}
}

func (s *TodoSink) read() *convo.ToolResult {
	return convo.OkResult(convo.ResultItem{Type: convo.ResultText, Text: s.Recorder.Todo()})
}

func (s *TodoSink) write(args map[string]any) *convo.ToolResult {
	content, _ := args["content"].(string)
	if len(content) > s.maxChars() {
		return convo.ErrResult("todo_too_large",
			fmt.Sprintf("todo content is %d characters, exceeding the %d character limit", len(content), s.maxChars()))
	}
	s.Recorder.SetTodo(content)
	return convo.OkResult(convo.ResultItem{Type: convo.ResultText, Text: "todo updated"})
}

func handleNow(result *convo.ToolResult) dispatch.Handle {
	ch := make(chan *convo.ToolResult, 1)
	ch <- result
	close(ch)
	return dispatch.Handle{Result: ch}
}
