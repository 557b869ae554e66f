// Package dispatch implements the tool dispatcher (spec.md §4.3): the
// single entry point that classifies a tool call by name and routes it
// to one of several sinks, merging each sink's notification stream and
// result future behind one uniform Handle.
package dispatch

import (
	"context"
	"errors"

	"github.com/agentrt/goagent/pkg/convo"
)

// Platform tool names, fixed by spec.md §3 and §4.3.
const (
	ToolManageSchedule            = "platform_manage_schedule"
	ToolManageExtensions          = "platform_manage_extensions"
	ToolFinalOutput               = "final_output"
	ToolSubagentExecuteTask       = "subagent_execute_task"
	ToolDynamicTaskCreate         = "dynamic_task_create"
	ToolReadResource              = "platform_read_resource"
	ToolListResources             = "platform_list_resources"
	ToolSearchAvailableExtensions = "platform_search_available_extensions"
	ToolTodoRead                  = "todo_read"
	ToolTodoWrite                 = "todo_write"
	ToolRouterLLMSearch           = "router_llm_search"
)

// Notification is one incremental, non-terminal message an executing
// tool call emits (progress, logging, partial output). It becomes an
// McpNotification event in the reply engine (spec.md §4.8 "Events").
type Notification struct {
	Payload any
}

// Handle is what every sink returns: a stream of notifications and a
// single-value channel carrying the eventual result. Result is always
// sent exactly once and then closed.
type Handle struct {
	Notifications <-chan Notification
	Result        <-chan *convo.ToolResult
}

// single builds a Handle that immediately resolves to result with no
// notifications — used for synchronous sinks (monitor rejection,
// permission denial, simple builtins).
func single(result *convo.ToolResult) Handle {
	ch := make(chan *convo.ToolResult, 1)
	ch <- result
	close(ch)
	return Handle{Result: ch}
}

// ErrFrontendToolExecutionRequired is the distinguished sentinel error
// returned for a tool call the reply engine must proxy to its caller
// (spec.md §4.3, §7 FrontendToolExecutionRequired).
var ErrFrontendToolExecutionRequired = errors.New("frontend tool execution required")

// ErrToolNotFound is returned when a call names an extension/tool pair
// with no owning extension and no matching builtin.
var ErrToolNotFound = errors.New("tool not found")

// Sink dispatches calls it owns. Implemented by the extension manager
// (pkg/extension), the sub-agent executor (pkg/subagent), the tool-route
// manager (pkg/router), and ad hoc platform handlers.
type Sink interface {
	Dispatch(ctx context.Context, requestID string, call *convo.ToolCall, cancel <-chan struct{}) (Handle, error)
}

// SinkFunc adapts a function to a Sink.
type SinkFunc func(ctx context.Context, requestID string, call *convo.ToolCall, cancel <-chan struct{}) (Handle, error)

func (f SinkFunc) Dispatch(ctx context.Context, requestID string, call *convo.ToolCall, cancel <-chan struct{}) (Handle, error) {
	return f(ctx, requestID, call, cancel)
}

// Resolver decides whether a tool name belongs to it (e.g. a sub-recipe
// manager matching against its registered recipe names).
type Resolver interface {
	Sink
	Owns(toolName string) bool
}

// Dispatcher is the single entry point described by spec.md §4.3.
type Dispatcher struct {
	Monitor *RepetitionMonitor

	// Platform handlers. Any of these may be nil, in which case that
	// routing branch is skipped and falls through to the next rule.
	Scheduler          Sink
	ExtensionLifecycle Sink
	FinalOutput        Sink
	SubAgent           Sink
	DynamicTask        Sink
	ResourceReader     Sink
	ExtensionDirectory Sink
	Todo               Sink
	Router             Sink
	SubRecipes         Resolver
	Extensions         Sink // fallback: name is "ext__tool"

	FrontendTools map[string]bool

	// LargeResponseHandler post-processes every successful result,
	// truncating or summarising oversized payloads (spec.md §4.3 "All
	// results pass through a large-response handler"). May be nil.
	LargeResponseHandler func(*convo.ToolResult) *convo.ToolResult
}

// Dispatch classifies call by name and routes it to the owning sink,
// following the fixed priority order of spec.md §4.3's routing table.
func (d *Dispatcher) Dispatch(ctx context.Context, requestID string, call *convo.ToolCall, cancel <-chan struct{}) (Handle, error) {
	if d.Monitor != nil && d.Monitor.Observe(call.Name, call.Arguments) {
		return single(convo.ErrResult("tool_repetition", "exceeded maximum allowed repetitions")), nil
	}

	switch call.Name {
	case ToolManageSchedule:
		if d.Scheduler != nil {
			return d.wrap(d.Scheduler, ctx, requestID, call, cancel)
		}
	case ToolManageExtensions:
		if d.ExtensionLifecycle != nil {
			return d.wrap(d.ExtensionLifecycle, ctx, requestID, call, cancel)
		}
	case ToolFinalOutput:
		if d.FinalOutput != nil {
			return d.wrap(d.FinalOutput, ctx, requestID, call, cancel)
		}
	case ToolSubagentExecuteTask:
		if d.SubAgent != nil {
			return d.wrap(d.SubAgent, ctx, requestID, call, cancel)
		}
	case ToolDynamicTaskCreate:
		if d.DynamicTask != nil {
			return d.wrap(d.DynamicTask, ctx, requestID, call, cancel)
		}
	case ToolReadResource, ToolListResources:
		if d.ResourceReader != nil {
			return d.wrap(d.ResourceReader, ctx, requestID, call, cancel)
		}
	case ToolSearchAvailableExtensions:
		if d.ExtensionDirectory != nil {
			return d.wrap(d.ExtensionDirectory, ctx, requestID, call, cancel)
		}
	}

	if d.FrontendTools[call.Name] {
		return Handle{}, ErrFrontendToolExecutionRequired
	}

	switch call.Name {
	case ToolTodoRead, ToolTodoWrite:
		if d.Todo != nil {
			return d.wrap(d.Todo, ctx, requestID, call, cancel)
		}
	case ToolRouterLLMSearch:
		if d.Router != nil {
			return d.wrap(d.Router, ctx, requestID, call, cancel)
		}
	}

	if d.SubRecipes != nil && d.SubRecipes.Owns(call.Name) {
		return d.wrap(d.SubRecipes, ctx, requestID, call, cancel)
	}

	if d.Extensions != nil {
		return d.wrap(d.Extensions, ctx, requestID, call, cancel)
	}

	return Handle{}, ErrToolNotFound
}

// wrap applies the large-response handler to a sink's eventual result
// without disturbing its notification stream.
func (d *Dispatcher) wrap(s Sink, ctx context.Context, requestID string, call *convo.ToolCall, cancel <-chan struct{}) (Handle, error) {
	h, err := s.Dispatch(ctx, requestID, call, cancel)
	if err != nil || d.LargeResponseHandler == nil {
		return h, err
	}

	out := make(chan *convo.ToolResult, 1)
	go func() {
		defer close(out)
		result, ok := <-h.Result
		if !ok {
			return
		}
		out <- d.LargeResponseHandler(result)
	}()

	return Handle{Notifications: h.Notifications, Result: out}, nil
}
