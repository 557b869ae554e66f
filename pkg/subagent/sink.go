package subagent

import (
	"context"
	"fmt"
	"time"

	"github.com/agentrt/goagent/pkg/convo"
	"github.com/agentrt/goagent/pkg/dispatch"
)

// Sink implements dispatch.Sink for the platform subagent_execute_task
// tool: it parses the call's tasks[], runs them through an Executor, and
// reports the aggregate back as the tool's result (spec.md §4.10 "the
// aggregate becomes the subagent_execute_task tool's result").
type Sink struct {
	Executor *Executor
}

func (s Sink) Dispatch(ctx context.Context, requestID string, call *convo.ToolCall, cancel <-chan struct{}) (dispatch.Handle, error) {
	if call.Name != dispatch.ToolSubagentExecuteTask {
		return dispatch.Handle{}, fmt.Errorf("subagent sink: unsupported tool %q", call.Name)
	}

	tasks, err := parseTasks(call.Arguments)
	if err != nil {
		return handleNow(convo.ErrResult("tool_invalid_args", err.Error())), nil
	}

	resultCh := make(chan *convo.ToolResult, 1)
	go func() {
		runCtx := ctx
		var stop context.CancelFunc
		if cancel != nil {
			var innerCancel context.CancelFunc
			runCtx, innerCancel = context.WithCancel(ctx)
			stop = innerCancel
			go func() {
				select {
				case <-cancel:
					innerCancel()
				case <-runCtx.Done():
				}
			}()
		}
		results := s.Executor.Execute(runCtx, tasks)
		if stop != nil {
			stop()
		}
		resultCh <- aggregate(results)
		close(resultCh)
	}()

	return dispatch.Handle{Result: resultCh}, nil
}

func handleNow(result *convo.ToolResult) dispatch.Handle {
	ch := make(chan *convo.ToolResult, 1)
	ch <- result
	close(ch)
	return dispatch.Handle{Result: ch}
}

// parseTasks decodes the subagent_execute_task call's tasks[] argument:
// [{recipe_ref, inputs, timeout}].
func parseTasks(args map[string]any) ([]Task, error) {
	raw, ok := args["tasks"].([]any)
	if !ok {
		return nil, fmt.Errorf("missing or invalid 'tasks' argument")
	}

	tasks := make([]Task, 0, len(raw))
	for i, item := range raw {
		entry, ok := item.(map[string]any)
		if !ok {
			return nil, fmt.Errorf("tasks[%d]: expected an object", i)
		}

		recipeRef, ok := entry["recipe_ref"].(string)
		if !ok || recipeRef == "" {
			return nil, fmt.Errorf("tasks[%d]: missing 'recipe_ref'", i)
		}

		inputs := map[string]string{}
		if rawInputs, ok := entry["inputs"].(map[string]any); ok {
			for k, v := range rawInputs {
				inputs[k] = fmt.Sprintf("%v", v)
			}
		}

		var timeout time.Duration
		switch v := entry["timeout"].(type) {
		case string:
			d, err := time.ParseDuration(v)
			if err != nil {
				return nil, fmt.Errorf("tasks[%d]: invalid 'timeout': %w", i, err)
			}
			timeout = d
		case float64:
			timeout = time.Duration(v) * time.Second
		}

		var remote *RemoteTarget
		if rawRemote, ok := entry["remote"].(map[string]any); ok {
			uri, _ := rawRemote["uri"].(string)
			if uri == "" {
				return nil, fmt.Errorf("tasks[%d]: 'remote' requires a 'uri'", i)
			}
			headers := map[string]string{}
			if rawHeaders, ok := rawRemote["headers"].(map[string]any); ok {
				for k, v := range rawHeaders {
					headers[k] = fmt.Sprintf("%v", v)
				}
			}
			remote = &RemoteTarget{URI: uri, Headers: headers}
		}

		tasks = append(tasks, Task{RecipeRef: recipeRef, Inputs: inputs, Timeout: timeout, Remote: remote})
	}
	return tasks, nil
}

// aggregate folds every task's Result into one ToolResult, one item per
// task in task order, naming the recipe and status so the model can tell
// which delegated task produced which output. When no task finished ok,
// it returns a single subagent_failed error result instead, and the
// per-task items are not included.
func aggregate(results []Result) *convo.ToolResult {
	items := make([]convo.ResultItem, 0, len(results))
	anyOK := false
	for _, r := range results {
		if r.Status == StatusOK {
			anyOK = true
		}
		items = append(items, convo.ResultItem{
			Type: convo.ResultText,
			Text: fmt.Sprintf("[%s: %s] %s", r.RecipeRef, r.Status, r.Output),
		})
	}
	if !anyOK && len(results) > 0 {
		return convo.ErrResult("subagent_failed", "no delegated task completed successfully")
	}
	return convo.OkResult(items...)
}
