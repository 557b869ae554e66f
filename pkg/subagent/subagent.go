// Package subagent implements the sub-agent executor (spec.md §4.10): it
// accepts a batch of tasks, each naming a recipe to run as a fresh,
// isolated child agent with a locked tool subset, and runs them
// concurrently with a bounded pool.
package subagent

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"

	"github.com/agentrt/goagent/pkg/convo"
	"github.com/agentrt/goagent/pkg/reply"
)

// Recipe bundles a reusable agent configuration (see spec.md's glossary
// entry for "Recipe") down to what a spawned sub-agent run needs: its
// system instructions and the tool names it is locked to.
type Recipe struct {
	ID           string
	Instructions string
	Tools        []string
}

// RecipeResolver looks up a Recipe by the recipe_ref a task names.
type RecipeResolver interface {
	Resolve(ref string) (Recipe, error)
}

// Status is a completed sub-agent task's terminal state (spec.md §4.10
// "status: ok|error|timeout|cancelled").
type Status string

const (
	StatusOK        Status = "ok"
	StatusError     Status = "error"
	StatusTimeout   Status = "timeout"
	StatusCancelled Status = "cancelled"
)

// Task is one unit of delegated work. A nil Remote runs the task as a
// local child reply.Engine; a non-nil Remote delegates it to another
// agent process instead (spec.md §4.10's "remote" isolation mode).
type Task struct {
	RecipeRef string
	Inputs    map[string]string
	Timeout   time.Duration
	Remote    *RemoteTarget
}

// Result is one task's outcome (spec.md §4.10 "{status, output, messages}").
type Result struct {
	RecipeRef string
	Status    Status
	Output    string
	Messages  []*convo.Message
}

// EngineFactory builds a fresh, isolated reply.Engine for one sub-agent
// task, already configured with its own provider and a tool list locked
// to recipe.Tools. The caller (normally the host wiring this package
// into pkg/dispatch) owns how that locking happens — e.g. by filtering
// an extension.Manager view down to recipe.Tools before handing it to
// the Engine.
type EngineFactory func(recipe Recipe) (*reply.Engine, error)

// defaultConcurrency bounds the pool when Executor.Concurrency is unset.
const defaultConcurrency = 4

// Executor runs sub-agent tasks concurrently with a bounded pool
// (spec.md §4.10 "Tasks run concurrently with a bounded pool").
type Executor struct {
	Recipes     RecipeResolver
	NewEngine   EngineFactory
	Concurrency int

	// RemoteClient is used for tasks carrying a Remote target. Defaults
	// to a plain *http.Client when nil.
	RemoteClient remoteClient
}

func (e *Executor) concurrency() int64 {
	if e.Concurrency > 0 {
		return int64(e.Concurrency)
	}
	return defaultConcurrency
}

// Execute runs every task and returns one Result per task, in the same
// order as tasks. A task that never gets a pool slot before ctx is
// cancelled is reported cancelled rather than dropped.
func (e *Executor) Execute(ctx context.Context, tasks []Task) []Result {
	results := make([]Result, len(tasks))
	sem := semaphore.NewWeighted(e.concurrency())
	g, gctx := errgroup.WithContext(ctx)

	for i, task := range tasks {
		i, task := i, task
		g.Go(func() error {
			if err := sem.Acquire(gctx, 1); err != nil {
				results[i] = Result{RecipeRef: task.RecipeRef, Status: StatusCancelled, Output: "cancelled before the task could start"}
				return nil
			}
			defer sem.Release(1)
			results[i] = e.runOne(gctx, task)
			return nil
		})
	}
	// errgroup.Go's functions above never return a non-nil error — each
	// task's own failure is captured in its Result, not propagated — so
	// Wait only serves as the join point.
	_ = g.Wait()
	return results
}

func (e *Executor) runOne(ctx context.Context, task Task) Result {
	if task.Remote != nil {
		return e.runRemote(ctx, task, *task.Remote)
	}

	recipe, err := e.Recipes.Resolve(task.RecipeRef)
	if err != nil {
		return Result{RecipeRef: task.RecipeRef, Status: StatusError, Output: fmt.Sprintf("unknown recipe %q: %v", task.RecipeRef, err)}
	}

	engine, err := e.NewEngine(recipe)
	if err != nil {
		return Result{RecipeRef: task.RecipeRef, Status: StatusError, Output: fmt.Sprintf("failed to start sub-agent for recipe %q: %v", recipe.ID, err)}
	}

	taskCtx := ctx
	if task.Timeout > 0 {
		var cancel context.CancelFunc
		taskCtx, cancel = context.WithTimeout(ctx, task.Timeout)
		defer cancel()
	}

	prompt := convo.NewMessage(convo.RoleUser, &convo.Text{Value: renderTask(recipe.Instructions, task.Inputs)})
	stream := engine.Reply(taskCtx, convo.New(prompt))

	var messages []*convo.Message
	for ev := range stream.Events() {
		if m, ok := ev.(reply.MessageEvent); ok {
			messages = append(messages, m.Message)
		}
	}

	switch {
	case taskCtx.Err() == context.DeadlineExceeded:
		return Result{RecipeRef: task.RecipeRef, Status: StatusTimeout, Output: "sub-agent task exceeded its timeout", Messages: messages}
	case ctx.Err() != nil:
		return Result{RecipeRef: task.RecipeRef, Status: StatusCancelled, Output: "sub-agent task cancelled", Messages: messages}
	default:
		return Result{RecipeRef: task.RecipeRef, Status: StatusOK, Output: lastAssistantText(messages), Messages: messages}
	}
}

// renderTask combines a recipe's standing instructions with a task's
// per-call inputs into the sub-agent's opening user message.
func renderTask(instructions string, inputs map[string]string) string {
	if len(inputs) == 0 {
		return instructions
	}
	keys := make([]string, 0, len(inputs))
	for k := range inputs {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var b strings.Builder
	b.WriteString(instructions)
	b.WriteString("\n\nInputs:\n")
	for _, k := range keys {
		fmt.Fprintf(&b, "- %s: %s\n", k, inputs[k])
	}
	return b.String()
}

func lastAssistantText(messages []*convo.Message) string {
	for i := len(messages) - 1; i >= 0; i-- {
		if messages[i].Role != convo.RoleAssistant {
			continue
		}
		if t := messages[i].Text(); t != "" {
			return t
		}
	}
	return ""
}
