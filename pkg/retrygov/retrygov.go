// Package retrygov implements the retry governor (spec.md §4.7): once a
// reply loop exits without producing further tool calls, it runs a list
// of shell-command success checks; if any fails, it rewinds the
// conversation to its initial user messages and restarts, up to a
// configured attempt limit.
package retrygov

import (
	"context"
	"errors"
	"fmt"
	"os/exec"

	"github.com/agentrt/goagent/pkg/convo"
)

// OnFailure selects what the governor does when success checks fail and
// attempts remain.
type OnFailure string

const (
	OnFailureRetry    OnFailure = "retry"
	OnFailureContinue OnFailure = "continue"
)

// Check is one shell command whose exit code gates completion — a zero
// exit means the check passed, grounded on the teacher's os/exec-based
// command running (dev/benchmarks.go, dev/git_manager.go).
type Check struct {
	Name    string
	Command string
	Args    []string
}

// Run executes the check and reports whether it exited zero.
func (c Check) Run(ctx context.Context) (bool, error) {
	cmd := exec.CommandContext(ctx, c.Command, c.Args...)
	err := cmd.Run()
	if err == nil {
		return true, nil
	}
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		return false, nil
	}
	return false, fmt.Errorf("run check %q: %w", c.Name, err)
}

// Governor runs success checks and rewinds-and-restarts on failure.
type Governor struct {
	MaxAttempts   int
	OnFailure     OnFailure
	SuccessChecks []Check

	// Reset is called before each restart — the caller wires this to
	// the active tool-repetition monitor's Reset (spec.md §4.7: "reset
	// the tool monitor").
	Reset func()
}

// Outcome is the governor's decision after one pass of success checks.
type Outcome struct {
	// Satisfied is true once every success check passed.
	Satisfied bool

	// ShouldRestart is true when checks failed and another attempt
	// should run; the caller rewinds history to RestartMessages and
	// re-enters the reply loop.
	ShouldRestart bool

	// RestartMessages is the conversation to restart from, set only
	// when ShouldRestart is true.
	RestartMessages []*convo.Message

	// FailedChecks names every check that did not pass, in order.
	FailedChecks []string

	// Exhausted is true when MaxAttempts was reached without success —
	// the caller surfaces a failure notice but does not raise an error.
	Exhausted bool
}

// Evaluate runs every configured success check against the current
// conversation state, having just completed attempt (1-indexed).
func (g *Governor) Evaluate(ctx context.Context, attempt int, conv *convo.Conversation) (Outcome, error) {
	var failed []string
	for _, check := range g.SuccessChecks {
		ok, err := check.Run(ctx)
		if err != nil {
			return Outcome{}, fmt.Errorf("success check %q: %w", check.Name, err)
		}
		if !ok {
			failed = append(failed, check.Name)
		}
	}

	if len(failed) == 0 {
		return Outcome{Satisfied: true}, nil
	}

	maxAttempts := g.MaxAttempts
	if maxAttempts <= 0 {
		maxAttempts = 1
	}
	if attempt >= maxAttempts {
		return Outcome{FailedChecks: failed, Exhausted: true}, nil
	}

	if g.OnFailure == OnFailureContinue {
		return Outcome{FailedChecks: failed}, nil
	}

	if g.Reset != nil {
		g.Reset()
	}

	return Outcome{
		ShouldRestart:   true,
		RestartMessages: conv.InitialUserMessages(),
		FailedChecks:    failed,
	}, nil
}
