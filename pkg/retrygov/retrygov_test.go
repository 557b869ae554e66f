package retrygov

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agentrt/goagent/pkg/convo"
)

func passingCheck(name string) Check  { return Check{Name: name, Command: "true"} }
func failingCheck(name string) Check  { return Check{Name: name, Command: "false"} }
func conversation() *convo.Conversation {
	return convo.New(
		convo.NewMessage(convo.RoleUser, &convo.Text{Value: "do the task"}),
		convo.NewMessage(convo.RoleAssistant, &convo.Text{Value: "done"}),
	)
}

func TestGovernor_SatisfiedWhenAllChecksPass(t *testing.T) {
	g := &Governor{MaxAttempts: 3, SuccessChecks: []Check{passingCheck("a"), passingCheck("b")}}
	out, err := g.Evaluate(t.Context(), 1, conversation())
	require.NoError(t, err)
	assert.True(t, out.Satisfied)
	assert.False(t, out.ShouldRestart)
}

func TestGovernor_RestartsAndResetsOnFailureWithAttemptsRemaining(t *testing.T) {
	resetCalled := false
	g := &Governor{
		MaxAttempts:   3,
		SuccessChecks: []Check{passingCheck("a"), failingCheck("b")},
		Reset:         func() { resetCalled = true },
	}
	out, err := g.Evaluate(t.Context(), 1, conversation())
	require.NoError(t, err)
	assert.False(t, out.Satisfied)
	assert.True(t, out.ShouldRestart)
	assert.True(t, resetCalled)
	assert.Equal(t, []string{"b"}, out.FailedChecks)
	require.Len(t, out.RestartMessages, 1)
	assert.Equal(t, "do the task", out.RestartMessages[0].Text())
}

func TestGovernor_ExhaustedAtMaxAttempts(t *testing.T) {
	g := &Governor{MaxAttempts: 2, SuccessChecks: []Check{failingCheck("a")}}
	out, err := g.Evaluate(t.Context(), 2, conversation())
	require.NoError(t, err)
	assert.False(t, out.Satisfied)
	assert.False(t, out.ShouldRestart)
	assert.True(t, out.Exhausted)
}

func TestGovernor_OnFailureContinueDoesNotRestart(t *testing.T) {
	g := &Governor{MaxAttempts: 3, OnFailure: OnFailureContinue, SuccessChecks: []Check{failingCheck("a")}}
	out, err := g.Evaluate(t.Context(), 1, conversation())
	require.NoError(t, err)
	assert.False(t, out.Satisfied)
	assert.False(t, out.ShouldRestart)
	assert.False(t, out.Exhausted)
}

func TestGovernor_NoChecksAlwaysSatisfied(t *testing.T) {
	g := &Governor{}
	out, err := g.Evaluate(t.Context(), 1, conversation())
	require.NoError(t, err)
	assert.True(t, out.Satisfied)
}
