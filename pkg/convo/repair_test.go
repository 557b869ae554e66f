package convo

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func req(id, name string) *ToolRequest {
	return &ToolRequest{RequestID: id, Call: &ToolCall{Name: name, Arguments: map[string]any{}}}
}

func resp(id string) *ToolResponse {
	return &ToolResponse{RequestID: id, Result: OkResult(ResultItem{Type: ResultText, Text: "ok"})}
}

func TestRepair_WellFormedIsIdentity(t *testing.T) {
	c := New(
		NewMessage(RoleUser, &Text{Value: "hi"}),
		NewMessage(RoleAssistant, req("1", "shell")),
		NewMessage(RoleUser, resp("1")),
		NewMessage(RoleAssistant, &Text{Value: "done"}),
	)

	repaired, issues := Repair(c)
	assert.Empty(t, issues)
	require.Len(t, repaired.Messages, 4)
	assert.Equal(t, "hi", repaired.Messages[0].Text())
	assert.Equal(t, "done", repaired.Messages[3].Text())
}

func TestRepair_SynthesizesOrphanedRequest(t *testing.T) {
	c := New(
		NewMessage(RoleUser, &Text{Value: "hi"}),
		NewMessage(RoleAssistant, req("1", "shell")),
	)

	repaired, issues := Repair(c)
	require.Len(t, repaired.Messages, 3)
	last := repaired.Messages[2]
	assert.Equal(t, RoleUser, last.Role)
	require.Len(t, last.ToolResponses(), 1)
	assert.Equal(t, "1", last.ToolResponses()[0].RequestID)
	assert.True(t, last.ToolResponses()[0].Result.IsErr())

	require.Len(t, issues, 1)
	assert.Equal(t, ActionSynthesizedResponse, issues[0].Action)
}

func TestRepair_DropsOrphanedResponse(t *testing.T) {
	c := New(
		NewMessage(RoleUser, &Text{Value: "hi"}),
		NewMessage(RoleAssistant, &Text{Value: "hello"}),
		NewMessage(RoleUser, resp("ghost")),
	)

	repaired, issues := Repair(c)
	require.Len(t, repaired.Messages, 3)
	assert.Empty(t, repaired.Messages[2].ToolResponses())

	require.Len(t, issues, 1)
	assert.Equal(t, ActionDroppedOrphan, issues[0].Action)
}

func TestRepair_MergesConsecutiveSameRole(t *testing.T) {
	c := New(
		NewMessage(RoleUser, &Text{Value: "a"}),
		NewMessage(RoleUser, &Text{Value: "b"}),
		NewMessage(RoleAssistant, &Text{Value: "c"}),
	)

	repaired, issues := Repair(c)
	require.Len(t, repaired.Messages, 2)
	assert.Equal(t, "ab", repaired.Messages[0].Text())

	require.Len(t, issues, 1)
	assert.Equal(t, ActionMergedRoles, issues[0].Action)
}

func TestRepair_InsertsLeadingUser(t *testing.T) {
	c := New(NewMessage(RoleAssistant, &Text{Value: "hello"}))

	repaired, issues := Repair(c)
	require.Len(t, repaired.Messages, 2)
	assert.Equal(t, RoleUser, repaired.Messages[0].Role)
	assert.Equal(t, RoleAssistant, repaired.Messages[1].Role)

	require.Len(t, issues, 1)
	assert.Equal(t, ActionSynthesizedLeadUser, issues[0].Action)
}

func TestRepair_Idempotent(t *testing.T) {
	c := New(
		NewMessage(RoleAssistant, &Text{Value: "stray"}),
		NewMessage(RoleUser, &Text{Value: "a"}),
		NewMessage(RoleUser, &Text{Value: "b"}),
		NewMessage(RoleAssistant, req("1", "shell")),
		NewMessage(RoleUser, resp("ghost")),
	)

	once, _ := Repair(c)
	twice, issues2 := Repair(once)

	assert.Empty(t, issues2, "repairing an already-repaired conversation should be a no-op")
	require.Equal(t, len(once.Messages), len(twice.Messages))
	for i := range once.Messages {
		assert.Equal(t, once.Messages[i].Role, twice.Messages[i].Role)
		assert.Equal(t, once.Messages[i].Text(), twice.Messages[i].Text())
	}
}

func TestRepair_EmptyConversation(t *testing.T) {
	repaired, issues := Repair(New())
	assert.Empty(t, repaired.Messages)
	assert.Empty(t, issues)
}
