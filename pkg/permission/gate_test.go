package permission

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agentrt/goagent/pkg/convo"
)

type mapPolicy map[string]Level

func (m mapPolicy) Get(name string) (Level, bool) {
	lvl, ok := m[name]
	return lvl, ok
}

func TestGate_ChatModeSkipsEverything(t *testing.T) {
	g := &Gate{}
	res := g.Classify(context.Background(), []Request{{RequestID: "1", ToolName: "developer__shell"}}, ModeChat)

	assert.Empty(t, res.Approved)
	assert.Empty(t, res.NeedsApproval)
	assert.Empty(t, res.Denied)
	require.Len(t, res.Skipped, 1)
}

func TestGate_AutoApprovesEverything(t *testing.T) {
	g := &Gate{}
	res := g.Classify(context.Background(), []Request{{RequestID: "1", ToolName: "x"}}, ModeAuto)

	require.Len(t, res.Approved, 1)
	assert.Empty(t, res.NeedsApproval)
}

func TestGate_ApproveModeHonorsPolicyOverrides(t *testing.T) {
	g := &Gate{Policy: mapPolicy{
		"always": LevelAlwaysAllow,
		"never":  LevelNeverAllow,
	}}
	res := g.Classify(context.Background(), []Request{
		{RequestID: "1", ToolName: "always"},
		{RequestID: "2", ToolName: "never"},
		{RequestID: "3", ToolName: "unlisted"},
	}, ModeApprove)

	require.Len(t, res.Approved, 1)
	assert.Equal(t, "always", res.Approved[0].ToolName)
	require.Len(t, res.Denied, 1)
	assert.Equal(t, "never", res.Denied[0].ToolName)
	require.Len(t, res.NeedsApproval, 1)
	assert.Equal(t, "unlisted", res.NeedsApproval[0].ToolName)
}

func TestGate_NeverAllowAlwaysDenied(t *testing.T) {
	for _, mode := range []Mode{ModeAuto, ModeApprove, ModeSmartApprove} {
		g := &Gate{Policy: mapPolicy{"danger": LevelNeverAllow}}
		res := g.Classify(context.Background(), []Request{{RequestID: "1", ToolName: "danger"}}, mode)
		require.Lenf(t, res.Denied, 1, "mode %s", mode)
	}
}

func TestGate_SmartApproveUsesAnnotationsAndNameList(t *testing.T) {
	g := &Gate{ReadonlyToolNames: map[string]bool{"fs__list": true}}
	res := g.Classify(context.Background(), []Request{
		{RequestID: "1", ToolName: "fs__list"},
		{RequestID: "2", ToolName: "fs__read", Annotations: convo.ToolAnnotations{ReadOnly: true}},
		{RequestID: "3", ToolName: "fs__delete"},
	}, ModeSmartApprove)

	require.Len(t, res.Approved, 2)
	require.Len(t, res.NeedsApproval, 1)
	assert.Equal(t, "fs__delete", res.NeedsApproval[0].ToolName)
}

type stubClassifier struct {
	answer bool
	err    error
}

func (c stubClassifier) IsReadOnly(ctx context.Context, call *convo.ToolCall) (bool, error) {
	return c.answer, c.err
}

func TestGate_SmartApproveFallsBackToClassifier(t *testing.T) {
	g := &Gate{Classifier: stubClassifier{answer: true}}
	res := g.Classify(context.Background(), []Request{
		{RequestID: "1", ToolName: "ambiguous", Call: &convo.ToolCall{Name: "ambiguous"}},
	}, ModeSmartApprove)
	require.Len(t, res.Approved, 1)
}

func TestGate_SmartApproveClassifierFailureDefaultsToNeedsApproval(t *testing.T) {
	g := &Gate{Classifier: stubClassifier{answer: true, err: errors.New("provider down")}}
	res := g.Classify(context.Background(), []Request{
		{RequestID: "1", ToolName: "ambiguous", Call: &convo.ToolCall{Name: "ambiguous"}},
	}, ModeSmartApprove)
	require.Len(t, res.NeedsApproval, 1)
}

func TestGate_ExtensionManagementTrackedByRequestID(t *testing.T) {
	g := &Gate{ExtensionManagementTool: "platform_manage_extensions"}
	res := g.Classify(context.Background(), []Request{
		{RequestID: "abc", ToolName: "platform_manage_extensions"},
	}, ModeAuto)

	require.Len(t, res.InstallRequestIDs, 1)
	assert.Equal(t, "abc", res.InstallRequestIDs[0])
}
