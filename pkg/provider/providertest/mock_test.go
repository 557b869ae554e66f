package providertest

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agentrt/goagent/pkg/convo"
	"github.com/agentrt/goagent/pkg/provider"
)

func TestMock_CompleteReturnsScriptedTurns(t *testing.T) {
	m := New(
		Turn{Message: convo.NewMessage(convo.RoleAssistant, &convo.Text{Value: "one"})},
		Turn{Message: convo.NewMessage(convo.RoleAssistant, &convo.Text{Value: "two"})},
	)

	msg1, _, err := m.Complete(context.Background(), &provider.Request{})
	require.NoError(t, err)
	assert.Equal(t, "one", msg1.Text())

	msg2, _, err := m.Complete(context.Background(), &provider.Request{})
	require.NoError(t, err)
	assert.Equal(t, "two", msg2.Text())

	// Repeats the last turn past the end of the script.
	msg3, _, err := m.Complete(context.Background(), &provider.Request{})
	require.NoError(t, err)
	assert.Equal(t, "two", msg3.Text())

	assert.Equal(t, 3, m.CallCount())
}

func TestMock_StreamYieldsChunks(t *testing.T) {
	m := New(Turn{Chunks: []*provider.Chunk{
		{Message: convo.NewMessage(convo.RoleAssistant, &convo.Text{Value: "par"})},
		{Message: convo.NewMessage(convo.RoleAssistant, &convo.Text{Value: "partial"})},
	}})

	var texts []string
	for chunk, err := range m.Stream(context.Background(), &provider.Request{}) {
		require.NoError(t, err)
		texts = append(texts, chunk.Message.Text())
	}
	assert.Equal(t, []string{"par", "partial"}, texts)
}

func TestMock_LeadWorker(t *testing.T) {
	m := New().WithLeadWorker("lead-1", "worker-1")
	lead, worker, ok := m.AsLeadWorker()
	assert.True(t, ok)
	assert.Equal(t, "lead-1", lead)
	assert.Equal(t, "worker-1", worker)
}
