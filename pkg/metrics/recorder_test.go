package metrics

import (
	"context"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agentrt/goagent/internal/config"
	"github.com/agentrt/goagent/pkg/provider"
)

func TestRecorder_RecordUsageAccumulatesAndPersists(t *testing.T) {
	store, err := config.NewSessionStore(t.TempDir())
	require.NoError(t, err)

	rec, err := NewRecorder(New(Config{}), store, "s1", "/work")
	require.NoError(t, err)

	rec.RecordUsage(context.Background(), &provider.Usage{InputTokens: 10, OutputTokens: 5, TotalTokens: 15, Model: "gpt-4"})
	rec.RecordUsage(context.Background(), &provider.Usage{InputTokens: 3, OutputTokens: 2, TotalTokens: 5, Model: "gpt-4"})

	m := rec.Metrics()
	assert.Equal(t, 13, m.InputTokens)
	assert.Equal(t, 7, m.OutputTokens)
	assert.Equal(t, 20, m.TotalTokens)
	assert.Equal(t, 2, m.MessageCount)

	loaded, err := store.Load("s1")
	require.NoError(t, err)
	assert.Equal(t, 20, loaded.Metrics.TotalTokens)
}

func TestRecorder_RecordUsageIgnoresNilUsage(t *testing.T) {
	rec, err := NewRecorder(nil, nil, "s1", "")
	require.NoError(t, err)
	rec.RecordUsage(context.Background(), nil)
	assert.Equal(t, 0, rec.Metrics().TotalTokens)
}

func TestRecorder_LoadsExistingMetricsOnStartup(t *testing.T) {
	store, err := config.NewSessionStore(t.TempDir())
	require.NoError(t, err)
	require.NoError(t, store.Save("s1", &config.SessionRecord{
		Metrics: config.SessionMetrics{TotalTokens: 100},
	}))

	rec, err := NewRecorder(nil, store, "s1", "")
	require.NoError(t, err)
	assert.Equal(t, 100, rec.Metrics().TotalTokens)
}

func TestRecorder_SetTodoPersists(t *testing.T) {
	store, err := config.NewSessionStore(t.TempDir())
	require.NoError(t, err)
	rec, err := NewRecorder(nil, store, "s1", "")
	require.NoError(t, err)

	rec.SetTodo("- [ ] write tests")
	assert.Equal(t, "- [ ] write tests", rec.Todo())

	loaded, err := store.Load("s1")
	require.NoError(t, err)
	assert.Equal(t, "- [ ] write tests", loaded.TodoContent)
}

func TestRecorder_ForwardsToolAndSessionMetricsToCollector(t *testing.T) {
	collector := New(Config{Namespace: "fwd"})
	rec, err := NewRecorder(collector, nil, "s1", "")
	require.NoError(t, err)

	rec.SessionStarted()
	rec.RecordToolCall("fs__read_file", 5*time.Millisecond, false)
	rec.RecordCompaction("threshold")
	rec.SessionEnded()

	req := httptest.NewRequest("GET", "/metrics", nil)
	resp := httptest.NewRecorder()
	collector.Handler().ServeHTTP(resp, req)
	body := resp.Body.String()
	assert.Contains(t, body, `fwd_tool_calls_total{tool_name="fs__read_file"} 1`)
	assert.Contains(t, body, `fwd_compact_compactions_total{reason="threshold"} 1`)
	assert.Contains(t, body, "fwd_session_active 0")
}
