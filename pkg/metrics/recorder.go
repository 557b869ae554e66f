package metrics

import (
	"context"
	"sync"
	"time"

	"github.com/agentrt/goagent/internal/config"
	"github.com/agentrt/goagent/pkg/provider"
)

// Recorder implements reply.MetricsSink: it accumulates per-turn usage
// for one session and, on every call, persists the running totals (plus
// the session's TODO scratchpad) to a SessionStore.
//
// A Recorder is safe only for the single session it was built for — the
// reply engine calls RecordUsage from one turn loop at a time, but the
// mutex guards concurrent reads from the Todo/Metrics accessors.
type Recorder struct {
	Collector *Collector
	Store     *config.SessionStore
	SessionID string
	WorkDir   string

	mu      sync.Mutex
	metrics config.SessionMetrics
	todo    string
}

// NewRecorder loads any metrics already on disk for sessionID so counts
// survive process restarts, then returns a Recorder that keeps
// accumulating from there.
func NewRecorder(collector *Collector, store *config.SessionStore, sessionID, workDir string) (*Recorder, error) {
	r := &Recorder{
		Collector: collector,
		Store:     store,
		SessionID: sessionID,
		WorkDir:   workDir,
	}
	if store != nil {
		record, err := store.Load(sessionID)
		if err != nil {
			return nil, err
		}
		r.metrics = record.Metrics
		r.todo = record.TodoContent
	}
	r.metrics.WorkingDir = workDir
	return r, nil
}

// RecordUsage satisfies reply.MetricsSink.
func (r *Recorder) RecordUsage(ctx context.Context, usage *provider.Usage) {
	if r == nil || usage == nil {
		return
	}

	r.mu.Lock()
	r.metrics.InputTokens += usage.InputTokens
	r.metrics.OutputTokens += usage.OutputTokens
	r.metrics.TotalTokens += usage.TotalTokens
	r.metrics.MessageCount++
	snapshot := r.metrics
	todo := r.todo
	r.mu.Unlock()

	r.Collector.RecordTurn(usage.Model, usage.InputTokens, usage.OutputTokens)
	r.persist(snapshot, todo)
}

// RecordToolCall satisfies reply.ToolMetricsSink by forwarding to the
// shared Collector; session-level tool counts aren't split out because
// C10's session record only tracks token usage (spec.md §6.3).
func (r *Recorder) RecordToolCall(toolName string, duration time.Duration, errored bool) {
	if r == nil {
		return
	}
	r.Collector.RecordToolCall(toolName, duration, errored)
}

// RecordCompaction satisfies reply.ToolMetricsSink.
func (r *Recorder) RecordCompaction(reason string) {
	if r == nil {
		return
	}
	r.Collector.RecordCompaction(reason)
}

// SessionStarted and SessionEnded satisfy reply.SessionMetricsSink,
// forwarding to the sessions_active gauge.
func (r *Recorder) SessionStarted() {
	if r == nil {
		return
	}
	r.Collector.SessionStarted()
}

func (r *Recorder) SessionEnded() {
	if r == nil {
		return
	}
	r.Collector.SessionEnded()
}

// Todo returns the session's current scratchpad content.
func (r *Recorder) Todo() string {
	if r == nil {
		return ""
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.todo
}

// SetTodo updates the session's scratchpad content and persists it
// alongside the latest metrics snapshot (spec.md §4.8 step 3).
func (r *Recorder) SetTodo(todo string) {
	if r == nil {
		return
	}
	r.mu.Lock()
	r.todo = todo
	snapshot := r.metrics
	r.mu.Unlock()
	r.persist(snapshot, todo)
}

// Metrics returns a snapshot of the session's accumulated token counts.
func (r *Recorder) Metrics() config.SessionMetrics {
	if r == nil {
		return config.SessionMetrics{}
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.metrics
}

func (r *Recorder) persist(metrics config.SessionMetrics, todo string) {
	if r.Store == nil {
		return
	}
	record, err := r.Store.Load(r.SessionID)
	if err != nil {
		record = &config.SessionRecord{}
	}
	record.Metrics = metrics
	record.TodoContent = todo
	_ = r.Store.Save(r.SessionID, record)
}
