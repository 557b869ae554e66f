// Package providertest provides a scriptable provider.Provider test
// double used across the engine's test suites, matching the teacher's
// mocks.go convention (pkg/memory/mocks.go) of a small hand-written fake
// rather than a generated mock.
package providertest

import (
	"context"
	"iter"
	"sync"
	"sync/atomic"

	"github.com/agentrt/goagent/pkg/convo"
	"github.com/agentrt/goagent/pkg/provider"
)

// Turn is one scripted response the Mock will return for the Nth call.
type Turn struct {
	Message *convo.Message
	Usage   *provider.Usage
	Err     error

	// Chunks, if set, overrides Message/Usage and makes Stream yield
	// multiple partial chunks before the final one.
	Chunks []*provider.Chunk
}

// Mock is a scriptable provider.Provider.
type Mock struct {
	mu       sync.Mutex
	turns    []Turn
	calls    int32
	meta     provider.Metadata
	lead     string
	worker   string
	hasLead  bool
}

// New builds a Mock that returns turns in order, one per call to
// Complete/Stream. Calling past the end of turns repeats the last turn.
func New(turns ...Turn) *Mock {
	return &Mock{
		turns: turns,
		meta: provider.Metadata{
			Name:         "mock",
			DisplayName:  "Mock Provider",
			DefaultModel: "mock-1",
			Streaming:    true,
		},
	}
}

// WithLeadWorker configures the mock to implement provider.LeadWorker.
func (m *Mock) WithLeadWorker(lead, worker string) *Mock {
	m.lead, m.worker, m.hasLead = lead, worker, true
	return m
}

func (m *Mock) Metadata() provider.Metadata { return m.meta }

// CallCount returns how many times Complete or Stream has been invoked.
func (m *Mock) CallCount() int { return int(atomic.LoadInt32(&m.calls)) }

func (m *Mock) next() Turn {
	m.mu.Lock()
	defer m.mu.Unlock()
	idx := int(atomic.AddInt32(&m.calls, 1)) - 1
	if len(m.turns) == 0 {
		return Turn{Message: convo.NewMessage(convo.RoleAssistant, &convo.Text{Value: ""})}
	}
	if idx >= len(m.turns) {
		idx = len(m.turns) - 1
	}
	return m.turns[idx]
}

func (m *Mock) Complete(ctx context.Context, req *provider.Request) (*convo.Message, *provider.Usage, error) {
	t := m.next()
	if t.Err != nil {
		return nil, nil, t.Err
	}
	if len(t.Chunks) > 0 {
		last := t.Chunks[len(t.Chunks)-1]
		return last.Message, last.Usage, nil
	}
	return t.Message, t.Usage, nil
}

func (m *Mock) Stream(ctx context.Context, req *provider.Request) iter.Seq2[*provider.Chunk, error] {
	return func(yield func(*provider.Chunk, error) bool) {
		t := m.next()
		if t.Err != nil {
			yield(nil, t.Err)
			return
		}
		if len(t.Chunks) > 0 {
			for _, c := range t.Chunks {
				if !yield(c, nil) {
					return
				}
			}
			return
		}
		yield(&provider.Chunk{Message: t.Message, Usage: t.Usage}, nil)
	}
}

func (m *Mock) FetchSupportedModels(ctx context.Context) ([]string, error) {
	return m.meta.KnownModels, nil
}

func (m *Mock) AsLeadWorker() (string, string, bool) {
	return m.lead, m.worker, m.hasLead
}

var (
	_ provider.Provider   = (*Mock)(nil)
	_ provider.LeadWorker = (*Mock)(nil)
)
