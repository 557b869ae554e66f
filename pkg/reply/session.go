package reply

import (
	"context"
	"sync"

	"github.com/agentrt/goagent/pkg/convo"
)

// AllowMode is the caller's answer to a needs_approval confirmation
// request (spec.md §6.4 "handle_confirmation(request_id, {allow:
// Once|Session|Never})").
type AllowMode string

const (
	AllowOnce    AllowMode = "once"
	AllowSession AllowMode = "session"
	AllowNever   AllowMode = "never"
)

// Confirmation is the caller's response to a needs_approval request.
type Confirmation struct {
	Allow AllowMode
}

// Stream is the handle a caller holds for one in-flight reply: an event
// channel to consume, and the two callbacks the host uses to unblock a
// suspended turn (spec.md §6.4).
type Stream struct {
	events chan AgentEvent
	cancel context.CancelFunc

	mu            sync.Mutex
	confirmations map[string]chan Confirmation
	toolResults   map[string]chan *convo.ToolResult
}

func newStream(cancel context.CancelFunc) *Stream {
	return &Stream{
		events:        make(chan AgentEvent, eventChannelCapacity),
		cancel:        cancel,
		confirmations: make(map[string]chan Confirmation),
		toolResults:   make(map[string]chan *convo.ToolResult),
	}
}

// eventChannelCapacity is the reply event channel's bound (spec.md §5
// "the reply event channel has bounded capacity (≥32)").
const eventChannelCapacity = 32

// Events returns the channel of AgentEvents the reply loop produces. It
// is closed when the reply ends, for any reason.
func (s *Stream) Events() <-chan AgentEvent { return s.events }

// Cancel fires the cancellation token (spec.md §5 "Cancellation").
func (s *Stream) Cancel() { s.cancel() }

// HandleConfirmation answers a pending needs_approval request. It
// reports false if requestID has no pending confirmation (already
// answered, or never asked).
func (s *Stream) HandleConfirmation(requestID string, c Confirmation) bool {
	s.mu.Lock()
	ch, ok := s.confirmations[requestID]
	if ok {
		delete(s.confirmations, requestID)
	}
	s.mu.Unlock()
	if !ok {
		return false
	}
	ch <- c
	return true
}

// HandleToolResult supplies the result of a frontend tool the caller
// executed on the engine's behalf. It reports false if requestID has no
// pending frontend call.
func (s *Stream) HandleToolResult(requestID string, result *convo.ToolResult) bool {
	s.mu.Lock()
	ch, ok := s.toolResults[requestID]
	if ok {
		delete(s.toolResults, requestID)
	}
	s.mu.Unlock()
	if !ok {
		return false
	}
	ch <- result
	return true
}

func (s *Stream) awaitConfirmation(requestID string) chan Confirmation {
	ch := make(chan Confirmation, 1)
	s.mu.Lock()
	s.confirmations[requestID] = ch
	s.mu.Unlock()
	return ch
}

func (s *Stream) awaitToolResult(requestID string) chan *convo.ToolResult {
	ch := make(chan *convo.ToolResult, 1)
	s.mu.Lock()
	s.toolResults[requestID] = ch
	s.mu.Unlock()
	return ch
}

func (s *Stream) emit(ctx context.Context, ev AgentEvent) bool {
	select {
	case s.events <- ev:
		return true
	case <-ctx.Done():
		return false
	}
}
