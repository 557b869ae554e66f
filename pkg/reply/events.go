// Package reply implements the reply engine (spec.md §4.8): the turn
// loop that drives a Provider, dispatches tool calls through the
// permission gate and tool dispatcher, and emits a totally-ordered
// stream of AgentEvents.
package reply

import "github.com/agentrt/goagent/pkg/convo"

// AgentEvent is the closed set of events the reply engine yields
// (spec.md §4.8 "Events"): Message, McpNotification, ModelChange,
// HistoryReplaced.
type AgentEvent interface {
	agentEvent()
}

// MessageEvent carries one complete message — an assistant response, a
// user-role tool-response aggregate, or a synthesized placeholder.
type MessageEvent struct {
	Message *convo.Message
}

func (MessageEvent) agentEvent() {}

// McpNotificationEvent is one incremental notification from an
// in-flight tool call, tagged with the request it belongs to.
type McpNotificationEvent struct {
	RequestID string
	Payload   any
}

func (McpNotificationEvent) agentEvent() {}

// ModelMode classifies which half of a lead/worker pair produced a
// turn's response.
type ModelMode string

const (
	ModelLead    ModelMode = "lead"
	ModelWorker  ModelMode = "worker"
	ModelUnknown ModelMode = "unknown"
)

// ModelChangeEvent is emitted before a turn's assistant Message whenever
// the active model differs from the previous turn's (spec.md §4.8 step 3,
// §5 ordering guarantee).
type ModelChangeEvent struct {
	Model string
	Mode  ModelMode
}

func (ModelChangeEvent) agentEvent() {}

// HistoryReplacedEvent is emitted immediately after a SummarizationNotice
// message, carrying the post-compaction message list (spec.md §4.6).
type HistoryReplacedEvent struct {
	Messages []*convo.Message
}

func (HistoryReplacedEvent) agentEvent() {}
