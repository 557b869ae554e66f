package compact

import (
	"context"
	"errors"
	"fmt"

	"github.com/agentrt/goagent/pkg/convo"
	"github.com/agentrt/goagent/pkg/provider"
)

// DefaultThreshold is the fraction of the context limit that triggers
// compaction when a Compactor doesn't set its own (spec.md §4.6: "above
// threshold (default 0.80)").
const DefaultThreshold = 0.80

// defaultKeepRecentTurns is how many trailing user/assistant turns
// Compact preserves verbatim when no override is configured.
const defaultKeepRecentTurns = 2

const defaultSummarySystemPrompt = "Summarize the conversation so far in a few concise paragraphs, preserving any facts, decisions, and open tasks a continuation would need. Do not include commentary about the summarization itself."

// ErrNothingToCompact is returned when the conversation has too few
// turns to summarize anything ahead of the kept recent window.
var ErrNothingToCompact = errors.New("compact: conversation has no older turns to summarize")

// Result is the outcome of a successful compaction.
type Result struct {
	Conversation *convo.Conversation
	Usage        *provider.Usage
	Explanation  string
}

// Compactor estimates and, when needed, performs compaction.
type Compactor struct {
	Threshold       float64
	ContextLimit    int
	KeepRecentTurns int
	Estimator       Estimator

	// Summarizer is consulted to produce the summary message. It may be
	// a dedicated "summariser" provider distinct from the main
	// completion provider (spec.md §4.6's open question, resolved in
	// SPEC_FULL.md: configurable, defaulting to the main provider).
	Summarizer provider.Provider

	SystemPrompt string
}

func (c *Compactor) threshold() float64 {
	if c.Threshold > 0 {
		return c.Threshold
	}
	return DefaultThreshold
}

// ThresholdMessage is the fixed, human-readable explanation the reply
// engine attaches to its SummarizationRequested event.
func (c *Compactor) ThresholdMessage() string {
	return fmt.Sprintf("Exceeded auto-compact threshold of %.0f%%.", c.threshold()*100)
}

// ShouldCompact reports whether conv's estimated token usage exceeds the
// configured threshold of ContextLimit.
func (c *Compactor) ShouldCompact(conv *convo.Conversation) bool {
	if c.ContextLimit <= 0 || c.Estimator == nil {
		return false
	}
	ratio := float64(c.Estimator.Estimate(conv.Messages)) / float64(c.ContextLimit)
	return ratio > c.threshold()
}

// Compact summarises every message before the trailing KeepRecentTurns
// user/assistant turns into a single SummarizationNotice message,
// preserving any tool-request/response pair that would otherwise be
// split across the cut.
func (c *Compactor) Compact(ctx context.Context, conv *convo.Conversation) (*Result, error) {
	if c.Summarizer == nil {
		return nil, fmt.Errorf("compact: no summariser provider configured")
	}

	keep := c.KeepRecentTurns
	if keep <= 0 {
		keep = defaultKeepRecentTurns
	}

	cut := splitIndex(conv.Messages, keep)
	if cut <= 0 {
		return nil, ErrNothingToCompact
	}

	older := conv.Messages[:cut]
	recent := conv.Messages[cut:]

	sysPrompt := c.SystemPrompt
	if sysPrompt == "" {
		sysPrompt = defaultSummarySystemPrompt
	}

	msg, usage, err := c.Summarizer.Complete(ctx, &provider.Request{System: sysPrompt, Messages: older})
	if err != nil {
		return nil, fmt.Errorf("summarisation call: %w", err)
	}

	explanation := msg.Text()
	if explanation == "" {
		explanation = "Conversation summarized."
	}

	notice := convo.NewMessage(convo.RoleAssistant, &convo.SummarizationNotice{Explanation: explanation})
	newMessages := append([]*convo.Message{notice}, recent...)

	return &Result{
		Conversation: convo.New(newMessages...),
		Usage:        usage,
		Explanation:  explanation,
	}, nil
}

// splitIndex returns the index of the first message to keep verbatim:
// the start of the keepRecentTurns-th-from-last user turn, pulled back
// by one message if that would otherwise separate a tool-request from
// its response.
func splitIndex(messages []*convo.Message, keepRecentTurns int) int {
	var userIdx []int
	for i, m := range messages {
		if m.Role == convo.RoleUser {
			userIdx = append(userIdx, i)
		}
	}
	if len(userIdx) <= keepRecentTurns {
		return 0
	}

	cut := userIdx[len(userIdx)-keepRecentTurns]
	if cut > 0 && len(messages[cut].ToolResponses()) > 0 {
		cut--
	}
	return cut
}
