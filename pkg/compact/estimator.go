// Package compact implements the auto-compactor (spec.md §4.6): it
// estimates a conversation's token footprint, and once that crosses a
// configured fraction of the model's context window, summarises the
// older portion of the conversation down to a single message.
package compact

import (
	"fmt"
	"sync"

	"github.com/pkoukk/tiktoken-go"

	"github.com/agentrt/goagent/pkg/convo"
)

// Estimator counts the tokens a message history would occupy. Grounded
// on the teacher's pkg/utils.TokenCounter.
type Estimator interface {
	Estimate(messages []*convo.Message) int
}

// tokensPerMessage approximates the per-message role/delimiter overhead
// OpenAI's own counting cookbook uses, which the teacher's TokenCounter
// also bakes in.
const tokensPerMessage = 3

// TiktokenEstimator estimates tokens with a cached tiktoken-go encoding.
type TiktokenEstimator struct {
	mu       sync.RWMutex
	encoding *tiktoken.Tiktoken
}

var (
	encodingCache   = make(map[string]*tiktoken.Tiktoken)
	encodingCacheMu sync.RWMutex
)

// NewTiktokenEstimator builds an estimator for model, falling back to
// cl100k_base when the model isn't recognised.
func NewTiktokenEstimator(model string) (*TiktokenEstimator, error) {
	encodingCacheMu.RLock()
	cached, ok := encodingCache[model]
	encodingCacheMu.RUnlock()
	if ok {
		return &TiktokenEstimator{encoding: cached}, nil
	}

	enc, err := tiktoken.EncodingForModel(model)
	if err != nil {
		enc, err = tiktoken.GetEncoding("cl100k_base")
		if err != nil {
			return nil, fmt.Errorf("get encoding: %w", err)
		}
	}

	encodingCacheMu.Lock()
	encodingCache[model] = enc
	encodingCacheMu.Unlock()

	return &TiktokenEstimator{encoding: enc}, nil
}

// Estimate sums per-message token counts, including role overhead and
// the fixed reply-priming tokens.
func (e *TiktokenEstimator) Estimate(messages []*convo.Message) int {
	e.mu.RLock()
	defer e.mu.RUnlock()

	total := 3 // reply priming
	for _, m := range messages {
		total += tokensPerMessage
		total += len(e.encoding.Encode(string(m.Role), nil, nil))
		total += len(e.encoding.Encode(m.Text(), nil, nil))
	}
	return total
}
