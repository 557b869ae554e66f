// Package provider defines the capability interface the reply engine
// drives to talk to a language model, independent of any concrete
// vendor's wire format (spec.md §4.1). Concrete implementations —
// Anthropic, OpenAI, Gemini JSON shapes — are external collaborators;
// this package only defines the seam and the error taxonomy the engine
// reacts to.
package provider

import (
	"context"
	"iter"

	"github.com/agentrt/goagent/pkg/convo"
)

// Metadata describes a provider's static capabilities.
type Metadata struct {
	Name         string
	DisplayName  string
	DefaultModel string
	KnownModels  []string
	ConfigKeys   []string
	Streaming    bool
	Embeddings   bool
}

// Usage reports token accounting for one provider call. Fields beyond
// what a provider returns are left zero; the engine makes no stronger
// guarantee than "whatever the provider returned" (spec.md §1 Non-goals).
type Usage struct {
	InputTokens  int
	OutputTokens int
	TotalTokens  int
	Model        string
}

// Chunk is one element of a streamed provider response: a partial or
// final Message, paired with incremental usage when the provider reports it.
type Chunk struct {
	Message *convo.Message
	Usage   *Usage
}

// Provider is the capability trait the reply engine (pkg/reply) drives.
// Implementations live outside this module; this package only declares
// the contract and the shared error taxonomy.
type Provider interface {
	// Metadata returns this provider's static capability description.
	Metadata() Metadata

	// Complete performs one non-streaming call and returns the full
	// assistant message plus usage.
	Complete(ctx context.Context, req *Request) (*convo.Message, *Usage, error)

	// Stream performs a streaming call, yielding chunks as they arrive.
	// Implementations that can't stream natively should yield a single
	// chunk built from Complete — the default Fallback helper below does
	// exactly that.
	Stream(ctx context.Context, req *Request) iter.Seq2[*Chunk, error]

	// FetchSupportedModels optionally queries the provider for the
	// models currently available to the caller's credentials. Returns
	// nil, nil if unsupported.
	FetchSupportedModels(ctx context.Context) ([]string, error)
}

// LeadWorker is an optional capability a composite provider can implement
// to expose the distinct models it uses for planning ("lead") versus
// executing ("worker") a turn. The reply engine type-asserts for this to
// emit ModelChange events (spec.md §4.8 step 3, §9).
type LeadWorker interface {
	AsLeadWorker() (lead, worker string, ok bool)
}

// Request is the input to a provider call.
type Request struct {
	System   string
	Messages []*convo.Message
	Tools    []ToolDefinition
	Config   *GenerateConfig
}

// ToolDefinition is a tool's schema as offered to the model.
type ToolDefinition struct {
	Name        string
	Description string
	Parameters  map[string]any
	Annotations convo.ToolAnnotations
}

// GenerateConfig carries generation parameters that are common enough
// across providers to live on this side of the seam. It has no field for
// provider-specific extras.
type GenerateConfig struct {
	Temperature   *float64
	MaxTokens     *int
	TopP          *float64
	StopSequences []string
}

// Fallback adapts a Complete-only provider into one that can Stream by
// yielding a single chunk. Embed this (or call it directly) when an
// implementation has no incremental wire format.
func Fallback(ctx context.Context, complete func(context.Context, *Request) (*convo.Message, *Usage, error), req *Request) iter.Seq2[*Chunk, error] {
	return func(yield func(*Chunk, error) bool) {
		msg, usage, err := complete(ctx, req)
		if err != nil {
			yield(nil, err)
			return
		}
		yield(&Chunk{Message: msg, Usage: usage}, nil)
	}
}
