// Package convo defines the agent runtime's conversation model: messages,
// content items, tool-request/response pairing, and the deterministic
// repair pass that keeps a conversation well-formed before it is handed
// to a provider.
package convo

import (
	"time"

	"github.com/google/uuid"
)

// Role identifies the sender of a Message.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Message is an ordered sequence of content items produced by one role.
type Message struct {
	ID        string
	Role      Role
	Content   []Content
	CreatedAt time.Time
}

// NewMessage builds a Message with a fresh ID and the current time.
func NewMessage(role Role, content ...Content) *Message {
	return &Message{
		ID:        uuid.NewString(),
		Role:      role,
		Content:   content,
		CreatedAt: time.Now(),
	}
}

// ToolRequests returns every ToolRequest content item in the message, in order.
func (m *Message) ToolRequests() []*ToolRequest {
	var out []*ToolRequest
	for _, c := range m.Content {
		if tr, ok := c.(*ToolRequest); ok {
			out = append(out, tr)
		}
	}
	return out
}

// ToolResponses returns every ToolResponse content item in the message, in order.
func (m *Message) ToolResponses() []*ToolResponse {
	var out []*ToolResponse
	for _, c := range m.Content {
		if tr, ok := c.(*ToolResponse); ok {
			out = append(out, tr)
		}
	}
	return out
}

// HasToolRequests reports whether the message carries any tool requests.
func (m *Message) HasToolRequests() bool {
	return len(m.ToolRequests()) > 0
}

// Text concatenates every Text content item's value, in order.
func (m *Message) Text() string {
	var out string
	for _, c := range m.Content {
		if t, ok := c.(*Text); ok {
			out += t.Value
		}
	}
	return out
}

// Content is one variant of a message's content items. The set of
// concrete types is closed: Text, Thinking, Image, ToolRequest,
// ToolResponse, SummarizationNotice, ContextLengthExceeded.
type Content interface {
	contentKind() string
}

// Text is a plain-text content item.
type Text struct {
	Value string
}

func (*Text) contentKind() string { return "text" }

// Thinking is a model's reasoning trace. It may be redacted by the
// provider, in which case Value is empty and Redacted is true.
type Thinking struct {
	Value     string
	Signature string
	Redacted  bool
}

func (*Thinking) contentKind() string { return "thinking" }

// Image is inline image content.
type Image struct {
	Data     []byte
	MimeType string
}

func (*Image) contentKind() string { return "image" }

// ToolRequest is a model's request to invoke a tool. RequestID is unique
// within the conversation. Either Call is populated, or ParseError names
// why the model's function-call payload could not be parsed.
type ToolRequest struct {
	RequestID  string
	Call       *ToolCall
	ParseError string
}

func (*ToolRequest) contentKind() string { return "tool_request" }

// ToolCall is a parsed tool invocation.
type ToolCall struct {
	Name      string
	Arguments map[string]any
}

// ToolResponse carries the result of a previously requested tool call.
// RequestID matches the ToolRequest it answers.
type ToolResponse struct {
	RequestID string
	Result    *ToolResult
}

func (*ToolResponse) contentKind() string { return "tool_response" }

// ToolResultKind distinguishes a successful tool result from an error.
type ToolResultKind int

const (
	ToolResultOK ToolResultKind = iota
	ToolResultErr
)

// ToolResult is either Ok(items) or Err(kind, message).
type ToolResult struct {
	Kind      ToolResultKind
	Items     []ResultItem
	ErrorKind string
	Message   string
}

// OkResult builds a successful ToolResult.
func OkResult(items ...ResultItem) *ToolResult {
	return &ToolResult{Kind: ToolResultOK, Items: items}
}

// ErrResult builds a failed ToolResult.
func ErrResult(kind, message string) *ToolResult {
	return &ToolResult{Kind: ToolResultErr, ErrorKind: kind, Message: message}
}

// IsErr reports whether the result represents a failure.
func (r *ToolResult) IsErr() bool {
	return r != nil && r.Kind == ToolResultErr
}

// ResultItem is one piece of a tool result: text, image, audio, or resource.
type ResultItem struct {
	Type     ResultItemType
	Text     string
	Data     []byte
	MimeType string
	URI      string
	Audience []Audience
	Priority *float64
}

// ResultItemType enumerates the kinds of content a tool can return.
type ResultItemType string

const (
	ResultText     ResultItemType = "text"
	ResultImage    ResultItemType = "image"
	ResultAudio    ResultItemType = "audio"
	ResultResource ResultItemType = "resource"
)

// Audience marks who a ResultItem is intended for.
type Audience string

const (
	AudienceUser  Audience = "user"
	AudienceModel Audience = "model"
)

// SummarizationNotice marks a point where the conversation was compacted.
type SummarizationNotice struct {
	Explanation string
}

func (*SummarizationNotice) contentKind() string { return "summarization_notice" }

// ContextLengthExceeded marks that the provider reported its context
// window was exceeded mid-stream.
type ContextLengthExceeded struct{}

func (*ContextLengthExceeded) contentKind() string { return "context_length_exceeded" }

// ToolAnnotations describes a tool's behavioral hints, used by the
// permission gate's smart_approve classification (see pkg/permission).
type ToolAnnotations struct {
	ReadOnly   bool
	Destructive bool
	Idempotent bool
	OpenWorld  bool
}
