package extension

import "time"

// Kind tags an extension configuration's transport variant
// (spec.md §6.3: "Extension config as Builtin|Stdio|Sse|StreamableHttp|Frontend").
type Kind string

const (
	KindBuiltin        Kind = "builtin"
	KindStdio          Kind = "stdio"
	KindSSE            Kind = "sse"
	KindStreamableHTTP Kind = "streamable_http"
	KindFrontend       Kind = "frontend"
	KindGoPlugin       Kind = "go_plugin"
)

// Config is the tagged-variant configuration for one extension entry in
// the extensions file (spec.md §6.3). Only the fields relevant to Kind
// are meaningful; the rest are ignored.
type Config struct {
	Name string
	Kind Kind

	// Stdio / GoPlugin
	Command string
	Args    []string
	Env     map[string]string

	// SSE / StreamableHTTP
	URL        string
	Headers    map[string]string
	MaxRetries int
	Timeout    time.Duration

	// Filter limits which tools this extension exposes, by unqualified name.
	Filter []string

	// FrontendTools names the tools a Frontend-kind extension declares;
	// the dispatcher routes calls to these names back to the caller
	// rather than executing them (spec.md §4.3).
	FrontendTools []string
}
