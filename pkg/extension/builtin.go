package extension

import (
	"context"
	"fmt"

	"github.com/agentrt/goagent/pkg/convo"
	"github.com/agentrt/goagent/pkg/dispatch"
)

// Handler implements one builtin tool's logic.
type Handler func(ctx context.Context, args map[string]any) (*convo.ToolResult, []dispatch.Notification, error)

// BuiltinTool pairs a ToolSpec with its in-process Handler.
type BuiltinTool struct {
	Spec    ToolSpec
	Handler Handler
}

// Builtin is an in-process extension: its tools run as plain Go
// functions rather than over any wire transport. Grounded on the
// teacher's in-process tool.CallableTool shape, generalised to carry
// its own notification stream.
type Builtin struct {
	name  string
	tools map[string]BuiltinTool
}

// NewBuiltin creates a Builtin extension exposing the given tools.
func NewBuiltin(name string, tools ...BuiltinTool) *Builtin {
	m := make(map[string]BuiltinTool, len(tools))
	for _, t := range tools {
		m[t.Spec.Name] = t
	}
	return &Builtin{name: name, tools: m}
}

func (b *Builtin) Name() string { return b.name }

func (b *Builtin) Tools(ctx context.Context) ([]ToolSpec, error) {
	out := make([]ToolSpec, 0, len(b.tools))
	for _, t := range b.tools {
		out = append(out, t.Spec)
	}
	return out, nil
}

func (b *Builtin) CallTool(ctx context.Context, name string, args map[string]any) (*convo.ToolResult, []dispatch.Notification, error) {
	t, ok := b.tools[name]
	if !ok {
		return nil, nil, fmt.Errorf("builtin %q has no tool %q", b.name, name)
	}
	return t.Handler(ctx, args)
}

func (b *Builtin) ListResources(ctx context.Context) ([]Resource, error) { return nil, nil }

func (b *Builtin) ReadResource(ctx context.Context, uri string) (*convo.ToolResult, error) {
	return nil, fmt.Errorf("builtin %q exposes no resources", b.name)
}

func (b *Builtin) ListPrompts(ctx context.Context) ([]Prompt, error) { return nil, nil }

func (b *Builtin) GetPrompt(ctx context.Context, name string, args map[string]any) ([]PromptMessage, error) {
	return nil, fmt.Errorf("builtin %q exposes no prompts", b.name)
}

func (b *Builtin) Close() error { return nil }

var _ Extension = (*Builtin)(nil)
