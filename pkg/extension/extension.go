// Package extension implements the extension manager (spec.md §4.2):
// the registry of connected extensions, each exposing a set of tools,
// resources, and prompts, addressed as "extension__tool" from the
// model's point of view.
package extension

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/agentrt/goagent/pkg/convo"
	"github.com/agentrt/goagent/pkg/dispatch"
)

// ToolSpec describes one tool an Extension exposes, unprefixed.
type ToolSpec struct {
	Name        string
	Description string
	Schema      map[string]any
	Annotations convo.ToolAnnotations
}

// Resource describes one resource an Extension can read.
type Resource struct {
	URI         string
	Name        string
	Description string
	MimeType    string
}

// PromptArgument describes one named input a Prompt accepts.
type PromptArgument struct {
	Name        string
	Description string
	Required    bool
}

// Prompt describes one reusable prompt template an Extension exposes.
type Prompt struct {
	Name        string
	Description string
	Arguments   []PromptArgument
}

// PromptMessage is one rendered message returned by GetPrompt.
type PromptMessage struct {
	Role    convo.Role
	Content string
}

// Extension is the capability seam every transport implements:
// builtin, stdio, SSE, StreamableHTTP, and go-plugin (spec.md §4.2,
// §9 "capability-trait seams: Provider and Extension").
type Extension interface {
	Name() string
	Tools(ctx context.Context) ([]ToolSpec, error)
	CallTool(ctx context.Context, name string, args map[string]any) (*convo.ToolResult, []dispatch.Notification, error)
	ListResources(ctx context.Context) ([]Resource, error)
	ReadResource(ctx context.Context, uri string) (*convo.ToolResult, error)
	ListPrompts(ctx context.Context) ([]Prompt, error)
	GetPrompt(ctx context.Context, name string, args map[string]any) ([]PromptMessage, error)
	Close() error
}

// separator joins an extension name and a tool name into the qualified
// name the model sees (spec.md §4.2: "tools are addressed as
// extension__tool, split once on the leftmost separator").
const separator = "__"

// QualifiedName builds the "extension__tool" name for a tool.
func QualifiedName(extensionName, toolName string) string {
	return extensionName + separator + toolName
}

// SplitQualifiedName splits a qualified tool name into its extension
// and tool parts, splitting once on the leftmost "__".
func SplitQualifiedName(qualified string) (extensionName, toolName string, ok bool) {
	idx := strings.Index(qualified, separator)
	if idx < 0 {
		return "", "", false
	}
	return qualified[:idx], qualified[idx+len(separator):], true
}

// Manager owns the set of connected extensions and is the fallback
// dispatch.Sink for any tool call not claimed by a platform builtin
// (spec.md §4.3 last routing rule).
type Manager struct {
	mu         sync.RWMutex
	extensions map[string]Extension
}

// NewManager creates an empty Manager.
func NewManager() *Manager {
	return &Manager{extensions: make(map[string]Extension)}
}

// Register adds or replaces an extension under its own name.
func (m *Manager) Register(ext Extension) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.extensions[ext.Name()] = ext
}

// Unregister removes and closes an extension by name.
func (m *Manager) Unregister(ctx context.Context, name string) error {
	m.mu.Lock()
	ext, ok := m.extensions[name]
	if ok {
		delete(m.extensions, name)
	}
	m.mu.Unlock()

	if !ok {
		return fmt.Errorf("extension %q not registered", name)
	}
	return ext.Close()
}

// Get returns the extension registered under name, if any.
func (m *Manager) Get(name string) (Extension, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	ext, ok := m.extensions[name]
	return ext, ok
}

// Names returns every registered extension's name, sorted.
func (m *Manager) Names() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	names := make([]string, 0, len(m.extensions))
	for n := range m.extensions {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// AllTools returns every tool from every extension, qualified and sorted
// by qualified name — the list handed to the provider as the active
// tool set (spec.md §4.1).
func (m *Manager) AllTools(ctx context.Context) ([]ToolSpec, error) {
	m.mu.RLock()
	exts := make([]Extension, 0, len(m.extensions))
	for _, e := range m.extensions {
		exts = append(exts, e)
	}
	m.mu.RUnlock()

	sort.Slice(exts, func(i, j int) bool { return exts[i].Name() < exts[j].Name() })

	var out []ToolSpec
	for _, ext := range exts {
		tools, err := ext.Tools(ctx)
		if err != nil {
			return nil, fmt.Errorf("extension %q: %w", ext.Name(), err)
		}
		for _, t := range tools {
			out = append(out, ToolSpec{
				Name:        QualifiedName(ext.Name(), t.Name),
				Description: t.Description,
				Schema:      t.Schema,
				Annotations: t.Annotations,
			})
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

// Dispatch implements dispatch.Sink: it resolves a qualified tool name
// to its owning extension and calls it, buffering any notifications the
// extension emits during the call (spec.md §4.2 "per-extension buffered
// notifications" — delivered as a batch once the call settles, not
// streamed live).
func (m *Manager) Dispatch(ctx context.Context, requestID string, call *convo.ToolCall, cancel <-chan struct{}) (dispatch.Handle, error) {
	extName, toolName, ok := SplitQualifiedName(call.Name)
	if !ok {
		return dispatch.Handle{}, fmt.Errorf("%w: %q is not a qualified extension__tool name", dispatch.ErrToolNotFound, call.Name)
	}

	ext, ok := m.Get(extName)
	if !ok {
		return dispatch.Handle{}, fmt.Errorf("%w: no extension named %q", dispatch.ErrToolNotFound, extName)
	}

	notifyCh := make(chan dispatch.Notification, 16)
	resultCh := make(chan *convo.ToolResult, 1)

	go func() {
		defer close(resultCh)
		defer close(notifyCh)
		defer func() {
			if p := recover(); p != nil {
				resultCh <- convo.ErrResult("extension_setup", fmt.Sprintf("extension %q panicked: %v", extName, p))
			}
		}()

		result, notifications, err := ext.CallTool(ctx, toolName, call.Arguments)
		for _, n := range notifications {
			notifyCh <- n
		}
		if err != nil {
			result = convo.ErrResult("extension_error", err.Error())
		}
		resultCh <- result
	}()

	return dispatch.Handle{Notifications: notifyCh, Result: resultCh}, nil
}

// ResourceSink adapts Manager to dispatch.Sink for
// platform_read_resource / platform_list_resources calls.
type ResourceSink struct{ Manager *Manager }

func (s ResourceSink) Dispatch(ctx context.Context, requestID string, call *convo.ToolCall, cancel <-chan struct{}) (dispatch.Handle, error) {
	switch call.Name {
	case dispatch.ToolListResources:
		extName, _ := call.Arguments["extension"].(string)
		return s.dispatchList(ctx, extName), nil
	case dispatch.ToolReadResource:
		uri, _ := call.Arguments["uri"].(string)
		extName, _ := call.Arguments["extension"].(string)
		return s.dispatchRead(ctx, extName, uri), nil
	default:
		return dispatch.Handle{}, fmt.Errorf("resource sink: unsupported tool %q", call.Name)
	}
}

func (s ResourceSink) dispatchList(ctx context.Context, extName string) dispatch.Handle {
	var items []convo.ResultItem
	exts := s.targets(extName)
	for _, ext := range exts {
		resources, err := ext.ListResources(ctx)
		if err != nil {
			continue
		}
		for _, r := range resources {
			items = append(items, convo.ResultItem{Type: convo.ResultText, Text: fmt.Sprintf("%s: %s (%s)", r.URI, r.Name, r.MimeType)})
		}
	}
	return syncHandle(convo.OkResult(items...))
}

func (s ResourceSink) dispatchRead(ctx context.Context, extName, uri string) dispatch.Handle {
	for _, ext := range s.targets(extName) {
		result, err := ext.ReadResource(ctx, uri)
		if err == nil {
			return syncHandle(result)
		}
	}
	return syncHandle(convo.ErrResult("resource_not_found", fmt.Sprintf("no extension could read %q", uri)))
}

func (s ResourceSink) targets(extName string) []Extension {
	if extName != "" {
		if ext, ok := s.Manager.Get(extName); ok {
			return []Extension{ext}
		}
		return nil
	}
	var out []Extension
	for _, name := range s.Manager.Names() {
		ext, _ := s.Manager.Get(name)
		out = append(out, ext)
	}
	return out
}

// DirectorySink adapts Manager to dispatch.Sink for
// platform_search_available_extensions, matching a free-text query
// against each registered extension's name and tool descriptions.
type DirectorySink struct{ Manager *Manager }

func (s DirectorySink) Dispatch(ctx context.Context, requestID string, call *convo.ToolCall, cancel <-chan struct{}) (dispatch.Handle, error) {
	query, _ := call.Arguments["query"].(string)
	query = strings.ToLower(query)

	var matches []string
	for _, name := range s.Manager.Names() {
		ext, _ := s.Manager.Get(name)
		if query == "" || strings.Contains(strings.ToLower(name), query) {
			matches = append(matches, name)
			continue
		}
		tools, err := ext.Tools(ctx)
		if err != nil {
			continue
		}
		for _, t := range tools {
			if strings.Contains(strings.ToLower(t.Name), query) || strings.Contains(strings.ToLower(t.Description), query) {
				matches = append(matches, name)
				break
			}
		}
	}

	var items []convo.ResultItem
	for _, m := range matches {
		items = append(items, convo.ResultItem{Type: convo.ResultText, Text: m})
	}
	return syncHandle(convo.OkResult(items...)), nil
}

func syncHandle(result *convo.ToolResult) dispatch.Handle {
	ch := make(chan *convo.ToolResult, 1)
	ch <- result
	close(ch)
	return dispatch.Handle{Result: ch}
}
