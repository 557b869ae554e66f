package extension

import (
	"context"
	"fmt"
	"sync"

	"github.com/mark3labs/mcp-go/client"
	"github.com/mark3labs/mcp-go/mcp"

	"github.com/agentrt/goagent/pkg/convo"
	"github.com/agentrt/goagent/pkg/dispatch"
)

// StdioExtension connects to an MCP server over a subprocess's stdio,
// using mcp-go for the wire protocol. Grounded on the teacher's
// mcptoolset.Toolset.connectStdio.
type StdioExtension struct {
	cfg Config

	mu        sync.Mutex
	client    *client.Client
	connected bool
	filterSet map[string]bool
}

// NewStdio creates a lazily-connecting stdio extension.
func NewStdio(cfg Config) *StdioExtension {
	var filterSet map[string]bool
	if len(cfg.Filter) > 0 {
		filterSet = make(map[string]bool, len(cfg.Filter))
		for _, n := range cfg.Filter {
			filterSet[n] = true
		}
	}
	return &StdioExtension{cfg: cfg, filterSet: filterSet}
}

func (s *StdioExtension) Name() string { return s.cfg.Name }

func (s *StdioExtension) ensureConnected(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.connected {
		return nil
	}

	mcpClient, err := client.NewStdioMCPClient(s.cfg.Command, envSlice(s.cfg.Env), s.cfg.Args...)
	if err != nil {
		return fmt.Errorf("create mcp stdio client: %w", err)
	}
	if err := mcpClient.Start(ctx); err != nil {
		return fmt.Errorf("start mcp stdio client: %w", err)
	}

	initReq := mcp.InitializeRequest{}
	initReq.Params.ClientInfo = mcp.Implementation{Name: "goagent", Version: "0.1.0"}
	initReq.Params.ProtocolVersion = "2024-11-05"
	if _, err := mcpClient.Initialize(ctx, initReq); err != nil {
		mcpClient.Close()
		return fmt.Errorf("initialize mcp stdio client: %w", err)
	}

	s.client = mcpClient
	s.connected = true
	return nil
}

func (s *StdioExtension) Tools(ctx context.Context) ([]ToolSpec, error) {
	if err := s.ensureConnected(ctx); err != nil {
		return nil, err
	}
	resp, err := s.client.ListTools(ctx, mcp.ListToolsRequest{})
	if err != nil {
		return nil, fmt.Errorf("list tools: %w", err)
	}

	var out []ToolSpec
	for _, t := range resp.Tools {
		if s.filterSet != nil && !s.filterSet[t.Name] {
			continue
		}
		out = append(out, ToolSpec{
			Name:        t.Name,
			Description: t.Description,
			Schema:      schemaToMap(t.InputSchema),
		})
	}
	return out, nil
}

func (s *StdioExtension) CallTool(ctx context.Context, name string, args map[string]any) (*convo.ToolResult, []dispatch.Notification, error) {
	if err := s.ensureConnected(ctx); err != nil {
		return nil, nil, err
	}

	req := mcp.CallToolRequest{}
	req.Params.Name = name
	req.Params.Arguments = args

	resp, err := s.client.CallTool(ctx, req)
	if err != nil {
		return nil, nil, fmt.Errorf("call tool %q: %w", name, err)
	}
	return toolResultFromMCP(resp), nil, nil
}

func (s *StdioExtension) ListResources(ctx context.Context) ([]Resource, error) {
	if err := s.ensureConnected(ctx); err != nil {
		return nil, err
	}
	resp, err := s.client.ListResources(ctx, mcp.ListResourcesRequest{})
	if err != nil {
		return nil, err
	}
	out := make([]Resource, 0, len(resp.Resources))
	for _, r := range resp.Resources {
		out = append(out, Resource{URI: r.URI, Name: r.Name, Description: r.Description, MimeType: r.MIMEType})
	}
	return out, nil
}

func (s *StdioExtension) ReadResource(ctx context.Context, uri string) (*convo.ToolResult, error) {
	if err := s.ensureConnected(ctx); err != nil {
		return nil, err
	}
	req := mcp.ReadResourceRequest{}
	req.Params.URI = uri
	resp, err := s.client.ReadResource(ctx, req)
	if err != nil {
		return nil, err
	}

	var items []convo.ResultItem
	for _, c := range resp.Contents {
		if tc, ok := c.(mcp.TextResourceContents); ok {
			items = append(items, convo.ResultItem{Type: convo.ResultText, Text: tc.Text, URI: tc.URI, MimeType: tc.MIMEType})
		}
	}
	return convo.OkResult(items...), nil
}

func (s *StdioExtension) ListPrompts(ctx context.Context) ([]Prompt, error) {
	if err := s.ensureConnected(ctx); err != nil {
		return nil, err
	}
	resp, err := s.client.ListPrompts(ctx, mcp.ListPromptsRequest{})
	if err != nil {
		return nil, err
	}
	out := make([]Prompt, 0, len(resp.Prompts))
	for _, p := range resp.Prompts {
		var args []PromptArgument
		for _, a := range p.Arguments {
			args = append(args, PromptArgument{Name: a.Name, Description: a.Description, Required: a.Required})
		}
		out = append(out, Prompt{Name: p.Name, Description: p.Description, Arguments: args})
	}
	return out, nil
}

func (s *StdioExtension) GetPrompt(ctx context.Context, name string, args map[string]any) ([]PromptMessage, error) {
	if err := s.ensureConnected(ctx); err != nil {
		return nil, err
	}
	strArgs := make(map[string]string, len(args))
	for k, v := range args {
		strArgs[k] = fmt.Sprintf("%v", v)
	}

	req := mcp.GetPromptRequest{}
	req.Params.Name = name
	req.Params.Arguments = strArgs
	resp, err := s.client.GetPrompt(ctx, req)
	if err != nil {
		return nil, err
	}

	out := make([]PromptMessage, 0, len(resp.Messages))
	for _, m := range resp.Messages {
		role := convo.RoleUser
		if m.Role == mcp.RoleAssistant {
			role = convo.RoleAssistant
		}
		text := ""
		if tc, ok := m.Content.(mcp.TextContent); ok {
			text = tc.Text
		}
		out = append(out, PromptMessage{Role: role, Content: text})
	}
	return out, nil
}

func (s *StdioExtension) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.client == nil {
		return nil
	}
	err := s.client.Close()
	s.client = nil
	s.connected = false
	return err
}

func envSlice(env map[string]string) []string {
	if env == nil {
		return nil
	}
	out := make([]string, 0, len(env))
	for k, v := range env {
		out = append(out, fmt.Sprintf("%s=%s", k, v))
	}
	return out
}

func schemaToMap(schema mcp.ToolInputSchema) map[string]any {
	props := make(map[string]any, len(schema.Properties))
	for k, v := range schema.Properties {
		props[k] = v
	}
	return map[string]any{
		"type":       schema.Type,
		"properties": props,
		"required":   schema.Required,
	}
}

func toolResultFromMCP(resp *mcp.CallToolResult) *convo.ToolResult {
	if resp.IsError {
		msg := "unknown error"
		for _, c := range resp.Content {
			if tc, ok := c.(mcp.TextContent); ok {
				msg = tc.Text
				break
			}
		}
		return convo.ErrResult("tool_error", msg)
	}

	var items []convo.ResultItem
	for _, c := range resp.Content {
		if tc, ok := c.(mcp.TextContent); ok {
			items = append(items, convo.ResultItem{Type: convo.ResultText, Text: tc.Text})
		}
	}
	return convo.OkResult(items...)
}

var _ Extension = (*StdioExtension)(nil)
