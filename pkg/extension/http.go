package extension

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/agentrt/goagent/pkg/convo"
	"github.com/agentrt/goagent/pkg/dispatch"
)

const defaultSSETimeout = 5 * time.Minute

// HTTPExtension connects to an MCP server over SSE or StreamableHTTP, by
// hand-rolling JSON-RPC requests: mcp-go has no HTTP client, so this
// follows the teacher's own httpclient-based MCP HTTP path
// (mcptoolset.Toolset.connectHTTP / makeHTTPRequest / readSSEResponse),
// generalised to both HTTP transports and rebuilt on net/http directly.
type HTTPExtension struct {
	cfg        Config
	httpClient *http.Client

	sessionMu sync.RWMutex
	sessionID string

	filterSet map[string]bool
	nextID    int
	idMu      sync.Mutex
}

// NewHTTP creates an HTTPExtension for the sse or streamable_http kinds.
func NewHTTP(cfg Config) *HTTPExtension {
	if cfg.MaxRetries == 0 {
		cfg.MaxRetries = 3
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = defaultSSETimeout
	}
	var filterSet map[string]bool
	if len(cfg.Filter) > 0 {
		filterSet = make(map[string]bool, len(cfg.Filter))
		for _, n := range cfg.Filter {
			filterSet[n] = true
		}
	}
	return &HTTPExtension{
		cfg:        cfg,
		httpClient: &http.Client{Timeout: 30 * time.Second},
		filterSet:  filterSet,
	}
}

func (h *HTTPExtension) Name() string { return h.cfg.Name }

type jsonRPCRequest struct {
	JSONRPC string `json:"jsonrpc"`
	ID      int    `json:"id"`
	Method  string `json:"method"`
	Params  any    `json:"params,omitempty"`
}

type jsonRPCResponse struct {
	JSONRPC string        `json:"jsonrpc"`
	ID      int           `json:"id"`
	Result  any           `json:"result,omitempty"`
	Error   *jsonRPCError `json:"error,omitempty"`
}

type jsonRPCError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func (h *HTTPExtension) call(ctx context.Context, method string, params any) (*jsonRPCResponse, error) {
	h.idMu.Lock()
	h.nextID++
	id := h.nextID
	h.idMu.Unlock()

	body, err := json.Marshal(jsonRPCRequest{JSONRPC: "2.0", ID: id, Method: method, Params: params})
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, h.cfg.URL, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json, text/event-stream")
	for k, v := range h.cfg.Headers {
		req.Header.Set(k, v)
	}

	h.sessionMu.RLock()
	sessionID := h.sessionID
	h.sessionMu.RUnlock()
	if sessionID != "" {
		req.Header.Set("mcp-session-id", sessionID)
	}

	var resp *http.Response
	var lastErr error
	for attempt := 0; attempt <= h.cfg.MaxRetries; attempt++ {
		resp, lastErr = h.httpClient.Do(req)
		if lastErr == nil {
			break
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(time.Duration(attempt+1) * 200 * time.Millisecond):
		}
	}
	if lastErr != nil {
		return nil, fmt.Errorf("request failed after retries: %w", lastErr)
	}
	defer resp.Body.Close()

	if newSessionID := resp.Header.Get("mcp-session-id"); newSessionID != "" {
		h.sessionMu.Lock()
		h.sessionID = newSessionID
		h.sessionMu.Unlock()
	}

	if resp.StatusCode != http.StatusOK {
		b, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("http error %d: %s", resp.StatusCode, string(b))
	}

	if strings.Contains(resp.Header.Get("Content-Type"), "text/event-stream") {
		return readSSE(resp, h.cfg.Timeout)
	}

	b, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}
	var out jsonRPCResponse
	if err := json.Unmarshal(b, &out); err != nil {
		return nil, fmt.Errorf("parse response: %w", err)
	}
	return &out, nil
}

// readSSE reads the first complete JSON-RPC event from an SSE stream.
func readSSE(resp *http.Response, timeout time.Duration) (*jsonRPCResponse, error) {
	type result struct {
		resp *jsonRPCResponse
		err  error
	}
	out := make(chan result, 1)

	go func() {
		defer resp.Body.Close()
		reader := bufio.NewReader(resp.Body)
		var data strings.Builder

		for {
			line, err := reader.ReadBytes('\n')
			if err != nil {
				break
			}
			text := strings.TrimSpace(string(line))
			if text == "" {
				if data.Len() > 0 {
					var parsed jsonRPCResponse
					if json.Unmarshal([]byte(data.String()), &parsed) == nil {
						out <- result{resp: &parsed}
						return
					}
					data.Reset()
				}
				continue
			}
			if strings.HasPrefix(text, "data:") {
				data.WriteString(strings.TrimSpace(strings.TrimPrefix(text, "data:")))
			}
		}
		out <- result{err: fmt.Errorf("sse stream ended without a complete message")}
	}()

	select {
	case r := <-out:
		return r.resp, r.err
	case <-time.After(timeout):
		return nil, fmt.Errorf("timeout reading sse response after %v", timeout)
	}
}

func (h *HTTPExtension) Tools(ctx context.Context) ([]ToolSpec, error) {
	resp, err := h.call(ctx, "tools/list", nil)
	if err != nil {
		return nil, err
	}
	if resp.Error != nil {
		return nil, fmt.Errorf("tools/list: %s", resp.Error.Message)
	}

	resultMap, _ := resp.Result.(map[string]any)
	rawTools, _ := resultMap["tools"].([]any)

	var out []ToolSpec
	for _, raw := range rawTools {
		m, ok := raw.(map[string]any)
		if !ok {
			continue
		}
		name, _ := m["name"].(string)
		if h.filterSet != nil && !h.filterSet[name] {
			continue
		}
		desc, _ := m["description"].(string)
		schema, _ := m["inputSchema"].(map[string]any)
		out = append(out, ToolSpec{Name: name, Description: desc, Schema: schema})
	}
	return out, nil
}

func (h *HTTPExtension) CallTool(ctx context.Context, name string, args map[string]any) (*convo.ToolResult, []dispatch.Notification, error) {
	resp, err := h.call(ctx, "tools/call", map[string]any{"name": name, "arguments": args})
	if err != nil {
		return nil, nil, err
	}
	if resp.Error != nil {
		return convo.ErrResult("tool_error", resp.Error.Message), nil, nil
	}

	resultMap, ok := resp.Result.(map[string]any)
	if !ok {
		return convo.OkResult(convo.ResultItem{Type: convo.ResultText, Text: fmt.Sprintf("%v", resp.Result)}), nil, nil
	}

	if isErr, _ := resultMap["isError"].(bool); isErr {
		msg := "unknown error"
		if content, ok := resultMap["content"].([]any); ok {
			if text := firstText(content); text != "" {
				msg = text
			}
		}
		return convo.ErrResult("tool_error", msg), nil, nil
	}

	var items []convo.ResultItem
	if content, ok := resultMap["content"].([]any); ok {
		for _, c := range content {
			cm, ok := c.(map[string]any)
			if !ok || cm["type"] != "text" {
				continue
			}
			text, _ := cm["text"].(string)
			items = append(items, convo.ResultItem{Type: convo.ResultText, Text: text})
		}
	}
	return convo.OkResult(items...), nil, nil
}

func firstText(content []any) string {
	for _, c := range content {
		if cm, ok := c.(map[string]any); ok {
			if text, ok := cm["text"].(string); ok {
				return text
			}
		}
	}
	return ""
}

func (h *HTTPExtension) ListResources(ctx context.Context) ([]Resource, error) {
	resp, err := h.call(ctx, "resources/list", nil)
	if err != nil {
		return nil, err
	}
	if resp.Error != nil {
		return nil, fmt.Errorf("resources/list: %s", resp.Error.Message)
	}
	resultMap, _ := resp.Result.(map[string]any)
	raw, _ := resultMap["resources"].([]any)

	var out []Resource
	for _, r := range raw {
		m, ok := r.(map[string]any)
		if !ok {
			continue
		}
		uri, _ := m["uri"].(string)
		name, _ := m["name"].(string)
		desc, _ := m["description"].(string)
		mime, _ := m["mimeType"].(string)
		out = append(out, Resource{URI: uri, Name: name, Description: desc, MimeType: mime})
	}
	return out, nil
}

func (h *HTTPExtension) ReadResource(ctx context.Context, uri string) (*convo.ToolResult, error) {
	resp, err := h.call(ctx, "resources/read", map[string]any{"uri": uri})
	if err != nil {
		return nil, err
	}
	if resp.Error != nil {
		return nil, fmt.Errorf("resources/read: %s", resp.Error.Message)
	}

	resultMap, _ := resp.Result.(map[string]any)
	raw, _ := resultMap["contents"].([]any)

	var items []convo.ResultItem
	for _, c := range raw {
		m, ok := c.(map[string]any)
		if !ok {
			continue
		}
		text, _ := m["text"].(string)
		mime, _ := m["mimeType"].(string)
		items = append(items, convo.ResultItem{Type: convo.ResultText, Text: text, URI: uri, MimeType: mime})
	}
	return convo.OkResult(items...), nil
}

func (h *HTTPExtension) ListPrompts(ctx context.Context) ([]Prompt, error) {
	resp, err := h.call(ctx, "prompts/list", nil)
	if err != nil {
		return nil, err
	}
	if resp.Error != nil {
		return nil, fmt.Errorf("prompts/list: %s", resp.Error.Message)
	}
	resultMap, _ := resp.Result.(map[string]any)
	raw, _ := resultMap["prompts"].([]any)

	var out []Prompt
	for _, p := range raw {
		m, ok := p.(map[string]any)
		if !ok {
			continue
		}
		name, _ := m["name"].(string)
		desc, _ := m["description"].(string)
		out = append(out, Prompt{Name: name, Description: desc})
	}
	return out, nil
}

func (h *HTTPExtension) GetPrompt(ctx context.Context, name string, args map[string]any) ([]PromptMessage, error) {
	resp, err := h.call(ctx, "prompts/get", map[string]any{"name": name, "arguments": args})
	if err != nil {
		return nil, err
	}
	if resp.Error != nil {
		return nil, fmt.Errorf("prompts/get: %s", resp.Error.Message)
	}

	resultMap, _ := resp.Result.(map[string]any)
	raw, _ := resultMap["messages"].([]any)

	var out []PromptMessage
	for _, msg := range raw {
		m, ok := msg.(map[string]any)
		if !ok {
			continue
		}
		role := convo.RoleUser
		if r, _ := m["role"].(string); r == "assistant" {
			role = convo.RoleAssistant
		}
		content := ""
		if cm, ok := m["content"].(map[string]any); ok {
			content, _ = cm["text"].(string)
		}
		out = append(out, PromptMessage{Role: role, Content: content})
	}
	return out, nil
}

func (h *HTTPExtension) Close() error { return nil }

var _ Extension = (*HTTPExtension)(nil)
