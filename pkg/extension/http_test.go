package extension

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newJSONRPCServer(t *testing.T, handlers map[string]func(req jsonRPCRequest) any) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, err := io.ReadAll(r.Body)
		require.NoError(t, err)

		var req jsonRPCRequest
		require.NoError(t, json.Unmarshal(body, &req))

		handler, ok := handlers[req.Method]
		require.True(t, ok, "unexpected method %q", req.Method)

		w.Header().Set("Content-Type", "application/json")
		resp := jsonRPCResponse{JSONRPC: "2.0", ID: req.ID, Result: handler(req)}
		require.NoError(t, json.NewEncoder(w).Encode(resp))
	}))
}

func TestHTTPExtension_ToolsListsAndFilters(t *testing.T) {
	srv := newJSONRPCServer(t, map[string]func(jsonRPCRequest) any{
		"tools/list": func(req jsonRPCRequest) any {
			return map[string]any{"tools": []any{
				map[string]any{"name": "read", "description": "reads a file"},
				map[string]any{"name": "write", "description": "writes a file"},
			}}
		},
	})
	defer srv.Close()

	ext := NewHTTP(Config{Name: "fs", Kind: KindStreamableHTTP, URL: srv.URL, Filter: []string{"read"}})
	tools, err := ext.Tools(t.Context())
	require.NoError(t, err)
	require.Len(t, tools, 1)
	assert.Equal(t, "read", tools[0].Name)
}

func TestHTTPExtension_CallToolSuccess(t *testing.T) {
	srv := newJSONRPCServer(t, map[string]func(jsonRPCRequest) any{
		"tools/call": func(req jsonRPCRequest) any {
			return map[string]any{"content": []any{
				map[string]any{"type": "text", "text": "file contents"},
			}}
		},
	})
	defer srv.Close()

	ext := NewHTTP(Config{Name: "fs", Kind: KindStreamableHTTP, URL: srv.URL})
	result, notifications, err := ext.CallTool(t.Context(), "read", map[string]any{"path": "a.txt"})
	require.NoError(t, err)
	assert.Empty(t, notifications)
	require.False(t, result.IsErr())
	require.Len(t, result.Items, 1)
	assert.Equal(t, "file contents", result.Items[0].Text)
}

func TestHTTPExtension_CallToolReportsToolError(t *testing.T) {
	srv := newJSONRPCServer(t, map[string]func(jsonRPCRequest) any{
		"tools/call": func(req jsonRPCRequest) any {
			return map[string]any{"isError": true, "content": []any{
				map[string]any{"type": "text", "text": "no such file"},
			}}
		},
	})
	defer srv.Close()

	ext := NewHTTP(Config{Name: "fs", Kind: KindStreamableHTTP, URL: srv.URL})
	result, _, err := ext.CallTool(t.Context(), "read", map[string]any{"path": "missing.txt"})
	require.NoError(t, err)
	require.True(t, result.IsErr())
	assert.Equal(t, "no such file", result.Message)
}

func TestHTTPExtension_SessionIDPropagates(t *testing.T) {
	var sawSessionID string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		sawSessionID = r.Header.Get("mcp-session-id")
		w.Header().Set("mcp-session-id", "sess-123")
		w.Header().Set("Content-Type", "application/json")
		var req jsonRPCRequest
		body, _ := io.ReadAll(r.Body)
		json.Unmarshal(body, &req)
		json.NewEncoder(w).Encode(jsonRPCResponse{JSONRPC: "2.0", ID: req.ID, Result: map[string]any{"tools": []any{}}})
	}))
	defer srv.Close()

	ext := NewHTTP(Config{Name: "fs", Kind: KindStreamableHTTP, URL: srv.URL})
	_, err := ext.Tools(t.Context())
	require.NoError(t, err)
	assert.Empty(t, sawSessionID, "first request carries no session id")

	_, err = ext.Tools(t.Context())
	require.NoError(t, err)
	assert.Equal(t, "sess-123", sawSessionID, "second request carries the session id from the first response")
}
