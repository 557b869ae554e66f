package subagent

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeRoundTripper struct {
	respond func(req *http.Request) (*http.Response, error)
}

func (f fakeRoundTripper) Do(req *http.Request) (*http.Response, error) {
	return f.respond(req)
}

func jsonResponse(status int, body any) *http.Response {
	b, _ := json.Marshal(body)
	return &http.Response{
		StatusCode: status,
		Body:       io.NopCloser(bytes.NewReader(b)),
	}
}

func TestExecutor_RemoteTaskSucceeds(t *testing.T) {
	var captured remoteRequest
	client := fakeRoundTripper{respond: func(req *http.Request) (*http.Response, error) {
		body, _ := io.ReadAll(req.Body)
		require.NoError(t, json.Unmarshal(body, &captured))
		return jsonResponse(http.StatusOK, remoteResponse{Status: StatusOK, Output: "remote done"}), nil
	}}

	ex := &Executor{RemoteClient: client}
	results := ex.Execute(context.Background(), []Task{{
		RecipeRef: "summarize",
		Inputs:    map[string]string{"text": "alpha"},
		Remote:    &RemoteTarget{URI: "https://agents.example/run"},
	}})

	require.Len(t, results, 1)
	assert.Equal(t, StatusOK, results[0].Status)
	assert.Equal(t, "remote done", results[0].Output)
	assert.Equal(t, "summarize", captured.RecipeRef)
	assert.Equal(t, "alpha", captured.Inputs["text"])
}

func TestExecutor_RemoteTaskNonOKStatusIsError(t *testing.T) {
	client := fakeRoundTripper{respond: func(req *http.Request) (*http.Response, error) {
		return jsonResponse(http.StatusInternalServerError, remoteResponse{}), nil
	}}

	ex := &Executor{RemoteClient: client}
	results := ex.Execute(context.Background(), []Task{{
		RecipeRef: "summarize",
		Remote:    &RemoteTarget{URI: "https://agents.example/run"},
	}})

	require.Len(t, results, 1)
	assert.Equal(t, StatusError, results[0].Status)
}
