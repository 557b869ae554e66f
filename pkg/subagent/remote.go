package subagent

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
)

// RemoteTarget names a task's "remote" isolation mode (spec.md §4.10):
// instead of spawning a local child reply.Engine, the task is delegated
// to another agent process over HTTP. This reuses the extension
// manager's StreamableHttp shape (POST a JSON request body, read a JSON
// response) rather than introducing a second RPC transport.
type RemoteTarget struct {
	URI     string
	Headers map[string]string
}

type remoteRequest struct {
	RecipeRef string            `json:"recipe_ref"`
	Inputs    map[string]string `json:"inputs"`
}

type remoteResponse struct {
	Status  Status `json:"status"`
	Output  string `json:"output"`
	Message string `json:"message"`
}

// remoteClient is the subset of *http.Client a RemoteTarget task needs,
// kept narrow so tests can substitute a fake round-tripper.
type remoteClient interface {
	Do(req *http.Request) (*http.Response, error)
}

var defaultRemoteClient remoteClient = &http.Client{}

func (e *Executor) runRemote(ctx context.Context, task Task, target RemoteTarget) Result {
	body, err := json.Marshal(remoteRequest{RecipeRef: task.RecipeRef, Inputs: task.Inputs})
	if err != nil {
		return Result{RecipeRef: task.RecipeRef, Status: StatusError, Output: fmt.Sprintf("failed to encode remote task: %v", err)}
	}

	taskCtx := ctx
	if task.Timeout > 0 {
		var cancel context.CancelFunc
		taskCtx, cancel = context.WithTimeout(ctx, task.Timeout)
		defer cancel()
	}

	req, err := http.NewRequestWithContext(taskCtx, http.MethodPost, target.URI, bytes.NewReader(body))
	if err != nil {
		return Result{RecipeRef: task.RecipeRef, Status: StatusError, Output: fmt.Sprintf("failed to build remote request: %v", err)}
	}
	req.Header.Set("Content-Type", "application/json")
	for k, v := range target.Headers {
		req.Header.Set(k, v)
	}

	client := e.RemoteClient
	if client == nil {
		client = defaultRemoteClient
	}

	resp, err := client.Do(req)
	if err != nil {
		if taskCtx.Err() == context.DeadlineExceeded {
			return Result{RecipeRef: task.RecipeRef, Status: StatusTimeout, Output: "remote sub-agent task exceeded its timeout"}
		}
		if ctx.Err() != nil {
			return Result{RecipeRef: task.RecipeRef, Status: StatusCancelled, Output: "remote sub-agent task cancelled"}
		}
		return Result{RecipeRef: task.RecipeRef, Status: StatusError, Output: fmt.Sprintf("remote sub-agent call failed: %v", err)}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return Result{RecipeRef: task.RecipeRef, Status: StatusError, Output: fmt.Sprintf("remote sub-agent returned status %d", resp.StatusCode)}
	}

	var decoded remoteResponse
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return Result{RecipeRef: task.RecipeRef, Status: StatusError, Output: fmt.Sprintf("failed to decode remote response: %v", err)}
	}
	if decoded.Status == "" {
		decoded.Status = StatusOK
	}
	if decoded.Output == "" {
		decoded.Output = decoded.Message
	}
	return Result{RecipeRef: task.RecipeRef, Status: decoded.Status, Output: decoded.Output}
}
