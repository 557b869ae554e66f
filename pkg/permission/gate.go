// Package permission implements the permission gate (spec.md §4.4): it
// partitions a batch of tool requests into approved, needs-approval, and
// denied sets based on the active Mode, each tool's annotations, and any
// stored policy override.
package permission

import (
	"context"

	"github.com/agentrt/goagent/pkg/convo"
)

// Mode selects the default disposition for tools without an explicit
// stored policy.
type Mode string

const (
	ModeAuto         Mode = "auto"
	ModeApprove      Mode = "approve"
	ModeSmartApprove Mode = "smart_approve"
	ModeChat         Mode = "chat"
)

// Level is a stored per-tool policy override.
type Level string

const (
	LevelAlwaysAllow Level = "always_allow"
	LevelAskBefore   Level = "ask_before"
	LevelNeverAllow  Level = "never_allow"
)

// PolicyStore resolves a stored permission level for a tool. Callers
// typically back this with the permissions file described in spec.md §6.3.
type PolicyStore interface {
	Get(toolName string) (Level, bool)
}

// Classifier is consulted by smart_approve mode to classify a tool call
// the engine can't resolve from annotations or readOnly lists alone
// (spec.md §4.4: "The provider may be consulted to classify ambiguous
// calls"). Implementations wrap a provider.Provider; failure degrades to
// needs_approval per spec.
type Classifier interface {
	IsReadOnly(ctx context.Context, call *convo.ToolCall) (bool, error)
}

// Request is one tool call awaiting a permission decision.
type Request struct {
	RequestID   string
	ToolName    string
	Call        *convo.ToolCall
	Annotations convo.ToolAnnotations
}

// Result partitions a batch of Requests.
type Result struct {
	Approved      []Request
	NeedsApproval []Request
	Denied        []Request
	// Skipped holds tools skipped outright in chat mode — spec.md §4.4:
	// "every tool is skipped... no entry in any output list" for the
	// other three, but the engine still needs to know which requests
	// were skipped so it can reply to each with the fixed chat-mode message.
	Skipped []Request

	// InstallRequestIDs names requests routed to the platform's
	// extension-management tool, so the caller can refresh its tool
	// list once those are satisfied (spec.md §4.4 last bullet).
	InstallRequestIDs []string
}

// Gate classifies tool requests.
type Gate struct {
	ReadonlyToolNames map[string]bool
	RegularToolNames  map[string]bool
	Policy            PolicyStore
	Classifier        Classifier

	// ExtensionManagementTool names the platform tool whose approval
	// should be tracked by request ID (spec.md §4.4 last bullet).
	ExtensionManagementTool string
}

// Classify partitions reqs according to mode.
func (g *Gate) Classify(ctx context.Context, reqs []Request, mode Mode) Result {
	var res Result

	for _, r := range reqs {
		if mode == ModeChat {
			res.Skipped = append(res.Skipped, r)
			continue
		}

		if g.ExtensionManagementTool != "" && r.ToolName == g.ExtensionManagementTool {
			res.InstallRequestIDs = append(res.InstallRequestIDs, r.RequestID)
		}

		if lvl, ok := g.policyFor(r.ToolName); ok {
			switch lvl {
			case LevelAlwaysAllow:
				res.Approved = append(res.Approved, r)
				continue
			case LevelNeverAllow:
				res.Denied = append(res.Denied, r)
				continue
				// LevelAskBefore falls through to mode handling below.
			}
		}

		switch mode {
		case ModeAuto:
			res.Approved = append(res.Approved, r)
		case ModeApprove:
			res.NeedsApproval = append(res.NeedsApproval, r)
		case ModeSmartApprove:
			if g.isReadOnly(ctx, r) {
				res.Approved = append(res.Approved, r)
			} else {
				res.NeedsApproval = append(res.NeedsApproval, r)
			}
		default:
			res.NeedsApproval = append(res.NeedsApproval, r)
		}
	}

	return res
}

func (g *Gate) policyFor(toolName string) (Level, bool) {
	if g.Policy == nil {
		return "", false
	}
	return g.Policy.Get(toolName)
}

// isReadOnly implements smart_approve's classification: annotation or
// configured readonly-name list first, then an optional provider
// classifier, defaulting to "not read-only" (→ needs_approval) on any
// failure, matching spec.md §4.4.
func (g *Gate) isReadOnly(ctx context.Context, r Request) bool {
	if r.Annotations.ReadOnly {
		return true
	}
	if g.ReadonlyToolNames != nil && g.ReadonlyToolNames[r.ToolName] {
		return true
	}
	if g.Classifier == nil || r.Call == nil {
		return false
	}
	ok, err := g.Classifier.IsReadOnly(ctx, r.Call)
	if err != nil {
		return false
	}
	return ok
}
