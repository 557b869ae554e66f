package convo

import "fmt"

// RepairAction names the corrective action a RepairIssue records.
type RepairAction string

const (
	ActionMergedRoles         RepairAction = "merged_roles"
	ActionSynthesizedResponse RepairAction = "synthesized_response"
	ActionDroppedOrphan       RepairAction = "dropped_orphan"
	ActionSynthesizedLeadUser RepairAction = "synthesized_leading_user"
)

// RepairIssue records one corrective action taken by Repair, naming the
// message it applies to and what was done — spec.md §3 requires the
// repair pass to "emit an issue log".
type RepairIssue struct {
	MessageIndex int
	Action       RepairAction
	Detail       string
}

// Repair returns a well-formed copy of c: adjacent same-role messages are
// coalesced, a synthetic leading user message is inserted if the
// conversation doesn't start with one, orphaned tool-responses are
// dropped, and unmatched tool-requests receive a synthesized error
// response. Repair is deterministic and a no-op (besides returning a
// fresh copy) on an already well-formed conversation — repeated
// application is idempotent.
func Repair(c *Conversation) (*Conversation, []RepairIssue) {
	if c == nil || len(c.Messages) == 0 {
		return &Conversation{}, nil
	}

	var issues []RepairIssue

	messages, mergeIssues := coalesceRoles(c.Messages)
	issues = append(issues, mergeIssues...)

	if len(messages) > 0 && messages[0].Role != RoleUser {
		messages = append([]*Message{NewMessage(RoleUser)}, messages...)
		issues = append(issues, RepairIssue{
			MessageIndex: 0,
			Action:       ActionSynthesizedLeadUser,
			Detail:       "conversation did not begin with a user message",
		})
	}

	messages, pairIssues := pairToolCalls(messages)
	issues = append(issues, pairIssues...)

	return &Conversation{Messages: messages}, issues
}

// coalesceRoles merges runs of consecutive same-role messages into one,
// preserving the first message's ID/CreatedAt and concatenating content
// in order.
func coalesceRoles(in []*Message) ([]*Message, []RepairIssue) {
	if len(in) == 0 {
		return nil, nil
	}

	var out []*Message
	var issues []RepairIssue

	current := &Message{
		ID:        in[0].ID,
		Role:      in[0].Role,
		CreatedAt: in[0].CreatedAt,
		Content:   append([]Content(nil), in[0].Content...),
	}
	mergedCount := 0

	for i := 1; i < len(in); i++ {
		m := in[i]
		if m.Role == current.Role {
			current.Content = append(current.Content, m.Content...)
			mergedCount++
			continue
		}
		if mergedCount > 0 {
			issues = append(issues, RepairIssue{
				MessageIndex: len(out),
				Action:       ActionMergedRoles,
				Detail:       fmt.Sprintf("merged %d consecutive %s message(s)", mergedCount, current.Role),
			})
		}
		out = append(out, current)
		current = &Message{
			ID:        m.ID,
			Role:      m.Role,
			CreatedAt: m.CreatedAt,
			Content:   append([]Content(nil), m.Content...),
		}
		mergedCount = 0
	}
	if mergedCount > 0 {
		issues = append(issues, RepairIssue{
			MessageIndex: len(out),
			Action:       ActionMergedRoles,
			Detail:       fmt.Sprintf("merged %d consecutive %s message(s)", mergedCount, current.Role),
		})
	}
	out = append(out, current)

	return out, issues
}

// pairToolCalls drops orphaned tool-responses and synthesizes a
// placeholder response for any tool-request left unanswered by the
// message that follows it. It assumes in alternates strictly by role
// (guaranteed by coalesceRoles having already run).
func pairToolCalls(in []*Message) ([]*Message, []RepairIssue) {
	var issues []RepairIssue

	allRequestIDs := make(map[string]bool)
	for _, m := range in {
		if m.Role != RoleAssistant {
			continue
		}
		for _, tr := range m.ToolRequests() {
			allRequestIDs[tr.RequestID] = true
		}
	}

	out := make([]*Message, len(in))
	for i, m := range in {
		out[i] = &Message{ID: m.ID, Role: m.Role, CreatedAt: m.CreatedAt}
		if m.Role != RoleUser {
			out[i].Content = append([]Content(nil), m.Content...)
			continue
		}
		for _, c := range m.Content {
			tr, ok := c.(*ToolResponse)
			if !ok {
				out[i].Content = append(out[i].Content, c)
				continue
			}
			if allRequestIDs[tr.RequestID] {
				out[i].Content = append(out[i].Content, c)
				continue
			}
			issues = append(issues, RepairIssue{
				MessageIndex: i,
				Action:       ActionDroppedOrphan,
				Detail:       fmt.Sprintf("tool-response %s has no matching tool-request", tr.RequestID),
			})
		}
	}

	var trailing []Content
	for i, m := range out {
		if m.Role != RoleAssistant {
			continue
		}
		reqs := m.ToolRequests()
		if len(reqs) == 0 {
			continue
		}

		var nextUser *Message
		if i+1 < len(out) {
			nextUser = out[i+1]
		}

		answered := make(map[string]bool)
		if nextUser != nil {
			for _, tr := range nextUser.ToolResponses() {
				answered[tr.RequestID] = true
			}
		}

		var missing []*ToolRequest
		for _, r := range reqs {
			if !answered[r.RequestID] {
				missing = append(missing, r)
			}
		}
		if len(missing) == 0 {
			continue
		}

		synth := make([]Content, 0, len(missing))
		for _, r := range missing {
			synth = append(synth, &ToolResponse{
				RequestID: r.RequestID,
				Result:    ErrResult("synthesized", "no response was produced for this tool call"),
			})
			issues = append(issues, RepairIssue{
				MessageIndex: i,
				Action:       ActionSynthesizedResponse,
				Detail:       fmt.Sprintf("synthesized response for tool-request %s", r.RequestID),
			})
		}

		if nextUser != nil {
			nextUser.Content = append(nextUser.Content, synth...)
		} else {
			trailing = append(trailing, synth...)
		}
	}

	if len(trailing) > 0 {
		out = append(out, &Message{
			ID:      NewMessage(RoleUser).ID,
			Role:    RoleUser,
			Content: trailing,
		})
	}

	return out, issues
}
