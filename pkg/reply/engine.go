package reply

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/agentrt/goagent/pkg/compact"
	"github.com/agentrt/goagent/pkg/convo"
	"github.com/agentrt/goagent/pkg/dispatch"
	"github.com/agentrt/goagent/pkg/extension"
	"github.com/agentrt/goagent/pkg/permission"
	"github.com/agentrt/goagent/pkg/provider"
	"github.com/agentrt/goagent/pkg/retrygov"
)

// defaultMaxTurns is the per-reply turn budget when Engine.MaxTurns is
// unset (spec.md §6.2 "GOOSE_MAX_TURNS ... 1000").
const defaultMaxTurns = 1000

const turnBudgetNotice = "I've reached the maximum number of actions I can take. Let me know if you'd like me to continue."

const chatModeDisabledText = "Tool calls are disabled in chat mode."

const declinedText = "Declined by user."

// MetricsSink receives per-call usage as the turn loop progresses
// (spec.md §4.8 step 3 "Update session metrics (C10)").
type MetricsSink interface {
	RecordUsage(ctx context.Context, usage *provider.Usage)
}

// ToolMetricsSink records the dispatcher's per-call counters and the
// auto-compactor's pass count (spec.md §4.3, §4.6, C10) — implemented by
// pkg/metrics.Collector/Recorder.
type ToolMetricsSink interface {
	RecordToolCall(toolName string, duration time.Duration, errored bool)
	RecordCompaction(reason string)
}

// SessionMetricsSink tracks how many sessions currently have a turn
// loop running (C10's sessions_active gauge) — implemented by
// pkg/metrics.Collector/Recorder.
type SessionMetricsSink interface {
	SessionStarted()
	SessionEnded()
}

// Router narrows the active tool list to those relevant to query
// (spec.md §4.9). Implemented by pkg/router.
type Router interface {
	Narrow(ctx context.Context, tools []provider.ToolDefinition, query string) ([]provider.ToolDefinition, error)
}

// SystemPromptBuilder renders the system prompt for one turn from the
// active tool list (spec.md §4.8 step 2: "configured template +
// frontend instructions + optional final-output contract").
type SystemPromptBuilder func(tools []provider.ToolDefinition) string

// Engine drives the reply turn loop.
type Engine struct {
	Provider   provider.Provider
	Extensions *extension.Manager

	// PlatformTools are offered to the model alongside extension tools
	// every turn — final_output, subagent_execute_task,
	// dynamic_task_create, todo_read/write, router_llm_search, and any
	// platform_* management tools the host has enabled.
	PlatformTools []provider.ToolDefinition

	Dispatcher *dispatch.Dispatcher
	Gate       *permission.Gate
	Mode       permission.Mode

	FrontendTools map[string]bool

	Compactor      *compact.Compactor
	RetryGovernor  *retrygov.Governor
	Router         Router
	Metrics        MetricsSink
	ToolMetrics    ToolMetricsSink
	SessionMetrics SessionMetricsSink

	MaxTurns     int
	SystemPrompt SystemPromptBuilder
}

func (e *Engine) maxTurns() int {
	if e.MaxTurns > 0 {
		return e.MaxTurns
	}
	return defaultMaxTurns
}

// Reply starts a new turn loop over conv and returns a Stream the
// caller drives by consuming Events() and answering HandleConfirmation /
// HandleToolResult as requested.
func (e *Engine) Reply(ctx context.Context, conv *convo.Conversation) *Stream {
	ctx, cancel := context.WithCancel(ctx)
	s := newStream(cancel)
	if e.SessionMetrics != nil {
		e.SessionMetrics.SessionStarted()
	}
	go e.run(ctx, s, conv.Clone())
	return s
}

func (e *Engine) run(ctx context.Context, s *Stream, conv *convo.Conversation) {
	defer close(s.events)
	if e.SessionMetrics != nil {
		defer e.SessionMetrics.SessionEnded()
	}

	turnCount := 0
	retryAttempt := 0
	lastModel := ""

	for {
		if ctx.Err() != nil {
			return
		}

		conv, _ = convo.Repair(conv)

		if e.Compactor != nil && !e.preflightCompact(ctx, s, &conv) {
			return
		}

		turnCount++
		if turnCount > e.maxTurns() {
			s.emit(ctx, MessageEvent{Message: convo.NewMessage(convo.RoleAssistant, &convo.Text{Value: turnBudgetNotice})})
			return
		}

		tools, annotations, err := e.activeTools(ctx, conv)
		if err != nil {
			s.emit(ctx, MessageEvent{Message: convo.NewMessage(convo.RoleAssistant, &convo.Text{Value: "Unable to prepare tools for this turn."})})
			return
		}

		systemPrompt := ""
		if e.SystemPrompt != nil {
			systemPrompt = e.SystemPrompt(tools)
		}

		req := &provider.Request{System: systemPrompt, Messages: conv.Messages, Tools: tools}

		assistantMsg, streamErr, sawToolRequests := e.consumeStream(ctx, s, req, &lastModel)
		if ctx.Err() != nil {
			return
		}
		if streamErr != nil {
			e.handleProviderError(ctx, s, streamErr)
			return
		}

		if !sawToolRequests {
			if assistantMsg != nil {
				conv.Append(assistantMsg)
			}
			restart, stop := e.runRetryGovernor(ctx, s, conv, &retryAttempt)
			if stop {
				return
			}
			if restart != nil {
				conv = restart
				continue
			}
			return
		}

		if !s.emit(ctx, MessageEvent{Message: assistantMsg}) {
			return
		}
		conv.Append(assistantMsg)

		aggregated, finalOutput, ok := e.fanOut(ctx, s, assistantMsg, annotations)
		if !ok {
			return
		}

		conv.Append(aggregated)
		if !s.emit(ctx, MessageEvent{Message: aggregated}) {
			return
		}

		if finalOutput != nil {
			s.emit(ctx, MessageEvent{Message: convo.NewMessage(convo.RoleAssistant, &convo.Text{Value: finalOutput.Text()})})
			return
		}
	}
}

// preflightCompact runs the compaction loop (spec.md §4.6 and §4.8 step
// 1). It reports false if the reply should end (cancellation or
// channel closed mid-emit).
func (e *Engine) preflightCompact(ctx context.Context, s *Stream, conv **convo.Conversation) bool {
	for e.Compactor.ShouldCompact(*conv) {
		if ctx.Err() != nil {
			return false
		}
		if !s.emit(ctx, MessageEvent{Message: convo.NewMessage(convo.RoleAssistant, &convo.SummarizationNotice{Explanation: e.Compactor.ThresholdMessage()})}) {
			return false
		}

		result, err := e.Compactor.Compact(ctx, *conv)
		if err != nil {
			// Nothing left to summarize — proceed with the oversized
			// history rather than spin forever.
			return true
		}
		if e.Metrics != nil && result.Usage != nil {
			e.Metrics.RecordUsage(ctx, result.Usage)
		}
		if e.ToolMetrics != nil {
			e.ToolMetrics.RecordCompaction("threshold")
		}

		*conv = result.Conversation
		if !s.emit(ctx, HistoryReplacedEvent{Messages: append([]*convo.Message(nil), (*conv).Messages...)}) {
			return false
		}
	}
	return true
}

// activeTools builds this turn's tool list: extension tools qualified by
// name, plus platform tools, optionally narrowed by the router. It also
// returns a name→annotations index for the permission gate.
func (e *Engine) activeTools(ctx context.Context, conv *convo.Conversation) ([]provider.ToolDefinition, map[string]convo.ToolAnnotations, error) {
	var defs []provider.ToolDefinition

	if e.Extensions != nil {
		specs, err := e.Extensions.AllTools(ctx)
		if err != nil {
			return nil, nil, fmt.Errorf("list extension tools: %w", err)
		}
		for _, t := range specs {
			defs = append(defs, provider.ToolDefinition{Name: t.Name, Description: t.Description, Parameters: t.Schema, Annotations: t.Annotations})
		}
	}
	defs = append(defs, e.PlatformTools...)

	sort.Slice(defs, func(i, j int) bool { return defs[i].Name < defs[j].Name })

	annotations := make(map[string]convo.ToolAnnotations, len(defs))
	for _, d := range defs {
		annotations[d.Name] = d.Annotations
	}

	if e.Router != nil {
		query := lastUserText(conv)
		narrowed, err := e.Router.Narrow(ctx, defs, query)
		if err == nil && narrowed != nil {
			return narrowed, annotations, nil
		}
		// Router failure falls back to the full tool list (spec.md §4.9).
	}
	return defs, annotations, nil
}

func lastUserText(conv *convo.Conversation) string {
	for i := len(conv.Messages) - 1; i >= 0; i-- {
		if conv.Messages[i].Role == convo.RoleUser {
			return conv.Messages[i].Text()
		}
	}
	return ""
}

// consumeStream drains one provider.Stream call, emitting plain
// messages and ModelChange events as they arrive, and stopping at the
// first message carrying tool requests.
func (e *Engine) consumeStream(ctx context.Context, s *Stream, req *provider.Request, lastModel *string) (assistantMsg *convo.Message, streamErr error, sawToolRequests bool) {
	for chunk, err := range e.Provider.Stream(ctx, req) {
		if ctx.Err() != nil {
			return nil, nil, false
		}
		if err != nil {
			return nil, err, false
		}
		if chunk == nil {
			continue
		}
		if chunk.Usage != nil {
			if e.Metrics != nil {
				e.Metrics.RecordUsage(ctx, chunk.Usage)
			}
			if chunk.Usage.Model != "" && chunk.Usage.Model != *lastModel {
				mode := e.modelMode(chunk.Usage.Model)
				if !s.emit(ctx, ModelChangeEvent{Model: chunk.Usage.Model, Mode: mode}) {
					return nil, nil, false
				}
				*lastModel = chunk.Usage.Model
			}
		}
		if chunk.Message == nil {
			continue
		}
		if !chunk.Message.HasToolRequests() {
			if !s.emit(ctx, MessageEvent{Message: chunk.Message}) {
				return nil, nil, false
			}
			assistantMsg = chunk.Message
			continue
		}
		return chunk.Message, nil, true
	}
	return assistantMsg, nil, false
}

func (e *Engine) modelMode(model string) ModelMode {
	lw, ok := e.Provider.(provider.LeadWorker)
	if !ok {
		return ModelUnknown
	}
	lead, worker, has := lw.AsLeadWorker()
	if !has {
		return ModelUnknown
	}
	switch model {
	case lead:
		return ModelLead
	case worker:
		return ModelWorker
	default:
		return ModelUnknown
	}
}

func (e *Engine) handleProviderError(ctx context.Context, s *Stream, err error) {
	if provider.IsContextLengthExceeded(err) {
		s.emit(ctx, MessageEvent{Message: convo.NewMessage(convo.RoleAssistant, &convo.ContextLengthExceeded{})})
		return
	}
	s.emit(ctx, MessageEvent{Message: convo.NewMessage(convo.RoleAssistant, &convo.Text{Value: "The model provider returned an error; this turn has ended."})})
}

func (e *Engine) runRetryGovernor(ctx context.Context, s *Stream, conv *convo.Conversation, attempt *int) (restart *convo.Conversation, stop bool) {
	if e.RetryGovernor == nil {
		return nil, true
	}
	*attempt++
	outcome, err := e.RetryGovernor.Evaluate(ctx, *attempt, conv)
	if err != nil {
		s.emit(ctx, MessageEvent{Message: convo.NewMessage(convo.RoleAssistant, &convo.Text{Value: "Unable to evaluate completion checks."})})
		return nil, true
	}
	if outcome.Satisfied {
		return nil, true
	}
	if outcome.ShouldRestart {
		return convo.New(outcome.RestartMessages...), false
	}
	if outcome.Exhausted {
		s.emit(ctx, MessageEvent{Message: convo.NewMessage(convo.RoleAssistant, &convo.Text{Value: "Reached the maximum number of attempts without satisfying all completion checks."})})
	}
	return nil, true
}

// fanOut categorises assistantMsg's tool requests and dispatches them,
// returning the aggregated tool-response message in request order. ok is
// false if the reply ended (e.g. cancellation) before fan-out completed.
func (e *Engine) fanOut(ctx context.Context, s *Stream, assistantMsg *convo.Message, annotations map[string]convo.ToolAnnotations) (aggregated *convo.Message, finalOutput *convo.ToolResult, ok bool) {
	reqs := assistantMsg.ToolRequests()
	if len(reqs) == 0 {
		return convo.NewMessage(convo.RoleUser), nil, true
	}

	results := make(map[string]*convo.ToolResult, len(reqs))
	var resultsMu sync.Mutex
	var wg sync.WaitGroup

	store := func(id string, result *convo.ToolResult) {
		resultsMu.Lock()
		results[id] = result
		resultsMu.Unlock()
	}

	var frontendReqs []*convo.ToolRequest
	var gateReqs []permission.Request

	for _, r := range reqs {
		if r.Call == nil {
			store(r.RequestID, convo.ErrResult("invalid_tool_call", r.ParseError))
			continue
		}
		if e.FrontendTools[r.Call.Name] {
			frontendReqs = append(frontendReqs, r)
			continue
		}
		gateReqs = append(gateReqs, permission.Request{
			RequestID:   r.RequestID,
			ToolName:    r.Call.Name,
			Call:        r.Call,
			Annotations: annotations[r.Call.Name],
		})
	}

	if len(frontendReqs) > 0 {
		var names []string
		for _, r := range frontendReqs {
			names = append(names, r.Call.Name)
		}
		if !s.emit(ctx, MessageEvent{Message: convo.NewMessage(convo.RoleUser, &convo.Text{Value: fmt.Sprintf("Awaiting frontend execution of: %v", names)})}) {
			return nil, nil, false
		}
		for _, r := range frontendReqs {
			wg.Add(1)
			go func(r *convo.ToolRequest) {
				defer wg.Done()
				ch := s.awaitToolResult(r.RequestID)
				select {
				case result := <-ch:
					store(r.RequestID, result)
				case <-ctx.Done():
				}
			}(r)
		}
	}

	if e.Gate != nil && len(gateReqs) > 0 {
		classified := e.Gate.Classify(ctx, gateReqs, e.Mode)

		for _, r := range classified.Skipped {
			store(r.RequestID, convo.ErrResult("chat_mode_disabled", chatModeDisabledText))
		}
		for _, r := range classified.Denied {
			store(r.RequestID, convo.ErrResult("permission_denied", declinedText))
		}
		for _, r := range classified.Approved {
			wg.Add(1)
			go e.dispatchOne(ctx, s, &wg, store, r.RequestID, r.Call)
		}
		if len(classified.NeedsApproval) > 0 {
			var names []string
			for _, r := range classified.NeedsApproval {
				names = append(names, r.ToolName)
			}
			if !s.emit(ctx, MessageEvent{Message: convo.NewMessage(convo.RoleUser, &convo.Text{Value: fmt.Sprintf("Approval requested for: %v", names)})}) {
				return nil, nil, false
			}
			for _, r := range classified.NeedsApproval {
				wg.Add(1)
				go func(r permission.Request) {
					defer wg.Done()
					ch := s.awaitConfirmation(r.RequestID)
					select {
					case confirmation := <-ch:
						if confirmation.Allow == AllowNever {
							store(r.RequestID, convo.ErrResult("permission_denied", declinedText))
							return
						}
						e.dispatchOneSync(ctx, s, store, r.RequestID, r.Call)
					case <-ctx.Done():
					}
				}(r)
			}
		}
	} else if e.Gate == nil {
		// No gate configured: dispatch everything directly.
		for _, r := range gateReqs {
			wg.Add(1)
			go e.dispatchOne(ctx, s, &wg, store, r.RequestID, r.Call)
		}
	}

	wg.Wait()
	if ctx.Err() != nil {
		return nil, nil, false
	}

	content := make([]convo.Content, 0, len(reqs))
	for _, r := range reqs {
		result := results[r.RequestID]
		if result == nil {
			result = convo.ErrResult("tool_not_found", "no result was produced for this tool call")
		}
		content = append(content, &convo.ToolResponse{RequestID: r.RequestID, Result: result})
		if r.Call != nil && r.Call.Name == dispatch.ToolFinalOutput && !result.IsErr() {
			finalOutput = result
		}
	}

	return convo.NewMessage(convo.RoleUser, content...), finalOutput, true
}

func (e *Engine) dispatchOne(ctx context.Context, s *Stream, wg *sync.WaitGroup, store func(string, *convo.ToolResult), requestID string, call *convo.ToolCall) {
	defer wg.Done()
	e.dispatchOneSync(ctx, s, store, requestID, call)
}

func (e *Engine) dispatchOneSync(ctx context.Context, s *Stream, store func(string, *convo.ToolResult), requestID string, call *convo.ToolCall) {
	start := time.Now()
	h, err := e.Dispatcher.Dispatch(ctx, requestID, call, ctx.Done())
	if err != nil {
		if errors.Is(err, dispatch.ErrFrontendToolExecutionRequired) {
			return
		}
		if e.ToolMetrics != nil {
			e.ToolMetrics.RecordToolCall(call.Name, time.Since(start), true)
		}
		store(requestID, convo.ErrResult("tool_not_found", err.Error()))
		return
	}

	if h.Notifications != nil {
		for n := range h.Notifications {
			s.emit(ctx, McpNotificationEvent{RequestID: requestID, Payload: n.Payload})
		}
	}

	select {
	case result := <-h.Result:
		if e.ToolMetrics != nil {
			e.ToolMetrics.RecordToolCall(call.Name, time.Since(start), result.IsErr())
		}
		store(requestID, result)
	case <-ctx.Done():
	}
}
