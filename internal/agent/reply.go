package agent

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/tlongwell-block/goose/internal/config"
	"github.com/tlongwell-block/goose/internal/observability"
	"github.com/tlongwell-block/goose/internal/providers"
	"github.com/tlongwell-block/goose/internal/sessions"
	"github.com/tlongwell-block/goose/pkg/models"
)

// replyBufferSize is the event channel buffer. The stream stays
// consumer-paced: once the buffer fills the loop suspends until the
// caller polls.
const replyBufferSize = 64

const contextLengthExceededText = "The context length of the model has been exceeded. Please start a new session and try again."

// inflightTool pairs a dispatched tool's request id with its streams.
type inflightTool struct {
	requestID string
	result    models.ToolCallResult
}

// toolStreamItem is one element of the merged tool stream: either a
// notification or the final outcome of one request.
type toolStreamItem struct {
	requestID    string
	notification *models.JSONRPCMessage
	outcome      *models.ToolOutcome
}

// Reply drives provider turns until the assistant produces a terminal
// message with no tool calls, streaming AgentEvents to the returned
// channel. The channel closes when the conversation completes, a provider
// error terminates it, or ctx is cancelled. Cancelling ctx abandons
// in-flight dispatches and releases any confirmation or frontend waits.
func (a *Agent) Reply(ctx context.Context, initial []models.Message, session *SessionConfig) (<-chan models.AgentEvent, error) {
	if _, err := a.currentProvider(); err != nil {
		return nil, err
	}

	tools, systemPrompt, err := a.prepareToolsAndPrompt()
	if err != nil {
		return nil, err
	}

	messages := append([]models.Message(nil), initial...)
	mode := config.GooseMode()
	readonlyTools, unannotatedTools := categorizeToolsByAnnotation(tools)

	events := make(chan models.AgentEvent, replyBufferSize)

	go func() {
		defer close(events)

		yield := func(ev models.AgentEvent) bool {
			select {
			case events <- ev:
				return true
			case <-ctx.Done():
				return false
			}
		}

		for {
			if ctx.Err() != nil {
				return
			}

			provider, err := a.currentProvider()
			if err != nil {
				yield(models.NewMessageEvent(models.NewAssistantMessage().WithText(fmt.Sprintf(
					"Ran into this error: %v.\n\nPlease retry if you think this is a transient or recoverable error.", err))))
				return
			}

			response, usage, err := provider.Complete(ctx, systemPrompt, messages, tools)
			if err != nil {
				if providers.IsContextLengthExceeded(err) {
					observability.RecordProviderTurn("context_length")
					yield(models.NewMessageEvent(
						models.NewAssistantMessage().WithContextLengthExceeded(contextLengthExceededText)))
				} else {
					observability.RecordProviderTurn("error")
					a.logger.Error("provider turn failed", "error", err)
					yield(models.NewMessageEvent(models.NewAssistantMessage().WithText(fmt.Sprintf(
						"Ran into this error: %v.\n\nPlease retry if you think this is a transient or recoverable error.", err))))
				}
				return
			}
			observability.RecordProviderTurn("ok")

			if session != nil {
				a.updateSessionMetrics(ctx, *session, usage, len(messages))
			}

			frontendReqs, remainingReqs, filtered := a.categorizeToolRequests(response)

			if selector := a.routerSelector(); selector != nil {
				for _, req := range frontendReqs {
					selector.RecordToolCall(req.ToolCall.Name)
				}
				for _, req := range remainingReqs {
					selector.RecordToolCall(req.ToolCall.Name)
				}
			}

			// The assistant message minus frontend tool-use parts; the
			// frontend requests are re-surfaced one by one below.
			if !yield(models.NewMessageEvent(filtered)) {
				return
			}

			if len(frontendReqs)+len(remainingReqs) == 0 {
				return
			}

			toolResponse := models.NewUserMessage()

			// A. Frontend tools: surface each request to the caller and
			// wait for its result on the tool_result channel.
			for _, req := range frontendReqs {
				surfaced := models.NewAssistantMessage().WithToolRequest(req.ID, req.ToolCall)
				if !yield(models.NewMessageEvent(surfaced)) {
					return
				}
				outcome, ok := a.awaitToolResult(ctx, req.ID)
				if !ok {
					return
				}
				toolResponse = toolResponse.WithToolResponse(req.ID, outcome.Content, outcome.Err)
			}

			if mode == config.ModeChat {
				for _, req := range remainingReqs {
					toolResponse = toolResponse.WithToolResponse(req.ID,
						[]models.Content{models.NewTextContent(chatModeSkippedResponse)}, nil)
				}
			} else {
				// B. Permission gate.
				check, enableIDs := checkToolPermissions(
					remainingReqs, mode, readonlyTools, unannotatedTools, a.permissionManager, nil)

				var inflight []inflightTool
				for _, req := range check.approved {
					inflight = append(inflight, a.startDispatch(ctx, req))
				}
				for _, req := range check.denied {
					toolResponse = toolResponse.WithToolResponse(req.ID,
						[]models.Content{models.NewTextContent(declinedResponse)}, nil)
				}

				// C. Prompt for approval, one request at a time.
				for _, req := range check.needsApproval {
					confirmMsg := models.NewAssistantMessage().WithToolConfirmationRequest(
						req.ID, req.ToolCall.Name, req.ToolCall.Arguments,
						"Goose would like to call the above tool. Allow?")
					if !yield(models.NewMessageEvent(confirmMsg)) {
						return
					}

					confirmation, ok := a.awaitConfirmation(ctx, req.ID)
					if !ok {
						return
					}
					if confirmation.Decision.Sticky() {
						if err := a.permissionManager.Set(req.ToolCall.Name, confirmation.Decision); err != nil {
							a.logger.Warn("failed to persist permission decision",
								"tool", req.ToolCall.Name, "error", err)
						}
					}
					if confirmation.Allowed() {
						inflight = append(inflight, a.startDispatch(ctx, req))
					} else {
						toolResponse = toolResponse.WithToolResponse(req.ID,
							[]models.Content{models.NewTextContent(declinedResponse)}, nil)
					}
				}

				// D. Drain notifications and results in arrival order.
				allInstallsOK := true
				for item := range mergeToolStreams(ctx, inflight) {
					if item.notification != nil {
						if !yield(models.NewMcpNotificationEvent(item.requestID, *item.notification)) {
							return
						}
						continue
					}
					outcome := *item.outcome
					if enableIDs[item.requestID] && outcome.Err != nil {
						allInstallsOK = false
					}
					toolResponse = toolResponse.WithToolResponse(item.requestID, outcome.Content, outcome.Err)
				}
				if ctx.Err() != nil {
					return
				}

				// E. Reload tools and prompt once new extensions are in.
				if len(enableIDs) > 0 && allInstallsOK {
					newTools, newPrompt, err := a.prepareToolsAndPrompt()
					if err != nil {
						a.logger.Warn("failed to reload tools after extension install", "error", err)
					} else {
						tools, systemPrompt = newTools, newPrompt
						readonlyTools, unannotatedTools = categorizeToolsByAnnotation(tools)
					}
				}
			}

			if !yield(models.NewMessageEvent(toolResponse)) {
				return
			}
			messages = append(messages, response, toolResponse)
		}
	}()

	return events, nil
}

// startDispatch kicks off one tool dispatch, normalizing dispatch-time
// failures into a resolved result.
func (a *Agent) startDispatch(ctx context.Context, req models.ToolRequest) inflightTool {
	requestID, result, err := a.dispatchToolCall(ctx, req.ToolCall, req.ID)
	if err != nil {
		result = models.ResolvedToolCallResult(nil, err)
	}
	return inflightTool{requestID: requestID, result: result}
}

// categorizeToolRequests splits the assistant message into frontend tool
// requests, remaining tool requests, and a filtered copy of the message
// with frontend tool-use parts removed.
func (a *Agent) categorizeToolRequests(msg models.Message) (frontend, remaining []models.ToolRequest, filtered models.Message) {
	filtered = msg
	filtered.Content = nil

	for _, part := range msg.Content {
		if part.Type == models.ContentTypeToolRequest && part.ToolRequest != nil &&
			a.IsFrontendTool(part.ToolRequest.ToolCall.Name) {
			frontend = append(frontend, *part.ToolRequest)
			continue
		}
		if part.Type == models.ContentTypeToolRequest && part.ToolRequest != nil {
			remaining = append(remaining, *part.ToolRequest)
		}
		filtered.Content = append(filtered.Content, part)
	}
	return frontend, remaining, filtered
}

// awaitConfirmation blocks until a confirmation for requestID arrives.
// Confirmations for other requests are dropped with a warning. A false
// return means ctx was cancelled.
func (a *Agent) awaitConfirmation(ctx context.Context, requestID string) (PermissionConfirmation, bool) {
	a.confirmationsRx.Lock()
	defer a.confirmationsRx.Unlock()

	for {
		select {
		case env := <-a.confirmations:
			if env.requestID != requestID {
				a.logger.Warn("dropping confirmation for unknown request", "request_id", env.requestID)
				continue
			}
			return env.confirmation, true
		case <-ctx.Done():
			return PermissionConfirmation{}, false
		}
	}
}

// awaitToolResult blocks until a frontend tool result for requestID
// arrives. Results for other requests are dropped with a warning.
func (a *Agent) awaitToolResult(ctx context.Context, requestID string) (models.ToolOutcome, bool) {
	a.toolResultsRx.Lock()
	defer a.toolResultsRx.Unlock()

	for {
		select {
		case env := <-a.toolResults:
			if env.requestID != requestID {
				a.logger.Warn("dropping tool result for unknown request", "request_id", env.requestID)
				continue
			}
			return env.outcome, true
		case <-ctx.Done():
			return models.ToolOutcome{}, false
		}
	}
}

// mergeToolStreams fans the in-flight tools' notification streams and
// completion futures into one channel, preserving arrival order across
// tools. The channel closes once every tool has resolved (or ctx is
// cancelled).
func mergeToolStreams(ctx context.Context, inflight []inflightTool) <-chan toolStreamItem {
	merged := make(chan toolStreamItem)
	var wg sync.WaitGroup

	for _, tool := range inflight {
		wg.Add(1)
		go func(tool inflightTool) {
			defer wg.Done()
			notifs := tool.result.Notifications
			results := tool.result.Result

			for notifs != nil || results != nil {
				select {
				case msg, ok := <-notifs:
					if !ok {
						notifs = nil
						continue
					}
					item := toolStreamItem{requestID: tool.requestID, notification: &msg}
					select {
					case merged <- item:
					case <-ctx.Done():
						return
					}
				case outcome, ok := <-results:
					if !ok {
						results = nil
						continue
					}
					results = nil
					item := toolStreamItem{requestID: tool.requestID, outcome: &outcome}
					select {
					case merged <- item:
					case <-ctx.Done():
						return
					}
				case <-ctx.Done():
					return
				}
			}
		}(tool)
	}

	go func() {
		wg.Wait()
		close(merged)
	}()
	return merged
}

// updateSessionMetrics accumulates token usage into the session store.
func (a *Agent) updateSessionMetrics(ctx context.Context, session SessionConfig, usage providers.Usage, messageCount int) {
	if a.sessionStore == nil {
		return
	}

	meta, ok, err := a.sessionStore.Get(ctx, session.ID)
	if err != nil {
		a.logger.Warn("failed to load session metadata", "session", session.ID, "error", err)
		return
	}
	if !ok {
		meta = sessions.Metadata{
			ID:         session.ID,
			ScheduleID: session.ScheduleID,
			WorkingDir: session.WorkingDir,
		}
	}

	meta.MessageCount = messageCount
	meta.InputTokens += usage.InputTokens
	meta.OutputTokens += usage.OutputTokens
	meta.TotalTokens += usage.TotalTokens
	meta.UpdatedAt = time.Now()

	if err := a.sessionStore.Upsert(ctx, meta); err != nil {
		a.logger.Warn("failed to update session metrics", "session", session.ID, "error", err)
	}
}
