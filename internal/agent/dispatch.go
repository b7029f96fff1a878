package agent

import (
	"context"
	"time"

	"github.com/tlongwell-block/goose/internal/observability"
	"github.com/tlongwell-block/goose/pkg/models"
)

// dispatchToolCall executes one tool call. It returns the request id with
// either a ToolCallResult (notification stream + completion future) or a
// per-request execution error. Successful outputs pass through the
// large-response post-processor; notification streams pass through
// unchanged.
func (a *Agent) dispatchToolCall(ctx context.Context, call models.ToolCall, requestID string) (string, models.ToolCallResult, error) {
	a.monitorMu.Lock()
	monitor := a.toolMonitor
	a.monitorMu.Unlock()
	if monitor != nil && !monitor.Check(call) {
		observability.RecordRejection()
		return requestID, models.ToolCallResult{},
			models.NewExecutionError("Tool call rejected: exceeded maximum allowed repetitions")
	}

	kind := classifyTool(call.Name, a.IsFrontendTool)
	observability.RecordDispatch(string(kind))

	var result models.ToolCallResult
	switch kind {
	case dispatchPlatformSchedule:
		content, err := a.handleScheduleManagement(ctx, call.Arguments)
		result = models.ResolvedToolCallResult(content, err)

	case dispatchPlatformManageExtensions:
		content, err := a.manageExtensions(ctx, call.Arguments)
		result = models.ResolvedToolCallResult(content, err)

	case dispatchPlatformReadResource:
		content, err := a.extensionMgr().ReadResource(ctx, call.Arguments)
		result = models.ResolvedToolCallResult(content, asExecutionError(err))

	case dispatchPlatformListResources:
		content, err := a.extensionMgr().ListResources(ctx, call.Arguments)
		result = models.ResolvedToolCallResult(content, asExecutionError(err))

	case dispatchPlatformSearchExtensions:
		content, err := a.extensionMgr().SearchAvailableExtensions()
		result = models.ResolvedToolCallResult(content, asExecutionError(err))

	case dispatchFrontend:
		// Not a real failure: the reply loop intercepts frontend requests
		// before dispatch and this sentinel only fires when one slips
		// through a direct dispatch.
		result = models.ResolvedToolCallResult(nil, models.NewExecutionError(frontendRequiredError))

	case dispatchRouterVectorSearch:
		if selector := a.routerSelector(); selector != nil {
			content, err := selector.SelectTools(ctx, call.Arguments)
			result = models.ResolvedToolCallResult(content, asExecutionError(err))
		} else {
			result = models.ResolvedToolCallResult(nil, models.NewExecutionError("Encountered vector search error."))
		}

	default:
		var err error
		result, err = a.extensionMgr().DispatchToolCall(ctx, call)
		if err != nil {
			result = models.ResolvedToolCallResult(nil, models.NewExecutionError(err.Error()))
		}
	}

	return requestID, a.wrapToolResult(result, string(kind)), nil
}

// wrapToolResult pipes the completion future through the large-response
// post-processor and the dispatch metrics.
func (a *Agent) wrapToolResult(result models.ToolCallResult, kind string) models.ToolCallResult {
	wrapped := make(chan models.ToolOutcome, 1)
	started := time.Now()

	go func() {
		defer close(wrapped)
		outcome, ok := <-result.Result
		if !ok {
			return
		}
		observability.ObserveDuration(kind, time.Since(started))
		if outcome.Err != nil {
			observability.RecordFailure(kind)
		}
		wrapped <- a.processToolResponse(outcome)
	}()

	return models.ToolCallResult{
		Notifications: result.Notifications,
		Result:        wrapped,
	}
}

// asExecutionError normalizes non-nil errors into ExecutionError so the
// provider sees a uniform failure shape.
func asExecutionError(err error) error {
	if err == nil {
		return nil
	}
	if _, ok := err.(*models.ExecutionError); ok {
		return err
	}
	return models.NewExecutionError(err.Error())
}
