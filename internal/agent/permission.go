package agent

import (
	"encoding/json"

	"github.com/tlongwell-block/goose/internal/config"
	"github.com/tlongwell-block/goose/internal/permissions"
	"github.com/tlongwell-block/goose/pkg/models"
)

// permissionCheckResult partitions a batch of tool requests by what must
// happen before they may run.
type permissionCheckResult struct {
	approved      []models.ToolRequest
	needsApproval []models.ToolRequest
	denied        []models.ToolRequest
}

// readOnlyClassifier judges whether an unannotated tool is read-only.
// The default implementation always declines to judge, which sends the
// request to the approval prompt; an LLM-assisted classifier can be
// plugged in instead.
type readOnlyClassifier func(req models.ToolRequest) bool

// checkToolPermissions partitions requests into {approved, needs-approval,
// denied} using the mode, tool annotations, and the persisted decision
// store. Requests that enable an extension are additionally reported so
// the reply loop can refresh the tool list after they succeed.
//
// Chat mode never reaches this check; the reply loop skips dispatch
// entirely in that mode.
func checkToolPermissions(
	requests []models.ToolRequest,
	mode config.Mode,
	readonlyTools map[string]bool,
	unannotatedTools map[string]bool,
	pm permissions.Manager,
	classifier readOnlyClassifier,
) (permissionCheckResult, map[string]bool) {
	var result permissionCheckResult
	enableIDs := make(map[string]bool)

	for _, req := range requests {
		if isEnableExtensionRequest(req) {
			enableIDs[req.ID] = true
		}

		if decision, ok := pm.Get(req.ToolCall.Name); ok {
			switch decision {
			case permissions.AlwaysDeny:
				result.denied = append(result.denied, req)
				continue
			case permissions.AlwaysAllow:
				result.approved = append(result.approved, req)
				continue
			}
		}

		switch mode {
		case config.ModeAuto:
			result.approved = append(result.approved, req)
		case config.ModeSmartApprove:
			if readonlyTools[req.ToolCall.Name] {
				result.approved = append(result.approved, req)
			} else {
				result.needsApproval = append(result.needsApproval, req)
			}
		case config.ModeApprove:
			if unannotatedTools[req.ToolCall.Name] && classifier != nil && classifier(req) {
				result.approved = append(result.approved, req)
			} else {
				result.needsApproval = append(result.needsApproval, req)
			}
		default:
			result.needsApproval = append(result.needsApproval, req)
		}
	}

	return result, enableIDs
}

// isEnableExtensionRequest reports whether a request enables an extension
// via the platform management tool.
func isEnableExtensionRequest(req models.ToolRequest) bool {
	if req.ToolCall.Name != PlatformManageExtensionsToolName {
		return false
	}
	var args manageExtensionsArgs
	if err := json.Unmarshal(req.ToolCall.Arguments, &args); err != nil {
		return false
	}
	return args.Action == "enable"
}
