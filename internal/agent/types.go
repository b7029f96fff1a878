package agent

import (
	"github.com/tlongwell-block/goose/internal/permissions"
	"github.com/tlongwell-block/goose/pkg/models"
)

// SessionConfig identifies the session a reply run belongs to, for usage
// accounting.
type SessionConfig struct {
	ID         string
	ScheduleID string
	WorkingDir string
}

// FrontendTool marks a tool whose execution is delegated to the caller of
// the reply stream.
type FrontendTool struct {
	Name string
	Tool models.Tool
}

// PermissionConfirmation is the caller's answer to a tool confirmation
// request.
type PermissionConfirmation struct {
	Decision permissions.Decision
}

// Allowed reports whether the confirmation permits the tool call.
func (c PermissionConfirmation) Allowed() bool {
	return c.Decision == permissions.AllowOnce || c.Decision == permissions.AlwaysAllow
}

// confirmationEnvelope pairs a confirmation with its request id on the
// agent-wide confirmation channel.
type confirmationEnvelope struct {
	requestID    string
	confirmation PermissionConfirmation
}

// toolResultEnvelope pairs a frontend tool outcome with its request id.
type toolResultEnvelope struct {
	requestID string
	outcome   models.ToolOutcome
}

// channelCapacity sizes the confirmation and tool result channels.
const channelCapacity = 32

// Fixed response strings folded into tool responses.
const (
	chatModeSkippedResponse = "Tool execution skipped in chat mode"
	declinedResponse        = "The user has declined to run this tool"
	frontendRequiredError   = "Frontend tool execution required"
)
