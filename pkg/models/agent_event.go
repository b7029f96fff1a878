package models

// AgentEventType identifies the kind of agent stream event.
type AgentEventType string

const (
	// AgentEventMessage carries a conversation message.
	AgentEventMessage AgentEventType = "message"

	// AgentEventMcpNotification carries a JSON-RPC notification emitted by
	// a tool while it executes, tagged with the originating request id.
	AgentEventMcpNotification AgentEventType = "mcp_notification"
)

// AgentEvent is one element of the reply stream. Exactly one payload
// pointer is non-nil for a given Type.
type AgentEvent struct {
	Type AgentEventType `json:"type"`

	Message      *Message         `json:"message,omitempty"`
	Notification *McpNotification `json:"notification,omitempty"`
}

// McpNotification pairs a streamed JSON-RPC message with the tool request
// that produced it.
type McpNotification struct {
	RequestID string         `json:"request_id"`
	Message   JSONRPCMessage `json:"message"`
}

// NewMessageEvent wraps a message as a stream event.
func NewMessageEvent(msg Message) AgentEvent {
	return AgentEvent{Type: AgentEventMessage, Message: &msg}
}

// NewMcpNotificationEvent wraps a tool notification as a stream event.
func NewMcpNotificationEvent(requestID string, msg JSONRPCMessage) AgentEvent {
	return AgentEvent{
		Type:         AgentEventMcpNotification,
		Notification: &McpNotification{RequestID: requestID, Message: msg},
	}
}
