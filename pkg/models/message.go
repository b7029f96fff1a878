// Package models provides the domain types shared across the goose agent:
// conversation messages and their content parts, tool definitions and calls,
// agent stream events, and JSON-RPC notifications surfaced from extensions.
package models

import (
	"encoding/json"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Role indicates the message author type.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Message is an ordered sequence of content parts exchanged with the
// provider. Messages are immutable once appended to a conversation; the
// With* helpers return extended copies.
type Message struct {
	ID        string           `json:"id"`
	Role      Role             `json:"role"`
	Content   []MessageContent `json:"content"`
	CreatedAt time.Time        `json:"created_at"`
}

// MessageContentType identifies the kind of a message content part.
type MessageContentType string

const (
	ContentTypeText                    MessageContentType = "text"
	ContentTypeImage                   MessageContentType = "image"
	ContentTypeToolRequest             MessageContentType = "tool_request"
	ContentTypeToolResponse            MessageContentType = "tool_response"
	ContentTypeToolConfirmationRequest MessageContentType = "tool_confirmation_request"
	ContentTypeFrontendToolRequest     MessageContentType = "frontend_tool_request"
	ContentTypeContextLengthExceeded   MessageContentType = "context_length_exceeded"
)

// MessageContent is one part of a message. Exactly one payload pointer is
// non-nil for a given Type.
type MessageContent struct {
	Type MessageContentType `json:"type"`

	Text                    *TextContent             `json:"text,omitempty"`
	Image                   *ImageContent            `json:"image,omitempty"`
	ToolRequest             *ToolRequest             `json:"tool_request,omitempty"`
	ToolResponse            *ToolResponse            `json:"tool_response,omitempty"`
	ToolConfirmationRequest *ToolConfirmationRequest `json:"tool_confirmation_request,omitempty"`
	FrontendToolRequest     *FrontendToolRequest     `json:"frontend_tool_request,omitempty"`
}

// ToolRequest is an assistant request to execute a tool. The ID pairs the
// request with its eventual ToolResponse.
type ToolRequest struct {
	ID       string   `json:"id"`
	ToolCall ToolCall `json:"tool_call"`
}

// ToolResponse carries the outcome of a tool request back to the provider.
// On success Content is set; on failure Error holds the execution error
// message and IsError is true.
type ToolResponse struct {
	ID      string    `json:"id"`
	Content []Content `json:"content,omitempty"`
	Error   string    `json:"error,omitempty"`
	IsError bool      `json:"is_error,omitempty"`
}

// ToolConfirmationRequest asks the caller to approve or deny a pending tool
// call before it is dispatched.
type ToolConfirmationRequest struct {
	ID        string          `json:"id"`
	ToolName  string          `json:"tool_name"`
	Arguments json.RawMessage `json:"arguments,omitempty"`
	Prompt    string          `json:"prompt,omitempty"`
}

// FrontendToolRequest is a tool request whose execution is delegated to the
// caller of the reply stream rather than dispatched in-process.
type FrontendToolRequest struct {
	ID       string   `json:"id"`
	ToolCall ToolCall `json:"tool_call"`
}

// NewUserMessage creates an empty user message.
func NewUserMessage() Message {
	return Message{ID: uuid.NewString(), Role: RoleUser, CreatedAt: time.Now()}
}

// NewAssistantMessage creates an empty assistant message.
func NewAssistantMessage() Message {
	return Message{ID: uuid.NewString(), Role: RoleAssistant, CreatedAt: time.Now()}
}

// WithText appends a text part and returns the extended message.
func (m Message) WithText(text string) Message {
	m.Content = append(m.Content[:len(m.Content):len(m.Content)], MessageContent{
		Type: ContentTypeText,
		Text: &TextContent{Text: text},
	})
	return m
}

// WithToolRequest appends a tool request part.
func (m Message) WithToolRequest(id string, call ToolCall) Message {
	m.Content = append(m.Content[:len(m.Content):len(m.Content)], MessageContent{
		Type:        ContentTypeToolRequest,
		ToolRequest: &ToolRequest{ID: id, ToolCall: call},
	})
	return m
}

// WithToolResponse appends a tool response part pairing the given request
// id. A nil err records the content as a success; otherwise the error
// message is recorded and the content ignored.
func (m Message) WithToolResponse(id string, content []Content, err error) Message {
	resp := ToolResponse{ID: id}
	if err != nil {
		resp.Error = err.Error()
		resp.IsError = true
	} else {
		resp.Content = content
	}
	m.Content = append(m.Content[:len(m.Content):len(m.Content)], MessageContent{
		Type:         ContentTypeToolResponse,
		ToolResponse: &resp,
	})
	return m
}

// WithToolConfirmationRequest appends a confirmation request part.
func (m Message) WithToolConfirmationRequest(id, toolName string, arguments json.RawMessage, prompt string) Message {
	m.Content = append(m.Content[:len(m.Content):len(m.Content)], MessageContent{
		Type: ContentTypeToolConfirmationRequest,
		ToolConfirmationRequest: &ToolConfirmationRequest{
			ID:        id,
			ToolName:  toolName,
			Arguments: arguments,
			Prompt:    prompt,
		},
	})
	return m
}

// WithFrontendToolRequest appends a frontend tool request part.
func (m Message) WithFrontendToolRequest(id string, call ToolCall) Message {
	m.Content = append(m.Content[:len(m.Content):len(m.Content)], MessageContent{
		Type:                ContentTypeFrontendToolRequest,
		FrontendToolRequest: &FrontendToolRequest{ID: id, ToolCall: call},
	})
	return m
}

// WithContextLengthExceeded appends a terminal context-length marker with
// explanatory text.
func (m Message) WithContextLengthExceeded(text string) Message {
	m.Content = append(m.Content[:len(m.Content):len(m.Content)], MessageContent{
		Type: ContentTypeContextLengthExceeded,
		Text: &TextContent{Text: text},
	})
	return m
}

// ToolRequests returns all tool request parts in order.
func (m Message) ToolRequests() []ToolRequest {
	var reqs []ToolRequest
	for _, c := range m.Content {
		if c.Type == ContentTypeToolRequest && c.ToolRequest != nil {
			reqs = append(reqs, *c.ToolRequest)
		}
	}
	return reqs
}

// AsConcatText joins all text parts with newlines.
func (m Message) AsConcatText() string {
	var parts []string
	for _, c := range m.Content {
		if c.Text != nil {
			parts = append(parts, c.Text.Text)
		}
	}
	return strings.Join(parts, "\n")
}
