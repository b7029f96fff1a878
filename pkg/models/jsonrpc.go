package models

import "encoding/json"

// JSONRPCMessage is a JSON-RPC 2.0 message as exchanged with extension
// processes. Notifications have a method and no id; responses have an id
// and either a result or an error.
type JSONRPCMessage struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      json.RawMessage `json:"id,omitempty"`
	Method  string          `json:"method,omitempty"`
	Params  json.RawMessage `json:"params,omitempty"`
	Result  json.RawMessage `json:"result,omitempty"`
	Error   *JSONRPCError   `json:"error,omitempty"`
}

// JSONRPCError is the error member of a JSON-RPC response.
type JSONRPCError struct {
	Code    int             `json:"code"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data,omitempty"`
}

// IsNotification reports whether the message is a notification
// (method set, no id).
func (m JSONRPCMessage) IsNotification() bool {
	return m.Method != "" && len(m.ID) == 0
}

// NewNotification creates a JSON-RPC notification with the given method
// and params.
func NewNotification(method string, params any) JSONRPCMessage {
	raw, _ := json.Marshal(params)
	return JSONRPCMessage{JSONRPC: "2.0", Method: method, Params: raw}
}
