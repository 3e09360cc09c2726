package messages

import (
	"encoding/json"
	"time"
)

// Inbound message types
const (
	TypeAsk  = "ask"
	TypePing = "ping"
)

// Outbound message types
const (
	TypeSessionJoined     = "session_joined"
	TypeAgentStep         = "agent_step"
	TypeAssistantResponse = "assistant_response"
	TypeError             = "error"
	TypePong              = "pong"
)

// Error codes carried by ErrorData
const (
	CodeInvalidRequest  = "invalid_request"
	CodeSessionNotFound = "session_not_found"
	CodeAgentFailed     = "agent_failed"
	CodeUnknownType     = "unknown_type"
)

// WebSocketMessage is the envelope of every frame sent to a client
type WebSocketMessage struct {
	Type      string      `json:"type"`
	Data      interface{} `json:"data"`
	Timestamp int64       `json:"timestamp"`
	ID        string      `json:"id,omitempty"`
}

// IncomingMessage is a frame received from a client. Data is decoded by the
// handler of Type.
type IncomingMessage struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
	ID   string          `json:"id,omitempty"`
}

// SessionJoinedData confirms the connection joined a session room
type SessionJoinedData struct {
	SessionID string `json:"session_id"`
}

// ErrorData represents data for error type
type ErrorData struct {
	Error string `json:"error"`
	Code  string `json:"code,omitempty"`
}

// PongData represents data for pong type
type PongData struct {
	Timestamp int64 `json:"timestamp"`
}

// Hub broadcasts messages to every connection watching a session
type Hub interface {
	BroadcastToSession(sessionID string, message interface{})
}

// New creates a message stamped with the current time
func New(messageType string, data interface{}) WebSocketMessage {
	return WebSocketMessage{
		Type:      messageType,
		Data:      data,
		Timestamp: time.Now().UnixMilli(),
	}
}

// Reply creates a message answering the client message with the given id
func Reply(id, messageType string, data interface{}) WebSocketMessage {
	m := New(messageType, data)
	m.ID = id
	return m
}
