package models

import "strings"

// Role identifies the speaker of a conversational turn.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Valid reports whether r is one of the known roles.
func (r Role) Valid() bool {
	switch r {
	case RoleSystem, RoleUser, RoleAssistant:
		return true
	default:
		return false
	}
}

// Turn represents a single conversational message in the unified schema.
type Turn struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
}

// Protocol selects the backend wire format.
type Protocol string

const (
	ProtocolChatCompletions Protocol = "chat"
	ProtocolResponses       Protocol = "responses"
)

// Normalize maps the empty protocol to chat completions.
func (p Protocol) Normalize() Protocol {
	if strings.TrimSpace(string(p)) == "" {
		return ProtocolChatCompletions
	}
	return p
}

// DefaultSessionKey is the history key used when a caller does not name one.
const DefaultSessionKey = "default"

// RequestDescriptor is the caller supplied description of one completion.
type RequestDescriptor struct {
	EndpointBase   string   `json:"endpoint_base" validate:"notblank"`
	Model          string   `json:"model" validate:"notblank"`
	Prompt         string   `json:"prompt"`
	SystemPrompt   string   `json:"system_prompt,omitempty"`
	Protocol       Protocol `json:"protocol,omitempty" validate:"omitempty,oneof=chat responses"`
	IncludeHistory bool     `json:"include_history"`
	SessionKey     string   `json:"session_key,omitempty"`
	// ImageData is an opaque attachment, typically a data URL.
	ImageData string `json:"image_data,omitempty"`
}

// HistoryKey returns the session key, falling back to DefaultSessionKey.
func (d RequestDescriptor) HistoryKey() string {
	if strings.TrimSpace(d.SessionKey) == "" {
		return DefaultSessionKey
	}
	return d.SessionKey
}

// EventType tags a StreamEvent.
type EventType string

const (
	EventChunk EventType = "streamChunk"
	EventEnd   EventType = "streamEnd"
	EventError EventType = "streamError"
)

// StreamEvent is the sole output contract of a completion session.
type StreamEvent struct {
	Type      EventType `json:"type"`
	SessionID string    `json:"session_id"`
	Content   string    `json:"content,omitempty"`
	Error     string    `json:"error,omitempty"`
}

// Terminal reports whether the event ends its session.
func (e StreamEvent) Terminal() bool {
	return e.Type == EventEnd || e.Type == EventError
}

// ChunkEvent builds a content delta event.
func ChunkEvent(sessionID, content string) StreamEvent {
	return StreamEvent{Type: EventChunk, SessionID: sessionID, Content: content}
}

// EndEvent builds the non-error terminal event.
func EndEvent(sessionID string) StreamEvent {
	return StreamEvent{Type: EventEnd, SessionID: sessionID}
}

// ErrorEvent builds the error terminal event.
func ErrorEvent(sessionID, message string) StreamEvent {
	return StreamEvent{Type: EventError, SessionID: sessionID, Error: message}
}

// Model identifies a model advertised by the backend.
type Model struct {
	ID      string `json:"id"`
	OwnedBy string `json:"owned_by,omitempty"`
}
