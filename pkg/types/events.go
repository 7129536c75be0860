package types

import "time"

// SessionEventType names a step in a session's lifecycle.
type SessionEventType string

const (
	EventSessionStarted   SessionEventType = "session_started"
	EventAttemptGenerated SessionEventType = "attempt_generated"
	EventAttemptExecuted  SessionEventType = "attempt_executed"
	EventSessionCompleted SessionEventType = "session_completed"
)

// SessionEvent is published while a session runs.
type SessionEvent struct {
	Type          SessionEventType `json:"type"`
	SessionID     string           `json:"session_id"`
	AgentName     string           `json:"agent_name"`
	AttemptNumber int              `json:"attempt_number,omitempty"`
	Succeeded     bool             `json:"succeeded,omitempty"`
	Message       string           `json:"message,omitempty"`
	Outcome       Outcome          `json:"outcome,omitempty"`
	Timestamp     time.Time        `json:"timestamp"`
}

// WebSocketMessage represents a message sent over WebSocket for real-time updates.
type WebSocketMessage struct {
	Type    string `json:"type"` // "session_event", "registry_reloaded"
	Payload any    `json:"payload"`
}
