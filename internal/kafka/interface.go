package kafka

import "context"

// SessionEvent represents a session lifecycle change.
type SessionEvent struct {
	Type      string `json:"type"` // "session_started" | "session_ended"
	SessionID string `json:"session_id"`
	OwnerID   string `json:"owner_id"`
	Mode      string `json:"mode,omitempty"`
	Reason    string `json:"reason,omitempty"` // "explicit" | "disconnect" | "empty"
	Timestamp int64  `json:"timestamp"`
}

// Event types
const (
	EventSessionStarted = "session_started"
	EventSessionEnded   = "session_ended"
)

// End reasons
const (
	ReasonExplicit   = "explicit"
	ReasonDisconnect = "disconnect"
	ReasonEmpty      = "empty"
)

// SessionEventProducer defines the interface for producing session events.
type SessionEventProducer interface {
	ProduceSessionStarted(ctx context.Context, sessionID, ownerID, mode string) error
	ProduceSessionEnded(ctx context.Context, sessionID, ownerID, reason string) error
	Close() error
}
