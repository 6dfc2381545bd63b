package domain

import "encoding/json"

// Message types from client.
const (
	MsgTypeAuth         = "auth"
	MsgTypeStartSession = "start-session"
	MsgTypeJoinSession  = "join-session"
	MsgTypeLeaveSession = "leave-session"
	MsgTypeEndSession   = "end-session"
	MsgTypeOffer        = "offer"
	MsgTypeAnswer       = "answer"
	MsgTypeICECandidate = "ice-candidate"
	MsgTypeChat         = "chat"
	MsgTypePing         = "ping"
)

// Message types to client.
const (
	MsgTypeAuthResult      = "auth-result"
	MsgTypeSessionCreated  = "session-created"
	MsgTypeSnapshot        = "participants-snapshot"
	MsgTypeParticipantJoin = "participant-joined"
	MsgTypeParticipantLeft = "participant-left"
	MsgTypeSessionEnded    = "session-ended"
	MsgTypeError           = "error"
	MsgTypePong            = "pong"
)

// Envelope is the routing frame for every message on the duplex channel.
// Payload is opaque to the relay; only Type, SessionID and TargetID are
// ever inspected for routing.
type Envelope struct {
	Type      string          `json:"type"`
	SessionID string          `json:"session_id,omitempty"`
	TargetID  string          `json:"target_id,omitempty"`
	Payload   json.RawMessage `json:"payload,omitempty"`
}

// ParticipantInfo is the wire form of a registry participant.
type ParticipantInfo struct {
	ID          string `json:"id"`
	DisplayName string `json:"display_name"`
	Role        string `json:"role"`
}

// Client -> Server payloads

// AuthPayload authenticates the channel.
type AuthPayload struct {
	Token string `json:"token"`
}

// StartSessionPayload opens a new session owned by the caller. RecordID
// binds a record pre-created over the REST surface so the session adopts it
// instead of persisting a second one.
type StartSessionPayload struct {
	Mode     string `json:"mode"` // "broadcast" | "mesh"
	Title    string `json:"title,omitempty"`
	RecordID string `json:"record_id,omitempty"`
}

// ChatPayload is a chat message addressed to the whole session.
type ChatPayload struct {
	Text string `json:"text"`
}

// Server -> Client payloads

// AuthResultPayload reports the outcome of channel authentication.
type AuthResultPayload struct {
	Success     bool   `json:"success"`
	UserID      string `json:"user_id,omitempty"`
	DisplayName string `json:"display_name,omitempty"`
	Message     string `json:"message,omitempty"`
}

// SessionCreatedPayload acknowledges start-session.
type SessionCreatedPayload struct {
	SessionID string `json:"session_id"`
	Mode      string `json:"mode"`
}

// SnapshotPayload carries the current participant list to a joiner,
// including the joiner's own assigned participant id.
type SnapshotPayload struct {
	SelfID       string            `json:"self_id"`
	Mode         string            `json:"mode"`
	Participants []ParticipantInfo `json:"participants"`
}

// PresencePayload is sent as participant-joined / participant-left.
type PresencePayload struct {
	Participant  ParticipantInfo   `json:"participant"`
	Participants []ParticipantInfo `json:"participants"`
}

// SessionEndedPayload notifies members that the session is terminal.
type SessionEndedPayload struct {
	SessionID string `json:"session_id"`
	Reason    string `json:"reason"` // "ended" | "owner-disconnected" | "empty"
}

// SignalPayload wraps a relayed negotiation message with its sender.
// Body is the untouched client payload (SDP or candidate).
type SignalPayload struct {
	SenderID string          `json:"sender_id"`
	Body     json.RawMessage `json:"body"`
}

// ChatBroadcastPayload is the fan-out form of a chat message.
type ChatBroadcastPayload struct {
	ID          string `json:"id"`
	SenderID    string `json:"sender_id"`
	DisplayName string `json:"display_name"`
	Text        string `json:"text"`
	Timestamp   string `json:"timestamp"`
}

// ErrorPayload is a typed rejection of the triggering message.
type ErrorPayload struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Error codes
const (
	ErrCodeUnauthenticated = "UNAUTHENTICATED"
	ErrCodeNotAuthorized   = "NOT_AUTHORIZED"
	ErrCodeSessionNotFound = "SESSION_NOT_FOUND"
	ErrCodeSessionEnded    = "SESSION_ENDED"
	ErrCodeAlreadyActive   = "ALREADY_ACTIVE"
	ErrCodeBadRequest      = "BAD_REQUEST"
	ErrCodeInternalError   = "INTERNAL_ERROR"
)

// NewErrorEnvelope builds an error reply for the triggering message.
func NewErrorEnvelope(sessionID, code, message string) *Envelope {
	payload, _ := json.Marshal(ErrorPayload{Code: code, Message: message})
	return &Envelope{
		Type:      MsgTypeError,
		SessionID: sessionID,
		Payload:   payload,
	}
}

// NewEnvelope marshals payload into a routing frame.
func NewEnvelope(msgType, sessionID string, payload interface{}) (*Envelope, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return &Envelope{Type: msgType, SessionID: sessionID, Payload: data}, nil
}
