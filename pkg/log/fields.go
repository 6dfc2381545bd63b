package log

const (
	// Request
	FieldRequestID = "request_id"
	FieldMethod    = "method"
	FieldPath      = "path"
	FieldStatus    = "status"
	FieldLatency   = "latency_ms"
	FieldClientIP  = "client_ip"

	// Actor
	FieldUserID      = "user_id"
	FieldDisplayName = "display_name"

	// Signaling
	FieldSessionID     = "session_id"
	FieldParticipantID = "participant_id"
	FieldChannelID     = "channel_id"
	FieldPeerID        = "peer_id"
	FieldMessageType   = "message_type"

	// Service
	FieldService = "service"
)
