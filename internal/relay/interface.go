package relay

import (
	"context"

	"github.com/Abhishekhack2909/StreamVerse/internal/domain"
	"github.com/Abhishekhack2909/StreamVerse/internal/hub"
)

// Relay routes messages between participants. It never inspects negotiation
// payloads; it only reads routing envelopes and keeps the registry, the hub
// delivery sets and the lifecycle bridge in step.
type Relay interface {
	HandleAuth(ctx context.Context, c *hub.Client, token string) error
	HandleStartSession(ctx context.Context, c *hub.Client, p domain.StartSessionPayload) error
	HandleJoin(ctx context.Context, c *hub.Client, sessionID string) error
	HandleLeave(ctx context.Context, c *hub.Client, sessionID string) error
	HandleEnd(ctx context.Context, c *hub.Client, sessionID string) error
	HandleSignal(ctx context.Context, c *hub.Client, env *domain.Envelope) error
	HandleChat(ctx context.Context, c *hub.Client, sessionID string, p domain.ChatPayload) error
	HandleDisconnect(ctx context.Context, c *hub.Client) error
}

// Messenger is the slice of the hub the relay needs for delivery.
type Messenger interface {
	JoinSession(client *hub.Client, sessionID string)
	LeaveSession(client *hub.Client, sessionID string)
	BroadcastToSession(sessionID string, message interface{}, exclude string) error
	// CloseSession delivers a final message and drops the delivery set, so a
	// terminal session can no longer fan out.
	CloseSession(sessionID string, message interface{}, exclude string) error
	SendToChannel(channelID string, message interface{}) error
}

// Lifecycle receives registry transitions for persistence. Calls must not
// block; the bridge satisfies this with its queue.
type Lifecycle interface {
	SessionStarted(sessionID, ownerID, title, mode, recordID string)
	ParticipantJoined(sessionID, participantID string)
	ParticipantLeft(sessionID, participantID string)
	SessionEnded(sessionID, ownerID, reason string)
}
