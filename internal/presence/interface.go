// Package presence keeps best-effort live viewer sets per session, shared
// across service instances through Redis.
package presence

import "context"

// Store tracks which participants are currently inside which session.
type Store interface {
	AddParticipant(ctx context.Context, sessionID, participantID string) error
	RemoveParticipant(ctx context.Context, sessionID, participantID string) error
	Count(ctx context.Context, sessionID string) (int, error)
	ClearSession(ctx context.Context, sessionID string) error
	Close() error
}
