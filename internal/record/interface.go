// Package record is the client side of the persisted session-record store.
// The in-memory registry remains authoritative for live behavior; records
// only keep viewer counts and liveness roughly consistent for the rest of
// the platform.
package record

import (
	"context"
	"errors"
	"time"
)

var ErrRecordNotFound = errors.New("record not found")

// Record is the persisted view of a session.
type Record struct {
	ID          string     `json:"id"`
	OwnerID     string     `json:"owner_id"`
	Title       string     `json:"title"`
	Mode        string     `json:"mode"`
	IsLive      bool       `json:"is_live"`
	ViewerCount int        `json:"viewer_count"`
	CreatedAt   time.Time  `json:"created_at"`
	EndedAt     *time.Time `json:"ended_at,omitempty"`
}

// Store is the persisted record contract.
type Store interface {
	CreateRecord(ctx context.Context, ownerID, title, mode string) (string, error)
	IncrementViewers(ctx context.Context, recordID string) error
	DecrementViewers(ctx context.Context, recordID string) error
	MarkEnded(ctx context.Context, recordID string) error
	GetRecord(ctx context.Context, recordID string) (*Record, error)
	ListLive(ctx context.Context, limit int) ([]Record, error)
}
