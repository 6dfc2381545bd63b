// Package bridge translates registry transitions into best-effort updates
// against the persisted record store, the presence counters and the event
// stream. It sits off the hot path: enqueueing never blocks signaling, and
// a store outage costs nothing but a warning.
package bridge

import (
	"context"
	"sync"
	"time"

	"github.com/Abhishekhack2909/StreamVerse/internal/kafka"
	"github.com/Abhishekhack2909/StreamVerse/internal/presence"
	"github.com/Abhishekhack2909/StreamVerse/internal/record"
	pkglog "github.com/Abhishekhack2909/StreamVerse/pkg/log"
)

const taskTimeout = 5 * time.Second

// Bridge keeps the persisted session record roughly consistent with the
// in-memory registry. Presence and producer may be nil.
type Bridge struct {
	records  record.Store
	presence presence.Store
	producer kafka.SessionEventProducer

	tasks chan func(context.Context)
	wg    sync.WaitGroup

	// sessionID -> recordID, touched only by the worker goroutine.
	recordIDs map[string]string
}

// New creates a bridge with a single worker draining the task queue.
func New(records record.Store, pres presence.Store, producer kafka.SessionEventProducer) *Bridge {
	b := &Bridge{
		records:   records,
		presence:  pres,
		producer:  producer,
		tasks:     make(chan func(context.Context), 1024),
		recordIDs: make(map[string]string),
	}

	b.wg.Add(1)
	go b.worker()

	return b
}

func (b *Bridge) worker() {
	defer b.wg.Done()
	for task := range b.tasks {
		ctx, cancel := context.WithTimeout(context.Background(), taskTimeout)
		task(ctx)
		cancel()
	}
}

// enqueue never blocks; when the queue is saturated the update is dropped.
// The registry stays authoritative either way.
func (b *Bridge) enqueue(task func(context.Context)) {
	select {
	case b.tasks <- task:
	default:
		l := pkglog.L()
		l.Warn().Msg("lifecycle bridge queue full, dropping update")
	}
}

// SessionStarted binds the persisted record for a new session. A record
// pre-created over the REST surface is adopted when the caller names it and
// owns it; otherwise a fresh record is created.
func (b *Bridge) SessionStarted(sessionID, ownerID, title, mode, recordID string) {
	b.enqueue(func(ctx context.Context) {
		l := pkglog.L().With().Str(pkglog.FieldSessionID, sessionID).Logger()

		if adopted := b.adoptRecord(ctx, sessionID, ownerID, recordID); !adopted {
			newID, err := b.records.CreateRecord(ctx, ownerID, title, mode)
			if err != nil {
				l.Warn().Err(err).Msg("failed to create session record")
			} else {
				b.recordIDs[sessionID] = newID
			}
		}

		if b.producer != nil {
			if err := b.producer.ProduceSessionStarted(ctx, sessionID, ownerID, mode); err != nil {
				l.Warn().Err(err).Msg("failed to produce session_started event")
			}
		}
	})
}

// adoptRecord claims a pre-created record for the session. Adoption is
// refused when the record is unknown, owned by someone else or already
// ended, and the caller falls back to a fresh record.
func (b *Bridge) adoptRecord(ctx context.Context, sessionID, ownerID, recordID string) bool {
	if recordID == "" {
		return false
	}

	l := pkglog.L().With().Str(pkglog.FieldSessionID, sessionID).Str("record_id", recordID).Logger()

	rec, err := b.records.GetRecord(ctx, recordID)
	if err != nil {
		l.Warn().Err(err).Msg("cannot adopt session record")
		return false
	}
	if rec.OwnerID != ownerID || rec.EndedAt != nil {
		l.Warn().Msg("refusing to adopt session record")
		return false
	}

	b.recordIDs[sessionID] = recordID
	return true
}

// ParticipantJoined bumps the persisted viewer counter and the presence set.
func (b *Bridge) ParticipantJoined(sessionID, participantID string) {
	b.enqueue(func(ctx context.Context) {
		l := pkglog.L().With().Str(pkglog.FieldSessionID, sessionID).Logger()

		if recordID, ok := b.recordIDs[sessionID]; ok {
			if err := b.records.IncrementViewers(ctx, recordID); err != nil {
				l.Warn().Err(err).Msg("failed to increment viewer count")
			}
		}

		if b.presence != nil {
			if err := b.presence.AddParticipant(ctx, sessionID, participantID); err != nil {
				l.Warn().Err(err).Msg("failed to add presence entry")
			}
		}
	})
}

// ParticipantLeft decrements the persisted viewer counter, floored at zero.
func (b *Bridge) ParticipantLeft(sessionID, participantID string) {
	b.enqueue(func(ctx context.Context) {
		l := pkglog.L().With().Str(pkglog.FieldSessionID, sessionID).Logger()

		if recordID, ok := b.recordIDs[sessionID]; ok {
			if err := b.records.DecrementViewers(ctx, recordID); err != nil {
				l.Warn().Err(err).Msg("failed to decrement viewer count")
			}
		}

		if b.presence != nil {
			if err := b.presence.RemoveParticipant(ctx, sessionID, participantID); err != nil {
				l.Warn().Err(err).Msg("failed to remove presence entry")
			}
		}
	})
}

// SessionEnded marks the persisted record offline and clears presence.
func (b *Bridge) SessionEnded(sessionID, ownerID, reason string) {
	b.enqueue(func(ctx context.Context) {
		l := pkglog.L().With().Str(pkglog.FieldSessionID, sessionID).Logger()

		if recordID, ok := b.recordIDs[sessionID]; ok {
			if err := b.records.MarkEnded(ctx, recordID); err != nil {
				l.Warn().Err(err).Msg("failed to mark session record ended")
			}
			delete(b.recordIDs, sessionID)
		}

		if b.presence != nil {
			if err := b.presence.ClearSession(ctx, sessionID); err != nil {
				l.Warn().Err(err).Msg("failed to clear presence entries")
			}
		}

		if b.producer != nil {
			if err := b.producer.ProduceSessionEnded(ctx, sessionID, ownerID, reason); err != nil {
				l.Warn().Err(err).Msg("failed to produce session_ended event")
			}
		}
	})
}

// Flush blocks until every task enqueued so far has been processed.
func (b *Bridge) Flush() {
	done := make(chan struct{})
	b.tasks <- func(context.Context) { close(done) }
	<-done
}

// Close drains outstanding tasks and stops the worker.
func (b *Bridge) Close() {
	close(b.tasks)
	b.wg.Wait()
}
