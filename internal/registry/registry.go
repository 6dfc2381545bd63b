// Package registry holds the authoritative in-memory state for active
// sessions and their participants. All mutation goes through the five
// operations below; operations on one session serialize on that session's
// lock while different sessions proceed independently.
package registry

import (
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/Abhishekhack2909/StreamVerse/internal/domain"
)

// EndReason explains why a session became terminal.
type EndReason string

const (
	ReasonExplicit          EndReason = "ended"
	ReasonOwnerLeft         EndReason = "owner-left"
	ReasonOwnerDisconnected EndReason = "owner-disconnected"
	ReasonEmpty             EndReason = "empty"
)

// LeaveResult reports the outcome of a leave operation.
type LeaveResult struct {
	Left      bool // false when the participant was already gone
	Remaining []domain.Participant
	Ended     bool
	Reason    EndReason
}

type session struct {
	mu           sync.Mutex
	info         domain.SessionInfo
	participants map[string]domain.Participant
}

// Registry is the session/participant table.
type Registry struct {
	mu       sync.RWMutex
	sessions map[string]*session

	// ownerID -> active broadcast session id, for the AlreadyActive guard.
	ownersMu        sync.Mutex
	ownerBroadcasts map[string]string
}

// New creates an empty registry.
func New() *Registry {
	return &Registry{
		sessions:        make(map[string]*session),
		ownerBroadcasts: make(map[string]string),
	}
}

// CreateSession opens a new active session owned by ownerID. In broadcast
// mode an owner may hold only one active session at a time.
func (r *Registry) CreateSession(mode domain.Mode, ownerID string) (string, error) {
	id := uuid.New().String()

	if mode == domain.ModeBroadcast {
		r.ownersMu.Lock()
		if _, exists := r.ownerBroadcasts[ownerID]; exists {
			r.ownersMu.Unlock()
			return "", domain.ErrAlreadyActive
		}
		r.ownerBroadcasts[ownerID] = id
		r.ownersMu.Unlock()
	}

	s := &session{
		info: domain.SessionInfo{
			ID:        id,
			Mode:      mode,
			OwnerID:   ownerID,
			CreatedAt: time.Now(),
		},
		participants: make(map[string]domain.Participant),
	}

	r.mu.Lock()
	r.sessions[id] = s
	r.mu.Unlock()

	return id, nil
}

// Join inserts a participant and returns the resulting snapshot, including
// the joiner.
func (r *Registry) Join(sessionID string, p domain.Participant) ([]domain.Participant, error) {
	s := r.get(sessionID)
	if s == nil {
		return nil, domain.ErrSessionNotFound
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.info.Ended() {
		return nil, domain.ErrSessionEnded
	}

	if p.JoinedAt.IsZero() {
		p.JoinedAt = time.Now()
	}
	s.participants[p.ID] = p
	return s.snapshotLocked(), nil
}

// Leave removes a participant. Leaving twice, or leaving a session that no
// longer exists, is a no-op rather than an error: departure races with
// reaping are normal. The session ends when its broadcast owner departs or
// when the room empties.
func (r *Registry) Leave(sessionID, participantID string) LeaveResult {
	s := r.get(sessionID)
	if s == nil {
		return LeaveResult{}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	p, present := s.participants[participantID]
	if !present || s.info.Ended() {
		return LeaveResult{}
	}
	delete(s.participants, participantID)

	res := LeaveResult{Left: true, Remaining: s.snapshotLocked()}

	ownerLeaving := s.info.Mode == domain.ModeBroadcast && p.Role == domain.RoleHost
	switch {
	case ownerLeaving:
		// A broadcast has no meaning without its broadcaster.
		r.endLocked(s)
		res.Ended = true
		res.Reason = ReasonOwnerLeft
		res.Remaining = nil
	case len(s.participants) == 0:
		r.endLocked(s)
		res.Ended = true
		res.Reason = ReasonEmpty
		res.Remaining = nil
	}

	return res
}

// End marks the session terminal and clears all participants. Only the
// owner may end a session.
func (r *Registry) End(sessionID, callerID string) error {
	s := r.get(sessionID)
	if s == nil {
		return domain.ErrSessionNotFound
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.info.Ended() {
		return domain.ErrSessionEnded
	}
	if s.info.OwnerID != callerID {
		return domain.ErrNotAuthorized
	}

	r.endLocked(s)
	return nil
}

// Snapshot returns the current participant list in join order.
func (r *Registry) Snapshot(sessionID string) ([]domain.Participant, error) {
	s := r.get(sessionID)
	if s == nil {
		return nil, domain.ErrSessionNotFound
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshotLocked(), nil
}

// Get returns the session's metadata.
func (r *Registry) Get(sessionID string) (domain.SessionInfo, error) {
	s := r.get(sessionID)
	if s == nil {
		return domain.SessionInfo{}, domain.ErrSessionNotFound
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	return s.info, nil
}

// FindParticipant resolves a participant id inside a session. The second
// return is false when either the session or the participant is gone.
func (r *Registry) FindParticipant(sessionID, participantID string) (domain.Participant, bool) {
	s := r.get(sessionID)
	if s == nil {
		return domain.Participant{}, false
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.participants[participantID]
	return p, ok
}

func (r *Registry) get(sessionID string) *session {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.sessions[sessionID]
}

// endLocked marks s terminal. Caller holds s.mu. Terminal sessions stay in
// the table so a later join is rejected with SessionEnded rather than
// SessionNotFound.
func (r *Registry) endLocked(s *session) {
	now := time.Now()
	s.info.EndedAt = &now
	s.participants = make(map[string]domain.Participant)

	if s.info.Mode == domain.ModeBroadcast {
		r.ownersMu.Lock()
		if r.ownerBroadcasts[s.info.OwnerID] == s.info.ID {
			delete(r.ownerBroadcasts, s.info.OwnerID)
		}
		r.ownersMu.Unlock()
	}
}

func (s *session) snapshotLocked() []domain.Participant {
	list := make([]domain.Participant, 0, len(s.participants))
	for _, p := range s.participants {
		list = append(list, p)
	}
	sort.Slice(list, func(i, j int) bool {
		if list[i].JoinedAt.Equal(list[j].JoinedAt) {
			return list[i].ID < list[j].ID
		}
		return list[i].JoinedAt.Before(list[j].JoinedAt)
	})
	return list
}
