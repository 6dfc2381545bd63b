package domain

import (
	"sync"
	"time"
)

// ConnState tracks what the relay knows about one transport channel: the
// authenticated caller and at most one joined session. A caller wanting two
// sessions opens two channels, and therefore holds two participant ids.
type ConnState struct {
	ChannelID     string
	UserID        string
	DisplayName   string
	Authenticated bool

	SessionID     string
	ParticipantID string
	IsOwner       bool

	CreatedAt    time.Time
	LastActiveAt time.Time
	mu           sync.RWMutex
}

// NewConnState creates the state for a freshly opened channel.
func NewConnState(channelID string) *ConnState {
	now := time.Now()
	return &ConnState{
		ChannelID:    channelID,
		CreatedAt:    now,
		LastActiveAt: now,
	}
}

// Authenticate records the resolved caller identity.
func (s *ConnState) Authenticate(userID, displayName string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.UserID = userID
	s.DisplayName = displayName
	s.Authenticated = true
	s.LastActiveAt = time.Now()
}

// IsAuthenticated returns whether the channel has a resolved caller.
func (s *ConnState) IsAuthenticated() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.Authenticated
}

// EnterSession binds the channel to a session membership.
func (s *ConnState) EnterSession(sessionID, participantID string, owner bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.SessionID = sessionID
	s.ParticipantID = participantID
	s.IsOwner = owner
	s.LastActiveAt = time.Now()
}

// ExitSession clears the session membership.
func (s *ConnState) ExitSession() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.SessionID = ""
	s.ParticipantID = ""
	s.IsOwner = false
	s.LastActiveAt = time.Now()
}

// Membership returns the current session and participant ids.
func (s *ConnState) Membership() (sessionID, participantID string) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.SessionID, s.ParticipantID
}

// Identity returns the authenticated caller.
func (s *ConnState) Identity() (userID, displayName string) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.UserID, s.DisplayName
}

// Owner reports whether this channel owns its current session.
func (s *ConnState) Owner() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.IsOwner
}

// Touch updates the last-active timestamp.
func (s *ConnState) Touch() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.LastActiveAt = time.Now()
}
