package presence

import (
	"context"
	"sync"
)

// memoryStore is a process-local Store for single-instance deployments and
// tests.
type memoryStore struct {
	mu       sync.Mutex
	sessions map[string]map[string]struct{}
}

// NewMemoryStore creates an in-process presence store.
func NewMemoryStore() Store {
	return &memoryStore{sessions: make(map[string]map[string]struct{})}
}

func (s *memoryStore) AddParticipant(ctx context.Context, sessionID, participantID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.sessions[sessionID] == nil {
		s.sessions[sessionID] = make(map[string]struct{})
	}
	s.sessions[sessionID][participantID] = struct{}{}
	return nil
}

func (s *memoryStore) RemoveParticipant(ctx context.Context, sessionID, participantID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if members, ok := s.sessions[sessionID]; ok {
		delete(members, participantID)
		if len(members) == 0 {
			delete(s.sessions, sessionID)
		}
	}
	return nil
}

func (s *memoryStore) Count(ctx context.Context, sessionID string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sessions[sessionID]), nil
}

func (s *memoryStore) ClearSession(ctx context.Context, sessionID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.sessions, sessionID)
	return nil
}

func (s *memoryStore) Close() error {
	return nil
}
