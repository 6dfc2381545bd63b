package relay

import "sync"

// sessionLocks hands out one mutex per session id so that a registry
// mutation and its fan-out commit as a unit, in order, without a global
// lock across sessions.
type sessionLocks struct {
	mu    sync.Mutex
	locks map[string]*sessionLock
}

type sessionLock struct {
	mu   sync.Mutex
	refs int
}

func newSessionLocks() *sessionLocks {
	return &sessionLocks{locks: make(map[string]*sessionLock)}
}

// lock acquires the session's mutex, creating it on first use.
func (s *sessionLocks) lock(sessionID string) {
	s.mu.Lock()
	l, ok := s.locks[sessionID]
	if !ok {
		l = &sessionLock{}
		s.locks[sessionID] = l
	}
	l.refs++
	s.mu.Unlock()

	l.mu.Lock()
}

// unlock releases the session's mutex and drops it once unused.
func (s *sessionLocks) unlock(sessionID string) {
	s.mu.Lock()
	l := s.locks[sessionID]
	l.refs--
	if l.refs == 0 {
		delete(s.locks, sessionID)
	}
	s.mu.Unlock()

	l.mu.Unlock()
}
