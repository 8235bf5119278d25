package dispatch

import "sync"

// sessionLocks serializes dispatch cycles per session key so concurrent
// requests against the same conversation cannot interleave transcript
// appends. Locks are created on first use and kept for the process lifetime.
type sessionLocks struct {
	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

func newSessionLocks() *sessionLocks {
	return &sessionLocks{locks: make(map[string]*sync.Mutex)}
}

func (s *sessionLocks) get(sessionID string) *sync.Mutex {
	s.mu.Lock()
	defer s.mu.Unlock()
	l, ok := s.locks[sessionID]
	if !ok {
		l = &sync.Mutex{}
		s.locks[sessionID] = l
	}
	return l
}
