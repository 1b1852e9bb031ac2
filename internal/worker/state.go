package worker

import (
	"sync"

	"assistchat/internal/models"
)

// sessionState caches the session a worker is serving between tasks.
// It is dropped when another replica resets the session, and bypassed
// entirely for shared stores.
type sessionState struct {
	mu      sync.RWMutex
	session *models.Session
}

func (s *sessionState) get() *models.Session {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.session
}

func (s *sessionState) set(session *models.Session) {
	s.mu.Lock()
	s.session = session
	s.mu.Unlock()
}

func (s *sessionState) purge() {
	s.mu.Lock()
	s.session = nil
	s.mu.Unlock()
}
