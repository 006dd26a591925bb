package history

import (
	"sync"

	"backend-stride/internal/run"
)

// Sink is notified after the store changes. Calls happen with the store unlocked
// but on the caller's goroutine, so implementations must not block.
type Sink interface {
	Saved(s run.Session)
	Removed(id string)
}

// Store is the ordered, append-only history of completed runs.
type Store struct {
	mu       sync.RWMutex
	sessions []run.Session
	sink     Sink
}

func NewStore(sink Sink) *Store {
	return &Store{sink: sink}
}

// Load seeds the store with previously archived runs without notifying the sink.
func (s *Store) Load(sessions []run.Session) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sessions = append(s.sessions, sessions...)
}

func (s *Store) Append(session run.Session) {
	s.mu.Lock()
	s.sessions = append(s.sessions, session)
	s.mu.Unlock()

	if s.sink != nil {
		s.sink.Saved(session)
	}
}

func (s *Store) All() []run.Session {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]run.Session, len(s.sessions))
	copy(out, s.sessions)
	return out
}

func (s *Store) Get(id string) (run.Session, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, session := range s.sessions {
		if session.ID == id {
			return session, true
		}
	}
	return run.Session{}, false
}

// Remove deletes at most one run with the given id.
func (s *Store) Remove(id string) bool {
	s.mu.Lock()
	removed := false
	for i, session := range s.sessions {
		if session.ID == id {
			s.sessions = append(s.sessions[:i:i], s.sessions[i+1:]...)
			removed = true
			break
		}
	}
	s.mu.Unlock()

	if removed && s.sink != nil {
		s.sink.Removed(id)
	}
	return removed
}

func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.sessions)
}
