package session

import (
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
)

// ErrNotFound is returned when a session id does not resolve, including the
// case where a second client tries to attach to a claimed session.
var ErrNotFound = errors.New("invalid session_id")

// Registry maps session ids to session records. Creation is atomic; attach
// claims the record so a second attachment on the same id fails; Remove
// drops the entry on close. Closed sessions are never retained.
type Registry struct {
	mu       sync.RWMutex
	sessions map[string]*Session
	claimed  map[string]bool
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		sessions: make(map[string]*Session),
		claimed:  make(map[string]bool),
	}
}

// Create registers a new session record and assigns it an opaque id.
func (r *Registry) Create(s *Session) *Session {
	r.mu.Lock()
	defer r.mu.Unlock()

	s.ID = uuid.New().String()
	s.CreatedAt = time.Now()
	if s.State == "" {
		s.State = StateNew
	}
	r.sessions[s.ID] = s
	return s
}

// Claim takes ownership of a session for a duplex-stream attachment. It
// fails with ErrNotFound for unknown ids and for already-claimed sessions.
func (r *Registry) Claim(id string) (*Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	s, ok := r.sessions[id]
	if !ok || r.claimed[id] {
		return nil, ErrNotFound
	}
	r.claimed[id] = true
	return s, nil
}

// Remove drops a session from the registry. Called by the supervisor once
// the attachment closes.
func (r *Registry) Remove(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.sessions, id)
	delete(r.claimed, id)
}

// Len reports the number of live session records.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}
