package session

import (
	"fmt"
	"sync"

	"github.com/google/uuid"

	"github.com/starford/ecglabel/internal/apperr"
)

// Registry holds the sessions of a running server by ID.
type Registry struct {
	mu       sync.Mutex
	sessions map[string]State
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{sessions: make(map[string]State)}
}

// Create stores s under a new ID.
func (r *Registry) Create(s State) string {
	id := uuid.NewString()
	r.mu.Lock()
	r.sessions[id] = s
	r.mu.Unlock()
	return id
}

// Get returns the state stored under id.
func (r *Registry) Get(id string) (State, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.sessions[id]
	if !ok {
		return State{}, fmt.Errorf("session %s: %w", id, apperr.ErrNotFound)
	}
	return s, nil
}

// Apply runs fn on the state stored under id and stores the result. If fn
// fails the stored state is left unchanged.
func (r *Registry) Apply(id string, fn func(State) (State, error)) (State, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.sessions[id]
	if !ok {
		return State{}, fmt.Errorf("session %s: %w", id, apperr.ErrNotFound)
	}
	next, err := fn(s)
	if err != nil {
		return s, err
	}
	r.sessions[id] = next
	return next, nil
}

// Delete forgets a session.
func (r *Registry) Delete(id string) {
	r.mu.Lock()
	delete(r.sessions, id)
	r.mu.Unlock()
}

// Len returns the number of open sessions.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.sessions)
}
