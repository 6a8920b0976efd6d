package runtime

import (
	"collab-realtime/contract"
	"collab-realtime/domain"
	"collab-realtime/errors"
	"sync"
)

// Registry maps a user to the one connection that currently speaks for them.
// It is the only state shared by every connection goroutine.
type Registry struct {
	mu       sync.RWMutex
	sessions map[domain.UserID]contract.Handle
}

func NewRegistry() *Registry {
	return &Registry{
		sessions: make(map[domain.UserID]contract.Handle),
	}
}

// Register binds a handle to a user. A different handle already bound to the
// same user is superseded: it is replaced here and closed in the background,
// so its own accept loop later fails the Unregister guard and leaves the new entry alone.
func (r *Registry) Register(userID domain.UserID, h contract.Handle) {
	r.mu.Lock()
	prev, ok := r.sessions[userID]
	r.sessions[userID] = h
	r.mu.Unlock()

	if ok && prev != h {
		go prev.Close(errors.ErrSuperseded)
	}
}

// Unregister removes the entry only when it still points at h.
func (r *Registry) Unregister(userID domain.UserID, h contract.Handle) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	current, ok := r.sessions[userID]
	if !ok || current != h {
		return false
	}
	delete(r.sessions, userID)
	return true
}

func (r *Registry) Lookup(userID domain.UserID) (contract.Handle, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	h, ok := r.sessions[userID]
	return h, ok
}

func (r *Registry) IsOnline(userID domain.UserID) bool {
	h, ok := r.Lookup(userID)
	return ok && h.State() == domain.ConnOpen
}

func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}

func (r *Registry) Users() []domain.UserID {
	r.mu.RLock()
	defer r.mu.RUnlock()

	users := make([]domain.UserID, 0, len(r.sessions))
	for userID := range r.sessions {
		users = append(users, userID)
	}
	return users
}
