package relay

import (
	"sync"

	"github.com/google/uuid"
)

// Registry tracks the open connections of each online user. A user with
// several devices stays online until the last of them disconnects.
//
// Online checks only decide whether a best-effort push is worth attempting;
// persisted messages are the source of truth for delivery.
type Registry struct {
	mu    sync.RWMutex
	conns map[uuid.UUID]map[string]struct{}
}

// NewRegistry creates an empty Registry.
func NewRegistry() *Registry {
	return &Registry{conns: make(map[uuid.UUID]map[string]struct{})}
}

// Register records connID as one of userID's connections.
func (r *Registry) Register(userID uuid.UUID, connID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	set, ok := r.conns[userID]
	if !ok {
		set = make(map[string]struct{})
		r.conns[userID] = set
	}
	set[connID] = struct{}{}
}

// Remove forgets connID. The user goes offline with their last connection.
func (r *Registry) Remove(userID uuid.UUID, connID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	set, ok := r.conns[userID]
	if !ok {
		return
	}
	delete(set, connID)
	if len(set) == 0 {
		delete(r.conns, userID)
	}
}

// Online reports whether userID has at least one open connection.
func (r *Registry) Online(userID uuid.UUID) bool {
	return r.Connections(userID) > 0
}

// Connections returns how many connections userID has open.
func (r *Registry) Connections(userID uuid.UUID) int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.conns[userID])
}

// Len returns the number of online users.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.conns)
}
