package adapter

import (
	"context"
	"sync"
)

// MemoryDirectory is an in-memory contact directory for development and
// tests. Production deployments implement Directory over their user
// service.
type MemoryDirectory struct {
	mu       sync.RWMutex
	contacts map[string]Contact
}

func NewMemoryDirectory() *MemoryDirectory {
	return &MemoryDirectory{contacts: make(map[string]Contact)}
}

// Set registers or replaces the contact endpoints for a user.
func (d *MemoryDirectory) Set(userID string, contact Contact) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.contacts[userID] = contact
}

// Lookup returns the stored contact. Unknown users get an empty Contact,
// not an error: a missing endpoint is a per-channel terminal condition,
// not a directory failure.
func (d *MemoryDirectory) Lookup(_ context.Context, userID string) (Contact, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.contacts[userID], nil
}
