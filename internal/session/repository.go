package session

import (
	"context"
	"sync"

	"github.com/healthpoint/portal-gateway/pkg/types"
)

// Repository persists session records. The store is the only writer; every
// other component treats sessions as read-only.
type Repository interface {
	Save(ctx context.Context, sess *types.Session) error
	Get(ctx context.Context, id string) (*types.Session, error)
	Delete(ctx context.Context, id string) error
}

// MemoryRepository is an in-process repository for tests and single-node
// deployments
type MemoryRepository struct {
	mu       sync.RWMutex
	sessions map[string]*types.Session
}

// NewMemoryRepository creates a new in-memory session repository
func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{
		sessions: make(map[string]*types.Session),
	}
}

// Save stores a copy of the session
func (r *MemoryRepository) Save(ctx context.Context, sess *types.Session) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sessions[sess.ID] = sess.Clone()
	return nil
}

// Get returns a copy of the session, or nil when it does not exist
func (r *MemoryRepository) Get(ctx context.Context, id string) (*types.Session, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	sess, ok := r.sessions[id]
	if !ok {
		return nil, nil
	}
	return sess.Clone(), nil
}

// Delete removes the session. Deleting a missing session is not an error.
func (r *MemoryRepository) Delete(ctx context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.sessions, id)
	return nil
}
