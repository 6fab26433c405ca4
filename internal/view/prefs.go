package view

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/healthpoint/portal-gateway/pkg/types"
)

const prefKeyPrefix = "portal:viewpref:"

// PreferenceStore caches the last view a user chose, keyed by user ID. It
// is the locally cached preference of the bootstrap precedence; the backend
// keeps its own last_active_view record.
type PreferenceStore interface {
	Get(ctx context.Context, userID string) (types.ViewRole, bool, error)
	Save(ctx context.Context, userID string, v types.ViewRole) error
}

// MemoryPreferences is an in-process preference cache
type MemoryPreferences struct {
	mu    sync.RWMutex
	prefs map[string]types.ViewRole
}

// NewMemoryPreferences creates a new in-memory preference cache
func NewMemoryPreferences() *MemoryPreferences {
	return &MemoryPreferences{prefs: make(map[string]types.ViewRole)}
}

// Get returns the cached preference and whether one exists
func (m *MemoryPreferences) Get(ctx context.Context, userID string) (types.ViewRole, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	v, ok := m.prefs[userID]
	return v, ok, nil
}

// Save stores the preference
func (m *MemoryPreferences) Save(ctx context.Context, userID string, v types.ViewRole) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.prefs[userID] = v
	return nil
}

// RedisPreferences is a Redis-backed preference cache shared across gateway
// instances
type RedisPreferences struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRedisPreferences creates a Redis-backed preference cache
func NewRedisPreferences(client *redis.Client, ttl time.Duration) *RedisPreferences {
	return &RedisPreferences{client: client, ttl: ttl}
}

// Get returns the cached preference and whether one exists
func (r *RedisPreferences) Get(ctx context.Context, userID string) (types.ViewRole, bool, error) {
	val, err := r.client.Get(ctx, prefKeyPrefix+userID).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return "", false, nil
		}
		return "", false, fmt.Errorf("failed to load view preference: %w", err)
	}
	return types.ViewRole(val), true, nil
}

// Save stores the preference
func (r *RedisPreferences) Save(ctx context.Context, userID string, v types.ViewRole) error {
	if err := r.client.Set(ctx, prefKeyPrefix+userID, string(v), r.ttl).Err(); err != nil {
		return fmt.Errorf("failed to store view preference: %w", err)
	}
	return nil
}
