package gateway

import (
	"sync"
	"time"
)

// RateLimiter implements rate limiting using token bucket algorithm. The
// gateway keys buckets by client address: the credential endpoints it limits
// are reachable before any authentication.
type RateLimiter struct {
	buckets    map[string]*tokenBucket
	bucketsMux sync.RWMutex
	limit      int
	period     time.Duration
}

// tokenBucket represents a token bucket for rate limiting
type tokenBucket struct {
	tokens     int
	lastRefill time.Time
	mutex      sync.Mutex
}

// NewRateLimiter creates a new rate limiter
func NewRateLimiter(limit int, period time.Duration) *RateLimiter {
	return &RateLimiter{
		buckets: make(map[string]*tokenBucket),
		limit:   limit,
		period:  period,
	}
}

// Allow checks if a request is allowed for the given client
func (rl *RateLimiter) Allow(client string) bool {
	bucket := rl.getBucket(client)

	bucket.mutex.Lock()
	defer bucket.mutex.Unlock()

	// Refill tokens based on time elapsed
	now := time.Now()
	elapsed := now.Sub(bucket.lastRefill)

	if elapsed >= rl.period {
		// Refill bucket completely
		bucket.tokens = rl.limit
		bucket.lastRefill = now
	} else {
		// Partial refill based on elapsed time
		tokensToAdd := int(elapsed.Nanoseconds() * int64(rl.limit) / rl.period.Nanoseconds())
		bucket.tokens = minTokens(bucket.tokens+tokensToAdd, rl.limit)
		if tokensToAdd > 0 {
			bucket.lastRefill = now
		}
	}

	if bucket.tokens > 0 {
		bucket.tokens--
		return true
	}

	return false
}

// Reset resets the rate limit for a client
func (rl *RateLimiter) Reset(client string) {
	rl.bucketsMux.Lock()
	defer rl.bucketsMux.Unlock()

	if bucket, exists := rl.buckets[client]; exists {
		bucket.mutex.Lock()
		bucket.tokens = rl.limit
		bucket.lastRefill = time.Now()
		bucket.mutex.Unlock()
	}
}

// getBucket gets or creates a token bucket for a client
func (rl *RateLimiter) getBucket(client string) *tokenBucket {
	rl.bucketsMux.RLock()
	bucket, exists := rl.buckets[client]
	rl.bucketsMux.RUnlock()

	if exists {
		return bucket
	}

	rl.bucketsMux.Lock()
	defer rl.bucketsMux.Unlock()

	// Double-check after acquiring write lock
	if bucket, exists := rl.buckets[client]; exists {
		return bucket
	}

	bucket = &tokenBucket{
		tokens:     rl.limit,
		lastRefill: time.Now(),
	}
	rl.buckets[client] = bucket

	return bucket
}

// cleanup removes old buckets (should be called periodically)
func (rl *RateLimiter) cleanup() {
	rl.bucketsMux.Lock()
	defer rl.bucketsMux.Unlock()

	cutoff := time.Now().Add(-24 * time.Hour)

	for client, bucket := range rl.buckets {
		bucket.mutex.Lock()
		if bucket.lastRefill.Before(cutoff) {
			delete(rl.buckets, client)
		}
		bucket.mutex.Unlock()
	}
}

// StartCleanup starts periodic cleanup of old buckets
func (rl *RateLimiter) StartCleanup(interval time.Duration) {
	ticker := time.NewTicker(interval)
	go func() {
		for range ticker.C {
			rl.cleanup()
		}
	}()
}

// minTokens returns the minimum of two integers
func minTokens(a, b int) int {
	if a < b {
		return a
	}
	return b
}
