package gateway

import (
	"testing"
	"time"
)

func TestRateLimiter_Allow(t *testing.T) {
	limit := 5
	rl := NewRateLimiter(limit, time.Second)

	client := "203.0.113.7"

	// Requests up to the limit are allowed
	for i := 0; i < limit; i++ {
		if !rl.Allow(client) {
			t.Errorf("Request %d should be allowed", i+1)
		}
	}

	// The next request is denied
	if rl.Allow(client) {
		t.Error("Request should be denied after exceeding limit")
	}
}

func TestRateLimiter_Allow_DifferentClients(t *testing.T) {
	limit := 3
	rl := NewRateLimiter(limit, time.Second)

	client1 := "203.0.113.7"
	client2 := "203.0.113.8"

	// Exhaust limit for client1
	for i := 0; i < limit; i++ {
		if !rl.Allow(client1) {
			t.Errorf("Request %d for client1 should be allowed", i+1)
		}
	}

	if rl.Allow(client1) {
		t.Error("client1 should be denied after exceeding limit")
	}

	// client2 is unaffected
	if !rl.Allow(client2) {
		t.Error("client2 should be allowed")
	}
}

func TestRateLimiter_Allow_TokenRefill(t *testing.T) {
	limit := 2
	period := 100 * time.Millisecond
	rl := NewRateLimiter(limit, period)

	client := "203.0.113.7"

	for i := 0; i < limit; i++ {
		if !rl.Allow(client) {
			t.Errorf("Request %d should be allowed", i+1)
		}
	}

	if rl.Allow(client) {
		t.Error("Request should be denied after exceeding limit")
	}

	// Wait for token refill
	time.Sleep(period + 10*time.Millisecond)

	if !rl.Allow(client) {
		t.Error("Request should be allowed after token refill")
	}
}

func TestRateLimiter_Reset(t *testing.T) {
	limit := 3
	rl := NewRateLimiter(limit, time.Second)

	client := "203.0.113.7"

	for i := 0; i < limit; i++ {
		rl.Allow(client)
	}

	if rl.Allow(client) {
		t.Error("Request should be denied after exceeding limit")
	}

	rl.Reset(client)

	if !rl.Allow(client) {
		t.Error("Request should be allowed after reset")
	}
}

func TestRateLimiter_ConcurrentAccess(t *testing.T) {
	limit := 100
	rl := NewRateLimiter(limit, time.Second)

	client := "203.0.113.7"
	numGoroutines := 10
	requestsPerGoroutine := 20

	results := make(chan bool, numGoroutines*requestsPerGoroutine)

	for i := 0; i < numGoroutines; i++ {
		go func() {
			for j := 0; j < requestsPerGoroutine; j++ {
				results <- rl.Allow(client)
			}
		}()
	}

	allowedCount := 0
	deniedCount := 0
	totalRequests := numGoroutines * requestsPerGoroutine

	for i := 0; i < totalRequests; i++ {
		if <-results {
			allowedCount++
		} else {
			deniedCount++
		}
	}

	if allowedCount > limit {
		t.Errorf("Allowed %d requests, but limit is %d", allowedCount, limit)
	}
	if deniedCount != totalRequests-allowedCount {
		t.Errorf("Expected %d denied requests, got %d", totalRequests-allowedCount, deniedCount)
	}
}

func TestRateLimiter_Cleanup(t *testing.T) {
	rl := NewRateLimiter(5, time.Second)

	clients := []string{"203.0.113.7", "203.0.113.8", "203.0.113.9"}
	for _, client := range clients {
		rl.Allow(client)
	}

	if len(rl.buckets) != len(clients) {
		t.Errorf("Expected %d buckets, got %d", len(clients), len(rl.buckets))
	}

	// Recent buckets survive a cleanup pass
	rl.cleanup()

	if len(rl.buckets) != len(clients) {
		t.Errorf("Expected %d buckets after cleanup, got %d", len(clients), len(rl.buckets))
	}
}
