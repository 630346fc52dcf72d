// Package server implements a fixed-window rate limiter keyed by connection id
// that protects the hub from message floods.
package server

import (
	"sync"
	"time"
)

type rateState struct {
	count   int
	resetAt time.Time
}

// RateLimiter counts accepted calls per connection in fixed windows.
type RateLimiter struct {
	mu     sync.Mutex
	limit  int
	window time.Duration
	states map[string]*rateState
}

// NewRateLimiter creates a limiter allowing limit calls per window.
func NewRateLimiter(limit int, window time.Duration) *RateLimiter {
	if limit <= 0 {
		limit = 1
	}
	if window <= 0 {
		window = time.Minute
	}
	return &RateLimiter{
		limit:  limit,
		window: window,
		states: make(map[string]*rateState),
	}
}

// Allow records an attempt for id at now and reports whether it is within the
// limit. Rejected attempts still count against the current window.
func (rl *RateLimiter) Allow(id string, now time.Time) bool {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	st, ok := rl.states[id]
	if !ok {
		st = &rateState{}
		rl.states[id] = st
	}
	if !ok || now.After(st.resetAt) {
		st.count = 0
		st.resetAt = now.Add(rl.window)
	}

	st.count++
	return st.count <= rl.limit
}

// Evict drops the state for id. Missing ids are ignored.
func (rl *RateLimiter) Evict(id string) {
	rl.mu.Lock()
	delete(rl.states, id)
	rl.mu.Unlock()
}

// Sweep removes every state whose window has expired and whose connection is
// not active. It returns the number of removed entries.
func (rl *RateLimiter) Sweep(now time.Time, active func(id string) bool) int {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	removed := 0
	for id, st := range rl.states {
		if now.After(st.resetAt) && (active == nil || !active(id)) {
			delete(rl.states, id)
			removed++
		}
	}
	return removed
}

// Len returns the number of tracked connections.
func (rl *RateLimiter) Len() int {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	return len(rl.states)
}
