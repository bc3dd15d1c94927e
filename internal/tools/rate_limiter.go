package tools

import (
	"fmt"
	"sync"
	"time"
)

// ToolRateLimiter is a sliding-window limiter keyed by tool name.
type ToolRateLimiter struct {
	mu      sync.Mutex
	windows map[string][]time.Time
	max     int
	window  time.Duration
}

// NewToolRateLimiter allows max calls per key within window.
// Returns nil (no limiting) when max <= 0.
func NewToolRateLimiter(max int, window time.Duration) *ToolRateLimiter {
	if max <= 0 {
		return nil
	}
	if window <= 0 {
		window = time.Hour
	}
	return &ToolRateLimiter{
		windows: make(map[string][]time.Time),
		max:     max,
		window:  window,
	}
}

// Allow records a call for key, or returns an error when the window is full.
func (rl *ToolRateLimiter) Allow(key string) error {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := time.Now()
	entries := prune(rl.windows[key], now.Add(-rl.window))
	if len(entries) >= rl.max {
		rl.windows[key] = entries
		return fmt.Errorf("rate limit exceeded for %s: %d calls per %s", key, rl.max, rl.window)
	}
	rl.windows[key] = append(entries, now)
	return nil
}

// Cleanup removes keys with no calls inside the window.
func (rl *ToolRateLimiter) Cleanup() {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	cutoff := time.Now().Add(-rl.window)
	for key, entries := range rl.windows {
		if entries = prune(entries, cutoff); len(entries) == 0 {
			delete(rl.windows, key)
		} else {
			rl.windows[key] = entries
		}
	}
}

func prune(entries []time.Time, cutoff time.Time) []time.Time {
	start := 0
	for start < len(entries) && entries[start].Before(cutoff) {
		start++
	}
	return entries[start:]
}
