package customs

import (
	"context"
	"sync"
	"time"
)

type slidingWindowEntry struct {
	timestamps []time.Time
	mu         sync.Mutex
}

// MemoryChecker implements Checker using an in-memory sliding window per
// subject+action. For multi-instance deployments, use RedisChecker.
type MemoryChecker struct {
	mu      sync.Mutex
	entries map[string]*slidingWindowEntry
	limit   int
	window  time.Duration
}

// NewMemoryChecker creates a memory-backed checker allowing limit requests
// per window for each subject+action pair.
func NewMemoryChecker(limit int, window time.Duration) *MemoryChecker {
	return &MemoryChecker{
		entries: make(map[string]*slidingWindowEntry),
		limit:   limit,
		window:  window,
	}
}

func (c *MemoryChecker) Check(ctx context.Context, subject, action string) error {
	key := subject + ":" + action

	c.mu.Lock()
	entry, exists := c.entries[key]
	if !exists {
		entry = &slidingWindowEntry{}
		c.entries[key] = entry
	}
	c.mu.Unlock()

	entry.mu.Lock()
	defer entry.mu.Unlock()

	now := time.Now()
	cutoff := now.Add(-c.window)

	valid := make([]time.Time, 0, len(entry.timestamps))
	for _, ts := range entry.timestamps {
		if ts.After(cutoff) {
			valid = append(valid, ts)
		}
	}
	entry.timestamps = valid

	if len(entry.timestamps) >= c.limit {
		return &BlockedError{Action: action, RetryAfter: c.window}
	}

	entry.timestamps = append(entry.timestamps, now)
	return nil
}

// Reset clears the counter for a subject+action pair.
func (c *MemoryChecker) Reset(ctx context.Context, subject, action string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, subject+":"+action)
	return nil
}
