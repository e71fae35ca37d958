package ratelimit

import (
	"context"
	"sync"
	"time"
)

// Sliding window held entirely in process memory. State is lost on restart,
// which is acceptable: the limiter throttles burst abuse, it is not a
// source of truth.
type MemorySlidingWindow struct {
	mu      sync.Mutex
	entries map[string]*windowEntry
	limit   int
	window  time.Duration

	stop     chan struct{}
	stopOnce sync.Once

	now func() time.Time
}

type windowEntry struct {
	timestamps []time.Time
	lastSeen   time.Time
}

func NewMemorySlidingWindow(limit int, window time.Duration) *MemorySlidingWindow {
	m := &MemorySlidingWindow{
		entries: make(map[string]*windowEntry),
		limit:   limit,
		window:  window,
		stop:    make(chan struct{}),
		now:     time.Now,
	}

	// Sweep idle keys so the map does not grow unbounded
	go m.sweep()

	return m
}

// Close stops the background sweep. The limiter itself keeps working;
// only the idle-key cleanup ends.
func (m *MemorySlidingWindow) Close() {
	m.stopOnce.Do(func() {
		close(m.stop)
	})
}

func (m *MemorySlidingWindow) Allow(ctx context.Context, key string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	entry := m.prune(key, now)

	if len(entry.timestamps) >= m.limit {
		return false, nil
	}

	entry.timestamps = append(entry.timestamps, now)
	entry.lastSeen = now
	return true, nil
}

func (m *MemorySlidingWindow) Remaining(ctx context.Context, key string) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	entry := m.prune(key, m.now())
	remaining := m.limit - len(entry.timestamps)
	if remaining < 0 {
		remaining = 0
	}
	return remaining, nil
}

func (m *MemorySlidingWindow) Limit() int {
	return m.limit
}

func (m *MemorySlidingWindow) Window() time.Duration {
	return m.window
}

func (m *MemorySlidingWindow) Reset(ctx context.Context, key string) (time.Time, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	entry := m.prune(key, now)

	if len(entry.timestamps) == 0 {
		return now, nil
	}

	// The oldest timestamp frees its slot once it ages out of the window
	return entry.timestamps[0].Add(m.window), nil
}

// Drops timestamps that have aged out of the window. Caller holds the lock.
func (m *MemorySlidingWindow) prune(key string, now time.Time) *windowEntry {
	entry, ok := m.entries[key]
	if !ok {
		entry = &windowEntry{lastSeen: now}
		m.entries[key] = entry
	}

	cutoff := now.Add(-m.window)
	kept := entry.timestamps[:0]
	for _, ts := range entry.timestamps {
		if ts.After(cutoff) {
			kept = append(kept, ts)
		}
	}
	entry.timestamps = kept

	return entry
}

func (m *MemorySlidingWindow) sweep() {
	ticker := time.NewTicker(m.window)
	defer ticker.Stop()

	for {
		select {
		case <-m.stop:
			return
		case <-ticker.C:
			m.mu.Lock()
			cutoff := m.now().Add(-2 * m.window)
			for key, entry := range m.entries {
				if entry.lastSeen.Before(cutoff) {
					delete(m.entries, key)
				}
			}
			m.mu.Unlock()
		}
	}
}
