package dedup

import (
	"context"
	"sync"
	"time"

	"RigWatch/internal/domain/models"
)

type memoryEntry struct {
	at       time.Time
	severity models.Severity
	expireAt time.Time
}

// MemoryStore is the default single-process dedup state store. Entries expire
// lazily on read plus a periodic sweep so a long-idle sensor does not pin
// memory forever.
type MemoryStore struct {
	mu      sync.Mutex
	entries map[string]memoryEntry
	ticker  *time.Ticker
	done    chan struct{}
}

// NewMemoryStore creates an in-memory dedup store with a background sweep.
func NewMemoryStore(cleanupInterval time.Duration) *MemoryStore {
	if cleanupInterval <= 0 {
		cleanupInterval = 5 * time.Minute
	}
	m := &MemoryStore{
		entries: make(map[string]memoryEntry),
		ticker:  time.NewTicker(cleanupInterval),
		done:    make(chan struct{}),
	}
	go m.sweep()
	return m
}

func (m *MemoryStore) Last(_ context.Context, key string) (time.Time, models.Severity, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.entries[key]
	if !ok {
		return time.Time{}, 0, false, nil
	}
	if time.Now().After(e.expireAt) {
		delete(m.entries, key)
		return time.Time{}, 0, false, nil
	}
	return e.at, e.severity, true, nil
}

func (m *MemoryStore) Record(_ context.Context, key string, at time.Time, severity models.Severity, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	// Keep the entry around for double the window so a re-read just past the
	// boundary still sees the previous emission time rather than "unseen".
	m.entries[key] = memoryEntry{at: at, severity: severity, expireAt: time.Now().Add(2 * ttl)}
	return nil
}

func (m *MemoryStore) sweep() {
	for {
		select {
		case <-m.done:
			return
		case <-m.ticker.C:
			now := time.Now()
			m.mu.Lock()
			for k, e := range m.entries {
				if now.After(e.expireAt) {
					delete(m.entries, k)
				}
			}
			m.mu.Unlock()
		}
	}
}

// Close stops the background sweep.
func (m *MemoryStore) Close() error {
	m.ticker.Stop()
	close(m.done)
	return nil
}
