package escalation

import (
	"sync"
	"time"
)

type bucket struct {
	tokens     float64
	capacity   float64
	refillRate float64 // tokens per second
	last       time.Time
}

// Throttle is a per-target token bucket guarding notification endpoints.
// A burst of anomalies must not hammer a pager or SMS gateway.
type Throttle struct {
	mu sync.Mutex
	m  map[string]*bucket
}

func NewThrottle() *Throttle { return &Throttle{m: make(map[string]*bucket)} }

// Allow returns true if one token can be consumed for the target.
func (t *Throttle) Allow(target string, capacity, refillPerSec float64) bool {
	now := time.Now()
	t.mu.Lock()
	defer t.mu.Unlock()

	b, ok := t.m[target]
	if !ok {
		b = &bucket{tokens: capacity, capacity: capacity, refillRate: refillPerSec, last: now}
		t.m[target] = b
	}
	elapsed := now.Sub(b.last).Seconds()
	if elapsed > 0 {
		b.tokens += elapsed * b.refillRate
		if b.tokens > b.capacity {
			b.tokens = b.capacity
		}
		b.last = now
	}
	if b.tokens >= 1 {
		b.tokens--
		return true
	}
	return false
}
