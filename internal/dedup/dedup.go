package dedup

import (
	"context"
	"time"

	"RigWatch/internal/domain/models"
	domrepo "RigWatch/internal/domain/repository"
)

// Deduplicator suppresses repeated emission of logically identical anomalies
// within a rolling window, keyed by (sensor, anomaly kind). A severity
// increase always bypasses an open window, and any emission resets it.
// Decisions are based on the event's detection timestamp, which is monotonic
// per sensor.
type Deduplicator struct {
	store   domrepo.DedupStore
	window  time.Duration
	metrics domrepo.Metrics
}

// New creates a deduplicator with the given suppression window.
func New(store domrepo.DedupStore, window time.Duration, metrics domrepo.Metrics) *Deduplicator {
	if window <= 0 {
		window = 30 * time.Minute
	}
	return &Deduplicator{store: store, window: window, metrics: metrics}
}

// ShouldEmit decides whether the event passes deduplication. A store error
// fails open: losing dedup state must never silence a real anomaly.
func (d *Deduplicator) ShouldEmit(ctx context.Context, e *models.AnomalyEvent) (bool, error) {
	key := e.DedupKey()
	at := e.DetectionTime()

	lastAt, lastSev, seen, err := d.store.Last(ctx, key)
	if err != nil {
		d.metrics.RecordError("dedup_store")
		if rerr := d.store.Record(ctx, key, at, e.Severity, d.window); rerr != nil {
			return true, rerr
		}
		return true, err
	}

	if seen && at.Sub(lastAt) < d.window && e.Severity <= lastSev {
		d.metrics.RecordSuppressed(string(e.Kind))
		return false, nil
	}

	// Unseen, window elapsed, or severity escalated: emit and reset window.
	if err := d.store.Record(ctx, key, at, e.Severity, d.window); err != nil {
		d.metrics.RecordError("dedup_store")
		return true, err
	}
	return true, nil
}

// Window returns the configured suppression window.
func (d *Deduplicator) Window() time.Duration { return d.window }
