package refdata

import (
	"context"
	"time"

	"RigWatch/pkg/logger"
)

// Reloadable is anything with a snapshot that can be rebuilt.
type Reloadable interface {
	Reload(ctx context.Context) error
}

// Refresher periodically reloads the reference-data snapshots. Refresh
// failures keep the previous snapshot and are logged; only the initial load
// at startup is allowed to kill the process.
type Refresher struct {
	stores   []Reloadable
	interval time.Duration
	log      *logger.Logger
}

// NewRefresher creates a refresher over the given stores.
func NewRefresher(interval time.Duration, log *logger.Logger, stores ...Reloadable) *Refresher {
	if interval <= 0 {
		interval = 5 * time.Minute
	}
	return &Refresher{stores: stores, interval: interval, log: log}
}

// Run blocks until the context is cancelled.
func (r *Refresher) Run(ctx context.Context) {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.RefreshAll(ctx)
		}
	}
}

// RefreshAll reloads every store once.
func (r *Refresher) RefreshAll(ctx context.Context) {
	for _, s := range r.stores {
		if err := s.Reload(ctx); err != nil {
			r.log.Error("reference data refresh failed", logger.Error(err))
		}
	}
}
