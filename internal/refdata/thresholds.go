package refdata

import (
	"context"
	"database/sql"
	"fmt"
	"sync/atomic"

	"RigWatch/internal/domain/models"
	"RigWatch/pkg/logger"
)

type thresholdTable map[string]*models.ThresholdConfig

// ThresholdStore serves threshold lookups from an immutable snapshot.
// Reload builds a fresh table and swaps it in atomically, so in-flight
// evaluations never observe a partially updated set.
type ThresholdStore struct {
	load func(ctx context.Context) ([]models.ThresholdConfig, error)
	snap atomic.Pointer[thresholdTable]
	log  *logger.Logger
}

// NewThresholdStore loads the initial threshold table from Postgres.
// A failure here is fatal: detection without thresholds is meaningless.
func NewThresholdStore(ctx context.Context, db *sql.DB, log *logger.Logger) (*ThresholdStore, error) {
	s := &ThresholdStore{load: loadThresholds(db), log: log}
	if err := s.Reload(ctx); err != nil {
		return nil, fmt.Errorf("initial threshold load: %w", err)
	}
	return s, nil
}

func newThresholdStore(load func(ctx context.Context) ([]models.ThresholdConfig, error), log *logger.Logger) *ThresholdStore {
	return &ThresholdStore{load: load, log: log}
}

// Threshold looks up the config for a sensor type and subtype. A subtype
// miss falls back to the type-wide row so specific rows can override it.
func (s *ThresholdStore) Threshold(sensorType, subtype string) (*models.ThresholdConfig, bool) {
	table := s.snap.Load()
	if table == nil {
		return nil, false
	}
	if t, ok := (*table)[models.ThresholdKey(sensorType, subtype)]; ok {
		return t, true
	}
	if subtype != "" {
		if t, ok := (*table)[models.ThresholdKey(sensorType, "")]; ok {
			return t, true
		}
	}
	return nil, false
}

// Reload replaces the whole table with a freshly loaded snapshot.
func (s *ThresholdStore) Reload(ctx context.Context) error {
	rows, err := s.load(ctx)
	if err != nil {
		return err
	}

	table := make(thresholdTable, len(rows))
	for i := range rows {
		t := rows[i]
		table[t.Key()] = &t
	}
	s.snap.Store(&table)

	s.log.Info("threshold table reloaded", logger.Int("entries", len(table)))
	return nil
}

// Size returns the number of threshold entries in the current snapshot.
func (s *ThresholdStore) Size() int {
	table := s.snap.Load()
	if table == nil {
		return 0
	}
	return len(*table)
}
