package refdata

import (
	"context"
	"errors"
	"testing"

	"RigWatch/internal/domain/models"
	"RigWatch/pkg/logger"
)

func testLogger(t *testing.T) *logger.Logger {
	t.Helper()
	log, err := logger.New(&logger.Config{Level: "error", Format: "json", Output: "stderr"})
	if err != nil {
		t.Fatalf("logger.New: %v", err)
	}
	return log
}

func TestThresholdStoreLookupAndFallback(t *testing.T) {
	load := func(context.Context) ([]models.ThresholdConfig, error) {
		return []models.ThresholdConfig{
			{SensorType: "temperature", Subtype: "", WarningHigh: 90, CriticalHigh: 110},
			{SensorType: "temperature", Subtype: "bearing", WarningHigh: 70, CriticalHigh: 85},
		}, nil
	}
	s := newThresholdStore(load, testLogger(t))
	if err := s.Reload(context.Background()); err != nil {
		t.Fatalf("Reload: %v", err)
	}

	bearing, ok := s.Threshold("temperature", "bearing")
	if !ok || bearing.CriticalHigh != 85 {
		t.Fatalf("specific subtype lookup failed: %+v %v", bearing, ok)
	}

	casing, ok := s.Threshold("temperature", "casing")
	if !ok || casing.CriticalHigh != 110 {
		t.Fatalf("expected fallback to type-wide row, got %+v %v", casing, ok)
	}

	if _, ok := s.Threshold("salinity", ""); ok {
		t.Fatal("unknown sensor type must miss")
	}
}

func TestThresholdStoreKeepsSnapshotOnFailedReload(t *testing.T) {
	calls := 0
	load := func(context.Context) ([]models.ThresholdConfig, error) {
		calls++
		if calls > 1 {
			return nil, errors.New("postgres gone")
		}
		return []models.ThresholdConfig{{SensorType: "pressure", CriticalHigh: 400}}, nil
	}
	s := newThresholdStore(load, testLogger(t))
	if err := s.Reload(context.Background()); err != nil {
		t.Fatalf("initial Reload: %v", err)
	}

	if err := s.Reload(context.Background()); err == nil {
		t.Fatal("expected reload failure to surface")
	}
	if _, ok := s.Threshold("pressure", ""); !ok {
		t.Fatal("failed reload must keep serving the previous snapshot")
	}
}

func TestThresholdStoreEmptyBeforeLoad(t *testing.T) {
	s := newThresholdStore(func(context.Context) ([]models.ThresholdConfig, error) { return nil, nil }, testLogger(t))
	if _, ok := s.Threshold("temperature", ""); ok {
		t.Fatal("unloaded store must miss")
	}
	if s.Size() != 0 {
		t.Fatalf("unloaded store size = %d", s.Size())
	}
}

func TestRuleStoreGroupsBySeverityInOrder(t *testing.T) {
	load := func(context.Context) ([]models.EscalationRule, error) {
		return []models.EscalationRule{
			{ID: 1, Severity: models.SeverityCritical, Action: models.ActionWebhook, Enabled: true},
			{ID: 2, Severity: models.SeverityWarning, Action: models.ActionWebhook, Enabled: true},
			{ID: 3, Severity: models.SeverityCritical, Action: models.ActionSMS, Enabled: true},
		}, nil
	}
	s := newRuleStore(load, testLogger(t))
	if err := s.Reload(context.Background()); err != nil {
		t.Fatalf("Reload: %v", err)
	}

	critical := s.RulesFor(models.SeverityCritical)
	if len(critical) != 2 || critical[0].ID != 1 || critical[1].ID != 3 {
		t.Fatalf("critical rules out of order: %+v", critical)
	}
	if warn := s.RulesFor(models.SeverityWarning); len(warn) != 1 || warn[0].ID != 2 {
		t.Fatalf("warning rules: %+v", warn)
	}
	if info := s.RulesFor(models.SeverityInfo); len(info) != 0 {
		t.Fatalf("info rules should be empty, got %+v", info)
	}
}

func TestRuleStoreEmptyTableFallsBackToDefaults(t *testing.T) {
	s := newRuleStore(func(context.Context) ([]models.EscalationRule, error) { return nil, nil }, testLogger(t))
	if err := s.Reload(context.Background()); err != nil {
		t.Fatalf("Reload: %v", err)
	}

	critical := s.RulesFor(models.SeverityCritical)
	if len(critical) != 3 {
		t.Fatalf("default seed should page critical through 3 channels, got %d", len(critical))
	}
	actions := map[models.ActionType]bool{}
	for _, r := range critical {
		actions[r.Action] = true
	}
	for _, want := range []models.ActionType{models.ActionWebhook, models.ActionPagerDuty, models.ActionSMS} {
		if !actions[want] {
			t.Fatalf("default critical rules missing %s", want)
		}
	}
}

func TestRefresherToleratesFailures(t *testing.T) {
	good := newRuleStore(func(context.Context) ([]models.EscalationRule, error) {
		return []models.EscalationRule{{ID: 1, Severity: models.SeverityInfo, Action: models.ActionLog, Enabled: true}}, nil
	}, testLogger(t))
	bad := newThresholdStore(func(context.Context) ([]models.ThresholdConfig, error) {
		return nil, errors.New("postgres gone")
	}, testLogger(t))

	r := NewRefresher(0, testLogger(t), bad, good)
	r.RefreshAll(context.Background())

	if len(good.RulesFor(models.SeverityInfo)) != 1 {
		t.Fatal("healthy store must still refresh when a sibling fails")
	}
}
