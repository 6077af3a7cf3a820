package dedup

import (
	"context"
	"errors"
	"testing"
	"time"

	"RigWatch/internal/domain/models"
)

type nopMetrics struct{}

func (nopMetrics) RecordReading(string)            {}
func (nopMetrics) RecordAnomaly(string, string)    {}
func (nopMetrics) RecordSuppressed(string)         {}
func (nopMetrics) RecordEscalation(string, string) {}
func (nopMetrics) RecordSinkWrite(string, string)  {}
func (nopMetrics) RecordError(string)              {}
func (nopMetrics) RecordLatency(string, float64)   {}

type failingStore struct {
	recorded int
}

func (f *failingStore) Last(context.Context, string) (time.Time, models.Severity, bool, error) {
	return time.Time{}, 0, false, errors.New("store down")
}

func (f *failingStore) Record(context.Context, string, time.Time, models.Severity, time.Duration) error {
	f.recorded++
	return errors.New("store down")
}

func event(sensorID string, kind models.AnomalyKind, sev models.Severity, at time.Time) *models.AnomalyEvent {
	return &models.AnomalyEvent{
		EventID:    "evt-" + sensorID,
		ReadingID:  "rdg-" + sensorID,
		SensorID:   sensorID,
		PlatformID: "platform-7",
		SensorType: "temperature",
		Kind:       kind,
		Severity:   sev,
		DetectedAt: at.UnixMilli(),
	}
}

func TestDedupSuppressesRepeatsWithinWindow(t *testing.T) {
	store := NewMemoryStore(time.Minute)
	defer store.Close()
	d := New(store, 30*time.Minute, nopMetrics{})

	base := time.Now()
	emitted := 0
	for i := 0; i < 5; i++ {
		at := base.Add(time.Duration(i) * time.Minute)
		ok, err := d.ShouldEmit(context.Background(), event("s1", models.KindThreshold, models.SeverityWarning, at))
		if err != nil {
			t.Fatalf("ShouldEmit: %v", err)
		}
		if ok {
			emitted++
		}
	}
	if emitted != 1 {
		t.Fatalf("expected exactly 1 emission for repeated anomalies, got %d", emitted)
	}
}

func TestDedupSeverityEscalationBypassesWindow(t *testing.T) {
	store := NewMemoryStore(time.Minute)
	defer store.Close()
	d := New(store, 30*time.Minute, nopMetrics{})

	base := time.Now()
	emitted := 0
	severities := []models.Severity{
		models.SeverityWarning,
		models.SeverityWarning,
		models.SeverityCritical,
		models.SeverityCritical,
	}
	for i, sev := range severities {
		at := base.Add(time.Duration(i) * time.Minute)
		ok, err := d.ShouldEmit(context.Background(), event("s1", models.KindThreshold, sev, at))
		if err != nil {
			t.Fatalf("ShouldEmit: %v", err)
		}
		if ok {
			emitted++
		}
	}
	if emitted != 2 {
		t.Fatalf("expected 2 emissions (first warning, first critical), got %d", emitted)
	}
}

func TestDedupWindowExpiryReemits(t *testing.T) {
	store := NewMemoryStore(time.Minute)
	defer store.Close()
	d := New(store, 10*time.Minute, nopMetrics{})

	base := time.Now()
	first, err := d.ShouldEmit(context.Background(), event("s1", models.KindMovingAverage, models.SeverityWarning, base))
	if err != nil || !first {
		t.Fatalf("first anomaly should emit, got %v %v", first, err)
	}

	inside, err := d.ShouldEmit(context.Background(), event("s1", models.KindMovingAverage, models.SeverityWarning, base.Add(9*time.Minute)))
	if err != nil {
		t.Fatalf("ShouldEmit: %v", err)
	}
	if inside {
		t.Fatal("anomaly inside the window should be suppressed")
	}

	after, err := d.ShouldEmit(context.Background(), event("s1", models.KindMovingAverage, models.SeverityWarning, base.Add(10*time.Minute)))
	if err != nil {
		t.Fatalf("ShouldEmit: %v", err)
	}
	if !after {
		t.Fatal("anomaly past the window should emit again")
	}
}

func TestDedupLowerSeverityStaysSuppressed(t *testing.T) {
	store := NewMemoryStore(time.Minute)
	defer store.Close()
	d := New(store, 30*time.Minute, nopMetrics{})

	base := time.Now()
	if ok, _ := d.ShouldEmit(context.Background(), event("s1", models.KindThreshold, models.SeverityCritical, base)); !ok {
		t.Fatal("first critical should emit")
	}
	ok, err := d.ShouldEmit(context.Background(), event("s1", models.KindThreshold, models.SeverityWarning, base.Add(time.Minute)))
	if err != nil {
		t.Fatalf("ShouldEmit: %v", err)
	}
	if ok {
		t.Fatal("warning after critical within the window should be suppressed")
	}
}

func TestDedupKeysAreIndependent(t *testing.T) {
	store := NewMemoryStore(time.Minute)
	defer store.Close()
	d := New(store, 30*time.Minute, nopMetrics{})

	base := time.Now()
	cases := []*models.AnomalyEvent{
		event("s1", models.KindThreshold, models.SeverityWarning, base),
		event("s1", models.KindRateOfChange, models.SeverityWarning, base),
		event("s2", models.KindThreshold, models.SeverityWarning, base),
	}
	for _, e := range cases {
		ok, err := d.ShouldEmit(context.Background(), e)
		if err != nil {
			t.Fatalf("ShouldEmit: %v", err)
		}
		if !ok {
			t.Fatalf("first anomaly for %s should emit", e.DedupKey())
		}
	}
}

func TestDedupFailsOpenOnStoreError(t *testing.T) {
	store := &failingStore{}
	d := New(store, 30*time.Minute, nopMetrics{})

	ok, err := d.ShouldEmit(context.Background(), event("s1", models.KindThreshold, models.SeverityWarning, time.Now()))
	if !ok {
		t.Fatal("store failure must not suppress the anomaly")
	}
	if err == nil {
		t.Fatal("expected the store error to surface")
	}
	if store.recorded == 0 {
		t.Fatal("record should still be attempted")
	}
}

func TestMemoryStoreRoundTrip(t *testing.T) {
	store := NewMemoryStore(time.Minute)
	defer store.Close()

	at := time.Now().Truncate(time.Millisecond)
	if err := store.Record(context.Background(), "s1/threshold", at, models.SeverityCritical, time.Hour); err != nil {
		t.Fatalf("Record: %v", err)
	}

	gotAt, gotSev, seen, err := store.Last(context.Background(), "s1/threshold")
	if err != nil {
		t.Fatalf("Last: %v", err)
	}
	if !seen {
		t.Fatal("expected recorded key to be seen")
	}
	if !gotAt.Equal(at) || gotSev != models.SeverityCritical {
		t.Fatalf("got (%v, %v), want (%v, %v)", gotAt, gotSev, at, models.SeverityCritical)
	}

	_, _, seen, err = store.Last(context.Background(), "missing")
	if err != nil || seen {
		t.Fatalf("missing key: seen=%v err=%v", seen, err)
	}
}
