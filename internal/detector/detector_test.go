package detector

import (
	"context"
	"testing"
	"time"

	"RigWatch/internal/domain/models"
)

// staticThresholds serves a fixed table for tests.
type staticThresholds map[string]*models.ThresholdConfig

func (s staticThresholds) Threshold(sensorType, subtype string) (*models.ThresholdConfig, bool) {
	cfg, ok := s[models.ThresholdKey(sensorType, subtype)]
	return cfg, ok
}

func (s staticThresholds) Reload(context.Context) error { return nil }

// nopMetrics satisfies the Metrics interface for tests.
type nopMetrics struct{}

func (nopMetrics) RecordReading(string)            {}
func (nopMetrics) RecordAnomaly(string, string)    {}
func (nopMetrics) RecordSuppressed(string)         {}
func (nopMetrics) RecordEscalation(string, string) {}
func (nopMetrics) RecordSinkWrite(string, string)  {}
func (nopMetrics) RecordError(string)              {}
func (nopMetrics) RecordLatency(string, float64)   {}

func tempThresholds() staticThresholds {
	return staticThresholds{
		models.ThresholdKey("temperature", "bearing"): {
			SensorType:   "temperature",
			Subtype:      "bearing",
			WarningLow:   10,
			WarningHigh:  100,
			CriticalLow:  5,
			CriticalHigh: 120,
			Unit:         "celsius",
		},
	}
}

func reading(sensorID string, value float64, ts int64) *models.SensorReading {
	return &models.SensorReading{
		ReadingID:   "r-" + sensorID,
		PlatformID:  "ALPHA",
		SensorID:    sensorID,
		SensorType:  "temperature",
		Subtype:     "bearing",
		Value:       value,
		Unit:        "celsius",
		Timestamp:   ts,
		QualityFlag: models.QualityGood,
	}
}

func TestThresholdDetectorNormalRangeSilent(t *testing.T) {
	d := NewThresholdDetector(tempThresholds())
	for _, v := range []float64{10.1, 25, 50, 75, 99.9} {
		if f := d.Evaluate(reading("S1", v, 1000)); f != nil {
			t.Fatalf("value %v should be silent, got %+v", v, f)
		}
	}
}

func TestThresholdDetectorClassification(t *testing.T) {
	d := NewThresholdDetector(tempThresholds())
	cases := []struct {
		value float64
		want  models.Severity
		ref   float64
	}{
		{130, models.SeverityCritical, 120},
		{120, models.SeverityCritical, 120},
		{3, models.SeverityCritical, 5},
		{105, models.SeverityWarning, 100},
		{8, models.SeverityWarning, 10},
	}
	for _, tc := range cases {
		f := d.Evaluate(reading("S1", tc.value, 1000))
		if f == nil {
			t.Fatalf("value %v: expected finding", tc.value)
		}
		if f.Severity != tc.want {
			t.Fatalf("value %v: severity %v, want %v", tc.value, f.Severity, tc.want)
		}
		if f.ReferenceValue != tc.ref {
			t.Fatalf("value %v: reference %v, want %v", tc.value, f.ReferenceValue, tc.ref)
		}
		if f.Kind != models.KindThreshold {
			t.Fatalf("value %v: kind %v", tc.value, f.Kind)
		}
	}
}

func TestThresholdDetectorMissingConfigNoops(t *testing.T) {
	d := NewThresholdDetector(staticThresholds{})
	if f := d.Evaluate(reading("S1", 99999, 1000)); f != nil {
		t.Fatalf("no config should mean no finding, got %+v", f)
	}
}

func TestMovingAverageConstantStreamSilent(t *testing.T) {
	d := NewMovingAverageDetector(NewStore(), MovingAverageConfig{WindowSize: 20, MinSamples: 5, Multiplier: 3})
	for i := 0; i < 50; i++ {
		if f := d.Evaluate(reading("S1", 42, int64(i*1000))); f != nil {
			t.Fatalf("constant stream fired at i=%d: %+v", i, f)
		}
	}
}

func TestMovingAverageFlatBaselineBreak(t *testing.T) {
	d := NewMovingAverageDetector(NewStore(), MovingAverageConfig{WindowSize: 20, MinSamples: 5, Multiplier: 3})
	for i := 0; i < 10; i++ {
		d.Evaluate(reading("S1", 42, int64(i*1000)))
	}
	f := d.Evaluate(reading("S1", 60, 11000))
	if f == nil {
		t.Fatal("break from constant baseline should fire")
	}
	if f.Severity != models.SeverityCritical {
		t.Fatalf("severity %v, want CRITICAL", f.Severity)
	}
}

func TestMovingAverageWarmupSilent(t *testing.T) {
	d := NewMovingAverageDetector(NewStore(), MovingAverageConfig{WindowSize: 20, MinSamples: 5, Multiplier: 3})
	// Wild swings during warm-up must not fire.
	for i, v := range []float64{1, 1000, -500} {
		if f := d.Evaluate(reading("S1", v, int64(i*1000))); f != nil {
			t.Fatalf("warm-up fired at i=%d: %+v", i, f)
		}
	}
}

func TestMovingAverageOutlierSeverity(t *testing.T) {
	d := NewMovingAverageDetector(NewStore(), MovingAverageConfig{WindowSize: 20, MinSamples: 5, Multiplier: 3})
	// Baseline with small spread around 50.
	base := []float64{49, 51, 50, 48, 52, 50, 49, 51, 50, 52}
	for i, v := range base {
		if f := d.Evaluate(reading("S1", v, int64(i*1000))); f != nil {
			t.Fatalf("baseline fired at i=%d: %+v", i, f)
		}
	}
	f := d.Evaluate(reading("S1", 500, 20000))
	if f == nil {
		t.Fatal("large outlier should fire")
	}
	if f.Severity != models.SeverityCritical {
		t.Fatalf("severity %v, want CRITICAL", f.Severity)
	}
	if f.Kind != models.KindMovingAverage {
		t.Fatalf("kind %v", f.Kind)
	}
}

func TestMovingAverageBoundaryNotAnomalous(t *testing.T) {
	// Window of prior values {48, 52, 48, 52} has mean 50; a value exactly
	// k stddevs away must not fire (strict >).
	d := NewMovingAverageDetector(NewStore(), MovingAverageConfig{WindowSize: 20, MinSamples: 5, Multiplier: 3})
	for i, v := range []float64{48, 52, 48, 52} {
		d.Evaluate(reading("S1", v, int64(i*1000)))
	}
	// Sample stddev of {48,52,48,52} is ~2.3094; stay a hair inside the
	// 3-stddev boundary to avoid float noise on the strict comparison.
	f := d.Evaluate(reading("S1", 50+3*2.309, 5000))
	if f != nil {
		t.Fatalf("boundary value should not fire, got %+v", f)
	}
}

func TestWindowStrictFIFOCapacity(t *testing.T) {
	store := NewStore()
	d := NewMovingAverageDetector(store, MovingAverageConfig{WindowSize: 20, MinSamples: 5, Multiplier: 100})
	for i := 0; i < 25; i++ {
		d.Evaluate(reading("S1", float64(i), int64(i*1000)))
	}
	w := store.Window("S1", 20)
	if w.Len() != 20 {
		t.Fatalf("window length %d after 25 readings, want 20", w.Len())
	}
	vals := w.Values()
	if vals[0] != 5 || vals[19] != 24 {
		t.Fatalf("window [%v..%v], want [5..24]", vals[0], vals[19])
	}
}

func TestRateOfChangeSpike(t *testing.T) {
	d := NewRateOfChangeDetector(NewStore(), RateOfChangeConfig{MaxRate: 100, MaxGap: 60 * time.Second})
	if f := d.Evaluate(reading("S1", 50, 1000)); f != nil {
		t.Fatalf("first reading should only set baseline, got %+v", f)
	}
	f := d.Evaluate(reading("S1", 500, 2000))
	if f == nil {
		t.Fatal("450 units/s over 100 max should fire")
	}
	if f.Severity != models.SeverityCritical {
		t.Fatalf("severity %v, want CRITICAL (rate > 2x bound)", f.Severity)
	}
}

func TestRateOfChangeWarningBand(t *testing.T) {
	d := NewRateOfChangeDetector(NewStore(), RateOfChangeConfig{MaxRate: 100, MaxGap: 60 * time.Second})
	d.Evaluate(reading("S1", 50, 1000))
	f := d.Evaluate(reading("S1", 200, 2000)) // 150 units/s
	if f == nil || f.Severity != models.SeverityWarning {
		t.Fatalf("150 units/s should be WARNING, got %+v", f)
	}
}

func TestRateOfChangeNonPositiveElapsedSkips(t *testing.T) {
	store := NewStore()
	d := NewRateOfChangeDetector(store, RateOfChangeConfig{MaxRate: 100, MaxGap: 60 * time.Second})
	d.Evaluate(reading("S1", 50, 2000))
	if f := d.Evaluate(reading("S1", 5000, 2000)); f != nil {
		t.Fatalf("duplicate timestamp should skip, got %+v", f)
	}
	ls, ok := store.LastSample("S1")
	if !ok || ls.Value != 50 || ls.TimestampMS != 2000 {
		t.Fatalf("stored state must be untouched on skip, got %+v", ls)
	}
	if f := d.Evaluate(reading("S1", 5000, 1000)); f != nil {
		t.Fatalf("out-of-order timestamp should skip, got %+v", f)
	}
}

func TestRateOfChangeGapResetsBaseline(t *testing.T) {
	store := NewStore()
	d := NewRateOfChangeDetector(store, RateOfChangeConfig{MaxRate: 100, MaxGap: 60 * time.Second})
	d.Evaluate(reading("S1", 50, 1000))
	if f := d.Evaluate(reading("S1", 100000, 1000+120_000)); f != nil {
		t.Fatalf("stale comparison should become new baseline, got %+v", f)
	}
	ls, _ := store.LastSample("S1")
	if ls.Value != 100000 {
		t.Fatalf("baseline not updated, got %+v", ls)
	}
}

func TestRateOfChangeNormalUpdatesBaseline(t *testing.T) {
	store := NewStore()
	d := NewRateOfChangeDetector(store, RateOfChangeConfig{MaxRate: 100, MaxGap: 60 * time.Second})
	d.Evaluate(reading("S1", 50, 1000))
	if f := d.Evaluate(reading("S1", 60, 2000)); f != nil {
		t.Fatalf("10 units/s should be silent, got %+v", f)
	}
	ls, _ := store.LastSample("S1")
	if ls.Value != 60 || ls.TimestampMS != 2000 {
		t.Fatalf("baseline must update win or lose, got %+v", ls)
	}
}

func TestPipelineMergesHighestSeverity(t *testing.T) {
	store := NewStore()
	p := NewPipeline(
		NewThresholdDetector(tempThresholds()),
		NewMovingAverageDetector(store, MovingAverageConfig{WindowSize: 20, MinSamples: 5, Multiplier: 3}),
		NewRateOfChangeDetector(store, RateOfChangeConfig{MaxRate: 100, MaxGap: 60 * time.Second}),
		nopMetrics{},
	)

	// Warm up around 50, inside the normal threshold band.
	for i := 0; i < 10; i++ {
		if e := p.Detect(reading("S1", 50+float64(i%2), int64(i)*1000)); e != nil {
			t.Fatalf("warm-up emitted event: %+v", e)
		}
	}

	// 130 breaks critical high and the moving-average baseline at once.
	e := p.Detect(reading("S1", 130, 10_000))
	if e == nil {
		t.Fatal("expected merged event")
	}
	if e.Severity != models.SeverityCritical {
		t.Fatalf("severity %v, want CRITICAL", e.Severity)
	}
	// Tie on severity resolves to detector order: threshold first.
	if e.Kind != models.KindThreshold {
		t.Fatalf("kind %v, want threshold (tie-break by detector order)", e.Kind)
	}
	if e.EventID == "" || e.ReadingID == "" || e.DetectedAt == 0 {
		t.Fatalf("event identity incomplete: %+v", e)
	}
}

func TestPipelineSilentReadingEmitsNothing(t *testing.T) {
	store := NewStore()
	p := NewPipeline(
		NewThresholdDetector(tempThresholds()),
		NewMovingAverageDetector(store, MovingAverageConfig{WindowSize: 20, MinSamples: 5, Multiplier: 3}),
		NewRateOfChangeDetector(store, RateOfChangeConfig{MaxRate: 100, MaxGap: 60 * time.Second}),
		nopMetrics{},
	)
	if e := p.Detect(reading("S1", 50, 1000)); e != nil {
		t.Fatalf("normal reading emitted %+v", e)
	}
}

func TestStateIsolationAcrossSensors(t *testing.T) {
	store := NewStore()
	d := NewRateOfChangeDetector(store, RateOfChangeConfig{MaxRate: 100, MaxGap: 60 * time.Second})
	d.Evaluate(reading("S1", 50, 1000))
	// First reading for S2 must be a baseline even though S1 has state.
	if f := d.Evaluate(reading("S2", 50000, 2000)); f != nil {
		t.Fatalf("S2 first reading saw S1 state: %+v", f)
	}
}
