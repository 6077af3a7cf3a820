package middleware

import (
	"context"
	"fmt"
	"sync"
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

type recordingProc struct {
	mu   sync.Mutex
	seen map[string][]float64
}

func newRecordingProc() *recordingProc {
	return &recordingProc{seen: make(map[string][]float64)}
}

func (p *recordingProc) Process(_ context.Context, r *models.SensorReading) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.seen[r.SensorID] = append(p.seen[r.SensorID], r.Value)
	return nil
}

func reading(sensorID string, value float64) *models.SensorReading {
	return &models.SensorReading{
		ReadingID:  fmt.Sprintf("%s-%g", sensorID, value),
		PlatformID: "ALPHA",
		SensorID:   sensorID,
		SensorType: "temperature",
		Value:      value,
		Timestamp:  time.Now().UnixMilli(),
	}
}

func TestLanesPreservePerSensorOrder(t *testing.T) {
	proc := newRecordingProc()
	lanes := NewSensorLanes(proc, nopMetrics{}, WithLaneCount(4), WithLaneBuffer(64))
	lanes.Start(context.Background())

	const perSensor = 200
	sensors := []string{"s1", "s2", "s3", "s4", "s5"}
	for i := 0; i < perSensor; i++ {
		for _, s := range sensors {
			if err := lanes.Submit(context.Background(), reading(s, float64(i))); err != nil {
				t.Fatalf("Submit: %v", err)
			}
		}
	}
	lanes.Stop()

	for _, s := range sensors {
		vals := proc.seen[s]
		if len(vals) != perSensor {
			t.Fatalf("sensor %s: got %d readings, want %d", s, len(vals), perSensor)
		}
		for i, v := range vals {
			if v != float64(i) {
				t.Fatalf("sensor %s: readings out of order at %d: got %g", s, i, v)
			}
		}
	}
}

func TestLanesStopDrainsBufferedReadings(t *testing.T) {
	proc := newRecordingProc()
	lanes := NewSensorLanes(proc, nopMetrics{}, WithLaneCount(2), WithLaneBuffer(128))
	lanes.Start(context.Background())

	for i := 0; i < 50; i++ {
		if err := lanes.Submit(context.Background(), reading("s1", float64(i))); err != nil {
			t.Fatalf("Submit: %v", err)
		}
	}
	lanes.Stop()

	if got := len(proc.seen["s1"]); got != 50 {
		t.Fatalf("expected all buffered readings drained, got %d", got)
	}

	if err := lanes.Submit(context.Background(), reading("s1", 99)); err == nil {
		t.Fatal("submit after stop must fail")
	}
}

func TestLanesRejectInvalidReading(t *testing.T) {
	lanes := NewSensorLanes(newRecordingProc(), nopMetrics{})
	lanes.Start(context.Background())
	defer lanes.Stop()

	if err := lanes.Submit(context.Background(), nil); err == nil {
		t.Fatal("nil reading must be rejected")
	}
	r := reading("", 1)
	if err := lanes.Submit(context.Background(), r); err == nil {
		t.Fatal("empty sensor id must be rejected")
	}
	r = reading("s1", 1)
	r.Timestamp = 0
	if err := lanes.Submit(context.Background(), r); err == nil {
		t.Fatal("zero timestamp must be rejected")
	}
}

func TestLaneForIsStable(t *testing.T) {
	lanes := NewSensorLanes(newRecordingProc(), nopMetrics{}, WithLaneCount(8))
	for _, s := range []string{"ALPHA-PUMP-01-TEMP-01", "BRAVO-COMP-02-VIB-03", "x"} {
		a := lanes.laneFor(s)
		for i := 0; i < 10; i++ {
			if b := lanes.laneFor(s); b != a {
				t.Fatalf("lane for %s not stable: %d vs %d", s, a, b)
			}
		}
	}
}
