package usecase

import (
	"context"
	"sync"
	"testing"
	"time"

	"RigWatch/internal/dedup"
	"RigWatch/internal/detector"
	"RigWatch/internal/domain/models"
	domrepo "RigWatch/internal/domain/repository"
	"RigWatch/internal/escalation"
	"RigWatch/internal/fanout"
	"RigWatch/pkg/logger"
)

type nopMetrics struct{}

func (nopMetrics) RecordReading(string)            {}
func (nopMetrics) RecordAnomaly(string, string)    {}
func (nopMetrics) RecordSuppressed(string)         {}
func (nopMetrics) RecordEscalation(string, string) {}
func (nopMetrics) RecordSinkWrite(string, string)  {}
func (nopMetrics) RecordError(string)              {}
func (nopMetrics) RecordLatency(string, float64)   {}

type staticThresholds map[string]*models.ThresholdConfig

func (s staticThresholds) Threshold(sensorType, subtype string) (*models.ThresholdConfig, bool) {
	t, ok := s[models.ThresholdKey(sensorType, subtype)]
	return t, ok
}

func (staticThresholds) Reload(context.Context) error { return nil }

type staticRules []models.EscalationRule

func (r staticRules) RulesFor(sev models.Severity) []models.EscalationRule {
	var out []models.EscalationRule
	for _, rule := range r {
		if rule.Severity == sev {
			out = append(out, rule)
		}
	}
	return out
}

func (staticRules) Reload(context.Context) error { return nil }

type countingNotifier struct {
	mu    sync.Mutex
	calls map[models.ActionType]int
}

func (n *countingNotifier) Notify(_ context.Context, action models.ActionType, _ string, _ *domrepo.NotificationPayload) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.calls == nil {
		n.calls = map[models.ActionType]int{}
	}
	n.calls[action]++
	return nil
}

// memAlertLog is an in-memory AlertLog standing in for Postgres.
type memAlertLog struct {
	mu       sync.Mutex
	records  map[string]*models.AlertRecord
	outcomes map[string]*models.EscalationOutcome
}

func newMemAlertLog() *memAlertLog {
	return &memAlertLog{
		records:  map[string]*models.AlertRecord{},
		outcomes: map[string]*models.EscalationOutcome{},
	}
}

func (m *memAlertLog) Name() string { return "postgres" }

func (m *memAlertLog) Write(_ context.Context, e *models.AnomalyEvent) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.records[e.EventID]; !ok {
		m.records[e.EventID] = models.NewAlertRecord(*e)
	}
	return nil
}

func (m *memAlertLog) RecordOutcome(_ context.Context, eventID string, o *models.EscalationOutcome) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.outcomes[eventID] = o
	return nil
}

func (m *memAlertLog) List(context.Context, models.AlertFilter) ([]*models.AlertRecord, error) {
	return nil, nil
}

func (m *memAlertLog) Get(_ context.Context, eventID string) (*models.AlertRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.records[eventID], nil
}

func (m *memAlertLog) Acknowledge(context.Context, string, string) error { return nil }
func (m *memAlertLog) Resolve(context.Context, string) error             { return nil }

func (m *memAlertLog) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.records)
}

type countingSink struct {
	name   string
	mu     sync.Mutex
	events []*models.AnomalyEvent
}

func (s *countingSink) Name() string { return s.name }

func (s *countingSink) Write(_ context.Context, e *models.AnomalyEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, e)
	return nil
}

func (s *countingSink) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.events)
}

func testLogger(t *testing.T) *logger.Logger {
	t.Helper()
	log, err := logger.New(&logger.Config{Level: "error", Format: "json", Output: "stderr"})
	if err != nil {
		t.Fatalf("logger.New: %v", err)
	}
	return log
}

type fixture struct {
	proc     *ReadingProcessor
	notifier *countingNotifier
	alertLog *memAlertLog
	ch       *countingSink
	kafka    *countingSink
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	log := testLogger(t)

	thresholds := staticThresholds{
		models.ThresholdKey("temperature", ""): {
			SensorType: "temperature", WarningLow: 10, WarningHigh: 100,
			CriticalLow: 5, CriticalHigh: 120, Unit: "C",
		},
	}
	store := detector.NewStore()
	pipeline := detector.NewPipeline(
		detector.NewThresholdDetector(thresholds),
		detector.NewMovingAverageDetector(store, detector.MovingAverageConfig{}),
		detector.NewRateOfChangeDetector(store, detector.RateOfChangeConfig{}),
		nopMetrics{},
	)

	memStore := dedup.NewMemoryStore(time.Minute)
	t.Cleanup(func() { memStore.Close() })
	dd := dedup.New(memStore, 30*time.Minute, nopMetrics{})

	rules := staticRules{
		{ID: 1, Severity: models.SeverityCritical, Action: models.ActionWebhook, Target: "http://hooks/1", MaxRetries: 1, Enabled: true},
		{ID: 2, Severity: models.SeverityCritical, Action: models.ActionPagerDuty, Target: "http://pd/1", MaxRetries: 1, Enabled: true},
		{ID: 3, Severity: models.SeverityCritical, Action: models.ActionSMS, Target: "http://sms/1", MaxRetries: 1, Enabled: true},
	}
	notifier := &countingNotifier{}
	eng := escalation.NewEngine(rules, notifier, nopMetrics{}, log)

	alertLog := newMemAlertLog()
	ch := &countingSink{name: "clickhouse"}
	kafka := &countingSink{name: "kafka"}
	sinks := fanout.New([]domrepo.EventSink{ch, kafka, alertLog}, nopMetrics{}, log)

	return &fixture{
		proc:     NewReadingProcessor(pipeline, dd, eng, sinks, alertLog, nil, nopMetrics{}, log),
		notifier: notifier,
		alertLog: alertLog,
		ch:       ch,
		kafka:    kafka,
	}
}

func tempReading(value float64, at time.Time) *models.SensorReading {
	return &models.SensorReading{
		ReadingID:   "rdg-1",
		PlatformID:  "ALPHA",
		SensorID:    "ALPHA-PUMP-01-TEMP-01",
		SensorType:  "temperature",
		Value:       value,
		Unit:        "C",
		Timestamp:   at.UnixMilli(),
		QualityFlag: models.QualityGood,
	}
}

func TestProcessCriticalReadingEndToEnd(t *testing.T) {
	f := newFixture(t)

	if err := f.proc.Process(context.Background(), tempReading(130, time.Now())); err != nil {
		t.Fatalf("Process: %v", err)
	}

	if f.ch.count() != 1 || f.kafka.count() != 1 || f.alertLog.count() != 1 {
		t.Fatalf("expected 1 write per sink, got ch=%d kafka=%d pg=%d",
			f.ch.count(), f.kafka.count(), f.alertLog.count())
	}

	e := f.ch.events[0]
	if e.Severity != models.SeverityCritical || e.Kind != models.KindThreshold {
		t.Fatalf("unexpected event classification: %s/%s", e.Severity, e.Kind)
	}

	for _, action := range []models.ActionType{models.ActionWebhook, models.ActionPagerDuty, models.ActionSMS} {
		if f.notifier.calls[action] != 1 {
			t.Fatalf("action %s invoked %d times", action, f.notifier.calls[action])
		}
	}

	outcome := f.alertLog.outcomes[e.EventID]
	if outcome == nil || len(outcome.Actions) != 3 || len(outcome.Failed()) != 0 {
		t.Fatalf("unexpected recorded outcome: %+v", outcome)
	}
}

func TestProcessNormalReadingIsSilent(t *testing.T) {
	f := newFixture(t)

	if err := f.proc.Process(context.Background(), tempReading(50, time.Now())); err != nil {
		t.Fatalf("Process: %v", err)
	}
	if f.ch.count() != 0 || len(f.notifier.calls) != 0 {
		t.Fatal("normal reading must not reach sinks or notifier")
	}
}

func TestProcessSkipsNonGoodQuality(t *testing.T) {
	f := newFixture(t)

	r := tempReading(130, time.Now())
	r.QualityFlag = models.QualitySuspect
	if err := f.proc.Process(context.Background(), r); err != nil {
		t.Fatalf("Process: %v", err)
	}
	if f.ch.count() != 0 {
		t.Fatal("suspect reading must bypass detection entirely")
	}
}

func TestProcessSuppressesDuplicateAnomaly(t *testing.T) {
	f := newFixture(t)

	base := time.Now()
	if err := f.proc.Process(context.Background(), tempReading(130, base)); err != nil {
		t.Fatalf("Process: %v", err)
	}
	r := tempReading(131, base.Add(time.Minute))
	r.ReadingID = "rdg-2"
	if err := f.proc.Process(context.Background(), r); err != nil {
		t.Fatalf("Process: %v", err)
	}

	if f.ch.count() != 1 {
		t.Fatalf("duplicate anomaly should be suppressed, got %d sink writes", f.ch.count())
	}
	if f.notifier.calls[models.ActionWebhook] != 1 {
		t.Fatalf("duplicate anomaly should not re-page, webhook calls = %d", f.notifier.calls[models.ActionWebhook])
	}
}

func TestProcessedEventSurvivesSinkRoundTrip(t *testing.T) {
	f := newFixture(t)

	if err := f.proc.Process(context.Background(), tempReading(130, time.Now())); err != nil {
		t.Fatalf("Process: %v", err)
	}

	written := f.ch.events[0]
	rec, err := f.alertLog.Get(context.Background(), written.EventID)
	if err != nil || rec == nil {
		t.Fatalf("Get(%s): rec=%v err=%v", written.EventID, rec, err)
	}
	if rec.Event != *written {
		t.Fatalf("alert log event diverged from sink event:\n got %+v\nwant %+v", rec.Event, *written)
	}
	if rec.Acknowledged || rec.Resolved {
		t.Fatalf("fresh record must be unacknowledged and unresolved: %+v", rec)
	}
	if written.StableID() == "" || written.DetectionTime().IsZero() {
		t.Fatalf("event missing stable identity: id=%q at=%v", written.StableID(), written.DetectionTime())
	}
}

type captureLanes struct {
	mu       sync.Mutex
	readings []*models.SensorReading
}

func (c *captureLanes) Submit(_ context.Context, r *models.SensorReading) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.readings = append(c.readings, r)
	return nil
}

func TestKafkaHandlerDecodesAndSubmits(t *testing.T) {
	lanes := &captureLanes{}
	h := NewKafkaReadingsHandler("sensor-readings", lanes, nopMetrics{})

	msg := []byte(`{
		"reading_id": "rdg-1",
		"platform_id": "ALPHA",
		"sensor_id": "ALPHA-PUMP-01-TEMP-01",
		"sensor_type": "temperature",
		"value": 87.5,
		"unit": "C",
		"timestamp": 1757000000000
	}`)
	if err := h.Handle(context.Background(), msg); err != nil {
		t.Fatalf("Handle: %v", err)
	}

	if len(lanes.readings) != 1 {
		t.Fatalf("expected 1 submitted reading, got %d", len(lanes.readings))
	}
	r := lanes.readings[0]
	if r.Value != 87.5 || r.SensorID != "ALPHA-PUMP-01-TEMP-01" {
		t.Fatalf("unexpected reading: %+v", r)
	}
	if r.QualityFlag != models.QualityGood {
		t.Fatalf("quality flag should default to GOOD, got %q", r.QualityFlag)
	}
}

func TestKafkaHandlerRejectsBadMessages(t *testing.T) {
	lanes := &captureLanes{}
	h := NewKafkaReadingsHandler("sensor-readings", lanes, nopMetrics{})

	if err := h.Handle(context.Background(), []byte("not json")); err == nil {
		t.Fatal("malformed json must error")
	}
	if err := h.Handle(context.Background(), []byte(`{"reading_id": "rdg-1"}`)); err == nil {
		t.Fatal("reading missing required fields must error")
	}
	if len(lanes.readings) != 0 {
		t.Fatal("rejected messages must not reach the lanes")
	}
}
