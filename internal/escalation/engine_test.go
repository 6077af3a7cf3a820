package escalation

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"RigWatch/internal/domain/models"
	domrepo "RigWatch/internal/domain/repository"
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

type call struct {
	action models.ActionType
	target string
}

// scriptedNotifier fails a target a fixed number of times before succeeding.
type scriptedNotifier struct {
	mu       sync.Mutex
	failures map[string]int
	calls    []call
}

func (n *scriptedNotifier) Notify(_ context.Context, action models.ActionType, target string, _ *domrepo.NotificationPayload) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.calls = append(n.calls, call{action: action, target: target})
	if left := n.failures[target]; left > 0 {
		n.failures[target] = left - 1
		return errors.New("transport unavailable")
	}
	return nil
}

func (n *scriptedNotifier) callsFor(target string) int {
	n.mu.Lock()
	defer n.mu.Unlock()
	count := 0
	for _, c := range n.calls {
		if c.target == target {
			count++
		}
	}
	return count
}

func testLogger(t *testing.T) *logger.Logger {
	t.Helper()
	log, err := logger.New(&logger.Config{Level: "error", Format: "json", Output: "stderr"})
	if err != nil {
		t.Fatalf("logger.New: %v", err)
	}
	return log
}

func criticalEvent() *models.AnomalyEvent {
	return &models.AnomalyEvent{
		EventID:    "evt-1",
		ReadingID:  "rdg-1",
		SensorID:   "ALPHA-PUMP-01-TEMP-01",
		PlatformID: "ALPHA",
		SensorType: "temperature",
		Kind:       models.KindThreshold,
		Severity:   models.SeverityCritical,
		DetectedAt: time.Now().UnixMilli(),
	}
}

func TestEngineRunsAllMatchedRules(t *testing.T) {
	rules := staticRules{
		{ID: 1, Severity: models.SeverityCritical, Action: models.ActionWebhook, Target: "http://hooks/1", MaxRetries: 2, Enabled: true},
		{ID: 2, Severity: models.SeverityCritical, Action: models.ActionPagerDuty, Target: "http://pd/1", MaxRetries: 2, Enabled: true},
		{ID: 3, Severity: models.SeverityCritical, Action: models.ActionSMS, Target: "http://sms/1", MaxRetries: 2, Enabled: true},
		{ID: 4, Severity: models.SeverityWarning, Action: models.ActionWebhook, Target: "http://hooks/warn", MaxRetries: 2, Enabled: true},
	}
	notifier := &scriptedNotifier{failures: map[string]int{}}
	eng := NewEngine(rules, notifier, nopMetrics{}, testLogger(t))

	outcome := eng.Escalate(context.Background(), criticalEvent())

	if len(outcome.Actions) != 3 {
		t.Fatalf("expected 3 actions for critical event, got %d", len(outcome.Actions))
	}
	for _, a := range outcome.Actions {
		if !a.Succeeded || a.Attempts != 1 {
			t.Fatalf("action %d: succeeded=%v attempts=%d", a.RuleID, a.Succeeded, a.Attempts)
		}
	}
	if notifier.callsFor("http://hooks/warn") != 0 {
		t.Fatal("warning rule must not fire for a critical event")
	}
}

func TestEngineSkipsDisabledRules(t *testing.T) {
	rules := staticRules{
		{ID: 1, Severity: models.SeverityCritical, Action: models.ActionWebhook, Target: "http://hooks/1", Enabled: false},
		{ID: 2, Severity: models.SeverityCritical, Action: models.ActionSMS, Target: "http://sms/1", Enabled: true},
	}
	notifier := &scriptedNotifier{failures: map[string]int{}}
	eng := NewEngine(rules, notifier, nopMetrics{}, testLogger(t))

	outcome := eng.Escalate(context.Background(), criticalEvent())

	if len(outcome.Actions) != 1 || outcome.Actions[0].RuleID != 2 {
		t.Fatalf("expected only the enabled rule to run, got %+v", outcome.Actions)
	}
}

func TestEngineRetriesThenSucceeds(t *testing.T) {
	rules := staticRules{
		{ID: 1, Severity: models.SeverityCritical, Action: models.ActionWebhook, Target: "http://hooks/1", MaxRetries: 3, Enabled: true},
	}
	notifier := &scriptedNotifier{failures: map[string]int{"http://hooks/1": 2}}
	eng := NewEngine(rules, notifier, nopMetrics{}, testLogger(t), WithBackoff(time.Millisecond, 5*time.Millisecond))

	outcome := eng.Escalate(context.Background(), criticalEvent())

	a := outcome.Actions[0]
	if !a.Succeeded {
		t.Fatalf("expected success after retries, got %+v", a)
	}
	if a.Attempts != 3 {
		t.Fatalf("expected 3 attempts, got %d", a.Attempts)
	}
}

func TestEnginePartialFailureIsIsolated(t *testing.T) {
	rules := staticRules{
		{ID: 1, Severity: models.SeverityCritical, Action: models.ActionWebhook, Target: "http://hooks/dead", MaxRetries: 1, Enabled: true},
		{ID: 2, Severity: models.SeverityCritical, Action: models.ActionSMS, Target: "http://sms/1", MaxRetries: 1, Enabled: true},
	}
	notifier := &scriptedNotifier{failures: map[string]int{"http://hooks/dead": 10}}
	eng := NewEngine(rules, notifier, nopMetrics{}, testLogger(t), WithBackoff(time.Millisecond, 5*time.Millisecond))

	outcome := eng.Escalate(context.Background(), criticalEvent())

	byRule := map[int64]models.ActionOutcome{}
	for _, a := range outcome.Actions {
		byRule[a.RuleID] = a
	}
	if byRule[1].Succeeded {
		t.Fatal("dead webhook should have exhausted retries")
	}
	if byRule[1].Attempts != 2 {
		t.Fatalf("expected initial attempt plus 1 retry, got %d", byRule[1].Attempts)
	}
	if byRule[1].Error == "" {
		t.Fatal("failed action should carry its error")
	}
	if !byRule[2].Succeeded {
		t.Fatal("sibling action must not be blocked by the failing one")
	}
	if len(outcome.Failed()) != 1 {
		t.Fatalf("expected exactly 1 failed action, got %d", len(outcome.Failed()))
	}
}

func TestEngineReRunSkipsSucceededActions(t *testing.T) {
	rules := staticRules{
		{ID: 1, Severity: models.SeverityCritical, Action: models.ActionWebhook, Target: "http://hooks/dead", MaxRetries: 0, Enabled: true},
		{ID: 2, Severity: models.SeverityCritical, Action: models.ActionSMS, Target: "http://sms/1", MaxRetries: 0, Enabled: true},
	}
	notifier := &scriptedNotifier{failures: map[string]int{"http://hooks/dead": 1}}
	eng := NewEngine(rules, notifier, nopMetrics{}, testLogger(t), WithBackoff(time.Millisecond, 5*time.Millisecond))

	event := criticalEvent()
	first := eng.Escalate(context.Background(), event)
	if len(first.Failed()) != 1 {
		t.Fatalf("first run: expected 1 failure, got %d", len(first.Failed()))
	}
	if got := notifier.callsFor("http://sms/1"); got != 1 {
		t.Fatalf("first run: sms calls = %d", got)
	}

	// Webhook recovers; re-run must retry it but not re-page the sms target.
	second := eng.Escalate(context.Background(), event)
	if len(second.Failed()) != 0 {
		t.Fatalf("second run: expected full success, got %+v", second.Failed())
	}
	if got := notifier.callsFor("http://sms/1"); got != 1 {
		t.Fatalf("succeeded action was re-invoked, sms calls = %d", got)
	}
	if got := notifier.callsFor("http://hooks/dead"); got != 2 {
		t.Fatalf("failed action should be retried on re-run, webhook calls = %d", got)
	}
}

func TestEngineFallsBackToLogWhenNoRuleMatches(t *testing.T) {
	notifier := &scriptedNotifier{failures: map[string]int{}}
	eng := NewEngine(staticRules{}, notifier, nopMetrics{}, testLogger(t))

	outcome := eng.Escalate(context.Background(), criticalEvent())

	if len(outcome.Actions) != 1 {
		t.Fatalf("expected single fallback action, got %d", len(outcome.Actions))
	}
	a := outcome.Actions[0]
	if a.Action != models.ActionLog || !a.Succeeded {
		t.Fatalf("expected succeeded log fallback, got %+v", a)
	}
}

func TestEngineHonorsRuleDelay(t *testing.T) {
	rules := staticRules{
		{ID: 1, Severity: models.SeverityWarning, Action: models.ActionWebhook, Target: "http://hooks/1", Delay: 30 * time.Millisecond, Enabled: true},
	}
	notifier := &scriptedNotifier{failures: map[string]int{}}
	eng := NewEngine(rules, notifier, nopMetrics{}, testLogger(t))

	event := criticalEvent()
	event.Severity = models.SeverityWarning

	start := time.Now()
	outcome := eng.Escalate(context.Background(), event)
	if elapsed := time.Since(start); elapsed < 30*time.Millisecond {
		t.Fatalf("action ran before its delay: %v", elapsed)
	}
	if !outcome.Actions[0].Succeeded {
		t.Fatalf("delayed action should succeed, got %+v", outcome.Actions[0])
	}
}

func TestBackoffWithJitterBounds(t *testing.T) {
	for attempt := 1; attempt <= 12; attempt++ {
		d := backoffWithJitter(100*time.Millisecond, 2*time.Second, attempt)
		if d <= 0 || d > 2*time.Second {
			t.Fatalf("attempt %d: backoff %v out of bounds", attempt, d)
		}
	}
}

func TestThrottleLimitsBurst(t *testing.T) {
	th := NewThrottle()
	allowed := 0
	for i := 0; i < 10; i++ {
		if th.Allow("http://sms/1", 3, 0.001) {
			allowed++
		}
	}
	if allowed != 3 {
		t.Fatalf("expected burst of 3 to pass, got %d", allowed)
	}
	if !th.Allow("http://sms/other", 3, 0.001) {
		t.Fatal("throttle state must be per target")
	}
}
