package escalation

import (
	"context"
	"math/rand"
	"sync"
	"time"

	"RigWatch/internal/domain/models"
	domrepo "RigWatch/internal/domain/repository"
	"RigWatch/pkg/logger"
)

// EngineOption configures the escalation engine.
type EngineOption func(*Engine)

// WithBackoff sets the retry backoff bounds.
func WithBackoff(min, max time.Duration) EngineOption {
	return func(e *Engine) {
		e.backoffMin = min
		e.backoffMax = max
	}
}

// WithCompletionCapacity bounds the per-event completion log.
func WithCompletionCapacity(n int) EngineOption {
	return func(e *Engine) {
		e.completed = newCompletionLog(n)
	}
}

// Engine matches an anomaly event's severity against the escalation rules and
// dispatches every matched action. Actions for one event run concurrently,
// each with its own delay and retry budget; one action exhausting its retries
// never blocks a sibling. Succeeded actions are remembered per event so a
// re-run after a partial failure skips them.
type Engine struct {
	rules      domrepo.RuleProvider
	notifier   domrepo.Notifier
	metrics    domrepo.Metrics
	log        *logger.Logger
	backoffMin time.Duration
	backoffMax time.Duration
	completed  *completionLog
}

// NewEngine creates the escalation engine.
func NewEngine(rules domrepo.RuleProvider, notifier domrepo.Notifier, metrics domrepo.Metrics, log *logger.Logger, opts ...EngineOption) *Engine {
	e := &Engine{
		rules:      rules,
		notifier:   notifier,
		metrics:    metrics,
		log:        log,
		backoffMin: 100 * time.Millisecond,
		backoffMax: 30 * time.Second,
		completed:  newCompletionLog(1024),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Escalate runs every matched rule for the event and returns the per-action
// outcomes. When no rule matches, the event still surfaces through a local
// log action so it is never silently escalated into nothing.
func (e *Engine) Escalate(ctx context.Context, event *models.AnomalyEvent) *models.EscalationOutcome {
	start := time.Now()
	matched := make([]models.EscalationRule, 0, 4)
	for _, r := range e.rules.RulesFor(event.Severity) {
		if r.Enabled {
			matched = append(matched, r)
		}
	}

	outcome := &models.EscalationOutcome{EventID: event.EventID}
	if len(matched) == 0 {
		e.runAction(ctx, event, models.EscalationRule{Action: models.ActionLog, MaxRetries: 0})
		outcome.Actions = append(outcome.Actions, models.ActionOutcome{
			Action:    models.ActionLog,
			Attempts:  1,
			Succeeded: true,
		})
		e.metrics.RecordEscalation(string(models.ActionLog), "success")
		e.metrics.RecordLatency("escalate", time.Since(start).Seconds())
		return outcome
	}

	results := make([]models.ActionOutcome, len(matched))
	var wg sync.WaitGroup
	for i, rule := range matched {
		wg.Add(1)
		go func(i int, rule models.EscalationRule) {
			defer wg.Done()
			results[i] = e.dispatch(ctx, event, rule)
		}(i, rule)
	}
	wg.Wait()

	outcome.Actions = results
	allOK := true
	for _, a := range results {
		if !a.Succeeded {
			allOK = false
			break
		}
	}
	if allOK {
		e.completed.forget(event.EventID)
	}
	e.metrics.RecordLatency("escalate", time.Since(start).Seconds())
	return outcome
}

func (e *Engine) dispatch(ctx context.Context, event *models.AnomalyEvent, rule models.EscalationRule) models.ActionOutcome {
	out := models.ActionOutcome{
		RuleID: rule.ID,
		Action: rule.Action,
		Target: rule.Target,
	}

	if e.completed.done(event.EventID, rule.ID) {
		out.Succeeded = true
		return out
	}

	if rule.Delay > 0 {
		select {
		case <-time.After(rule.Delay):
		case <-ctx.Done():
			out.Error = ctx.Err().Error()
			e.metrics.RecordEscalation(string(rule.Action), "failure")
			return out
		}
	}

	var lastErr error
	for attempt := 1; attempt <= rule.MaxRetries+1; attempt++ {
		out.Attempts = attempt
		lastErr = e.runAttempt(ctx, event, rule, attempt)
		if lastErr == nil {
			out.Succeeded = true
			e.completed.mark(event.EventID, rule.ID)
			e.metrics.RecordEscalation(string(rule.Action), "success")
			return out
		}
		if attempt > rule.MaxRetries {
			break
		}
		e.metrics.RecordEscalation(string(rule.Action), "retry")
		sleep := backoffWithJitter(e.backoffMin, e.backoffMax, attempt)
		select {
		case <-time.After(sleep):
		case <-ctx.Done():
			out.Error = ctx.Err().Error()
			e.metrics.RecordEscalation(string(rule.Action), "failure")
			return out
		}
	}

	out.Error = lastErr.Error()
	e.metrics.RecordEscalation(string(rule.Action), "failure")
	e.log.Error("escalation action exhausted retries",
		logger.String("event_id", event.EventID),
		logger.Int64("rule_id", rule.ID),
		logger.String("action", string(rule.Action)),
		logger.String("target", rule.Target),
		logger.Int("attempts", out.Attempts),
		logger.Error(lastErr),
	)
	return out
}

func (e *Engine) runAttempt(ctx context.Context, event *models.AnomalyEvent, rule models.EscalationRule, attempt int) error {
	payload := &domrepo.NotificationPayload{
		Event:      *event,
		RuleID:     rule.ID,
		Action:     rule.Action,
		Attempt:    attempt,
		MaxRetries: rule.MaxRetries,
		Delay:      rule.Delay,
	}
	return e.notifier.Notify(ctx, rule.Action, rule.Target, payload)
}

func (e *Engine) runAction(ctx context.Context, event *models.AnomalyEvent, rule models.EscalationRule) {
	_ = e.runAttempt(ctx, event, rule, 1)
}

func backoffWithJitter(min, max time.Duration, attempt int) time.Duration {
	if min <= 0 {
		min = 50 * time.Millisecond
	}
	if max < min {
		max = min
	}
	exp := min * time.Duration(1<<uint(attempt-1))
	if exp > max || exp <= 0 {
		exp = max
	}
	jitter := time.Duration(rand.Int63n(int64(exp) / 2))
	return exp - jitter
}

// completionLog remembers which (event, rule) actions already succeeded so a
// re-run of a partially failed escalation is idempotent. Bounded FIFO.
type completionLog struct {
	mu     sync.Mutex
	events map[string]map[int64]struct{}
	order  []string
	cap    int
}

func newCompletionLog(capacity int) *completionLog {
	if capacity <= 0 {
		capacity = 1024
	}
	return &completionLog{
		events: make(map[string]map[int64]struct{}),
		cap:   capacity,
	}
}

func (c *completionLog) mark(eventID string, ruleID int64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	m, ok := c.events[eventID]
	if !ok {
		if len(c.order) >= c.cap {
			oldest := c.order[0]
			c.order = c.order[1:]
			delete(c.events, oldest)
		}
		m = make(map[int64]struct{})
		c.events[eventID] = m
		c.order = append(c.order, eventID)
	}
	m[ruleID] = struct{}{}
}

func (c *completionLog) done(eventID string, ruleID int64) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	m, ok := c.events[eventID]
	if !ok {
		return false
	}
	_, ok = m[ruleID]
	return ok
}

func (c *completionLog) forget(eventID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.events[eventID]; !ok {
		return
	}
	delete(c.events, eventID)
	for i, id := range c.order {
		if id == eventID {
			c.order = append(c.order[:i], c.order[i+1:]...)
			break
		}
	}
}
