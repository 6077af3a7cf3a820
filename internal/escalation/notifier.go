package escalation

import (
	"context"
	"fmt"
	"io"
	"time"

	"RigWatch/internal/domain/models"
	domrepo "RigWatch/internal/domain/repository"
	"RigWatch/pkg/http"
	"RigWatch/pkg/logger"
)

// NotifierOption configures the dispatch notifier.
type NotifierOption func(*DispatchNotifier)

// WithNotifyTimeout bounds each outbound notification call.
func WithNotifyTimeout(d time.Duration) NotifierOption {
	return func(n *DispatchNotifier) {
		n.timeout = d
	}
}

// WithThrottle enables per-target rate limiting.
func WithThrottle(t *Throttle, capacity, refillPerSec float64) NotifierOption {
	return func(n *DispatchNotifier) {
		n.throttle = t
		n.throttleCap = capacity
		n.throttleRate = refillPerSec
	}
}

// DispatchNotifier routes escalation actions to their transport. The log
// action writes locally and never fails; every other action is a JSON POST
// to the rule's target endpoint (webhook receivers and the pagerduty, email
// and sms gateways all take the same envelope).
type DispatchNotifier struct {
	client       *http.Client
	log          *logger.Logger
	timeout      time.Duration
	throttle     *Throttle
	throttleCap  float64
	throttleRate float64
}

// NewDispatchNotifier creates the default notifier.
func NewDispatchNotifier(client *http.Client, log *logger.Logger, opts ...NotifierOption) *DispatchNotifier {
	n := &DispatchNotifier{
		client:  client,
		log:     log,
		timeout: 10 * time.Second,
	}
	for _, opt := range opts {
		opt(n)
	}
	return n
}

// Notify executes one action attempt against the target.
func (n *DispatchNotifier) Notify(ctx context.Context, action models.ActionType, target string, payload *domrepo.NotificationPayload) error {
	if action == models.ActionLog {
		n.logAction(target, payload)
		return nil
	}

	if n.throttle != nil && !n.throttle.Allow(target, n.throttleCap, n.throttleRate) {
		return fmt.Errorf("notify %s %s: target throttled", action, target)
	}

	ctx, cancel := context.WithTimeout(ctx, n.timeout)
	defer cancel()

	resp, err := n.client.SendRequest(ctx, &http.RequestOptions{
		Method: http.MethodPost,
		URL:    target,
		Headers: map[string]string{
			"Content-Type":       "application/json",
			"X-RigWatch-Action":  string(action),
			"X-RigWatch-EventID": payload.Event.EventID,
		},
		Body: payload,
	})
	if err != nil {
		return fmt.Errorf("notify %s %s: %w", action, target, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return fmt.Errorf("notify %s %s: unexpected status %d: %s", action, target, resp.StatusCode, body)
	}
	return nil
}

func (n *DispatchNotifier) logAction(target string, payload *domrepo.NotificationPayload) {
	e := payload.Event
	n.log.Warn("anomaly alert",
		logger.String("event_id", e.EventID),
		logger.String("sensor_id", e.SensorID),
		logger.String("platform_id", e.PlatformID),
		logger.String("kind", string(e.Kind)),
		logger.String("severity", e.Severity.String()),
		logger.Any("value", e.ActualValue),
		logger.String("description", e.Description),
		logger.String("target", target),
	)
}
