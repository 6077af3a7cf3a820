package fanout

import (
	"context"
	"sync"
	"time"

	"RigWatch/internal/domain/models"
	domrepo "RigWatch/internal/domain/repository"
	"RigWatch/pkg/logger"
)

// SinkResult is one sink's write outcome for one event.
type SinkResult struct {
	Sink string
	Err  error
}

// Option configures the fan-out.
type Option func(*FanOut)

// WithSinkTimeout bounds each individual sink write.
func WithSinkTimeout(d time.Duration) Option {
	return func(f *FanOut) {
		f.timeout = d
	}
}

// FanOut writes an anomaly event to every configured durable sink in
// parallel. Sinks are isolated: one destination failing or hanging never
// rolls back, delays, or blocks the others. Delivery is at-least-once per
// sink; sinks dedupe on the event's stable identifier.
type FanOut struct {
	sinks   []domrepo.EventSink
	timeout time.Duration
	metrics domrepo.Metrics
	log     *logger.Logger
}

// New creates a fan-out over the given sinks.
func New(sinks []domrepo.EventSink, metrics domrepo.Metrics, log *logger.Logger, opts ...Option) *FanOut {
	f := &FanOut{
		sinks:   sinks,
		timeout: 5 * time.Second,
		metrics: metrics,
		log:     log,
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// Write persists the event to all sinks and returns every sink's outcome.
func (f *FanOut) Write(ctx context.Context, e *models.AnomalyEvent) []SinkResult {
	start := time.Now()
	results := make([]SinkResult, len(f.sinks))

	var wg sync.WaitGroup
	for i, sink := range f.sinks {
		wg.Add(1)
		go func(i int, sink domrepo.EventSink) {
			defer wg.Done()
			results[i] = f.writeOne(ctx, sink, e)
		}(i, sink)
	}
	wg.Wait()

	f.metrics.RecordLatency("fanout", time.Since(start).Seconds())
	return results
}

func (f *FanOut) writeOne(ctx context.Context, sink domrepo.EventSink, e *models.AnomalyEvent) SinkResult {
	ctx, cancel := context.WithTimeout(ctx, f.timeout)
	defer cancel()

	err := sink.Write(ctx, e)
	if err != nil {
		f.metrics.RecordSinkWrite(sink.Name(), "failure")
		f.log.Error("sink write failed",
			logger.String("sink", sink.Name()),
			logger.String("event_id", e.EventID),
			logger.String("sensor_id", e.SensorID),
			logger.Error(err),
		)
		return SinkResult{Sink: sink.Name(), Err: err}
	}

	f.metrics.RecordSinkWrite(sink.Name(), "success")
	return SinkResult{Sink: sink.Name(), Err: nil}
}

// Failed filters results down to the sinks that errored.
func Failed(results []SinkResult) []SinkResult {
	var out []SinkResult
	for _, r := range results {
		if r.Err != nil {
			out = append(out, r)
		}
	}
	return out
}
