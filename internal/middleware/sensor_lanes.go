package middleware

import (
	"context"
	"fmt"
	"hash/fnv"
	"sync"
	"sync/atomic"
	"time"

	"RigWatch/internal/domain/models"
	domrepo "RigWatch/internal/domain/repository"
)

// Proc is the downstream processor a lane hands readings to.
type Proc interface {
	Process(ctx context.Context, r *models.SensorReading) error
}

// SensorLanes partitions incoming readings onto a fixed set of worker lanes
// by consistent hash of the sensor id. Readings for one sensor always land on
// the same lane and are processed in arrival order; different sensors run in
// parallel. Submit applies back-pressure instead of dropping when a lane's
// buffer is full.
type SensorLanes struct {
	proc    Proc
	metrics domrepo.Metrics
	lanes   int
	bufSize int
	chans   []chan *models.SensorReading
	wg      sync.WaitGroup
	started bool
	stopped atomic.Bool
	mu      sync.Mutex
}

type LaneOption func(*SensorLanes)

// WithLaneCount sets the number of parallel lanes.
func WithLaneCount(n int) LaneOption {
	return func(l *SensorLanes) {
		if n > 0 {
			l.lanes = n
		}
	}
}

// WithLaneBuffer sets the per-lane channel buffer.
func WithLaneBuffer(n int) LaneOption {
	return func(l *SensorLanes) {
		if n > 0 {
			l.bufSize = n
		}
	}
}

// NewSensorLanes creates the lane set.
func NewSensorLanes(proc Proc, metrics domrepo.Metrics, opts ...LaneOption) *SensorLanes {
	l := &SensorLanes{
		proc:    proc,
		metrics: metrics,
		lanes:   8,
		bufSize: 256,
	}
	for _, opt := range opts {
		opt(l)
	}
	l.chans = make([]chan *models.SensorReading, l.lanes)
	for i := range l.chans {
		l.chans[i] = make(chan *models.SensorReading, l.bufSize)
	}
	return l
}

// Start launches one worker goroutine per lane.
func (l *SensorLanes) Start(ctx context.Context) {
	l.mu.Lock()
	if l.started {
		l.mu.Unlock()
		return
	}
	l.started = true
	l.mu.Unlock()

	for i := range l.chans {
		l.wg.Add(1)
		go l.run(ctx, l.chans[i])
	}
}

func (l *SensorLanes) run(ctx context.Context, ch <-chan *models.SensorReading) {
	defer l.wg.Done()
	for r := range ch {
		start := time.Now()
		if err := l.proc.Process(ctx, r); err != nil {
			l.metrics.RecordError("lane_process")
		}
		l.metrics.RecordLatency("lane_process", time.Since(start).Seconds())
	}
}

// Stop closes the lanes and waits for buffered readings to drain.
func (l *SensorLanes) Stop() {
	l.mu.Lock()
	if !l.started || l.stopped.Load() {
		l.mu.Unlock()
		return
	}
	l.stopped.Store(true)
	l.mu.Unlock()

	for _, ch := range l.chans {
		close(ch)
	}
	l.wg.Wait()
}

// Submit validates the reading and enqueues it on its sensor's lane,
// blocking while the lane is full so per-sensor order is preserved.
func (l *SensorLanes) Submit(ctx context.Context, r *models.SensorReading) error {
	if err := validateReading(r); err != nil {
		l.metrics.RecordError("lane_validate")
		return err
	}
	if l.stopped.Load() {
		return fmt.Errorf("sensor lanes stopped")
	}

	ch := l.chans[l.laneFor(r.SensorID)]
	select {
	case ch <- r:
		return nil
	case <-ctx.Done():
		l.metrics.RecordError("lane_submit_cancelled")
		return ctx.Err()
	}
}

func (l *SensorLanes) laneFor(sensorID string) int {
	h := fnv.New32a()
	h.Write([]byte(sensorID))
	return int(h.Sum32() % uint32(l.lanes))
}

func validateReading(r *models.SensorReading) error {
	if r == nil {
		return fmt.Errorf("reading nil")
	}
	if r.SensorID == "" {
		return fmt.Errorf("sensor id empty")
	}
	if r.Timestamp <= 0 {
		return fmt.Errorf("timestamp invalid")
	}
	return nil
}
