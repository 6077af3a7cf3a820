package detector

import (
	"hash/fnv"
	"sync"
)

// Window is a fixed-capacity FIFO of the most recent raw values for one sensor.
// Mutated only by the moving-average detector on that sensor's lane.
type Window struct {
	values []float64
	head   int
	count  int
}

// NewWindow creates a window with the given capacity.
func NewWindow(capacity int) *Window {
	if capacity < 1 {
		capacity = 1
	}
	return &Window{values: make([]float64, capacity)}
}

// Append adds a value, evicting the oldest when the window is full.
func (w *Window) Append(v float64) {
	if w.count < len(w.values) {
		w.values[(w.head+w.count)%len(w.values)] = v
		w.count++
		return
	}
	w.values[w.head] = v
	w.head = (w.head + 1) % len(w.values)
}

// Len returns the number of values currently held.
func (w *Window) Len() int { return w.count }

// Values returns the window contents ordered oldest to newest.
func (w *Window) Values() []float64 {
	out := make([]float64, w.count)
	for i := 0; i < w.count; i++ {
		out[i] = w.values[(w.head+i)%len(w.values)]
	}
	return out
}

// LastSample is the previous (value, timestamp) pair for one sensor.
type LastSample struct {
	Value       float64
	TimestampMS int64
}

// Store owns all per-(sensor, detector-kind) mutable state. Keys never see
// each other's state; the shard mutex only guards the map structure, while
// per-sensor serialization is provided by the lane partitioner upstream.
type Store struct {
	shards [stateShards]stateShard
}

const stateShards = 32

type stateShard struct {
	mu      sync.Mutex
	windows map[string]*Window
	samples map[string]LastSample
}

// NewStore creates an empty state store.
func NewStore() *Store {
	s := &Store{}
	for i := range s.shards {
		s.shards[i].windows = make(map[string]*Window)
		s.shards[i].samples = make(map[string]LastSample)
	}
	return s
}

func (s *Store) shard(sensorID string) *stateShard {
	h := fnv.New32a()
	_, _ = h.Write([]byte(sensorID))
	return &s.shards[h.Sum32()%stateShards]
}

// Window returns the rolling window for a sensor, creating it lazily.
func (s *Store) Window(sensorID string, capacity int) *Window {
	sh := s.shard(sensorID)
	sh.mu.Lock()
	defer sh.mu.Unlock()
	w, ok := sh.windows[sensorID]
	if !ok {
		w = NewWindow(capacity)
		sh.windows[sensorID] = w
	}
	return w
}

// LastSample returns the stored previous sample for a sensor.
func (s *Store) LastSample(sensorID string) (LastSample, bool) {
	sh := s.shard(sensorID)
	sh.mu.Lock()
	defer sh.mu.Unlock()
	ls, ok := sh.samples[sensorID]
	return ls, ok
}

// SetLastSample stores the previous sample for a sensor.
func (s *Store) SetLastSample(sensorID string, ls LastSample) {
	sh := s.shard(sensorID)
	sh.mu.Lock()
	defer sh.mu.Unlock()
	sh.samples[sensorID] = ls
}

// SensorCount returns how many sensors currently hold any state.
func (s *Store) SensorCount() int {
	seen := make(map[string]struct{})
	for i := range s.shards {
		sh := &s.shards[i]
		sh.mu.Lock()
		for k := range sh.windows {
			seen[k] = struct{}{}
		}
		for k := range sh.samples {
			seen[k] = struct{}{}
		}
		sh.mu.Unlock()
	}
	return len(seen)
}
