package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Recorder implements domain.repository.Metrics using Prometheus.
type Recorder struct {
	readingsTotal    *prometheus.CounterVec
	anomaliesTotal   *prometheus.CounterVec
	suppressedTotal  *prometheus.CounterVec
	escalationsTotal *prometheus.CounterVec
	sinkWritesTotal  *prometheus.CounterVec
	errorsTotal      *prometheus.CounterVec
	latency          *prometheus.HistogramVec
}

// New creates a new Prometheus metrics recorder.
func New() *Recorder {
	return &Recorder{
		readingsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "rigwatch_readings_total",
				Help: "Total number of sensor readings ingested",
			},
			[]string{"sensor_type"},
		),
		anomaliesTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "rigwatch_anomalies_total",
				Help: "Total number of anomalies detected",
			},
			[]string{"kind", "severity"},
		),
		suppressedTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "rigwatch_anomalies_suppressed_total",
				Help: "Total number of anomalies suppressed by deduplication",
			},
			[]string{"kind"},
		),
		escalationsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "rigwatch_escalation_actions_total",
				Help: "Total number of escalation action attempts by result",
			},
			[]string{"action", "result"},
		),
		sinkWritesTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "rigwatch_sink_writes_total",
				Help: "Total number of durable sink writes by result",
			},
			[]string{"sink", "result"},
		),
		errorsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "rigwatch_errors_total",
				Help: "Total number of errors encountered",
			},
			[]string{"type"},
		),
		latency: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "rigwatch_operation_duration_seconds",
				Help:    "Duration of operations in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"operation"},
		),
	}
}

// RecordReading counts an ingested reading.
func (r *Recorder) RecordReading(sensorType string) {
	r.readingsTotal.WithLabelValues(sensorType).Inc()
}

// RecordAnomaly counts a detected anomaly.
func (r *Recorder) RecordAnomaly(kind, severity string) {
	r.anomaliesTotal.WithLabelValues(kind, severity).Inc()
}

// RecordSuppressed counts a deduplicated anomaly.
func (r *Recorder) RecordSuppressed(kind string) {
	r.suppressedTotal.WithLabelValues(kind).Inc()
}

// RecordEscalation counts an escalation action attempt.
func (r *Recorder) RecordEscalation(action, result string) {
	r.escalationsTotal.WithLabelValues(action, result).Inc()
}

// RecordSinkWrite counts a durable sink write.
func (r *Recorder) RecordSinkWrite(sink, result string) {
	r.sinkWritesTotal.WithLabelValues(sink, result).Inc()
}

// RecordError records an error occurrence.
func (r *Recorder) RecordError(kind string) {
	r.errorsTotal.WithLabelValues(kind).Inc()
}

// RecordLatency records operation latency in seconds.
func (r *Recorder) RecordLatency(op string, seconds float64) {
	r.latency.WithLabelValues(op).Observe(seconds)
}
