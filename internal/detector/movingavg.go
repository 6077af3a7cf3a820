package detector

import (
	"fmt"
	"math"

	"RigWatch/internal/domain/models"
)

// MovingAverageConfig holds the tunables for the moving-average detector.
type MovingAverageConfig struct {
	WindowSize int     // values retained per sensor
	MinSamples int     // window length required before evaluation starts
	Multiplier float64 // stddev multiples that trigger a finding
	Epsilon    float64 // stddev floor guarding flat signals
}

// MovingAverageDetector flags readings that deviate from the rolling mean by
// more than a configured multiple of the sample standard deviation. The new
// value is checked against the window seen so far, then becomes part of it.
type MovingAverageDetector struct {
	store *Store
	cfg   MovingAverageConfig
}

// NewMovingAverageDetector creates a moving-average detector over the shared
// state store.
func NewMovingAverageDetector(store *Store, cfg MovingAverageConfig) *MovingAverageDetector {
	if cfg.WindowSize <= 0 {
		cfg.WindowSize = 20
	}
	if cfg.MinSamples <= 0 {
		cfg.MinSamples = 5
	}
	if cfg.Multiplier <= 0 {
		cfg.Multiplier = 3.0
	}
	if cfg.Epsilon <= 0 {
		cfg.Epsilon = 1e-9
	}
	return &MovingAverageDetector{store: store, cfg: cfg}
}

// Evaluate appends the reading to the sensor window (evicting strict FIFO)
// and classifies it against the prior window's mean and stddev.
func (d *MovingAverageDetector) Evaluate(r *models.SensorReading) *models.Finding {
	w := d.store.Window(r.SensorID, d.cfg.WindowSize)
	w.Append(r.Value)

	// Warm-up: keep filling the window, no verdicts yet.
	if w.Len() < d.cfg.MinSamples {
		return nil
	}

	vals := w.Values()
	mean, stddev := meanSampleStddev(vals[:len(vals)-1])

	if stddev <= d.cfg.Epsilon {
		// Flat baseline: a constant stream never fires, but a value breaking
		// away from a constant baseline is an unambiguous anomaly.
		if math.Abs(r.Value-mean) <= d.cfg.Epsilon {
			return nil
		}
		return &models.Finding{
			Kind:           models.KindMovingAverage,
			Severity:       models.SeverityCritical,
			ActualValue:    r.Value,
			ReferenceValue: mean,
			Description: fmt.Sprintf("sensor %s: value %g breaks constant baseline %g (stddev ~0)",
				r.SensorID, r.Value, mean),
		}
	}

	dev := math.Abs(r.Value-mean) / stddev
	k := d.cfg.Multiplier
	if dev <= k {
		return nil
	}

	sev := models.SeverityWarning
	if dev >= 1.5*k {
		sev = models.SeverityCritical
	}
	return &models.Finding{
		Kind:           models.KindMovingAverage,
		Severity:       sev,
		ActualValue:    r.Value,
		ReferenceValue: mean,
		Description: fmt.Sprintf("sensor %s: value %g is %.2f stddevs from mean %.4f (threshold %.1f)",
			r.SensorID, r.Value, dev, mean, k),
	}
}

// meanSampleStddev computes the mean and sample standard deviation (ddof=1).
// Returns stddev 0 for fewer than two values.
func meanSampleStddev(vals []float64) (float64, float64) {
	n := float64(len(vals))
	if n == 0 {
		return 0, 0
	}
	var sum float64
	for _, v := range vals {
		sum += v
	}
	mean := sum / n
	if n < 2 {
		return mean, 0
	}
	var ss float64
	for _, v := range vals {
		dv := v - mean
		ss += dv * dv
	}
	return mean, math.Sqrt(ss / (n - 1))
}
