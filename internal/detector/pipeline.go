package detector

import (
	"strings"
	"time"

	"github.com/google/uuid"

	"RigWatch/internal/domain/models"
	domrepo "RigWatch/internal/domain/repository"
)

// Evaluator is a single detector's verdict function.
type Evaluator interface {
	Evaluate(r *models.SensorReading) *models.Finding
}

// Pipeline runs the three detectors in fixed order over each reading and
// merges their findings into at most one AnomalyEvent carrying the highest
// severity. The anomaly kind records the first highest-severity contributor
// in detector order.
type Pipeline struct {
	detectors []Evaluator
	metrics   domrepo.Metrics
	now       func() time.Time
}

// NewPipeline builds the standard threshold, moving-average, rate-of-change
// ordering.
func NewPipeline(th *ThresholdDetector, ma *MovingAverageDetector, roc *RateOfChangeDetector, metrics domrepo.Metrics) *Pipeline {
	return &Pipeline{
		detectors: []Evaluator{th, ma, roc},
		metrics:   metrics,
		now:       time.Now,
	}
}

// Detect evaluates one reading. Returns nil when no detector fires.
func (p *Pipeline) Detect(r *models.SensorReading) *models.AnomalyEvent {
	start := p.now()

	var findings []*models.Finding
	for _, d := range p.detectors {
		if f := d.Evaluate(r); f != nil {
			findings = append(findings, f)
		}
	}
	p.metrics.RecordLatency("detect", p.now().Sub(start).Seconds())
	if len(findings) == 0 {
		return nil
	}

	primary := findings[0]
	descs := make([]string, 0, len(findings))
	for _, f := range findings {
		if f.Severity > primary.Severity {
			primary = f
		}
		descs = append(descs, string(f.Kind)+": "+f.Description)
	}

	e := &models.AnomalyEvent{
		EventID:        uuid.NewString(),
		ReadingID:      r.ReadingID,
		SensorID:       r.SensorID,
		PlatformID:     r.PlatformID,
		SensorType:     r.SensorType,
		Kind:           primary.Kind,
		Severity:       primary.Severity,
		ActualValue:    primary.ActualValue,
		ReferenceValue: primary.ReferenceValue,
		Unit:           r.Unit,
		Description:    strings.Join(descs, "; "),
		DetectedAt:     p.now().UnixMilli(),
	}
	p.metrics.RecordAnomaly(string(e.Kind), e.Severity.String())
	return e
}
