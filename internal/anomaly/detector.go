// Package anomaly scores observed metric values against short-horizon
// forecasts and persists anything that deviates far enough to matter.
package anomaly

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/google/uuid"

	"orderinsight/internal/forecast"
)

type Severity string

const (
	SeverityLow      Severity = "low"
	SeverityMedium   Severity = "medium"
	SeverityHigh     Severity = "high"
	SeverityCritical Severity = "critical"
)

// reportThreshold is the minimum anomaly score worth recording.
// Deviations below it are routine noise.
const reportThreshold = 0.3

// Anomaly is one detected deviation between an observed value and its
// forecast expectation.
type Anomaly struct {
	ID         string    `json:"id"`
	TenantID   string    `json:"tenant_id"`
	Metric     string    `json:"metric"`
	Type       string    `json:"type"`
	Severity   Severity  `json:"severity"`
	Score      float64   `json:"score"`
	Observed   float64   `json:"observed"`
	Expected   float64   `json:"expected"`
	Deviation  float64   `json:"deviation"`
	Message    string    `json:"message"`
	DetectedAt time.Time `json:"detected_at"`
}

// Forecaster produces the expectation an observation is scored against.
type Forecaster interface {
	Forecast(ctx context.Context, tenantID, metric string, horizonDays int, algorithm forecast.Algorithm) (*forecast.Result, error)
}

// Store persists detected anomalies.
type Store interface {
	SaveAnomaly(ctx context.Context, a *Anomaly) error
}

type Detector struct {
	forecaster Forecaster
	store      Store
}

func NewDetector(forecaster Forecaster, store Store) *Detector {
	return &Detector{forecaster: forecaster, store: store}
}

// Detect scores one observation against a one-day forecast. Returns
// (nil, nil) when the deviation is below the reporting threshold;
// history too short to forecast also means nothing to report. A zero
// observedAt means the observation is current.
func (d *Detector) Detect(ctx context.Context, tenantID, metric string, observed float64, observedAt time.Time) (*Anomaly, error) {
	if tenantID == "" {
		return nil, errors.New("empty tenant id")
	}
	if observedAt.IsZero() {
		observedAt = time.Now().UTC()
	}

	fc, err := d.forecaster.Forecast(ctx, tenantID, metric, 1, "")
	if err != nil {
		if errors.Is(err, forecast.ErrInsufficientData) {
			return nil, nil
		}
		return nil, fmt.Errorf("forecast expectation for %s: %w", metric, err)
	}
	if len(fc.Predictions) == 0 {
		return nil, nil
	}
	expected := fc.Predictions[0].Value

	deviation := observed - expected
	relative := math.Abs(deviation) / math.Max(math.Abs(expected), 1)
	score := math.Min(relative*2, 1)
	if score < reportThreshold {
		return nil, nil
	}

	a := &Anomaly{
		ID:         uuid.NewString(),
		TenantID:   tenantID,
		Metric:     metric,
		Type:       "point_anomaly",
		Severity:   scoreSeverity(score),
		Score:      score,
		Observed:   observed,
		Expected:   expected,
		Deviation:  deviation,
		Message:    describe(metric, observed, expected, deviation),
		DetectedAt: observedAt,
	}
	if err := d.store.SaveAnomaly(ctx, a); err != nil {
		return nil, fmt.Errorf("save anomaly: %w", err)
	}
	return a, nil
}

// DetectBatch runs Detect over several observations, collecting the
// reported anomalies. Per-metric failures abort the batch; callers
// that want isolation call Detect directly.
func (d *Detector) DetectBatch(ctx context.Context, tenantID string, observations map[string]float64, observedAt time.Time) ([]Anomaly, error) {
	anomalies := make([]Anomaly, 0)
	for metric, observed := range observations {
		a, err := d.Detect(ctx, tenantID, metric, observed, observedAt)
		if err != nil {
			return nil, err
		}
		if a != nil {
			anomalies = append(anomalies, *a)
		}
	}
	return anomalies, nil
}

func scoreSeverity(score float64) Severity {
	switch {
	case score > 0.8:
		return SeverityCritical
	case score > 0.6:
		return SeverityHigh
	case score > 0.4:
		return SeverityMedium
	default:
		return SeverityLow
	}
}

func describe(metric string, observed, expected, deviation float64) string {
	direction := "above"
	if deviation < 0 {
		direction = "below"
	}
	return fmt.Sprintf("%s observed at %.2f, %.2f %s the expected %.2f", metric, observed, math.Abs(deviation), direction, expected)
}
