package kpi

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
)

var levelRank = map[ThresholdLevel]int{
	LevelCritical:  0,
	LevelWarning:   1,
	LevelGood:      2,
	LevelExcellent: 3,
}

// DetermineThreshold classifies a value against a threshold set.
// Thresholds are evaluated from most-severe to least-severe, with the
// configured value (descending) as a tie-break inside a level; the
// first passing test wins. A value matching nothing is "good".
func DetermineThreshold(value float64, thresholds []Threshold) ThresholdLevel {
	ordered := make([]Threshold, len(thresholds))
	copy(ordered, thresholds)
	sort.SliceStable(ordered, func(i, j int) bool {
		if levelRank[ordered[i].Level] != levelRank[ordered[j].Level] {
			return levelRank[ordered[i].Level] < levelRank[ordered[j].Level]
		}
		return ordered[i].Value > ordered[j].Value
	})

	for _, t := range ordered {
		if thresholdMet(value, t) {
			return t.Level
		}
	}
	return LevelGood
}

func thresholdMet(value float64, t Threshold) bool {
	switch t.Operator {
	case OpLT:
		return value < t.Value
	case OpLTE:
		return value <= t.Value
	case OpGT:
		return value > t.Value
	case OpGTE:
		return value >= t.Value
	case OpEQ:
		return value == t.Value
	case OpBetween:
		if t.SecondValue == nil {
			return false
		}
		return value >= t.Value && value <= *t.SecondValue
	default:
		return false
	}
}

// IsBreached reports whether a matched level counts as a breach.
func IsBreached(level ThresholdLevel) bool {
	return level == LevelCritical || level == LevelWarning
}

// AlertStore persists alerts with upsert-and-suppress semantics keyed
// on (kpi, level, open): a still-breaching evaluation refreshes the
// open alert instead of duplicating it, and levels no longer breaching
// are closed.
type AlertStore interface {
	UpsertOpenAlert(ctx context.Context, a *Alert) error
	CloseAlertsExcept(ctx context.Context, tenantID, kpiID string, keepOpen []ThresholdLevel) error
}

// EmitAlerts records or refreshes alerts for a freshly stored metric.
// Called only after the metric upsert succeeded, never speculatively.
func EmitAlerts(ctx context.Context, store AlertStore, def *Definition, m *Metric) ([]Alert, error) {
	var open []ThresholdLevel
	var emitted []Alert
	now := time.Now().UTC()

	for _, t := range def.Thresholds {
		if !IsBreached(t.Level) || !t.AlertEnabled {
			continue
		}
		if !thresholdMet(m.Value, t) {
			continue
		}
		severity := "warning"
		if t.Level == LevelCritical {
			severity = "critical"
		}
		a := Alert{
			ID:       uuid.NewString(),
			KPIID:    def.ID,
			KPIName:  def.Name,
			TenantID: def.TenantID,
			Level:    t.Level,
			Severity: severity,
			Message: fmt.Sprintf("KPI %q breached %s threshold: value %.2f crossed %.2f",
				def.Name, t.Level, m.Value, t.Value),
			CurrentValue:    m.Value,
			ThresholdValue:  t.Value,
			Open:            true,
			CreatedAt:       now,
			LastEvaluatedAt: now,
		}
		if err := store.UpsertOpenAlert(ctx, &a); err != nil {
			return emitted, err
		}
		open = append(open, t.Level)
		emitted = append(emitted, a)
	}

	// Levels that stopped breaching close automatically.
	if err := store.CloseAlertsExcept(ctx, def.TenantID, def.ID, open); err != nil {
		return emitted, err
	}
	return emitted, nil
}
