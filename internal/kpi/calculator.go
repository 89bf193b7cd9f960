package kpi

import (
	"context"
	"fmt"
	"log"
	"math"
	"sync"
	"time"
)

// Window is a half-open calculation window resolved from an as-of date
// and the KPI's aggregation window.
type Window struct {
	Start time.Time
	End   time.Time
}

// FactSource is the tenant-scoped, time-range-filterable read-query
// capability over the platform's transactional facts. Implementations
// must pin tenant isolation to the exact connection running each query.
type FactSource interface {
	SumField(ctx context.Context, tenantID, source, column string, w Window) (float64, error)
	AverageField(ctx context.Context, tenantID, source, column string, w Window) (float64, error)
	CountRows(ctx context.Context, tenantID, source string, filter *Predicate, w Window) (int64, error)
	CountDistinct(ctx context.Context, tenantID, source, column string, filter *Predicate, w Window) (int64, error)

	// RepeatCustomerCount counts customers with more than one completed
	// order inside the window.
	RepeatCustomerCount(ctx context.Context, tenantID string, w Window) (int64, error)

	// AverageFulfillmentMinutes is the mean minutes between order
	// creation and completion inside the window.
	AverageFulfillmentMinutes(ctx context.Context, tenantID string, w Window) (float64, error)

	// RestaurantRatingAverage is the mean rating across the tenant's
	// active restaurants. Ratings describe current standing, so this
	// is not windowed.
	RestaurantRatingAverage(ctx context.Context, tenantID string) (float64, error)
}

// CustomCalculator computes a "custom"-type KPI value for one window.
type CustomCalculator func(ctx context.Context, tenantID string, w Window, facts FactSource) (float64, error)

var (
	customMu          sync.RWMutex
	customCalculators = map[string]CustomCalculator{}
)

// RegisterCalculator installs a named calculator for custom KPIs.
// Definitions reference it through Calculation.Custom.
func RegisterCalculator(name string, fn CustomCalculator) {
	customMu.Lock()
	defer customMu.Unlock()
	customCalculators[name] = fn
}

func lookupCalculator(name string) (CustomCalculator, bool) {
	customMu.RLock()
	defer customMu.RUnlock()
	fn, ok := customCalculators[name]
	return fn, ok
}

// ResolveWindow maps an as-of date to its calculation window: daily is
// that calendar day, weekly the Sunday-aligned 7-day window containing
// it, monthly the calendar month. All windows are UTC.
func ResolveWindow(asOf time.Time, agg AggregationWindow) Window {
	asOf = asOf.UTC()
	day := time.Date(asOf.Year(), asOf.Month(), asOf.Day(), 0, 0, 0, 0, time.UTC)

	switch agg {
	case WindowWeekly:
		start := day.AddDate(0, 0, -int(day.Weekday()))
		return Window{Start: start, End: start.AddDate(0, 0, 7)}
	case WindowMonthly:
		start := time.Date(day.Year(), day.Month(), 1, 0, 0, 0, 0, time.UTC)
		return Window{Start: start, End: start.AddDate(0, 1, 0)}
	default:
		return Window{Start: day, End: day.AddDate(0, 0, 1)}
	}
}

// previousWindow shifts a window one unit back.
func previousWindow(w Window, agg AggregationWindow) Window {
	switch agg {
	case WindowMonthly:
		return Window{Start: w.Start.AddDate(0, -1, 0), End: w.Start}
	case WindowWeekly:
		return Window{Start: w.Start.AddDate(0, 0, -7), End: w.Start}
	default:
		return Window{Start: w.Start.AddDate(0, 0, -1), End: w.Start}
	}
}

// Calculator executes a single KPI calculation against the fact source.
type Calculator struct {
	facts FactSource
}

func NewCalculator(facts FactSource) *Calculator {
	return &Calculator{facts: facts}
}

// Calculate produces the point-in-time metric for one KPI as of the
// given date. The previous-period value is computed by shifting the
// window one unit back; both halves run against the same fact source.
func (c *Calculator) Calculate(ctx context.Context, def *Definition, asOf time.Time) (*Metric, error) {
	if err := def.Validate(); err != nil {
		return nil, err
	}

	w := ResolveWindow(asOf, def.Calculation.Window)
	value, err := c.evaluate(ctx, def, w)
	if err != nil {
		return nil, err
	}

	var previous *float64
	prevValue, prevErr := c.evaluate(ctx, def, previousWindow(w, def.Calculation.Window))
	if prevErr == nil {
		previous = &prevValue
	} else {
		// The current value is still good; the metric just loses its
		// comparison until the source recovers.
		log.Printf("kpi %s: previous window evaluation failed: %v", def.ID, prevErr)
	}

	change := 0.0
	changePct := 0.0
	if previous != nil {
		change = value - *previous
		if *previous != 0 {
			changePct = change / *previous * 100
		}
	}

	var achievement *float64
	if def.Target != nil && def.Target.Value != 0 {
		a := value / def.Target.Value * 100
		achievement = &a
	}

	m := &Metric{
		KPIID:             def.ID,
		TenantID:          def.TenantID,
		MetricKey:         def.MetricKey,
		Unit:              def.Unit,
		Value:             value,
		Previous:          previous,
		Change:            change,
		ChangePct:         changePct,
		Trend:             classifyTrend(change, changePct, def.HigherIsBetter),
		Level:             DetermineThreshold(value, def.Thresholds),
		TargetAchievement: achievement,
		Timestamp:         w.Start,
		Metadata: map[string]any{
			"calculation_type": string(def.Calculation.Type),
			"source":           def.Calculation.Source,
			"window_start":     w.Start.Format(time.RFC3339),
			"window_end":       w.End.Format(time.RFC3339),
		},
	}
	return m, nil
}

func (c *Calculator) evaluate(ctx context.Context, def *Definition, w Window) (float64, error) {
	calc := def.Calculation
	switch calc.Type {
	case CalcSum:
		return c.facts.SumField(ctx, def.TenantID, calc.Source, calc.Numerator.Column, w)

	case CalcAverage:
		return c.facts.AverageField(ctx, def.TenantID, calc.Source, calc.Numerator.Column, w)

	case CalcCount:
		var filter *Predicate
		if calc.Numerator != nil {
			filter = calc.Numerator.Filter
		}
		n, err := c.facts.CountRows(ctx, def.TenantID, calc.Source, filter, w)
		return float64(n), err

	case CalcPercentage:
		num, err := c.facts.CountRows(ctx, def.TenantID, calc.Source, calc.Numerator.Filter, w)
		if err != nil {
			return 0, err
		}
		var denFilter *Predicate
		if calc.Denominator != nil {
			denFilter = calc.Denominator.Filter
		}
		den, err := c.facts.CountRows(ctx, def.TenantID, calc.Source, denFilter, w)
		if err != nil {
			return 0, err
		}
		// Denominator 0 is a guarded 0, never NaN or Inf.
		if den == 0 {
			return 0, nil
		}
		return float64(num) / float64(den) * 100, nil

	case CalcRatio:
		num, err := c.facts.SumField(ctx, def.TenantID, calc.Source, calc.Numerator.Column, w)
		if err != nil {
			return 0, err
		}
		den, err := c.facts.SumField(ctx, def.TenantID, calc.Source, calc.Denominator.Column, w)
		if err != nil {
			return 0, err
		}
		if den == 0 {
			return 0, nil
		}
		return num / den, nil

	case CalcCustom:
		fn, ok := lookupCalculator(calc.Custom)
		if !ok {
			return 0, fmt.Errorf("%w: no calculator registered for %q", ErrValidation, calc.Custom)
		}
		return fn(ctx, def.TenantID, w, c.facts)

	default:
		return 0, fmt.Errorf("%w: unknown calculation type %q", ErrValidation, calc.Type)
	}
}

// classifyTrend maps a change onto improving/declining/stable. The
// direction of "improving" follows the KPI's HigherIsBetter flag, not
// the raw sign of the change.
func classifyTrend(change, changePct float64, higherIsBetter bool) Trend {
	if math.Abs(changePct) < 2 {
		return TrendStable
	}
	if (change > 0) == higherIsBetter {
		return TrendImproving
	}
	return TrendDeclining
}
