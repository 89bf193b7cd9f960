package kpi

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeFacts serves canned aggregate answers keyed by window start.
type fakeFacts struct {
	sums     map[time.Time]float64
	avgs     map[time.Time]float64
	counts   map[time.Time]int64
	distinct map[time.Time]int64
	repeat   map[time.Time]int64
	prepMins map[time.Time]float64
	rating   float64
}

func (f *fakeFacts) SumField(_ context.Context, _, _, _ string, w Window) (float64, error) {
	return f.sums[w.Start], nil
}

func (f *fakeFacts) AverageField(_ context.Context, _, _, _ string, w Window) (float64, error) {
	return f.avgs[w.Start], nil
}

func (f *fakeFacts) CountRows(_ context.Context, _, _ string, filter *Predicate, w Window) (int64, error) {
	if filter != nil {
		// Filtered counts halve, so percentage tests get 50%.
		return f.counts[w.Start] / 2, nil
	}
	return f.counts[w.Start], nil
}

func (f *fakeFacts) CountDistinct(_ context.Context, _, _, _ string, _ *Predicate, w Window) (int64, error) {
	return f.distinct[w.Start], nil
}

func (f *fakeFacts) RepeatCustomerCount(_ context.Context, _ string, w Window) (int64, error) {
	return f.repeat[w.Start], nil
}

func (f *fakeFacts) AverageFulfillmentMinutes(_ context.Context, _ string, w Window) (float64, error) {
	return f.prepMins[w.Start], nil
}

func (f *fakeFacts) RestaurantRatingAverage(context.Context, string) (float64, error) {
	return f.rating, nil
}

func revenueDef() *Definition {
	return &Definition{
		ID:        "total_revenue",
		TenantID:  "t1",
		Name:      "Total Revenue",
		MetricKey: "total_revenue",
		Category:  CategoryFinancial,
		Unit:      UnitCurrency,
		Calculation: Calculation{
			Type:      CalcSum,
			Source:    "orders",
			Numerator: &Expr{Column: "total_amount_cents"},
			Window:    WindowMonthly,
		},
		HigherIsBetter: true,
		Active:         true,
	}
}

func TestResolveWindow(t *testing.T) {
	asOf := time.Date(2026, 3, 18, 14, 30, 0, 0, time.UTC) // a Wednesday

	daily := ResolveWindow(asOf, WindowDaily)
	assert.Equal(t, time.Date(2026, 3, 18, 0, 0, 0, 0, time.UTC), daily.Start)
	assert.Equal(t, time.Date(2026, 3, 19, 0, 0, 0, 0, time.UTC), daily.End)

	weekly := ResolveWindow(asOf, WindowWeekly)
	assert.Equal(t, time.Date(2026, 3, 15, 0, 0, 0, 0, time.UTC), weekly.Start, "weeks start on Sunday")
	assert.Equal(t, time.Date(2026, 3, 22, 0, 0, 0, 0, time.UTC), weekly.End)

	monthly := ResolveWindow(asOf, WindowMonthly)
	assert.Equal(t, time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC), monthly.Start)
	assert.Equal(t, time.Date(2026, 4, 1, 0, 0, 0, 0, time.UTC), monthly.End)
}

func TestCalculateRevenueChange(t *testing.T) {
	asOf := time.Date(2026, 6, 15, 0, 0, 0, 0, time.UTC)
	current := time.Date(2026, 6, 1, 0, 0, 0, 0, time.UTC)
	previous := time.Date(2026, 5, 1, 0, 0, 0, 0, time.UTC)

	facts := &fakeFacts{sums: map[time.Time]float64{
		current:  125000,
		previous: 100000,
	}}
	calc := NewCalculator(facts)

	m, err := calc.Calculate(context.Background(), revenueDef(), asOf)
	require.NoError(t, err)

	assert.Equal(t, 125000.0, m.Value)
	require.NotNil(t, m.Previous)
	assert.Equal(t, 100000.0, *m.Previous)
	assert.Equal(t, 25000.0, m.Change)
	assert.InDelta(t, 25.0, m.ChangePct, 1e-9)
	assert.Equal(t, TrendImproving, m.Trend)
	assert.Equal(t, current, m.Timestamp, "metric timestamp is the window start")
}

// flakyFacts fails every query on windows starting before failBefore.
type flakyFacts struct {
	fakeFacts
	failBefore time.Time
}

func (f *flakyFacts) SumField(ctx context.Context, tenantID, source, column string, w Window) (float64, error) {
	if w.Start.Before(f.failBefore) {
		return 0, errors.New("fact source offline")
	}
	return f.fakeFacts.SumField(ctx, tenantID, source, column, w)
}

func TestCalculatePreviousWindowFailureIsNonFatal(t *testing.T) {
	asOf := time.Date(2026, 6, 15, 0, 0, 0, 0, time.UTC)
	current := time.Date(2026, 6, 1, 0, 0, 0, 0, time.UTC)

	facts := &flakyFacts{
		fakeFacts:  fakeFacts{sums: map[time.Time]float64{current: 125000}},
		failBefore: current,
	}
	calc := NewCalculator(facts)

	m, err := calc.Calculate(context.Background(), revenueDef(), asOf)
	require.NoError(t, err, "a failing previous window must not fail the metric")
	assert.Equal(t, 125000.0, m.Value)
	assert.Nil(t, m.Previous)
	assert.Equal(t, 0.0, m.ChangePct)
	assert.Equal(t, TrendStable, m.Trend)
}

func TestCalculateZeroPreviousGuards(t *testing.T) {
	asOf := time.Date(2026, 6, 15, 0, 0, 0, 0, time.UTC)
	current := time.Date(2026, 6, 1, 0, 0, 0, 0, time.UTC)

	facts := &fakeFacts{sums: map[time.Time]float64{current: 5000}}
	calc := NewCalculator(facts)

	m, err := calc.Calculate(context.Background(), revenueDef(), asOf)
	require.NoError(t, err)
	assert.Equal(t, 5000.0, m.Change)
	assert.Equal(t, 0.0, m.ChangePct, "previous of zero never divides")
}

func TestCalculatePercentageZeroDenominator(t *testing.T) {
	def := &Definition{
		ID: "completion", TenantID: "t1", MetricKey: "order_completion_rate",
		Unit: UnitPercentage,
		Calculation: Calculation{
			Type:      CalcPercentage,
			Source:    "orders",
			Numerator: &Expr{Filter: &Predicate{Column: "status", Op: CmpEQ, Value: "completed"}},
			Window:    WindowDaily,
		},
		HigherIsBetter: true,
	}

	facts := &fakeFacts{counts: map[time.Time]int64{}}
	calc := NewCalculator(facts)

	m, err := calc.Calculate(context.Background(), def, time.Now())
	require.NoError(t, err)
	assert.Equal(t, 0.0, m.Value)
}

func TestCalculateRatioZeroDenominator(t *testing.T) {
	def := &Definition{
		ID: "roas", TenantID: "t1", MetricKey: "campaign_roas",
		Unit: UnitRatio,
		Calculation: Calculation{
			Type:        CalcRatio,
			Source:      "campaigns",
			Numerator:   &Expr{Column: "revenue_attributed_cents"},
			Denominator: &Expr{Column: "budget_spent_cents"},
			Window:      WindowWeekly,
		},
		HigherIsBetter: true,
	}

	facts := &fakeFacts{sums: map[time.Time]float64{}}
	calc := NewCalculator(facts)

	m, err := calc.Calculate(context.Background(), def, time.Now())
	require.NoError(t, err)
	assert.Equal(t, 0.0, m.Value)
}

func TestCalculateRejectsUnknownColumn(t *testing.T) {
	def := revenueDef()
	def.Calculation.Numerator = &Expr{Column: "total_amount_cents; DROP TABLE orders"}

	calc := NewCalculator(&fakeFacts{})
	_, err := calc.Calculate(context.Background(), def, time.Now())
	require.ErrorIs(t, err, ErrValidation)
}

func TestCalculateTargetAchievement(t *testing.T) {
	def := revenueDef()
	def.Target = &Target{Value: 200000, Period: "monthly"}

	current := time.Date(2026, 6, 1, 0, 0, 0, 0, time.UTC)
	facts := &fakeFacts{sums: map[time.Time]float64{current: 112500}}
	calc := NewCalculator(facts)

	m, err := calc.Calculate(context.Background(), def, time.Date(2026, 6, 15, 0, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	require.NotNil(t, m.TargetAchievement)
	assert.InDelta(t, 56.25, *m.TargetAchievement, 1e-9)
}

func TestClassifyTrendPolarity(t *testing.T) {
	// Cancellation rate rising is declining when lower is better.
	assert.Equal(t, TrendDeclining, classifyTrend(3, 10, false))
	assert.Equal(t, TrendImproving, classifyTrend(-3, -10, false))
	assert.Equal(t, TrendImproving, classifyTrend(3, 10, true))
	assert.Equal(t, TrendStable, classifyTrend(0.5, 1.5, true), "small moves stay stable")
}

func TestCustomCalculatorUnknownName(t *testing.T) {
	def := &Definition{
		ID: "custom", TenantID: "t1", MetricKey: "custom",
		Calculation: Calculation{Type: CalcCustom, Custom: "no_such_calculator"},
	}
	calc := NewCalculator(&fakeFacts{})
	_, err := calc.Calculate(context.Background(), def, time.Now())
	require.ErrorIs(t, err, ErrValidation)
}

func TestCustomerRetentionRateCalculator(t *testing.T) {
	w := ResolveWindow(time.Date(2026, 6, 15, 0, 0, 0, 0, time.UTC), WindowMonthly)
	facts := &fakeFacts{
		distinct: map[time.Time]int64{w.Start: 200},
		repeat:   map[time.Time]int64{w.Start: 90},
	}

	rate, err := customerRetentionRate(context.Background(), "t1", w, facts)
	require.NoError(t, err)
	assert.InDelta(t, 45.0, rate, 1e-9)
}

func TestRestaurantPerformanceScoreComposite(t *testing.T) {
	w := ResolveWindow(time.Date(2026, 6, 15, 0, 0, 0, 0, time.UTC), WindowWeekly)
	// The windowed average for the week is left empty on purpose: the
	// rating third must come from the standing rating average, not from
	// restaurant rows created inside the window. 4.5 stars scores 90,
	// 15 minute prep scores 50, and the filter halving makes half the
	// 100 orders cancelled for a reliability of 50.
	facts := &fakeFacts{
		avgs:     map[time.Time]float64{},
		rating:   4.5,
		prepMins: map[time.Time]float64{w.Start: 15},
		counts:   map[time.Time]int64{w.Start: 100},
	}

	score, err := restaurantPerformanceScore(context.Background(), "t1", w, facts)
	require.NoError(t, err)
	assert.InDelta(t, (90.0+50+50)/3, score, 1e-9)
}

func TestCustomerRetentionRateNoCustomers(t *testing.T) {
	w := ResolveWindow(time.Now(), WindowMonthly)
	rate, err := customerRetentionRate(context.Background(), "t1", w, &fakeFacts{distinct: map[time.Time]int64{}})
	require.NoError(t, err)
	assert.Equal(t, 0.0, rate)
}
