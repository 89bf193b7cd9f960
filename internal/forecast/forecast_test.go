package forecast

import (
	"context"
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"orderinsight/internal/cache"
)

func series(values ...float64) []Point {
	start := time.Date(2026, 5, 1, 0, 0, 0, 0, time.UTC)
	points := make([]Point, 0, len(values))
	for i, v := range values {
		points = append(points, Point{Date: start.AddDate(0, 0, i), Value: v})
	}
	return points
}

// linear generates y = slope*i + intercept for n days.
func linear(n int, slope, intercept float64) []Point {
	values := make([]float64, n)
	for i := range values {
		values[i] = slope*float64(i) + intercept
	}
	return series(values...)
}

type fakeHistory struct {
	points []Point
	err    error
}

func (f *fakeHistory) DailySeries(context.Context, string, string, time.Time, time.Time) ([]Point, error) {
	return f.points, f.err
}

func TestLinearRegressionExactFit(t *testing.T) {
	points := linear(10, 2, 1) // y = 2x + 1, perfect fit
	preds := linearRegression(points, 3)
	require.Len(t, preds, 3)

	// Next values continue the line: x=10,11,12.
	assert.InDelta(t, 21, preds[0].Value, 1e-9)
	assert.InDelta(t, 23, preds[1].Value, 1e-9)
	assert.InDelta(t, 25, preds[2].Value, 1e-9)

	// R^2 is 1, so confidence is exactly the decay term.
	assert.InDelta(t, math.Exp(-1.0/30), preds[0].Confidence, 1e-9)
	assert.Equal(t, points[9].Date.AddDate(0, 0, 1), preds[0].Date)
}

func TestConfidenceDecaysWithHorizon(t *testing.T) {
	points := linear(20, 1.5, 10)
	for _, algo := range []Algorithm{AlgLinearRegression, AlgExponentialSmoothing, AlgMovingAverage, AlgSeasonalDecomposition, AlgEnsemble} {
		preds := run(algo, points, 30)
		require.Len(t, preds, 30, string(algo))
		for i := 1; i < len(preds); i++ {
			assert.LessOrEqual(t, preds[i].Confidence, preds[i-1].Confidence,
				"%s: confidence must not increase with horizon", algo)
		}
	}
}

func TestPredictionsNeverNegative(t *testing.T) {
	points := linear(14, -5, 20) // steep decline crossing zero
	for _, algo := range []Algorithm{AlgLinearRegression, AlgExponentialSmoothing, AlgMovingAverage, AlgSeasonalDecomposition, AlgEnsemble} {
		for _, p := range run(algo, points, 14) {
			assert.GreaterOrEqual(t, p.Value, 0.0, string(algo))
			assert.GreaterOrEqual(t, p.LowerBound, 0.0, string(algo))
		}
	}
}

func TestMovingAverageFlatSeries(t *testing.T) {
	points := series(10, 10, 10, 10, 10, 10, 10, 10)
	preds := movingAverage(points, 5)
	for _, p := range preds {
		assert.InDelta(t, 10, p.Value, 1e-9)
		// Zero volatility collapses the bounds onto the prediction.
		assert.InDelta(t, 10, p.UpperBound, 1e-9)
		assert.InDelta(t, 10, p.LowerBound, 1e-9)
	}
}

func TestEnsembleWithinComponentRange(t *testing.T) {
	points := linear(40, 3, 50)
	components := [][]Prediction{
		linearRegression(points, 10),
		exponentialSmoothing(points, 10),
		movingAverage(points, 10),
		seasonalDecomposition(points, 10),
	}
	preds := ensemble(points, 10)

	for i, p := range preds {
		lo, hi := math.Inf(1), math.Inf(-1)
		for _, set := range components {
			lo = math.Min(lo, set[i].Value)
			hi = math.Max(hi, set[i].Value)
		}
		assert.GreaterOrEqual(t, p.Value, lo-1e-9)
		assert.LessOrEqual(t, p.Value, hi+1e-9)
		assert.LessOrEqual(t, p.Confidence, 0.95)
	}
}

func TestDetectSeasonalityWeeklyPattern(t *testing.T) {
	// Four weeks of a strong weekly shape.
	week := []float64{100, 80, 75, 78, 90, 150, 180}
	var values []float64
	for i := 0; i < 4; i++ {
		values = append(values, week...)
	}

	season := DetectSeasonality(series(values...))
	require.NotNil(t, season)
	assert.Equal(t, 7, season.Period)
	assert.Greater(t, season.Strength, 0.5)
	assert.LessOrEqual(t, season.Strength, 1.0, "strength is capped at 1")
}

func TestDetectSeasonalityFlatAndShort(t *testing.T) {
	assert.Nil(t, DetectSeasonality(series(5, 5, 5, 5, 5, 5, 5, 5, 5, 5, 5, 5, 5, 5)), "flat series has no cycle")
	assert.Nil(t, DetectSeasonality(linear(10, 1, 0)), "under two periods of history")
}

func TestClassifyTrend(t *testing.T) {
	assert.Equal(t, "increasing", ClassifyTrend(linear(10, 2, 0)))
	assert.Equal(t, "decreasing", ClassifyTrend(linear(10, -2, 100)))
	assert.Equal(t, "stable", ClassifyTrend(series(50, 50.01, 49.99, 50, 50.02, 49.98, 50)))
}

func TestSelectAlgorithm(t *testing.T) {
	assert.Equal(t, AlgSeasonalDecomposition, selectAlgorithm(linear(40, 1, 0), &Seasonality{Period: 7, Strength: 0.8}))
	assert.Equal(t, AlgEnsemble, selectAlgorithm(linear(31, 1, 0), nil))
	assert.Equal(t, AlgLinearRegression, selectAlgorithm(linear(15, 1, 0), nil))
	assert.Equal(t, AlgExponentialSmoothing, selectAlgorithm(linear(14, 1, 0), nil))
}

func TestForecastInsufficientData(t *testing.T) {
	engine := NewEngine(&fakeHistory{points: linear(6, 1, 0)}, cache.Noop{}, 90, 365, time.Minute)
	_, err := engine.Forecast(context.Background(), "t1", "total_revenue", 30, "")
	require.ErrorIs(t, err, ErrInsufficientData)
}

func TestForecastEndToEnd(t *testing.T) {
	engine := NewEngine(&fakeHistory{points: linear(20, 2, 100)}, cache.Noop{}, 90, 365, time.Minute)

	r, err := engine.Forecast(context.Background(), "t1", "daily_orders", 14, "")
	require.NoError(t, err)
	assert.Equal(t, "daily_orders", r.Metric)
	assert.Equal(t, AlgLinearRegression, r.Algorithm, "20 points with no seasonality selects regression")
	assert.Len(t, r.Predictions, 14)
	assert.Equal(t, "increasing", r.Trend)

	// Accuracy is the mean prediction confidence.
	var sum float64
	for _, p := range r.Predictions {
		sum += p.Confidence
	}
	assert.InDelta(t, sum/14, r.Accuracy, 1e-9)
}

func TestForecastHorizonClamped(t *testing.T) {
	engine := NewEngine(&fakeHistory{points: linear(20, 1, 0)}, cache.Noop{}, 90, 365, time.Minute)

	r, err := engine.Forecast(context.Background(), "t1", "daily_orders", 0, AlgMovingAverage)
	require.NoError(t, err)
	assert.Len(t, r.Predictions, 30, "zero horizon defaults to 30 days")

	r, err = engine.Forecast(context.Background(), "t1", "daily_orders", 4000, AlgMovingAverage)
	require.NoError(t, err)
	assert.Len(t, r.Predictions, 365, "horizon caps at a year")
}
