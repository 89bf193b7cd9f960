// Package forecast produces multi-day forecasts for tracked metrics
// using interchangeable algorithms, plus the seasonality and trend
// analysis the anomaly detector and insight rules build on.
package forecast

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"math"
	"time"

	"orderinsight/internal/cache"
)

// ErrInsufficientData is returned when fewer than MinHistoryPoints
// daily points are available. No partial result is produced.
var ErrInsufficientData = errors.New("insufficient historical data for forecasting")

// MinHistoryPoints is the minimum daily history a forecast needs.
const MinHistoryPoints = 7

type Algorithm string

const (
	AlgLinearRegression      Algorithm = "linear_regression"
	AlgExponentialSmoothing  Algorithm = "exponential_smoothing"
	AlgMovingAverage         Algorithm = "moving_average"
	AlgSeasonalDecomposition Algorithm = "seasonal_decomposition"
	AlgEnsemble              Algorithm = "ensemble"
)

// Point is one daily observation of a metric.
type Point struct {
	Date  time.Time `json:"date"`
	Value float64   `json:"value"`
}

// Prediction is one forecast day. Values are clamped to >= 0; order
// volumes and revenue cannot go negative.
type Prediction struct {
	Date       time.Time `json:"date"`
	Value      float64   `json:"value"`
	Confidence float64   `json:"confidence"`
	UpperBound float64   `json:"upper_bound"`
	LowerBound float64   `json:"lower_bound"`
}

// Seasonality describes a detected recurring pattern.
type Seasonality struct {
	Period   int     `json:"period"`
	Strength float64 `json:"strength"`
}

// Result is a complete forecast for one metric.
type Result struct {
	Metric      string       `json:"metric"`
	Algorithm   Algorithm    `json:"algorithm"`
	Predictions []Prediction `json:"predictions"`
	Accuracy    float64      `json:"accuracy"`
	Trend       string       `json:"trend"`
	Seasonality *Seasonality `json:"seasonality,omitempty"`
}

// HistorySource provides the per-day metric series a forecast trains on.
type HistorySource interface {
	DailySeries(ctx context.Context, tenantID, metricKey string, from, to time.Time) ([]Point, error)
}

// Engine computes forecasts over a bounded historical lookback.
type Engine struct {
	history      HistorySource
	cache        cache.Cache
	lookbackDays int
	maxHorizon   int
	cacheTTL     time.Duration
}

func NewEngine(history HistorySource, c cache.Cache, lookbackDays, maxHorizonDays int, cacheTTL time.Duration) *Engine {
	if c == nil {
		c = cache.Noop{}
	}
	if lookbackDays <= 0 || lookbackDays > 90 {
		lookbackDays = 90
	}
	if maxHorizonDays <= 0 || maxHorizonDays > 365 {
		maxHorizonDays = 365
	}
	return &Engine{history: history, cache: c, lookbackDays: lookbackDays, maxHorizon: maxHorizonDays, cacheTTL: cacheTTL}
}

// Forecast produces a horizon-day forecast for one metric. An empty
// algorithm selects one automatically from the history's shape.
func (e *Engine) Forecast(ctx context.Context, tenantID, metric string, horizonDays int, algorithm Algorithm) (*Result, error) {
	if tenantID == "" {
		return nil, errors.New("empty tenant id")
	}
	if horizonDays <= 0 {
		horizonDays = 30
	}
	if horizonDays > e.maxHorizon {
		horizonDays = e.maxHorizon
	}

	cacheKey := fmt.Sprintf("forecast:%s:%s:%d:%s", tenantID, metric, horizonDays, algorithm)
	if raw, ok := e.cache.Get(ctx, cacheKey); ok {
		var r Result
		if err := json.Unmarshal(raw, &r); err == nil {
			return &r, nil
		}
	}

	to := time.Now().UTC()
	from := to.AddDate(0, 0, -e.lookbackDays)
	points, err := e.history.DailySeries(ctx, tenantID, metric, from, to)
	if err != nil {
		return nil, fmt.Errorf("load history for %s: %w", metric, err)
	}
	if len(points) < MinHistoryPoints {
		return nil, fmt.Errorf("%w: metric %s has %d points, need %d", ErrInsufficientData, metric, len(points), MinHistoryPoints)
	}

	season := DetectSeasonality(points)
	if algorithm == "" {
		algorithm = selectAlgorithm(points, season)
	}

	predictions := run(algorithm, points, horizonDays)

	result := &Result{
		Metric:      metric,
		Algorithm:   algorithm,
		Predictions: predictions,
		Accuracy:    meanConfidence(predictions),
		Trend:       ClassifyTrend(points),
	}
	if season != nil {
		result.Seasonality = season
	}

	if raw, err := json.Marshal(result); err == nil {
		e.cache.Set(ctx, cacheKey, raw, e.cacheTTL)
	}
	return result, nil
}

// ForecastAll forecasts several metrics, skipping any that fail and
// logging the failure; one bad metric never aborts the rest.
func (e *Engine) ForecastAll(ctx context.Context, tenantID string, metrics []string, horizonDays int, algorithm Algorithm) []Result {
	results := make([]Result, 0, len(metrics))
	for _, metric := range metrics {
		r, err := e.Forecast(ctx, tenantID, metric, horizonDays, algorithm)
		if err != nil {
			log.Printf("forecast %s (%s): %v", metric, tenantID, err)
			continue
		}
		results = append(results, *r)
	}
	return results
}

// selectAlgorithm picks an algorithm from the history's shape: strong
// weekly seasonality wins, then long histories get the ensemble,
// medium ones plain regression, short ones exponential smoothing.
func selectAlgorithm(points []Point, season *Seasonality) Algorithm {
	if season != nil && season.Strength > 0.7 {
		return AlgSeasonalDecomposition
	}
	n := len(points)
	if n > 30 {
		return AlgEnsemble
	}
	if n > 14 {
		return AlgLinearRegression
	}
	return AlgExponentialSmoothing
}

func run(algorithm Algorithm, points []Point, horizon int) []Prediction {
	switch algorithm {
	case AlgExponentialSmoothing:
		return exponentialSmoothing(points, horizon)
	case AlgMovingAverage:
		return movingAverage(points, horizon)
	case AlgSeasonalDecomposition:
		return seasonalDecomposition(points, horizon)
	case AlgEnsemble:
		return ensemble(points, horizon)
	default:
		return linearRegression(points, horizon)
	}
}

// olsFit returns the least-squares slope, intercept and R-squared of
// value over index. A perfectly flat series counts as a perfect fit.
func olsFit(points []Point) (slope, intercept, r2 float64) {
	n := float64(len(points))
	var sumX, sumY, sumXY, sumXX float64
	for i, p := range points {
		x := float64(i)
		sumX += x
		sumY += p.Value
		sumXY += x * p.Value
		sumXX += x * x
	}

	denom := n*sumXX - sumX*sumX
	if denom == 0 {
		return 0, sumY / n, 1
	}
	slope = (n*sumXY - sumX*sumY) / denom
	intercept = (sumY - slope*sumX) / n

	mean := sumY / n
	var totalSS, residualSS float64
	for i, p := range points {
		predicted := slope*float64(i) + intercept
		totalSS += (p.Value - mean) * (p.Value - mean)
		residualSS += (p.Value - predicted) * (p.Value - predicted)
	}
	if totalSS == 0 {
		return slope, intercept, 1
	}
	return slope, intercept, 1 - residualSS/totalSS
}

func linearRegression(points []Point, horizon int) []Prediction {
	slope, intercept, r2 := olsFit(points)
	n := len(points)
	lastDate := points[n-1].Date

	preds := make([]Prediction, 0, horizon)
	for i := 1; i <= horizon; i++ {
		predicted := slope*float64(n+i-1) + intercept
		confidence := math.Max(0.1, r2*math.Exp(-float64(i)/30))
		margin := math.Abs(predicted) * (1 - confidence) * 0.5
		preds = append(preds, Prediction{
			Date:       lastDate.AddDate(0, 0, i),
			Value:      math.Max(0, predicted),
			Confidence: confidence,
			UpperBound: predicted + margin,
			LowerBound: math.Max(0, predicted-margin),
		})
	}
	return preds
}

func exponentialSmoothing(points []Point, horizon int) []Prediction {
	const alpha = 0.3

	smoothed := points[0].Value
	for _, p := range points[1:] {
		smoothed = alpha*p.Value + (1-alpha)*smoothed
	}
	lastDate := points[len(points)-1].Date

	preds := make([]Prediction, 0, horizon)
	for i := 1; i <= horizon; i++ {
		confidence := math.Max(0.1, math.Exp(-float64(i)/20))
		margin := math.Abs(smoothed) * (1 - confidence) * 0.3
		preds = append(preds, Prediction{
			Date:       lastDate.AddDate(0, 0, i),
			Value:      math.Max(0, smoothed),
			Confidence: confidence,
			UpperBound: smoothed + margin,
			LowerBound: math.Max(0, smoothed-margin),
		})
	}
	return preds
}

func movingAverage(points []Point, horizon int) []Prediction {
	window := len(points)
	if window > 7 {
		window = 7
	}
	recent := points[len(points)-window:]

	var sum float64
	for _, p := range recent {
		sum += p.Value
	}
	avg := sum / float64(window)

	var variance float64
	for _, p := range recent {
		variance += (p.Value - avg) * (p.Value - avg)
	}
	volatility := math.Sqrt(variance / float64(window))

	lastDate := points[len(points)-1].Date
	preds := make([]Prediction, 0, horizon)
	for i := 1; i <= horizon; i++ {
		confidence := math.Max(0.2, math.Exp(-float64(i)/15))
		margin := 2 * volatility * (1 - confidence)
		preds = append(preds, Prediction{
			Date:       lastDate.AddDate(0, 0, i),
			Value:      math.Max(0, avg),
			Confidence: confidence,
			UpperBound: avg + margin,
			LowerBound: math.Max(0, avg-margin),
		})
	}
	return preds
}

// seasonalDecomposition averages a weekly additive component from
// history and blends it 30% with the linear trend.
func seasonalDecomposition(points []Point, horizon int) []Prediction {
	const period = 7

	var seasonal [period]float64
	var counts [period]int
	for i, p := range points {
		seasonal[i%period] += p.Value
		counts[i%period]++
	}
	for i := range seasonal {
		if counts[i] > 0 {
			seasonal[i] /= float64(counts[i])
		}
	}

	slope, intercept, _ := olsFit(points)
	n := len(points)
	lastDate := points[n-1].Date

	preds := make([]Prediction, 0, horizon)
	for i := 1; i <= horizon; i++ {
		trend := slope*float64(n+i-1) + intercept
		seasonalComponent := seasonal[(n+i-1)%period]
		predicted := trend + (seasonalComponent-trend)*0.3
		confidence := math.Max(0.3, math.Exp(-float64(i)/25))
		margin := math.Abs(predicted) * (1 - confidence) * 0.4
		preds = append(preds, Prediction{
			Date:       lastDate.AddDate(0, 0, i),
			Value:      math.Max(0, predicted),
			Confidence: confidence,
			UpperBound: predicted + margin,
			LowerBound: math.Max(0, predicted-margin),
		})
	}
	return preds
}

// ensemble blends the four base algorithms with fixed weights and a
// small confidence boost, capped at 0.95.
func ensemble(points []Point, horizon int) []Prediction {
	components := [][]Prediction{
		linearRegression(points, horizon),
		exponentialSmoothing(points, horizon),
		movingAverage(points, horizon),
		seasonalDecomposition(points, horizon),
	}
	weights := []float64{0.30, 0.25, 0.20, 0.25}

	preds := make([]Prediction, 0, horizon)
	for i := 0; i < horizon; i++ {
		var value, confidence, upper, lower float64
		for c, set := range components {
			value += set[i].Value * weights[c]
			confidence += set[i].Confidence * weights[c]
			upper += set[i].UpperBound * weights[c]
			lower += set[i].LowerBound * weights[c]
		}
		preds = append(preds, Prediction{
			Date:       components[0][i].Date,
			Value:      math.Max(0, value),
			Confidence: math.Min(0.95, confidence+0.1),
			UpperBound: upper,
			LowerBound: math.Max(0, lower),
		})
	}
	return preds
}

func meanConfidence(preds []Prediction) float64 {
	if len(preds) == 0 {
		return 0
	}
	var sum float64
	for _, p := range preds {
		sum += p.Confidence
	}
	return sum / float64(len(preds))
}
