package forecast

import "math"

// DetectSeasonality checks for a weekly cycle via the normalized
// autocorrelation at lag 7. Returns nil when history is too short or
// the correlation is weak.
func DetectSeasonality(points []Point) *Seasonality {
	const lag = 7
	if len(points) < 2*lag {
		return nil
	}

	var mean float64
	for _, p := range points {
		mean += p.Value
	}
	mean /= float64(len(points))

	var numerator, denominator float64
	for i := lag; i < len(points); i++ {
		numerator += (points[i].Value - mean) * (points[i-lag].Value - mean)
	}
	for _, p := range points {
		denominator += (p.Value - mean) * (p.Value - mean)
	}
	if denominator == 0 {
		return nil
	}

	r := numerator / denominator
	if r <= 0.5 {
		return nil
	}
	return &Seasonality{Period: lag, Strength: math.Min(r, 1)}
}

// ClassifyTrend labels the overall direction of the series from its
// least-squares slope. Near-flat slopes count as stable.
func ClassifyTrend(points []Point) string {
	slope, _, _ := olsFit(points)
	switch {
	case math.Abs(slope) < 0.1:
		return "stable"
	case slope > 0:
		return "increasing"
	default:
		return "decreasing"
	}
}
