package kpi

import (
	"context"
	"math"
)

// Built-in calculators for KPIs that the closed expression model
// cannot express. Registered at init so seeded definitions resolve.
func init() {
	RegisterCalculator("customer_retention_rate", customerRetentionRate)
	RegisterCalculator("restaurant_performance_score", restaurantPerformanceScore)
}

// customerRetentionRate is the share of active customers (distinct
// customers with a completed order in the window) who ordered more
// than once.
func customerRetentionRate(ctx context.Context, tenantID string, w Window, facts FactSource) (float64, error) {
	completed := &Predicate{Column: "status", Op: CmpEQ, Value: "completed"}

	active, err := facts.CountDistinct(ctx, tenantID, "orders", "customer_id", completed, w)
	if err != nil {
		return 0, err
	}
	if active == 0 {
		return 0, nil
	}
	repeat, err := facts.RepeatCustomerCount(ctx, tenantID, w)
	if err != nil {
		return 0, err
	}
	return float64(repeat) / float64(active) * 100, nil
}

// restaurantPerformanceScore blends rating, prep-time efficiency
// (30 minute baseline) and order reliability into a 0-100 composite.
// Ratings cover every active restaurant; only the order aggregates
// are windowed.
func restaurantPerformanceScore(ctx context.Context, tenantID string, w Window, facts FactSource) (float64, error) {
	avgRating, err := facts.RestaurantRatingAverage(ctx, tenantID)
	if err != nil {
		return 0, err
	}
	avgPrepMinutes, err := facts.AverageFulfillmentMinutes(ctx, tenantID, w)
	if err != nil {
		return 0, err
	}
	total, err := facts.CountRows(ctx, tenantID, "orders", nil, w)
	if err != nil {
		return 0, err
	}
	cancelled, err := facts.CountRows(ctx, tenantID, "orders",
		&Predicate{Column: "status", Op: CmpEQ, Value: "cancelled"}, w)
	if err != nil {
		return 0, err
	}

	cancellationRate := 0.0
	if total > 0 {
		cancellationRate = float64(cancelled) / float64(total) * 100
	}

	ratingScore := avgRating / 5 * 100
	efficiencyScore := math.Max(0, 100-(avgPrepMinutes/30)*100)
	reliabilityScore := math.Max(0, 100-cancellationRate)

	return (ratingScore + efficiencyScore + reliabilityScore) / 3, nil
}
