package insight

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"orderinsight/internal/cache"
	"orderinsight/internal/kpi"
)

type fakeMetrics struct {
	byKey map[string]*kpi.Metric
}

func (f *fakeMetrics) LatestByKey(_ context.Context, _, metricKey string) (*kpi.Metric, error) {
	return f.byKey[metricKey], nil
}

func changeMetric(value, changePct float64) *kpi.Metric {
	previous := value / (1 + changePct/100)
	return &kpi.Metric{Value: value, Previous: &previous, ChangePct: changePct}
}

func newTestGenerator(byKey map[string]*kpi.Metric) *Generator {
	return NewGenerator(&fakeMetrics{byKey: byKey}, cache.Noop{}, time.Minute)
}

func TestGenerateRevenueDecline(t *testing.T) {
	g := newTestGenerator(map[string]*kpi.Metric{
		"total_revenue": changeMetric(80000, -20),
	})

	insights, err := g.Generate(context.Background(), "t1")
	require.NoError(t, err)
	require.Len(t, insights, 1)

	ins := insights[0]
	assert.Equal(t, TypePerformanceDecline, ins.Type)
	assert.Equal(t, SeverityCritical, ins.Severity)
	assert.Equal(t, 90, ins.Confidence)
	assert.Contains(t, ins.Description, "20.0%")
	assert.Len(t, ins.Recommendations, 5)
	assert.True(t, ins.ExpiresAt.After(ins.GeneratedAt))
}

func TestGenerateRevenueGrowthBoundary(t *testing.T) {
	// Exactly +25% does not fire; the rule wants strictly more.
	g := newTestGenerator(map[string]*kpi.Metric{
		"total_revenue": changeMetric(125000, 25),
	})
	insights, err := g.Generate(context.Background(), "t1")
	require.NoError(t, err)
	assert.Empty(t, insights)

	g = newTestGenerator(map[string]*kpi.Metric{
		"total_revenue": changeMetric(126000, 25.1),
	})
	insights, err = g.Generate(context.Background(), "t1")
	require.NoError(t, err)
	require.Len(t, insights, 1)
	assert.Equal(t, TypeGrowthOpportunity, insights[0].Type)
	assert.Equal(t, 95, insights[0].Confidence)
}

func TestGenerateLowRetention(t *testing.T) {
	g := newTestGenerator(map[string]*kpi.Metric{
		"customer_retention_rate": {Value: 45},
	})
	insights, err := g.Generate(context.Background(), "t1")
	require.NoError(t, err)
	require.Len(t, insights, 1)
	assert.Equal(t, TypeRiskDetection, insights[0].Type)
	assert.Equal(t, 85, insights[0].Confidence)
	assert.Contains(t, insights[0].Description, "45.0%")
}

func TestGenerateROASBoundary(t *testing.T) {
	// Exactly 2.5 does not fire.
	g := newTestGenerator(map[string]*kpi.Metric{
		"campaign_roas": {Value: 2.5},
	})
	insights, err := g.Generate(context.Background(), "t1")
	require.NoError(t, err)
	assert.Empty(t, insights)

	g = newTestGenerator(map[string]*kpi.Metric{
		"campaign_roas": {Value: 1.8},
	})
	insights, err = g.Generate(context.Background(), "t1")
	require.NoError(t, err)
	require.Len(t, insights, 1)
	assert.Equal(t, TypeEfficiencyImprovement, insights[0].Type)
	assert.Contains(t, insights[0].Description, "1.80x")
}

func TestGenerateOrdersBySeverity(t *testing.T) {
	g := newTestGenerator(map[string]*kpi.Metric{
		"total_revenue":                changeMetric(80000, -20), // critical
		"customer_retention_rate":      {Value: 40},              // warning
		"restaurant_performance_score": {Value: 60},              // warning
		"campaign_roas":                {Value: 2.0},             // warning
	})

	insights, err := g.Generate(context.Background(), "t1")
	require.NoError(t, err)
	require.Len(t, insights, 4)

	assert.Equal(t, SeverityCritical, insights[0].Severity)
	for _, ins := range insights[1:] {
		assert.Equal(t, SeverityWarning, ins.Severity)
	}
	// Within a severity, higher confidence ranks first.
	assert.Equal(t, 88, insights[1].Confidence)
	assert.Equal(t, 85, insights[2].Confidence)
	assert.Equal(t, 80, insights[3].Confidence)
}

func TestGenerateMissingMetricsSkipRules(t *testing.T) {
	g := newTestGenerator(map[string]*kpi.Metric{})
	insights, err := g.Generate(context.Background(), "t1")
	require.NoError(t, err)
	assert.Empty(t, insights)
}
