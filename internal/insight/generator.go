// Package insight turns the most recent metric values into ranked,
// actionable business insights via a fixed rule set.
package insight

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"sort"
	"time"

	"github.com/google/uuid"

	"orderinsight/internal/cache"
	"orderinsight/internal/kpi"
)

type Type string

const (
	TypePerformanceDecline    Type = "performance_decline"
	TypeGrowthOpportunity     Type = "growth_opportunity"
	TypeRiskDetection         Type = "risk_detection"
	TypeEfficiencyImprovement Type = "efficiency_improvement"
)

type Severity string

const (
	SeverityInfo     Severity = "info"
	SeverityWarning  Severity = "warning"
	SeverityCritical Severity = "critical"
)

// Insight is one generated observation with its recommended actions.
// Confidence is a 0-100 score reflecting how reliable the rule is.
type Insight struct {
	ID              string    `json:"id"`
	TenantID        string    `json:"tenant_id"`
	Type            Type      `json:"type"`
	Title           string    `json:"title"`
	Description     string    `json:"description"`
	Severity        Severity  `json:"severity"`
	Category        string    `json:"category"`
	Confidence      int       `json:"confidence"`
	Actionable      bool      `json:"actionable"`
	Recommendations []string  `json:"recommendations"`
	RelatedMetrics  []string  `json:"related_metrics"`
	GeneratedAt     time.Time `json:"generated_at"`
	ExpiresAt       time.Time `json:"expires_at"`
}

// MetricReader looks up the most recent stored value for a metric key.
// A missing metric returns (nil, nil); rules skip what they cannot see.
type MetricReader interface {
	LatestByKey(ctx context.Context, tenantID, metricKey string) (*kpi.Metric, error)
}

type Generator struct {
	metrics  MetricReader
	cache    cache.Cache
	cacheTTL time.Duration
}

func NewGenerator(metrics MetricReader, c cache.Cache, cacheTTL time.Duration) *Generator {
	if c == nil {
		c = cache.Noop{}
	}
	return &Generator{metrics: metrics, cache: c, cacheTTL: cacheTTL}
}

var severityRank = map[Severity]int{
	SeverityCritical: 0,
	SeverityWarning:  1,
	SeverityInfo:     2,
}

// Generate evaluates every rule against the latest metrics and returns
// the firing insights, most severe first. A metric a rule needs being
// absent just skips that rule.
func (g *Generator) Generate(ctx context.Context, tenantID string) ([]Insight, error) {
	if tenantID == "" {
		return nil, errors.New("empty tenant id")
	}

	cacheKey := "insights:" + tenantID
	if raw, ok := g.cache.Get(ctx, cacheKey); ok {
		var cached []Insight
		if err := json.Unmarshal(raw, &cached); err == nil {
			return cached, nil
		}
	}

	now := time.Now().UTC()
	insights := make([]Insight, 0)
	add := func(ins Insight) {
		ins.ID = uuid.NewString()
		ins.TenantID = tenantID
		ins.Actionable = true
		ins.GeneratedAt = now
		ins.ExpiresAt = now.Add(24 * time.Hour)
		insights = append(insights, ins)
	}

	// The revenue rules need a previous period to compare against.
	if revenue := g.latest(ctx, tenantID, "total_revenue"); revenue != nil && revenue.Previous != nil {
		change := revenue.ChangePct
		if change < -15 {
			add(Insight{
				Type:        TypePerformanceDecline,
				Title:       "Significant Revenue Decline",
				Description: fmt.Sprintf("Revenue has decreased by %.1f%% compared to the previous period.", -change),
				Severity:    SeverityCritical,
				Category:    "revenue",
				Confidence:  90,
				Recommendations: []string{
					"Conduct immediate revenue impact analysis",
					"Review recent campaign performance and ROI",
					"Analyze customer churn and satisfaction metrics",
					"Investigate operational issues affecting order completion",
					"Consider emergency promotional campaigns",
				},
				RelatedMetrics: []string{"total_revenue", "customer_retention_rate", "order_completion_rate"},
			})
		} else if change > 25 {
			add(Insight{
				Type:        TypeGrowthOpportunity,
				Title:       "Exceptional Revenue Growth",
				Description: fmt.Sprintf("Revenue has increased by %.1f%% - significant growth opportunity identified.", change),
				Severity:    SeverityInfo,
				Category:    "revenue",
				Confidence:  95,
				Recommendations: []string{
					"Scale successful marketing campaigns immediately",
					"Increase inventory and capacity to meet demand",
					"Expand to new geographic markets",
					"Invest in customer retention programs",
					"Consider premium service offerings",
				},
				RelatedMetrics: []string{"total_revenue", "campaign_roas"},
			})
		}
	}

	if retention := g.latest(ctx, tenantID, "customer_retention_rate"); retention != nil && retention.Value < 50 {
		add(Insight{
			Type:        TypeRiskDetection,
			Title:       "Low Customer Retention Risk",
			Description: fmt.Sprintf("Customer retention rate is %.1f%%, indicating potential churn issues.", retention.Value),
			Severity:    SeverityWarning,
			Category:    "customer",
			Confidence:  85,
			Recommendations: []string{
				"Implement customer feedback collection system",
				"Create loyalty and rewards programs",
				"Improve onboarding experience for new customers",
				"Analyze customer journey pain points",
				"Develop win-back campaigns for churned customers",
			},
			RelatedMetrics: []string{"customer_retention_rate"},
		})
	}

	if perf := g.latest(ctx, tenantID, "restaurant_performance_score"); perf != nil && perf.Value < 75 {
		add(Insight{
			Type:        TypeEfficiencyImprovement,
			Title:       "Restaurant Performance Optimization Needed",
			Description: fmt.Sprintf("Restaurant performance score is %.1f, below optimal levels.", perf.Value),
			Severity:    SeverityWarning,
			Category:    "operational",
			Confidence:  80,
			Recommendations: []string{
				"Review fulfillment times at underperforming restaurants",
				"Audit low-rated restaurants for quality issues",
				"Reduce cancellation drivers in the ordering flow",
				"Offer operational best-practice guidance to partners",
				"Prioritize support for restaurants below rating targets",
			},
			RelatedMetrics: []string{"restaurant_performance_score"},
		})
	}

	if roas := g.latest(ctx, tenantID, "campaign_roas"); roas != nil && roas.Value < 2.5 {
		add(Insight{
			Type:        TypeEfficiencyImprovement,
			Title:       "Campaign ROAS Below Target",
			Description: fmt.Sprintf("Return on Ad Spend is %.2fx, below the recommended 3x minimum.", roas.Value),
			Severity:    SeverityWarning,
			Category:    "marketing",
			Confidence:  88,
			Recommendations: []string{
				"Pause underperforming campaigns immediately",
				"Reallocate budget to high-performing channels",
				"Improve landing page conversion rates",
				"Refine audience targeting parameters",
				"A/B test ad creative and messaging",
			},
			RelatedMetrics: []string{"campaign_roas"},
		})
	}

	sort.SliceStable(insights, func(i, j int) bool {
		ri, rj := severityRank[insights[i].Severity], severityRank[insights[j].Severity]
		if ri != rj {
			return ri < rj
		}
		return insights[i].Confidence > insights[j].Confidence
	})

	if raw, err := json.Marshal(insights); err == nil {
		g.cache.Set(ctx, cacheKey, raw, g.cacheTTL)
	}
	return insights, nil
}

func (g *Generator) latest(ctx context.Context, tenantID, metricKey string) *kpi.Metric {
	m, err := g.metrics.LatestByKey(ctx, tenantID, metricKey)
	if err != nil {
		log.Printf("latest metric %s (%s): %v", metricKey, tenantID, err)
		return nil
	}
	return m
}
