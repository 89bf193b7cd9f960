package kpi

import (
	"math"
	"time"
)

// ScorecardResult is one KPI's contribution to a scorecard.
type ScorecardResult struct {
	KPIID        string   `json:"kpi_id"`
	KPIName      string   `json:"kpi_name"`
	Category     Category `json:"category"`
	CurrentValue float64  `json:"current_value"`
	TargetValue  *float64 `json:"target_value,omitempty"`
	Achievement  float64  `json:"achievement"`
	Score        int      `json:"score"`
	Trend        Trend    `json:"trend"`
	Status       Status   `json:"status"`
}

// Scorecard is a derived performance snapshot. It is recomputed from
// the latest metrics on demand and never authoritative state.
type Scorecard struct {
	TenantID       string               `json:"tenant_id"`
	Period         string               `json:"period"`
	OverallScore   float64              `json:"overall_score"`
	CategoryScores map[Category]float64 `json:"category_scores"`
	Results        []ScorecardResult    `json:"kpi_results"`
	GeneratedAt    time.Time            `json:"generated_at"`
}

// ScoreMetric computes the 0-100 performance score for one metric:
// neutral 50, raised into the 90s when the target is met (bonus capped
// at +10 for exceeding by up to 100%), scaled down proportionally below
// target with a floor of 10, clamped by threshold level, then nudged
// by trend.
func ScoreMetric(m *Metric) int {
	score := 50.0

	if m.TargetAchievement != nil {
		a := *m.TargetAchievement
		if a >= 100 {
			score = 90 + math.Min(10, (a-100)/10)
		} else {
			score = math.Max(10, a*0.8)
		}
	}

	switch m.Level {
	case LevelExcellent:
		score = math.Max(score, 90)
	case LevelGood:
		score = math.Max(score, 70)
	case LevelWarning:
		score = math.Min(score, 50)
	case LevelCritical:
		score = math.Min(score, 20)
	}

	switch m.Trend {
	case TrendImproving:
		score += 5
	case TrendDeclining:
		score -= 5
	}

	return int(math.Round(math.Max(0, math.Min(100, score))))
}

// DetermineStatus buckets a target achievement percentage.
func DetermineStatus(achievement float64) Status {
	switch {
	case achievement > 100:
		return StatusExceeded
	case achievement >= 90:
		return StatusOnTrack
	case achievement >= 70:
		return StatusAtRisk
	default:
		return StatusBehind
	}
}

// BuildScorecard aggregates per-KPI results into category and overall
// scores. KPIs without a metric (failed or never computed) are
// excluded entirely; they never pull an average toward zero. Categories
// with no eligible KPIs are likewise excluded from the overall mean.
func BuildScorecard(tenantID, period string, defs []Definition, latest map[string]*Metric) *Scorecard {
	card := &Scorecard{
		TenantID:       tenantID,
		Period:         period,
		CategoryScores: map[Category]float64{},
		Results:        []ScorecardResult{},
		GeneratedAt:    time.Now().UTC(),
	}

	catTotals := map[Category]float64{}
	catCounts := map[Category]int{}

	for i := range defs {
		def := &defs[i]
		m := latest[def.ID]
		if m == nil {
			continue
		}

		achievement := 0.0
		if m.TargetAchievement != nil {
			achievement = *m.TargetAchievement
		}
		score := ScoreMetric(m)

		var targetValue *float64
		if def.Target != nil {
			v := def.Target.Value
			targetValue = &v
		}

		card.Results = append(card.Results, ScorecardResult{
			KPIID:        def.ID,
			KPIName:      def.Name,
			Category:     def.Category,
			CurrentValue: m.Value,
			TargetValue:  targetValue,
			Achievement:  achievement,
			Score:        score,
			Trend:        m.Trend,
			Status:       DetermineStatus(achievement),
		})

		catTotals[def.Category] += float64(score)
		catCounts[def.Category]++
	}

	var overall float64
	for cat, total := range catTotals {
		avg := total / float64(catCounts[cat])
		card.CategoryScores[cat] = avg
		overall += avg
	}
	if len(card.CategoryScores) > 0 {
		overall /= float64(len(card.CategoryScores))
	}
	card.OverallScore = math.Max(0, math.Min(100, overall))

	return card
}
