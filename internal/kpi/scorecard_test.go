package kpi

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func achievementMetric(a float64, level ThresholdLevel, trend Trend) *Metric {
	return &Metric{TargetAchievement: &a, Level: level, Trend: trend}
}

func TestScoreMetricAchievement(t *testing.T) {
	// Level left unset so the pure achievement arithmetic is visible.
	// Exactly on target: 90 base, no bonus.
	assert.Equal(t, 90, ScoreMetric(achievementMetric(100, "", TrendStable)))

	// 150% of target: 90 + bonus of 5.
	assert.Equal(t, 95, ScoreMetric(achievementMetric(150, "", TrendStable)))

	// Overachievement bonus caps at +10.
	assert.Equal(t, 100, ScoreMetric(achievementMetric(300, "", TrendStable)))

	// 56.25% achievement scales to 45.
	assert.Equal(t, 45, ScoreMetric(achievementMetric(56.25, "", TrendStable)))

	// Below-target floor is 10.
	assert.Equal(t, 10, ScoreMetric(achievementMetric(5, "", TrendStable)))

	// No target at all: neutral 50.
	assert.Equal(t, 50, ScoreMetric(&Metric{Trend: TrendStable}))
}

func TestScoreMetricLevelClamps(t *testing.T) {
	// A critical level caps even a target-beating score at 20.
	assert.Equal(t, 20, ScoreMetric(achievementMetric(120, LevelCritical, TrendStable)))

	// A warning level caps at 50.
	assert.Equal(t, 50, ScoreMetric(achievementMetric(120, LevelWarning, TrendStable)))

	// A good level lifts a weak achievement to at least 70.
	assert.Equal(t, 70, ScoreMetric(achievementMetric(56.25, LevelGood, TrendStable)))

	// An excellent level lifts a mediocre achievement to at least 90.
	assert.Equal(t, 90, ScoreMetric(achievementMetric(60, LevelExcellent, TrendStable)))
}

func TestScoreMetricTrendNudge(t *testing.T) {
	base := ScoreMetric(achievementMetric(80, "", TrendStable))
	assert.Equal(t, base+5, ScoreMetric(achievementMetric(80, "", TrendImproving)))
	assert.Equal(t, base-5, ScoreMetric(achievementMetric(80, "", TrendDeclining)))
}

func TestScoreMetricBounds(t *testing.T) {
	// Improving on top of a capped bonus cannot exceed 100.
	assert.Equal(t, 100, ScoreMetric(achievementMetric(300, "", TrendImproving)))
}

func TestDetermineStatusBoundaries(t *testing.T) {
	assert.Equal(t, StatusExceeded, DetermineStatus(100.01))
	assert.Equal(t, StatusOnTrack, DetermineStatus(100))
	assert.Equal(t, StatusOnTrack, DetermineStatus(90))
	assert.Equal(t, StatusAtRisk, DetermineStatus(89.99))
	assert.Equal(t, StatusAtRisk, DetermineStatus(70))
	assert.Equal(t, StatusBehind, DetermineStatus(69.99))
}

func TestBuildScorecardSkipsMissingMetrics(t *testing.T) {
	defs := []Definition{
		{ID: "a", Name: "A", Category: CategoryFinancial},
		{ID: "b", Name: "B", Category: CategoryFinancial},
		{ID: "c", Name: "C", Category: CategoryOperational},
	}
	latest := map[string]*Metric{
		"a": achievementMetric(100, "", TrendStable), // 90
		// b never computed; it must not drag the average to zero
		"c": achievementMetric(56.25, "", TrendStable), // 45
	}

	card := BuildScorecard("t1", "2026-06", defs, latest)

	require.Len(t, card.Results, 2)
	assert.Equal(t, 90.0, card.CategoryScores[CategoryFinancial])
	assert.Equal(t, 45.0, card.CategoryScores[CategoryOperational])
	assert.InDelta(t, 67.5, card.OverallScore, 1e-9)
}

func TestBuildScorecardEmpty(t *testing.T) {
	card := BuildScorecard("t1", "2026-06", nil, nil)
	assert.Empty(t, card.Results)
	assert.Equal(t, 0.0, card.OverallScore)
}

func TestBuildScorecardResultStatus(t *testing.T) {
	defs := []Definition{{ID: "a", Name: "A", Category: CategoryFinancial, Target: &Target{Value: 200000}}}
	latest := map[string]*Metric{"a": achievementMetric(56.25, "", TrendStable)}

	card := BuildScorecard("t1", "2026-06", defs, latest)
	require.Len(t, card.Results, 1)
	assert.Equal(t, StatusBehind, card.Results[0].Status)
	assert.Equal(t, 45, card.Results[0].Score)
	require.NotNil(t, card.Results[0].TargetValue)
	assert.Equal(t, 200000.0, *card.Results[0].TargetValue)
}
