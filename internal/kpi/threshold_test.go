package kpi

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDetermineThresholdSeverityWins(t *testing.T) {
	// Overlapping thresholds: 85 meets warning (<95) and critical (<90).
	// The most severe matching level wins, regardless of declaration order.
	thresholds := []Threshold{
		{Level: LevelWarning, Operator: OpLT, Value: 95},
		{Level: LevelCritical, Operator: OpLT, Value: 90},
	}
	assert.Equal(t, LevelCritical, DetermineThreshold(85, thresholds))
	assert.Equal(t, LevelWarning, DetermineThreshold(92, thresholds))
	assert.Equal(t, LevelGood, DetermineThreshold(97, thresholds))

	reversed := []Threshold{thresholds[1], thresholds[0]}
	assert.Equal(t, LevelCritical, DetermineThreshold(85, reversed), "order of declaration must not matter")
}

func TestDetermineThresholdDefaultsToGood(t *testing.T) {
	assert.Equal(t, LevelGood, DetermineThreshold(50, nil))
	assert.Equal(t, LevelGood, DetermineThreshold(50, []Threshold{
		{Level: LevelExcellent, Operator: OpGT, Value: 90},
	}))
}

func TestDetermineThresholdBetweenInclusive(t *testing.T) {
	second := 80.0
	thresholds := []Threshold{
		{Level: LevelWarning, Operator: OpBetween, Value: 60, SecondValue: &second},
	}
	assert.Equal(t, LevelWarning, DetermineThreshold(60, thresholds))
	assert.Equal(t, LevelWarning, DetermineThreshold(80, thresholds))
	assert.Equal(t, LevelGood, DetermineThreshold(80.01, thresholds))
}

func TestIsBreached(t *testing.T) {
	assert.True(t, IsBreached(LevelCritical))
	assert.True(t, IsBreached(LevelWarning))
	assert.False(t, IsBreached(LevelGood))
	assert.False(t, IsBreached(LevelExcellent))
}

// fakeAlertStore records upserts and close calls in memory.
type fakeAlertStore struct {
	open   map[ThresholdLevel]*Alert
	closed int
}

func newFakeAlertStore() *fakeAlertStore {
	return &fakeAlertStore{open: map[ThresholdLevel]*Alert{}}
}

func (s *fakeAlertStore) UpsertOpenAlert(_ context.Context, a *Alert) error {
	if existing, ok := s.open[a.Level]; ok {
		a.ID = existing.ID
		a.CreatedAt = existing.CreatedAt
	}
	copied := *a
	s.open[a.Level] = &copied
	return nil
}

func (s *fakeAlertStore) CloseAlertsExcept(_ context.Context, _, _ string, keepOpen []ThresholdLevel) error {
	keep := map[ThresholdLevel]bool{}
	for _, l := range keepOpen {
		keep[l] = true
	}
	for level := range s.open {
		if !keep[level] {
			delete(s.open, level)
			s.closed++
		}
	}
	return nil
}

func breachingDef() *Definition {
	return &Definition{
		ID: "order_completion_rate", TenantID: "t1", Name: "Order Completion Rate",
		MetricKey: "order_completion_rate", Unit: UnitPercentage,
		Thresholds: []Threshold{
			{Level: LevelWarning, Operator: OpLT, Value: 95, AlertEnabled: true},
			{Level: LevelCritical, Operator: OpLT, Value: 90, AlertEnabled: true},
		},
	}
}

func TestEmitAlertsUpsertAndSuppress(t *testing.T) {
	store := newFakeAlertStore()
	def := breachingDef()

	m := &Metric{KPIID: def.ID, TenantID: def.TenantID, Value: 85}
	first, err := EmitAlerts(context.Background(), store, def, m)
	require.NoError(t, err)
	require.Len(t, first, 2, "85 breaches both warning and critical")

	// Still breaching: the open alerts refresh in place, same identity.
	again, err := EmitAlerts(context.Background(), store, def, m)
	require.NoError(t, err)
	require.Len(t, again, 2)
	for i := range first {
		assert.Equal(t, first[i].ID, again[i].ID, "re-breach must not mint a new alert")
	}
	assert.Zero(t, store.closed)
}

func TestEmitAlertsClosesRecoveredLevels(t *testing.T) {
	store := newFakeAlertStore()
	def := breachingDef()

	_, err := EmitAlerts(context.Background(), store, def, &Metric{KPIID: def.ID, TenantID: def.TenantID, Value: 85})
	require.NoError(t, err)
	require.Len(t, store.open, 2)

	// Recovered to 92: critical closes, warning stays open.
	_, err = EmitAlerts(context.Background(), store, def, &Metric{KPIID: def.ID, TenantID: def.TenantID, Value: 92})
	require.NoError(t, err)
	assert.Len(t, store.open, 1)
	assert.Contains(t, store.open, LevelWarning)
	assert.Equal(t, 1, store.closed)

	// Fully recovered: everything closes.
	_, err = EmitAlerts(context.Background(), store, def, &Metric{KPIID: def.ID, TenantID: def.TenantID, Value: 99})
	require.NoError(t, err)
	assert.Empty(t, store.open)
}

func TestEmitAlertsMessageNamesBothValues(t *testing.T) {
	store := newFakeAlertStore()
	def := breachingDef()
	def.Thresholds = def.Thresholds[:1] // warning lt 95 only

	alerts, err := EmitAlerts(context.Background(), store, def, &Metric{KPIID: def.ID, TenantID: def.TenantID, Value: 90})
	require.NoError(t, err)
	require.Len(t, alerts, 1)
	assert.Contains(t, alerts[0].Message, "90.00")
	assert.Contains(t, alerts[0].Message, "95.00")
}

func TestEmitAlertsRespectsAlertEnabled(t *testing.T) {
	store := newFakeAlertStore()
	def := breachingDef()
	def.Thresholds[0].AlertEnabled = false
	def.Thresholds[1].AlertEnabled = false

	alerts, err := EmitAlerts(context.Background(), store, def, &Metric{KPIID: def.ID, TenantID: def.TenantID, Value: 85})
	require.NoError(t, err)
	assert.Empty(t, alerts)
	assert.Empty(t, store.open)
}
