package db

import (
	"context"
	"errors"
	"time"

	"gorm.io/datatypes"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"orderinsight/internal/anomaly"
	"orderinsight/internal/forecast"
	"orderinsight/internal/kpi"
)

// Store persists computed metrics, alerts and anomalies, and serves
// the read queries the forecasting and insight layers run against
// stored history.
type Store struct {
	db *gorm.DB
}

func NewStore(db *gorm.DB) *Store {
	return &Store{db: db}
}

// UpsertMetric writes one metric, replacing any previous value for the
// same (tenant, kpi, window start). Recomputing a window is idempotent.
func (s *Store) UpsertMetric(ctx context.Context, m *kpi.Metric) error {
	row := KPIMetricRow{
		TenantID:          m.TenantID,
		KPIID:             m.KPIID,
		Timestamp:         m.Timestamp,
		MetricKey:         m.MetricKey,
		Unit:              string(m.Unit),
		Value:             m.Value,
		PreviousValue:     m.Previous,
		Trend:             string(m.Trend),
		Level:             string(m.Level),
		TargetAchievement: m.TargetAchievement,
		Metadata:          datatypes.JSONMap(m.Metadata),
	}
	change, changePct := m.Change, m.ChangePct
	row.Change = &change
	row.ChangePct = &changePct
	if m.TargetAchievement != nil {
		row.Status = string(kpi.DetermineStatus(*m.TargetAchievement))
	}

	return s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "tenant_id"}, {Name: "kpi_id"}, {Name: "timestamp"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"metric_key", "unit", "value", "previous_value", "change", "change_pct",
			"trend", "level", "status", "target_achievement", "metadata", "updated_at",
		}),
	}).Create(&row).Error
}

// LatestMetric returns the most recent stored metric for one KPI, or
// nil when nothing has been computed yet.
func (s *Store) LatestMetric(ctx context.Context, tenantID, kpiID string) (*kpi.Metric, error) {
	var row KPIMetricRow
	err := s.db.WithContext(ctx).
		Where("tenant_id = ? AND kpi_id = ?", tenantID, kpiID).
		Order("timestamp DESC").
		First(&row).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return metricFromRow(&row), nil
}

// LatestByKey returns the most recent stored metric for a metric key,
// regardless of which KPI definition produced it.
func (s *Store) LatestByKey(ctx context.Context, tenantID, metricKey string) (*kpi.Metric, error) {
	var row KPIMetricRow
	err := s.db.WithContext(ctx).
		Where("tenant_id = ? AND metric_key = ?", tenantID, metricKey).
		Order("timestamp DESC").
		First(&row).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return metricFromRow(&row), nil
}

func metricFromRow(row *KPIMetricRow) *kpi.Metric {
	m := &kpi.Metric{
		KPIID:             row.KPIID,
		TenantID:          row.TenantID,
		MetricKey:         row.MetricKey,
		Unit:              kpi.Unit(row.Unit),
		Value:             row.Value,
		Previous:          row.PreviousValue,
		Trend:             kpi.Trend(row.Trend),
		Level:             kpi.ThresholdLevel(row.Level),
		TargetAchievement: row.TargetAchievement,
		Timestamp:         row.Timestamp,
		Metadata:          map[string]any(row.Metadata),
	}
	if row.Change != nil {
		m.Change = *row.Change
	}
	if row.ChangePct != nil {
		m.ChangePct = *row.ChangePct
	}
	return m
}

// DailySeries returns the per-day metric values the forecaster trains
// on, oldest first. Multiple windows landing on the same day collapse
// to their mean.
func (s *Store) DailySeries(ctx context.Context, tenantID, metricKey string, from, to time.Time) ([]forecast.Point, error) {
	var points []forecast.Point
	err := s.db.WithContext(ctx).
		Model(&KPIMetricRow{}).
		Select("DATE_TRUNC('day', timestamp) AS date, AVG(value) AS value").
		Where("tenant_id = ? AND metric_key = ?", tenantID, metricKey).
		Where("timestamp >= ? AND timestamp < ?", from, to).
		Group("DATE_TRUNC('day', timestamp)").
		Order("date ASC").
		Scan(&points).Error
	return points, err
}

// UpsertOpenAlert refreshes the open alert for (tenant, kpi, level) if
// one exists, otherwise inserts a new row. The caller's alert ID is
// rewritten to the existing row's ID on refresh, so callers always see
// the canonical alert identity.
func (s *Store) UpsertOpenAlert(ctx context.Context, a *kpi.Alert) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var existing KPIAlertRow
		err := tx.Where("tenant_id = ? AND kpi_id = ? AND level = ? AND open = ?",
			a.TenantID, a.KPIID, string(a.Level), true).
			First(&existing).Error
		if err == nil {
			a.ID = existing.AlertID
			a.CreatedAt = existing.CreatedAt
			a.Acknowledged = existing.Acknowledged
			return tx.Model(&existing).Updates(map[string]any{
				"message":           a.Message,
				"value":             a.CurrentValue,
				"threshold_value":   a.ThresholdValue,
				"last_evaluated_at": a.LastEvaluatedAt,
			}).Error
		}
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return err
		}

		row := KPIAlertRow{
			AlertID:         a.ID,
			TenantID:        a.TenantID,
			KPIID:           a.KPIID,
			Level:           string(a.Level),
			Severity:        a.Severity,
			Message:         a.Message,
			Value:           a.CurrentValue,
			ThresholdValue:  a.ThresholdValue,
			Open:            true,
			LastEvaluatedAt: a.LastEvaluatedAt,
		}
		return tx.Create(&row).Error
	})
}

// CloseAlertsExcept closes every open alert for the KPI whose level is
// not in keepOpen. A value back inside its thresholds closes out the
// alert trail automatically.
func (s *Store) CloseAlertsExcept(ctx context.Context, tenantID, kpiID string, keepOpen []kpi.ThresholdLevel) error {
	now := time.Now().UTC()
	q := s.db.WithContext(ctx).
		Model(&KPIAlertRow{}).
		Where("tenant_id = ? AND kpi_id = ? AND open = ?", tenantID, kpiID, true)
	if len(keepOpen) > 0 {
		levels := make([]string, 0, len(keepOpen))
		for _, l := range keepOpen {
			levels = append(levels, string(l))
		}
		q = q.Where("level NOT IN ?", levels)
	}
	return q.Updates(map[string]any{"open": false, "closed_at": now}).Error
}

// ListAlerts returns the tenant's alerts, open ones first, newest
// within each group. A nil acknowledged means no acknowledgement filter.
func (s *Store) ListAlerts(ctx context.Context, tenantID string, openOnly bool, acknowledged *bool, limit int) ([]kpi.Alert, error) {
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	q := s.db.WithContext(ctx).
		Where("tenant_id = ?", tenantID).
		Order("open DESC, last_evaluated_at DESC").
		Limit(limit)
	if openOnly {
		q = q.Where("open = ?", true)
	}
	if acknowledged != nil {
		q = q.Where("acknowledged = ?", *acknowledged)
	}

	var rows []KPIAlertRow
	if err := q.Find(&rows).Error; err != nil {
		return nil, err
	}

	alerts := make([]kpi.Alert, 0, len(rows))
	for i := range rows {
		alerts = append(alerts, alertFromRow(&rows[i]))
	}
	return alerts, nil
}

// AcknowledgeAlert marks one alert acknowledged. Returns nil, nil when
// the alert does not belong to the tenant.
func (s *Store) AcknowledgeAlert(ctx context.Context, tenantID, alertID string) (*kpi.Alert, error) {
	var row KPIAlertRow
	err := s.db.WithContext(ctx).
		Where("tenant_id = ? AND alert_id = ?", tenantID, alertID).
		First(&row).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	if !row.Acknowledged {
		if err := s.db.WithContext(ctx).Model(&row).Update("acknowledged", true).Error; err != nil {
			return nil, err
		}
		row.Acknowledged = true
	}
	a := alertFromRow(&row)
	return &a, nil
}

func alertFromRow(row *KPIAlertRow) kpi.Alert {
	return kpi.Alert{
		ID:              row.AlertID,
		KPIID:           row.KPIID,
		TenantID:        row.TenantID,
		Level:           kpi.ThresholdLevel(row.Level),
		Severity:        row.Severity,
		Message:         row.Message,
		CurrentValue:    row.Value,
		ThresholdValue:  row.ThresholdValue,
		Acknowledged:    row.Acknowledged,
		Open:            row.Open,
		CreatedAt:       row.CreatedAt,
		LastEvaluatedAt: row.LastEvaluatedAt,
		ClosedAt:        row.ClosedAt,
	}
}

// SaveAnomaly records one detected anomaly.
func (s *Store) SaveAnomaly(ctx context.Context, a *anomaly.Anomaly) error {
	row := AnomalyRow{
		AnomalyID:  a.ID,
		TenantID:   a.TenantID,
		Metric:     a.Metric,
		Type:       a.Type,
		Severity:   string(a.Severity),
		Score:      a.Score,
		Observed:   a.Observed,
		Expected:   a.Expected,
		Deviation:  a.Deviation,
		Message:    a.Message,
		DetectedAt: a.DetectedAt,
	}
	return s.db.WithContext(ctx).Create(&row).Error
}

// ListAnomalies returns recent anomalies for the tenant, newest first.
func (s *Store) ListAnomalies(ctx context.Context, tenantID string, since time.Time, limit int) ([]anomaly.Anomaly, error) {
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	q := s.db.WithContext(ctx).
		Where("tenant_id = ?", tenantID).
		Order("detected_at DESC").
		Limit(limit)
	if !since.IsZero() {
		q = q.Where("detected_at >= ?", since)
	}

	var rows []AnomalyRow
	if err := q.Find(&rows).Error; err != nil {
		return nil, err
	}

	out := make([]anomaly.Anomaly, 0, len(rows))
	for _, row := range rows {
		out = append(out, anomaly.Anomaly{
			ID:         row.AnomalyID,
			TenantID:   row.TenantID,
			Metric:     row.Metric,
			Type:       row.Type,
			Severity:   anomaly.Severity(row.Severity),
			Score:      row.Score,
			Observed:   row.Observed,
			Expected:   row.Expected,
			Deviation:  row.Deviation,
			Message:    row.Message,
			DetectedAt: row.DetectedAt,
		})
	}
	return out, nil
}
