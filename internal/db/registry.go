package db

import (
	"context"
	"encoding/json"
	"fmt"
	"log"

	"gorm.io/gorm"

	"orderinsight/internal/kpi"
)

// Registry reads KPI definitions out of the database and hands them to
// the engine as domain values. Rows with malformed JSON are skipped
// with a log line; one broken definition never hides the rest.
type Registry struct {
	db *gorm.DB
}

func NewRegistry(db *gorm.DB) *Registry {
	return &Registry{db: db}
}

func (r *Registry) ActiveDefinitions(ctx context.Context, tenantID string) ([]kpi.Definition, error) {
	var rows []KPIDefinitionRow
	err := r.db.WithContext(ctx).
		Where("tenant_id = ? AND active = ?", tenantID, true).
		Order("kpi_id ASC").
		Find(&rows).Error
	if err != nil {
		return nil, err
	}

	defs := make([]kpi.Definition, 0, len(rows))
	for i := range rows {
		def, err := definitionFromRow(&rows[i])
		if err != nil {
			log.Printf("kpi definition %s (%s): %v", rows[i].KPIID, tenantID, err)
			continue
		}
		defs = append(defs, *def)
	}
	return defs, nil
}

func (r *Registry) TenantIDs(ctx context.Context) ([]string, error) {
	var tenants []string
	err := r.db.WithContext(ctx).
		Model(&KPIDefinitionRow{}).
		Where("active = ?", true).
		Distinct("tenant_id").
		Order("tenant_id ASC").
		Pluck("tenant_id", &tenants).Error
	return tenants, err
}

func definitionFromRow(row *KPIDefinitionRow) (*kpi.Definition, error) {
	def := &kpi.Definition{
		ID:             row.KPIID,
		TenantID:       row.TenantID,
		Name:           row.Name,
		MetricKey:      row.MetricKey,
		Category:       kpi.Category(row.Category),
		Unit:           kpi.Unit(row.Unit),
		Frequency:      kpi.Frequency(row.Frequency),
		HigherIsBetter: row.HigherIsBetter,
		Active:         row.Active,
	}

	if err := json.Unmarshal(row.Calculation, &def.Calculation); err != nil {
		return nil, fmt.Errorf("decode calculation: %w", err)
	}
	if len(row.Target) > 0 {
		var target kpi.Target
		if err := json.Unmarshal(row.Target, &target); err != nil {
			return nil, fmt.Errorf("decode target: %w", err)
		}
		if target.Value != 0 {
			def.Target = &target
		}
	}
	if len(row.Thresholds) > 0 {
		if err := json.Unmarshal(row.Thresholds, &def.Thresholds); err != nil {
			return nil, fmt.Errorf("decode thresholds: %w", err)
		}
	}

	return def, nil
}
