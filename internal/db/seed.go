package db

import (
	"encoding/json"
	"fmt"
	"log"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"orderinsight/internal/config"
	"orderinsight/internal/kpi"
)

// EnsureDefaultKPIs seeds the default KPI set for the configured seed
// tenant, plus a bearer key for it, so a fresh deployment has
// something to calculate. Existing rows are left untouched.
func EnsureDefaultKPIs(db *gorm.DB, cfg *config.Config) error {
	if cfg.SeedTenant == "" {
		return nil
	}

	for _, def := range kpi.DefaultRestaurantKPIs(cfg.SeedTenant) {
		var count int64
		if err := db.Model(&KPIDefinitionRow{}).
			Where("tenant_id = ? AND kpi_id = ?", def.TenantID, def.ID).
			Count(&count).Error; err != nil {
			return err
		}
		if count > 0 {
			continue
		}

		row, err := definitionToRow(&def)
		if err != nil {
			return fmt.Errorf("seed kpi %s: %w", def.ID, err)
		}
		if err := db.Create(row).Error; err != nil {
			return err
		}
	}

	return ensureSeedAPIKey(db, cfg.SeedTenant)
}

func definitionToRow(def *kpi.Definition) (*KPIDefinitionRow, error) {
	calc, err := json.Marshal(def.Calculation)
	if err != nil {
		return nil, err
	}
	row := &KPIDefinitionRow{
		KPIID:          def.ID,
		TenantID:       def.TenantID,
		Name:           def.Name,
		Category:       string(def.Category),
		MetricKey:      def.MetricKey,
		Unit:           string(def.Unit),
		Frequency:      string(def.Frequency),
		HigherIsBetter: def.HigherIsBetter,
		Active:         def.Active,
		Calculation:    datatypes.JSON(calc),
	}
	if def.Target != nil {
		target, err := json.Marshal(def.Target)
		if err != nil {
			return nil, err
		}
		row.Target = datatypes.JSON(target)
	}
	if len(def.Thresholds) > 0 {
		thresholds, err := json.Marshal(def.Thresholds)
		if err != nil {
			return nil, err
		}
		row.Thresholds = datatypes.JSON(thresholds)
	}
	return row, nil
}

func ensureSeedAPIKey(db *gorm.DB, tenantID string) error {
	var count int64
	if err := db.Model(&APIKey{}).Where("tenant_id = ?", tenantID).Count(&count).Error; err != nil {
		return err
	}
	if count > 0 {
		return nil
	}

	key := &APIKey{
		TenantID: tenantID,
		Name:     "seed",
		Key:      uuid.NewString(),
		Active:   true,
	}
	if err := db.Create(key).Error; err != nil {
		return err
	}
	log.Printf("seeded API key for tenant %s: %s", tenantID, key.Key)
	return nil
}
