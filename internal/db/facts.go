package db

import (
	"context"
	"fmt"

	"gorm.io/gorm"

	"orderinsight/internal/kpi"
)

// factTimeColumn is the window column per fact source. Commission
// entries are windowed by when they were processed, everything else by
// when the row was created.
var factTimeColumn = map[string]string{
	"orders":             "created_at",
	"commission_entries": "processed_at",
	"campaigns":          "created_at",
	"restaurants":        "created_at",
}

// predicateOps maps closed predicate operators onto SQL. Only values
// of this map ever reach query text.
var predicateOps = map[kpi.CompareOp]string{
	kpi.CmpEQ:  "=",
	kpi.CmpNEQ: "<>",
	kpi.CmpLT:  "<",
	kpi.CmpLTE: "<=",
	kpi.CmpGT:  ">",
	kpi.CmpGTE: ">=",
}

// FactStore answers aggregate queries over the platform's fact tables.
// Every query runs in a transaction that pins the tenant on the
// connection via set_config, in addition to the explicit tenant_id
// predicate, so row-level security policies see the right tenant.
type FactStore struct {
	db *gorm.DB
}

func NewFactStore(db *gorm.DB) *FactStore {
	return &FactStore{db: db}
}

func (s *FactStore) withTenant(ctx context.Context, tenantID string, fn func(tx *gorm.DB) error) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Exec("SELECT set_config('app.current_tenant_id', ?, true)", tenantID).Error; err != nil {
			return err
		}
		return fn(tx)
	})
}

// scoped builds the base query for one source: tenant plus half-open
// window on the source's time column. Source and column identifiers
// are re-checked against the allow-list here even though validation
// already ran; the check is cheap and this is the last stop before SQL.
func scoped(tx *gorm.DB, tenantID, source string, w kpi.Window) (*gorm.DB, error) {
	timeCol, ok := factTimeColumn[source]
	if !ok || !kpi.AllowedSource(source) {
		return nil, fmt.Errorf("fact source %q not allow-listed", source)
	}
	q := tx.Table(source).
		Where("tenant_id = ?", tenantID).
		Where(timeCol+" >= ? AND "+timeCol+" < ?", w.Start, w.End)
	return q, nil
}

func applyFilter(q *gorm.DB, source string, filter *kpi.Predicate) (*gorm.DB, error) {
	if filter == nil {
		return q, nil
	}
	if !kpi.AllowedColumn(source, filter.Column) {
		return nil, fmt.Errorf("fact column %s.%s not allow-listed", source, filter.Column)
	}
	op, ok := predicateOps[filter.Op]
	if !ok {
		return nil, fmt.Errorf("unknown predicate operator %q", filter.Op)
	}
	return q.Where(filter.Column+" "+op+" ?", filter.Value), nil
}

func (s *FactStore) SumField(ctx context.Context, tenantID, source, column string, w kpi.Window) (float64, error) {
	if !kpi.AllowedColumn(source, column) {
		return 0, fmt.Errorf("fact column %s.%s not allow-listed", source, column)
	}
	var out float64
	err := s.withTenant(ctx, tenantID, func(tx *gorm.DB) error {
		q, err := scoped(tx, tenantID, source, w)
		if err != nil {
			return err
		}
		return q.Select("COALESCE(SUM(" + column + "), 0)").Scan(&out).Error
	})
	return out, err
}

func (s *FactStore) AverageField(ctx context.Context, tenantID, source, column string, w kpi.Window) (float64, error) {
	if !kpi.AllowedColumn(source, column) {
		return 0, fmt.Errorf("fact column %s.%s not allow-listed", source, column)
	}
	var out float64
	err := s.withTenant(ctx, tenantID, func(tx *gorm.DB) error {
		q, err := scoped(tx, tenantID, source, w)
		if err != nil {
			return err
		}
		return q.Select("COALESCE(AVG(" + column + "), 0)").Scan(&out).Error
	})
	return out, err
}

func (s *FactStore) CountRows(ctx context.Context, tenantID, source string, filter *kpi.Predicate, w kpi.Window) (int64, error) {
	var out int64
	err := s.withTenant(ctx, tenantID, func(tx *gorm.DB) error {
		q, err := scoped(tx, tenantID, source, w)
		if err != nil {
			return err
		}
		if q, err = applyFilter(q, source, filter); err != nil {
			return err
		}
		return q.Count(&out).Error
	})
	return out, err
}

func (s *FactStore) CountDistinct(ctx context.Context, tenantID, source, column string, filter *kpi.Predicate, w kpi.Window) (int64, error) {
	if !kpi.AllowedColumn(source, column) {
		return 0, fmt.Errorf("fact column %s.%s not allow-listed", source, column)
	}
	var out int64
	err := s.withTenant(ctx, tenantID, func(tx *gorm.DB) error {
		q, err := scoped(tx, tenantID, source, w)
		if err != nil {
			return err
		}
		if q, err = applyFilter(q, source, filter); err != nil {
			return err
		}
		return q.Select("COUNT(DISTINCT " + column + ")").Scan(&out).Error
	})
	return out, err
}

func (s *FactStore) RepeatCustomerCount(ctx context.Context, tenantID string, w kpi.Window) (int64, error) {
	var out int64
	err := s.withTenant(ctx, tenantID, func(tx *gorm.DB) error {
		sub := tx.Table("orders").
			Select("customer_id").
			Where("tenant_id = ?", tenantID).
			Where("created_at >= ? AND created_at < ?", w.Start, w.End).
			Where("status = ?", "completed").
			Where("customer_id <> ''").
			Group("customer_id").
			Having("COUNT(*) > 1")
		return tx.Table("(?) AS repeat_customers", sub).Count(&out).Error
	})
	return out, err
}

func (s *FactStore) RestaurantRatingAverage(ctx context.Context, tenantID string) (float64, error) {
	var out float64
	err := s.withTenant(ctx, tenantID, func(tx *gorm.DB) error {
		return tx.Table("restaurants").
			Select("COALESCE(AVG(rating), 0)").
			Where("tenant_id = ?", tenantID).
			Where("status = ?", "active").
			Scan(&out).Error
	})
	return out, err
}

func (s *FactStore) AverageFulfillmentMinutes(ctx context.Context, tenantID string, w kpi.Window) (float64, error) {
	var out float64
	err := s.withTenant(ctx, tenantID, func(tx *gorm.DB) error {
		return tx.Table("orders").
			Select("COALESCE(AVG(EXTRACT(EPOCH FROM (fulfilled_at - created_at)) / 60), 0)").
			Where("tenant_id = ?", tenantID).
			Where("created_at >= ? AND created_at < ?", w.Start, w.End).
			Where("fulfilled_at IS NOT NULL").
			Scan(&out).Error
	})
	return out, err
}
