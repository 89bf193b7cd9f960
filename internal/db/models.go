package db

import (
	"time"

	"gorm.io/datatypes"
)

// User represents an operator account that can call the admin surface.
// The bootstrap admin user (from env) will be created as a row in this
// table on startup.
type User struct {
	ID uint `gorm:"primaryKey"`

	CreatedAt time.Time
	UpdatedAt time.Time

	Username     string `gorm:"uniqueIndex;size:64;not null"`
	PasswordHash string `gorm:"size:255;not null"`

	// IsAdmin marks users that can trigger recomputes and manage
	// tenants. The bootstrap admin will have IsAdmin=true.
	IsAdmin bool `gorm:"default:false"`
}

// APIKey is a tenant-scoped bearer token. Every key belongs to exactly
// one tenant; the tenant id resolved from the key scopes every query
// made on behalf of the request.
type APIKey struct {
	ID uint `gorm:"primaryKey"`

	CreatedAt time.Time
	UpdatedAt time.Time

	// TenantID is the tenant every request with this key is scoped to.
	TenantID string `gorm:"index;size:64;not null"`

	// Name is a friendly identifier for this key (e.g. "reporting-svc").
	Name string `gorm:"size:128;not null"`

	// Key is the actual bearer token value.
	Key string `gorm:"uniqueIndex;size:255;not null"`

	// Active indicates whether this key is currently enabled.
	Active bool `gorm:"default:true"`
}

// KPIDefinitionRow stores one KPI definition. The calculation, target
// and threshold structures are kept as JSON so definitions can evolve
// without schema changes.
type KPIDefinitionRow struct {
	ID uint `gorm:"primaryKey"`

	CreatedAt time.Time
	UpdatedAt time.Time

	KPIID    string `gorm:"uniqueIndex:idx_kpi_def_unique,priority:2;size:64;not null"`
	TenantID string `gorm:"uniqueIndex:idx_kpi_def_unique,priority:1;index;size:64;not null"`

	Name        string `gorm:"size:128;not null"`
	Description string `gorm:"size:512"`
	Category    string `gorm:"size:32;index;not null"`
	MetricKey   string `gorm:"size:64;index;not null"`
	Unit        string `gorm:"size:32;not null"`
	Frequency   string `gorm:"size:16;not null"`

	// HigherIsBetter orients trend classification for this KPI.
	HigherIsBetter bool `gorm:"default:true"`
	Active         bool `gorm:"default:true"`

	Calculation datatypes.JSON `gorm:"type:json;not null"`
	Target      datatypes.JSON `gorm:"type:json"`
	Thresholds  datatypes.JSON `gorm:"type:json"`
}

// KPIMetricRow is one calculated metric value. The unique index on
// (tenant, kpi, timestamp) makes recalculation an upsert: the same
// window recomputed later overwrites rather than duplicates.
type KPIMetricRow struct {
	ID uint `gorm:"primaryKey"`

	CreatedAt time.Time
	UpdatedAt time.Time

	TenantID  string    `gorm:"uniqueIndex:idx_kpi_metric_unique,priority:1;size:64;not null"`
	KPIID     string    `gorm:"uniqueIndex:idx_kpi_metric_unique,priority:2;size:64;not null"`
	Timestamp time.Time `gorm:"uniqueIndex:idx_kpi_metric_unique,priority:3;not null"` // window start (UTC)

	// MetricKey is denormalized from the definition so daily series
	// can be read without a join.
	MetricKey string `gorm:"index;size:64;not null"`
	Unit      string `gorm:"size:32"`

	Value             float64
	PreviousValue     *float64
	Change            *float64
	ChangePct         *float64
	Trend             string `gorm:"size:16"`
	Level             string `gorm:"size:16"`
	Status            string `gorm:"size:16"`
	TargetAchievement *float64

	Metadata datatypes.JSONMap `gorm:"type:json"`
}

// KPIAlertRow is one threshold alert. At most one open row exists per
// (tenant, kpi, level); re-breaching an already-alerted level updates
// LastEvaluatedAt on the open row instead of inserting a duplicate.
type KPIAlertRow struct {
	ID uint `gorm:"primaryKey"`

	CreatedAt time.Time
	UpdatedAt time.Time

	AlertID  string `gorm:"uniqueIndex;size:64;not null"`
	TenantID string `gorm:"index:idx_kpi_alert_lookup,priority:1;size:64;not null"`
	KPIID    string `gorm:"index:idx_kpi_alert_lookup,priority:2;size:64;not null"`

	Level    string `gorm:"size:16;not null"`
	Severity string `gorm:"size:16;not null"`
	Message  string `gorm:"size:512;not null"`

	Value          float64
	ThresholdValue float64

	Open            bool `gorm:"index;default:true"`
	Acknowledged    bool `gorm:"default:false"`
	LastEvaluatedAt time.Time
	ClosedAt        *time.Time
}

// AnomalyRow stores one detected metric anomaly.
type AnomalyRow struct {
	ID uint `gorm:"primaryKey"`

	CreatedAt time.Time

	AnomalyID string `gorm:"uniqueIndex;size:64;not null"`
	TenantID  string `gorm:"index;size:64;not null"`
	Metric    string `gorm:"index;size:64;not null"`

	Type     string `gorm:"size:32;not null"`
	Severity string `gorm:"size:16;not null"`

	Score     float64
	Observed  float64
	Expected  float64
	Deviation float64
	Message   string `gorm:"size:512"`

	DetectedAt time.Time `gorm:"index;not null"`
}

// Order is a fact row from the ordering pipeline. Amounts are integer
// cents; conversion to display currency happens at the API edge only.
type Order struct {
	ID uint `gorm:"primaryKey"`

	CreatedAt time.Time `gorm:"index"`
	UpdatedAt time.Time

	TenantID     string `gorm:"index;size:64;not null"`
	RestaurantID string `gorm:"index;size:64"`
	CustomerID   string `gorm:"index;size:64"`

	Status           string `gorm:"size:32;index;not null"`
	TotalAmountCents int64  `gorm:"not null"`

	// FulfilledAt is set when the order reaches a terminal completed
	// state; nil for cancelled or in-flight orders.
	FulfilledAt *time.Time
}

// CommissionEntry is a fact row from commission processing.
type CommissionEntry struct {
	ID uint `gorm:"primaryKey"`

	CreatedAt time.Time

	TenantID     string `gorm:"index;size:64;not null"`
	OrderID      string `gorm:"index;size:64"`
	RestaurantID string `gorm:"index;size:64"`

	Status           string    `gorm:"size:32;index;not null"`
	CommissionCents  int64     `gorm:"not null"`
	PlatformFeeCents int64     `gorm:"not null"`
	ProcessedAt      time.Time `gorm:"index"`
}

// Campaign is a fact row from the marketing pipeline.
type Campaign struct {
	ID uint `gorm:"primaryKey"`

	CreatedAt time.Time `gorm:"index"`
	UpdatedAt time.Time

	TenantID   string `gorm:"index;size:64;not null"`
	CampaignID string `gorm:"index;size:64"`

	Status                 string `gorm:"size:32;index;not null"`
	BudgetSpentCents       int64  `gorm:"not null"`
	Impressions            int64
	Clicks                 int64
	Conversions            int64
	RevenueAttributedCents int64 `gorm:"not null"`
}

// Restaurant is a fact row describing a partner restaurant.
type Restaurant struct {
	ID uint `gorm:"primaryKey"`

	CreatedAt time.Time `gorm:"index"`
	UpdatedAt time.Time

	TenantID     string `gorm:"index;size:64;not null"`
	RestaurantID string `gorm:"uniqueIndex;size:64;not null"`

	Status string  `gorm:"size:32;index;not null"`
	Rating float64 `gorm:"not null;default:0"`
}
