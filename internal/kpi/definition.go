package kpi

import (
	"errors"
	"fmt"
	"time"
)

// ErrValidation marks a malformed KPI definition (unknown calculation
// type, missing numerator, column outside the allow-list, and so on).
var ErrValidation = errors.New("invalid KPI definition")

type Category string

const (
	CategoryFinancial    Category = "financial"
	CategoryOperational  Category = "operational"
	CategoryCustomer     Category = "customer"
	CategoryMarketing    Category = "marketing"
	CategoryQuality      Category = "quality"
	CategoryEfficiency   Category = "efficiency"
	CategoryGrowth       Category = "growth"
	CategorySatisfaction Category = "satisfaction"
)

type Unit string

const (
	UnitCurrency   Unit = "currency"
	UnitPercentage Unit = "percentage"
	UnitNumber     Unit = "number"
	UnitRatio      Unit = "ratio"
	UnitScore      Unit = "score"
	UnitTime       Unit = "time"
)

type Frequency string

const (
	FrequencyRealTime Frequency = "real_time"
	FrequencyHourly   Frequency = "hourly"
	FrequencyDaily    Frequency = "daily"
	FrequencyWeekly   Frequency = "weekly"
	FrequencyMonthly  Frequency = "monthly"
)

type CalcType string

const (
	CalcSum        CalcType = "sum"
	CalcAverage    CalcType = "average"
	CalcCount      CalcType = "count"
	CalcPercentage CalcType = "percentage"
	CalcRatio      CalcType = "ratio"
	CalcCustom     CalcType = "custom"
)

type AggregationWindow string

const (
	WindowDaily   AggregationWindow = "daily"
	WindowWeekly  AggregationWindow = "weekly"
	WindowMonthly AggregationWindow = "monthly"
)

type ThresholdLevel string

const (
	LevelCritical  ThresholdLevel = "critical"
	LevelWarning   ThresholdLevel = "warning"
	LevelGood      ThresholdLevel = "good"
	LevelExcellent ThresholdLevel = "excellent"
)

type Operator string

const (
	OpLT      Operator = "lt"
	OpLTE     Operator = "lte"
	OpGT      Operator = "gt"
	OpGTE     Operator = "gte"
	OpEQ      Operator = "eq"
	OpBetween Operator = "between"
)

type Trend string

const (
	TrendImproving Trend = "improving"
	TrendDeclining Trend = "declining"
	TrendStable    Trend = "stable"
)

type Status string

const (
	StatusOnTrack  Status = "on_track"
	StatusAtRisk   Status = "at_risk"
	StatusBehind   Status = "behind"
	StatusExceeded Status = "exceeded"
)

// CompareOp is the comparison operator of a row predicate inside a
// calculation. It is deliberately smaller than Operator: predicates
// filter fact rows, thresholds classify computed values.
type CompareOp string

const (
	CmpEQ  CompareOp = "eq"
	CmpNEQ CompareOp = "neq"
	CmpLT  CompareOp = "lt"
	CmpLTE CompareOp = "lte"
	CmpGT  CompareOp = "gt"
	CmpGTE CompareOp = "gte"
)

// Predicate is a single allow-listed row filter (column op value).
// Values travel as strings and are always bound as query parameters;
// only the column name reaches SQL text, and only after the allow-list
// check.
type Predicate struct {
	Column string    `json:"column"`
	Op     CompareOp `json:"op"`
	Value  string    `json:"value"`
}

// Expr is one side of a calculation: an allow-listed column to
// aggregate, or (for count/percentage) an optional row predicate.
type Expr struct {
	Column string     `json:"column,omitempty"`
	Filter *Predicate `json:"filter,omitempty"`
}

// Calculation is the closed expression model of a KPI. Free-form SQL
// fragments are not representable here; every identifier must pass the
// fact schema allow-list.
type Calculation struct {
	Type        CalcType          `json:"type"`
	Source      string            `json:"source"`
	Numerator   *Expr             `json:"numerator,omitempty"`
	Denominator *Expr             `json:"denominator,omitempty"`
	Window      AggregationWindow `json:"window"`

	// Custom names the registered calculator for type "custom".
	Custom string `json:"custom,omitempty"`
}

type Target struct {
	Value  float64 `json:"value"`
	Period string  `json:"period"`
}

type Threshold struct {
	Level        ThresholdLevel `json:"level"`
	Operator     Operator       `json:"operator"`
	Value        float64        `json:"value"`
	SecondValue  *float64       `json:"second_value,omitempty"`
	AlertEnabled bool           `json:"alert_enabled"`
}

// Definition is a configured KPI. Definitions are created by an
// external admin workflow and read-only to this core.
type Definition struct {
	ID        string
	TenantID  string
	Name      string
	MetricKey string
	Category  Category
	Unit      Unit

	Calculation Calculation
	Target      *Target
	Thresholds  []Threshold
	Frequency   Frequency

	// HigherIsBetter drives trend and insight polarity. Cost, latency
	// and cancellation style KPIs set it false.
	HigherIsBetter bool

	Active bool
}

// Metric is an immutable point-in-time calculation result. For
// currency KPIs Value is in integer minor units (cents); conversion to
// decimal currency happens at presentation time only.
type Metric struct {
	KPIID     string         `json:"kpi_id"`
	TenantID  string         `json:"tenant_id"`
	MetricKey string         `json:"metric_key"`
	Unit      Unit           `json:"unit"`
	Value     float64        `json:"value"`
	Previous  *float64       `json:"previous_value,omitempty"`
	Change    float64        `json:"change"`
	ChangePct float64        `json:"change_percent"`
	Trend     Trend          `json:"trend"`
	Level     ThresholdLevel `json:"threshold"`

	// TargetAchievement is Value/Target*100, nil when the KPI has no target.
	TargetAchievement *float64 `json:"target_achievement,omitempty"`

	Timestamp time.Time      `json:"timestamp"`
	Metadata  map[string]any `json:"metadata,omitempty"`
}

// Alert is an open or closed threshold breach. At most one open alert
// exists per (kpi, level); re-evaluations refresh it instead of
// creating duplicates.
type Alert struct {
	ID              string         `json:"id"`
	KPIID           string         `json:"kpi_id"`
	KPIName         string         `json:"kpi_name"`
	TenantID        string         `json:"tenant_id"`
	Level           ThresholdLevel `json:"level"`
	Severity        string         `json:"severity"`
	Message         string         `json:"message"`
	CurrentValue    float64        `json:"current_value"`
	ThresholdValue  float64        `json:"threshold_value"`
	Acknowledged    bool           `json:"acknowledged"`
	Open            bool           `json:"open"`
	CreatedAt       time.Time      `json:"created_at"`
	LastEvaluatedAt time.Time      `json:"last_evaluated_at"`
	ClosedAt        *time.Time     `json:"closed_at,omitempty"`
}

// factColumns is the allow-list of fact sources and their queryable
// columns. Anything outside this map is rejected at validation time,
// before a definition ever reaches query building.
var factColumns = map[string]map[string]bool{
	"orders": {
		"total_amount_cents": true,
		"status":             true,
		"customer_id":        true,
		"restaurant_id":      true,
	},
	"commission_entries": {
		"commission_cents":   true,
		"platform_fee_cents": true,
		"status":             true,
	},
	"campaigns": {
		"budget_spent_cents":       true,
		"impressions":              true,
		"clicks":                   true,
		"conversions":              true,
		"revenue_attributed_cents": true,
		"status":                   true,
	},
	"restaurants": {
		"rating": true,
		"status": true,
	},
}

// AllowedColumn reports whether source.column is part of the fact
// schema allow-list. The fact store re-checks this before building SQL.
func AllowedColumn(source, column string) bool {
	cols, ok := factColumns[source]
	return ok && cols[column]
}

// AllowedSource reports whether the fact source table is queryable.
func AllowedSource(source string) bool {
	_, ok := factColumns[source]
	return ok
}

func (p *Predicate) validate(source string) error {
	if p == nil {
		return nil
	}
	switch p.Op {
	case CmpEQ, CmpNEQ, CmpLT, CmpLTE, CmpGT, CmpGTE:
	default:
		return fmt.Errorf("%w: unknown predicate operator %q", ErrValidation, p.Op)
	}
	if !AllowedColumn(source, p.Column) {
		return fmt.Errorf("%w: predicate column %s.%s not allow-listed", ErrValidation, source, p.Column)
	}
	return nil
}

func (e *Expr) validateColumn(source string) error {
	if e == nil || e.Column == "" {
		return fmt.Errorf("%w: missing numerator column", ErrValidation)
	}
	if !AllowedColumn(source, e.Column) {
		return fmt.Errorf("%w: column %s.%s not allow-listed", ErrValidation, source, e.Column)
	}
	return nil
}

// Validate checks a definition against the closed expression model.
// Invalid definitions are skipped (and recorded) during batch
// calculation; they never reach the fact store.
func (d *Definition) Validate() error {
	if d.ID == "" || d.TenantID == "" {
		return fmt.Errorf("%w: missing id or tenant", ErrValidation)
	}
	if d.MetricKey == "" {
		return fmt.Errorf("%w: missing metric key", ErrValidation)
	}

	c := d.Calculation
	switch c.Window {
	case WindowDaily, WindowWeekly, WindowMonthly, "":
	default:
		return fmt.Errorf("%w: unknown aggregation window %q", ErrValidation, c.Window)
	}

	if c.Type == CalcCustom {
		if c.Custom == "" {
			return fmt.Errorf("%w: custom calculation without calculator name", ErrValidation)
		}
		return nil
	}

	if !AllowedSource(c.Source) {
		return fmt.Errorf("%w: unknown fact source %q", ErrValidation, c.Source)
	}

	switch c.Type {
	case CalcSum, CalcAverage:
		if err := c.Numerator.validateColumn(c.Source); err != nil {
			return err
		}
	case CalcCount:
		if c.Numerator != nil {
			if err := c.Numerator.Filter.validate(c.Source); err != nil {
				return err
			}
		}
	case CalcPercentage:
		if c.Numerator == nil || c.Numerator.Filter == nil {
			return fmt.Errorf("%w: percentage requires a numerator predicate", ErrValidation)
		}
		if err := c.Numerator.Filter.validate(c.Source); err != nil {
			return err
		}
		if c.Denominator != nil {
			if err := c.Denominator.Filter.validate(c.Source); err != nil {
				return err
			}
		}
	case CalcRatio:
		if err := c.Numerator.validateColumn(c.Source); err != nil {
			return err
		}
		if c.Denominator == nil || c.Denominator.Column == "" {
			return fmt.Errorf("%w: ratio requires a denominator column", ErrValidation)
		}
		if err := c.Denominator.validateColumn(c.Source); err != nil {
			return err
		}
	default:
		return fmt.Errorf("%w: unknown calculation type %q", ErrValidation, c.Type)
	}

	for i := range d.Thresholds {
		t := &d.Thresholds[i]
		switch t.Operator {
		case OpLT, OpLTE, OpGT, OpGTE, OpEQ:
		case OpBetween:
			if t.SecondValue == nil {
				return fmt.Errorf("%w: between threshold requires second value", ErrValidation)
			}
		default:
			return fmt.Errorf("%w: unknown threshold operator %q", ErrValidation, t.Operator)
		}
	}

	return nil
}
