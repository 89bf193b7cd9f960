package kpi

// DefaultRestaurantKPIs is the standard KPI set installed for a seed
// tenant on first startup. Real deployments manage definitions through
// the external admin workflow; this set makes a fresh instance useful.
func DefaultRestaurantKPIs(tenantID string) []Definition {
	return []Definition{
		{
			ID:        "total_revenue",
			TenantID:  tenantID,
			Name:      "Total Revenue",
			MetricKey: "total_revenue",
			Category:  CategoryFinancial,
			Unit:      UnitCurrency,
			Calculation: Calculation{
				Type:      CalcSum,
				Source:    "orders",
				Numerator: &Expr{Column: "total_amount_cents"},
				Window:    WindowDaily,
			},
			Target: &Target{Value: 500000, Period: "daily"}, // cents
			Thresholds: []Threshold{
				{Level: LevelCritical, Operator: OpLT, Value: 100000, AlertEnabled: true},
				{Level: LevelWarning, Operator: OpLT, Value: 250000, AlertEnabled: true},
				{Level: LevelExcellent, Operator: OpGTE, Value: 500000},
			},
			Frequency:      FrequencyDaily,
			HigherIsBetter: true,
			Active:         true,
		},
		{
			ID:        "daily_orders",
			TenantID:  tenantID,
			Name:      "Daily Orders",
			MetricKey: "daily_orders",
			Category:  CategoryOperational,
			Unit:      UnitNumber,
			Calculation: Calculation{
				Type:   CalcCount,
				Source: "orders",
				Window: WindowDaily,
			},
			Target: &Target{Value: 200, Period: "daily"},
			Thresholds: []Threshold{
				{Level: LevelCritical, Operator: OpLT, Value: 20, AlertEnabled: true},
				{Level: LevelWarning, Operator: OpLT, Value: 80, AlertEnabled: true},
				{Level: LevelExcellent, Operator: OpGTE, Value: 200},
			},
			Frequency:      FrequencyDaily,
			HigherIsBetter: true,
			Active:         true,
		},
		{
			ID:        "average_order_value",
			TenantID:  tenantID,
			Name:      "Average Order Value",
			MetricKey: "average_order_value",
			Category:  CategoryFinancial,
			Unit:      UnitCurrency,
			Calculation: Calculation{
				Type:      CalcAverage,
				Source:    "orders",
				Numerator: &Expr{Column: "total_amount_cents"},
				Window:    WindowDaily,
			},
			Target:         &Target{Value: 3500, Period: "daily"}, // cents
			Frequency:      FrequencyDaily,
			HigherIsBetter: true,
			Active:         true,
		},
		{
			ID:        "order_completion_rate",
			TenantID:  tenantID,
			Name:      "Order Completion Rate",
			MetricKey: "order_completion_rate",
			Category:  CategoryOperational,
			Unit:      UnitPercentage,
			Calculation: Calculation{
				Type:      CalcPercentage,
				Source:    "orders",
				Numerator: &Expr{Filter: &Predicate{Column: "status", Op: CmpEQ, Value: "completed"}},
				Window:    WindowDaily,
			},
			Target: &Target{Value: 95, Period: "daily"},
			Thresholds: []Threshold{
				{Level: LevelCritical, Operator: OpLT, Value: 70, AlertEnabled: true},
				{Level: LevelWarning, Operator: OpLT, Value: 85, AlertEnabled: true},
				{Level: LevelExcellent, Operator: OpGTE, Value: 95},
			},
			Frequency:      FrequencyDaily,
			HigherIsBetter: true,
			Active:         true,
		},
		{
			ID:        "order_cancellation_rate",
			TenantID:  tenantID,
			Name:      "Order Cancellation Rate",
			MetricKey: "order_cancellation_rate",
			Category:  CategoryQuality,
			Unit:      UnitPercentage,
			Calculation: Calculation{
				Type:      CalcPercentage,
				Source:    "orders",
				Numerator: &Expr{Filter: &Predicate{Column: "status", Op: CmpEQ, Value: "cancelled"}},
				Window:    WindowDaily,
			},
			Thresholds: []Threshold{
				{Level: LevelCritical, Operator: OpGT, Value: 15, AlertEnabled: true},
				{Level: LevelWarning, Operator: OpGT, Value: 8, AlertEnabled: true},
				{Level: LevelExcellent, Operator: OpLTE, Value: 2},
			},
			Frequency: FrequencyDaily,
			// A rising cancellation rate is a decline, not an improvement.
			HigherIsBetter: false,
			Active:         true,
		},
		{
			ID:        "campaign_roas",
			TenantID:  tenantID,
			Name:      "Return on Ad Spend",
			MetricKey: "campaign_roas",
			Category:  CategoryMarketing,
			Unit:      UnitRatio,
			Calculation: Calculation{
				Type:        CalcRatio,
				Source:      "campaigns",
				Numerator:   &Expr{Column: "revenue_attributed_cents"},
				Denominator: &Expr{Column: "budget_spent_cents"},
				Window:      WindowWeekly,
			},
			Target: &Target{Value: 3, Period: "weekly"},
			Thresholds: []Threshold{
				{Level: LevelCritical, Operator: OpLT, Value: 1, AlertEnabled: true},
				{Level: LevelWarning, Operator: OpLT, Value: 2, AlertEnabled: true},
				{Level: LevelExcellent, Operator: OpGTE, Value: 3},
			},
			Frequency:      FrequencyWeekly,
			HigherIsBetter: true,
			Active:         true,
		},
		{
			ID:        "customer_retention_rate",
			TenantID:  tenantID,
			Name:      "Customer Retention Rate",
			MetricKey: "customer_retention_rate",
			Category:  CategoryCustomer,
			Unit:      UnitPercentage,
			Calculation: Calculation{
				Type:   CalcCustom,
				Custom: "customer_retention_rate",
				Window: WindowMonthly,
			},
			Target: &Target{Value: 80, Period: "monthly"},
			Thresholds: []Threshold{
				{Level: LevelCritical, Operator: OpLT, Value: 30, AlertEnabled: true},
				{Level: LevelWarning, Operator: OpLT, Value: 50, AlertEnabled: true},
				{Level: LevelExcellent, Operator: OpGTE, Value: 70},
			},
			Frequency:      FrequencyMonthly,
			HigherIsBetter: true,
			Active:         true,
		},
		{
			ID:        "restaurant_performance_score",
			TenantID:  tenantID,
			Name:      "Restaurant Performance Score",
			MetricKey: "restaurant_performance_score",
			Category:  CategoryEfficiency,
			Unit:      UnitScore,
			Calculation: Calculation{
				Type:   CalcCustom,
				Custom: "restaurant_performance_score",
				Window: WindowWeekly,
			},
			Target: &Target{Value: 85, Period: "weekly"},
			Thresholds: []Threshold{
				{Level: LevelCritical, Operator: OpLT, Value: 50, AlertEnabled: true},
				{Level: LevelWarning, Operator: OpLT, Value: 70, AlertEnabled: true},
				{Level: LevelExcellent, Operator: OpGTE, Value: 90},
			},
			Frequency:      FrequencyWeekly,
			HigherIsBetter: true,
			Active:         true,
		},
	}
}
