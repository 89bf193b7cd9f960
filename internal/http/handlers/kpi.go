package handlers

import (
	"encoding/json"
	"errors"
	"time"

	"github.com/valyala/fasthttp"

	"orderinsight/internal/kpi"
)

type calculateRequest struct {
	Date string `json:"date,omitempty"` // YYYY-MM-DD, defaults to today
}

type metricResponse struct {
	KPIID             string             `json:"kpi_id"`
	MetricKey         string             `json:"metric_key"`
	Unit              kpi.Unit           `json:"unit"`
	Value             float64            `json:"value"`
	Previous          *float64           `json:"previous_value,omitempty"`
	Change            float64            `json:"change"`
	ChangePct         float64            `json:"change_percent"`
	Trend             kpi.Trend          `json:"trend"`
	Level             kpi.ThresholdLevel `json:"threshold"`
	TargetAchievement *float64           `json:"target_achievement,omitempty"`
	Timestamp         time.Time          `json:"timestamp"`
	Metadata          map[string]any     `json:"metadata,omitempty"`
}

func metricToResponse(m *kpi.Metric) metricResponse {
	out := metricResponse{
		KPIID:             m.KPIID,
		MetricKey:         m.MetricKey,
		Unit:              m.Unit,
		Value:             displayValue(m.Unit, m.Value),
		Change:            displayValue(m.Unit, m.Change),
		ChangePct:         m.ChangePct,
		Trend:             m.Trend,
		Level:             m.Level,
		TargetAchievement: m.TargetAchievement,
		Timestamp:         m.Timestamp,
		Metadata:          m.Metadata,
	}
	if m.Previous != nil {
		prev := displayValue(m.Unit, *m.Previous)
		out.Previous = &prev
	}
	return out
}

// CalculateKPIs recomputes every active KPI for the calling tenant as
// of the requested date (default today) and returns the batch result.
func CalculateKPIs(engine *kpi.Engine, registry kpi.Registry) fasthttp.RequestHandler {
	return func(ctx *fasthttp.RequestCtx) {
		tenantID, ok := MustTenant(ctx)
		if !ok {
			return
		}

		var req calculateRequest
		if body := ctx.PostBody(); len(body) > 0 {
			if err := json.Unmarshal(body, &req); err != nil {
				errResponse(ctx, fasthttp.StatusBadRequest, "invalid JSON body")
				return
			}
		}

		asOf := time.Now().UTC()
		if req.Date != "" {
			parsed, err := time.Parse("2006-01-02", req.Date)
			if err != nil {
				errResponse(ctx, fasthttp.StatusBadRequest, "date must be YYYY-MM-DD")
				return
			}
			asOf = parsed
		}

		batch, err := engine.CalculateMetrics(ctx, tenantID, asOf)
		if err != nil {
			if errors.Is(err, kpi.ErrValidation) {
				errResponse(ctx, fasthttp.StatusBadRequest, err.Error())
				return
			}
			errResponse(ctx, fasthttp.StatusServiceUnavailable, "calculation failed")
			return
		}

		categories := categoryByKPI(ctx, registry, tenantID)
		metrics := make([]metricResponse, 0, len(batch.Metrics))
		for i := range batch.Metrics {
			m := &batch.Metrics[i]
			metrics = append(metrics, metricToResponse(m))
			metricsComputed.WithLabelValues(tenantID, categories[m.KPIID]).Inc()
		}
		for _, a := range batch.Alerts {
			alertsEmitted.WithLabelValues(tenantID, string(a.Level)).Inc()
		}

		jsonResponse(ctx, map[string]any{
			"metrics":  metrics,
			"alerts":   batch.Alerts,
			"failures": batch.Failures,
		})
	}
}

// ScorecardHandler returns the performance scorecard for the calling
// tenant. The optional period query arg is YYYY-MM.
func ScorecardHandler(engine *kpi.Engine) fasthttp.RequestHandler {
	return func(ctx *fasthttp.RequestCtx) {
		tenantID, ok := MustTenant(ctx)
		if !ok {
			return
		}

		period := string(ctx.QueryArgs().Peek("period"))
		card, err := engine.GenerateScorecard(ctx, tenantID, period)
		if err != nil {
			errResponse(ctx, fasthttp.StatusServiceUnavailable, "scorecard generation failed")
			return
		}
		jsonResponse(ctx, card)
	}
}

func categoryByKPI(ctx *fasthttp.RequestCtx, registry kpi.Registry, tenantID string) map[string]string {
	out := map[string]string{}
	defs, err := registry.ActiveDefinitions(ctx, tenantID)
	if err != nil {
		return out
	}
	for i := range defs {
		out[defs[i].ID] = string(defs[i].Category)
	}
	return out
}
