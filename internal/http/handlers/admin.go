package handlers

import (
	"log"
	"time"

	"github.com/valyala/fasthttp"

	"orderinsight/internal/kpi"
)

// RecomputeAll recalculates every active KPI for every tenant with
// definitions, as of the optional date query arg (default today).
// Tenants are independent; one tenant failing is recorded and the rest
// continue.
func RecomputeAll(engine *kpi.Engine, registry kpi.Registry) fasthttp.RequestHandler {
	return func(ctx *fasthttp.RequestCtx) {
		tenants, err := registry.TenantIDs(ctx)
		if err != nil {
			errResponse(ctx, fasthttp.StatusInternalServerError, "failed to list tenants")
			return
		}

		asOf := time.Now().UTC()
		if v := string(ctx.QueryArgs().Peek("date")); v != "" {
			parsed, err := time.Parse("2006-01-02", v)
			if err != nil {
				errResponse(ctx, fasthttp.StatusBadRequest, "date must be YYYY-MM-DD")
				return
			}
			asOf = parsed
		}
		summary := make([]map[string]any, 0, len(tenants))
		for _, tenantID := range tenants {
			batch, err := engine.CalculateMetrics(ctx, tenantID, asOf)
			if err != nil {
				log.Printf("recompute tenant %s: %v", tenantID, err)
				summary = append(summary, map[string]any{
					"tenant_id": tenantID,
					"error":     err.Error(),
				})
				continue
			}
			categories := categoryByKPI(ctx, registry, tenantID)
			for i := range batch.Metrics {
				metricsComputed.WithLabelValues(tenantID, categories[batch.Metrics[i].KPIID]).Inc()
			}
			for _, a := range batch.Alerts {
				alertsEmitted.WithLabelValues(tenantID, string(a.Level)).Inc()
			}
			summary = append(summary, map[string]any{
				"tenant_id": tenantID,
				"metrics":   len(batch.Metrics),
				"alerts":    len(batch.Alerts),
				"failures":  len(batch.Failures),
			})
		}

		jsonResponse(ctx, map[string]any{
			"tenants": len(tenants),
			"results": summary,
		})
	}
}
