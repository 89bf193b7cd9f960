package handlers

import (
	"strconv"

	"github.com/valyala/fasthttp"

	"orderinsight/internal/db"
)

// ListAlerts returns the tenant's threshold alerts, open ones first.
// Pass open=true to hide closed alerts, acknowledged=true/false to
// filter on acknowledgement.
func ListAlerts(store *db.Store) fasthttp.RequestHandler {
	return func(ctx *fasthttp.RequestCtx) {
		tenantID, ok := MustTenant(ctx)
		if !ok {
			return
		}

		openOnly := string(ctx.QueryArgs().Peek("open")) == "true"
		var acknowledged *bool
		if v := string(ctx.QueryArgs().Peek("acknowledged")); v == "true" || v == "false" {
			acked := v == "true"
			acknowledged = &acked
		}
		limit, _ := strconv.Atoi(string(ctx.QueryArgs().Peek("limit")))

		alerts, err := store.ListAlerts(ctx, tenantID, openOnly, acknowledged, limit)
		if err != nil {
			errResponse(ctx, fasthttp.StatusInternalServerError, "failed to list alerts")
			return
		}
		jsonResponse(ctx, map[string]any{"alerts": alerts})
	}
}

// AcknowledgeAlert marks one alert acknowledged. Acknowledging does
// not close the alert; the next evaluation still refreshes it while
// the value keeps breaching.
func AcknowledgeAlert(store *db.Store) fasthttp.RequestHandler {
	return func(ctx *fasthttp.RequestCtx) {
		tenantID, ok := MustTenant(ctx)
		if !ok {
			return
		}

		alertID, _ := ctx.UserValue("id").(string)
		if alertID == "" {
			errResponse(ctx, fasthttp.StatusBadRequest, "missing alert id")
			return
		}

		alert, err := store.AcknowledgeAlert(ctx, tenantID, alertID)
		if err != nil {
			errResponse(ctx, fasthttp.StatusInternalServerError, "failed to acknowledge alert")
			return
		}
		if alert == nil {
			errResponse(ctx, fasthttp.StatusNotFound, "alert not found")
			return
		}
		jsonResponse(ctx, alert)
	}
}
