package handlers

import (
	"encoding/json"
	"strconv"
	"time"

	"github.com/valyala/fasthttp"

	"orderinsight/internal/anomaly"
	"orderinsight/internal/db"
)

type detectRequest struct {
	Metric string  `json:"metric"`
	Value  float64 `json:"value"`

	// Timestamp is when the value was observed (RFC 3339). Empty means
	// now.
	Timestamp string `json:"timestamp,omitempty"`

	// Observations scores several metrics in one call. When set,
	// Metric/Value are ignored.
	Observations map[string]float64 `json:"observations,omitempty"`
}

// DetectAnomalies scores the submitted observation against its
// forecast expectation. An unremarkable value (or a metric with too
// little history to forecast) answers 204.
func DetectAnomalies(detector *anomaly.Detector) fasthttp.RequestHandler {
	return func(ctx *fasthttp.RequestCtx) {
		tenantID, ok := MustTenant(ctx)
		if !ok {
			return
		}

		var req detectRequest
		if err := json.Unmarshal(ctx.PostBody(), &req); err != nil {
			errResponse(ctx, fasthttp.StatusBadRequest, "invalid JSON body")
			return
		}

		var observedAt time.Time
		if req.Timestamp != "" {
			parsed, err := time.Parse(time.RFC3339, req.Timestamp)
			if err != nil {
				errResponse(ctx, fasthttp.StatusBadRequest, "timestamp must be RFC 3339")
				return
			}
			observedAt = parsed
		}

		if len(req.Observations) > 0 {
			anomalies, err := detector.DetectBatch(ctx, tenantID, req.Observations, observedAt)
			if err != nil {
				errResponse(ctx, fasthttp.StatusServiceUnavailable, "anomaly detection failed")
				return
			}
			for _, a := range anomalies {
				anomaliesDetected.WithLabelValues(tenantID, string(a.Severity)).Inc()
			}
			jsonResponse(ctx, map[string]any{"anomalies": anomalies})
			return
		}

		if req.Metric == "" {
			errResponse(ctx, fasthttp.StatusBadRequest, "missing metric")
			return
		}

		a, err := detector.Detect(ctx, tenantID, req.Metric, req.Value, observedAt)
		if err != nil {
			errResponse(ctx, fasthttp.StatusServiceUnavailable, "anomaly detection failed")
			return
		}
		if a == nil {
			ctx.SetStatusCode(fasthttp.StatusNoContent)
			return
		}
		anomaliesDetected.WithLabelValues(tenantID, string(a.Severity)).Inc()
		jsonResponse(ctx, a)
	}
}

// ListAnomalies returns recent stored anomalies for the tenant. The
// optional days query arg bounds how far back to look (default 7).
func ListAnomalies(store *db.Store) fasthttp.RequestHandler {
	return func(ctx *fasthttp.RequestCtx) {
		tenantID, ok := MustTenant(ctx)
		if !ok {
			return
		}

		days := 7
		if v := string(ctx.QueryArgs().Peek("days")); v != "" {
			if parsed, err := strconv.Atoi(v); err == nil && parsed > 0 {
				days = parsed
			}
		}
		limit, _ := strconv.Atoi(string(ctx.QueryArgs().Peek("limit")))

		since := time.Now().UTC().AddDate(0, 0, -days)
		anomalies, err := store.ListAnomalies(ctx, tenantID, since, limit)
		if err != nil {
			errResponse(ctx, fasthttp.StatusInternalServerError, "failed to list anomalies")
			return
		}
		jsonResponse(ctx, map[string]any{"anomalies": anomalies})
	}
}
