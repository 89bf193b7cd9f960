package handlers

import (
	"encoding/json"
	"errors"
	"time"

	"github.com/valyala/fasthttp"

	"orderinsight/internal/forecast"
)

type forecastRequest struct {
	Metrics     []string           `json:"metrics"`
	HorizonDays int                `json:"horizon_days,omitempty"`
	Algorithm   forecast.Algorithm `json:"algorithm,omitempty"`
}

// ForecastHandler produces forecasts for the requested metrics.
// Forecast values stay in the metric's stored units (cents for
// currency); callers that collected daily series in cents get
// predictions in cents.
func ForecastHandler(engine *forecast.Engine) fasthttp.RequestHandler {
	return func(ctx *fasthttp.RequestCtx) {
		tenantID, ok := MustTenant(ctx)
		if !ok {
			return
		}

		var req forecastRequest
		if err := json.Unmarshal(ctx.PostBody(), &req); err != nil {
			errResponse(ctx, fasthttp.StatusBadRequest, "invalid JSON body")
			return
		}
		if len(req.Metrics) == 0 {
			errResponse(ctx, fasthttp.StatusBadRequest, "no metrics provided")
			return
		}
		switch req.Algorithm {
		case "", forecast.AlgLinearRegression, forecast.AlgExponentialSmoothing,
			forecast.AlgMovingAverage, forecast.AlgSeasonalDecomposition, forecast.AlgEnsemble:
		default:
			errResponse(ctx, fasthttp.StatusBadRequest, "unknown algorithm")
			return
		}

		results := make([]forecast.Result, 0, len(req.Metrics))
		skipped := make([]map[string]string, 0)
		for _, metric := range req.Metrics {
			start := time.Now()
			r, err := engine.Forecast(ctx, tenantID, metric, req.HorizonDays, req.Algorithm)
			if err != nil {
				if errors.Is(err, forecast.ErrInsufficientData) {
					skipped = append(skipped, map[string]string{"metric": metric, "reason": err.Error()})
					continue
				}
				errResponse(ctx, fasthttp.StatusServiceUnavailable, "forecast failed")
				return
			}
			forecastDuration.WithLabelValues(tenantID, string(r.Algorithm)).
				Observe(time.Since(start).Seconds())
			results = append(results, *r)
		}

		jsonResponse(ctx, map[string]any{
			"forecasts": results,
			"skipped":   skipped,
		})
	}
}
