package handlers

import (
	"bytes"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	"github.com/prometheus/common/expfmt"
	"github.com/valyala/fasthttp"
	"gorm.io/gorm"

	dbpkg "orderinsight/internal/db"
)

var (
	metricsComputed   *prometheus.CounterVec
	alertsEmitted     *prometheus.CounterVec
	anomaliesDetected *prometheus.CounterVec
	forecastDuration  *prometheus.HistogramVec
)

func InitPrometheusMetrics() {
	metricsComputed = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "orderinsight",
			Name:      "kpi_metrics_computed_total",
			Help:      "Total number of KPI metrics computed.",
		},
		[]string{"tenant", "category"},
	)
	alertsEmitted = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "orderinsight",
			Name:      "kpi_alerts_emitted_total",
			Help:      "Total number of KPI threshold alerts emitted.",
		},
		[]string{"tenant", "level"},
	)
	anomaliesDetected = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "orderinsight",
			Name:      "anomalies_detected_total",
			Help:      "Total number of metric anomalies detected.",
		},
		[]string{"tenant", "severity"},
	)
	forecastDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "orderinsight",
			Name:      "forecast_duration_seconds",
			Help:      "Histogram of forecast computation durations in seconds.",
			Buckets:   []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2, 5},
		},
		[]string{"tenant", "algorithm"},
	)
	prometheus.MustRegister(metricsComputed, alertsEmitted, anomaliesDetected, forecastDuration)
}

// TenantMetricsHandler exposes the process metrics in Prometheus text
// format, filtered down to the requesting tenant's label values.
// Families without a tenant label pass through unfiltered. Scrapers
// authenticate with an api-key query parameter, since Prometheus
// scrape configs handle those more readily than bearer headers.
func TenantMetricsHandler(db *gorm.DB) fasthttp.RequestHandler {
	return func(ctx *fasthttp.RequestCtx) {
		apiKeyValue := string(ctx.QueryArgs().Peek("api-key"))
		if apiKeyValue == "" {
			errResponse(ctx, fasthttp.StatusUnauthorized, "missing api-key query parameter")
			return
		}

		key, err := dbpkg.GetAPIKey(db, apiKeyValue)
		if err != nil {
			errResponse(ctx, fasthttp.StatusInternalServerError, "database error")
			return
		}
		if key == nil {
			errResponse(ctx, fasthttp.StatusUnauthorized, "invalid API key")
			return
		}
		tenantID := key.TenantID

		metricFamilies, err := prometheus.DefaultGatherer.Gather()
		if err != nil {
			errResponse(ctx, fasthttp.StatusInternalServerError, "failed to gather metrics")
			return
		}

		filtered := make([]*dto.MetricFamily, 0, len(metricFamilies))
		for _, mf := range metricFamilies {
			hasTenantLabel := false
			for _, m := range mf.GetMetric() {
				for _, l := range m.GetLabel() {
					if l.GetName() == "tenant" {
						hasTenantLabel = true
						break
					}
				}
				if hasTenantLabel {
					break
				}
			}

			if !hasTenantLabel {
				filtered = append(filtered, mf)
				continue
			}

			var kept []*dto.Metric
			for _, m := range mf.GetMetric() {
				include := false
				for _, l := range m.GetLabel() {
					if l.GetName() == "tenant" && l.GetValue() == tenantID {
						include = true
						break
					}
				}
				if include {
					kept = append(kept, m)
				}
			}

			if len(kept) == 0 {
				continue
			}

			filtered = append(filtered, &dto.MetricFamily{
				Name:   mf.Name,
				Help:   mf.Help,
				Type:   mf.Type,
				Metric: kept,
			})
		}

		var buf bytes.Buffer
		encoder := expfmt.NewEncoder(&buf, expfmt.FmtText)
		for _, mf := range filtered {
			if err := encoder.Encode(mf); err != nil {
				errResponse(ctx, fasthttp.StatusInternalServerError, "failed to encode metrics")
				return
			}
		}

		ctx.SetContentType(string(expfmt.FmtText))
		ctx.Response.Header.Set("Cache-Control", "no-store")
		ctx.SetBody(buf.Bytes())
	}
}
