package main

import (
	"log"
	"time"

	"github.com/fasthttp/router"
	"github.com/joho/godotenv"
	"github.com/valyala/fasthttp"

	"orderinsight/internal/anomaly"
	"orderinsight/internal/cache"
	"orderinsight/internal/config"
	"orderinsight/internal/db"
	"orderinsight/internal/forecast"
	"orderinsight/internal/http/handlers"
	appmw "orderinsight/internal/http/middleware"
	"orderinsight/internal/insight"
	"orderinsight/internal/kpi"
)

func main() {
	_ = godotenv.Load()
	cfg := config.Load()

	sqlDB, err := db.Connect(cfg)
	if err != nil {
		log.Fatalf("failed to connect database: %v", err)
	}

	db.StartRetentionWorker(sqlDB, cfg.RetentionDays)

	if err := db.EnsureBootstrapAdmin(sqlDB, cfg); err != nil {
		log.Fatalf("failed to ensure bootstrap admin: %v", err)
	}
	if err := db.EnsureDefaultKPIs(sqlDB, cfg); err != nil {
		log.Printf("warning: failed to seed default KPIs: %v", err)
	}

	var resultCache cache.Cache = cache.Noop{}
	if cfg.RedisAddr != "" {
		redisCache, err := cache.NewRedis(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
		if err != nil {
			log.Printf("warning: redis unavailable, running without cache: %v", err)
		} else {
			resultCache = redisCache
		}
	}
	cacheTTL := time.Duration(cfg.CacheTTLSeconds) * time.Second

	store := db.NewStore(sqlDB)
	registry := db.NewRegistry(sqlDB)
	facts := db.NewFactStore(sqlDB)

	kpiEngine := kpi.NewEngine(registry, facts, store, store, resultCache, cacheTTL)
	forecastEngine := forecast.NewEngine(store, resultCache, cfg.ForecastLookbackDays, cfg.MaxForecastHorizonDays, cacheTTL)
	detector := anomaly.NewDetector(forecastEngine, store)
	insights := insight.NewGenerator(store, resultCache, cacheTTL)

	handlers.InitPrometheusMetrics()

	r := router.New()

	r.GET("/healthz", func(ctx *fasthttp.RequestCtx) {
		ctx.SetStatusCode(fasthttp.StatusOK)
		ctx.SetBodyString("ok")
	})

	bearer := appmw.BearerAuth(sqlDB)
	admin := appmw.AdminAuth(sqlDB)

	r.POST("/v1/kpis/calculate", bearer(handlers.CalculateKPIs(kpiEngine, registry)))
	r.GET("/v1/scorecard", bearer(handlers.ScorecardHandler(kpiEngine)))
	r.POST("/v1/forecasts", bearer(handlers.ForecastHandler(forecastEngine)))
	r.POST("/v1/anomalies/detect", bearer(handlers.DetectAnomalies(detector)))
	r.GET("/v1/anomalies", bearer(handlers.ListAnomalies(store)))
	r.GET("/v1/insights", bearer(handlers.ListInsights(insights)))
	r.GET("/v1/alerts", bearer(handlers.ListAlerts(store)))
	r.POST("/v1/alerts/{id}/acknowledge", bearer(handlers.AcknowledgeAlert(store)))
	r.GET("/v1/metrics/prometheus", handlers.TenantMetricsHandler(sqlDB))

	r.POST("/admin/recompute", admin(handlers.RecomputeAll(kpiEngine, registry)))

	handler := handlers.RequestLogger(r.Handler)

	log.Printf("orderinsight listening on %s", cfg.ListenAddr)
	if err := fasthttp.ListenAndServe(cfg.ListenAddr, handler); err != nil {
		log.Fatalf("server error: %v", err)
	}
}
