package kpi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"orderinsight/internal/cache"
)

// ErrDependencyUnavailable marks data source failures. Callers should
// retry the whole invocation later; repeated invocation is safe.
var ErrDependencyUnavailable = errors.New("dependency unavailable")

// Registry is the read-only definitional store.
type Registry interface {
	ActiveDefinitions(ctx context.Context, tenantID string) ([]Definition, error)
	TenantIDs(ctx context.Context) ([]string, error)
}

// MetricStore is the persistence sink for computed metrics. Upserts
// are idempotent, keyed by (kpiID, timestamp).
type MetricStore interface {
	UpsertMetric(ctx context.Context, m *Metric) error
	LatestMetric(ctx context.Context, tenantID, kpiID string) (*Metric, error)
}

// Failure records one KPI that could not be computed during a batch
// run. Failed KPIs are skipped, never silently treated as zero.
type Failure struct {
	KPIID string `json:"kpi_id"`
	Error string `json:"error"`
}

// Batch is the result of one recompute invocation.
type Batch struct {
	Metrics  []Metric  `json:"metrics"`
	Alerts   []Alert   `json:"alerts"`
	Failures []Failure `json:"failures,omitempty"`
}

// Engine orchestrates metric calculation, threshold evaluation and
// scorecard aggregation. All dependencies are injected; the engine
// holds no ambient state of its own.
type Engine struct {
	registry Registry
	calc     *Calculator
	store    MetricStore
	alerts   AlertStore
	cache    cache.Cache
	cacheTTL time.Duration
}

func NewEngine(registry Registry, facts FactSource, store MetricStore, alerts AlertStore, c cache.Cache, cacheTTL time.Duration) *Engine {
	if c == nil {
		c = cache.Noop{}
	}
	return &Engine{
		registry: registry,
		calc:     NewCalculator(facts),
		store:    store,
		alerts:   alerts,
		cache:    c,
		cacheTTL: cacheTTL,
	}
}

// CalculateMetrics computes every active KPI for the tenant as of the
// given date. KPIs are independent, so they run concurrently; a
// failure computing one never aborts the others. Metrics are stored
// before alerts are evaluated, so alerts always derive from a freshly
// computed, successfully stored metric.
func (e *Engine) CalculateMetrics(ctx context.Context, tenantID string, asOf time.Time) (*Batch, error) {
	if tenantID == "" {
		return nil, fmt.Errorf("%w: empty tenant id", ErrValidation)
	}
	if asOf.IsZero() {
		asOf = time.Now()
	}

	defs, err := e.registry.ActiveDefinitions(ctx, tenantID)
	if err != nil {
		return nil, fmt.Errorf("%w: load definitions: %v", ErrDependencyUnavailable, err)
	}

	batch := &Batch{}
	var mu sync.Mutex
	var wg sync.WaitGroup

	for i := range defs {
		def := defs[i]
		wg.Add(1)
		go func() {
			defer wg.Done()

			metric, alerts, err := e.computeOne(ctx, &def, asOf)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				log.Printf("kpi %s (%s): calculation failed: %v", def.ID, tenantID, err)
				batch.Failures = append(batch.Failures, Failure{KPIID: def.ID, Error: err.Error()})
				return
			}
			batch.Metrics = append(batch.Metrics, *metric)
			batch.Alerts = append(batch.Alerts, alerts...)
		}()
	}
	wg.Wait()

	// Derived snapshots are stale now; drop them.
	e.cache.Invalidate(ctx, "scorecard:"+tenantID+":*")
	e.cache.Invalidate(ctx, "insights:"+tenantID)
	e.cache.Invalidate(ctx, "forecast:"+tenantID+":*")

	return batch, nil
}

func (e *Engine) computeOne(ctx context.Context, def *Definition, asOf time.Time) (*Metric, []Alert, error) {
	metric, err := e.calc.Calculate(ctx, def, asOf)
	if err != nil {
		return nil, nil, err
	}
	if err := e.store.UpsertMetric(ctx, metric); err != nil {
		return nil, nil, fmt.Errorf("store metric: %w", err)
	}
	alerts, err := EmitAlerts(ctx, e.alerts, def, metric)
	if err != nil {
		// The metric is stored and correct; alert bookkeeping failing is
		// logged but does not fail the KPI.
		log.Printf("kpi %s: alert emission failed: %v", def.ID, err)
	}
	return metric, alerts, nil
}

// GenerateScorecard recomputes the scorecard from the latest stored
// metrics. Cached copies may be up to the TTL stale; that is
// acceptable for scorecards, never for alerts.
func (e *Engine) GenerateScorecard(ctx context.Context, tenantID, period string) (*Scorecard, error) {
	if tenantID == "" {
		return nil, fmt.Errorf("%w: empty tenant id", ErrValidation)
	}
	if period == "" {
		period = time.Now().UTC().Format("2006-01")
	}

	cacheKey := "scorecard:" + tenantID + ":" + period
	if raw, ok := e.cache.Get(ctx, cacheKey); ok {
		var card Scorecard
		if err := json.Unmarshal(raw, &card); err == nil {
			return &card, nil
		}
	}

	defs, err := e.registry.ActiveDefinitions(ctx, tenantID)
	if err != nil {
		return nil, fmt.Errorf("%w: load definitions: %v", ErrDependencyUnavailable, err)
	}

	latest := make(map[string]*Metric, len(defs))
	for i := range defs {
		m, err := e.store.LatestMetric(ctx, tenantID, defs[i].ID)
		if err != nil {
			log.Printf("kpi %s: latest metric lookup failed: %v", defs[i].ID, err)
			continue
		}
		if m != nil {
			latest[defs[i].ID] = m
		}
	}

	card := BuildScorecard(tenantID, period, defs, latest)

	if raw, err := json.Marshal(card); err == nil {
		e.cache.Set(ctx, cacheKey, raw, e.cacheTTL)
	}
	return card, nil
}
