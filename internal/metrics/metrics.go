package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Pipeline collects query pipeline metrics. A nil *Pipeline records nothing.
type Pipeline struct {
	requests     *prometheus.CounterVec
	stageSeconds *prometheus.HistogramVec
	cacheLookups *prometheus.CounterVec
	degraded     *prometheus.CounterVec
}

// New registers the pipeline collectors on reg.
func New(reg prometheus.Registerer) *Pipeline {
	factory := promauto.With(reg)
	return &Pipeline{
		requests: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "sunkelo_pipeline_requests_total",
				Help: "Queries handled by outcome (error code or ok).",
			},
			[]string{"outcome"},
		),
		stageSeconds: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "sunkelo_pipeline_stage_duration_seconds",
				Help:    "Time spent in each pipeline stage.",
				Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 20, 40},
			},
			[]string{"stage"},
		),
		cacheLookups: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "sunkelo_cache_lookups_total",
				Help: "Cache lookups by layer and result.",
			},
			[]string{"layer", "result"},
		),
		degraded: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "sunkelo_degraded_steps_total",
				Help: "Best-effort steps that fell back to a degraded value.",
			},
			[]string{"step"},
		),
	}
}

// Handler exposes the registry in Prometheus text format.
func Handler(gatherer prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}

// Request counts one finished query.
func (p *Pipeline) Request(outcome string) {
	if p == nil {
		return
	}
	p.requests.WithLabelValues(outcome).Inc()
}

// ObserveStage records how long a stage took since start.
func (p *Pipeline) ObserveStage(stage string, start time.Time) {
	if p == nil {
		return
	}
	p.stageSeconds.WithLabelValues(stage).Observe(time.Since(start).Seconds())
}

// CacheLookup counts a hit or miss on a cache layer.
func (p *Pipeline) CacheLookup(layer string, hit bool) {
	if p == nil {
		return
	}
	result := "miss"
	if hit {
		result = "hit"
	}
	p.cacheLookups.WithLabelValues(layer, result).Inc()
}

// Degraded counts a step that fell back.
func (p *Pipeline) Degraded(step string) {
	if p == nil {
		return
	}
	p.degraded.WithLabelValues(step).Inc()
}
