package metrics

import (
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	PipelineDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "venue_finds_pipeline_duration_seconds",
			Help:    "End-to-end pipeline run duration in seconds",
			Buckets: []float64{1, 5, 10, 30, 60, 120},
		},
		[]string{"entity_type"},
	)

	PipelineRuns = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "venue_finds_pipeline_runs_total",
			Help: "Total pipeline runs",
		},
		[]string{"entity_type", "status"},
	)

	SourcesDiscovered = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "venue_finds_sources_discovered",
			Help:    "Number of sources discovered per pipeline run",
			Buckets: []float64{0, 1, 2, 5, 10, 20},
		},
	)

	ExtractionTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "venue_finds_extractions_total",
			Help: "Total extraction passes by outcome",
		},
		[]string{"status"},
	)

	FieldConfidence = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "venue_finds_field_confidence",
			Help:    "Per-field confidence scores reported by extraction",
			Buckets: []float64{0.1, 0.2, 0.3, 0.4, 0.5, 0.6, 0.7, 0.8, 0.9, 1.0},
		},
	)

	FieldsChanged = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "venue_finds_fields_changed",
			Help:    "Number of stored fields changed per upsert",
			Buckets: []float64{0, 1, 2, 5, 10, 20, 50},
		},
		[]string{"record"},
	)

	UpsertTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "venue_finds_upserts_total",
			Help: "Total upserts by entity type and outcome",
		},
		[]string{"entity_type", "status"},
	)

	LLMTokensUsed = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "venue_finds_llm_tokens_used",
			Help: "Total LLM tokens used",
		},
		[]string{"model", "type"},
	)

	CacheHits = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "venue_finds_cache_hits_total",
			Help: "Total cache hits",
		},
		[]string{"cache_type"},
	)

	CacheMisses = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "venue_finds_cache_misses_total",
			Help: "Total cache misses",
		},
		[]string{"cache_type"},
	)

	ListingsTotal = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "venue_finds_listings_total",
			Help: "Total listings persisted per entity type",
		},
		[]string{"entity_type"},
	)
)

func Init() {
	prometheus.MustRegister(PipelineDuration)
	prometheus.MustRegister(PipelineRuns)
	prometheus.MustRegister(SourcesDiscovered)
	prometheus.MustRegister(ExtractionTotal)
	prometheus.MustRegister(FieldConfidence)
	prometheus.MustRegister(FieldsChanged)
	prometheus.MustRegister(UpsertTotal)
	prometheus.MustRegister(LLMTokensUsed)
	prometheus.MustRegister(CacheHits)
	prometheus.MustRegister(CacheMisses)
	prometheus.MustRegister(ListingsTotal)
}

func MetricsHandler() fiber.Handler {
	return adaptor.HTTPHandler(promhttp.Handler())
}
