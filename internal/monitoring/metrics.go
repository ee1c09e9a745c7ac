// internal/monitoring/metrics.go
package monitoring

import (
	"net/http"
	"strconv"
	"time"

	"github.com/law-makers/linkmeta/internal/engine"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Pipeline stages
const (
	StageMatch       = "match"
	StageFetch       = "fetch"
	StageScript      = "script"
	StageMaterialize = "materialize"
	StageImport      = "import"
)

// Asset outcomes
const (
	AssetUploaded = "uploaded"
	AssetFailed   = "failed"
)

// Metrics holds the pipeline's Prometheus collectors.
// All methods are safe on a nil receiver.
type Metrics struct {
	registry *prometheus.Registry

	extractions     *prometheus.CounterVec
	stageDuration   *prometheus.HistogramVec
	stageErrors     *prometheus.CounterVec
	fetches         *prometheus.CounterVec
	assets          *prometheus.CounterVec
	schemaConflicts prometheus.Counter
	schemaUpdates   prometheus.Counter
}

// MetricsConfig configures metric naming
type MetricsConfig struct {
	Namespace       string
	EnableGoMetrics bool
}

// NewMetrics registers collectors on a private registry
func NewMetrics(config MetricsConfig) *Metrics {
	if config.Namespace == "" {
		config.Namespace = "linkmeta"
	}

	reg := prometheus.NewRegistry()
	if config.EnableGoMetrics {
		reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	}
	factory := promauto.With(reg)

	return &Metrics{
		registry: reg,
		extractions: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: config.Namespace,
			Name:      "extractions_total",
			Help:      "Extractions by rule and outcome",
		}, []string{"rule", "status"}),
		stageDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: config.Namespace,
			Name:      "stage_duration_seconds",
			Help:      "Time spent in each pipeline stage",
			Buckets:   prometheus.DefBuckets,
		}, []string{"stage"}),
		stageErrors: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: config.Namespace,
			Name:      "stage_errors_total",
			Help:      "Pipeline stage failures by error code",
		}, []string{"stage", "code"}),
		fetches: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: config.Namespace,
			Name:      "fetches_total",
			Help:      "Document fetches by channel and status class",
		}, []string{"mode", "status"}),
		assets: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: config.Namespace,
			Name:      "assets_total",
			Help:      "Image assets materialized by outcome",
		}, []string{"result"}),
		schemaConflicts: factory.NewCounter(prometheus.CounterOpts{
			Namespace: config.Namespace,
			Name:      "schema_conflicts_total",
			Help:      "Tag schema writes rejected because of a concurrent update",
		}),
		schemaUpdates: factory.NewCounter(prometheus.CounterOpts{
			Namespace: config.Namespace,
			Name:      "schema_updates_total",
			Help:      "Tag schema writes applied",
		}),
	}
}

// RecordStage observes a stage's duration and, on failure, its error code
func (m *Metrics) RecordStage(stage string, d time.Duration, err error) {
	if m == nil {
		return
	}
	m.stageDuration.WithLabelValues(stage).Observe(d.Seconds())
	if err != nil {
		code := string(engine.CodeOf(err))
		if code == "" {
			code = "UNKNOWN"
		}
		m.stageErrors.WithLabelValues(stage, code).Inc()
	}
}

// RecordExtraction counts a finished extraction
func (m *Metrics) RecordExtraction(rule, status string) {
	if m == nil {
		return
	}
	m.extractions.WithLabelValues(rule, status).Inc()
}

// RecordFetch counts a fetch by channel and status class (2xx, 4xx, ...)
func (m *Metrics) RecordFetch(mode string, statusCode int) {
	if m == nil {
		return
	}
	class := "none"
	if statusCode > 0 {
		class = strconv.Itoa(statusCode/100) + "xx"
	}
	m.fetches.WithLabelValues(mode, class).Inc()
}

// RecordAsset counts one materialization attempt
func (m *Metrics) RecordAsset(result string) {
	if m == nil {
		return
	}
	m.assets.WithLabelValues(result).Inc()
}

// RecordSchemaConflict counts an optimistic-concurrency rejection
func (m *Metrics) RecordSchemaConflict() {
	if m == nil {
		return
	}
	m.schemaConflicts.Inc()
}

// RecordSchemaUpdate counts an applied schema write
func (m *Metrics) RecordSchemaUpdate() {
	if m == nil {
		return
	}
	m.schemaUpdates.Inc()
}

// Handler serves the registry in Prometheus text format
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Registry exposes the underlying registry
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}
