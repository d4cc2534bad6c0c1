package telemetry

import (
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics provides Prometheus metrics for the production engine.
type Metrics struct {
	config MetricsConfig

	// Demand aggregation metrics
	aggregations        *prometheus.CounterVec
	aggregationDuration prometheus.Histogram
	pendingLines        prometheus.Gauge
	demandBatches       prometheus.Gauge

	// Material preview metrics
	materialPreviews  prometheus.Counter
	shortageLines     prometheus.Counter
	requirementLines  prometheus.Counter

	// Submission metrics
	submissions     *prometheus.CounterVec
	commitConflicts *prometheus.CounterVec
	manualIntakes   prometheus.Counter
	openOrderAnomalies *prometheus.CounterVec

	// Lifecycle metrics
	transitions   *prometheus.CounterVec
	deletions     prometheus.Counter
	releasedLines prometheus.Counter

	registry *prometheus.Registry
}

// NopMetrics returns a disabled metrics instance whose record methods are
// no-ops. Used by tests and callers that run without telemetry.
func NopMetrics() *Metrics {
	return &Metrics{}
}

// NewMetrics creates a new metrics collector with the given configuration.
func NewMetrics(cfg MetricsConfig) (*Metrics, error) {
	if !cfg.Enabled {
		return &Metrics{config: cfg}, nil
	}

	namespace := cfg.Namespace
	buckets := cfg.DefaultHistogramBuckets
	if len(buckets) == 0 {
		buckets = prometheus.DefBuckets
	}

	registry := prometheus.NewRegistry()

	m := &Metrics{
		config:   cfg,
		registry: registry,

		aggregations: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "aggregations_total",
				Help:      "Total number of demand aggregation requests",
			},
			[]string{"outcome"},
		),
		aggregationDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "aggregation_duration_seconds",
				Help:      "Duration of demand aggregation in seconds",
				Buckets:   buckets,
			},
		),
		pendingLines: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "pending_order_lines",
				Help:      "Pending sales-order lines seen by the last aggregation",
			},
		),
		demandBatches: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "demand_batches",
				Help:      "Demand batches produced by the last aggregation",
			},
		),

		materialPreviews: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "material_previews_total",
				Help:      "Total number of material requirement previews",
			},
		),
		requirementLines: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "requirement_lines_total",
				Help:      "Total material requirement lines computed",
			},
		),
		shortageLines: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "shortage_lines_total",
				Help:      "Total requirement lines flagged low or critical",
			},
		),

		submissions: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "submissions_total",
				Help:      "Total committed batch submissions",
			},
			[]string{"action", "merged"},
		),
		commitConflicts: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "commit_conflicts_total",
				Help:      "Total commits that lost a concurrency race",
			},
			[]string{"operation"},
		),
		manualIntakes: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "manual_intakes_total",
				Help:      "Total manually created work orders",
			},
		),
		openOrderAnomalies: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "open_order_anomalies_total",
				Help:      "Times more than one open work order was found for a product",
			},
			[]string{"product_code"},
		),

		transitions: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "work_order_transitions_total",
				Help:      "Total work order lifecycle transitions",
			},
			[]string{"from", "to"},
		),
		deletions: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "work_order_deletions_total",
				Help:      "Total deleted planned work orders",
			},
		),
		releasedLines: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "released_order_lines_total",
				Help:      "Total order lines released back to pending by deletions",
			},
		),
	}

	registry.MustRegister(
		m.aggregations,
		m.aggregationDuration,
		m.pendingLines,
		m.demandBatches,
		m.materialPreviews,
		m.requirementLines,
		m.shortageLines,
		m.submissions,
		m.commitConflicts,
		m.manualIntakes,
		m.openOrderAnomalies,
		m.transitions,
		m.deletions,
		m.releasedLines,
	)

	return m, nil
}

// RecordAggregation records one demand aggregation pass.
func (m *Metrics) RecordAggregation(batches, lines int, duration time.Duration) {
	if m.aggregations == nil {
		return
	}
	m.aggregations.WithLabelValues("ok").Inc()
	m.aggregationDuration.Observe(duration.Seconds())
	m.pendingLines.Set(float64(lines))
	m.demandBatches.Set(float64(batches))
}

// RecordMaterialPreview records one requirement preview and its shortages.
func (m *Metrics) RecordMaterialPreview(lines, shortages int) {
	if m.materialPreviews == nil {
		return
	}
	m.materialPreviews.Inc()
	m.requirementLines.Add(float64(lines))
	m.shortageLines.Add(float64(shortages))
}

// RecordSubmission records a committed batch submission.
func (m *Metrics) RecordSubmission(action string, merged bool) {
	if m.submissions == nil {
		return
	}
	m.submissions.WithLabelValues(action, fmt.Sprintf("%v", merged)).Inc()
}

// RecordCommitConflict records a commit that lost a concurrency race.
func (m *Metrics) RecordCommitConflict(operation string) {
	if m.commitConflicts == nil {
		return
	}
	m.commitConflicts.WithLabelValues(operation).Inc()
}

// RecordManualIntake records a manually created work order.
func (m *Metrics) RecordManualIntake() {
	if m.manualIntakes == nil {
		return
	}
	m.manualIntakes.Inc()
}

// RecordOpenOrderAnomaly records a product with more than one open work order.
func (m *Metrics) RecordOpenOrderAnomaly(productCode string) {
	if m.openOrderAnomalies == nil {
		return
	}
	m.openOrderAnomalies.WithLabelValues(productCode).Inc()
}

// RecordTransition records a work order lifecycle transition.
func (m *Metrics) RecordTransition(from, to string) {
	if m.transitions == nil {
		return
	}
	m.transitions.WithLabelValues(from, to).Inc()
}

// RecordDeletion records a deleted work order and its released lines.
func (m *Metrics) RecordDeletion(releasedLines int) {
	if m.deletions == nil {
		return
	}
	m.deletions.Inc()
	m.releasedLines.Add(float64(releasedLines))
}

// Timer provides a convenient way to time operations.
type Timer struct {
	start time.Time
}

// NewTimer creates a new timer.
func NewTimer() *Timer {
	return &Timer{start: time.Now()}
}

// Duration returns the elapsed time since the timer was created.
func (t *Timer) Duration() time.Duration {
	return time.Since(t.start)
}

// Handler returns an HTTP handler for the metrics endpoint.
func (m *Metrics) Handler() http.Handler {
	if m.registry == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{
		EnableOpenMetrics: true,
	})
}

// StartMetricsServer starts an HTTP server to expose metrics.
func (m *Metrics) StartMetricsServer() error {
	if !m.config.Enabled {
		return nil
	}

	mux := http.NewServeMux()
	mux.Handle(m.config.Path, m.Handler())

	server := &http.Server{
		Addr:              m.config.ListenAddress,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			fmt.Printf("metrics server error: %v\n", err)
		}
	}()

	return nil
}
