// Package metrics exposes Prometheus metrics for scoring, evaluation runs,
// the HTTP layer and the event bus.
package metrics

import (
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	apperrors "github.com/radicugloss/radicugloss/internal/pkg/errors"
	"github.com/radicugloss/radicugloss/pkg/radicugloss"
)

const namespace = "radicugloss"

// Score buckets. NRDCGL is unbounded below, so the low end is coarse.
var scoreBuckets = []float64{-5, -2, -1, -0.5, 0, 0.25, 0.5, 0.6, 0.7, 0.8, 0.9, 0.95, 1}

// Metrics holds all application metrics on a private registry.
type Metrics struct {
	registry *prometheus.Registry

	// Scoring
	ScoreRequests  *prometheus.CounterVec   // labels: surface, outcome
	Scores         *prometheus.HistogramVec // labels: surface, metric
	FalsePositives *prometheus.CounterVec   // labels: kind
	MissedItems    prometheus.Counter

	// Evaluation runs
	EvaluationRuns     *prometheus.CounterVec // labels: outcome
	EvaluationQueries  prometheus.Counter
	EvaluationDuration prometheus.Histogram

	// History
	HistoryWrites *prometheus.CounterVec // labels: outcome

	// Bus
	BusPublishes       *prometheus.CounterVec   // labels: topic, outcome
	BusPublishDuration *prometheus.HistogramVec // labels: topic

	// HTTP
	HTTPRequests         *prometheus.CounterVec   // labels: method, path, status
	HTTPRequestDuration  *prometheus.HistogramVec // labels: method, path
	HTTPRequestsInFlight prometheus.Gauge
}

// New registers every metric, plus the Go and process collectors, on a fresh
// registry.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	f := promauto.With(reg)

	return &Metrics{
		registry: reg,

		ScoreRequests: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "score_requests_total",
			Help:      "Scoring requests by surface and outcome",
		}, []string{"surface", "outcome"}),
		Scores: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "score",
			Help:      "Distribution of computed scores",
			Buckets:   scoreBuckets,
		}, []string{"surface", "metric"}),
		FalsePositives: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "false_positives_total",
			Help:      "Penalized result entries by kind",
		}, []string{"kind"}),
		MissedItems: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "missed_items_total",
			Help:      "Relevant items absent from the considered results",
		}),

		EvaluationRuns: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "evaluation_runs_total",
			Help:      "Batch evaluation runs by outcome",
		}, []string{"outcome"}),
		EvaluationQueries: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "evaluation_queries_total",
			Help:      "Queries scored by batch evaluations",
		}),
		EvaluationDuration: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "evaluation_duration_seconds",
			Help:      "Wall time of batch evaluation runs",
			Buckets:   prometheus.ExponentialBuckets(0.001, 4, 8),
		}),

		HistoryWrites: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "history_writes_total",
			Help:      "Score history writes by outcome",
		}, []string{"outcome"}),

		BusPublishes: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "bus_publishes_total",
			Help:      "Bus events published by topic and outcome",
		}, []string{"topic", "outcome"}),
		BusPublishDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "bus_publish_duration_seconds",
			Help:      "Bus publish latency",
			Buckets:   prometheus.DefBuckets,
		}, []string{"topic"}),

		HTTPRequests: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "HTTP requests by method, path and status",
		}, []string{"method", "path", "status"}),
		HTTPRequestDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latency",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "path"}),
		HTTPRequestsInFlight: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "http_requests_in_flight",
			Help:      "HTTP requests currently being served",
		}),
	}
}

// Registry returns the registry the metrics live on.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

func outcome(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}

func isInvalid(err error) bool {
	return errors.Is(err, radicugloss.ErrInvalidArgument) || apperrors.IsValidation(err)
}

// RecordScore records one scoring call. b may be nil when err is set.
func (m *Metrics) RecordScore(surface string, b *radicugloss.Breakdown, err error) {
	if err != nil {
		o := "error"
		if isInvalid(err) {
			o = "invalid"
		}
		m.ScoreRequests.WithLabelValues(surface, o).Inc()
		return
	}
	m.ScoreRequests.WithLabelValues(surface, "ok").Inc()
	if b == nil {
		return
	}

	m.Scores.WithLabelValues(surface, "nrdcgl").Observe(b.Normalized)
	m.Scores.WithLabelValues(surface, "pnrdcgl").Observe(b.Positive())

	for _, e := range b.Entries {
		if e.Kind != radicugloss.KindRelevant {
			m.FalsePositives.WithLabelValues(string(e.Kind)).Inc()
		}
	}
	m.MissedItems.Add(float64(len(b.Missed)))
}

// ObserveEvaluation records one batch run.
func (m *Metrics) ObserveEvaluation(queries int, d time.Duration, err error) {
	m.EvaluationRuns.WithLabelValues(outcome(err)).Inc()
	if err != nil {
		return
	}
	m.EvaluationQueries.Add(float64(queries))
	m.EvaluationDuration.Observe(d.Seconds())
}

// RecordHistoryWrite records one history append.
func (m *Metrics) RecordHistoryWrite(err error) {
	m.HistoryWrites.WithLabelValues(outcome(err)).Inc()
}

// RecordBusPublish records one bus publish.
func (m *Metrics) RecordBusPublish(topic string, latency time.Duration, err error) {
	m.BusPublishes.WithLabelValues(topic, outcome(err)).Inc()
	m.BusPublishDuration.WithLabelValues(topic).Observe(latency.Seconds())
}

// RecordHTTP records one served HTTP request.
func (m *Metrics) RecordHTTP(method, path string, status int, d time.Duration) {
	path = normalizePath(path)
	m.HTTPRequests.WithLabelValues(method, path, statusCode(status)).Inc()
	m.HTTPRequestDuration.WithLabelValues(method, path).Observe(d.Seconds())
}
