package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/matthewjhunter/ulasan/internal/ingest"
)

const namespace = "ulasan"

// Metrics owns a private registry so several engines (and tests) can live in
// one process without colliding on the default registerer.
type Metrics struct {
	registry *prometheus.Registry

	batchesTotal     *prometheus.CounterVec
	recordsTotal     *prometheus.CounterVec
	skippedTotal     *prometheus.CounterVec
	versionsTotal    *prometheus.CounterVec
	batchDuration    *prometheus.HistogramVec
	queryDuration    *prometheus.HistogramVec
	queryErrorsTotal *prometheus.CounterVec
}

func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	f := promauto.With(reg)

	return &Metrics{
		registry: reg,
		batchesTotal: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "ingest_batches_total",
			Help:      "Ingested batches by kind and terminal state.",
		}, []string{"kind", "state"}),
		recordsTotal: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "ingest_records_total",
			Help:      "Records written by kind.",
		}, []string{"kind"}),
		skippedTotal: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "ingest_skipped_total",
			Help:      "Records and details dropped because a dimension did not resolve.",
		}, []string{"level"}),
		versionsTotal: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "ingest_versions_total",
			Help:      "Version records by insert result.",
		}, []string{"result"}),
		batchDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "ingest_batch_duration_seconds",
			Help:      "Time spent processing one batch.",
			Buckets:   prometheus.ExponentialBuckets(0.001, 2, 14), // 1ms to ~8s
		}, []string{"kind"}),
		queryDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "query_duration_seconds",
			Help:      "Aggregation query latency.",
			Buckets:   prometheus.ExponentialBuckets(0.0005, 2, 12), // 0.5ms to ~1s
		}, []string{"query"}),
		queryErrorsTotal: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "query_errors_total",
			Help:      "Aggregation queries that returned an error.",
		}, []string{"query"}),
	}
}

// ObserveBatch implements ingest.Observer.
func (m *Metrics) ObserveBatch(o ingest.Outcome) {
	kind := string(o.Kind)
	m.batchesTotal.WithLabelValues(kind, string(o.State)).Inc()
	m.batchDuration.WithLabelValues(kind).Observe(o.Duration.Seconds())
	m.recordsTotal.WithLabelValues(kind).Add(float64(o.Counters.Records))
	m.skippedTotal.WithLabelValues("record").Add(float64(o.Counters.SkippedRecords))
	m.skippedTotal.WithLabelValues("detail").Add(float64(o.Counters.SkippedDetails))
	if o.Kind == ingest.KindVersion {
		m.versionsTotal.WithLabelValues("inserted").Add(float64(o.Counters.VersionsInserted))
		m.versionsTotal.WithLabelValues("ignored").Add(float64(o.Counters.VersionsIgnored))
	}
}

// ObserveQuery records one query's latency and, when err is non-nil, its
// failure.
func (m *Metrics) ObserveQuery(query string, start time.Time, err error) {
	m.queryDuration.WithLabelValues(query).Observe(time.Since(start).Seconds())
	if err != nil {
		m.queryErrorsTotal.WithLabelValues(query).Inc()
	}
}

// Registry exposes the underlying registry for gathering.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

var _ ingest.Observer = (*Metrics)(nil)
