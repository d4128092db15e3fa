package observability

import (
	"context"
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/push"
)

const namespace = "quake_etl"

// Fetch outcomes recorded on PagesFetched.
const (
	OutcomeOK           = "ok"
	OutcomeNotPublished = "not_published"
	OutcomeSchemaDrift  = "schema_drift"
	OutcomeError        = "error"
)

// Metrics holds the Prometheus counters, histograms, and gauges for one
// scrape run. Each Metrics owns its registry; a batch job has nothing to
// scrape, so the registry is pushed to a Pushgateway at the end of a run.
type Metrics struct {
	registry *prometheus.Registry

	PagesFetched     *prometheus.CounterVec // labels: outcome={ok,not_published,schema_drift,error}
	RowsDropped      prometheus.Counter
	RecordsAdded     *prometheus.CounterVec // labels: year
	RecordsPublished prometheus.Counter
	ArchiveRecords   *prometheus.GaugeVec // labels: year
	FetchDuration    prometheus.Histogram
	LastSuccess      prometheus.Gauge
}

// NewMetrics creates all scrape metrics on a fresh registry.
func NewMetrics() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		PagesFetched: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "pages_fetched_total",
			Help:      "Monthly bulletin pages requested, by outcome.",
		}, []string{"outcome"}),
		RowsDropped: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rows_dropped_total",
			Help:      "Table rows discarded as malformed or out of range.",
		}),
		RecordsAdded: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "records_added_total",
			Help:      "Records newly appended to a yearly archive.",
		}, []string{"year"}),
		RecordsPublished: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "records_published_total",
			Help:      "Newly archived records written to Kafka.",
		}),
		ArchiveRecords: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "archive_records",
			Help:      "Records held in each yearly archive after the run.",
		}, []string{"year"}),
		FetchDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "fetch_duration_seconds",
			Help:      "Duration of a monthly page fetch including retries.",
			Buckets:   []float64{0.1, 0.25, 0.5, 1, 2.5, 5, 10, 15, 30, 60},
		}),
		LastSuccess: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "last_success_timestamp_seconds",
			Help:      "Unix time of the last run that completed without errors.",
		}),
	}

	m.registry.MustRegister(
		m.PagesFetched,
		m.RowsDropped,
		m.RecordsAdded,
		m.RecordsPublished,
		m.ArchiveRecords,
		m.FetchDuration,
		m.LastSuccess,
	)

	return m
}

// Registry exposes the registry backing these metrics.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Push sends every metric to the Pushgateway at url under the quake_etl job.
func (m *Metrics) Push(ctx context.Context, url string) error {
	if err := push.New(url, namespace).Gatherer(m.registry).PushContext(ctx); err != nil {
		return fmt.Errorf("push metrics: %w", err)
	}
	return nil
}
