// Package metrics exposes Prometheus counters for both pipeline stages and
// pushes them to a Pushgateway at the end of a run.
package metrics

import (
	"errors"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/push"
)

// Collector bundles the pipeline metrics. A nil *Collector is valid and
// records nothing.
type Collector struct {
	gatherer prometheus.Gatherer

	HTTPRequests   *prometheus.CounterVec
	HTTPCacheHits  prometheus.Counter
	RecordsFetched *prometheus.CounterVec
	RecordsWritten prometheus.Gauge
	DuplicateRows  prometheus.Counter

	RowsRead       prometheus.Counter
	BatchesWritten prometheus.Counter
	RoutesCreated  prometheus.Gauge
	ProjectionOK   prometheus.Gauge

	StageDuration *prometheus.HistogramVec
}

// NewCollector registers metrics against reg. A nil reg gets a fresh
// private registry, which keeps repeated construction in tests safe.
func NewCollector(reg *prometheus.Registry) (*Collector, error) {
	if reg == nil {
		reg = prometheus.NewRegistry()
	}

	c := &Collector{
		gatherer: reg,
		HTTPRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "capitals_http_requests_total",
			Help: "Requests to the country data API, labeled by query kind and HTTP status code.",
		}, []string{"kind", "code"}),
		HTTPCacheHits: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "capitals_http_cache_hits_total",
			Help: "API responses served from the Redis cache.",
		}),
		RecordsFetched: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "capitals_records_fetched_total",
			Help: "Country records extracted, labeled by region label.",
		}, []string{"region"}),
		RecordsWritten: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "capitals_records_written",
			Help: "Rows written to the CSV by the last collector run.",
		}),
		DuplicateRows: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "capitals_duplicate_records_total",
			Help: "Records dropped because their (country, city) pair was already seen.",
		}),
		RowsRead: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "routes_rows_read_total",
			Help: "CSV rows read by the loader.",
		}),
		BatchesWritten: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "routes_batches_written_total",
			Help: "Upsert batches committed to the graph store.",
		}),
		RoutesCreated: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "routes_route_edges",
			Help: "ROUTE edges asserted by the last route derivation (both directions).",
		}),
		ProjectionOK: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "routes_projection_created",
			Help: "1 when the optional analytics projection was created in the last run.",
		}),
		StageDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "capitals_stage_duration_seconds",
			Help:    "Duration of pipeline steps.",
			Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1, 2, 5, 10, 30, 60},
		}, []string{"stage"}),
	}

	for _, col := range []prometheus.Collector{
		c.HTTPRequests, c.HTTPCacheHits, c.RecordsFetched, c.RecordsWritten, c.DuplicateRows,
		c.RowsRead, c.BatchesWritten, c.RoutesCreated, c.ProjectionOK, c.StageDuration,
	} {
		if err := reg.Register(col); err != nil {
			var already prometheus.AlreadyRegisteredError
			if errors.As(err, &already) {
				return nil, fmt.Errorf("metric already registered: %w", err)
			}
			return nil, err
		}
	}
	return c, nil
}

// Gatherer returns the registry backing the collector.
func (c *Collector) Gatherer() prometheus.Gatherer {
	if c == nil {
		return prometheus.NewRegistry()
	}
	return c.gatherer
}

// ObserveStage records how long a step took since start.
func (c *Collector) ObserveStage(stage string, start time.Time) {
	if c == nil {
		return
	}
	c.StageDuration.WithLabelValues(stage).Observe(time.Since(start).Seconds())
}

// HTTPRequest counts one API call.
func (c *Collector) HTTPRequest(kind string, code int) {
	if c == nil {
		return
	}
	label := "error"
	if code > 0 {
		label = fmt.Sprintf("%d", code)
	}
	c.HTTPRequests.WithLabelValues(kind, label).Inc()
}

// CacheHit counts one cached API response.
func (c *Collector) CacheHit() {
	if c == nil {
		return
	}
	c.HTTPCacheHits.Inc()
}

// Fetched counts records extracted for a region label.
func (c *Collector) Fetched(region string, n int) {
	if c == nil {
		return
	}
	c.RecordsFetched.WithLabelValues(region).Add(float64(n))
}

// Duplicates counts dropped duplicate records.
func (c *Collector) Duplicates(n int) {
	if c == nil {
		return
	}
	c.DuplicateRows.Add(float64(n))
}

// Written sets the number of CSV rows written.
func (c *Collector) Written(n int) {
	if c == nil {
		return
	}
	c.RecordsWritten.Set(float64(n))
}

// Rows counts CSV rows read by the loader.
func (c *Collector) Rows(n int) {
	if c == nil {
		return
	}
	c.RowsRead.Add(float64(n))
}

// Batch counts one committed upsert batch.
func (c *Collector) Batch() {
	if c == nil {
		return
	}
	c.BatchesWritten.Inc()
}

// Routes sets the number of ROUTE edges asserted.
func (c *Collector) Routes(n int) {
	if c == nil {
		return
	}
	c.RoutesCreated.Set(float64(n))
}

// Projection records whether the projection was created.
func (c *Collector) Projection(created bool) {
	if c == nil {
		return
	}
	if created {
		c.ProjectionOK.Set(1)
	} else {
		c.ProjectionOK.Set(0)
	}
}

// Push sends every metric to the Pushgateway at url under job, replacing
// the previous push for that job.
func (c *Collector) Push(url, job string) error {
	if c == nil {
		return nil
	}
	if err := push.New(url, job).Gatherer(c.gatherer).Push(); err != nil {
		return fmt.Errorf("pushing metrics to %s: %w", url, err)
	}
	return nil
}
