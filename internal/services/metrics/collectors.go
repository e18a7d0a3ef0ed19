package metrics

import (
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"salesviz/internal/models"
	"salesviz/internal/services/dataset"
)

// Collectors are the process metrics exposed on /metrics.
type Collectors struct {
	registry *prometheus.Registry

	loads        *prometheus.CounterVec
	loadDuration prometheus.Histogram
	datasetRows  prometheus.Gauge
	renders      *prometheus.CounterVec
	renderTime   *prometheus.HistogramVec
}

// NewCollectors registers the salesviz metrics on a fresh registry along
// with the Go runtime and process collectors.
func NewCollectors() *Collectors {
	c := &Collectors{
		registry: prometheus.NewRegistry(),
		loads: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "salesviz",
			Name:      "dataset_loads_total",
			Help:      "Dataset load attempts by outcome.",
		}, []string{"outcome"}),
		loadDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "salesviz",
			Name:      "dataset_load_seconds",
			Help:      "Time to read and parse the sales export.",
			Buckets:   prometheus.ExponentialBuckets(0.01, 2, 12),
		}),
		datasetRows: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "salesviz",
			Name:      "dataset_rows",
			Help:      "Rows in the published dataset.",
		}),
		renders: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "salesviz",
			Name:      "chart_renders_total",
			Help:      "Chart computations by chart and resulting state.",
		}, []string{"chart", "state"}),
		renderTime: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "salesviz",
			Name:      "chart_render_seconds",
			Help:      "Time to compute one chart.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"chart"}),
	}

	c.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		c.loads, c.loadDuration, c.datasetRows, c.renders, c.renderTime,
	)
	return c
}

// ObserveLoad records a dataset load attempt; it matches dataset.Observer.
func (c *Collectors) ObserveLoad(ds *models.Dataset, took time.Duration, err error) {
	outcome := "ok"
	switch {
	case errors.Is(err, dataset.ErrStale):
		outcome = "stale"
	case err != nil:
		outcome = "error"
	}
	c.loads.WithLabelValues(outcome).Inc()
	c.loadDuration.Observe(took.Seconds())
	if err == nil && ds != nil {
		c.datasetRows.Set(float64(ds.Len()))
	}
}

// ObserveRender records one chart computation.
func (c *Collectors) ObserveRender(chart string, state models.ChartState, took time.Duration) {
	c.renders.WithLabelValues(chart, string(state)).Inc()
	c.renderTime.WithLabelValues(chart).Observe(took.Seconds())
}

// Handler serves the registry in the Prometheus exposition format.
func (c *Collectors) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{Registry: c.registry})
}
