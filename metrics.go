package abload

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the Prometheus collectors of a Loader.
// A nil *Metrics is valid and records nothing.
type Metrics struct {
	fetchTotal         *prometheus.CounterVec
	fetchDuration      prometheus.Histogram
	manifestFetchTotal *prometheus.CounterVec
	unloadTotal        *prometheus.CounterVec
	nodes              prometheus.Gauge
}

// NewMetrics creates the loader metrics and registers them with reg.
// A nil reg creates unregistered collectors.
func NewMetrics(reg prometheus.Registerer) (*Metrics, error) {
	m := &Metrics{
		fetchTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "abload_fetch_total",
				Help: "Total number of bundle fetches by result",
			},
			[]string{"result"},
		),
		fetchDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "abload_fetch_duration_seconds",
				Help:    "Bundle fetch latency in seconds",
				Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
			},
		),
		manifestFetchTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "abload_manifest_fetch_total",
				Help: "Total number of manifest fetches by result",
			},
			[]string{"result"},
		),
		unloadTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "abload_unload_total",
				Help: "Total number of unload requests by result",
			},
			[]string{"result"},
		),
		nodes: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "abload_nodes",
				Help: "Current number of bundle nodes in the registry",
			},
		),
	}
	if reg == nil {
		return m, nil
	}
	for _, c := range []prometheus.Collector{m.fetchTotal, m.fetchDuration, m.manifestFetchTotal, m.unloadTotal, m.nodes} {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}
	return m, nil
}

func resultLabel(err error) string {
	if err != nil {
		return "failure"
	}
	return "success"
}

func (m *Metrics) observeFetch(start time.Time, err error) {
	if m == nil {
		return
	}
	m.fetchTotal.WithLabelValues(resultLabel(err)).Inc()
	m.fetchDuration.Observe(time.Since(start).Seconds())
}

func (m *Metrics) observeManifest(err error) {
	if m == nil {
		return
	}
	m.manifestFetchTotal.WithLabelValues(resultLabel(err)).Inc()
}

func (m *Metrics) observeUnload(result string) {
	if m == nil {
		return
	}
	m.unloadTotal.WithLabelValues(result).Inc()
}

func (m *Metrics) setNodes(n int) {
	if m == nil {
		return
	}
	m.nodes.Set(float64(n))
}
