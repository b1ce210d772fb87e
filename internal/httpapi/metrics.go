package httpapi

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type Metrics struct {
	Registry *prometheus.Registry
	Reads    *prometheus.CounterVec
	Writes   *prometheus.CounterVec
	Version  prometheus.Gauge
	Peers    *prometheus.GaugeVec
}

func NewMetrics() *Metrics {
	m := &Metrics{
		Registry: prometheus.NewRegistry(),
		Reads: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "planner",
			Name:      "document_reads_total",
			Help:      "Document reads by result (ok, not_modified, error).",
		}, []string{"result"}),
		Writes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "planner",
			Name:      "document_writes_total",
			Help:      "Document writes by result code.",
		}, []string{"result"}),
		Version: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "planner",
			Name:      "document_version",
			Help:      "Last seen stored document version.",
		}),
		Peers: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "planner",
			Name:      "relay_peers",
			Help:      "Connected relay peers by role.",
		}, []string{"role"}),
	}
	m.Registry.MustRegister(m.Reads, m.Writes, m.Version, m.Peers)
	return m
}

func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.Registry, promhttp.HandlerOpts{})
}
