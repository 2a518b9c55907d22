// +build metrics

package server

import (
	"github.com/prometheus/client_golang/prometheus"
)

// PublishMetrics registers a set of prometheus.Collectors that read s
// on every scrape, the same build-tag-gated opt-in the teacher uses for
// its buffer pool counters (buffer_pool_prometheus.go), so a build that
// never imports "-tags metrics" never links client_golang at all.
func PublishMetrics(s *Stats) []prometheus.Collector {
	ns := "pulsehttp"

	totalConnections := prometheus.NewCounterFunc(prometheus.CounterOpts{
		Namespace: ns,
		Name:      "connections_total",
		Help:      "Total number of connections accepted.",
	}, func() float64 { return float64(s.TotalConnections.Load()) })

	activeConnections := prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Namespace: ns,
		Name:      "active_connections",
		Help:      "Number of connections currently open.",
	}, func() float64 { return float64(s.ActiveConnections.Load()) })

	totalRequests := prometheus.NewCounterFunc(prometheus.CounterOpts{
		Namespace: ns,
		Name:      "requests_total",
		Help:      "Total number of requests handled.",
	}, func() float64 { return float64(s.TotalRequests.Load()) })

	connectionErrors := prometheus.NewCounterFunc(prometheus.CounterOpts{
		Namespace: ns,
		Name:      "connection_errors_total",
		Help:      "Total number of connections torn down by an I/O error.",
	}, func() float64 { return float64(s.ConnectionErrors.Load()) })

	protocolErrors := prometheus.NewCounterFunc(prometheus.CounterOpts{
		Namespace: ns,
		Name:      "protocol_errors_total",
		Help:      "Total number of requests rejected by the parser.",
	}, func() float64 { return float64(s.ProtocolErrors.Load()) })

	return []prometheus.Collector{
		totalConnections,
		activeConnections,
		totalRequests,
		connectionErrors,
		protocolErrors,
	}
}

// MustPublishMetrics registers PublishMetrics' collectors against reg,
// panicking on a duplicate registration the way promauto.With does.
func MustPublishMetrics(reg *prometheus.Registry, s *Stats) {
	for _, c := range PublishMetrics(s) {
		reg.MustRegister(c)
	}
}
