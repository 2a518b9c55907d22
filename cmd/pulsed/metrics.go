// +build metrics

package main

import (
	"context"
	"flag"
	"log"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/pulsehttp/pulsehttp/server"
)

var metricsAddr = flag.String("metrics-addr", ":9090", "address for the prometheus /metrics endpoint")

// serveMetrics starts a tiny promhttp server publishing loop's Stats,
// the build-tag-gated opt-in matching server/metrics.go's own
// "-tags metrics" boundary. It runs until ctx is cancelled.
func serveMetrics(ctx context.Context, loop *server.Loop) {
	reg := prometheus.NewRegistry()
	server.MustPublishMetrics(reg, loop.Stats())

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	srv := &http.Server{Addr: *metricsAddr, Handler: mux}

	go func() {
		<-ctx.Done()
		srv.Close()
	}()

	log.Printf("pulsed: metrics listening on %s", *metricsAddr)
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		log.Printf("pulsed: metrics server: %v", err)
	}
}
