// +build !metrics

package main

import (
	"context"

	"github.com/pulsehttp/pulsehttp/server"
)

// serveMetrics is a no-op in a build without the "metrics" tag, so
// main.go can call it unconditionally regardless of which build it's
// linked into.
func serveMetrics(ctx context.Context, loop *server.Loop) {}
