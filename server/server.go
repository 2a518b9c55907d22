// Package server wires socket, conn, and router into a running
// listener: one Loop goroutine owns every accepted Connection and is
// the only goroutine that ever touches parser/outqueue/writer/router
// state, matching the single-threaded core those packages are written
// against. A second goroutine only accepts new connections and a third
// only pumps the readiness backend — both hand finished work to the
// Loop goroutine over a channel rather than touching connection state
// themselves.
package server

import (
	"context"
	"fmt"
	"net"
	"time"

	"github.com/pulsehttp/pulsehttp/conn"
	"github.com/pulsehttp/pulsehttp/pulselog"
	"github.com/pulsehttp/pulsehttp/router"
	"github.com/pulsehttp/pulsehttp/socket"
)

// Loop owns the listener, the readiness backend, and every accepted
// Connection for as long as it runs.
type Loop struct {
	cfg      Config
	listener net.Listener
	backend  socket.Backend
	router   *router.Router
	stats    Stats

	conns    map[uint64]*conn.Connection
	connSeen map[uint64]connCounts
	nextID   uint64

	acceptCh    chan net.Conn
	acceptErrCh chan error
	readyCh     chan []socket.ReadyEvent
	readyErrCh  chan error
	shutdownReq chan shutdownRequest
}

// NewLoop binds cfg's address and builds the routing table, returning a
// Loop ready for Run. Split out from Listen so an embedder that needs
// Shutdown can hold onto the Loop value while Run blocks on another
// goroutine.
func NewLoop(ctx context.Context, cfg Config) (*Loop, error) {
	merged := NewConfig(&cfg)

	addr := fmt.Sprintf("%s:%d", merged.Hostname, merged.Port)
	lc := net.ListenConfig{}
	listener, err := lc.Listen(ctx, merged.Network, addr)
	if err != nil {
		return nil, fmt.Errorf("pulsehttp/server: listen %s: %w", addr, err)
	}
	if err := socket.ApplyListener(listener, merged.Tuning); err != nil {
		pulselog.Warnf("server: listener tuning failed (continuing): %v", err)
	}

	backend := merged.ReadinessBackend
	if backend == nil {
		backend, err = socket.NewDefaultBackend()
		if err != nil {
			listener.Close()
			return nil, fmt.Errorf("pulsehttp/server: readiness backend: %w", err)
		}
	}

	r := router.New()
	for path, factory := range merged.Routes {
		r.Add(path, factory)
	}
	if merged.FileHandler != nil {
		r.SetFallback(merged.FileHandler)
	}

	loop := &Loop{
		cfg:      merged,
		listener: listener,
		backend:  backend,
		router:   r,
		conns:    make(map[uint64]*conn.Connection),
		connSeen: make(map[uint64]connCounts),
	}
	loop.stats.StartTime = time.Now()
	return loop, nil
}

// Addr returns the bound listener address, useful when Config.Port was
// 0 and the kernel picked an ephemeral one.
func (l *Loop) Addr() net.Addr {
	return l.listener.Addr()
}

// Listen binds cfg's address, builds the routing table, and runs the
// event loop until ctx is cancelled or a fatal accept error occurs. For
// a server that needs graceful Shutdown from another goroutine, call
// NewLoop and loop.Run directly instead.
func Listen(ctx context.Context, cfg Config) error {
	loop, err := NewLoop(ctx, cfg)
	if err != nil {
		return err
	}
	return loop.Run(ctx)
}
