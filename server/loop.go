package server

import (
	"context"
	"errors"
	"net"

	"github.com/pulsehttp/pulsehttp/conn"
	"github.com/pulsehttp/pulsehttp/pulselog"
	"github.com/pulsehttp/pulsehttp/socket"
)

type shutdownRequest struct {
	ctx  context.Context
	done chan error
}

// connCounts is the last-seen snapshot of a Connection's own running
// counters, letting onReady turn an absolute per-connection total into
// a delta to add to the loop-wide Stats without conn importing server.
type connCounts struct {
	requests     uint64
	protocolErrs uint64
	bytesRead    uint64
	bytesWritten uint64
}

// Stats returns the loop's running counters. Safe to call from any
// goroutine; the fields themselves are atomics.
func (l *Loop) Stats() *Stats {
	return &l.stats
}

// Shutdown asks the loop to stop accepting new connections and wait
// for connections already in flight to finish on their own, forcing
// them closed only once ctx expires. Safe to call from a goroutine
// other than the one running Run, since the request is handed to Run's
// own select loop rather than touching Loop's connection map directly.
func (l *Loop) Shutdown(ctx context.Context) error {
	req := shutdownRequest{ctx: ctx, done: make(chan error, 1)}
	select {
	case l.shutdownReq <- req:
	case <-ctx.Done():
		return ctx.Err()
	}
	select {
	case err := <-req.done:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Run drives the loop until ctx is cancelled, the listener returns a
// fatal error, or Shutdown completes. Accepting new connections and
// pumping the readiness backend each run on their own goroutine, handing
// work back to Run over a channel — Run itself is the only goroutine
// that ever touches a Connection, so parser/outqueue/writer/router
// state is never shared across goroutines.
func (l *Loop) Run(ctx context.Context) error {
	l.acceptCh = make(chan net.Conn)
	l.acceptErrCh = make(chan error, 1)
	go func() {
		for {
			c, err := l.listener.Accept()
			if err != nil {
				l.acceptErrCh <- err
				return
			}
			l.acceptCh <- c
		}
	}()

	l.readyCh = make(chan []socket.ReadyEvent)
	l.readyErrCh = make(chan error, 1)
	go func() {
		for {
			events, err := l.backend.Wait(nil)
			if err != nil {
				l.readyErrCh <- err
				return
			}
			l.readyCh <- events
		}
	}()

	l.shutdownReq = make(chan shutdownRequest)

	for {
		select {
		case <-ctx.Done():
			l.forceClose()
			return ctx.Err()
		case req := <-l.shutdownReq:
			err := l.gracefulDrain(req.ctx)
			req.done <- err
			return err
		case err := <-l.acceptErrCh:
			l.forceClose()
			if errors.Is(err, net.ErrClosed) {
				return nil
			}
			return err
		case err := <-l.readyErrCh:
			l.forceClose()
			return err
		case raw := <-l.acceptCh:
			l.onAccept(raw)
		case events := <-l.readyCh:
			for _, ev := range events {
				l.onReady(ev)
			}
		}
	}
}

func (l *Loop) onAccept(raw net.Conn) {
	if err := socket.Apply(raw, l.cfg.Tuning); err != nil {
		pulselog.Warnf("server: socket tuning failed for new connection: %v", err)
	}

	id := l.nextID
	l.nextID++

	c := conn.New(socket.WrapRawConn(l.backend, id, raw), l.router)
	l.conns[id] = c
	l.connSeen[id] = connCounts{}
	l.stats.TotalConnections.Add(1)
	l.stats.ActiveConnections.Add(1)

	if err := l.backend.Register(id, raw, false); err != nil {
		pulselog.Errorf("server: conn %s: failed to register with readiness backend: %v", c.ID, err)
		c.Close()
		delete(l.conns, id)
		delete(l.connSeen, id)
		l.stats.ActiveConnections.Add(-1)
	}
}

func (l *Loop) onReady(ev socket.ReadyEvent) {
	c, ok := l.conns[ev.ID]
	if !ok {
		return
	}

	if ev.Readable {
		if err := c.OnReadable(); err != nil {
			pulselog.Warnf("server: conn %s: %v", c.ID, err)
			l.stats.ConnectionErrors.Add(1)
		}
	}
	if ev.Writable && c.Writable() {
		if err := c.OnWritable(); err != nil {
			pulselog.Warnf("server: conn %s: write error: %v", c.ID, err)
			l.stats.ConnectionErrors.Add(1)
		}
	}

	l.syncConnCounts(ev.ID, c)

	if c.Closed() {
		l.backend.Deregister(ev.ID)
		delete(l.conns, ev.ID)
		delete(l.connSeen, ev.ID)
		l.stats.ActiveConnections.Add(-1)
		return
	}
	_ = l.backend.SetWriteInterest(ev.ID, c.Writable())
}

// syncConnCounts folds a Connection's own running counters into the
// loop-wide Stats, adding only what changed since the last readiness
// dispatch for this id.
func (l *Loop) syncConnCounts(id uint64, c *conn.Connection) {
	prev := l.connSeen[id]
	reqs := c.RequestCount()
	perrs := c.ProtocolErrorCount()
	rbytes := c.BytesRead()
	wbytes := c.BytesWritten()

	if reqs > prev.requests {
		l.stats.TotalRequests.Add(reqs - prev.requests)
	}
	if perrs > prev.protocolErrs {
		l.stats.ProtocolErrors.Add(perrs - prev.protocolErrs)
	}
	if rbytes > prev.bytesRead {
		l.stats.BytesRead.Add(rbytes - prev.bytesRead)
	}
	if wbytes > prev.bytesWritten {
		l.stats.BytesWritten.Add(wbytes - prev.bytesWritten)
	}
	l.connSeen[id] = connCounts{requests: reqs, protocolErrs: perrs, bytesRead: rbytes, bytesWritten: wbytes}
}

// gracefulDrain stops accepting new connections and lets every
// in-flight connection close itself naturally (its last response
// flushes, or the client disconnects) before returning. A connection
// that hasn't closed by the time ctx expires is force-closed along with
// everything else still open.
func (l *Loop) gracefulDrain(ctx context.Context) error {
	l.listener.Close()

	for len(l.conns) > 0 {
		select {
		case <-ctx.Done():
			l.forceClose()
			return ctx.Err()
		case raw := <-l.acceptCh:
			// Accepted in the race between our listener.Close() call
			// and the accept goroutine's in-flight Accept() returning;
			// nothing has registered it with a handler yet, so just
			// drop it.
			raw.Close()
		case <-l.acceptErrCh:
			// Expected once listener.Close() above unblocks Accept().
		case events := <-l.readyCh:
			for _, ev := range events {
				l.onReady(ev)
			}
		}
	}
	return l.backend.Close()
}

func (l *Loop) forceClose() {
	l.listener.Close()
	for id, c := range l.conns {
		c.Close()
		l.backend.Deregister(id)
		delete(l.conns, id)
		delete(l.connSeen, id)
	}
	l.stats.ActiveConnections.Store(0)
	l.backend.Close()
}
