//go:build !linux
// +build !linux

package socket

import (
	"io"
	"net"
	"sync"
)

// pollBackend is the portable readiness fallback for platforms without
// an epoll wired up here: one goroutine per registered connection does
// the blocking Read the epoll backend avoids, and reports readiness
// through a shared channel once bytes (or an error) arrive. It
// preserves the same suspend/resume contract server.Loop relies on —
// Wait still blocks until something is ready — at the cost of one
// parked goroutine per connection instead of zero.
type pollBackend struct {
	ready chan uint64

	mu    sync.Mutex
	conns map[uint64]*pollConn
}

// NewPollBackend returns the fallback backend used on platforms where
// NewEpollBackend isn't available.
func NewPollBackend() (Backend, error) {
	return &pollBackend{
		ready: make(chan uint64, 128),
		conns: make(map[uint64]*pollConn),
	}, nil
}

type pollConn struct {
	id     uint64
	conn   net.Conn
	resume chan struct{}

	mu      sync.Mutex
	pending []byte
	err     error
}

func (b *pollBackend) Register(id uint64, conn net.Conn, wantWrite bool) error {
	pc := &pollConn{id: id, conn: conn, resume: make(chan struct{}, 1)}
	b.mu.Lock()
	b.conns[id] = pc
	b.mu.Unlock()
	go b.pump(pc)
	pc.resume <- struct{}{}
	return nil
}

// pump runs in its own goroutine for the lifetime of the connection,
// performing the blocking Read the single-threaded loop can't do
// itself, one Read per resume signal.
func (b *pollBackend) pump(pc *pollConn) {
	buf := make([]byte, 65536)
	for range pc.resume {
		n, err := pc.conn.Read(buf)
		pc.mu.Lock()
		if n > 0 {
			pc.pending = append(pc.pending, buf[:n]...)
		}
		pc.err = err
		pc.mu.Unlock()
		b.ready <- pc.id
		if err != nil {
			return
		}
	}
}

// SetWriteInterest is a no-op here: the fallback backend always reports
// a registered connection as opportunistically writable, since
// detecting real write-readiness without platform-specific polling
// would require the same machinery epoll already gives Linux for free.
func (b *pollBackend) SetWriteInterest(id uint64, wantWrite bool) error {
	return nil
}

func (b *pollBackend) Deregister(id uint64) error {
	b.mu.Lock()
	pc, ok := b.conns[id]
	if ok {
		delete(b.conns, id)
	}
	b.mu.Unlock()
	if ok {
		close(pc.resume)
	}
	return nil
}

func (b *pollBackend) Wait(dst []ReadyEvent) ([]ReadyEvent, error) {
	id := <-b.ready
	return append(dst, ReadyEvent{ID: id, Readable: true, Writable: true}), nil
}

func (b *pollBackend) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	for id, pc := range b.conns {
		close(pc.resume)
		delete(b.conns, id)
	}
	return nil
}

// drainPending lets a RawConn adapter pull bytes the backend's
// background goroutine already read before the loop was told id was
// readable, and arms the next blocking Read once the buffer is empty.
// conn.Connection.OnReadable calls this through a PollRawConn rather
// than reading pc directly.
func (b *pollBackend) drainPending(id uint64, p []byte) (int, error) {
	b.mu.Lock()
	pc, ok := b.conns[id]
	b.mu.Unlock()
	if !ok {
		return 0, io.ErrClosedPipe
	}
	pc.mu.Lock()
	defer pc.mu.Unlock()
	if len(pc.pending) == 0 {
		if pc.err != nil {
			return 0, pc.err
		}
		return 0, nil
	}
	n := copy(p, pc.pending)
	pc.pending = pc.pending[n:]
	if len(pc.pending) == 0 && pc.err == nil {
		pc.resume <- struct{}{}
	}
	return n, nil
}

// PollRawConn wraps a registered connection's id so conn.Connection can
// read through the fallback backend's pre-buffered bytes instead of
// racing the background pump goroutine directly.
type PollRawConn struct {
	net.Conn
	backend *pollBackend
	id      uint64
}

// NewPollRawConn returns the RawConn server.Loop hands to conn.New when
// running under the fallback backend.
func NewPollRawConn(backend Backend, id uint64, conn net.Conn) *PollRawConn {
	pb, _ := backend.(*pollBackend)
	return &PollRawConn{Conn: conn, backend: pb, id: id}
}

func (p *PollRawConn) Read(b []byte) (int, error) {
	return p.backend.drainPending(p.id, b)
}

func (b *pollBackend) wrapRawConn(id uint64, conn net.Conn) net.Conn {
	return NewPollRawConn(b, id, conn)
}
