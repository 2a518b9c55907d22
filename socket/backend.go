package socket

import "net"

// ReadyEvent reports that a previously registered connection became
// ready for reading, writing, or both, since the last Wait call.
type ReadyEvent struct {
	ID       uint64
	Readable bool
	Writable bool
}

// Backend is the readiness primitive server.Loop polls: register a
// connection once, then block in Wait for the next batch of readiness
// notifications. Every Connection the loop owns is identified by a
// caller-assigned uint64 (the loop uses a running counter), never by the
// underlying fd directly, so the same Loop code runs unmodified against
// any Backend implementation.
type Backend interface {
	// Register starts watching conn. wantWrite requests an initial
	// write-readiness watch in addition to read-readiness; most
	// connections register with wantWrite false and call
	// SetWriteInterest(true) only once they have output queued.
	Register(id uint64, conn net.Conn, wantWrite bool) error

	// SetWriteInterest toggles whether id is also watched for write
	// readiness. A Connection with an empty OutputQueue should disable
	// it, so Wait doesn't busy-spin reporting a socket as writable
	// when there is nothing queued to send.
	SetWriteInterest(id uint64, wantWrite bool) error

	// Deregister stops watching id. Safe to call once the connection
	// has already been torn down.
	Deregister(id uint64) error

	// Wait blocks until at least one registered connection is ready,
	// appending events to dst and returning the grown slice.
	Wait(dst []ReadyEvent) ([]ReadyEvent, error)

	// Close releases the backend's own resources (the epoll fd, the
	// fallback's background goroutines, ...).
	Close() error
}

// WrapRawConn lets a caller fetch the net.Conn it should actually read
// from for a given (backend, id) pair. Backends that read the socket
// directly (epoll) return conn unchanged; backends that pre-read into a
// buffer on a background goroutine (the portable fallback) return a
// wrapper that drains that buffer first.
func WrapRawConn(backend Backend, id uint64, conn net.Conn) net.Conn {
	if w, ok := backend.(interface {
		wrapRawConn(id uint64, conn net.Conn) net.Conn
	}); ok {
		return w.wrapRawConn(id, conn)
	}
	return conn
}
