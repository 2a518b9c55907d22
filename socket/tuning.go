// Package socket carries the platform-facing half of the engine: TCP
// tuning applied on accept, zero-copy file transmission, and the
// readiness backend (epoll on Linux) that the event loop polls. None of
// it is required to drive the protocol packages — conn.Connection only
// needs a RawConn — but a real deployment wants all three.
package socket

import (
	"net"
	"syscall"
)

// Config is the set of TCP-level knobs applied to an accepted
// connection. Zero values mean "leave the system default alone".
type Config struct {
	// NoDelay disables Nagle's algorithm (TCP_NODELAY). Recommended for
	// any request/response protocol where latency matters more than
	// packing every segment full.
	NoDelay bool

	// RecvBuffer and SendBuffer set SO_RCVBUF/SO_SNDBUF in bytes. 0
	// leaves the kernel default (usually 128KB-256KB) in place.
	RecvBuffer int
	SendBuffer int

	// QuickAck requests TCP_QUICKACK on Linux, trading a few more ACK
	// packets for avoiding the ~40ms delayed-ACK timer.
	QuickAck bool

	// DeferAccept requests TCP_DEFER_ACCEPT on Linux: the kernel holds
	// the accept() until the client has actually sent bytes, so the
	// event loop never wakes for an empty connection.
	DeferAccept bool

	// FastOpen enables TCP Fast Open on the listener where supported.
	FastOpen bool

	// KeepAlive enables SO_KEEPALIVE, tuned per-platform in
	// applyPlatformOptions.
	KeepAlive bool
}

// DefaultConfig is a reasonable starting point for an HTTP listener.
func DefaultConfig() *Config {
	return &Config{
		NoDelay:     true,
		RecvBuffer:  256 * 1024,
		SendBuffer:  256 * 1024,
		QuickAck:    true,
		DeferAccept: true,
		FastOpen:    true,
		KeepAlive:   true,
	}
}

// Apply tunes an accepted connection. Non-TCP conn types are left alone
// (returns nil) since there is nothing to tune.
func Apply(conn net.Conn, cfg *Config) error {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	tcpConn, ok := conn.(*net.TCPConn)
	if !ok {
		return nil
	}
	rawConn, err := tcpConn.SyscallConn()
	if err != nil {
		return err
	}

	var lastErr error
	err = rawConn.Control(func(fd uintptr) {
		if cfg.NoDelay {
			if err := syscall.SetsockoptInt(int(fd), syscall.IPPROTO_TCP, syscall.TCP_NODELAY, 1); err != nil {
				lastErr = err
				return
			}
		}
		if cfg.RecvBuffer > 0 {
			_ = syscall.SetsockoptInt(int(fd), syscall.SOL_SOCKET, syscall.SO_RCVBUF, cfg.RecvBuffer)
		}
		if cfg.SendBuffer > 0 {
			_ = syscall.SetsockoptInt(int(fd), syscall.SOL_SOCKET, syscall.SO_SNDBUF, cfg.SendBuffer)
		}
		if cfg.KeepAlive {
			_ = syscall.SetsockoptInt(int(fd), syscall.SOL_SOCKET, syscall.SO_KEEPALIVE, 1)
		}
		applyPlatformOptions(int(fd), cfg)
	})
	if err != nil {
		return err
	}
	return lastErr
}

// ApplyListener tunes the listening socket itself: TCP_DEFER_ACCEPT and
// TCP_FASTOPEN must be set before the first Accept, not per-connection.
func ApplyListener(listener net.Listener, cfg *Config) error {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	tcpListener, ok := listener.(*net.TCPListener)
	if !ok {
		return nil
	}
	file, err := tcpListener.File()
	if err != nil {
		return err
	}
	defer file.Close()
	return applyListenerOptions(int(file.Fd()), cfg)
}
