// Package conn glues one socket to a Parser, an OutputQueue, and the
// Router: it is the single-connection state machine a readiness-driven
// event loop drives by calling OnReadable/OnWritable whenever the OS
// reports the fd ready. Nothing here blocks and nothing here spawns a
// goroutine — that is the whole point of the single-threaded model this
// package exists in.
package conn

import (
	"errors"
	"fmt"
	"io"
	"sync/atomic"

	"github.com/google/uuid"

	"github.com/pulsehttp/pulsehttp/message"
	"github.com/pulsehttp/pulsehttp/outqueue"
	"github.com/pulsehttp/pulsehttp/parser"
	"github.com/pulsehttp/pulsehttp/pulselog"
	"github.com/pulsehttp/pulsehttp/router"
	"github.com/pulsehttp/pulsehttp/writer"
)

// RawConn is the minimal socket surface a Connection needs. It is
// satisfied by *net.TCPConn and by the epoll backend's fd wrapper alike,
// so the same Connection code runs under either readiness backend.
type RawConn interface {
	Read(p []byte) (int, error)
	Write(p []byte) (int, error)
	Close() error
}

// ReadBufferSize is how many bytes OnReadable asks the socket for per
// readiness notification.
const ReadBufferSize = 65535

// Connection owns one accepted socket end to end: feeding bytes to a
// Parser, dispatching the resulting events to Router-selected Handlers,
// and draining composed response bytes from an OutputQueue back onto the
// wire. It implements router.Sender so Handlers can hand it Producers to
// send.
type Connection struct {
	ID     string
	raw    RawConn
	router *router.Router
	p      *parser.Parser
	out    *outqueue.Queue

	active       router.Handler
	lastRequest  *message.Message
	responseSent bool // true once this request's response has started going out
	closing      bool
	closed       bool

	requests     atomic.Uint64
	protocolErrs atomic.Uint64
	bytesRead    atomic.Uint64
	bytesWritten atomic.Uint64

	readBuf [ReadBufferSize]byte
}

// RequestCount returns how many requests this connection has dispatched
// to a handler so far. An event loop reads this to turn per-connection
// activity into a running total, adding the increase since its last
// read.
func (c *Connection) RequestCount() uint64 {
	return c.requests.Load()
}

// ProtocolErrorCount returns how many times the parser has rejected
// bytes on this connection as malformed.
func (c *Connection) ProtocolErrorCount() uint64 {
	return c.protocolErrs.Load()
}

// BytesRead returns the number of bytes read from the socket so far.
func (c *Connection) BytesRead() uint64 {
	return c.bytesRead.Load()
}

// BytesWritten returns the number of bytes written to the socket so far.
func (c *Connection) BytesWritten() uint64 {
	return c.bytesWritten.Load()
}

// New wraps raw for request dispatch against r. ID is a short
// correlation identifier included in every log line for this
// connection, grounded on the same "every request gets a traceable
// identity" idiom the karpenter provider's resource objects follow.
func New(raw RawConn, r *router.Router) *Connection {
	return &Connection{
		ID:     uuid.NewString()[:8],
		raw:    raw,
		router: r,
		p:      parser.New(),
		out:    outqueue.New(),
	}
}

// Send implements router.Sender: a Handler calls this to enqueue a
// composed response. It is never safe to call from a goroutine other
// than the one driving the event loop.
func (c *Connection) Send(p outqueue.Producer) {
	c.out.Insert(p)
	c.responseSent = true
}

// Writable reports whether the connection has anything queued to send.
// An event loop uses this to decide whether to keep watching for write
// readiness on this fd.
func (c *Connection) Writable() bool {
	return !c.out.Empty()
}

// Closed reports whether the connection has been fully torn down: the
// caller should deregister it from the readiness backend and release
// any resources keyed by it.
func (c *Connection) Closed() bool {
	return c.closed
}

// OnReadable is called when the fd has bytes available. It reads once,
// feeds the Parser, and drains every event the new bytes make available.
// A ProtocolError ends the connection; EOF between messages ends it
// cleanly. A handler error is answered with a 500 when nothing has been
// sent for the request yet, and otherwise ends the connection.
func (c *Connection) OnReadable() error {
	n, err := c.raw.Read(c.readBuf[:])
	if n > 0 {
		c.bytesRead.Add(uint64(n))
		c.p.Feed(c.readBuf[:n])
	}
	if err != nil {
		if errors.Is(err, io.EOF) {
			c.p.EOF()
		} else {
			c.teardown()
			return err
		}
	}
	return c.drainParser()
}

func (c *Connection) drainParser() error {
	for {
		ev, err := c.p.Next()
		if err != nil {
			if errors.Is(err, parser.ErrClosed) {
				c.closing = true
				c.maybeTeardown()
				return nil
			}
			pulselog.Warnf("conn %s: protocol error: %v", c.ID, err)
			c.protocolErrs.Add(1)
			c.sendErrorIfPossible(err)
			c.closing = true
			c.maybeTeardown()
			return nil
		}
		switch ev.Kind {
		case parser.KindNone:
			return nil
		case parser.KindRequest, parser.KindResponse:
			if err := c.dispatchStart(ev.Message); err != nil {
				return err
			}
		case parser.KindData:
			if c.active != nil {
				if err := c.invokeHandler(func() error { return c.active.OnData(ev.Data) }); err != nil {
					c.handlerFailed(err)
					c.active = nil
				}
			}
		case parser.KindEnd:
			if c.active != nil {
				if err := c.invokeHandler(func() error { return c.active.OnEnd() }); err != nil {
					c.handlerFailed(err)
				}
				c.active = nil
			}
			if closeAfter(c.lastRequest) {
				c.closing = true
			}
			c.maybeTeardown()
		}
	}
}

// maybeTeardown closes the connection immediately when it is marked
// closing and has nothing left queued to send — otherwise a connection
// whose last response was already fully flushed before closing was
// decided would sit open forever, since an event loop only calls
// OnWritable while Writable() reports true.
func (c *Connection) maybeTeardown() {
	if c.closing && c.out.Empty() {
		c.teardown()
	}
}

func (c *Connection) dispatchStart(req *message.Message) error {
	c.requests.Add(1)
	c.lastRequest = req
	c.responseSent = false
	h, ok := c.router.Route(req.URL, c)
	if !ok {
		h = router.NewNotFoundHandler(c)
	}
	c.active = h
	if err := c.invokeHandler(func() error { return h.OnRequest(req) }); err != nil {
		c.handlerFailed(err)
		c.active = nil
	}
	return nil
}

// invokeHandler runs fn, recovering a panic into an error the same way a
// returned error is handled — a broken Handler shouldn't take the whole
// event loop goroutine down with it.
func (c *Connection) invokeHandler(fn func() error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	return fn()
}

// handlerFailed logs a Handler's error (or recovered panic) and, unless
// this request's response has already started going out, synthesizes a
// 500 so the client still gets a well-formed reply instead of a stalled
// or reset connection. Once any bytes of the response have been queued,
// the message can no longer be corrected, so the connection closes
// instead of risking a second, interleaved response.
func (c *Connection) handlerFailed(err error) {
	pulselog.Warnf("conn %s: handler error: %v", c.ID, err)
	if c.responseSent {
		c.closing = true
		c.maybeTeardown()
		return
	}
	proto := "HTTP/1.1"
	if c.lastRequest != nil {
		proto = c.lastRequest.Protocol
	}
	c.out.Insert(writer.ComposeError(proto, "500", "Internal Server Error", nil))
	c.responseSent = true
}

// closeAfter decides whether the connection should close once the
// output queue drains, based on the request that just completed: it
// remembers the most recent start-line's Message since the End event
// itself carries none.
func closeAfter(req *message.Message) bool {
	if req == nil {
		return false
	}
	if req.Header("Connection") == "close" {
		return true
	}
	if req.Protocol == "HTTP/1.0" && req.Header("Connection") != "keep-alive" {
		return true
	}
	return false
}

func (c *Connection) sendErrorIfPossible(err error) {
	var pe *parser.ProtocolError
	if errors.As(err, &pe) {
		c.out.Insert(writer.ComposeError("HTTP/1.1", "400", "Bad Request", nil))
	}
}

// OnWritable is called when the fd can accept more bytes. It pulls one
// chunk from the queue, writes it, and reinserts any unsent tail — the
// partial-send invariant the OutputQueue exists to make safe.
func (c *Connection) OnWritable() error {
	chunk, ok := c.out.NextChunk()
	if !ok {
		c.maybeTeardown()
		return nil
	}
	n, err := c.raw.Write(chunk)
	if n > 0 {
		c.bytesWritten.Add(uint64(n))
	}
	if n < len(chunk) {
		c.out.ReinsertPartial(chunk[n:])
	}
	if err != nil {
		c.teardown()
		return err
	}
	if c.closing && c.out.Empty() {
		c.teardown()
	}
	return nil
}

func (c *Connection) teardown() {
	if c.closed {
		return
	}
	c.closed = true
	c.raw.Close()
}

// Close forces the connection closed regardless of queued output,
// e.g. on server shutdown.
func (c *Connection) Close() {
	c.teardown()
}
