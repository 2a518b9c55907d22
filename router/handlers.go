package router

import (
	"github.com/pulsehttp/pulsehttp/message"
	"github.com/pulsehttp/pulsehttp/outqueue"
	"github.com/pulsehttp/pulsehttp/writer"
)

// Sender is the narrow surface a Handler needs to write a response: the
// connection inserts whatever Producer the handler hands it into its
// output queue. Handlers never touch a socket directly.
type Sender interface {
	Send(p outqueue.Producer)
}

// BaseHandler gives every Non-goal callback a no-op default, the way
// RequestHandler in the original did, so concrete handlers only
// implement the events they actually care about.
type BaseHandler struct{}

func (BaseHandler) OnRequest(*message.Message) error { return nil }
func (BaseHandler) OnData([]byte) error               { return nil }
func (BaseHandler) OnEnd() error                       { return nil }

// ContinueHandler embeds into a Handler that should auto-respond with
// "100 Continue" when the client sent Expect: 100-continue, before any
// body bytes are read. The status line reuses the request's protocol
// token.
type ContinueHandler struct {
	BaseHandler
	Sender Sender
}

func (h *ContinueHandler) OnRequest(req *message.Message) error {
	if req.Header("Expect") == "100-continue" {
		h.Sender.Send(writer.ComposeInterim(req.Protocol, "100", "Continue"))
	}
	return nil
}

// BufferedFunc is the callback signature BufferedHandler invokes once the
// full body has arrived. It writes its response (if any) through sender.
type BufferedFunc func(req *message.Message, body []byte, sender Sender) error

// BufferedHandler buffers the entire request body and invokes fn on End,
// the Go-native equivalent of the original's RequestProcessor decorator:
// most handlers don't want to deal with partial chunks, only the
// complete body.
type BufferedHandler struct {
	BaseHandler
	fn     BufferedFunc
	sender Sender
	req    *message.Message
}

// NewBufferedHandler returns a HandlerFactory that wraps fn. Use this as
// a Router route's factory: router.Add("/submit", NewBufferedHandler(fn)).
func NewBufferedHandler(fn BufferedFunc) HandlerFactory {
	return func(sender Sender) Handler {
		return &BufferedHandler{fn: fn, sender: sender}
	}
}

func (h *BufferedHandler) OnRequest(req *message.Message) error {
	h.req = req
	return nil
}

func (h *BufferedHandler) OnData(chunk []byte) error {
	h.req.AddBodyChunk(chunk)
	return nil
}

func (h *BufferedHandler) OnEnd() error {
	return h.fn(h.req, h.req.BodyBytes(), h.sender)
}

// notFoundHandler writes a canned 404 and ignores the request body.
type notFoundHandler struct {
	BaseHandler
	sender Sender
	req    *message.Message
}

func (h *notFoundHandler) OnRequest(req *message.Message) error {
	h.req = req
	return nil
}

func (h *notFoundHandler) OnEnd() error {
	h.sender.Send(writer.ComposeError(h.req.Protocol, "404", "Not Found", nil))
	return nil
}

// NewNotFoundHandler returns the default fallback: a canned 404. sender
// is supplied by the Connection that instantiates this Handler per
// request (it is the one piece of per-connection state a route's
// HandlerFactory needs).
func NewNotFoundHandler(sender Sender) Handler {
	return &notFoundHandler{sender: sender}
}
