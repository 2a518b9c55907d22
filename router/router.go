// Package router maps a request path to a Handler factory: exact-path
// lookup only, with a single fallback for everything else. There is no
// pattern matching or per-method dispatch — a Handler that cares about
// the method inspects the Message itself.
package router

import (
	"strings"

	"github.com/pulsehttp/pulsehttp/message"
)

// Handler receives the three events a Connection drains from the Parser
// for one request: the start-line + headers, zero or more body chunks,
// and end-of-message. It writes its response (if any) through Writer,
// via whatever mechanism the embedding Connection exposes to it — the
// three methods below only observe the request side.
type Handler interface {
	OnRequest(req *message.Message) error
	OnData(chunk []byte) error
	OnEnd() error
}

// HandlerFactory produces a fresh Handler for each request, the same way
// the original's add_route stored a class/callable to instantiate per
// connection rather than a single shared instance. It receives the
// requesting connection's Sender so a route registered once against a
// Router shared by every connection can still write back to the one
// that made this particular request.
type HandlerFactory func(sender Sender) Handler

// Router holds the exact-path routing table and an optional fallback.
type Router struct {
	routes   map[string]HandlerFactory
	fallback HandlerFactory
}

// New returns an empty Router. Register routes with Add; set Fallback
// for anything that doesn't match (a file handler, a 404 page, etc).
func New() *Router {
	return &Router{routes: make(map[string]HandlerFactory)}
}

// Add registers factory for the exact path.
func (r *Router) Add(path string, factory HandlerFactory) {
	r.routes[path] = factory
}

// SetFallback registers the factory used when no exact path matches.
func (r *Router) SetFallback(factory HandlerFactory) {
	r.fallback = factory
}

// Route resolves url (which may carry a "?query" suffix, stripped before
// lookup) to a Handler built against sender. ok is false only when there
// is neither an exact match nor a fallback.
func (r *Router) Route(url string, sender Sender) (Handler, bool) {
	path := url
	if idx := strings.IndexByte(url, '?'); idx >= 0 {
		path = url[:idx]
	}
	if factory, found := r.routes[path]; found {
		return factory(sender), true
	}
	if r.fallback != nil {
		return r.fallback(sender), true
	}
	return nil, false
}
