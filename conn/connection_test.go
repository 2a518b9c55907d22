package conn

import (
	"io"
	"strings"
	"testing"

	"github.com/pulsehttp/pulsehttp/message"
	"github.com/pulsehttp/pulsehttp/router"
	"github.com/pulsehttp/pulsehttp/writer"
)

// mockRawConn is a RawConn backed by in-memory buffers, the same shape as
// the teacher's mockConn but trimmed to the three methods RawConn needs.
type mockRawConn struct {
	readData  *strings.Reader
	writeData strings.Builder
	closed    bool
	// writeLimit caps how many bytes a single Write accepts, for
	// exercising the partial-send/reinsertion path.
	writeLimit int
}

func newMockRawConn(data string) *mockRawConn {
	return &mockRawConn{readData: strings.NewReader(data)}
}

func (m *mockRawConn) Read(p []byte) (int, error) {
	return m.readData.Read(p)
}

func (m *mockRawConn) Write(p []byte) (int, error) {
	if m.writeLimit > 0 && len(p) > m.writeLimit {
		p = p[:m.writeLimit]
	}
	n, err := m.writeData.Write(p)
	return n, err
}

func (m *mockRawConn) Close() error {
	m.closed = true
	return nil
}

func newEchoRouter() *router.Router {
	r := router.New()
	r.Add("/echo", router.NewBufferedHandler(func(req *message.Message, body []byte, sender router.Sender) error {
		return nil
	}))
	return r
}

// respondingHandler writes a canned 200 OK once the request is complete,
// the way a trivial route's handler would.
type respondingHandler struct {
	router.BaseHandler
	sender router.Sender
}

func (h *respondingHandler) OnEnd() error {
	h.sender.Send(writer.ComposeResponse("HTTP/1.1", "200", "OK", [][2]string{{"Content-Type", "text/plain"}}, []byte("hi")))
	return nil
}

func newRespondingRouter(c *Connection) *router.Router {
	r := router.New()
	r.Add("/hello", func(sender router.Sender) router.Handler {
		return &respondingHandler{sender: sender}
	})
	return r
}

func TestConnectionRoundTripWritesResponse(t *testing.T) {
	raw := newMockRawConn("GET /hello HTTP/1.1\r\nHost: example.com\r\n\r\n")
	c := New(raw, nil)
	c.router = newRespondingRouter(c)

	if err := c.OnReadable(); err != nil {
		t.Fatalf("OnReadable: %v", err)
	}
	if !c.Writable() {
		t.Fatalf("expected a response queued")
	}
	for c.Writable() {
		if err := c.OnWritable(); err != nil {
			t.Fatalf("OnWritable: %v", err)
		}
	}
	out := raw.writeData.String()
	if !strings.HasPrefix(out, "HTTP/1.1 200 OK\r\n") {
		t.Fatalf("missing status line: %q", out)
	}
	if !strings.HasSuffix(out, "hi") {
		t.Fatalf("missing body: %q", out)
	}
}

func TestConnectionPartialWriteReinsertsTail(t *testing.T) {
	raw := newMockRawConn("GET /hello HTTP/1.1\r\nHost: example.com\r\n\r\n")
	raw.writeLimit = 5
	c := New(raw, nil)
	c.router = newRespondingRouter(c)

	if err := c.OnReadable(); err != nil {
		t.Fatalf("OnReadable: %v", err)
	}
	writes := 0
	for c.Writable() {
		if err := c.OnWritable(); err != nil {
			t.Fatalf("OnWritable: %v", err)
		}
		writes++
		if writes > 100 {
			t.Fatalf("OnWritable looping without draining the queue")
		}
	}
	out := raw.writeData.String()
	if !strings.HasPrefix(out, "HTTP/1.1 200 OK\r\n") || !strings.HasSuffix(out, "hi") {
		t.Fatalf("reassembled output corrupted across partial writes: %q", out)
	}
	if writes < 2 {
		t.Fatalf("expected more than one OnWritable call with a 5-byte write limit, got %d", writes)
	}
}

func TestConnectionConnectionCloseHeaderTearsDownAfterFlush(t *testing.T) {
	raw := newMockRawConn("GET /hello HTTP/1.1\r\nHost: example.com\r\nConnection: close\r\n\r\n")
	c := New(raw, nil)
	c.router = newRespondingRouter(c)

	if err := c.OnReadable(); err != nil {
		t.Fatalf("OnReadable: %v", err)
	}
	for c.Writable() {
		if err := c.OnWritable(); err != nil {
			t.Fatalf("OnWritable: %v", err)
		}
	}
	if !c.Closed() {
		t.Fatalf("expected connection to be torn down once its response drained")
	}
	if !raw.closed {
		t.Fatalf("expected the underlying raw connection to be closed")
	}
}

func TestConnectionEOFWithNoRequestClosesCleanly(t *testing.T) {
	raw := newMockRawConn("")
	c := New(raw, nil)
	c.router = router.New()

	err := c.OnReadable()
	if err != nil {
		t.Fatalf("OnReadable on immediate EOF: %v", err)
	}
	if !c.Closed() {
		t.Fatalf("expected connection to tear down once the parser reaches its terminal state")
	}
}

func TestConnectionNotFoundFallback(t *testing.T) {
	raw := newMockRawConn("GET /missing HTTP/1.1\r\nHost: example.com\r\n\r\n")
	c := New(raw, nil)
	c.router = router.New() // no routes, no fallback registered

	if err := c.OnReadable(); err != nil {
		t.Fatalf("OnReadable: %v", err)
	}
	for c.Writable() {
		if err := c.OnWritable(); err != nil {
			t.Fatalf("OnWritable: %v", err)
		}
	}
	out := raw.writeData.String()
	if !strings.HasPrefix(out, "HTTP/1.1 404 Not Found\r\n") {
		t.Fatalf("expected a canned 404 for an unrouted path, got %q", out)
	}
}

func TestConnectionCloseIsIdempotent(t *testing.T) {
	raw := newMockRawConn("")
	c := New(raw, router.New())
	c.Close()
	c.Close()
	if !raw.closed {
		t.Fatalf("expected underlying conn closed")
	}
}

// erroringHandler returns a plain error (no response ever queued),
// exercising handlerFailed's no-bytes-sent path.
type erroringHandler struct {
	router.BaseHandler
}

func (h *erroringHandler) OnEnd() error {
	return errBoom
}

var errBoom = io.ErrUnexpectedEOF

func newErroringRouter() *router.Router {
	r := router.New()
	r.Add("/boom", func(router.Sender) router.Handler { return &erroringHandler{} })
	return r
}

func TestConnectionHandlerErrorSynthesizes500(t *testing.T) {
	raw := newMockRawConn("GET /boom HTTP/1.1\r\nHost: example.com\r\n\r\n")
	c := New(raw, nil)
	c.router = newErroringRouter()

	if err := c.OnReadable(); err != nil {
		t.Fatalf("OnReadable: %v", err)
	}
	if !c.Writable() {
		t.Fatalf("expected a synthesized 500 to be queued")
	}
	for c.Writable() {
		if err := c.OnWritable(); err != nil {
			t.Fatalf("OnWritable: %v", err)
		}
	}
	out := raw.writeData.String()
	if !strings.HasPrefix(out, "HTTP/1.1 500 Internal Server Error\r\n") {
		t.Fatalf("expected a synthesized 500, got %q", out)
	}
}

// panickingHandler panics instead of returning an error, exercising
// invokeHandler's recover.
type panickingHandler struct {
	router.BaseHandler
}

func (h *panickingHandler) OnEnd() error {
	panic("handler exploded")
}

func newPanickingRouter() *router.Router {
	r := router.New()
	r.Add("/panic", func(router.Sender) router.Handler { return &panickingHandler{} })
	return r
}

func TestConnectionHandlerPanicIsRecoveredAnd500d(t *testing.T) {
	raw := newMockRawConn("GET /panic HTTP/1.1\r\nHost: example.com\r\n\r\n")
	c := New(raw, nil)
	c.router = newPanickingRouter()

	if err := c.OnReadable(); err != nil {
		t.Fatalf("OnReadable: %v", err)
	}
	for c.Writable() {
		if err := c.OnWritable(); err != nil {
			t.Fatalf("OnWritable: %v", err)
		}
	}
	out := raw.writeData.String()
	if !strings.HasPrefix(out, "HTTP/1.1 500 Internal Server Error\r\n") {
		t.Fatalf("expected a synthesized 500 after a recovered panic, got %q", out)
	}
}

// lateFailingHandler sends a real response, then errors from OnEnd —
// handlerFailed must not try to queue a second response once bytes have
// already started going out, and should close the connection instead.
type lateFailingHandler struct {
	router.BaseHandler
	sender router.Sender
}

func (h *lateFailingHandler) OnRequest(req *message.Message) error {
	h.sender.Send(writer.ComposeResponse(req.Protocol, "200", "OK", nil, []byte("partial")))
	return nil
}

func (h *lateFailingHandler) OnEnd() error {
	return errBoom
}

func newLateFailingRouter() *router.Router {
	r := router.New()
	r.Add("/late", func(sender router.Sender) router.Handler { return &lateFailingHandler{sender: sender} })
	return r
}

func TestConnectionHandlerErrorAfterResponseSentClosesInsteadOfDoubleSending(t *testing.T) {
	raw := newMockRawConn("GET /late HTTP/1.1\r\nHost: example.com\r\n\r\n")
	c := New(raw, nil)
	c.router = newLateFailingRouter()

	if err := c.OnReadable(); err != nil {
		t.Fatalf("OnReadable: %v", err)
	}
	for c.Writable() {
		if err := c.OnWritable(); err != nil {
			t.Fatalf("OnWritable: %v", err)
		}
	}
	out := raw.writeData.String()
	if !strings.HasPrefix(out, "HTTP/1.1 200 OK\r\n") || !strings.HasSuffix(out, "partial") {
		t.Fatalf("expected only the original response, got %q", out)
	}
	if !c.Closed() {
		t.Fatalf("expected the connection to close once a late handler error can't be corrected")
	}
}

var _ io.Closer = (*mockRawConn)(nil)
