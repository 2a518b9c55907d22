// Package message defines the wire-independent HTTP message value shared
// by the parser, writer, and router: a request or a response, its headers,
// and the body bytes accumulated so far.
package message

import (
	"bytes"
	"errors"
	"strings"
	"unicode/utf8"
)

// Kind distinguishes a request Message from a response Message.
type Kind uint8

const (
	// Request marks a Message produced from a request start-line.
	Request Kind = iota
	// Response marks a Message produced from a status-line.
	Response
)

// Message is either an HTTP request or an HTTP response, plus whatever body
// bytes have arrived so far. A Parser mutates a Message across a sequence
// of Data events and finalizes it on the End event; a Writer only ever
// reads one to compose bytes. Messages are never copied, only referenced.
type Message struct {
	Kind Kind

	// Request fields, valid when Kind == Request.
	Method string
	URL    string

	// Response fields, valid when Kind == Response.
	Code   string
	Reason string

	// Protocol is the start-line's HTTP version token, e.g. "HTTP/1.1".
	Protocol string

	// headers preserves insertion order for Writer output while giving
	// case-insensitive lookup via a parallel lowercase key.
	names  []string
	lowers []string
	values []string

	body [][]byte
}

// NewRequest builds a request Message from its start-line fields.
func NewRequest(method, url, protocol string, headers [][2]string) *Message {
	m := &Message{Kind: Request, Method: method, URL: url, Protocol: protocol}
	for _, h := range headers {
		m.AddHeader(h[0], h[1])
	}
	return m
}

// NewResponse builds a response Message from its start-line fields.
func NewResponse(protocol, code, reason string, headers [][2]string) *Message {
	m := &Message{Kind: Response, Protocol: protocol, Code: code, Reason: reason}
	for _, h := range headers {
		m.AddHeader(h[0], h[1])
	}
	return m
}

// AddHeader appends a header, preserving duplicates in order the way HTTP
// allows (e.g. repeated Set-Cookie). Lookups fold to the first match. It
// returns the header's index, which a caller assembling headers line by
// line (the Parser) can hand back to AppendHeaderValue to fold in an
// obs-fold continuation line.
func (m *Message) AddHeader(name, value string) int {
	m.names = append(m.names, name)
	m.lowers = append(m.lowers, strings.ToLower(name))
	m.values = append(m.values, value)
	return len(m.values) - 1
}

// AppendHeaderValue folds an obs-fold continuation line into the value
// of the header at idx, joined by a single space, per RFC 7230 §3.2.4.
func (m *Message) AppendHeaderValue(idx int, extra string) {
	m.values[idx] += " " + extra
}

// Header returns the first value for name (case-insensitively), or "" if
// absent. Mirrors the original HTTPMessage.__getitem__ contract: a miss is
// not an error.
func (m *Message) Header(name string) string {
	lower := strings.ToLower(name)
	for i, n := range m.lowers {
		if n == lower {
			return m.values[i]
		}
	}
	return ""
}

// Headers returns every (name, value) pair in wire order.
func (m *Message) Headers() [][2]string {
	out := make([][2]string, len(m.names))
	for i := range m.names {
		out[i] = [2]string{m.names[i], m.values[i]}
	}
	return out
}

// AddBodyChunk appends a chunk of body bytes. The slice is retained, not
// copied; callers must not mutate it afterward.
func (m *Message) AddBodyChunk(chunk []byte) {
	if len(chunk) == 0 {
		return
	}
	m.body = append(m.body, chunk)
}

// BodyBytes concatenates every accumulated body chunk.
func (m *Message) BodyBytes() []byte {
	var buf bytes.Buffer
	for _, c := range m.body {
		buf.Write(c)
	}
	return buf.Bytes()
}

// ErrDecode is returned by BodyString when the body cannot be decoded as
// the resolved encoding.
var ErrDecode = errors.New("pulsehttp/message: cannot decode body")

// BodyString decodes the accumulated body as text. With no argument, the
// encoding is resolved in priority order: an explicit charset= parameter
// on Content-Type, then application/json or application/xml (utf-8),
// otherwise iso-8859-1 directly — no utf-8 attempt is made in that last
// case, since iso-8859-1 never fails to decode and is the resolved
// encoding, not a fallback from a failed one.
func (m *Message) BodyString(encoding ...string) (string, error) {
	raw := m.BodyBytes()
	enc := ""
	if len(encoding) > 0 && encoding[0] != "" {
		enc = strings.ToLower(encoding[0])
	} else {
		enc = m.resolveEncoding()
	}
	switch enc {
	case "":
		return isoLatin1(raw), nil
	case "utf-8", "utf8":
		if utf8ok(raw) {
			return string(raw), nil
		}
		return "", ErrDecode
	case "iso-8859-1", "latin-1", "latin1":
		return isoLatin1(raw), nil
	case "ascii":
		for _, b := range raw {
			if b > 0x7f {
				return "", ErrDecode
			}
		}
		return string(raw), nil
	default:
		if utf8ok(raw) {
			return string(raw), nil
		}
		return "", ErrDecode
	}
}

// String renders a short debug line, e.g. "GET /index HTTP/1.1" or
// "HTTP/1.1 200 OK", for debug output. Nothing in this module calls it.
func (m *Message) String() string {
	if m.Kind == Request {
		return m.Method + " " + m.URL + " " + m.Protocol
	}
	return m.Protocol + " " + m.Code + " " + m.Reason
}

func (m *Message) resolveEncoding() string {
	ct := strings.ToLower(m.Header("Content-Type"))
	if idx := strings.Index(ct, "charset="); idx >= 0 {
		cs := ct[idx+len("charset="):]
		if semi := strings.IndexByte(cs, ';'); semi >= 0 {
			cs = cs[:semi]
		}
		cs = strings.TrimSpace(cs)
		if cs != "" {
			return cs
		}
	}
	if strings.Contains(ct, "application/json") || strings.Contains(ct, "application/xml") {
		return "utf-8"
	}
	return ""
}

func utf8ok(b []byte) bool {
	return utf8.Valid(b)
}

func isoLatin1(b []byte) string {
	runes := make([]rune, len(b))
	for i, c := range b {
		runes[i] = rune(c)
	}
	return string(runes)
}
