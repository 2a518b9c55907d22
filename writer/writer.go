// Package writer composes outbound HTTP/1.x bytes as pure functions that
// return an outqueue.Producer, never writing to a socket themselves. This
// keeps response generation entirely separate from I/O readiness: a
// Connection inserts the Producer into its Queue and lets NextChunk pull
// bytes out whenever the socket is writable.
package writer

import (
	"io"
	"strings"

	"github.com/pulsehttp/pulsehttp/outqueue"
)

// Omit is a sentinel header value: a header whose value is Omit is
// filtered out of the composed output rather than written as an empty
// value. It exists because Go has no nil string, and callers sometimes
// want to pass a uniform header list where some entries are conditional.
const Omit = "\x00pulsehttp:omit\x00"

// DefaultFileBlockSize is the chunk size ComposeResponseFile reads at a
// time when no override is given.
const DefaultFileBlockSize = 65536

// producerFunc adapts a closure-driven generator into an outqueue.Producer.
type producerFunc struct {
	next func() (any, bool)
}

func (p *producerFunc) Next() (any, bool) {
	return p.next()
}

func filterHeaders(headers [][2]string) [][2]string {
	out := make([][2]string, 0, len(headers))
	for _, h := range headers {
		if h[1] == Omit {
			continue
		}
		out = append(out, h)
	}
	return out
}

func composeHeaderBlock(headers [][2]string) []byte {
	var buf []byte
	for _, h := range headers {
		buf = append(buf, h[0]...)
		buf = append(buf, ':', ' ')
		buf = append(buf, h[1]...)
		buf = append(buf, '\r', '\n')
	}
	return buf
}

// ComposeHeaders renders a header block (without the blank terminating
// line), honoring Omit-valued entries.
func ComposeHeaders(headers [][2]string) []byte {
	return composeHeaderBlock(filterHeaders(headers))
}

// itoa10 avoids importing strconv's full surface for one call site; kept
// here rather than in a general-purpose helper because it is only ever
// used for a non-negative Content-Length.
func itoa10(n int) []byte {
	if n == 0 {
		return []byte("0")
	}
	var tmp [20]byte
	i := len(tmp)
	for n > 0 {
		i--
		tmp[i] = byte('0' + n%10)
		n /= 10
	}
	return tmp[i:]
}

// isChunked reports whether headers declares Transfer-Encoding: chunked,
// case-insensitively on both the header name and the token, the same
// framing signal the Parser looks for on input (RFC 7230 §3.3.1).
func isChunked(headers [][2]string) bool {
	for _, h := range headers {
		if !strings.EqualFold(h[0], "Transfer-Encoding") {
			continue
		}
		if strings.EqualFold(strings.TrimSpace(h[1]), "chunked") {
			return true
		}
	}
	return false
}

// compose is the shared generator behind every ComposeResponse* function.
// It yields, in order: the start line, the caller's headers followed by
// the Content-Length header (computed from whichever body source is
// non-nil, unless chunked), the blank line, and finally the body —
// chunk-framed if chunked is true.
func compose(startLine string, headers [][2]string, body []byte, filep io.ReadSeeker, fileBlockSize int, chunked bool) outqueue.Producer {
	headers = filterHeaders(headers)

	step := 0

	var contentLength int
	if !chunked {
		switch {
		case filep != nil:
			cur, _ := filep.Seek(0, io.SeekCurrent)
			end, _ := filep.Seek(0, io.SeekEnd)
			filep.Seek(cur, io.SeekStart)
			contentLength = int(end - cur)
		default:
			contentLength = len(body)
		}
		headers = append(headers, [2]string{"Content-Length", string(itoa10(contentLength))})
	}

	emitted := false
	return &producerFunc{next: func() (any, bool) {
		for {
			switch step {
			case 0:
				step++
				return []byte(startLine + "\r\n"), true
			case 1:
				step++
				hdrs := composeHeaderBlock(headers)
				return hdrs, true
			case 2:
				step++
				return []byte("\r\n"), true
			case 3:
				step++
				if filep != nil {
					return &fileBodyProducer{r: filep, blockSize: fileBlockSize, chunked: chunked}, true
				}
				if chunked {
					if emitted || len(body) == 0 {
						step++
						return []byte("0\r\n\r\n"), true
					}
					emitted = true
					step-- // come back here for the terminating zero-length chunk
					return ComposeChunk(body), true
				}
				if len(body) == 0 {
					step++
					continue
				}
				return body, true
			case 4:
				return nil, false
			default:
				return nil, false
			}
		}
	}}
}

// fileBodyProducer streams a seekable file in blocks, optionally chunk-
// framing each block, without ever holding the whole file in memory.
type fileBodyProducer struct {
	r         io.Reader
	blockSize int
	chunked   bool
	buf       []byte
	done      bool
	sentLast  bool
}

func (f *fileBodyProducer) Next() (any, bool) {
	if f.done {
		if f.chunked && !f.sentLast {
			f.sentLast = true
			return []byte("0\r\n\r\n"), true
		}
		return nil, false
	}
	if f.buf == nil {
		f.buf = make([]byte, f.blockSize)
	}
	n, err := f.r.Read(f.buf)
	if n == 0 || err != nil {
		f.done = true
		if f.chunked {
			f.sentLast = true
			return []byte("0\r\n\r\n"), true
		}
		return nil, false
	}
	block := f.buf[:n]
	if f.chunked {
		return ComposeChunk(block), true
	}
	out := make([]byte, n)
	copy(out, block)
	return out, true
}

// ComposeResponse returns a Producer for a full HTTP response with a
// fully buffered body. The response is chunk-framed instead of getting
// a computed Content-Length when headers declares
// Transfer-Encoding: chunked.
func ComposeResponse(protocol, code, reason string, headers [][2]string, body []byte) outqueue.Producer {
	return compose(protocol+" "+code+" "+reason, headers, body, nil, 0, isChunked(headers))
}

// ComposeInterim renders a 1xx interim response: the status line and
// the terminating blank line only. A 1xx response never carries a body
// or a body-framing header (Content-Length, Transfer-Encoding), so this
// bypasses compose entirely rather than risk one being added.
func ComposeInterim(protocol, code, reason string) outqueue.Producer {
	step := 0
	return &producerFunc{next: func() (any, bool) {
		switch step {
		case 0:
			step++
			return []byte(protocol + " " + code + " " + reason + "\r\n"), true
		case 1:
			step++
			return []byte("\r\n"), true
		default:
			return nil, false
		}
	}}
}

// ComposeResponseFile returns a Producer that streams body from a seekable
// source in blocks of size bytes (DefaultFileBlockSize if size <= 0)
// without reading it into memory all at once. The Content-Length is
// computed from the current position to the end of the stream.
func ComposeResponseFile(protocol, code, reason string, headers [][2]string, body io.ReadSeeker, size int) outqueue.Producer {
	if size <= 0 {
		size = DefaultFileBlockSize
	}
	return compose(protocol+" "+code+" "+reason, headers, nil, body, size, false)
}

// ComposeResponseChunkedFile streams a non-seekable (or deliberately
// chunked) body using chunked transfer-encoding instead of a computed
// Content-Length. Unlike ComposeResponseFile this only needs io.Reader.
func ComposeResponseChunkedFile(protocol, code, reason string, headers [][2]string, body io.Reader, size int) outqueue.Producer {
	if size <= 0 {
		size = DefaultFileBlockSize
	}
	headers = append(append([][2]string{}, headers...), [2]string{"Transfer-Encoding", "chunked"})
	headers = filterHeaders(headers)
	step := 0
	fp := &fileBodyProducer{r: body, blockSize: size, chunked: true}
	return &producerFunc{next: func() (any, bool) {
		switch step {
		case 0:
			step++
			return []byte(protocol + " " + code + " " + reason + "\r\n"), true
		case 1:
			step++
			return composeHeaderBlock(headers), true
		case 2:
			step++
			return []byte("\r\n"), true
		case 3:
			step++
			return fp, true
		default:
			return nil, false
		}
	}}
}

// ComposeError renders a canned error response body.
func ComposeError(protocol, code, reason string, headers [][2]string) outqueue.Producer {
	html := "<html><head><title>" + code + " " + reason + "</title></head>" +
		"<body><h1>" + code + " " + reason + "</h1></body></html>"
	hdrs := append(append([][2]string{}, headers...), [2]string{"Content-Type", "text/html"})
	return ComposeResponse(protocol, code, reason, hdrs, []byte(html))
}

// ComposeRedirect renders a 302 Found response pointing at location.
func ComposeRedirect(protocol, location string, headers [][2]string) outqueue.Producer {
	hdrs := append(append([][2]string{}, headers...), [2]string{"Location", location})
	return ComposeResponse(protocol, "302", "Found", hdrs, nil)
}

// ComposeChunk frames one chunk of a chunked-transfer body: hex size,
// CRLF, the data itself, CRLF.
func ComposeChunk(chunk []byte) []byte {
	if len(chunk) == 0 {
		return nil
	}
	size := []byte(hexLen(len(chunk)))
	out := make([]byte, 0, len(size)+2+len(chunk)+2)
	out = append(out, size...)
	out = append(out, '\r', '\n')
	out = append(out, chunk...)
	out = append(out, '\r', '\n')
	return out
}

// ComposeLastChunk renders the terminating zero-length chunk.
func ComposeLastChunk() []byte {
	return []byte("0\r\n\r\n")
}

func hexLen(n int) string {
	if n == 0 {
		return "0"
	}
	const digits = "0123456789abcdef"
	var tmp [16]byte
	i := len(tmp)
	for n > 0 {
		i--
		tmp[i] = digits[n&0xf]
		n >>= 4
	}
	return string(tmp[i:])
}
