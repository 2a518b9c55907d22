// Package parser implements an incremental, resumable HTTP/1.x message
// parser. Bytes arrive in arbitrary-sized chunks via Feed; Next drains
// whatever events those bytes make available and suspends (returning a
// zero Event) the moment it needs more input. No goroutine, channel, or
// callback is used: the caller drives the state machine one step at a
// time, the Go-native rendering of the original's suspend/resume
// coroutine.
package parser

import (
	"strconv"

	"github.com/pulsehttp/pulsehttp/message"
)

// Kind tags the payload carried by an Event.
type Kind uint8

const (
	// KindNone means "no event yet" — the Parser needs more bytes.
	KindNone Kind = iota
	// KindRequest carries a freshly parsed request start-line + headers.
	KindRequest
	// KindResponse carries a freshly parsed status-line + headers.
	KindResponse
	// KindData carries one chunk of body bytes for the current message.
	KindData
	// KindEnd marks the current message complete; Message is nil.
	KindEnd
)

// Event is one unit of parser progress.
type Event struct {
	Kind    Kind
	Message *message.Message
	Data    []byte
}

const (
	maxStartLineSize = 32768
	maxHeaderLine    = 32768
	maxHeaderCount   = 128
	defaultMaxChunk  = 16 << 20
)

type state int

const (
	stateFirstLine state = iota
	stateHeaders
	stateChunkLength
	stateChunkData
	stateChunkEnd
	stateTrailers
	stateBoundedBody
	stateNoBody
	stateConnCloseBody
	stateEmitEnd
	stateTerminal
)

// Parser is an incremental HTTP/1.x message parser. The zero value is not
// usable; construct with New.
type Parser struct {
	buf []byte
	eof bool

	st state

	cur           *message.Message
	isRequest     bool
	http10        bool
	terminal      bool // body was connection-close-delimited: no message follows
	chunkSize     uint64
	bodyRemain    int64 // remaining bytes for bounded body / current chunk
	headerCount   int
	lastHeaderIdx int // index into cur's header list a continuation line extends; -1 if none
}

// New returns a Parser ready to read a message starting at FIRST_LINE.
func New() *Parser {
	return &Parser{st: stateFirstLine}
}

// Feed appends newly received bytes. The slice is copied; the caller may
// reuse or overwrite it immediately after Feed returns.
func (p *Parser) Feed(data []byte) {
	if len(data) == 0 {
		return
	}
	p.buf = append(p.buf, data...)
}

// EOF tells the Parser no further bytes will ever arrive. This only
// matters while reading a connection-close-delimited body or while
// waiting for a new FIRST_LINE (a clean close between messages is not an
// error; an EOF mid-message is reported by Next as a ProtocolError).
func (p *Parser) EOF() {
	p.eof = true
}

// Next advances the state machine as far as the buffered bytes allow and
// returns the next event. When there isn't enough data to make progress,
// Next returns a zero Event (Kind == KindNone) and a nil error: the
// caller should Feed more bytes (or signal EOF) and call Next again.
func (p *Parser) Next() (ev Event, err error) {
	// A suspension after EOF can never be resumed: the message in
	// progress was cut short.
	defer func() {
		if err == nil && ev.Kind == KindNone && p.eof {
			p.st = stateTerminal
			err = &ProtocolError{Reason: "unexpected EOF mid-message"}
		}
	}()
	for {
		switch p.st {
		case stateTerminal:
			return Event{}, ErrClosed

		case stateFirstLine:
			line, ok, err := p.readLine(maxStartLineSize, errStartLineTooLarge)
			if err != nil {
				p.st = stateTerminal
				return Event{}, err
			}
			if !ok {
				if p.eof && len(p.buf) == 0 {
					p.st = stateTerminal
					return Event{}, ErrClosed
				}
				return Event{}, nil
			}
			if _, err := p.startFirstLine(line); err != nil {
				p.st = stateTerminal
				return Event{}, err
			}
			p.st = stateHeaders
			continue

		case stateHeaders:
			done, ev, err := p.stepHeaders()
			if err != nil {
				p.st = stateTerminal
				return Event{}, err
			}
			if !done {
				return Event{}, nil
			}
			if ev.Kind != KindNone {
				return ev, nil
			}
			// headers fully parsed, proceed to body framing decision.
			continue

		case stateChunkLength:
			ok, err := p.stepChunkLength()
			if err != nil {
				p.st = stateTerminal
				return Event{}, err
			}
			if !ok {
				return Event{}, nil
			}
			continue

		case stateChunkData:
			ev, hasEvent, blocked := p.stepChunkData()
			if blocked {
				return Event{}, nil
			}
			if hasEvent {
				return ev, nil
			}
			continue

		case stateChunkEnd:
			ok, err := p.stepChunkEnd()
			if err != nil {
				p.st = stateTerminal
				return Event{}, err
			}
			if !ok {
				return Event{}, nil
			}
			continue

		case stateTrailers:
			ok, err := p.stepTrailers()
			if err != nil {
				p.st = stateTerminal
				return Event{}, err
			}
			if !ok {
				return Event{}, nil
			}
			p.st = stateEmitEnd
			continue

		case stateBoundedBody:
			ev, hasEvent, blocked := p.stepBoundedBody()
			if blocked {
				return Event{}, nil
			}
			if hasEvent {
				return ev, nil
			}
			continue

		case stateNoBody:
			p.st = stateEmitEnd
			continue

		case stateConnCloseBody:
			ev, hasEvent, blocked := p.stepConnCloseBody()
			if blocked {
				return Event{}, nil
			}
			if hasEvent {
				return ev, nil
			}
			continue

		case stateEmitEnd:
			p.cur = nil
			if p.terminal {
				p.st = stateTerminal
			} else {
				p.st = stateFirstLine
			}
			return Event{Kind: KindEnd}, nil
		}
	}
}

// readLine looks for a line terminator within the buffered bytes: a
// CRLF first, falling back to a bare LF (bare-LF input is tolerated),
// and consumes it (plus the terminator) from buf. The returned line
// never includes the terminator. ok is false when no full line is
// buffered yet.
func (p *Parser) readLine(max int, tooLarge *ProtocolError) (line []byte, ok bool, err error) {
	idx, termLen := indexLineEnd(p.buf)
	if idx < 0 {
		if len(p.buf) > max {
			return nil, false, tooLarge
		}
		return nil, false, nil
	}
	if idx > max {
		return nil, false, tooLarge
	}
	line = p.buf[:idx]
	p.buf = p.buf[idx+termLen:]
	return line, true, nil
}

// indexLineEnd scans for "\r\n" first, then a bare "\n", returning the
// index of the terminator's start and its length (2 or 1), or (-1, 0)
// if neither is buffered yet.
func indexLineEnd(b []byte) (int, int) {
	if idx := indexCRLF(b); idx >= 0 {
		return idx, 2
	}
	if idx := indexByte(b, 0, '\n'); idx >= 0 {
		return idx, 1
	}
	return -1, 0
}

func indexCRLF(b []byte) int {
	for i := 0; i+1 < len(b); i++ {
		if b[i] == '\r' && b[i+1] == '\n' {
			return i
		}
	}
	return -1
}

func (p *Parser) startFirstLine(line []byte) (Event, error) {
	first := indexByte(line, 0, ' ')
	if first <= 0 {
		return Event{}, errInvalidFirstLine
	}
	second := indexByte(line, first+1, ' ')
	if second < 0 {
		return Event{}, errInvalidFirstLine
	}
	tok0 := line[:first]
	tok1 := line[first+1 : second]
	tok2 := line[second+1:]

	if isHTTPVersionToken(tok0) {
		p.isRequest = false
		p.cur = message.NewResponse(string(tok0), string(tok1), string(tok2), nil)
	} else {
		if !isHTTPVersionToken(tok2) {
			return Event{}, errInvalidFirstLine
		}
		p.isRequest = true
		p.cur = message.NewRequest(string(tok0), string(tok1), string(tok2), nil)
	}
	p.http10 = p.cur.Protocol == "HTTP/1.0"
	p.headerCount = 0
	p.lastHeaderIdx = -1
	p.terminal = false
	return Event{}, nil
}

func isHTTPVersionToken(b []byte) bool {
	return len(b) >= 5 && b[0] == 'H' && b[1] == 'T' && b[2] == 'T' && b[3] == 'P' && b[4] == '/'
}

func indexByte(b []byte, from int, c byte) int {
	for i := from; i < len(b); i++ {
		if b[i] == c {
			return i
		}
	}
	return -1
}

// stepHeaders consumes header lines one at a time. done is false when the
// buffer doesn't yet contain a full line. A line beginning with SP or
// HTAB is a continuation of the previous header's value, folded in with
// a single space rather than starting a new header. When the blank
// terminating line is reached, the Request/Response event is returned
// with ev.Kind set and the state machine proceeds to decide body framing
// on the next Next() call.
func (p *Parser) stepHeaders() (done bool, ev Event, err error) {
	line, ok, err := p.readLine(maxHeaderLine, errHeaderTooLarge)
	if err != nil {
		return false, Event{}, err
	}
	if !ok {
		return false, Event{}, nil
	}
	if len(line) == 0 {
		kind := KindRequest
		if !p.isRequest {
			kind = KindResponse
		}
		if err := p.decideBodyFraming(); err != nil {
			return false, Event{}, err
		}
		return true, Event{Kind: kind, Message: p.cur}, nil
	}
	if (line[0] == ' ' || line[0] == '\t') && p.lastHeaderIdx >= 0 {
		p.cur.AppendHeaderValue(p.lastHeaderIdx, string(trimOWS(line)))
		return true, Event{}, nil
	}
	p.headerCount++
	if p.headerCount > maxHeaderCount {
		return false, Event{}, errTooManyHeaders
	}
	colon := indexByte(line, 0, ':')
	if colon <= 0 {
		return false, Event{}, errInvalidHeaderLine
	}
	name := line[:colon]
	for _, c := range name {
		if c == ' ' || c == '\t' {
			return false, Event{}, errInvalidHeaderLine
		}
	}
	value := trimOWS(line[colon+1:])
	p.lastHeaderIdx = p.cur.AddHeader(string(name), string(value))
	return true, Event{}, nil
}


// decideBodyFraming picks the body state per RFC 7230 §3.3.3 priority:
// chunked transfer-encoding wins outright (a Content-Length alongside it
// is simply ignored, not treated as an ambiguity), then a bounded
// content-length, then the no-body cases (1xx/204/304 responses, or
// requests by default), then connection-close-delimited for responses
// that are none of the above.
func (p *Parser) decideBodyFraming() error {
	te := p.cur.Header("Transfer-Encoding")
	cl := p.cur.Header("Content-Length")
	chunked := te != "" && headerNameEquals([]byte(lastToken(te)), "chunked")

	if chunked {
		p.chunkSize = 0
		p.st = stateChunkLength
		return nil
	}
	if cl != "" {
		n, err := strconv.ParseInt(trimString(cl), 10, 64)
		if err != nil || n < 0 {
			return errInvalidContentLen
		}
		p.bodyRemain = n
		if n == 0 {
			p.st = stateNoBody
			return nil
		}
		p.st = stateBoundedBody
		return nil
	}
	if !p.isRequest {
		code := p.cur.Code
		if len(code) > 0 && (code[0] == '1' || code == "204" || code == "304") {
			p.st = stateNoBody
			return nil
		}
		// No Transfer-Encoding and no Content-Length on a response that
		// does carry a body: RFC 7230 §3.3.3 rule 7, the body runs until
		// the connection closes. This is the one case where the Parser
		// itself reaches a terminal state, since nothing in the stream
		// marks where the next message would begin.
		p.st = stateConnCloseBody
		p.terminal = true
		return nil
	}
	p.st = stateNoBody
	return nil
}

func lastToken(s string) string {
	for i := len(s) - 1; i >= 0; i-- {
		if s[i] == ',' {
			return trimString(s[i+1:])
		}
	}
	return trimString(s)
}

func trimString(s string) string {
	return string(trimOWS([]byte(s)))
}

func (p *Parser) stepChunkLength() (bool, error) {
	line, ok, err := p.readLine(maxHeaderLine, errInvalidChunkSize)
	if err != nil {
		return false, err
	}
	if !ok {
		return false, nil
	}
	if idx := indexByte(line, 0, ';'); idx >= 0 {
		line = line[:idx]
	}
	line = trimOWS(line)
	if len(line) == 0 {
		return false, errInvalidChunkSize
	}
	var size uint64
	for _, b := range line {
		size <<= 4
		switch {
		case b >= '0' && b <= '9':
			size |= uint64(b - '0')
		case b >= 'a' && b <= 'f':
			size |= uint64(b-'a') + 10
		case b >= 'A' && b <= 'F':
			size |= uint64(b-'A') + 10
		default:
			return false, errInvalidChunkSize
		}
		if size > defaultMaxChunk {
			return false, errChunkTooLarge
		}
	}
	p.chunkSize = size
	if size == 0 {
		p.st = stateTrailers
		return true, nil
	}
	p.bodyRemain = int64(size)
	p.st = stateChunkData
	return true, nil
}

// stepChunkData returns (event, hasEvent, blocked). blocked means no bytes
// are buffered and none can be produced without feeding more; hasEvent
// false with blocked false means a pure state transition occurred and the
// caller should re-enter the loop immediately.
func (p *Parser) stepChunkData() (Event, bool, bool) {
	if p.bodyRemain == 0 {
		p.st = stateChunkEnd
		return Event{}, false, false
	}
	if len(p.buf) == 0 {
		return Event{}, false, true
	}
	n := int64(len(p.buf))
	if n > p.bodyRemain {
		n = p.bodyRemain
	}
	chunk := p.buf[:n]
	p.buf = p.buf[n:]
	p.bodyRemain -= n
	p.cur.AddBodyChunk(chunk)
	if p.bodyRemain == 0 {
		p.st = stateChunkEnd
	}
	return Event{Kind: KindData, Data: chunk}, true, false
}

func (p *Parser) stepChunkEnd() (bool, error) {
	_, ok, err := p.readLine(2, errMalformedChunkEnd)
	if err != nil {
		return false, err
	}
	if !ok {
		return false, nil
	}
	p.st = stateChunkLength
	return true, nil
}

func (p *Parser) stepTrailers() (bool, error) {
	for {
		line, ok, err := p.readLine(maxHeaderLine, errHeaderTooLarge)
		if err != nil {
			return false, err
		}
		if !ok {
			return false, nil
		}
		if len(line) == 0 {
			return true, nil
		}
		// Trailers are consumed and discarded (spec Non-goal: trailer
		// semantics are never surfaced to handlers).
	}
}

func (p *Parser) stepBoundedBody() (Event, bool, bool) {
	if p.bodyRemain == 0 {
		p.st = stateEmitEnd
		return Event{}, false, false
	}
	if len(p.buf) == 0 {
		return Event{}, false, true
	}
	n := int64(len(p.buf))
	if n > p.bodyRemain {
		n = p.bodyRemain
	}
	chunk := p.buf[:n]
	p.buf = p.buf[n:]
	p.bodyRemain -= n
	p.cur.AddBodyChunk(chunk)
	if p.bodyRemain == 0 {
		p.st = stateEmitEnd
	}
	return Event{Kind: KindData, Data: chunk}, true, false
}

// stepConnCloseBody streams every buffered byte as body data until EOF is
// signaled, at which point the message (and the Parser) ends for good.
func (p *Parser) stepConnCloseBody() (Event, bool, bool) {
	if len(p.buf) > 0 {
		chunk := p.buf
		p.buf = nil
		p.cur.AddBodyChunk(chunk)
		return Event{Kind: KindData, Data: chunk}, true, false
	}
	if p.eof {
		p.st = stateEmitEnd
		return Event{}, false, false
	}
	return Event{}, false, true
}
