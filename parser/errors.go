package parser

import "errors"

// ProtocolError is returned by Next when the input bytes cannot be a valid
// HTTP/1.x message stream. Once returned, the Parser is terminal: Feed and
// Next no longer make progress.
type ProtocolError struct {
	Reason string
}

func (e *ProtocolError) Error() string {
	return "pulsehttp/parser: " + e.Reason
}

var (
	errInvalidFirstLine  = &ProtocolError{Reason: "invalid start line"}
	errInvalidHeaderLine = &ProtocolError{Reason: "invalid header line"}
	errHeaderTooLarge    = &ProtocolError{Reason: "header line too large"}
	errTooManyHeaders    = &ProtocolError{Reason: "too many headers"}
	errStartLineTooLarge = &ProtocolError{Reason: "start line too large"}
	errInvalidChunkSize  = &ProtocolError{Reason: "invalid chunk size"}
	errChunkTooLarge     = &ProtocolError{Reason: "chunk size exceeds limit"}
	errMalformedChunkEnd = &ProtocolError{Reason: "malformed chunk terminator"}
	errInvalidContentLen = &ProtocolError{Reason: "invalid content-length"}
)

// ErrClosed is returned by Next once the Parser has reached its terminal
// state: after a connection-close response body has been fully drained,
// after EOF arrives between messages with nothing buffered, or on any
// call following a ProtocolError.
var ErrClosed = errors.New("pulsehttp/parser: closed")
