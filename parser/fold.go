package parser

import "github.com/intuitivelabs/bytescase"

// headerNameEquals reports whether name (as found on the wire) matches the
// lowercase ASCII literal want, folding case. The parser uses it to match
// the last Transfer-Encoding token against "chunked" however the client
// capitalized it; header names themselves are looked up through
// message.Header.
func headerNameEquals(name []byte, want string) bool {
	return bytescase.CmpEq(name, []byte(want))
}

// trimOWS strips HTTP optional whitespace (space and horizontal tab) from
// both ends of a header field value, per RFC 7230 §3.2.
func trimOWS(b []byte) []byte {
	start := 0
	for start < len(b) && (b[start] == ' ' || b[start] == '\t') {
		start++
	}
	end := len(b)
	for end > start && (b[end-1] == ' ' || b[end-1] == '\t') {
		end--
	}
	return b[start:end]
}
