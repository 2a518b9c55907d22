package message

import "testing"

func TestHeaderCaseInsensitiveLookup(t *testing.T) {
	m := NewRequest("GET", "/", "HTTP/1.1", [][2]string{{"Content-Type", "text/plain"}})
	if got := m.Header("content-type"); got != "text/plain" {
		t.Fatalf("Header(content-type) = %q, want text/plain", got)
	}
	if got := m.Header("Missing"); got != "" {
		t.Fatalf("Header(Missing) = %q, want empty", got)
	}
}

func TestAddBodyChunkIgnoresEmpty(t *testing.T) {
	m := NewResponse("HTTP/1.1", "200", "OK", nil)
	m.AddBodyChunk(nil)
	m.AddBodyChunk([]byte{})
	m.AddBodyChunk([]byte("abc"))
	m.AddBodyChunk([]byte("def"))
	if got := string(m.BodyBytes()); got != "abcdef" {
		t.Fatalf("BodyBytes() = %q, want abcdef", got)
	}
}

func TestBodyStringJSONDefaultsUTF8(t *testing.T) {
	m := NewResponse("HTTP/1.1", "200", "OK", [][2]string{{"Content-Type", "application/json"}})
	m.AddBodyChunk([]byte(`{"a":1}`))
	got, err := m.BodyString()
	if err != nil {
		t.Fatalf("BodyString: %v", err)
	}
	if got != `{"a":1}` {
		t.Fatalf("BodyString() = %q", got)
	}
}

func TestBodyStringExplicitCharset(t *testing.T) {
	m := NewResponse("HTTP/1.1", "200", "OK", [][2]string{{"Content-Type", "text/plain; charset=iso-8859-1"}})
	m.AddBodyChunk([]byte{0xe9}) // é in latin-1, invalid start of utf-8 sequence
	got, err := m.BodyString()
	if err != nil {
		t.Fatalf("BodyString: %v", err)
	}
	if len(got) != 1 || got[0] != 0xe9 {
		t.Fatalf("BodyString() = %q, want single latin-1 byte decoded", got)
	}
}

func TestBodyStringFallsBackToLatin1(t *testing.T) {
	m := NewResponse("HTTP/1.1", "200", "OK", nil)
	m.AddBodyChunk([]byte{0xff, 0xfe}) // invalid utf-8
	got, err := m.BodyString()
	if err != nil {
		t.Fatalf("BodyString: %v", err)
	}
	if got != "ÿþ" {
		t.Fatalf("BodyString() = %q, want 2-rune latin-1 fallback", got)
	}
}

func TestRequestHeadersPreserveOrderAndDuplicates(t *testing.T) {
	m := NewResponse("HTTP/1.1", "200", "OK", [][2]string{
		{"Set-Cookie", "a=1"},
		{"Set-Cookie", "b=2"},
	})
	hs := m.Headers()
	if len(hs) != 2 || hs[0][1] != "a=1" || hs[1][1] != "b=2" {
		t.Fatalf("Headers() = %v", hs)
	}
	if got := m.Header("Set-Cookie"); got != "a=1" {
		t.Fatalf("Header(Set-Cookie) = %q, want first match a=1", got)
	}
}
