package wire

import (
	"bytes"
	"testing"
)

func TestBuildRequest1Fidelity(t *testing.T) {
	headers := []HeaderPair{
		{Name: "Host", Value: "example.com"},
		{Name: "X-Dup", Value: " padded "},
		{Name: "x-dup", Value: "lowercase-name"},
		{Name: "Transfer-Encoding", Value: "chunked"},
	}
	body := []byte("1\r\nZ\r\nQ\r\n")

	got := BuildRequest1("POST", "/foo?bar=1", headers, body)

	want := "POST /foo?bar=1 HTTP/1.1\r\n" +
		"Host: example.com\r\n" +
		"X-Dup:  padded \r\n" +
		"x-dup: lowercase-name\r\n" +
		"Transfer-Encoding: chunked\r\n" +
		"\r\n" +
		"1\r\nZ\r\nQ\r\n"

	if !bytes.Equal(got, []byte(want)) {
		t.Fatalf("serialisation mismatch:\ngot:  %q\nwant: %q", got, want)
	}
}

func TestBuildRequest1NoAutoHeaders(t *testing.T) {
	got := BuildRequest1("GET", "/", nil, nil)
	want := "GET / HTTP/1.1\r\n\r\n"
	if string(got) != want {
		t.Fatalf("expected no auto-added headers, got %q", got)
	}
}
