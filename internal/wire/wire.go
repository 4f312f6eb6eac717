// Package wire holds the byte-level data types shared by both transports:
// targets, ordered header pairs, and the HTTP/1.1 request serialiser. Go's
// string and []byte already carry arbitrary bytes, so no separate byte-vector
// type is needed to represent header names or values that contain control
// characters.
package wire

import "fmt"

// Target is the immutable description of a scan target.
type Target struct {
	Host string
	Port int
	TLS  bool
	Path string
}

// Addr returns host:port.
func (t Target) Addr() string {
	return fmt.Sprintf("%s:%d", t.Host, t.Port)
}

// RequestPath returns Path, defaulting to "/".
func (t Target) RequestPath() string {
	if t.Path == "" {
		return "/"
	}
	return t.Path
}

// HeaderPair is an ordered (name, value) pair. Duplicates are significant and
// are never deduplicated or reordered by anything that consumes a []HeaderPair.
type HeaderPair struct {
	Name  string
	Value string
}

// BuildRequest1 serialises an HTTP/1.1 request verbatim: no Host header is
// auto-added, no Content-Length is computed, no header name or value is
// normalised or reordered. Callers that need exact byte control over
// irregular requests should bypass this and write bytes themselves.
func BuildRequest1(method, path string, headers []HeaderPair, body []byte) []byte {
	buf := make([]byte, 0, 64+len(body))
	buf = append(buf, method...)
	buf = append(buf, ' ')
	buf = append(buf, path...)
	buf = append(buf, ' ')
	buf = append(buf, "HTTP/1.1\r\n"...)
	for _, h := range headers {
		buf = append(buf, h.Name...)
		buf = append(buf, ':', ' ')
		buf = append(buf, h.Value...)
		buf = append(buf, '\r', '\n')
	}
	buf = append(buf, '\r', '\n')
	buf = append(buf, body...)
	return buf
}
