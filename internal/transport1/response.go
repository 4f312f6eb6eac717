package transport1

import (
	"bufio"
	"bytes"
	"io"
	"regexp"
	"strconv"
	"strings"

	"github.com/vipinbihari/hrs-detector/internal/hrserr"
	"github.com/vipinbihari/hrs-detector/internal/wire"
)

// ResponseInfo is the parsed status line and header block of an HTTP/1.1
// response. Header name case is preserved in Headers as received on the
// wire; lookups against it are expected to fold case themselves (see
// ResponseInfo.Get).
type ResponseInfo struct {
	StatusCode int
	HasStatus  bool
	Reason     string
	Headers    []wire.HeaderPair
}

// Get returns the first header value matching name case-insensitively.
func (r *ResponseInfo) Get(name string) (string, bool) {
	for _, h := range r.Headers {
		if strings.EqualFold(h.Name, name) {
			return h.Value, true
		}
	}
	return "", false
}

var statusLineRE = regexp.MustCompile(`^HTTP/1\.[01] ([0-9]+) (.*)$`)

// readHeaderBlock reads lines from r until it has seen the blank line that
// ends the header block, returning everything read (including that blank
// line). Body bytes are left unread in r.
func readHeaderBlock(r *bufio.Reader) ([]byte, error) {
	var out bytes.Buffer
	for {
		line, err := r.ReadBytes('\n')
		if len(line) > 0 {
			out.Write(line)
		}
		if err != nil {
			return out.Bytes(), err
		}
		trimmed := bytes.TrimRight(line, "\r\n")
		if len(trimmed) == 0 {
			return out.Bytes(), nil
		}
	}
}

// parseHeaderBlock splits a CRLF-delimited header block (without the trailing
// blank line necessarily stripped) into a status line and ordered headers.
// Lines without a colon are skipped; this is deliberately permissive.
func parseHeaderBlock(block []byte) (*ResponseInfo, error) {
	text := strings.TrimRight(string(block), "\r\n")
	lines := strings.Split(text, "\n")
	if len(lines) == 0 {
		return nil, hrserr.NewInvalidResponse("parse_status", "empty response")
	}
	statusLine := strings.TrimRight(lines[0], "\r")
	m := statusLineRE.FindStringSubmatch(statusLine)
	if m == nil {
		return &ResponseInfo{HasStatus: false}, hrserr.NewInvalidResponse("parse_status", "no status line match: "+statusLine)
	}
	code, err := strconv.Atoi(m[1])
	if err != nil {
		return &ResponseInfo{HasStatus: false}, hrserr.NewInvalidResponse("parse_status", "bad status code: "+m[1])
	}
	info := &ResponseInfo{StatusCode: code, HasStatus: true, Reason: m[2]}
	for _, raw := range lines[1:] {
		line := strings.TrimRight(raw, "\r")
		if line == "" {
			continue
		}
		idx := strings.IndexByte(line, ':')
		if idx < 0 {
			continue
		}
		name := strings.Trim(line[:idx], " \t")
		value := strings.Trim(line[idx+1:], " \t")
		info.Headers = append(info.Headers, wire.HeaderPair{Name: name, Value: value})
	}
	return info, nil
}

// isChunked reports whether the response declares chunked transfer-encoding.
func isChunked(info *ResponseInfo) bool {
	v, ok := info.Get("Transfer-Encoding")
	return ok && strings.Contains(strings.ToLower(v), "chunked")
}

// contentLength returns the declared Content-Length, if present and a
// non-negative integer.
func contentLength(info *ResponseInfo) (int64, bool) {
	v, ok := info.Get("Content-Length")
	if !ok {
		return 0, false
	}
	n, err := strconv.ParseInt(strings.TrimSpace(v), 10, 64)
	if err != nil || n < 0 {
		return 0, false
	}
	return n, true
}

// readChunkedBody decodes a chunked body. On an incomplete final chunk (EOF
// or a short read mid-frame) it returns the bytes decoded so far with a nil
// error — an incomplete chunked body is informative, not exceptional.
func readChunkedBody(r *bufio.Reader) []byte {
	var out bytes.Buffer
	for {
		line, err := r.ReadString('\n')
		if err != nil {
			return out.Bytes()
		}
		sizeField := strings.TrimRight(line, "\r\n")
		sizeField = strings.SplitN(sizeField, ";", 2)[0]
		sizeField = strings.TrimSpace(sizeField)
		size, err := strconv.ParseUint(sizeField, 16, 64)
		if err != nil {
			return out.Bytes()
		}
		if size == 0 {
			// Consume the trailing CRLF if present; tolerate its absence.
			_, _ = r.ReadString('\n')
			return out.Bytes()
		}
		chunk := make([]byte, size)
		n, err := io.ReadFull(r, chunk)
		out.Write(chunk[:n])
		if err != nil {
			return out.Bytes()
		}
		// Mandatory trailing CRLF after each chunk's data.
		if _, err := r.Discard(2); err != nil {
			return out.Bytes()
		}
	}
}

// readFixedBody reads exactly n bytes, returning whatever was read (possibly
// fewer than n) without treating a short read as an error.
func readFixedBody(r *bufio.Reader, n int64) []byte {
	buf := make([]byte, n)
	read, _ := io.ReadFull(r, buf)
	return buf[:read]
}

// readUntilClose reads until the peer closes the connection or the
// surrounding deadline fires.
func readUntilClose(r *bufio.Reader) []byte {
	data, _ := io.ReadAll(r)
	return data
}

// readResponse reads and parses one HTTP/1.1 response from r, including its
// body, applying the framing rules in order: chunked, then Content-Length,
// then read-until-close.
func readResponse(r *bufio.Reader) (*ResponseInfo, []byte, error) {
	block, err := readHeaderBlock(r)
	if err != nil && !bytes.Contains(block, []byte("\r\n\r\n")) {
		if err == io.EOF {
			return nil, nil, hrserr.NewInvalidResponse("read_headers", "connection closed before headers completed")
		}
		return nil, nil, hrserr.NewConnectError("read_headers", "peer", err)
	}
	info, perr := parseHeaderBlock(block)
	if perr != nil {
		return info, nil, perr
	}

	switch {
	case isChunked(info):
		return info, readChunkedBody(r), nil
	case func() bool { _, ok := contentLength(info); return ok }():
		n, _ := contentLength(info)
		return info, readFixedBody(r, n), nil
	default:
		return info, readUntilClose(r), nil
	}
}
