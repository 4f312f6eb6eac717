// Package transport2 is the HTTP/2 transport with integrity checks
// disabled: it drives golang.org/x/net/http2.Framer and
// golang.org/x/net/http2/hpack directly rather than http2.Transport, because
// the latter validates and deduplicates pseudo-headers and rejects
// control-character header names/values — exactly the checks this detector
// needs to turn off. Headers never pass through an intermediate map, which
// would silently drop duplicates and reorder entries.
package transport2

import (
	"context"
	"crypto/tls"
	"net"
	"time"

	"golang.org/x/net/http2"
	"golang.org/x/net/http2/hpack"

	"github.com/vipinbihari/hrs-detector/internal/hrserr"
	"github.com/vipinbihari/hrs-detector/internal/hrsconst"
	"github.com/vipinbihari/hrs-detector/internal/wire"
)

// Config describes how to reach one target over HTTP/2 for one probe.
type Config struct {
	Target         wire.Target
	TLSConfig      *tls.Config
	ConnectTimeout time.Duration
	ReadTimeout    time.Duration
	// ForceHTTP2 sends the HTTP/2 preface even when ALPN did not negotiate
	// "h2" — some targets accept prior-knowledge HTTP/2 over TLS without
	// advertising it.
	ForceHTTP2 bool
}

// Transport is a single-use HTTP/2 connection, never pooled or reused across
// mutations, matching the HTTP/1 transport's one-socket-per-probe discipline.
type Transport struct {
	cfg    Config
	conn   net.Conn
	framer *http2.Framer
	henc   *hpack.Encoder
	hencW  *headerBlockWriter
	hdec   *hpack.Decoder

	nextStreamID uint32
}

// headerBlockWriter is an io.Writer that simply accumulates bytes, used as
// the destination for hpack.Encoder so each call can reset and take the
// resulting block.
type headerBlockWriter struct {
	buf []byte
}

func (w *headerBlockWriter) Write(p []byte) (int, error) {
	w.buf = append(w.buf, p...)
	return len(p), nil
}

func (w *headerBlockWriter) reset() { w.buf = w.buf[:0] }

// New creates a Transport for cfg. Connect must be called before use.
func New(cfg Config) *Transport {
	return &Transport{cfg: cfg, nextStreamID: 1}
}

// Connect dials, performs the TLS handshake with ALPN negotiation, and then
// the HTTP/2 connection preface + SETTINGS exchange.
func (t *Transport) Connect(ctx context.Context) error {
	dialer := &net.Dialer{Timeout: t.cfg.ConnectTimeout}
	conn, err := dialer.DialContext(ctx, "tcp", t.cfg.Target.Addr())
	if err != nil {
		return hrserr.NewConnectError("dial", t.cfg.Target.Addr(), err)
	}

	tlsConn := tls.Client(conn, t.cfg.TLSConfig)
	hsCtx := ctx
	if t.cfg.ConnectTimeout > 0 {
		var cancel context.CancelFunc
		hsCtx, cancel = context.WithTimeout(ctx, t.cfg.ConnectTimeout)
		defer cancel()
	}
	if err := tlsConn.HandshakeContext(hsCtx); err != nil {
		conn.Close()
		return hrserr.NewConnectError("tls_handshake", t.cfg.Target.Addr(), err)
	}
	if proto := tlsConn.ConnectionState().NegotiatedProtocol; proto != "h2" && !t.cfg.ForceHTTP2 {
		tlsConn.Close()
		return hrserr.NewConnectError("alpn", t.cfg.Target.Addr(),
			hrserr.NewProtocolError("alpn", "peer did not negotiate h2, got "+proto, nil))
	}
	t.conn = tlsConn

	if _, err := tlsConn.Write([]byte(http2.ClientPreface)); err != nil {
		tlsConn.Close()
		return hrserr.NewConnectError("write_preface", t.cfg.Target.Addr(), err)
	}

	t.framer = http2.NewFramer(tlsConn, tlsConn)
	t.framer.AllowIllegalWrites = true

	if err := t.framer.WriteSettings(); err != nil {
		tlsConn.Close()
		return hrserr.NewConnectError("write_settings", t.cfg.Target.Addr(), err)
	}

	t.hencW = &headerBlockWriter{}
	t.henc = hpack.NewEncoder(t.hencW)
	t.hdec = hpack.NewDecoder(hrsconst.DefaultHpackTableSize, nil)

	t.awaitInitialSettings()
	return nil
}

// awaitInitialSettings reads frames until the peer's SETTINGS arrives and
// acknowledges it. Some targets delay their initial SETTINGS; if none
// arrives within ConnectTimeout this proceeds anyway rather than failing the
// connection.
func (t *Transport) awaitInitialSettings() {
	deadline := time.Now().Add(t.cfg.ConnectTimeout)
	t.conn.SetReadDeadline(deadline)
	defer t.conn.SetReadDeadline(time.Time{})

	for {
		frame, err := t.framer.ReadFrame()
		if err != nil {
			return
		}
		if sf, ok := frame.(*http2.SettingsFrame); ok {
			if !sf.IsAck() {
				t.framer.WriteSettingsAck()
			}
			return
		}
	}
}

// Close closes the underlying socket.
func (t *Transport) Close() error {
	if t.conn == nil {
		return nil
	}
	return t.conn.Close()
}

func (t *Transport) allocStream() uint32 {
	sid := t.nextStreamID
	t.nextStreamID += 2
	return sid
}

// encodeBlock writes fields to a fresh HPACK block, preserving order and
// duplicates exactly as given — no intermediate map, no sorting.
func (t *Transport) encodeBlock(fields []hpack.HeaderField) []byte {
	t.hencW.reset()
	for _, f := range fields {
		t.henc.WriteField(f)
	}
	block := make([]byte, len(t.hencW.buf))
	copy(block, t.hencW.buf)
	return block
}

func toFields(pairs []wire.HeaderPair) []hpack.HeaderField {
	out := make([]hpack.HeaderField, len(pairs))
	for i, p := range pairs {
		out[i] = hpack.HeaderField{Name: p.Name, Value: p.Value}
	}
	return out
}

func defaultPseudoFields(method, path, scheme, authority string) []hpack.HeaderField {
	return []hpack.HeaderField{
		{Name: ":method", Value: method},
		{Name: ":path", Value: path},
		{Name: ":scheme", Value: scheme},
		{Name: ":authority", Value: authority},
	}
}

func (t *Transport) scheme() string {
	if t.cfg.Target.TLS {
		return "https"
	}
	return "http"
}

// sendHeaders writes one HEADERS frame, unconditionally setting END_HEADERS
// (this module never splits across CONTINUATION on the send side) and
// END_STREAM per endStream.
func (t *Transport) sendHeaders(sid uint32, fields []hpack.HeaderField, endStream bool) error {
	block := t.encodeBlock(fields)
	flags := headersFlags(endStream)
	if err := t.framer.WriteRawFrame(http2.FrameHeaders, flags, sid, block); err != nil {
		return hrserr.NewConnectError("write_headers", t.cfg.Target.Addr(), err)
	}
	return nil
}

func (t *Transport) sendData(sid uint32, body []byte, endStream bool) error {
	flags := dataFlags(false, endStream)
	if err := t.framer.WriteRawFrame(http2.FrameData, flags, sid, body); err != nil {
		return hrserr.NewConnectError("write_data", t.cfg.Target.Addr(), err)
	}
	return nil
}

func (t *Transport) sendPaddedData(sid uint32, body []byte, padLen int, endStream bool) error {
	flags := dataFlags(true, endStream)
	payload := buildPaddedDataPayload(body, padLen)
	if err := t.framer.WriteRawFrame(http2.FrameData, flags, sid, payload); err != nil {
		return hrserr.NewConnectError("write_padded_data", t.cfg.Target.Addr(), err)
	}
	return nil
}

// SendRequest sends a well-formed request on a new stream using the default
// pseudo-header set, then reads the full response. The third return value is
// a rendered dump of the fields and body actually sent (see renderFields).
func (t *Transport) SendRequest(ctx context.Context, method, path string, headers []wire.HeaderPair, body []byte) (*ResponseInfo, []byte, []byte, error) {
	sid := t.allocStream()
	fields := append(defaultPseudoFields(method, path, t.scheme(), t.cfg.Target.Addr()), toFields(headers)...)
	raw := renderFields(fields, body)

	endStreamOnHeaders := len(body) == 0
	if err := t.sendHeaders(sid, fields, endStreamOnHeaders); err != nil {
		return nil, nil, raw, err
	}
	if !endStreamOnHeaders {
		if err := t.sendData(sid, body, true); err != nil {
			return nil, nil, raw, err
		}
	}
	info, respBody, err := t.readResponse(sid)
	return info, respBody, raw, err
}

// SendMalformed sends the default pseudo-header set followed by
// req.ExtraPseudoHeaders appended verbatim (producing duplicates when the
// caller repeats a pseudo-header name), then req.Headers, then req.Body. The
// third return value is a rendered dump of the fields and body actually sent
// (see renderFields).
func (t *Transport) SendMalformed(ctx context.Context, req MalformedRequest) (*ResponseInfo, []byte, []byte, error) {
	sid := t.allocStream()
	fields := defaultPseudoFields(req.Method, req.Path, t.scheme(), t.cfg.Target.Addr())
	fields = append(fields, toFields(req.ExtraPseudoHeaders)...)
	fields = append(fields, toFields(req.Headers)...)
	raw := renderFields(fields, req.Body)

	endStreamOnHeaders := req.EndStream && len(req.Body) == 0
	if err := t.sendHeaders(sid, fields, endStreamOnHeaders); err != nil {
		return nil, nil, raw, err
	}
	if !endStreamOnHeaders {
		if err := t.sendData(sid, req.Body, req.EndStream); err != nil {
			return nil, nil, raw, err
		}
	}
	info, respBody, err := t.readResponse(sid)
	return info, respBody, raw, err
}

// SendPadded sends a well-formed HEADERS frame followed by a single PADDED
// DATA frame whose declared length is 1+len(body)+padLen, per the manual
// layout in frame.go.
func (t *Transport) SendPadded(ctx context.Context, method, path string, headers []wire.HeaderPair, body []byte, padLen int, endStream bool) (*ResponseInfo, []byte, error) {
	sid := t.allocStream()
	fields := append(defaultPseudoFields(method, path, t.scheme(), t.cfg.Target.Addr()), toFields(headers)...)

	if err := t.sendHeaders(sid, fields, false); err != nil {
		return nil, nil, err
	}
	if err := t.sendPaddedData(sid, body, padLen, endStream); err != nil {
		return nil, nil, err
	}
	return t.readResponse(sid)
}

// readResponse pumps frames until the target stream ends or ReadTimeout
// expires, reconstructing the response from the first decoded header block
// and the accumulated DATA payload. A stream that ends (RST_STREAM, GOAWAY)
// before any header block is decoded yields a protocol error.
func (t *Transport) readResponse(sid uint32) (*ResponseInfo, []byte, error) {
	deadline := time.Now().Add(t.cfg.ReadTimeout)
	t.conn.SetReadDeadline(deadline)
	defer t.conn.SetReadDeadline(time.Time{})

	var info *ResponseInfo
	var body []byte
	var headerBlock []byte
	ended := false

	for !ended {
		frame, err := t.framer.ReadFrame()
		if err != nil {
			if ne, ok := err.(net.Error); ok && ne.Timeout() {
				return info, body, hrserr.NewTimeoutError("read_response", t.cfg.ReadTimeout)
			}
			if info == nil {
				return nil, nil, hrserr.NewConnectError("read_response", t.cfg.Target.Addr(), err)
			}
			return info, body, nil
		}

		fh := frame.Header()
		if fh.StreamID != 0 && fh.StreamID != sid {
			continue
		}

		switch f := frame.(type) {
		case *http2.SettingsFrame:
			if !f.IsAck() {
				t.framer.WriteSettingsAck()
			}
		case *http2.HeadersFrame:
			headerBlock = append(headerBlock, f.HeaderBlockFragment()...)
			if f.HeadersEnded() && info == nil {
				info = t.decodeHeaders(headerBlock)
			}
			if f.StreamEnded() {
				ended = true
			}
		case *http2.ContinuationFrame:
			headerBlock = append(headerBlock, f.HeaderBlockFragment()...)
			if f.HeadersEnded() && info == nil {
				info = t.decodeHeaders(headerBlock)
			}
		case *http2.DataFrame:
			body = append(body, f.Data()...)
			if f.StreamEnded() {
				ended = true
			}
		case *http2.RSTStreamFrame:
			ended = true
		case *http2.GoAwayFrame:
			ended = true
		case *http2.WindowUpdateFrame, *http2.PingFrame:
			// Not meaningful for a single probe; ignored.
		}
	}

	if info == nil {
		// RST_STREAM or GOAWAY arrived before any response header block.
		return nil, body, hrserr.NewProtocolError("read_response", "stream ended before a response header block arrived", nil)
	}
	return info, body, nil
}

// decodeHeaders runs a complete header block through the connection's HPACK
// decoder, which carries dynamic-table state across calls but performs no
// pseudo-header or control-character validation of its own — duplicates and
// CR/LF-bearing fields decode exactly as received.
func (t *Transport) decodeHeaders(block []byte) *ResponseInfo {
	fields, err := t.hdec.DecodeFull(block)
	if err != nil {
		return &ResponseInfo{}
	}
	info := &ResponseInfo{}
	for _, f := range fields {
		if f.Name == ":status" {
			info.HasStatus = true
			for _, c := range f.Value {
				if c < '0' || c > '9' {
					info.HasStatus = false
					break
				}
			}
			if info.HasStatus {
				code := 0
				for _, c := range f.Value {
					code = code*10 + int(c-'0')
				}
				info.StatusCode = code
			}
			continue
		}
		if len(f.Name) > 0 && f.Name[0] == ':' {
			continue
		}
		info.Headers = append(info.Headers, wire.HeaderPair{Name: f.Name, Value: f.Value})
	}
	return info
}
