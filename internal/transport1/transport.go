// Package transport1 is the byte-faithful HTTP/1.1 transport: it opens a
// TCP(+TLS) stream, writes exactly the request bytes it is handed, and
// parses replies tolerantly enough to survive protocol abuse. There is no
// connection pooling — every Transport owns exactly one socket and is meant
// to be used for a single probe, then closed.
package transport1

import (
	"bufio"
	"context"
	"crypto/tls"
	"net"
	"time"

	"github.com/vipinbihari/hrs-detector/internal/hrserr"
	"github.com/vipinbihari/hrs-detector/internal/wire"
)

// Config describes how to reach one target for one probe.
type Config struct {
	Target         wire.Target
	TLSConfig      *tls.Config // nil for plain TCP
	ConnectTimeout time.Duration
	ReadTimeout    time.Duration
}

// Transport is a single-use HTTP/1.1 connection. It is never pooled or
// reused across mutations: a successful probe can poison the connection by
// design, so every probe gets a fresh one.
type Transport struct {
	cfg  Config
	conn net.Conn
	br   *bufio.Reader
}

// New creates a Transport for cfg. Connect must be called before use.
func New(cfg Config) *Transport {
	return &Transport{cfg: cfg}
}

// Connect dials the target, performing a TLS handshake first if cfg.TLSConfig
// is set.
func (t *Transport) Connect(ctx context.Context) error {
	dialer := &net.Dialer{Timeout: t.cfg.ConnectTimeout}
	conn, err := dialer.DialContext(ctx, "tcp", t.cfg.Target.Addr())
	if err != nil {
		return hrserr.NewConnectError("dial", t.cfg.Target.Addr(), err)
	}
	if t.cfg.TLSConfig != nil {
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
		conn = tlsConn
	}
	t.conn = conn
	t.br = bufio.NewReader(conn)
	return nil
}

// Close closes the underlying socket. Safe to call once after use.
func (t *Transport) Close() error {
	if t.conn == nil {
		return nil
	}
	return t.conn.Close()
}

// SendRaw writes raw verbatim and reads one response, applying ReadTimeout as
// the deadline for the whole read side (headers + body).
func (t *Transport) SendRaw(ctx context.Context, raw []byte) (*ResponseInfo, []byte, error) {
	if t.conn == nil {
		return nil, nil, hrserr.NewConnectError("write", t.cfg.Target.Addr(), net.ErrClosed)
	}
	if _, err := t.conn.Write(raw); err != nil {
		return nil, nil, hrserr.NewConnectError("write", t.cfg.Target.Addr(), err)
	}

	deadline := time.Now().Add(t.cfg.ReadTimeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}
	if err := t.conn.SetReadDeadline(deadline); err != nil {
		return nil, nil, hrserr.NewConnectError("set_deadline", t.cfg.Target.Addr(), err)
	}

	info, body, err := readResponse(t.br)
	if err != nil {
		if hrserr.IsTimeout(err) {
			return nil, nil, hrserr.NewTimeoutError("read_response", t.cfg.ReadTimeout)
		}
		return info, body, err
	}
	return info, body, nil
}

// SendRequest builds an HTTP/1.1 request with wire.BuildRequest1 and sends it
// via SendRaw, returning the raw bytes alongside the parsed response so
// callers can attach them to a Finding.
func (t *Transport) SendRequest(ctx context.Context, method, path string, headers []wire.HeaderPair, body []byte) (*ResponseInfo, []byte, []byte, error) {
	raw := wire.BuildRequest1(method, path, headers, body)
	info, respBody, err := t.SendRaw(ctx, raw)
	return info, respBody, raw, err
}

// Pipeline writes every request in reqs back-to-back before reading any
// response, then parses responses in arrival order. If response i fails to
// parse, Pipeline stops and returns the responses read so far plus that
// error; it does not attempt to resynchronise on the stream.
func (t *Transport) Pipeline(ctx context.Context, reqs [][]byte) ([]*ResponseInfo, [][]byte, error) {
	if t.conn == nil {
		return nil, nil, hrserr.NewConnectError("write", t.cfg.Target.Addr(), net.ErrClosed)
	}
	for _, raw := range reqs {
		if _, err := t.conn.Write(raw); err != nil {
			return nil, nil, hrserr.NewConnectError("write", t.cfg.Target.Addr(), err)
		}
	}

	deadline := time.Now().Add(t.cfg.ReadTimeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}
	if err := t.conn.SetReadDeadline(deadline); err != nil {
		return nil, nil, hrserr.NewConnectError("set_deadline", t.cfg.Target.Addr(), err)
	}

	infos := make([]*ResponseInfo, 0, len(reqs))
	bodies := make([][]byte, 0, len(reqs))
	for range reqs {
		info, body, err := readResponse(t.br)
		if err != nil {
			return infos, bodies, err
		}
		infos = append(infos, info)
		bodies = append(bodies, body)
	}
	return infos, bodies, nil
}
