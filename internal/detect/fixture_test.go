package detect

import (
	"bufio"
	"net"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/vipinbihari/hrs-detector/internal/wire"
)

// fakeClock replays a fixed sequence of timestamps, letting a test dictate
// the exact elapsed duration the engine observes for each Now()/Now() pair
// without any real sleeping.
type fakeClock struct {
	times []time.Time
	idx   int
}

func newFakeClock(durations ...time.Duration) *fakeClock {
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	times := make([]time.Time, 0, len(durations)+1)
	t := base
	times = append(times, t)
	for _, d := range durations {
		t = t.Add(d)
		times = append(times, t)
	}
	return &fakeClock{times: times}
}

func (f *fakeClock) Now() time.Time {
	t := f.times[f.idx]
	if f.idx < len(f.times)-1 {
		f.idx++
	}
	return t
}

// startHTTP1Fixture runs a single-connection-at-a-time HTTP/1.1 server that
// reads a request (headers plus, when Content-Length is present, that many
// more bytes) and writes back a canned, fixed-length response. It never
// inspects chunked framing inside the body, matching the tolerant
// byte-counting a real intermediary would do.
func startHTTP1Fixture(t *testing.T, response []byte) string {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	t.Cleanup(func() { ln.Close() })

	go func() {
		for {
			conn, err := ln.Accept()
			if err != nil {
				return
			}
			go func(c net.Conn) {
				defer c.Close()
				br := bufio.NewReader(c)
				var headers []string
				for {
					line, err := br.ReadString('\n')
					if err != nil {
						return
					}
					trimmed := strings.TrimRight(line, "\r\n")
					if trimmed == "" {
						break
					}
					headers = append(headers, trimmed)
				}
				cl := 0
				for _, h := range headers {
					parts := strings.SplitN(h, ":", 2)
					if len(parts) == 2 && strings.EqualFold(strings.TrimSpace(parts[0]), "content-length") {
						if n, err := strconv.Atoi(strings.TrimSpace(parts[1])); err == nil {
							cl = n
						}
					}
				}
				if cl > 0 {
					buf := make([]byte, cl)
					br.Read(buf) // best-effort; short reads are fine for these fixtures
				}
				c.Write(response)
			}(conn)
		}
	}()
	return ln.Addr().String()
}

// startHTTP1FixtureHangAfter behaves like startHTTP1Fixture for the first
// respondCount connections, then silently reads and never writes on every
// connection after that, forcing a real client-side read-timeout — used to
// exercise the confirm-times-out suppression path without faking transport
// errors.
func startHTTP1FixtureHangAfter(t *testing.T, response []byte, respondCount int) string {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	t.Cleanup(func() { ln.Close() })

	count := 0
	go func() {
		for {
			conn, err := ln.Accept()
			if err != nil {
				return
			}
			count++
			respond := count <= respondCount
			go func(c net.Conn, respond bool) {
				defer c.Close()
				br := bufio.NewReader(c)
				var headers []string
				for {
					line, err := br.ReadString('\n')
					if err != nil {
						return
					}
					trimmed := strings.TrimRight(line, "\r\n")
					if trimmed == "" {
						break
					}
					headers = append(headers, trimmed)
				}
				cl := 0
				for _, h := range headers {
					parts := strings.SplitN(h, ":", 2)
					if len(parts) == 2 && strings.EqualFold(strings.TrimSpace(parts[0]), "content-length") {
						if n, err := strconv.Atoi(strings.TrimSpace(parts[1])); err == nil {
							cl = n
						}
					}
				}
				if cl > 0 {
					buf := make([]byte, cl)
					br.Read(buf)
				}
				if respond {
					c.Write(response)
					return
				}
				// Hang: never write, hold the connection open well past any
				// client read deadline used in these tests.
				time.Sleep(2 * time.Second)
			}(conn, respond)
		}
	}()
	return ln.Addr().String()
}

func mustTarget(t *testing.T, addr string) wire.Target {
	t.Helper()
	host, portStr, err := net.SplitHostPort(addr)
	if err != nil {
		t.Fatalf("split host port: %v", err)
	}
	port, err := strconv.Atoi(portStr)
	if err != nil {
		t.Fatalf("parse port: %v", err)
	}
	return wire.Target{Host: host, Port: port, Path: "/"}
}

const okResponse = "HTTP/1.1 200 OK\r\nContent-Length: 2\r\n\r\nhi"
