package transport1

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/vipinbihari/hrs-detector/internal/hrserr"
	"github.com/vipinbihari/hrs-detector/internal/wire"
)

func listenTCP(t *testing.T) net.Listener {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	return ln
}

func targetFor(t *testing.T, ln net.Listener) wire.Target {
	t.Helper()
	addr := ln.Addr().(*net.TCPAddr)
	return wire.Target{Host: "127.0.0.1", Port: addr.Port, Path: "/"}
}

func TestTransportSendRequestRoundTrip(t *testing.T) {
	ln := listenTCP(t)
	defer ln.Close()

	go func() {
		conn, err := ln.Accept()
		if err != nil {
			return
		}
		defer conn.Close()
		buf := make([]byte, 4096)
		_, _ = conn.Read(buf)
		conn.Write([]byte("HTTP/1.1 200 OK\r\nContent-Length: 2\r\n\r\nok"))
	}()

	tr := New(Config{
		Target:         targetFor(t, ln),
		ConnectTimeout: time.Second,
		ReadTimeout:    time.Second,
	})
	if err := tr.Connect(context.Background()); err != nil {
		t.Fatalf("connect: %v", err)
	}
	defer tr.Close()

	info, body, _, err := tr.SendRequest(context.Background(), "GET", "/", []wire.HeaderPair{
		{Name: "Host", Value: "127.0.0.1"},
	}, nil)
	if err != nil {
		t.Fatalf("send: %v", err)
	}
	if info.StatusCode != 200 {
		t.Fatalf("status = %d", info.StatusCode)
	}
	if string(body) != "ok" {
		t.Fatalf("body = %q", body)
	}
}

func TestTransportTimeout(t *testing.T) {
	ln := listenTCP(t)
	defer ln.Close()

	accepted := make(chan struct{})
	go func() {
		conn, err := ln.Accept()
		if err != nil {
			return
		}
		close(accepted)
		// Never respond; the connection just sits open.
		<-time.After(2 * time.Second)
		conn.Close()
	}()

	tr := New(Config{
		Target:         targetFor(t, ln),
		ConnectTimeout: time.Second,
		ReadTimeout:    50 * time.Millisecond,
	})
	if err := tr.Connect(context.Background()); err != nil {
		t.Fatalf("connect: %v", err)
	}
	defer tr.Close()

	_, _, _, err := tr.SendRequest(context.Background(), "GET", "/", nil, nil)
	<-accepted
	if err == nil {
		t.Fatalf("expected a timeout error")
	}
	if !hrserr.IsTimeout(err) {
		t.Fatalf("expected IsTimeout(err) to be true, got %v", err)
	}
}
