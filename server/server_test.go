package server

import (
	"bufio"
	"context"
	"fmt"
	"net"
	"strings"
	"testing"
	"time"

	"github.com/pulsehttp/pulsehttp/message"
	"github.com/pulsehttp/pulsehttp/router"
	"github.com/pulsehttp/pulsehttp/writer"
)

// startLoop spins up a Loop bound to an ephemeral loopback port and
// returns it once Run is driving in the background, the same
// bind-then-dial shape the teacher's server benchmarks use.
func startLoop(t *testing.T, cfg Config) (*Loop, func()) {
	t.Helper()
	cfg.Hostname = "127.0.0.1"
	cfg.Port = 0
	cfg.Network = "tcp"

	ctx, cancel := context.WithCancel(context.Background())
	loop, err := NewLoop(ctx, cfg)
	if err != nil {
		cancel()
		t.Fatalf("NewLoop: %v", err)
	}

	runErr := make(chan error, 1)
	go func() { runErr <- loop.Run(ctx) }()

	return loop, func() {
		cancel()
		select {
		case <-runErr:
		case <-time.After(2 * time.Second):
			t.Fatalf("loop.Run did not return after cancel")
		}
	}
}

func helloRoutes() map[string]router.HandlerFactory {
	return map[string]router.HandlerFactory{
		"/hello": router.NewBufferedHandler(func(req *message.Message, body []byte, sender router.Sender) error {
			sender.Send(writer.ComposeResponse("HTTP/1.1", "200", "OK", [][2]string{{"Content-Type", "text/plain"}}, []byte("hi")))
			return nil
		}),
	}
}

func TestLoopRoundTripsSimpleRequest(t *testing.T) {
	loop, stop := startLoop(t, Config{Routes: helloRoutes()})
	defer stop()

	conn, err := net.DialTimeout("tcp", loop.Addr().String(), time.Second)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	fmt.Fprintf(conn, "GET /hello HTTP/1.1\r\nHost: example.com\r\nConnection: close\r\n\r\n")
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))

	reader := bufio.NewReader(conn)
	line, err := reader.ReadString('\n')
	if err != nil {
		t.Fatalf("read status line: %v", err)
	}
	if !strings.HasPrefix(line, "HTTP/1.1 200") {
		t.Fatalf("status line = %q", line)
	}
}

func TestLoopKeepsConnectionOpenAcrossRequests(t *testing.T) {
	loop, stop := startLoop(t, Config{Routes: helloRoutes()})
	defer stop()

	conn, err := net.DialTimeout("tcp", loop.Addr().String(), time.Second)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()
	conn.SetDeadline(time.Now().Add(2 * time.Second))

	reader := bufio.NewReader(conn)
	for i := 0; i < 3; i++ {
		fmt.Fprintf(conn, "GET /hello HTTP/1.1\r\nHost: example.com\r\n\r\n")
		line, err := reader.ReadString('\n')
		if err != nil {
			t.Fatalf("request %d: read status line: %v", i, err)
		}
		if !strings.HasPrefix(line, "HTTP/1.1 200") {
			t.Fatalf("request %d: status line = %q", i, line)
		}
		for {
			l, err := reader.ReadString('\n')
			if err != nil {
				t.Fatalf("request %d: read headers: %v", i, err)
			}
			if l == "\r\n" {
				break
			}
		}
		body := make([]byte, len("hi"))
		if _, err := reader.Read(body); err != nil {
			t.Fatalf("request %d: read body: %v", i, err)
		}
	}
}

func TestLoopUnroutedPathGetsCanned404(t *testing.T) {
	loop, stop := startLoop(t, Config{})
	defer stop()

	conn, err := net.DialTimeout("tcp", loop.Addr().String(), time.Second)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))

	fmt.Fprintf(conn, "GET /missing HTTP/1.1\r\nHost: example.com\r\nConnection: close\r\n\r\n")
	reader := bufio.NewReader(conn)
	line, err := reader.ReadString('\n')
	if err != nil {
		t.Fatalf("read status line: %v", err)
	}
	if !strings.HasPrefix(line, "HTTP/1.1 404") {
		t.Fatalf("status line = %q", line)
	}
}

func TestLoopStatsCountConnectionsAndRequests(t *testing.T) {
	loop, stop := startLoop(t, Config{Routes: helloRoutes()})
	defer stop()

	conn, err := net.DialTimeout("tcp", loop.Addr().String(), time.Second)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	fmt.Fprintf(conn, "GET /hello HTTP/1.1\r\nHost: example.com\r\nConnection: close\r\n\r\n")
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	reader := bufio.NewReader(conn)
	if _, err := reader.ReadString('\n'); err != nil {
		t.Fatalf("read status line: %v", err)
	}
	conn.Close()

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if loop.Stats().TotalRequests.Load() > 0 {
			break
		}
		time.Sleep(10 * time.Millisecond)
	}

	stats := loop.Stats()
	if stats.TotalConnections.Load() == 0 {
		t.Fatalf("expected TotalConnections > 0")
	}
	if stats.TotalRequests.Load() == 0 {
		t.Fatalf("expected TotalRequests > 0")
	}
	if stats.BytesWritten.Load() == 0 {
		t.Fatalf("expected BytesWritten > 0")
	}
}

func TestLoopShutdownDrainsGracefully(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	loop, err := NewLoop(ctx, Config{
		Hostname: "127.0.0.1",
		Port:     0,
		Network:  "tcp",
		Routes:   helloRoutes(),
	})
	if err != nil {
		t.Fatalf("NewLoop: %v", err)
	}

	runErr := make(chan error, 1)
	go func() { runErr <- loop.Run(ctx) }()

	sdCtx, sdCancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer sdCancel()
	if err := loop.Shutdown(sdCtx); err != nil {
		t.Fatalf("Shutdown: %v", err)
	}

	select {
	case err := <-runErr:
		if err != nil {
			t.Fatalf("Run returned error after Shutdown: %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("Run did not return after Shutdown")
	}

	if _, err := net.DialTimeout("tcp", loop.Addr().String(), 200*time.Millisecond); err == nil {
		t.Fatalf("expected the listener to be closed after shutdown")
	}
}
