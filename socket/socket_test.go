package socket

import (
	"io"
	"net"
	"os"
	"strings"
	"testing"
	"time"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()
	if !cfg.NoDelay {
		t.Error("NoDelay should be true by default")
	}
	if cfg.RecvBuffer != 256*1024 {
		t.Errorf("RecvBuffer = %d, want %d", cfg.RecvBuffer, 256*1024)
	}
	if !cfg.KeepAlive {
		t.Error("KeepAlive should be true by default")
	}
}

func dialedPair(t *testing.T) (client, server net.Conn) {
	t.Helper()
	listener, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	defer listener.Close()

	acceptDone := make(chan net.Conn, 1)
	go func() {
		c, err := listener.Accept()
		if err == nil {
			acceptDone <- c
		}
	}()

	client, err = net.Dial("tcp", listener.Addr().String())
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	server = <-acceptDone
	return client, server
}

func TestApplyTunesLiveConnection(t *testing.T) {
	client, server := dialedPair(t)
	defer client.Close()
	defer server.Close()

	if err := Apply(server, DefaultConfig()); err != nil {
		t.Errorf("Apply: %v", err)
	}

	msg := "ping"
	go client.Write([]byte(msg))
	buf := make([]byte, len(msg))
	n, err := server.Read(buf)
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if string(buf[:n]) != msg {
		t.Errorf("got %q, want %q", buf[:n], msg)
	}
}

func TestApplyNilConfigUsesDefaults(t *testing.T) {
	client, server := dialedPair(t)
	defer client.Close()
	defer server.Close()

	if err := Apply(server, nil); err != nil {
		t.Errorf("Apply(nil): %v", err)
	}
}

func TestApplyListenerDoesNotBreakAccept(t *testing.T) {
	listener, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	defer listener.Close()

	if err := ApplyListener(listener, DefaultConfig()); err != nil {
		t.Logf("ApplyListener returned error (platform-dependent): %v", err)
	}

	connected := make(chan struct{})
	go func() {
		c, err := net.Dial("tcp", listener.Addr().String())
		if err == nil {
			c.Close()
		}
		close(connected)
	}()

	c, err := listener.Accept()
	if err != nil {
		t.Fatalf("accept: %v", err)
	}
	c.Close()
	<-connected
}

func TestSendFileAllStreamsWholeFile(t *testing.T) {
	tmpfile, err := os.CreateTemp("", "pulsehttp-sendfile-*.txt")
	if err != nil {
		t.Fatalf("create temp: %v", err)
	}
	defer os.Remove(tmpfile.Name())
	defer tmpfile.Close()

	testData := strings.Repeat("pulsehttp\n", 1000)
	if _, err := tmpfile.WriteString(testData); err != nil {
		t.Fatalf("write temp: %v", err)
	}
	if _, err := tmpfile.Seek(0, 0); err != nil {
		t.Fatalf("seek: %v", err)
	}

	client, server := dialedPair(t)
	defer server.Close()

	receiveDone := make(chan string, 1)
	go func() {
		defer client.Close()
		data, _ := io.ReadAll(client)
		receiveDone <- string(data)
	}()

	written, err := SendFileAll(server, tmpfile)
	if err != nil {
		t.Fatalf("SendFileAll: %v", err)
	}
	if written != int64(len(testData)) {
		t.Errorf("wrote %d bytes, want %d", written, len(testData))
	}
	server.Close()

	select {
	case received := <-receiveDone:
		if received != testData {
			t.Errorf("received %d bytes, want %d", len(received), len(testData))
		}
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for file contents")
	}
}

func TestCanUseSendFileOnTCPConn(t *testing.T) {
	client, server := dialedPair(t)
	defer client.Close()
	defer server.Close()

	if !CanUseSendFile(server) {
		t.Error("expected a *net.TCPConn to report sendfile-capable")
	}
}
