//go:build linux
// +build linux

package socket

import (
	"testing"
	"time"
)

func TestEpollBackendReportsReadability(t *testing.T) {
	backend, err := NewEpollBackend()
	if err != nil {
		t.Fatalf("NewEpollBackend: %v", err)
	}
	defer backend.Close()

	client, server := dialedPair(t)
	defer client.Close()
	defer server.Close()

	if err := backend.Register(1, server, false); err != nil {
		t.Fatalf("Register: %v", err)
	}
	defer backend.Deregister(1)

	if _, err := client.Write([]byte("hello")); err != nil {
		t.Fatalf("client write: %v", err)
	}

	events, err := backend.Wait(nil)
	if err != nil {
		t.Fatalf("Wait: %v", err)
	}
	if len(events) != 1 || events[0].ID != 1 || !events[0].Readable {
		t.Fatalf("events = %+v, want one readable event for id 1", events)
	}
}

func TestEpollBackendWriteInterest(t *testing.T) {
	backend, err := NewEpollBackend()
	if err != nil {
		t.Fatalf("NewEpollBackend: %v", err)
	}
	defer backend.Close()

	client, server := dialedPair(t)
	defer client.Close()
	defer server.Close()

	if err := backend.Register(7, server, true); err != nil {
		t.Fatalf("Register: %v", err)
	}
	defer backend.Deregister(7)

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		events, err := backend.Wait(nil)
		if err != nil {
			t.Fatalf("Wait: %v", err)
		}
		for _, ev := range events {
			if ev.ID == 7 && ev.Writable {
				return
			}
		}
	}
	t.Fatal("never observed write-readiness on an idle, writable socket")
}
