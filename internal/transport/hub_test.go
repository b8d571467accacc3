package transport

import (
	"context"
	"fmt"
	"testing"

	"github.com/coder/websocket"
)

func TestHubQueuesWhileOffline(t *testing.T) {
	hub := NewHub(10)
	ctx := context.Background()

	for _, text := range []string{"one", "two", "three"} {
		if err := hub.Send(ctx, "s1", text); err != nil {
			t.Fatalf("Send failed: %v", err)
		}
	}
	if hub.Pending("s1") != 3 {
		t.Fatalf("expected 3 pending replies, got %d", hub.Pending("s1"))
	}
	if hub.Pending("s2") != 0 {
		t.Fatal("expected other sessions to be unaffected")
	}

	got := hub.Drain("s1")
	want := []string{"one", "two", "three"}
	if len(got) != len(want) {
		t.Fatalf("expected %v, got %v", want, got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("reply %d = %q, want %q", i, got[i], want[i])
		}
	}
	if hub.Drain("s1") != nil {
		t.Fatal("expected drain to empty the queue")
	}
}

func TestHubQueueIsBoundedPerSession(t *testing.T) {
	hub := NewHub(3)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		_ = hub.Send(ctx, "busy", fmt.Sprintf("m%d", i))
	}
	_ = hub.Send(ctx, "quiet", "hello")

	got := hub.Drain("busy")
	if len(got) != 3 || got[0] != "m2" || got[2] != "m4" {
		t.Fatalf("expected newest three replies, got %v", got)
	}
	if q := hub.Drain("quiet"); len(q) != 1 || q[0] != "hello" {
		t.Fatalf("expected other session's queue to survive, got %v", q)
	}
}

func TestHubUnregisterStale(t *testing.T) {
	hub := NewHub(0)
	conn := &websocket.Conn{}
	stale := &websocket.Conn{}

	hub.Register(context.Background(), "s1", conn)
	hub.Unregister("s1", stale)
	if !hub.Connected("s1") {
		t.Fatal("expected stale unregister to keep the live connection")
	}

	hub.Unregister("s1", conn)
	if hub.Connected("s1") {
		t.Fatal("expected connection to be removed")
	}
}

func TestHubRequeueKeepsOlderRepliesFirst(t *testing.T) {
	hub := NewHub(0)
	_ = hub.Send(context.Background(), "s1", "newer")

	hub.mu.Lock()
	hub.requeueLocked("s1", []string{"old1", "old2"})
	hub.mu.Unlock()

	got := hub.Drain("s1")
	want := []string{"old1", "old2", "newer"}
	if len(got) != len(want) {
		t.Fatalf("expected %v, got %v", want, got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("reply %d = %q, want %q", i, got[i], want[i])
		}
	}
}
