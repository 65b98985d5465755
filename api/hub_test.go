package api

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/hazyhaar/rewind/capture"
)

func TestHub_BroadcastDropsStalledClient(t *testing.T) {
	h := NewHub(quiet)
	// No writer drains this queue.
	stalled := &client{send: make(chan []byte, sendBuffer)}
	h.clients[stalled] = struct{}{}

	done := make(chan struct{})
	go func() {
		for i := range sendBuffer + 4 {
			h.Broadcast(capture.Status{Target: "tab", Records: i})
		}
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Broadcast blocked on a stalled client")
	}

	if n := h.ClientCount(); n != 0 {
		t.Fatalf("stalled client still registered (%d clients)", n)
	}
	queued := 0
	for range stalled.send {
		queued++
	}
	if queued != sendBuffer {
		t.Fatalf("queued %d statuses, want %d", queued, sendBuffer)
	}
}

func dialHub(t *testing.T, h *Hub) *websocket.Conn {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(h.HandleWebSocket))
	t.Cleanup(srv.Close)
	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http"), nil)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

func readStatus(conn *websocket.Conn, wait time.Duration) (capture.Status, error) {
	conn.SetReadDeadline(time.Now().Add(wait))
	_, data, err := conn.ReadMessage()
	if err != nil {
		return capture.Status{}, err
	}
	var st capture.Status
	err = json.Unmarshal(data, &st)
	return st, err
}

func TestHub_LatestStatusNeverFollowsNewer(t *testing.T) {
	h := NewHub(quiet)
	t.Cleanup(h.Close)
	h.Broadcast(capture.Status{Target: "old"})

	conn := dialHub(t, h)
	h.Broadcast(capture.Status{Target: "new"})

	first, err := readStatus(conn, 2*time.Second)
	if err != nil {
		t.Fatal(err)
	}
	switch first.Target {
	case "old":
		// Registered before the second broadcast: it must follow.
		second, err := readStatus(conn, 2*time.Second)
		if err != nil || second.Target != "new" {
			t.Fatalf("after old: %+v, %v", second, err)
		}
	case "new":
		// Registered after it: nothing stale may arrive later.
		if st, err := readStatus(conn, 100*time.Millisecond); err == nil {
			t.Fatalf("stale status after the newest: %+v", st)
		}
	default:
		t.Fatalf("unexpected status %+v", first)
	}
}

func TestHub_CloseDisconnectsClients(t *testing.T) {
	h := NewHub(quiet)
	conn := dialHub(t, h)

	deadline := time.Now().Add(2 * time.Second)
	for h.ClientCount() == 0 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	h.Close()

	if _, err := readStatus(conn, 2*time.Second); err == nil {
		t.Fatal("read succeeded after Close")
	}
	if n := h.ClientCount(); n != 0 {
		t.Fatalf("%d clients after Close", n)
	}
}
