package ws

import (
	"testing"
	"time"

	"github.com/google/uuid"
)

// newTestClient builds a bare Client with no real websocket.Conn, enough to
// exercise Hub.Run()'s register/unregister/broadcast bookkeeping.
func newTestClient(h *Hub) *Client {
	return &Client{hub: h, send: make(chan []byte, sendBufferSize), userID: uuid.New()}
}

// TestHub_RegisterAndConnectedCount confirms registering clients through the
// Run() loop is reflected in ConnectedCount.
func TestHub_RegisterAndConnectedCount(t *testing.T) {
	h := NewHub(nil, nil)
	go h.Run()

	c1 := newTestClient(h)
	c2 := newTestClient(h)
	h.register <- c1
	h.register <- c2

	waitForCount(t, h, 2)
}

// TestHub_Unregister confirms unregistering a client removes it and closes
// its send channel.
func TestHub_Unregister(t *testing.T) {
	h := NewHub(nil, nil)
	go h.Run()

	c := newTestClient(h)
	h.register <- c
	waitForCount(t, h, 1)

	h.unregister <- c
	waitForCount(t, h, 0)

	select {
	case _, ok := <-c.send:
		if ok {
			t.Error("expected send channel to be closed after unregister")
		}
	case <-time.After(time.Second):
		t.Fatal("send channel was not closed after unregister")
	}
}

// TestHub_BroadcastJSON delivers a message to every registered client's send
// channel.
func TestHub_BroadcastJSON(t *testing.T) {
	h := NewHub(nil, nil)
	go h.Run()

	c1 := newTestClient(h)
	c2 := newTestClient(h)
	h.register <- c1
	h.register <- c2
	waitForCount(t, h, 2)

	h.broadcastJSON(map[string]string{"type": "ping"})

	for _, c := range []*Client{c1, c2} {
		select {
		case msg := <-c.send:
			if len(msg) == 0 {
				t.Error("expected a non-empty broadcast payload")
			}
		case <-time.After(time.Second):
			t.Fatal("client did not receive broadcast message")
		}
	}
}

// TestHub_BroadcastDropsOnFullBuffer confirms a client whose send buffer is
// already full does not block the broadcast loop for other clients.
func TestHub_BroadcastDropsOnFullBuffer(t *testing.T) {
	h := NewHub(nil, nil)
	go h.Run()

	slow := newTestClient(h)
	fast := newTestClient(h)
	h.register <- slow
	h.register <- fast
	waitForCount(t, h, 2)

	// Fill the slow client's buffer completely.
	for i := 0; i < sendBufferSize; i++ {
		slow.send <- []byte("x")
	}

	h.broadcastJSON(map[string]string{"type": "flood"})

	select {
	case <-fast.send:
		// fast client still received its message
	case <-time.After(time.Second):
		t.Fatal("broadcast to fast client was blocked by the slow client's full buffer")
	}
}

func waitForCount(t *testing.T, h *Hub, want int) {
	t.Helper()
	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		if h.ConnectedCount() == want {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("ConnectedCount = %d, want %d", h.ConnectedCount(), want)
}
