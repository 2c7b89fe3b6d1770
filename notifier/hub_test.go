package notifier

import (
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
)

func dialHub(t *testing.T, srv *httptest.Server) *websocket.Conn {
	t.Helper()

	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial failed: %v", err)
	}
	return conn
}

func readEvent(t *testing.T, conn *websocket.Conn) Event {
	t.Helper()

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var ev Event
	if err := conn.ReadJSON(&ev); err != nil {
		t.Fatalf("read failed: %v", err)
	}
	return ev
}

// TestHubBroadcast verifies notify and refresh events reach every
// connected client.
func TestHubBroadcast(t *testing.T) {
	hub := NewHub()
	defer hub.Close()

	srv := httptest.NewServer(hub)
	defer srv.Close()

	first := dialHub(t, srv)
	defer first.Close()
	second := dialHub(t, srv)
	defer second.Close()

	// Registration happens in the upgrade handler; give it a beat.
	time.Sleep(50 * time.Millisecond)

	hub.Notify("rule fired")
	for _, conn := range []*websocket.Conn{first, second} {
		ev := readEvent(t, conn)
		if ev.Type != "notify" || ev.Message != "rule fired" {
			t.Errorf("event = %+v", ev)
		}
	}

	hub.RequestRefresh()
	ev := readEvent(t, first)
	if ev.Type != "refresh" || ev.Message != "" {
		t.Errorf("refresh event = %+v", ev)
	}
}

// TestHubDropsDisconnectedClient verifies a closed client is removed
// and a later broadcast still reaches the rest.
func TestHubDropsDisconnectedClient(t *testing.T) {
	hub := NewHub()
	defer hub.Close()

	srv := httptest.NewServer(hub)
	defer srv.Close()

	gone := dialHub(t, srv)
	stays := dialHub(t, srv)
	defer stays.Close()

	time.Sleep(50 * time.Millisecond)
	gone.Close()
	time.Sleep(50 * time.Millisecond)

	hub.Notify("still here")
	ev := readEvent(t, stays)
	if ev.Message != "still here" {
		t.Errorf("event = %+v", ev)
	}
}

// TestHubBroadcastWithoutClients verifies broadcasting into an empty
// hub is a no-op.
func TestHubBroadcastWithoutClients(t *testing.T) {
	hub := NewHub()
	hub.Notify("nobody listening")
	hub.RequestRefresh()
	hub.Close()
}
