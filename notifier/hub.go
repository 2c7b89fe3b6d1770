// Package notifier pushes transient notifications and refresh hints to
// connected UI clients over websockets. It implements the engine's
// Notifier and Refresher contracts.
package notifier

import (
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/freed-reader/automations/internal/logger"
)

const writeTimeout = 5 * time.Second

// Event is one message pushed to clients.
type Event struct {
	Type    string `json:"type"` // "notify" or "refresh"
	Message string `json:"message,omitempty"`
}

// Hub tracks connected websocket clients and broadcasts events to all
// of them. Both surfaces are fire-and-forget: a failed write drops
// that client, nothing else.
type Hub struct {
	upgrader websocket.Upgrader
	clients  map[*websocket.Conn]bool
	mu       sync.Mutex
}

// NewHub creates an empty hub.
func NewHub() *Hub {
	return &Hub{
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			// The reader UI connects from its own origin.
			CheckOrigin: func(*http.Request) bool { return true },
		},
		clients: make(map[*websocket.Conn]bool),
	}
}

// ServeHTTP upgrades the connection and registers the client. Client
// reads are drained and discarded; the hub only pushes.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		logger.Warn("websocket upgrade failed", "error", err)
		return
	}

	h.mu.Lock()
	h.clients[conn] = true
	h.mu.Unlock()

	go func() {
		defer h.remove(conn)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()
}

// Notify broadcasts a transient notification message.
func (h *Hub) Notify(message string) {
	h.broadcast(Event{Type: "notify", Message: message})
}

// RequestRefresh hints that clients should re-read entities.
func (h *Hub) RequestRefresh() {
	h.broadcast(Event{Type: "refresh"})
}

// Close disconnects all clients.
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()

	for conn := range h.clients {
		conn.Close()
		delete(h.clients, conn)
	}
}

func (h *Hub) broadcast(ev Event) {
	h.mu.Lock()
	defer h.mu.Unlock()

	for conn := range h.clients {
		conn.SetWriteDeadline(time.Now().Add(writeTimeout))
		if err := conn.WriteJSON(ev); err != nil {
			conn.Close()
			delete(h.clients, conn)
		}
	}
}

func (h *Hub) remove(conn *websocket.Conn) {
	h.mu.Lock()
	defer h.mu.Unlock()

	conn.Close()
	delete(h.clients, conn)
}
