package events

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/echotrails/native/internal/logctx"
	"github.com/gorilla/websocket"
)

const (
	clientQueueSize = 256
	writeWait       = 10 * time.Second
	pingPeriod      = 30 * time.Second
)

// ErrNoListeners is returned by Emit when no UI client is connected.
var ErrNoListeners = errors.New("no event listeners connected")

// Message is the frame written to websocket clients.
type Message struct {
	Event   string `json:"event"`
	Payload any    `json:"payload"`
}

// Hub fans events out to connected websocket clients. A client whose queue
// is full misses the event; emitters are never slowed down.
type Hub struct {
	upgrader websocket.Upgrader

	mu      sync.RWMutex
	clients map[*client]struct{}
}

type client struct {
	conn  *websocket.Conn
	queue chan []byte
}

func NewHub() *Hub {
	return &Hub{
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 4096,
			// the webview origin is a custom scheme that differs per platform
			CheckOrigin: func(*http.Request) bool { return true },
		},
		clients: make(map[*client]struct{}),
	}
}

// Emit implements Emitter.
func (h *Hub) Emit(name string, payload any) error {
	frame, err := json.Marshal(Message{Event: name, Payload: payload})
	if err != nil {
		return fmt.Errorf("failed to marshal event %s: %w", name, err)
	}

	h.mu.RLock()
	defer h.mu.RUnlock()

	if len(h.clients) == 0 {
		return ErrNoListeners
	}

	for c := range h.clients {
		select {
		case c.queue <- frame:
		default:
		}
	}

	return nil
}

// Clients returns the number of connected listeners.
func (h *Hub) Clients() int {
	h.mu.RLock()
	defer h.mu.RUnlock()

	return len(h.clients)
}

// ServeHTTP upgrades the request and streams events until the client leaves
// or the request context ends.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	logger := logctx.LoggerFromContext(ctx)

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		logger.WarnContext(ctx, "failed to upgrade event stream", "err", err)

		return
	}

	c := &client{conn: conn, queue: make(chan []byte, clientQueueSize)}
	h.register(c)
	defer h.unregister(c)

	logger.DebugContext(ctx, "event listener connected", "remote_addr", r.RemoteAddr)

	done := make(chan struct{})
	go h.readLoop(c, done)

	h.writeLoop(ctx, c, done)
}

func (h *Hub) register(c *client) {
	h.mu.Lock()
	h.clients[c] = struct{}{}
	h.mu.Unlock()
}

func (h *Hub) unregister(c *client) {
	h.mu.Lock()
	delete(h.clients, c)
	h.mu.Unlock()

	c.conn.Close()
}

// readLoop drains control frames so close and pong are processed.
func (h *Hub) readLoop(c *client, done chan<- struct{}) {
	defer close(done)

	for {
		if _, _, err := c.conn.NextReader(); err != nil {
			return
		}
	}
}

func (h *Hub) writeLoop(ctx context.Context, c *client, done <-chan struct{}) {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			_ = c.conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseGoingAway, "shutting down"),
				time.Now().Add(writeWait))

			return
		case <-done:
			return
		case frame := <-c.queue:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.TextMessage, frame); err != nil {
				return
			}
		case <-ticker.C:
			if err := c.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait)); err != nil {
				return
			}
		}
	}
}
