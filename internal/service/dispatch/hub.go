package dispatch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/Beatrizpaiva2025/Mia-Welcome/internal/metrics"
)

// ErrClientOffline is returned when no socket is open for the client id.
var ErrClientOffline = errors.New("web client not connected")

// OutboundFrame is the server-to-browser message.
type OutboundFrame struct {
	Type      string `json:"type"`
	Content   string `json:"content"`
	Timestamp string `json:"timestamp"`
}

// Client wraps one browser socket. Writes are serialised.
type Client struct {
	id   string
	conn *websocket.Conn
	mu   sync.Mutex
}

// WriteJSON writes v within the deadline taken from ctx.
func (c *Client) WriteJSON(ctx context.Context, v any) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	deadline, ok := ctx.Deadline()
	if !ok {
		deadline = time.Now().Add(10 * time.Second)
	}
	if err := c.conn.SetWriteDeadline(deadline); err != nil {
		return err
	}
	return c.conn.WriteJSON(v)
}

// WritePing sends a ping control frame.
func (c *Client) WritePing() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(10*time.Second))
}

// Hub tracks open web chat sockets by client id and pushes replies to them.
type Hub struct {
	mu      sync.RWMutex
	clients map[string]*Client
	logger  *slog.Logger
}

// NewHub creates an empty hub.
func NewHub(logger *slog.Logger) *Hub {
	if logger == nil {
		logger = slog.Default()
	}
	return &Hub{
		clients: make(map[string]*Client),
		logger:  logger.With("component", "webchat-hub"),
	}
}

// Register attaches conn to id. A newer socket for the same id replaces the older one.
func (h *Hub) Register(id string, conn *websocket.Conn) *Client {
	client := &Client{id: id, conn: conn}

	h.mu.Lock()
	previous, replaced := h.clients[id]
	h.clients[id] = client
	h.mu.Unlock()

	if replaced {
		_ = previous.conn.Close()
	} else {
		metrics.WebChatConnections.Inc()
	}
	h.logger.Info("client connected", "client", id, "replaced", replaced)
	return client
}

// Unregister detaches client if it is still the current socket for its id.
func (h *Hub) Unregister(client *Client) {
	h.mu.Lock()
	current, ok := h.clients[client.id]
	removed := ok && current == client
	if removed {
		delete(h.clients, client.id)
	}
	h.mu.Unlock()

	if removed {
		metrics.WebChatConnections.Dec()
		h.logger.Info("client disconnected", "client", client.id)
	}
}

// Connected reports whether id has an open socket.
func (h *Hub) Connected(id string) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	_, ok := h.clients[id]
	return ok
}

// Len returns the number of open sockets.
func (h *Hub) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Send pushes text to the socket of contactID. It satisfies Sender.
func (h *Hub) Send(ctx context.Context, contactID, text string) error {
	h.mu.RLock()
	client, ok := h.clients[contactID]
	h.mu.RUnlock()
	if !ok {
		return fmt.Errorf("%w: %s", ErrClientOffline, contactID)
	}

	frame := OutboundFrame{
		Type:      "message",
		Content:   text,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	}
	if err := client.WriteJSON(ctx, frame); err != nil {
		return fmt.Errorf("push to %s: %w", contactID, err)
	}
	return nil
}
