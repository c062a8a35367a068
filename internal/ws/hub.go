package ws

import (
	"sync"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"tariff_dashboard/internal/metrics"
)

// Client is one connected dashboard.
type Client struct {
	id   string
	hub  *Hub
	conn *websocket.Conn
	send chan []byte
}

func newClient(hub *Hub, conn *websocket.Conn, buffer int) *Client {
	return &Client{id: uuid.NewString(), hub: hub, conn: conn, send: make(chan []byte, buffer)}
}

// Hub fans dashboard state messages out to every connected client. Every
// server message carries a full view, so a client whose buffer is full
// simply misses that version and catches up with the next one.
type Hub struct {
	mu      sync.RWMutex
	clients map[*Client]bool
	logger  zerolog.Logger
}

func NewHub(logger zerolog.Logger) *Hub {
	return &Hub{
		clients: make(map[*Client]bool),
		logger:  logger,
	}
}

func (h *Hub) Register(c *Client) {
	h.mu.Lock()
	h.clients[c] = true
	n := len(h.clients)
	h.mu.Unlock()

	metrics.SetWSClients(n)
	h.logger.Debug().Str("client_id", c.id).Int("clients", n).Msg("dashboard connected")
}

func (h *Hub) Unregister(c *Client) {
	h.mu.Lock()
	_, ok := h.clients[c]
	if ok {
		delete(h.clients, c)
		close(c.send)
	}
	n := len(h.clients)
	h.mu.Unlock()

	if ok {
		metrics.SetWSClients(n)
		h.logger.Debug().Str("client_id", c.id).Int("clients", n).Msg("dashboard disconnected")
	}
}

// Publish wraps payload in an envelope of msgType and queues it for every
// client. It returns the number of clients the message reached.
func (h *Hub) Publish(msgType string, payload any) (int, error) {
	msg, err := NewEnvelope(msgType, payload)
	if err != nil {
		return 0, err
	}

	h.mu.RLock()
	defer h.mu.RUnlock()
	delivered := 0
	for c := range h.clients {
		if h.deliver(c, msgType, msg) {
			delivered++
		}
	}
	return delivered, nil
}

// SendTo queues one message for a single client.
func (h *Hub) SendTo(c *Client, msgType string, payload any) error {
	msg, err := NewEnvelope(msgType, payload)
	if err != nil {
		return err
	}
	h.deliver(c, msgType, msg)
	return nil
}

func (h *Hub) deliver(c *Client, msgType string, msg []byte) bool {
	select {
	case c.send <- msg:
		return true
	default:
		metrics.ObserveWSDrop(msgType)
		h.logger.Warn().Str("client_id", c.id).Str("type", msgType).Msg("client buffer full, dropping message")
		return false
	}
}

// ClientCount returns the number of connected clients.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

func (c *Client) writePump() {
	defer c.conn.Close()
	for msg := range c.send {
		if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
			return
		}
	}
}
