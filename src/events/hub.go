package events

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	logger "github.com/sirupsen/logrus"
)

// Event types pushed to dashboard subscribers for cache invalidation.
const (
	EventPositionUpdated = "position.updated"
	EventPositionClosed  = "position.closed"
	EventOrderFilled     = "order.filled"
	EventOrderCancelled  = "order.cancelled"
)

// Publisher is the write side of the hub. Components that fire state
// transition events depend on this interface only.
type Publisher interface {
	Publish(eventType string, payload interface{})
}

// NoopPublisher discards events. Used in tests and CLI runs.
type NoopPublisher struct{}

func (NoopPublisher) Publish(string, interface{}) {}

type envelope struct {
	Type    string      `json:"type"`
	Payload interface{} `json:"payload"`
	TS      time.Time   `json:"ts"`
}

const (
	writeWait      = 10 * time.Second
	clientBuffer   = 64
	maxMessageSize = 512
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

type client struct {
	conn *websocket.Conn
	send chan []byte
}

// Hub broadcasts ledger state transitions to connected websocket clients.
// Slow clients are dropped rather than allowed to block the publishers.
type Hub struct {
	mu      sync.RWMutex
	clients map[*client]struct{}
}

func NewHub() *Hub {
	return &Hub{clients: map[*client]struct{}{}}
}

// Publish fans the event out to every connected client.
func (h *Hub) Publish(eventType string, payload interface{}) {
	data, err := json.Marshal(envelope{Type: eventType, Payload: payload, TS: time.Now().UTC()})
	if err != nil {
		logger.WithError(err).WithField("event", eventType).Error("failed to encode event")
		return
	}

	h.mu.RLock()
	defer h.mu.RUnlock()
	for c := range h.clients {
		select {
		case c.send <- data:
		default:
			// Client is not keeping up; drop it.
			go h.remove(c)
		}
	}
}

func (h *Hub) add(c *client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.clients[c] = struct{}{}
}

func (h *Hub) remove(c *client) {
	h.mu.Lock()
	if _, ok := h.clients[c]; ok {
		delete(h.clients, c)
		close(c.send)
	}
	h.mu.Unlock()
}

// ClientCount reports the number of connected subscribers.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// ServeWS upgrades the request and registers the connection as a subscriber.
func (h *Hub) ServeWS(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		logger.WithError(err).Error("websocket upgrade failed")
		return
	}

	c := &client{conn: conn, send: make(chan []byte, clientBuffer)}
	h.add(c)

	go h.writeLoop(c)
	go h.readLoop(c)
}

func (h *Hub) writeLoop(c *client) {
	defer c.conn.Close()
	for data := range c.send {
		_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
		if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
			h.remove(c)
			return
		}
	}
	_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
}

func (h *Hub) readLoop(c *client) {
	defer h.remove(c)
	c.conn.SetReadLimit(maxMessageSize)
	for {
		// Subscribers do not send anything meaningful; this loop only
		// detects disconnects.
		if _, _, err := c.conn.ReadMessage(); err != nil {
			return
		}
	}
}
