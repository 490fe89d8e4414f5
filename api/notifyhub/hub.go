package notifyhub

import (
	"sync"

	"github.com/bytedance/sonic"
	"github.com/gorilla/websocket"

	"github.com/moyoez/pdfbot-go/tool"
	"github.com/moyoez/pdfbot-go/types"
)

// client serializes writes; gorilla connections allow one concurrent writer.
type client struct {
	conn *websocket.Conn
	mu   sync.Mutex
}

func (c *client) write(payload []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.conn.WriteMessage(websocket.TextMessage, payload)
}

// Hub holds WebSocket connections per user and delivers each user only their own notifications.
type Hub struct {
	mu    sync.RWMutex
	conns map[int64]map[*websocket.Conn]*client
}

// New creates a new notify hub.
func New() *Hub {
	return &Hub{
		conns: make(map[int64]map[*websocket.Conn]*client),
	}
}

// Register adds a WebSocket connection for userID.
func (h *Hub) Register(userID int64, conn *websocket.Conn) {
	h.mu.Lock()
	defer h.mu.Unlock()
	set, ok := h.conns[userID]
	if !ok {
		set = make(map[*websocket.Conn]*client)
		h.conns[userID] = set
	}
	set[conn] = &client{conn: conn}
}

// Unregister removes a WebSocket connection of userID.
func (h *Hub) Unregister(userID int64, conn *websocket.Conn) {
	h.mu.Lock()
	defer h.mu.Unlock()
	set := h.conns[userID]
	delete(set, conn)
	if len(set) == 0 {
		delete(h.conns, userID)
	}
}

// Subscribers is the number of open connections of userID.
func (h *Hub) Subscribers(userID int64) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.conns[userID])
}

// Publish sends the notification as JSON to every connection of userID.
// Implements types.NotifyHub.
func (h *Hub) Publish(userID int64, notification *types.Notification) {
	if notification == nil {
		return
	}
	h.mu.RLock()
	clients := make([]*client, 0, len(h.conns[userID]))
	for _, c := range h.conns[userID] {
		clients = append(clients, c)
	}
	h.mu.RUnlock()
	if len(clients) == 0 {
		return
	}

	payload, err := sonic.Marshal(notification)
	if err != nil {
		tool.DefaultLogger.Errorf("[NotifyHub] Failed to encode notification: %v", err)
		return
	}
	for _, c := range clients {
		if err := c.write(payload); err != nil {
			tool.DefaultLogger.Debugf("[NotifyHub] Write to user %d failed: %v", userID, err)
		}
	}
}
