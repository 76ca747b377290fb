package events

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 512
)

func ProjectRoom(projectID string) string { return "project:" + projectID }
func UserRoom(userID string) string       { return "user:" + userID }

type wsClient struct {
	conn *websocket.Conn
	mu   sync.Mutex
}

// writeJSON serializes writes; gorilla connections allow one concurrent writer.
func (c *wsClient) writeJSON(v any) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
		return err
	}
	return c.conn.WriteJSON(v)
}

func (c *wsClient) ping() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
		return err
	}
	return c.conn.WriteMessage(websocket.PingMessage, nil)
}

// Hub keeps WebSocket connections grouped by room and broadcasts messages to them.
type Hub struct {
	mu       sync.RWMutex
	rooms    map[string]map[*wsClient]struct{}
	upgrader websocket.Upgrader
	logger   *zap.Logger
}

func NewHub(allowedOrigins []string, logger *zap.Logger) *Hub {
	if logger == nil {
		logger = zap.NewNop()
	}
	h := &Hub{
		rooms:  make(map[string]map[*wsClient]struct{}),
		logger: logger,
	}
	h.upgrader = websocket.Upgrader{
		CheckOrigin: func(r *http.Request) bool {
			origin := r.Header.Get("Origin")
			if origin == "" {
				return true
			}
			for _, allowed := range allowedOrigins {
				if allowed == "*" || origin == allowed {
					return true
				}
			}
			return false
		},
	}
	return h
}

func (h *Hub) Name() string { return "websocket" }

// Publish broadcasts to the project room and to each targeted user's room.
func (h *Hub) Publish(_ context.Context, msg Message) error {
	if msg.ProjectID != "" {
		h.Broadcast(ProjectRoom(msg.ProjectID), msg)
	}
	for _, userID := range msg.UserIDs {
		h.Broadcast(UserRoom(userID), msg)
	}
	return nil
}

func (h *Hub) Broadcast(room string, msg Message) {
	h.mu.RLock()
	clients := make([]*wsClient, 0, len(h.rooms[room]))
	for c := range h.rooms[room] {
		clients = append(clients, c)
	}
	h.mu.RUnlock()

	for _, c := range clients {
		if err := c.writeJSON(msg); err != nil {
			h.logger.Debug("websocket broadcast failed", zap.String("room", room), zap.Error(err))
			h.drop(c)
			c.conn.Close()
		}
	}
}

// Clients returns the number of connections in room.
func (h *Hub) Clients(room string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.rooms[room])
}

func (h *Hub) join(c *wsClient, rooms []string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for _, room := range rooms {
		if h.rooms[room] == nil {
			h.rooms[room] = make(map[*wsClient]struct{})
		}
		h.rooms[room][c] = struct{}{}
	}
}

func (h *Hub) drop(c *wsClient) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for room, clients := range h.rooms {
		delete(clients, c)
		if len(clients) == 0 {
			delete(h.rooms, room)
		}
	}
}

// Serve upgrades the request and keeps the connection in rooms until the
// client disconnects. Callers authorize the request before calling Serve.
func (h *Hub) Serve(w http.ResponseWriter, r *http.Request, rooms ...string) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("websocket upgrade failed", zap.Error(err))
		return
	}
	c := &wsClient{conn: conn}
	conn.SetReadLimit(maxMessageSize)
	_ = conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	h.join(c, rooms)
	defer func() {
		h.drop(c)
		conn.Close()
	}()

	if err := c.writeJSON(map[string]any{"type": "connected", "rooms": rooms}); err != nil {
		return
	}

	done := make(chan struct{})
	defer close(done)
	go func() {
		ticker := time.NewTicker(pingPeriod)
		defer ticker.Stop()
		for {
			select {
			case <-done:
				return
			case <-ticker.C:
				if err := c.ping(); err != nil {
					return
				}
			}
		}
	}()

	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				h.logger.Debug("websocket closed", zap.Error(err))
			}
			return
		}
	}
}
