package api

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"tradevera/internal/auth"
	"tradevera/internal/events"
	"tradevera/internal/logging"
)

const (
	wsWriteWait  = 10 * time.Second
	wsPongWait   = 60 * time.Second
	wsPingPeriod = 30 * time.Second
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		// Origins are enforced by the CORS layer and the token check.
		return true
	},
}

// UserWSClient represents a user-specific WebSocket client
type UserWSClient struct {
	conn      *websocket.Conn
	send      chan []byte
	hub       *UserWSHub
	userID    string
	closeChan chan struct{}
}

// UserWSHub fans out bus events to the connections of the user they belong to
type UserWSHub struct {
	userClients map[string]map[*UserWSClient]bool
	userCast    chan userMessage
	register    chan *UserWSClient
	unregister  chan *UserWSClient
	done        chan struct{}
	mu          sync.RWMutex
	logger      *logging.Logger

	// onConnChange is told +1/-1 as clients come and go.
	onConnChange func(delta int)
}

type userMessage struct {
	userID string
	data   []byte
}

// NewUserWSHub creates a new user-aware WebSocket hub
func NewUserWSHub() *UserWSHub {
	return &UserWSHub{
		userClients: make(map[string]map[*UserWSClient]bool),
		userCast:    make(chan userMessage, 256),
		register:    make(chan *UserWSClient),
		unregister:  make(chan *UserWSClient),
		done:        make(chan struct{}),
		logger:      logging.WithComponent("ws"),
	}
}

// Run serves the hub until ctx is done, then closes every client.
func (h *UserWSHub) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			close(h.done)
			h.mu.Lock()
			for userID, clients := range h.userClients {
				for client := range clients {
					close(client.send)
					h.connChanged(-1)
				}
				delete(h.userClients, userID)
			}
			h.mu.Unlock()
			return

		case client := <-h.register:
			h.mu.Lock()
			if h.userClients[client.userID] == nil {
				h.userClients[client.userID] = make(map[*UserWSClient]bool)
			}
			h.userClients[client.userID][client] = true
			h.mu.Unlock()
			h.connChanged(1)

		case client := <-h.unregister:
			h.mu.Lock()
			h.removeLocked(client)
			h.mu.Unlock()

		case msg := <-h.userCast:
			h.mu.Lock()
			for client := range h.userClients[msg.userID] {
				select {
				case client.send <- msg.data:
				default:
					// Slow consumer: drop the connection rather than block the hub.
					h.removeLocked(client)
				}
			}
			h.mu.Unlock()
		}
	}
}

func (h *UserWSHub) removeLocked(client *UserWSClient) {
	clients, ok := h.userClients[client.userID]
	if !ok || !clients[client] {
		return
	}
	delete(clients, client)
	if len(clients) == 0 {
		delete(h.userClients, client.userID)
	}
	close(client.send)
	h.connChanged(-1)
}

func (h *UserWSHub) connChanged(delta int) {
	if h.onConnChange != nil {
		h.onConnChange(delta)
	}
}

// Attach forwards every user-scoped bus event to that user's connections.
func (h *UserWSHub) Attach(bus *events.EventBus) {
	if bus == nil {
		return
	}
	bus.SubscribeAll(func(e events.Event) {
		if e.UserID != "" {
			h.BroadcastToUser(e.UserID, e)
		}
	})
}

// BroadcastToUser sends an event to a specific user's connections
func (h *UserWSHub) BroadcastToUser(userID string, event events.Event) {
	data, err := json.Marshal(event)
	if err != nil {
		h.logger.WithError(err).Error("failed to marshal user event")
		return
	}

	select {
	case h.userCast <- userMessage{userID: userID, data: data}:
	default:
		h.logger.Warn("user broadcast channel full, dropping message", "user_id", userID, "type", string(event.Type))
	}
}

// GetUserClientCount returns the number of connected clients for a user
func (h *UserWSHub) GetUserClientCount(userID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.userClients[userID])
}

// GetTotalClientCount returns the total number of connected clients
func (h *UserWSHub) GetTotalClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	n := 0
	for _, clients := range h.userClients {
		n += len(clients)
	}
	return n
}

// writePump pumps messages from the hub to the websocket connection
func (c *UserWSClient) writePump() {
	ticker := time.NewTicker(wsPingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}

			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}

		case <-c.closeChan:
			return
		}
	}
}

// readPump drains the connection so pongs and close frames are processed
func (c *UserWSClient) readPump() {
	defer func() {
		select {
		case c.hub.unregister <- c:
		case <-c.hub.done:
		}
		c.conn.Close()
		close(c.closeChan)
	}()

	c.conn.SetReadLimit(4096)
	c.conn.SetReadDeadline(time.Now().Add(wsPongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(wsPongWait))
		return nil
	})

	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.hub.logger.Debug("websocket read error", "user_id", c.userID, "error", err)
			}
			return
		}
	}
}

// handleUserWebSocket upgrades an authenticated request. GET /ws/user
func (s *Server) handleUserWebSocket(c *gin.Context) {
	userID := auth.GetUserID(c)
	if userID == "" {
		errorResponse(c, http.StatusUnauthorized, "UNAUTHORIZED", "authentication required for WebSocket connection")
		return
	}
	if plan := auth.GetUserPlan(c); !s.plans.GetTierLimits(plan).RealtimeUpdates {
		c.JSON(http.StatusPaymentRequired, gin.H{
			"error":   "PLAN_UPGRADE_REQUIRED",
			"message": "realtime updates are not included in your plan",
			"plan":    plan,
		})
		return
	}

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		logging.FromContext(c.Request.Context()).WithError(err).Warn("failed to upgrade connection")
		return
	}

	client := &UserWSClient{
		conn:      conn,
		send:      make(chan []byte, 256),
		hub:       s.hub,
		userID:    userID,
		closeChan: make(chan struct{}),
	}

	// Queue the welcome frame before registering so it is delivered first.
	welcome, _ := json.Marshal(gin.H{
		"type":      "CONNECTED",
		"timestamp": time.Now().UTC(),
		"data":      gin.H{"user_id": userID},
	})
	client.send <- welcome

	select {
	case client.hub.register <- client:
	case <-client.hub.done:
		conn.Close()
		return
	}

	go client.writePump()
	go client.readPump()
}
