// Package notify pushes notifications to connected clients. Hub serves
// websocket connections on one instance; RedisNotifier and Relay fan
// notifications out across instances through Redis pub/sub.
package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/dmitrijs2005/pointshare/internal/common"
	"github.com/dmitrijs2005/pointshare/internal/logging"
	"github.com/dmitrijs2005/pointshare/internal/server/auth"
	"github.com/dmitrijs2005/pointshare/internal/server/metrics"
	"github.com/gorilla/websocket"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = pongWait * 9 / 10
	sendBuffer = 16
)

// Message is the frame written to a websocket client.
type Message struct {
	Channel string          `json:"channel"`
	Payload json.RawMessage `json:"payload"`
}

type client struct {
	userName string
	conn     *websocket.Conn
	send     chan []byte
}

// Hub tracks websocket connections per username.
type Hub struct {
	mu      sync.RWMutex
	clients map[string]map[*client]struct{}

	upgrader     websocket.Upgrader
	authenticate func(token string) (string, error)
	metrics      *metrics.Metrics
	log          logging.Logger
}

// NewHub authenticates connections with access tokens signed by secretKey.
func NewHub(secretKey []byte, mt *metrics.Metrics, log logging.Logger) *Hub {
	return &Hub{
		clients: make(map[string]map[*client]struct{}),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(*http.Request) bool { return true },
		},
		authenticate: func(token string) (string, error) {
			claims, err := auth.ParseToken(token, secretKey)
			if err != nil {
				return "", err
			}
			return claims.Subject, nil
		},
		metrics: mt,
		log:     log.With("module", "notify"),
	}
}

// ServeWS upgrades GET /ws?access_token=... and keeps the connection
// registered until the client goes away.
func (h *Hub) ServeWS(w http.ResponseWriter, r *http.Request) {
	userName, err := h.authenticate(r.URL.Query().Get(common.AccessTokenHeaderName))
	if err != nil {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Warn(r.Context(), "websocket upgrade failed", "user", userName, "error", err)
		return
	}

	c := &client{userName: userName, conn: conn, send: make(chan []byte, sendBuffer)}
	h.register(c)

	go h.writePump(c)
	h.readPump(c)
}

func (h *Hub) register(c *client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	set, ok := h.clients[c.userName]
	if !ok {
		set = make(map[*client]struct{})
		h.clients[c.userName] = set
	}
	set[c] = struct{}{}
	h.metrics.WebsocketOpened()
}

func (h *Hub) unregister(c *client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	set, ok := h.clients[c.userName]
	if !ok {
		return
	}
	if _, ok := set[c]; !ok {
		return
	}
	delete(set, c)
	if len(set) == 0 {
		delete(h.clients, c.userName)
	}
	close(c.send)
	h.metrics.WebsocketClosed()
}

// readPump discards inbound frames and returns once the peer disconnects.
func (h *Hub) readPump(c *client) {
	defer func() {
		h.unregister(c)
		c.conn.Close()
	}()

	c.conn.SetReadLimit(512)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			return
		}
	}
}

func (h *Hub) writePump(c *client) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case msg, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// Notify delivers payload to every live connection of userName. Slow clients
// whose buffer is full miss the message.
func (h *Hub) Notify(ctx context.Context, userName, channel string, payload any) error {
	frame, err := encode(channel, payload)
	if err != nil {
		return err
	}
	h.deliver(ctx, userName, frame)
	return nil
}

func (h *Hub) deliver(ctx context.Context, userName string, frame []byte) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for c := range h.clients[userName] {
		select {
		case c.send <- frame:
		default:
			h.metrics.SideEffectDropped("push")
			h.log.Warn(ctx, "websocket buffer full, message dropped", "user", userName)
		}
	}
}

// Connections returns the number of live connections of userName.
func (h *Hub) Connections(userName string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients[userName])
}

func encode(channel string, payload any) ([]byte, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("encoding notification: %w", err)
	}
	return json.Marshal(Message{Channel: channel, Payload: raw})
}
