// Package websocket pushes live view state changes to connected browsers.
package websocket

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

const (
	writeWait    = 10 * time.Second
	pongWait     = 60 * time.Second
	pingInterval = 30 * time.Second
	readLimit    = 512
)

// Identity is who a connection belongs to.
type Identity struct {
	UserID    string
	SessionID string
}

// Authenticator maps the token a browser connects with to its identity.
type Authenticator func(r *http.Request, token string) (Identity, error)

// Message is the envelope of everything sent over the socket.
type Message struct {
	Type    string `json:"type"`
	Payload any    `json:"payload"`
}

type outbound struct {
	userID    string // "" for everyone
	sessionID string // set to reach one session's connections
	client *Client // set for a reply to one connection
	data   []byte
}

type Manager struct {
	clients    map[*Client]bool
	outbound   chan outbound
	register   chan *Client
	unregister chan *Client
	done       chan struct{}
	mu         sync.RWMutex
	logger     *zap.Logger
}

type Client struct {
	conn      *websocket.Conn
	userID    string
	sessionID string
	send    chan []byte
	manager *Manager
}

func NewManager(logger *zap.Logger) *Manager {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Manager{
		clients:    make(map[*Client]bool),
		outbound:   make(chan outbound, 64),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		done:       make(chan struct{}),
		logger:     logger,
	}
}

// Start runs the hub until ctx is cancelled, then closes every connection.
func (m *Manager) Start(ctx context.Context) {
	defer close(m.done)
	for {
		select {
		case <-ctx.Done():
			m.mu.Lock()
			for client := range m.clients {
				delete(m.clients, client)
				close(client.send)
			}
			m.mu.Unlock()
			m.logger.Info("websocket hub stopped")
			return

		case client := <-m.register:
			m.mu.Lock()
			m.clients[client] = true
			total := len(m.clients)
			m.mu.Unlock()
			m.logger.Debug("websocket client registered", zap.String("user", client.userID), zap.Int("clients", total))

		case client := <-m.unregister:
			m.mu.Lock()
			if _, ok := m.clients[client]; ok {
				delete(m.clients, client)
				close(client.send)
			}
			total := len(m.clients)
			m.mu.Unlock()
			m.logger.Debug("websocket client unregistered", zap.String("user", client.userID), zap.Int("clients", total))

		case out := <-m.outbound:
			m.deliver(out)
		}
	}
}

// Done is closed once Start has returned.
func (m *Manager) Done() <-chan struct{} { return m.done }

func (m *Manager) deliver(out outbound) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for client := range m.clients {
		if out.client != nil && client != out.client {
			continue
		}
		if out.userID != "" && client.userID != out.userID {
			continue
		}
		if out.sessionID != "" && client.sessionID != out.sessionID {
			continue
		}
		select {
		case client.send <- out.data:
		default:
			close(client.send)
			delete(m.clients, client)
		}
	}
}

func (m *Manager) enqueue(out outbound) {
	select {
	case m.outbound <- out:
	case <-m.done:
	}
}

func encode(msgType string, payload any) ([]byte, error) {
	return json.Marshal(Message{Type: msgType, Payload: payload})
}

// Broadcast sends a message to every connection.
func (m *Manager) Broadcast(msgType string, payload any) {
	data, err := encode(msgType, payload)
	if err != nil {
		m.logger.Error("failed to marshal websocket message", zap.String("type", msgType), zap.Error(err))
		return
	}
	m.enqueue(outbound{data: data})
}

// SendToUser sends a message to every connection of userID.
func (m *Manager) SendToUser(userID, msgType string, payload any) {
	data, err := encode(msgType, payload)
	if err != nil {
		m.logger.Error("failed to marshal websocket message", zap.String("type", msgType), zap.Error(err))
		return
	}
	m.enqueue(outbound{userID: userID, data: data})
}

// SendToSession sends a message to the connections opened with sessionID.
func (m *Manager) SendToSession(sessionID, msgType string, payload any) {
	data, err := encode(msgType, payload)
	if err != nil {
		m.logger.Error("failed to marshal websocket message", zap.String("type", msgType), zap.Error(err))
		return
	}
	m.enqueue(outbound{sessionID: sessionID, data: data})
}

func (m *Manager) ConnectedClients() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.clients)
}

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
}

// Handler upgrades authenticated requests, taking the token from ?token=.
func Handler(m *Manager, auth Authenticator) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		token := r.URL.Query().Get("token")
		if token == "" {
			http.Error(w, "Token required", http.StatusUnauthorized)
			return
		}
		id, err := auth(r, token)
		if err != nil {
			m.logger.Debug("websocket connection rejected", zap.Error(err))
			http.Error(w, "Invalid token", http.StatusUnauthorized)
			return
		}

		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			m.logger.Warn("websocket upgrade failed", zap.Error(err))
			return
		}

		client := &Client{
			conn:      conn,
			userID:    id.UserID,
			sessionID: id.SessionID,
			send:      make(chan []byte, 256),
			manager:   m,
		}
		welcome, _ := encode("connected", map[string]any{
			"userId": id.UserID,
			"time":   time.Now().Unix(),
		})
		client.send <- welcome

		select {
		case m.register <- client:
		case <-m.done:
			conn.Close()
			return
		}

		go client.writePump()
		go client.readPump()
	}
}

func (c *Client) readPump() {
	defer func() {
		select {
		case c.manager.unregister <- c:
		case <-c.manager.done:
		}
		c.conn.Close()
	}()

	c.conn.SetReadLimit(readLimit)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, raw, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseAbnormalClosure) {
				c.manager.logger.Debug("websocket read error", zap.String("user", c.userID), zap.Error(err))
			}
			return
		}

		var msg struct {
			Type    string `json:"type"`
			Channel string `json:"channel"`
		}
		if err := json.Unmarshal(raw, &msg); err != nil {
			continue
		}
		switch msg.Type {
		case "ping":
			c.reply("pong", map[string]any{"time": time.Now().Unix()})
		case "subscribe":
			if msg.Channel != "" {
				c.reply("subscribed", map[string]any{"channel": msg.Channel, "userId": c.userID})
			}
		}
	}
}

func (c *Client) reply(msgType string, payload any) {
	data, err := encode(msgType, payload)
	if err != nil {
		return
	}
	c.manager.enqueue(outbound{client: c, data: data})
}

func (c *Client) writePump() {
	ticker := time.NewTicker(pingInterval)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
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
