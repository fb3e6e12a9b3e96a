// Package websocket runs the live-reload channel: browsers connect to /ws
// and receive a JSON UpdateMessage whenever content changes.
package websocket

import (
	"context"
	"encoding/json"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/coder/websocket"

	"github.com/conneroisu/burrow/internal/logging"
)

const (
	writeWait      = 10 * time.Second
	pingPeriod     = 54 * time.Second
	readTimeout    = 60 * time.Second
	maxMessageSize = 512
	sendBuffer     = 16

	// DefaultMaxPerIP bounds concurrent connections from one address.
	DefaultMaxPerIP = 10
)

// Manager handles WebSocket connections and broadcasting. A single hub
// goroutine owns registration and fan-out.
//
// Invariants:
//   - clients is only touched with clientsMutex held
//   - a client's send channel is closed exactly once, by unregister or
//     Shutdown
type Manager struct {
	clients      map[*websocket.Conn]*Client
	perIP        map[string]int
	clientsMutex sync.RWMutex

	broadcast  chan []byte
	register   chan *Client
	unregister chan *websocket.Conn

	origins  OriginValidator
	maxPerIP int
	logger   logging.Logger

	ctx          context.Context
	cancel       context.CancelFunc
	shutdownOnce sync.Once
	done         chan struct{}
}

// Option configures a Manager.
type Option func(*Manager)

// WithMaxPerIP overrides DefaultMaxPerIP.
func WithMaxPerIP(n int) Option {
	return func(m *Manager) {
		if n > 0 {
			m.maxPerIP = n
		}
	}
}

// WithLogger sets the logger.
func WithLogger(logger logging.Logger) Option {
	return func(m *Manager) {
		if logger != nil {
			m.logger = logger
		}
	}
}

// NewManager creates a manager and starts its hub.
func NewManager(origins OriginValidator, opts ...Option) *Manager {
	if origins == nil {
		panic("websocket: origin validator is required")
	}
	ctx, cancel := context.WithCancel(context.Background())
	m := &Manager{
		clients:    make(map[*websocket.Conn]*Client),
		perIP:      make(map[string]int),
		broadcast:  make(chan []byte, 64),
		register:   make(chan *Client, 32),
		unregister: make(chan *websocket.Conn, 32),
		origins:    origins,
		maxPerIP:   DefaultMaxPerIP,
		logger:     logging.NewNop(),
		ctx:        ctx,
		cancel:     cancel,
		done:       make(chan struct{}),
	}
	for _, opt := range opts {
		opt(m)
	}
	m.logger = m.logger.WithComponent("websocket")

	go m.runHub()
	return m
}

// HandleWebSocket upgrades the request and registers the client.
func (m *Manager) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	if m.ctx.Err() != nil {
		http.Error(w, "Service Unavailable", http.StatusServiceUnavailable)
		return
	}

	origin := r.Header.Get("Origin")
	if origin != "" && !m.origins.IsAllowedOrigin(origin) {
		m.logger.Warn(r.Context(), nil, "WebSocket origin rejected", "origin", origin)
		http.Error(w, "Forbidden", http.StatusForbidden)
		return
	}

	ip := clientIP(r)
	if !m.reserve(ip) {
		http.Error(w, "Too many connections", http.StatusTooManyRequests)
		return
	}

	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		// Origins were checked above.
		InsecureSkipVerify: true,
		CompressionMode:    websocket.CompressionDisabled,
	})
	if err != nil {
		m.release(ip)
		m.logger.Warn(r.Context(), err, "WebSocket upgrade failed", "ip", ip)
		return
	}
	conn.SetReadLimit(maxMessageSize)

	client := &Client{conn: conn, send: make(chan []byte, sendBuffer), ip: ip}
	select {
	case m.register <- client:
	case <-m.ctx.Done():
		m.release(ip)
		_ = conn.Close(websocket.StatusGoingAway, "server shutting down")
		return
	}

	go m.writeToClient(client)
	m.readFromClient(client)
}

func (m *Manager) reserve(ip string) bool {
	m.clientsMutex.Lock()
	defer m.clientsMutex.Unlock()
	if m.perIP[ip] >= m.maxPerIP {
		return false
	}
	m.perIP[ip]++
	return true
}

func (m *Manager) release(ip string) {
	m.clientsMutex.Lock()
	defer m.clientsMutex.Unlock()
	if m.perIP[ip] <= 1 {
		delete(m.perIP, ip)
		return
	}
	m.perIP[ip]--
}

func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

func (m *Manager) runHub() {
	defer close(m.done)
	for {
		select {
		case client := <-m.register:
			m.clientsMutex.Lock()
			m.clients[client.conn] = client
			count := len(m.clients)
			m.clientsMutex.Unlock()
			m.logger.Debug(m.ctx, "WebSocket client connected", "clients", count)

		case conn := <-m.unregister:
			m.unregisterClient(conn)

		case message := <-m.broadcast:
			m.broadcastToClients(message)

		case <-m.ctx.Done():
			return
		}
	}
}

func (m *Manager) unregisterClient(conn *websocket.Conn) {
	m.clientsMutex.Lock()
	client, ok := m.clients[conn]
	if ok {
		delete(m.clients, conn)
		close(client.send)
	}
	count := len(m.clients)
	m.clientsMutex.Unlock()

	if ok {
		m.release(client.ip)
		m.logger.Debug(m.ctx, "WebSocket client disconnected", "clients", count)
	}
}

func (m *Manager) broadcastToClients(message []byte) {
	m.clientsMutex.RLock()
	defer m.clientsMutex.RUnlock()

	for _, client := range m.clients {
		select {
		case client.send <- message:
		default:
			// Slow consumer; closing the connection makes its reader
			// unregister it.
			go client.conn.Close(websocket.StatusPolicyViolation, "too slow")
		}
	}
}

func (m *Manager) readFromClient(client *Client) {
	defer func() {
		select {
		case m.unregister <- client.conn:
		case <-m.ctx.Done():
		}
	}()

	for {
		ctx, cancel := context.WithTimeout(m.ctx, readTimeout)
		_, _, err := client.conn.Read(ctx)
		cancel()
		if err != nil {
			if websocket.CloseStatus(err) != websocket.StatusNormalClosure && m.ctx.Err() == nil {
				m.logger.Debug(m.ctx, "WebSocket read ended", "error", err.Error())
			}
			return
		}
	}
}

func (m *Manager) writeToClient(client *Client) {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()
	defer client.conn.Close(websocket.StatusNormalClosure, "")

	for {
		select {
		case message, ok := <-client.send:
			if !ok {
				return
			}
			ctx, cancel := context.WithTimeout(m.ctx, writeWait)
			err := client.conn.Write(ctx, websocket.MessageText, message)
			cancel()
			if err != nil {
				return
			}

		case <-ticker.C:
			ctx, cancel := context.WithTimeout(m.ctx, writeWait)
			err := client.conn.Ping(ctx)
			cancel()
			if err != nil {
				return
			}

		case <-m.ctx.Done():
			return
		}
	}
}

// Broadcast queues message for every connected client. It never blocks;
// when the queue is full the message is dropped.
func (m *Manager) Broadcast(message UpdateMessage) {
	if message.Timestamp.IsZero() {
		message.Timestamp = time.Now()
	}
	data, err := json.Marshal(message)
	if err != nil {
		m.logger.Error(m.ctx, err, "Failed to marshal broadcast message")
		return
	}

	select {
	case m.broadcast <- data:
	case <-m.ctx.Done():
	default:
		m.logger.Warn(m.ctx, nil, "Broadcast queue full, dropping message", "type", message.Type)
	}
}

// Reload asks every client to reload, naming what changed.
func (m *Manager) Reload(target string) {
	m.Broadcast(UpdateMessage{Type: TypeReload, Target: target})
}

// ConnectedClients returns the number of connected clients.
func (m *Manager) ConnectedClients() int {
	m.clientsMutex.RLock()
	defer m.clientsMutex.RUnlock()
	return len(m.clients)
}

// Shutdown closes every connection and stops the hub.
func (m *Manager) Shutdown(ctx context.Context) error {
	m.shutdownOnce.Do(func() {
		m.cancel()

		m.clientsMutex.Lock()
		for conn, client := range m.clients {
			close(client.send)
			_ = conn.Close(websocket.StatusGoingAway, "server shutdown")
		}
		m.clients = make(map[*websocket.Conn]*Client)
		m.perIP = make(map[string]int)
		m.clientsMutex.Unlock()
	})

	select {
	case <-m.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
