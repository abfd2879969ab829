// Package hub fans session events out to live feed WebSocket subscribers.
package hub

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/xiaot623/gogo/sessionrelay/internal/domain"
	"github.com/xiaot623/gogo/sessionrelay/internal/metrics"
)

// Options tunes connection handling.
type Options struct {
	PingInterval time.Duration
	WriteTimeout time.Duration
	// SendBuffer is the per-connection queue length; a subscriber that
	// falls this far behind is dropped.
	SendBuffer int
}

// Connection represents a single WebSocket subscriber.
type Connection struct {
	ID        string
	SessionID string
	Conn      *websocket.Conn
	Send      chan []byte
	mu        sync.Mutex
}

// Hub manages all live feed connections.
type Hub struct {
	opts    Options
	metrics *metrics.Metrics
	logger  zerolog.Logger

	// Connections indexed by connection ID
	connections map[string]*Connection

	// Sessions maps session_id to set of connection IDs
	sessions map[string]map[string]bool

	register   chan *Connection
	unregister chan *Connection
	broadcast  chan *sessionFrame
	done       chan struct{}

	mu sync.RWMutex
}

type sessionFrame struct {
	SessionID string
	Data      []byte
}

// New creates a new Hub. m may be nil.
func New(opts Options, m *metrics.Metrics, logger zerolog.Logger) *Hub {
	if opts.PingInterval <= 0 {
		opts.PingInterval = 30 * time.Second
	}
	if opts.WriteTimeout <= 0 {
		opts.WriteTimeout = 10 * time.Second
	}
	if opts.SendBuffer <= 0 {
		opts.SendBuffer = 256
	}
	return &Hub{
		opts:        opts,
		metrics:     m,
		logger:      logger.With().Str("component", "hub").Logger(),
		connections: make(map[string]*Connection),
		sessions:    make(map[string]map[string]bool),
		register:    make(chan *Connection),
		unregister:  make(chan *Connection),
		broadcast:   make(chan *sessionFrame, 256),
		done:        make(chan struct{}),
	}
}

// Run starts the hub's main loop and blocks until ctx is done. Remaining
// connections are closed on exit.
func (h *Hub) Run(ctx context.Context) {
	defer close(h.done)
	for {
		select {
		case <-ctx.Done():
			h.mu.Lock()
			for _, conn := range h.connections {
				h.remove(conn)
			}
			h.mu.Unlock()
			return

		case conn := <-h.register:
			h.mu.Lock()
			h.connections[conn.ID] = conn
			if h.sessions[conn.SessionID] == nil {
				h.sessions[conn.SessionID] = make(map[string]bool)
			}
			h.sessions[conn.SessionID][conn.ID] = true
			h.mu.Unlock()
			h.metrics.StreamOpened()
			h.logger.Debug().Str("conn_id", conn.ID).Str("session_id", conn.SessionID).Msg("Connection registered")

		case conn := <-h.unregister:
			h.mu.Lock()
			h.remove(conn)
			h.mu.Unlock()

		case frame := <-h.broadcast:
			h.mu.Lock()
			for connID := range h.sessions[frame.SessionID] {
				conn, exists := h.connections[connID]
				if !exists {
					continue
				}
				select {
				case conn.Send <- frame.Data:
				default:
					h.logger.Warn().Str("conn_id", connID).Msg("Connection buffer full, closing")
					h.remove(conn)
				}
			}
			h.mu.Unlock()
		}
	}
}

// remove drops conn from the indexes and closes its send queue. Callers
// hold h.mu.
func (h *Hub) remove(conn *Connection) {
	if _, ok := h.connections[conn.ID]; !ok {
		return
	}
	delete(h.connections, conn.ID)
	if h.sessions[conn.SessionID] != nil {
		delete(h.sessions[conn.SessionID], conn.ID)
		if len(h.sessions[conn.SessionID]) == 0 {
			delete(h.sessions, conn.SessionID)
		}
	}
	close(conn.Send)
	h.metrics.StreamClosed()
	h.logger.Debug().Str("conn_id", conn.ID).Msg("Connection unregistered")
}

// NewConnection wraps ws as a subscriber of sessionID.
func (h *Hub) NewConnection(ws *websocket.Conn, sessionID string) *Connection {
	return &Connection{
		ID:        uuid.New().String(),
		SessionID: sessionID,
		Conn:      ws,
		Send:      make(chan []byte, h.opts.SendBuffer),
	}
}

// Register registers a connection with the hub. It returns false once the
// hub has stopped.
func (h *Hub) Register(conn *Connection) bool {
	select {
	case h.register <- conn:
		return true
	case <-h.done:
		return false
	}
}

// Unregister unregisters a connection from the hub.
func (h *Hub) Unregister(conn *Connection) {
	select {
	case h.unregister <- conn:
	case <-h.done:
	}
}

// Publish queues event for every subscriber of its session. It never
// blocks; events are dropped when the hub is saturated or stopped.
func (h *Hub) Publish(event domain.StreamEvent) {
	data, err := json.Marshal(event)
	if err != nil {
		h.logger.Error().Err(err).Msg("Failed to encode stream event")
		return
	}
	select {
	case <-h.done:
		return
	default:
	}
	select {
	case h.broadcast <- &sessionFrame{SessionID: event.SessionID, Data: data}:
	default:
		h.logger.Warn().Str("session_id", event.SessionID).Str("type", string(event.Type)).Msg("Broadcast queue full, dropping event")
	}
}

// GetConnectionCount returns the number of active connections.
func (h *Hub) GetConnectionCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.connections)
}

// HasActiveConnections checks if a session has any active connections.
func (h *Hub) HasActiveConnections(sessionID string) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.sessions[sessionID]) > 0
}

// WriteMessage writes a message to the connection with proper locking.
func (c *Connection) WriteMessage(messageType int, data []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.Conn.WriteMessage(messageType, data)
}

// Close closes the connection.
func (c *Connection) Close() error {
	return c.Conn.Close()
}
