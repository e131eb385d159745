package websocket

import (
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"hydrogen-ledger/credit-portal/credit-portal-backend/internal/notifications"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = 54 * time.Second
	maxMessageSize = 512
	sendBuffer     = 64
)

// Connection is one dashboard client. The event feed is one-way; reads
// only service the pong handler and detect closure.
type Connection struct {
	ID     string
	UserID string
	conn   *websocket.Conn
	send   chan notifications.Event
}

// Hub owns the connection set. All membership changes go through its
// channels so no lock is shared with the pumps.
type Hub struct {
	connections map[*Connection]bool
	broadcast   chan notifications.Event
	register    chan *Connection
	unregister  chan *Connection
	stop        chan struct{}
	logger      *zap.Logger

	mu    sync.RWMutex
	count int
}

// Manager upgrades HTTP requests into event feed connections
type Manager struct {
	hub      *Hub
	upgrader websocket.Upgrader
	logger   *zap.Logger
}

// NewManager creates the manager and starts its hub
func NewManager(logger *zap.Logger) *Manager {
	hub := &Hub{
		connections: make(map[*Connection]bool),
		broadcast:   make(chan notifications.Event, 256),
		register:    make(chan *Connection),
		unregister:  make(chan *Connection),
		stop:        make(chan struct{}),
		logger:      logger,
	}
	go hub.run()

	return &Manager{
		hub:    hub,
		logger: logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				// The dashboard is served from the same origin; anything else
				// is rejected by the reverse proxy before reaching here.
				return true
			},
		},
	}
}

// HandleConnection upgrades the request and starts the pumps
func (m *Manager) HandleConnection(w http.ResponseWriter, r *http.Request, userID string) (*Connection, error) {
	conn, err := m.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to upgrade connection: %w", err)
	}

	connection := &Connection{
		ID:     uuid.New().String(),
		UserID: userID,
		conn:   conn,
		send:   make(chan notifications.Event, sendBuffer),
	}

	m.hub.register <- connection
	go m.readPump(connection)
	go m.writePump(connection)

	return connection, nil
}

func (m *Manager) readPump(conn *Connection) {
	defer func() {
		m.hub.unregister <- conn
		conn.conn.Close()
	}()

	conn.conn.SetReadLimit(maxMessageSize)
	conn.conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.conn.SetPongHandler(func(string) error {
		conn.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		if _, _, err := conn.conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				m.logger.Debug("Websocket read failed", zap.Error(err))
			}
			return
		}
	}
}

func (m *Manager) writePump(conn *Connection) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		conn.conn.Close()
	}()

	for {
		select {
		case event, ok := <-conn.send:
			conn.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				conn.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := conn.conn.WriteJSON(event); err != nil {
				return
			}

		case <-ticker.C:
			conn.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (h *Hub) run() {
	for {
		select {
		case conn := <-h.register:
			h.connections[conn] = true
			h.setCount(len(h.connections))
			h.logger.Debug("Event feed client connected",
				zap.String("connection_id", conn.ID),
				zap.String("user_id", conn.UserID))

		case conn := <-h.unregister:
			if _, ok := h.connections[conn]; ok {
				delete(h.connections, conn)
				close(conn.send)
				h.setCount(len(h.connections))
			}

		case event := <-h.broadcast:
			for conn := range h.connections {
				select {
				case conn.send <- event:
				default:
					// Slow consumer; drop it rather than block the feed.
					delete(h.connections, conn)
					close(conn.send)
					h.setCount(len(h.connections))
				}
			}

		case <-h.stop:
			for conn := range h.connections {
				delete(h.connections, conn)
				close(conn.send)
			}
			h.setCount(0)
			return
		}
	}
}

func (h *Hub) setCount(n int) {
	h.mu.Lock()
	h.count = n
	h.mu.Unlock()
}

// Broadcast queues an event for every connected client
func (m *Manager) Broadcast(event notifications.Event) error {
	select {
	case m.hub.broadcast <- event:
		return nil
	default:
		return fmt.Errorf("broadcast channel full")
	}
}

// ConnectionCount returns the number of connected clients
func (m *Manager) ConnectionCount() int {
	m.hub.mu.RLock()
	defer m.hub.mu.RUnlock()
	return m.hub.count
}

// Close stops the hub and disconnects every client
func (m *Manager) Close() {
	close(m.hub.stop)
}
