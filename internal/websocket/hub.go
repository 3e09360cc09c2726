package websocket

import (
	"context"
	"encoding/json"
	"log"
	"sync"
)

// Hub maintains the set of active connections and broadcasts messages to them
type Hub struct {
	// Registered connections
	connections map[*Connection]bool

	// Session rooms, one per chat session
	sessions map[string]map[*Connection]bool

	// Register requests from the connections
	register chan *Connection

	// Unregister requests from connections
	unregister chan *Connection

	// Closed when Run returns
	done chan struct{}

	mutex sync.RWMutex
}

// NewHub creates a new hub instance
func NewHub() *Hub {
	return &Hub{
		connections: make(map[*Connection]bool),
		sessions:    make(map[string]map[*Connection]bool),
		register:    make(chan *Connection),
		unregister:  make(chan *Connection),
		done:        make(chan struct{}),
	}
}

// Run processes registrations until ctx is done, then closes every connection
func (h *Hub) Run(ctx context.Context) {
	defer close(h.done)
	for {
		select {
		case <-ctx.Done():
			h.mutex.Lock()
			for conn := range h.connections {
				conn.closeSendChannel()
			}
			h.connections = make(map[*Connection]bool)
			h.sessions = make(map[string]map[*Connection]bool)
			h.mutex.Unlock()
			return

		case conn := <-h.register:
			h.mutex.Lock()
			h.connections[conn] = true
			if h.sessions[conn.SessionID] == nil {
				h.sessions[conn.SessionID] = make(map[*Connection]bool)
			}
			h.sessions[conn.SessionID][conn] = true
			h.mutex.Unlock()
			log.Printf("🔌 Connection %s joined session %s", conn.ID, conn.SessionID)

		case conn := <-h.unregister:
			h.mutex.Lock()
			h.remove(conn)
			h.mutex.Unlock()
		}
	}
}

// Register adds conn to its session room. It returns false once the hub has
// stopped.
func (h *Hub) Register(conn *Connection) bool {
	select {
	case h.register <- conn:
		return true
	case <-h.done:
		return false
	}
}

// Unregister removes conn from the hub
func (h *Hub) Unregister(conn *Connection) {
	select {
	case h.unregister <- conn:
	case <-h.done:
	}
}

// remove drops conn from the hub. Callers hold the write lock.
func (h *Hub) remove(conn *Connection) {
	if _, ok := h.connections[conn]; !ok {
		return
	}
	delete(h.connections, conn)
	if conns, ok := h.sessions[conn.SessionID]; ok {
		delete(conns, conn)
		if len(conns) == 0 {
			delete(h.sessions, conn.SessionID)
		}
	}
	conn.closeSendChannel()
	log.Printf("🔌 Connection %s left session %s", conn.ID, conn.SessionID)
}

// BroadcastToSession sends a message to all connections in a session room
func (h *Hub) BroadcastToSession(sessionID string, message interface{}) {
	data, err := json.Marshal(message)
	if err != nil {
		log.Printf("Error marshaling message: %v", err)
		return
	}

	h.mutex.Lock()
	defer h.mutex.Unlock()
	for conn := range h.sessions[sessionID] {
		select {
		case conn.send <- data:
		default:
			// Connection send buffer is full
			h.remove(conn)
		}
	}
}

// SendToConnection sends a message to a specific connection
func (h *Hub) SendToConnection(conn *Connection, message interface{}) {
	data, err := json.Marshal(message)
	if err != nil {
		log.Printf("Error marshaling message: %v", err)
		return
	}

	h.mutex.Lock()
	defer h.mutex.Unlock()
	if conn.isClosed() {
		return
	}
	select {
	case conn.send <- data:
	default:
		log.Printf("Connection %s removed due to full send buffer", conn.ID)
		h.remove(conn)
	}
}

// CloseSession disconnects every connection watching a session
func (h *Hub) CloseSession(sessionID string) {
	h.mutex.Lock()
	defer h.mutex.Unlock()
	for conn := range h.sessions[sessionID] {
		h.remove(conn)
	}
}

// GetSessionConnectionCount returns the number of connections in a session room
func (h *Hub) GetSessionConnectionCount(sessionID string) int {
	h.mutex.RLock()
	defer h.mutex.RUnlock()
	return len(h.sessions[sessionID])
}

// GetConnectionCount returns the total number of active connections
func (h *Hub) GetConnectionCount() int {
	h.mutex.RLock()
	defer h.mutex.RUnlock()
	return len(h.connections)
}
