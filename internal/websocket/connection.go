package websocket

import (
	"context"
	"encoding/json"
	"log"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"dbchat-backend/internal/messages"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = 54 * time.Second
)

// Connection represents a WebSocket connection watching one session
type Connection struct {
	// WebSocket connection
	ws *websocket.Conn

	// Buffered channel of outbound messages
	send chan []byte

	ID        string
	SessionID string

	hub     *Hub
	handler *Handler

	// ctx is cancelled when the client goes away, aborting running questions
	ctx    context.Context
	cancel context.CancelFunc

	// Track if send channel is closed to prevent double-close
	closed int32 // 0 = open, 1 = closed
}

// NewConnection creates a new connection instance
func NewConnection(ws *websocket.Conn, sessionID string, hub *Hub, handler *Handler) *Connection {
	ctx, cancel := context.WithCancel(context.Background())
	return &Connection{
		ws:        ws,
		send:      make(chan []byte, 256),
		ID:        uuid.New().String(),
		SessionID: sessionID,
		hub:       hub,
		handler:   handler,
		ctx:       ctx,
		cancel:    cancel,
	}
}

// ReadPump pumps messages from the WebSocket connection to the handler
func (c *Connection) ReadPump() {
	defer func() {
		c.cancel()
		c.hub.Unregister(c)
		c.ws.Close()
	}()

	c.ws.SetReadDeadline(time.Now().Add(pongWait))
	c.ws.SetPongHandler(func(string) error {
		c.ws.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, messageData, err := c.ws.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				log.Printf("WebSocket error: %v", err)
			}
			break
		}

		var message messages.IncomingMessage
		if err := json.Unmarshal(messageData, &message); err != nil {
			c.hub.SendToConnection(c, messages.New(messages.TypeError, messages.ErrorData{
				Error: "invalid message: " + err.Error(),
				Code:  messages.CodeInvalidRequest,
			}))
			continue
		}

		switch message.Type {
		case messages.TypeAsk:
			go c.handler.handleAsk(c, message)
		case messages.TypePing:
			c.handlePing(message)
		default:
			c.hub.SendToConnection(c, messages.Reply(message.ID, messages.TypeError, messages.ErrorData{
				Error: "unknown message type: " + message.Type,
				Code:  messages.CodeUnknownType,
			}))
		}

		c.ws.SetReadDeadline(time.Now().Add(pongWait))
	}
}

// WritePump pumps messages from the hub to the WebSocket connection
func (c *Connection) WritePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.ws.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			c.ws.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				// Hub closed the channel
				c.ws.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}

			w, err := c.ws.NextWriter(websocket.TextMessage)
			if err != nil {
				return
			}
			w.Write(message)
			if err := w.Close(); err != nil {
				return
			}

		case <-ticker.C:
			c.ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.ws.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// handlePing processes ping messages
func (c *Connection) handlePing(message messages.IncomingMessage) {
	c.hub.SendToConnection(c, messages.Reply(message.ID, messages.TypePong, messages.PongData{
		Timestamp: time.Now().UnixMilli(),
	}))
}

// closeSendChannel safely closes the send channel if not already closed
func (c *Connection) closeSendChannel() {
	if atomic.CompareAndSwapInt32(&c.closed, 0, 1) {
		close(c.send)
	}
}

func (c *Connection) isClosed() bool {
	return atomic.LoadInt32(&c.closed) == 1
}
