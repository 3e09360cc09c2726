package websocket

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"dbchat-backend/internal/agent"
	"dbchat-backend/internal/chat"
	"dbchat-backend/internal/messages"
	"dbchat-backend/internal/session"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:    1024,
	WriteBufferSize:   1024,
	EnableCompression: true,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// Handler manages WebSocket connections
type Handler struct {
	hub  *Hub
	chat *chat.Service
}

// NewHandler creates a new WebSocket handler
func NewHandler(hub *Hub, chatService *chat.Service) *Handler {
	return &Handler{hub: hub, chat: chatService}
}

// HandleWebSocket upgrades GET /ws/sessions/:id and joins the session room
func (h *Handler) HandleWebSocket(c *gin.Context) {
	sessionID := c.Param("id")
	if _, err := h.chat.Sessions().Get(sessionID); err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
		return
	}

	ws, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Printf("WebSocket upgrade failed: %v", err)
		return
	}

	conn := NewConnection(ws, sessionID, h.hub, h)
	if !h.hub.Register(conn) {
		ws.Close()
		return
	}

	go conn.WritePump()
	go conn.ReadPump()

	h.hub.SendToConnection(conn, messages.New(messages.TypeSessionJoined, messages.SessionJoinedData{SessionID: sessionID}))
}

// handleAsk runs one question. Agent steps and the final answer go to every
// connection in the session room; errors go only to the asking connection.
func (h *Handler) handleAsk(conn *Connection, message messages.IncomingMessage) {
	var req chat.Request
	if err := json.Unmarshal(message.Data, &req); err != nil {
		h.sendError(conn, message.ID, messages.CodeInvalidRequest, err)
		return
	}

	sess, err := h.chat.Sessions().Get(conn.SessionID)
	if err != nil {
		h.sendError(conn, message.ID, messages.CodeSessionNotFound, err)
		return
	}

	resp, err := h.chat.Ask(conn.ctx, sess, req, func(step agent.Step) {
		h.hub.BroadcastToSession(conn.SessionID, messages.Reply(message.ID, messages.TypeAgentStep, step))
	})
	if err != nil {
		code := messages.CodeInvalidRequest
		switch {
		case errors.Is(err, chat.ErrAgentFailed):
			code = messages.CodeAgentFailed
		case errors.Is(err, session.ErrSessionNotFound):
			code = messages.CodeSessionNotFound
		}
		h.sendError(conn, message.ID, code, err)
		return
	}

	h.hub.BroadcastToSession(conn.SessionID, messages.Reply(message.ID, messages.TypeAssistantResponse, resp))
}

func (h *Handler) sendError(conn *Connection, id, code string, err error) {
	log.Printf("❌ WebSocket ask failed on %s: %v", conn.ID, err)
	h.hub.SendToConnection(conn, messages.Reply(id, messages.TypeError, messages.ErrorData{
		Error: err.Error(),
		Code:  code,
	}))
}
