package main

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"dbchat-backend/internal/agent"
	"dbchat-backend/internal/chat"
	"dbchat-backend/internal/messages"
	"dbchat-backend/internal/session"
)

// BatchRequest carries newline-separated questions
type BatchRequest struct {
	Queries string `json:"queries" binding:"required"`
}

// FavoriteRequest saves a history item
type FavoriteRequest struct {
	HistoryID string `json:"history_id" binding:"required"`
}

// stepNotifier streams agent steps to the session's websocket room
func (app *App) stepNotifier(sessionID string) func(agent.Step) {
	return func(step agent.Step) {
		app.notifier.BroadcastToSession(sessionID, messages.New(messages.TypeAgentStep, step))
	}
}

// respond writes an answer and mirrors it to the session's websocket room
func (app *App) respond(c *gin.Context, s *session.Session, resp *chat.Response, err error) {
	if err != nil {
		abortWithError(c, err)
		return
	}
	app.notifier.BroadcastToSession(s.ID(), messages.New(messages.TypeAssistantResponse, resp))
	c.JSON(http.StatusOK, resp)
}

func (app *App) askHandler(c *gin.Context) {
	var req chat.Request
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request format: " + err.Error()})
		return
	}
	s := currentSession(c)
	resp, err := app.Chat.Ask(c.Request.Context(), s, req, app.stepNotifier(s.ID()))
	app.respond(c, s, resp, err)
}

func (app *App) batchHandler(c *gin.Context) {
	var req BatchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request format: " + err.Error()})
		return
	}
	s := currentSession(c)
	items, err := app.Chat.Batch(c.Request.Context(), s, req.Queries, app.stepNotifier(s.ID()))
	if err != nil && len(items) == 0 {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"results": items})
}

func (app *App) historyHandler(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"history": currentSession(c).History()})
}

func (app *App) rerunHandler(c *gin.Context) {
	s := currentSession(c)
	resp, err := app.Chat.Rerun(c.Request.Context(), s, c.Param("hid"), app.stepNotifier(s.ID()))
	app.respond(c, s, resp, err)
}

func (app *App) favoritesHandler(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"favorites": currentSession(c).Favorites()})
}

func (app *App) addFavoriteHandler(c *gin.Context) {
	var req FavoriteRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request format: " + err.Error()})
		return
	}
	item, added, err := currentSession(c).AddFavorite(req.HistoryID)
	if err != nil {
		abortWithError(c, err)
		return
	}
	status := http.StatusCreated
	if !added {
		status = http.StatusOK
	}
	c.JSON(status, gin.H{"favorite": item, "added": added})
}

func favoriteIndex(c *gin.Context) (int, bool) {
	index, err := strconv.Atoi(c.Param("index"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "index must be an integer"})
		return 0, false
	}
	return index, true
}

func (app *App) removeFavoriteHandler(c *gin.Context) {
	index, ok := favoriteIndex(c)
	if !ok {
		return
	}
	s := currentSession(c)
	if err := s.RemoveFavorite(index); err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"favorites": s.Favorites()})
}

func (app *App) runFavoriteHandler(c *gin.Context) {
	index, ok := favoriteIndex(c)
	if !ok {
		return
	}
	s := currentSession(c)
	resp, err := app.Chat.RunFavorite(c.Request.Context(), s, index, app.stepNotifier(s.ID()))
	app.respond(c, s, resp, err)
}
