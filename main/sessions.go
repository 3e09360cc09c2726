package main

import (
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"dbchat-backend/internal/chat"
	"dbchat-backend/internal/db"
	"dbchat-backend/internal/export"
	"dbchat-backend/internal/llm"
	"dbchat-backend/internal/session"
)

const sessionKey = "session"

// CreateSessionRequest opens a session. UploadID refers to a file stored by
// POST /api/uploads and is only read for upload sources.
type CreateSessionRequest struct {
	Source   db.Source         `json:"source"`
	UploadID string            `json:"upload_id"`
	Features *session.Features `json:"features"`
	Model    string            `json:"model"`
}

// SessionView is the JSON shape of a session
type SessionView struct {
	ID          string            `json:"id"`
	Source      string            `json:"source"`
	Kind        db.SourceKind     `json:"kind"`
	Engine      db.DatabaseType   `json:"engine"`
	Model       string            `json:"model"`
	Features    session.Features  `json:"features"`
	Stats       *db.Stats         `json:"stats"`
	Usage       session.Usage     `json:"usage"`
	Messages    []session.Message `json:"messages,omitempty"`
	CreatedAt   time.Time         `json:"created_at"`
	LastActive  time.Time         `json:"last_active"`
	Connections int               `json:"connections"`
}

func (app *App) viewSession(s *session.Session, withMessages bool) SessionView {
	v := SessionView{
		ID:          s.ID(),
		Source:      s.Source().Describe(),
		Kind:        s.Source().Kind,
		Engine:      s.Source().ResolvedEngine(),
		Model:       s.Runner().Model(),
		Features:    s.Features(),
		Stats:       s.Stats(),
		Usage:       s.Usage(),
		CreatedAt:   s.CreatedAt(),
		LastActive:  s.LastActive(),
		Connections: app.Hub.GetSessionConnectionCount(s.ID()),
	}
	if withMessages {
		v.Messages = s.Messages()
	}
	return v
}

// statusFor maps service errors to HTTP status codes
func statusFor(err error) int {
	var verr *db.ValidationError
	switch {
	case errors.Is(err, session.ErrSessionNotFound),
		errors.Is(err, session.ErrHistoryNotFound),
		errors.Is(err, session.ErrMessageNotFound),
		errors.Is(err, session.ErrFavoriteIndex):
		return http.StatusNotFound
	case errors.As(err, &verr),
		errors.Is(err, db.ErrUnsupportedSource),
		errors.Is(err, llm.ErrUnknownModel),
		errors.Is(err, chat.ErrEmptyQuestion),
		errors.Is(err, chat.ErrUnknownMode),
		errors.Is(err, chat.ErrUnknownTemplate),
		errors.Is(err, chat.ErrUnknownAction),
		errors.Is(err, export.ErrUnsupportedFormat):
		return http.StatusBadRequest
	case errors.Is(err, export.ErrNoTable):
		return http.StatusConflict
	case errors.Is(err, chat.ErrAgentFailed):
		return http.StatusBadGateway
	}
	return http.StatusInternalServerError
}

func abortWithError(c *gin.Context, err error) {
	c.AbortWithStatusJSON(statusFor(err), gin.H{"error": err.Error()})
}

// sessionMiddleware loads the :id session or answers 404
func (app *App) sessionMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		s, err := app.Chat.Sessions().Get(c.Param("id"))
		if err != nil {
			abortWithError(c, err)
			return
		}
		c.Set(sessionKey, s)
		c.Next()
	}
}

func currentSession(c *gin.Context) *session.Session {
	return c.MustGet(sessionKey).(*session.Session)
}

func (app *App) healthHandler(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":      "healthy",
		"timestamp":   time.Now().Unix(),
		"sessions":    app.Chat.Sessions().Len(),
		"connections": app.Hub.GetConnectionCount(),
	})
}

func (app *App) optionsHandler(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"sources":           []db.SourceKind{db.SourceSample, db.SourceUpload, db.SourceServer, db.SourceURL},
		"engines":           []db.DatabaseType{db.DatabaseTypeMySQL, db.DatabaseTypePostgreSQL},
		"upload_extensions": db.SQLiteExtensions,
		"upload_max_mb":     app.Config.UploadMaxMB,
		"models":            app.Config.Models,
		"default_model":     app.Config.DefaultModel,
		"features":          session.DefaultFeatures(),
		"templates":         chat.Templates,
		"quick_actions":     chat.QuickActions,
		"export_formats":    []export.Format{export.FormatCSV, export.FormatXLSX},
	})
}

// uploadHandler stores a SQLite file under a generated name
func (app *App) uploadHandler(c *gin.Context) {
	file, err := c.FormFile("file")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "file is required"})
		return
	}
	if !db.HasSQLiteExtension(file.Filename) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "file must end in .db, .sqlite or .sqlite3"})
		return
	}
	if file.Size > app.Config.UploadMaxBytes() {
		c.JSON(http.StatusRequestEntityTooLarge, gin.H{"error": fmt.Sprintf("file exceeds %d MB", app.Config.UploadMaxMB)})
		return
	}

	if err := os.MkdirAll(app.Config.UploadDir, 0o755); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to prepare upload directory"})
		return
	}
	uploadID := uuid.New().String() + strings.ToLower(filepath.Ext(file.Filename))
	if err := c.SaveUploadedFile(file, filepath.Join(app.Config.UploadDir, uploadID)); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to store upload: " + err.Error()})
		return
	}

	log.Printf("📁 Stored upload %s (%s, %d bytes)", uploadID, file.Filename, file.Size)
	c.JSON(http.StatusCreated, gin.H{
		"upload_id": uploadID,
		"filename":  file.Filename,
		"size":      file.Size,
	})
}

// uploadPath resolves an upload id inside the upload directory
func (app *App) uploadPath(uploadID string) (string, error) {
	if uploadID == "" || filepath.Base(uploadID) != uploadID || !db.HasSQLiteExtension(uploadID) {
		return "", &db.ValidationError{Field: "upload_id", Message: "is invalid"}
	}
	path := filepath.Join(app.Config.UploadDir, uploadID)
	if _, err := os.Stat(path); err != nil {
		return "", &db.ValidationError{Field: "upload_id", Message: "no such upload"}
	}
	return path, nil
}

func (app *App) createSessionHandler(c *gin.Context) {
	var req CreateSessionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request format: " + err.Error()})
		return
	}

	src := req.Source
	src.Path = ""
	if src.Kind == db.SourceUpload {
		path, err := app.uploadPath(req.UploadID)
		if err != nil {
			abortWithError(c, err)
			return
		}
		src.Path = path
	}
	features := session.DefaultFeatures()
	if req.Features != nil {
		features = *req.Features
	}

	s, err := app.Chat.Open(c.Request.Context(), src, features, req.Model)
	if err != nil {
		status := statusFor(err)
		if status == http.StatusInternalServerError {
			status = http.StatusUnprocessableEntity
		}
		log.Printf("❌ Failed to open %s: %v", src.Describe(), err)
		c.JSON(status, gin.H{"error": "Connection failed: " + err.Error()})
		return
	}
	c.JSON(http.StatusCreated, app.viewSession(s, true))
}

func (app *App) listSessionsHandler(c *gin.Context) {
	list := app.Chat.Sessions().List()
	views := make([]SessionView, len(list))
	for i, s := range list {
		views[i] = app.viewSession(s, false)
	}
	c.JSON(http.StatusOK, gin.H{"sessions": views})
}

func (app *App) getSessionHandler(c *gin.Context) {
	c.JSON(http.StatusOK, app.viewSession(currentSession(c), true))
}

func (app *App) deleteSessionHandler(c *gin.Context) {
	s := currentSession(c)
	app.Hub.CloseSession(s.ID())
	if err := app.Chat.Sessions().Close(s.ID()); err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"deleted": s.ID()})
}

func (app *App) updateFeaturesHandler(c *gin.Context) {
	var f session.Features
	if err := c.ShouldBindJSON(&f); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request format: " + err.Error()})
		return
	}
	s := currentSession(c)
	s.SetFeatures(f)
	c.JSON(http.StatusOK, s.Features())
}

func (app *App) statsHandler(c *gin.Context) {
	s := currentSession(c)
	c.JSON(http.StatusOK, gin.H{"stats": s.Stats(), "usage": s.Usage()})
}

func (app *App) refreshStatsHandler(c *gin.Context) {
	stats, err := currentSession(c).RefreshStats(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusBadGateway, gin.H{"error": "Failed to refresh statistics: " + err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"stats": stats})
}

func (app *App) analyticsHandler(c *gin.Context) {
	c.JSON(http.StatusOK, app.Chat.Analytics(currentSession(c)))
}

func (app *App) messagesHandler(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"messages": currentSession(c).Messages()})
}

func (app *App) clearMessagesHandler(c *gin.Context) {
	s := currentSession(c)
	s.ClearMessages()
	c.JSON(http.StatusOK, gin.H{"messages": s.Messages()})
}

// exportHandler streams the table of an assistant message as CSV or XLSX
func (app *App) exportHandler(c *gin.Context) {
	s := currentSession(c)
	if !s.Features().EnableExports {
		c.JSON(http.StatusForbidden, gin.H{"error": "exports are disabled for this session"})
		return
	}
	format, err := export.ParseFormat(c.Query("format"))
	if err != nil {
		abortWithError(c, err)
		return
	}
	msg, err := s.Message(c.Param("mid"))
	if err != nil {
		abortWithError(c, err)
		return
	}
	if !msg.Exportable || msg.Table == nil {
		abortWithError(c, export.ErrNoTable)
		return
	}

	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%q", export.FileName(format, time.Now())))
	c.Header("Content-Type", export.ContentType(format))
	c.Status(http.StatusOK)
	if err := app.Chat.Export(s, msg.ID, format, c.Writer); err != nil {
		log.Printf("❌ Export of message %s failed: %v", msg.ID, err)
	}
}
