package main

import (
	"fmt"
	"log"
	"os"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"

	"dbchat-backend/internal/agent"
	"dbchat-backend/internal/chat"
	"dbchat-backend/internal/config"
	"dbchat-backend/internal/db"
	"dbchat-backend/internal/llm"
	"dbchat-backend/internal/messages"
	"dbchat-backend/internal/session"
	"dbchat-backend/internal/tools"
	"dbchat-backend/internal/websocket"
)

var (
	cfgFile string

	// Loaded configuration
	cfg *config.Config
)

var rootCmd = &cobra.Command{
	Use:   "dbchat",
	Short: "Chat with a SQL database in plain language",
	Long: `dbchat connects to a SQLite, MySQL or PostgreSQL database and answers questions about it
with an LLM agent that writes and runs SQL. Answers come back with a parsed result table
and a suggested chart.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		c, err := config.Load(cfgFile)
		if err != nil {
			return err
		}
		cfg = c
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is ./dbchat.yaml)")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "✗ Error:", err)
		os.Exit(1)
	}
}

// App wires the chat service to the HTTP and websocket surface
type App struct {
	Config *config.Config
	Chat   *chat.Service
	Hub    *websocket.Hub
	Router *gin.Engine

	// notifier mirrors HTTP answers to websocket clients of the same session
	notifier messages.Hub
}

// newLLMClient builds the OpenAI-compatible client from configuration
func newLLMClient(c *config.Config) *llm.OpenAIClient {
	if c.LLMAPIKey == "" {
		log.Println("⚠️ No LLM API key configured (set DBCHAT_LLM_API_KEY or GROQ_API_KEY)")
	}
	return llm.NewOpenAIClient(llm.Config{
		APIKey:     c.LLMAPIKey,
		BaseURL:    c.LLMBaseURL,
		Model:      c.DefaultModel,
		Models:     c.Models,
		MaxRetries: c.LLMMaxRetries,
	})
}

// chatConfig maps configuration onto the settings each session inherits
func chatConfig(c *config.Config) chat.Config {
	return chat.Config{
		Agent: agent.Config{
			Model:         c.DefaultModel,
			MaxIterations: c.AgentMaxIterations,
			MaxTokens:     c.MaxTokens,
			Temperature:   float32(c.Temperature),
		},
		Query: tools.QueryOptions{
			Timeout: c.QueryTimeout(),
			MaxRows: c.ObservationMaxRows,
		},
		DB:            db.DefaultOptions(),
		Models:        c.Models,
		SampleDBPath:  c.SampleDBPath,
		HistoryLimit:  c.HistoryLimit,
		ResponseChars: c.HistoryResponseChars,
	}
}

// NewApp creates the application around an LLM client
func NewApp(c *config.Config, client llm.LLMClient) *App {
	sessions := session.NewManager(c.SessionIdleTimeout())
	hub := websocket.NewHub()
	app := &App{
		Config:   c,
		Chat:     chat.NewService(client, sessions, chatConfig(c)),
		Hub:      hub,
		notifier: hub,
	}
	app.InitRouter()
	return app
}

func (app *App) InitRouter() {
	switch app.Config.GinMode {
	case gin.ReleaseMode, gin.TestMode:
		gin.SetMode(app.Config.GinMode)
	default:
		gin.SetMode(gin.DebugMode)
	}

	app.Router = gin.New()
	app.Router.Use(gin.Logger())
	app.Router.Use(gin.Recovery())
	app.Router.MaxMultipartMemory = 8 << 20

	// CORS configuration
	corsConfig := cors.DefaultConfig()
	corsConfig.AllowAllOrigins = true
	corsConfig.AllowMethods = []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"}
	corsConfig.AllowHeaders = []string{"Origin", "Content-Type", "Accept"}
	corsConfig.ExposeHeaders = []string{"Content-Disposition"}
	corsConfig.MaxAge = 12 * time.Hour
	app.Router.Use(cors.New(corsConfig))

	wsHandler := websocket.NewHandler(app.Hub, app.Chat)
	app.Router.GET("/ws/sessions/:id", wsHandler.HandleWebSocket)

	api := app.Router.Group("/api")
	{
		api.GET("/health", app.healthHandler)
		api.GET("/options", app.optionsHandler)
		api.POST("/uploads", app.uploadHandler)

		api.GET("/sessions", app.listSessionsHandler)
		api.POST("/sessions", app.createSessionHandler)

		sessions := api.Group("/sessions/:id", app.sessionMiddleware())
		{
			sessions.GET("", app.getSessionHandler)
			sessions.DELETE("", app.deleteSessionHandler)
			sessions.PUT("/features", app.updateFeaturesHandler)

			sessions.GET("/stats", app.statsHandler)
			sessions.POST("/stats/refresh", app.refreshStatsHandler)
			sessions.GET("/analytics", app.analyticsHandler)

			sessions.GET("/messages", app.messagesHandler)
			sessions.DELETE("/messages", app.clearMessagesHandler)
			sessions.GET("/messages/:mid/export", app.exportHandler)

			sessions.POST("/ask", app.askHandler)
			sessions.POST("/batch", app.batchHandler)

			sessions.GET("/history", app.historyHandler)
			sessions.POST("/history/:hid/rerun", app.rerunHandler)

			sessions.GET("/favorites", app.favoritesHandler)
			sessions.POST("/favorites", app.addFavoriteHandler)
			sessions.DELETE("/favorites/:index", app.removeFavoriteHandler)
			sessions.POST("/favorites/:index/run", app.runFavoriteHandler)
		}
	}
}
