package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
)

var flagPort int

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP and websocket API",
	RunE: func(cmd *cobra.Command, args []string) error {
		if cmd.Flags().Changed("port") {
			cfg.Port = flagPort
		}

		ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		ln, err := net.Listen("tcp", fmt.Sprintf(":%d", cfg.Port))
		if err != nil {
			return fmt.Errorf("failed to listen: %w", err)
		}
		log.Printf("🚀 HTTP server starting on port %d (model %s)", cfg.Port, cfg.DefaultModel)
		return NewApp(cfg, newLLMClient(cfg)).Serve(ctx, ln)
	},
}

// Serve answers requests on ln until ctx is done. Sessions are closed only
// after in-flight requests have drained.
func (app *App) Serve(ctx context.Context, ln net.Listener) error {
	sessionsCtx, stopSessions := context.WithCancel(context.Background())
	defer stopSessions()

	go app.Hub.Run(ctx)
	go app.Chat.Sessions().Run(sessionsCtx, time.Minute)

	srv := &http.Server{Handler: app.Router}
	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Serve(ln)
	}()

	select {
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server failed: %w", err)
		}
	case <-ctx.Done():
		log.Println("🛑 Shutting down...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("shutdown failed: %w", err)
		}
	}
	stopSessions()
	app.Chat.Sessions().CloseAll()
	return nil
}

func init() {
	serveCmd.Flags().IntVar(&flagPort, "port", 0, "listen port (overrides config)")
	rootCmd.AddCommand(serveCmd)
}
