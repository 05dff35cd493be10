package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/gorilla/mux"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/progate-hackathon-strawberry-flavor/TETRIS-VERSUS-backend/internal/api/handlers"
	"github.com/progate-hackathon-strawberry-flavor/TETRIS-VERSUS-backend/internal/api/middleware"
	"github.com/progate-hackathon-strawberry-flavor/TETRIS-VERSUS-backend/internal/config"
	"github.com/progate-hackathon-strawberry-flavor/TETRIS-VERSUS-backend/internal/services/realtime"
)

const shutdownTimeout = 10 * time.Second

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the websocket relay server",
	Long: `Start the HTTP server that hosts the room lobby and relays game events.

Endpoints:
  GET /ws                 websocket (first message: {"type":"auth","token":"..."})
  GET /api/health         liveness and connection count
  GET /api/rooms          rooms that can be joined (requires a bearer token)
  GET /api/rooms/{roomID} a single room (requires a bearer token)

Set BYPASS_AUTH=true to accept any token during local development.`,
	RunE: runServe,
}

func runServe(_ *cobra.Command, _ []string) error {
	cfg, logger, err := loadConfig()
	if err != nil {
		return err
	}

	hub := realtime.NewHub(realtime.Config{JoinRequestTimeout: cfg.JoinRequestTimeout, Logger: logger})
	srv := &http.Server{
		Addr:              cfg.Addr(),
		Handler:           newRouter(cfg, hub, logger),
		ReadHeaderTimeout: 10 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		logger.WithFields(logrus.Fields{"addr": srv.Addr, "bypass_auth": cfg.BypassAuth}).Info("Server starting")
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		hub.Shutdown()
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	logger.Info("Shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	// Shutdown はハイジャック済みの WebSocket を待たないので、ハブを止めて接続を閉じる
	err = srv.Shutdown(shutdownCtx)
	hub.Shutdown()
	return err
}

// newRouter はHTTPルーターを組み立てます。
func newRouter(cfg config.Config, hub *realtime.Hub, logger *logrus.Logger) http.Handler {
	auth := middleware.NewAuthenticator(cfg.JWTSecret, cfg.BypassAuth, logger)
	rooms := handlers.NewRoomsHandler(hub)

	r := mux.NewRouter()
	r.Use(chimw.RequestID, chimw.Recoverer, middleware.LogMiddleware(logger))

	// 認証不要なエンドポイント
	r.HandleFunc("/api/health", rooms.Health).Methods(http.MethodGet)
	// WebSocket は接続後の最初のメッセージで認証する
	r.Handle("/ws", handlers.NewWebSocketHandler(hub, auth, cfg.CORSOrigins, logger)).Methods(http.MethodGet)

	// 認証が必要なエンドポイント
	r.Handle("/api/rooms", auth.Middleware(http.HandlerFunc(rooms.ListRooms))).Methods(http.MethodGet)
	r.Handle("/api/rooms/{roomID}", auth.Middleware(http.HandlerFunc(rooms.GetRoom))).Methods(http.MethodGet)

	return middleware.CORSHandler(cfg.CORSOrigins)(r)
}
