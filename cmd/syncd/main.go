package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/joho/godotenv"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/prudhvinik1/localsync/internal/config"
	"github.com/prudhvinik1/localsync/internal/database"
	"github.com/prudhvinik1/localsync/internal/models"
	"github.com/prudhvinik1/localsync/internal/repositories"
)

// syncd serves read-only introspection over the local sync store: backlog
// depth and cursor positions per channel. It is not the sync transport; the
// orchestrator drives the engine directly.

type channelStatus struct {
	Channel      string     `json:"channel"`
	Pending      int64      `json:"pending"`
	LastSyncTime *time.Time `json:"last_sync_time,omitempty"`
}

type statusResponse struct {
	Channels         []channelStatus `json:"channels"`
	LastSequenceID   int64           `json:"last_sequence_id"`
	RemoteApplyGuard bool            `json:"remote_apply_guard"`
}

func main() {
	ctx := context.Background()

	godotenv.Load()

	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	logger, err := newLogger(cfg.LogLevel)
	if err != nil {
		log.Fatalf("Failed to build logger: %v", err)
	}
	defer logger.Sync()

	db, err := database.Open(ctx, cfg.DatabaseURL)
	if err != nil {
		logger.Fatal("failed to open store", zap.Error(err))
	}
	defer db.Close()

	if err := database.Migrate(ctx, db, database.DriverFor(cfg.DatabaseURL)); err != nil {
		logger.Fatal("failed to bootstrap schema", zap.Error(err))
	}

	outbox := repositories.NewSQLOutboxRepository(db)
	cursors := repositories.NewSQLCursorRepository(db)

	router := chi.NewRouter()
	router.Use(middleware.Recoverer)

	router.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("OK"))
	})

	router.Get("/v1/status", func(w http.ResponseWriter, r *http.Request) {
		resp := statusResponse{}

		for _, channel := range models.Channels() {
			pending, err := outbox.CountPending(r.Context(), channel)
			if err != nil {
				logger.Error("failed to count pending changes", zap.String("channel", channel), zap.Error(err))
				http.Error(w, "store unavailable", http.StatusInternalServerError)
				return
			}
			status := channelStatus{Channel: channel, Pending: pending}
			if t, err := cursors.LastSyncTime(r.Context(), channel); err == nil && !t.IsZero() {
				status.LastSyncTime = &t
			}
			resp.Channels = append(resp.Channels, status)
		}

		seq, err := cursors.LastSequenceID(r.Context())
		if err != nil {
			logger.Error("failed to read sequence watermark", zap.Error(err))
			http.Error(w, "store unavailable", http.StatusInternalServerError)
			return
		}
		resp.LastSequenceID = seq

		guardOn, err := cursors.GuardFlag(r.Context())
		if err != nil {
			logger.Error("failed to read guard flag", zap.Error(err))
			http.Error(w, "store unavailable", http.StatusInternalServerError)
			return
		}
		resp.RemoteApplyGuard = guardOn

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(resp)
	})

	server := &http.Server{
		Addr:    fmt.Sprintf(":%s", cfg.ServerPort),
		Handler: router,
	}

	// graceful shutdown
	go func() {
		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
		<-sigChan

		logger.Info("shutting down server")
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		server.Shutdown(ctx)
	}()

	logger.Info("starting server", zap.String("port", cfg.ServerPort), zap.String("store", string(database.DriverFor(cfg.DatabaseURL))))
	if err := server.ListenAndServe(); err != http.ErrServerClosed {
		logger.Fatal("server error", zap.Error(err))
	}

	logger.Info("server stopped gracefully")
}

func newLogger(level string) (*zap.Logger, error) {
	parsed, err := zapcore.ParseLevel(level)
	if err != nil {
		return nil, fmt.Errorf("invalid LOG_LEVEL %q: %w", level, err)
	}

	cfg := zap.NewProductionConfig()
	cfg.Level = zap.NewAtomicLevelAt(parsed)
	return cfg.Build()
}
