package main

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"forum-realtime/internal/auth"
	"forum-realtime/internal/config"
	"forum-realtime/internal/presence"
	"forum-realtime/internal/realtime"
	"forum-realtime/internal/stream"
	"forum-realtime/internal/typing"
	"forum-realtime/internal/ws"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("Failed to load config", "error", err)
		os.Exit(1)
	}

	setupLogger(cfg.LogLevel)

	verifier := auth.NewVerifier(cfg.JWTSecret)
	broker := realtime.NewBroker(realtime.WithHistorySize(cfg.HistorySize))

	var store presence.Store
	var closeStore io.Closer
	if cfg.RedisURL != "" {
		redisStore, err := presence.NewRedisStore(cfg.RedisURL)
		if err != nil {
			slog.Error("Failed to connect presence store", "error", err)
			os.Exit(1)
		}
		store = redisStore
		closeStore = redisStore
	} else {
		store = presence.NewMemoryStore()
	}

	registry := presence.NewRegistry(broker, store,
		presence.WithTTL(cfg.PresenceTTL),
		presence.WithSweepInterval(cfg.PresenceSweepInterval),
	)
	registry.Start()

	typingSvc := typing.NewService(broker)

	mux := http.NewServeMux()
	mux.Handle("/events", stream.NewHandler(broker, stream.WithKeepAlive(cfg.StreamKeepAlive)))
	mux.Handle("/ws", verifier.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ws.Serve(broker, typingSvc, w, r)
	})))
	mux.Handle("/presence", verifier.Middleware(presence.NewHandler(registry)))
	mux.Handle("/typing", verifier.Middleware(typing.NewHandler(typingSvc)))
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("OK"))
	})

	srv := &http.Server{
		Addr:    ":" + cfg.Port,
		Handler: mux,
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	go func() {
		slog.Info("Realtime server starting", "port", cfg.Port)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("Server failed", "error", err)
			stop()
		}
	}()

	<-ctx.Done()
	slog.Info("Shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("Shutdown failed", "error", err)
	}

	registry.Stop()
	if closeStore != nil {
		closeStore.Close()
	}
}

func setupLogger(level string) {
	var lvl slog.Level
	switch level {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}

	slog.SetDefault(slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: lvl})))
}
