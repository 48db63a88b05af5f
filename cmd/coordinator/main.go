package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"personaplex/coordinator/internal/config"
	"personaplex/coordinator/internal/coordinator"
	"personaplex/coordinator/internal/events"
)

func main() {
	// Load .env file if present (ignored if missing)
	_ = godotenv.Load()

	cfg := config.Load()
	logger := newLogger(cfg.Server.LogLevel)

	evts := events.NewLog()
	arb := coordinator.New(coordinator.Options{
		CollectionWindow: cfg.Coordinator.CollectionWindow,
		Roster:           cfg.Coordinator.Agents,
		Logger:           logger,
		Events:           evts,
	})
	h := coordinator.NewHandlers(arb, evts, logger)

	mux := http.NewServeMux()
	mux.Handle("/", coordinator.NewRouter(h))
	mux.Handle("/metrics", promhttp.Handler())

	addr := ":" + cfg.Server.Port
	srv := &http.Server{
		Addr:              addr,
		Handler:           logMiddleware(mux, logger),
		ReadHeaderTimeout: 5 * time.Second,
	}

	// Graceful shutdown on SIGINT/SIGTERM
	sigc := make(chan os.Signal, 1)
	signal.Notify(sigc, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sigc
		logger.Info().Msg("shutdown signal received; stopping server")
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(ctx)
	}()

	logger.Info().
		Str("addr", addr).
		Dur("collection_window", cfg.Coordinator.CollectionWindow).
		Int("roster", len(cfg.Coordinator.Agents)).
		Msg("turn coordinator listening")
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Error().Err(err).Msg("server error")
		os.Exit(1)
	}
}

func newLogger(level string) zerolog.Logger {
	lvl, err := zerolog.ParseLevel(level)
	if err != nil || lvl == zerolog.NoLevel {
		lvl = zerolog.InfoLevel
	}
	return zerolog.New(os.Stderr).Level(lvl).With().Timestamp().Logger()
}

func logMiddleware(next http.Handler, logger zerolog.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)
		logger.Debug().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Dur("elapsed", time.Since(start)).
			Msg("request")
	})
}
