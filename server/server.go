// Package server exposes the bot's HTTP surface: health, status and metrics.
// It injects correlation IDs into request contexts for consistent logging.
package server

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/onnwee/chzzk-bot/chat"
)

// NewMux returns the HTTP handler with all routes.
func NewMux(bot *chat.Bot) http.Handler {
	mux := http.NewServeMux()

	mux.Handle("/metrics", promhttp.Handler())

	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		if _, err := w.Write([]byte("ok")); err != nil {
			slog.Warn("failed to write health response", slog.Any("err", err))
		}
	})

	mux.HandleFunc("/status", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if err := json.NewEncoder(w).Encode(bot.Snapshot()); err != nil {
			slog.Warn("failed to encode status", slog.Any("err", err))
		}
	})

	return withCorrelation(mux)
}

// withCorrelation tags each request with a correlation id (reusing the
// X-Request-Id header when the caller supplies one) and logs the request.
func withCorrelation(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		corr := r.Header.Get("X-Request-Id")
		if corr == "" {
			corr = uuid.NewString()
		}
		w.Header().Set("X-Request-Id", corr)
		start := time.Now()
		next.ServeHTTP(w, r)
		slog.Debug("http request",
			slog.String("method", r.Method),
			slog.String("path", r.URL.Path),
			slog.String("corr", corr),
			slog.Duration("duration", time.Since(start)))
	})
}

// Start runs the HTTP server until ctx is cancelled, then shuts down
// gracefully.
func Start(ctx context.Context, bot *chat.Bot, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           NewMux(bot),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       10 * time.Second,
		WriteTimeout:      10 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("http server listening", slog.String("addr", addr))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	}
}
