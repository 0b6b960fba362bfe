// Package health exposes the liveness endpoint each worker process serves so
// deployments can probe it.
package health

import (
	"context"
	"database/sql"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
)

const shutdownTimeout = 5 * time.Second

// Handler builds the health router. The probe fails when the database is
// unreachable, which is the only dependency every worker shares.
func Handler(db *sql.DB) http.Handler {
	r := chi.NewRouter()
	r.Use(chiMiddleware.Recoverer)

	r.Get("/health", func(w http.ResponseWriter, req *http.Request) {
		ctx, cancel := context.WithTimeout(req.Context(), 2*time.Second)
		defer cancel()

		if err := db.PingContext(ctx); err != nil {
			http.Error(w, "database unreachable", http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("OK"))
	})

	return r
}

// Serve runs the health endpoint until ctx is cancelled. An empty addr
// disables the endpoint. Serve never fails the worker; a port conflict is
// logged and the worker carries on without probes.
func Serve(ctx context.Context, addr string, db *sql.DB) {
	if addr == "" {
		return
	}

	srv := &http.Server{Addr: addr, Handler: Handler(db)}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			slog.Warn("Health server shutdown failed", "error", err)
		}
	}()

	go func() {
		slog.Info("Health endpoint listening", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Warn("Health server stopped", "error", err)
		}
	}()
}
