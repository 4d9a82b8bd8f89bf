package api

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	apiv1 "ebook-queue/internal/infra/api/apiv1"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
)

const shutdownGrace = 15 * time.Second

// Pinger reports whether the Durable Store is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}

// NewRouter builds the full HTTP surface: health, metrics and /api/v1.
func NewRouter(srv *apiv1.Server, store Pinger, logger *zerolog.Logger) http.Handler {
	r := chi.NewRouter()
	r.Get("/health", health(store))
	r.Method(http.MethodGet, "/metrics", promhttp.Handler())
	apiv1.RegisterAPIV1(r, srv)

	return Chain(r,
		TraceID(),
		RequestLog(logger),
		Recover(logger),
	)
}

func health(store Pinger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if err := store.Ping(ctx); err != nil {
			http.Error(w, "store unavailable", http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("OK"))
	}
}

// Serve runs h on port until ctx ends, then drains in-flight requests.
func Serve(ctx context.Context, port int, h http.Handler, logger *zerolog.Logger) error {
	server := &http.Server{
		Addr:              fmt.Sprintf(":%d", port),
		Handler:           h,
		ReadHeaderTimeout: 10 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info().Str("addr", server.Addr).Msg("http server listening")
		errCh <- server.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("http server: %w", err)
	case <-ctx.Done():
	}

	sctx, cancel := context.WithTimeout(context.Background(), shutdownGrace)
	defer cancel()
	if err := server.Shutdown(sctx); err != nil {
		return fmt.Errorf("http shutdown: %w", err)
	}
	logger.Info().Msg("http server stopped")
	return nil
}
