package infra

import (
	"context"
	"errors"
	"net/http"
	"time"
)

// HTTPServer runs the API's http.Server and owns its shutdown grace period.
type HTTPServer struct {
	server *http.Server
	grace  time.Duration
}

// NewHTTPServer builds the server from the shared config. The idle timeout
// doubles as the shutdown grace period: active polls and upgrades get that
// long to drain.
func NewHTTPServer(cfg *Config, handler http.Handler) *HTTPServer {
	return &HTTPServer{
		server: &http.Server{
			Addr:              ":" + cfg.Port,
			Handler:           handler,
			ReadTimeout:       cfg.HTTPReadTimeout,
			ReadHeaderTimeout: 5 * time.Second,
			WriteTimeout:      cfg.HTTPWriteTimeout,
			IdleTimeout:       cfg.HTTPIdleTimeout,
		},
		grace: cfg.HTTPIdleTimeout,
	}
}

// Run serves until the context is cancelled, then shuts down gracefully.
// A clean shutdown returns nil.
func (s *HTTPServer) Run(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		errCh <- s.server.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), s.grace)
	defer cancel()
	return s.server.Shutdown(shutdownCtx)
}
