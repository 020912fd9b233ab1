//nolint:revive // exported
package api

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/rs/cors"
	"golang.org/x/net/http2"
	"golang.org/x/net/http2/h2c"

	"pairbench/server/pkg/config"
)

type Service struct {
	Handler http.Handler
	Path    string
}

func newCORS() *cors.Cors {
	return cors.New(cors.Options{
		AllowedMethods: []string{
			http.MethodHead,
			http.MethodGet,
			http.MethodPost,
			http.MethodPut,
			http.MethodPatch,
			http.MethodDelete,
		},
		AllowOriginFunc: func(origin string) bool {
			return true
		},
		AllowedHeaders: []string{"*"},
		ExposedHeaders: []string{
			"Accept",
			"Accept-Encoding",
			"Content-Encoding",
		},
		MaxAge: int(time.Second),
	})
}

// Server mode constants
const (
	ServerModeUDS = "uds"
	ServerModeTCP = "tcp"
)

func newH2CServer(handler http.Handler) *http.Server {
	return &http.Server{
		ReadHeaderTimeout: 10 * time.Second,
		// INFO: Use h2c so we can serve HTTP/2 without TLS.
		Handler: h2c.NewHandler(newCORS().Handler(handler), &http2.Server{
			IdleTimeout:          0,
			MaxConcurrentStreams: 100000,
			MaxHandlers:          0,
		}),
	}
}

// NewMux registers every service on a fresh mux. Paths are method-qualified
// net/http patterns.
func NewMux(services []Service) *http.ServeMux {
	mux := http.NewServeMux()
	for _, service := range services {
		slog.Info("Registering service", "path", service.Path)
		mux.Handle(service.Path, service.Handler)
	}
	return mux
}

// ListenServices serves the registered services on either a Unix socket or
// a TCP port, per config, until ctx is cancelled. In-flight requests get a
// grace period to drain before the listener is torn down.
func ListenServices(ctx context.Context, services []Service, cfg config.ServerConfig) error {
	mux := NewMux(services)

	switch cfg.Mode {
	case ServerModeTCP:
		return listenTCP(ctx, mux, cfg.Port)
	case ServerModeUDS:
		return listenIPC(ctx, mux, cfg.SocketPath)
	default:
		slog.Warn("Unknown server mode, falling back to tcp", "mode", cfg.Mode)
		return listenTCP(ctx, mux, cfg.Port)
	}
}

func listenTCP(ctx context.Context, mux *http.ServeMux, port string) error {
	srv := newH2CServer(mux)
	srv.Addr = ":" + port

	slog.Info("Server listening on TCP", "port", port)
	return serveUntilDone(ctx, srv, srv.ListenAndServe)
}

func serveUntilDone(ctx context.Context, srv *http.Server, serve func() error) error {
	errCh := make(chan error, 1)
	go func() { errCh <- serve() }()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return err
		}
		if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	}
}
