package api

import (
	"context"
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"go.uber.org/zap"
)

const shutdownTimeout = 15 * time.Second

type Server struct {
	addr    string
	handler *Handler
	logger  *zap.Logger
}

func NewServer(addr string, handler *Handler, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Server{addr: addr, handler: handler, logger: logger}
}

// Router returns the routes with the middleware stack applied.
func (s *Server) Router() http.Handler {
	r := mux.NewRouter()
	r.HandleFunc("/api/chat", s.handler.HandleChat).Methods(http.MethodPost)
	r.HandleFunc("/api/suggestions", s.handler.HandleSuggestions).Methods(http.MethodGet)
	r.HandleFunc("/healthz", s.handler.Health).Methods(http.MethodGet)

	// Logging wraps recovery so a recovered panic is logged as a 500.
	r.Use(loggingMiddleware(s.logger), recoveryMiddleware(s.logger))
	return r
}

// ListenAndServe serves until ctx is cancelled, then drains in-flight
// streams for up to 15 seconds.
func (s *Server) ListenAndServe(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.addr,
		Handler:           s.Router(),
		ReadHeaderTimeout: 10 * time.Second,
		BaseContext: func(_ net.Listener) context.Context {
			return ctx
		},
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("listening", zap.String("addr", s.addr))
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		s.logger.Info("shutting down server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}
