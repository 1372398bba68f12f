// Package api is the Read API and WebSocket fanout (spec.md §4.7, §4.8,
// C8/C9), built on gorilla/mux the way the teacher's own server is.
package api

import (
	"context"
	"net/http"

	"github.com/gorilla/mux"

	"pixelboard/internal/board"
	"pixelboard/internal/eventbus"
	"pixelboard/internal/ingester"
	"pixelboard/internal/kv"
	"pixelboard/internal/notify"
)

// Server is the HTTP+WS read surface over a shared Board.
type Server struct {
	board      *board.Board
	store      kv.Store
	bus        *eventbus.Bus
	ingestor   *ingester.Ingestor
	notifier   notify.WebhookDelivery
	adminSecret string

	httpServer *http.Server
}

// Option configures a Server at construction time.
type Option func(*Server)

// WithAdminSecret enables the JWT-protected admin routes.
func WithAdminSecret(secret string) Option {
	return func(s *Server) { s.adminSecret = secret }
}

// WithNotifier wires an outbound webhook delivery backend.
func WithNotifier(n notify.WebhookDelivery) Option {
	return func(s *Server) { s.notifier = n }
}

// NewServer wires a Server over b/store/bus/in, listening on addr.
func NewServer(addr string, b *board.Board, store kv.Store, bus *eventbus.Bus, in *ingester.Ingestor, opts ...Option) *Server {
	s := &Server{board: b, store: store, bus: bus, ingestor: in, notifier: notify.NoopDelivery{}}
	for _, opt := range opts {
		opt(s)
	}

	r := mux.NewRouter()
	r.Use(commonMiddleware)
	r.Use(rateLimitMiddleware)

	registerReadRoutes(r, s)
	registerWebSocketRoutes(r, s)
	if s.adminSecret != "" {
		registerAdminRoutes(r, s)
	}

	s.httpServer = &http.Server{Addr: addr, Handler: r}
	return s
}

// Start blocks serving HTTP until Shutdown is called.
func (s *Server) Start() error {
	err := s.httpServer.ListenAndServe()
	if err == http.ErrServerClosed {
		return nil
	}
	return err
}

// Shutdown gracefully stops accepting new connections.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

func commonMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}
		next.ServeHTTP(w, r)
	})
}
