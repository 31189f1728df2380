package ipc

import (
	"context"
	"net/http"
	"time"
)

// Server wraps an HTTP server with orchestrator routing.
type Server struct {
	httpServer *http.Server
}

// NewServer creates a Server that binds to the given address. metrics may
// be nil, in which case /metrics is not served.
func NewServer(h *Handler, listenAddr string, metrics http.Handler) *Server {
	return &Server{
		httpServer: &http.Server{
			Addr:              listenAddr,
			Handler:           corsMiddleware(Routes(h, metrics)),
			ReadHeaderTimeout: 10 * time.Second,
		},
	}
}

// Routes builds the request multiplexer.
func Routes(h *Handler, metrics http.Handler) *http.ServeMux {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /healthz", h.Health)
	if metrics != nil {
		mux.Handle("GET /metrics", metrics)
	}

	mux.HandleFunc("POST /api/v1/ask", h.Ask)

	// Session endpoints.
	mux.HandleFunc("GET /api/v1/sessions", h.ListSessions)
	mux.HandleFunc("GET /api/v1/sessions/{id}", h.GetSession)
	mux.HandleFunc("GET /api/v1/sessions/{id}/messages", h.ListMessages)
	mux.HandleFunc("GET /api/v1/sessions/{id}/events", h.ListEvents)
	mux.HandleFunc("GET /api/v1/sessions/{id}/events/stream", h.StreamEvents)
	mux.HandleFunc("POST /api/v1/sessions/{id}/resume", h.Resume)

	return mux
}

// Start begins listening for HTTP connections. Blocks until the server stops.
func (s *Server) Start() error {
	return s.httpServer.ListenAndServe()
}

// Shutdown gracefully stops the server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

// corsMiddleware adds CORS headers for browser clients.
func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}

		next.ServeHTTP(w, r)
	})
}
