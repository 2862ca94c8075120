// Package api implements the margin HTTP and WebSocket server.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/sprite-ai/margin/internal/ai"
	"github.com/sprite-ai/margin/internal/clock"
	"github.com/sprite-ai/margin/internal/metrics"
	"github.com/sprite-ai/margin/internal/store"
)

// Options configures the server. Zero values pick the defaults.
type Options struct {
	// Store holds annotation state shared by every session.
	Store *store.Store
	// Provider serves critique requests. Nil disables analyze.
	Provider     ai.Provider
	Clock        clock.Clock
	DismissDelay time.Duration
	Logger       *slog.Logger
}

// Server is the margin HTTP API server.
type Server struct {
	addr   string
	opts   Options
	log    *slog.Logger
	mux    *http.ServeMux
	server *http.Server
}

// New creates a new API server.
func New(addr string, opts Options) *Server {
	if opts.Store == nil {
		opts.Store = store.New()
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	s := &Server{addr: addr, opts: opts, log: opts.Logger}
	s.mux = http.NewServeMux()
	s.registerRoutes()
	s.server = &http.Server{
		Addr:         addr,
		Handler:      s.mux,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  120 * time.Second,
	}
	return s
}

func (s *Server) registerRoutes() {
	s.mux.Handle("GET /health", s.instrument("health", s.handleHealth))
	s.mux.Handle("POST /api/extract", s.instrument("extract", s.handleExtract))
	s.mux.Handle("POST /api/detect", s.instrument("detect", s.handleDetect))
	s.mux.Handle("GET /metrics", metrics.Handler())
	// The upgrade needs the raw ResponseWriter, so ws is not instrumented.
	s.mux.HandleFunc("GET /api/ws", s.handleWebSocket)
}

// ListenAndServe starts the HTTP server.
func (s *Server) ListenAndServe() error {
	s.log.Info("margin API server listening", "addr", s.addr)
	err := s.server.ListenAndServe()
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

// Shutdown stops accepting connections and waits for in-flight requests.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.server.Shutdown(ctx)
}

// Handler returns the HTTP handler for testing.
func (s *Server) Handler() http.Handler {
	return s.mux
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

// instrument counts requests by route and status code.
func (s *Server) instrument(route string, h http.HandlerFunc) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		h(rec, r)
		metrics.HTTPRequests.WithLabelValues(route, strconv.Itoa(rec.status)).Inc()
	})
}

// writeJSON writes a JSON response.
func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		s.log.Error("json encode", "error", err)
	}
}

// writeError writes a JSON error response.
func (s *Server) writeError(w http.ResponseWriter, status int, msg string) {
	s.writeJSON(w, status, map[string]string{"error": msg})
}

// readJSON decodes a JSON request body into v.
func readJSON(r *http.Request, v any) error {
	if r.Body == nil {
		return errors.New("empty request body")
	}
	defer r.Body.Close()
	return json.NewDecoder(r.Body).Decode(v)
}
