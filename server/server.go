// Package server implements the Interlock HTTP server: the dashboard
// REST API, write-endpoint auth, and SSE real-time events.
package server

import (
	"context"
	"encoding/json"
	"io/fs"
	"log/slog"
	"net/http"
	"time"

	"github.com/signalbox/interlock/board"
	"github.com/signalbox/interlock/comms"
	"github.com/signalbox/interlock/config"
	"github.com/signalbox/interlock/server/api"
	"github.com/signalbox/interlock/server/ws"
)

// Server is the Interlock HTTP server.
type Server struct {
	cfg     config.Config
	mux     *http.ServeMux
	httpSrv *http.Server
	logger  *slog.Logger

	store    board.Store
	bus      comms.Bus
	hub      *ws.Hub
	handlers *api.Handlers

	version string
}

// New creates a new Server with the given config and logger.
func New(cfg config.Config, ver string, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{
		cfg:     cfg,
		mux:     http.NewServeMux(),
		logger:  logger,
		version: ver,
	}
}

// SetStore attaches the coordination store to the server.
func (s *Server) SetStore(store board.Store) {
	s.store = store
}

// SetBus attaches the event bus to the server.
func (s *Server) SetBus(bus comms.Bus) {
	s.bus = bus
}

// SetStaticFS sets the embedded filesystem to serve UI files from.
// Call before Start.
func (s *Server) SetStaticFS(fsys fs.FS) {
	s.mux.Handle("/", http.FileServerFS(fsys))
}

// Mount registers an extra handler on the server mux, such as the MCP
// streamable endpoint. Call before Start.
func (s *Server) Mount(pattern string, h http.Handler) {
	s.mux.Handle(pattern, h)
}

// Start registers routes and begins listening.
func (s *Server) Start() error {
	s.registerRoutes()

	addr := s.cfg.Server.Addr
	if addr == "" {
		addr = ":9090"
	}
	s.httpSrv = &http.Server{
		Addr:              addr,
		Handler:           s.mux,
		ReadHeaderTimeout: 15 * time.Second,
	}
	s.logger.Info("server listening", slog.String("addr", addr))
	return s.httpSrv.ListenAndServe()
}

// Stop gracefully shuts down the HTTP server.
func (s *Server) Stop(ctx context.Context) error {
	if s.hub != nil {
		s.hub.Stop()
	}
	if s.httpSrv == nil {
		return nil
	}
	return s.httpSrv.Shutdown(ctx)
}

// registerRoutes sets up all HTTP routes.
func (s *Server) registerRoutes() {
	s.hub = ws.NewHub(s.bus, s.logger)
	s.hub.Start()

	h := &api.Handlers{
		Store:   s.store,
		Bus:     s.bus,
		Logger:  s.logger,
		Version: s.version,
	}
	s.handlers = h

	// Reads are open: the dashboard and agents poll them freely.
	h.RegisterReadRoutes(s.mux)
	s.mux.HandleFunc("GET /healthz", s.handleHealthz)

	// SSE is a read as well. EventSource can't set headers anyway.
	s.mux.HandleFunc("GET /events", s.hub.ServeSSE)

	// Mutations go through the bearer-token middleware. Method-specific
	// read patterns above are more specific than this prefix, so only
	// writes land here.
	writeMux := http.NewServeMux()
	h.RegisterWriteRoutes(writeMux)
	s.mux.Handle("/api/", s.authMiddleware(writeMux))
}

func (s *Server) handleHealthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// writeJSON encodes v as JSON and writes it with the given status code.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// writeJSONError writes a JSON error response.
func writeJSONError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
