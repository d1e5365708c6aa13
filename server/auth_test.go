package server

import (
	"bytes"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"

	"github.com/signalbox/interlock/board"
	"github.com/signalbox/interlock/comms"
	"github.com/signalbox/interlock/config"
)

func newTestServer(t *testing.T, token string) *Server {
	t.Helper()
	f, err := os.CreateTemp("", "interlock-server-*.db")
	if err != nil {
		t.Fatalf("create temp file: %v", err)
	}
	f.Close()
	path := f.Name()
	t.Cleanup(func() { os.Remove(path) })

	store, err := board.NewSQLiteStore(path)
	if err != nil {
		t.Fatalf("NewSQLiteStore: %v", err)
	}
	t.Cleanup(func() { store.Close() })

	cfg := config.Config{
		Server: config.ServerConfig{Addr: ":0", Mode: config.ModeHTTP},
		Auth:   config.AuthConfig{Token: token},
	}
	s := New(cfg, "test", slog.New(slog.NewTextHandler(io.Discard, nil)))
	s.SetStore(store)
	s.SetBus(comms.NewInMemoryBus())
	s.registerRoutes()
	return s
}

func postProject(s *Server, token string) *httptest.ResponseRecorder {
	body := `{"name":"apollo","description":"demo"}`
	req := httptest.NewRequest(http.MethodPost, "/api/projects", bytes.NewBufferString(body))
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rr := httptest.NewRecorder()
	s.mux.ServeHTTP(rr, req)
	return rr
}

func TestAuthMiddleware_MissingToken(t *testing.T) {
	s := newTestServer(t, "secret-token")

	if rr := postProject(s, ""); rr.Code != http.StatusUnauthorized {
		t.Errorf("expected 401, got %d", rr.Code)
	}
}

func TestAuthMiddleware_WrongToken(t *testing.T) {
	s := newTestServer(t, "secret-token")

	if rr := postProject(s, "not-the-token"); rr.Code != http.StatusUnauthorized {
		t.Errorf("expected 401, got %d", rr.Code)
	}
}

func TestAuthMiddleware_ValidToken(t *testing.T) {
	s := newTestServer(t, "secret-token")

	if rr := postProject(s, "secret-token"); rr.Code != http.StatusCreated {
		t.Errorf("expected 201, got %d: %s", rr.Code, rr.Body.String())
	}
}

func TestAuthMiddleware_DisabledWhenUnset(t *testing.T) {
	s := newTestServer(t, "")

	if rr := postProject(s, ""); rr.Code != http.StatusCreated {
		t.Errorf("expected 201 with auth disabled, got %d: %s", rr.Code, rr.Body.String())
	}
}

func TestReadsOpenWithTokenConfigured(t *testing.T) {
	s := newTestServer(t, "secret-token")

	req := httptest.NewRequest(http.MethodGet, "/api/projects", nil)
	rr := httptest.NewRecorder()
	s.mux.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rr.Code, rr.Body.String())
	}
	var projects []json.RawMessage
	if err := json.NewDecoder(rr.Body).Decode(&projects); err != nil {
		t.Fatalf("decode: %v", err)
	}
}

func TestHealthz(t *testing.T) {
	s := newTestServer(t, "secret-token")

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	rr := httptest.NewRecorder()
	s.mux.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}
	var resp map[string]string
	if err := json.NewDecoder(rr.Body).Decode(&resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp["status"] != "ok" {
		t.Errorf("status = %q, want ok", resp["status"])
	}
}
