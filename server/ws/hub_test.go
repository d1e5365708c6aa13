package ws

import (
	"bufio"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/signalbox/interlock/board"
	"github.com/signalbox/interlock/comms"
)

// sseWriter is a ResponseWriter whose body is the write end of a pipe,
// so a test can read events as the handler emits them.
type sseWriter struct {
	header http.Header
	pw     *io.PipeWriter
}

func newSSEWriter() (*sseWriter, *bufio.Reader) {
	pr, pw := io.Pipe()
	return &sseWriter{header: make(http.Header), pw: pw}, bufio.NewReader(pr)
}

func (w *sseWriter) Header() http.Header         { return w.header }
func (w *sseWriter) Write(p []byte) (int, error) { return w.pw.Write(p) }
func (w *sseWriter) WriteHeader(int)             {}
func (w *sseWriter) Flush()                      {}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// readEvent reads one SSE event and returns the concatenated data lines.
func readEvent(t *testing.T, r *bufio.Reader) string {
	t.Helper()
	var data []string
	for {
		line, err := r.ReadString('\n')
		if err != nil {
			t.Fatalf("read event: %v", err)
		}
		line = strings.TrimRight(line, "\n")
		if line == "" {
			return strings.Join(data, "\n")
		}
		data = append(data, strings.TrimPrefix(line, "data: "))
	}
}

func TestServeSSE_ConnectAndBroadcast(t *testing.T) {
	hub := NewHub(nil, testLogger())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	req := httptest.NewRequest(http.MethodGet, "/events", nil).WithContext(ctx)

	w, body := newSSEWriter()
	done := make(chan struct{})
	go func() {
		hub.ServeSSE(w, req)
		close(done)
	}()

	if got := readEvent(t, body); !strings.Contains(got, "connected") {
		t.Fatalf("first event = %q, want connected", got)
	}
	if ct := w.Header().Get("Content-Type"); ct != "text/event-stream" {
		t.Errorf("Content-Type = %q", ct)
	}

	hub.Broadcast(Event{Type: "status_change", Payload: map[string]string{"id": "todo-1"}})

	var ev Event
	if err := json.Unmarshal([]byte(readEvent(t, body)), &ev); err != nil {
		t.Fatalf("decode broadcast: %v", err)
	}
	if ev.Type != "status_change" {
		t.Errorf("event type = %q, want status_change", ev.Type)
	}

	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("handler did not return after context cancel")
	}
}

func TestHub_RelaysBusEvents(t *testing.T) {
	bus := comms.NewInMemoryBus()
	hub := NewHub(bus, testLogger())
	hub.Start()
	defer hub.Stop()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	req := httptest.NewRequest(http.MethodGet, "/events", nil).WithContext(ctx)

	w, body := newSSEWriter()
	go hub.ServeSSE(w, req)
	readEvent(t, body) // connected

	err := bus.Publish(context.Background(), &board.AuditEvent{
		Type:        board.EventFileLock,
		EntityID:    "todo-9",
		ProjectName: "apollo",
	})
	if err != nil {
		t.Fatalf("publish: %v", err)
	}

	var ev Event
	if err := json.Unmarshal([]byte(readEvent(t, body)), &ev); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if ev.Type != string(board.EventFileLock) {
		t.Errorf("event type = %q, want %q", ev.Type, board.EventFileLock)
	}
}

func TestHub_StopUnsubscribes(t *testing.T) {
	bus := comms.NewInMemoryBus()
	hub := NewHub(bus, testLogger())
	hub.Start()
	hub.Stop()

	// With no subscription left the publish should reach nobody and
	// still succeed.
	if err := bus.Publish(context.Background(), &board.AuditEvent{Type: board.EventStatusChange}); err != nil {
		t.Fatalf("publish after stop: %v", err)
	}
}
