// Command interlockd is the Interlock coordination server daemon.
// It serves the MCP coordination tools to agents, either on stdin/stdout
// or over HTTP alongside the dashboard REST API and SSE event feed.
package main

import (
	"context"
	"errors"
	"flag"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	mcpgo "github.com/mark3labs/mcp-go/server"

	"github.com/signalbox/interlock/board"
	"github.com/signalbox/interlock/comms"
	"github.com/signalbox/interlock/config"
	"github.com/signalbox/interlock/internal/version"
	"github.com/signalbox/interlock/mcpserver"
	"github.com/signalbox/interlock/server"
)

var (
	configPath = flag.String("config", "interlock.yaml", "path to config file")
	stdioMode  = flag.Bool("stdio", false, "serve MCP on stdin/stdout instead of HTTP")
)

func main() {
	flag.Parse()

	cfg := loadConfig(*configPath)
	if *stdioMode {
		cfg.Server.Mode = config.ModeStdio
	}

	// Logs go to stderr: in stdio mode stdout belongs to the MCP stream.
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: parseLevel(cfg.LogLevel),
	}))

	logger.Info("starting interlockd",
		"version", version.Version,
		"commit", version.Commit,
		"mode", cfg.Server.Mode,
	)

	if err := os.MkdirAll(cfg.DataDir, 0o755); err != nil {
		log.Fatalf("Failed to create data dir %s: %v", cfg.DataDir, err)
	}

	bus := comms.NewInMemoryBus()
	store, err := board.NewSQLiteStore(
		filepath.Join(cfg.DataDir, "interlock.db"),
		board.WithTakeover(cfg.Locks.AllowTakeover),
		board.WithNotifier(comms.NotifyFunc(bus, logger)),
	)
	if err != nil {
		log.Fatalf("Failed to open store: %v", err)
	}
	defer store.Close() //nolint:errcheck

	mcpSrv := mcpserver.New(store, version.Version)

	if cfg.Server.Mode == config.ModeStdio {
		if err := mcpgo.ServeStdio(mcpSrv); err != nil {
			log.Fatalf("MCP stdio server failed: %v", err)
		}
		logger.Info("stdio session ended")
		return
	}

	srv := server.New(*cfg, version.Version, logger)
	srv.SetStore(store)
	srv.SetBus(bus)
	srv.Mount("/mcp", mcpgo.NewStreamableHTTPServer(mcpSrv))

	errCh := make(chan error, 1)
	go func() { errCh <- srv.Start() }()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("Server failed: %v", err)
		}
	case sig := <-sigCh:
		logger.Info("shutting down", "signal", sig.String())
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Stop(ctx); err != nil {
			logger.Error("server stop error", "error", err)
		}
	}
	logger.Info("shutdown complete")
}

// loadConfig reads the config file, falling back to defaults when the
// file does not exist so the daemon runs without any setup.
func loadConfig(path string) *config.Config {
	if _, err := os.Stat(path); err != nil {
		if os.IsNotExist(err) {
			return config.DefaultConfig()
		}
		log.Fatalf("Failed to stat config %s: %v", path, err)
	}
	cfg, err := config.Load(path)
	if err != nil {
		log.Fatalf("Failed to load config %s: %v", path, err)
	}
	return cfg
}

func parseLevel(s string) slog.Level {
	switch strings.ToLower(s) {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
