package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/faredit/faredit/pkg/config"
	"github.com/faredit/faredit/pkg/logger"
)

// main starts the broker daemon: the process that owns the real SSH sessions
// and serves the channel protocol to editing clients.
func main() {
	logger.InitLogger()
	log := logger.GetLogger()

	if _, err := config.EnsureDefaultConfig(); err != nil {
		log.Warn("failed to write default config", "error", err)
	}
	cfg, path, err := config.Load()
	if err != nil {
		log.Error("failed to load config", "path", path, "error", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	server := NewServer(cfg)
	if err := server.Start(ctx); err != nil {
		log.Error("failed to start server", "error", err)
		os.Exit(1)
	}
	log.Info("broker listening", "host", cfg.Host(), "port", cfg.Port())

	<-ctx.Done()
	log.Info("shutting down")
}
