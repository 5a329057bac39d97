package main

import (
	"context"
	"log"
	"os/signal"
	"syscall"

	"github.com/davidekete/ragdesk/internal/app"
	"github.com/davidekete/ragdesk/internal/config"
	"github.com/davidekete/ragdesk/internal/platform/logger"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg := config.LoadConfig()

	zlog, err := logger.New(cfg.LogMode)
	if err != nil {
		log.Fatalf("logger init failed: %v", err)
	}
	defer func() { _ = zlog.Sync() }()

	application, err := app.NewApp(ctx, cfg, zlog)
	if err != nil {
		zlog.Fatalw("startup failed", "error", err)
	}
	defer application.Close()

	zlog.Infow("ragdesk is running", "port", cfg.Port)
	if err := application.Run(ctx); err != nil {
		zlog.Fatalw("runtime failure", "error", err)
	}
	zlog.Infow("shutdown complete")
}
