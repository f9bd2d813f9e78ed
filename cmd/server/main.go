package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"diglet/internal/config"
	"diglet/internal/logger"
	"diglet/internal/server"

	"go.uber.org/zap"
)

func main() {
	cfg := config.Load()
	logr := logger.New(cfg)
	defer logr.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := server.Run(ctx, cfg, logr); err != nil {
		logr.Fatal("server failed", zap.Error(err))
	}
}
