package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/supesu/trading-core/internal/container"
	"github.com/supesu/trading-core/pkg/config"
	"github.com/supesu/trading-core/pkg/logger"
)

const shutdownGrace = 10 * time.Second

func main() {
	var configPath string
	flag.StringVar(&configPath, "config", "", "Path to configuration file")
	flag.Parse()

	// Load configuration
	cfg, err := config.Load(configPath)
	if err != nil {
		panic("Failed to load configuration: " + err.Error())
	}

	// Initialize logger
	log := logger.New(cfg.LogLevel, cfg.Environment)
	log.WithFields(map[string]interface{}{
		"environment": cfg.Environment,
		"log_level":   cfg.LogLevel,
		"rpc":         cfg.Solana.RPC,
	}).Info("Starting trade engine")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Wire the dependency graph
	app, err := container.NewContainer(ctx, cfg, log)
	if err != nil {
		log.WithError(err).Fatal("Failed to initialize dependencies")
	}

	app.Start(ctx)

	// Listen for interrupt signals
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	<-sigChan
	log.Info("Received shutdown signal")
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), shutdownGrace)
	defer shutdownCancel()
	app.Shutdown(shutdownCtx)

	log.Info("Trade engine shutdown complete")
}
