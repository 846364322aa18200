package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/illegalcall/profile-resolver/internal/api"
	"github.com/illegalcall/profile-resolver/internal/config"
	"github.com/illegalcall/profile-resolver/internal/metrics"
	"github.com/illegalcall/profile-resolver/internal/resolver"
	"github.com/illegalcall/profile-resolver/pkg/database"
	"github.com/illegalcall/profile-resolver/pkg/kafka"
)

func main() {
	cfg := config.LoadConfig()
	logger := slog.Default()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Initialize database clients
	db, err := database.NewClients(ctx, cfg.Database, cfg.Redis)
	if err != nil {
		logger.Error("Failed to initialize database clients", "error", err)
		os.Exit(1)
	}
	defer db.Close()
	logger.Info("✅ Connected to databases")

	if err := db.CreateTables(ctx); err != nil {
		logger.Error("Failed to create tables", "error", err)
		os.Exit(1)
	}

	// Initialize Kafka producer
	producer, err := kafka.NewProducer(ctx, cfg.Kafka)
	if err != nil {
		logger.Error("Failed to create Kafka producer", "error", err)
		os.Exit(1)
	}
	defer producer.Close()
	logger.Info("✅ Connected to Kafka")

	collector := metrics.New()
	manager := resolver.NewFromConfig(cfg, logger, collector)

	server := api.NewServer(cfg, db, producer, manager, collector, logger)
	go func() {
		if err := server.Start(); err != nil {
			logger.Error("❌ Server error", "error", err)
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("🛑 Server shutting down...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("Shutdown error", "error", err)
	}
}
