package main

import (
	"context"
	"log/slog"
	"os"

	"github.com/illegalcall/profile-resolver/internal/config"
	"github.com/illegalcall/profile-resolver/internal/metrics"
	"github.com/illegalcall/profile-resolver/internal/resolver"
	"github.com/illegalcall/profile-resolver/internal/storage"
	"github.com/illegalcall/profile-resolver/internal/worker"
	"github.com/illegalcall/profile-resolver/pkg/database"
	"github.com/illegalcall/profile-resolver/pkg/kafka"
)

func main() {
	cfg := config.LoadConfig()
	logger := slog.Default()
	ctx := context.Background()

	// Initialize database clients
	db, err := database.NewClients(ctx, cfg.Database, cfg.Redis)
	if err != nil {
		logger.Error("Failed to initialize database clients", "error", err)
		os.Exit(1)
	}
	defer db.Close()
	logger.Info("✅ Connected to databases")

	// Initialize Kafka consumer
	consumer, err := kafka.NewConsumer(ctx, cfg.Kafka)
	if err != nil {
		logger.Error("Failed to create Kafka consumer", "error", err)
		os.Exit(1)
	}
	defer consumer.Close()
	logger.Info("✅ Connected to Kafka")

	manager := resolver.NewFromConfig(cfg, logger, metrics.New())

	w := worker.NewWorker(cfg,
		storage.NewJobStore(db.DB),
		storage.NewStatusCache(db.Redis, cfg.Jobs.ResultTTL),
		consumer,
		manager,
		worker.NewHTTPWebhookClient(cfg.Jobs.WebhookTimeout),
		logger,
	)
	if err := w.Start(ctx); err != nil {
		logger.Error("Worker error", "error", err)
		os.Exit(1)
	}
}
