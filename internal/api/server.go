package api

import (
	"context"
	"log/slog"

	"github.com/IBM/sarama"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/gofiber/fiber/v2/middleware/limiter"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	jwtware "github.com/gofiber/jwt/v3"

	"github.com/illegalcall/profile-resolver/internal/config"
	"github.com/illegalcall/profile-resolver/internal/metrics"
	"github.com/illegalcall/profile-resolver/internal/resolver"
	"github.com/illegalcall/profile-resolver/internal/storage"
	"github.com/illegalcall/profile-resolver/pkg/database"
)

type Server struct {
	app      *fiber.App
	cfg      *config.Config
	db       *database.Clients
	producer sarama.SyncProducer
	manager  *resolver.Manager
	store    *storage.JobStore
	cache    *storage.StatusCache
	metrics  *metrics.Collector
	logger   *slog.Logger
}

func NewServer(cfg *config.Config, db *database.Clients, producer sarama.SyncProducer, manager *resolver.Manager, collector *metrics.Collector, log *slog.Logger) *Server {
	if log == nil {
		log = slog.Default()
	}

	app := fiber.New(fiber.Config{
		AppName:      "profile-resolver",
		ReadTimeout:  cfg.Server.RequestTimeout,
		WriteTimeout: cfg.Server.RequestTimeout,
	})

	// Middleware
	app.Use(recover.New())
	app.Use(logger.New(logger.Config{
		Format: "[${time}] ${ip} ${method} ${path} ${status} ${latency}\n",
	}))
	app.Use(limiter.New(limiter.Config{
		Max:        cfg.Server.MaxRequests,
		Expiration: cfg.Server.RequestTimeout,
		Next: func(c *fiber.Ctx) bool {
			return c.Path() == "/health" || c.Path() == "/metrics"
		},
	}))

	server := &Server{
		app:      app,
		cfg:      cfg,
		db:       db,
		producer: producer,
		manager:  manager,
		store:    storage.NewJobStore(db.DB),
		cache:    storage.NewStatusCache(db.Redis, cfg.Jobs.ResultTTL),
		metrics:  collector,
		logger:   log,
	}

	// Routes
	server.setupRoutes()

	return server
}

func (s *Server) setupRoutes() {
	s.app.Get("/health", s.handleHealth)
	if s.metrics != nil {
		s.app.Get("/metrics", adaptor.HTTPHandler(s.metrics.Handler()))
	}

	api := s.app.Group("/api")

	// Public routes
	api.Post("/login", s.handleLogin)

	// Protected routes
	protected := api.Use(jwtware.New(jwtware.Config{
		SigningKey: []byte(s.cfg.JWT.Secret),
		ErrorHandler: func(c *fiber.Ctx, err error) error {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
				"error": "Missing or invalid token",
			})
		},
	}))
	protected.Post("/profiles/resolve", s.handleResolve)
	protected.Post("/profiles/resolve/batch", s.handleResolveBatch)
	protected.Get("/providers", s.handleListProviders)
	protected.Post("/jobs/resolve", s.handleCreateJob)
	protected.Get("/jobs/:id", s.handleGetJob)
	protected.Get("/jobs", s.handleListJobs)
}

func (s *Server) Start() error {
	s.logger.Info("✅ API listening", "addr", s.cfg.Server.Port)
	return s.app.Listen(s.cfg.Server.Port)
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.app.ShutdownWithContext(ctx)
}

func (s *Server) handleHealth(c *fiber.Ctx) error {
	status := fiber.Map{"status": "ok"}
	if err := s.db.DB.PingContext(c.UserContext()); err != nil {
		s.logger.Warn("Health check: database unreachable", "error", err)
		status["status"] = "degraded"
		status["database"] = "unreachable"
	}
	if err := s.db.Redis.Ping(c.UserContext()).Err(); err != nil {
		s.logger.Warn("Health check: redis unreachable", "error", err)
		status["status"] = "degraded"
		status["redis"] = "unreachable"
	}
	if status["status"] != "ok" {
		return c.Status(fiber.StatusServiceUnavailable).JSON(status)
	}
	return c.JSON(status)
}
