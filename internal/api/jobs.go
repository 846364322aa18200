package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"

	"github.com/illegalcall/profile-resolver/internal/models"
	"github.com/illegalcall/profile-resolver/internal/providers"
	"github.com/illegalcall/profile-resolver/internal/storage"
	"github.com/illegalcall/profile-resolver/pkg/kafka"
)

const defaultJobListLimit = 50

func validCallbackURL(raw string) bool {
	u, err := url.Parse(raw)
	return err == nil && (u.Scheme == "http" || u.Scheme == "https") && u.Host != ""
}

// internalError answers 500. Outside production the cause is included.
func (s *Server) internalError(c *fiber.Ctx, message string, err error) error {
	if s.cfg.Server.Environment != "production" {
		message = fmt.Sprintf("%s: %v", message, err)
	}
	return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
		"error": message,
	})
}

// handleCreateJob queues a resolution for the worker and returns immediately.
func (s *Server) handleCreateJob(c *fiber.Ctx) error {
	var req models.ResolveRequest
	if err := c.BodyParser(&req); err != nil {
		return invalidInput(c, "Invalid request body")
	}
	username, err := providers.NormalizeUsername(req.Username)
	if err != nil {
		return invalidInput(c, err.Error())
	}
	platform, err := models.ParsePlatform(req.Platform)
	if err != nil {
		return invalidInput(c, err.Error())
	}
	if req.CallbackURL != "" && !validCallbackURL(req.CallbackURL) {
		return invalidInput(c, "callbackUrl must be an absolute http(s) URL")
	}

	ctx := c.UserContext()
	job := &models.ResolveJob{
		RequestID:         c.Get("X-Request-ID", uuid.NewString()),
		Username:          username,
		Platform:          string(platform),
		PreferredProvider: strings.ToLower(req.PreferredProvider),
		CallbackURL:       req.CallbackURL,
	}
	if err := s.store.CreateJob(ctx, job); err != nil {
		s.logger.Error("Failed to create job", "error", err)
		return s.internalError(c, "Failed to create job", err)
	}

	// Set initial status in Redis
	if err := s.cache.SetStatus(ctx, job.ID, models.StatusPending); err != nil {
		s.logger.Error("Failed to set job status", "job_id", job.ID, "error", err)
		return s.internalError(c, "Failed to set job status", err)
	}

	payload, err := json.Marshal(models.ResolveJobMessage{
		JobID:             job.ID,
		RequestID:         job.RequestID,
		Username:          job.Username,
		Platform:          job.Platform,
		PreferredProvider: job.PreferredProvider,
		CallbackURL:       job.CallbackURL,
	})
	if err != nil {
		return s.internalError(c, "Failed to encode job", err)
	}
	if _, _, err := s.producer.SendMessage(kafka.JobMessage(s.cfg.Kafka.Topic, job.ID, payload)); err != nil {
		s.logger.Error("Failed to queue job", "job_id", job.ID, "error", err)
		return s.internalError(c, "Failed to queue job", err)
	}

	s.logger.Info("Resolution job queued", "job_id", job.ID, "request_id", job.RequestID)
	return c.Status(fiber.StatusAccepted).JSON(fiber.Map{
		"job_id":     job.ID,
		"request_id": job.RequestID,
		"status":     job.Status,
	})
}

func (s *Server) handleGetJob(c *fiber.Ctx) error {
	jobID, err := c.ParamsInt("id")
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid job ID",
		})
	}

	ctx := c.UserContext()
	job, err := s.store.GetJob(ctx, jobID)
	if errors.Is(err, storage.ErrJobNotFound) {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"error": "Job not found",
		})
	}
	if err != nil {
		s.logger.Error("Failed to fetch job", "job_id", jobID, "error", err)
		return s.internalError(c, "Failed to fetch job", err)
	}

	// Update status from Redis
	if status, err := s.cache.GetStatus(ctx, job.ID); err == nil {
		job.Status = status
	}

	resp := fiber.Map{"job": job}
	if job.Status == models.StatusCompleted {
		if profile, err := s.cache.GetResult(ctx, job.ID); err == nil {
			resp["profile"] = profile
		}
	}
	if attempts, err := s.store.ListAttempts(ctx, job.ID); err == nil {
		resp["attempts"] = attempts
	} else {
		s.logger.Warn("Failed to fetch attempts", "job_id", job.ID, "error", err)
	}

	return c.JSON(resp)
}

func (s *Server) handleListJobs(c *fiber.Ctx) error {
	limit := c.QueryInt("limit", defaultJobListLimit)
	if limit <= 0 || limit > 500 {
		limit = defaultJobListLimit
	}

	ctx := c.UserContext()
	jobs, err := s.store.ListJobs(ctx, limit)
	if err != nil {
		s.logger.Error("Error fetching jobs", "error", err)
		return s.internalError(c, "Failed to fetch jobs", err)
	}

	// Update statuses from Redis
	for i := range jobs {
		if status, err := s.cache.GetStatus(ctx, jobs[i].ID); err == nil {
			jobs[i].Status = status
		}
	}

	return c.JSON(fiber.Map{"jobs": jobs})
}
