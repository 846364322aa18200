package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/IBM/sarama"

	"github.com/illegalcall/profile-resolver/internal/config"
	"github.com/illegalcall/profile-resolver/internal/models"
	"github.com/illegalcall/profile-resolver/internal/resolver"
	"github.com/illegalcall/profile-resolver/internal/storage"
)

// Resolver is the part of resolver.Manager the worker needs.
type Resolver interface {
	ResolveDetailed(ctx context.Context, req resolver.Request) (*resolver.Result, error)
}

type Worker struct {
	cfg      *config.Config
	store    *storage.JobStore
	cache    *storage.StatusCache
	consumer sarama.ConsumerGroup
	resolver Resolver
	webhooks WebhookClient
	logger   *slog.Logger
	ready    chan bool
}

func NewWorker(cfg *config.Config, store *storage.JobStore, cache *storage.StatusCache, consumer sarama.ConsumerGroup, r Resolver, webhooks WebhookClient, logger *slog.Logger) *Worker {
	if logger == nil {
		logger = slog.Default()
	}
	logger.Info("Initializing new Worker")
	return &Worker{
		cfg:      cfg,
		store:    store,
		cache:    cache,
		consumer: consumer,
		resolver: r,
		webhooks: webhooks,
		logger:   logger,
		ready:    make(chan bool),
	}
}

func (w *Worker) Start(ctx context.Context) error {
	topics := []string{w.cfg.Kafka.Topic}
	w.logger.Info("Starting worker", "topics", topics)

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Start error logging for consumer errors
	go func() {
		for err := range w.consumer.Errors() {
			w.logger.Error("Kafka consumer error received", "error", err)
		}
	}()

	// Start consuming messages
	go func() {
		for {
			if err := w.consumer.Consume(ctx, topics, w); err != nil {
				w.logger.Error("Error from consumer.Consume", "error", err)
			}
			if ctx.Err() != nil {
				w.logger.Info("Context done, exiting consumer loop", "error", ctx.Err())
				return
			}
		}
	}()

	select {
	case <-w.ready:
		w.logger.Info("✅ Worker setup complete; consumer ready")
	case <-ctx.Done():
	}

	<-ctx.Done()
	w.logger.Info("Worker shutting down gracefully")
	return nil
}

// Setup is run at the beginning of a new session, before ConsumeClaim.
func (w *Worker) Setup(sarama.ConsumerGroupSession) error {
	select {
	case <-w.ready:
	default:
		close(w.ready)
	}
	return nil
}

// Cleanup is run at the end of a session, once all ConsumeClaim goroutines have exited.
func (w *Worker) Cleanup(sarama.ConsumerGroupSession) error {
	return nil
}

// ConsumeClaim must start a consumer loop of ConsumerGroupClaim's Messages().
func (w *Worker) ConsumeClaim(session sarama.ConsumerGroupSession, claim sarama.ConsumerGroupClaim) error {
	for message := range claim.Messages() {
		if err := w.processJob(session.Context(), message); err != nil {
			w.logger.Error("Failed to process job", "offset", message.Offset, "error", err)
		}
		session.MarkMessage(message, "")
	}
	return nil
}

// processJob runs one resolution for a queued job. A failed resolution is a
// job outcome, not a processing error; only bookkeeping failures are returned.
func (w *Worker) processJob(ctx context.Context, msg *sarama.ConsumerMessage) error {
	var job models.ResolveJobMessage
	if err := json.Unmarshal(msg.Value, &job); err != nil {
		return fmt.Errorf("failed to parse job: %w", err)
	}
	logger := w.logger.With("job_id", job.JobID, "request_id", job.RequestID)

	platform, err := models.ParsePlatform(job.Platform)
	if err != nil {
		return w.fail(ctx, job, err.Error(), "INVALID_INPUT", nil, nil)
	}

	if err := w.store.MarkProcessing(ctx, job.JobID); err != nil {
		return fmt.Errorf("failed to mark job processing: %w", err)
	}
	if err := w.cache.SetStatus(ctx, job.JobID, models.StatusProcessing); err != nil {
		logger.Warn("Failed to cache job status", "error", err)
	}

	res, resolveErr := w.resolver.ResolveDetailed(ctx, resolver.Request{
		RequestID: job.RequestID,
		Username:  job.Username,
		Platform:  platform,
		Preferred: models.ProviderSource(job.PreferredProvider),
	})

	var attempts []resolver.Attempt
	if res != nil {
		attempts = res.Attempts
	} else if resErr, ok := resolver.AsResolutionError(resolveErr); ok {
		attempts = resErr.Attempts
	}
	if err := w.store.RecordAttempts(ctx, attemptRows(job.JobID, attempts)); err != nil {
		logger.Warn("Failed to record attempts", "error", err)
	}

	if resolveErr != nil {
		_, body := resolver.Describe(resolveErr)
		logger.Info("Resolution failed", "code", body.Code)
		return w.fail(ctx, job, body.Error, body.Code, &body, attempts)
	}

	profile := res.Profile
	if err := w.store.CompleteJob(ctx, job.JobID, profile.ProviderSource, profile.FetchedAt); err != nil {
		return fmt.Errorf("failed to complete job: %w", err)
	}
	if err := w.cache.SetResult(ctx, job.JobID, profile); err != nil {
		logger.Warn("Failed to cache job result", "error", err)
	}
	logger.Info("Job completed", "provider", profile.ProviderSource)

	w.notify(ctx, job, WebhookPayload{
		JobID:     job.JobID,
		RequestID: job.RequestID,
		Status:    models.StatusCompleted,
		Profile:   profile,
		Attempts:  resolver.AttemptBodies(attempts),
	})
	return nil
}

func (w *Worker) fail(ctx context.Context, job models.ResolveJobMessage, message, code string, body *models.ErrorResponse, attempts []resolver.Attempt) error {
	if err := w.store.FailJob(ctx, job.JobID, code, message); err != nil {
		return fmt.Errorf("failed to mark job failed: %w", err)
	}
	if err := w.cache.SetStatus(ctx, job.JobID, models.StatusFailed); err != nil {
		w.logger.Warn("Failed to cache job status", "job_id", job.JobID, "error", err)
	}

	if body == nil {
		body = &models.ErrorResponse{Error: message, Code: code}
	}
	w.notify(ctx, job, WebhookPayload{
		JobID:     job.JobID,
		RequestID: job.RequestID,
		Status:    models.StatusFailed,
		Attempts:  resolver.AttemptBodies(attempts),
		Error:     body,
	})
	return nil
}

func (w *Worker) notify(ctx context.Context, job models.ResolveJobMessage, payload WebhookPayload) {
	if job.CallbackURL == "" || w.webhooks == nil {
		return
	}
	if err := w.webhooks.Send(ctx, job.CallbackURL, payload); err != nil {
		if errors.Is(err, context.Canceled) {
			return
		}
		w.logger.Warn("Webhook delivery failed", "job_id", job.JobID, "error", err)
	}
}

func attemptRows(jobID int, attempts []resolver.Attempt) []models.ResolutionAttempt {
	rows := make([]models.ResolutionAttempt, 0, len(attempts))
	for _, a := range attempts {
		row := models.ResolutionAttempt{
			JobID:      jobID,
			Provider:   string(a.Provider),
			Attempts:   1,
			DurationMs: a.Duration.Milliseconds(),
		}
		if a.Err != nil {
			code, msg := string(a.Err.Code), a.Err.Message
			row.ErrorCode, row.ErrorMessage = &code, &msg
			row.Attempts = a.Err.Attempts
		}
		rows = append(rows, row)
	}
	return rows
}
