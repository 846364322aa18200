// Package storage persists asynchronous resolution jobs in Postgres and
// mirrors their live status and results in Redis.
package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/illegalcall/profile-resolver/internal/models"
)

// ErrJobNotFound is returned when no job has the requested id.
var ErrJobNotFound = errors.New("job not found")

// JobStore is the Postgres record of resolution jobs and their attempts.
type JobStore struct {
	db *sqlx.DB
}

func NewJobStore(db *sqlx.DB) *JobStore {
	return &JobStore{db: db}
}

const jobColumns = `id, request_id, username, platform, preferred_provider, callback_url, status,
	provider_source, fetched_at, error_code, error_message, created_at, updated_at`

// CreateJob inserts a pending job and fills in its id and timestamps.
func (s *JobStore) CreateJob(ctx context.Context, job *models.ResolveJob) error {
	job.Status = models.StatusPending
	err := s.db.QueryRowxContext(ctx,
		`INSERT INTO resolution_jobs (request_id, username, platform, preferred_provider, callback_url, status)
		 VALUES ($1, $2, $3, $4, $5, $6)
		 RETURNING id, created_at, updated_at`,
		job.RequestID, job.Username, job.Platform, job.PreferredProvider, job.CallbackURL, job.Status,
	).Scan(&job.ID, &job.CreatedAt, &job.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to create job: %w", err)
	}
	return nil
}

func (s *JobStore) GetJob(ctx context.Context, id int) (*models.ResolveJob, error) {
	var job models.ResolveJob
	err := s.db.GetContext(ctx, &job, `SELECT `+jobColumns+` FROM resolution_jobs WHERE id = $1`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrJobNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get job %d: %w", id, err)
	}
	return &job, nil
}

// ListJobs returns the most recent jobs first.
func (s *JobStore) ListJobs(ctx context.Context, limit int) ([]models.ResolveJob, error) {
	jobs := []models.ResolveJob{}
	err := s.db.SelectContext(ctx, &jobs,
		`SELECT `+jobColumns+` FROM resolution_jobs ORDER BY created_at DESC LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list jobs: %w", err)
	}
	return jobs, nil
}

func (s *JobStore) MarkProcessing(ctx context.Context, id int) error {
	return s.updateStatus(ctx,
		`UPDATE resolution_jobs SET status = $1, updated_at = NOW() WHERE id = $2`,
		models.StatusProcessing, id)
}

// CompleteJob records which provider answered and when.
func (s *JobStore) CompleteJob(ctx context.Context, id int, provider models.ProviderSource, fetchedAt time.Time) error {
	return s.updateStatus(ctx,
		`UPDATE resolution_jobs
		 SET status = $1, provider_source = $2, fetched_at = $3, error_code = NULL, error_message = NULL, updated_at = NOW()
		 WHERE id = $4`,
		models.StatusCompleted, string(provider), fetchedAt, id)
}

func (s *JobStore) FailJob(ctx context.Context, id int, code, message string) error {
	return s.updateStatus(ctx,
		`UPDATE resolution_jobs SET status = $1, error_code = $2, error_message = $3, updated_at = NOW() WHERE id = $4`,
		models.StatusFailed, code, message, id)
}

func (s *JobStore) updateStatus(ctx context.Context, query string, args ...any) error {
	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("failed to update job: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return ErrJobNotFound
	}
	return nil
}

// RecordAttempts stores every provider attempt of a job in one transaction.
func (s *JobStore) RecordAttempts(ctx context.Context, attempts []models.ResolutionAttempt) error {
	if len(attempts) == 0 {
		return nil
	}

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	for _, a := range attempts {
		_, err := tx.NamedExecContext(ctx,
			`INSERT INTO resolution_attempts (job_id, provider, error_code, error_message, attempts, duration_ms)
			 VALUES (:job_id, :provider, :error_code, :error_message, :attempts, :duration_ms)`, a)
		if err != nil {
			return fmt.Errorf("failed to record attempt for %s: %w", a.Provider, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit attempts: %w", err)
	}
	return nil
}

func (s *JobStore) ListAttempts(ctx context.Context, jobID int) ([]models.ResolutionAttempt, error) {
	attempts := []models.ResolutionAttempt{}
	err := s.db.SelectContext(ctx, &attempts,
		`SELECT job_id, provider, error_code, error_message, attempts, duration_ms, created_at
		 FROM resolution_attempts WHERE job_id = $1 ORDER BY id`, jobID)
	if err != nil {
		return nil, fmt.Errorf("failed to list attempts for job %d: %w", jobID, err)
	}
	return attempts, nil
}
