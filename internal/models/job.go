package models

import "time"

// ResolveJob is an asynchronous resolution request tracked in Postgres.
type ResolveJob struct {
	ID                int        `json:"id" db:"id"`
	RequestID         string     `json:"request_id" db:"request_id"`
	Username          string     `json:"username" db:"username"`
	Platform          string     `json:"platform" db:"platform"`
	PreferredProvider string     `json:"preferred_provider,omitempty" db:"preferred_provider"`
	CallbackURL       string     `json:"callback_url,omitempty" db:"callback_url"`
	Status            string     `json:"status" db:"status"`
	ProviderSource    *string    `json:"provider_source,omitempty" db:"provider_source"`
	FetchedAt         *time.Time `json:"fetched_at,omitempty" db:"fetched_at"`
	ErrorCode         *string    `json:"error_code,omitempty" db:"error_code"`
	ErrorMessage      *string    `json:"error_message,omitempty" db:"error_message"`
	CreatedAt         time.Time  `json:"created_at" db:"created_at"`
	UpdatedAt         time.Time  `json:"updated_at" db:"updated_at"`
}

const (
	StatusPending    = "pending"
	StatusProcessing = "processing"
	StatusFailed     = "failed"
	StatusCompleted  = "completed"
)

// ResolveJobMessage is the Kafka payload handed from the API to the worker.
type ResolveJobMessage struct {
	JobID             int    `json:"job_id"`
	RequestID         string `json:"request_id"`
	Username          string `json:"username"`
	Platform          string `json:"platform"`
	PreferredProvider string `json:"preferred_provider,omitempty"`
	CallbackURL       string `json:"callback_url,omitempty"`
}

// ResolutionAttempt is one provider's contribution to a resolution, kept for audit.
type ResolutionAttempt struct {
	JobID        int       `json:"job_id" db:"job_id"`
	Provider     string    `json:"provider" db:"provider"`
	ErrorCode    *string   `json:"error_code,omitempty" db:"error_code"`
	ErrorMessage *string   `json:"error_message,omitempty" db:"error_message"`
	Attempts     int       `json:"attempts" db:"attempts"`
	DurationMs   int64     `json:"duration_ms" db:"duration_ms"`
	CreatedAt    time.Time `json:"created_at" db:"created_at"`
}
