package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/illegalcall/profile-resolver/internal/models"
)

// ErrCacheMiss is returned when Redis has no entry for a job.
var ErrCacheMiss = errors.New("cache miss")

// StatusCache keeps the live status of each job and, once it finishes, the
// resolved profile. Entries expire after ttl; Postgres stays authoritative.
type StatusCache struct {
	client *redis.Client
	ttl    time.Duration
}

func NewStatusCache(client *redis.Client, ttl time.Duration) *StatusCache {
	return &StatusCache{client: client, ttl: ttl}
}

func statusKey(id int) string {
	return fmt.Sprintf("job:%d", id)
}

func resultKey(id int) string {
	return fmt.Sprintf("job:%d:result", id)
}

func (c *StatusCache) SetStatus(ctx context.Context, id int, status string) error {
	if err := c.client.Set(ctx, statusKey(id), status, c.ttl).Err(); err != nil {
		return fmt.Errorf("failed to set job status: %w", err)
	}
	return nil
}

func (c *StatusCache) GetStatus(ctx context.Context, id int) (string, error) {
	status, err := c.client.Get(ctx, statusKey(id)).Result()
	if errors.Is(err, redis.Nil) {
		return "", ErrCacheMiss
	}
	if err != nil {
		return "", fmt.Errorf("failed to get job status: %w", err)
	}
	return status, nil
}

// SetResult stores the profile and flips the status to completed in one round trip.
func (c *StatusCache) SetResult(ctx context.Context, id int, profile *models.Profile) error {
	payload, err := json.Marshal(profile)
	if err != nil {
		return fmt.Errorf("failed to marshal profile: %w", err)
	}

	_, err = c.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, resultKey(id), payload, c.ttl)
		pipe.Set(ctx, statusKey(id), models.StatusCompleted, c.ttl)
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to store job result: %w", err)
	}
	return nil
}

func (c *StatusCache) GetResult(ctx context.Context, id int) (*models.Profile, error) {
	payload, err := c.client.Get(ctx, resultKey(id)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrCacheMiss
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get job result: %w", err)
	}

	var profile models.Profile
	if err := json.Unmarshal(payload, &profile); err != nil {
		return nil, fmt.Errorf("failed to unmarshal job result: %w", err)
	}
	return &profile, nil
}
