package providers

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"time"

	"github.com/illegalcall/profile-resolver/internal/config"
	"github.com/illegalcall/profile-resolver/internal/models"
	"github.com/illegalcall/profile-resolver/internal/ratelimit"
)

const maxResponseSize = 4 << 20 // 4MB

// statusTable maps a non-2xx upstream response to the shared taxonomy.
type statusTable func(status int, body []byte) *ProviderError

// RetryObserver is told about every retry an adapter schedules.
type RetryObserver interface {
	ObserveRetry(provider string)
}

// upstream is the HTTP plumbing both adapters share: one executor, and
// therefore one request budget, per provider.
type upstream struct {
	name     models.ProviderSource
	cfg      config.ProviderConfig
	client   *http.Client
	exec     *ratelimit.Executor
	classify statusTable
	logger   *slog.Logger
}

func newUpstream(name models.ProviderSource, cfg config.ProviderConfig, classify statusTable, logger *slog.Logger, observer RetryObserver) *upstream {
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("provider", string(name))

	policy := ratelimit.Policy{
		RequestsPerWindow: cfg.RequestsPerMinute,
		Window:            time.Minute,
		MinSpacing:        cfg.MinSpacing,
		MaxRetries:        cfg.MaxRetries,
		BaseRetryDelay:    cfg.RetryDelay,
		ShouldRetry:       retryTransient,
		OnRetry: func(attempt int, err error, delay time.Duration) {
			logger.Warn("Retrying provider request", "attempt", attempt, "delay", delay, "error", err)
			if observer != nil {
				observer.ObserveRetry(string(name))
			}
		},
	}

	return &upstream{
		name:     name,
		cfg:      cfg,
		client:   &http.Client{},
		exec:     ratelimit.NewExecutor(string(name), policy),
		classify: classify,
		logger:   logger,
	}
}

// get issues a GET through the executor and returns the body of a 2xx reply.
// Each attempt gets its own timeout.
func (u *upstream) get(ctx context.Context, endpoint string, header http.Header) ([]byte, error) {
	return ratelimit.Do(ctx, u.exec, func(ctx context.Context) ([]byte, error) {
		attemptCtx := ctx
		if u.cfg.Timeout > 0 {
			var cancel context.CancelFunc
			attemptCtx, cancel = context.WithTimeout(ctx, u.cfg.Timeout)
			defer cancel()
		}

		req, err := http.NewRequestWithContext(attemptCtx, http.MethodGet, endpoint, nil)
		if err != nil {
			return nil, &ProviderError{Code: CodeFetchError, Message: "failed to create request", Provider: u.name, Err: err}
		}
		for key, values := range header {
			req.Header[key] = values
		}
		req.Header.Set("Accept", "application/json")

		resp, err := u.client.Do(req)
		if err != nil {
			return nil, u.transportError(ctx, err)
		}
		defer resp.Body.Close()

		body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
		if err != nil {
			return nil, u.transportError(ctx, err)
		}

		if resp.StatusCode < 200 || resp.StatusCode > 299 {
			pe := u.classify(resp.StatusCode, body)
			pe.Provider = u.name
			pe.StatusCode = resp.StatusCode
			u.logger.Info("Provider returned error status", "status", resp.StatusCode, "code", pe.Code)
			return nil, pe
		}
		return body, nil
	})
}

// transportError turns a client-side failure into a ProviderError. Timeouts
// of a single attempt are transient; a cancelled caller is not.
func (u *upstream) transportError(parent context.Context, err error) *ProviderError {
	// url.Error embeds the request URL, which can carry credentials.
	var urlErr *url.Error
	if errors.As(err, &urlErr) {
		err = urlErr.Err
	}

	if parent.Err() != nil {
		return &ProviderError{Code: CodeFetchError, Message: "request cancelled", Provider: u.name, Err: parent.Err()}
	}

	var netErr net.Error
	if errors.Is(err, context.DeadlineExceeded) || (errors.As(err, &netErr) && netErr.Timeout()) {
		return &ProviderError{
			Code:        CodeFetchError,
			Message:     fmt.Sprintf("request timed out after %s", u.cfg.Timeout),
			Provider:    u.name,
			ShouldRetry: true,
			Err:         err,
		}
	}
	return &ProviderError{Code: CodeFetchError, Message: fmt.Sprintf("request failed: %v", err), Provider: u.name, Err: err}
}

// limiter exposes the provider's budget state.
func (u *upstream) limiter() *ratelimit.Limiter {
	return u.exec.Limiter()
}
