package providers

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/illegalcall/profile-resolver/internal/models"
	"github.com/illegalcall/profile-resolver/internal/ratelimit"
)

// ErrorCode is the provider-independent failure vocabulary.
type ErrorCode string

const (
	CodeInvalidInput        ErrorCode = "INVALID_INPUT"
	CodeUserNotFound        ErrorCode = "USER_NOT_FOUND"
	CodePrivateProfile      ErrorCode = "PRIVATE_PROFILE"
	CodeRateLimited         ErrorCode = "RATE_LIMITED"
	CodeAPIConfig           ErrorCode = "API_CONFIG_ERROR"
	CodeUnsupportedPlatform ErrorCode = "UNSUPPORTED_PLATFORM"
	CodeProviderError       ErrorCode = "PROVIDER_ERROR"
	CodeFetchError          ErrorCode = "FETCH_ERROR"

	// Only the resolver produces these two.
	CodeNoProvidersAvailable ErrorCode = "NO_PROVIDERS_AVAILABLE"
	CodeAllProvidersFailed   ErrorCode = "ALL_PROVIDERS_FAILED"
)

// ProviderError is the only error type that leaves an adapter.
type ProviderError struct {
	Code     ErrorCode
	Message  string
	Provider models.ProviderSource
	// ShouldRetry marks transient failures: rate limiting, 5xx, timeouts.
	ShouldRetry bool
	// StatusCode is the upstream HTTP status, when there was one.
	StatusCode int
	// Attempts is how many requests were dispatched before giving up.
	Attempts int
	Err      error
}

func (e *ProviderError) Error() string {
	if e.Provider == "" {
		return fmt.Sprintf("%s: %s", e.Code, e.Message)
	}
	return fmt.Sprintf("%s: %s: %s", e.Provider, e.Code, e.Message)
}

func (e *ProviderError) Unwrap() error {
	return e.Err
}

func newProviderError(provider models.ProviderSource, code ErrorCode, message string) *ProviderError {
	return &ProviderError{Code: code, Message: message, Provider: provider}
}

// IsTransientStatus reports whether an HTTP status is worth retrying.
func IsTransientStatus(status int) bool {
	switch status {
	case http.StatusTooManyRequests,
		http.StatusInternalServerError,
		http.StatusBadGateway,
		http.StatusServiceUnavailable,
		http.StatusGatewayTimeout:
		return true
	}
	return false
}

// retryTransient is the executor predicate shared by the adapters: the
// per-provider status tables decide ShouldRetry, this only reads it.
func retryTransient(err error) bool {
	var pe *ProviderError
	return errors.As(err, &pe) && pe.ShouldRetry
}

// AsProviderError classifies any error escaping an adapter. Existing
// ProviderErrors keep their code and gain the executor's attempt count;
// everything else becomes a non-retryable FETCH_ERROR.
func AsProviderError(provider models.ProviderSource, err error) *ProviderError {
	if err == nil {
		return nil
	}

	var pe *ProviderError
	if errors.As(err, &pe) {
		out := *pe
		if out.Provider == "" {
			out.Provider = provider
		}
		if attempts := ratelimit.Attempts(err); attempts > 0 {
			out.Attempts = attempts
		}
		return &out
	}

	message := err.Error()
	switch {
	case errors.Is(err, context.Canceled):
		message = "request cancelled"
	case errors.Is(err, context.DeadlineExceeded):
		message = "request deadline exceeded"
	}
	return &ProviderError{
		Code:     CodeFetchError,
		Message:  message,
		Provider: provider,
		Attempts: ratelimit.Attempts(err),
		Err:      err,
	}
}
