package resolver

import (
	"errors"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/illegalcall/profile-resolver/internal/models"
	"github.com/illegalcall/profile-resolver/internal/providers"
)

func TestDescribe(t *testing.T) {
	failed := func(codes ...providers.ErrorCode) error {
		resErr := &ResolutionError{Code: providers.CodeAllProvidersFailed, Username: "jdoe", Platform: "instagram"}
		for i, code := range codes {
			resErr.Errors = append(resErr.Errors, &providers.ProviderError{
				Code:     code,
				Message:  "m",
				Provider: []models.ProviderSource{providerA, providerB}[i],
				Attempts: 1,
			})
		}
		return resErr
	}

	tests := []struct {
		name   string
		err    error
		status int
		code   string
	}{
		{"no providers", &ResolutionError{Code: providers.CodeNoProvidersAvailable}, http.StatusUnprocessableEntity, "NO_PROVIDERS_AVAILABLE"},
		{"all rate limited", failed(providers.CodeRateLimited, providers.CodeRateLimited), http.StatusTooManyRequests, "ALL_PROVIDERS_FAILED"},
		{"all not found", failed(providers.CodeUserNotFound, providers.CodeUserNotFound), http.StatusNotFound, "ALL_PROVIDERS_FAILED"},
		{"all invalid input", failed(providers.CodeInvalidInput, providers.CodeInvalidInput), http.StatusBadRequest, "ALL_PROVIDERS_FAILED"},
		{"mixed", failed(providers.CodeUserNotFound, providers.CodeProviderError), http.StatusBadGateway, "ALL_PROVIDERS_FAILED"},
		{"invalid input", &providers.ProviderError{Code: providers.CodeInvalidInput, Message: "bad"}, http.StatusBadRequest, "INVALID_INPUT"},
		{"unknown", errors.New("boom"), http.StatusInternalServerError, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			status, body := Describe(tt.err)
			assert.Equal(t, tt.status, status)
			assert.Equal(t, tt.code, body.Code)
			assert.NotEmpty(t, body.Error)
		})
	}

	_, body := Describe(failed(providers.CodeUserNotFound, providers.CodeRateLimited))
	assert.Len(t, body.ProviderErrors, 2)
	assert.Equal(t, "provider-a", body.ProviderErrors[0].Provider)
	assert.Equal(t, "RATE_LIMITED", body.ProviderErrors[1].Code)
}

func TestAttemptBodies(t *testing.T) {
	bodies := AttemptBodies([]Attempt{
		{Provider: providerA, Duration: 1500 * time.Millisecond, Err: &providers.ProviderError{Code: providers.CodeUserNotFound, Provider: providerA}},
		{Provider: providerB, Duration: 20 * time.Millisecond},
	})
	assert.Len(t, bodies, 2)
	assert.Equal(t, int64(1500), bodies[0].DurationMs)
	assert.Equal(t, "USER_NOT_FOUND", bodies[0].Error.Code)
	assert.Nil(t, bodies[1].Error)
	assert.NotNil(t, AttemptBodies(nil))
}
