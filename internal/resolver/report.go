package resolver

import (
	"errors"
	"net/http"

	"github.com/illegalcall/profile-resolver/internal/models"
	"github.com/illegalcall/profile-resolver/internal/providers"
)

// Describe maps a resolution failure to an HTTP status and its wire body.
func Describe(err error) (int, models.ErrorResponse) {
	var resErr *ResolutionError
	if errors.As(err, &resErr) {
		body := models.ErrorResponse{
			Error: resErr.Error(),
			Code:  string(resErr.Code),
		}
		for _, pe := range resErr.Errors {
			body.ProviderErrors = append(body.ProviderErrors, providerErrorBody(pe))
		}

		switch {
		case resErr.Code == providers.CodeNoProvidersAvailable:
			return http.StatusUnprocessableEntity, body
		case resErr.AllCodes(providers.CodeInvalidInput):
			return http.StatusBadRequest, body
		case resErr.AllCodes(providers.CodeRateLimited):
			return http.StatusTooManyRequests, body
		case resErr.AllCodes(providers.CodeUserNotFound):
			return http.StatusNotFound, body
		default:
			return http.StatusBadGateway, body
		}
	}

	var pe *providers.ProviderError
	if errors.As(err, &pe) && pe.Code == providers.CodeInvalidInput {
		return http.StatusBadRequest, models.ErrorResponse{Error: pe.Message, Code: string(pe.Code)}
	}
	return http.StatusInternalServerError, models.ErrorResponse{Error: err.Error()}
}

// AttemptBodies renders the attempt log for responses and webhooks.
func AttemptBodies(attempts []Attempt) []models.AttemptBody {
	out := make([]models.AttemptBody, 0, len(attempts))
	for _, a := range attempts {
		body := models.AttemptBody{
			Provider:   string(a.Provider),
			DurationMs: a.Duration.Milliseconds(),
		}
		if a.Err != nil {
			eb := providerErrorBody(a.Err)
			body.Error = &eb
		}
		out = append(out, body)
	}
	return out
}

func providerErrorBody(pe *providers.ProviderError) models.ProviderErrorBody {
	return models.ProviderErrorBody{
		Provider: string(pe.Provider),
		Code:     string(pe.Code),
		Message:  pe.Message,
		Attempts: pe.Attempts,
	}
}
