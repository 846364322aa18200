// Package providers adapts third-party creator-data APIs to the shared
// profile model and error taxonomy.
package providers

import (
	"context"
	"slices"

	"github.com/illegalcall/profile-resolver/internal/models"
)

// Provider is one upstream creator-data source.
type Provider interface {
	Name() models.ProviderSource
	Platforms() []models.Platform
	Supports(platform models.Platform) bool
	// Configured reports whether the adapter has the credentials it needs.
	Configured() bool
	// FetchProfile returns a profile or a *ProviderError.
	FetchProfile(ctx context.Context, username string, platform models.Platform) (*models.Profile, error)
}

// platformSet is embedded by adapters to answer the capability questions.
type platformSet []models.Platform

func (s platformSet) Platforms() []models.Platform {
	return slices.Clone(s)
}

func (s platformSet) Supports(platform models.Platform) bool {
	return slices.Contains(s, platform)
}
