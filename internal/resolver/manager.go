// Package resolver turns a (username, platform) pair into a profile by
// walking the capable providers in priority order until one answers.
package resolver

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/illegalcall/profile-resolver/internal/config"
	"github.com/illegalcall/profile-resolver/internal/metrics"
	"github.com/illegalcall/profile-resolver/internal/models"
	"github.com/illegalcall/profile-resolver/internal/providers"
)

// Request is one resolution.
type Request struct {
	// RequestID correlates log lines; one is generated when empty.
	RequestID string
	Username  string
	Platform  models.Platform
	// Preferred is tried first when it supports Platform. Unknown names are ignored.
	Preferred models.ProviderSource
}

// Attempt records one provider's turn in a resolution.
type Attempt struct {
	Provider models.ProviderSource
	Duration time.Duration
	// Err is nil for the attempt that succeeded.
	Err *providers.ProviderError
}

// Result is a successful resolution with the attempts that led to it.
type Result struct {
	Profile  *models.Profile
	Attempts []Attempt
}

// ResolutionError is the terminal failure of a resolution. Attempts is the
// per-provider log, timings included; it is empty when nothing was tried.
type ResolutionError struct {
	Code     providers.ErrorCode
	Username string
	Platform models.Platform
	Errors   []*providers.ProviderError
	Attempts []Attempt
}

func (e *ResolutionError) Error() string {
	var b strings.Builder
	switch e.Code {
	case providers.CodeNoProvidersAvailable:
		fmt.Fprintf(&b, "%s: no provider available for platform %s", e.Code, e.Platform)
	default:
		fmt.Fprintf(&b, "%s: could not resolve %s profile %q", e.Code, e.Platform, e.Username)
	}
	for i, pe := range e.Errors {
		if i == 0 {
			b.WriteString(": ")
		} else {
			b.WriteString("; ")
		}
		b.WriteString(pe.Error())
	}
	return b.String()
}

func (e *ResolutionError) Unwrap() []error {
	errs := make([]error, len(e.Errors))
	for i, pe := range e.Errors {
		errs[i] = pe
	}
	return errs
}

// AllCodes reports whether every sub-error carries code. It is false when
// there are no sub-errors.
func (e *ResolutionError) AllCodes(code providers.ErrorCode) bool {
	if len(e.Errors) == 0 {
		return false
	}
	for _, pe := range e.Errors {
		if pe.Code != code {
			return false
		}
	}
	return true
}

// Manager sequences providers. It keeps no state between calls; rate limit
// state lives in each provider.
type Manager struct {
	providers []providers.Provider
	logger    *slog.Logger
	metrics   *metrics.Collector
}

type Option func(*Manager)

func WithLogger(logger *slog.Logger) Option {
	return func(m *Manager) {
		if logger != nil {
			m.logger = logger
		}
	}
}

func WithMetrics(c *metrics.Collector) Option {
	return func(m *Manager) {
		m.metrics = c
	}
}

// WithPriority sets the default order. Providers not named keep their
// registration order after the named ones.
func WithPriority(order []models.ProviderSource) Option {
	return func(m *Manager) {
		rank := func(p providers.Provider) int {
			if i := slices.Index(order, p.Name()); i >= 0 {
				return i
			}
			return len(order)
		}
		slices.SortStableFunc(m.providers, func(a, b providers.Provider) int {
			return rank(a) - rank(b)
		})
	}
}

func New(list []providers.Provider, opts ...Option) *Manager {
	m := &Manager{
		providers: slices.Clone(list),
		logger:    slog.Default(),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// NewFromConfig builds both adapters from configuration. Adapters without
// credentials are still registered and report themselves unconfigured.
func NewFromConfig(cfg *config.Config, logger *slog.Logger, collector *metrics.Collector) *Manager {
	if logger == nil {
		logger = slog.Default()
	}
	var observer providers.RetryObserver
	if collector != nil {
		observer = collector
	}

	list := []providers.Provider{
		providers.NewEnsembleData(cfg.Providers.EnsembleData, logger, observer),
		providers.NewNanoInfluencer(cfg.Providers.NanoInfluencer, logger, observer),
	}
	for _, p := range list {
		if !p.Configured() {
			logger.Warn("⚠️ Provider not configured", "provider", p.Name())
		}
	}

	priority := make([]models.ProviderSource, 0, len(cfg.Resolver.Priority))
	for _, name := range cfg.Resolver.Priority {
		priority = append(priority, models.ProviderSource(name))
	}
	return New(list, WithLogger(logger), WithMetrics(collector), WithPriority(priority))
}

// Providers returns every registered provider in default order.
func (m *Manager) Providers() []providers.Provider {
	return slices.Clone(m.providers)
}

// Candidates returns the providers able to serve platform, preferred first.
func (m *Manager) Candidates(platform models.Platform, preferred models.ProviderSource) []providers.Provider {
	var out []providers.Provider
	for _, p := range m.providers {
		if p.Supports(platform) && p.Name() == preferred {
			out = append(out, p)
		}
	}
	for _, p := range m.providers {
		if p.Supports(platform) && p.Name() != preferred {
			out = append(out, p)
		}
	}
	return out
}

// Resolve returns the first profile any candidate produces, or a
// *ResolutionError.
func (m *Manager) Resolve(ctx context.Context, username string, platform models.Platform, preferred models.ProviderSource) (*models.Profile, error) {
	res, err := m.ResolveDetailed(ctx, Request{Username: username, Platform: platform, Preferred: preferred})
	if err != nil {
		return nil, err
	}
	return res.Profile, nil
}

// ResolveDetailed is Resolve with the per-provider attempt log. Candidates
// are tried strictly one after another; any failure moves on to the next.
func (m *Manager) ResolveDetailed(ctx context.Context, req Request) (*Result, error) {
	if req.RequestID == "" {
		req.RequestID = uuid.NewString()
	}
	logger := m.logger.With("request_id", req.RequestID, "username", req.Username, "platform", req.Platform)

	candidates := m.Candidates(req.Platform, req.Preferred)
	if !slices.ContainsFunc(candidates, providers.Provider.Configured) {
		resErr := &ResolutionError{
			Code:     providers.CodeNoProvidersAvailable,
			Username: req.Username,
			Platform: req.Platform,
		}
		for _, p := range candidates {
			resErr.Errors = append(resErr.Errors, &providers.ProviderError{
				Code:     providers.CodeAPIConfig,
				Message:  "provider is not configured",
				Provider: p.Name(),
			})
		}
		logger.Warn("No provider available", "candidates", len(candidates))
		m.metrics.ObserveResolution(string(req.Platform), metrics.OutcomeNoProviders)
		return nil, resErr
	}

	result := &Result{}
	var failures []*providers.ProviderError
	for _, p := range candidates {
		if err := ctx.Err(); err != nil {
			// Unreached candidates are reported as cancelled.
			pe := providers.AsProviderError(p.Name(), err)
			failures = append(failures, pe)
			result.Attempts = append(result.Attempts, Attempt{Provider: p.Name(), Err: pe})
			continue
		}

		start := time.Now()
		profile, err := p.FetchProfile(ctx, req.Username, req.Platform)
		elapsed := time.Since(start)

		if err == nil && profile == nil {
			err = &providers.ProviderError{Code: providers.CodeProviderError, Message: "provider returned no profile"}
		}
		if err != nil {
			pe := providers.AsProviderError(p.Name(), err)
			failures = append(failures, pe)
			result.Attempts = append(result.Attempts, Attempt{Provider: p.Name(), Duration: elapsed, Err: pe})
			m.metrics.ObserveProviderCall(string(p.Name()), string(pe.Code), elapsed)
			logger.Warn("Provider failed, trying next", "provider", p.Name(), "code", pe.Code, "attempts", pe.Attempts, "error", pe.Message)
			continue
		}

		result.Profile = profile
		result.Attempts = append(result.Attempts, Attempt{Provider: p.Name(), Duration: elapsed})
		m.metrics.ObserveProviderCall(string(p.Name()), "", elapsed)
		m.metrics.ObserveResolution(string(req.Platform), metrics.OutcomeResolved)
		logger.Info("Profile resolved", "provider", p.Name(), "duration", elapsed)
		return result, nil
	}

	m.metrics.ObserveResolution(string(req.Platform), metrics.OutcomeAllFailed)
	logger.Error("All providers failed", "tried", len(failures))
	return nil, &ResolutionError{
		Code:     providers.CodeAllProvidersFailed,
		Username: req.Username,
		Platform: req.Platform,
		Errors:   failures,
		Attempts: result.Attempts,
	}
}

// AsResolutionError returns the *ResolutionError in err's chain, if any.
func AsResolutionError(err error) (*ResolutionError, bool) {
	var resErr *ResolutionError
	ok := errors.As(err, &resErr)
	return resErr, ok
}
