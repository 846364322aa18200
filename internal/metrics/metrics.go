// Package metrics exposes Prometheus instrumentation for provider calls and
// resolutions.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Resolution outcomes.
const (
	OutcomeResolved     = "resolved"
	OutcomeNoProviders  = "no_providers"
	OutcomeAllFailed    = "all_failed"
	OutcomeInvalidInput = "invalid_input"
)

// Collector owns a private registry so tests and multiple binaries never
// collide on the global one.
type Collector struct {
	registry *prometheus.Registry

	providerRequests *prometheus.CounterVec
	providerRetries  *prometheus.CounterVec
	providerDuration *prometheus.HistogramVec
	resolutions      *prometheus.CounterVec
}

func New() *Collector {
	c := &Collector{
		registry: prometheus.NewRegistry(),
		providerRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "profile_resolver",
			Name:      "provider_requests_total",
			Help:      "Provider fetches by outcome code; code is \"ok\" on success.",
		}, []string{"provider", "code"}),
		providerRetries: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "profile_resolver",
			Name:      "provider_retries_total",
			Help:      "Retries scheduled by provider executors.",
		}, []string{"provider"}),
		providerDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "profile_resolver",
			Name:      "provider_duration_seconds",
			Help:      "Wall time of a provider fetch including limiter waits and retries.",
			Buckets:   []float64{0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60},
		}, []string{"provider"}),
		resolutions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "profile_resolver",
			Name:      "resolutions_total",
			Help:      "Profile resolutions by platform and outcome.",
		}, []string{"platform", "outcome"}),
	}

	c.registry.MustRegister(
		c.providerRequests,
		c.providerRetries,
		c.providerDuration,
		c.resolutions,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return c
}

// ObserveRetry implements providers.RetryObserver.
func (c *Collector) ObserveRetry(provider string) {
	if c == nil {
		return
	}
	c.providerRetries.WithLabelValues(provider).Inc()
}

func (c *Collector) ObserveProviderCall(provider, code string, elapsed time.Duration) {
	if c == nil {
		return
	}
	if code == "" {
		code = "ok"
	}
	c.providerRequests.WithLabelValues(provider, code).Inc()
	c.providerDuration.WithLabelValues(provider).Observe(elapsed.Seconds())
}

func (c *Collector) ObserveResolution(platform, outcome string) {
	if c == nil {
		return
	}
	c.resolutions.WithLabelValues(platform, outcome).Inc()
}

func (c *Collector) Registry() *prometheus.Registry {
	return c.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{Registry: c.registry})
}
