package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestLoadConfigDefaults(t *testing.T) {
	cfg := LoadConfig()

	assert.Equal(t, []string{"ensembledata", "nanoinfluencer"}, cfg.Resolver.Priority)
	assert.Equal(t, "profile-resolutions", cfg.Kafka.Topic)
	assert.Equal(t, 30*time.Second, cfg.Providers.NanoInfluencer.Timeout)
	assert.Equal(t, 3, cfg.Providers.EnsembleData.MaxRetries)
	assert.Equal(t, 24*time.Hour, cfg.Jobs.ResultTTL)
}

func TestLoadConfigProviderOverrides(t *testing.T) {
	t.Setenv("NANOINFLUENCER_API_KEY", "nano-key")
	t.Setenv("NANOINFLUENCER_BASE_URL", "http://localhost:9999/")
	t.Setenv("NANOINFLUENCER_TIMEOUT", "5")
	t.Setenv("NANOINFLUENCER_MIN_SPACING_MS", "0")
	t.Setenv("ENSEMBLEDATA_REQUESTS_PER_MINUTE", "10")
	t.Setenv("RESOLVER_PROVIDER_PRIORITY", " NanoInfluencer , ensembledata,")

	cfg := LoadConfig()

	nano := cfg.Providers.NanoInfluencer
	assert.Equal(t, "nano-key", nano.APIKey)
	assert.Equal(t, "http://localhost:9999", nano.BaseURL)
	assert.Equal(t, 5*time.Second, nano.Timeout)
	assert.Equal(t, time.Duration(0), nano.MinSpacing)
	assert.Equal(t, 10, cfg.Providers.EnsembleData.RequestsPerMinute)
	assert.Empty(t, cfg.Providers.EnsembleData.APIKey)
	assert.Equal(t, []string{"nanoinfluencer", "ensembledata"}, cfg.Resolver.Priority)
}

func TestLoadEnvAsIntIgnoresGarbage(t *testing.T) {
	t.Setenv("SERVER_MAX_REQUESTS", "lots")
	assert.Equal(t, 100, LoadConfig().Server.MaxRequests)
}
