package providers

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/illegalcall/profile-resolver/internal/config"
	"github.com/illegalcall/profile-resolver/internal/models"
)

const nanoInfluencerProfileJSON = `{
  "status": "ok",
  "data": {
    "user_id": "ni-42",
    "handle": "@jdoe",
    "full_name": " Jane Doe ",
    "avatar_url": "https://cdn.example.com/jdoe.jpg?oh=1&oe=2&w=150",
    "followers": 10000,
    "following": 321,
    "posts_count": 87,
    "verified": true,
    "bio": "Food and travel. Contact: Jane@JDoe.com",
    "account_type": "creator",
    "email": "mgmt@agency.com",
    "phone": "",
    "recent_posts": [
      {"likes": 90, "comments": 10, "views": 1000},
      {"likes": 190, "comments": 10, "views": null}
    ]
  }
}`

type retryCounter struct {
	n atomic.Int32
}

func (r *retryCounter) ObserveRetry(string) {
	r.n.Add(1)
}

func testProviderConfig(baseURL string) config.ProviderConfig {
	return config.ProviderConfig{
		APIKey:     "secret-key",
		BaseURL:    baseURL,
		Timeout:    time.Second,
		MaxRetries: 2,
		RetryDelay: time.Millisecond,
	}
}

func TestNanoInfluencerFetchProfile(t *testing.T) {
	var gotPath, gotKey string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotKey = r.Header.Get("X-API-Key")
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(nanoInfluencerProfileJSON))
	}))
	defer srv.Close()

	fixed := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	p := NewNanoInfluencer(testProviderConfig(srv.URL), nil, nil)
	p.now = func() time.Time { return fixed }

	profile, err := p.FetchProfile(context.Background(), "@jdoe", models.PlatformInstagram)
	require.NoError(t, err)

	assert.Equal(t, "/v1/profiles/instagram/jdoe", gotPath)
	assert.Equal(t, "secret-key", gotKey)

	want := &models.Profile{
		ID:                    "ni-42",
		Username:              "jdoe",
		DisplayName:           "Jane Doe",
		ProfileImageURL:       "https://cdn.example.com/jdoe.jpg?w=150",
		FollowerCount:         10000,
		FollowingCount:        models.Int64Ptr(321),
		EngagementRatePercent: 1.5,
		IsVerified:            true,
		AverageLikes:          models.Int64Ptr(140),
		AverageViews:          models.Int64Ptr(1000),
		ContentCount:          models.Int64Ptr(87),
		ContactPoints: []models.ContactPoint{
			{Type: "email", Value: "mgmt@agency.com", Subtype: "public", IsPrimary: true},
			{Type: "email", Value: "jane@jdoe.com", Subtype: "bio"},
		},
		Biography:        "Food and travel. Contact: Jane@JDoe.com",
		DetectedLanguage: "en",
		AccountType:      models.AccountBusiness,
		ProfileURL:       "https://www.instagram.com/jdoe/",
		Platform:         models.PlatformInstagram,
		ProviderSource:   models.ProviderNanoInfluencer,
		FetchedAt:        fixed,
	}
	if diff := cmp.Diff(want, profile); diff != "" {
		t.Errorf("profile mismatch (-want +got):\n%s", diff)
	}
}

func TestTransformNanoInfluencerIsPure(t *testing.T) {
	first, err := transformNanoInfluencer([]byte(nanoInfluencerProfileJSON), models.PlatformTikTok, "jdoe", time.Now())
	require.NoError(t, err)
	second, err := transformNanoInfluencer([]byte(nanoInfluencerProfileJSON), models.PlatformTikTok, "jdoe", time.Now().Add(time.Hour))
	require.NoError(t, err)

	if diff := cmp.Diff(first, second, cmpopts.IgnoreFields(models.Profile{}, "FetchedAt")); diff != "" {
		t.Errorf("transform not deterministic (-first +second):\n%s", diff)
	}
	assert.Equal(t, "https://www.tiktok.com/@jdoe", first.ProfileURL)
}

func TestTransformNanoInfluencerSparseData(t *testing.T) {
	profile, err := transformNanoInfluencer([]byte(`{"status":"ok","data":{"followers":-5}}`), models.PlatformYouTube, "quiet", time.Now())
	require.NoError(t, err)

	assert.Equal(t, "quiet", profile.Username)
	assert.Zero(t, profile.FollowerCount)
	assert.Nil(t, profile.FollowingCount)
	assert.Nil(t, profile.AverageLikes)
	assert.Nil(t, profile.AverageViews)
	assert.Nil(t, profile.ContentCount)
	assert.NotNil(t, profile.ContactPoints)
	assert.Empty(t, profile.ContactPoints)
	assert.Equal(t, models.AccountUnknown, profile.AccountType)
	assert.Equal(t, "https://www.youtube.com/@quiet", profile.ProfileURL)
}

func TestTransformNanoInfluencerPrefersReportedEngagement(t *testing.T) {
	raw := `{"status":"ok","data":{"handle":"x","followers":100,"engagement_rate":3.14159,"avg_likes":7,
		"recent_posts":[{"likes":50,"comments":0}]}}`
	profile, err := transformNanoInfluencer([]byte(raw), models.PlatformInstagram, "x", time.Now())
	require.NoError(t, err)
	assert.Equal(t, 3.14, profile.EngagementRatePercent)
	assert.Equal(t, int64(7), *profile.AverageLikes)
}

func TestTransformNanoInfluencerRejectsBadPayloads(t *testing.T) {
	for name, raw := range map[string]string{
		"not json":     `<html>`,
		"error status": `{"status":"error","data":{}}`,
		"no data":      `{"status":"ok"}`,
	} {
		t.Run(name, func(t *testing.T) {
			_, err := transformNanoInfluencer([]byte(raw), models.PlatformInstagram, "x", time.Now())
			pe := AsProviderError(models.ProviderNanoInfluencer, err)
			require.NotNil(t, pe)
			assert.Equal(t, CodeProviderError, pe.Code)
			assert.False(t, pe.ShouldRetry)
		})
	}
}

func TestNanoInfluencerStatusMapping(t *testing.T) {
	tests := []struct {
		status int
		code   ErrorCode
		retry  bool
	}{
		{http.StatusBadRequest, CodeInvalidInput, false},
		{http.StatusUnauthorized, CodeAPIConfig, false},
		{http.StatusPaymentRequired, CodeRateLimited, false},
		{http.StatusForbidden, CodePrivateProfile, false},
		{http.StatusNotFound, CodeUserNotFound, false},
		{http.StatusTooManyRequests, CodeRateLimited, true},
		{http.StatusInternalServerError, CodeProviderError, true},
		{http.StatusServiceUnavailable, CodeProviderError, true},
		{http.StatusTeapot, CodeProviderError, false},
	}
	for _, tt := range tests {
		pe := nanoInfluencerStatus(tt.status, []byte(`{"status":"error","error":{"message":"nope"}}`))
		assert.Equal(t, tt.code, pe.Code, "status %d", tt.status)
		assert.Equal(t, tt.retry, pe.ShouldRetry, "status %d", tt.status)
		assert.Equal(t, "nope", pe.Message)
	}
}

func TestNanoInfluencerNotFoundIsNotRetried(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusNotFound)
		_, _ = w.Write([]byte(`{"status":"error","error":{"code":"not_found","message":"no such creator"}}`))
	}))
	defer srv.Close()

	p := NewNanoInfluencer(testProviderConfig(srv.URL), nil, nil)
	_, err := p.FetchProfile(context.Background(), "ghost", models.PlatformInstagram)

	var pe *ProviderError
	require.ErrorAs(t, err, &pe)
	assert.Equal(t, CodeUserNotFound, pe.Code)
	assert.Equal(t, models.ProviderNanoInfluencer, pe.Provider)
	assert.Equal(t, http.StatusNotFound, pe.StatusCode)
	assert.Equal(t, 1, pe.Attempts)
	assert.Equal(t, int32(1), calls.Load())
}

func TestNanoInfluencerRetriesServerErrors(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		_, _ = w.Write([]byte(nanoInfluencerProfileJSON))
	}))
	defer srv.Close()

	observer := &retryCounter{}
	p := NewNanoInfluencer(testProviderConfig(srv.URL), nil, observer)
	profile, err := p.FetchProfile(context.Background(), "jdoe", models.PlatformTikTok)

	require.NoError(t, err)
	assert.Equal(t, "jdoe", profile.Username)
	assert.Equal(t, int32(3), calls.Load())
	assert.Equal(t, int32(2), observer.n.Load())
}

func TestNanoInfluencerUnconfiguredMakesNoRequest(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
	}))
	defer srv.Close()

	cfg := testProviderConfig(srv.URL)
	cfg.APIKey = ""
	p := NewNanoInfluencer(cfg, nil, nil)
	assert.False(t, p.Configured())

	_, err := p.FetchProfile(context.Background(), "jdoe", models.PlatformInstagram)
	var pe *ProviderError
	require.ErrorAs(t, err, &pe)
	assert.Equal(t, CodeAPIConfig, pe.Code)
	assert.Zero(t, calls.Load())
}

func TestNanoInfluencerRejectsInvalidUsername(t *testing.T) {
	p := NewNanoInfluencer(testProviderConfig("http://127.0.0.1:1"), nil, nil)
	_, err := p.FetchProfile(context.Background(), "bad name!", models.PlatformInstagram)

	var pe *ProviderError
	require.ErrorAs(t, err, &pe)
	assert.Equal(t, CodeInvalidInput, pe.Code)
	assert.Zero(t, p.Limiter().Snapshot().InWindow)
}

func TestNanoInfluencerCancelledContext(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(nanoInfluencerProfileJSON))
	}))
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	p := NewNanoInfluencer(testProviderConfig(srv.URL), nil, nil)
	_, err := p.FetchProfile(ctx, "jdoe", models.PlatformInstagram)

	var pe *ProviderError
	require.ErrorAs(t, err, &pe)
	assert.Equal(t, CodeFetchError, pe.Code)
	assert.ErrorIs(t, err, context.Canceled)
}
