package providers

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/tidwall/gjson"

	"github.com/illegalcall/profile-resolver/internal/config"
	"github.com/illegalcall/profile-resolver/internal/models"
	"github.com/illegalcall/profile-resolver/internal/ratelimit"
)

// NanoInfluencer adapts the NanoInfluencer profile API, which serves every
// platform through one endpoint and one response shape.
type NanoInfluencer struct {
	platformSet
	cfg config.ProviderConfig
	up  *upstream
	now func() time.Time
}

func NewNanoInfluencer(cfg config.ProviderConfig, logger *slog.Logger, observer RetryObserver) *NanoInfluencer {
	return &NanoInfluencer{
		platformSet: platformSet{models.PlatformInstagram, models.PlatformTikTok, models.PlatformYouTube},
		cfg:         cfg,
		up:          newUpstream(models.ProviderNanoInfluencer, cfg, nanoInfluencerStatus, logger, observer),
		now:         time.Now,
	}
}

func (p *NanoInfluencer) Name() models.ProviderSource {
	return models.ProviderNanoInfluencer
}

func (p *NanoInfluencer) Configured() bool {
	return p.cfg.APIKey != "" && p.cfg.BaseURL != ""
}

// Limiter exposes the adapter's request budget.
func (p *NanoInfluencer) Limiter() *ratelimit.Limiter {
	return p.up.limiter()
}

func (p *NanoInfluencer) FetchProfile(ctx context.Context, username string, platform models.Platform) (profile *models.Profile, err error) {
	defer func() {
		if r := recover(); r != nil {
			profile, err = nil, newProviderError(p.Name(), CodeFetchError, fmt.Sprintf("panic recovered: %v", r))
		}
	}()

	if !p.Configured() {
		return nil, newProviderError(p.Name(), CodeAPIConfig, "NanoInfluencer API key is not configured")
	}
	if !p.Supports(platform) {
		return nil, newProviderError(p.Name(), CodeUnsupportedPlatform, fmt.Sprintf("platform %q is not supported", platform))
	}
	handle, err := NormalizeUsername(username)
	if err != nil {
		return nil, newProviderError(p.Name(), CodeInvalidInput, err.Error())
	}

	endpoint := fmt.Sprintf("%s/v1/profiles/%s/%s", p.cfg.BaseURL, platform, url.PathEscape(handle))
	header := http.Header{}
	header.Set("X-API-Key", p.cfg.APIKey)

	body, err := p.up.get(ctx, endpoint, header)
	if err != nil {
		return nil, AsProviderError(p.Name(), err)
	}

	profile, err = transformNanoInfluencer(body, platform, handle, p.now())
	if err != nil {
		return nil, AsProviderError(p.Name(), err)
	}
	return profile, nil
}

func nanoInfluencerStatus(status int, body []byte) *ProviderError {
	message := gjson.GetBytes(body, "error.message").String()
	if message == "" {
		message = fmt.Sprintf("NanoInfluencer returned HTTP %d", status)
	}

	pe := &ProviderError{Message: message, ShouldRetry: IsTransientStatus(status)}
	switch {
	case status == http.StatusBadRequest || status == http.StatusUnprocessableEntity:
		pe.Code = CodeInvalidInput
	case status == http.StatusUnauthorized:
		pe.Code = CodeAPIConfig
	case status == http.StatusPaymentRequired:
		// Out of credits; waiting a few seconds will not help.
		pe.Code = CodeRateLimited
	case status == http.StatusForbidden:
		pe.Code = CodePrivateProfile
	case status == http.StatusNotFound:
		pe.Code = CodeUserNotFound
	case status == http.StatusTooManyRequests:
		pe.Code = CodeRateLimited
	default:
		pe.Code = CodeProviderError
	}
	return pe
}

// transformNanoInfluencer is the only place NanoInfluencer fields are read.
func transformNanoInfluencer(raw []byte, platform models.Platform, requested string, fetchedAt time.Time) (*models.Profile, error) {
	if !gjson.ValidBytes(raw) {
		return nil, newProviderError(models.ProviderNanoInfluencer, CodeProviderError, "response is not valid JSON")
	}
	root := gjson.ParseBytes(raw)
	if status := root.Get("status").String(); status != "" && status != "ok" {
		return nil, newProviderError(models.ProviderNanoInfluencer, CodeProviderError,
			fmt.Sprintf("unexpected response status %q", status))
	}
	data := root.Get("data")
	if !data.IsObject() {
		return nil, newProviderError(models.ProviderNanoInfluencer, CodeProviderError, "response has no data object")
	}

	username := stripHandle(data.Get("handle").String())
	if username == "" {
		username = requested
	}
	followers := nonNegative(data.Get("followers").Int())
	bio := data.Get("bio").String()

	var posts []PostStats
	data.Get("recent_posts").ForEach(func(_, post gjson.Result) bool {
		stats := PostStats{
			Likes:    nonNegative(post.Get("likes").Int()),
			Comments: nonNegative(post.Get("comments").Int()),
		}
		if views := post.Get("views"); views.Exists() && views.Type != gjson.Null {
			stats.Views = models.Int64Ptr(nonNegative(views.Int()))
		}
		posts = append(posts, stats)
		return true
	})

	engagement := EngagementRate(posts, followers)
	if er := data.Get("engagement_rate"); er.Type == gjson.Number {
		engagement = roundPercent(er.Float())
	}

	avgLikes := optionalCount(data.Get("avg_likes"))
	if avgLikes == nil {
		avgLikes = averageLikes(posts)
	}
	avgViews := optionalCount(data.Get("avg_views"))
	if avgViews == nil {
		avgViews = averageViews(posts)
	}

	var contacts contactList
	contacts.add("email", data.Get("email").String(), "public")
	contacts.add("phone", data.Get("phone").String(), "public")

	return &models.Profile{
		ID:                    data.Get("user_id").String(),
		Username:              username,
		DisplayName:           strings.TrimSpace(data.Get("full_name").String()),
		ProfileImageURL:       SanitizeImageURL(data.Get("avatar_url").String()),
		FollowerCount:         followers,
		FollowingCount:        optionalCount(data.Get("following")),
		EngagementRatePercent: engagement,
		IsVerified:            data.Get("verified").Bool(),
		AverageLikes:          avgLikes,
		AverageViews:          avgViews,
		ContentCount:          optionalCount(data.Get("posts_count")),
		ContactPoints:         contacts.withBioEmails(bio),
		Biography:             bio,
		DetectedLanguage:      DetectLanguage(bio),
		AccountType:           nanoInfluencerAccountType(data.Get("account_type").String()),
		ProfileURL:            ProfileURL(platform, username),
		Platform:              platform,
		ProviderSource:        models.ProviderNanoInfluencer,
		FetchedAt:             fetchedAt,
	}, nil
}

func nanoInfluencerAccountType(v string) models.AccountType {
	switch strings.ToLower(v) {
	case "business", "creator", "brand":
		return models.AccountBusiness
	case "personal":
		return models.AccountPersonal
	}
	return models.AccountUnknown
}

// optionalCount reads a nullable count; absent and null both mean unknown.
func optionalCount(r gjson.Result) *int64 {
	if !r.Exists() || r.Type == gjson.Null {
		return nil
	}
	return models.Int64Ptr(nonNegative(r.Int()))
}
