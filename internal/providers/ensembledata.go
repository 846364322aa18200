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

// EnsembleData status codes outside the HTTP registry.
const (
	ensembleUserNotFound    = 463
	ensemblePrivateAccount  = 464
	ensembleInvalidToken    = 491
	ensembleTokenExpired    = 492
	ensembleUnitsExhausted  = 493
	ensembleSubscriptionEnd = 495
)

// EnsembleData adapts the EnsembleData scraping API. Instagram and TikTok
// have separate endpoints with unrelated response shapes.
type EnsembleData struct {
	platformSet
	cfg config.ProviderConfig
	up  *upstream
	now func() time.Time
}

func NewEnsembleData(cfg config.ProviderConfig, logger *slog.Logger, observer RetryObserver) *EnsembleData {
	return &EnsembleData{
		platformSet: platformSet{models.PlatformInstagram, models.PlatformTikTok},
		cfg:         cfg,
		up:          newUpstream(models.ProviderEnsembleData, cfg, ensembleDataStatus, logger, observer),
		now:         time.Now,
	}
}

func (p *EnsembleData) Name() models.ProviderSource {
	return models.ProviderEnsembleData
}

func (p *EnsembleData) Configured() bool {
	return p.cfg.APIKey != "" && p.cfg.BaseURL != ""
}

// Limiter exposes the adapter's request budget.
func (p *EnsembleData) Limiter() *ratelimit.Limiter {
	return p.up.limiter()
}

func (p *EnsembleData) FetchProfile(ctx context.Context, username string, platform models.Platform) (profile *models.Profile, err error) {
	defer func() {
		if r := recover(); r != nil {
			profile, err = nil, newProviderError(p.Name(), CodeFetchError, fmt.Sprintf("panic recovered: %v", r))
		}
	}()

	if !p.Configured() {
		return nil, newProviderError(p.Name(), CodeAPIConfig, "EnsembleData API token is not configured")
	}
	if !p.Supports(platform) {
		return nil, newProviderError(p.Name(), CodeUnsupportedPlatform, fmt.Sprintf("platform %q is not supported", platform))
	}
	handle, err := NormalizeUsername(username)
	if err != nil {
		return nil, newProviderError(p.Name(), CodeInvalidInput, err.Error())
	}

	var path string
	switch platform {
	case models.PlatformInstagram:
		path = "/instagram/user/detailed-info"
	case models.PlatformTikTok:
		path = "/tt/user/info"
	}
	query := url.Values{}
	query.Set("username", handle)
	query.Set("token", p.cfg.APIKey)
	endpoint := p.cfg.BaseURL + path + "?" + query.Encode()

	body, err := p.up.get(ctx, endpoint, nil)
	if err != nil {
		return nil, AsProviderError(p.Name(), err)
	}

	fetchedAt := p.now()
	if platform == models.PlatformTikTok {
		profile, err = transformEnsembleTikTok(body, handle, fetchedAt)
	} else {
		profile, err = transformEnsembleInstagram(body, handle, fetchedAt)
	}
	if err != nil {
		return nil, AsProviderError(p.Name(), err)
	}
	return profile, nil
}

func ensembleDataStatus(status int, body []byte) *ProviderError {
	message := gjson.GetBytes(body, "detail").String()
	if message == "" {
		message = fmt.Sprintf("EnsembleData returned HTTP %d", status)
	}

	pe := &ProviderError{Message: message, ShouldRetry: IsTransientStatus(status)}
	switch status {
	case http.StatusBadRequest, http.StatusUnprocessableEntity:
		pe.Code = CodeInvalidInput
	case http.StatusUnauthorized, ensembleInvalidToken, ensembleTokenExpired:
		pe.Code = CodeAPIConfig
	case http.StatusNotFound, ensembleUserNotFound:
		pe.Code = CodeUserNotFound
	case ensemblePrivateAccount:
		pe.Code = CodePrivateProfile
	case http.StatusTooManyRequests, ensembleUnitsExhausted, ensembleSubscriptionEnd:
		pe.Code = CodeRateLimited
	default:
		pe.Code = CodeProviderError
	}
	return pe
}

func ensembleData(raw []byte) (gjson.Result, error) {
	if !gjson.ValidBytes(raw) {
		return gjson.Result{}, newProviderError(models.ProviderEnsembleData, CodeProviderError, "response is not valid JSON")
	}
	data := gjson.GetBytes(raw, "data")
	if !data.IsObject() {
		return gjson.Result{}, newProviderError(models.ProviderEnsembleData, CodeProviderError, "response has no data object")
	}
	return data, nil
}

func transformEnsembleInstagram(raw []byte, requested string, fetchedAt time.Time) (*models.Profile, error) {
	data, err := ensembleData(raw)
	if err != nil {
		return nil, err
	}

	username := stripHandle(data.Get("username").String())
	if username == "" {
		username = requested
	}
	followers := nonNegative(data.Get("edge_followed_by.count").Int())
	bio := data.Get("biography").String()

	media := data.Get("edge_owner_to_timeline_media")
	var posts []PostStats
	media.Get("edges").ForEach(func(_, edge gjson.Result) bool {
		node := edge.Get("node")
		stats := PostStats{
			Likes:    nonNegative(node.Get("edge_liked_by.count").Int()),
			Comments: nonNegative(node.Get("edge_media_to_comment.count").Int()),
		}
		if views := node.Get("video_view_count"); views.Exists() && views.Type != gjson.Null {
			stats.Views = models.Int64Ptr(nonNegative(views.Int()))
		}
		posts = append(posts, stats)
		return true
	})

	accountType := models.AccountPersonal
	if data.Get("is_business_account").Bool() {
		accountType = models.AccountBusiness
	}

	var contacts contactList
	contacts.add("email", data.Get("business_email").String(), "business")
	contacts.add("phone", data.Get("business_phone_number").String(), "business")
	contacts.add("email", data.Get("public_email").String(), "public")

	image := data.Get("profile_pic_url_hd").String()
	if image == "" {
		image = data.Get("profile_pic_url").String()
	}

	return &models.Profile{
		ID:                    data.Get("pk").String(),
		Username:              username,
		DisplayName:           strings.TrimSpace(data.Get("full_name").String()),
		ProfileImageURL:       SanitizeImageURL(image),
		FollowerCount:         followers,
		FollowingCount:        optionalCount(data.Get("edge_follow.count")),
		EngagementRatePercent: EngagementRate(posts, followers),
		IsVerified:            data.Get("is_verified").Bool(),
		AverageLikes:          averageLikes(posts),
		AverageViews:          averageViews(posts),
		ContentCount:          optionalCount(media.Get("count")),
		ContactPoints:         contacts.withBioEmails(bio),
		Biography:             bio,
		DetectedLanguage:      DetectLanguage(bio),
		AccountType:           accountType,
		ProfileURL:            ProfileURL(models.PlatformInstagram, username),
		Platform:              models.PlatformInstagram,
		ProviderSource:        models.ProviderEnsembleData,
		FetchedAt:             fetchedAt,
	}, nil
}

// transformEnsembleTikTok works from lifetime totals; TikTok's user endpoint
// carries no per-post stats.
func transformEnsembleTikTok(raw []byte, requested string, fetchedAt time.Time) (*models.Profile, error) {
	data, err := ensembleData(raw)
	if err != nil {
		return nil, err
	}
	user, stats := data.Get("user"), data.Get("stats")
	if !user.IsObject() {
		return nil, newProviderError(models.ProviderEnsembleData, CodeProviderError, "response has no user object")
	}

	username := stripHandle(user.Get("uniqueId").String())
	if username == "" {
		username = requested
	}
	followers := nonNegative(stats.Get("followerCount").Int())
	hearts := nonNegative(stats.Get("heartCount").Int())
	videos := optionalCount(stats.Get("videoCount"))
	bio := user.Get("signature").String()

	var engagement float64
	var avgLikes *int64
	if videos != nil && *videos > 0 {
		perVideo := hearts / *videos
		avgLikes = models.Int64Ptr(perVideo)
		if followers > 0 {
			engagement = roundPercent(float64(hearts) / float64(*videos) / float64(followers) * 100)
		}
	}

	accountType := models.AccountPersonal
	if user.Get("commerceUserInfo.commerceUser").Bool() {
		accountType = models.AccountBusiness
	}

	var contacts contactList

	return &models.Profile{
		ID:                    user.Get("id").String(),
		Username:              username,
		DisplayName:           strings.TrimSpace(user.Get("nickname").String()),
		ProfileImageURL:       SanitizeImageURL(user.Get("avatarLarger").String()),
		FollowerCount:         followers,
		FollowingCount:        optionalCount(stats.Get("followingCount")),
		EngagementRatePercent: engagement,
		IsVerified:            user.Get("verified").Bool(),
		AverageLikes:          avgLikes,
		ContentCount:          videos,
		ContactPoints:         contacts.withBioEmails(bio),
		Biography:             bio,
		DetectedLanguage:      DetectLanguage(bio),
		AccountType:           accountType,
		ProfileURL:            ProfileURL(models.PlatformTikTok, username),
		Platform:              models.PlatformTikTok,
		ProviderSource:        models.ProviderEnsembleData,
		FetchedAt:             fetchedAt,
	}, nil
}
