package providers

import (
	"fmt"
	"math"
	"net/url"
	"regexp"
	"strings"
	"unicode"

	"github.com/illegalcall/profile-resolver/internal/models"
)

const (
	engagementSampleSize = 12
	maxImageURLLength    = 2048
	maxUsernameLength    = 100
)

var (
	usernamePattern = regexp.MustCompile(`^[A-Za-z0-9._-]+$`)
	emailPattern    = regexp.MustCompile(`[A-Za-z0-9._%+-]+@[A-Za-z0-9.-]+\.[A-Za-z]{2,}`)
)

// Query keys that carry CDN signatures, expiries or cache hints. They change
// on every fetch and can push URLs past column limits.
var volatileImageParams = map[string]bool{
	"oh":                  true,
	"oe":                  true,
	"efg":                 true,
	"ccb":                 true,
	"edm":                 true,
	"stp":                 true,
	"ig_cache_key":        true,
	"x-expires":           true,
	"x-signature":         true,
	"x-signature-expires": true,
}

// NormalizeUsername trims whitespace and leading "@" and validates the handle.
func NormalizeUsername(username string) (string, error) {
	handle := stripHandle(username)
	switch {
	case handle == "":
		return "", fmt.Errorf("username is required")
	case len(handle) > maxUsernameLength:
		return "", fmt.Errorf("username exceeds %d characters", maxUsernameLength)
	case !usernamePattern.MatchString(handle):
		return "", fmt.Errorf("username %q contains invalid characters", handle)
	}
	return handle, nil
}

func stripHandle(s string) string {
	return strings.TrimLeft(strings.TrimSpace(s), "@")
}

// ProfileURL builds the canonical public URL for a handle.
func ProfileURL(platform models.Platform, username string) string {
	handle := url.PathEscape(stripHandle(username))
	switch platform {
	case models.PlatformInstagram:
		return "https://www.instagram.com/" + handle + "/"
	case models.PlatformTikTok:
		return "https://www.tiktok.com/@" + handle
	case models.PlatformYouTube:
		return "https://www.youtube.com/@" + handle
	}
	return ""
}

// SanitizeImageURL strips signing and cache parameters from a CDN image URL.
// Anything that is not an absolute http(s) URL yields "".
func SanitizeImageURL(raw string) string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return ""
	}
	u, err := url.Parse(raw)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return ""
	}

	q := u.Query()
	for key := range q {
		k := strings.ToLower(key)
		if volatileImageParams[k] || strings.HasPrefix(k, "_nc_") {
			q.Del(key)
		}
	}
	u.RawQuery = q.Encode()
	u.Fragment = ""

	out := u.String()
	if len(out) > maxImageURLLength {
		u.RawQuery = ""
		out = u.String()
	}
	return out
}

// DetectLanguage guesses an ISO-639-1 code from the scripts used in text.
// Kana wins outright since Japanese mixes it with Han; otherwise the most
// frequent non-Latin script decides. Latin-only or empty text is "en".
func DetectLanguage(text string) string {
	var arabic, han, kana, hangul, cyrillic int
	for _, r := range text {
		switch {
		case unicode.In(r, unicode.Hiragana, unicode.Katakana):
			kana++
		case unicode.Is(unicode.Han, r):
			han++
		case unicode.Is(unicode.Arabic, r):
			arabic++
		case unicode.Is(unicode.Hangul, r):
			hangul++
		case unicode.Is(unicode.Cyrillic, r):
			cyrillic++
		}
	}
	if kana > 0 {
		return "ja"
	}

	best, lang := 0, "en"
	for _, c := range []struct {
		count int
		lang  string
	}{
		{arabic, "ar"},
		{han, "zh"},
		{hangul, "ko"},
		{cyrillic, "ru"},
	} {
		if c.count > best {
			best, lang = c.count, c.lang
		}
	}
	return lang
}

// PostStats is the per-post engagement an adapter could read.
type PostStats struct {
	Likes    int64
	Comments int64
	Views    *int64
}

func recentPosts(posts []PostStats) []PostStats {
	if len(posts) > engagementSampleSize {
		return posts[:engagementSampleSize]
	}
	return posts
}

// EngagementRate averages likes+comments over the most recent posts and
// expresses it as a percentage of followers, rounded to two decimals.
func EngagementRate(posts []PostStats, followers int64) float64 {
	sample := recentPosts(posts)
	if len(sample) == 0 || followers <= 0 {
		return 0
	}
	var interactions int64
	for _, p := range sample {
		interactions += p.Likes + p.Comments
	}
	return roundPercent(float64(interactions) / float64(len(sample)) / float64(followers) * 100)
}

func roundPercent(v float64) float64 {
	if math.IsNaN(v) || v <= 0 {
		return 0
	}
	if v > 100 {
		return 100
	}
	return math.Round(v*100) / 100
}

// averageLikes returns nil when there are no posts to average.
func averageLikes(posts []PostStats) *int64 {
	sample := recentPosts(posts)
	if len(sample) == 0 {
		return nil
	}
	var total int64
	for _, p := range sample {
		total += p.Likes
	}
	return models.Int64Ptr(total / int64(len(sample)))
}

// averageViews only counts posts that report views at all.
func averageViews(posts []PostStats) *int64 {
	var total, n int64
	for _, p := range recentPosts(posts) {
		if p.Views != nil {
			total += *p.Views
			n++
		}
	}
	if n == 0 {
		return nil
	}
	return models.Int64Ptr(total / n)
}

// ExtractEmails returns the distinct, lower-cased addresses in text, in order.
func ExtractEmails(text string) []string {
	var out []string
	seen := make(map[string]bool)
	for _, m := range emailPattern.FindAllString(text, -1) {
		m = strings.ToLower(strings.TrimRight(m, "."))
		if !seen[m] {
			seen[m] = true
			out = append(out, m)
		}
	}
	return out
}

// contactList accumulates contact points, skipping blanks and duplicates.
// The first point added is primary.
type contactList []models.ContactPoint

func (c *contactList) add(kind, value, subtype string) {
	value = strings.TrimSpace(value)
	if value == "" {
		return
	}
	if kind == "email" {
		value = strings.ToLower(value)
	}
	for _, existing := range *c {
		if existing.Type == kind && existing.Value == value {
			return
		}
	}
	*c = append(*c, models.ContactPoint{
		Type:      kind,
		Value:     value,
		Subtype:   subtype,
		IsPrimary: len(*c) == 0,
	})
}

// withBioEmails appends addresses found in the biography and never returns nil.
func (c contactList) withBioEmails(bio string) []models.ContactPoint {
	for _, email := range ExtractEmails(bio) {
		c.add("email", email, "bio")
	}
	if c == nil {
		return []models.ContactPoint{}
	}
	return c
}

func nonNegative(v int64) int64 {
	if v < 0 {
		return 0
	}
	return v
}
