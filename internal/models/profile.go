package models

import (
	"fmt"
	"strings"
	"time"
)

// Platform is a social platform a creator account lives on.
type Platform string

const (
	PlatformInstagram Platform = "instagram"
	PlatformTikTok    Platform = "tiktok"
	PlatformYouTube   Platform = "youtube"
)

// Platforms lists every platform the service accepts.
var Platforms = []Platform{PlatformInstagram, PlatformTikTok, PlatformYouTube}

// ParsePlatform lower-cases s and checks it against the supported platforms.
func ParsePlatform(s string) (Platform, error) {
	p := Platform(strings.ToLower(strings.TrimSpace(s)))
	for _, known := range Platforms {
		if p == known {
			return p, nil
		}
	}
	return "", fmt.Errorf("unsupported platform %q", s)
}

// ProviderSource names the adapter that produced a profile.
type ProviderSource string

const (
	ProviderNanoInfluencer ProviderSource = "nanoinfluencer"
	ProviderEnsembleData   ProviderSource = "ensembledata"
)

// AccountType classifies a creator account.
type AccountType string

const (
	AccountPersonal AccountType = "personal"
	AccountBusiness AccountType = "business"
	AccountUnknown  AccountType = "unknown"
)

// ContactPoint is one way of reaching a creator.
type ContactPoint struct {
	// Type is email or phone.
	Type  string `json:"type"`
	Value string `json:"value"`

	// Subtype is business, public or bio.
	Subtype   string `json:"subtype"`
	IsPrimary bool   `json:"isPrimary"`
}

// Profile is the provider-agnostic creator profile returned by a resolution.
// Fields a provider cannot fill carry their zero value or nil; none are omitted.
type Profile struct {
	ID                    string         `json:"id"`
	Username              string         `json:"username"`
	DisplayName           string         `json:"displayName"`
	ProfileImageURL       string         `json:"profileImageUrl"`
	FollowerCount         int64          `json:"followerCount"`
	FollowingCount        *int64         `json:"followingCount"`
	EngagementRatePercent float64        `json:"engagementRatePercent"`
	IsVerified            bool           `json:"isVerified"`
	AverageLikes          *int64         `json:"averageLikes"`
	AverageViews          *int64         `json:"averageViews"`
	ContentCount          *int64         `json:"contentCount"`
	ContactPoints         []ContactPoint `json:"contactPoints"`
	Biography             string         `json:"biography"`
	DetectedLanguage      string         `json:"detectedLanguage"`
	AccountType           AccountType    `json:"accountType"`
	ProfileURL            string         `json:"profileUrl"`
	Platform              Platform       `json:"platform"`
	ProviderSource        ProviderSource `json:"providerSource"`
	FetchedAt             time.Time      `json:"fetchedAt"`
}

// Int64Ptr returns a pointer to v.
func Int64Ptr(v int64) *int64 {
	return &v
}
