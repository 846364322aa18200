package models

// LoginRequest represents the login credentials
type LoginRequest struct {
	Username string `json:"username" example:"admin"`
	Password string `json:"password" example:"password123"`
}

// LoginResponse represents the login response
type LoginResponse struct {
	// JWT token for authentication
	Token     string `json:"token" example:"eyJhbGciOiJIUzI1NiIsInR5cCI6IkpXVCJ9..."`
	TokenType string `json:"type" example:"Bearer"`
}

// ResolveRequest asks for one creator profile.
type ResolveRequest struct {
	Username          string `json:"username"`
	Platform          string `json:"platform"`
	PreferredProvider string `json:"preferredProvider,omitempty"`
	CallbackURL       string `json:"callbackUrl,omitempty"`
}

// BatchResolveRequest asks for several usernames on one platform.
type BatchResolveRequest struct {
	Platform          string   `json:"platform"`
	Usernames         []string `json:"usernames"`
	PreferredProvider string   `json:"preferredProvider,omitempty"`
}

// ProviderErrorBody is the wire form of a single provider failure.
type ProviderErrorBody struct {
	Provider string `json:"provider"`
	Code     string `json:"code"`
	Message  string `json:"message"`
	Attempts int    `json:"attempts,omitempty"`
}

// AttemptBody reports how one provider fared during a resolution.
type AttemptBody struct {
	Provider   string             `json:"provider"`
	DurationMs int64              `json:"durationMs"`
	Error      *ProviderErrorBody `json:"error,omitempty"`
}

// ErrorResponse is returned for failed resolutions.
type ErrorResponse struct {
	Error          string              `json:"error"`
	Code           string              `json:"code,omitempty"`
	ProviderErrors []ProviderErrorBody `json:"providerErrors,omitempty"`
}

// ResolveResponse wraps a resolved profile.
type ResolveResponse struct {
	Profile  *Profile      `json:"profile"`
	Attempts []AttemptBody `json:"attempts"`
}

// BatchItem is one username's outcome inside a batch.
type BatchItem struct {
	Username string         `json:"username"`
	Profile  *Profile       `json:"profile,omitempty"`
	Error    *ErrorResponse `json:"error,omitempty"`
}

// BatchResolveResponse lists outcomes in request order.
type BatchResolveResponse struct {
	Results []BatchItem `json:"results"`
}

// ProviderInfo describes a registered adapter.
type ProviderInfo struct {
	Name       string   `json:"name"`
	Platforms  []string `json:"platforms"`
	Configured bool     `json:"configured"`
}
