package dto

import "time"

// Provider constants
const (
	ProviderGoogle  = "google"
	ProviderOutlook = "outlook"
)

// ValidProvider reports whether name is one of the supported providers.
func ValidProvider(name string) bool {
	return name == ProviderGoogle || name == ProviderOutlook
}

// ========== Connection DTOs ==========

// CalendarSummary is one connection as shown in the settings UI.
type CalendarSummary struct {
	ID           string     `json:"id"`
	Provider     string     `json:"provider"`
	AccountEmail string     `json:"account_email"`
	SyncStatus   string     `json:"sync_status"` // "active" | "error"
	LastSyncedAt *time.Time `json:"last_synced_at,omitempty"`
	ConnectedAt  time.Time  `json:"connected_at"`
}

// ========== OAuth DTOs ==========

// OAuthInitiateResponse carries the provider consent URL and the state value
// embedded in it.
type OAuthInitiateResponse struct {
	AuthorizationURL string `json:"authorization_url"`
	State            string `json:"state"`
}

// OAuthCallbackResult is the outcome of a completed OAuth handshake.
type OAuthCallbackResult struct {
	ConnectionID string `json:"connection_id"`
	ReturnPath   string `json:"return_path,omitempty"`
}

// ========== Provider DTOs ==========

// TokenSet is what a provider returns from a code exchange or a refresh.
// RefreshToken may be empty on refresh; callers keep the prior value then.
type TokenSet struct {
	AccessToken  string
	RefreshToken string
	ExpiresAt    time.Time
}

// ExternalEvent is one event as fetched from a provider, normalized across
// providers. Not persisted as-is.
type ExternalEvent struct {
	ID          string
	Title       string
	StartTime   time.Time
	EndTime     time.Time
	AllDay      bool
	Description string
	Location    string
}

// ========== Sync DTOs ==========

// Sync result statuses.
const (
	SyncStatusSuccess = "success"
	SyncStatusPartial = "partial"
	SyncStatusError   = "error"
)

// SyncResult summarizes one sync attempt for one connection.
type SyncResult struct {
	ConnectionID  string    `json:"connection_id"`
	SyncedAt      time.Time `json:"synced_at"`
	EventsAdded   int       `json:"events_added"`
	EventsUpdated int       `json:"events_updated"`
	EventsRemoved int       `json:"events_removed"`
	Status        string    `json:"status"`
	Error         string    `json:"error,omitempty"`
}
