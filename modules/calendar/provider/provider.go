package provider

import (
	"context"
	"fmt"
	"time"

	"familycal/core/config"
	"familycal/modules/calendar/dto"
)

// CalendarProvider is the uniform capability surface over one external
// calendar service. All provider-specific HTTP and field mapping stays behind
// it so the orchestrator and the reconciler are provider-agnostic.
type CalendarProvider interface {
	// AuthorizationURL builds the consent-screen URL. No I/O.
	AuthorizationURL(state, redirectURI string) string
	// ExchangeCode trades an authorization code for a token set.
	ExchangeCode(ctx context.Context, code, redirectURI string) (*dto.TokenSet, error)
	// RefreshToken exchanges a refresh token for a new access token. The
	// returned RefreshToken may be empty; callers keep the prior one then.
	RefreshToken(ctx context.Context, refreshToken string) (*dto.TokenSet, error)
	// RevokeToken is best effort; a failure must not block a disconnect.
	RevokeToken(ctx context.Context, token string) error
	// UserEmail identifies the connected account.
	UserEmail(ctx context.Context, accessToken string) (string, error)
	// FetchEvents retrieves all events in the window, following pagination,
	// normalized into ExternalEvent.
	FetchEvents(ctx context.Context, accessToken string, windowStart, windowEnd time.Time) ([]dto.ExternalEvent, error)
}

// NewProvider returns the adapter for a provider name. The name set is
// closed; anything outside it is a caller bug surfaced as an error.
func NewProvider(name string, cfg *config.Config) (CalendarProvider, error) {
	switch name {
	case dto.ProviderGoogle:
		return newGoogleProvider(cfg.GoogleAPI), nil
	case dto.ProviderOutlook:
		return newOutlookProvider(cfg.MicrosoftAPI), nil
	default:
		return nil, fmt.Errorf("unsupported calendar provider: %s", name)
	}
}
