package provider

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/microsoft"

	"familycal/core/config"
	"familycal/core/logger"
	"familycal/modules/calendar/dto"
)

const (
	graphAPIBase        = "https://graph.microsoft.com/v1.0"
	graphMeAPI          = graphAPIBase + "/me"
	graphCalendarView   = graphAPIBase + "/me/calendarview"
	graphDateTimeLayout = "2006-01-02T15:04:05"
)

type outlookProvider struct {
	clientID     string
	clientSecret string
	httpClient   *http.Client
}

func newOutlookProvider(cfg config.OAuthProviderConfig) *outlookProvider {
	return &outlookProvider{
		clientID:     cfg.ClientID,
		clientSecret: cfg.ClientSecret,
		httpClient:   &http.Client{Timeout: 30 * time.Second},
	}
}

func (p *outlookProvider) oauthConfig(redirectURI string) *oauth2.Config {
	return &oauth2.Config{
		ClientID:     p.clientID,
		ClientSecret: p.clientSecret,
		RedirectURL:  redirectURI,
		Scopes: []string{
			"offline_access",
			"https://graph.microsoft.com/User.Read",
			"https://graph.microsoft.com/Calendars.Read",
		},
		Endpoint: microsoft.AzureADEndpoint("common"),
	}
}

func (p *outlookProvider) AuthorizationURL(state, redirectURI string) string {
	return p.oauthConfig(redirectURI).AuthCodeURL(state, oauth2.AccessTypeOffline)
}

func (p *outlookProvider) ExchangeCode(ctx context.Context, code, redirectURI string) (*dto.TokenSet, error) {
	token, err := p.oauthConfig(redirectURI).Exchange(ctx, code)
	if err != nil {
		return nil, fmt.Errorf("microsoft code exchange failed: %w", err)
	}

	return &dto.TokenSet{
		AccessToken:  token.AccessToken,
		RefreshToken: token.RefreshToken,
		ExpiresAt:    token.Expiry,
	}, nil
}

func (p *outlookProvider) RefreshToken(ctx context.Context, refreshToken string) (*dto.TokenSet, error) {
	tokenSource := p.oauthConfig("").TokenSource(ctx, &oauth2.Token{
		RefreshToken: refreshToken,
	})

	newToken, err := tokenSource.Token()
	if err != nil {
		return nil, fmt.Errorf("microsoft token refresh failed: %w", err)
	}

	return &dto.TokenSet{
		AccessToken:  newToken.AccessToken,
		RefreshToken: newToken.RefreshToken,
		ExpiresAt:    newToken.Expiry,
	}, nil
}

// RevokeToken is a no-op for Microsoft: the identity platform exposes no
// public per-token revocation endpoint, so the token simply ages out after
// the connection record is deleted locally.
func (p *outlookProvider) RevokeToken(_ context.Context, _ string) error {
	logger.Info("OutlookProvider:RevokeToken:NotSupported")
	return nil
}

func (p *outlookProvider) UserEmail(ctx context.Context, accessToken string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, graphMeAPI, nil)
	if err != nil {
		return "", err
	}
	req.Header.Set("Authorization", "Bearer "+accessToken)

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("failed to fetch graph profile: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return "", fmt.Errorf("graph /me returned %d: %s", resp.StatusCode, string(body))
	}

	var profile struct {
		Mail              string `json:"mail"`
		UserPrincipalName string `json:"userPrincipalName"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&profile); err != nil {
		return "", fmt.Errorf("failed to parse graph profile: %w", err)
	}

	// Personal accounts often have no mail attribute.
	if profile.Mail != "" {
		return profile.Mail, nil
	}
	if profile.UserPrincipalName != "" {
		return profile.UserPrincipalName, nil
	}
	return "", fmt.Errorf("graph profile has no email")
}

type graphEvent struct {
	ID      string `json:"id"`
	Subject string `json:"subject"`
	Start   struct {
		DateTime string `json:"dateTime"`
		TimeZone string `json:"timeZone"`
	} `json:"start"`
	End struct {
		DateTime string `json:"dateTime"`
		TimeZone string `json:"timeZone"`
	} `json:"end"`
	IsAllDay    bool   `json:"isAllDay"`
	BodyPreview string `json:"bodyPreview"`
	Location    struct {
		DisplayName string `json:"displayName"`
	} `json:"location"`
	IsCancelled bool `json:"isCancelled"`
}

func (p *outlookProvider) FetchEvents(ctx context.Context, accessToken string, windowStart, windowEnd time.Time) ([]dto.ExternalEvent, error) {
	params := url.Values{}
	params.Set("startDateTime", windowStart.UTC().Format(time.RFC3339))
	params.Set("endDateTime", windowEnd.UTC().Format(time.RFC3339))
	params.Set("$top", "100")
	nextURL := graphCalendarView + "?" + params.Encode()

	var events []dto.ExternalEvent
	for nextURL != "" {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, nextURL, nil)
		if err != nil {
			return nil, err
		}
		req.Header.Set("Authorization", "Bearer "+accessToken)
		// Ask Graph to render event times in UTC so normalization is uniform.
		req.Header.Set("Prefer", `outlook.timezone="UTC"`)

		resp, err := p.httpClient.Do(req)
		if err != nil {
			return nil, fmt.Errorf("failed to fetch graph events: %w", err)
		}

		if resp.StatusCode != http.StatusOK {
			body, _ := io.ReadAll(resp.Body)
			resp.Body.Close()
			return nil, fmt.Errorf("graph calendarview returned %d: %s", resp.StatusCode, string(body))
		}

		var page struct {
			Value    []graphEvent `json:"value"`
			NextLink string       `json:"@odata.nextLink"`
		}
		err = json.NewDecoder(resp.Body).Decode(&page)
		resp.Body.Close()
		if err != nil {
			return nil, fmt.Errorf("failed to parse graph events: %w", err)
		}

		for _, item := range page.Value {
			if item.IsCancelled {
				continue
			}
			event, err := normalizeGraphEvent(item)
			if err != nil {
				logger.Warn("OutlookProvider:FetchEvents:SkippingEvent", "event_id", item.ID, "error", err)
				continue
			}
			events = append(events, event)
		}

		nextURL = page.NextLink
	}

	return events, nil
}

func normalizeGraphEvent(item graphEvent) (dto.ExternalEvent, error) {
	start, err := parseGraphTime(item.Start.DateTime)
	if err != nil {
		return dto.ExternalEvent{}, fmt.Errorf("bad start %q: %w", item.Start.DateTime, err)
	}
	end, err := parseGraphTime(item.End.DateTime)
	if err != nil {
		return dto.ExternalEvent{}, fmt.Errorf("bad end %q: %w", item.End.DateTime, err)
	}

	return dto.ExternalEvent{
		ID:          item.ID,
		Title:       item.Subject,
		StartTime:   start,
		EndTime:     end,
		AllDay:      item.IsAllDay,
		Description: item.BodyPreview,
		Location:    item.Location.DisplayName,
	}, nil
}

// parseGraphTime parses Graph's zone-less timestamps
// ("2024-01-10T09:00:00.0000000"; the fractional suffix is optional in
// time.Parse). The Prefer header pins the rendered zone to UTC.
func parseGraphTime(value string) (time.Time, error) {
	return time.ParseInLocation(graphDateTimeLayout, value, time.UTC)
}
