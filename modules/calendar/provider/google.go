package provider

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"

	"familycal/core/config"
	"familycal/core/logger"
	"familycal/modules/calendar/dto"
)

const (
	googleCalendarAPIBase = "https://www.googleapis.com/calendar/v3"
	googleEventsAPI       = googleCalendarAPIBase + "/calendars/primary/events"
	googleUserInfoAPI     = "https://www.googleapis.com/oauth2/v2/userinfo"
	googleRevokeAPI       = "https://oauth2.googleapis.com/revoke"
)

type googleProvider struct {
	clientID     string
	clientSecret string
	httpClient   *http.Client
}

func newGoogleProvider(cfg config.OAuthProviderConfig) *googleProvider {
	return &googleProvider{
		clientID:     cfg.ClientID,
		clientSecret: cfg.ClientSecret,
		httpClient:   &http.Client{Timeout: 30 * time.Second},
	}
}

func (p *googleProvider) oauthConfig(redirectURI string) *oauth2.Config {
	return &oauth2.Config{
		ClientID:     p.clientID,
		ClientSecret: p.clientSecret,
		RedirectURL:  redirectURI,
		Scopes: []string{
			"https://www.googleapis.com/auth/userinfo.email",
			"https://www.googleapis.com/auth/calendar.readonly",
		},
		Endpoint: google.Endpoint,
	}
}

func (p *googleProvider) AuthorizationURL(state, redirectURI string) string {
	return p.oauthConfig(redirectURI).AuthCodeURL(state, oauth2.AccessTypeOffline, oauth2.ApprovalForce)
}

func (p *googleProvider) ExchangeCode(ctx context.Context, code, redirectURI string) (*dto.TokenSet, error) {
	token, err := p.oauthConfig(redirectURI).Exchange(ctx, code)
	if err != nil {
		return nil, fmt.Errorf("google code exchange failed: %w", err)
	}

	return &dto.TokenSet{
		AccessToken:  token.AccessToken,
		RefreshToken: token.RefreshToken,
		ExpiresAt:    token.Expiry,
	}, nil
}

func (p *googleProvider) RefreshToken(ctx context.Context, refreshToken string) (*dto.TokenSet, error) {
	tokenSource := p.oauthConfig("").TokenSource(ctx, &oauth2.Token{
		RefreshToken: refreshToken,
	})

	newToken, err := tokenSource.Token()
	if err != nil {
		return nil, fmt.Errorf("google token refresh failed: %w", err)
	}

	return &dto.TokenSet{
		AccessToken:  newToken.AccessToken,
		RefreshToken: newToken.RefreshToken,
		ExpiresAt:    newToken.Expiry,
	}, nil
}

func (p *googleProvider) RevokeToken(ctx context.Context, token string) error {
	form := url.Values{}
	form.Set("token", token)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, googleRevokeAPI, strings.NewReader(form.Encode()))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("google revoke returned %d: %s", resp.StatusCode, string(body))
	}
	return nil
}

func (p *googleProvider) UserEmail(ctx context.Context, accessToken string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, googleUserInfoAPI, nil)
	if err != nil {
		return "", err
	}
	req.Header.Set("Authorization", "Bearer "+accessToken)

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("failed to fetch google userinfo: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return "", fmt.Errorf("google userinfo returned %d: %s", resp.StatusCode, string(body))
	}

	var userInfo struct {
		Email string `json:"email"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&userInfo); err != nil {
		return "", fmt.Errorf("failed to parse google userinfo: %w", err)
	}
	if userInfo.Email == "" {
		return "", fmt.Errorf("google userinfo has no email")
	}
	return userInfo.Email, nil
}

// googleEvent is the subset of the Calendar v3 event resource we read.
// All-day events carry Date, timed events carry DateTime.
type googleEvent struct {
	ID      string `json:"id"`
	Status  string `json:"status"`
	Summary string `json:"summary"`
	Start   struct {
		Date     string `json:"date"`
		DateTime string `json:"dateTime"`
	} `json:"start"`
	End struct {
		Date     string `json:"date"`
		DateTime string `json:"dateTime"`
	} `json:"end"`
	Description string `json:"description"`
	Location    string `json:"location"`
}

func (p *googleProvider) FetchEvents(ctx context.Context, accessToken string, windowStart, windowEnd time.Time) ([]dto.ExternalEvent, error) {
	var events []dto.ExternalEvent
	pageToken := ""

	for {
		params := url.Values{}
		params.Set("singleEvents", "true")
		params.Set("orderBy", "startTime")
		params.Set("timeMin", windowStart.UTC().Format(time.RFC3339))
		params.Set("timeMax", windowEnd.UTC().Format(time.RFC3339))
		params.Set("maxResults", "250")
		if pageToken != "" {
			params.Set("pageToken", pageToken)
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodGet, googleEventsAPI+"?"+params.Encode(), nil)
		if err != nil {
			return nil, err
		}
		req.Header.Set("Authorization", "Bearer "+accessToken)

		resp, err := p.httpClient.Do(req)
		if err != nil {
			return nil, fmt.Errorf("failed to fetch google events: %w", err)
		}

		if resp.StatusCode != http.StatusOK {
			body, _ := io.ReadAll(resp.Body)
			resp.Body.Close()
			return nil, fmt.Errorf("google events API returned %d: %s", resp.StatusCode, string(body))
		}

		var page struct {
			Items         []googleEvent `json:"items"`
			NextPageToken string        `json:"nextPageToken"`
		}
		err = json.NewDecoder(resp.Body).Decode(&page)
		resp.Body.Close()
		if err != nil {
			return nil, fmt.Errorf("failed to parse google events: %w", err)
		}

		for _, item := range page.Items {
			if item.Status == "cancelled" {
				continue
			}
			event, err := normalizeGoogleEvent(item)
			if err != nil {
				logger.Warn("GoogleProvider:FetchEvents:SkippingEvent", "event_id", item.ID, "error", err)
				continue
			}
			events = append(events, event)
		}

		if page.NextPageToken == "" {
			break
		}
		pageToken = page.NextPageToken
	}

	return events, nil
}

func normalizeGoogleEvent(item googleEvent) (dto.ExternalEvent, error) {
	event := dto.ExternalEvent{
		ID:          item.ID,
		Title:       item.Summary,
		Description: item.Description,
		Location:    item.Location,
	}

	switch {
	case item.Start.DateTime != "":
		start, err := time.Parse(time.RFC3339, item.Start.DateTime)
		if err != nil {
			return dto.ExternalEvent{}, fmt.Errorf("bad start dateTime %q: %w", item.Start.DateTime, err)
		}
		end, err := time.Parse(time.RFC3339, item.End.DateTime)
		if err != nil {
			return dto.ExternalEvent{}, fmt.Errorf("bad end dateTime %q: %w", item.End.DateTime, err)
		}
		event.StartTime = start.UTC()
		event.EndTime = end.UTC()

	case item.Start.Date != "":
		start, err := time.Parse("2006-01-02", item.Start.Date)
		if err != nil {
			return dto.ExternalEvent{}, fmt.Errorf("bad start date %q: %w", item.Start.Date, err)
		}
		end, err := time.Parse("2006-01-02", item.End.Date)
		if err != nil {
			return dto.ExternalEvent{}, fmt.Errorf("bad end date %q: %w", item.End.Date, err)
		}
		event.AllDay = true
		event.StartTime = start
		event.EndTime = end

	default:
		return dto.ExternalEvent{}, fmt.Errorf("event has neither date nor dateTime")
	}

	return event, nil
}
