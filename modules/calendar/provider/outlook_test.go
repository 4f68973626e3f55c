package provider

import (
	"context"
	"net/http"
	"net/url"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"familycal/core/config"
)

func newTestOutlookProvider(transport http.RoundTripper) *outlookProvider {
	p := newOutlookProvider(config.OAuthProviderConfig{ClientID: "client", ClientSecret: "secret"})
	p.httpClient = &http.Client{Transport: transport}
	return p
}

func TestOutlookAuthorizationURL(t *testing.T) {
	p := newTestOutlookProvider(nil)

	raw := p.AuthorizationURL("signed-state", "http://localhost:7070/callback")
	parsed, err := url.Parse(raw)
	require.NoError(t, err)

	query := parsed.Query()
	assert.Equal(t, "signed-state", query.Get("state"))
	assert.Contains(t, query.Get("scope"), "offline_access")
	assert.Contains(t, query.Get("scope"), "Calendars.Read")
}

func TestParseGraphTime(t *testing.T) {
	// Graph renders zone-less timestamps, with or without the fractional tail.
	parsed, err := parseGraphTime("2026-03-10T09:00:00.0000000")
	require.NoError(t, err)
	assert.Equal(t, time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC), parsed)

	parsed, err = parseGraphTime("2026-03-10T09:00:00")
	require.NoError(t, err)
	assert.Equal(t, time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC), parsed)

	_, err = parseGraphTime("10/03/2026 09:00")
	require.Error(t, err)
}

func TestOutlookFetchEventsNormalization(t *testing.T) {
	transport := &scriptedTransport{responses: []*http.Response{
		jsonResponse(http.StatusOK, `{
			"value": [
				{
					"id": "evt-1",
					"subject": "Soccer practice",
					"start": {"dateTime": "2026-03-10T16:00:00.0000000", "timeZone": "UTC"},
					"end": {"dateTime": "2026-03-10T18:00:00.0000000", "timeZone": "UTC"},
					"isAllDay": false,
					"location": {"displayName": "City pitch"}
				},
				{
					"id": "evt-2",
					"subject": "Ghost meeting",
					"start": {"dateTime": "2026-03-11T09:00:00.0000000", "timeZone": "UTC"},
					"end": {"dateTime": "2026-03-11T10:00:00.0000000", "timeZone": "UTC"},
					"isCancelled": true
				}
			]
		}`),
	}}
	p := newTestOutlookProvider(transport)

	windowStart := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	events, err := p.FetchEvents(context.Background(), "access-token", windowStart, windowStart.AddDate(0, 1, 0))
	require.NoError(t, err)
	require.Len(t, events, 1)

	assert.Equal(t, "Soccer practice", events[0].Title)
	assert.Equal(t, time.Date(2026, 3, 10, 16, 0, 0, 0, time.UTC), events[0].StartTime)
	assert.Equal(t, "City pitch", events[0].Location)

	require.Len(t, transport.requests, 1)
	req := transport.requests[0]
	assert.Equal(t, `outlook.timezone="UTC"`, req.Header.Get("Prefer"))
	assert.Equal(t, windowStart.Format(time.RFC3339), req.URL.Query().Get("startDateTime"))
}

func TestOutlookFetchEventsFollowsNextLink(t *testing.T) {
	transport := &scriptedTransport{responses: []*http.Response{
		jsonResponse(http.StatusOK, `{
			"value": [{"id": "evt-1", "subject": "First", "start": {"dateTime": "2026-03-10T09:00:00"}, "end": {"dateTime": "2026-03-10T10:00:00"}}],
			"@odata.nextLink": "https://graph.microsoft.com/v1.0/me/calendarview?$skip=100"
		}`),
		jsonResponse(http.StatusOK, `{
			"value": [{"id": "evt-2", "subject": "Second", "start": {"dateTime": "2026-03-11T09:00:00"}, "end": {"dateTime": "2026-03-11T10:00:00"}}]
		}`),
	}}
	p := newTestOutlookProvider(transport)

	events, err := p.FetchEvents(context.Background(), "access-token", time.Now(), time.Now().AddDate(0, 1, 0))
	require.NoError(t, err)
	require.Len(t, events, 2)

	require.Len(t, transport.requests, 2)
	assert.Equal(t, "100", transport.requests[1].URL.Query().Get("$skip"))
}

func TestOutlookUserEmailFallsBackToPrincipalName(t *testing.T) {
	transport := &scriptedTransport{responses: []*http.Response{
		jsonResponse(http.StatusOK, `{"mail": null, "userPrincipalName": "parent@outlook.com"}`),
	}}
	p := newTestOutlookProvider(transport)

	email, err := p.UserEmail(context.Background(), "access-token")
	require.NoError(t, err)
	assert.Equal(t, "parent@outlook.com", email)
}

func TestNewProviderClosedNameSet(t *testing.T) {
	cfg := &config.Config{}

	google, err := NewProvider("google", cfg)
	require.NoError(t, err)
	assert.IsType(t, &googleProvider{}, google)

	outlook, err := NewProvider("outlook", cfg)
	require.NoError(t, err)
	assert.IsType(t, &outlookProvider{}, outlook)

	_, err = NewProvider("caldav", cfg)
	require.Error(t, err)
}
