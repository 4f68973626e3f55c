package provider

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"net/url"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"familycal/core/config"
)

// scriptedTransport answers each request with the next canned response and
// records what was asked.
type scriptedTransport struct {
	responses []*http.Response
	requests  []*http.Request
}

func (t *scriptedTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	t.requests = append(t.requests, req)
	if len(t.responses) == 0 {
		return jsonResponse(http.StatusInternalServerError, `{"error":"no scripted response"}`), nil
	}
	resp := t.responses[0]
	t.responses = t.responses[1:]
	return resp, nil
}

func jsonResponse(status int, body string) *http.Response {
	return &http.Response{
		StatusCode: status,
		Header:     http.Header{"Content-Type": []string{"application/json"}},
		Body:       io.NopCloser(bytes.NewReader([]byte(body))),
	}
}

func newTestGoogleProvider(transport http.RoundTripper) *googleProvider {
	p := newGoogleProvider(config.OAuthProviderConfig{ClientID: "client", ClientSecret: "secret"})
	p.httpClient = &http.Client{Transport: transport}
	return p
}

func TestGoogleAuthorizationURL(t *testing.T) {
	p := newTestGoogleProvider(nil)

	raw := p.AuthorizationURL("signed-state", "http://localhost:7070/callback")
	parsed, err := url.Parse(raw)
	require.NoError(t, err)

	query := parsed.Query()
	assert.Equal(t, "signed-state", query.Get("state"))
	assert.Equal(t, "http://localhost:7070/callback", query.Get("redirect_uri"))
	assert.Equal(t, "offline", query.Get("access_type"))
	assert.Contains(t, query.Get("scope"), "calendar.readonly")
	assert.Contains(t, query.Get("scope"), "userinfo.email")
}

func TestGoogleFetchEventsNormalization(t *testing.T) {
	transport := &scriptedTransport{responses: []*http.Response{
		jsonResponse(http.StatusOK, `{
			"items": [
				{
					"id": "evt-1",
					"status": "confirmed",
					"summary": "Dentist",
					"start": {"dateTime": "2026-03-10T09:00:00+01:00"},
					"end": {"dateTime": "2026-03-10T10:00:00+01:00"},
					"location": "Main St 4"
				},
				{
					"id": "evt-2",
					"status": "confirmed",
					"summary": "School holiday",
					"start": {"date": "2026-03-12"},
					"end": {"date": "2026-03-13"}
				},
				{
					"id": "evt-3",
					"status": "cancelled",
					"summary": "Dropped meeting",
					"start": {"dateTime": "2026-03-10T11:00:00Z"},
					"end": {"dateTime": "2026-03-10T12:00:00Z"}
				}
			]
		}`),
	}}
	p := newTestGoogleProvider(transport)

	windowStart := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	events, err := p.FetchEvents(context.Background(), "access-token", windowStart, windowStart.AddDate(0, 1, 0))
	require.NoError(t, err)
	require.Len(t, events, 2)

	// Offset timestamps come back normalized to UTC.
	assert.Equal(t, "Dentist", events[0].Title)
	assert.False(t, events[0].AllDay)
	assert.Equal(t, time.Date(2026, 3, 10, 8, 0, 0, 0, time.UTC), events[0].StartTime.UTC())
	assert.Equal(t, "Main St 4", events[0].Location)

	assert.Equal(t, "School holiday", events[1].Title)
	assert.True(t, events[1].AllDay)
	assert.Equal(t, time.Date(2026, 3, 12, 0, 0, 0, 0, time.UTC), events[1].StartTime)

	require.Len(t, transport.requests, 1)
	query := transport.requests[0].URL.Query()
	assert.Equal(t, "true", query.Get("singleEvents"))
	assert.Equal(t, windowStart.Format(time.RFC3339), query.Get("timeMin"))
	assert.Equal(t, "Bearer access-token", transport.requests[0].Header.Get("Authorization"))
}

func TestGoogleFetchEventsFollowsPagination(t *testing.T) {
	transport := &scriptedTransport{responses: []*http.Response{
		jsonResponse(http.StatusOK, `{
			"items": [{"id": "evt-1", "summary": "First", "start": {"dateTime": "2026-03-10T09:00:00Z"}, "end": {"dateTime": "2026-03-10T10:00:00Z"}}],
			"nextPageToken": "page-2"
		}`),
		jsonResponse(http.StatusOK, `{
			"items": [{"id": "evt-2", "summary": "Second", "start": {"dateTime": "2026-03-11T09:00:00Z"}, "end": {"dateTime": "2026-03-11T10:00:00Z"}}]
		}`),
	}}
	p := newTestGoogleProvider(transport)

	events, err := p.FetchEvents(context.Background(), "access-token", time.Now(), time.Now().AddDate(0, 1, 0))
	require.NoError(t, err)
	require.Len(t, events, 2)
	assert.Equal(t, "First", events[0].Title)
	assert.Equal(t, "Second", events[1].Title)

	require.Len(t, transport.requests, 2)
	assert.Empty(t, transport.requests[0].URL.Query().Get("pageToken"))
	assert.Equal(t, "page-2", transport.requests[1].URL.Query().Get("pageToken"))
}

func TestGoogleFetchEventsSurfacesAPIError(t *testing.T) {
	transport := &scriptedTransport{responses: []*http.Response{
		jsonResponse(http.StatusUnauthorized, `{"error": "invalid_token"}`),
	}}
	p := newTestGoogleProvider(transport)

	_, err := p.FetchEvents(context.Background(), "stale-token", time.Now(), time.Now().AddDate(0, 1, 0))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "401")
}

func TestGoogleUserEmail(t *testing.T) {
	transport := &scriptedTransport{responses: []*http.Response{
		jsonResponse(http.StatusOK, `{"email": "parent@example.com"}`),
	}}
	p := newTestGoogleProvider(transport)

	email, err := p.UserEmail(context.Background(), "access-token")
	require.NoError(t, err)
	assert.Equal(t, "parent@example.com", email)
}

func TestNormalizeGoogleEventRejectsEmptyTimes(t *testing.T) {
	_, err := normalizeGoogleEvent(googleEvent{ID: "evt", Summary: "broken"})
	require.Error(t, err)
}
