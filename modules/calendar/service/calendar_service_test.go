package service

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"familycal/core/cache"
	"familycal/core/config"
	"familycal/core/constants"
	"familycal/core/crypto"
	"familycal/core/errors"
	auditEntity "familycal/modules/audit/entity"
	"familycal/modules/calendar/dto"
	"familycal/modules/calendar/entity"
	"familycal/modules/calendar/provider"
	"familycal/modules/calendar/token"
	familyEntity "familycal/modules/family/entity"
)

// ========== fakes ==========

type fakeCalendarRepo struct {
	order      []uuid.UUID
	byID       map[uuid.UUID]*entity.CalendarConnection
	updates    []*entity.CalendarConnection
	deleted    []uuid.UUID
	lastSynced map[uuid.UUID]time.Time

	updateErr error
}

func newFakeCalendarRepo() *fakeCalendarRepo {
	return &fakeCalendarRepo{
		byID:       make(map[uuid.UUID]*entity.CalendarConnection),
		lastSynced: make(map[uuid.UUID]time.Time),
	}
}

func (f *fakeCalendarRepo) Create(_ context.Context, conn *entity.CalendarConnection) (*entity.CalendarConnection, error) {
	conn.ID = uuid.New()
	conn.CreatedAt = time.Now()
	conn.UpdatedAt = conn.CreatedAt
	stored := *conn
	f.byID[conn.ID] = &stored
	f.order = append(f.order, conn.ID)
	return conn, nil
}

func (f *fakeCalendarRepo) Update(_ context.Context, conn *entity.CalendarConnection) error {
	if f.updateErr != nil {
		return f.updateErr
	}
	stored := *conn
	f.byID[conn.ID] = &stored
	f.updates = append(f.updates, &stored)
	return nil
}

func (f *fakeCalendarRepo) Delete(_ context.Context, id uuid.UUID) error {
	delete(f.byID, id)
	f.deleted = append(f.deleted, id)
	return nil
}

func (f *fakeCalendarRepo) FindByID(_ context.Context, id uuid.UUID) (*entity.CalendarConnection, error) {
	conn, ok := f.byID[id]
	if !ok {
		return nil, nil
	}
	copied := *conn
	return &copied, nil
}

func (f *fakeCalendarRepo) FindByUserID(_ context.Context, userID uuid.UUID) ([]entity.CalendarConnection, error) {
	var result []entity.CalendarConnection
	for _, id := range f.order {
		conn, ok := f.byID[id]
		if ok && conn.UserID == userID {
			result = append(result, *conn)
		}
	}
	return result, nil
}

func (f *fakeCalendarRepo) FindByUserProviderEmail(_ context.Context, userID uuid.UUID, providerName, email string) (*entity.CalendarConnection, error) {
	for _, conn := range f.byID {
		if conn.UserID == userID && conn.Provider == providerName && conn.AccountEmail == email {
			copied := *conn
			return &copied, nil
		}
	}
	return nil, nil
}

func (f *fakeCalendarRepo) UpdateLastSyncedAt(_ context.Context, id uuid.UUID, syncedAt time.Time) error {
	f.lastSynced[id] = syncedAt
	if conn, ok := f.byID[id]; ok {
		stamped := syncedAt
		conn.LastSyncedAt = &stamped
	}
	return nil
}

func (f *fakeCalendarRepo) ListUserIDsWithConnections(_ context.Context) ([]uuid.UUID, error) {
	seen := make(map[uuid.UUID]bool)
	var result []uuid.UUID
	for _, id := range f.order {
		conn, ok := f.byID[id]
		if ok && !seen[conn.UserID] {
			seen[conn.UserID] = true
			result = append(result, conn.UserID)
		}
	}
	return result, nil
}

type fakeFamilyRepo struct {
	families map[uuid.UUID][]familyEntity.Family
}

func newFakeFamilyRepo() *fakeFamilyRepo {
	return &fakeFamilyRepo{families: make(map[uuid.UUID][]familyEntity.Family)}
}

func (f *fakeFamilyRepo) FindByUserID(_ context.Context, userID uuid.UUID) ([]familyEntity.Family, error) {
	return f.families[userID], nil
}

type auditEntry struct {
	userID     uuid.UUID
	action     string
	resourceID string
	metadata   map[string]any
}

type fakeRecorder struct {
	entries []auditEntry
}

func (f *fakeRecorder) Record(_ context.Context, userID uuid.UUID, action, _, resourceID string, metadata map[string]any) {
	f.entries = append(f.entries, auditEntry{userID: userID, action: action, resourceID: resourceID, metadata: metadata})
}

// fakeCalendarProvider drives the orchestrator without any HTTP. Every hook
// has a workable default; tests override only what they exercise.
type fakeCalendarProvider struct {
	exchangeFn func(code string) (*dto.TokenSet, error)
	refreshFn  func(refreshToken string) (*dto.TokenSet, error)
	revokeErr  error
	email      string
	fetchFn    func(accessToken string) ([]dto.ExternalEvent, error)

	exchangeCalls int
	refreshCalls  int
	revokeCalls   int
	fetchCalls    int
	fetchTokens   []string
}

func (p *fakeCalendarProvider) AuthorizationURL(state, redirectURI string) string {
	return "https://consent.example.com/auth?state=" + state + "&redirect_uri=" + redirectURI
}

func (p *fakeCalendarProvider) ExchangeCode(_ context.Context, code, _ string) (*dto.TokenSet, error) {
	p.exchangeCalls++
	if p.exchangeFn != nil {
		return p.exchangeFn(code)
	}
	return &dto.TokenSet{AccessToken: "exchanged-access", RefreshToken: "exchanged-refresh"}, nil
}

func (p *fakeCalendarProvider) RefreshToken(_ context.Context, refreshToken string) (*dto.TokenSet, error) {
	p.refreshCalls++
	if p.refreshFn != nil {
		return p.refreshFn(refreshToken)
	}
	return &dto.TokenSet{AccessToken: "refreshed-access", RefreshToken: "refreshed-refresh"}, nil
}

func (p *fakeCalendarProvider) RevokeToken(_ context.Context, _ string) error {
	p.revokeCalls++
	return p.revokeErr
}

func (p *fakeCalendarProvider) UserEmail(_ context.Context, _ string) (string, error) {
	if p.email == "" {
		return "parent@example.com", nil
	}
	return p.email, nil
}

func (p *fakeCalendarProvider) FetchEvents(_ context.Context, accessToken string, _, _ time.Time) ([]dto.ExternalEvent, error) {
	p.fetchCalls++
	p.fetchTokens = append(p.fetchTokens, accessToken)
	if p.fetchFn != nil {
		return p.fetchFn(accessToken)
	}
	return nil, nil
}

// ========== fixture ==========

type serviceFixture struct {
	svc      *calendarService
	repo     *fakeCalendarRepo
	events   *fakeEventRepo
	families *fakeFamilyRepo
	audit    *fakeRecorder
	provider *fakeCalendarProvider
	vault    *crypto.Vault
	codec    *token.Codec

	now time.Time
}

func newServiceFixture(t *testing.T) *serviceFixture {
	t.Helper()

	vault, err := crypto.NewVault("test-master-secret")
	require.NoError(t, err)
	codec, err := token.NewCodec("test-state-secret")
	require.NoError(t, err)

	fx := &serviceFixture{
		repo:     newFakeCalendarRepo(),
		events:   newFakeEventRepo(),
		families: newFakeFamilyRepo(),
		audit:    &fakeRecorder{},
		provider: &fakeCalendarProvider{},
		vault:    vault,
		codec:    codec,
		now:      time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC),
	}

	limiter := NewSyncRateLimiter(cache.NewMemoryCacheWithClock(func() time.Time { return fx.now }))
	cfg := &config.Config{Server: config.ServerConfig{BaseURL: "http://localhost:7070"}}

	fx.svc = NewCalendarService(fx.repo, fx.events, fx.families, fx.audit, vault, codec, limiter, cfg).(*calendarService)
	fx.svc.now = func() time.Time { return fx.now }
	fx.svc.providerFor = func(string) (provider.CalendarProvider, error) { return fx.provider, nil }
	return fx
}

func (fx *serviceFixture) addConnection(t *testing.T, userID uuid.UUID, expiresAt *time.Time) *entity.CalendarConnection {
	t.Helper()

	encryptedAccess, err := fx.vault.Encrypt("stored-access")
	require.NoError(t, err)
	encryptedRefresh, err := fx.vault.Encrypt("stored-refresh")
	require.NoError(t, err)

	conn, err := fx.repo.Create(context.Background(), &entity.CalendarConnection{
		UserID:         userID,
		Provider:       dto.ProviderGoogle,
		AccountEmail:   "parent@example.com",
		AccessToken:    encryptedAccess,
		RefreshToken:   encryptedRefresh,
		TokenExpiresAt: expiresAt,
	})
	require.NoError(t, err)
	return conn
}

func (fx *serviceFixture) addFamily(userID uuid.UUID) uuid.UUID {
	family := familyEntity.Family{Name: "The Tests"}
	family.ID = uuid.New()
	fx.families.families[userID] = append(fx.families.families[userID], family)
	return family.ID
}

// ========== SyncCalendar ==========

func TestSyncCalendarHappyPath(t *testing.T) {
	fx := newServiceFixture(t)
	userID := uuid.New()
	familyID := fx.addFamily(userID)
	conn := fx.addConnection(t, userID, nil)

	start := fx.now.Add(24 * time.Hour)
	fx.provider.fetchFn = func(string) ([]dto.ExternalEvent, error) {
		return []dto.ExternalEvent{
			{Title: "Dentist", StartTime: start, EndTime: start.Add(time.Hour)},
			{Title: "Soccer practice", StartTime: start.Add(4 * time.Hour), EndTime: start.Add(6 * time.Hour)},
		}, nil
	}

	result, appErr := fx.svc.SyncCalendar(context.Background(), userID, conn.ID)
	require.Nil(t, appErr)

	assert.Equal(t, dto.SyncStatusSuccess, result.Status)
	assert.Equal(t, 2, result.EventsAdded)
	assert.Zero(t, result.EventsUpdated)
	assert.Zero(t, result.EventsRemoved)

	require.Len(t, fx.events.created, 2)
	assert.Equal(t, familyID, fx.events.created[0].FamilyID)

	// The valid stored token is used as-is, no refresh round trip.
	assert.Zero(t, fx.provider.refreshCalls)
	require.Len(t, fx.provider.fetchTokens, 1)
	assert.Equal(t, "stored-access", fx.provider.fetchTokens[0])

	assert.Equal(t, fx.now, fx.repo.lastSynced[conn.ID])

	require.Len(t, fx.audit.entries, 1)
	assert.Equal(t, auditEntity.ActionCalendarSynced, fx.audit.entries[0].action)
	assert.Equal(t, 2, fx.audit.entries[0].metadata["events_added"])
}

func TestSyncCalendarRateLimited(t *testing.T) {
	fx := newServiceFixture(t)
	userID := uuid.New()
	fx.addFamily(userID)
	conn := fx.addConnection(t, userID, nil)

	_, appErr := fx.svc.SyncCalendar(context.Background(), userID, conn.ID)
	require.Nil(t, appErr)
	require.Equal(t, 1, fx.provider.fetchCalls)

	// Second attempt inside the cooldown is rejected before any work happens.
	_, appErr = fx.svc.SyncCalendar(context.Background(), userID, conn.ID)
	require.NotNil(t, appErr)
	assert.Equal(t, errors.ErrRateLimited, appErr.Code)
	assert.Greater(t, appErr.RetryAfter, time.Duration(0))
	assert.Equal(t, 1, fx.provider.fetchCalls)
	assert.Len(t, fx.audit.entries, 1)

	fx.now = fx.now.Add(constants.SyncCooldown + time.Second)
	_, appErr = fx.svc.SyncCalendar(context.Background(), userID, conn.ID)
	require.Nil(t, appErr)
	assert.Equal(t, 2, fx.provider.fetchCalls)
}

func TestSyncCalendarOwnership(t *testing.T) {
	fx := newServiceFixture(t)
	owner := uuid.New()
	intruder := uuid.New()
	fx.addFamily(owner)
	conn := fx.addConnection(t, owner, nil)

	_, appErr := fx.svc.SyncCalendar(context.Background(), intruder, conn.ID)
	require.NotNil(t, appErr)
	assert.Equal(t, errors.ErrForbidden, appErr.Code)
	assert.Zero(t, fx.provider.fetchCalls)

	_, appErr = fx.svc.SyncCalendar(context.Background(), owner, uuid.New())
	require.NotNil(t, appErr)
	assert.Equal(t, errors.ErrNotFound, appErr.Code)
}

func TestSyncCalendarRefreshesExpiredToken(t *testing.T) {
	fx := newServiceFixture(t)
	userID := uuid.New()
	fx.addFamily(userID)
	expired := fx.now.Add(-time.Hour)
	conn := fx.addConnection(t, userID, &expired)

	result, appErr := fx.svc.SyncCalendar(context.Background(), userID, conn.ID)
	require.Nil(t, appErr)
	assert.Equal(t, dto.SyncStatusSuccess, result.Status)

	assert.Equal(t, 1, fx.provider.refreshCalls)
	require.Len(t, fx.provider.fetchTokens, 1)
	assert.Equal(t, "refreshed-access", fx.provider.fetchTokens[0])

	// The rotated tokens were persisted encrypted.
	require.NotEmpty(t, fx.repo.updates)
	stored := fx.repo.byID[conn.ID]
	access, err := fx.vault.Decrypt(stored.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, "refreshed-access", access)
	refresh, err := fx.vault.Decrypt(stored.RefreshToken)
	require.NoError(t, err)
	assert.Equal(t, "refreshed-refresh", refresh)
}

func TestSyncCalendarKeepsRefreshTokenWhenNotRotated(t *testing.T) {
	fx := newServiceFixture(t)
	userID := uuid.New()
	fx.addFamily(userID)
	expired := fx.now.Add(-time.Hour)
	conn := fx.addConnection(t, userID, &expired)

	fx.provider.refreshFn = func(string) (*dto.TokenSet, error) {
		return &dto.TokenSet{AccessToken: "refreshed-access"}, nil
	}

	_, appErr := fx.svc.SyncCalendar(context.Background(), userID, conn.ID)
	require.Nil(t, appErr)

	refresh, err := fx.vault.Decrypt(fx.repo.byID[conn.ID].RefreshToken)
	require.NoError(t, err)
	assert.Equal(t, "stored-refresh", refresh)
}

func TestSyncCalendarAbortsWhenRefreshPersistFails(t *testing.T) {
	fx := newServiceFixture(t)
	userID := uuid.New()
	fx.addFamily(userID)
	expired := fx.now.Add(-time.Hour)
	conn := fx.addConnection(t, userID, &expired)
	fx.repo.updateErr = fmt.Errorf("connection reset")

	_, appErr := fx.svc.SyncCalendar(context.Background(), userID, conn.ID)
	require.NotNil(t, appErr)
	assert.Equal(t, errors.ErrInternalServer, appErr.Code)

	// Refreshed credentials that could not be stored are never used.
	assert.Zero(t, fx.provider.fetchCalls)
}

func TestSyncCalendarRequiresFamily(t *testing.T) {
	fx := newServiceFixture(t)
	userID := uuid.New()
	conn := fx.addConnection(t, userID, nil)

	_, appErr := fx.svc.SyncCalendar(context.Background(), userID, conn.ID)
	require.NotNil(t, appErr)
	assert.Equal(t, errors.ErrInvalidInput, appErr.Code)
	assert.Empty(t, fx.events.created)
}

func TestSyncCalendarPartialOnMutations(t *testing.T) {
	fx := newServiceFixture(t)
	userID := uuid.New()
	familyID := fx.addFamily(userID)
	conn := fx.addConnection(t, userID, nil)

	start := fx.now.Add(24 * time.Hour)
	stale := syncedEvent(familyID, conn.ID, "Vanished meeting", start, start.Add(time.Hour))
	fx.events.events[stale.ID] = &stale

	result, appErr := fx.svc.SyncCalendar(context.Background(), userID, conn.ID)
	require.Nil(t, appErr)

	assert.Equal(t, dto.SyncStatusPartial, result.Status)
	assert.Equal(t, 1, result.EventsRemoved)
	assert.Empty(t, fx.events.events)
}

// ========== SyncAllCalendars ==========

func TestSyncAllCalendarsIsolatesFailures(t *testing.T) {
	fx := newServiceFixture(t)
	userID := uuid.New()
	fx.addFamily(userID)
	first := fx.addConnection(t, userID, nil)
	second := fx.addConnection(t, userID, nil)

	fx.provider.fetchFn = func(string) ([]dto.ExternalEvent, error) {
		// First connection syncs clean, second hits a provider outage.
		if fx.provider.fetchCalls == 1 {
			return nil, nil
		}
		return nil, fmt.Errorf("upstream 503")
	}

	results, appErr := fx.svc.SyncAllCalendars(context.Background(), userID)
	require.Nil(t, appErr)
	require.Len(t, results, 2)

	assert.Equal(t, first.ID.String(), results[0].ConnectionID)
	assert.Equal(t, dto.SyncStatusSuccess, results[0].Status)
	assert.Equal(t, second.ID.String(), results[1].ConnectionID)
	assert.Equal(t, dto.SyncStatusError, results[1].Status)
	assert.NotEmpty(t, results[1].Error)
}

// ========== OAuth flow ==========

func TestInitiateOAuthBuildsConsentURL(t *testing.T) {
	fx := newServiceFixture(t)
	userID := uuid.New()

	resp, appErr := fx.svc.InitiateOAuth(context.Background(), userID, dto.ProviderGoogle, "/settings/calendars")
	require.Nil(t, appErr)

	assert.Contains(t, resp.AuthorizationURL, "state="+resp.State)
	assert.Contains(t, resp.AuthorizationURL, constants.OAuthCallbackPath)

	stateResult := fx.codec.Validate(resp.State)
	require.True(t, stateResult.Valid)
	assert.Equal(t, userID, stateResult.UserID)
	assert.Equal(t, "/settings/calendars", stateResult.ReturnPath)
}

func TestInitiateOAuthRejectsUnknownProvider(t *testing.T) {
	fx := newServiceFixture(t)

	_, appErr := fx.svc.InitiateOAuth(context.Background(), uuid.New(), "caldav", "")
	require.NotNil(t, appErr)
	assert.Equal(t, errors.ErrInvalidInput, appErr.Code)
}

func TestHandleCallbackRejectsBadStateBeforeExchange(t *testing.T) {
	fx := newServiceFixture(t)

	_, appErr := fx.svc.HandleCallback(context.Background(), "auth-code", "not-a-real-state", dto.ProviderGoogle)
	require.NotNil(t, appErr)
	assert.Equal(t, errors.ErrInvalidInput, appErr.Code)
	assert.Zero(t, fx.provider.exchangeCalls)
}

func TestHandleCallbackCreatesConnection(t *testing.T) {
	fx := newServiceFixture(t)
	userID := uuid.New()

	state, err := fx.codec.Generate(userID, "/settings/calendars")
	require.NoError(t, err)

	result, appErr := fx.svc.HandleCallback(context.Background(), "auth-code", state, dto.ProviderGoogle)
	require.Nil(t, appErr)
	assert.Equal(t, "/settings/calendars", result.ReturnPath)

	connID, err := uuid.Parse(result.ConnectionID)
	require.NoError(t, err)
	stored := fx.repo.byID[connID]
	require.NotNil(t, stored)
	assert.Equal(t, userID, stored.UserID)
	assert.Equal(t, "parent@example.com", stored.AccountEmail)

	// Plaintext never reaches the store.
	assert.NotEqual(t, "exchanged-access", stored.AccessToken)
	access, err := fx.vault.Decrypt(stored.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, "exchanged-access", access)

	require.Len(t, fx.audit.entries, 1)
	assert.Equal(t, auditEntity.ActionCalendarConnected, fx.audit.entries[0].action)
}

func TestHandleCallbackUpdatesExistingConnection(t *testing.T) {
	fx := newServiceFixture(t)
	userID := uuid.New()
	conn := fx.addConnection(t, userID, nil)
	synced := fx.now.Add(-time.Hour)
	fx.repo.byID[conn.ID].LastSyncedAt = &synced

	state, err := fx.codec.Generate(userID, "")
	require.NoError(t, err)

	result, appErr := fx.svc.HandleCallback(context.Background(), "auth-code", state, dto.ProviderGoogle)
	require.Nil(t, appErr)

	// Same (user, provider, email): the record is updated, not duplicated.
	assert.Equal(t, conn.ID.String(), result.ConnectionID)
	assert.Len(t, fx.repo.byID, 1)

	stored := fx.repo.byID[conn.ID]
	assert.Nil(t, stored.LastSyncedAt)
	access, err := fx.vault.Decrypt(stored.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, "exchanged-access", access)
}

// ========== Disconnect ==========

func TestDisconnectCalendarRemovesEverything(t *testing.T) {
	fx := newServiceFixture(t)
	userID := uuid.New()
	familyID := fx.addFamily(userID)
	conn := fx.addConnection(t, userID, nil)

	stale := syncedEvent(familyID, conn.ID, "Imported", fx.now, fx.now.Add(time.Hour))
	fx.events.events[stale.ID] = &stale

	appErr := fx.svc.DisconnectCalendar(context.Background(), userID, conn.ID)
	require.Nil(t, appErr)

	assert.Equal(t, 1, fx.provider.revokeCalls)
	assert.Empty(t, fx.events.events)
	assert.NotContains(t, fx.repo.byID, conn.ID)

	require.Len(t, fx.audit.entries, 1)
	assert.Equal(t, auditEntity.ActionCalendarDisconnected, fx.audit.entries[0].action)
}

func TestDisconnectCalendarSurvivesRevokeFailure(t *testing.T) {
	fx := newServiceFixture(t)
	userID := uuid.New()
	conn := fx.addConnection(t, userID, nil)
	fx.provider.revokeErr = fmt.Errorf("revocation endpoint down")

	appErr := fx.svc.DisconnectCalendar(context.Background(), userID, conn.ID)
	require.Nil(t, appErr)
	assert.NotContains(t, fx.repo.byID, conn.ID)
}

func TestDisconnectCalendarEnforcesOwnership(t *testing.T) {
	fx := newServiceFixture(t)
	owner := uuid.New()
	conn := fx.addConnection(t, owner, nil)

	appErr := fx.svc.DisconnectCalendar(context.Background(), uuid.New(), conn.ID)
	require.NotNil(t, appErr)
	assert.Equal(t, errors.ErrForbidden, appErr.Code)
	assert.Contains(t, fx.repo.byID, conn.ID)
	assert.Zero(t, fx.provider.revokeCalls)
}

// ========== ListCalendars ==========

func TestListCalendarsDerivesSyncStatus(t *testing.T) {
	fx := newServiceFixture(t)
	userID := uuid.New()

	fresh := fx.addConnection(t, userID, nil)
	recently := fx.now.Add(-time.Hour)
	fx.repo.byID[fresh.ID].LastSyncedAt = &recently

	stale := fx.addConnection(t, userID, nil)
	fx.repo.byID[stale.ID].AccountEmail = "other@example.com"
	longAgo := fx.now.Add(-constants.SyncActiveWindow - time.Hour)
	fx.repo.byID[stale.ID].LastSyncedAt = &longAgo

	never := fx.addConnection(t, userID, nil)
	fx.repo.byID[never.ID].AccountEmail = "third@example.com"

	summaries, appErr := fx.svc.ListCalendars(context.Background(), userID)
	require.Nil(t, appErr)
	require.Len(t, summaries, 3)

	byID := make(map[string]dto.CalendarSummary)
	for _, s := range summaries {
		byID[s.ID] = s
	}
	assert.Equal(t, constants.SyncStatusActive, byID[fresh.ID.String()].SyncStatus)
	assert.Equal(t, constants.SyncStatusError, byID[stale.ID.String()].SyncStatus)
	assert.Equal(t, constants.SyncStatusError, byID[never.ID.String()].SyncStatus)
}
