package service

import (
	"context"
	"time"

	"github.com/google/uuid"

	"familycal/core/config"
	"familycal/core/constants"
	"familycal/core/crypto"
	"familycal/core/errors"
	"familycal/core/logger"
	"familycal/core/utils"
	auditEntity "familycal/modules/audit/entity"
	auditService "familycal/modules/audit/service"
	"familycal/modules/calendar/dto"
	"familycal/modules/calendar/entity"
	"familycal/modules/calendar/provider"
	"familycal/modules/calendar/repository"
	"familycal/modules/calendar/token"
	eventRepository "familycal/modules/event/repository"
	familyRepository "familycal/modules/family/repository"
)

type CalendarService interface {
	ListCalendars(ctx context.Context, userID uuid.UUID) ([]dto.CalendarSummary, *errors.AppError)
	InitiateOAuth(ctx context.Context, userID uuid.UUID, providerName, returnPath string) (*dto.OAuthInitiateResponse, *errors.AppError)
	HandleCallback(ctx context.Context, code, state, providerName string) (*dto.OAuthCallbackResult, *errors.AppError)
	DisconnectCalendar(ctx context.Context, userID, connectionID uuid.UUID) *errors.AppError
	SyncCalendar(ctx context.Context, userID, connectionID uuid.UUID) (*dto.SyncResult, *errors.AppError)
	SyncAllCalendars(ctx context.Context, userID uuid.UUID) ([]dto.SyncResult, *errors.AppError)
}

type calendarService struct {
	repo        repository.CalendarRepository
	events      eventRepository.EventRepository
	families    familyRepository.FamilyRepository
	audit       auditService.Recorder
	vault       *crypto.Vault
	stateCodec  *token.Codec
	rateLimiter *SyncRateLimiter
	reconciler  *Reconciler
	cfg         *config.Config

	// providerFor and now are swappable in tests.
	providerFor func(name string) (provider.CalendarProvider, error)
	now         func() time.Time
}

func NewCalendarService(
	repo repository.CalendarRepository,
	events eventRepository.EventRepository,
	families familyRepository.FamilyRepository,
	audit auditService.Recorder,
	vault *crypto.Vault,
	stateCodec *token.Codec,
	rateLimiter *SyncRateLimiter,
	cfg *config.Config,
) CalendarService {
	return &calendarService{
		repo:        repo,
		events:      events,
		families:    families,
		audit:       audit,
		vault:       vault,
		stateCodec:  stateCodec,
		rateLimiter: rateLimiter,
		reconciler:  NewReconciler(events),
		cfg:         cfg,
		providerFor: func(name string) (provider.CalendarProvider, error) {
			return provider.NewProvider(name, cfg)
		},
		now: time.Now,
	}
}

// ListCalendars returns the caller's connections with a derived sync status:
// active while the last sync is within the 7-day window, error otherwise.
func (service *calendarService) ListCalendars(ctx context.Context, userID uuid.UUID) ([]dto.CalendarSummary, *errors.AppError) {
	if userID == uuid.Nil {
		return nil, errors.NewAppError(errors.ErrInvalidInput, "user id is required", nil)
	}

	connections, err := service.repo.FindByUserID(ctx, userID)
	if err != nil {
		logger.Error("CalendarService:ListCalendars:FindByUserID:Error", "error", err, "user_id", userID)
		return nil, errors.NewAppError(errors.ErrInternalServer, "failed to list calendar connections", err)
	}

	now := service.now()
	summaries := make([]dto.CalendarSummary, 0, len(connections))
	for _, conn := range connections {
		status := constants.SyncStatusError
		if conn.LastSyncedAt != nil && now.Sub(*conn.LastSyncedAt) <= constants.SyncActiveWindow {
			status = constants.SyncStatusActive
		}
		summaries = append(summaries, dto.CalendarSummary{
			ID:           conn.ID.String(),
			Provider:     conn.Provider,
			AccountEmail: conn.AccountEmail,
			SyncStatus:   status,
			LastSyncedAt: conn.LastSyncedAt,
			ConnectedAt:  conn.CreatedAt,
		})
	}
	return summaries, nil
}

// InitiateOAuth starts the connect flow: a signed state token plus the
// provider's consent URL pointing back at the fixed callback path.
func (service *calendarService) InitiateOAuth(ctx context.Context, userID uuid.UUID, providerName, returnPath string) (*dto.OAuthInitiateResponse, *errors.AppError) {
	if userID == uuid.Nil {
		return nil, errors.NewAppError(errors.ErrInvalidInput, "user id is required", nil)
	}
	if !dto.ValidProvider(providerName) {
		return nil, errors.NewAppError(errors.ErrInvalidInput, "unsupported calendar provider", nil)
	}

	prov, err := service.providerFor(providerName)
	if err != nil {
		logger.Error("CalendarService:InitiateOAuth:Provider:Error", "error", err, "provider", providerName)
		return nil, errors.NewAppError(errors.ErrInternalServer, "failed to initialize calendar provider", err)
	}

	state, err := service.stateCodec.Generate(userID, returnPath)
	if err != nil {
		logger.Error("CalendarService:InitiateOAuth:GenerateState:Error", "error", err, "user_id", userID)
		return nil, errors.NewAppError(errors.ErrInternalServer, "failed to generate state token", err)
	}

	redirectURI := service.cfg.Server.BaseURL + constants.OAuthCallbackPath
	return &dto.OAuthInitiateResponse{
		AuthorizationURL: prov.AuthorizationURL(state, redirectURI),
		State:            state,
	}, nil
}

// HandleCallback completes the OAuth handshake. The state token is the sole
// CSRF defense here and is validated before any token exchange happens.
// Re-authorizing an already-connected (user, provider, email) account updates
// the existing record and clears last_synced_at to force a fresh sync.
func (service *calendarService) HandleCallback(ctx context.Context, code, state, providerName string) (*dto.OAuthCallbackResult, *errors.AppError) {
	if code == "" || state == "" || providerName == "" {
		return nil, errors.NewAppError(errors.ErrInvalidInput, "code, state and provider are required", nil)
	}

	stateResult := service.stateCodec.Validate(state)
	if !stateResult.Valid {
		logger.Warn("CalendarService:HandleCallback:InvalidState", "provider", providerName)
		return nil, errors.NewAppError(errors.ErrInvalidInput, "invalid or expired state token, please restart the connect flow", nil)
	}
	userID := stateResult.UserID

	if !dto.ValidProvider(providerName) {
		return nil, errors.NewAppError(errors.ErrInvalidInput, "unsupported calendar provider", nil)
	}

	prov, err := service.providerFor(providerName)
	if err != nil {
		logger.Error("CalendarService:HandleCallback:Provider:Error", "error", err, "provider", providerName)
		return nil, errors.NewAppError(errors.ErrInternalServer, "failed to initialize calendar provider", err)
	}

	redirectURI := service.cfg.Server.BaseURL + constants.OAuthCallbackPath
	tokens, err := prov.ExchangeCode(ctx, code, redirectURI)
	if err != nil {
		logger.Error("CalendarService:HandleCallback:ExchangeCode:Error", "error", err, "provider", providerName, "user_id", userID)
		return nil, errors.NewAppError(errors.ErrInternalServer, "failed to exchange authorization code", err)
	}

	email, err := prov.UserEmail(ctx, tokens.AccessToken)
	if err != nil {
		logger.Error("CalendarService:HandleCallback:UserEmail:Error", "error", err, "provider", providerName, "user_id", userID)
		return nil, errors.NewAppError(errors.ErrInternalServer, "failed to identify connected account", err)
	}

	encryptedAccess, err := service.vault.Encrypt(tokens.AccessToken)
	if err != nil {
		logger.Error("CalendarService:HandleCallback:EncryptAccess:Error", "error", err, "user_id", userID)
		return nil, errors.NewAppError(errors.ErrInternalServer, "failed to encrypt tokens", err)
	}
	encryptedRefresh, err := service.vault.Encrypt(tokens.RefreshToken)
	if err != nil {
		logger.Error("CalendarService:HandleCallback:EncryptRefresh:Error", "error", err, "user_id", userID)
		return nil, errors.NewAppError(errors.ErrInternalServer, "failed to encrypt tokens", err)
	}

	var expiresAt *time.Time
	if !tokens.ExpiresAt.IsZero() {
		expiry := tokens.ExpiresAt
		expiresAt = &expiry
	}

	existing, err := service.repo.FindByUserProviderEmail(ctx, userID, providerName, email)
	if err != nil {
		logger.Error("CalendarService:HandleCallback:FindExisting:Error", "error", err, "user_id", userID)
		return nil, errors.NewAppError(errors.ErrInternalServer, "failed to look up existing connection", err)
	}

	var conn *entity.CalendarConnection
	if existing != nil {
		existing.AccessToken = encryptedAccess
		existing.RefreshToken = encryptedRefresh
		existing.TokenExpiresAt = expiresAt
		// Force a full resync after re-authorization.
		existing.LastSyncedAt = nil
		if err := service.repo.Update(ctx, existing); err != nil {
			logger.Error("CalendarService:HandleCallback:Update:Error", "error", err, "connection_id", existing.ID)
			return nil, errors.NewAppError(errors.ErrInternalServer, "failed to update calendar connection", err)
		}
		conn = existing
	} else {
		created, err := service.repo.Create(ctx, &entity.CalendarConnection{
			UserID:         userID,
			Provider:       providerName,
			AccountEmail:   email,
			AccessToken:    encryptedAccess,
			RefreshToken:   encryptedRefresh,
			TokenExpiresAt: expiresAt,
		})
		if err != nil {
			logger.Error("CalendarService:HandleCallback:Create:Error", "error", err, "user_id", userID)
			return nil, errors.NewAppError(errors.ErrInternalServer, "failed to create calendar connection", err)
		}
		conn = created
	}

	service.audit.Record(ctx, userID, auditEntity.ActionCalendarConnected, "calendar_connection", conn.ID.String(), map[string]any{
		"provider":      providerName,
		"account_email": email,
	})

	logger.Info("CalendarService:HandleCallback:Connected", "user_id", userID, "provider", providerName, "connection_id", conn.ID)
	return &dto.OAuthCallbackResult{
		ConnectionID: conn.ID.String(),
		ReturnPath:   stateResult.ReturnPath,
	}, nil
}

// DisconnectCalendar revokes upstream (best effort), removes the synced
// events, then the connection. Revocation failures never block the local
// removal.
func (service *calendarService) DisconnectCalendar(ctx context.Context, userID, connectionID uuid.UUID) *errors.AppError {
	conn, appErr := service.getOwnedConnection(ctx, userID, connectionID)
	if appErr != nil {
		return appErr
	}

	if prov, err := service.providerFor(conn.Provider); err != nil {
		logger.Error("CalendarService:DisconnectCalendar:Provider:Error", "error", err, "provider", conn.Provider)
	} else if accessToken, err := service.vault.Decrypt(conn.AccessToken); err != nil {
		logger.Error("CalendarService:DisconnectCalendar:Decrypt:Error", "error", err, "connection_id", connectionID)
	} else if err := prov.RevokeToken(ctx, accessToken); err != nil {
		logger.Warn("CalendarService:DisconnectCalendar:Revoke:Error", "error", err, "connection_id", connectionID)
	}

	if err := service.events.DeleteByCalendarID(ctx, connectionID); err != nil {
		logger.Error("CalendarService:DisconnectCalendar:DeleteEvents:Error", "error", err, "connection_id", connectionID)
		return errors.NewAppError(errors.ErrInternalServer, "failed to remove synced events", err)
	}
	if err := service.repo.Delete(ctx, connectionID); err != nil {
		logger.Error("CalendarService:DisconnectCalendar:Delete:Error", "error", err, "connection_id", connectionID)
		return errors.NewAppError(errors.ErrInternalServer, "failed to delete calendar connection", err)
	}

	service.audit.Record(ctx, userID, auditEntity.ActionCalendarDisconnected, "calendar_connection", connectionID.String(), map[string]any{
		"provider":      conn.Provider,
		"account_email": conn.AccountEmail,
	})

	logger.Info("CalendarService:DisconnectCalendar:Disconnected", "user_id", userID, "connection_id", connectionID)
	return nil
}

// SyncCalendar runs one reconciliation pass for one connection.
func (service *calendarService) SyncCalendar(ctx context.Context, userID, connectionID uuid.UUID) (*dto.SyncResult, *errors.AppError) {
	// Rate limit first: a rejected attempt must leave no side effects.
	if appErr := service.rateLimiter.CheckSyncRateLimit(ctx, connectionID); appErr != nil {
		return nil, appErr
	}

	conn, appErr := service.getOwnedConnection(ctx, userID, connectionID)
	if appErr != nil {
		return nil, appErr
	}

	runID := utils.GenerateID()
	logger.Info("CalendarService:SyncCalendar:Start", "run_id", runID, "connection_id", connectionID, "provider", conn.Provider)

	prov, err := service.providerFor(conn.Provider)
	if err != nil {
		logger.Error("CalendarService:SyncCalendar:Provider:Error", "run_id", runID, "error", err, "provider", conn.Provider)
		return nil, errors.NewAppError(errors.ErrInternalServer, "failed to initialize calendar provider", err)
	}

	accessToken, appErr := service.ensureValidToken(ctx, runID, conn, prov)
	if appErr != nil {
		return nil, appErr
	}

	now := service.now()
	windowStart := now.Add(-constants.SyncWindowPast)
	windowEnd := now.Add(constants.SyncWindowFuture)
	externalEvents, err := prov.FetchEvents(ctx, accessToken, windowStart, windowEnd)
	if err != nil {
		logger.Error("CalendarService:SyncCalendar:FetchEvents:Error", "run_id", runID, "error", err, "connection_id", connectionID)
		return nil, errors.NewAppError(errors.ErrInternalServer, "failed to fetch events from provider", err)
	}

	// Synced events need a family to live in.
	families, err := service.families.FindByUserID(ctx, userID)
	if err != nil {
		logger.Error("CalendarService:SyncCalendar:FindFamilies:Error", "run_id", runID, "error", err, "user_id", userID)
		return nil, errors.NewAppError(errors.ErrInternalServer, "failed to resolve family membership", err)
	}
	if len(families) == 0 {
		return nil, errors.NewAppError(errors.ErrInvalidInput, "user must belong to a family before syncing calendars", nil)
	}
	// Oldest membership wins; the repository guarantees stable ordering.
	familyID := families[0].ID

	existing, err := service.events.FindSyncedByCalendarID(ctx, connectionID)
	if err != nil {
		logger.Error("CalendarService:SyncCalendar:FindSynced:Error", "run_id", runID, "error", err, "connection_id", connectionID)
		return nil, errors.NewAppError(errors.ErrInternalServer, "failed to load synced events", err)
	}

	stats, err := service.reconciler.Reconcile(ctx, familyID, connectionID, externalEvents, existing)
	if err != nil {
		logger.Error("CalendarService:SyncCalendar:Reconcile:Error", "run_id", runID, "error", err, "connection_id", connectionID)
		return nil, errors.NewAppError(errors.ErrInternalServer, "failed to reconcile events", err)
	}

	syncedAt := service.now()
	if err := service.repo.UpdateLastSyncedAt(ctx, connectionID, syncedAt); err != nil {
		logger.Error("CalendarService:SyncCalendar:UpdateLastSyncedAt:Error", "run_id", runID, "error", err, "connection_id", connectionID)
		return nil, errors.NewAppError(errors.ErrInternalServer, "failed to record sync time", err)
	}

	if err := service.rateLimiter.RecordSync(ctx, connectionID); err != nil {
		// The sync itself succeeded; a missing cooldown stamp only weakens
		// rate limiting, so log and continue.
		logger.Error("CalendarService:SyncCalendar:RecordSync:Error", "run_id", runID, "error", err, "connection_id", connectionID)
	}

	status := dto.SyncStatusSuccess
	if stats.Updated > 0 || stats.Removed > 0 {
		status = dto.SyncStatusPartial
	}

	service.audit.Record(ctx, userID, auditEntity.ActionCalendarSynced, "calendar_connection", connectionID.String(), map[string]any{
		"provider":       conn.Provider,
		"events_added":   stats.Added,
		"events_updated": stats.Updated,
		"events_removed": stats.Removed,
		"status":         status,
	})

	logger.Info("CalendarService:SyncCalendar:Complete",
		"run_id", runID,
		"connection_id", connectionID,
		"added", stats.Added,
		"updated", stats.Updated,
		"removed", stats.Removed,
		"status", status,
	)

	return &dto.SyncResult{
		ConnectionID:  connectionID.String(),
		SyncedAt:      syncedAt,
		EventsAdded:   stats.Added,
		EventsUpdated: stats.Updated,
		EventsRemoved: stats.Removed,
		Status:        status,
	}, nil
}

// SyncAllCalendars syncs every connection of a user sequentially. One
// connection failing — a rate limit rejection included — becomes an
// error-status entry for that connection only; the sweep never aborts.
func (service *calendarService) SyncAllCalendars(ctx context.Context, userID uuid.UUID) ([]dto.SyncResult, *errors.AppError) {
	if userID == uuid.Nil {
		return nil, errors.NewAppError(errors.ErrInvalidInput, "user id is required", nil)
	}

	connections, err := service.repo.FindByUserID(ctx, userID)
	if err != nil {
		logger.Error("CalendarService:SyncAllCalendars:FindByUserID:Error", "error", err, "user_id", userID)
		return nil, errors.NewAppError(errors.ErrInternalServer, "failed to list calendar connections", err)
	}

	results := make([]dto.SyncResult, 0, len(connections))
	for _, conn := range connections {
		result, appErr := service.SyncCalendar(ctx, userID, conn.ID)
		if appErr != nil {
			logger.Warn("CalendarService:SyncAllCalendars:ConnectionFailed",
				"connection_id", conn.ID, "code", appErr.Code, "message", appErr.Message)
			results = append(results, dto.SyncResult{
				ConnectionID: conn.ID.String(),
				SyncedAt:     service.now(),
				Status:       dto.SyncStatusError,
				Error:        appErr.Message,
			})
			continue
		}
		results = append(results, *result)
	}
	return results, nil
}

// getOwnedConnection loads a connection and enforces that the caller owns it.
func (service *calendarService) getOwnedConnection(ctx context.Context, userID, connectionID uuid.UUID) (*entity.CalendarConnection, *errors.AppError) {
	if userID == uuid.Nil || connectionID == uuid.Nil {
		return nil, errors.NewAppError(errors.ErrInvalidInput, "user id and connection id are required", nil)
	}

	conn, err := service.repo.FindByID(ctx, connectionID)
	if err != nil {
		logger.Error("CalendarService:getOwnedConnection:FindByID:Error", "error", err, "connection_id", connectionID)
		return nil, errors.NewAppError(errors.ErrInternalServer, "failed to load calendar connection", err)
	}
	if conn == nil {
		return nil, errors.NewAppError(errors.ErrNotFound, "calendar connection not found", nil)
	}
	if conn.UserID != userID {
		return nil, errors.NewAppError(errors.ErrForbidden, "calendar connection belongs to another user", nil)
	}
	return conn, nil
}

// ensureValidToken decrypts the stored access token, refreshing it first when
// expired. The refreshed tokens are persisted before they are used: if the
// write fails, the sync fails rather than running on credentials the next
// sync won't have.
func (service *calendarService) ensureValidToken(ctx context.Context, runID string, conn *entity.CalendarConnection, prov provider.CalendarProvider) (string, *errors.AppError) {
	accessToken, err := service.vault.Decrypt(conn.AccessToken)
	if err != nil {
		logger.Error("CalendarService:ensureValidToken:DecryptAccess:Error", "run_id", runID, "error", err, "connection_id", conn.ID)
		return "", errors.NewAppError(errors.ErrInternalServer, "failed to decrypt stored tokens", err)
	}

	if !conn.TokenExpired(service.now()) {
		return accessToken, nil
	}

	logger.Info("CalendarService:ensureValidToken:Refreshing", "run_id", runID, "connection_id", conn.ID)

	refreshToken, err := service.vault.Decrypt(conn.RefreshToken)
	if err != nil {
		logger.Error("CalendarService:ensureValidToken:DecryptRefresh:Error", "run_id", runID, "error", err, "connection_id", conn.ID)
		return "", errors.NewAppError(errors.ErrInternalServer, "failed to decrypt stored tokens", err)
	}

	newTokens, err := prov.RefreshToken(ctx, refreshToken)
	if err != nil {
		logger.Error("CalendarService:ensureValidToken:Refresh:Error", "run_id", runID, "error", err, "connection_id", conn.ID)
		return "", errors.NewAppError(errors.ErrInternalServer, "failed to refresh access token", err)
	}

	// Some providers rotate the refresh token, some omit it. Keep the prior
	// one when absent or future refreshes become impossible.
	rotatedRefresh := newTokens.RefreshToken
	if rotatedRefresh == "" {
		rotatedRefresh = refreshToken
	}

	encryptedAccess, err := service.vault.Encrypt(newTokens.AccessToken)
	if err != nil {
		logger.Error("CalendarService:ensureValidToken:EncryptAccess:Error", "run_id", runID, "error", err, "connection_id", conn.ID)
		return "", errors.NewAppError(errors.ErrInternalServer, "failed to encrypt refreshed tokens", err)
	}
	encryptedRefresh, err := service.vault.Encrypt(rotatedRefresh)
	if err != nil {
		logger.Error("CalendarService:ensureValidToken:EncryptRefresh:Error", "run_id", runID, "error", err, "connection_id", conn.ID)
		return "", errors.NewAppError(errors.ErrInternalServer, "failed to encrypt refreshed tokens", err)
	}

	conn.AccessToken = encryptedAccess
	conn.RefreshToken = encryptedRefresh
	if !newTokens.ExpiresAt.IsZero() {
		expiry := newTokens.ExpiresAt
		conn.TokenExpiresAt = &expiry
	}

	if err := service.repo.Update(ctx, conn); err != nil {
		logger.Error("CalendarService:ensureValidToken:Persist:Error", "run_id", runID, "error", err, "connection_id", conn.ID)
		return "", errors.NewAppError(errors.ErrInternalServer, "failed to persist refreshed tokens", err)
	}

	return newTokens.AccessToken, nil
}
