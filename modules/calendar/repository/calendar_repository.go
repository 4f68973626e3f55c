package repository

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"

	"familycal/core/database"
	"familycal/modules/calendar/entity"
)

type CalendarRepository interface {
	Create(ctx context.Context, conn *entity.CalendarConnection) (*entity.CalendarConnection, error)
	Update(ctx context.Context, conn *entity.CalendarConnection) error
	Delete(ctx context.Context, id uuid.UUID) error
	FindByID(ctx context.Context, id uuid.UUID) (*entity.CalendarConnection, error)
	FindByUserID(ctx context.Context, userID uuid.UUID) ([]entity.CalendarConnection, error)
	// FindByUserProviderEmail resolves the (user, provider, account email)
	// dedup key used on re-authorization.
	FindByUserProviderEmail(ctx context.Context, userID uuid.UUID, provider, email string) (*entity.CalendarConnection, error)
	UpdateLastSyncedAt(ctx context.Context, id uuid.UUID, syncedAt time.Time) error
	// ListUserIDsWithConnections feeds the background sync-all sweep.
	ListUserIDsWithConnections(ctx context.Context) ([]uuid.UUID, error)
}

type calendarRepository struct {
	db database.IDatabase
}

func NewCalendarRepository(db database.IDatabase) CalendarRepository {
	return &calendarRepository{db: db}
}

const connectionColumns = `id, user_id, provider, account_email, access_token, refresh_token, token_expires_at, last_synced_at, created_at, updated_at`

func (r *calendarRepository) Create(ctx context.Context, conn *entity.CalendarConnection) (*entity.CalendarConnection, error) {
	query := `
		INSERT INTO calendar_connections (user_id, provider, account_email, access_token, refresh_token, token_expires_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id, created_at, updated_at
	`
	err := r.db.QueryRowContext(
		ctx, query,
		conn.UserID, conn.Provider, conn.AccountEmail,
		conn.AccessToken, conn.RefreshToken, conn.TokenExpiresAt,
	).Scan(&conn.ID, &conn.CreatedAt, &conn.UpdatedAt)

	if err != nil {
		return nil, err
	}
	return conn, nil
}

func (r *calendarRepository) Update(ctx context.Context, conn *entity.CalendarConnection) error {
	query := `
		UPDATE calendar_connections
		SET access_token = $1, refresh_token = $2, token_expires_at = $3, last_synced_at = $4, updated_at = NOW()
		WHERE id = $5
	`
	return r.db.ExecContext(ctx, query,
		conn.AccessToken, conn.RefreshToken, conn.TokenExpiresAt, conn.LastSyncedAt, conn.ID,
	)
}

func (r *calendarRepository) Delete(ctx context.Context, id uuid.UUID) error {
	query := `DELETE FROM calendar_connections WHERE id = $1`
	return r.db.ExecContext(ctx, query, id)
}

func (r *calendarRepository) FindByID(ctx context.Context, id uuid.UUID) (*entity.CalendarConnection, error) {
	query := `SELECT ` + connectionColumns + ` FROM calendar_connections WHERE id = $1`

	var conn entity.CalendarConnection
	if err := r.db.GetContext(ctx, &conn, query, id); err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, err
	}
	return &conn, nil
}

func (r *calendarRepository) FindByUserID(ctx context.Context, userID uuid.UUID) ([]entity.CalendarConnection, error) {
	query := `
		SELECT ` + connectionColumns + `
		FROM calendar_connections
		WHERE user_id = $1
		ORDER BY created_at ASC
	`
	var connections []entity.CalendarConnection
	if err := r.db.SelectContext(ctx, &connections, query, userID); err != nil {
		return nil, err
	}
	return connections, nil
}

func (r *calendarRepository) FindByUserProviderEmail(ctx context.Context, userID uuid.UUID, provider, email string) (*entity.CalendarConnection, error) {
	query := `
		SELECT ` + connectionColumns + `
		FROM calendar_connections
		WHERE user_id = $1 AND provider = $2 AND account_email = $3
	`
	var conn entity.CalendarConnection
	if err := r.db.GetContext(ctx, &conn, query, userID, provider, email); err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, err
	}
	return &conn, nil
}

func (r *calendarRepository) UpdateLastSyncedAt(ctx context.Context, id uuid.UUID, syncedAt time.Time) error {
	query := `
		UPDATE calendar_connections
		SET last_synced_at = $1, updated_at = NOW()
		WHERE id = $2
	`
	return r.db.ExecContext(ctx, query, syncedAt, id)
}

func (r *calendarRepository) ListUserIDsWithConnections(ctx context.Context) ([]uuid.UUID, error) {
	query := `SELECT DISTINCT user_id FROM calendar_connections`

	var userIDs []uuid.UUID
	if err := r.db.SelectContext(ctx, &userIDs, query); err != nil {
		return nil, err
	}
	return userIDs, nil
}
