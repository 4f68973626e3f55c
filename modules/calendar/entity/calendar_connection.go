package entity

import (
	"time"

	"github.com/google/uuid"

	"familycal/core/entity"
)

// CalendarConnection links one user to one external calendar account.
// Tokens are stored encrypted; the plaintext never reaches the database.
// Uniqueness is (user_id, provider, account_email) — re-authorizing the same
// account updates the record instead of duplicating it.
type CalendarConnection struct {
	entity.BaseEntity
	UserID         uuid.UUID  `db:"user_id" json:"user_id"`
	Provider       string     `db:"provider" json:"provider"` // "google" | "outlook"
	AccountEmail   string     `db:"account_email" json:"account_email"`
	AccessToken    string     `db:"access_token" json:"-"`
	RefreshToken   string     `db:"refresh_token" json:"-"`
	TokenExpiresAt *time.Time `db:"token_expires_at" json:"token_expires_at,omitempty"`
	LastSyncedAt   *time.Time `db:"last_synced_at" json:"last_synced_at,omitempty"`
}

func (CalendarConnection) TableName() string {
	return "calendar_connections"
}

// TokenExpired reports whether the stored access token needs a refresh. A
// small margin keeps us from handing an about-to-expire token to a fetch.
func (c *CalendarConnection) TokenExpired(now time.Time) bool {
	if c.TokenExpiresAt == nil {
		return false
	}
	return !now.Before(c.TokenExpiresAt.Add(-2 * time.Minute))
}
