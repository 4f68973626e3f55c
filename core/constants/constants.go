package constants

import "time"

const (
	DefaultTimeout = 30 * time.Second

	// Sync engine
	SyncCooldown       = 5 * time.Minute
	SyncWindowPast     = 90 * 24 * time.Hour
	SyncWindowFuture   = 365 * 24 * time.Hour
	SyncStatusActive   = "active"
	SyncStatusError    = "error"
	SyncActiveWindow   = 7 * 24 * time.Hour
	OAuthCallbackPath  = "/api/v1/calendar/oauth/callback"
	StateTokenLifetime = 10 * time.Minute

	// Redis keys
	RedisKeySyncRateLimit = "calendar:sync:last:"

	// Database
	DatabaseMaxOpenConns    = 25
	DatabaseMaxIdleConns    = 5
	DatabaseConnMaxLifetime = 30 // minutes
	DatabaseSSLMode         = "disable"

	// Token scopes
	ScopeTokenAccess  = "access"
	ScopeTokenRefresh = "refresh"
)
