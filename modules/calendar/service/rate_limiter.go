package service

import (
	"context"
	"time"

	"github.com/google/uuid"

	"familycal/core/cache"
	"familycal/core/constants"
	"familycal/core/errors"
	"familycal/core/logger"
)

// SyncRateLimiter enforces a minimum interval between sync attempts per
// connection. State lives in the injected cache, so the window is shared
// across instances when the cache is redis-backed.
type SyncRateLimiter struct {
	cache    cache.Cache
	cooldown time.Duration
}

func NewSyncRateLimiter(c cache.Cache) *SyncRateLimiter {
	return &SyncRateLimiter{
		cache:    c,
		cooldown: constants.SyncCooldown,
	}
}

// CheckSyncRateLimit rejects with ErrRateLimited while the connection's
// previous attempt is still inside the cooldown window. The error carries
// the remaining wait.
func (l *SyncRateLimiter) CheckSyncRateLimit(ctx context.Context, connectionID uuid.UUID) *errors.AppError {
	remaining, limited, err := l.cache.SyncAttemptedWithin(ctx, connectionID.String())
	if err != nil {
		logger.Error("SyncRateLimiter:CheckSyncRateLimit:Error", "error", err, "connection_id", connectionID)
		return errors.NewAppError(errors.ErrInternalServer, "failed to check sync rate limit", err)
	}
	if limited {
		return errors.NewRateLimitError("calendar was synced recently, please wait before retrying", remaining)
	}
	return nil
}

// RecordSync stamps a dispatched sync attempt. Callers invoke it only once a
// sync actually ran, not when one was merely requested.
func (l *SyncRateLimiter) RecordSync(ctx context.Context, connectionID uuid.UUID) error {
	return l.cache.RecordSyncAttempt(ctx, connectionID.String(), l.cooldown)
}
