package cache

import (
	"context"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"familycal/core/constants"
	"familycal/core/logger"
)

// Cache holds the short-lived operational state the services need: currently
// the per-connection sync attempt stamps backing the rate limiter. Redis in
// deployment so multiple instances share one cooldown window; the in-memory
// implementation serves single-process setups and tests.
type Cache interface {
	// SyncAttemptedWithin reports whether a sync attempt for the connection
	// is still inside its cooldown window, and how long remains.
	SyncAttemptedWithin(ctx context.Context, connectionID string) (time.Duration, bool, error)
	// RecordSyncAttempt stamps a dispatched sync attempt with the given cooldown.
	RecordSyncAttempt(ctx context.Context, connectionID string, cooldown time.Duration) error
	Close() error
}

type redisCache struct {
	client *redis.Client
}

func NewRedisCache(addr, password string, db int) (Cache, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, err
	}

	logger.Info("Redis cache initialized", "addr", addr, "db", db)
	return &redisCache{client: client}, nil
}

func (c *redisCache) SyncAttemptedWithin(ctx context.Context, connectionID string) (time.Duration, bool, error) {
	key := constants.RedisKeySyncRateLimit + connectionID
	ttl, err := c.client.PTTL(ctx, key).Result()
	if err != nil {
		return 0, false, err
	}
	// PTTL returns a negative duration when the key is missing or unexpiring.
	if ttl <= 0 {
		return 0, false, nil
	}
	return ttl, true, nil
}

func (c *redisCache) RecordSyncAttempt(ctx context.Context, connectionID string, cooldown time.Duration) error {
	key := constants.RedisKeySyncRateLimit + connectionID
	return c.client.Set(ctx, key, time.Now().UTC().Format(time.RFC3339), cooldown).Err()
}

func (c *redisCache) Close() error {
	return c.client.Close()
}

type memoryCache struct {
	mu      sync.Mutex
	expires map[string]time.Time

	// now is swappable in tests.
	now func() time.Time
}

func NewMemoryCache() Cache {
	return &memoryCache{
		expires: make(map[string]time.Time),
		now:     time.Now,
	}
}

// NewMemoryCacheWithClock is the test constructor.
func NewMemoryCacheWithClock(now func() time.Time) Cache {
	return &memoryCache{
		expires: make(map[string]time.Time),
		now:     now,
	}
}

func (c *memoryCache) SyncAttemptedWithin(_ context.Context, connectionID string) (time.Duration, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	expiry, ok := c.expires[connectionID]
	if !ok {
		return 0, false, nil
	}
	remaining := expiry.Sub(c.now())
	if remaining <= 0 {
		delete(c.expires, connectionID)
		return 0, false, nil
	}
	return remaining, true, nil
}

func (c *memoryCache) RecordSyncAttempt(_ context.Context, connectionID string, cooldown time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.expires[connectionID] = c.now().Add(cooldown)
	return nil
}

func (c *memoryCache) Close() error {
	return nil
}
