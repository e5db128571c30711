package call

import (
	"context"
	"log/slog"
	"time"

	"salescrm-platform/pkg/utils"

	"github.com/redis/go-redis/v9"
)

// RedisDialCap implements DialCap on the shared Redis concurrency-cap
// scripts. Slots are leased with a TTL sized to the longest allowed call so a
// crashed process cannot leak them forever.
type RedisDialCap struct {
	rdb   *redis.Client
	limit int
	ttl   time.Duration
	log   *slog.Logger
}

func NewRedisDialCap(rdb *redis.Client, limit int, ttl time.Duration, log *slog.Logger) *RedisDialCap {
	if log == nil {
		log = slog.Default()
	}
	return &RedisDialCap{rdb: rdb, limit: limit, ttl: ttl, log: log}
}

func capKey(orgID string) string {
	return "calls:active:" + orgID
}

func (c *RedisDialCap) Acquire(ctx context.Context, orgID string) (bool, error) {
	return utils.AcquireConcurrencyCap(ctx, c.rdb, capKey(orgID), c.limit, c.ttl)
}

// Release is best-effort; the TTL covers lost releases.
func (c *RedisDialCap) Release(ctx context.Context, orgID string) {
	if err := utils.ReleaseConcurrencyCap(ctx, c.rdb, capKey(orgID)); err != nil {
		c.log.Warn("dial cap release failed", "org_id", orgID, "err", err)
	}
}
