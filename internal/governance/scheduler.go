package governance

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

// TimerKind identifies which governance behavior a timer drives.
type TimerKind string

const (
	TimerRecordingStart TimerKind = "recording_start"
	TimerMaxDuration    TimerKind = "max_duration"
)

// Timer is one scheduled governance action, keyed by the call's local id.
type Timer struct {
	Kind   TimerKind
	CallID string
	FireAt time.Time
}

// Scheduler persists timers so governance actions survive process restarts.
// In-process delayed callbacks would silently drop every pending action on
// redeploy; a persisted fire-at plus a polling worker does not.
type Scheduler interface {
	Schedule(ctx context.Context, t Timer) error

	// PopDue atomically removes and returns timers due at or before now.
	PopDue(ctx context.Context, now time.Time, limit int) ([]Timer, error)
}

// RedisScheduler stores timers in a sorted set scored by fire-at.
type RedisScheduler struct {
	rdb *redis.Client
	key string
}

func NewRedisScheduler(rdb *redis.Client) *RedisScheduler {
	return &RedisScheduler{rdb: rdb, key: "governance:timers"}
}

func (s *RedisScheduler) Schedule(ctx context.Context, t Timer) error {
	if t.CallID == "" || t.Kind == "" {
		return errors.New("governance: timer kind and call id required")
	}
	member := string(t.Kind) + "|" + t.CallID
	return s.rdb.ZAdd(ctx, s.key, redis.Z{
		Score:  float64(t.FireAt.UnixMilli()),
		Member: member,
	}).Err()
}

var popDueScript = redis.NewScript(`
-- KEYS[1] = timer zset
-- ARGV[1] = max score (now, ms)
-- ARGV[2] = limit
local due = redis.call('ZRANGEBYSCORE', KEYS[1], '-inf', ARGV[1], 'LIMIT', 0, tonumber(ARGV[2]))
if #due > 0 then
  redis.call('ZREM', KEYS[1], unpack(due))
end
return due
`)

func (s *RedisScheduler) PopDue(ctx context.Context, now time.Time, limit int) ([]Timer, error) {
	if limit <= 0 {
		limit = 100
	}
	raw, err := popDueScript.Run(ctx, s.rdb, []string{s.key}, now.UnixMilli(), limit).StringSlice()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, err
	}

	out := make([]Timer, 0, len(raw))
	for _, member := range raw {
		kind, callID, ok := strings.Cut(member, "|")
		if !ok {
			return nil, fmt.Errorf("governance: malformed timer member %q", member)
		}
		out = append(out, Timer{Kind: TimerKind(kind), CallID: callID, FireAt: now})
	}
	return out, nil
}
