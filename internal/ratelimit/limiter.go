// Package ratelimit throttles per-user bot actions with fixed Redis windows.
package ratelimit

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/redis/go-redis/v9"
)

type Action string

const (
	ActionGenerate Action = "generate_config"
	ActionReferral Action = "referral_check"
	ActionChannel  Action = "channel_check"
)

type Limit struct {
	Calls  int64
	Window time.Duration
}

var DefaultLimits = map[Action]Limit{
	ActionGenerate: {Calls: 3, Window: time.Minute},
	ActionReferral: {Calls: 5, Window: time.Minute},
	ActionChannel:  {Calls: 10, Window: time.Minute},
}

type Limiter struct {
	rdb    *redis.Client
	limits map[Action]Limit
}

func New(rdb *redis.Client, limits map[Action]Limit) *Limiter {
	return &Limiter{rdb: rdb, limits: limits}
}

// Allow counts one call of action by userID. Unknown actions are unlimited,
// and a Redis failure lets the call through.
func (l *Limiter) Allow(ctx context.Context, userID int64, action Action) bool {
	limit, ok := l.limits[action]
	if !ok {
		return true
	}
	key := fmt.Sprintf("ratelimit:%s:%d", action, userID)

	// ExpireNX in the same transaction gives every counter a TTL, including one
	// left without expiry by an earlier failure, and never extends a window.
	var incr *redis.IntCmd
	_, err := l.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		incr = pipe.Incr(ctx, key)
		pipe.ExpireNX(ctx, key, limit.Window)
		return nil
	})
	if err != nil {
		log.Printf("Rate limiter error for %s: %v", key, err)
		return true
	}
	n := incr.Val()
	if n > limit.Calls {
		log.Printf("Rate limit exceeded for user %d on action %s", userID, action)
		return false
	}
	return true
}
