package lock

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// releaseScript deletes the key only while it still carries our token.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// Redis is a Locker shared by every replica using the same Redis. Locks
// expire after ttl so a crashed holder cannot wedge the key forever.
type Redis struct {
	rdb    *redis.Client
	prefix string
	ttl    time.Duration
	poll   time.Duration
	log    *zap.Logger
}

func NewRedis(rdb *redis.Client, prefix string, ttl time.Duration, log *zap.Logger) *Redis {
	if ttl <= 0 {
		ttl = time.Minute
	}
	return &Redis{rdb: rdb, prefix: prefix, ttl: ttl, poll: 50 * time.Millisecond, log: log.Named("lock")}
}

func (r *Redis) acquire(ctx context.Context, key string) (Unlock, bool, error) {
	token := uuid.NewString()
	full := r.prefix + key
	ok, err := r.rdb.SetNX(ctx, full, token, r.ttl).Result()
	if err != nil {
		return nil, false, fmt.Errorf("lock: setnx %s: %w", full, err)
	}
	if !ok {
		return nil, false, nil
	}
	return once(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := releaseScript.Run(ctx, r.rdb, []string{full}, token).Err(); err != nil && !errors.Is(err, redis.Nil) {
			r.log.Warn("release failed", zap.String("key", full), zap.Error(err))
		}
	}), true, nil
}

func (r *Redis) Lock(ctx context.Context, key string) (Unlock, error) {
	for {
		unlock, ok, err := r.acquire(ctx, key)
		if err != nil {
			return nil, err
		}
		if ok {
			return unlock, nil
		}
		t := time.NewTimer(r.poll)
		select {
		case <-ctx.Done():
			t.Stop()
			return nil, ctx.Err()
		case <-t.C:
		}
	}
}

func (r *Redis) TryLock(ctx context.Context, key string) (Unlock, error) {
	unlock, ok, err := r.acquire(ctx, key)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrNotAcquired
	}
	return unlock, nil
}
