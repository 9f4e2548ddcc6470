package data

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// StreamSync receives one entry per completed sync pass.
const StreamSync = "devhub-cache.sync"

// NewRedis parses url and verifies the server answers.
func NewRedis(ctx context.Context, url string) (*redis.Client, error) {
	opt, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("redis: %w", err)
	}
	rdb := redis.NewClient(opt)
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := rdb.Ping(pingCtx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redis: ping: %w", err)
	}
	return rdb, nil
}

// PublishSync appends a sync pass summary to the sync stream, trimming it to
// roughly maxLen entries.
func PublishSync(ctx context.Context, rdb *redis.Client, maxLen int64, payload map[string]interface{}) error {
	_, err := rdb.XAdd(ctx, &redis.XAddArgs{
		Stream: StreamSync,
		MaxLen: maxLen,
		Approx: true,
		Values: payload,
	}).Result()
	return err
}
