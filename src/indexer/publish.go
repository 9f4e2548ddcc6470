package indexer

import (
	"context"

	"github.com/redis/go-redis/v9"

	"github.com/stake-plus/devhub-cache/src/data"
)

// RedisPublisher appends pass summaries to the sync stream so other services
// can react to fresh data.
type RedisPublisher struct {
	rdb    *redis.Client
	maxLen int64
}

func NewRedisPublisher(rdb *redis.Client) *RedisPublisher {
	return &RedisPublisher{rdb: rdb, maxLen: 10000}
}

func (p *RedisPublisher) PublishPass(ctx context.Context, res PassResult) error {
	return data.PublishSync(ctx, p.rdb, p.maxLen, map[string]interface{}{
		"pass_id":     res.ID,
		"fetched":     res.Fetched,
		"processed":   res.Processed,
		"after_date":  res.Cursor.LastTimestamp,
		"after_block": res.Cursor.LastBlockHeight,
	})
}
