package indexer

import (
	"time"

	"github.com/stake-plus/devhub-cache/src/store"
)

// DefaultTTL is how stale the cache may get before a read triggers a sync.
const DefaultTTL = 60 * time.Second

// ShouldRefresh reports whether now (unix nanoseconds) is at least DefaultTTL
// past the chain time of the last processed transaction.
func ShouldRefresh(now int64, c store.SyncCursor) bool {
	return Gate{TTL: DefaultTTL}.ShouldRefresh(now, c)
}

// Gate is the freshness check with a configurable TTL.
type Gate struct {
	TTL time.Duration
}

func (g Gate) ShouldRefresh(now int64, c store.SyncCursor) bool {
	ttl := g.TTL
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return now-c.LastTimestamp >= ttl.Nanoseconds()
}
