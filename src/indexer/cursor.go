package indexer

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/stake-plus/devhub-cache/src/devhub"
	"github.com/stake-plus/devhub-cache/src/metrics"
	"github.com/stake-plus/devhub-cache/src/store"
)

// Advance returns the watermark after processed were applied: the last
// transaction's timestamp and height (never moving backwards) and next as the
// pagination cursor.
func Advance(cur store.SyncCursor, processed []devhub.Transaction, next string) store.SyncCursor {
	out := cur
	out.Cursor = next
	if n := len(processed); n > 0 {
		last := processed[n-1]
		if ts, err := last.Timestamp(); err == nil && ts > out.LastTimestamp {
			out.LastTimestamp = ts
		}
		if h := last.Height(); h > out.LastBlockHeight {
			out.LastBlockHeight = h
		}
	}
	return out
}

// Tracker persists the sync watermark and serves the admin overrides.
type Tracker struct {
	store *store.Store
	log   *zap.Logger
}

func NewTracker(st *store.Store, log *zap.Logger) *Tracker {
	return &Tracker{store: st, log: log.Named("cursor")}
}

func (t *Tracker) Load(ctx context.Context) (store.SyncCursor, error) {
	return t.store.LoadCursor(ctx)
}

func (t *Tracker) Save(ctx context.Context, c store.SyncCursor) error {
	if err := t.store.SaveCursor(ctx, c); err != nil {
		return err
	}
	metrics.CursorTimestamp.Set(float64(c.LastTimestamp) / 1e9)
	metrics.CursorBlockHeight.Set(float64(c.LastBlockHeight))
	return nil
}

// Reset zeroes the watermark; the next pass replays from genesis.
func (t *Tracker) Reset(ctx context.Context) (store.SyncCursor, error) {
	c := store.SyncCursor{}
	if err := t.Save(ctx, c); err != nil {
		return c, err
	}
	t.log.Warn("cursor reset")
	return c, nil
}

// SetCursor forces the pagination cursor.
func (t *Tracker) SetCursor(ctx context.Context, cursor string) (store.SyncCursor, error) {
	return t.update(ctx, "cursor", func(c *store.SyncCursor) error {
		c.Cursor = cursor
		return nil
	})
}

// SetBlockHeight forces the block height used for cold starts.
func (t *Tracker) SetBlockHeight(ctx context.Context, height int64) (store.SyncCursor, error) {
	return t.update(ctx, "block_height", func(c *store.SyncCursor) error {
		if height < 0 {
			return fmt.Errorf("indexer: negative block height %d", height)
		}
		c.LastBlockHeight = height
		return nil
	})
}

// SetTimestamp forces the last-processed timestamp the freshness gate reads.
func (t *Tracker) SetTimestamp(ctx context.Context, ts int64) (store.SyncCursor, error) {
	return t.update(ctx, "timestamp", func(c *store.SyncCursor) error {
		if ts < 0 {
			return fmt.Errorf("indexer: negative timestamp %d", ts)
		}
		c.LastTimestamp = ts
		return nil
	})
}

func (t *Tracker) update(ctx context.Context, field string, fn func(*store.SyncCursor) error) (store.SyncCursor, error) {
	c, err := t.Load(ctx)
	if err != nil {
		return c, err
	}
	if err := fn(&c); err != nil {
		return c, err
	}
	if err := t.Save(ctx, c); err != nil {
		return c, err
	}
	t.log.Warn("cursor overridden",
		zap.String("field", field),
		zap.Int64("after_date", c.LastTimestamp),
		zap.Int64("after_block", c.LastBlockHeight),
		zap.String("cursor", c.Cursor))
	return c, nil
}
