package indexer

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/stake-plus/devhub-cache/src/devhub"
	"github.com/stake-plus/devhub-cache/src/lock"
	"github.com/stake-plus/devhub-cache/src/metrics"
	"github.com/stake-plus/devhub-cache/src/nearblocks"
	"github.com/stake-plus/devhub-cache/src/store"
)

// Feed supplies new contract transactions oldest first.
type Feed interface {
	FetchNewTransactions(ctx context.Context, account string, pos nearblocks.Position) ([]devhub.Transaction, string, error)
}

// Publisher is told about every completed pass.
type Publisher interface {
	PublishPass(ctx context.Context, res PassResult) error
}

// PassResult summarizes one sync pass.
type PassResult struct {
	ID        string           `json:"id"`
	Fetched   int              `json:"fetched"`
	Processed int              `json:"processed"`
	Cursor    store.SyncCursor `json:"cursor"`
	Skipped   bool             `json:"skipped"`
	Duration  time.Duration    `json:"duration"`
}

// RefreshResult tells a reader what the freshness gate did.
type RefreshResult struct {
	// Ran is false when the cache was fresh enough.
	Ran bool
	// Shared is true when this caller joined a pass started by another.
	Shared bool
	Pass   PassResult
}

type Options struct {
	Account   string
	TTL       time.Duration
	Locker    lock.Locker
	Publisher Publisher
	Now       func() time.Time
}

// Syncer runs sync passes: fetch from the feed, dispatch, advance the cursor.
// At most one pass runs per process, and per deployment when the locker is
// shared.
type Syncer struct {
	tracker    *Tracker
	feed       Feed
	dispatcher *Dispatcher
	locker     lock.Locker
	publisher  Publisher
	account    string
	gate       Gate
	now        func() time.Time
	group      singleflight.Group
	log        *zap.Logger
}

func NewSyncer(tracker *Tracker, feed Feed, dispatcher *Dispatcher, opts Options, log *zap.Logger) *Syncer {
	s := &Syncer{
		tracker:    tracker,
		feed:       feed,
		dispatcher: dispatcher,
		locker:     opts.Locker,
		publisher:  opts.Publisher,
		account:    opts.Account,
		gate:       Gate{TTL: opts.TTL},
		now:        opts.Now,
		log:        log.Named("syncer"),
	}
	if s.locker == nil {
		s.locker = lock.NewLocal()
	}
	if s.now == nil {
		s.now = time.Now
	}
	return s
}

// Tracker exposes the cursor tracker for admin operations.
func (s *Syncer) Tracker() *Tracker { return s.tracker }

// Refresh runs a pass when the gate says the cache is stale. Concurrent
// callers share one pass.
func (s *Syncer) Refresh(ctx context.Context) (RefreshResult, error) {
	cur, err := s.tracker.Load(ctx)
	if err != nil {
		return RefreshResult{}, err
	}
	if !s.gate.ShouldRefresh(s.now().UnixNano(), cur) {
		return RefreshResult{}, nil
	}

	// singleflight reports shared to the leader too once anyone joins, so
	// ownership is tracked per call.
	owner := false
	v, err, _ := s.group.Do("sync", func() (any, error) {
		owner = true
		return s.SyncOnce(context.WithoutCancel(ctx))
	})
	res, _ := v.(PassResult)
	return RefreshResult{Ran: true, Shared: !owner, Pass: res}, err
}

// SyncOnce runs one pass unless another replica holds the sync lock.
func (s *Syncer) SyncOnce(ctx context.Context) (PassResult, error) {
	unlock, err := s.locker.TryLock(ctx, "sync")
	if errors.Is(err, lock.ErrNotAcquired) {
		metrics.SyncPasses.WithLabelValues("skipped").Inc()
		s.log.Debug("sync already running elsewhere")
		return PassResult{Skipped: true}, nil
	}
	if err != nil {
		return PassResult{}, err
	}
	defer unlock()

	cur, err := s.tracker.Load(ctx)
	if err != nil {
		return PassResult{}, err
	}
	_, res, err := s.RunPass(ctx, cur)
	return res, err
}

// RunPass fetches everything after cur, applies it and persists the advanced
// watermark, which it also returns. A fatal transaction error leaves the
// stored watermark untouched. A feed error still applies and records what
// was fetched before the failing page, then reports the error.
func (s *Syncer) RunPass(ctx context.Context, cur store.SyncCursor) (_ store.SyncCursor, res PassResult, _ error) {
	start := time.Now()
	res = PassResult{ID: uuid.NewString(), Cursor: cur}
	log := s.log.With(zap.String("pass_id", res.ID))
	defer func() {
		res.Duration = time.Since(start)
		metrics.SyncPassDuration.Observe(res.Duration.Seconds())
	}()

	pos := nearblocks.Position{Cursor: cur.Cursor, AfterBlock: cur.LastBlockHeight}
	txns, next, feedErr := s.feed.FetchNewTransactions(ctx, s.account, pos)
	res.Fetched = len(txns)

	processed, err := s.dispatcher.Process(ctx, txns)
	res.Processed = processed
	if err != nil {
		metrics.SyncPasses.WithLabelValues("halted").Inc()
		log.Error("sync pass halted", zap.Int("processed", processed), zap.Int("fetched", len(txns)), zap.Error(err))
		return cur, res, fmt.Errorf("indexer: pass halted after %d of %d transactions: %w", processed, len(txns), err)
	}

	advanced := Advance(cur, txns, next)
	if err := s.tracker.Save(ctx, advanced); err != nil {
		metrics.SyncPasses.WithLabelValues("error").Inc()
		return cur, res, err
	}
	res.Cursor = advanced

	if feedErr != nil {
		metrics.SyncPasses.WithLabelValues("feed_error").Inc()
		log.Warn("feed failed mid-pass", zap.Int("processed", processed), zap.String("resume_cursor", next), zap.Error(feedErr))
		return advanced, res, fmt.Errorf("indexer: feed: %w", feedErr)
	}

	metrics.SyncPasses.WithLabelValues("ok").Inc()
	log.Info("sync pass complete",
		zap.Int("processed", processed),
		zap.Int64("after_date", advanced.LastTimestamp),
		zap.Int64("after_block", advanced.LastBlockHeight),
		zap.Duration("took", time.Since(start)))

	if s.publisher != nil {
		res.Duration = time.Since(start)
		if err := s.publisher.PublishPass(ctx, res); err != nil {
			log.Warn("publish pass failed", zap.Error(err))
		}
	}
	return advanced, res, nil
}
