package indexer

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Refresher triggers the freshness gate on a timer so the cache stays warm
// without read traffic.
type Refresher struct {
	syncer   *Syncer
	interval time.Duration
	log      *zap.Logger

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

func NewRefresher(s *Syncer, interval time.Duration, log *zap.Logger) *Refresher {
	return &Refresher{syncer: s, interval: interval, log: log.Named("refresher")}
}

func (r *Refresher) Name() string { return "refresher" }

func (r *Refresher) Start(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.cancel != nil {
		return nil
	}
	ctx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	r.cancel = cancel
	r.done = make(chan struct{})
	go r.loop(ctx, r.done)
	r.log.Info("background refresh enabled", zap.Duration("interval", r.interval))
	return nil
}

func (r *Refresher) loop(ctx context.Context, done chan struct{}) {
	defer close(done)
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			res, err := r.syncer.Refresh(ctx)
			if err != nil {
				r.log.Warn("background refresh failed", zap.Error(err))
				continue
			}
			if res.Ran {
				r.log.Debug("background refresh", zap.Int("processed", res.Pass.Processed))
			}
		}
	}
}

func (r *Refresher) Stop(ctx context.Context) {
	r.mu.Lock()
	cancel, done := r.cancel, r.done
	r.cancel, r.done = nil, nil
	r.mu.Unlock()
	if cancel == nil {
		return
	}
	cancel()
	select {
	case <-done:
	case <-ctx.Done():
	}
}
