// Package lock provides keyed advisory locks, in-process or shared through
// Redis.
package lock

import (
	"context"
	"errors"
	"sort"
	"sync"
)

// ErrNotAcquired is returned by TryLock when the key is held elsewhere.
var ErrNotAcquired = errors.New("lock: not acquired")

// Unlock releases a held lock. It is safe to call more than once.
type Unlock func()

// Locker hands out exclusive locks per key.
type Locker interface {
	// Lock blocks until key is held or ctx ends.
	Lock(ctx context.Context, key string) (Unlock, error)
	// TryLock acquires key without waiting or returns ErrNotAcquired.
	TryLock(ctx context.Context, key string) (Unlock, error)
}

// LockAll takes every key in sorted order so concurrent callers cannot
// deadlock. Duplicate keys are taken once.
func LockAll(ctx context.Context, l Locker, keys ...string) (Unlock, error) {
	sorted := append([]string(nil), keys...)
	sort.Strings(sorted)

	var held []Unlock
	release := func() {
		for i := len(held) - 1; i >= 0; i-- {
			held[i]()
		}
	}
	for i, key := range sorted {
		if i > 0 && key == sorted[i-1] {
			continue
		}
		unlock, err := l.Lock(ctx, key)
		if err != nil {
			release()
			return nil, err
		}
		held = append(held, unlock)
	}
	return once(release), nil
}

func once(fn func()) Unlock {
	var o sync.Once
	return func() { o.Do(fn) }
}

// Local is an in-process Locker.
type Local struct {
	mu    sync.Mutex
	locks map[string]*entry
}

type entry struct {
	ch   chan struct{}
	refs int
}

func NewLocal() *Local {
	return &Local{locks: make(map[string]*entry)}
}

func (l *Local) acquireEntry(key string) *entry {
	l.mu.Lock()
	defer l.mu.Unlock()
	e, ok := l.locks[key]
	if !ok {
		e = &entry{ch: make(chan struct{}, 1)}
		l.locks[key] = e
	}
	e.refs++
	return e
}

func (l *Local) releaseEntry(key string, e *entry) {
	l.mu.Lock()
	defer l.mu.Unlock()
	e.refs--
	if e.refs == 0 {
		delete(l.locks, key)
	}
}

func (l *Local) Lock(ctx context.Context, key string) (Unlock, error) {
	e := l.acquireEntry(key)
	select {
	case e.ch <- struct{}{}:
		return once(func() {
			<-e.ch
			l.releaseEntry(key, e)
		}), nil
	case <-ctx.Done():
		l.releaseEntry(key, e)
		return nil, ctx.Err()
	}
}

func (l *Local) TryLock(_ context.Context, key string) (Unlock, error) {
	e := l.acquireEntry(key)
	select {
	case e.ch <- struct{}{}:
		return once(func() {
			<-e.ch
			l.releaseEntry(key, e)
		}), nil
	default:
		l.releaseEntry(key, e)
		return nil, ErrNotAcquired
	}
}
