package lock

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func exerciseMutualExclusion(t *testing.T, l Locker) {
	t.Helper()
	var inside, maxInside atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			unlock, err := l.Lock(context.Background(), "rfp:1")
			if !assert.NoError(t, err) {
				return
			}
			n := inside.Add(1)
			for {
				m := maxInside.Load()
				if n <= m || maxInside.CompareAndSwap(m, n) {
					break
				}
			}
			time.Sleep(2 * time.Millisecond)
			inside.Add(-1)
			unlock()
		}()
	}
	wg.Wait()
	assert.Equal(t, int32(1), maxInside.Load())
}

func TestLocalMutualExclusion(t *testing.T) {
	exerciseMutualExclusion(t, NewLocal())
}

func TestLocalTryLock(t *testing.T) {
	l := NewLocal()
	unlock, err := l.TryLock(context.Background(), "sync")
	require.NoError(t, err)

	_, err = l.TryLock(context.Background(), "sync")
	assert.ErrorIs(t, err, ErrNotAcquired)

	unlock()
	unlock()
	again, err := l.TryLock(context.Background(), "sync")
	require.NoError(t, err)
	again()
	assert.Empty(t, l.locks)
}

func TestLocalLockHonoursContext(t *testing.T) {
	l := NewLocal()
	unlock, err := l.Lock(context.Background(), "k")
	require.NoError(t, err)
	defer unlock()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	_, err = l.Lock(ctx, "k")
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestLockAllSortsAndDedupes(t *testing.T) {
	l := NewLocal()
	unlock, err := LockAll(context.Background(), l, "rfp:9", "rfp:2", "rfp:9")
	require.NoError(t, err)

	_, err = l.TryLock(context.Background(), "rfp:2")
	assert.ErrorIs(t, err, ErrNotAcquired)

	unlock()
	u2, err := l.TryLock(context.Background(), "rfp:2")
	require.NoError(t, err)
	u2()
}

func newRedisLocker(t *testing.T) (*Redis, *miniredis.Miniredis) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	l := NewRedis(rdb, "devhub-cache:lock:", time.Minute, zap.NewNop())
	l.poll = time.Millisecond
	return l, mr
}

func TestRedisMutualExclusion(t *testing.T) {
	l, _ := newRedisLocker(t)
	exerciseMutualExclusion(t, l)
}

func TestRedisTryLockAndTokenRelease(t *testing.T) {
	l, mr := newRedisLocker(t)
	ctx := context.Background()

	unlock, err := l.TryLock(ctx, "sync")
	require.NoError(t, err)
	assert.True(t, mr.Exists("devhub-cache:lock:sync"))

	_, err = l.TryLock(ctx, "sync")
	assert.ErrorIs(t, err, ErrNotAcquired)

	// Someone else's token must survive our release.
	require.NoError(t, mr.Set("devhub-cache:lock:sync", "other"))
	unlock()
	assert.True(t, mr.Exists("devhub-cache:lock:sync"))

	mr.Del("devhub-cache:lock:sync")
	unlock2, err := l.TryLock(ctx, "sync")
	require.NoError(t, err)
	unlock2()
	assert.False(t, mr.Exists("devhub-cache:lock:sync"))
}
