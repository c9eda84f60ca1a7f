package locking

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLocalLocker_ExclusivePerKey(t *testing.T) {
	l := NewLocalLocker()
	ctx := context.Background()

	var inside, maxInside int32
	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			lk, err := l.Acquire(ctx, "inventory-1", time.Second)
			if !assert.NoError(t, err) {
				return
			}
			n := atomic.AddInt32(&inside, 1)
			for {
				m := atomic.LoadInt32(&maxInside)
				if n <= m || atomic.CompareAndSwapInt32(&maxInside, m, n) {
					break
				}
			}
			time.Sleep(time.Millisecond)
			atomic.AddInt32(&inside, -1)
			assert.NoError(t, lk.Release(ctx))
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), maxInside)
	assert.Empty(t, l.entries)
}

func TestLocalLocker_DifferentKeysDoNotBlock(t *testing.T) {
	l := NewLocalLocker()
	ctx := context.Background()

	a, err := l.Acquire(ctx, "a", 0)
	require.NoError(t, err)
	b, err := l.Acquire(ctx, "b", 0)
	require.NoError(t, err)

	require.NoError(t, a.Release(ctx))
	require.NoError(t, b.Release(ctx))
}

func TestLocalLocker_ContextCancelled(t *testing.T) {
	l := NewLocalLocker()
	held, err := l.Acquire(context.Background(), "k", 0)
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err = l.Acquire(ctx, "k", 0)
	assert.ErrorIs(t, err, ErrLockNotAcquired)
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	require.NoError(t, held.Release(context.Background()))
}

func TestLocalLock_DoubleRelease(t *testing.T) {
	l := NewLocalLocker()
	lk, err := l.Acquire(context.Background(), "k", 0)
	require.NoError(t, err)

	require.NoError(t, lk.Release(context.Background()))
	assert.ErrorIs(t, lk.Release(context.Background()), ErrLockNotHeld)
}

func TestLocalLock_ExtendAfterRelease(t *testing.T) {
	l := NewLocalLocker()
	ctx := context.Background()

	lk, err := l.Acquire(ctx, "inventory-1", time.Second)
	require.NoError(t, err)
	assert.NoError(t, lk.Extend(ctx, time.Second))

	require.NoError(t, lk.Release(ctx))
	assert.ErrorIs(t, lk.Extend(ctx, time.Second), ErrLockNotHeld)
}

type countingLock struct {
	extends atomic.Int32
	failAt  int32
}

func (c *countingLock) Release(context.Context) error { return nil }

func (c *countingLock) Extend(context.Context, time.Duration) error {
	if n := c.extends.Add(1); c.failAt > 0 && n >= c.failAt {
		return ErrLockNotHeld
	}
	return nil
}

func TestKeepAlive_ExtendsUntilStopped(t *testing.T) {
	lk := &countingLock{}
	stop := KeepAlive(context.Background(), lk, 30*time.Millisecond, func(error) {
		t.Error("lock reported lost")
	})

	require.Eventually(t, func() bool { return lk.extends.Load() >= 3 }, time.Second, 5*time.Millisecond)
	stop()
	n := lk.extends.Load()
	time.Sleep(40 * time.Millisecond)
	assert.Equal(t, n, lk.extends.Load())
	stop()
}

func TestKeepAlive_ReportsLostLock(t *testing.T) {
	lk := &countingLock{failAt: 2}
	lost := make(chan error, 1)
	stop := KeepAlive(context.Background(), lk, 15*time.Millisecond, func(err error) { lost <- err })
	defer stop()

	select {
	case err := <-lost:
		assert.ErrorIs(t, err, ErrLockNotHeld)
	case <-time.After(time.Second):
		t.Fatal("lost lock was not reported")
	}
	assert.Equal(t, int32(2), lk.extends.Load())
}
