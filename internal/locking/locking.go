// Package locking provides keyed mutual exclusion, in-process or across replicas via Redis.
package locking

import (
	"context"
	"errors"
	"sync"
	"time"
)

var (
	// ErrLockNotAcquired is returned when a lock cannot be acquired before the context ends
	ErrLockNotAcquired = errors.New("lock not acquired")
	// ErrLockNotHeld is returned when trying to release a lock not held
	ErrLockNotHeld = errors.New("lock not held")
)

// Lock is a held lock.
type Lock interface {
	Release(ctx context.Context) error
	// Extend resets the lock's ttl. It returns ErrLockNotHeld once the lock was lost.
	Extend(ctx context.Context, ttl time.Duration) error
}

// Locker acquires exclusive locks by key. Acquire blocks until the lock is held or ctx ends.
// ttl bounds how long a crashed holder can keep the lock; in-process locks ignore it.
type Locker interface {
	Acquire(ctx context.Context, key string, ttl time.Duration) (Lock, error)
}

type localEntry struct {
	sem  chan struct{}
	refs int
}

// LocalLocker is an in-process Locker backed by one semaphore per key.
type LocalLocker struct {
	mu      sync.Mutex
	entries map[string]*localEntry
}

// NewLocalLocker creates an empty LocalLocker.
func NewLocalLocker() *LocalLocker {
	return &LocalLocker{entries: make(map[string]*localEntry)}
}

// Acquire blocks until key is free or ctx is done.
func (l *LocalLocker) Acquire(ctx context.Context, key string, _ time.Duration) (Lock, error) {
	l.mu.Lock()
	e, ok := l.entries[key]
	if !ok {
		e = &localEntry{sem: make(chan struct{}, 1)}
		l.entries[key] = e
	}
	e.refs++
	l.mu.Unlock()

	select {
	case e.sem <- struct{}{}:
		return &localLock{owner: l, key: key, entry: e}, nil
	case <-ctx.Done():
		l.unref(key)
		return nil, errors.Join(ErrLockNotAcquired, ctx.Err())
	}
}

func (l *LocalLocker) unref(key string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	e, ok := l.entries[key]
	if !ok {
		return
	}
	e.refs--
	if e.refs == 0 {
		delete(l.entries, key)
	}
}

type localLock struct {
	owner    *LocalLocker
	key      string
	entry    *localEntry
	released bool
	mu       sync.Mutex
}

func (lk *localLock) Extend(_ context.Context, _ time.Duration) error {
	lk.mu.Lock()
	defer lk.mu.Unlock()
	if lk.released {
		return ErrLockNotHeld
	}
	return nil
}

func (lk *localLock) Release(_ context.Context) error {
	lk.mu.Lock()
	defer lk.mu.Unlock()
	if lk.released {
		return ErrLockNotHeld
	}
	lk.released = true
	<-lk.entry.sem
	lk.owner.unref(lk.key)
	return nil
}

// KeepAlive extends lk every ttl/3 until the returned stop function is called. onLost is
// called once when an extension fails; the holder should treat the lock as gone.
func KeepAlive(ctx context.Context, lk Lock, ttl time.Duration, onLost func(error)) (stop func()) {
	interval := ttl / 3
	if interval <= 0 {
		interval = time.Second
	}
	done := make(chan struct{})
	finished := make(chan struct{})

	go func() {
		defer close(finished)
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-done:
				return
			case <-ctx.Done():
				return
			case <-ticker.C:
				if err := lk.Extend(ctx, ttl); err != nil {
					if onLost != nil {
						onLost(err)
					}
					return
				}
			}
		}
	}()

	var once sync.Once
	return func() {
		once.Do(func() { close(done) })
		<-finished
	}
}
