// Package lock provides the in-process user lock used by single-instance deployments.
package lock

import (
	"context"
	"fmt"
	"sync"
	"time"

	"custodial-wallet-engine/pkg/apperror"

	"golang.org/x/sync/semaphore"
)

type entry struct {
	sem  *semaphore.Weighted
	refs int
}

// MemoryLock implements ports.UserLocker with one weighted semaphore per user.
// Entries are reference counted and dropped once no holder or waiter remains.
type MemoryLock struct {
	mu    sync.Mutex
	locks map[string]*entry
	wait  time.Duration
}

// NewMemoryLock creates an in-process user lock. wait bounds acquisition.
func NewMemoryLock(wait time.Duration) *MemoryLock {
	return &MemoryLock{
		locks: make(map[string]*entry),
		wait:  wait,
	}
}

// Lock acquires the user's semaphore.
func (l *MemoryLock) Lock(ctx context.Context, userID string) (func(), error) {
	e := l.acquireEntry(userID)

	waitCtx, cancel := context.WithTimeout(ctx, l.wait)
	defer cancel()

	if err := e.sem.Acquire(waitCtx, 1); err != nil {
		l.releaseEntry(userID, e)
		return nil, apperror.ErrLockTimeout(fmt.Errorf("user %s: %w", userID, err))
	}

	var once sync.Once
	return func() {
		once.Do(func() {
			e.sem.Release(1)
			l.releaseEntry(userID, e)
		})
	}, nil
}

func (l *MemoryLock) acquireEntry(userID string) *entry {
	l.mu.Lock()
	defer l.mu.Unlock()

	e, ok := l.locks[userID]
	if !ok {
		e = &entry{sem: semaphore.NewWeighted(1)}
		l.locks[userID] = e
	}
	e.refs++
	return e
}

func (l *MemoryLock) releaseEntry(userID string, e *entry) {
	l.mu.Lock()
	defer l.mu.Unlock()

	e.refs--
	if e.refs == 0 {
		delete(l.locks, userID)
	}
}

// size is the number of users with a holder or waiter.
func (l *MemoryLock) size() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.locks)
}
