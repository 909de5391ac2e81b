package ledger

import (
	"context"
	"sync"
	"time"

	"github.com/aristath/ledger/internal/domain"
	"golang.org/x/sync/semaphore"
)

// keyedLocks is a set of per-key weighted semaphores of size one with a bounded wait.
// Entries are reference counted and dropped once no goroutine holds or waits on them.
type keyedLocks struct {
	entries map[string]*lockEntry
	mu      sync.Mutex
}

type lockEntry struct {
	sem  *semaphore.Weighted
	refs int
}

func newKeyedLocks() *keyedLocks {
	return &keyedLocks{entries: make(map[string]*lockEntry)}
}

// acquire blocks until the key is free, the timeout elapses (ErrLockTimeout) or ctx ends.
// The returned func releases the lock.
func (k *keyedLocks) acquire(ctx context.Context, key string, timeout time.Duration) (func(), error) {
	k.mu.Lock()
	e, ok := k.entries[key]
	if !ok {
		e = &lockEntry{sem: semaphore.NewWeighted(1)}
		k.entries[key] = e
	}
	e.refs++
	k.mu.Unlock()

	waitCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	if err := e.sem.Acquire(waitCtx, 1); err != nil {
		k.release(key, e)
		// The caller's own cancellation wins over our deadline.
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, domain.ErrLockTimeout
	}

	var once sync.Once
	return func() {
		once.Do(func() {
			e.sem.Release(1)
			k.release(key, e)
		})
	}, nil
}

func (k *keyedLocks) release(key string, e *lockEntry) {
	k.mu.Lock()
	defer k.mu.Unlock()

	e.refs--
	if e.refs == 0 {
		delete(k.entries, key)
	}
}

// size returns the number of live entries
func (k *keyedLocks) size() int {
	k.mu.Lock()
	defer k.mu.Unlock()
	return len(k.entries)
}
