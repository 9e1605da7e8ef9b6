package commit

import (
	"context"
	"sync"
	"time"

	"golang.org/x/sync/semaphore"

	"vff/internal/errors"
	"vff/internal/metrics"
)

// lockTable hands out one exclusive lock per document path. Entries are
// reference counted and removed once nobody holds or waits for them.
type lockTable struct {
	mu      sync.Mutex
	entries map[string]*lockEntry
}

type lockEntry struct {
	sem  *semaphore.Weighted
	refs int
}

func newLockTable() *lockTable {
	return &lockTable{entries: make(map[string]*lockEntry)}
}

// acquire blocks until path is free, ctx is done, or timeout (when > 0)
// passes. The returned func releases the lock and must be called exactly once.
func (t *lockTable) acquire(ctx context.Context, path string, timeout time.Duration) (func(), error) {
	e := t.ref(path)

	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	start := time.Now()
	err := e.sem.Acquire(ctx, 1)
	metrics.LockWait.Observe(time.Since(start).Seconds())
	if err != nil {
		t.unref(path, e)
		return nil, errors.Concurrency(err, "waiting for write lock on %s", path)
	}

	var once sync.Once
	return func() {
		once.Do(func() {
			e.sem.Release(1)
			t.unref(path, e)
		})
	}, nil
}

func (t *lockTable) ref(path string) *lockEntry {
	t.mu.Lock()
	defer t.mu.Unlock()

	e, ok := t.entries[path]
	if !ok {
		e = &lockEntry{sem: semaphore.NewWeighted(1)}
		t.entries[path] = e
	}
	e.refs++
	return e
}

func (t *lockTable) unref(path string, e *lockEntry) {
	t.mu.Lock()
	defer t.mu.Unlock()

	e.refs--
	if e.refs == 0 {
		delete(t.entries, path)
	}
}

// size reports how many paths currently have a lock entry.
func (t *lockTable) size() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.entries)
}
