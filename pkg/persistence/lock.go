package persistence

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/clydewatts1/prototype-chameleon-mcp-workflow-sub001/pkg/ports"
)

// lockEntry holds the mutex and the reference count.
type lockEntry struct {
	mu   sync.Mutex
	refs int
}

// keyedLocks serializes work per unit of work id. Entries are reference
// counted and removed once nobody holds or waits for them.
type keyedLocks struct {
	mu    sync.Mutex
	locks map[string]*lockEntry

	locker ports.DistributedLocker
	ttl    time.Duration
	logger *slog.Logger
}

func newKeyedLocks(locker ports.DistributedLocker, ttl time.Duration, logger *slog.Logger) *keyedLocks {
	return &keyedLocks{
		locks:  make(map[string]*lockEntry),
		locker: locker,
		ttl:    ttl,
		logger: logger,
	}
}

// acquire gets or creates a lock entry and increments its reference count.
// The caller MUST Lock the entry.mu, and then call release(key) after unlocking.
func (k *keyedLocks) acquire(key string) *lockEntry {
	k.mu.Lock()
	defer k.mu.Unlock()

	entry, exists := k.locks[key]
	if !exists {
		entry = &lockEntry{}
		k.locks[key] = entry
	}
	entry.refs++
	return entry
}

// release decrements the reference count and deletes the entry if it reaches zero.
func (k *keyedLocks) release(key string) {
	k.mu.Lock()
	defer k.mu.Unlock()

	entry, exists := k.locks[key]
	if !exists {
		return
	}

	entry.refs--
	if entry.refs <= 0 {
		delete(k.locks, key)
	}
}

// size returns the number of live entries.
func (k *keyedLocks) size() int {
	k.mu.Lock()
	defer k.mu.Unlock()
	return len(k.locks)
}

// withLock executes fn while holding the lock for key, and the distributed
// lock when a locker is configured.
func (k *keyedLocks) withLock(ctx context.Context, key string, fn func(context.Context) error) error {
	entry := k.acquire(key)
	entry.mu.Lock()
	defer func() {
		entry.mu.Unlock()
		k.release(key)
	}()

	if k.locker != nil {
		unlock, err := k.locker.Lock(ctx, key, k.ttl)
		if err != nil {
			return fmt.Errorf("failed to acquire distributed lock: %w", err)
		}
		defer func() {
			if err := unlock(ctx); err != nil {
				k.logger.Warn("Failed to release distributed lock (will expire via TTL)",
					"uow_id", key,
					"err", err,
				)
			}
		}()
	}

	return fn(ctx)
}
