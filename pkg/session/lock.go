package session

import (
	"context"
	"fmt"
	"sync"
)

// lockEntry holds the mutex and the reference count.
type lockEntry struct {
	mu   sync.Mutex
	refs int
}

// keyLocks serializes work per session key inside one process.
// Entries are reference counted and removed once unused.
type keyLocks struct {
	mu    sync.Mutex
	locks map[string]*lockEntry
}

func newKeyLocks() *keyLocks {
	return &keyLocks{locks: make(map[string]*lockEntry)}
}

// acquire gets or creates a lock entry and increments its reference count.
// The caller MUST Lock the entry.mu, and then call release(key) after unlocking.
func (k *keyLocks) acquire(key string) *lockEntry {
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
func (k *keyLocks) release(key string) {
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

func (k *keyLocks) len() int {
	k.mu.Lock()
	defer k.mu.Unlock()
	return len(k.locks)
}

// withKeyLock runs fn under the local and, when configured, distributed lock
// for key. Without serialization fn runs directly (last writer wins).
func (s *Service) withKeyLock(ctx context.Context, key string, fn func(context.Context) error) error {
	if !s.serialize {
		return fn(ctx)
	}

	entry := s.locks.acquire(key)
	entry.mu.Lock()
	defer func() {
		entry.mu.Unlock()
		s.locks.release(key)
	}()

	if s.locker != nil {
		unlock, err := s.locker.Lock(ctx, key, s.lockTTL)
		if err != nil {
			return fmt.Errorf("failed to acquire distributed lock: %w", err)
		}
		defer func() {
			if err := unlock(context.WithoutCancel(ctx)); err != nil {
				s.logger.Warn("Failed to release distributed lock (will expire via TTL)",
					"key", key,
					"err", err,
				)
			}
		}()
	}

	return fn(ctx)
}
