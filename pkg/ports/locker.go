package ports

import (
	"context"
	"time"
)

// ReleaseFunc gives a held key lock back. Releasing a lock that already
// expired is not an error worth failing a request over; callers log it.
type ReleaseFunc func(ctx context.Context) error

// KeyLocker serializes phase transitions on one rendered session key across
// gateway replicas. Without one, same-key writes are last-writer-wins.
type KeyLocker interface {
	// Lock blocks until the key is held or ctx is done. The lock lapses after
	// ttl even if never released, so a crashed replica cannot wedge a session.
	Lock(ctx context.Context, key string, ttl time.Duration) (ReleaseFunc, error)
}
