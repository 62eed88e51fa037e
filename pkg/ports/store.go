package ports

import (
	"context"

	"github.com/aretw0/sealgate/pkg/domain"
)

// SessionStore defines the interface for persisting container sessions.
// Every key embeds the owning identity, so tenant isolation is structural.
// Implementations provide atomic single-key operations only.
type SessionStore interface {
	// Get retrieves the session stored under key.
	// Returns domain.ErrSessionNotFound if the key is absent or was evicted.
	Get(ctx context.Context, key domain.SessionKey) (*domain.Session, error)

	// Put stores the session under key, overwriting any prior value.
	Put(ctx context.Context, key domain.SessionKey, session *domain.Session) error

	// Delete removes the session. Deleting an absent key is not an error.
	Delete(ctx context.Context, key domain.SessionKey) error

	// Size returns the current number of live sessions.
	Size(ctx context.Context) (int64, error)
}

// Pinger is implemented by stores with a backing connection that can be probed.
// A Size of zero is ambiguous without it.
type Pinger interface {
	Ping(ctx context.Context) error
}
