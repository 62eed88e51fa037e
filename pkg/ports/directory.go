package ports

import (
	"context"

	"github.com/aretw0/sealgate/pkg/domain"
)

// IdentityDirectory resolves a caller's declared identifier to its
// signing secret and tenant metadata.
type IdentityDirectory interface {
	// Lookup returns the identity registered under serviceUUID.
	// Returns domain.ErrIdentityNotFound if no such identity exists.
	// Inactive identities are returned with Active set to false.
	Lookup(ctx context.Context, serviceUUID string) (domain.ServiceIdentity, error)
}
