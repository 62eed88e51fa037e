package memory

import (
	"context"
	"sync"

	"github.com/aretw0/sealgate/pkg/domain"
)

// Directory implements ports.IdentityDirectory from a fixed set of identities.
// It backs tests and the "static" directory driver.
type Directory struct {
	mu         sync.RWMutex
	identities map[string]domain.ServiceIdentity
}

// NewDirectory creates a directory seeded with the given identities.
func NewDirectory(identities ...domain.ServiceIdentity) *Directory {
	d := &Directory{identities: make(map[string]domain.ServiceIdentity, len(identities))}
	for _, id := range identities {
		d.identities[id.UUID] = id
	}
	return d
}

// Lookup returns the identity registered under serviceUUID.
func (d *Directory) Lookup(ctx context.Context, serviceUUID string) (domain.ServiceIdentity, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	id, ok := d.identities[serviceUUID]
	if !ok {
		return domain.ServiceIdentity{}, domain.ErrIdentityNotFound
	}
	id.SigningSecret = append(domain.Secret(nil), id.SigningSecret...)
	id.Roles = append([]string(nil), id.Roles...)
	return id, nil
}

// Register adds or replaces an identity.
func (d *Directory) Register(id domain.ServiceIdentity) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.identities[id.UUID] = id
}
