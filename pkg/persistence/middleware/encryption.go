package middleware

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/aretw0/sealgate/internal/secrets"
	"github.com/aretw0/sealgate/pkg/domain"
	"github.com/aretw0/sealgate/pkg/ports"
)

// envelopeName marks a session whose real content is sealed inside the payload.
const envelopeName = "__encrypted__"

type encryptionMiddleware struct {
	next   ports.SessionStore
	sealer *secrets.Sealer
}

// NewEncryptionMiddleware creates a middleware that seals sessions with AES-GCM
// before they reach the backing store.
func NewEncryptionMiddleware(sealer *secrets.Sealer) Middleware {
	return func(next ports.SessionStore) ports.SessionStore {
		return &encryptionMiddleware{
			next:   next,
			sealer: sealer,
		}
	}
}

func (m *encryptionMiddleware) Put(ctx context.Context, key domain.SessionKey, session *domain.Session) error {
	// 1. Serialize the real session
	plainText, err := json.Marshal(session)
	if err != nil {
		return fmt.Errorf("failed to marshal session: %w", err)
	}

	// 2. Encrypt, bound to the key so the blob cannot be replayed under another one
	ciphertext, err := m.sealer.SealWithContext(plainText, []byte(key.String()))
	if err != nil {
		return fmt.Errorf("failed to encrypt session: %w", err)
	}

	// 3. Opaque envelope. Only addressing and phase stay visible for operators.
	envelope := domain.NewSession(session.ContainerID, domain.AuthenticatedIdentity{ServiceUUID: session.ServiceUUID},
		&domain.AsicGenericContainer{ContainerName: envelopeName, Container: ciphertext}, session.CreatedAt)
	envelope.Phase = session.Phase
	envelope.UpdatedAt = session.UpdatedAt

	return m.next.Put(ctx, key, envelope)
}

func (m *encryptionMiddleware) Get(ctx context.Context, key domain.SessionKey) (*domain.Session, error) {
	// 1. Load envelope
	envelope, err := m.next.Get(ctx, key)
	if err != nil {
		return nil, err
	}

	// 2. Extract ciphertext. A plain session here means encryption was
	// switched on over existing data; fail secure.
	sealed, err := envelope.AsicContainer()
	if err != nil || sealed.ContainerName != envelopeName {
		return nil, &domain.TechnicalError{Kind: domain.MalformedState, Detail: "session is missing encrypted data envelope"}
	}

	// 3. Decrypt (active key, then fallbacks)
	plainText, err := m.sealer.OpenWithContext(sealed.Container, []byte(key.String()))
	if err != nil {
		return nil, &domain.TechnicalError{Kind: domain.MalformedState, Detail: "failed to decrypt session", Err: err}
	}

	// 4. Deserialize
	var session domain.Session
	if err := json.Unmarshal(plainText, &session); err != nil {
		return nil, err
	}
	return &session, nil
}

func (m *encryptionMiddleware) Delete(ctx context.Context, key domain.SessionKey) error {
	return m.next.Delete(ctx, key)
}

func (m *encryptionMiddleware) Size(ctx context.Context) (int64, error) {
	return m.next.Size(ctx)
}

// Ping forwards to the wrapped store when it supports it.
func (m *encryptionMiddleware) Ping(ctx context.Context) error {
	if p, ok := m.next.(ports.Pinger); ok {
		return p.Ping(ctx)
	}
	return nil
}
