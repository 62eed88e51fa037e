package ports

import (
	"context"
	"testing"
	"time"

	"github.com/aretw0/sealgate/pkg/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// ContractSessions returns one session per variant, populated with every
// field a store has to round-trip.
func ContractSessions(owner domain.AuthenticatedIdentity, now time.Time) []*domain.Session {
	attached := domain.NewSession("contract-attached", owner, &domain.AttachedContainer{
		ContainerName: "contract.asice",
		Container:     []byte("PK\x03\x04attached"),
		DataFiles:     []domain.DataFile{{FileName: "a.txt", Content: []byte("alpha")}},
	}, now)
	attached.Signatures = []domain.SignatureRecord{{
		ID:          "sig-0",
		SigningType: domain.SigningRemote,
		Value:       []byte{0x30, 0x82},
		SignedAt:    now.UTC(),
	}}

	hashcode := domain.NewSession("contract-hashcode", owner, &domain.DetachedHashcodeContainer{
		DataFiles: []domain.HashcodeDataFile{{
			FileName:       "b.pdf",
			FileSize:       1024,
			FileHashSha256: "K7gNU3sdo+OL0wNhqoVWhr3g6s1xYv72ol/pe/Unols=",
			FileHashSha512: "vSsar3708Jvp9Szi2NWZZ02Bqp1qRCFpbcTZPdBhnWgs5WtNZKnvCXdhztmeD2cmW192CF5bDufKRpayrW/isg==",
		}},
	}, now)
	hashcode.Phase = domain.PhaseDataPrepared
	hashcode.SignatureSessions = map[string]domain.SignatureSession{
		"sig-1": {
			DataToSign:      []byte("data-to-sign"),
			DigestAlgorithm: "SHA256",
			SigningType:     domain.SigningRemote,
			Status:          domain.ProcessingStatus{Status: domain.StatusOutstanding, ProcessingCounter: 2},
			CreatedAt:       now.UTC(),
		},
	}

	asic := domain.NewSession("contract-asic", owner, &domain.AsicGenericContainer{
		ContainerName: "contract.asics",
		Container:     []byte("PK\x03\x04asic"),
	}, now)
	asic.CertificateSessions = map[string]domain.CertificateSession{
		"cert-1": {SessionCode: "code", DocumentNumber: "PNOEE-1", RelyingParty: &domain.RelyingParty{Name: "rp"}},
	}

	return []*domain.Session{attached, hashcode, asic}
}

// RunSessionStoreContract runs a suite of tests to verify that a SessionStore implementation
// adheres to the defined interface contract.
func RunSessionStoreContract(t *testing.T, store SessionStore) {
	ctx := context.Background()
	suffix := time.Now().Format("20060102150405.000000000")
	owner := domain.AuthenticatedIdentity{ServiceUUID: "contract-svc-" + suffix, ServiceName: "contract", ClientName: "tenant"}
	other := domain.AuthenticatedIdentity{ServiceUUID: "contract-other-" + suffix, ServiceName: "other", ClientName: "tenant-2"}
	now := time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)

	t.Run("Put and Get every variant", func(t *testing.T) {
		for _, s := range ContractSessions(owner, now) {
			key := domain.NewSessionKey("", owner, s.ContainerID)
			require.NoError(t, store.Put(ctx, key, s), "Put should not return error")

			loaded, err := store.Get(ctx, key)
			require.NoError(t, err, "Get should not return error")
			assert.Equal(t, s, loaded, "stored %s session must round-trip", s.Kind())
		}
	})

	t.Run("Get Non-Existent", func(t *testing.T) {
		_, err := store.Get(ctx, domain.NewSessionKey("", owner, "never-stored"))
		assert.ErrorIs(t, err, domain.ErrSessionNotFound)
		assert.ErrorIs(t, err, domain.ErrNotFound)
	})

	t.Run("Put overwrites", func(t *testing.T) {
		s := ContractSessions(owner, now)[1]
		key := domain.NewSessionKey("", owner, "overwrite")
		require.NoError(t, store.Put(ctx, key, s))

		updated := s.Clone()
		require.NoError(t, updated.Transition(domain.PhaseSignatureAttached))
		require.NoError(t, store.Put(ctx, key, updated))

		loaded, err := store.Get(ctx, key)
		require.NoError(t, err)
		assert.Equal(t, domain.PhaseSignatureAttached, loaded.Phase)
	})

	t.Run("Delete is idempotent", func(t *testing.T) {
		key := domain.NewSessionKey("", owner, "to-delete")
		require.NoError(t, store.Put(ctx, key, ContractSessions(owner, now)[0]))

		require.NoError(t, store.Delete(ctx, key), "Delete should not return error")
		_, err := store.Get(ctx, key)
		assert.ErrorIs(t, err, domain.ErrSessionNotFound, "Get after Delete should return ErrSessionNotFound")

		assert.NoError(t, store.Delete(ctx, key), "second Delete should not return error")
	})

	t.Run("Tenant isolation", func(t *testing.T) {
		mine := domain.NewSessionKey("", owner, "shared-id")
		theirs := domain.NewSessionKey("", other, "shared-id")

		s := ContractSessions(owner, now)[0]
		require.NoError(t, store.Put(ctx, mine, s))

		_, err := store.Get(ctx, theirs)
		assert.ErrorIs(t, err, domain.ErrSessionNotFound)

		o := ContractSessions(other, now)[2]
		require.NoError(t, store.Put(ctx, theirs, o))

		loaded, err := store.Get(ctx, mine)
		require.NoError(t, err)
		assert.Equal(t, domain.KindAttached, loaded.Kind())
		assert.Equal(t, owner.ServiceUUID, loaded.ServiceUUID)
	})

	t.Run("Size counts live entries", func(t *testing.T) {
		before, err := store.Size(ctx)
		require.NoError(t, err)

		key := domain.NewSessionKey("", owner, "sized")
		require.NoError(t, store.Put(ctx, key, ContractSessions(owner, now)[2]))
		require.NoError(t, store.Put(ctx, key, ContractSessions(owner, now)[2]))

		after, err := store.Size(ctx)
		require.NoError(t, err)
		assert.Equal(t, before+1, after, "upsert of one key must count once")

		require.NoError(t, store.Delete(ctx, key))
		final, err := store.Size(ctx)
		require.NoError(t, err)
		assert.Equal(t, before, final)
	})
}

// RunIdentityDirectoryContract verifies an IdentityDirectory seeded with the
// given active identity and with inactiveUUID registered but disabled.
func RunIdentityDirectoryContract(t *testing.T, dir IdentityDirectory, active domain.ServiceIdentity, inactiveUUID string) {
	ctx := context.Background()

	t.Run("Lookup Active", func(t *testing.T) {
		id, err := dir.Lookup(ctx, active.UUID)
		require.NoError(t, err)
		assert.Equal(t, active.UUID, id.UUID)
		assert.Equal(t, active.ServiceName, id.ServiceName)
		assert.Equal(t, active.ClientName, id.ClientName)
		assert.Equal(t, []byte(active.SigningSecret), []byte(id.SigningSecret))
		assert.True(t, id.Active)
	})

	t.Run("Lookup Inactive", func(t *testing.T) {
		id, err := dir.Lookup(ctx, inactiveUUID)
		require.NoError(t, err)
		assert.False(t, id.Active)
	})

	t.Run("Lookup Unknown", func(t *testing.T) {
		_, err := dir.Lookup(ctx, "00000000-0000-0000-0000-000000000000")
		assert.ErrorIs(t, err, domain.ErrIdentityNotFound)
	})
}
