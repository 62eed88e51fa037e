package redis_test

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/aretw0/sealgate/pkg/adapters/redis"
	"github.com/aretw0/sealgate/pkg/domain"
	"github.com/aretw0/sealgate/pkg/ports"
	backend "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newClient(t *testing.T) (*miniredis.Miniredis, *backend.Client) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := backend.NewClient(&backend.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return mr, client
}

func TestRedisStore_Contract(t *testing.T) {
	_, client := newClient(t)

	store := redis.NewFromClient(client)
	ports.RunSessionStoreContract(t, store)
}

func TestRedisStore_TTL_Expiration(t *testing.T) {
	mr, client := newClient(t)

	now := time.Now()
	store := redis.NewFromClient(client,
		redis.WithTTL(time.Second),
		redis.WithClock(func() time.Time { return now }),
	)
	ctx := context.Background()
	owner := domain.AuthenticatedIdentity{ServiceUUID: "svc-ttl"}
	key := domain.NewSessionKey("", owner, "c1")

	// 1. Put
	require.NoError(t, store.Put(ctx, key, ports.ContractSessions(owner, now)[1]))

	size, err := store.Size(ctx)
	require.NoError(t, err)
	assert.EqualValues(t, 1, size)

	// 2. Expire both the key (miniredis clock) and the index (store clock)
	mr.FastForward(2 * time.Second)
	now = now.Add(2 * time.Second)

	// 3. Evicted reads as never created
	_, err = store.Get(ctx, key)
	assert.ErrorIs(t, err, domain.ErrSessionNotFound)

	// 4. Index lazily cleaned up
	size, err = store.Size(ctx)
	require.NoError(t, err)
	assert.Zero(t, size)
}

func TestRedisStore_GetSlidesTTL(t *testing.T) {
	mr, client := newClient(t)

	store := redis.NewFromClient(client, redis.WithTTL(10*time.Second))
	ctx := context.Background()
	owner := domain.AuthenticatedIdentity{ServiceUUID: "svc-slide"}
	key := domain.NewSessionKey("", owner, "c1")

	require.NoError(t, store.Put(ctx, key, ports.ContractSessions(owner, time.Now())[0]))

	mr.FastForward(8 * time.Second)
	_, err := store.Get(ctx, key)
	require.NoError(t, err)

	mr.FastForward(8 * time.Second)
	_, err = store.Get(ctx, key)
	assert.NoError(t, err, "a read within the window must keep the session alive")
}

func TestRedisStore_GetDoesNotReindexDeleted(t *testing.T) {
	mr, client := newClient(t)

	store := redis.NewFromClient(client, redis.WithTTL(time.Minute))
	ctx := context.Background()
	owner := domain.AuthenticatedIdentity{ServiceUUID: "svc-race"}
	key := domain.NewSessionKey("", owner, "c1")

	require.NoError(t, store.Put(ctx, key, ports.ContractSessions(owner, time.Now())[0]))

	// A Delete that lands after the value was read has already dropped the
	// index member; the TTL refresh of that read must not bring it back.
	_, err := mr.ZRem("sealgate:session:index", key.String())
	require.NoError(t, err)

	_, err = store.Get(ctx, key)
	require.NoError(t, err)

	size, err := store.Size(ctx)
	require.NoError(t, err)
	assert.Zero(t, size)
	assert.Greater(t, mr.TTL("sealgate:session:"+key.String()), time.Duration(0))
}

func TestRedisStore_Prefix(t *testing.T) {
	mr, client := newClient(t)

	// Custom Prefix
	store := redis.NewFromClient(client, redis.WithPrefix("custom:app:"))
	ctx := context.Background()
	owner := domain.AuthenticatedIdentity{ServiceUUID: "svc-1"}
	key := domain.NewSessionKey("7", owner, "c1")

	err := store.Put(ctx, key, ports.ContractSessions(owner, time.Now())[2])
	require.NoError(t, err)

	assert.True(t, mr.Exists("custom:app:7_svc-1_c1"), "Expected key with custom prefix to exist")
	assert.True(t, mr.Exists("custom:app:index"), "Expected index with custom prefix to exist")
}

func TestRedisStore_SurvivesNewInstance(t *testing.T) {
	_, client := newClient(t)
	ctx := context.Background()
	owner := domain.AuthenticatedIdentity{ServiceUUID: "svc-restart"}
	key := domain.NewSessionKey("", owner, "c1")

	s := ports.ContractSessions(owner, time.Now())[1]
	require.NoError(t, redis.NewFromClient(client).Put(ctx, key, s))

	// A fresh store over the same backend sees the session.
	loaded, err := redis.NewFromClient(client).Get(ctx, key)
	require.NoError(t, err)
	assert.Equal(t, s, loaded)
}

func TestRedisStore_CorruptPayload(t *testing.T) {
	mr, client := newClient(t)
	store := redis.NewFromClient(client)
	owner := domain.AuthenticatedIdentity{ServiceUUID: "svc-1"}
	key := domain.NewSessionKey("", owner, "broken")

	require.NoError(t, mr.Set("sealgate:session:"+key.String(), `{"kind":"ZIP","payload":{}}`))

	_, err := store.Get(context.Background(), key)
	assert.True(t, domain.IsTechnical(err, domain.MalformedState))
}

func TestRedisStore_Ping(t *testing.T) {
	mr, client := newClient(t)
	store := redis.NewFromClient(client)

	assert.NoError(t, store.Ping(context.Background()))

	mr.Close()
	assert.Error(t, store.Ping(context.Background()))

	_, err := store.Size(context.Background())
	assert.True(t, domain.IsTechnical(err, domain.BackendFailure))
}
