package middleware_test

import (
	"context"
	"testing"

	"github.com/aretw0/sealgate/pkg/adapters/memory"
	"github.com/aretw0/sealgate/pkg/domain"
	"github.com/aretw0/sealgate/pkg/observability"
	"github.com/aretw0/sealgate/pkg/persistence/middleware"
	"github.com/aretw0/sealgate/pkg/ports"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMetricsMiddleware_Contract(t *testing.T) {
	store := middleware.NewMetricsMiddleware(observability.NewMetrics())(memory.NewStore())
	ports.RunSessionStoreContract(t, store)
}

func TestChain_EncryptsAndMeasures(t *testing.T) {
	metrics := observability.NewMetrics()
	underlying := memory.NewStore()
	store := middleware.Chain(underlying,
		middleware.NewMetricsMiddleware(metrics),
		middleware.NewEncryptionMiddleware(newSealer(t, generateKey(t))),
	)

	ctx := context.Background()
	key := domain.NewSessionKey("", owner, "chained")
	_, err := store.Get(ctx, key)
	assert.ErrorIs(t, err, domain.ErrSessionNotFound)

	n, err := testutil.GatherAndCount(metrics.Registry(), "sealgate_store_operation_duration_seconds")
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	// Ping is forwarded through both layers
	p, ok := store.(ports.Pinger)
	require.True(t, ok)
	assert.NoError(t, p.Ping(ctx))
}
