package middleware

import (
	"context"
	"time"

	"github.com/aretw0/sealgate/pkg/domain"
	"github.com/aretw0/sealgate/pkg/observability"
	"github.com/aretw0/sealgate/pkg/ports"
)

type metricsMiddleware struct {
	next    ports.SessionStore
	metrics *observability.Metrics
}

// NewMetricsMiddleware records the latency and outcome of every store call.
func NewMetricsMiddleware(metrics *observability.Metrics) Middleware {
	return func(next ports.SessionStore) ports.SessionStore {
		return &metricsMiddleware{next: next, metrics: metrics}
	}
}

func (m *metricsMiddleware) Get(ctx context.Context, key domain.SessionKey) (*domain.Session, error) {
	start := time.Now()
	s, err := m.next.Get(ctx, key)
	m.metrics.ObserveStore("get", time.Since(start), err)
	return s, err
}

func (m *metricsMiddleware) Put(ctx context.Context, key domain.SessionKey, session *domain.Session) error {
	start := time.Now()
	err := m.next.Put(ctx, key, session)
	m.metrics.ObserveStore("put", time.Since(start), err)
	return err
}

func (m *metricsMiddleware) Delete(ctx context.Context, key domain.SessionKey) error {
	start := time.Now()
	err := m.next.Delete(ctx, key)
	m.metrics.ObserveStore("delete", time.Since(start), err)
	return err
}

func (m *metricsMiddleware) Size(ctx context.Context) (int64, error) {
	return m.next.Size(ctx)
}

func (m *metricsMiddleware) Ping(ctx context.Context) error {
	if p, ok := m.next.(ports.Pinger); ok {
		return p.Ping(ctx)
	}
	return nil
}
