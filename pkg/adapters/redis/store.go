package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/aretw0/sealgate/pkg/domain"
	backend "github.com/redis/go-redis/v9"
)

// farFuture scores index members of sessions stored without a TTL.
const farFuture = 4102444800000 // 2100-01-01 in milliseconds

// Store implements ports.SessionStore using Redis.
// Sessions are JSON documents with a sliding TTL; a sorted set indexes
// live keys by expiry so Size does not need to scan the keyspace.
type Store struct {
	client backend.UniversalClient
	prefix string
	ttl    time.Duration
	now    func() time.Time
}

// Option configures the Store.
type Option func(*Store)

// WithTTL sets the inactivity expiration for sessions.
func WithTTL(ttl time.Duration) Option {
	return func(s *Store) {
		s.ttl = ttl
	}
}

// WithPrefix sets the key prefix for sessions.
func WithPrefix(prefix string) Option {
	return func(s *Store) {
		s.prefix = prefix
	}
}

// WithClock overrides the time source used for index scores.
func WithClock(now func() time.Time) Option {
	return func(s *Store) {
		s.now = now
	}
}

// New creates a Redis store. A single address yields a plain client,
// several addresses a cluster client.
func New(addrs []string, password string, db int, opts ...Option) *Store {
	rdb := backend.NewUniversalClient(&backend.UniversalOptions{
		Addrs:    addrs,
		Password: password,
		DB:       db,
	})
	return NewFromClient(rdb, opts...)
}

// NewFromClient creates a new Redis store from an existing client.
func NewFromClient(client backend.UniversalClient, opts ...Option) *Store {
	store := &Store{
		client: client,
		prefix: "sealgate:session:",
		now:    time.Now,
	}

	for _, opt := range opts {
		opt(store)
	}

	return store
}

func (s *Store) key(k domain.SessionKey) string {
	return s.prefix + k.String()
}

func (s *Store) indexKey() string {
	return s.prefix + "index"
}

func (s *Store) score() float64 {
	if s.ttl <= 0 {
		return farFuture
	}
	return float64(s.now().Add(s.ttl).UnixMilli())
}

// Put upserts the session and refreshes its TTL.
func (s *Store) Put(ctx context.Context, key domain.SessionKey, session *domain.Session) error {
	data, err := json.Marshal(session)
	if err != nil {
		return fmt.Errorf("failed to marshal session: %w", err)
	}

	pipe := s.client.Pipeline()
	pipe.Set(ctx, s.key(key), data, s.ttl)
	pipe.ZAdd(ctx, s.indexKey(), backend.Z{Score: s.score(), Member: key.String()})

	if _, err := pipe.Exec(ctx); err != nil {
		return domain.NewBackendError("redis put", err)
	}
	return nil
}

// Get loads the session and slides its TTL forward. The index is only
// refreshed for members still present, so a concurrent Delete is not undone.
func (s *Store) Get(ctx context.Context, key domain.SessionKey) (*domain.Session, error) {
	var cmd *backend.StringCmd
	if s.ttl > 0 {
		cmd = s.client.GetEx(ctx, s.key(key), s.ttl)
	} else {
		cmd = s.client.Get(ctx, s.key(key))
	}
	val, err := cmd.Bytes()
	if err != nil {
		if errors.Is(err, backend.Nil) {
			return nil, domain.ErrSessionNotFound
		}
		return nil, domain.NewBackendError("redis get", err)
	}

	var session domain.Session
	if err := json.Unmarshal(val, &session); err != nil {
		return nil, err
	}

	if s.ttl > 0 {
		err := s.client.ZAddXX(ctx, s.indexKey(), backend.Z{Score: s.score(), Member: key.String()}).Err()
		if err != nil {
			return nil, domain.NewBackendError("redis touch", err)
		}
	}

	return &session, nil
}

// Delete removes the session. Missing keys are ignored.
func (s *Store) Delete(ctx context.Context, key domain.SessionKey) error {
	pipe := s.client.Pipeline()
	pipe.Del(ctx, s.key(key))
	pipe.ZRem(ctx, s.indexKey(), key.String())

	if _, err := pipe.Exec(ctx); err != nil {
		return domain.NewBackendError("redis delete", err)
	}
	return nil
}

// Size prunes expired index members and returns the live count.
func (s *Store) Size(ctx context.Context) (int64, error) {
	now := fmt.Sprintf("%d", s.now().UnixMilli())
	if err := s.client.ZRemRangeByScore(ctx, s.indexKey(), "-inf", "("+now).Err(); err != nil {
		return 0, domain.NewBackendError("redis prune", err)
	}

	n, err := s.client.ZCard(ctx, s.indexKey()).Result()
	if err != nil {
		return 0, domain.NewBackendError("redis size", err)
	}
	return n, nil
}

// Ping checks connectivity to the backing cluster.
func (s *Store) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

// Close closes the redis client.
func (s *Store) Close() error {
	return s.client.Close()
}

// Client returns the underlying client, e.g. to share it with a Locker.
func (s *Store) Client() backend.UniversalClient {
	return s.client
}
