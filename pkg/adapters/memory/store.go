package memory

import (
	"context"
	"sync"
	"time"

	"github.com/aretw0/sealgate/pkg/domain"
)

type entry struct {
	session  *domain.Session
	lastSeen time.Time
}

// Store implements ports.SessionStore in memory.
// Safe for concurrent use. Entries idle for longer than the TTL are evicted lazily.
type Store struct {
	data map[string]*entry
	mu   sync.Mutex
	ttl  time.Duration
	now  func() time.Time
}

// Option configures the Store.
type Option func(*Store)

// WithTTL evicts sessions that were not read or written for ttl.
func WithTTL(ttl time.Duration) Option {
	return func(s *Store) {
		s.ttl = ttl
	}
}

// WithClock overrides the time source used for eviction.
func WithClock(now func() time.Time) Option {
	return func(s *Store) {
		s.now = now
	}
}

// NewStore creates a new in-memory store.
func NewStore(opts ...Option) *Store {
	s := &Store{
		data: make(map[string]*entry),
		now:  time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Store) expired(e *entry, now time.Time) bool {
	return s.ttl > 0 && now.Sub(e.lastSeen) > s.ttl
}

// Put stores a deep copy so later caller mutations never leak into the store.
func (s *Store) Put(ctx context.Context, key domain.SessionKey, session *domain.Session) error {
	copied := session.Clone()

	s.mu.Lock()
	defer s.mu.Unlock()
	s.data[key.String()] = &entry{session: copied, lastSeen: s.now()}
	return nil
}

// Get returns a copy of the stored session and refreshes its idle timer.
func (s *Store) Get(ctx context.Context, key domain.SessionKey) (*domain.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	k := key.String()
	e, ok := s.data[k]
	now := s.now()
	if !ok || s.expired(e, now) {
		delete(s.data, k)
		return nil, domain.ErrSessionNotFound
	}
	e.lastSeen = now
	return e.session.Clone(), nil
}

// Delete removes the session.
func (s *Store) Delete(ctx context.Context, key domain.SessionKey) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.data, key.String())
	return nil
}

// Size returns the number of live sessions, pruning expired ones.
func (s *Store) Size(ctx context.Context) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	for k, e := range s.data {
		if s.expired(e, now) {
			delete(s.data, k)
		}
	}
	return int64(len(s.data)), nil
}
