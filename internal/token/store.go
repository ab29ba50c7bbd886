package token

import (
	"context"
	"sync"
	"time"
)

// Store persists refresh-token sessions and the revocation set. Shared across
// concurrent requests; implementations must be concurrency safe. Backing it
// with an external store keeps multiple instances in sync without changing
// pipeline logic.
type Store interface {
	CreateSession(ctx context.Context, s Session) error
	Session(ctx context.Context, id string) (Session, error)
	DeleteSession(ctx context.Context, id string) error
	SessionsBySubject(ctx context.Context, subject string) ([]Session, error)

	// Revoke denylists a token identifier until expiresAt has safely passed.
	Revoke(ctx context.Context, id string, expiresAt time.Time) error
	IsRevoked(ctx context.Context, id string) (bool, error)

	// Compact prunes expired sessions (moving their identifiers into the
	// revocation set) and drops revocation entries whose underlying token has
	// been expired for longer than the retention window. It returns the number
	// of entries removed. Run on a background timer, never on the request path.
	Compact(ctx context.Context, now time.Time) (int, error)
}

const defaultRevocationRetention = time.Hour

// StoreOption tunes a Store constructor. Both implementations accept the
// same options.
type StoreOption func(*storeConfig)

type storeConfig struct {
	retain time.Duration
}

// WithRevocationRetention sets how long a revocation entry outlives its
// token's expiry. It must cover at least the access-token TTL so a revoked
// but unexpired access token can never outlive its denylist entry.
func WithRevocationRetention(d time.Duration) StoreOption {
	return func(c *storeConfig) {
		if d > 0 {
			c.retain = d
		}
	}
}

func newStoreConfig(opts []StoreOption) storeConfig {
	cfg := storeConfig{retain: defaultRevocationRetention}
	for _, opt := range opts {
		opt(&cfg)
	}
	return cfg
}

// MemoryStore implements Store with in-process concurrency safety. The
// default for single-node deployments.
type MemoryStore struct {
	mu       sync.RWMutex
	sessions map[string]Session
	revoked  map[string]time.Time // token id -> underlying expiry
	retain   time.Duration
}

// NewMemoryStore creates an empty store.
func NewMemoryStore(opts ...StoreOption) *MemoryStore {
	cfg := newStoreConfig(opts)
	return &MemoryStore{
		sessions: make(map[string]Session),
		revoked:  make(map[string]time.Time),
		retain:   cfg.retain,
	}
}

func (s *MemoryStore) CreateSession(ctx context.Context, sess Session) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sessions[sess.ID] = sess
	return nil
}

func (s *MemoryStore) Session(ctx context.Context, id string) (Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	sess, ok := s.sessions[id]
	if !ok {
		return Session{}, ErrSessionNotFound
	}
	return sess, nil
}

// DeleteSession is idempotent: deleting a missing session is not an error.
func (s *MemoryStore) DeleteSession(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.sessions, id)
	return nil
}

func (s *MemoryStore) SessionsBySubject(ctx context.Context, subject string) ([]Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []Session
	for _, sess := range s.sessions {
		if sess.Subject == subject {
			out = append(out, sess)
		}
	}
	return out, nil
}

func (s *MemoryStore) Revoke(ctx context.Context, id string, expiresAt time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.revoked[id] = expiresAt
	return nil
}

func (s *MemoryStore) IsRevoked(ctx context.Context, id string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.revoked[id]
	return ok, nil
}

func (s *MemoryStore) Compact(ctx context.Context, now time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	removed := 0
	for id, sess := range s.sessions {
		if now.After(sess.ExpiresAt) {
			delete(s.sessions, id)
			s.revoked[id] = sess.ExpiresAt
			removed++
		}
	}
	for id, expiresAt := range s.revoked {
		if now.After(expiresAt.Add(s.retain)) {
			delete(s.revoked, id)
			removed++
		}
	}
	return removed, nil
}
