// Package session stores login sessions keyed by an opaque session id.
package session

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// TTL is how long a session stays valid after login.
const TTL = time.Hour

// ErrNotFound is returned for unknown or expired sessions.
var ErrNotFound = errors.New("session not found")

// Store creates and resolves sessions.
type Store interface {
	// Create starts a session for user and returns its id.
	Create(ctx context.Context, user string) (string, error)
	// User returns the user a session belongs to.
	User(ctx context.Context, sid string) (string, error)
	Delete(ctx context.Context, sid string) error
}

// RedisStore keeps sessions under session:<sid> with a TTL.
type RedisStore struct {
	client redis.UniversalClient
	ttl    time.Duration
}

func NewRedisStore(client redis.UniversalClient) *RedisStore {
	return &RedisStore{client: client, ttl: TTL}
}

func key(sid string) string { return "session:" + sid }

func (s *RedisStore) Create(ctx context.Context, user string) (string, error) {
	sid := uuid.NewString()
	if err := s.client.Set(ctx, key(sid), user, s.ttl).Err(); err != nil {
		return "", err
	}
	return sid, nil
}

func (s *RedisStore) User(ctx context.Context, sid string) (string, error) {
	user, err := s.client.Get(ctx, key(sid)).Result()
	if errors.Is(err, redis.Nil) || (err == nil && user == "") {
		return "", ErrNotFound
	}
	return user, err
}

func (s *RedisStore) Delete(ctx context.Context, sid string) error {
	return s.client.Del(ctx, key(sid)).Err()
}

type entry struct {
	user    string
	expires time.Time
}

// MemoryStore is a process-local Store for single-instance deployments
// and tests.
type MemoryStore struct {
	mu       sync.Mutex
	sessions map[string]entry
	ttl      time.Duration
	now      func() time.Time
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{sessions: make(map[string]entry), ttl: TTL, now: time.Now}
}

func (s *MemoryStore) Create(ctx context.Context, user string) (string, error) {
	sid := uuid.NewString()
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sessions[sid] = entry{user: user, expires: s.now().Add(s.ttl)}
	return sid, nil
}

func (s *MemoryStore) User(ctx context.Context, sid string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.sessions[sid]
	if !ok {
		return "", ErrNotFound
	}
	if !s.now().Before(e.expires) {
		delete(s.sessions, sid)
		return "", ErrNotFound
	}
	return e.user, nil
}

func (s *MemoryStore) Delete(ctx context.Context, sid string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.sessions, sid)
	return nil
}
