package rental

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"
)

// ErrSessionNotFound is returned when a rental session does not exist or
// has expired.
var ErrSessionNotFound = errors.New("rental session not found")

// Store persists rental sessions. The unlock command itself is never
// stored; sessions only track invoice state around it.
type Store interface {
	SaveSession(ctx context.Context, session *Session, ttl time.Duration) error
	GetSession(ctx context.Context, rentalID string) (*Session, error)
}

// RedisStore is the production store.
type RedisStore struct {
	client *redis.Client
}

// NewRedisStore creates a Redis-backed session store.
func NewRedisStore(client *redis.Client) *RedisStore {
	return &RedisStore{client: client}
}

func sessionKey(rentalID string) string {
	return "rental:" + rentalID
}

func (s *RedisStore) SaveSession(ctx context.Context, session *Session, ttl time.Duration) error {
	data, err := json.Marshal(session)
	if err != nil {
		return errors.Wrap(err, "failed to marshal session")
	}

	if err := s.client.Set(ctx, sessionKey(session.RentalID), data, ttl).Err(); err != nil {
		return errors.Wrap(err, "failed to save session")
	}

	return nil
}

func (s *RedisStore) GetSession(ctx context.Context, rentalID string) (*Session, error) {
	data, err := s.client.Get(ctx, sessionKey(rentalID)).Bytes()
	if err != nil {
		if err == redis.Nil {
			return nil, ErrSessionNotFound
		}
		return nil, errors.Wrap(err, "failed to get session")
	}

	var session Session
	if err := json.Unmarshal(data, &session); err != nil {
		return nil, errors.Wrap(err, "failed to unmarshal session")
	}

	return &session, nil
}

// MemoryStore keeps sessions in memory. Used by tests and the CLI.
type MemoryStore struct {
	mu       sync.RWMutex
	sessions map[string]*Session
}

// NewMemoryStore creates an in-memory session store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{sessions: make(map[string]*Session)}
}

func (s *MemoryStore) SaveSession(_ context.Context, session *Session, _ time.Duration) error {
	data, err := json.Marshal(session)
	if err != nil {
		return errors.Wrap(err, "failed to marshal session")
	}

	var copied Session
	if err := json.Unmarshal(data, &copied); err != nil {
		return errors.Wrap(err, "failed to copy session")
	}

	s.mu.Lock()
	s.sessions[session.RentalID] = &copied
	s.mu.Unlock()

	return nil
}

func (s *MemoryStore) GetSession(_ context.Context, rentalID string) (*Session, error) {
	s.mu.RLock()
	session, ok := s.sessions[rentalID]
	s.mu.RUnlock()

	if !ok {
		return nil, ErrSessionNotFound
	}

	copied := *session
	return &copied, nil
}
