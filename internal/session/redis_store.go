package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// KeyPrefix namespaces session keys in the shared redis that also carries
// account notifications.
const KeyPrefix = "identity:session:"

// RedisStore keeps sessions as JSON values whose redis TTL follows the
// earlier of the idle and absolute deadlines. A session only ever points at
// an account id; nothing about the OAuth flow is stored here.
type RedisStore struct {
	client redis.UniversalClient
	now    func() time.Time
}

// NewRedisStore creates a Redis-backed session store.
func NewRedisStore(client redis.UniversalClient) *RedisStore {
	return &RedisStore{
		client: client,
		now:    time.Now,
	}
}

func key(sessionID string) string {
	return KeyPrefix + sessionID
}

// ttl is the time left until the session's nearest deadline.
func (r *RedisStore) ttl(s Session) time.Duration {
	deadline := s.ExpiresAt
	if !s.AbsoluteExpiresAt.IsZero() && s.AbsoluteExpiresAt.Before(deadline) {
		deadline = s.AbsoluteExpiresAt
	}
	return deadline.Sub(r.now())
}

func (r *RedisStore) put(ctx context.Context, s Session, ttl time.Duration) error {
	data, err := json.Marshal(s)
	if err != nil {
		return fmt.Errorf("session: marshal: %w", err)
	}
	if err := r.client.Set(ctx, key(s.SessionID), data, ttl).Err(); err != nil {
		return fmt.Errorf("session: store %s: %w", s.AccountID, err)
	}
	return nil
}

// Create stores a new session for a signed-in account.
func (r *RedisStore) Create(ctx context.Context, s Session) error {
	if s.SessionID == "" || s.AccountID == "" {
		return errors.New("session: missing session_id or account_id")
	}

	ttl := r.ttl(s)
	if ttl <= 0 {
		return errors.New("session: expires_at must be in the future")
	}
	return r.put(ctx, s, ttl)
}

func (r *RedisStore) Get(ctx context.Context, sessionID string) (*Session, error) {
	val, err := r.client.Get(ctx, key(sessionID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("session: get: %w", err)
	}

	var s Session
	if err := json.Unmarshal(val, &s); err != nil {
		return nil, fmt.Errorf("session: unmarshal: %w", err)
	}
	return &s, nil
}

// Delete is idempotent; logout calls it for sessions that may be gone already.
func (r *RedisStore) Delete(ctx context.Context, sessionID string) error {
	return r.client.Del(ctx, key(sessionID)).Err()
}

// Update rewrites a session. Sessions past a deadline are removed, never
// extended.
func (r *RedisStore) Update(ctx context.Context, s Session) error {
	if s.SessionID == "" {
		return errors.New("session: missing session_id")
	}

	ttl := r.ttl(s)
	if ttl <= 0 {
		return r.Delete(ctx, s.SessionID)
	}
	return r.put(ctx, s, ttl)
}
