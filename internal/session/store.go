package session

import (
	"context"
	"time"
)

// Session represents an authenticated account session.
// It stores only the account pointer, never confirmation or auth state.
type Session struct {
	SessionID         string    `json:"session_id"`
	AccountID         string    `json:"account_id"` // references accounts.id
	CreatedAt         time.Time `json:"created_at"`
	AbsoluteExpiresAt time.Time `json:"absolute_expires_at"`
	ExpiresAt         time.Time `json:"expires_at"`
}

// Expired reports whether the session is past either deadline.
func (s Session) Expired(now time.Time) bool {
	if !s.AbsoluteExpiresAt.IsZero() && !now.Before(s.AbsoluteExpiresAt) {
		return true
	}
	return !now.Before(s.ExpiresAt)
}

// Store defines how sessions are stored and retrieved.
// Implementations (e.g., Redis) must remain stateless and opaque.
// Get returns (nil, nil) for an unknown session.
type Store interface {
	Create(ctx context.Context, s Session) error
	Get(ctx context.Context, sessionID string) (*Session, error)
	Update(ctx context.Context, s Session) error
	Delete(ctx context.Context, sessionID string) error
}
