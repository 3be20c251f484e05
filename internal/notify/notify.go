// Package notify delivers account lifecycle events after their transaction
// commits. Delivery is best effort; callers log failures and move on.
package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"identity-service/internal/auth"
	"identity-service/internal/logger"

	"github.com/redis/go-redis/v9"
)

const (
	EventAccountProvisioned    = "account.provisioned"
	EventConfirmationRequested = "account.confirmation_requested"
)

// Event is the JSON payload published per notification.
type Event struct {
	Type      string    `json:"type"`
	AccountID string    `json:"account_id"`
	Email     string    `json:"email"`
	Provider  string    `json:"provider,omitempty"`
	Token     string    `json:"token,omitempty"`
	At        time.Time `json:"at"`
}

// RedisPublisher publishes events on a redis pub/sub channel for the mailer
// and other downstream consumers.
type RedisPublisher struct {
	client  redis.UniversalClient
	channel string
	now     func() time.Time
}

func NewRedisPublisher(client redis.UniversalClient, channel string) *RedisPublisher {
	return &RedisPublisher{client: client, channel: channel, now: time.Now}
}

func (p *RedisPublisher) AccountProvisioned(ctx context.Context, account *auth.Account, provider string) error {
	return p.publish(ctx, Event{
		Type:      EventAccountProvisioned,
		AccountID: account.ID,
		Email:     account.Email,
		Provider:  provider,
	})
}

func (p *RedisPublisher) ConfirmationRequested(ctx context.Context, account *auth.Account, token string) error {
	return p.publish(ctx, Event{
		Type:      EventConfirmationRequested,
		AccountID: account.ID,
		Email:     account.Email,
		Token:     token,
	})
}

func (p *RedisPublisher) publish(ctx context.Context, e Event) error {
	e.At = p.now().UTC()

	payload, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("notify: marshal %s: %w", e.Type, err)
	}
	if err := p.client.Publish(ctx, p.channel, payload).Err(); err != nil {
		return fmt.Errorf("notify: publish %s: %w", e.Type, err)
	}
	return nil
}

// LogNotifier only logs events. Used when no channel is configured.
type LogNotifier struct{}

func (LogNotifier) AccountProvisioned(ctx context.Context, account *auth.Account, provider string) error {
	logger.FromContext(ctx).Info("account provisioned",
		"account_id", account.ID,
		"provider", provider,
	)
	return nil
}

// ConfirmationRequested never logs the token itself.
func (LogNotifier) ConfirmationRequested(ctx context.Context, account *auth.Account, _ string) error {
	logger.FromContext(ctx).Info("account confirmation requested",
		"account_id", account.ID,
	)
	return nil
}
