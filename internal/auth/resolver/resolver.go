package resolver

import (
	"context"
	"time"

	"identity-service/internal/auth"
)

// Repository is the slice of the account/identity store the resolver needs.
// Callers pass a transaction-bound store so all steps commit together.
type Repository interface {
	FindIdentity(ctx context.Context, provider, uid string) (*auth.Identity, error)
	CreateIdentity(ctx context.Context, provider, uid, accountID string) (*auth.Identity, error)
	GetAccount(ctx context.Context, id string) (*auth.Account, error)
	FindAccountByEmail(ctx context.Context, email string) (*auth.Account, error)
	CreateAccount(ctx context.Context, a *auth.Account) error
	MarkConfirmed(ctx context.Context, id string, at time.Time) (bool, error)
	Now() time.Time
}

// Resolver determines which local account an assertion belongs to.
// It is the ONLY place where assertion-to-account mapping logic lives.
type Resolver interface {
	Resolve(
		ctx context.Context,
		repo Repository,
		assertion auth.Assertion,
	) (Resolution, error)
}

// Outcome names the lookup step that produced the account.
type Outcome string

const (
	FoundByIdentity Outcome = "found_by_identity"
	LinkedByEmail   Outcome = "linked_by_email"
	Provisioned     Outcome = "provisioned"
)

// Resolution is the result of a successful Resolve.
type Resolution struct {
	Account  *auth.Account
	Identity *auth.Identity
	Outcome  Outcome

	// Confirmed is true when this call confirmed the account, either by
	// provisioning it confirmed or by flipping an unconfirmed match.
	Confirmed bool
}
