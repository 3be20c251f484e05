package resolver

import (
	"context"
	"errors"
	"fmt"
	"time"

	"identity-service/internal/auth"
	"identity-service/internal/logger"
)

// AccountResolver finds or provisions the account for a verified assertion.
//
// Lookup order is strict and the first match wins:
//  1. identity by (provider, uid)
//  2. account by email, linking a new identity to it
//  3. a new, confirmed account together with its identity
//
// Step 3 creates the identity right away, so a resolved account always has
// the identity row it was resolved for.
type AccountResolver struct {
	unusableCredential func() (string, error)
}

// NewAccountResolver takes the generator for OAuth-only credential hashes.
func NewAccountResolver(unusableCredential func() (string, error)) *AccountResolver {
	return &AccountResolver{unusableCredential: unusableCredential}
}

func (r *AccountResolver) Resolve(
	ctx context.Context,
	repo Repository,
	assertion auth.Assertion,
) (Resolution, error) {

	if err := assertion.Validate(); err != nil {
		return Resolution{}, err
	}

	// 1. Identity lookup (provider + uid)
	identity, err := repo.FindIdentity(ctx, assertion.Provider, assertion.UID)
	if err == nil {
		account, err := repo.GetAccount(ctx, identity.AccountID)
		if err != nil {
			return Resolution{}, fmt.Errorf("resolver: load identity owner: %w", err)
		}
		return Resolution{Account: account, Identity: identity, Outcome: FoundByIdentity}, nil
	}
	if !errors.Is(err, auth.ErrNotFound) {
		return Resolution{}, err
	}

	// 2. Email-based linking (existing account, new provider)
	account, err := repo.FindAccountByEmail(ctx, assertion.Email)
	if err == nil {
		return r.linkByEmail(ctx, repo, account, assertion)
	}
	if !errors.Is(err, auth.ErrNotFound) {
		return Resolution{}, err
	}

	// 3. Provision
	return r.provision(ctx, repo, assertion)
}

func (r *AccountResolver) linkByEmail(
	ctx context.Context,
	repo Repository,
	account *auth.Account,
	assertion auth.Assertion,
) (Resolution, error) {

	// ErrDuplicateIdentity is returned as is; the caller re-runs the
	// transaction and the retry finds the row at step 1.
	identity, err := repo.CreateIdentity(ctx, assertion.Provider, assertion.UID, account.ID)
	if err != nil {
		return Resolution{}, err
	}

	res := Resolution{Account: account, Identity: identity, Outcome: LinkedByEmail}

	if auth.NormalizeEmail(assertion.Email) == auth.NormalizeEmail(account.Email) && !account.Confirmed() {
		now := repo.Now()
		changed, err := repo.MarkConfirmed(ctx, account.ID, now)
		if err != nil {
			return Resolution{}, err
		}
		if changed {
			account.ConfirmedAt = &now
			res.Confirmed = true
		}
	}

	logger.Info("identity linked by email", map[string]any{
		"provider":   assertion.Provider,
		"account_id": account.ID,
		"confirmed":  res.Confirmed,
	})

	return res, nil
}

func (r *AccountResolver) provision(
	ctx context.Context,
	repo Repository,
	assertion auth.Assertion,
) (Resolution, error) {

	hash, err := r.unusableCredential()
	if err != nil {
		return Resolution{}, fmt.Errorf("resolver: generate credential: %w", err)
	}

	// trust was established by the verification policy before resolve ran
	confirmedAt := repo.Now().Truncate(time.Millisecond)
	account := &auth.Account{
		Email:          assertion.Email,
		DisplayName:    assertion.Name,
		AvatarURL:      assertion.AvatarURL,
		ConfirmedAt:    &confirmedAt,
		CredentialHash: hash,
	}
	if err := repo.CreateAccount(ctx, account); err != nil {
		return Resolution{}, err
	}

	identity, err := repo.CreateIdentity(ctx, assertion.Provider, assertion.UID, account.ID)
	if err != nil {
		return Resolution{}, err
	}

	logger.Info("account provisioned", map[string]any{
		"provider":   assertion.Provider,
		"account_id": account.ID,
	})

	return Resolution{Account: account, Identity: identity, Outcome: Provisioned, Confirmed: true}, nil
}
