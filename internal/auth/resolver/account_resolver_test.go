package resolver_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"identity-service/internal/auth"
	"identity-service/internal/auth/resolver"
	"identity-service/internal/auth/store"
	"identity-service/internal/auth/store/storetest"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func stubCredential() (string, error) { return "unusable-hash", nil }

func newResolver() *resolver.AccountResolver {
	return resolver.NewAccountResolver(stubCredential)
}

func assertion() auth.Assertion {
	return auth.Assertion{
		Provider: "p1",
		UID:      "u1",
		Email:    "a@x.com",
		Name:     "Alice",
	}
}

func TestResolveProvisionsConfirmedAccountWithIdentity(t *testing.T) {
	s := storetest.Open(t)
	ctx := context.Background()

	res, err := newResolver().Resolve(ctx, s, assertion())
	require.NoError(t, err)

	assert.Equal(t, resolver.Provisioned, res.Outcome)
	assert.True(t, res.Confirmed)
	assert.Equal(t, "a@x.com", res.Account.Email)
	assert.Equal(t, "Alice", res.Account.DisplayName)
	assert.Equal(t, "unusable-hash", res.Account.CredentialHash)
	require.NotNil(t, res.Account.ConfirmedAt)
	require.NotNil(t, res.Identity)
	assert.Equal(t, res.Account.ID, res.Identity.AccountID)

	snap := storetest.Take(t, s)
	assert.Equal(t, storetest.Snapshot{Accounts: 1, Identities: 1}, snap)
}

func TestResolveTwiceDoesNotDuplicate(t *testing.T) {
	s := storetest.Open(t)
	ctx := context.Background()
	r := newResolver()

	first, err := r.Resolve(ctx, s, assertion())
	require.NoError(t, err)
	second, err := r.Resolve(ctx, s, assertion())
	require.NoError(t, err)

	assert.Equal(t, resolver.FoundByIdentity, second.Outcome)
	assert.Equal(t, first.Account.ID, second.Account.ID)
	assert.Equal(t, storetest.Snapshot{Accounts: 1, Identities: 1}, storetest.Take(t, s))
}

func TestResolveByIdentityIgnoresEmail(t *testing.T) {
	s := storetest.Open(t)
	ctx := context.Background()

	owner := &auth.Account{Email: "owner@x.com", CredentialHash: "h"}
	require.NoError(t, s.CreateAccount(ctx, owner))
	_, err := s.CreateIdentity(ctx, "p1", "u1", owner.ID)
	require.NoError(t, err)

	// another account owns the claimed email; identity wins
	other := &auth.Account{Email: "a@x.com", CredentialHash: "h"}
	require.NoError(t, s.CreateAccount(ctx, other))

	before := storetest.Take(t, s)
	res, err := newResolver().Resolve(ctx, s, assertion())
	require.NoError(t, err)

	assert.Equal(t, resolver.FoundByIdentity, res.Outcome)
	assert.Equal(t, owner.ID, res.Account.ID)
	assert.False(t, res.Confirmed)
	assert.Equal(t, before, storetest.Take(t, s))
}

func TestResolveByEmailConfirmsOnceAndLinks(t *testing.T) {
	s := storetest.Open(t)
	ctx := context.Background()

	existing := &auth.Account{Email: "A@X.com", CredentialHash: "h"}
	require.NoError(t, s.CreateAccount(ctx, existing))

	res, err := newResolver().Resolve(ctx, s, assertion())
	require.NoError(t, err)

	assert.Equal(t, resolver.LinkedByEmail, res.Outcome)
	assert.Equal(t, existing.ID, res.Account.ID)
	assert.True(t, res.Confirmed)
	assert.Equal(t, storetest.Snapshot{Accounts: 1, Identities: 1}, storetest.Take(t, s))

	got, err := s.GetAccount(ctx, existing.ID)
	require.NoError(t, err)
	require.NotNil(t, got.ConfirmedAt)
	confirmedAt := *got.ConfirmedAt

	// second resolve goes through the identity and leaves confirmation alone
	again, err := newResolver().Resolve(ctx, s.WithClock(func() time.Time {
		return confirmedAt.Add(time.Hour)
	}), assertion())
	require.NoError(t, err)
	assert.Equal(t, resolver.FoundByIdentity, again.Outcome)
	assert.False(t, again.Confirmed)

	got, err = s.GetAccount(ctx, existing.ID)
	require.NoError(t, err)
	assert.True(t, got.ConfirmedAt.Equal(confirmedAt))
}

func TestResolveByEmailKeepsExistingConfirmation(t *testing.T) {
	s := storetest.Open(t)
	ctx := context.Background()

	at := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	existing := &auth.Account{Email: "a@x.com", CredentialHash: "h", ConfirmedAt: &at}
	require.NoError(t, s.CreateAccount(ctx, existing))

	res, err := newResolver().Resolve(ctx, s, assertion())
	require.NoError(t, err)
	assert.Equal(t, resolver.LinkedByEmail, res.Outcome)
	assert.False(t, res.Confirmed)
	assert.True(t, res.Account.ConfirmedAt.Equal(at))
}

func TestResolveRejectsMalformedAssertion(t *testing.T) {
	s := storetest.Open(t)

	_, err := newResolver().Resolve(context.Background(), s, auth.Assertion{Provider: "p1", UID: "u1"})
	assert.ErrorIs(t, err, auth.ErrMalformedAssertion)
	assert.Equal(t, storetest.Snapshot{}, storetest.Take(t, s))
}

func TestResolveSurfacesDuplicateIdentityForRetry(t *testing.T) {
	s := storetest.Open(t)
	ctx := context.Background()

	existing := &auth.Account{Email: "a@x.com", CredentialHash: "h"}
	require.NoError(t, s.CreateAccount(ctx, existing))

	// a competing request commits the identity between our lookup and insert
	repo := &racingRepo{Store: s, race: func() {
		_, err := s.CreateIdentity(ctx, "p1", "u1", existing.ID)
		require.NoError(t, err)
	}}

	_, err := newResolver().Resolve(ctx, repo, assertion())
	assert.ErrorIs(t, err, auth.ErrDuplicateIdentity)

	// the re-read finds the committed row
	res, err := newResolver().Resolve(ctx, s, assertion())
	require.NoError(t, err)
	assert.Equal(t, resolver.FoundByIdentity, res.Outcome)
	assert.Equal(t, 1, storetest.Count(t, s, "identities"))
}

func TestResolvePropagatesCredentialError(t *testing.T) {
	s := storetest.Open(t)
	boom := errors.New("entropy exhausted")

	r := resolver.NewAccountResolver(func() (string, error) { return "", boom })
	_, err := r.Resolve(context.Background(), s, assertion())
	assert.ErrorIs(t, err, boom)
}

// racingRepo runs race once, right before the first CreateIdentity.
type racingRepo struct {
	*store.Store
	race func()
	done bool
}

func (r *racingRepo) CreateIdentity(ctx context.Context, provider, uid, accountID string) (*auth.Identity, error) {
	if !r.done {
		r.done = true
		r.race()
	}
	return r.Store.CreateIdentity(ctx, provider, uid, accountID)
}
