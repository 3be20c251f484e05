package linker_test

import (
	"context"
	"testing"

	"identity-service/internal/auth"
	"identity-service/internal/auth/linker"
	"identity-service/internal/auth/store"
	"identity-service/internal/auth/store/storetest"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func account(t *testing.T, s *store.Store, email, name string) *auth.Account {
	t.Helper()
	a := &auth.Account{Email: email, DisplayName: name, CredentialHash: "h"}
	require.NoError(t, s.CreateAccount(context.Background(), a))
	return a
}

func TestLinkCreatesMissingIdentity(t *testing.T) {
	s := storetest.Open(t)
	x := account(t, s, "x@x.com", "X")

	res, err := linker.New(nil).Link(context.Background(), s, x, auth.Assertion{Provider: "github", UID: "7"})
	require.NoError(t, err)

	assert.True(t, res.Created)
	assert.False(t, res.Reassigned)
	assert.Equal(t, x.ID, res.Identity.AccountID)
	assert.Equal(t, 1, storetest.Count(t, s, "identities"))
}

func TestLinkReassignsFromOtherAccount(t *testing.T) {
	s := storetest.Open(t)
	ctx := context.Background()
	x := account(t, s, "x@x.com", "X")
	y := account(t, s, "y@x.com", "Y")

	_, err := s.CreateIdentity(ctx, "github", "7", y.ID)
	require.NoError(t, err)

	l := linker.New([]linker.ProfileField{linker.FieldDisplayName})
	res, err := l.Link(ctx, s, x, auth.Assertion{Provider: "github", UID: "7", Name: "Yvonne"})
	require.NoError(t, err)

	assert.True(t, res.Reassigned)
	assert.Equal(t, y.ID, res.PreviousAccountID)
	assert.Equal(t, x.ID, res.Identity.AccountID)
	assert.Equal(t, 1, storetest.Count(t, s, "identities"))

	// Y keeps its own profile
	gotY, err := s.GetAccount(ctx, y.ID)
	require.NoError(t, err)
	assert.Equal(t, "y@x.com", gotY.Email)
	assert.Equal(t, "Y", gotY.DisplayName)

	gotX, err := s.GetAccount(ctx, x.ID)
	require.NoError(t, err)
	assert.Equal(t, "Yvonne", gotX.DisplayName)
	assert.Equal(t, "x@x.com", gotX.Email)
}

func TestLinkAlreadyOwnedIsNoop(t *testing.T) {
	s := storetest.Open(t)
	ctx := context.Background()
	x := account(t, s, "x@x.com", "X")

	_, err := s.CreateIdentity(ctx, "github", "7", x.ID)
	require.NoError(t, err)

	res, err := linker.New(nil).Link(ctx, s, x, auth.Assertion{Provider: "github", UID: "7", Name: "Other"})
	require.NoError(t, err)
	assert.False(t, res.Created)
	assert.False(t, res.Reassigned)
	assert.False(t, res.ProfileUpdated)
}

func TestLinkMergesOnlyAllowListedNonEmptyFields(t *testing.T) {
	s := storetest.Open(t)
	ctx := context.Background()
	x := account(t, s, "x@x.com", "X")

	l := linker.New([]linker.ProfileField{linker.FieldAvatarURL})
	res, err := l.Link(ctx, s, x, auth.Assertion{
		Provider:  "github",
		UID:       "7",
		Email:     "attacker@x.com",
		Name:      "Renamed",
		AvatarURL: "https://img/x.png",
	})
	require.NoError(t, err)
	assert.True(t, res.ProfileUpdated)

	got, err := s.GetAccount(ctx, x.ID)
	require.NoError(t, err)
	assert.Equal(t, "X", got.DisplayName)
	assert.Equal(t, "https://img/x.png", got.AvatarURL)
	assert.Equal(t, "x@x.com", got.Email)

	// empty assertion values never blank out the account
	res, err = l.Link(ctx, s, got, auth.Assertion{Provider: "github", UID: "7"})
	require.NoError(t, err)
	assert.False(t, res.ProfileUpdated)
}

func TestLinkRequiresAccount(t *testing.T) {
	s := storetest.Open(t)

	_, err := linker.New(nil).Link(context.Background(), s, nil, auth.Assertion{Provider: "github", UID: "7"})
	assert.Error(t, err)
}

func TestParseFields(t *testing.T) {
	fields, err := linker.ParseFields([]string{"display_name", " avatar_url ", ""})
	require.NoError(t, err)
	assert.Equal(t, []linker.ProfileField{linker.FieldDisplayName, linker.FieldAvatarURL}, fields)

	_, err = linker.ParseFields([]string{"email"})
	assert.Error(t, err)
}
