package confirm

import (
	"strings"
	"testing"
	"time"

	"identity-service/internal/auth"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSecret = "0123456789abcdef0123456789abcdef"

func fixedClock(t time.Time) func() time.Time {
	return func() time.Time { return t }
}

func TestIssueParseRoundTrip(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	issuer, err := NewIssuer(testSecret, 30*time.Minute, fixedClock(now))
	require.NoError(t, err)

	token, err := issuer.Issue(&auth.Account{ID: "acct-1", Email: " A@X.com "}, "round-1")
	require.NoError(t, err)

	claims, err := issuer.Parse(token)
	require.NoError(t, err)
	assert.Equal(t, "acct-1", claims.AccountID)
	assert.Equal(t, "a@x.com", claims.Email)
	assert.Equal(t, "round-1", claims.Round)
	assert.True(t, claims.ExpiresAt.Equal(now.Add(30*time.Minute)))
}

func TestParseRejectsExpiredToken(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	issuer, err := NewIssuer(testSecret, time.Minute, fixedClock(now))
	require.NoError(t, err)

	token, err := issuer.Issue(&auth.Account{ID: "acct-1", Email: "a@x.com"}, "round-1")
	require.NoError(t, err)

	later, err := NewIssuer(testSecret, time.Minute, fixedClock(now.Add(2*time.Minute)))
	require.NoError(t, err)

	_, err = later.Parse(token)
	assert.ErrorIs(t, err, ErrExpiredToken)
}

func TestParseRejectsForeignSignature(t *testing.T) {
	issuer, err := NewIssuer(testSecret, time.Minute, nil)
	require.NoError(t, err)
	other, err := NewIssuer(strings.Repeat("z", 32), time.Minute, nil)
	require.NoError(t, err)

	token, err := other.Issue(&auth.Account{ID: "acct-1", Email: "a@x.com"}, "round-1")
	require.NoError(t, err)

	_, err = issuer.Parse(token)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestParseRejectsWrongPurpose(t *testing.T) {
	iss, err := NewIssuer(testSecret, time.Minute, nil)
	require.NoError(t, err)

	claims := tokenClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    issuer,
			Subject:   "acct-1",
			ID:        "round-1",
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Minute)),
		},
		Email:   "a@x.com",
		Purpose: "password_reset",
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(testSecret))
	require.NoError(t, err)

	_, err = iss.Parse(token)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestTokenRequiresRound(t *testing.T) {
	iss, err := NewIssuer(testSecret, time.Minute, nil)
	require.NoError(t, err)

	_, err = iss.Issue(&auth.Account{ID: "acct-1", Email: "a@x.com"}, "")
	assert.Error(t, err)

	claims := tokenClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    issuer,
			Subject:   "acct-1",
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Minute)),
		},
		Email:   "a@x.com",
		Purpose: purpose,
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(testSecret))
	require.NoError(t, err)

	_, err = iss.Parse(token)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestNewIssuerValidatesInput(t *testing.T) {
	_, err := NewIssuer("short", time.Minute, nil)
	assert.Error(t, err)

	_, err = NewIssuer(testSecret, 0, nil)
	assert.Error(t, err)

	_, err = NewIssuer(testSecret, time.Minute, nil)
	assert.NoError(t, err)

	_, err = (&Issuer{secret: []byte(testSecret), ttl: time.Minute, now: time.Now}).Parse("  ")
	assert.ErrorIs(t, err, ErrInvalidToken)
}
