package confirm

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"identity-service/internal/auth"

	"github.com/golang-jwt/jwt/v5"
)

const (
	purpose  = "account_confirmation"
	issuer   = "identity-service"
	minBytes = 32
)

var (
	ErrInvalidToken = errors.New("confirmation token is invalid")
	ErrExpiredToken = errors.New("confirmation token has expired")
)

// Claims are the facts a confirmation token vouches for. Round is the
// account's confirmation round the token was issued for; the store accepts
// it once.
type Claims struct {
	AccountID string
	Email     string
	Round     string
	ExpiresAt time.Time
}

type tokenClaims struct {
	jwt.RegisteredClaims
	Email   string `json:"email"`
	Purpose string `json:"purpose"`
}

// Issuer signs and verifies short-lived account confirmation tokens. The token
// replaces any confirmation flag that would otherwise live in session state.
type Issuer struct {
	secret []byte
	ttl    time.Duration
	now    func() time.Time
}

// NewIssuer requires an HMAC secret of at least 32 bytes.
func NewIssuer(secret string, ttl time.Duration, now func() time.Time) (*Issuer, error) {
	if len(secret) < minBytes {
		return nil, fmt.Errorf("confirm: secret must be at least %d bytes", minBytes)
	}
	if ttl <= 0 {
		return nil, errors.New("confirm: ttl must be positive")
	}
	if now == nil {
		now = time.Now
	}
	return &Issuer{secret: []byte(secret), ttl: ttl, now: now}, nil
}

// Issue signs a token for the account's current email and confirmation round.
func (i *Issuer) Issue(account *auth.Account, round string) (string, error) {
	if account == nil || account.ID == "" {
		return "", errors.New("confirm: account is required")
	}
	if round == "" {
		return "", errors.New("confirm: confirmation round is required")
	}

	now := i.now().UTC()
	claims := tokenClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    issuer,
			Subject:   account.ID,
			ID:        round,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(i.ttl)),
		},
		Email:   auth.NormalizeEmail(account.Email),
		Purpose: purpose,
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(i.secret)
	if err != nil {
		return "", fmt.Errorf("confirm: sign token: %w", err)
	}
	return signed, nil
}

// Parse verifies signature, issuer, purpose and expiry.
func (i *Issuer) Parse(token string) (Claims, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return Claims{}, ErrInvalidToken
	}

	var parsed tokenClaims
	_, err := jwt.ParseWithClaims(token, &parsed, func(t *jwt.Token) (any, error) {
		return i.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(issuer),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(i.now),
	)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return Claims{}, ErrExpiredToken
		}
		return Claims{}, ErrInvalidToken
	}

	if parsed.Purpose != purpose || parsed.Subject == "" || parsed.Email == "" || parsed.ID == "" {
		return Claims{}, ErrInvalidToken
	}

	return Claims{
		AccountID: parsed.Subject,
		Email:     parsed.Email,
		Round:     parsed.ID,
		ExpiresAt: parsed.ExpiresAt.Time,
	}, nil
}
