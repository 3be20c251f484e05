package provider

import (
	"context"

	"identity-service/internal/auth"
)

// OAuthProvider defines the contract every external auth provider
// must implement. Implementations return assertion facts only and
// must not perform account creation, linking, or session management.
type OAuthProvider interface {
	// Name returns the provider identifier (e.g. "google", "github").
	Name() string

	// AuthCodeURL returns the OAuth authorization URL.
	// State and PKCE parameters are provided by the caller.
	AuthCodeURL(state string, codeChallenge string) string

	// ExchangeCode exchanges the authorization code for provider credentials
	// and returns the provider's assertion. Verification flags are carried
	// raw in Info/Extra; the verification policy decides what they mean.
	ExchangeCode(
		ctx context.Context,
		code string,
		codeVerifier string,
	) (*auth.Assertion, error)
}
