package auth

import (
	"strings"
)

// Assertion is the normalized claim an OAuth provider hands back after a
// completed handshake. It contains facts only, no decisions, and lives for a
// single request.
type Assertion struct {
	Provider  string // e.g. "google", "github"
	UID       string // provider-scoped opaque account id (sub)
	Email     string // claimed email, not yet trusted
	Name      string
	AvatarURL string

	// Info and Extra carry provider-specific flags such as "verified" or
	// "email_verified". Info holds normalized profile facts, Extra the raw
	// token/userinfo claims.
	Info  map[string]any
	Extra map[string]any
}

// Validate reports whether the assertion is well-formed enough to resolve.
func (a Assertion) Validate() error {
	if strings.TrimSpace(a.Provider) == "" || strings.TrimSpace(a.UID) == "" {
		return ErrMalformedAssertion
	}
	if NormalizeEmail(a.Email) == "" {
		return ErrMalformedAssertion
	}
	return nil
}

// InfoFlag reads a boolean flag from Info.
func (a Assertion) InfoFlag(key string) bool {
	return flag(a.Info, key)
}

// ExtraFlag reads a boolean flag from Extra.
func (a Assertion) ExtraFlag(key string) bool {
	return flag(a.Extra, key)
}

// providers disagree on whether flags are JSON booleans or strings
func flag(m map[string]any, key string) bool {
	switch v := m[key].(type) {
	case bool:
		return v
	case string:
		return strings.EqualFold(v, "true")
	default:
		return false
	}
}

// NormalizeEmail trims and lower-cases an email for storage and lookup.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
