package auth

import (
	"errors"
	"fmt"
)

var (
	ErrNotFound           = errors.New("record not found")
	ErrDuplicateIdentity  = errors.New("identity already exists for provider and uid")
	ErrDuplicateAccount   = errors.New("account already exists for email")
	ErrMalformedAssertion = errors.New("assertion is missing provider, uid or email")
)

// Stable message keys exposed to end users.
const (
	MessageVerificationRejected   = "oauth.verification_rejected"
	MessageAlreadyLinkedElsewhere = "oauth.already_linked_elsewhere"
	MessageProviderMisconfigured  = "oauth.provider_misconfigured"
)

// UnsupportedProviderError means no verification rule is registered for a
// provider. It is a configuration defect, not a user-facing denial.
type UnsupportedProviderError struct {
	Provider string
}

func (e *UnsupportedProviderError) Error() string {
	return fmt.Sprintf("no verification rule registered for provider %q", e.Provider)
}

// VerificationRejected is returned when a provider assertion does not carry
// a verified email.
type VerificationRejected struct {
	Provider string
}

func (e *VerificationRejected) Error() string {
	return fmt.Sprintf("%s did not verify the email address", e.Provider)
}

func (e *VerificationRejected) MessageKey() string { return MessageVerificationRejected }

// AlreadyLinkedElsewhereError denies a connect whose email belongs to a
// different confirmed account already linked to the same provider.
type AlreadyLinkedElsewhereError struct {
	Provider string
}

func (e *AlreadyLinkedElsewhereError) Error() string {
	return fmt.Sprintf("email is already linked to another %s account", e.Provider)
}

func (e *AlreadyLinkedElsewhereError) MessageKey() string { return MessageAlreadyLinkedElsewhere }

// Denial is implemented by errors that are safe to show to the user.
type Denial interface {
	error
	MessageKey() string
	ProviderName() string
}

func (e *VerificationRejected) ProviderName() string        { return e.Provider }
func (e *AlreadyLinkedElsewhereError) ProviderName() string { return e.Provider }

// IsConflict reports whether err came from a uniqueness collision that a
// re-read can resolve.
func IsConflict(err error) bool {
	return errors.Is(err, ErrDuplicateIdentity) || errors.Is(err, ErrDuplicateAccount)
}
