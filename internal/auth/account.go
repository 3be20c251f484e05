package auth

import "time"

// Account is a local user.
type Account struct {
	ID             string
	Email          string
	DisplayName    string
	AvatarURL      string
	ConfirmedAt    *time.Time // nil while unconfirmed
	CredentialHash string
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// Confirmed reports whether the account's email has been confirmed.
func (a *Account) Confirmed() bool {
	return a != nil && a.ConfirmedAt != nil
}

// Identity links one provider account to one local Account.
// (Provider, UID) is globally unique; AccountID may change over time.
type Identity struct {
	ID        string
	Provider  string
	UID       string
	AccountID string
	CreatedAt time.Time
	UpdatedAt time.Time
}
