package linker

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"identity-service/internal/auth"
	"identity-service/internal/logger"
)

// ProfileField is one account field an assertion may overwrite.
type ProfileField string

const (
	FieldDisplayName ProfileField = "display_name"
	FieldAvatarURL   ProfileField = "avatar_url"
)

// ParseFields turns a configured list into profile fields. Unknown names are
// an error; email is deliberately not a profile field.
func ParseFields(names []string) ([]ProfileField, error) {
	fields := make([]ProfileField, 0, len(names))
	for _, raw := range names {
		name := strings.TrimSpace(raw)
		if name == "" {
			continue
		}
		switch f := ProfileField(name); f {
		case FieldDisplayName, FieldAvatarURL:
			fields = append(fields, f)
		default:
			return nil, fmt.Errorf("linker: unknown profile field %q", name)
		}
	}
	return fields, nil
}

// Repository is the slice of the store the linker needs.
type Repository interface {
	FindIdentity(ctx context.Context, provider, uid string) (*auth.Identity, error)
	CreateIdentity(ctx context.Context, provider, uid, accountID string) (*auth.Identity, error)
	ReassignIdentity(ctx context.Context, identity *auth.Identity, accountID string) error
	UpdateProfile(ctx context.Context, a *auth.Account) error
}

// Result describes what Link changed.
type Result struct {
	Identity *auth.Identity

	Created    bool
	Reassigned bool
	// PreviousAccountID is set when the identity moved away from another account.
	PreviousAccountID string

	ProfileUpdated bool
}

// Linker attaches an assertion's identity to an account and merges the
// allow-listed profile fields.
type Linker struct {
	fields []ProfileField
}

func New(fields []ProfileField) *Linker {
	return &Linker{fields: fields}
}

// Link makes account the owner of the assertion's (provider, uid).
func (l *Linker) Link(
	ctx context.Context,
	repo Repository,
	account *auth.Account,
	assertion auth.Assertion,
) (Result, error) {

	if account == nil || account.ID == "" {
		return Result{}, errors.New("linker: account is required")
	}

	var res Result

	identity, err := repo.FindIdentity(ctx, assertion.Provider, assertion.UID)
	switch {
	case err == nil && identity.AccountID != account.ID:
		res.PreviousAccountID = identity.AccountID
		if err := repo.ReassignIdentity(ctx, identity, account.ID); err != nil {
			return Result{}, err
		}
		res.Reassigned = true

		logger.Info("identity reassigned", map[string]any{
			"provider":        assertion.Provider,
			"from_account_id": res.PreviousAccountID,
			"to_account_id":   account.ID,
		})

	case err == nil:
		// already owned by account

	case errors.Is(err, auth.ErrNotFound):
		identity, err = repo.CreateIdentity(ctx, assertion.Provider, assertion.UID, account.ID)
		if err != nil {
			return Result{}, err
		}
		res.Created = true

	default:
		return Result{}, err
	}

	res.Identity = identity

	if l.merge(account, assertion) {
		if err := repo.UpdateProfile(ctx, account); err != nil {
			return Result{}, err
		}
		res.ProfileUpdated = true
	}

	return res, nil
}

// merge copies non-empty allow-listed values and reports whether anything changed.
func (l *Linker) merge(account *auth.Account, assertion auth.Assertion) bool {
	changed := false
	for _, f := range l.fields {
		switch f {
		case FieldDisplayName:
			if v := strings.TrimSpace(assertion.Name); v != "" && v != account.DisplayName {
				account.DisplayName = v
				changed = true
			}
		case FieldAvatarURL:
			if v := strings.TrimSpace(assertion.AvatarURL); v != "" && v != account.AvatarURL {
				account.AvatarURL = v
				changed = true
			}
		}
	}
	return changed
}
