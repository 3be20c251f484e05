package credentials

import (
	"identity-service/internal/utils"

	"golang.org/x/crypto/bcrypt"
)

// Hasher produces credential hashes for accounts.
type Hasher struct {
	Cost int
}

// NewHasher returns a bcrypt hasher with the default cost.
func NewHasher() Hasher {
	return Hasher{Cost: bcrypt.DefaultCost}
}

// Unusable hashes a random secret nobody knows. OAuth-only accounts get one so
// the column is never empty and no password can ever match it.
func (h Hasher) Unusable() (string, error) {
	secret, err := utils.RandomString(32)
	if err != nil {
		return "", err
	}

	cost := h.Cost
	if cost == 0 {
		cost = bcrypt.DefaultCost
	}

	bytes, err := bcrypt.GenerateFromPassword([]byte(secret), cost)
	if err != nil {
		return "", err
	}
	return string(bytes), nil
}
