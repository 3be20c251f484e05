package credentials

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

func TestUnusableHashIsUniqueAndUnguessable(t *testing.T) {
	h := Hasher{Cost: bcrypt.MinCost}

	first, err := h.Unusable()
	require.NoError(t, err)
	second, err := h.Unusable()
	require.NoError(t, err)

	assert.NotEqual(t, first, second)
	assert.Error(t, bcrypt.CompareHashAndPassword([]byte(first), []byte("")))
	assert.Error(t, bcrypt.CompareHashAndPassword([]byte(first), []byte("password")))

	cost, err := bcrypt.Cost([]byte(first))
	require.NoError(t, err)
	assert.Equal(t, bcrypt.MinCost, cost)
}

func TestZeroHasherUsesDefaultCost(t *testing.T) {
	hash, err := Hasher{}.Unusable()
	require.NoError(t, err)

	cost, err := bcrypt.Cost([]byte(hash))
	require.NoError(t, err)
	assert.Equal(t, bcrypt.DefaultCost, cost)
}
