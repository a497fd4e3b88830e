package identity

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testHasher() *PasswordHasher {
	// Reduced parameters to keep the test fast
	return NewPasswordHasher(8*1024, 1, 1, 16, 32)
}

func TestIdentity_Hasher_RoundTrip(t *testing.T) {
	h := testHasher()

	encoded, err := h.Hash("correct horse battery staple")
	require.NoError(t, err)
	assert.Contains(t, encoded, "$argon2id$")

	ok, err := h.Verify("correct horse battery staple", encoded)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = h.Verify("wrong password", encoded)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestIdentity_Hasher_RejectsMalformedHash(t *testing.T) {
	h := testHasher()

	_, err := h.Verify("whatever", "not-an-argon2-hash")
	assert.Error(t, err)
}

func TestIdentity_IsStrongPassword(t *testing.T) {
	assert.True(t, IsStrongPassword("12345678"))
	assert.False(t, IsStrongPassword("1234567"))
}
