package token

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestPurpose: Validates token entropy and uniqueness of freshly minted tokens.
// Scope: Unit Test
// Security: Invitation tokens must be practically unguessable (>=128 bits).
// Expected: Tokens are 43 base64url chars (256 bits) and never repeat.
// Test Case ID: TOK-01
func TestToken_Generator_New(t *testing.T) {
	g := NewGenerator()

	seen := make(map[string]bool)
	for i := 0; i < 100; i++ {
		tok, err := g.New()
		require.NoError(t, err)
		assert.Len(t, tok, 43)
		assert.False(t, seen[tok], "token repeated")
		seen[tok] = true
	}
}

func TestToken_Policy_Window(t *testing.T) {
	p := Policy{AdminWindow: 48 * time.Hour, MemberWindow: 7 * 24 * time.Hour}

	assert.Equal(t, 48*time.Hour, p.Window(RoleAdministrator))
	assert.Equal(t, 7*24*time.Hour, p.Window("member"))
	assert.Equal(t, 7*24*time.Hour, p.Window("senior_member"))
}

func TestToken_Policy_ExpiryFrom(t *testing.T) {
	p := Policy{AdminWindow: 48 * time.Hour, MemberWindow: 7 * 24 * time.Hour}
	issued := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

	expiry := p.ExpiryFrom(issued, RoleAdministrator)
	assert.Equal(t, issued.Add(48*time.Hour), expiry)
	assert.Equal(t, 48*time.Hour, expiry.Sub(issued), "window must be exact")
}
