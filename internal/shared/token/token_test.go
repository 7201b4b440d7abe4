package token

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var secret = []byte("unit-secret")

func mintClaims(t *testing.T, ttl time.Duration) string {
	t.Helper()
	now := time.Now().UTC()
	tok, err := Mint(secret, Claims{
		TenantID:  "acme",
		User:      "919876543210",
		IssuedAt:  now,
		ExpiresAt: now.Add(ttl),
	})
	require.NoError(t, err)
	return tok
}

func TestMintVerifyRoundTrip(t *testing.T) {
	tok := mintClaims(t, time.Hour)

	claims, err := Verify(secret, tok)
	require.NoError(t, err)
	assert.Equal(t, "acme", claims.TenantID)
	assert.Equal(t, "919876543210", claims.User)
}

func TestVerifyRejectsWrongSecret(t *testing.T) {
	tok := mintClaims(t, time.Hour)

	_, err := Verify([]byte("other-secret"), tok)
	assert.ErrorIs(t, err, ErrSignature)
}

func TestVerifyRejectsTampering(t *testing.T) {
	tok := mintClaims(t, time.Hour)

	_, err := Verify(secret, "x"+tok)
	assert.ErrorIs(t, err, ErrSignature)

	_, err = Verify(secret, "no-separator")
	assert.ErrorIs(t, err, ErrMalformed)
}

func TestVerifyRejectsExpired(t *testing.T) {
	tok := mintClaims(t, -time.Minute)

	_, err := Verify(secret, tok)
	assert.ErrorIs(t, err, ErrExpired)
}
