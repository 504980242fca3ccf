package authn_test

import (
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tollgate-labs/tollgate/server/internal/authn"
)

var (
	secret = []byte("k")
	alice  = common.HexToAddress("0x0000000000000000000000000000000000001001")
)

func TestResolve_BearerToken(t *testing.T) {
	v := authn.Verifier{Secret: secret}
	tok, err := authn.IssueToken(secret, alice, time.Minute)
	require.NoError(t, err)

	got, ok, err := v.Resolve("Bearer "+tok, "")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, alice, got)
}

func TestResolve_RejectsBadTokens(t *testing.T) {
	v := authn.Verifier{Secret: secret}

	expired, err := authn.IssueToken(secret, alice, -time.Minute)
	require.NoError(t, err)
	otherKey, err := authn.IssueToken([]byte("other"), alice, time.Minute)
	require.NoError(t, err)
	noExpiry, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{Subject: alice.Hex()}).SignedString(secret)
	require.NoError(t, err)
	badSubject, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
		Subject:   "alice",
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Minute)),
	}).SignedString(secret)
	require.NoError(t, err)

	for name, h := range map[string]string{
		"not bearer":  "Basic abc",
		"garbage":     "Bearer garbage",
		"expired":     "Bearer " + expired,
		"wrong key":   "Bearer " + otherKey,
		"no expiry":   "Bearer " + noExpiry,
		"bad subject": "Bearer " + badSubject,
	} {
		t.Run(name, func(t *testing.T) {
			_, ok, err := v.Resolve(h, "")
			assert.ErrorIs(t, err, authn.ErrBadCredentials)
			assert.False(t, ok)
		})
	}
}

func TestResolve_AddressHeader(t *testing.T) {
	_, ok, err := authn.Verifier{}.Resolve("", alice.Hex())
	require.NoError(t, err)
	assert.False(t, ok, "header ignored unless allowed")

	dev := authn.Verifier{AllowAddressHeader: true}
	got, ok, err := dev.Resolve("", alice.Hex())
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, alice, got)

	_, _, err = dev.Resolve("", "bob")
	assert.ErrorIs(t, err, authn.ErrBadCredentials)

	// Without a secret, Authorization is not consulted.
	got, ok, err = dev.Resolve("Bearer whatever", alice.Hex())
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, alice, got)
}
