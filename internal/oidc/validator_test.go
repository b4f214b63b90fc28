package oidc

import (
	"crypto/rsa"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/lestrrat-go/jwx/v2/jwk"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/o3willard-AI/agentpki/internal/errors"
	"github.com/o3willard-AI/agentpki/internal/pkitest"
)

func newKeySet(t *testing.T, key *rsa.PrivateKey, kid string) jwk.Set {
	t.Helper()
	pub, err := jwk.FromRaw(key.Public())
	require.NoError(t, err)
	require.NoError(t, pub.Set(jwk.KeyIDKey, kid))
	set := jwk.NewSet()
	require.NoError(t, set.AddKey(pub))
	return set
}

func signToken(t *testing.T, key *rsa.PrivateKey, kid string, claims jwt.MapClaims) string {
	t.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodRS256, claims)
	if kid != "" {
		token.Header["kid"] = kid
	}
	signed, err := token.SignedString(key)
	require.NoError(t, err)
	return signed
}

func baseClaims() jwt.MapClaims {
	return jwt.MapClaims{
		"sub":                "alice",
		"iss":                "https://idp.example/realms/acme",
		"name":               "Alice Doe",
		"preferred_username": "adoe",
		"exp":                time.Now().Add(time.Hour).Unix(),
	}
}

func TestValidateTokenHappyPath(t *testing.T) {
	key := pkitest.NewRSAKey(t, 2048)
	set := newKeySet(t, key, "kid-1")

	claims, err := ValidateToken(signToken(t, key, "kid-1", baseClaims()), set, nil)
	require.NoError(t, err)
	assert.Equal(t, "alice", claims.Subject)
	assert.Equal(t, "https://idp.example/realms/acme", claims.Issuer)

	name, err := claims.DisplayName()
	require.NoError(t, err)
	assert.Equal(t, "Alice Doe", name)
}

func TestValidateTokenMissingKid(t *testing.T) {
	key := pkitest.NewRSAKey(t, 2048)
	set := newKeySet(t, key, "kid-1")

	_, err := ValidateToken(signToken(t, key, "", baseClaims()), set, nil)
	require.Error(t, err)
	assert.True(t, apperrors.Is(err, apperrors.CodeJwtMissingKid))
}

func TestValidateTokenUnknownKid(t *testing.T) {
	key := pkitest.NewRSAKey(t, 2048)
	set := newKeySet(t, key, "kid-1")

	_, err := ValidateToken(signToken(t, key, "other", baseClaims()), set, nil)
	require.Error(t, err)
	assert.True(t, apperrors.Is(err, apperrors.CodeJwtKeyNotFound))
}

func TestValidateTokenWrongKey(t *testing.T) {
	signingKey := pkitest.NewRSAKey(t, 2048)
	otherKey := pkitest.NewRSAKey(t, 2048)
	set := newKeySet(t, otherKey, "kid-1")

	_, err := ValidateToken(signToken(t, signingKey, "kid-1", baseClaims()), set, nil)
	require.Error(t, err)
	assert.True(t, apperrors.Is(err, apperrors.CodeJwt))
}

func TestValidateTokenExpired(t *testing.T) {
	key := pkitest.NewRSAKey(t, 2048)
	set := newKeySet(t, key, "kid-1")

	claims := baseClaims()
	claims["exp"] = time.Now().Add(-time.Hour).Unix()
	_, err := ValidateToken(signToken(t, key, "kid-1", claims), set, nil)
	require.Error(t, err)
}

func TestValidateTokenMissingExp(t *testing.T) {
	key := pkitest.NewRSAKey(t, 2048)
	set := newKeySet(t, key, "kid-1")

	claims := baseClaims()
	delete(claims, "exp")
	_, err := ValidateToken(signToken(t, key, "kid-1", claims), set, nil)
	require.Error(t, err)
}

func TestValidateTokenAudience(t *testing.T) {
	key := pkitest.NewRSAKey(t, 2048)
	set := newKeySet(t, key, "kid-1")

	claims := baseClaims()
	claims["aud"] = "agent-enroll"
	token := signToken(t, key, "kid-1", claims)

	// Enforced: membership required
	_, err := ValidateToken(token, set, []string{"agent-enroll", "other"})
	require.NoError(t, err)

	_, err = ValidateToken(token, set, []string{"something-else"})
	require.Error(t, err)

	// Absent expected set skips the check entirely
	_, err = ValidateToken(token, set, nil)
	require.NoError(t, err)
}

func TestDisplayNameFallback(t *testing.T) {
	c := &Claims{PreferredUsername: "adoe"}
	name, err := c.DisplayName()
	require.NoError(t, err)
	assert.Equal(t, "adoe", name)

	empty := &Claims{}
	_, err = empty.DisplayName()
	require.Error(t, err)
	assert.True(t, apperrors.Is(err, apperrors.CodeJwtMissingName))
}
