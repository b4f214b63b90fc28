package oidc

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/lestrrat-go/jwx/v2/jwk"

	apperrors "github.com/o3willard-AI/agentpki/internal/errors"
)

type tokenClaims struct {
	Name              string `json:"name"`
	PreferredUsername string `json:"preferred_username"`
	jwt.RegisteredClaims
}

// ValidateToken verifies a compact JWT against the given JWK set. The signing
// algorithm is taken from the token header; the key is selected by kid.
// Audience membership is enforced only when audiences is non-nil; expiry is
// always enforced.
func ValidateToken(token string, keys jwk.Set, audiences []string) (*Claims, error) {
	parser := jwt.NewParser(jwt.WithExpirationRequired())

	claims := &tokenClaims{}
	_, err := parser.ParseWithClaims(token, claims, func(t *jwt.Token) (interface{}, error) {
		kid, ok := t.Header["kid"].(string)
		if !ok || kid == "" {
			return nil, apperrors.JwtMissingKid()
		}
		key, found := keys.LookupKeyID(kid)
		if !found {
			return nil, apperrors.JwtKeyNotFound(kid)
		}
		var raw interface{}
		if err := key.Raw(&raw); err != nil {
			return nil, apperrors.Wrap(apperrors.CodeJwt, "failed to materialize JWK", err)
		}
		return raw, nil
	})
	if err != nil {
		// Keyfunc failures keep their own taxonomy codes
		var appErr *apperrors.Error
		if errors.As(err, &appErr) {
			return nil, appErr
		}
		return nil, apperrors.Jwt(err)
	}

	if claims.Subject == "" {
		return nil, apperrors.Jwt(errors.New("token missing 'sub' claim"))
	}
	if claims.Issuer == "" {
		return nil, apperrors.Jwt(errors.New("token missing 'iss' claim"))
	}

	if audiences != nil {
		if !audienceMatches(claims.Audience, audiences) {
			return nil, apperrors.Jwt(errors.New("token audience not in expected set"))
		}
	}

	out := &Claims{
		Subject:           claims.Subject,
		Name:              claims.Name,
		PreferredUsername: claims.PreferredUsername,
		Issuer:            claims.Issuer,
	}
	if claims.ExpiresAt != nil {
		out.ExpiresAt = claims.ExpiresAt.Time
	} else {
		out.ExpiresAt = time.Time{}
	}
	return out, nil
}

func audienceMatches(got jwt.ClaimStrings, expected []string) bool {
	for _, aud := range got {
		for _, want := range expected {
			if aud == want {
				return true
			}
		}
	}
	return false
}
