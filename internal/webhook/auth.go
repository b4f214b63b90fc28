package webhook

import (
	"encoding/base64"
	"net/http"
	"strings"
)

// Credentials is the inbound webhook authentication configuration. Any
// configured mechanism is accepted; none configured permits anonymous.
type Credentials struct {
	BasicUser     string
	BasicPassword string
	APIKey        string
	Bearer        string
}

// AllowsAnonymous reports whether no credential is configured
func (c *Credentials) AllowsAnonymous() bool {
	return c.BasicUser == "" && c.BasicPassword == "" && c.APIKey == "" && c.Bearer == ""
}

// Authorize checks the request against the configured credentials, trying
// the API-key header, then bearer, then basic
func (c *Credentials) Authorize(r *http.Request) bool {
	if c.AllowsAnonymous() {
		return true
	}

	if c.APIKey != "" {
		if key := r.Header.Get("X-API-KEY"); key != "" && constantTimeEq(key, c.APIKey) {
			return true
		}
	}

	authz := r.Header.Get("Authorization")
	if token, ok := strings.CutPrefix(authz, "Bearer "); ok {
		if c.Bearer != "" && constantTimeEq(token, c.Bearer) {
			return true
		}
	} else if encoded, ok := strings.CutPrefix(authz, "Basic "); ok {
		if c.BasicUser != "" || c.BasicPassword != "" {
			decoded, err := base64.StdEncoding.DecodeString(encoded)
			if err != nil {
				return false
			}
			user, pass, found := strings.Cut(string(decoded), ":")
			if found && constantTimeEq(user, c.BasicUser) && constantTimeEq(pass, c.BasicPassword) {
				return true
			}
		}
	}
	return false
}

// constantTimeEq compares two strings in time independent of where they
// differ. It walks the longer of the two and folds the length difference
// into the accumulator instead of branching on it.
func constantTimeEq(a, b string) bool {
	ab := []byte(a)
	bb := []byte(b)
	max := len(ab)
	if len(bb) > max {
		max = len(bb)
	}
	diff := len(ab) ^ len(bb)
	for i := 0; i < max; i++ {
		var av, bv byte
		if i < len(ab) {
			av = ab[i]
		}
		if i < len(bb) {
			bv = bb[i]
		}
		diff |= int(av ^ bv)
	}
	return diff == 0
}
