package oidc

import (
	"time"

	apperrors "github.com/o3willard-AI/agentpki/internal/errors"
)

// Claims is the validated identity of a bearer token
type Claims struct {
	Subject           string
	Name              string
	PreferredUsername string
	Issuer            string
	ExpiresAt         time.Time
}

// DisplayName returns the human-readable name for the subject, preferring
// the name claim over preferred_username
func (c *Claims) DisplayName() (string, error) {
	if c.Name != "" {
		return c.Name, nil
	}
	if c.PreferredUsername != "" {
		return c.PreferredUsername, nil
	}
	return "", apperrors.JwtMissingName()
}
