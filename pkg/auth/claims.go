package auth

import (
	"strings"

	"github.com/golang-jwt/jwt/v5"
)

// SessionClaims is the subset of the identity provider's session token the
// backend reads. The subject is the external user id.
type SessionClaims struct {
	Email    string `json:"email,omitempty"`
	Name     string `json:"name,omitempty"`
	FullName string `json:"full_name,omitempty"`
	jwt.RegisteredClaims
}

// UserID returns the trimmed subject.
func (c *SessionClaims) UserID() string {
	if c == nil {
		return ""
	}
	return strings.TrimSpace(c.Subject)
}

// DisplayName prefers full_name over name.
func (c *SessionClaims) DisplayName() string {
	if c == nil {
		return ""
	}
	if name := strings.TrimSpace(c.FullName); name != "" {
		return name
	}
	return strings.TrimSpace(c.Name)
}
