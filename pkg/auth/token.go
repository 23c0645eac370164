package auth

import (
	"errors"
	"fmt"
	"strings"

	"github.com/golang-jwt/jwt/v5"

	"github.com/angelmondragon/linguamate-backend/pkg/config"
)

var jwtSigningMethod = jwt.SigningMethodRS256

// ErrMissingSubject is returned for tokens without a sub claim.
var ErrMissingSubject = errors.New("token has no subject")

// Verifier validates RS256 session tokens against the provider's public key.
type Verifier struct {
	parser *jwt.Parser
	key    any
}

// NewVerifier parses the configured PEM public key.
func NewVerifier(cfg config.AuthConfig) (*Verifier, error) {
	pem := strings.TrimSpace(cfg.PublicKeyPEM)
	if pem == "" {
		return nil, fmt.Errorf("auth public key is required")
	}
	// env files often carry the key with escaped newlines
	pem = strings.ReplaceAll(pem, `\n`, "\n")
	key, err := jwt.ParseRSAPublicKeyFromPEM([]byte(pem))
	if err != nil {
		return nil, fmt.Errorf("parsing auth public key: %w", err)
	}

	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwtSigningMethod.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithLeeway(cfg.ClockSkew),
	}
	if issuer := strings.TrimSpace(cfg.Issuer); issuer != "" {
		opts = append(opts, jwt.WithIssuer(issuer))
	}
	return &Verifier{parser: jwt.NewParser(opts...), key: key}, nil
}

// Verify validates tokenString and returns its claims.
func (v *Verifier) Verify(tokenString string) (*SessionClaims, error) {
	if v == nil || v.parser == nil {
		return nil, fmt.Errorf("verifier not initialized")
	}
	claims := &SessionClaims{}
	_, err := v.parser.ParseWithClaims(
		tokenString,
		claims,
		func(token *jwt.Token) (interface{}, error) {
			if token.Method != jwtSigningMethod {
				return nil, fmt.Errorf("unexpected signing method %s", token.Header["alg"])
			}
			return v.key, nil
		},
	)
	if err != nil {
		return nil, err
	}
	if claims.UserID() == "" {
		return nil, ErrMissingSubject
	}
	return claims, nil
}
