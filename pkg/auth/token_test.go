package auth

import (
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"encoding/pem"
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/angelmondragon/linguamate-backend/pkg/config"
)

func newKeyPair(t *testing.T) (*rsa.PrivateKey, string) {
	t.Helper()
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	der, err := x509.MarshalPKIXPublicKey(&key.PublicKey)
	if err != nil {
		t.Fatalf("marshal public key: %v", err)
	}
	block := pem.EncodeToMemory(&pem.Block{Type: "PUBLIC KEY", Bytes: der})
	return key, string(block)
}

func sign(t *testing.T, key *rsa.PrivateKey, claims SessionClaims) string {
	t.Helper()
	token, err := jwt.NewWithClaims(jwt.SigningMethodRS256, claims).SignedString(key)
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}
	return token
}

func TestVerifyAcceptsValidToken(t *testing.T) {
	key, pub := newKeyPair(t)
	verifier, err := NewVerifier(config.AuthConfig{PublicKeyPEM: pub, Issuer: "https://clerk.linguamate.app"})
	if err != nil {
		t.Fatalf("new verifier: %v", err)
	}

	token := sign(t, key, SessionClaims{
		Email: "ana@example.com",
		Name:  "Ana",
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   "user_2abc",
			Issuer:    "https://clerk.linguamate.app",
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
	})

	claims, err := verifier.Verify(token)
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
	if claims.UserID() != "user_2abc" {
		t.Fatalf("unexpected subject %q", claims.UserID())
	}
	if claims.Email != "ana@example.com" || claims.DisplayName() != "Ana" {
		t.Fatalf("unexpected identity claims %+v", claims)
	}
}

func TestVerifyRejectsBadTokens(t *testing.T) {
	key, pub := newKeyPair(t)
	otherKey, _ := newKeyPair(t)
	verifier, err := NewVerifier(config.AuthConfig{PublicKeyPEM: strings.ReplaceAll(pub, "\n", `\n`)})
	if err != nil {
		t.Fatalf("escaped newlines should parse: %v", err)
	}
	future := jwt.NewNumericDate(time.Now().Add(time.Hour))

	cases := map[string]string{
		"expired": sign(t, key, SessionClaims{RegisteredClaims: jwt.RegisteredClaims{
			Subject: "user_1", ExpiresAt: jwt.NewNumericDate(time.Now().Add(-time.Hour)),
		}}),
		"no expiry":  sign(t, key, SessionClaims{RegisteredClaims: jwt.RegisteredClaims{Subject: "user_1"}}),
		"no subject": sign(t, key, SessionClaims{RegisteredClaims: jwt.RegisteredClaims{ExpiresAt: future}}),
		"wrong key": sign(t, otherKey, SessionClaims{RegisteredClaims: jwt.RegisteredClaims{
			Subject: "user_1", ExpiresAt: future,
		}}),
		"garbage": "not-a-token",
	}
	for name, token := range cases {
		if _, err := verifier.Verify(token); err == nil {
			t.Fatalf("%s: expected verification failure", name)
		}
	}

	hs, err := jwt.NewWithClaims(jwt.SigningMethodHS256, SessionClaims{RegisteredClaims: jwt.RegisteredClaims{
		Subject: "user_1", ExpiresAt: future,
	}}).SignedString([]byte("secret"))
	if err != nil {
		t.Fatalf("sign hs256: %v", err)
	}
	if _, err := verifier.Verify(hs); err == nil {
		t.Fatal("expected hs256 token to be rejected")
	}
}

func TestNewVerifierRequiresKey(t *testing.T) {
	if _, err := NewVerifier(config.AuthConfig{}); err == nil {
		t.Fatal("expected error without public key")
	}
	if _, err := NewVerifier(config.AuthConfig{PublicKeyPEM: "-----BEGIN PUBLIC KEY-----\nMIIB\n-----END PUBLIC KEY-----"}); err == nil {
		t.Fatal("expected error for malformed key")
	}
}

func TestDisplayNamePrefersFullName(t *testing.T) {
	claims := &SessionClaims{Name: "Ana", FullName: " Ana Ruiz "}
	if claims.DisplayName() != "Ana Ruiz" {
		t.Fatalf("unexpected display name %q", claims.DisplayName())
	}
	var nilClaims *SessionClaims
	if nilClaims.UserID() != "" {
		t.Fatal("nil claims should have no user id")
	}
}
