package api

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v4"
)

func TestBearerToken(t *testing.T) {
	if _, err := bearerToken(""); err != errMissingAuthorization {
		t.Fatalf("expected missing header error, got %v", err)
	}
	bad := []string{"token", "Basic abc", "Bearer ", "Bearer not.a-jwt", "Bearer a.b.c.d"}
	for _, h := range bad {
		if _, err := bearerToken(h); err != errBadAuthorization {
			t.Fatalf("%q: expected bad header error, got %v", h, err)
		}
	}
	token, err := bearerToken("  Bearer aaa.bbb.ccc  ")
	if err != nil {
		t.Fatalf("expected valid header, got %v", err)
	}
	if token != "aaa.bbb.ccc" {
		t.Fatalf("unexpected token %q", token)
	}
}

func signTestToken(t *testing.T, secret []byte, claims jwt.MapClaims) string {
	t.Helper()
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(secret)
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	return token
}

func TestSessionAuthRejectsExpiredToken(t *testing.T) {
	secret := []byte("secret")
	auth := NewSessionAuth(secret, "")
	token := signTestToken(t, secret, jwt.MapClaims{
		"sub": "user-1",
		"exp": time.Now().Add(-2 * time.Hour).Unix(),
	})
	if _, err := auth.UserIDFromAuthHeader("Bearer " + token); err == nil {
		t.Fatalf("expected expired token to be rejected")
	}
}

func TestSessionAuthRejectsWrongSecret(t *testing.T) {
	auth := NewSessionAuth([]byte("right"), "")
	token := signTestToken(t, []byte("wrong"), jwt.MapClaims{
		"sub": "user-1",
		"exp": time.Now().Add(time.Hour).Unix(),
	})
	if _, err := auth.UserIDFromAuthHeader("Bearer " + token); err == nil {
		t.Fatalf("expected token signed with wrong secret to be rejected")
	}
}

func TestSessionAuthRejectsMissingSub(t *testing.T) {
	secret := []byte("secret")
	auth := NewSessionAuth(secret, "")
	token := signTestToken(t, secret, jwt.MapClaims{
		"exp": time.Now().Add(time.Hour).Unix(),
	})
	if _, err := auth.UserIDFromAuthHeader("Bearer " + token); err == nil {
		t.Fatalf("expected token without sub to be rejected")
	}
}

func TestSessionAuthRejectsWrongIssuer(t *testing.T) {
	secret := []byte("secret")
	auth := NewSessionAuth(secret, "weekplan")
	token := signTestToken(t, secret, jwt.MapClaims{
		"sub": "user-1",
		"iss": "someone-else",
		"exp": time.Now().Add(time.Hour).Unix(),
	})
	if _, err := auth.UserIDFromAuthHeader("Bearer " + token); err == nil {
		t.Fatalf("expected token with wrong issuer to be rejected")
	}
}
