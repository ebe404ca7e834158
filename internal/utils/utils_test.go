package utils

import (
	"testing"

	"golang.org/x/crypto/bcrypt"
)

func TestAccessTokenRoundTrip(t *testing.T) {
	tok, err := NewAccessToken("secret", 42, "seller", 5)
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	claims, err := ParseAccessToken("secret", tok.Token)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	id, _ := claims.AccountID()
	if id != 42 || claims.Kind != "seller" {
		t.Errorf("unexpected claims: id=%d kind=%q", id, claims.Kind)
	}
}

func TestParseAccessTokenRejects(t *testing.T) {
	tok, _ := NewAccessToken("secret", 1, "customer", 5)
	if _, err := ParseAccessToken("other", tok.Token); err == nil {
		t.Error("expected signature error")
	}
	expired, _ := NewAccessToken("secret", 1, "customer", -1)
	if _, err := ParseAccessToken("secret", expired.Token); err == nil {
		t.Error("expected expiry error")
	}
	if _, err := ParseAccessToken("secret", "not-a-jwt"); err == nil {
		t.Error("expected parse error")
	}
}

func TestRefreshToken(t *testing.T) {
	a, err := NewRefreshToken(1)
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	b, _ := NewRefreshToken(1)
	if len(a.Raw) != 96 || a.Raw == b.Raw {
		t.Errorf("expected distinct 96 char tokens, got %q and %q", a.Raw, b.Raw)
	}
	if HashRefreshRaw(a.Raw) != HashRefreshRaw(a.Raw) || len(HashRefreshRaw(a.Raw)) != 64 {
		t.Error("hash must be a stable 64 char hex string")
	}
}

func TestPassword(t *testing.T) {
	hash, err := HashPassword("hunter2", bcrypt.MinCost)
	if err != nil {
		t.Fatalf("hash: %v", err)
	}
	if !VerifyPassword(hash, "hunter2") || VerifyPassword(hash, "hunter3") {
		t.Error("verify mismatch")
	}
}
