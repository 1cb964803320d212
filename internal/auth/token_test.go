package auth

import (
	"errors"
	"testing"
	"time"
)

func TestSignerSignAndVerify(t *testing.T) {
	signer, err := NewSigner("secret-key", "identity-test")
	if err != nil {
		t.Fatalf("NewSigner: %v", err)
	}
	user := &User{ID: "user-1", Email: "alice@example.com"}

	token, exp, err := signer.Sign(user, []string{"user", "admin"}, 15*time.Minute)
	if err != nil {
		t.Fatalf("Sign: %v", err)
	}
	if !exp.After(time.Now()) {
		t.Fatalf("expected future expiry, got %v", exp)
	}

	claims, err := signer.Verify(token)
	if err != nil {
		t.Fatalf("Verify: %v", err)
	}
	if claims.Subject != "user-1" || claims.Email != "alice@example.com" {
		t.Fatalf("unexpected claims: %+v", claims)
	}
	if len(claims.Roles) != 2 {
		t.Fatalf("roles were not preserved: %v", claims.Roles)
	}
	if claims.ID == "" {
		t.Fatalf("expected a token id claim")
	}
}

func TestSignerRejections(t *testing.T) {
	signer, err := NewSigner("secret-key", "identity-test")
	if err != nil {
		t.Fatalf("NewSigner: %v", err)
	}
	user := &User{ID: "user-1", Email: "alice@example.com"}

	if _, err := signer.Verify(""); !errors.Is(err, ErrUnauthenticated) {
		t.Fatalf("empty token: expected ErrUnauthenticated, got %v", err)
	}
	if _, err := signer.Verify("not.a.jwt"); !errors.Is(err, ErrUnauthenticated) {
		t.Fatalf("garbage token: expected ErrUnauthenticated, got %v", err)
	}

	// Token signed with a different secret fails closed.
	other, _ := NewSigner("another-secret", "identity-test")
	foreign, _, err := other.Sign(user, nil, time.Minute)
	if err != nil {
		t.Fatalf("Sign: %v", err)
	}
	if _, err := signer.Verify(foreign); !errors.Is(err, ErrUnauthenticated) {
		t.Fatalf("wrong secret: expected ErrUnauthenticated, got %v", err)
	}

	// Issuer mismatch fails closed.
	elsewhere, _ := NewSigner("secret-key", "someone-else")
	crossIssuer, _, err := elsewhere.Sign(user, nil, time.Minute)
	if err != nil {
		t.Fatalf("Sign: %v", err)
	}
	if _, err := signer.Verify(crossIssuer); !errors.Is(err, ErrUnauthenticated) {
		t.Fatalf("wrong issuer: expected ErrUnauthenticated, got %v", err)
	}

	// An expired token is indistinguishable from an invalid one.
	expired, _, err := signer.Sign(user, nil, time.Nanosecond)
	if err != nil {
		t.Fatalf("Sign: %v", err)
	}
	time.Sleep(10 * time.Millisecond)
	if _, err := signer.Verify(expired); !errors.Is(err, ErrUnauthenticated) {
		t.Fatalf("expired token: expected ErrUnauthenticated, got %v", err)
	}
}

func TestNewSignerRequiresSecret(t *testing.T) {
	if _, err := NewSigner("", "x"); err == nil {
		t.Fatalf("expected error for empty secret")
	}
	if _, err := NewSigner("   ", "x"); err == nil {
		t.Fatalf("expected error for blank secret")
	}
}

func TestOpaqueTokenAndHash(t *testing.T) {
	a, err := NewOpaqueToken()
	if err != nil {
		t.Fatalf("NewOpaqueToken: %v", err)
	}
	b, err := NewOpaqueToken()
	if err != nil {
		t.Fatalf("NewOpaqueToken: %v", err)
	}
	if a == b {
		t.Fatalf("opaque tokens must be unique")
	}
	if HashToken(a) == a {
		t.Fatalf("hash must differ from the raw value")
	}
	if HashToken(a) != HashToken(a) {
		t.Fatalf("hash must be deterministic")
	}
	if HashToken(a) == HashToken(b) {
		t.Fatalf("distinct tokens must hash differently")
	}
}
