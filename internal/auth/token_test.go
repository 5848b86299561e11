// ABOUTME: Unit tests for service-token minting and verification
// ABOUTME: Tests valid tokens, invalid tokens, expired tokens, and claims

package auth

import (
	"errors"
	"testing"
	"time"
)

func TestJWTVerifier_ValidToken(t *testing.T) {
	secret := []byte("test-secret-key-for-jwt-signing")
	verifier := NewJWTVerifier(secret)

	identity := Identity{UserID: "user-123", Username: "nikhil"}
	token, err := verifier.Generate(identity, time.Hour)
	if err != nil {
		t.Fatalf("Generate() error = %v", err)
	}

	got, err := verifier.Verify(token)
	if err != nil {
		t.Fatalf("Verify() error = %v", err)
	}

	if got.UserID != identity.UserID {
		t.Errorf("Verify() UserID = %q, want %q", got.UserID, identity.UserID)
	}

	if got.Username != identity.Username {
		t.Errorf("Verify() Username = %q, want %q", got.Username, identity.Username)
	}
}

func TestJWTVerifier_InvalidToken(t *testing.T) {
	secret := []byte("test-secret-key-for-jwt-signing")
	verifier := NewJWTVerifier(secret)

	tests := []struct {
		name  string
		token string
	}{
		{
			name:  "empty token",
			token: "",
		},
		{
			name:  "garbage token",
			token: "not-a-jwt-token",
		},
		{
			name:  "malformed JWT",
			token: "header.payload.signature",
		},
		{
			name: "wrong secret",
			token: func() string {
				// Generate with different secret
				otherVerifier := NewJWTVerifier([]byte("different-secret"))
				token, _ := otherVerifier.Generate(Identity{UserID: "user-123"}, time.Hour)
				return token
			}(),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := verifier.Verify(tt.token)
			if err == nil {
				t.Error("Verify() should have returned an error")
			}

			if !errors.Is(err, ErrInvalidToken) {
				t.Errorf("Verify() error = %v, want ErrInvalidToken", err)
			}
		})
	}
}

func TestJWTVerifier_ExpiredToken(t *testing.T) {
	secret := []byte("test-secret-key-for-jwt-signing")
	verifier := NewJWTVerifier(secret)

	// Generate a token that expired 1 hour ago
	token, err := verifier.Generate(Identity{UserID: "user-123"}, -time.Hour)
	if err != nil {
		t.Fatalf("Generate() error = %v", err)
	}

	_, err = verifier.Verify(token)
	if err == nil {
		t.Error("Verify() should have returned an error for expired token")
	}

	if !errors.Is(err, ErrExpiredToken) {
		t.Errorf("Verify() error = %v, want ErrExpiredToken", err)
	}
}

func TestJWTVerifier_MissingUsername(t *testing.T) {
	secret := []byte("test-secret-key-for-jwt-signing")
	verifier := NewJWTVerifier(secret)

	// A token without a username still verifies; the claim is optional.
	token, err := verifier.Generate(Identity{UserID: "user-123"}, time.Hour)
	if err != nil {
		t.Fatalf("Generate() error = %v", err)
	}

	got, err := verifier.Verify(token)
	if err != nil {
		t.Fatalf("Verify() error = %v", err)
	}

	if got.UserID != "user-123" {
		t.Errorf("Verify() UserID = %q, want %q", got.UserID, "user-123")
	}

	if got.Username != "" {
		t.Errorf("Verify() Username = %q, want empty", got.Username)
	}
}

func TestJWTVerifier_DifferentUsers(t *testing.T) {
	secret := []byte("test-secret-key-for-jwt-signing")
	verifier := NewJWTVerifier(secret)

	users := []Identity{
		{UserID: "user-1", Username: "alice"},
		{UserID: "user-2", Username: "bob"},
		{UserID: "user-3", Username: "carol"},
	}

	for _, identity := range users {
		token, err := verifier.Generate(identity, time.Hour)
		if err != nil {
			t.Fatalf("Generate(%q) error = %v", identity.UserID, err)
		}

		got, err := verifier.Verify(token)
		if err != nil {
			t.Fatalf("Verify() error = %v", err)
		}

		if got.UserID != identity.UserID || got.Username != identity.Username {
			t.Errorf("Verify() = %+v, want %+v", got, identity)
		}
	}
}
