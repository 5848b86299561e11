// ABOUTME: Session records and the pluggable session store interface
// ABOUTME: One record per browser token, carrying ceremony state and identity

package session

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"github.com/go-webauthn/webauthn/webauthn"
)

// ErrNotFound is returned when a session token is unknown or expired
var ErrNotFound = errors.New("session not found")

// CeremonyKind identifies which flow a pending ceremony belongs to
type CeremonyKind string

const (
	CeremonyRegistration  CeremonyKind = "registration"
	CeremonyLogin         CeremonyKind = "login"
	CeremonyAddCredential CeremonyKind = "add_credential"
)

// Ceremony is the state parked between the begin and finish halves of a
// WebAuthn flow. Starting a new ceremony replaces any previous one on the
// same session, so only the latest challenge can be finished.
type Ceremony struct {
	Kind     CeremonyKind          `json:"kind"`
	Data     *webauthn.SessionData `json:"data"`
	Username string                `json:"username,omitempty"`
	Email    string                `json:"email,omitempty"`
	UserID   string                `json:"user_id,omitempty"`
}

// Record is everything the server remembers about one browser session.
// UserID and Username are empty until a ceremony completes; Ceremony is nil
// outside the begin/finish window.
type Record struct {
	Token     string    `json:"-"`
	UserID    string    `json:"user_id,omitempty"`
	Username  string    `json:"username,omitempty"`
	Ceremony  *Ceremony `json:"ceremony,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	ExpiresAt time.Time `json:"expires_at"`
}

// Authenticated reports whether the session is bound to a user
func (r *Record) Authenticated() bool {
	return r.UserID != ""
}

// Store persists session records keyed by token. Get returns ErrNotFound
// for unknown or expired tokens. Implementations return copies; callers
// persist mutations with Put.
type Store interface {
	Get(ctx context.Context, token string) (*Record, error)
	Put(ctx context.Context, rec *Record) error
	Delete(ctx context.Context, token string) error
	Close() error
}

// NewToken generates a cryptographically secure session token
func NewToken() (string, error) {
	bytes := make([]byte, 32)
	if _, err := rand.Read(bytes); err != nil {
		return "", fmt.Errorf("failed to generate session token: %w", err)
	}
	return hex.EncodeToString(bytes), nil
}
