// ABOUTME: Typed error taxonomy for passkey ceremony outcomes
// ABOUTME: Each error carries a kind that maps onto an HTTP status and envelope

package passkey

import (
	"errors"
	"fmt"

	"github.com/cortadohq/cortado/internal/store"
)

// Kind classifies a ceremony failure. The kind string is what clients see
// in the JSON error envelope.
type Kind string

const (
	// KindValidation covers malformed or missing input fields.
	KindValidation Kind = "validation"

	// KindConflict covers duplicate usernames, emails, and credential ids.
	KindConflict Kind = "conflict"

	// KindState covers verify calls with no matching ceremony in progress.
	KindState Kind = "state"

	// KindNotFound covers unknown users and unknown credential ids.
	KindNotFound Kind = "not_found"

	// KindVerification covers every cryptographic or protocol-level
	// verification failure. The message is always generic; the specific
	// check that failed is logged server-side only.
	KindVerification Kind = "verification"
)

// verificationMessage is the only message a verification failure ever
// carries. Which check failed is never disclosed to the caller.
const verificationMessage = "credential verification failed"

// Error is a classified ceremony failure. Message is safe to return to
// clients; the wrapped cause is for logs.
type Error struct {
	Kind    Kind
	Message string
	cause   error
}

func (e *Error) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.cause)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error {
	return e.cause
}

// Is makes errors.Is match on kind so callers can compare against the
// sentinel-style values below without caring about message text.
func (e *Error) Is(target error) bool {
	var other *Error
	if !errors.As(target, &other) {
		return false
	}
	return e.Kind == other.Kind
}

func validationError(message string) *Error {
	return &Error{Kind: KindValidation, Message: message}
}

func conflictError(message string, cause error) *Error {
	return &Error{Kind: KindConflict, Message: message, cause: cause}
}

func stateError(message string) *Error {
	return &Error{Kind: KindState, Message: message}
}

func notFoundError(message string, cause error) *Error {
	return &Error{Kind: KindNotFound, Message: message, cause: cause}
}

func verificationError(cause error) *Error {
	return &Error{Kind: KindVerification, Message: verificationMessage, cause: cause}
}

// conflictFromStore translates a store unique-violation sentinel into the
// ceremony taxonomy. Returns nil when err is not a known conflict.
func conflictFromStore(err error) *Error {
	switch {
	case errors.Is(err, store.ErrUsernameExists):
		return conflictError("username already taken", err)
	case errors.Is(err, store.ErrEmailExists):
		return conflictError("email already registered", err)
	case errors.Is(err, store.ErrCredentialExists):
		return conflictError("credential already registered", err)
	}
	return nil
}
