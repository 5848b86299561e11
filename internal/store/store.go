// ABOUTME: Store interface and data types for cortado persistence
// ABOUTME: Defines User, Credential, Roastery structs and the Store interface

package store

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned when a requested entity does not exist
var ErrNotFound = errors.New("not found")

// ErrUsernameExists is returned when creating a user with a taken username
var ErrUsernameExists = errors.New("username already exists")

// ErrEmailExists is returned when creating a user with a taken email
var ErrEmailExists = errors.New("email already exists")

// ErrCredentialExists is returned when registering an already known credential id
var ErrCredentialExists = errors.New("credential already registered")

// ErrRoasteryExists is returned when creating a roastery with a taken name
var ErrRoasteryExists = errors.New("roastery name already exists")

// ErrStaleCounter is returned when a sign count update does not advance the
// stored counter. The stored value is left untouched.
var ErrStaleCounter = errors.New("stale sign counter")

// User is an account created by a completed registration ceremony.
type User struct {
	ID        string
	Username  string
	Email     string
	CreatedAt time.Time
}

// Credential is a passkey public key bound to a user.
// CredentialID is the opaque identifier issued by the authenticator;
// ID is the store's own row key. Transports holds a JSON array of
// transport hint strings as reported at registration.
type Credential struct {
	ID              string
	UserID          string
	CredentialID    []byte
	PublicKey       []byte
	AttestationType string
	Transports      string
	SignCount       uint32
	CreatedAt       time.Time
}

// Roastery is a directory entry. CreatedBy is empty when the creating
// user has since been deleted.
type Roastery struct {
	ID          string
	Name        string
	City        string
	Website     string
	Description string
	CreatedBy   string
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// UserStore defines user persistence operations
type UserStore interface {
	// CreateUser inserts a user row. Returns ErrUsernameExists or
	// ErrEmailExists on unique violations.
	CreateUser(ctx context.Context, user *User) error

	// CreateUserWithCredential inserts the user and their first credential
	// in one transaction. Either both rows exist afterwards or neither does.
	CreateUserWithCredential(ctx context.Context, user *User, cred *Credential) error

	GetUser(ctx context.Context, id string) (*User, error)
	GetUserByUsername(ctx context.Context, username string) (*User, error)
	GetUserByEmail(ctx context.Context, email string) (*User, error)
	ListUsers(ctx context.Context) ([]*User, error)

	// DeleteUser removes the user row; credentials cascade.
	DeleteUser(ctx context.Context, id string) error
}

// CredentialStore defines passkey credential persistence operations
type CredentialStore interface {
	CreateCredential(ctx context.Context, cred *Credential) error
	GetCredentialsByUser(ctx context.Context, userID string) ([]*Credential, error)
	GetCredentialByCredentialID(ctx context.Context, credentialID []byte) (*Credential, error)

	// UpdateCredentialSignCount advances the stored counter to signCount.
	// The write is guarded: it only applies when signCount is strictly
	// greater than the stored value, so concurrent replays of one assertion
	// cannot both succeed. Returns ErrStaleCounter when the guard rejects
	// the write and ErrNotFound when the credential row does not exist.
	UpdateCredentialSignCount(ctx context.Context, id string, signCount uint32) error

	DeleteCredential(ctx context.Context, id string) error
}

// RoasteryStore defines roastery directory persistence operations
type RoasteryStore interface {
	CreateRoastery(ctx context.Context, roastery *Roastery) error
	GetRoastery(ctx context.Context, id string) (*Roastery, error)
	ListRoasteries(ctx context.Context) ([]*Roastery, error)
	UpdateRoastery(ctx context.Context, roastery *Roastery) error
	DeleteRoastery(ctx context.Context, id string) error
}

// Store combines all persistence operations
type Store interface {
	UserStore
	CredentialStore
	RoasteryStore

	// Ping reports whether the underlying database is reachable.
	Ping(ctx context.Context) error

	// Close releases database resources
	Close() error
}
