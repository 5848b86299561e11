// Package store provides persistent storage for cortado using SQLite.
//
// # Architecture
//
// The store package uses an interface-driven architecture with specialized
// interfaces:
//
//   - UserStore: User accounts and the transactional user-plus-credential insert
//   - CredentialStore: Passkey credentials, including the guarded sign-count update
//   - RoasteryStore: The roastery directory
//
// SQLiteStore implements all interfaces in a single struct, allowing easy
// composition while maintaining clear interface boundaries. The Store
// interface combines them with Ping and Close for callers that need the
// whole surface.
//
// # Data Models
//
//   - User: Account created by a completed registration ceremony
//   - Credential: Passkey public key bound to a user, with its sign counter
//   - Roastery: Directory entry with a nullable created_by owner
//
// # SQLite Configuration
//
// The store uses SQLite with WAL mode for concurrent reads:
//
//	PRAGMA journal_mode=WAL;
//	PRAGMA foreign_keys=ON;
//
// Foreign keys matter here: deleting a user cascades to their credentials,
// and deleting a user nulls out created_by on their roasteries.
//
// # Error Handling
//
// Common errors:
//
//   - ErrNotFound: Requested entity does not exist
//   - ErrUsernameExists / ErrEmailExists: Unique violation on users
//   - ErrCredentialExists: Credential ID already registered
//   - ErrRoasteryExists: Roastery name already taken
//   - ErrStaleCounter: Sign-count update rejected by the guard
//
// All methods accept context.Context for cancellation support.
//
// # Testing
//
// Use NewSQLiteStore(":memory:", nil) for integration tests with real SQLite.
package store
