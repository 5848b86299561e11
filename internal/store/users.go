// ABOUTME: User persistence operations for the SQLite store
// ABOUTME: Covers user CRUD and the transactional user-plus-credential insert

package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"
)

// mapUserUniqueError translates a unique constraint violation into the
// sentinel for the offending column.
func mapUserUniqueError(err error) error {
	if strings.Contains(err.Error(), "users.email") {
		return ErrEmailExists
	}
	return ErrUsernameExists
}

// CreateUser inserts a new user row
func (s *SQLiteStore) CreateUser(ctx context.Context, user *User) error {
	query := `INSERT INTO users (id, username, email, created_at) VALUES (?, ?, ?, ?)`
	_, err := s.db.ExecContext(ctx, query,
		user.ID,
		user.Username,
		user.Email,
		user.CreatedAt.UTC().Format(time.RFC3339),
	)
	if err != nil {
		if isUniqueConstraintError(err) {
			return mapUserUniqueError(err)
		}
		return fmt.Errorf("failed to create user: %w", err)
	}

	s.logger.Info("created user", "user_id", user.ID, "username", user.Username)
	return nil
}

// CreateUserWithCredential inserts a user and their first credential in a
// single transaction so a failed credential insert never leaves an orphaned
// user behind.
func (s *SQLiteStore) CreateUserWithCredential(ctx context.Context, user *User, cred *Credential) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	userQuery := `INSERT INTO users (id, username, email, created_at) VALUES (?, ?, ?, ?)`
	if _, err := tx.ExecContext(ctx, userQuery,
		user.ID,
		user.Username,
		user.Email,
		user.CreatedAt.UTC().Format(time.RFC3339),
	); err != nil {
		if isUniqueConstraintError(err) {
			return mapUserUniqueError(err)
		}
		return fmt.Errorf("failed to create user: %w", err)
	}

	credQuery := `INSERT INTO credentials (id, user_id, credential_id, public_key, attestation_type, transports, sign_count, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`
	if _, err := tx.ExecContext(ctx, credQuery,
		cred.ID,
		cred.UserID,
		cred.CredentialID,
		cred.PublicKey,
		cred.AttestationType,
		cred.Transports,
		cred.SignCount,
		cred.CreatedAt.UTC().Format(time.RFC3339),
	); err != nil {
		if isUniqueConstraintError(err) {
			return ErrCredentialExists
		}
		return fmt.Errorf("failed to create credential: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}

	s.logger.Info("created user with credential", "user_id", user.ID, "username", user.Username)
	return nil
}

// GetUser retrieves a user by ID
func (s *SQLiteStore) GetUser(ctx context.Context, id string) (*User, error) {
	query := `SELECT id, username, email, created_at FROM users WHERE id = ?`
	return s.scanUserRow(s.db.QueryRowContext(ctx, query, id))
}

// GetUserByUsername retrieves a user by username
func (s *SQLiteStore) GetUserByUsername(ctx context.Context, username string) (*User, error) {
	query := `SELECT id, username, email, created_at FROM users WHERE username = ?`
	return s.scanUserRow(s.db.QueryRowContext(ctx, query, username))
}

// GetUserByEmail retrieves a user by email
func (s *SQLiteStore) GetUserByEmail(ctx context.Context, email string) (*User, error) {
	query := `SELECT id, username, email, created_at FROM users WHERE email = ?`
	return s.scanUserRow(s.db.QueryRowContext(ctx, query, email))
}

// ListUsers returns all users ordered by creation time
func (s *SQLiteStore) ListUsers(ctx context.Context) ([]*User, error) {
	query := `SELECT id, username, email, created_at FROM users ORDER BY created_at, id`
	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to list users: %w", err)
	}
	defer rows.Close()

	var users []*User
	for rows.Next() {
		var user User
		var createdAt string
		if err := rows.Scan(&user.ID, &user.Username, &user.Email, &createdAt); err != nil {
			return nil, fmt.Errorf("failed to scan user: %w", err)
		}
		user.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)
		users = append(users, &user)
	}
	return users, rows.Err()
}

// DeleteUser removes a user; their credentials cascade away with the row
func (s *SQLiteStore) DeleteUser(ctx context.Context, id string) error {
	query := `DELETE FROM users WHERE id = ?`
	result, err := s.db.ExecContext(ctx, query, id)
	if err != nil {
		return fmt.Errorf("failed to delete user: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rows == 0 {
		return ErrNotFound
	}

	s.logger.Info("deleted user", "user_id", id)
	return nil
}

func (s *SQLiteStore) scanUserRow(row *sql.Row) (*User, error) {
	var user User
	var createdAt string
	err := row.Scan(&user.ID, &user.Username, &user.Email, &createdAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan user: %w", err)
	}
	user.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)
	return &user, nil
}
