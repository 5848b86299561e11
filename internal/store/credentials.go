// ABOUTME: Passkey credential persistence operations for the SQLite store
// ABOUTME: Includes the guarded sign-count update used for replay detection

package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// CreateCredential inserts a new credential row
func (s *SQLiteStore) CreateCredential(ctx context.Context, cred *Credential) error {
	query := `INSERT INTO credentials (id, user_id, credential_id, public_key, attestation_type, transports, sign_count, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`
	_, err := s.db.ExecContext(ctx, query,
		cred.ID,
		cred.UserID,
		cred.CredentialID,
		cred.PublicKey,
		cred.AttestationType,
		cred.Transports,
		cred.SignCount,
		cred.CreatedAt.UTC().Format(time.RFC3339),
	)
	if err != nil {
		if isUniqueConstraintError(err) {
			return ErrCredentialExists
		}
		return fmt.Errorf("failed to create credential: %w", err)
	}

	s.logger.Info("created credential", "credential_id", cred.ID, "user_id", cred.UserID)
	return nil
}

// GetCredentialsByUser returns all credentials registered to a user
func (s *SQLiteStore) GetCredentialsByUser(ctx context.Context, userID string) ([]*Credential, error) {
	query := `SELECT id, user_id, credential_id, public_key, attestation_type, transports, sign_count, created_at
		FROM credentials WHERE user_id = ? ORDER BY created_at, id`
	rows, err := s.db.QueryContext(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list credentials: %w", err)
	}
	defer rows.Close()

	var creds []*Credential
	for rows.Next() {
		cred, err := scanCredential(rows)
		if err != nil {
			return nil, err
		}
		creds = append(creds, cred)
	}
	return creds, rows.Err()
}

// GetCredentialByCredentialID looks up a credential by its authenticator-issued ID
func (s *SQLiteStore) GetCredentialByCredentialID(ctx context.Context, credentialID []byte) (*Credential, error) {
	query := `SELECT id, user_id, credential_id, public_key, attestation_type, transports, sign_count, created_at
		FROM credentials WHERE credential_id = ?`
	row := s.db.QueryRowContext(ctx, query, credentialID)

	var cred Credential
	var createdAt string
	err := row.Scan(&cred.ID, &cred.UserID, &cred.CredentialID, &cred.PublicKey,
		&cred.AttestationType, &cred.Transports, &cred.SignCount, &createdAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan credential: %w", err)
	}
	cred.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)
	return &cred, nil
}

// UpdateCredentialSignCount advances the stored counter. The WHERE guard makes
// the update a compare-and-swap: of two concurrent writers presenting the same
// assertion, exactly one matches the guard and the other gets ErrStaleCounter.
func (s *SQLiteStore) UpdateCredentialSignCount(ctx context.Context, id string, signCount uint32) error {
	query := `UPDATE credentials SET sign_count = ? WHERE id = ? AND sign_count < ?`
	result, err := s.db.ExecContext(ctx, query, signCount, id, signCount)
	if err != nil {
		return fmt.Errorf("failed to update sign count: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rows == 0 {
		// Zero rows means either the credential is gone or the guard
		// rejected a counter that did not advance
		var exists int
		err := s.db.QueryRowContext(ctx, `SELECT 1 FROM credentials WHERE id = ?`, id).Scan(&exists)
		if errors.Is(err, sql.ErrNoRows) {
			return ErrNotFound
		}
		if err != nil {
			return fmt.Errorf("failed to check credential: %w", err)
		}
		return ErrStaleCounter
	}
	return nil
}

// DeleteCredential removes a credential row
func (s *SQLiteStore) DeleteCredential(ctx context.Context, id string) error {
	query := `DELETE FROM credentials WHERE id = ?`
	result, err := s.db.ExecContext(ctx, query, id)
	if err != nil {
		return fmt.Errorf("failed to delete credential: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rows == 0 {
		return ErrNotFound
	}

	s.logger.Info("deleted credential", "credential_id", id)
	return nil
}

func scanCredential(rows *sql.Rows) (*Credential, error) {
	var cred Credential
	var createdAt string
	if err := rows.Scan(&cred.ID, &cred.UserID, &cred.CredentialID, &cred.PublicKey,
		&cred.AttestationType, &cred.Transports, &cred.SignCount, &createdAt); err != nil {
		return nil, fmt.Errorf("failed to scan credential: %w", err)
	}
	cred.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)
	return &cred, nil
}
