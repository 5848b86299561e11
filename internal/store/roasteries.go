// ABOUTME: Roastery directory persistence operations for the SQLite store
// ABOUTME: CRUD over roastery rows with unique-name enforcement

package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// CreateRoastery inserts a new roastery row
func (s *SQLiteStore) CreateRoastery(ctx context.Context, roastery *Roastery) error {
	query := `INSERT INTO roasteries (id, name, city, website, description, created_by, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`
	_, err := s.db.ExecContext(ctx, query,
		roastery.ID,
		roastery.Name,
		roastery.City,
		roastery.Website,
		roastery.Description,
		nullableString(roastery.CreatedBy),
		roastery.CreatedAt.UTC().Format(time.RFC3339),
		roastery.UpdatedAt.UTC().Format(time.RFC3339),
	)
	if err != nil {
		if isUniqueConstraintError(err) {
			return ErrRoasteryExists
		}
		return fmt.Errorf("failed to create roastery: %w", err)
	}

	s.logger.Info("created roastery", "roastery_id", roastery.ID, "name", roastery.Name)
	return nil
}

// GetRoastery retrieves a roastery by ID
func (s *SQLiteStore) GetRoastery(ctx context.Context, id string) (*Roastery, error) {
	query := `SELECT id, name, city, website, description, created_by, created_at, updated_at
		FROM roasteries WHERE id = ?`
	row := s.db.QueryRowContext(ctx, query, id)

	roastery, err := scanRoasteryRow(row.Scan)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan roastery: %w", err)
	}
	return roastery, nil
}

// ListRoasteries returns all roasteries ordered by name
func (s *SQLiteStore) ListRoasteries(ctx context.Context) ([]*Roastery, error) {
	query := `SELECT id, name, city, website, description, created_by, created_at, updated_at
		FROM roasteries ORDER BY name`
	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to list roasteries: %w", err)
	}
	defer rows.Close()

	var roasteries []*Roastery
	for rows.Next() {
		roastery, err := scanRoasteryRow(rows.Scan)
		if err != nil {
			return nil, fmt.Errorf("failed to scan roastery: %w", err)
		}
		roasteries = append(roasteries, roastery)
	}
	return roasteries, rows.Err()
}

// UpdateRoastery rewrites the mutable fields of a roastery row
func (s *SQLiteStore) UpdateRoastery(ctx context.Context, roastery *Roastery) error {
	query := `UPDATE roasteries SET name = ?, city = ?, website = ?, description = ?, updated_at = ? WHERE id = ?`
	result, err := s.db.ExecContext(ctx, query,
		roastery.Name,
		roastery.City,
		roastery.Website,
		roastery.Description,
		roastery.UpdatedAt.UTC().Format(time.RFC3339),
		roastery.ID,
	)
	if err != nil {
		if isUniqueConstraintError(err) {
			return ErrRoasteryExists
		}
		return fmt.Errorf("failed to update roastery: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rows == 0 {
		return ErrNotFound
	}

	s.logger.Info("updated roastery", "roastery_id", roastery.ID)
	return nil
}

// DeleteRoastery removes a roastery row
func (s *SQLiteStore) DeleteRoastery(ctx context.Context, id string) error {
	query := `DELETE FROM roasteries WHERE id = ?`
	result, err := s.db.ExecContext(ctx, query, id)
	if err != nil {
		return fmt.Errorf("failed to delete roastery: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rows == 0 {
		return ErrNotFound
	}

	s.logger.Info("deleted roastery", "roastery_id", id)
	return nil
}

func nullableString(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func scanRoasteryRow(scan func(dest ...any) error) (*Roastery, error) {
	var roastery Roastery
	var createdBy sql.NullString
	var createdAt, updatedAt string
	if err := scan(&roastery.ID, &roastery.Name, &roastery.City, &roastery.Website,
		&roastery.Description, &createdBy, &createdAt, &updatedAt); err != nil {
		return nil, err
	}
	roastery.CreatedBy = createdBy.String
	roastery.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)
	roastery.UpdatedAt, _ = time.Parse(time.RFC3339, updatedAt)
	return &roastery, nil
}
