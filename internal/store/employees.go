package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// UpsertEmployee inserts or updates a profile keyed by id.
func (s *Store) UpsertEmployee(ctx context.Context, e *EmployeeProfile) error {
	if err := e.Validate(); err != nil {
		return err
	}

	query := `
	INSERT INTO employees (id, full_name, email, role, created_at, updated_at)
	VALUES (?, ?, ?, ?, ?, ?)
	ON CONFLICT(id) DO UPDATE SET
		full_name = excluded.full_name,
		email = excluded.email,
		role = excluded.role,
		updated_at = excluded.updated_at
	`

	now := time.Now().UTC()
	createdAt := e.CreatedAt
	if createdAt.IsZero() {
		createdAt = now
	}

	_, err := s.conn.ExecContext(ctx, query,
		e.ID,
		e.FullName,
		e.Email,
		e.Role,
		createdAt.Format(time.RFC3339),
		now.Format(time.RFC3339),
	)
	if err != nil {
		return fmt.Errorf("failed to upsert employee %s: %w", e.ID, err)
	}
	return nil
}

// GetEmployee retrieves a single profile by id.
// Returns ErrNotFound if no profile exists.
func (s *Store) GetEmployee(ctx context.Context, id string) (*EmployeeProfile, error) {
	row := s.conn.QueryRowContext(ctx,
		`SELECT id, full_name, email, role, created_at, updated_at
		 FROM employees WHERE id = ?`, id)

	e, err := scanEmployee(row)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("%w: employee %s", ErrNotFound, id)
	}
	return e, err
}

// ListEmployees returns every locally mirrored profile.
func (s *Store) ListEmployees(ctx context.Context) ([]*EmployeeProfile, error) {
	rows, err := s.conn.QueryContext(ctx,
		`SELECT id, full_name, email, role, created_at, updated_at
		 FROM employees ORDER BY full_name ASC`)
	if err != nil {
		return nil, fmt.Errorf("failed to list employees: %w", err)
	}
	defer rows.Close()

	var employees []*EmployeeProfile
	for rows.Next() {
		e, err := scanEmployee(rows)
		if err != nil {
			return nil, err
		}
		employees = append(employees, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating employees: %w", err)
	}
	return employees, nil
}

// FindEmployeesByName returns profiles whose full name matches the given
// name, case-insensitively. Multiple matches are possible; callers decide
// how to treat ambiguity.
func (s *Store) FindEmployeesByName(ctx context.Context, name string) ([]*EmployeeProfile, error) {
	rows, err := s.conn.QueryContext(ctx,
		`SELECT id, full_name, email, role, created_at, updated_at
		 FROM employees WHERE full_name = ? COLLATE NOCASE
		 ORDER BY id ASC`, name)
	if err != nil {
		return nil, fmt.Errorf("failed to find employees by name: %w", err)
	}
	defer rows.Close()

	var employees []*EmployeeProfile
	for rows.Next() {
		e, err := scanEmployee(rows)
		if err != nil {
			return nil, err
		}
		employees = append(employees, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating employees: %w", err)
	}
	return employees, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanEmployee(row rowScanner) (*EmployeeProfile, error) {
	var e EmployeeProfile
	var createdAt, updatedAt string

	err := row.Scan(&e.ID, &e.FullName, &e.Email, &e.Role, &createdAt, &updatedAt)
	if err == sql.ErrNoRows {
		return nil, err
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan employee: %w", err)
	}

	if t, err := time.Parse(time.RFC3339, createdAt); err == nil {
		e.CreatedAt = t
	}
	if t, err := time.Parse(time.RFC3339, updatedAt); err == nil {
		e.UpdatedAt = t
	}
	return &e, nil
}
