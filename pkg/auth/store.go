package auth

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

// ErrUserNotFound is returned when a user lookup misses
var ErrUserNotFound = errors.New("user not found")

// Store provides user account lookups backed by the users table
type Store struct {
	db *sql.DB
}

// NewStore creates a new user store
func NewStore(db *sql.DB) *Store {
	return &Store{db: db}
}

const userColumns = `id, organization_id, username, email, full_name, is_bot, is_active, created_at, updated_at, last_login_at`

func scanUser(row *sql.Row) (*User, error) {
	var u User
	var email, fullName sql.NullString
	err := row.Scan(
		&u.ID, &u.OrganizationID, &u.Username, &email, &fullName,
		&u.IsBot, &u.IsActive, &u.CreatedAt, &u.UpdatedAt, &u.LastLoginAt,
	)
	if err == sql.ErrNoRows {
		return nil, ErrUserNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan user: %w", err)
	}
	u.Email = email.String
	u.FullName = fullName.String
	return &u, nil
}

// GetUser fetches a user by ID
func (s *Store) GetUser(ctx context.Context, userID int64) (*User, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+userColumns+` FROM users WHERE id = $1`, userID)
	return scanUser(row)
}

// GetUserByUsername fetches a user by username
func (s *Store) GetUserByUsername(ctx context.Context, username string) (*User, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+userColumns+` FROM users WHERE username = $1`, username)
	return scanUser(row)
}

// UserExists reports whether an active user with the given ID exists
func (s *Store) UserExists(ctx context.Context, userID int64) (bool, error) {
	var exists bool
	err := s.db.QueryRowContext(ctx,
		`SELECT EXISTS(SELECT 1 FROM users WHERE id = $1 AND is_active = true)`, userID,
	).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("failed to check user existence: %w", err)
	}
	return exists, nil
}

// ListUsersByOrganization lists active users in an organization
func (s *Store) ListUsersByOrganization(ctx context.Context, orgID int64) ([]*User, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+userColumns+` FROM users WHERE organization_id = $1 AND is_active = true ORDER BY username`, orgID)
	if err != nil {
		return nil, fmt.Errorf("failed to list users: %w", err)
	}
	defer rows.Close()

	var users []*User
	for rows.Next() {
		var u User
		var email, fullName sql.NullString
		if err := rows.Scan(
			&u.ID, &u.OrganizationID, &u.Username, &email, &fullName,
			&u.IsBot, &u.IsActive, &u.CreatedAt, &u.UpdatedAt, &u.LastLoginAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan user: %w", err)
		}
		u.Email = email.String
		u.FullName = fullName.String
		users = append(users, &u)
	}
	return users, rows.Err()
}
