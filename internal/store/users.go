package store

import (
	"context"
	"database/sql"
	"strings"

	"marketplace-orders/internal/apperr"
	"marketplace-orders/internal/models"

	"github.com/pkg/errors"
)

const userColumns = `id, first_name, last_name, email, password_hash, roles, enabled, created_at, updated_at`

// CreateUser inserts a user. A taken email yields a conflict.
func (s *Store) CreateUser(ctx context.Context, u *models.User) error {
	query := `
		INSERT INTO users (first_name, last_name, email, password_hash, roles, enabled)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id, created_at, updated_at`

	err := s.db.QueryRowxContext(ctx, query,
		u.FirstName, u.LastName, strings.ToLower(u.Email), u.PasswordHash, u.Roles, u.Enabled).
		Scan(&u.ID, &u.CreatedAt, &u.UpdatedAt)
	if isUniqueViolation(err) {
		return apperr.Conflict("email already registered")
	}
	return errors.Wrap(err, "insert user")
}

func (s *Store) GetUserByID(ctx context.Context, id int64) (*models.User, error) {
	var user models.User
	err := s.db.GetContext(ctx, &user, "SELECT "+userColumns+" FROM users WHERE id = $1", id)
	if err == sql.ErrNoRows {
		return nil, apperr.NotFound("user not found: %d", id)
	}
	if err != nil {
		return nil, errors.Wrapf(err, "select user %d", id)
	}
	return &user, nil
}

// GetUserByEmail looks the email up case-insensitively.
func (s *Store) GetUserByEmail(ctx context.Context, email string) (*models.User, error) {
	var user models.User
	err := s.db.GetContext(ctx, &user, "SELECT "+userColumns+" FROM users WHERE email = $1", strings.ToLower(email))
	if err == sql.ErrNoRows {
		return nil, apperr.NotFound("user not found")
	}
	if err != nil {
		return nil, errors.Wrap(err, "select user by email")
	}
	return &user, nil
}

func (s *Store) ListUsers(ctx context.Context) ([]models.User, error) {
	users := []models.User{}
	err := s.db.SelectContext(ctx, &users, "SELECT "+userColumns+" FROM users ORDER BY id")
	return users, errors.Wrap(err, "select users")
}

// UpdateUser writes the profile, role set and enabled flag.
func (s *Store) UpdateUser(ctx context.Context, u *models.User) error {
	err := s.db.QueryRowxContext(ctx,
		`UPDATE users SET first_name = $1, last_name = $2, roles = $3, enabled = $4, updated_at = NOW()
		 WHERE id = $5 RETURNING updated_at`,
		u.FirstName, u.LastName, u.Roles, u.Enabled, u.ID).Scan(&u.UpdatedAt)
	if err == sql.ErrNoRows {
		return apperr.NotFound("user not found: %d", u.ID)
	}
	return errors.Wrapf(err, "update user %d", u.ID)
}
