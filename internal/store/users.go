package store

import (
	"context"
	"fmt"
	"strings"

	"supermarket/internal/models"

	"github.com/jmoiron/sqlx"
)

const userColumns = `id, first_name, last_name, email, password_hash, role, created_at, updated_at`

// CreateUser inserts a user; a taken email yields ErrDuplicateEmail
func (s *Store) CreateUser(ctx context.Context, user *models.User) error {
	now := s.now()
	user.Email = normalizeEmail(user.Email)
	user.CreatedAt = now
	user.UpdatedAt = now

	query := `
		INSERT INTO users (first_name, last_name, email, password_hash, role, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		RETURNING id`

	err := s.db.GetContext(ctx, &user.ID, s.db.Rebind(query),
		user.FirstName, user.LastName, user.Email, user.PasswordHash, user.Role, user.CreatedAt, user.UpdatedAt)
	if isUniqueViolation(err) {
		return models.ErrDuplicateEmail
	}
	return mapErr(err)
}

// GetUserByID retrieves a user by ID
func (s *Store) GetUserByID(ctx context.Context, id int64) (*models.User, error) {
	var user models.User
	if err := get(ctx, s.db, &user, `SELECT `+userColumns+` FROM users WHERE id = ?`, id); err != nil {
		return nil, fmt.Errorf("user %d: %w", id, err)
	}
	return &user, nil
}

// GetUserByEmail retrieves a user by email, case-insensitively
func (s *Store) GetUserByEmail(ctx context.Context, email string) (*models.User, error) {
	var user models.User
	if err := get(ctx, s.db, &user, `SELECT `+userColumns+` FROM users WHERE email = ?`, normalizeEmail(email)); err != nil {
		return nil, fmt.Errorf("user %q: %w", email, err)
	}
	return &user, nil
}

// ListUsers retrieves all users ordered by ID
func (s *Store) ListUsers(ctx context.Context) ([]models.User, error) {
	users := []models.User{}
	err := sel(ctx, s.db, &users, `SELECT `+userColumns+` FROM users ORDER BY id`)
	return users, err
}

// UpdateUser updates profile fields and role. A non-empty passwordHash replaces the
// stored hash in the same statement.
func (s *Store) UpdateUser(ctx context.Context, user *models.User, passwordHash string) error {
	user.Email = normalizeEmail(user.Email)
	user.UpdatedAt = s.now()

	set := `first_name = ?, last_name = ?, email = ?, role = ?, updated_at = ?`
	args := []interface{}{user.FirstName, user.LastName, user.Email, user.Role, user.UpdatedAt}
	if passwordHash != "" {
		set += `, password_hash = ?`
		args = append(args, passwordHash)
	}
	args = append(args, user.ID)

	res, err := s.db.ExecContext(ctx, s.db.Rebind(`UPDATE users SET `+set+` WHERE id = ?`), args...)
	if isUniqueViolation(err) {
		return models.ErrDuplicateEmail
	}
	if err != nil {
		return mapErr(err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("user %d: %w", user.ID, models.ErrNotFound)
	}
	if passwordHash != "" {
		user.PasswordHash = passwordHash
	}
	return nil
}

// UpdatePassword replaces the stored password hash for an email
func (s *Store) UpdatePassword(ctx context.Context, email, passwordHash string) error {
	n, err := exec(ctx, s.db,
		`UPDATE users SET password_hash = ?, updated_at = ? WHERE email = ?`,
		passwordHash, s.now(), normalizeEmail(email))
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("user %q: %w", email, models.ErrNotFound)
	}
	return nil
}

// DeleteUser removes a user and their carts. Users referenced by orders are kept
// so order history stays intact.
func (s *Store) DeleteUser(ctx context.Context, id int64) error {
	return s.withTx(ctx, func(tx *sqlx.Tx) error {
		var orders int
		if err := get(ctx, tx, &orders, `SELECT COUNT(*) FROM orders WHERE user_id = ?`, id); err != nil {
			return err
		}
		if orders > 0 {
			return fmt.Errorf("%w: user %d has %d orders", models.ErrConflict, id, orders)
		}

		if _, err := exec(ctx, tx, `DELETE FROM cart_lines WHERE cart_id IN (SELECT id FROM carts WHERE user_id = ?)`, id); err != nil {
			return err
		}
		if _, err := exec(ctx, tx, `DELETE FROM carts WHERE user_id = ?`, id); err != nil {
			return err
		}
		if _, err := exec(ctx, tx, `DELETE FROM report_log WHERE user_id = ?`, id); err != nil {
			return err
		}

		n, err := exec(ctx, tx, `DELETE FROM users WHERE id = ?`, id)
		if err != nil {
			return err
		}
		if n == 0 {
			return fmt.Errorf("user %d: %w", id, models.ErrNotFound)
		}
		return nil
	})
}

// CountUsersByRole counts users holding a role
func (s *Store) CountUsersByRole(ctx context.Context, role string) (int, error) {
	var n int
	err := get(ctx, s.db, &n, `SELECT COUNT(*) FROM users WHERE role = ?`, role)
	return n, err
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
