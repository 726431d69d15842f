package database

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"tradevera/internal/auth"
	"tradevera/internal/billing"
	"tradevera/internal/storage"
)

// =====================================================
// USER CRUD OPERATIONS
// =====================================================

// CreateUser creates a new user
func (r *Repository) CreateUser(ctx context.Context, user *auth.User) error {
	if user == nil || user.ID == "" || user.Email == "" {
		return storage.ErrInvalidInput
	}

	query := `
		INSERT INTO users (id, email, password_hash, plan, created_at)
		VALUES ($1, $2, $3, $4, $5)
	`

	_, err := r.q.Exec(ctx, query,
		user.ID,
		user.Email,
		user.PasswordHash,
		string(user.Plan),
		user.CreatedAt,
	)
	if err != nil {
		if isDuplicateKeyError(err) {
			return storage.ErrDuplicateKey
		}
		return fmt.Errorf("failed to create user: %w", err)
	}

	return nil
}

// GetUserByID retrieves a user by ID
func (r *Repository) GetUserByID(ctx context.Context, userID string) (*auth.User, error) {
	query := `SELECT id, email, password_hash, plan, created_at FROM users WHERE id = $1`
	return r.scanUser(r.q.QueryRow(ctx, query, userID))
}

// GetUserByEmail retrieves a user by email, case-insensitively
func (r *Repository) GetUserByEmail(ctx context.Context, email string) (*auth.User, error) {
	query := `SELECT id, email, password_hash, plan, created_at FROM users WHERE LOWER(email) = LOWER($1)`
	return r.scanUser(r.q.QueryRow(ctx, query, email))
}

// UpdateUserPlan changes the subscription plan of a user
func (r *Repository) UpdateUserPlan(ctx context.Context, userID string, plan billing.SubscriptionTier) error {
	tag, err := r.q.Exec(ctx, `UPDATE users SET plan = $2 WHERE id = $1`, userID, string(plan))
	if err != nil {
		return fmt.Errorf("failed to update user plan: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return storage.ErrNotFound
	}
	return nil
}

func (r *Repository) scanUser(row pgx.Row) (*auth.User, error) {
	var (
		user auth.User
		plan string
	)
	err := row.Scan(&user.ID, &user.Email, &user.PasswordHash, &plan, &user.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get user: %w", err)
	}
	user.Plan = billing.ParseTier(plan)
	user.CreatedAt = user.CreatedAt.UTC()
	return &user, nil
}
