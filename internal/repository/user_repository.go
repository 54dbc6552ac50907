package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
)

type UserRepositoryInterface interface {
	GetForwardingNumber(ctx context.Context, userID string) (string, error)
}

type UserRepository struct {
	DB *sql.DB
}

// GetForwardingNumber returns "" when the user or the number is missing.
func (r *UserRepository) GetForwardingNumber(ctx context.Context, userID string) (string, error) {
	var number string
	err := r.DB.QueryRowContext(ctx,
		`SELECT COALESCE(forwarding_number, '') FROM users WHERE id = $1`, userID,
	).Scan(&number)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", nil
		}
		return "", fmt.Errorf("get forwarding number for user %s: %w", userID, err)
	}
	return strings.TrimSpace(number), nil
}

var _ UserRepositoryInterface = (*UserRepository)(nil)
