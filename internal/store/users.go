package store

import (
	"context"
	"fmt"

	"shop-service/internal/models"
)

const userColumns = `id, username, email, password_hash, first_name, last_name,
	phone, address, birth_date, is_staff, created_at`

// CreateUser inserts a user. A taken username or email yields ErrDuplicate.
func (q *Queries) CreateUser(ctx context.Context, u *models.User) error {
	err := q.get(ctx, u, `
		INSERT INTO users (username, email, password_hash, first_name, last_name, is_staff)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING `+userColumns,
		u.Username, u.Email, u.PasswordHash, u.FirstName, u.LastName, u.IsStaff)
	return mapError(err)
}

func (q *Queries) GetUserByID(ctx context.Context, id int64) (*models.User, error) {
	var u models.User
	if err := q.get(ctx, &u, "SELECT "+userColumns+" FROM users WHERE id = $1", id); err != nil {
		return nil, fmt.Errorf("user %d: %w", id, err)
	}
	return &u, nil
}

func (q *Queries) GetUserByUsername(ctx context.Context, username string) (*models.User, error) {
	var u models.User
	if err := q.get(ctx, &u, "SELECT "+userColumns+" FROM users WHERE username = $1", username); err != nil {
		return nil, fmt.Errorf("user %q: %w", username, err)
	}
	return &u, nil
}

// UpdateUserProfile writes the self-service profile fields only
func (q *Queries) UpdateUserProfile(ctx context.Context, u *models.User) error {
	return q.execOne(ctx, `
		UPDATE users
		SET first_name = $1, last_name = $2, phone = $3, address = $4, birth_date = $5
		WHERE id = $6`,
		u.FirstName, u.LastName, u.Phone, u.Address, u.BirthDate, u.ID)
}
