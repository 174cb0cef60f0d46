package db

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

// User is an authenticated API caller
type User struct {
	ID      uuid.UUID `json:"id"`
	Subject string    `json:"subject"`
	Email   string    `json:"email"`
	Name    string    `json:"name,omitempty"`
}

// GetOrCreateUser gets an existing user by token subject or creates a new one
func (db *DB) GetOrCreateUser(ctx context.Context, subject, email, name string) (*User, error) {
	user := &User{}

	err := db.q.QueryRow(ctx, `
		SELECT id, subject, email, name
		FROM users
		WHERE subject = $1
	`, subject).Scan(&user.ID, &user.Subject, &user.Email, &user.Name)

	if err == nil {
		return user, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("failed to get user: %w", err)
	}

	err = db.q.QueryRow(ctx, `
		INSERT INTO users (subject, email, name)
		VALUES ($1, $2, $3)
		ON CONFLICT (subject) DO UPDATE SET
			email = EXCLUDED.email,
			name = COALESCE(NULLIF(EXCLUDED.name, ''), users.name),
			updated_at = NOW()
		RETURNING id, subject, email, name
	`, subject, email, name).Scan(&user.ID, &user.Subject, &user.Email, &user.Name)

	if err != nil {
		return nil, fmt.Errorf("failed to get or create user: %w", err)
	}

	return user, nil
}

// GetUserBySubject retrieves a user by their token subject
func (db *DB) GetUserBySubject(ctx context.Context, subject string) (*User, error) {
	user := &User{}
	err := db.q.QueryRow(ctx, `
		SELECT id, subject, email, name
		FROM users
		WHERE subject = $1
	`, subject).Scan(&user.ID, &user.Subject, &user.Email, &user.Name)

	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get user: %w", err)
	}

	return user, nil
}
