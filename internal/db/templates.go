package db

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

// CardTemplate is an uploaded front/back SVG pair. The documents live in
// storage under FrontKey and BackKey.
type CardTemplate struct {
	ID        int64      `json:"-"`
	UUID      uuid.UUID  `json:"uuid"`
	Title     string     `json:"title"`
	FrontKey  string     `json:"-"`
	BackKey   string     `json:"-"`
	CreatedBy *uuid.UUID `json:"created_by,omitempty"`
	CreatedAt time.Time  `json:"created_at"`
	UpdatedAt time.Time  `json:"updated_at"`
}

const templateColumns = `id, uuid, title, front_key, back_key, created_by, created_at, updated_at`

func scanTemplate(row pgx.Row) (*CardTemplate, error) {
	t := &CardTemplate{}
	err := row.Scan(
		&t.ID, &t.UUID, &t.Title, &t.FrontKey, &t.BackKey,
		&t.CreatedBy, &t.CreatedAt, &t.UpdatedAt,
	)
	return t, err
}

// CreateTemplate inserts a template. UUID and storage keys must be set by the caller.
func (db *DB) CreateTemplate(ctx context.Context, t *CardTemplate) (*CardTemplate, error) {
	created, err := scanTemplate(db.q.QueryRow(ctx, `
		INSERT INTO card_templates (uuid, title, front_key, back_key, created_by)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING `+templateColumns,
		t.UUID, t.Title, t.FrontKey, t.BackKey, t.CreatedBy,
	))
	if err != nil {
		return nil, fmt.Errorf("failed to create template: %w", err)
	}

	return created, nil
}

// GetTemplateByUUID retrieves a template by its public UUID
func (db *DB) GetTemplateByUUID(ctx context.Context, id uuid.UUID) (*CardTemplate, error) {
	t, err := scanTemplate(db.q.QueryRow(ctx, `
		SELECT `+templateColumns+`
		FROM card_templates
		WHERE uuid = $1
	`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get template: %w", err)
	}

	return t, nil
}

// ListTemplates returns templates newest first
func (db *DB) ListTemplates(ctx context.Context, limit, offset int) ([]*CardTemplate, error) {
	rows, err := db.q.Query(ctx, `
		SELECT `+templateColumns+`
		FROM card_templates
		ORDER BY created_at DESC, id DESC
		LIMIT $1 OFFSET $2
	`, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to list templates: %w", err)
	}
	defer rows.Close()

	templates := []*CardTemplate{}
	for rows.Next() {
		t, err := scanTemplate(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan template: %w", err)
		}
		templates = append(templates, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to list templates: %w", err)
	}

	return templates, nil
}

// CountTemplates counts all templates
func (db *DB) CountTemplates(ctx context.Context) (int, error) {
	var count int
	if err := db.q.QueryRow(ctx, `SELECT COUNT(*) FROM card_templates`).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count templates: %w", err)
	}
	return count, nil
}

// UpdateTemplate changes the title and/or storage keys; nil arguments keep the current value.
func (db *DB) UpdateTemplate(ctx context.Context, id uuid.UUID, title, frontKey, backKey *string) (*CardTemplate, error) {
	t, err := scanTemplate(db.q.QueryRow(ctx, `
		UPDATE card_templates
		SET
			title = COALESCE($2, title),
			front_key = COALESCE($3, front_key),
			back_key = COALESCE($4, back_key),
			updated_at = NOW()
		WHERE uuid = $1
		RETURNING `+templateColumns,
		id, title, frontKey, backKey,
	))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to update template: %w", err)
	}

	return t, nil
}

// DeleteTemplate removes a template row
func (db *DB) DeleteTemplate(ctx context.Context, id uuid.UUID) error {
	tag, err := db.q.Exec(ctx, `DELETE FROM card_templates WHERE uuid = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete template: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}
