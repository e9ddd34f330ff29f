package auth

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Repository defines persistence operations for API tokens.
type Repository interface {
	Insert(ctx context.Context, token APIToken) error
	FindByID(ctx context.Context, id string) (*APIToken, error)
	TouchLastUsed(ctx context.Context, id string, at time.Time) error
	Delete(ctx context.Context, id string) error
}

// PGRepository implements Repository using PostgreSQL.
type PGRepository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a PostgreSQL repository.
func NewRepository(pool *pgxpool.Pool) *PGRepository {
	return &PGRepository{pool: pool}
}

// EnsureSchema creates the token table when absent.
func (r *PGRepository) EnsureSchema(ctx context.Context) error {
	_, err := r.pool.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS auth_api_token (
			id           uuid PRIMARY KEY,
			name         text NOT NULL,
			user_id      text NOT NULL,
			secret_hash  text NOT NULL,
			created_at   timestamptz NOT NULL,
			last_used_at timestamptz
		)`)
	return err
}

// Insert persists a newly issued token.
func (r *PGRepository) Insert(ctx context.Context, token APIToken) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO auth_api_token (id, name, user_id, secret_hash, created_at)
		VALUES ($1, $2, $3, $4, $5)`,
		token.ID, token.Name, token.UserID, token.SecretHash, token.CreatedAt)
	return err
}

// FindByID fetches a token record.
func (r *PGRepository) FindByID(ctx context.Context, id string) (*APIToken, error) {
	var token APIToken
	var lastUsed *time.Time
	err := r.pool.QueryRow(ctx, `
		SELECT id, name, user_id, secret_hash, created_at, last_used_at
		FROM auth_api_token WHERE id = $1`, id).
		Scan(&token.ID, &token.Name, &token.UserID, &token.SecretHash, &token.CreatedAt, &lastUsed)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrInvalidToken
	}
	if err != nil {
		return nil, err
	}
	if lastUsed != nil {
		token.LastUsedAt = *lastUsed
	}
	return &token, nil
}

// TouchLastUsed records when the token last authenticated a request.
func (r *PGRepository) TouchLastUsed(ctx context.Context, id string, at time.Time) error {
	_, err := r.pool.Exec(ctx, `UPDATE auth_api_token SET last_used_at = $2 WHERE id = $1`, id, at)
	return err
}

// Delete revokes a token.
func (r *PGRepository) Delete(ctx context.Context, id string) error {
	_, err := r.pool.Exec(ctx, `DELETE FROM auth_api_token WHERE id = $1`, id)
	return err
}
