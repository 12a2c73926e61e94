package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/iliyamo/user-insights/internal/model"
)

// TokenRepo persists access tokens by the SHA-256 hash of the bearer string.
type TokenRepo struct{ DB *sql.DB }

func NewTokenRepo(db *sql.DB) *TokenRepo { return &TokenRepo{DB: db} }

// Create inserts an access token row.
func (r *TokenRepo) Create(ctx context.Context, userID uint64, tokenHash string, createdAt, expiresAt time.Time) error {
	_, err := r.DB.ExecContext(ctx,
		"INSERT INTO access_tokens (user_id, token_hash, created_at, expires_at) VALUES (?,?,?,?)",
		userID, tokenHash, createdAt.UTC(), expiresAt.UTC())
	if err != nil {
		return fmt.Errorf("insert access token: %w", err)
	}
	return nil
}

// GetByHash loads a token row. Expiry is not checked here.
func (r *TokenRepo) GetByHash(ctx context.Context, tokenHash string) (model.AccessToken, error) {
	var (
		t        model.AccessToken
		lastUsed sql.NullTime
	)
	err := r.DB.QueryRowContext(ctx,
		"SELECT id, user_id, token_hash, created_at, expires_at, last_used_at FROM access_tokens WHERE token_hash=? LIMIT 1",
		tokenHash).Scan(&t.ID, &t.UserID, &t.TokenHash, &t.CreatedAt, &t.ExpiresAt, &lastUsed)
	if errors.Is(err, sql.ErrNoRows) {
		return model.AccessToken{}, ErrNotFound
	}
	if err != nil {
		return model.AccessToken{}, fmt.Errorf("get access token: %w", err)
	}
	t.CreatedAt = t.CreatedAt.UTC()
	t.ExpiresAt = t.ExpiresAt.UTC()
	if lastUsed.Valid {
		lu := lastUsed.Time.UTC()
		t.LastUsedAt = &lu
	}
	return t, nil
}

// DeleteByHash revokes a token. Deleting an unknown hash is not an error.
func (r *TokenRepo) DeleteByHash(ctx context.Context, tokenHash string) error {
	if _, err := r.DB.ExecContext(ctx, "DELETE FROM access_tokens WHERE token_hash=?", tokenHash); err != nil {
		return fmt.Errorf("delete access token: %w", err)
	}
	return nil
}

// Touch records the last time a token authenticated a request.
func (r *TokenRepo) Touch(ctx context.Context, id uint64, at time.Time) error {
	if _, err := r.DB.ExecContext(ctx, "UPDATE access_tokens SET last_used_at=? WHERE id=?", at.UTC(), id); err != nil {
		return fmt.Errorf("touch access token: %w", err)
	}
	return nil
}
