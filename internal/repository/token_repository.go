package repository

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/confhub/confhub/internal/model"
)

// TokenRepo persists refresh-token records ('token_hash' column only,
// never the raw value). Revoked rows stay in place so a replayed token
// still produces a lookup hit and can be recognized as reuse.
type TokenRepo struct{ DB *sql.DB }

func NewTokenRepo(db *sql.DB) *TokenRepo { return &TokenRepo{DB: db} }

// StoreRefresh inserts a refresh token hash row.
func (r *TokenRepo) StoreRefresh(ctx context.Context, userID uint64, tokenHash string, exp time.Time) error {
	_, err := r.DB.ExecContext(ctx,
		"INSERT INTO refresh_tokens (user_id, token_hash, expires_at) VALUES (?,?,?)",
		userID, tokenHash, exp)
	return err
}

// LookupRefresh returns the record matching a hash, including revoked
// and expired rows; the caller decides how each state is handled.
// ErrNotFound when no row matches.
func (r *TokenRepo) LookupRefresh(ctx context.Context, tokenHash string) (model.RefreshToken, error) {
	var t model.RefreshToken
	err := r.DB.QueryRowContext(ctx,
		"SELECT id, user_id, token_hash, expires_at, revoked, created_at FROM refresh_tokens WHERE token_hash=? LIMIT 1",
		tokenHash).Scan(&t.ID, &t.UserID, &t.TokenHash, &t.ExpiresAt, &t.Revoked, &t.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return model.RefreshToken{}, ErrNotFound
		}
		return model.RefreshToken{}, err
	}
	return t, nil
}

// Rotate atomically revokes the presented token and inserts its
// successor. The UPDATE carries a revoked=0 guard, so of two concurrent
// rotations on the same hash exactly one commits a successor; the other
// matches zero rows and gets ErrAlreadyRotated.
func (r *TokenRepo) Rotate(ctx context.Context, oldHash, newHash string, userID uint64, newExp time.Time) error {
	tx, err := r.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	res, err := tx.ExecContext(ctx,
		"UPDATE refresh_tokens SET revoked=1 WHERE token_hash=? AND revoked=0",
		oldHash)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrAlreadyRotated
	}
	if _, err := tx.ExecContext(ctx,
		"INSERT INTO refresh_tokens (user_id, token_hash, expires_at) VALUES (?,?,?)",
		userID, newHash, newExp); err != nil {
		return err
	}
	return tx.Commit()
}

// RevokeByHash marks a token as revoked. Idempotent: revoking an
// already-revoked or unknown token is not an error.
func (r *TokenRepo) RevokeByHash(ctx context.Context, tokenHash string) error {
	_, err := r.DB.ExecContext(ctx,
		"UPDATE refresh_tokens SET revoked=1 WHERE token_hash=? AND revoked=0",
		tokenHash)
	return err
}

// RevokeAllForUser revokes every active token of a user (logout
// everywhere, and the response to detected token reuse).
func (r *TokenRepo) RevokeAllForUser(ctx context.Context, userID uint64) error {
	_, err := r.DB.ExecContext(ctx,
		"UPDATE refresh_tokens SET revoked=1 WHERE user_id=? AND revoked=0",
		userID)
	return err
}
