package repository

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/ceylon-smart-citizen/auth-service/internal/database"
)

// RevocationRepo implements RevocationStore on PostgreSQL. Blacklist entries
// live in the token_blacklist table keyed by token hash; the global-logout
// watermark is the token_invalid_before column on the user row, so bumping
// it is a single atomic update that invalidates an unbounded number of
// previously issued tokens without enumerating them.
type RevocationRepo struct{ db *database.DB }

// NewRevocationRepo returns a RevocationRepo bound to the given database.
func NewRevocationRepo(db *database.DB) *RevocationRepo { return &RevocationRepo{db: db} }

// Blacklist inserts one revoked token by hash. The unique index on
// token_hash plus ON CONFLICT DO NOTHING makes the insert idempotent:
// revoking the same token twice is a no-op.
func (r *RevocationRepo) Blacklist(ctx context.Context, tokenHash string, userID uint64, expiresAt time.Time, reason string) error {
	const q = `
INSERT INTO token_blacklist (token_hash, user_id, expires_at, reason)
VALUES ($1, $2, $3, $4)
ON CONFLICT (token_hash) DO NOTHING`
	_, err := r.db.Pool.Exec(ctx, q, tokenHash, userID, expiresAt, reason)
	return err
}

// IsBlacklisted reports whether a live entry exists for the hash. Entries
// whose mirrored expiry has passed count as absent, so cleanup lag never
// rejects a token longer than its natural lifetime would have.
func (r *RevocationRepo) IsBlacklisted(ctx context.Context, tokenHash string) (bool, error) {
	const q = `SELECT EXISTS (SELECT 1 FROM token_blacklist WHERE token_hash=$1 AND expires_at > now())`
	var found bool
	if err := r.db.Pool.QueryRow(ctx, q, tokenHash).Scan(&found); err != nil {
		return false, err
	}
	return found, nil
}

// BumpWatermark sets the user's global-logout watermark to the current
// instant. A single-row update, atomic at the storage layer.
func (r *RevocationRepo) BumpWatermark(ctx context.Context, userID uint64) error {
	tag, err := r.db.Pool.Exec(ctx,
		`UPDATE users SET token_invalid_before=now(), updated_at=now() WHERE id=$1`, userID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// Watermark returns the user's watermark, nil when never bumped.
func (r *RevocationRepo) Watermark(ctx context.Context, userID uint64) (*time.Time, error) {
	var wm *time.Time
	err := r.db.Pool.QueryRow(ctx,
		`SELECT token_invalid_before FROM users WHERE id=$1`, userID).Scan(&wm)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			// Missing user means no watermark; the authenticator rejects the
			// user at the credential-store step instead.
			return nil, nil
		}
		return nil, err
	}
	return wm, nil
}

// DeleteExpired garbage-collects blacklist entries past their mirrored
// expiry. Safe to run concurrently with normal traffic.
func (r *RevocationRepo) DeleteExpired(ctx context.Context) (int64, error) {
	tag, err := r.db.Pool.Exec(ctx, `DELETE FROM token_blacklist WHERE expires_at <= now()`)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}
