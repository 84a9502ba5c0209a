package repository

import (
	"context"
	"time"

	"github.com/easytips/easytips/internal/domain"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type SessionRepository interface {
	Create(ctx context.Context, userID string, kind domain.UserKind, ttl time.Duration) (*domain.Session, error)
	// Resolve returns nil for absent, revoked or expired tokens. Detecting an
	// expired session flips is_active before returning nil.
	Resolve(ctx context.Context, token string) (*domain.Session, error)
	// Renew slides expires_at forward by window iff the session is active and
	// unexpired. Reports whether anything was extended.
	Renew(ctx context.Context, token string, window time.Duration) (bool, error)
	// DeactivateOthers revokes every other active session for the user so the
	// newest login is the only canonical one.
	DeactivateOthers(ctx context.Context, userID, keepToken string) (int64, error)
	// Revoke is an idempotent logout; unknown or inactive tokens are a no-op.
	Revoke(ctx context.Context, token string) error
}

type sessionRepository struct {
	pool *pgxpool.Pool
}

func NewSessionRepository(pool *pgxpool.Pool) SessionRepository {
	return &sessionRepository{pool: pool}
}

const sessionCols = `uuid, user_id, session_type, created_at, expires_at, is_active`

func (r *sessionRepository) Create(ctx context.Context, userID string, kind domain.UserKind, ttl time.Duration) (*domain.Session, error) {
	const q = `
		INSERT INTO sessions (uuid, user_id, session_type, expires_at)
		VALUES ($1, $2, $3, now() + make_interval(secs => $4))
		RETURNING ` + sessionCols

	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	var s domain.Session
	err := r.pool.QueryRow(ctx, q, uuid.NewString(), userID, kind, ttl.Seconds()).Scan(
		&s.Token, &s.UserID, &s.Kind, &s.CreatedAt, &s.ExpiresAt, &s.IsActive,
	)
	if err != nil {
		return nil, err
	}

	return &s, nil
}

func (r *sessionRepository) Resolve(ctx context.Context, token string) (*domain.Session, error) {
	// uuid column; a malformed token cannot match a row, it would only turn
	// the lookup into a type error.
	if _, err := uuid.Parse(token); err != nil {
		return nil, nil
	}

	const q = `SELECT ` + sessionCols + ` FROM sessions WHERE uuid = $1 AND is_active`

	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	var s domain.Session
	err := r.pool.QueryRow(ctx, q, token).Scan(
		&s.Token, &s.UserID, &s.Kind, &s.CreatedAt, &s.ExpiresAt, &s.IsActive,
	)
	if err == pgx.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	if s.Expired(time.Now()) {
		// Lazy expiry: persist the flip before failing closed.
		const flip = `UPDATE sessions SET is_active = false WHERE uuid = $1 AND is_active`
		if _, err := r.pool.Exec(ctx, flip, token); err != nil {
			return nil, err
		}
		return nil, nil
	}

	return &s, nil
}

func (r *sessionRepository) Renew(ctx context.Context, token string, window time.Duration) (bool, error) {
	if _, err := uuid.Parse(token); err != nil {
		return false, nil
	}

	const q = `
		UPDATE sessions
		SET expires_at = expires_at + make_interval(secs => $2)
		WHERE uuid = $1
		  AND is_active
		  AND expires_at > now()`

	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	result, err := r.pool.Exec(ctx, q, token, window.Seconds())
	if err != nil {
		return false, err
	}

	return result.RowsAffected() > 0, nil
}

func (r *sessionRepository) DeactivateOthers(ctx context.Context, userID, keepToken string) (int64, error) {
	const q = `
		UPDATE sessions
		SET is_active = false
		WHERE user_id = $1
		  AND uuid <> $2
		  AND is_active`

	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	result, err := r.pool.Exec(ctx, q, userID, keepToken)
	if err != nil {
		return 0, err
	}

	return result.RowsAffected(), nil
}

func (r *sessionRepository) Revoke(ctx context.Context, token string) error {
	if _, err := uuid.Parse(token); err != nil {
		return nil
	}

	const q = `UPDATE sessions SET is_active = false WHERE uuid = $1`

	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	_, err := r.pool.Exec(ctx, q, token)
	return err
}
