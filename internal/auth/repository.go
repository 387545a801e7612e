package auth

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
)

var (
	ErrDuplicateUser     = errors.New("user id already exists")
	ErrInvalidResetToken = errors.New("invalid or expired reset token")
)

type Repository struct {
	db *sql.DB
}

func NewRepository(db *sql.DB) *Repository {
	return &Repository{db: db}
}

func (r *Repository) Create(ctx context.Context, userID, passwordHash string) error {
	id, err := uuid.NewV7()
	if err != nil {
		return fmt.Errorf("generate user uuid: %w", err)
	}

	now := time.Now().UTC()
	_, err = r.db.ExecContext(ctx, `
		INSERT INTO users (id, user_id, password_hash, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $4)
	`, id.String(), userID, passwordHash, now)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return ErrDuplicateUser
		}
		return fmt.Errorf("insert user: %w", err)
	}

	return nil
}

func (r *Repository) GetByUserID(ctx context.Context, userID string) (Account, error) {
	var account Account
	var lastLogin, lockUntil sql.NullTime

	err := r.db.QueryRowContext(ctx, `
		SELECT id, user_id, password_hash, keep_logged_in, is_active,
		       last_login, login_attempts, lock_until, created_at, updated_at
		FROM users
		WHERE user_id = $1
	`, userID).Scan(
		&account.ID, &account.UserID, &account.PasswordHash,
		&account.KeepLoggedIn, &account.IsActive,
		&lastLogin, &account.LoginAttempts, &lockUntil,
		&account.CreatedAt, &account.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Account{}, err
		}
		return Account{}, fmt.Errorf("query user by user_id: %w", err)
	}

	if lastLogin.Valid {
		value := lastLogin.Time.UTC()
		account.LastLogin = &value
	}
	if lockUntil.Valid {
		value := lockUntil.Time.UTC()
		account.LockUntil = &value
	}

	return account, nil
}

// RecordFailedAttempt increments the failure counter and applies the lockout
// in a single conditional UPDATE, so concurrent failures cannot race past
// the threshold check.
func (r *Repository) RecordFailedAttempt(ctx context.Context, userID string, maxAttempts int, lockWindow time.Duration, now time.Time) (ThrottleState, error) {
	var state ThrottleState
	var lockUntil sql.NullTime

	err := r.db.QueryRowContext(ctx, `
		UPDATE users
		SET login_attempts = login_attempts + 1,
		    lock_until = CASE
		        WHEN login_attempts + 1 >= $2 THEN $3
		        ELSE lock_until
		    END,
		    updated_at = $4
		WHERE user_id = $1
		RETURNING login_attempts, lock_until
	`, userID, maxAttempts, now.UTC().Add(lockWindow), now.UTC()).Scan(&state.FailedAttempts, &lockUntil)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return ThrottleState{}, err
		}
		return ThrottleState{}, fmt.Errorf("record failed login attempt: %w", err)
	}

	if lockUntil.Valid {
		value := lockUntil.Time.UTC()
		state.LockUntil = &value
	}

	return state, nil
}

// ResetThrottle clears the counter and lock, used when a lock has expired.
func (r *Repository) ResetThrottle(ctx context.Context, userID string) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE users
		SET login_attempts = 0, lock_until = NULL, updated_at = $2
		WHERE user_id = $1
	`, userID, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("reset login throttle: %w", err)
	}

	return nil
}

func (r *Repository) RecordSuccess(ctx context.Context, userID string, keepLoggedIn bool, now time.Time) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE users
		SET login_attempts = 0,
		    lock_until = NULL,
		    keep_logged_in = $2,
		    last_login = $3,
		    updated_at = $3
		WHERE user_id = $1
	`, userID, keepLoggedIn, now.UTC())
	if err != nil {
		return fmt.Errorf("record successful login: %w", err)
	}

	return nil
}

// FindUserIDByEmail resolves an account through the email stored in its
// profile basic details. Used by the forgot-password flow.
func (r *Repository) FindUserIDByEmail(ctx context.Context, email string) (string, error) {
	var userID string
	err := r.db.QueryRowContext(ctx, `
		SELECT user_id
		FROM profiles
		WHERE basic_details->>'email' = $1
	`, email).Scan(&userID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", err
		}
		return "", fmt.Errorf("query user by profile email: %w", err)
	}

	return userID, nil
}

func (r *Repository) SetResetToken(ctx context.Context, userID, rawToken string, expiresAt time.Time) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE users
		SET reset_token_hash = $2, reset_token_expires = $3, updated_at = $4
		WHERE user_id = $1
	`, userID, hashResetToken(rawToken), expiresAt.UTC(), time.Now().UTC())
	if err != nil {
		return fmt.Errorf("store reset token: %w", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("store reset token rows affected: %w", err)
	}
	if affected == 0 {
		return sql.ErrNoRows
	}

	return nil
}

// ConsumeResetToken swaps the password hash for the account holding the
// presented token, provided it has not expired. The stored hash is cleared
// in the same statement, so a token can only ever be redeemed once.
func (r *Repository) ConsumeResetToken(ctx context.Context, rawToken, newPasswordHash string, now time.Time) (string, error) {
	var userID string
	err := r.db.QueryRowContext(ctx, `
		UPDATE users
		SET password_hash = $2,
		    reset_token_hash = NULL,
		    reset_token_expires = NULL,
		    login_attempts = 0,
		    lock_until = NULL,
		    updated_at = $3
		WHERE reset_token_hash = $1
		  AND reset_token_expires > $3
		RETURNING user_id
	`, hashResetToken(rawToken), newPasswordHash, now.UTC()).Scan(&userID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", ErrInvalidResetToken
		}
		return "", fmt.Errorf("consume reset token: %w", err)
	}

	return userID, nil
}

// Raw reset tokens are never persisted, only their digest.
func hashResetToken(rawToken string) string {
	digest := sha256.Sum256([]byte(rawToken))
	return hex.EncodeToString(digest[:])
}

type CleanupResult struct {
	ClearedLockouts    int64 `json:"cleared_lockouts"`
	DeletedResetTokens int64 `json:"deleted_reset_tokens"`
}

// CleanupStaleAuthData resets throttle state whose lock has lapsed and drops
// reset tokens past their expiry, in bounded batches.
func (r *Repository) CleanupStaleAuthData(ctx context.Context, batchSize int) (CleanupResult, error) {
	if batchSize <= 0 {
		batchSize = 500
	}

	now := time.Now().UTC()

	clearedLockouts, err := r.clearExpiredLockouts(ctx, now, batchSize)
	if err != nil {
		return CleanupResult{}, err
	}

	deletedResetTokens, err := r.clearExpiredResetTokens(ctx, now, batchSize)
	if err != nil {
		return CleanupResult{}, err
	}

	return CleanupResult{
		ClearedLockouts:    clearedLockouts,
		DeletedResetTokens: deletedResetTokens,
	}, nil
}

func (r *Repository) clearExpiredLockouts(ctx context.Context, now time.Time, batchSize int) (int64, error) {
	res, err := r.db.ExecContext(ctx, `
		WITH stale AS (
			SELECT id
			FROM users
			WHERE lock_until IS NOT NULL AND lock_until < $1
			ORDER BY lock_until ASC
			LIMIT $2
		)
		UPDATE users u
		SET login_attempts = 0, lock_until = NULL, updated_at = $1
		FROM stale
		WHERE u.id = stale.id
	`, now, batchSize)
	if err != nil {
		return 0, fmt.Errorf("clear expired lockouts: %w", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("expired lockouts rows affected: %w", err)
	}

	return affected, nil
}

func (r *Repository) clearExpiredResetTokens(ctx context.Context, now time.Time, batchSize int) (int64, error) {
	res, err := r.db.ExecContext(ctx, `
		WITH stale AS (
			SELECT id
			FROM users
			WHERE reset_token_expires IS NOT NULL AND reset_token_expires < $1
			ORDER BY reset_token_expires ASC
			LIMIT $2
		)
		UPDATE users u
		SET reset_token_hash = NULL, reset_token_expires = NULL, updated_at = $1
		FROM stale
		WHERE u.id = stale.id
	`, now, batchSize)
	if err != nil {
		return 0, fmt.Errorf("clear expired reset tokens: %w", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("expired reset tokens rows affected: %w", err)
	}

	return affected, nil
}
