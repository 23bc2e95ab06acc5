package auth

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	"golang.org/x/crypto/bcrypt"

	"tracker-api/internal/authz"
)

const pgUniqueViolation = "23505"

type Repository struct {
	db *sql.DB
}

func NewRepository(db *sql.DB) *Repository {
	return &Repository{db: db}
}

// CleanupResult reports what the maintenance sweep removed.
type CleanupResult struct {
	ClearedExpiredLocks int64 `json:"cleared_expired_locks"`
	DeletedIPLimits     int64 `json:"deleted_ip_limits"`
}

const userColumns = `id, name, email, password_hash, role, failed_login_attempts, locked_until, created_at`

func scanUser(row interface{ Scan(...any) error }) (User, error) {
	var u User
	var lockedUntil sql.NullTime
	if err := row.Scan(&u.ID, &u.Name, &u.Email, &u.PasswordHash, &u.Role, &u.FailedLoginAttempts, &lockedUntil, &u.CreatedAt); err != nil {
		return User{}, err
	}
	if lockedUntil.Valid {
		value := lockedUntil.Time.UTC()
		u.LockedUntil = &value
	}
	return u, nil
}

func (r *Repository) GetByEmail(ctx context.Context, email string) (User, error) {
	u, err := scanUser(r.db.QueryRowContext(ctx, `
		SELECT `+userColumns+`
		FROM users
		WHERE email = $1
	`, email))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return User{}, err
		}
		return User{}, fmt.Errorf("query user by email: %w", err)
	}

	return u, nil
}

func (r *Repository) GetByID(ctx context.Context, id string) (User, error) {
	u, err := scanUser(r.db.QueryRowContext(ctx, `
		SELECT `+userColumns+`
		FROM users
		WHERE id = $1
	`, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return User{}, err
		}
		return User{}, fmt.Errorf("query user by id: %w", err)
	}

	return u, nil
}

// Create inserts a new account. The plain password is hashed here; a
// duplicate email surfaces as ErrEmailTaken.
func (r *Repository) Create(ctx context.Context, input NewUser) (User, error) {
	id, err := uuid.NewV7()
	if err != nil {
		return User{}, fmt.Errorf("generate uuid v7: %w", err)
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(input.Password), bcrypt.DefaultCost)
	if err != nil {
		return User{}, fmt.Errorf("hash password: %w", err)
	}

	now := time.Now().UTC()
	u := User{
		ID:           id.String(),
		Name:         input.Name,
		Email:        input.Email,
		PasswordHash: string(hash),
		Role:         input.Role,
		CreatedAt:    now,
	}

	_, err = r.db.ExecContext(ctx, `
		INSERT INTO users (id, name, email, password_hash, role, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`, u.ID, u.Name, u.Email, u.PasswordHash, u.Role, u.CreatedAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolation {
			return User{}, ErrEmailTaken
		}
		return User{}, fmt.Errorf("insert user: %w", err)
	}

	return u, nil
}

// RecordLoginFailure increments the failure counter and, when the new
// count reaches threshold, takes a lock until now+lockDuration, all in
// one statement so concurrent failures never observe the same
// pre-increment value. The counter is deliberately not reset when the
// lock is taken. Returns the updated lock state.
func (r *Repository) RecordLoginFailure(ctx context.Context, id string, threshold int, lockDuration time.Duration, now time.Time) (User, error) {
	lockUntil := now.UTC().Add(lockDuration)

	u, err := scanUser(r.db.QueryRowContext(ctx, `
		UPDATE users
		SET failed_login_attempts = failed_login_attempts + 1,
			locked_until = CASE
				WHEN failed_login_attempts + 1 >= $2 THEN $3
				ELSE locked_until
			END
		WHERE id = $1
		RETURNING `+userColumns+`
	`, id, threshold, lockUntil))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return User{}, err
		}
		return User{}, fmt.Errorf("record login failure: %w", err)
	}

	return u, nil
}

// ResetLockState zeroes the failure counter and clears any lock. Used
// on successful login and by the admin unlock action; idempotent.
func (r *Repository) ResetLockState(ctx context.Context, id string) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE users
		SET failed_login_attempts = 0, locked_until = NULL
		WHERE id = $1
	`, id)
	if err != nil {
		return fmt.Errorf("reset lock state: %w", err)
	}

	return nil
}

func (r *Repository) AdminExists(ctx context.Context) (bool, error) {
	var exists bool
	err := r.db.QueryRowContext(ctx, `
		SELECT EXISTS(SELECT 1 FROM users WHERE role = $1)
	`, authz.RoleAdmin).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("check admin exists: %w", err)
	}

	return exists, nil
}

// AllowLoginIP applies a fixed-window per-IP counter to the login
// route. The window state lives in the database so the limit holds
// across serverless instances; the upsert is a single atomic statement.
func (r *Repository) AllowLoginIP(ctx context.Context, ip string, maxHits int, window time.Duration, now time.Time) (bool, time.Duration, error) {
	threshold := now.UTC().Add(-window)

	var hits int
	var windowStartedAt time.Time
	err := r.db.QueryRowContext(ctx, `
		WITH upsert AS (
			INSERT INTO auth_login_ip_limits (ip, window_started_at, hits, updated_at)
			VALUES ($1, $2, 1, $2)
			ON CONFLICT (ip) DO UPDATE
			SET
				hits = CASE
					WHEN auth_login_ip_limits.window_started_at <= $3 THEN 1
					ELSE auth_login_ip_limits.hits + 1
				END,
				window_started_at = CASE
					WHEN auth_login_ip_limits.window_started_at <= $3 THEN $2
					ELSE auth_login_ip_limits.window_started_at
				END,
				updated_at = $2
			RETURNING hits, window_started_at
		)
		SELECT hits, window_started_at FROM upsert
	`, ip, now.UTC(), threshold).Scan(&hits, &windowStartedAt)
	if err != nil {
		return false, 0, fmt.Errorf("upsert login ip limit: %w", err)
	}

	if hits <= maxHits {
		return true, 0, nil
	}

	retryAfter := windowStartedAt.Add(window).Sub(now.UTC())
	if retryAfter < time.Second {
		retryAfter = time.Second
	}

	return false, retryAfter, nil
}

// CleanupStaleSecurityState clears naturally expired account locks
// (the failure counter stays, per the lockout policy) and prunes idle
// per-IP throttle rows.
func (r *Repository) CleanupStaleSecurityState(ctx context.Context, ipLimitRetention time.Duration, batchSize int) (CleanupResult, error) {
	if batchSize <= 0 {
		batchSize = 500
	}
	if ipLimitRetention <= 0 {
		ipLimitRetention = 24 * time.Hour
	}

	res, err := r.db.ExecContext(ctx, `
		UPDATE users
		SET locked_until = NULL
		WHERE locked_until IS NOT NULL AND locked_until < NOW()
	`)
	if err != nil {
		return CleanupResult{}, fmt.Errorf("clear expired locks: %w", err)
	}
	clearedLocks, err := res.RowsAffected()
	if err != nil {
		return CleanupResult{}, fmt.Errorf("cleared locks rows affected: %w", err)
	}

	cutoff := time.Now().UTC().Add(-ipLimitRetention)
	res, err = r.db.ExecContext(ctx, `
		WITH stale AS (
			SELECT ip
			FROM auth_login_ip_limits
			WHERE updated_at < $1
			ORDER BY updated_at ASC
			LIMIT $2
		)
		DELETE FROM auth_login_ip_limits t
		USING stale
		WHERE t.ip = stale.ip
	`, cutoff, batchSize)
	if err != nil {
		return CleanupResult{}, fmt.Errorf("delete stale ip limits: %w", err)
	}
	deletedIPLimits, err := res.RowsAffected()
	if err != nil {
		return CleanupResult{}, fmt.Errorf("stale ip limits rows affected: %w", err)
	}

	return CleanupResult{
		ClearedExpiredLocks: clearedLocks,
		DeletedIPLimits:     deletedIPLimits,
	}, nil
}
