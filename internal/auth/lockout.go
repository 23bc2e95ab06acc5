package auth

import (
	"errors"
	"fmt"
	"math"
	"time"
)

// Account lockout policy: a fixed threshold of consecutive failures
// locks the account for a fixed duration. The counter survives lock
// expiry; only a successful login or an explicit admin unlock clears
// it, so failing again right after a lock expires re-locks immediately.
const (
	LockThreshold = 3
	LockDuration  = 5 * time.Minute
)

// Locked reports whether the account is locked at the given instant.
// The lock is exclusive of its expiry: locked_until == now is unlocked.
func Locked(u User, now time.Time) bool {
	return u.LockedUntil != nil && u.LockedUntil.After(now)
}

// LockMinutesRemaining returns the remaining lock time in minutes,
// rounded up, or 0 when the account is not locked.
func LockMinutesRemaining(u User, now time.Time) int {
	if !Locked(u, now) {
		return 0
	}
	return int(math.Ceil(u.LockedUntil.Sub(now).Minutes()))
}

// ErrInvalidCredentials is returned on a failed login attempt.
// AttemptsRemaining is the number of further failures before the
// account locks, or -1 when the hint must not be disclosed (unknown
// email).
type ErrInvalidCredentials struct {
	AttemptsRemaining int
}

func (e ErrInvalidCredentials) Error() string {
	return "invalid credentials"
}

// ErrAccountLocked is returned while the account lock is active,
// regardless of password correctness.
type ErrAccountLocked struct {
	Until time.Time
}

func (e ErrAccountLocked) Error() string {
	return fmt.Sprintf("account locked until %s", e.Until.Format(time.RFC3339))
}

// MinutesRemaining is the lock time left at now, rounded up, never
// below 1 while the lock is active.
func (e ErrAccountLocked) MinutesRemaining(now time.Time) int {
	minutes := int(math.Ceil(e.Until.Sub(now).Minutes()))
	if minutes < 1 {
		minutes = 1
	}
	return minutes
}

var ErrEmailTaken = errors.New("email already in use")
