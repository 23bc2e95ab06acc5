package auth

import (
	"testing"
	"time"
)

func TestLocked(t *testing.T) {
	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)

	past := now.Add(-time.Second)
	future := now.Add(time.Second)

	tests := []struct {
		name string
		user User
		want bool
	}{
		{name: "no lock", user: User{}, want: false},
		{name: "expired lock", user: User{LockedUntil: &past}, want: false},
		{name: "lock ends exactly now", user: User{LockedUntil: &now}, want: false},
		{name: "active lock", user: User{LockedUntil: &future}, want: true},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if got := Locked(tc.user, now); got != tc.want {
				t.Fatalf("Locked() = %v, want %v", got, tc.want)
			}
		})
	}
}

func TestLockMinutesRemaining(t *testing.T) {
	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)

	tests := []struct {
		name  string
		until time.Time
		want  int
	}{
		{name: "full lock ahead", until: now.Add(5 * time.Minute), want: 5},
		{name: "partial minute rounds up", until: now.Add(4*time.Minute + 30*time.Second), want: 5},
		{name: "under a minute", until: now.Add(10 * time.Second), want: 1},
		{name: "already expired", until: now.Add(-time.Minute), want: 0},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			u := User{LockedUntil: &tc.until}
			if got := LockMinutesRemaining(u, now); got != tc.want {
				t.Fatalf("LockMinutesRemaining() = %d, want %d", got, tc.want)
			}
		})
	}
}

func TestErrAccountLockedMinutesRemaining(t *testing.T) {
	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)

	err := ErrAccountLocked{Until: now.Add(30 * time.Second)}
	if got := err.MinutesRemaining(now); got != 1 {
		t.Fatalf("MinutesRemaining() = %d, want 1", got)
	}

	// Never reports zero while the lock is being surfaced.
	err = ErrAccountLocked{Until: now}
	if got := err.MinutesRemaining(now); got != 1 {
		t.Fatalf("MinutesRemaining() at expiry = %d, want 1", got)
	}
}
