package auth

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"tracker-api/internal/authz"
)

// fakeUserStore keeps accounts in memory and mirrors the repository's
// failure-recording behavior: increment always, lock when the new count
// reaches the threshold, never reset the counter on lock.
type fakeUserStore struct {
	mu    sync.Mutex
	seq   int
	users map[string]*User
}

func newFakeUserStore() *fakeUserStore {
	return &fakeUserStore{users: make(map[string]*User)}
}

func (f *fakeUserStore) GetByEmail(_ context.Context, email string) (User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, u := range f.users {
		if u.Email == email {
			return *u, nil
		}
	}
	return User{}, sql.ErrNoRows
}

func (f *fakeUserStore) GetByID(_ context.Context, id string) (User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	u, ok := f.users[id]
	if !ok {
		return User{}, sql.ErrNoRows
	}
	return *u, nil
}

func (f *fakeUserStore) Create(_ context.Context, input NewUser) (User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, u := range f.users {
		if u.Email == input.Email {
			return User{}, ErrEmailTaken
		}
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(input.Password), bcrypt.MinCost)
	if err != nil {
		return User{}, err
	}

	f.seq++
	u := &User{
		ID:           "user-" + strconv.Itoa(f.seq),
		Name:         input.Name,
		Email:        input.Email,
		PasswordHash: string(hash),
		Role:         input.Role,
		CreatedAt:    time.Now().UTC(),
	}
	f.users[u.ID] = u
	return *u, nil
}

func (f *fakeUserStore) RecordLoginFailure(_ context.Context, id string, threshold int, lockDuration time.Duration, now time.Time) (User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	u, ok := f.users[id]
	if !ok {
		return User{}, sql.ErrNoRows
	}

	u.FailedLoginAttempts++
	if u.FailedLoginAttempts >= threshold {
		until := now.UTC().Add(lockDuration)
		u.LockedUntil = &until
	}
	return *u, nil
}

func (f *fakeUserStore) ResetLockState(_ context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if u, ok := f.users[id]; ok {
		u.FailedLoginAttempts = 0
		u.LockedUntil = nil
	}
	return nil
}

func (f *fakeUserStore) AdminExists(_ context.Context) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, u := range f.users {
		if u.Role == authz.RoleAdmin {
			return true, nil
		}
	}
	return false, nil
}

const testPassword = "Sup3r$ecret"

func newTestService(t *testing.T) (*Service, *fakeUserStore, User) {
	t.Helper()

	store := newFakeUserStore()
	service := NewService(store, "test-secret")

	user, err := store.Create(context.Background(), NewUser{
		Name:     "Ada Lovelace",
		Email:    "ada@example.com",
		Password: testPassword,
		Role:     authz.RoleUser,
	})
	require.NoError(t, err)

	return service, store, user
}

func TestAuthenticateCountsDownThenLocks(t *testing.T) {
	service, _, user := newTestService(t)

	base := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	service.now = func() time.Time { return base }

	ctx := context.Background()

	for i, wantRemaining := range []int{2, 1} {
		_, err := service.Authenticate(ctx, user.Email, "wrong-password")
		var invalid ErrInvalidCredentials
		require.ErrorAs(t, err, &invalid, "attempt %d", i+1)
		require.Equal(t, wantRemaining, invalid.AttemptsRemaining, "attempt %d", i+1)
	}

	_, err := service.Authenticate(ctx, user.Email, "wrong-password")
	var locked ErrAccountLocked
	require.ErrorAs(t, err, &locked)
	require.Equal(t, base.Add(LockDuration), locked.Until)
}

func TestAuthenticateLockedRejectsCorrectPassword(t *testing.T) {
	service, _, user := newTestService(t)

	base := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	service.now = func() time.Time { return base }

	ctx := context.Background()
	for i := 0; i < LockThreshold; i++ {
		_, _ = service.Authenticate(ctx, user.Email, "wrong-password")
	}

	// Two minutes into the lock the right password still bounces, and
	// the reported remainder has shrunk accordingly.
	service.now = func() time.Time { return base.Add(2 * time.Minute) }

	_, err := service.Authenticate(ctx, user.Email, testPassword)
	var locked ErrAccountLocked
	require.ErrorAs(t, err, &locked)
	require.Equal(t, 3, locked.MinutesRemaining(base.Add(2*time.Minute)))
}

func TestLockExpiryKeepsCounterAndRelocksOnNextFailure(t *testing.T) {
	service, store, user := newTestService(t)

	base := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	service.now = func() time.Time { return base }

	ctx := context.Background()
	for i := 0; i < LockThreshold; i++ {
		_, _ = service.Authenticate(ctx, user.Email, "wrong-password")
	}

	after := base.Add(LockDuration + time.Second)
	service.now = func() time.Time { return after }

	// The lock has expired but the counter is still at the threshold,
	// so a single further failure locks the account again immediately.
	_, err := service.Authenticate(ctx, user.Email, "wrong-password")
	var locked ErrAccountLocked
	require.ErrorAs(t, err, &locked)
	require.Equal(t, after.Add(LockDuration), locked.Until)

	stored, err := store.GetByID(ctx, user.ID)
	require.NoError(t, err)
	require.Equal(t, LockThreshold+1, stored.FailedLoginAttempts)
}

func TestAuthenticateSuccessResetsLockState(t *testing.T) {
	service, store, user := newTestService(t)

	ctx := context.Background()
	_, _ = service.Authenticate(ctx, user.Email, "wrong-password")
	_, _ = service.Authenticate(ctx, user.Email, "wrong-password")

	session, err := service.Authenticate(ctx, user.Email, testPassword)
	require.NoError(t, err)
	require.Equal(t, "Bearer", session.TokenType)
	require.Equal(t, user.ID, session.User.ID)

	stored, err := store.GetByID(ctx, user.ID)
	require.NoError(t, err)
	require.Zero(t, stored.FailedLoginAttempts)
	require.Nil(t, stored.LockedUntil)
}

func TestAuthenticateIssuesVerifiableToken(t *testing.T) {
	service, _, user := newTestService(t)

	session, err := service.Authenticate(context.Background(), user.Email, testPassword)
	require.NoError(t, err)

	parsed, err := jwt.Parse(session.Token, func(token *jwt.Token) (any, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return []byte("test-secret"), nil
	})
	require.NoError(t, err)

	claims, ok := parsed.Claims.(jwt.MapClaims)
	require.True(t, ok)
	require.Equal(t, user.ID, claims["sub"])
	require.Equal(t, string(authz.RoleUser), claims["role"])
	require.Equal(t, "access", claims["typ"])
}

func TestAuthenticateUnknownEmailWithholdsHint(t *testing.T) {
	service, _, _ := newTestService(t)

	_, err := service.Authenticate(context.Background(), "nobody@example.com", "whatever")
	var invalid ErrInvalidCredentials
	require.ErrorAs(t, err, &invalid)
	require.Equal(t, -1, invalid.AttemptsRemaining)
}

func TestUnlockClearsLockAndCounter(t *testing.T) {
	service, store, user := newTestService(t)

	ctx := context.Background()
	for i := 0; i < LockThreshold; i++ {
		_, _ = service.Authenticate(ctx, user.Email, "wrong-password")
	}

	require.NoError(t, service.Unlock(ctx, user.ID))

	stored, err := store.GetByID(ctx, user.ID)
	require.NoError(t, err)
	require.Zero(t, stored.FailedLoginAttempts)
	require.Nil(t, stored.LockedUntil)

	_, err = service.Authenticate(ctx, user.Email, testPassword)
	require.NoError(t, err)
}

func TestRegisterDefaultsToUserRole(t *testing.T) {
	store := newFakeUserStore()
	service := NewService(store, "test-secret")

	session, err := service.Register(context.Background(), NewUser{
		Name:     "Grace Hopper",
		Email:    "Grace@Example.com",
		Password: "C0mpiler$",
	})
	require.NoError(t, err)
	require.Equal(t, authz.RoleUser, session.User.Role)
	require.Equal(t, "grace@example.com", session.User.Email)
}

func TestRegisterRejectsWeakPassword(t *testing.T) {
	store := newFakeUserStore()
	service := NewService(store, "test-secret")

	_, err := service.Register(context.Background(), NewUser{
		Name:     "Grace Hopper",
		Email:    "grace@example.com",
		Password: "short",
	})

	var weak ErrWeakPassword
	require.ErrorAs(t, err, &weak)
	require.NotEmpty(t, weak.Problems)
}

func TestRegisterRejectsDuplicateEmail(t *testing.T) {
	service, _, user := newTestService(t)

	_, err := service.Register(context.Background(), NewUser{
		Name:     "Ada Again",
		Email:    user.Email,
		Password: testPassword,
	})
	require.ErrorIs(t, err, ErrEmailTaken)
}

func TestEnsureAdmin(t *testing.T) {
	ctx := context.Background()

	t.Run("no credentials is a no-op", func(t *testing.T) {
		store := newFakeUserStore()
		service := NewService(store, "test-secret")

		require.NoError(t, service.EnsureAdmin(ctx, "", "", ""))
		require.Empty(t, store.users)
	})

	t.Run("partial credentials fail", func(t *testing.T) {
		store := newFakeUserStore()
		service := NewService(store, "test-secret")

		require.Error(t, service.EnsureAdmin(ctx, "", "root@example.com", ""))
	})

	t.Run("seeds the first admin", func(t *testing.T) {
		store := newFakeUserStore()
		service := NewService(store, "test-secret")

		require.NoError(t, service.EnsureAdmin(ctx, "Root", "root@example.com", "R00t$ecret"))

		exists, err := store.AdminExists(ctx)
		require.NoError(t, err)
		require.True(t, exists)
	})

	t.Run("skips when an admin exists", func(t *testing.T) {
		store := newFakeUserStore()
		service := NewService(store, "test-secret")

		_, err := store.Create(ctx, NewUser{Name: "Root", Email: "root@example.com", Password: "R00t$ecret", Role: authz.RoleAdmin})
		require.NoError(t, err)

		require.NoError(t, service.EnsureAdmin(ctx, "Other", "other@example.com", "0ther$ecret"))

		_, err = store.GetByEmail(ctx, "other@example.com")
		require.ErrorIs(t, err, sql.ErrNoRows)
	})
}

func TestPasswordProblems(t *testing.T) {
	tests := []struct {
		password string
		want     int
	}{
		{password: "Sup3r$ecret", want: 0},
		{password: "short", want: 3},
		{password: "lettersonly", want: 2},
		{password: "12345678", want: 2},
		{password: "letters123", want: 1},
	}

	for _, tc := range tests {
		t.Run(tc.password, func(t *testing.T) {
			if got := PasswordProblems(tc.password); len(got) != tc.want {
				t.Fatalf("PasswordProblems(%q) = %v, want %d problems", tc.password, got, tc.want)
			}
		})
	}
}

var _ UserStore = (*fakeUserStore)(nil)

var errStoreDown = errors.New("store down")

type failingUserStore struct {
	fakeUserStore
}

func (f *failingUserStore) GetByEmail(context.Context, string) (User, error) {
	return User{}, errStoreDown
}

func TestAuthenticateSurfacesStoreErrors(t *testing.T) {
	service := NewService(&failingUserStore{}, "test-secret")

	_, err := service.Authenticate(context.Background(), "ada@example.com", testPassword)
	require.ErrorIs(t, err, errStoreDown)
}
