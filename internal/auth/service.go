package auth

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/bcrypt"

	"tracker-api/internal/authz"
)

const defaultTokenTTL = 24 * time.Hour

// UserStore is the credential store the authentication service runs
// against. *Repository implements it; tests use an in-memory fake.
type UserStore interface {
	GetByEmail(ctx context.Context, email string) (User, error)
	GetByID(ctx context.Context, id string) (User, error)
	Create(ctx context.Context, input NewUser) (User, error)
	RecordLoginFailure(ctx context.Context, id string, threshold int, lockDuration time.Duration, now time.Time) (User, error)
	ResetLockState(ctx context.Context, id string) error
	AdminExists(ctx context.Context) (bool, error)
}

type Service struct {
	store     UserStore
	jwtSecret []byte
	tokenTTL  time.Duration
	now       func() time.Time
}

func NewService(store UserStore, jwtSecret string) *Service {
	return &Service{
		store:     store,
		jwtSecret: []byte(jwtSecret),
		tokenTTL:  defaultTokenTTL,
		now:       time.Now,
	}
}

func (s *Service) WithTokenTTL(ttl time.Duration) {
	if ttl > 0 {
		s.tokenTTL = ttl
	}
}

// Authenticate runs one login attempt. Order is fixed: active lock
// first, then password compare; only a mismatch records a failure, only
// a match resets the counter. The two paths are mutually exclusive per
// attempt.
func (s *Service) Authenticate(ctx context.Context, email, password string) (Session, error) {
	email = strings.TrimSpace(strings.ToLower(email))
	if email == "" || password == "" {
		return Session{}, ErrInvalidCredentials{AttemptsRemaining: -1}
	}

	now := s.now().UTC()

	user, err := s.store.GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			// No account, nothing to count against; the hint is
			// withheld so probes can't tell missing from wrong.
			return Session{}, ErrInvalidCredentials{AttemptsRemaining: -1}
		}
		return Session{}, err
	}

	if Locked(user, now) {
		return Session{}, ErrAccountLocked{Until: *user.LockedUntil}
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		updated, recErr := s.store.RecordLoginFailure(ctx, user.ID, LockThreshold, LockDuration, now)
		if recErr != nil {
			return Session{}, recErr
		}
		if Locked(updated, now) {
			return Session{}, ErrAccountLocked{Until: *updated.LockedUntil}
		}
		remaining := LockThreshold - updated.FailedLoginAttempts
		if remaining < 0 {
			remaining = 0
		}
		return Session{}, ErrInvalidCredentials{AttemptsRemaining: remaining}
	}

	if err := s.store.ResetLockState(ctx, user.ID); err != nil {
		return Session{}, err
	}

	return s.issueSession(user)
}

// Register creates an account and signs the caller straight in.
func (s *Service) Register(ctx context.Context, input NewUser) (Session, error) {
	input.Name = strings.TrimSpace(input.Name)
	input.Email = strings.TrimSpace(strings.ToLower(input.Email))
	if input.Role == "" {
		input.Role = authz.RoleUser
	}

	if err := ValidateNewUser(input); err != nil {
		return Session{}, err
	}

	user, err := s.store.Create(ctx, input)
	if err != nil {
		return Session{}, err
	}

	return s.issueSession(user)
}

// Unlock resets the target account's failure counter and clears any
// lock. Idempotent; unlocking an unlocked account is a no-op.
func (s *Service) Unlock(ctx context.Context, userID string) error {
	return s.store.ResetLockState(ctx, userID)
}

// EnsureAdmin seeds an administrator account from the environment on
// startup. A no-op when no credentials are configured or an admin
// already exists.
func (s *Service) EnsureAdmin(ctx context.Context, name, email, password string) error {
	name = strings.TrimSpace(name)
	email = strings.TrimSpace(strings.ToLower(email))
	password = strings.TrimSpace(password)

	if email == "" && password == "" {
		return nil
	}
	if email == "" || password == "" {
		return fmt.Errorf("ADMIN_EMAIL and ADMIN_PASSWORD are required together")
	}
	if name == "" {
		name = "Administrator"
	}

	exists, err := s.store.AdminExists(ctx)
	if err != nil {
		return err
	}
	if exists {
		return nil
	}

	_, err = s.store.Create(ctx, NewUser{
		Name:     name,
		Email:    email,
		Password: password,
		Role:     authz.RoleAdmin,
	})
	if err != nil && !errors.Is(err, ErrEmailTaken) {
		return fmt.Errorf("seed admin: %w", err)
	}

	return nil
}

func (s *Service) issueSession(user User) (Session, error) {
	now := s.now().UTC()
	claims := jwt.MapClaims{
		"sub":   user.ID,
		"name":  user.Name,
		"email": user.Email,
		"role":  string(user.Role),
		"iat":   now.Unix(),
		"exp":   now.Add(s.tokenTTL).Unix(),
		"typ":   "access",
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	encoded, err := token.SignedString(s.jwtSecret)
	if err != nil {
		return Session{}, fmt.Errorf("sign jwt: %w", err)
	}

	return Session{
		Token:     encoded,
		TokenType: "Bearer",
		ExpiresIn: int64(s.tokenTTL.Seconds()),
		User:      user.Public(),
	}, nil
}

var (
	hasLetter = regexp.MustCompile(`[a-zA-Z]`)
	hasDigit  = regexp.MustCompile(`\d`)
	hasSymbol = regexp.MustCompile(`[!@#$%^&*()_+\-=\[\]{};':"\\|,.<>/?]`)
)

// ErrWeakPassword lists every unmet password rule so clients can show
// them all at once.
type ErrWeakPassword struct {
	Problems []string
}

func (e ErrWeakPassword) Error() string {
	return "password does not meet policy: " + strings.Join(e.Problems, "; ")
}

// PasswordProblems checks the password policy: at least 8 characters
// with a letter, a digit and a symbol. Empty result means acceptable.
func PasswordProblems(password string) []string {
	var problems []string
	if len(password) < 8 {
		problems = append(problems, "must be at least 8 characters")
	}
	if !hasLetter.MatchString(password) {
		problems = append(problems, "must contain a letter")
	}
	if !hasDigit.MatchString(password) {
		problems = append(problems, "must contain a digit")
	}
	if !hasSymbol.MatchString(password) {
		problems = append(problems, "must contain a symbol")
	}
	return problems
}

// ErrInvalidInput marks malformed registration input; the handler maps
// it to a 400.
type ErrInvalidInput struct {
	Reason string
}

func (e ErrInvalidInput) Error() string {
	return e.Reason
}

// ValidateNewUser checks account-creation input shared by registration
// and the admin user-management surface.
func ValidateNewUser(input NewUser) error {
	if len(input.Name) < 2 {
		return ErrInvalidInput{Reason: "name must be at least 2 characters"}
	}
	if !strings.Contains(input.Email, "@") {
		return ErrInvalidInput{Reason: "email format is invalid"}
	}
	if !input.Role.Valid() {
		return ErrInvalidInput{Reason: "role must be admin or user"}
	}
	if problems := PasswordProblems(input.Password); len(problems) > 0 {
		return ErrWeakPassword{Problems: problems}
	}
	return nil
}
