package auth

import (
	"time"

	"tracker-api/internal/authz"
)

// User is a full account row, lock state included. PasswordHash never
// leaves this package.
type User struct {
	ID                  string
	Name                string
	Email               string
	PasswordHash        string
	Role                authz.Role
	FailedLoginAttempts int
	LockedUntil         *time.Time
	CreatedAt           time.Time
}

// Actor converts the account into the identity the authorization
// policy works with.
func (u User) Actor() authz.Actor {
	return authz.Actor{ID: u.ID, Name: u.Name, Email: u.Email, Role: u.Role}
}

// PublicUser is the representation returned to clients.
type PublicUser struct {
	ID        string     `json:"id"`
	Name      string     `json:"name"`
	Email     string     `json:"email"`
	Role      authz.Role `json:"role"`
	CreatedAt time.Time  `json:"created_at"`
}

func (u User) Public() PublicUser {
	return PublicUser{
		ID:        u.ID,
		Name:      u.Name,
		Email:     u.Email,
		Role:      u.Role,
		CreatedAt: u.CreatedAt,
	}
}

// NewUser is the input for account creation; Password is plain text and
// is hashed at the storage boundary.
type NewUser struct {
	Name     string
	Email    string
	Password string
	Role     authz.Role
}

// Session is the login/register response payload.
type Session struct {
	Token     string     `json:"token"`
	TokenType string     `json:"token_type"`
	ExpiresIn int64      `json:"expires_in"`
	User      PublicUser `json:"user"`
}
