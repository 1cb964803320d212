package auth

import "time"

const (
	UserStatusActive   = "active"
	UserStatusDisabled = "disabled"
)

// User represents a registered account.
type User struct {
	ID              string
	Email           string
	Name            string
	PasswordHash    string
	IsEmailVerified bool
	Status          string
	LastLoginAt     time.Time
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// PublicUser is the caller-facing projection of a User. The password hash is
// never part of it.
type PublicUser struct {
	ID              string `json:"id"`
	Email           string `json:"email"`
	Name            string `json:"name,omitempty"`
	IsEmailVerified bool   `json:"is_email_verified"`
}

// Public returns the fields of the user that are safe to expose.
func (u *User) Public() PublicUser {
	return PublicUser{
		ID:              u.ID,
		Email:           u.Email,
		Name:            u.Name,
		IsEmailVerified: u.IsEmailVerified,
	}
}

// RefreshToken is a persisted long-lived session credential. Only the SHA-256
// hash of the opaque token value is stored.
type RefreshToken struct {
	ID        string
	UserID    string
	TokenHash string
	UserAgent string
	IP        string
	ExpiresAt time.Time
	CreatedAt time.Time
	Revoked   bool
}

// SingleUseToken backs the password-reset and email-verification flows.
// It is valid until expiry or first successful redemption.
type SingleUseToken struct {
	ID        string
	UserID    string
	TokenHash string
	ExpiresAt time.Time
	CreatedAt time.Time
	UsedAt    time.Time
}

// Consumed reports whether the token has already been redeemed.
func (t *SingleUseToken) Consumed() bool { return !t.UsedAt.IsZero() }

// RequestMeta carries informational client metadata recorded with a session.
type RequestMeta struct {
	UserAgent string
	IP        string
}

// Session is the result of a successful login.
type Session struct {
	User             PublicUser
	AccessToken      string
	RefreshToken     string
	AccessExpiresAt  time.Time
	RefreshExpiresAt time.Time
}
