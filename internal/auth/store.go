package auth

import (
	"context"
	"time"
)

// Store describes the persistence operations required by the credential
// lifecycle. Implementations must enforce a unique constraint on user email
// at the storage layer; the check-then-insert in Register is not sufficient
// under concurrent duplicate registrations.
type Store interface {
	Users(ctx context.Context) UserStore
	RefreshTokens(ctx context.Context) RefreshTokenStore
	PasswordResetTokens(ctx context.Context) SingleUseTokenStore
	EmailVerificationTokens(ctx context.Context) SingleUseTokenStore
	Roles(ctx context.Context) RoleStore

	// InTx runs fn against a Store bound to a single transaction. Either
	// every write fn performs commits or none do.
	InTx(ctx context.Context, fn func(Store) error) error
}

// UserStore manages user records.
type UserStore interface {
	Create(ctx context.Context, u *User) error
	Find(ctx context.Context, id string) (*User, error)
	FindByEmail(ctx context.Context, email string) (*User, error)
	UpdatePassword(ctx context.Context, userID, passwordHash string) error
	MarkEmailVerified(ctx context.Context, userID string) error
	TouchLastLogin(ctx context.Context, userID string, at time.Time) error
}

// RefreshTokenStore manages session refresh tokens.
type RefreshTokenStore interface {
	Create(ctx context.Context, tok *RefreshToken) error
	FindByHash(ctx context.Context, tokenHash string) (*RefreshToken, error)
	// Revoke marks a single token revoked. Revoking an already revoked
	// token succeeds.
	Revoke(ctx context.Context, id string) error
	// RevokeByUser marks every token owned by the user revoked.
	RevokeByUser(ctx context.Context, userID string) error
}

// SingleUseTokenStore manages password-reset and email-verification tokens.
// The two flows share the shape; they differ only in table and expiry.
type SingleUseTokenStore interface {
	Create(ctx context.Context, tok *SingleUseToken) error
	// Consume atomically marks the token used iff it is unconsumed and
	// unexpired, and returns the row. Concurrent redemptions of the same
	// token see exactly one success; the rest get ErrNotFound.
	Consume(ctx context.Context, tokenHash string, now time.Time) (*SingleUseToken, error)
	// InvalidateByUser consumes every outstanding token of this kind for
	// the user, so a reissue leaves a single redeemable token.
	InvalidateByUser(ctx context.Context, userID string, now time.Time) error
}

// RoleStore manages role assignments.
type RoleStore interface {
	Assign(ctx context.Context, userID, roleKey string) error
	ListByUser(ctx context.Context, userID string) ([]string, error)
}
