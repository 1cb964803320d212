package auth

import "errors"

var (
	// ErrInvalidInput indicates a malformed request the caller can fix.
	ErrInvalidInput = errors.New("auth: invalid input")
	// ErrEmailExists indicates a registration conflict on the email address.
	ErrEmailExists = errors.New("auth: email already registered")
	// ErrInvalidCredentials covers both unknown email and wrong password.
	// The two cases are deliberately indistinguishable.
	ErrInvalidCredentials = errors.New("auth: invalid credentials")
	// ErrAccountDisabled is returned when credentials match but the account
	// is not active.
	ErrAccountDisabled = errors.New("auth: account disabled")
	// ErrInvalidToken indicates an unknown refresh token.
	ErrInvalidToken = errors.New("auth: invalid token")
	// ErrTokenExpired indicates a refresh token past its expiry.
	ErrTokenExpired = errors.New("auth: token expired")
	// ErrTokenRevoked indicates a refresh token that was revoked.
	ErrTokenRevoked = errors.New("auth: token revoked")
	// ErrInvalidOrExpiredToken covers single-use tokens that are unknown,
	// expired, or already consumed. The three cases are deliberately
	// indistinguishable.
	ErrInvalidOrExpiredToken = errors.New("auth: invalid or expired token")
	// ErrUnauthenticated indicates a missing, malformed, or expired access
	// token.
	ErrUnauthenticated = errors.New("auth: unauthenticated")
	// ErrNotFound indicates a missing record.
	ErrNotFound = errors.New("auth: not found")
	// ErrUpstreamUnavailable indicates the store or mailer timed out; the
	// caller may retry.
	ErrUpstreamUnavailable = errors.New("auth: upstream unavailable")
)
