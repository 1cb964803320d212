package auth

import (
	"errors"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// Claims represents the signed identity claims carried by an access token.
type Claims struct {
	Email string   `json:"email,omitempty"`
	Roles []string `json:"roles,omitempty"`
	jwt.RegisteredClaims
}

// Signer mints and verifies short-lived HS256 access tokens. It holds no
// state besides the secret, so verified claims are trusted for the token's
// lifetime without a store round-trip.
type Signer struct {
	secret []byte
	issuer string
	now    func() time.Time
}

// NewSigner constructs a Signer. The secret must be non-empty.
func NewSigner(secret, issuer string) (*Signer, error) {
	if strings.TrimSpace(secret) == "" {
		return nil, errors.New("auth: signing secret is required")
	}
	return &Signer{
		secret: []byte(secret),
		issuer: issuer,
		now:    time.Now,
	}, nil
}

// Sign issues an access token for the user with the given roles and TTL.
func (s *Signer) Sign(user *User, roles []string, ttl time.Duration) (string, time.Time, error) {
	if user == nil || user.ID == "" {
		return "", time.Time{}, errors.New("auth: user is required")
	}
	if ttl <= 0 {
		return "", time.Time{}, errors.New("auth: ttl must be greater than zero")
	}
	now := s.now().UTC()
	exp := now.Add(ttl)
	claims := Claims{
		Email: user.Email,
		Roles: roles,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    s.issuer,
			Subject:   user.ID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(exp),
			ID:        uuid.NewString(),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
	if err != nil {
		return "", time.Time{}, err
	}
	return signed, exp, nil
}

// Verify checks the token signature and expiry and returns its claims.
// Every failure mode maps to ErrUnauthenticated so callers cannot tell a
// malformed token from an expired one.
func (s *Signer) Verify(token string) (*Claims, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return nil, ErrUnauthenticated
	}
	parsed, err := jwt.ParseWithClaims(token, &Claims{}, func(t *jwt.Token) (any, error) {
		if t.Method != jwt.SigningMethodHS256 {
			return nil, ErrUnauthenticated
		}
		return s.secret, nil
	}, jwt.WithTimeFunc(func() time.Time { return s.now().UTC() }))
	if err != nil {
		return nil, ErrUnauthenticated
	}
	claims, ok := parsed.Claims.(*Claims)
	if !ok || !parsed.Valid {
		return nil, ErrUnauthenticated
	}
	if s.issuer != "" && claims.Issuer != s.issuer {
		return nil, ErrUnauthenticated
	}
	if strings.TrimSpace(claims.Subject) == "" {
		return nil, ErrUnauthenticated
	}
	return claims, nil
}
