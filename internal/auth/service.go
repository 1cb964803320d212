package auth

import (
	"context"
	"errors"
	"log/slog"
	"net/mail"
	"strings"
	"time"
)

const (
	defaultAccessTTL      = 15 * time.Minute
	defaultRefreshTTL     = 30 * 24 * time.Hour
	defaultResetTTL       = time.Hour
	defaultVerifyTTL      = 24 * time.Hour
	defaultMinPasswordLen = 8
	defaultRoleKey        = "user"
)

// MailKind selects the template a Mailer renders around a token.
type MailKind string

const (
	MailEmailVerification MailKind = "email_verification"
	MailPasswordReset     MailKind = "password_reset"
)

// Mailer delivers a single-use token to a destination address. Delivery is
// fire-and-forget from the service's point of view: failures are logged and
// never roll back the state change that produced the token.
type Mailer interface {
	Send(ctx context.Context, to, token string, kind MailKind) error
}

// Service orchestrates the credential and token lifecycle: registration,
// login, access/refresh issuance, revocation, and the two single-use token
// flows. It holds no per-user state; every check re-reads the store.
type Service struct {
	store  Store
	signer *Signer
	mailer Mailer
	log    *slog.Logger
	now    func() time.Time

	accessTTL      time.Duration
	refreshTTL     time.Duration
	resetTTL       time.Duration
	verifyTTL      time.Duration
	storeTimeout   time.Duration
	minPasswordLen int
	defaultRole    string
}

// ServiceOption configures Service behavior.
type ServiceOption func(*Service)

// WithAccessTTL configures access token lifetime.
func WithAccessTTL(ttl time.Duration) ServiceOption {
	return func(s *Service) {
		if ttl > 0 {
			s.accessTTL = ttl
		}
	}
}

// WithRefreshTTL configures refresh token lifetime.
func WithRefreshTTL(ttl time.Duration) ServiceOption {
	return func(s *Service) {
		if ttl > 0 {
			s.refreshTTL = ttl
		}
	}
}

// WithResetTTL configures password-reset token lifetime.
func WithResetTTL(ttl time.Duration) ServiceOption {
	return func(s *Service) {
		if ttl > 0 {
			s.resetTTL = ttl
		}
	}
}

// WithVerificationTTL configures email-verification token lifetime.
func WithVerificationTTL(ttl time.Duration) ServiceOption {
	return func(s *Service) {
		if ttl > 0 {
			s.verifyTTL = ttl
		}
	}
}

// WithStoreTimeout bounds how long a single operation may spend on store
// calls. Exceeding it fails the operation with ErrUpstreamUnavailable.
func WithStoreTimeout(d time.Duration) ServiceOption {
	return func(s *Service) {
		if d > 0 {
			s.storeTimeout = d
		}
	}
}

// WithMinPasswordLength configures the password policy minimum.
func WithMinPasswordLength(n int) ServiceOption {
	return func(s *Service) {
		if n > 0 {
			s.minPasswordLen = n
		}
	}
}

// WithDefaultRole overrides the role assigned at registration.
func WithDefaultRole(key string) ServiceOption {
	return func(s *Service) {
		if strings.TrimSpace(key) != "" {
			s.defaultRole = key
		}
	}
}

// WithClock overrides the time source (useful for tests).
func WithClock(fn func() time.Time) ServiceOption {
	return func(s *Service) {
		if fn != nil {
			s.now = fn
		}
	}
}

// WithLogger overrides the structured logger.
func WithLogger(l *slog.Logger) ServiceOption {
	return func(s *Service) {
		if l != nil {
			s.log = l
		}
	}
}

// NewService constructs the Service with its collaborators.
func NewService(store Store, signer *Signer, mailer Mailer, opts ...ServiceOption) (*Service, error) {
	if store == nil {
		return nil, errors.New("auth: store is required")
	}
	if signer == nil {
		return nil, errors.New("auth: signer is required")
	}
	if mailer == nil {
		return nil, errors.New("auth: mailer is required")
	}
	svc := &Service{
		store:          store,
		signer:         signer,
		mailer:         mailer,
		log:            slog.Default(),
		now:            time.Now,
		accessTTL:      defaultAccessTTL,
		refreshTTL:     defaultRefreshTTL,
		resetTTL:       defaultResetTTL,
		verifyTTL:      defaultVerifyTTL,
		minPasswordLen: defaultMinPasswordLen,
		defaultRole:    defaultRoleKey,
	}
	for _, opt := range opts {
		opt(svc)
	}
	return svc, nil
}

// RegisterParams holds registration input. Password is transient plaintext.
type RegisterParams struct {
	Email    string
	Password string
	Name     string
}

// Register creates a user, assigns the default role, and issues an email
// verification token. It does not issue a login session; a Login call is
// required afterward.
func (s *Service) Register(ctx context.Context, params RegisterParams) (PublicUser, error) {
	email, err := normalizeEmail(params.Email)
	if err != nil {
		return PublicUser{}, ErrInvalidInput
	}
	if err := s.checkPasswordPolicy(params.Password); err != nil {
		return PublicUser{}, err
	}
	name := strings.TrimSpace(params.Name)
	if name == "" {
		name = email[:strings.IndexByte(email, '@')]
	}

	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	// Early conflict check; the store's unique constraint closes the race
	// between concurrent registrations of the same email.
	if _, err := s.store.Users(ctx).FindByEmail(ctx, email); err == nil {
		return PublicUser{}, ErrEmailExists
	} else if !errors.Is(err, ErrNotFound) {
		return PublicUser{}, storeErr(err)
	}

	hash, err := HashPassword(params.Password)
	if err != nil {
		return PublicUser{}, err
	}
	user := &User{
		Email:        email,
		Name:         name,
		PasswordHash: hash,
		Status:       UserStatusActive,
	}
	if err := s.store.Users(ctx).Create(ctx, user); err != nil {
		return PublicUser{}, storeErr(err)
	}
	if err := s.store.Roles(ctx).Assign(ctx, user.ID, s.defaultRole); err != nil {
		return PublicUser{}, storeErr(err)
	}
	if err := s.issueVerification(ctx, user); err != nil {
		return PublicUser{}, err
	}

	s.log.InfoContext(ctx, "user registered", "user_id", user.ID)
	return user.Public(), nil
}

// Login authenticates the credentials and issues a fresh session. Every
// successful login creates a new refresh-token row, so devices hold
// independently revocable sessions.
func (s *Service) Login(ctx context.Context, email, password string, meta RequestMeta) (*Session, error) {
	email = strings.TrimSpace(strings.ToLower(email))
	if email == "" || password == "" {
		return nil, ErrInvalidInput
	}
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	user, err := s.store.Users(ctx).FindByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			// Burn a hash comparison so the miss is not observable
			// through response timing.
			verifyDummy(password)
			return nil, ErrInvalidCredentials
		}
		return nil, storeErr(err)
	}
	if err := VerifyPassword(user.PasswordHash, password); err != nil {
		return nil, ErrInvalidCredentials
	}
	if user.Status != UserStatusActive {
		return nil, ErrAccountDisabled
	}

	session, err := s.openSession(ctx, user, meta)
	if err != nil {
		return nil, err
	}
	if err := s.store.Users(ctx).TouchLastLogin(ctx, user.ID, s.now().UTC()); err != nil {
		return nil, storeErr(err)
	}
	s.log.InfoContext(ctx, "login succeeded", "user_id", user.ID)
	return session, nil
}

func (s *Service) openSession(ctx context.Context, user *User, meta RequestMeta) (*Session, error) {
	roles, err := s.store.Roles(ctx).ListByUser(ctx, user.ID)
	if err != nil {
		return nil, storeErr(err)
	}
	access, accessExp, err := s.signer.Sign(user, roles, s.accessTTL)
	if err != nil {
		return nil, err
	}
	refresh, err := NewOpaqueToken()
	if err != nil {
		return nil, err
	}
	rec := &RefreshToken{
		UserID:    user.ID,
		TokenHash: HashToken(refresh),
		UserAgent: meta.UserAgent,
		IP:        meta.IP,
		ExpiresAt: s.now().UTC().Add(s.refreshTTL),
	}
	if err := s.store.RefreshTokens(ctx).Create(ctx, rec); err != nil {
		return nil, storeErr(err)
	}
	return &Session{
		User:             user.Public(),
		AccessToken:      access,
		RefreshToken:     refresh,
		AccessExpiresAt:  accessExp,
		RefreshExpiresAt: rec.ExpiresAt,
	}, nil
}

// RefreshAccessToken mints a new access token against a stored refresh
// token. The refresh token itself is not rotated; it stays valid until its
// own expiry or explicit revocation.
func (s *Service) RefreshAccessToken(ctx context.Context, refreshToken string) (string, time.Time, error) {
	refreshToken = strings.TrimSpace(refreshToken)
	if refreshToken == "" {
		return "", time.Time{}, ErrInvalidToken
	}
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	rec, err := s.store.RefreshTokens(ctx).FindByHash(ctx, HashToken(refreshToken))
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return "", time.Time{}, ErrInvalidToken
		}
		return "", time.Time{}, storeErr(err)
	}
	if rec.Revoked {
		return "", time.Time{}, ErrTokenRevoked
	}
	if !s.now().Before(rec.ExpiresAt) {
		return "", time.Time{}, ErrTokenExpired
	}

	// Claims come from the current user row, never from a cache.
	user, err := s.store.Users(ctx).Find(ctx, rec.UserID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return "", time.Time{}, ErrInvalidToken
		}
		return "", time.Time{}, storeErr(err)
	}
	if user.Status != UserStatusActive {
		// Disabled accounts cannot mint new access tokens.
		return "", time.Time{}, ErrInvalidToken
	}
	roles, err := s.store.Roles(ctx).ListByUser(ctx, user.ID)
	if err != nil {
		return "", time.Time{}, storeErr(err)
	}
	return s.signer.Sign(user, roles, s.accessTTL)
}

// Logout revokes the given refresh token when it belongs to the caller, or
// every session of the caller when no token is supplied. It is idempotent.
func (s *Service) Logout(ctx context.Context, userID, refreshToken string) error {
	if strings.TrimSpace(userID) == "" {
		return ErrUnauthenticated
	}
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	refreshToken = strings.TrimSpace(refreshToken)
	if refreshToken == "" {
		if err := s.store.RefreshTokens(ctx).RevokeByUser(ctx, userID); err != nil {
			return storeErr(err)
		}
		s.log.InfoContext(ctx, "all sessions revoked", "user_id", userID)
		return nil
	}
	rec, err := s.store.RefreshTokens(ctx).FindByHash(ctx, HashToken(refreshToken))
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil
		}
		return storeErr(err)
	}
	// Ownership check: a guessed token value must not revoke another
	// user's session, and must not reveal that it exists.
	if rec.UserID != userID {
		return nil
	}
	if err := s.store.RefreshTokens(ctx).Revoke(ctx, rec.ID); err != nil {
		return storeErr(err)
	}
	return nil
}

// RequestPasswordReset issues a reset token when the email is registered.
// The response is identical either way to prevent account enumeration.
func (s *Service) RequestPasswordReset(ctx context.Context, email string) error {
	email, err := normalizeEmail(email)
	if err != nil {
		return ErrInvalidInput
	}
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	user, err := s.store.Users(ctx).FindByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil
		}
		return storeErr(err)
	}

	token, err := NewOpaqueToken()
	if err != nil {
		return err
	}
	now := s.now().UTC()
	err = s.store.InTx(ctx, func(tx Store) error {
		if err := tx.PasswordResetTokens(ctx).InvalidateByUser(ctx, user.ID, now); err != nil {
			return err
		}
		return tx.PasswordResetTokens(ctx).Create(ctx, &SingleUseToken{
			UserID:    user.ID,
			TokenHash: HashToken(token),
			ExpiresAt: now.Add(s.resetTTL),
		})
	})
	if err != nil {
		return storeErr(err)
	}
	s.dispatchMail(ctx, user.Email, token, MailPasswordReset)
	return nil
}

// ResetPassword redeems a reset token, overwrites the password hash, and
// revokes every session of the owning user. The three writes commit as one
// transaction.
func (s *Service) ResetPassword(ctx context.Context, token, newPassword string) error {
	token = strings.TrimSpace(token)
	if token == "" {
		return ErrInvalidInput
	}
	if err := s.checkPasswordPolicy(newPassword); err != nil {
		return err
	}
	hash, err := HashPassword(newPassword)
	if err != nil {
		return err
	}
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	now := s.now().UTC()
	var userID string
	err = s.store.InTx(ctx, func(tx Store) error {
		rec, err := tx.PasswordResetTokens(ctx).Consume(ctx, HashToken(token), now)
		if err != nil {
			return err
		}
		userID = rec.UserID
		if err := tx.Users(ctx).UpdatePassword(ctx, rec.UserID, hash); err != nil {
			return err
		}
		return tx.RefreshTokens(ctx).RevokeByUser(ctx, rec.UserID)
	})
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return ErrInvalidOrExpiredToken
		}
		return storeErr(err)
	}
	s.log.InfoContext(ctx, "password reset completed", "user_id", userID)
	return nil
}

// ResendVerification issues a fresh verification token for an unverified
// account. The response never reveals whether the email is registered.
func (s *Service) ResendVerification(ctx context.Context, email string) error {
	email, err := normalizeEmail(email)
	if err != nil {
		return ErrInvalidInput
	}
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	user, err := s.store.Users(ctx).FindByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil
		}
		return storeErr(err)
	}
	if user.IsEmailVerified {
		return nil
	}
	return s.issueVerification(ctx, user)
}

// ConfirmEmailVerification redeems a verification token and flips the
// owning user's verified flag. A second redemption of the same token fails
// cleanly with ErrInvalidOrExpiredToken.
func (s *Service) ConfirmEmailVerification(ctx context.Context, token string) error {
	token = strings.TrimSpace(token)
	if token == "" {
		return ErrInvalidInput
	}
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	now := s.now().UTC()
	var userID string
	err := s.store.InTx(ctx, func(tx Store) error {
		rec, err := tx.EmailVerificationTokens(ctx).Consume(ctx, HashToken(token), now)
		if err != nil {
			return err
		}
		userID = rec.UserID
		return tx.Users(ctx).MarkEmailVerified(ctx, rec.UserID)
	})
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return ErrInvalidOrExpiredToken
		}
		return storeErr(err)
	}
	s.log.InfoContext(ctx, "email verified", "user_id", userID)
	return nil
}

// GetProfile returns the public fields of the user, re-read from the store.
func (s *Service) GetProfile(ctx context.Context, userID string) (PublicUser, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	user, err := s.store.Users(ctx).Find(ctx, userID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return PublicUser{}, ErrNotFound
		}
		return PublicUser{}, storeErr(err)
	}
	return user.Public(), nil
}

// Authenticate validates a bearer access token and returns its claims. The
// store is not consulted; the signed claims are trusted for the token's
// lifetime, which is why the access TTL stays short.
func (s *Service) Authenticate(token string) (*Claims, error) {
	return s.signer.Verify(token)
}

func (s *Service) issueVerification(ctx context.Context, user *User) error {
	token, err := NewOpaqueToken()
	if err != nil {
		return err
	}
	now := s.now().UTC()
	err = s.store.InTx(ctx, func(tx Store) error {
		if err := tx.EmailVerificationTokens(ctx).InvalidateByUser(ctx, user.ID, now); err != nil {
			return err
		}
		return tx.EmailVerificationTokens(ctx).Create(ctx, &SingleUseToken{
			UserID:    user.ID,
			TokenHash: HashToken(token),
			ExpiresAt: now.Add(s.verifyTTL),
		})
	})
	if err != nil {
		return storeErr(err)
	}
	s.dispatchMail(ctx, user.Email, token, MailEmailVerification)
	return nil
}

// withTimeout bounds an operation's store work by the configured store
// timeout. A zero timeout leaves the caller's context untouched.
func (s *Service) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if s.storeTimeout <= 0 {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, s.storeTimeout)
}

func (s *Service) dispatchMail(ctx context.Context, to, token string, kind MailKind) {
	if err := s.mailer.Send(ctx, to, token, kind); err != nil {
		s.log.ErrorContext(ctx, "mail dispatch failed", "kind", string(kind), "error", err)
	}
}

func (s *Service) checkPasswordPolicy(password string) error {
	if len(password) < s.minPasswordLen {
		return ErrInvalidInput
	}
	return nil
}

// normalizeEmail canonicalizes the address: name-addr forms like
// "Bob <bob@x.com>" reduce to the bare address before lowercasing, so the
// stored unique email never carries display-name decoration.
func normalizeEmail(email string) (string, error) {
	email = strings.TrimSpace(email)
	if email == "" {
		return "", errors.New("email is required")
	}
	addr, err := mail.ParseAddress(email)
	if err != nil {
		return "", err
	}
	return strings.ToLower(addr.Address), nil
}

// storeErr translates infrastructure failures into the caller-facing
// taxonomy. Timeouts and cancellations surface as retryable upstream
// errors; anything else passes through for boundary classification.
func storeErr(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return ErrUpstreamUnavailable
	}
	return err
}
