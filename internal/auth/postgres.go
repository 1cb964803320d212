package auth

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/knowledgeshare/identity/internal/ids"
)

var _ Store = (*PGStore)(nil)

// dbtx is the subset of database/sql shared by *sql.DB and *sql.Tx, so the
// same sub-stores serve both plain calls and transactional ones.
type dbtx interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// PGStore implements Store using PostgreSQL.
type PGStore struct {
	db *sql.DB
	tx dbtx
}

func NewPGStore(db *sql.DB) *PGStore {
	return &PGStore{db: db, tx: db}
}

func (s *PGStore) Users(context.Context) UserStore { return &userStore{db: s.tx} }
func (s *PGStore) RefreshTokens(context.Context) RefreshTokenStore {
	return &refreshTokenStore{db: s.tx}
}
func (s *PGStore) PasswordResetTokens(context.Context) SingleUseTokenStore {
	return &singleUseTokenStore{db: s.tx, table: "password_reset_tokens"}
}
func (s *PGStore) EmailVerificationTokens(context.Context) SingleUseTokenStore {
	return &singleUseTokenStore{db: s.tx, table: "email_verification_tokens"}
}
func (s *PGStore) Roles(context.Context) RoleStore { return &roleStore{db: s.tx} }

// InTx runs fn against a store bound to a single transaction.
func (s *PGStore) InTx(ctx context.Context, fn func(Store) error) error {
	if s.db == nil {
		// Already inside a transaction; nested calls join it.
		return fn(s)
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	if err := fn(&PGStore{tx: tx}); err != nil {
		return err
	}
	return tx.Commit()
}

// User store ---------------------------------------------------------------
type userStore struct{ db dbtx }

func (s *userStore) Create(ctx context.Context, u *User) error {
	if u.ID == "" {
		u.ID = ids.New()
	}
	_, err := s.db.ExecContext(ctx,
		`insert into users(id, email, name, password_hash, is_email_verified, status)
		 values($1,$2,$3,$4,$5,$6)`,
		u.ID, u.Email, u.Name, u.PasswordHash, u.IsEmailVerified, u.Status,
	)
	if isUniqueViolation(err) {
		return ErrEmailExists
	}
	return err
}

const userColumns = `id, email, name, password_hash, is_email_verified, status, last_login_at, created_at, updated_at`

func scanUser(row *sql.Row) (*User, error) {
	var (
		u         User
		lastLogin sql.NullTime
	)
	err := row.Scan(&u.ID, &u.Email, &u.Name, &u.PasswordHash, &u.IsEmailVerified,
		&u.Status, &lastLogin, &u.CreatedAt, &u.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	if lastLogin.Valid {
		u.LastLoginAt = lastLogin.Time
	}
	return &u, nil
}

func (s *userStore) Find(ctx context.Context, id string) (*User, error) {
	return scanUser(s.db.QueryRowContext(ctx,
		`select `+userColumns+` from users where id=$1`, id))
}

func (s *userStore) FindByEmail(ctx context.Context, email string) (*User, error) {
	return scanUser(s.db.QueryRowContext(ctx,
		`select `+userColumns+` from users where email=$1`, email))
}

func (s *userStore) UpdatePassword(ctx context.Context, userID, passwordHash string) error {
	res, err := s.db.ExecContext(ctx,
		`update users set password_hash=$2, updated_at=now() where id=$1`,
		userID, passwordHash,
	)
	return requireRow(res, err)
}

func (s *userStore) MarkEmailVerified(ctx context.Context, userID string) error {
	res, err := s.db.ExecContext(ctx,
		`update users set is_email_verified=true, updated_at=now() where id=$1`,
		userID,
	)
	return requireRow(res, err)
}

func (s *userStore) TouchLastLogin(ctx context.Context, userID string, at time.Time) error {
	res, err := s.db.ExecContext(ctx,
		`update users set last_login_at=$2 where id=$1`,
		userID, at,
	)
	return requireRow(res, err)
}

// Refresh token store ------------------------------------------------------
type refreshTokenStore struct{ db dbtx }

func (s *refreshTokenStore) Create(ctx context.Context, tok *RefreshToken) error {
	if tok.ID == "" {
		tok.ID = ids.New()
	}
	_, err := s.db.ExecContext(ctx,
		`insert into refresh_tokens(id, user_id, token_hash, user_agent, ip, expires_at, revoked)
		 values($1,$2,$3,$4,$5,$6,false)`,
		tok.ID, tok.UserID, tok.TokenHash, tok.UserAgent, tok.IP, tok.ExpiresAt,
	)
	return err
}

func (s *refreshTokenStore) FindByHash(ctx context.Context, tokenHash string) (*RefreshToken, error) {
	row := s.db.QueryRowContext(ctx,
		`select id, user_id, token_hash, user_agent, ip, expires_at, created_at, revoked
		 from refresh_tokens where token_hash=$1`, tokenHash)
	var t RefreshToken
	err := row.Scan(&t.ID, &t.UserID, &t.TokenHash, &t.UserAgent, &t.IP,
		&t.ExpiresAt, &t.CreatedAt, &t.Revoked)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &t, nil
}

func (s *refreshTokenStore) Revoke(ctx context.Context, id string) error {
	_, err := s.db.ExecContext(ctx,
		`update refresh_tokens set revoked=true where id=$1`, id)
	return err
}

func (s *refreshTokenStore) RevokeByUser(ctx context.Context, userID string) error {
	_, err := s.db.ExecContext(ctx,
		`update refresh_tokens set revoked=true where user_id=$1`, userID)
	return err
}

// Single-use token store ---------------------------------------------------
type singleUseTokenStore struct {
	db    dbtx
	table string
}

func (s *singleUseTokenStore) Create(ctx context.Context, tok *SingleUseToken) error {
	if tok.ID == "" {
		tok.ID = ids.New()
	}
	_, err := s.db.ExecContext(ctx,
		`insert into `+s.table+`(id, user_id, token_hash, expires_at)
		 values($1,$2,$3,$4)`,
		tok.ID, tok.UserID, tok.TokenHash, tok.ExpiresAt,
	)
	return err
}

// Consume is a conditional update: the used_at guard makes concurrent
// redemptions of one token resolve to a single winner.
func (s *singleUseTokenStore) Consume(ctx context.Context, tokenHash string, now time.Time) (*SingleUseToken, error) {
	row := s.db.QueryRowContext(ctx,
		`update `+s.table+` set used_at=$2
		 where token_hash=$1 and used_at is null and expires_at > $2
		 returning id, user_id, token_hash, expires_at, created_at, used_at`,
		tokenHash, now,
	)
	var (
		t      SingleUseToken
		usedAt sql.NullTime
	)
	err := row.Scan(&t.ID, &t.UserID, &t.TokenHash, &t.ExpiresAt, &t.CreatedAt, &usedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	if usedAt.Valid {
		t.UsedAt = usedAt.Time
	}
	return &t, nil
}

func (s *singleUseTokenStore) InvalidateByUser(ctx context.Context, userID string, now time.Time) error {
	_, err := s.db.ExecContext(ctx,
		`update `+s.table+` set used_at=$2 where user_id=$1 and used_at is null`,
		userID, now,
	)
	return err
}

// Role store ---------------------------------------------------------------
type roleStore struct{ db dbtx }

func (s *roleStore) Assign(ctx context.Context, userID, roleKey string) error {
	_, err := s.db.ExecContext(ctx,
		`insert into user_roles(user_id, role_key) values($1,$2) on conflict do nothing`,
		userID, roleKey,
	)
	return err
}

func (s *roleStore) ListByUser(ctx context.Context, userID string) ([]string, error) {
	rows, err := s.db.QueryContext(ctx,
		`select role_key from user_roles where user_id=$1 order by role_key`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var roles []string
	for rows.Next() {
		var key string
		if err := rows.Scan(&key); err != nil {
			return nil, err
		}
		roles = append(roles, key)
	}
	return roles, rows.Err()
}

// --- helpers ---

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == pgerrcode.UniqueViolation
}

func requireRow(res sql.Result, err error) error {
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}
