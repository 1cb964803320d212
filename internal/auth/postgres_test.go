package auth

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5/pgconn"
)

func newMockStore(t *testing.T) (*PGStore, sqlmock.Sqlmock, func()) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	return NewPGStore(db), mock, func() {
		if err := mock.ExpectationsWereMet(); err != nil {
			t.Fatalf("unmet expectations: %v", err)
		}
		db.Close()
	}
}

func TestPGUserCreateMapsUniqueViolation(t *testing.T) {
	store, mock, done := newMockStore(t)
	defer done()
	ctx := context.Background()

	mock.ExpectExec("insert into users").
		WithArgs(sqlmock.AnyArg(), "alice@example.com", "alice", "hash", false, UserStatusActive).
		WillReturnError(&pgconn.PgError{Code: pgerrcode.UniqueViolation})

	err := store.Users(ctx).Create(ctx, &User{
		Email:        "alice@example.com",
		Name:         "alice",
		PasswordHash: "hash",
		Status:       UserStatusActive,
	})
	if !errors.Is(err, ErrEmailExists) {
		t.Fatalf("expected ErrEmailExists, got %v", err)
	}
}

func TestPGUserCreateAssignsID(t *testing.T) {
	store, mock, done := newMockStore(t)
	defer done()
	ctx := context.Background()

	mock.ExpectExec("insert into users").
		WithArgs(sqlmock.AnyArg(), "bob@example.com", "bob", "hash", false, UserStatusActive).
		WillReturnResult(sqlmock.NewResult(0, 1))

	user := &User{Email: "bob@example.com", Name: "bob", PasswordHash: "hash", Status: UserStatusActive}
	if err := store.Users(ctx).Create(ctx, user); err != nil {
		t.Fatalf("Create: %v", err)
	}
	if user.ID == "" {
		t.Fatalf("expected a generated id")
	}
}

func TestPGUserFindByEmail(t *testing.T) {
	store, mock, done := newMockStore(t)
	defer done()
	ctx := context.Background()
	now := time.Now().UTC()

	rows := sqlmock.NewRows([]string{
		"id", "email", "name", "password_hash", "is_email_verified",
		"status", "last_login_at", "created_at", "updated_at",
	}).AddRow("u-1", "carol@example.com", "carol", "hash", true, UserStatusActive, nil, now, now)
	mock.ExpectQuery("select .* from users where email").
		WithArgs("carol@example.com").WillReturnRows(rows)

	user, err := store.Users(ctx).FindByEmail(ctx, "carol@example.com")
	if err != nil {
		t.Fatalf("FindByEmail: %v", err)
	}
	if user.ID != "u-1" || !user.IsEmailVerified {
		t.Fatalf("unexpected user: %+v", user)
	}
	if !user.LastLoginAt.IsZero() {
		t.Fatalf("null last_login_at must scan to zero time")
	}

	mock.ExpectQuery("select .* from users where email").
		WithArgs("ghost@example.com").WillReturnError(sql.ErrNoRows)
	if _, err := store.Users(ctx).FindByEmail(ctx, "ghost@example.com"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestPGUpdatePasswordRequiresRow(t *testing.T) {
	store, mock, done := newMockStore(t)
	defer done()
	ctx := context.Background()

	mock.ExpectExec("update users set password_hash").
		WithArgs("u-1", "newhash").WillReturnResult(sqlmock.NewResult(0, 1))
	if err := store.Users(ctx).UpdatePassword(ctx, "u-1", "newhash"); err != nil {
		t.Fatalf("UpdatePassword: %v", err)
	}

	mock.ExpectExec("update users set password_hash").
		WithArgs("u-404", "newhash").WillReturnResult(sqlmock.NewResult(0, 0))
	if err := store.Users(ctx).UpdatePassword(ctx, "u-404", "newhash"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestPGRefreshTokenFindByHash(t *testing.T) {
	store, mock, done := newMockStore(t)
	defer done()
	ctx := context.Background()
	now := time.Now().UTC()

	rows := sqlmock.NewRows([]string{
		"id", "user_id", "token_hash", "user_agent", "ip", "expires_at", "created_at", "revoked",
	}).AddRow("rt-1", "u-1", "hash-1", "agent", "10.0.0.1", now.Add(time.Hour), now, false)
	mock.ExpectQuery("select .* from refresh_tokens where token_hash").
		WithArgs("hash-1").WillReturnRows(rows)

	tok, err := store.RefreshTokens(ctx).FindByHash(ctx, "hash-1")
	if err != nil {
		t.Fatalf("FindByHash: %v", err)
	}
	if tok.UserID != "u-1" || tok.Revoked {
		t.Fatalf("unexpected token: %+v", tok)
	}

	mock.ExpectQuery("select .* from refresh_tokens where token_hash").
		WithArgs("missing").WillReturnError(sql.ErrNoRows)
	if _, err := store.RefreshTokens(ctx).FindByHash(ctx, "missing"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestPGConsumeSingleUse(t *testing.T) {
	store, mock, done := newMockStore(t)
	defer done()
	ctx := context.Background()
	now := time.Now().UTC()

	rows := sqlmock.NewRows([]string{
		"id", "user_id", "token_hash", "expires_at", "created_at", "used_at",
	}).AddRow("sut-1", "u-1", "hash-1", now.Add(time.Hour), now, now)
	mock.ExpectQuery("update password_reset_tokens set used_at").
		WithArgs("hash-1", now).WillReturnRows(rows)

	tok, err := store.PasswordResetTokens(ctx).Consume(ctx, "hash-1", now)
	if err != nil {
		t.Fatalf("Consume: %v", err)
	}
	if tok.UserID != "u-1" || !tok.Consumed() {
		t.Fatalf("unexpected token: %+v", tok)
	}

	// Consumed or expired rows match nothing, which reads as not found.
	mock.ExpectQuery("update password_reset_tokens set used_at").
		WithArgs("hash-1", now).WillReturnError(sql.ErrNoRows)
	if _, err := store.PasswordResetTokens(ctx).Consume(ctx, "hash-1", now); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestPGInTx(t *testing.T) {
	store, mock, done := newMockStore(t)
	defer done()
	ctx := context.Background()
	now := time.Now().UTC()

	mock.ExpectBegin()
	mock.ExpectExec("update email_verification_tokens set used_at").
		WithArgs("u-1", now).WillReturnResult(sqlmock.NewResult(0, 2))
	mock.ExpectExec("insert into email_verification_tokens").
		WithArgs(sqlmock.AnyArg(), "u-1", "hash-2", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	err := store.InTx(ctx, func(tx Store) error {
		if err := tx.EmailVerificationTokens(ctx).InvalidateByUser(ctx, "u-1", now); err != nil {
			return err
		}
		return tx.EmailVerificationTokens(ctx).Create(ctx, &SingleUseToken{
			UserID:    "u-1",
			TokenHash: "hash-2",
			ExpiresAt: now.Add(24 * time.Hour),
		})
	})
	if err != nil {
		t.Fatalf("InTx: %v", err)
	}

	// A failing callback rolls the transaction back.
	mock.ExpectBegin()
	mock.ExpectRollback()
	wantErr := errors.New("boom")
	err = store.InTx(ctx, func(Store) error { return wantErr })
	if !errors.Is(err, wantErr) {
		t.Fatalf("expected callback error, got %v", err)
	}
}

func TestPGRolesRoundTrip(t *testing.T) {
	store, mock, done := newMockStore(t)
	defer done()
	ctx := context.Background()

	mock.ExpectExec("insert into user_roles").
		WithArgs("u-1", "user").WillReturnResult(sqlmock.NewResult(0, 1))
	if err := store.Roles(ctx).Assign(ctx, "u-1", "user"); err != nil {
		t.Fatalf("Assign: %v", err)
	}

	rows := sqlmock.NewRows([]string{"role_key"}).AddRow("admin").AddRow("user")
	mock.ExpectQuery("select role_key from user_roles").
		WithArgs("u-1").WillReturnRows(rows)
	roles, err := store.Roles(ctx).ListByUser(ctx, "u-1")
	if err != nil {
		t.Fatalf("ListByUser: %v", err)
	}
	if len(roles) != 2 || roles[0] != "admin" {
		t.Fatalf("unexpected roles: %v", roles)
	}
}
