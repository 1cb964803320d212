package auth

import (
	"context"
	"fmt"
	"sync"
	"time"
)

var _ Store = (*MemStore)(nil)

// MemStore is an in-memory Store for tests and local development. A single
// mutex makes every operation atomic, which preserves the one-winner
// semantics of Consume under concurrent redemption.
type MemStore struct {
	mu      sync.Mutex
	seq     int
	users   map[string]*User
	refresh map[string]*RefreshToken
	resets  map[string]*SingleUseToken
	verifs  map[string]*SingleUseToken
	roles   map[string][]string
}

// NewMemStore constructs an empty MemStore.
func NewMemStore() *MemStore {
	return &MemStore{
		users:   make(map[string]*User),
		refresh: make(map[string]*RefreshToken),
		resets:  make(map[string]*SingleUseToken),
		verifs:  make(map[string]*SingleUseToken),
		roles:   make(map[string][]string),
	}
}

func (m *MemStore) nextID(prefix string) string {
	m.seq++
	return fmt.Sprintf("%s-%d", prefix, m.seq)
}

func (m *MemStore) Users(context.Context) UserStore { return memUsers{m} }
func (m *MemStore) RefreshTokens(context.Context) RefreshTokenStore {
	return memRefresh{m}
}
func (m *MemStore) PasswordResetTokens(context.Context) SingleUseTokenStore {
	return memSingleUse{m, func(m *MemStore) map[string]*SingleUseToken { return m.resets }}
}
func (m *MemStore) EmailVerificationTokens(context.Context) SingleUseTokenStore {
	return memSingleUse{m, func(m *MemStore) map[string]*SingleUseToken { return m.verifs }}
}
func (m *MemStore) Roles(context.Context) RoleStore { return memRoles{m} }

// InTx runs fn directly; each MemStore operation is already atomic.
func (m *MemStore) InTx(_ context.Context, fn func(Store) error) error {
	return fn(m)
}

// SetUserStatus force-updates an account's status. Test hook.
func (m *MemStore) SetUserStatus(userID, status string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	user, ok := m.users[userID]
	if !ok {
		return ErrNotFound
	}
	user.Status = status
	return nil
}

type memUsers struct{ s *MemStore }

func (u memUsers) Create(_ context.Context, user *User) error {
	u.s.mu.Lock()
	defer u.s.mu.Unlock()
	for _, existing := range u.s.users {
		if existing.Email == user.Email {
			return ErrEmailExists
		}
	}
	user.ID = u.s.nextID("user")
	user.CreatedAt = time.Now().UTC()
	user.UpdatedAt = user.CreatedAt
	cp := *user
	u.s.users[user.ID] = &cp
	return nil
}

func (u memUsers) Find(_ context.Context, id string) (*User, error) {
	u.s.mu.Lock()
	defer u.s.mu.Unlock()
	user, ok := u.s.users[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *user
	return &cp, nil
}

func (u memUsers) FindByEmail(_ context.Context, email string) (*User, error) {
	u.s.mu.Lock()
	defer u.s.mu.Unlock()
	for _, user := range u.s.users {
		if user.Email == email {
			cp := *user
			return &cp, nil
		}
	}
	return nil, ErrNotFound
}

func (u memUsers) UpdatePassword(_ context.Context, userID, passwordHash string) error {
	u.s.mu.Lock()
	defer u.s.mu.Unlock()
	user, ok := u.s.users[userID]
	if !ok {
		return ErrNotFound
	}
	user.PasswordHash = passwordHash
	user.UpdatedAt = time.Now().UTC()
	return nil
}

func (u memUsers) MarkEmailVerified(_ context.Context, userID string) error {
	u.s.mu.Lock()
	defer u.s.mu.Unlock()
	user, ok := u.s.users[userID]
	if !ok {
		return ErrNotFound
	}
	user.IsEmailVerified = true
	return nil
}

func (u memUsers) TouchLastLogin(_ context.Context, userID string, at time.Time) error {
	u.s.mu.Lock()
	defer u.s.mu.Unlock()
	user, ok := u.s.users[userID]
	if !ok {
		return ErrNotFound
	}
	user.LastLoginAt = at
	return nil
}

type memRefresh struct{ s *MemStore }

func (r memRefresh) Create(_ context.Context, tok *RefreshToken) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	tok.ID = r.s.nextID("rt")
	tok.CreatedAt = time.Now().UTC()
	cp := *tok
	r.s.refresh[tok.ID] = &cp
	return nil
}

func (r memRefresh) FindByHash(_ context.Context, tokenHash string) (*RefreshToken, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, tok := range r.s.refresh {
		if tok.TokenHash == tokenHash {
			cp := *tok
			return &cp, nil
		}
	}
	return nil, ErrNotFound
}

func (r memRefresh) Revoke(_ context.Context, id string) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	tok, ok := r.s.refresh[id]
	if !ok {
		return ErrNotFound
	}
	tok.Revoked = true
	return nil
}

func (r memRefresh) RevokeByUser(_ context.Context, userID string) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, tok := range r.s.refresh {
		if tok.UserID == userID {
			tok.Revoked = true
		}
	}
	return nil
}

type memSingleUse struct {
	s     *MemStore
	table func(*MemStore) map[string]*SingleUseToken
}

func (t memSingleUse) Create(_ context.Context, tok *SingleUseToken) error {
	t.s.mu.Lock()
	defer t.s.mu.Unlock()
	tok.ID = t.s.nextID("sut")
	tok.CreatedAt = time.Now().UTC()
	cp := *tok
	t.table(t.s)[tok.ID] = &cp
	return nil
}

func (t memSingleUse) Consume(_ context.Context, tokenHash string, now time.Time) (*SingleUseToken, error) {
	t.s.mu.Lock()
	defer t.s.mu.Unlock()
	for _, tok := range t.table(t.s) {
		if tok.TokenHash != tokenHash {
			continue
		}
		if tok.Consumed() || !now.Before(tok.ExpiresAt) {
			return nil, ErrNotFound
		}
		tok.UsedAt = now
		cp := *tok
		return &cp, nil
	}
	return nil, ErrNotFound
}

func (t memSingleUse) InvalidateByUser(_ context.Context, userID string, now time.Time) error {
	t.s.mu.Lock()
	defer t.s.mu.Unlock()
	for _, tok := range t.table(t.s) {
		if tok.UserID == userID && !tok.Consumed() {
			tok.UsedAt = now
		}
	}
	return nil
}

type memRoles struct{ s *MemStore }

func (r memRoles) Assign(_ context.Context, userID, roleKey string) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, key := range r.s.roles[userID] {
		if key == roleKey {
			return nil
		}
	}
	r.s.roles[userID] = append(r.s.roles[userID], roleKey)
	return nil
}

func (r memRoles) ListByUser(_ context.Context, userID string) ([]string, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	return append([]string(nil), r.s.roles[userID]...), nil
}
