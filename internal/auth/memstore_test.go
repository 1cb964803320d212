package auth

import (
	"context"
	"sync"
	"time"
)

// captureMailer records dispatched mails for assertions.
type captureMailer struct {
	mu   sync.Mutex
	sent []capturedMail
}

type capturedMail struct {
	to    string
	token string
	kind  MailKind
}

func (c *captureMailer) Send(_ context.Context, to, token string, kind MailKind) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sent = append(c.sent, capturedMail{to: to, token: token, kind: kind})
	return nil
}

func (c *captureMailer) last(t interface{ Fatalf(string, ...any) }) capturedMail {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.sent) == 0 {
		t.Fatalf("no mail was dispatched")
	}
	return c.sent[len(c.sent)-1]
}

func (c *captureMailer) count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.sent)
}

// stalledStore delegates to an inner Store but blocks every user read and
// write until the operation context expires.
type stalledStore struct {
	Store
}

func (s stalledStore) Users(context.Context) UserStore { return stalledUsers{} }

type stalledUsers struct{}

func (stalledUsers) Create(ctx context.Context, _ *User) error { return waitCtx(ctx) }
func (stalledUsers) Find(ctx context.Context, _ string) (*User, error) {
	return nil, waitCtx(ctx)
}
func (stalledUsers) FindByEmail(ctx context.Context, _ string) (*User, error) {
	return nil, waitCtx(ctx)
}
func (stalledUsers) UpdatePassword(ctx context.Context, _, _ string) error { return waitCtx(ctx) }
func (stalledUsers) MarkEmailVerified(ctx context.Context, _ string) error { return waitCtx(ctx) }
func (stalledUsers) TouchLastLogin(ctx context.Context, _ string, _ time.Time) error {
	return waitCtx(ctx)
}

func waitCtx(ctx context.Context) error {
	<-ctx.Done()
	return ctx.Err()
}

// testClock is a settable time source.
type testClock struct {
	mu sync.Mutex
	at time.Time
}

func newTestClock() *testClock {
	return &testClock{at: time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.at
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.at = c.at.Add(d)
}
