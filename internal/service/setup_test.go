package service

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"fitportal/internal/auth"
	"fitportal/internal/config"
	"fitportal/internal/db"
	"fitportal/internal/notify"
	"fitportal/internal/store"
)

const testSecret = "this_is_a_valid_long_jwt_signing_secret_0123456789"

type recordingProvider struct {
	mu       sync.Mutex
	failKind map[notify.Kind]bool
	sent     []notify.Message
	attempts int
}

func (*recordingProvider) Name() string { return "recording" }

func (p *recordingProvider) Send(ctx context.Context, msg notify.Message) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.attempts++
	if p.failKind[msg.Kind] {
		return errors.New("mailbox unavailable")
	}
	p.sent = append(p.sent, msg)
	return nil
}

func (p *recordingProvider) setFail(kind notify.Kind, fail bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.failKind == nil {
		p.failKind = map[notify.Kind]bool{}
	}
	p.failKind[kind] = fail
}

func (p *recordingProvider) counts() (attempts, sent int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.attempts, len(p.sent)
}

type testClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.t = c.t.Add(d)
	c.mu.Unlock()
}

// manualTimer holds the queue's scheduled wakeup until the test fires it.
type manualTimer struct {
	mu sync.Mutex
	fn func()
}

func (m *manualTimer) AfterFunc(_ time.Duration, fn func()) func() bool {
	m.mu.Lock()
	m.fn = fn
	m.mu.Unlock()
	return func() bool { return true }
}

func (m *manualTimer) fire() {
	m.mu.Lock()
	fn := m.fn
	m.fn = nil
	m.mu.Unlock()
	if fn != nil {
		fn()
	}
}

type testEnv struct {
	svc      *Service
	st       *store.Store
	provider *recordingProvider
	queue    *notify.Queue
	clock    *testClock
	timer    *manualTimer
	tokens   *auth.TokenManager
}

func testConfig() config.Config {
	return config.Config{
		SiteName:          "Peak Fitness",
		JWTSecret:         testSecret,
		JWTIssuer:         "fitportal",
		PasswordMinLength: 10,
		PasswordMaxLength: 128,
		OpsNotifyEmail:    "ops@peak.example",
		EmailFrom:         "no-reply@peak.example",
	}
}

func newTestEnv(t *testing.T, maxAttempts int) *testEnv {
	t.Helper()
	sqdb, err := db.OpenSQLite(filepath.Join(t.TempDir(), "app.db"), 1, 1, time.Minute)
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	t.Cleanup(func() { _ = sqdb.Close() })
	if err := db.ApplyMigrations(sqdb, filepath.Join("..", "..", "migrations", "sqlite")); err != nil {
		t.Fatalf("apply migrations: %v", err)
	}

	cfg := testConfig()
	env := &testEnv{
		st:       store.New(sqdb, db.DriverSQLite),
		provider: &recordingProvider{},
		clock:    &testClock{t: time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)},
		timer:    &manualTimer{},
		tokens:   auth.NewTokenManager(cfg.JWTSecret, cfg.JWTIssuer, 24*time.Hour),
	}
	env.queue = notify.NewQueue(env.provider, notify.QueueOptions{
		MaxAttempts: maxAttempts,
		Logger:      zerolog.Nop(),
		Now:         env.clock.Now,
		Sleep:       func(context.Context, time.Duration) {},
		AfterFunc:   env.timer.AfterFunc,
	})
	t.Cleanup(env.queue.Close)

	dispatcher := notify.NewDispatcher(env.provider, notify.DispatcherConfig{
		SiteName:       cfg.SiteName,
		From:           cfg.EmailFrom,
		OpsNotifyEmail: cfg.OpsNotifyEmail,
		SendTimeout:    time.Second,
	}, zerolog.Nop())
	env.svc = New(cfg, Deps{
		Store:      env.st,
		Tokens:     env.tokens,
		Dispatcher: dispatcher,
		Queue:      env.queue,
		Logger:     zerolog.Nop(),
	})
	return env
}
