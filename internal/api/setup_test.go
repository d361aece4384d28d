package api

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"fitportal/internal/auth"
	"fitportal/internal/config"
	"fitportal/internal/db"
	"fitportal/internal/notify"
	"fitportal/internal/service"
	"fitportal/internal/store"
)

const (
	testSecret    = "this_is_a_valid_long_jwt_signing_secret_0123456789"
	adminEmail    = "owner@peak.example"
	adminPassword = "Adm1nPassword!"
)

type stubProvider struct {
	mu      sync.Mutex
	failAll bool
	sent    []notify.Message
}

func (*stubProvider) Name() string { return "stub" }

func (p *stubProvider) Send(ctx context.Context, msg notify.Message) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.failAll {
		return errors.New("provider down")
	}
	p.sent = append(p.sent, msg)
	return nil
}

func (p *stubProvider) messages() []notify.Message {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]notify.Message(nil), p.sent...)
}

type apiEnv struct {
	handler  http.Handler
	db       *sql.DB
	st       *store.Store
	provider *stubProvider
	cfg      config.Config
}

func testConfig() config.Config {
	return config.Config{
		SiteName:          "Peak Fitness",
		JWTSecret:         testSecret,
		JWTIssuer:         "fitportal",
		JWTTTLHours:       24,
		SessionCookieName: "fitportal_session",
		CookieSecureMode:  "never",
		PasswordMinLength: 10,
		PasswordMaxLength: 128,
		EmailFrom:         "no-reply@peak.example",
		OpsNotifyEmail:    "ops@peak.example",
		QueueMaxAttempts:  3,
		RateContactPerMin: 100,
		RateLoginPerMin:   100,
		MapsAPIKey:        "maps-key",
	}
}

func newAPIEnv(t *testing.T) *apiEnv {
	t.Helper()
	sqdb, err := db.OpenSQLite(filepath.Join(t.TempDir(), "app.db"), 1, 1, time.Minute)
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	t.Cleanup(func() { _ = sqdb.Close() })
	if err := db.ApplyMigrations(sqdb, filepath.Join("..", "..", "migrations", "sqlite")); err != nil {
		t.Fatalf("apply migrations: %v", err)
	}
	st := store.New(sqdb, db.DriverSQLite)
	hash, err := auth.HashPassword(adminPassword)
	if err != nil {
		t.Fatalf("hash: %v", err)
	}
	if err := st.EnsureAdmin(context.Background(), adminEmail, hash); err != nil {
		t.Fatalf("bootstrap admin: %v", err)
	}

	cfg := testConfig()
	provider := &stubProvider{}
	queue := notify.NewQueue(provider, notify.QueueOptions{
		MaxAttempts: cfg.QueueMaxAttempts,
		Logger:      zerolog.Nop(),
		Sleep:       func(context.Context, time.Duration) {},
		// Retries are exercised in the service tests; keep them parked here.
		AfterFunc: func(time.Duration, func()) func() bool { return func() bool { return true } },
	})
	t.Cleanup(queue.Close)
	svc := service.New(cfg, service.Deps{
		Store:  st,
		Tokens: auth.NewTokenManager(cfg.JWTSecret, cfg.JWTIssuer, cfg.TokenTTL()),
		Dispatcher: notify.NewDispatcher(provider, notify.DispatcherConfig{
			SiteName:       cfg.SiteName,
			From:           cfg.EmailFrom,
			OpsNotifyEmail: cfg.OpsNotifyEmail,
			SendTimeout:    time.Second,
		}, zerolog.Nop()),
		Queue:  queue,
		Logger: zerolog.Nop(),
	})
	return &apiEnv{
		handler:  NewRouter(cfg, svc, Deps{Logger: zerolog.Nop()}),
		db:       sqdb,
		st:       st,
		provider: provider,
		cfg:      cfg,
	}
}

func (e *apiEnv) do(t *testing.T, method, path, token string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode body: %v", err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	e.handler.ServeHTTP(rec, req)
	return rec
}

func (e *apiEnv) login(t *testing.T, email, password string) string {
	t.Helper()
	rec := e.do(t, "POST", "/auth/login", "", map[string]string{"email": email, "password": password})
	if rec.Code != http.StatusOK {
		t.Fatalf("login %s: expected 200, got %d: %s", email, rec.Code, rec.Body.String())
	}
	var out struct {
		Token string `json:"token"`
	}
	decode(t, rec, &out)
	return out.Token
}

func (e *apiEnv) createUser(t *testing.T, adminToken, email, role string) int64 {
	t.Helper()
	rec := e.do(t, "POST", "/admin/users", adminToken, map[string]string{
		"firstName": "Test",
		"lastName":  "User",
		"email":     email,
		"password":  "Us3rPassword!",
		"role":      role,
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("create user: expected 201, got %d: %s", rec.Code, rec.Body.String())
	}
	var out struct {
		User struct {
			ID int64 `json:"id"`
		} `json:"user"`
	}
	decode(t, rec, &out)
	return out.User.ID
}

func decode(t *testing.T, rec *httptest.ResponseRecorder, dst any) {
	t.Helper()
	if err := json.Unmarshal(rec.Body.Bytes(), dst); err != nil {
		t.Fatalf("decode %q: %v", rec.Body.String(), err)
	}
}

func errorCode(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()
	var out struct {
		Code string `json:"code"`
	}
	decode(t, rec, &out)
	return out.Code
}

func newRequest(method, path string, body *bytes.Buffer) *http.Request {
	if body == nil {
		body = &bytes.Buffer{}
	}
	return httptest.NewRequest(method, path, body)
}

func serve(e *apiEnv, req *http.Request) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	e.handler.ServeHTTP(rec, req)
	return rec
}
