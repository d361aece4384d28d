package config

import (
	"fmt"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"
)

const defaultJWTSecret = "CHANGE_ME_PRODUCTION_JWT_SECRET"

type Config struct {
	ListenAddr string
	SiteName   string

	DBDriver          string
	DatabaseURL       string
	DBPath            string
	MigrationsDir     string
	DBMaxOpenConns    int
	DBMaxIdleConns    int
	DBConnMaxLifetime time.Duration

	JWTSecret   string
	JWTIssuer   string
	JWTTTLHours int

	SessionCookieName  string
	CookieSecureMode   string
	TrustProxy         bool
	CORSAllowedOrigins []string

	CaptchaEnabled   bool
	CaptchaProvider  string
	CaptchaVerifyURL string
	CaptchaSecret    string

	PasswordMinLength int
	PasswordMaxLength int

	EmailProvider       string
	EmailAPIKey         string
	EmailAPIURL         string
	EmailFrom           string
	OpsNotifyEmail      string
	EmailSendTimeoutSec int

	SMTPHost               string
	SMTPPort               int
	SMTPTLS                bool
	SMTPStartTLS           bool
	SMTPInsecureSkipVerify bool
	SMTPUsername           string
	SMTPPassword           string

	QueueMaxAttempts int
	QueueItemDelayMS int

	MapsAPIKey string

	RedisAddr     string
	RedisPassword string
	RedisDB       int

	AMQPURL   string
	AMQPQueue string

	RateContactPerMin int
	RateLoginPerMin   int

	HTTPReadTimeoutSec       int
	HTTPReadHeaderTimeoutSec int
	HTTPWriteTimeoutSec      int
	HTTPIdleTimeoutSec       int

	BootstrapAdminEmail    string
	BootstrapAdminPassword string

	LogLevel string
	Env      string
}

func Load() (Config, error) {
	cfg := Config{
		ListenAddr:               env("LISTEN_ADDR", ":8080"),
		SiteName:                 env("SITE_NAME", "Personal Training"),
		DBDriver:                 strings.ToLower(env("DB_DRIVER", "sqlite")),
		DatabaseURL:              env("DATABASE_URL", ""),
		DBPath:                   env("APP_DB_PATH", "./data/app.db"),
		MigrationsDir:            env("MIGRATIONS_DIR", "migrations"),
		DBMaxOpenConns:           envInt("APP_DB_MAX_OPEN_CONNS", 4),
		DBMaxIdleConns:           envInt("APP_DB_MAX_IDLE_CONNS", 2),
		DBConnMaxLifetime:        time.Duration(envInt("APP_DB_CONN_MAX_LIFETIME_MIN", 30)) * time.Minute,
		JWTSecret:                env("JWT_SECRET", defaultJWTSecret),
		JWTIssuer:                env("JWT_ISSUER", "fitportal"),
		JWTTTLHours:              envInt("JWT_TTL_HOURS", 24),
		SessionCookieName:        env("SESSION_COOKIE_NAME", "fitportal_session"),
		CookieSecureMode:         cookieSecureMode(),
		TrustProxy:               envBool("TRUST_PROXY", false),
		CORSAllowedOrigins:       envCSV("CORS_ALLOWED_ORIGINS"),
		CaptchaEnabled:           envBool("CAPTCHA_ENABLED", false),
		CaptchaProvider:          strings.ToLower(env("CAPTCHA_PROVIDER", "turnstile")),
		CaptchaVerifyURL:         env("CAPTCHA_VERIFY_URL", ""),
		CaptchaSecret:            env("CAPTCHA_SECRET", ""),
		PasswordMinLength:        envInt("PASSWORD_MIN_LENGTH", 10),
		PasswordMaxLength:        envInt("PASSWORD_MAX_LENGTH", 128),
		EmailProvider:            strings.ToLower(env("EMAIL_PROVIDER", "log")),
		EmailAPIKey:              env("EMAIL_API_KEY", ""),
		EmailAPIURL:              env("EMAIL_API_URL", ""),
		EmailFrom:                env("EMAIL_FROM", "no-reply@example.com"),
		OpsNotifyEmail:           env("OPS_NOTIFY_EMAIL", ""),
		EmailSendTimeoutSec:      envInt("EMAIL_SEND_TIMEOUT_SEC", 15),
		SMTPHost:                 env("SMTP_HOST", "127.0.0.1"),
		SMTPPort:                 envInt("SMTP_PORT", 587),
		SMTPTLS:                  envBool("SMTP_TLS", false),
		SMTPStartTLS:             envBool("SMTP_STARTTLS", true),
		SMTPInsecureSkipVerify:   envBool("SMTP_INSECURE_SKIP_VERIFY", false),
		SMTPUsername:             env("SMTP_USERNAME", ""),
		SMTPPassword:             env("SMTP_PASSWORD", ""),
		QueueMaxAttempts:         envInt("QUEUE_MAX_ATTEMPTS", 3),
		QueueItemDelayMS:         envInt("QUEUE_ITEM_DELAY_MS", 100),
		MapsAPIKey:               env("MAPS_API_KEY", ""),
		RedisAddr:                env("REDIS_ADDR", ""),
		RedisPassword:            env("REDIS_PASSWORD", ""),
		RedisDB:                  envInt("REDIS_DB", 0),
		AMQPURL:                  env("AMQP_URL", ""),
		AMQPQueue:                env("AMQP_QUEUE", "contact.submitted"),
		RateContactPerMin:        envInt("RATE_CONTACT_PER_MIN", 5),
		RateLoginPerMin:          envInt("RATE_LOGIN_PER_MIN", 20),
		HTTPReadTimeoutSec:       envInt("HTTP_READ_TIMEOUT_SEC", 10),
		HTTPReadHeaderTimeoutSec: envInt("HTTP_READ_HEADER_TIMEOUT_SEC", 5),
		HTTPWriteTimeoutSec:      envInt("HTTP_WRITE_TIMEOUT_SEC", 60),
		HTTPIdleTimeoutSec:       envInt("HTTP_IDLE_TIMEOUT_SEC", 60),
		BootstrapAdminEmail:      env("BOOTSTRAP_ADMIN_EMAIL", ""),
		BootstrapAdminPassword:   env("BOOTSTRAP_ADMIN_PASSWORD", ""),
		LogLevel:                 strings.ToLower(env("LOG_LEVEL", "info")),
		Env:                      strings.ToLower(env("ENV", "production")),
	}

	if strings.TrimSpace(cfg.JWTSecret) == "" ||
		cfg.JWTSecret == defaultJWTSecret ||
		len(cfg.JWTSecret) < 32 {
		return Config{}, fmt.Errorf("JWT_SECRET must be set to a strong non-default value (>=32 chars)")
	}
	if cfg.JWTTTLHours <= 0 {
		return Config{}, fmt.Errorf("JWT_TTL_HOURS must be positive")
	}
	switch cfg.DBDriver {
	case "sqlite":
	case "postgres", "mysql":
		if strings.TrimSpace(cfg.DatabaseURL) == "" {
			return Config{}, fmt.Errorf("DATABASE_URL is required when DB_DRIVER=%s", cfg.DBDriver)
		}
	default:
		return Config{}, fmt.Errorf("DB_DRIVER must be one of: sqlite, postgres, mysql")
	}
	if cfg.DBMaxOpenConns <= 0 || cfg.DBMaxIdleConns < 0 {
		return Config{}, fmt.Errorf("invalid DB pool config")
	}
	if cfg.PasswordMinLength < 8 {
		return Config{}, fmt.Errorf("password min length must be >= 8")
	}
	if cfg.PasswordMaxLength < cfg.PasswordMinLength {
		return Config{}, fmt.Errorf("password max length must be >= min length")
	}
	switch cfg.CookieSecureMode {
	case "auto", "always", "never":
	default:
		return Config{}, fmt.Errorf("COOKIE_SECURE_MODE must be one of: auto, always, never")
	}
	if cfg.CookieSecureMode == "never" && !isLocalListen(cfg.ListenAddr) {
		return Config{}, fmt.Errorf("COOKIE_SECURE_MODE=never is allowed only for local listen addresses")
	}

	switch cfg.EmailProvider {
	case "log":
	case "smtp":
		if strings.TrimSpace(cfg.SMTPHost) == "" || cfg.SMTPPort <= 0 {
			return Config{}, fmt.Errorf("SMTP_HOST and SMTP_PORT are required when EMAIL_PROVIDER=smtp")
		}
	case "http":
		if strings.TrimSpace(cfg.EmailAPIKey) == "" || strings.TrimSpace(cfg.EmailAPIURL) == "" {
			return Config{}, fmt.Errorf("EMAIL_API_KEY and EMAIL_API_URL are required when EMAIL_PROVIDER=http")
		}
	default:
		return Config{}, fmt.Errorf("EMAIL_PROVIDER must be one of: log, smtp, http")
	}
	if strings.TrimSpace(cfg.OpsNotifyEmail) == "" {
		return Config{}, fmt.Errorf("OPS_NOTIFY_EMAIL is required")
	}
	if cfg.EmailSendTimeoutSec <= 0 {
		return Config{}, fmt.Errorf("EMAIL_SEND_TIMEOUT_SEC must be positive")
	}
	if cfg.QueueMaxAttempts < 1 {
		return Config{}, fmt.Errorf("QUEUE_MAX_ATTEMPTS must be >= 1")
	}
	if cfg.QueueItemDelayMS < 0 {
		return Config{}, fmt.Errorf("QUEUE_ITEM_DELAY_MS must be >= 0")
	}
	if cfg.RateContactPerMin <= 0 || cfg.RateLoginPerMin <= 0 {
		return Config{}, fmt.Errorf("rate limits must be positive")
	}

	if cfg.CaptchaEnabled {
		if strings.TrimSpace(cfg.CaptchaSecret) == "" {
			return Config{}, fmt.Errorf("CAPTCHA_SECRET is required when CAPTCHA_ENABLED=true")
		}
		if strings.TrimSpace(cfg.CaptchaVerifyURL) == "" {
			switch cfg.CaptchaProvider {
			case "turnstile", "":
				cfg.CaptchaVerifyURL = "https://challenges.cloudflare.com/turnstile/v0/siteverify"
			case "hcaptcha":
				cfg.CaptchaVerifyURL = "https://hcaptcha.com/siteverify"
			case "recaptcha":
				cfg.CaptchaVerifyURL = "https://www.google.com/recaptcha/api/siteverify"
			default:
				return Config{}, fmt.Errorf("unsupported CAPTCHA_PROVIDER: %s", cfg.CaptchaProvider)
			}
		}
	}
	return cfg, nil
}

func (c Config) TokenTTL() time.Duration {
	return time.Duration(c.JWTTTLHours) * time.Hour
}

func (c Config) EmailSendTimeout() time.Duration {
	return time.Duration(c.EmailSendTimeoutSec) * time.Second
}

func (c Config) QueueItemDelay() time.Duration {
	return time.Duration(c.QueueItemDelayMS) * time.Millisecond
}

// ResolveCookieSecure decides the Secure flag for cookies set on r.
// In auto mode a TLS connection, or X-Forwarded-Proto=https behind a trusted proxy, counts as secure.
func (c Config) ResolveCookieSecure(r *http.Request) bool {
	switch c.CookieSecureMode {
	case "always":
		return true
	case "never":
		return false
	}
	if r == nil {
		return false
	}
	if r.TLS != nil {
		return true
	}
	if c.TrustProxy && strings.EqualFold(strings.TrimSpace(r.Header.Get("X-Forwarded-Proto")), "https") {
		return true
	}
	return false
}

// cookieSecureMode maps the legacy boolean COOKIE_SECURE onto a mode when COOKIE_SECURE_MODE is unset.
func cookieSecureMode() string {
	if v := strings.ToLower(strings.TrimSpace(os.Getenv("COOKIE_SECURE_MODE"))); v != "" {
		return v
	}
	if os.Getenv("COOKIE_SECURE") == "" {
		return "auto"
	}
	if envBool("COOKIE_SECURE", false) {
		return "always"
	}
	return "never"
}

func env(k, d string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return d
}

func envInt(k string, d int) int {
	v := os.Getenv(k)
	if v == "" {
		return d
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return d
	}
	return n
}

func envBool(k string, d bool) bool {
	v := os.Getenv(k)
	if v == "" {
		return d
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return d
	}
	return b
}

func envCSV(k string) []string {
	v := strings.TrimSpace(os.Getenv(k))
	if v == "" {
		return nil
	}
	parts := strings.Split(v, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}

func isLocalListen(addr string) bool {
	a := strings.ToLower(strings.TrimSpace(addr))
	return strings.Contains(a, "127.0.0.1") || strings.Contains(a, "localhost") || strings.Contains(a, "[::1]") || strings.HasPrefix(a, ":")
}
