package middleware

import (
	"context"
	"errors"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"fitportal/internal/auth"
	"fitportal/internal/models"
	"fitportal/internal/rate"
	"fitportal/internal/service"
	"fitportal/internal/util"
)

// Authenticator resolves a session token to the current user record.
type Authenticator interface {
	Authenticate(ctx context.Context, token string) (models.User, error)
}

func RequestIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rid := uuid.NewString()
		r = r.WithContext(WithRequestID(r.Context(), rid))
		w.Header().Set("X-Request-ID", rid)
		next.ServeHTTP(w, r)
	})
}

// TokenFromRequest prefers an Authorization bearer token and falls back to the session cookie.
func TokenFromRequest(r *http.Request, cookieName string) string {
	if h := strings.TrimSpace(r.Header.Get("Authorization")); h != "" {
		if scheme, tok, ok := strings.Cut(h, " "); ok && strings.EqualFold(scheme, "Bearer") {
			return strings.TrimSpace(tok)
		}
	}
	if c, err := r.Cookie(cookieName); err == nil {
		return c.Value
	}
	return ""
}

func Authn(a Authenticator, cookieName string, log zerolog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			rid := RequestID(r.Context())
			raw := TokenFromRequest(r, cookieName)
			if raw == "" {
				util.WriteError(w, http.StatusUnauthorized, "unauthenticated", "authentication required", rid)
				return
			}
			u, err := a.Authenticate(r.Context(), raw)
			switch {
			case err == nil:
			case errors.Is(err, auth.ErrTokenExpired):
				util.WriteError(w, http.StatusUnauthorized, "token_expired", "session expired", rid)
				return
			case errors.Is(err, auth.ErrTokenInvalid):
				util.WriteError(w, http.StatusUnauthorized, "invalid_token", "invalid session token", rid)
				return
			case errors.Is(err, service.ErrInactive):
				util.WriteError(w, http.StatusForbidden, "forbidden", "account is not active", rid)
				return
			default:
				log.Error().Err(err).Str("request_id", rid).Msg("authenticate request")
				util.WriteError(w, http.StatusInternalServerError, "internal_error", "internal server error", rid)
				return
			}
			next.ServeHTTP(w, r.WithContext(WithUser(r.Context(), u)))
		})
	}
}

// RequireRole must run after Authn.
func RequireRole(roles ...models.Role) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			u, ok := User(r.Context())
			if ok {
				for _, role := range roles {
					if u.Role == role {
						next.ServeHTTP(w, r)
						return
					}
				}
			}
			util.WriteError(w, http.StatusForbidden, "forbidden", "insufficient role", RequestID(r.Context()))
		})
	}
}

func AdminOnly(next http.Handler) http.Handler {
	return RequireRole(models.RoleAdmin)(next)
}

// RateLimit keys on route and client IP. Limiter errors let the request through.
func RateLimit(l rate.Allower, route string, limit int, window time.Duration, trustProxy bool, log zerolog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key := route + ":" + ClientIP(r, trustProxy)
			ok, err := l.Allow(r.Context(), key, limit, window)
			if err != nil {
				log.Warn().Err(err).Str("route", route).Msg("rate limiter unavailable")
				ok = true
			}
			if !ok {
				util.WriteError(w, http.StatusTooManyRequests, "rate_limited", "too many requests", RequestID(r.Context()))
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func ClientIP(r *http.Request, trustProxy bool) string {
	if trustProxy {
		if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
			parts := strings.Split(xff, ",")
			return strings.TrimSpace(parts[0])
		}
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

func RequestLogger(log zerolog.Logger, trustProxy bool) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			sr := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
			next.ServeHTTP(sr, r)
			ev := log.Info()
			if sr.status >= 500 {
				ev = log.Error()
			}
			ev.Str("method", r.Method).
				Str("path", r.URL.Path).
				Int("status", sr.status).
				Int64("duration_ms", time.Since(start).Milliseconds()).
				Str("request_id", RequestID(r.Context())).
				Str("remote_ip", ClientIP(r, trustProxy)).
				Msg("request")
		})
	}
}
