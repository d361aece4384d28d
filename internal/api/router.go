package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/rs/zerolog"

	"fitportal/internal/captcha"
	"fitportal/internal/config"
	"fitportal/internal/middleware"
	"fitportal/internal/models"
	"fitportal/internal/rate"
	"fitportal/internal/service"
	"fitportal/internal/util"
	"fitportal/internal/version"
)

type Deps struct {
	Logger  zerolog.Logger
	Limiter rate.Allower
	Captcha captcha.Verifier
}

type Handlers struct {
	cfg             config.Config
	svc             *service.Service
	log             zerolog.Logger
	limiter         rate.Allower
	captchaVerifier captcha.Verifier
}

func NewRouter(cfg config.Config, svc *service.Service, deps Deps) http.Handler {
	if deps.Limiter == nil {
		deps.Limiter = rate.NewMemoryLimiter()
	}
	if deps.Captcha == nil {
		deps.Captcha = captcha.NewVerifier(cfg)
	}
	h := &Handlers{
		cfg:             cfg,
		svc:             svc,
		log:             deps.Logger,
		limiter:         deps.Limiter,
		captchaVerifier: deps.Captcha,
	}

	r := chi.NewRouter()
	r.Use(chimw.Recoverer)
	r.Use(middleware.RequestIDMiddleware)
	r.Use(middleware.RequestLogger(h.log, cfg.TrustProxy))
	r.Use(middleware.SecurityHeaders)
	if len(cfg.CORSAllowedOrigins) > 0 {
		r.Use(cors.Handler(cors.Options{
			AllowedOrigins:   cfg.CORSAllowedOrigins,
			AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
			AllowedHeaders:   []string{"Content-Type", "Authorization"},
			ExposedHeaders:   []string{"X-Request-ID"},
			AllowCredentials: true,
		}))
	}

	h.routes(r)
	r.Route("/api", h.routes)
	return r
}

func (h *Handlers) routes(r chi.Router) {
	limit := func(route string, perMin int) func(http.Handler) http.Handler {
		return middleware.RateLimit(h.limiter, route, perMin, time.Minute, h.cfg.TrustProxy, h.log)
	}

	r.Get("/health", h.Health)
	r.Get("/site-config", h.SiteConfig)
	r.With(limit("contact", h.cfg.RateContactPerMin)).Post("/contact", h.Contact)

	r.Route("/auth", func(r chi.Router) {
		r.With(limit("signup", h.cfg.RateLoginPerMin)).Post("/signup", h.Signup)
		r.With(limit("login", h.cfg.RateLoginPerMin)).Post("/login", h.Login)
		r.Post("/logout", h.Logout)
		r.With(limit("refresh", h.cfg.RateLoginPerMin)).Post("/refresh", h.Refresh)
		r.Group(func(r chi.Router) {
			r.Use(middleware.Authn(h.svc, h.cfg.SessionCookieName, h.log))
			r.Get("/me", h.Me)
			r.Put("/me", h.UpdateMe)
		})
	})

	r.Route("/admin", func(r chi.Router) {
		r.Use(middleware.Authn(h.svc, h.cfg.SessionCookieName, h.log))
		r.Use(middleware.AdminOnly)
		r.Get("/contact-submissions", h.AdminListSubmissions)
		r.Get("/contact-submissions/{id}", h.AdminGetSubmission)
		r.Post("/contact-submissions/{id}/resend", h.AdminResendSubmission)
		r.Get("/delivery-queue", h.AdminDeliveryQueue)

		r.Get("/users", h.AdminListUsers)
		r.Post("/users", h.AdminCreateUser)
		r.Get("/users/{id}", h.adminGetUser(""))
		r.Put("/users/{id}", h.adminUpdateUser(""))
		r.Delete("/users/{id}", h.adminDeleteUser(""))

		r.Get("/clients/{id}", h.adminGetUser(models.RoleClient))
		r.Put("/clients/{id}", h.adminUpdateUser(models.RoleClient))
		r.Delete("/clients/{id}", h.adminDeleteUser(models.RoleClient))
	})
}

func (h *Handlers) Health(w http.ResponseWriter, r *http.Request) {
	hs := h.svc.Health(r.Context())
	db := map[string]any{"ok": hs.DBErr == nil}
	if hs.DBErr != nil {
		db["error"] = hs.DBErr.Error()
	}
	out := map[string]any{
		"status":     "ok",
		"version":    version.Current(),
		"checked_at": time.Now().UTC().Format(time.RFC3339),
		"components": map[string]any{
			"db":    db,
			"email": map[string]any{"provider": hs.EmailProvider},
			"queue": map[string]any{
				"processing": hs.Queue.Processing,
				"pending":    len(hs.Queue.Pending),
				"failed":     len(hs.Queue.Failed),
			},
		},
	}
	if hs.DBErr != nil {
		out["status"] = "degraded"
		util.WriteJSON(w, http.StatusServiceUnavailable, out)
		return
	}
	util.WriteJSON(w, http.StatusOK, out)
}

func (h *Handlers) SiteConfig(w http.ResponseWriter, r *http.Request) {
	util.WriteJSON(w, http.StatusOK, map[string]any{
		"siteName":       h.cfg.SiteName,
		"mapsApiKey":     h.cfg.MapsAPIKey,
		"contactEmail":   h.cfg.OpsNotifyEmail,
		"captchaEnabled": h.cfg.CaptchaEnabled,
	})
}
