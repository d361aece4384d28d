package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"fitportal/internal/auth"
	"fitportal/internal/captcha"
	"fitportal/internal/middleware"
	"fitportal/internal/models"
	"fitportal/internal/service"
	"fitportal/internal/util"
)

const (
	maxBodyBytes   = 1 << 20
	genericFailure = "We could not process your message. Please try again later."
)

func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		util.WriteError(w, http.StatusBadRequest, "bad_request", "invalid json", middleware.RequestID(r.Context()))
		return false
	}
	return true
}

func pathID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		util.WriteError(w, http.StatusBadRequest, "bad_request", "invalid id", middleware.RequestID(r.Context()))
		return 0, false
	}
	return id, true
}

func queryInt(r *http.Request, name string) int {
	n, _ := strconv.Atoi(r.URL.Query().Get(name))
	return n
}

// writeServiceError maps service and auth errors onto HTTP responses.
func (h *Handlers) writeServiceError(w http.ResponseWriter, r *http.Request, err error) {
	rid := middleware.RequestID(r.Context())
	var verr *service.ValidationError
	switch {
	case errors.As(err, &verr):
		util.WriteValidationError(w, "invalid input", verr.Fields, rid)
	case errors.Is(err, service.ErrInvalidCredentials):
		util.WriteError(w, http.StatusUnauthorized, "invalid_credentials", "invalid email or password", rid)
	case errors.Is(err, auth.ErrTokenExpired):
		util.WriteError(w, http.StatusUnauthorized, "token_expired", "session expired", rid)
	case errors.Is(err, auth.ErrTokenInvalid):
		util.WriteError(w, http.StatusUnauthorized, "invalid_token", "invalid session token", rid)
	case errors.Is(err, service.ErrInactive):
		util.WriteError(w, http.StatusForbidden, "forbidden", "account is not active", rid)
	case errors.Is(err, service.ErrForbidden):
		util.WriteError(w, http.StatusForbidden, "forbidden", err.Error(), rid)
	case errors.Is(err, service.ErrNotFound):
		util.WriteError(w, http.StatusNotFound, "not_found", "not found", rid)
	case errors.Is(err, service.ErrConflict):
		util.WriteError(w, http.StatusConflict, "conflict", err.Error(), rid)
	case errors.Is(err, captcha.ErrCaptchaRequired):
		util.WriteError(w, http.StatusBadRequest, "captcha_required", "captcha validation failed", rid)
	case errors.Is(err, captcha.ErrCaptchaUnavailable):
		util.WriteError(w, http.StatusServiceUnavailable, "captcha_unavailable", "captcha service unavailable", rid)
	case errors.Is(err, service.ErrNotRecorded):
		h.log.Error().Err(err).Str("request_id", rid).Msg("contact submission lost")
		util.WriteError(w, http.StatusInternalServerError, "internal_error", genericFailure, rid)
	default:
		h.log.Error().Err(err).Str("request_id", rid).Str("path", r.URL.Path).Msg("request failed")
		util.WriteError(w, http.StatusInternalServerError, "internal_error", "internal server error", rid)
	}
}

func (h *Handlers) setSessionCookie(w http.ResponseWriter, r *http.Request, token string, expiresAt time.Time) {
	http.SetCookie(w, &http.Cookie{
		Name:     h.cfg.SessionCookieName,
		Value:    token,
		Path:     "/",
		HttpOnly: true,
		Secure:   h.cfg.ResolveCookieSecure(r),
		SameSite: http.SameSiteLaxMode,
		Expires:  expiresAt,
		MaxAge:   int(time.Until(expiresAt).Seconds()),
	})
}

func (h *Handlers) clearSessionCookie(w http.ResponseWriter, r *http.Request) {
	http.SetCookie(w, &http.Cookie{
		Name:     h.cfg.SessionCookieName,
		Value:    "",
		Path:     "/",
		HttpOnly: true,
		Secure:   h.cfg.ResolveCookieSecure(r),
		SameSite: http.SameSiteLaxMode,
		MaxAge:   -1,
		Expires:  time.Unix(1, 0).UTC(),
	})
}

type userView struct {
	ID          int64      `json:"id"`
	FirstName   string     `json:"firstName"`
	LastName    string     `json:"lastName"`
	Name        string     `json:"name"`
	Email       string     `json:"email"`
	Phone       *string    `json:"phone"`
	Address     *string    `json:"address"`
	DateOfBirth *string    `json:"dateOfBirth"`
	Role        string     `json:"role"`
	Status      string     `json:"status"`
	CreatedAt   time.Time  `json:"createdAt"`
	UpdatedAt   time.Time  `json:"updatedAt"`
	LastLoginAt *time.Time `json:"lastLoginAt,omitempty"`
}

func newUserView(u models.User) userView {
	return userView{
		ID:          u.ID,
		FirstName:   u.FirstName,
		LastName:    u.LastName,
		Name:        u.Name(),
		Email:       u.Email,
		Phone:       u.Phone,
		Address:     u.Address,
		DateOfBirth: u.DateOfBirth,
		Role:        string(u.Role),
		Status:      string(u.Status),
		CreatedAt:   u.CreatedAt,
		UpdatedAt:   u.UpdatedAt,
		LastLoginAt: u.LastLoginAt,
	}
}

type contactInfo struct {
	Name  string  `json:"name"`
	Email string  `json:"email"`
	Phone *string `json:"phone"`
}

type submissionView struct {
	ID                int64       `json:"id"`
	ContactInfo       contactInfo `json:"contactInfo"`
	Message           string      `json:"message"`
	Services          string      `json:"services"`
	CreatedAt         time.Time   `json:"createdAt"`
	Status            string      `json:"status"`
	DeliveryStatus    string      `json:"deliveryStatus"`
	EmailsSent        int         `json:"emailsSent"`
	EmailsFailed      int         `json:"emailsFailed"`
	DeliveryAttempts  int         `json:"deliveryAttempts"`
	LastDeliveryError *string     `json:"lastDeliveryError,omitempty"`
	DeliveredAt       *time.Time  `json:"deliveredAt,omitempty"`
}

func newSubmissionView(s models.ContactSubmission) submissionView {
	return submissionView{
		ID:                s.ID,
		ContactInfo:       contactInfo{Name: s.Name, Email: s.Email, Phone: s.Phone},
		Message:           s.Message,
		Services:          s.Services,
		CreatedAt:         s.CreatedAt,
		Status:            s.Delivery.Status.Label(),
		DeliveryStatus:    string(s.Delivery.Status),
		EmailsSent:        s.Delivery.EmailsSent,
		EmailsFailed:      s.Delivery.EmailsFailed,
		DeliveryAttempts:  s.Delivery.Attempts,
		LastDeliveryError: s.Delivery.LastError,
		DeliveredAt:       s.Delivery.DeliveredAt,
	}
}
