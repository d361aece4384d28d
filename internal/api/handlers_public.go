package api

import (
	"encoding/json"
	"net/http"
	"strings"

	"fitportal/internal/middleware"
	"fitportal/internal/service"
	"fitportal/internal/util"
)

// stringList accepts either a JSON string or an array of strings.
type stringList []string

func (l *stringList) UnmarshalJSON(b []byte) error {
	if string(b) == "null" {
		*l = nil
		return nil
	}
	var one string
	if err := json.Unmarshal(b, &one); err == nil {
		*l = stringList{one}
		return nil
	}
	var many []string
	if err := json.Unmarshal(b, &many); err != nil {
		return err
	}
	*l = many
	return nil
}

type contactRequest struct {
	Name         string     `json:"name"`
	FirstName    string     `json:"firstName"`
	LastName     string     `json:"lastName"`
	Email        string     `json:"email"`
	Phone        string     `json:"phone"`
	Message      string     `json:"message"`
	Services     stringList `json:"services"`
	CaptchaToken string     `json:"captchaToken"`
}

func (h *Handlers) Contact(w http.ResponseWriter, r *http.Request) {
	var req contactRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	ip := middleware.ClientIP(r, h.cfg.TrustProxy)
	if err := h.captchaVerifier.Verify(r.Context(), req.CaptchaToken, ip); err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	res, err := h.svc.SubmitContact(r.Context(), service.ContactInput{
		Name:      req.Name,
		FirstName: req.FirstName,
		LastName:  req.LastName,
		Email:     req.Email,
		Phone:     req.Phone,
		Message:   req.Message,
		Services:  req.Services,
		SourceIP:  ip,
	})
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	util.WriteJSON(w, http.StatusCreated, map[string]any{
		"success":      true,
		"submissionId": res.SubmissionID,
		"recorded":     res.Recorded,
		"emailsSent":   res.EmailsSent,
		"emailsFailed": res.EmailsFailed,
	})
}

type signupRequest struct {
	FirstName    string  `json:"firstName"`
	LastName     string  `json:"lastName"`
	Email        string  `json:"email"`
	Password     string  `json:"password"`
	Phone        *string `json:"phone"`
	CaptchaToken string  `json:"captchaToken"`
}

func (h *Handlers) Signup(w http.ResponseWriter, r *http.Request) {
	var req signupRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if err := h.captchaVerifier.Verify(r.Context(), req.CaptchaToken, middleware.ClientIP(r, h.cfg.TrustProxy)); err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	u, err := h.svc.Signup(r.Context(), service.SignupInput{
		FirstName: req.FirstName,
		LastName:  req.LastName,
		Email:     req.Email,
		Password:  req.Password,
		Phone:     req.Phone,
	})
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	util.WriteJSON(w, http.StatusCreated, map[string]any{"user": newUserView(u)})
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

func (h *Handlers) Login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	sess, err := h.svc.Login(r.Context(), req.Email, req.Password)
	if err != nil {
		h.log.Info().
			Str("email", strings.ToLower(strings.TrimSpace(req.Email))).
			Str("remote_ip", middleware.ClientIP(r, h.cfg.TrustProxy)).
			Str("request_id", middleware.RequestID(r.Context())).
			Err(err).Msg("login rejected")
		h.writeServiceError(w, r, err)
		return
	}
	h.setSessionCookie(w, r, sess.Token, sess.ExpiresAt)
	util.WriteJSON(w, http.StatusOK, map[string]any{
		"user":      newUserView(sess.User),
		"token":     sess.Token,
		"expiresAt": sess.ExpiresAt,
	})
}

func (h *Handlers) Logout(w http.ResponseWriter, r *http.Request) {
	h.clearSessionCookie(w, r)
	util.WriteJSON(w, http.StatusOK, map[string]any{"success": true})
}

func (h *Handlers) Refresh(w http.ResponseWriter, r *http.Request) {
	raw := middleware.TokenFromRequest(r, h.cfg.SessionCookieName)
	if raw == "" {
		util.WriteError(w, http.StatusUnauthorized, "unauthenticated", "authentication required", middleware.RequestID(r.Context()))
		return
	}
	sess, err := h.svc.Refresh(r.Context(), raw)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	h.setSessionCookie(w, r, sess.Token, sess.ExpiresAt)
	util.WriteJSON(w, http.StatusOK, map[string]any{
		"user":      newUserView(sess.User),
		"token":     sess.Token,
		"expiresAt": sess.ExpiresAt,
	})
}

func (h *Handlers) Me(w http.ResponseWriter, r *http.Request) {
	u, _ := middleware.User(r.Context())
	util.WriteJSON(w, http.StatusOK, map[string]any{"user": newUserView(u)})
}

type profileRequest struct {
	FirstName   *string `json:"firstName"`
	LastName    *string `json:"lastName"`
	Phone       *string `json:"phone"`
	Address     *string `json:"address"`
	DateOfBirth *string `json:"dateOfBirth"`
}

func (h *Handlers) UpdateMe(w http.ResponseWriter, r *http.Request) {
	u, _ := middleware.User(r.Context())
	var req profileRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	updated, err := h.svc.UpdateProfile(r.Context(), u.ID, service.ProfileUpdate{
		FirstName:   req.FirstName,
		LastName:    req.LastName,
		Phone:       req.Phone,
		Address:     req.Address,
		DateOfBirth: req.DateOfBirth,
	})
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	util.WriteJSON(w, http.StatusOK, map[string]any{"user": newUserView(updated)})
}
