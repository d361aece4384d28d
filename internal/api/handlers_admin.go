package api

import (
	"net/http"

	"fitportal/internal/middleware"
	"fitportal/internal/models"
	"fitportal/internal/service"
	"fitportal/internal/util"
)

func (h *Handlers) AdminListSubmissions(w http.ResponseWriter, r *http.Request) {
	subs, err := h.svc.ListSubmissions(r.Context(), queryInt(r, "limit"), queryInt(r, "sinceDays"))
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	out := make([]submissionView, 0, len(subs))
	for _, s := range subs {
		out = append(out, newSubmissionView(s))
	}
	util.WriteJSON(w, http.StatusOK, map[string]any{"submissions": out})
}

func (h *Handlers) AdminGetSubmission(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	sub, err := h.svc.SubmissionDetail(r.Context(), id)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	util.WriteJSON(w, http.StatusOK, map[string]any{"submission": newSubmissionView(sub)})
}

func (h *Handlers) AdminResendSubmission(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	res, err := h.svc.ResendSubmission(r.Context(), id)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	util.WriteJSON(w, http.StatusOK, map[string]any{"emailsSent": res.Sent, "emailsFailed": res.Failed})
}

func (h *Handlers) AdminDeliveryQueue(w http.ResponseWriter, r *http.Request) {
	util.WriteJSON(w, http.StatusOK, h.svc.QueueStatus())
}

func (h *Handlers) AdminListUsers(w http.ResponseWriter, r *http.Request) {
	users, err := h.svc.ListUsers(r.Context(), r.URL.Query().Get("role"), queryInt(r, "limit"), queryInt(r, "offset"))
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	out := make([]userView, 0, len(users))
	for _, u := range users {
		out = append(out, newUserView(u))
	}
	util.WriteJSON(w, http.StatusOK, map[string]any{"users": out})
}

type userRequest struct {
	FirstName   *string `json:"firstName"`
	LastName    *string `json:"lastName"`
	Email       *string `json:"email"`
	Password    *string `json:"password"`
	Phone       *string `json:"phone"`
	Address     *string `json:"address"`
	DateOfBirth *string `json:"dateOfBirth"`
	Role        *string `json:"role"`
	Status      *string `json:"status"`
}

func (req userRequest) input() service.UserInput {
	return service.UserInput{
		FirstName:   req.FirstName,
		LastName:    req.LastName,
		Email:       req.Email,
		Password:    req.Password,
		Phone:       req.Phone,
		Address:     req.Address,
		DateOfBirth: req.DateOfBirth,
		Role:        req.Role,
		Status:      req.Status,
	}
}

func (h *Handlers) AdminCreateUser(w http.ResponseWriter, r *http.Request) {
	var req userRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	u, err := h.svc.CreateUser(r.Context(), req.input())
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	util.WriteJSON(w, http.StatusCreated, map[string]any{"user": newUserView(u)})
}

func (h *Handlers) adminGetUser(role models.Role) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := pathID(w, r)
		if !ok {
			return
		}
		u, err := h.svc.GetUser(r.Context(), id, role)
		if err != nil {
			h.writeServiceError(w, r, err)
			return
		}
		util.WriteJSON(w, http.StatusOK, map[string]any{"user": newUserView(u)})
	}
}

func (h *Handlers) adminUpdateUser(role models.Role) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := pathID(w, r)
		if !ok {
			return
		}
		var req userRequest
		if !decodeJSON(w, r, &req) {
			return
		}
		u, err := h.svc.UpdateUser(r.Context(), id, role, req.input())
		if err != nil {
			h.writeServiceError(w, r, err)
			return
		}
		util.WriteJSON(w, http.StatusOK, map[string]any{"user": newUserView(u)})
	}
}

func (h *Handlers) adminDeleteUser(role models.Role) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := pathID(w, r)
		if !ok {
			return
		}
		actor, _ := middleware.User(r.Context())
		if err := h.svc.DeleteUser(r.Context(), actor.ID, id, role); err != nil {
			h.writeServiceError(w, r, err)
			return
		}
		util.WriteJSON(w, http.StatusOK, map[string]any{"success": true})
	}
}
