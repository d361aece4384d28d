package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"fitportal/internal/auth"
	"fitportal/internal/models"
	"fitportal/internal/store"
)

// ProfileUpdate holds the fields a user may change on their own account.
type ProfileUpdate struct {
	FirstName   *string
	LastName    *string
	Phone       *string
	Address     *string
	DateOfBirth *string
}

// UserInput is an admin create or update. On update, nil fields stay untouched.
type UserInput struct {
	FirstName   *string
	LastName    *string
	Email       *string
	Password    *string
	Phone       *string
	Address     *string
	DateOfBirth *string
	Role        *string
	Status      *string
}

func (s *Service) Me(ctx context.Context, id int64) (models.User, error) {
	return s.GetUser(ctx, id, "")
}

func (s *Service) UpdateProfile(ctx context.Context, id int64, in ProfileUpdate) (models.User, error) {
	v := &ValidationError{}
	if in.FirstName != nil && strings.TrimSpace(*in.FirstName) == "" {
		v.add("firstName", "first name cannot be empty")
	}
	if in.LastName != nil && strings.TrimSpace(*in.LastName) == "" {
		v.add("lastName", "last name cannot be empty")
	}
	if err := v.errOrNil(); err != nil {
		return models.User{}, err
	}
	upd := models.UserUpdate{
		FirstName:   in.FirstName,
		LastName:    in.LastName,
		Phone:       in.Phone,
		Address:     in.Address,
		DateOfBirth: in.DateOfBirth,
	}
	if upd.Empty() {
		return models.User{}, invalid("body", "no updatable fields supplied")
	}
	return s.updateUser(ctx, id, upd)
}

func (s *Service) ListUsers(ctx context.Context, role string, limit, offset int) ([]models.User, error) {
	q := models.UserQuery{Role: models.Role(strings.ToLower(strings.TrimSpace(role))), Limit: clamp(limit, 50, 1, 200), Offset: offset}
	if q.Role != "" && !q.Role.Valid() {
		return nil, invalid("role", "unknown role")
	}
	if q.Offset < 0 {
		q.Offset = 0
	}
	return s.st.ListUsers(ctx, q)
}

// GetUser loads a user. A non-empty role hides users whose role differs.
func (s *Service) GetUser(ctx context.Context, id int64, role models.Role) (models.User, error) {
	u, err := s.st.GetUserByID(ctx, id)
	if errors.Is(err, store.ErrNotFound) {
		return models.User{}, ErrNotFound
	}
	if err != nil {
		return models.User{}, err
	}
	if role != "" && u.Role != role {
		return models.User{}, ErrNotFound
	}
	return u, nil
}

func (s *Service) CreateUser(ctx context.Context, in UserInput) (models.User, error) {
	v := &ValidationError{}
	u := models.User{Role: models.RoleClient, Status: models.UserActive}
	u.FirstName = strings.TrimSpace(deref(in.FirstName))
	u.LastName = strings.TrimSpace(deref(in.LastName))
	u.Email = strings.ToLower(strings.TrimSpace(deref(in.Email)))
	if u.FirstName == "" {
		v.add("firstName", "first name is required")
	}
	if u.LastName == "" {
		v.add("lastName", "last name is required")
	}
	checkEmail(v, "email", u.Email)
	if err := s.ValidatePassword(deref(in.Password)); err != nil {
		v.add("password", err.Error())
	}
	if in.Role != nil {
		u.Role = models.Role(strings.ToLower(strings.TrimSpace(*in.Role)))
		if !u.Role.Valid() {
			v.add("role", "unknown role")
		}
	}
	if in.Status != nil {
		u.Status = models.UserStatus(strings.ToLower(strings.TrimSpace(*in.Status)))
		if !u.Status.Valid() {
			v.add("status", "unknown status")
		}
	}
	if err := v.errOrNil(); err != nil {
		return models.User{}, err
	}

	hash, err := auth.HashPassword(*in.Password)
	if err != nil {
		return models.User{}, err
	}
	u.PasswordHash = hash
	u.Phone = trimmedPtr(in.Phone)
	u.Address = trimmedPtr(in.Address)
	u.DateOfBirth = trimmedPtr(in.DateOfBirth)

	created, err := s.st.CreateUser(ctx, u)
	if errors.Is(err, store.ErrConflict) {
		return models.User{}, fmt.Errorf("%w: email already registered", ErrConflict)
	}
	if err != nil {
		return models.User{}, err
	}
	s.log.Info().Int64("user_id", created.ID).Str("role", string(created.Role)).Msg("user created by admin")
	return created, nil
}

func (s *Service) UpdateUser(ctx context.Context, id int64, role models.Role, in UserInput) (models.User, error) {
	if _, err := s.GetUser(ctx, id, role); err != nil {
		return models.User{}, err
	}

	v := &ValidationError{}
	upd := models.UserUpdate{
		FirstName:   in.FirstName,
		LastName:    in.LastName,
		Phone:       in.Phone,
		Address:     in.Address,
		DateOfBirth: in.DateOfBirth,
	}
	if in.FirstName != nil && strings.TrimSpace(*in.FirstName) == "" {
		v.add("firstName", "first name cannot be empty")
	}
	if in.LastName != nil && strings.TrimSpace(*in.LastName) == "" {
		v.add("lastName", "last name cannot be empty")
	}
	if in.Email != nil {
		email := strings.ToLower(strings.TrimSpace(*in.Email))
		checkEmail(v, "email", email)
		upd.Email = &email
	}
	if in.Role != nil {
		r := models.Role(strings.ToLower(strings.TrimSpace(*in.Role)))
		if !r.Valid() {
			v.add("role", "unknown role")
		}
		upd.Role = &r
	}
	if in.Status != nil {
		st := models.UserStatus(strings.ToLower(strings.TrimSpace(*in.Status)))
		if !st.Valid() {
			v.add("status", "unknown status")
		}
		upd.Status = &st
	}
	if in.Password != nil {
		if err := s.ValidatePassword(*in.Password); err != nil {
			v.add("password", err.Error())
		}
	}
	if err := v.errOrNil(); err != nil {
		return models.User{}, err
	}
	if in.Password != nil {
		hash, err := auth.HashPassword(*in.Password)
		if err != nil {
			return models.User{}, err
		}
		upd.PasswordHash = &hash
	}
	if upd.Empty() {
		return models.User{}, invalid("body", "no updatable fields supplied")
	}
	return s.updateUser(ctx, id, upd)
}

// DeleteUser hard-deletes a user. Admins cannot delete their own account.
func (s *Service) DeleteUser(ctx context.Context, actorID, id int64, role models.Role) error {
	if actorID == id {
		return fmt.Errorf("%w: cannot delete your own account", ErrForbidden)
	}
	if _, err := s.GetUser(ctx, id, role); err != nil {
		return err
	}
	err := s.st.DeleteUser(ctx, id)
	if errors.Is(err, store.ErrNotFound) {
		return ErrNotFound
	}
	if err != nil {
		return err
	}
	s.log.Info().Int64("user_id", id).Int64("actor_id", actorID).Msg("user deleted")
	return nil
}

func (s *Service) updateUser(ctx context.Context, id int64, upd models.UserUpdate) (models.User, error) {
	u, err := s.st.UpdateUser(ctx, id, upd)
	switch {
	case errors.Is(err, store.ErrNotFound):
		return models.User{}, ErrNotFound
	case errors.Is(err, store.ErrConflict):
		return models.User{}, fmt.Errorf("%w: email already registered", ErrConflict)
	}
	return u, err
}

func deref(p *string) string {
	if p == nil {
		return ""
	}
	return *p
}

func clamp(v, def, lo, hi int) int {
	if v == 0 {
		v = def
	}
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
