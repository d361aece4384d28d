package service

import (
	"context"
	"errors"
	"fmt"
	netmail "net/mail"
	"strings"
	"time"

	"fitportal/internal/auth"
	"fitportal/internal/models"
	"fitportal/internal/store"
)

// Session is a freshly issued token and the user it belongs to.
type Session struct {
	Token     string
	ExpiresAt time.Time
	User      models.User
}

type SignupInput struct {
	FirstName string
	LastName  string
	Email     string
	Password  string
	Phone     *string
}

func (s *Service) Login(ctx context.Context, email, password string) (Session, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	v := &ValidationError{}
	if email == "" {
		v.add("email", "email is required")
	}
	if password == "" {
		v.add("password", "password is required")
	}
	if err := v.errOrNil(); err != nil {
		return Session{}, err
	}

	u, err := s.st.GetUserByEmail(ctx, email)
	if errors.Is(err, store.ErrNotFound) {
		return Session{}, ErrInvalidCredentials
	}
	if err != nil {
		return Session{}, err
	}
	if !auth.VerifyPassword(u.PasswordHash, password) {
		return Session{}, ErrInvalidCredentials
	}
	if u.Status != models.UserActive {
		return Session{}, ErrInactive
	}
	if auth.NeedsRehash(u.PasswordHash) {
		if hash, err := auth.HashPassword(password); err == nil {
			if _, err := s.st.UpdateUser(ctx, u.ID, models.UserUpdate{PasswordHash: &hash}); err != nil {
				s.log.Warn().Err(err).Int64("user_id", u.ID).Msg("password rehash failed")
			}
		}
	}
	now := s.now()
	if err := s.st.TouchUserLastLogin(ctx, u.ID, now); err != nil {
		s.log.Warn().Err(err).Int64("user_id", u.ID).Msg("touch last login")
	}
	u.LastLoginAt = &now
	return s.issue(u)
}

// Authenticate verifies raw and resolves the current user record, so role changes apply immediately.
func (s *Service) Authenticate(ctx context.Context, raw string) (models.User, error) {
	p, err := s.tokens.Verify(raw)
	if err != nil {
		return models.User{}, err
	}
	u, err := s.st.GetUserByID(ctx, p.UserID)
	if errors.Is(err, store.ErrNotFound) {
		return models.User{}, fmt.Errorf("%w: user no longer exists", auth.ErrTokenInvalid)
	}
	if err != nil {
		return models.User{}, err
	}
	if u.Status != models.UserActive {
		return models.User{}, ErrInactive
	}
	return u, nil
}

// Refresh accepts a correctly signed token even after expiry and reissues it from the stored user.
func (s *Service) Refresh(ctx context.Context, raw string) (Session, error) {
	p, err := s.tokens.ParseAllowExpired(raw)
	if err != nil {
		return Session{}, err
	}
	u, err := s.st.GetUserByID(ctx, p.UserID)
	if errors.Is(err, store.ErrNotFound) {
		return Session{}, ErrNotFound
	}
	if err != nil {
		return Session{}, err
	}
	if u.Status != models.UserActive {
		return Session{}, ErrInactive
	}
	return s.issue(u)
}

func (s *Service) Signup(ctx context.Context, in SignupInput) (models.User, error) {
	v := &ValidationError{}
	in.FirstName = strings.TrimSpace(in.FirstName)
	in.LastName = strings.TrimSpace(in.LastName)
	in.Email = strings.ToLower(strings.TrimSpace(in.Email))
	if in.FirstName == "" {
		v.add("firstName", "first name is required")
	}
	if in.LastName == "" {
		v.add("lastName", "last name is required")
	}
	checkEmail(v, "email", in.Email)
	if err := s.ValidatePassword(in.Password); err != nil {
		v.add("password", err.Error())
	}
	if err := v.errOrNil(); err != nil {
		return models.User{}, err
	}

	hash, err := auth.HashPassword(in.Password)
	if err != nil {
		return models.User{}, err
	}
	u, err := s.st.CreateUser(ctx, models.User{
		FirstName:    in.FirstName,
		LastName:     in.LastName,
		Email:        in.Email,
		PasswordHash: hash,
		Phone:        trimmedPtr(in.Phone),
		Role:         models.RoleMember,
		Status:       models.UserActive,
	})
	if errors.Is(err, store.ErrConflict) {
		return models.User{}, fmt.Errorf("%w: email already registered", ErrConflict)
	}
	if err != nil {
		return models.User{}, err
	}
	s.log.Info().Int64("user_id", u.ID).Msg("user signed up")
	return u, nil
}

func (s *Service) issue(u models.User) (Session, error) {
	tok, exp, err := s.tokens.Issue(auth.Principal{UserID: u.ID, Email: u.Email, Role: string(u.Role)})
	if err != nil {
		return Session{}, err
	}
	return Session{Token: tok, ExpiresAt: exp, User: u}, nil
}

// ValidatePassword enforces the configured length bounds and at least three character classes.
func (s *Service) ValidatePassword(pw string) error {
	if strings.TrimSpace(pw) == "" {
		return errors.New("password is required")
	}
	if len(pw) < s.cfg.PasswordMinLength {
		return fmt.Errorf("password must be at least %d characters", s.cfg.PasswordMinLength)
	}
	if len(pw) > s.cfg.PasswordMaxLength {
		return fmt.Errorf("password must be at most %d characters", s.cfg.PasswordMaxLength)
	}
	classes := 0
	for _, has := range []func(rune) bool{
		func(r rune) bool { return r >= 'a' && r <= 'z' },
		func(r rune) bool { return r >= 'A' && r <= 'Z' },
		func(r rune) bool { return r >= '0' && r <= '9' },
		func(r rune) bool {
			return (r >= 33 && r <= 47) || (r >= 58 && r <= 64) || (r >= 91 && r <= 96) || (r >= 123 && r <= 126)
		},
	} {
		if strings.IndexFunc(pw, has) >= 0 {
			classes++
		}
	}
	if classes < 3 {
		return errors.New("password must include at least 3 character classes (lower/upper/number/symbol)")
	}
	return nil
}

func checkEmail(v *ValidationError, field, email string) {
	if email == "" {
		v.add(field, "email is required")
		return
	}
	addr, err := netmail.ParseAddress(email)
	if err != nil || addr.Address != email {
		v.add(field, "email is not a valid address")
	}
}

func trimmedPtr(p *string) *string {
	if p == nil {
		return nil
	}
	t := strings.TrimSpace(*p)
	if t == "" {
		return nil
	}
	return &t
}
