package store

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	"fitportal/internal/models"
)

const userColumns = `id,first_name,last_name,email,password_hash,phone,address,date_of_birth,role,status,created_at,updated_at,last_login_at`

func scanUser(row scanner) (models.User, error) {
	var u models.User
	var phone, address, dob sql.NullString
	var lastLogin sql.NullTime
	err := row.Scan(&u.ID, &u.FirstName, &u.LastName, &u.Email, &u.PasswordHash, &phone, &address, &dob, &u.Role, &u.Status, &u.CreatedAt, &u.UpdatedAt, &lastLogin)
	if errors.Is(err, sql.ErrNoRows) {
		return models.User{}, ErrNotFound
	}
	if err != nil {
		return models.User{}, err
	}
	u.Phone = stringPtr(phone)
	u.Address = stringPtr(address)
	u.DateOfBirth = stringPtr(dob)
	u.LastLoginAt = timePtr(lastLogin)
	u.CreatedAt = u.CreatedAt.UTC()
	u.UpdatedAt = u.UpdatedAt.UTC()
	return u, nil
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func (s *Store) CreateUser(ctx context.Context, u models.User) (models.User, error) {
	now := time.Now().UTC()
	u.Email = normalizeEmail(u.Email)
	u.CreatedAt = now
	u.UpdatedAt = now
	if u.Role == "" {
		u.Role = models.RoleMember
	}
	if u.Status == "" {
		u.Status = models.UserActive
	}
	id, err := s.insert(ctx,
		`INSERT INTO users(first_name,last_name,email,password_hash,phone,address,date_of_birth,role,status,created_at,updated_at) VALUES(?,?,?,?,?,?,?,?,?,?,?)`,
		strings.TrimSpace(u.FirstName), strings.TrimSpace(u.LastName), u.Email, u.PasswordHash,
		nullable(u.Phone), nullable(u.Address), nullable(u.DateOfBirth), string(u.Role), string(u.Status), now, now,
	)
	if isUniqueViolation(err) {
		return models.User{}, ErrConflict
	}
	if err != nil {
		return models.User{}, err
	}
	u.ID = id
	return u, nil
}

// EnsureAdmin creates the bootstrap admin, or promotes and resets the existing account with that email.
func (s *Store) EnsureAdmin(ctx context.Context, email, passwordHash string) error {
	email = normalizeEmail(email)
	if email == "" || passwordHash == "" {
		return nil
	}
	u, err := s.GetUserByEmail(ctx, email)
	if errors.Is(err, ErrNotFound) {
		_, err = s.CreateUser(ctx, models.User{
			FirstName:    "Site",
			LastName:     "Admin",
			Email:        email,
			PasswordHash: passwordHash,
			Role:         models.RoleAdmin,
			Status:       models.UserActive,
		})
		return err
	}
	if err != nil {
		return err
	}
	_, err = s.exec(ctx,
		`UPDATE users SET role='admin', status='active', password_hash=?, updated_at=? WHERE id=?`,
		passwordHash, time.Now().UTC(), u.ID,
	)
	return err
}

func (s *Store) GetUserByEmail(ctx context.Context, email string) (models.User, error) {
	return scanUser(s.queryRow(ctx, `SELECT `+userColumns+` FROM users WHERE email=?`, normalizeEmail(email)))
}

func (s *Store) GetUserByID(ctx context.Context, id int64) (models.User, error) {
	return scanUser(s.queryRow(ctx, `SELECT `+userColumns+` FROM users WHERE id=?`, id))
}

func (s *Store) ListUsers(ctx context.Context, q models.UserQuery) ([]models.User, error) {
	query := `SELECT ` + userColumns + ` FROM users`
	var args []any
	if q.Role != "" {
		query += ` WHERE role=?`
		args = append(args, string(q.Role))
	}
	query += ` ORDER BY created_at DESC, id DESC LIMIT ? OFFSET ?`
	args = append(args, q.Limit, q.Offset)

	rows, err := s.query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]models.User, 0, q.Limit)
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, u)
	}
	return out, rows.Err()
}

func (s *Store) UpdateUser(ctx context.Context, id int64, upd models.UserUpdate) (models.User, error) {
	var sets []string
	var args []any
	set := func(col string, v any) {
		sets = append(sets, col+"=?")
		args = append(args, v)
	}
	if upd.FirstName != nil {
		set("first_name", strings.TrimSpace(*upd.FirstName))
	}
	if upd.LastName != nil {
		set("last_name", strings.TrimSpace(*upd.LastName))
	}
	if upd.Email != nil {
		set("email", normalizeEmail(*upd.Email))
	}
	if upd.Phone != nil {
		set("phone", nullable(upd.Phone))
	}
	if upd.Address != nil {
		set("address", nullable(upd.Address))
	}
	if upd.DateOfBirth != nil {
		set("date_of_birth", nullable(upd.DateOfBirth))
	}
	if upd.Role != nil {
		set("role", string(*upd.Role))
	}
	if upd.Status != nil {
		set("status", string(*upd.Status))
	}
	if upd.PasswordHash != nil {
		set("password_hash", *upd.PasswordHash)
	}
	set("updated_at", time.Now().UTC())
	args = append(args, id)

	res, err := s.exec(ctx, `UPDATE users SET `+strings.Join(sets, ",")+` WHERE id=?`, args...)
	if isUniqueViolation(err) {
		return models.User{}, ErrConflict
	}
	if err != nil {
		return models.User{}, err
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return models.User{}, ErrNotFound
	}
	return s.GetUserByID(ctx, id)
}

func (s *Store) DeleteUser(ctx context.Context, id int64) error {
	res, err := s.exec(ctx, `DELETE FROM users WHERE id=?`, id)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *Store) TouchUserLastLogin(ctx context.Context, id int64, at time.Time) error {
	_, err := s.exec(ctx, `UPDATE users SET last_login_at=? WHERE id=?`, at, id)
	return err
}
