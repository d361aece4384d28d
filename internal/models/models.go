package models

import (
	"strings"
	"time"
)

type Role string

const (
	RoleAdmin  Role = "admin"
	RoleClient Role = "client"
	RoleMember Role = "member"
)

func (r Role) Valid() bool {
	switch r {
	case RoleAdmin, RoleClient, RoleMember:
		return true
	}
	return false
}

type UserStatus string

const (
	UserActive   UserStatus = "active"
	UserInactive UserStatus = "inactive"
	UserPending  UserStatus = "pending"
)

func (s UserStatus) Valid() bool {
	switch s {
	case UserActive, UserInactive, UserPending:
		return true
	}
	return false
}

type User struct {
	ID           int64
	FirstName    string
	LastName     string
	Email        string
	PasswordHash string
	Phone        *string
	Address      *string
	DateOfBirth  *string
	Role         Role
	Status       UserStatus
	CreatedAt    time.Time
	UpdatedAt    time.Time
	LastLoginAt  *time.Time
}

func (u User) Name() string {
	return strings.TrimSpace(u.FirstName + " " + u.LastName)
}

// UserUpdate carries the fields to change; nil means untouched.
type UserUpdate struct {
	FirstName    *string
	LastName     *string
	Email        *string
	Phone        *string
	Address      *string
	DateOfBirth  *string
	Role         *Role
	Status       *UserStatus
	PasswordHash *string
}

func (u UserUpdate) Empty() bool {
	return u.FirstName == nil && u.LastName == nil && u.Email == nil && u.Phone == nil &&
		u.Address == nil && u.DateOfBirth == nil && u.Role == nil && u.Status == nil && u.PasswordHash == nil
}

type UserQuery struct {
	Role   Role
	Limit  int
	Offset int
}

type DeliveryStatus string

const (
	DeliveryPending DeliveryStatus = "pending"
	DeliveryPartial DeliveryStatus = "partial"
	DeliverySent    DeliveryStatus = "sent"
	DeliveryFailed  DeliveryStatus = "failed"
)

// Label is the operator-facing wording shown in submission listings.
func (s DeliveryStatus) Label() string {
	switch s {
	case DeliverySent:
		return "Delivered"
	case DeliveryFailed:
		return "Delivery failed"
	default:
		return "Pending email retry"
	}
}

type Delivery struct {
	Status       DeliveryStatus
	EmailsSent   int
	EmailsFailed int
	Attempts     int
	LastError    *string
	DeliveredAt  *time.Time
}

type ContactSubmission struct {
	ID        int64
	Name      string
	FirstName string
	LastName  string
	Email     string
	Phone     *string
	Message   string
	Services  string
	SourceIP  string
	CreatedAt time.Time
	Delivery  Delivery
}

type SubmissionQuery struct {
	Since time.Time
	Limit int
}
