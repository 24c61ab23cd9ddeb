package user

import (
	"errors"
	"time"
)

type Status string

const (
	StatusActive    Status = "ACTIVE"
	StatusSuspended Status = "SUSPENDED"
)

// Account-state errors shared by login and refresh flows. They are distinct
// from authentication failures: the caller proved who they are but is not
// permitted to proceed.
var (
	ErrNotFound         = errors.New("user not found")
	ErrAccountSuspended = errors.New("account is suspended")
	ErrEmailNotVerified = errors.New("email address is not verified")
)

type User struct {
	ID            string     `json:"id" gorm:"primaryKey;size:36"`
	Email         string     `json:"email" gorm:"uniqueIndex;size:255;not null"`
	PasswordHash  string     `json:"-" gorm:"size:255;not null"`
	FirstName     string     `json:"first_name" gorm:"size:100"`
	LastName      string     `json:"last_name" gorm:"size:100"`
	Phone         string     `json:"phone" gorm:"size:32"`
	Status        Status     `json:"status" gorm:"size:20;not null;default:ACTIVE"`
	EmailVerified bool       `json:"email_verified" gorm:"not null;default:false"`
	LastLoginAt   *time.Time `json:"last_login_at"`
	CreatedAt     time.Time  `json:"created_at"`
	UpdatedAt     time.Time  `json:"updated_at"`
}

func (User) TableName() string {
	return "users"
}

func (u *User) Suspended() bool {
	return u.Status == StatusSuspended
}

type Role struct {
	ID        string    `json:"id" gorm:"primaryKey;size:36"`
	Name      string    `json:"name" gorm:"uniqueIndex;size:64;not null"`
	CreatedAt time.Time `json:"created_at"`
}

func (Role) TableName() string {
	return "roles"
}

// UserRole is an explicit join row. Roles are always fetched by user ID,
// never navigated through association graphs.
type UserRole struct {
	UserID string `gorm:"primaryKey;size:36"`
	RoleID string `gorm:"primaryKey;size:36"`
}

func (UserRole) TableName() string {
	return "user_roles"
}

// Profile is the public projection of a user, safe to return to clients.
type Profile struct {
	ID            string     `json:"id"`
	Email         string     `json:"email"`
	FirstName     string     `json:"first_name"`
	LastName      string     `json:"last_name"`
	Phone         string     `json:"phone"`
	Status        Status     `json:"status"`
	EmailVerified bool       `json:"email_verified"`
	Roles         []string   `json:"roles"`
	LastLoginAt   *time.Time `json:"last_login_at,omitempty"`
	CreatedAt     time.Time  `json:"created_at"`
}

func (u *User) ToProfile(roles []string) *Profile {
	return &Profile{
		ID:            u.ID,
		Email:         u.Email,
		FirstName:     u.FirstName,
		LastName:      u.LastName,
		Phone:         u.Phone,
		Status:        u.Status,
		EmailVerified: u.EmailVerified,
		Roles:         roles,
		LastLoginAt:   u.LastLoginAt,
		CreatedAt:     u.CreatedAt,
	}
}
