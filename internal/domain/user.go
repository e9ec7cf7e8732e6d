package domain

import (
	"context"
	"strings"
	"time"
)

// User represents a user in the system.
type User struct {
	BaseModel
	Email           string     `gorm:"size:255;uniqueIndex;not null" json:"email"`
	FirstName       string     `gorm:"size:150" json:"first_name"`
	LastName        string     `gorm:"size:150" json:"last_name"`
	PasswordHash    string     `gorm:"size:255" json:"-"`
	Active          bool       `gorm:"not null" json:"is_active"`
	EmailVerifiedAt *time.Time `json:"email_verified_at"`
	Roles           []Role     `gorm:"many2many:user_roles" json:"roles,omitempty"`
}

// FullName joins first and last name.
func (u *User) FullName() string {
	return strings.TrimSpace(u.FirstName + " " + u.LastName)
}

// PrincipalID implements Principal.
func (u *User) PrincipalID() uint { return u.ID }

// IsAuthenticated implements Principal.
func (u *User) IsAuthenticated() bool { return true }

// IsActive implements Principal.
func (u *User) IsActive() bool { return u.Active }

// HasRole implements Principal. Only loaded roles are considered.
func (u *User) HasRole(name string) bool {
	for _, r := range u.Roles {
		if r.Name == name {
			return true
		}
	}
	return false
}

// Role names seeded for every installation.
const (
	RoleAdmin  = "admin"
	RoleUser   = "user"
	RoleSystem = "system"
)

// Role groups users for authorization.
type Role struct {
	BaseModel
	Name        string `gorm:"size:100;uniqueIndex;not null" json:"name"`
	DisplayName string `gorm:"size:150" json:"display_name"`
	Domain      string `gorm:"size:100" json:"domain"`
	Description string `gorm:"size:500" json:"description"`
}

// UserRepository defines the data access interface for users.
type UserRepository interface {
	Create(ctx context.Context, user *User) error
	GetByID(ctx context.Context, id uint) (*User, error)
	GetByEmail(ctx context.Context, email string) (*User, error)
	List(ctx context.Context, q ListQuery) (*Page[User], error)
	Update(ctx context.Context, user *User) error
	ReplaceRoles(ctx context.Context, user *User, roleUUIDs []string) error
	Delete(ctx context.Context, id uint) error
}

// CreateUserParams carries the fields accepted when creating a user.
type CreateUserParams struct {
	Email     string
	FirstName string
	LastName  string
	RoleIDs   []string
}

// UpdateUserParams carries the fields accepted when updating a user.
// A nil RoleIDs leaves role membership untouched.
type UpdateUserParams struct {
	FirstName string
	LastName  string
	RoleIDs   []string
}

// UserService defines the business logic interface for users.
type UserService interface {
	CreateUser(ctx context.Context, p CreateUserParams) (*User, error)
	GetUser(ctx context.Context, id uint) (*User, error)
	ListUsers(ctx context.Context, q ListQuery) (*Page[User], error)
	UpdateUser(ctx context.Context, id uint, p UpdateUserParams) (*User, error)
	DeleteUser(ctx context.Context, id uint) error
}
