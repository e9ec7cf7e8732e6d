package user

import (
	"time"

	"github.com/simp-lee/hive/internal/domain"
)

// CreateUserRequest is the body of POST /users. Field rules are enforced by
// the service.
type CreateUserRequest struct {
	Email     string   `json:"email"`
	FirstName string   `json:"first_name"`
	LastName  string   `json:"last_name"`
	RoleIDs   []string `json:"role_ids"`
}

// UpdateUserRequest is the body of PUT /users/:id. Omitting role_ids keeps
// the current roles.
type UpdateUserRequest struct {
	FirstName string   `json:"first_name"`
	LastName  string   `json:"last_name"`
	RoleIDs   []string `json:"role_ids"`
}

// RoleResponse is the public view of a role.
type RoleResponse struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	DisplayName string `json:"display_name"`
}

// UserResponse is the public view of a user.
type UserResponse struct {
	ID              uint           `json:"id"`
	UUID            string         `json:"uuid"`
	Email           string         `json:"email"`
	FirstName       string         `json:"first_name"`
	LastName        string         `json:"last_name"`
	FullName        string         `json:"full_name"`
	IsActive        bool           `json:"is_active"`
	EmailVerifiedAt *time.Time     `json:"email_verified_at"`
	Roles           []RoleResponse `json:"roles"`
	CreatedAt       time.Time      `json:"created_at"`
	UpdatedAt       time.Time      `json:"updated_at"`
}

// NewUserResponse maps a user to its public view.
func NewUserResponse(u domain.User) UserResponse {
	roles := make([]RoleResponse, len(u.Roles))
	for i, r := range u.Roles {
		roles[i] = RoleResponse{ID: r.UUID, Name: r.Name, DisplayName: r.DisplayName}
	}
	return UserResponse{
		ID:              u.ID,
		UUID:            u.UUID,
		Email:           u.Email,
		FirstName:       u.FirstName,
		LastName:        u.LastName,
		FullName:        u.FullName(),
		IsActive:        u.Active,
		EmailVerifiedAt: u.EmailVerifiedAt,
		Roles:           roles,
		CreatedAt:       u.CreatedAt,
		UpdatedAt:       u.UpdatedAt,
	}
}

// toResponsePage maps a page of users, keeping cursors and page info.
func toResponsePage(p *domain.Page[domain.User]) *domain.Page[UserResponse] {
	out := &domain.Page[UserResponse]{
		Edges:    make([]domain.Edge[UserResponse], len(p.Edges)),
		PageInfo: p.PageInfo,
	}
	for i, e := range p.Edges {
		out.Edges[i] = domain.Edge[UserResponse]{Cursor: e.Cursor, Node: NewUserResponse(e.Node)}
	}
	return out
}
