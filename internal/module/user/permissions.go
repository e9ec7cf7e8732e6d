package user

import "github.com/simp-lee/hive/internal/domain"

// Permissions reported in the metadata of authorization errors.
const (
	PermissionManageUsers = "can_manage_users"
	PermissionViewUser    = "can_view_user"
)

// CanManageUsers reports whether p may list, create, change or delete users.
// It requires an active admin or system principal.
func CanManageUsers(p domain.Principal) bool {
	return p != nil && p.IsAuthenticated() && p.IsActive() &&
		(p.HasRole(domain.RoleAdmin) || p.HasRole(domain.RoleSystem))
}

// CanViewUser reports whether p may read the user with the given id. Active
// principals may always read themselves.
func CanViewUser(p domain.Principal, id uint) bool {
	if CanManageUsers(p) {
		return true
	}
	return p != nil && p.IsAuthenticated() && p.IsActive() && p.PrincipalID() == id
}

// authorize returns nil when allowed, the unauthenticated error for anonymous
// principals and an authorization error naming permission otherwise.
func authorize(p domain.Principal, allowed bool, permission string) error {
	switch {
	case allowed:
		return nil
	case p == nil || !p.IsAuthenticated():
		return domain.ErrUnauthenticated
	default:
		return domain.Forbidden(permission)
	}
}
