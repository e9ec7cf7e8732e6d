package user

import (
	"context"
	"strings"

	"gorm.io/gorm"

	"github.com/simp-lee/hive/internal/domain"
	"github.com/simp-lee/hive/internal/pkg"
	"github.com/simp-lee/hive/internal/pkg/validation"
)

const maxNameLength = 150

// userService implements domain.UserService.
type userService struct {
	db   *gorm.DB
	repo domain.UserRepository

	createRules validation.Schema
	updateRules validation.Schema
}

// NewUserService creates a UserService. Writes that touch role links run in
// a transaction on db.
func NewUserService(db *gorm.DB, repo domain.UserRepository) domain.UserService {
	names := []validation.Binding{
		validation.On("first_name", validation.Length(0, maxNameLength)),
		validation.On("last_name", validation.Length(0, maxNameLength)),
	}
	roles := validation.On("role_ids", validation.AllShouldExist(db, &domain.Role{}, "uuid"))

	create := validation.Schema{
		validation.On("email", validation.Required(), validation.Email(),
			validation.ShouldNotExist(db, &domain.User{}, "email")),
	}
	create = append(create, names...)
	create = append(create, roles)

	update := append(validation.Schema{}, names...)
	update = append(update, roles)

	return &userService{db: db, repo: repo, createRules: create, updateRules: update}
}

func createValues(p domain.CreateUserParams) map[string]any {
	return map[string]any{
		"email":      p.Email,
		"first_name": p.FirstName,
		"last_name":  p.LastName,
		"role_ids":   p.RoleIDs,
	}
}

func updateValues(p domain.UpdateUserParams) map[string]any {
	return map[string]any{
		"first_name": p.FirstName,
		"last_name":  p.LastName,
		"role_ids":   p.RoleIDs,
	}
}

func requireManager(ctx context.Context) error {
	p := domain.PrincipalFrom(ctx)
	return authorize(p, CanManageUsers(p), PermissionManageUsers)
}

// CreateUser validates p and stores the user with its roles.
func (s *userService) CreateUser(ctx context.Context, p domain.CreateUserParams) (*domain.User, error) {
	if err := requireManager(ctx); err != nil {
		return nil, err
	}
	p.Email = strings.ToLower(strings.TrimSpace(p.Email))
	p.FirstName = strings.TrimSpace(p.FirstName)
	p.LastName = strings.TrimSpace(p.LastName)

	err := validation.Validate(ctx, validation.MapInput{Values: createValues(p), Schema: s.createRules},
		validation.WithPrincipal(domain.PrincipalFrom(ctx)))
	if err != nil {
		return nil, err
	}

	user := &domain.User{
		Email:     p.Email,
		FirstName: p.FirstName,
		LastName:  p.LastName,
		Active:    true,
	}
	err = pkg.WithTx(ctx, s.db, func(tx *gorm.DB) error {
		repo := NewUserRepository(tx)
		if err := repo.Create(ctx, user); err != nil {
			return err
		}
		if len(p.RoleIDs) == 0 {
			return nil
		}
		return repo.ReplaceRoles(ctx, user, p.RoleIDs)
	})
	if err != nil {
		return nil, err
	}
	return user, nil
}

// GetUser retrieves a user by ID. Principals without the manage permission
// only see themselves.
func (s *userService) GetUser(ctx context.Context, id uint) (*domain.User, error) {
	p := domain.PrincipalFrom(ctx)
	if err := authorize(p, CanViewUser(p, id), PermissionViewUser); err != nil {
		return nil, err
	}
	return s.repo.GetByID(ctx, id)
}

// ListUsers returns one cursor page of users.
func (s *userService) ListUsers(ctx context.Context, q domain.ListQuery) (*domain.Page[domain.User], error) {
	if err := requireManager(ctx); err != nil {
		return nil, err
	}
	return s.repo.List(ctx, q)
}

// UpdateUser validates p, then applies it to the stored user. A nil
// p.RoleIDs keeps the current roles; an empty one removes them all.
func (s *userService) UpdateUser(ctx context.Context, id uint, p domain.UpdateUserParams) (*domain.User, error) {
	if err := requireManager(ctx); err != nil {
		return nil, err
	}
	p.FirstName = strings.TrimSpace(p.FirstName)
	p.LastName = strings.TrimSpace(p.LastName)

	err := validation.Validate(ctx, validation.MapInput{Values: updateValues(p), Schema: s.updateRules},
		validation.WithPrincipal(domain.PrincipalFrom(ctx)))
	if err != nil {
		return nil, err
	}

	user, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	user.FirstName = p.FirstName
	user.LastName = p.LastName

	err = pkg.WithTx(ctx, s.db, func(tx *gorm.DB) error {
		repo := NewUserRepository(tx)
		if err := repo.Update(ctx, user); err != nil {
			return err
		}
		if p.RoleIDs == nil {
			return nil
		}
		return repo.ReplaceRoles(ctx, user, p.RoleIDs)
	})
	if err != nil {
		return nil, err
	}
	return user, nil
}

// DeleteUser removes a user by ID.
func (s *userService) DeleteUser(ctx context.Context, id uint) error {
	if err := requireManager(ctx); err != nil {
		return err
	}
	return s.repo.Delete(ctx, id)
}
