package user

import (
	"context"
	"errors"
	"strings"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/simp-lee/hive/internal/domain"
	"github.com/simp-lee/hive/internal/pkg"
	"github.com/simp-lee/hive/internal/pkg/paging"
)

// allowedFilterFields may be used as query filters on List.
var allowedFilterFields = []string{"email", "first_name", "last_name"}

// userRepository implements domain.UserRepository using GORM.
type userRepository struct {
	db *gorm.DB
}

// NewUserRepository creates a new UserRepository backed by the given GORM database.
func NewUserRepository(db *gorm.DB) domain.UserRepository {
	return &userRepository{db: db}
}

// Create inserts user and links the roles already set on it.
func (r *userRepository) Create(ctx context.Context, user *domain.User) error {
	if err := r.db.WithContext(ctx).Omit("Roles.*").Create(user).Error; err != nil {
		return mapError(err)
	}
	return nil
}

// GetByID retrieves a user and its roles by primary key.
func (r *userRepository) GetByID(ctx context.Context, id uint) (*domain.User, error) {
	var user domain.User
	if err := r.db.WithContext(ctx).Preload("Roles").First(&user, id).Error; err != nil {
		return nil, mapError(err)
	}
	return &user, nil
}

// GetByEmail retrieves a user by exact email.
func (r *userRepository) GetByEmail(ctx context.Context, email string) (*domain.User, error) {
	var user domain.User
	if err := r.db.WithContext(ctx).Where("email = ?", email).First(&user).Error; err != nil {
		return nil, mapError(err)
	}
	return &user, nil
}

// List returns one cursor page of users ordered by id.
func (r *userRepository) List(ctx context.Context, q domain.ListQuery) (*domain.Page[domain.User], error) {
	base := r.db.WithContext(ctx).Model(&domain.User{}).
		Preload("Roles").
		Scopes(pkg.Filter(q.Filter, allowedFilterFields))

	page, err := paging.Paginate(ctx, paging.NewGormCollection(base, paging.IDKey[domain.User]), paging.Request{
		Cursor:      q.Cursor,
		Limit:       q.Limit,
		Forward:     q.Forward,
		SortField:   paging.DefaultSortField,
		IncludeMore: q.IncludeMore,
	})
	if err != nil {
		var appErr *domain.AppError
		if errors.As(err, &appErr) {
			return nil, err
		}
		return nil, domain.Unexpected(err)
	}
	return page, nil
}

// Update saves the columns of user. Role links are managed by ReplaceRoles.
func (r *userRepository) Update(ctx context.Context, user *domain.User) error {
	if err := r.db.WithContext(ctx).Omit(clause.Associations).Save(user).Error; err != nil {
		return mapError(err)
	}
	return nil
}

// ReplaceRoles sets the roles of user to those with the given UUIDs.
func (r *userRepository) ReplaceRoles(ctx context.Context, user *domain.User, roleUUIDs []string) error {
	roles := []domain.Role{}
	if len(roleUUIDs) > 0 {
		if err := r.db.WithContext(ctx).Where("uuid IN ?", roleUUIDs).Order("id").Find(&roles).Error; err != nil {
			return mapError(err)
		}
	}
	if err := r.db.WithContext(ctx).Model(user).Association("Roles").Replace(roles); err != nil {
		return mapError(err)
	}
	user.Roles = roles
	return nil
}

// Delete removes a user and its role links.
func (r *userRepository) Delete(ctx context.Context, id uint) error {
	user := &domain.User{BaseModel: domain.BaseModel{ID: id}}
	result := r.db.WithContext(ctx).Select("Roles").Delete(user)
	if result.Error != nil {
		return mapError(result.Error)
	}
	if result.RowsAffected == 0 {
		return domain.NotFound("user")
	}
	return nil
}

// mapError converts GORM errors to domain errors.
func mapError(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return domain.NotFound("user")
	}
	if errors.Is(err, gorm.ErrDuplicatedKey) || isDuplicateKeyError(err) {
		return domain.NewAppError(domain.KindUser, domain.CodeDuplicate, "A record with the same value already exists.", err)
	}
	return domain.Unexpected(err)
}

// isDuplicateKeyError detects unique constraint violations by examining the
// error message. Not every dialector translates driver errors to
// gorm.ErrDuplicatedKey (e.g. the pure-Go SQLite driver).
func isDuplicateKeyError(err error) bool {
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "unique constraint") ||
		strings.Contains(msg, "duplicate key") ||
		strings.Contains(msg, "duplicate entry")
}
