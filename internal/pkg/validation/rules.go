package validation

import (
	"context"
	"fmt"
	"reflect"
	"regexp"
	"time"
	"unicode"
	"unicode/utf8"

	"github.com/go-playground/validator/v10"
	"gorm.io/gorm"

	"github.com/simp-lee/hive/internal/domain"
)

// Rule error codes.
const (
	CodeRequired          = "required"
	CodeInvalidEmail      = "invalid_email"
	CodeInvalidDate       = "invalid_date"
	CodeDateInFuture      = "date_in_future"
	CodeDuplicate         = domain.CodeDuplicate
	CodeObjectNotFound    = "object_not_found"
	CodeMinLengthNotMet   = "min_length_not_met"
	CodeMaxLengthExceeded = "max_length_exceeded"
	CodePasswordWeak      = "password_not_complex_enough"
)

const dateLayout = "2006-01-02 15:04:05"

var (
	fieldValidator = validator.New()
	validColumn    = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)
)

// isEmpty mirrors the "falsy" check used by the optional rules: nil, empty
// strings and empty collections are skipped.
func isEmpty(v any) bool {
	if v == nil {
		return true
	}
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.String, reflect.Slice, reflect.Map, reflect.Array:
		return rv.Len() == 0
	case reflect.Pointer, reflect.Interface:
		return rv.IsNil()
	}
	return false
}

// Required fails on empty values.
func Required() Rule {
	return RuleFunc(func(_ context.Context, f Field) error {
		if isEmpty(f.Value) {
			return domain.InputError(CodeRequired, "This field is required.", f.Path...)
		}
		return nil
	})
}

// Email checks the address format. Empty values are skipped.
func Email() Rule {
	return RuleFunc(func(_ context.Context, f Field) error {
		if isEmpty(f.Value) {
			return nil
		}
		s, ok := f.Value.(string)
		if !ok || fieldValidator.Var(s, "email") != nil {
			return domain.InputError(CodeInvalidEmail, fmt.Sprintf("Invalid email address %v.", f.Value), f.Path...)
		}
		return nil
	})
}

// DateRule rejects values that are not times or lie in the future.
type DateRule struct {
	now func() time.Time
}

// DateNotInFuture returns a DateRule using the wall clock.
func DateNotInFuture() *DateRule {
	return &DateRule{now: time.Now}
}

// WithClock replaces the clock, for tests.
func (r *DateRule) WithClock(now func() time.Time) *DateRule {
	return &DateRule{now: now}
}

// Check implements Rule.
func (r *DateRule) Check(_ context.Context, f Field) error {
	var t time.Time
	switch v := f.Value.(type) {
	case time.Time:
		t = v
	case *time.Time:
		if v == nil {
			return domain.InputError(CodeInvalidDate, "Invalid date.", f.Path...)
		}
		t = *v
	default:
		return domain.InputError(CodeInvalidDate, "Invalid date.", f.Path...)
	}
	if t.After(r.now()) {
		return domain.InputError(CodeDateInFuture,
			fmt.Sprintf("Date %s should not be in the future.", t.Format(dateLayout)), f.Path...)
	}
	return nil
}

// ExistenceRule checks records of a model by one column.
type ExistenceRule struct {
	db     *gorm.DB
	model  any
	column string
	absent bool
}

// ShouldNotExist fails when a record of model already has the value in
// column. column defaults to "uuid". Empty values are skipped.
func ShouldNotExist(db *gorm.DB, model any, column string) *ExistenceRule {
	return newExistenceRule(db, model, column, true)
}

// AllShouldExist fails with one error per list element that matches no
// record of model. column defaults to "uuid". Empty lists are skipped.
func AllShouldExist(db *gorm.DB, model any, column string) *ExistenceRule {
	return newExistenceRule(db, model, column, false)
}

func newExistenceRule(db *gorm.DB, model any, column string, absent bool) *ExistenceRule {
	if column == "" {
		column = "uuid"
	}
	if !validColumn.MatchString(column) {
		panic(fmt.Sprintf("validation: invalid column %q", column))
	}
	return &ExistenceRule{db: db, model: model, column: column, absent: absent}
}

// Check implements Rule.
func (r *ExistenceRule) Check(ctx context.Context, f Field) error {
	if isEmpty(f.Value) {
		return nil
	}
	if r.absent {
		return r.checkAbsent(ctx, f)
	}
	return r.checkAll(ctx, f)
}

func (r *ExistenceRule) checkAbsent(ctx context.Context, f Field) error {
	var n int64
	err := r.db.WithContext(ctx).Model(r.model).
		Where(r.column+" = ?", f.Value).
		Limit(1).Count(&n).Error
	if err != nil {
		return fmt.Errorf("validation: lookup %s: %w", r.column, err)
	}
	if n > 0 {
		return domain.InputError(CodeDuplicate,
			fmt.Sprintf("%s %v already exists.", r.column, f.Value), f.Path...)
	}
	return nil
}

func (r *ExistenceRule) checkAll(ctx context.Context, f Field) error {
	values, err := listValues(f.Value)
	if err != nil {
		return err
	}

	var found []string
	err = r.db.WithContext(ctx).Model(r.model).
		Where(r.column+" IN ?", values).
		Pluck(r.column, &found).Error
	if err != nil {
		return fmt.Errorf("validation: lookup %s: %w", r.column, err)
	}
	existing := make(map[string]struct{}, len(found))
	for _, v := range found {
		existing[v] = struct{}{}
	}

	var errs []*domain.AppError
	for i, v := range values {
		if _, ok := existing[fmt.Sprint(v)]; ok {
			continue
		}
		errs = append(errs, domain.InputError(CodeObjectNotFound,
			fmt.Sprintf("Object %v not found.", v), appendPath(f.Path, i)...))
	}
	if len(errs) == 0 {
		return nil
	}
	return domain.NewErrorGroup(errs...)
}

func listValues(v any) ([]any, error) {
	rv := reflect.ValueOf(v)
	if rv.Kind() != reflect.Slice && rv.Kind() != reflect.Array {
		return nil, fmt.Errorf("validation: expected a list, got %T", v)
	}
	out := make([]any, rv.Len())
	for i := range out {
		out[i] = rv.Index(i).Interface()
	}
	return out, nil
}

// Length bounds the length of strings (in runes), slices and maps. A zero
// bound is not checked. Nil values are skipped.
func Length(minLen, maxLen int) Rule {
	return RuleFunc(func(_ context.Context, f Field) error {
		if f.Value == nil {
			return nil
		}
		if rv := reflect.ValueOf(f.Value); rv.Kind() == reflect.Pointer && rv.IsNil() {
			return nil
		}
		n, err := lengthOf(f.Value)
		if err != nil {
			return err
		}
		if minLen > 0 && n < minLen {
			return domain.InputError(CodeMinLengthNotMet, fmt.Sprintf("Minimum length %d not met.", minLen), f.Path...)
		}
		if maxLen > 0 && n > maxLen {
			return domain.InputError(CodeMaxLengthExceeded, fmt.Sprintf("Maximum length %d exceeded.", maxLen), f.Path...)
		}
		return nil
	})
}

func lengthOf(v any) (int, error) {
	if s, ok := v.(string); ok {
		return utf8.RuneCountInString(s), nil
	}
	rv := reflect.ValueOf(v)
	if rv.Kind() == reflect.Pointer {
		rv = rv.Elem()
	}
	switch rv.Kind() {
	case reflect.String:
		return utf8.RuneCountInString(rv.String()), nil
	case reflect.Slice, reflect.Array, reflect.Map:
		return rv.Len(), nil
	}
	return 0, fmt.Errorf("validation: length of %T is undefined", v)
}

// Complexity holds minimum character-class counts for passwords.
type Complexity struct {
	Upper, Lower, Digits, Special int
}

// PasswordComplexity requires at least one character of each class. Every
// unmet class is reported separately.
func PasswordComplexity() Rule {
	return PasswordComplexityWith(Complexity{Upper: 1, Lower: 1, Digits: 1, Special: 1})
}

// PasswordComplexityWith requires the given character-class counts.
func PasswordComplexityWith(c Complexity) Rule {
	return RuleFunc(func(_ context.Context, f Field) error {
		s, ok := f.Value.(string)
		if !ok || s == "" {
			return nil
		}
		var upper, lower, digits, special int
		for _, r := range s {
			switch {
			case unicode.IsUpper(r):
				upper++
			case unicode.IsLower(r):
				lower++
			case unicode.IsDigit(r):
				digits++
			case !unicode.IsLetter(r):
				special++
			}
		}

		var errs []*domain.AppError
		add := func(have, want int, what string) {
			if have < want {
				errs = append(errs, domain.InputError(CodePasswordWeak,
					fmt.Sprintf("Password must contain at least %d %s.", want, what), f.Path...))
			}
		}
		add(upper, c.Upper, "uppercase letter(s)")
		add(lower, c.Lower, "lowercase letter(s)")
		add(digits, c.Digits, "digit(s)")
		add(special, c.Special, "special character(s)")
		if len(errs) == 0 {
			return nil
		}
		return domain.NewErrorGroup(errs...)
	})
}
