package domain

import (
	"errors"
	"fmt"
	"net/http"
	"runtime/debug"
	"strings"
)

// Kind classifies an AppError. Every kind maps to exactly one HTTP status.
type Kind string

const (
	KindUnexpected      Kind = "unexpected"
	KindUnauthenticated Kind = "unauthenticated"
	KindAuthorization   Kind = "authorization"
	KindNotFound        Kind = "not_found"
	KindUser            Kind = "user"
	KindInput           Kind = "input"
)

// Default codes and messages per kind.
const (
	CodeInternal        = "internal_error"
	CodeUnauthenticated = "unauthenticated"
	CodeForbidden       = "forbidden"
	CodeNotFound        = "not_found"
	CodeUser            = "user_error"
	CodeInvalidInput    = "invalid_input"
	CodeDuplicate       = "duplicate"

	MessageInternal        = "An unexpected error occurred."
	MessageUnauthenticated = "You must sign in to perform this action."
	MessageForbidden       = "You don't have permission to perform this action."
	MessageNotFound        = "The requested resource was not found."
	MessageUser            = "Something went wrong."
	MessageInvalidInput    = "Invalid input."
)

// AppError is a domain failure carrying a stable machine code, a human
// readable message and, for input errors, the path of the offending value.
type AppError struct {
	Kind     Kind           `json:"-"`
	Code     string         `json:"code"`
	Message  string         `json:"message"`
	Path     []any          `json:"path,omitempty"`
	Metadata map[string]any `json:"-"`
	Err      error          `json:"-"`
	// Stack is where an unexpected error was raised.
	Stack []byte `json:"-"`
}

// Error implements the error interface.
func (e *AppError) Error() string {
	var b strings.Builder
	b.WriteString(e.Message)
	if len(e.Path) > 0 {
		b.WriteString(" (at ")
		b.WriteString(FormatPath(e.Path))
		b.WriteString(")")
	}
	if e.Err != nil {
		b.WriteString(": ")
		b.WriteString(e.Err.Error())
	}
	return b.String()
}

// Unwrap returns the wrapped error for use with errors.Is and errors.As.
func (e *AppError) Unwrap() error {
	return e.Err
}

// WithPath returns a copy of e located at path.
func (e *AppError) WithPath(path ...any) *AppError {
	cp := *e
	cp.Path = append([]any(nil), path...)
	return &cp
}

// NewAppError creates an AppError of the given kind. Empty code and message
// fall back to the kind defaults.
func NewAppError(kind Kind, code, message string, err error) *AppError {
	defCode, defMsg := kindDefaults(kind)
	if code == "" {
		code = defCode
	}
	if message == "" {
		message = defMsg
	}
	return &AppError{
		Kind:    kind,
		Code:    code,
		Message: message,
		Err:     err,
	}
}

// Unexpected wraps an internal failure and records the calling stack. The
// cause and stack are kept for logging only.
func Unexpected(err error) *AppError {
	e := NewAppError(KindUnexpected, "", "", err)
	e.Stack = debug.Stack()
	return e
}

// StackOf returns the stack recorded by the first AppError in err's chain
// that has one, or nil.
func StackOf(err error) []byte {
	for err != nil {
		var appErr *AppError
		if !errors.As(err, &appErr) {
			return nil
		}
		if appErr.Stack != nil {
			return appErr.Stack
		}
		err = appErr.Err
	}
	return nil
}

// Unauthenticated creates an unauthenticated error.
func Unauthenticated(code, message string) *AppError {
	return NewAppError(KindUnauthenticated, code, message, nil)
}

// Forbidden creates an authorization error recording the missing permission.
func Forbidden(permission string) *AppError {
	e := NewAppError(KindAuthorization, "", "", nil)
	if permission != "" {
		e.Metadata = map[string]any{"permission_required": permission}
	}
	return e
}

// NotFound creates a not-found error recording the missing resource.
func NotFound(resource string) *AppError {
	e := NewAppError(KindNotFound, "", "", nil)
	if resource != "" {
		e.Metadata = map[string]any{"missing_resource": resource}
	}
	return e
}

// UserError creates a generic user-correctable error.
func UserError(code, message string) *AppError {
	return NewAppError(KindUser, code, message, nil)
}

// InputError creates a field-scoped input error.
func InputError(code, message string, path ...any) *AppError {
	e := NewAppError(KindInput, code, message, nil)
	if len(path) > 0 {
		e.Path = append([]any(nil), path...)
	}
	return e
}

// Predefined errors. Match them with the IsX helpers, not errors.Is: the
// helpers compare kinds so freshly constructed errors match too.
var (
	ErrNotFound        = NotFound("")
	ErrUnauthenticated = Unauthenticated("", "")
	ErrForbidden       = Forbidden("")
	ErrInternal        = Unexpected(nil)
)

// ErrorGroup aggregates the field-scoped errors of one validation pass.
type ErrorGroup struct {
	Errors []*AppError
}

// NewErrorGroup creates a group from errs. It returns nil when errs is empty
// so callers can return the result directly.
func NewErrorGroup(errs ...*AppError) *ErrorGroup {
	if len(errs) == 0 {
		return nil
	}
	return &ErrorGroup{Errors: errs}
}

// Error implements the error interface.
func (g *ErrorGroup) Error() string {
	parts := make([]string, 0, len(g.Errors))
	for _, e := range g.Errors {
		parts = append(parts, e.Error())
	}
	return MessageInvalidInput + " " + strings.Join(parts, "; ")
}

// Unwrap exposes the members to errors.Is and errors.As.
func (g *ErrorGroup) Unwrap() []error {
	out := make([]error, len(g.Errors))
	for i, e := range g.Errors {
		out[i] = e
	}
	return out
}

// IsNotFound reports whether err is or wraps a not-found AppError.
func IsNotFound(err error) bool {
	return hasKind(err, KindNotFound)
}

// IsUnauthenticated reports whether err is or wraps an unauthenticated AppError.
func IsUnauthenticated(err error) bool {
	return hasKind(err, KindUnauthenticated)
}

// IsForbidden reports whether err is or wraps an authorization AppError.
func IsForbidden(err error) bool {
	return hasKind(err, KindAuthorization)
}

// IsInput reports whether err is an input error or an error group.
func IsInput(err error) bool {
	var g *ErrorGroup
	if errors.As(err, &g) {
		return true
	}
	return hasKind(err, KindInput)
}

// IsUser reports whether err is or wraps a generic user AppError.
func IsUser(err error) bool {
	return hasKind(err, KindUser)
}

// IsUnexpected reports whether err is anything other than a known
// user-facing failure.
func IsUnexpected(err error) bool {
	return err != nil && HTTPStatusCode(err) == http.StatusInternalServerError
}

// IsDuplicate reports whether err carries the duplicate code.
func IsDuplicate(err error) bool {
	var appErr *AppError
	return errors.As(err, &appErr) && appErr.Code == CodeDuplicate
}

func hasKind(err error, kind Kind) bool {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Kind == kind
	}
	return false
}

// HTTPStatusCode maps an error to an HTTP status code. Groups are checked
// before single errors so an aggregate is never mistaken for its first member.
func HTTPStatusCode(err error) int {
	var g *ErrorGroup
	if errors.As(err, &g) {
		return http.StatusUnprocessableEntity
	}
	var appErr *AppError
	if errors.As(err, &appErr) {
		switch appErr.Kind {
		case KindUnauthenticated:
			return http.StatusUnauthorized
		case KindAuthorization:
			return http.StatusForbidden
		case KindNotFound:
			return http.StatusNotFound
		case KindUser:
			return http.StatusBadRequest
		case KindInput:
			return http.StatusUnprocessableEntity
		}
	}
	return http.StatusInternalServerError
}

func kindDefaults(kind Kind) (string, string) {
	switch kind {
	case KindUnauthenticated:
		return CodeUnauthenticated, MessageUnauthenticated
	case KindAuthorization:
		return CodeForbidden, MessageForbidden
	case KindNotFound:
		return CodeNotFound, MessageNotFound
	case KindUser:
		return CodeUser, MessageUser
	case KindInput:
		return CodeInvalidInput, MessageInvalidInput
	default:
		return CodeInternal, MessageInternal
	}
}

// FormatPath renders a path as "input.roles[1]".
func FormatPath(path []any) string {
	var b strings.Builder
	for i, seg := range path {
		switch v := seg.(type) {
		case int:
			fmt.Fprintf(&b, "[%d]", v)
		default:
			if i > 0 {
				b.WriteByte('.')
			}
			fmt.Fprint(&b, v)
		}
	}
	return b.String()
}
