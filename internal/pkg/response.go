package pkg

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"reflect"
	"runtime/debug"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"

	"github.com/simp-lee/hive/internal/domain"
)

// Codes used only by the REST responder.
const (
	CodeUnexpected    = "unexpected_error"
	CodeMalformedBody = "malformed_body"
)

// Response is the JSON envelope for successful single-resource responses.
type Response struct {
	Data any `json:"data"`
}

// ErrorMessage is the top-level summary of a failed request.
type ErrorMessage struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// ErrorDetail is one entry of ErrorResponse.Errors.
type ErrorDetail struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Path    []any  `json:"path,omitempty"`
}

// ErrorResponse is the JSON body of every failed request.
type ErrorResponse struct {
	Message *ErrorMessage `json:"message,omitempty"`
	Errors  []ErrorDetail `json:"errors,omitempty"`
}

// Success sends a 200 JSON response with the given data.
func Success(c *gin.Context, data any) {
	c.JSON(http.StatusOK, Response{Data: data})
}

// Created sends a 201 JSON response with the given data.
func Created(c *gin.Context, data any) {
	c.JSON(http.StatusCreated, Response{Data: data})
}

// NoContent sends an empty 204 response.
func NoContent(c *gin.Context) {
	c.Status(http.StatusNoContent)
}

// Error sends the JSON error response for err. The status follows
// domain.HTTPStatusCode. Errors that map to 500 are logged with the acting
// principal and a stack trace, and rendered with a generic message. The
// trace is the one recorded by domain.Unexpected when present.
func Error(c *gin.Context, err error) {
	status := domain.HTTPStatusCode(err)
	if status >= http.StatusInternalServerError {
		stack := domain.StackOf(err)
		if stack == nil {
			stack = debug.Stack()
		}
		logUnexpected(c, err, stack)
		c.JSON(status, UnexpectedResponse())
		return
	}
	c.JSON(status, ErrorBody(err))
}

// AbortWithError is Error followed by c.Abort, for middleware.
func AbortWithError(c *gin.Context, err error) {
	Error(c, err)
	c.Abort()
}

// UnexpectedResponse is the body rendered for every unexpected error.
func UnexpectedResponse() ErrorResponse {
	return ErrorResponse{Message: &ErrorMessage{
		Code:    CodeUnexpected,
		Message: domain.MessageInternal,
	}}
}

// ErrorBody renders a domain error. Input errors and groups share the
// generic input summary and list their members in Errors.
func ErrorBody(err error) ErrorResponse {
	var g *domain.ErrorGroup
	if errors.As(err, &g) {
		details := make([]ErrorDetail, 0, len(g.Errors))
		for _, e := range g.Errors {
			details = append(details, detailOf(e))
		}
		return ErrorResponse{Message: inputSummary(), Errors: details}
	}

	var appErr *domain.AppError
	if !errors.As(err, &appErr) {
		return UnexpectedResponse()
	}
	if appErr.Kind == domain.KindInput {
		return ErrorResponse{Message: inputSummary(), Errors: []ErrorDetail{detailOf(appErr)}}
	}
	return ErrorResponse{Message: &ErrorMessage{Code: appErr.Code, Message: appErr.Message}}
}

func inputSummary() *ErrorMessage {
	return &ErrorMessage{Code: domain.CodeInvalidInput, Message: domain.MessageInvalidInput}
}

func detailOf(e *domain.AppError) ErrorDetail {
	return ErrorDetail{Code: e.Code, Message: e.Message, Path: e.Path}
}

func logUnexpected(c *gin.Context, err error, stack []byte) {
	ctx := c.Request.Context()
	p := domain.PrincipalFrom(ctx)
	slog.ErrorContext(ctx, "unexpected error",
		"error", err,
		"user_id", p.PrincipalID(),
		"authenticated", p.IsAuthenticated(),
		"method", c.Request.Method,
		"path", c.Request.URL.Path,
		"stack", string(stack),
	)
}

// BindAndValidate binds the request body to obj and runs its binding tags.
// On failure it sends the error response and returns false:
// a malformed body is a 400 user error, tag failures are a 422 group.
//
//	if !pkg.BindAndValidate(c, &req) { return }
func BindAndValidate(c *gin.Context, obj any) bool {
	if err := c.ShouldBind(obj); err != nil {
		Error(c, bindingError(err, obj))
		return false
	}
	return true
}

func bindingError(err error, obj any) error {
	var ve validator.ValidationErrors
	if !errors.As(err, &ve) {
		return domain.UserError(CodeMalformedBody, "Malformed request body.")
	}

	jsonTags := buildJSONTagMap(obj)
	errs := make([]*domain.AppError, 0, len(ve))
	for _, fe := range ve {
		name, ok := jsonTags[fe.StructField()]
		if !ok {
			name = strings.ToLower(fe.Field())
		}
		errs = append(errs, domain.InputError("invalid_"+fe.Tag(), tagMessage(fe), name))
	}
	return domain.NewErrorGroup(errs...)
}

func tagMessage(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "This field is required."
	case "email":
		return fmt.Sprintf("Invalid email address %v.", fe.Value())
	case "min":
		return fmt.Sprintf("Minimum length %s not met.", fe.Param())
	case "max":
		return fmt.Sprintf("Maximum length %s exceeded.", fe.Param())
	}
	if fe.Param() != "" {
		return fmt.Sprintf("Failed the %s=%s check.", fe.Tag(), fe.Param())
	}
	return fmt.Sprintf("Failed the %s check.", fe.Tag())
}

// buildJSONTagMap returns a map from struct field name to its JSON tag name.
// If obj is nil or not a struct (pointer), it returns an empty map.
func buildJSONTagMap(obj any) map[string]string {
	if obj == nil {
		return nil
	}
	t := reflect.TypeOf(obj)
	for t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	if t.Kind() != reflect.Struct {
		return nil
	}
	m := make(map[string]string, t.NumField())
	for i := range t.NumField() {
		f := t.Field(i)
		if name := parseJSONTagName(f.Tag.Get("json")); name != "" {
			m[f.Name] = name
		}
	}
	return m
}

// parseJSONTagName extracts the field name from a JSON struct tag value.
func parseJSONTagName(tag string) string {
	name, _, _ := strings.Cut(tag, ",")
	if name == "-" {
		return ""
	}
	return name
}
