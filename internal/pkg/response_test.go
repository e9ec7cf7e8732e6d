package pkg

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"reflect"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"

	"github.com/simp-lee/hive/internal/domain"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type signupRequest struct {
	Name  string `json:"name" binding:"required"`
	Email string `json:"email" binding:"required,email"`
}

func newResponseTestContext() (*gin.Context, *httptest.ResponseRecorder) {
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request = httptest.NewRequest(http.MethodGet, "/", nil)
	return c, w
}

func newResponseTestContextWithBody(body string) (*gin.Context, *httptest.ResponseRecorder) {
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request = httptest.NewRequest(http.MethodPost, "/", strings.NewReader(body))
	c.Request.Header.Set("Content-Type", "application/json")
	return c, w
}

func decodeError(t *testing.T, w *httptest.ResponseRecorder) ErrorResponse {
	t.Helper()
	var resp ErrorResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("unmarshal response: %v", err)
	}
	return resp
}

func captureLogs(t *testing.T) *bytes.Buffer {
	t.Helper()
	var buf bytes.Buffer
	prev := slog.Default()
	slog.SetDefault(slog.New(slog.NewJSONHandler(&buf, nil)))
	t.Cleanup(func() { slog.SetDefault(prev) })
	return &buf
}

func TestSuccessEnvelopes(t *testing.T) {
	tests := []struct {
		name   string
		send   func(*gin.Context)
		status int
		body   string
	}{
		{"success", func(c *gin.Context) { Success(c, map[string]string{"a": "b"}) }, http.StatusOK, `{"data":{"a":"b"}}`},
		{"success nil", func(c *gin.Context) { Success(c, nil) }, http.StatusOK, `{"data":null}`},
		{"created", func(c *gin.Context) { Created(c, 1) }, http.StatusCreated, `{"data":1}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, w := newResponseTestContext()
			tt.send(c)
			if w.Code != tt.status {
				t.Errorf("status = %d, want %d", w.Code, tt.status)
			}
			if got := w.Body.String(); got != tt.body {
				t.Errorf("body = %s, want %s", got, tt.body)
			}
		})
	}
}

func TestNoContent(t *testing.T) {
	c, w := newResponseTestContext()
	NoContent(c)
	c.Writer.WriteHeaderNow()
	if w.Code != http.StatusNoContent {
		t.Errorf("status = %d, want %d", w.Code, http.StatusNoContent)
	}
}

func TestError_KindStatusAndSummary(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		status   int
		wantCode string
	}{
		{"unauthenticated", domain.Unauthenticated("", ""), http.StatusUnauthorized, domain.CodeUnauthenticated},
		{"authorization", domain.Forbidden("can_get_profile"), http.StatusForbidden, domain.CodeForbidden},
		{"not found", domain.NotFound("user"), http.StatusNotFound, domain.CodeNotFound},
		{"user", domain.UserError("duplicate", "Already there."), http.StatusBadRequest, "duplicate"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, w := newResponseTestContext()
			Error(c, tt.err)

			if w.Code != tt.status {
				t.Errorf("status = %d, want %d", w.Code, tt.status)
			}
			resp := decodeError(t, w)
			if resp.Message == nil || resp.Message.Code != tt.wantCode {
				t.Errorf("message = %+v, want code %q", resp.Message, tt.wantCode)
			}
			if resp.Errors != nil {
				t.Errorf("errors = %+v, want omitted", resp.Errors)
			}
		})
	}
}

func TestError_InputGroup(t *testing.T) {
	c, w := newResponseTestContext()
	group := domain.NewErrorGroup(
		domain.InputError("invalid_email", "Invalid email address x.", "email"),
		domain.InputError("object_not_found", "Object r1 not found.", "role_ids", 0),
	)
	Error(c, group)

	if w.Code != http.StatusUnprocessableEntity {
		t.Fatalf("status = %d, want 422", w.Code)
	}
	resp := decodeError(t, w)
	if resp.Message.Code != domain.CodeInvalidInput {
		t.Errorf("message code = %q, want %q", resp.Message.Code, domain.CodeInvalidInput)
	}
	if len(resp.Errors) != 2 {
		t.Fatalf("errors = %d, want 2", len(resp.Errors))
	}
	if want := []any{"role_ids", float64(0)}; !reflect.DeepEqual(resp.Errors[1].Path, want) {
		t.Errorf("path = %v, want %v", resp.Errors[1].Path, want)
	}
}

func TestError_SingleInputError(t *testing.T) {
	c, w := newResponseTestContext()
	Error(c, domain.InputError("invalid_cursor", "Invalid cursor.", "pagination", "after"))

	if w.Code != http.StatusUnprocessableEntity {
		t.Fatalf("status = %d, want 422", w.Code)
	}
	resp := decodeError(t, w)
	if len(resp.Errors) != 1 || resp.Errors[0].Code != "invalid_cursor" {
		t.Errorf("errors = %+v, want one invalid_cursor", resp.Errors)
	}
}

func TestError_UnexpectedDoesNotLeak(t *testing.T) {
	logs := captureLogs(t)
	c, w := newResponseTestContext()
	user := &domain.User{BaseModel: domain.BaseModel{ID: 7}, Active: true}
	c.Request = c.Request.WithContext(domain.WithPrincipal(c.Request.Context(), user))

	Error(c, errors.New("pq: password authentication failed"))

	if w.Code != http.StatusInternalServerError {
		t.Fatalf("status = %d, want 500", w.Code)
	}
	if strings.Contains(w.Body.String(), "pq:") {
		t.Errorf("body leaks the cause: %s", w.Body.String())
	}
	resp := decodeError(t, w)
	if resp.Message.Code != CodeUnexpected || resp.Message.Message != domain.MessageInternal {
		t.Errorf("message = %+v", resp.Message)
	}

	out := logs.String()
	for _, want := range []string{`"msg":"unexpected error"`, `"user_id":7`, `"stack"`, "pq: password"} {
		if !strings.Contains(out, want) {
			t.Errorf("log missing %s: %s", want, out)
		}
	}
}

// loadSettings fails the way repository code does.
func loadSettings() error {
	return fmt.Errorf("load settings: %w", domain.Unexpected(errors.New("disk full")))
}

func TestError_LogsStackOfOrigin(t *testing.T) {
	logs := captureLogs(t)
	c, _ := newResponseTestContext()

	Error(c, loadSettings())

	if out := logs.String(); !strings.Contains(out, "pkg.loadSettings") {
		t.Errorf("stack does not point at the failing call: %s", out)
	}
}

func TestError_WrappedUnexpectedAppError(t *testing.T) {
	captureLogs(t)
	c, w := newResponseTestContext()
	Error(c, domain.Unexpected(errors.New("disk full")))

	if w.Code != http.StatusInternalServerError {
		t.Fatalf("status = %d, want 500", w.Code)
	}
	if resp := decodeError(t, w); resp.Message.Code != CodeUnexpected {
		t.Errorf("code = %q, want %q", resp.Message.Code, CodeUnexpected)
	}
}

func TestBindAndValidate(t *testing.T) {
	tests := []struct {
		name      string
		body      string
		wantOK    bool
		wantCode  int
		wantCodes []string
		wantPaths []string
	}{
		{name: "valid", body: `{"name":"Ada","email":"ada@example.com"}`, wantOK: true},
		{
			name: "missing fields", body: `{}`, wantCode: http.StatusUnprocessableEntity,
			wantCodes: []string{"invalid_required", "invalid_required"},
			wantPaths: []string{"name", "email"},
		},
		{
			name: "bad email", body: `{"name":"Ada","email":"nope"}`, wantCode: http.StatusUnprocessableEntity,
			wantCodes: []string{"invalid_email"},
			wantPaths: []string{"email"},
		},
		{name: "malformed", body: `{"name":`, wantCode: http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, w := newResponseTestContextWithBody(tt.body)
			var req signupRequest
			ok := BindAndValidate(c, &req)
			if ok != tt.wantOK {
				t.Fatalf("BindAndValidate() = %v, want %v", ok, tt.wantOK)
			}
			if ok {
				return
			}
			if w.Code != tt.wantCode {
				t.Fatalf("status = %d, want %d", w.Code, tt.wantCode)
			}
			resp := decodeError(t, w)
			if tt.wantCode == http.StatusBadRequest {
				if resp.Message.Code != CodeMalformedBody {
					t.Errorf("code = %q, want %q", resp.Message.Code, CodeMalformedBody)
				}
				return
			}
			if len(resp.Errors) != len(tt.wantCodes) {
				t.Fatalf("errors = %+v, want %d", resp.Errors, len(tt.wantCodes))
			}
			for i, e := range resp.Errors {
				if e.Code != tt.wantCodes[i] {
					t.Errorf("errors[%d].code = %q, want %q", i, e.Code, tt.wantCodes[i])
				}
				if len(e.Path) != 1 || e.Path[0] != tt.wantPaths[i] {
					t.Errorf("errors[%d].path = %v, want [%s]", i, e.Path, tt.wantPaths[i])
				}
			}
		})
	}
}

func TestParseJSONTagName(t *testing.T) {
	tests := map[string]string{
		"":                  "",
		"-":                 "",
		"name":              "name",
		"name,omitempty":    "name",
		",omitempty":        "",
		"first_name,string": "first_name",
	}
	for tag, want := range tests {
		if got := parseJSONTagName(tag); got != want {
			t.Errorf("parseJSONTagName(%q) = %q, want %q", tag, got, want)
		}
	}
}
