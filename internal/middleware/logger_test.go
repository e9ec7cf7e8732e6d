package middleware

import (
	"bytes"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"

	"github.com/simp-lee/hive/internal/domain"
)

func setupLoggerRouter(log *slog.Logger) *gin.Engine {
	r := gin.New()
	r.Use(RequestID(true), Logger(log))
	r.GET("/status/:code", func(c *gin.Context) {
		switch c.Param("code") {
		case "404":
			c.Status(http.StatusNotFound)
		case "500":
			c.Status(http.StatusInternalServerError)
		default:
			c.String(http.StatusOK, "ok")
		}
	})
	r.GET("/me", func(c *gin.Context) {
		c.Request = c.Request.WithContext(domain.WithPrincipal(c.Request.Context(), testUser(42, true)))
		c.Status(http.StatusNoContent)
	})
	return r
}

func TestLogger_LevelByStatus(t *testing.T) {
	tests := []struct {
		path  string
		level string
	}{
		{"/status/200", "level=INFO"},
		{"/status/404", "level=WARN"},
		{"/status/500", "level=ERROR"},
	}
	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			var buf bytes.Buffer
			r := setupLoggerRouter(newTestLogger(&buf))
			r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, tt.path, nil))

			if out := buf.String(); !strings.Contains(out, tt.level) {
				t.Errorf("expected %s record, got:\n%s", tt.level, out)
			}
		})
	}
}

func TestLogger_Fields(t *testing.T) {
	var buf bytes.Buffer
	r := setupLoggerRouter(newTestLogger(&buf))

	r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/status/200", nil))

	out := buf.String()
	for _, want := range []string{"request", "method=GET", "path=/status/200", "route=/status/:code", "status=200", "latency=", "client_ip="} {
		if !strings.Contains(out, want) {
			t.Errorf("log missing %q:\n%s", want, out)
		}
	}
	if strings.Contains(out, "user_id") {
		t.Errorf("anonymous request logged a user_id:\n%s", out)
	}
}

func TestLogger_RequestIDFromContext(t *testing.T) {
	var buf bytes.Buffer
	r := setupLoggerRouter(newContextLogger(t, &buf))

	req := httptest.NewRequest(http.MethodGet, "/status/200", nil)
	req.Header.Set(RequestIDHeader, "req-log-1")
	r.ServeHTTP(httptest.NewRecorder(), req)

	if out := buf.String(); !strings.Contains(out, "req-log-1") {
		t.Errorf("log missing the request id:\n%s", out)
	}
}

func TestLogger_AuthenticatedUser(t *testing.T) {
	var buf bytes.Buffer
	r := setupLoggerRouter(newTestLogger(&buf))
	r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/me", nil))

	if out := buf.String(); !strings.Contains(out, "user_id=42") {
		t.Errorf("log missing user_id=42:\n%s", out)
	}
}

func TestLogger_NilUsesDefault(t *testing.T) {
	r := gin.New()
	r.Use(Logger(nil))
	r.GET("/", func(c *gin.Context) { c.Status(http.StatusOK) })

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/", nil))
	if w.Code != http.StatusOK {
		t.Errorf("status = %d, want 200", w.Code)
	}
}
