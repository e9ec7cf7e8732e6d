package middleware

import (
	"log/slog"
	"net/http"
	"runtime/debug"

	"github.com/gin-gonic/gin"

	"github.com/simp-lee/hive/internal/domain"
	"github.com/simp-lee/hive/internal/pkg"
)

// Recovery turns a panic into a logged unexpected error and the generic 500
// error body. Nothing about the panic value reaches the client.
func Recovery(log *slog.Logger) gin.HandlerFunc {
	if log == nil {
		log = slog.Default()
	}

	return func(c *gin.Context) {
		defer func() {
			rec := recover()
			if rec == nil {
				return
			}
			if rec == http.ErrAbortHandler {
				panic(rec)
			}

			p := domain.PrincipalFrom(c.Request.Context())
			log.ErrorContext(c.Request.Context(), "panic recovered",
				slog.Any("panic", rec),
				slog.Uint64("user_id", uint64(p.PrincipalID())),
				slog.Bool("authenticated", p.IsAuthenticated()),
				slog.String("method", c.Request.Method),
				slog.String("path", c.Request.URL.Path),
				slog.String("stack", string(debug.Stack())),
			)

			if c.Writer.Written() {
				c.Abort()
				return
			}
			c.AbortWithStatusJSON(http.StatusInternalServerError, pkg.UnexpectedResponse())
		}()
		c.Next()
	}
}
