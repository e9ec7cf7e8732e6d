package middleware

import (
	"context"
	"log/slog"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/simp-lee/logger"

	"github.com/simp-lee/hive/internal/domain"
	"github.com/simp-lee/hive/internal/pkg"
)

// TokenParser resolves an access token to the id of its user.
type TokenParser interface {
	ParseToken(token string) (uint, error)
}

// UserLoader loads the user an access token belongs to.
type UserLoader interface {
	GetByID(ctx context.Context, id uint) (*domain.User, error)
}

// Authenticate resolves the bearer token of the request to a principal and
// stores it in the request context. Requests without an Authorization
// header continue as domain.Anonymous; a header that cannot be resolved to
// an active user ends the request with 401.
func Authenticate(tokens TokenParser, users UserLoader) gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		if header == "" {
			c.Next()
			return
		}

		raw, ok := bearerToken(header)
		if !ok {
			pkg.AbortWithError(c, domain.InvalidToken())
			return
		}
		id, err := tokens.ParseToken(raw)
		if err != nil {
			pkg.AbortWithError(c, domain.InvalidToken())
			return
		}

		ctx := c.Request.Context()
		user, err := users.GetByID(ctx, id)
		switch {
		case domain.IsNotFound(err):
			pkg.AbortWithError(c, domain.InvalidToken())
			return
		case err != nil:
			pkg.AbortWithError(c, err)
			return
		case !user.IsActive():
			pkg.AbortWithError(c, domain.AccountDeactivated())
			return
		}

		ctx = domain.WithPrincipal(ctx, user)
		ctx = logger.WithContextAttrs(ctx, slog.Uint64("user_id", uint64(user.ID)))
		c.Request = c.Request.WithContext(ctx)
		c.Next()
	}
}

// RequireAuth rejects requests whose principal is not authenticated.
func RequireAuth() gin.HandlerFunc {
	return func(c *gin.Context) {
		if !domain.PrincipalFrom(c.Request.Context()).IsAuthenticated() {
			pkg.AbortWithError(c, domain.ErrUnauthenticated)
			return
		}
		c.Next()
	}
}

func bearerToken(header string) (string, bool) {
	scheme, token, ok := strings.Cut(strings.TrimSpace(header), " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return "", false
	}
	token = strings.TrimSpace(token)
	return token, token != ""
}
