package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"

	"github.com/simp-lee/hive/internal/domain"
	gql "github.com/simp-lee/hive/internal/graphql"
	"github.com/simp-lee/hive/internal/pkg"
)

const healthTimeout = time.Second

// RouteDeps holds all dependencies needed to register routes.
type RouteDeps struct {
	Modules []Module
	DB      *gorm.DB
	// Redis is reported by the health check when set.
	Redis *redis.Client
	// GraphQL is mounted at GraphQLPath when set.
	GraphQL     *gql.Handler
	GraphQLPath string
}

// RegisterRoutes registers all application routes on the given gin.Engine.
func RegisterRoutes(r *gin.Engine, deps *RouteDeps) error {
	if r == nil {
		return errors.New("router is nil")
	}
	if deps == nil {
		return errors.New("route dependencies are nil")
	}
	if len(deps.Modules) == 0 {
		return errors.New("at least one module is required")
	}

	r.GET("/health", healthHandler(deps.DB, deps.Redis))

	api := r.Group("/api/v1")
	for i, m := range deps.Modules {
		if m == nil {
			return fmt.Errorf("module at index %d is nil", i)
		}
		m.RegisterRoutes(api)
	}

	if deps.GraphQL != nil {
		if deps.GraphQLPath == "" {
			return errors.New("graphql path is required")
		}
		deps.GraphQL.Mount(r, deps.GraphQLPath)
	}

	r.NoRoute(noRouteHandler())

	return nil
}

// healthHandler pings the database, and redis when configured, and reports
// the status of each.
func healthHandler(db *gorm.DB, rdb *redis.Client) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx, cancel := context.WithTimeout(c.Request.Context(), healthTimeout)
		defer cancel()

		components := gin.H{"database": componentStatus(pingDB(ctx, db))}
		healthy := components["database"] == "ok"
		if rdb != nil {
			components["redis"] = componentStatus(rdb.Ping(ctx).Err())
			healthy = healthy && components["redis"] == "ok"
		}

		status, code := "ok", http.StatusOK
		if !healthy {
			status, code = "degraded", http.StatusServiceUnavailable
		}
		c.JSON(code, gin.H{"status": status, "components": components})
	}
}

func pingDB(ctx context.Context, db *gorm.DB) error {
	if db == nil {
		return errors.New("database not configured")
	}
	sqlDB, err := db.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}

func componentStatus(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}

func noRouteHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		pkg.Error(c, domain.NotFound("route"))
	}
}
