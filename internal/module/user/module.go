package user

import (
	"github.com/gin-gonic/gin"

	"github.com/simp-lee/hive/internal/middleware"
)

// UserModule mounts the user administration endpoints.
type UserModule struct {
	handler *UserHandler
}

// NewModule creates a new UserModule with the given handler.
// Panics if h is nil.
func NewModule(h *UserHandler) *UserModule {
	if h == nil {
		panic("user.NewModule: handler must not be nil")
	}
	return &UserModule{handler: h}
}

// RegisterRoutes mounts /users on api. Every route requires authentication.
func (m *UserModule) RegisterRoutes(api *gin.RouterGroup) {
	users := api.Group("/users", middleware.RequireAuth())
	users.GET("", m.handler.List)
	users.POST("", m.handler.Create)
	users.GET("/:id", m.handler.Get)
	users.PUT("/:id", m.handler.Update)
	users.DELETE("/:id", m.handler.Delete)
}
