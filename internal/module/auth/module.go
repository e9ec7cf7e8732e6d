package auth

import (
	"github.com/gin-gonic/gin"

	"github.com/simp-lee/hive/internal/middleware"
)

// AuthModule mounts the account endpoints.
type AuthModule struct {
	handler *AuthHandler
}

// NewModule creates a new AuthModule with the given handler.
// Panics if h is nil.
func NewModule(h *AuthHandler) *AuthModule {
	if h == nil {
		panic("auth.NewModule: handler must not be nil")
	}
	return &AuthModule{handler: h}
}

// RegisterRoutes mounts the public /auth routes and the authenticated
// /profile routes on api.
func (m *AuthModule) RegisterRoutes(api *gin.RouterGroup) {
	auth := api.Group("/auth")
	auth.POST("/register", m.handler.Register)
	auth.POST("/login", m.handler.Login)
	auth.POST("/email/verify", m.handler.VerifyEmail)
	auth.POST("/email/resend", m.handler.ResendVerification)
	auth.POST("/password/forgot", m.handler.ForgotPassword)
	auth.POST("/password/reset", m.handler.ResetPassword)

	profile := api.Group("/profile", middleware.RequireAuth())
	profile.GET("", m.handler.Profile)
	profile.PUT("", m.handler.UpdateProfile)
}
