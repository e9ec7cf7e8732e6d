package auth

import (
	"github.com/gin-gonic/gin"

	"github.com/simp-lee/hive/internal/domain"
	"github.com/simp-lee/hive/internal/pkg"
)

// AuthHandler serves the account REST endpoints.
type AuthHandler struct {
	svc Service
}

// NewHandler creates a new AuthHandler with the given service.
func NewHandler(svc Service) *AuthHandler {
	return &AuthHandler{svc: svc}
}

// Register handles POST /api/v1/auth/register.
func (h *AuthHandler) Register(c *gin.Context) {
	var req RegisterRequest
	if !pkg.BindAndValidate(c, &req) {
		return
	}
	user, err := h.svc.Register(c.Request.Context(), RegisterInput(req))
	if err != nil {
		pkg.Error(c, err)
		return
	}
	pkg.Created(c, NewProfileResponse(user))
}

// Login handles POST /api/v1/auth/login.
func (h *AuthHandler) Login(c *gin.Context) {
	var req LoginRequest
	if !pkg.BindAndValidate(c, &req) {
		return
	}
	token, err := h.svc.Login(c.Request.Context(), req.Email, req.Password)
	if err != nil {
		pkg.Error(c, err)
		return
	}
	pkg.Success(c, token)
}

// VerifyEmail handles POST /api/v1/auth/email/verify.
func (h *AuthHandler) VerifyEmail(c *gin.Context) {
	var req VerifyEmailRequest
	if !pkg.BindAndValidate(c, &req) {
		return
	}
	if err := h.svc.VerifyEmail(c.Request.Context(), req.Email, req.Code); err != nil {
		pkg.Error(c, err)
		return
	}
	pkg.NoContent(c)
}

// ResendVerification handles POST /api/v1/auth/email/resend.
func (h *AuthHandler) ResendVerification(c *gin.Context) {
	var req EmailRequest
	if !pkg.BindAndValidate(c, &req) {
		return
	}
	if err := h.svc.RequestEmailVerification(c.Request.Context(), req.Email); err != nil {
		pkg.Error(c, err)
		return
	}
	pkg.NoContent(c)
}

// ForgotPassword handles POST /api/v1/auth/password/forgot. It answers 204
// whether or not the address is known.
func (h *AuthHandler) ForgotPassword(c *gin.Context) {
	var req EmailRequest
	if !pkg.BindAndValidate(c, &req) {
		return
	}
	if err := h.svc.RequestPasswordReset(c.Request.Context(), req.Email); err != nil {
		pkg.Error(c, err)
		return
	}
	pkg.NoContent(c)
}

// ResetPassword handles POST /api/v1/auth/password/reset.
func (h *AuthHandler) ResetPassword(c *gin.Context) {
	var req ResetPasswordRequest
	if !pkg.BindAndValidate(c, &req) {
		return
	}
	if err := h.svc.ResetPassword(c.Request.Context(), req.Email, req.Code, req.Password); err != nil {
		pkg.Error(c, err)
		return
	}
	pkg.NoContent(c)
}

// Profile handles GET /api/v1/profile.
func (h *AuthHandler) Profile(c *gin.Context) {
	ctx := c.Request.Context()
	user, err := h.svc.Profile(ctx, domain.PrincipalFrom(ctx))
	if err != nil {
		pkg.Error(c, err)
		return
	}
	pkg.Success(c, NewProfileResponse(user))
}

// UpdateProfile handles PUT /api/v1/profile.
func (h *AuthHandler) UpdateProfile(c *gin.Context) {
	var req UpdateProfileRequest
	if !pkg.BindAndValidate(c, &req) {
		return
	}
	ctx := c.Request.Context()
	user, err := h.svc.UpdateProfile(ctx, domain.PrincipalFrom(ctx), ProfileInput(req))
	if err != nil {
		pkg.Error(c, err)
		return
	}
	pkg.Success(c, NewProfileResponse(user))
}
