package user

import (
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/simp-lee/hive/internal/domain"
	"github.com/simp-lee/hive/internal/pkg"
)

// PageLimits bounds the page size of list endpoints.
type PageLimits struct {
	Default int
	Max     int
}

// UserHandler handles REST API requests for the user resource.
type UserHandler struct {
	svc    domain.UserService
	limits PageLimits
}

// NewUserHandler creates a new UserHandler with the given service.
func NewUserHandler(svc domain.UserService, limits PageLimits) *UserHandler {
	return &UserHandler{svc: svc, limits: limits}
}

// Create handles POST /api/v1/users.
func (h *UserHandler) Create(c *gin.Context) {
	var req CreateUserRequest
	if !pkg.BindAndValidate(c, &req) {
		return
	}
	user, err := h.svc.CreateUser(c.Request.Context(), domain.CreateUserParams(req))
	if err != nil {
		pkg.Error(c, err)
		return
	}
	pkg.Created(c, NewUserResponse(*user))
}

// Get handles GET /api/v1/users/:id.
func (h *UserHandler) Get(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}
	user, err := h.svc.GetUser(c.Request.Context(), id)
	if err != nil {
		pkg.Error(c, err)
		return
	}
	pkg.Success(c, NewUserResponse(*user))
}

// List handles GET /api/v1/users.
func (h *UserHandler) List(c *gin.Context) {
	req, err := pkg.ParseCursorRequest(c, h.limits.Default, h.limits.Max)
	if err != nil {
		pkg.Error(c, err)
		return
	}

	page, err := h.svc.ListUsers(c.Request.Context(), domain.ListQuery{
		Cursor:      req.Cursor,
		Limit:       req.Limit,
		Forward:     req.Forward,
		IncludeMore: req.IncludeMore,
		Filter:      pkg.FilterParams(c),
	})
	if err != nil {
		pkg.Error(c, err)
		return
	}
	pkg.CursorList(c, toResponsePage(page), req.Limit)
}

// Update handles PUT /api/v1/users/:id.
func (h *UserHandler) Update(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}
	var req UpdateUserRequest
	if !pkg.BindAndValidate(c, &req) {
		return
	}
	user, err := h.svc.UpdateUser(c.Request.Context(), id, domain.UpdateUserParams(req))
	if err != nil {
		pkg.Error(c, err)
		return
	}
	pkg.Success(c, NewUserResponse(*user))
}

// Delete handles DELETE /api/v1/users/:id.
func (h *UserHandler) Delete(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}
	if err := h.svc.DeleteUser(c.Request.Context(), id); err != nil {
		pkg.Error(c, err)
		return
	}
	pkg.NoContent(c)
}

// parseID reads the :id path parameter, answering 404 when it is not a
// positive integer.
func parseID(c *gin.Context) (uint, bool) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil || id == 0 {
		pkg.Error(c, domain.NotFound("user"))
		return 0, false
	}
	return uint(id), true
}
