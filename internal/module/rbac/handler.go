package rbac

import (
	"context"
	"slices"

	"github.com/gin-gonic/gin"

	"github.com/simp-lee/rbacflow/internal/domain"
	"github.com/simp-lee/rbacflow/internal/middleware"
	"github.com/simp-lee/rbacflow/internal/pkg"
)

// Handler handles the RBAC endpoints that go beyond the generic resource
// routes: creation with memberships, membership replacement and lookups.
type Handler struct {
	svc *Service
}

// NewHandler creates a new Handler. Panics if svc is nil.
func NewHandler(svc *Service) *Handler {
	if svc == nil {
		panic("rbac.NewHandler: service must not be nil")
	}
	return &Handler{svc: svc}
}

// CreateUser handles POST /api/v1/users.
func (h *Handler) CreateUser(c *gin.Context) {
	var req CreateUserRequest
	if !pkg.BindAndValidate(c, &req) {
		return
	}

	u := req.user()
	opts := req.Apply(u.Model())
	created, err := h.svc.CreateUser(c.Request.Context(), u, req.RoleIDs, req.GroupIDs, middleware.GetActorID(c), opts...)
	if err != nil {
		pkg.Error(c, err)
		return
	}
	pkg.Created(c, created)
}

// CreateRole handles POST /api/v1/roles.
func (h *Handler) CreateRole(c *gin.Context) {
	var req CreateRoleRequest
	if !pkg.BindAndValidate(c, &req) {
		return
	}

	role := &domain.Role{Name: req.Name, Description: req.Description}
	opts := req.Apply(role.Model())
	created, err := h.svc.CreateRole(c.Request.Context(), role, req.PermissionIDs, middleware.GetActorID(c), opts...)
	if err != nil {
		pkg.Error(c, err)
		return
	}
	pkg.Created(c, created)
}

// CreateGroup handles POST /api/v1/groups.
func (h *Handler) CreateGroup(c *gin.Context) {
	var req CreateGroupRequest
	if !pkg.BindAndValidate(c, &req) {
		return
	}

	g := &domain.Group{Name: req.Name, Description: req.Description}
	opts := req.Apply(g.Model())
	created, err := h.svc.CreateGroup(c.Request.Context(), g, req.RoleIDs, middleware.GetActorID(c), opts...)
	if err != nil {
		pkg.Error(c, err)
		return
	}
	pkg.Created(c, created)
}

// CreatePermission handles POST /api/v1/permissions.
func (h *Handler) CreatePermission(c *gin.Context) {
	var req CreatePermissionRequest
	if !pkg.BindAndValidate(c, &req) {
		return
	}

	p := &domain.Permission{Name: req.Name, Description: req.Description, Action: req.Action, Resource: req.Resource}
	opts := req.Apply(p.Model())
	created, err := h.svc.CreatePermission(c.Request.Context(), p, middleware.GetActorID(c), opts...)
	if err != nil {
		pkg.Error(c, err)
		return
	}
	pkg.Created(c, created)
}

// SetUserRoles handles PUT /api/v1/users/:id/roles.
func (h *Handler) SetUserRoles(c *gin.Context) {
	h.setIDs(c, func(ids []string) (any, error) {
		return h.svc.SetUserRoles(c.Request.Context(), c.Param("id"), ids, middleware.GetActorID(c))
	})
}

// SetUserGroups handles PUT /api/v1/users/:id/groups.
func (h *Handler) SetUserGroups(c *gin.Context) {
	h.setIDs(c, func(ids []string) (any, error) {
		return h.svc.SetUserGroups(c.Request.Context(), c.Param("id"), ids, middleware.GetActorID(c))
	})
}

// SetRolePermissions handles PUT /api/v1/roles/:id/permissions.
func (h *Handler) SetRolePermissions(c *gin.Context) {
	h.setIDs(c, func(ids []string) (any, error) {
		return h.svc.SetRolePermissions(c.Request.Context(), c.Param("id"), ids, middleware.GetActorID(c))
	})
}

// SetGroupRoles handles PUT /api/v1/groups/:id/roles.
func (h *Handler) SetGroupRoles(c *gin.Context) {
	h.setIDs(c, func(ids []string) (any, error) {
		return h.svc.SetGroupRoles(c.Request.Context(), c.Param("id"), ids, middleware.GetActorID(c))
	})
}

// AddGroupUser handles POST /api/v1/groups/:id/users/:userId.
func (h *Handler) AddGroupUser(c *gin.Context) {
	h.changeGroup(c, "userId", h.svc.AddGroupUser)
}

// RemoveGroupUser handles DELETE /api/v1/groups/:id/users/:userId.
func (h *Handler) RemoveGroupUser(c *gin.Context) {
	h.changeGroup(c, "userId", h.svc.RemoveGroupUser)
}

// AddGroupRole handles POST /api/v1/groups/:id/roles/:roleId.
func (h *Handler) AddGroupRole(c *gin.Context) {
	h.changeGroup(c, "roleId", h.svc.AddGroupRole)
}

// RemoveGroupRole handles DELETE /api/v1/groups/:id/roles/:roleId.
func (h *Handler) RemoveGroupRole(c *gin.Context) {
	h.changeGroup(c, "roleId", h.svc.RemoveGroupRole)
}

func (h *Handler) changeGroup(c *gin.Context, param string, op func(ctx context.Context, groupID, targetID, actorID string) (*domain.Group, error)) {
	g, err := op(c.Request.Context(), c.Param("id"), c.Param(param), middleware.GetActorID(c))
	if err != nil {
		pkg.Error(c, err)
		return
	}
	pkg.Success(c, g)
}

func (h *Handler) setIDs(c *gin.Context, apply func(ids []string) (any, error)) {
	var req SetIDsRequest
	if !pkg.BindAndValidate(c, &req) {
		return
	}
	out, err := apply(req.IDs)
	if err != nil {
		pkg.Error(c, err)
		return
	}
	pkg.Success(c, out)
}

// UserMemberships handles GET /api/v1/users/:id/memberships.
func (h *Handler) UserMemberships(c *gin.Context) {
	u, err := h.svc.UserWithMemberships(c.Request.Context(), c.Param("id"))
	if err != nil {
		pkg.Error(c, err)
		return
	}
	pkg.Success(c, u)
}

// RolePermissions handles GET /api/v1/roles/:id/permissions.
func (h *Handler) RolePermissions(c *gin.Context) {
	role, err := h.svc.RoleWithPermissions(c.Request.Context(), c.Param("id"))
	if err != nil {
		pkg.Error(c, err)
		return
	}
	pkg.Success(c, role)
}

// GroupRoles handles GET /api/v1/groups/:id/roles.
func (h *Handler) GroupRoles(c *gin.Context) {
	g, err := h.svc.GroupWithRoles(c.Request.Context(), c.Param("id"))
	if err != nil {
		pkg.Error(c, err)
		return
	}
	pkg.Success(c, g)
}

// UserByEmail handles GET /api/v1/users/by-email/:email.
func (h *Handler) UserByEmail(c *gin.Context) {
	u, err := h.svc.UserByEmail(c.Request.Context(), c.Param("email"))
	if err != nil {
		pkg.Error(c, err)
		return
	}
	pkg.Success(c, u)
}

// UserByExternalID handles GET /api/v1/users/by-external-id/:externalId.
func (h *Handler) UserByExternalID(c *gin.Context) {
	u, err := h.svc.UserByExternalID(c.Request.Context(), c.Param("externalId"))
	if err != nil {
		pkg.Error(c, err)
		return
	}
	pkg.Success(c, u)
}

// UserPermissions handles GET /api/v1/users/:id/permissions.
func (h *Handler) UserPermissions(c *gin.Context) {
	keys, err := h.svc.UserPermissions(c.Request.Context(), c.Param("id"))
	if err != nil {
		pkg.Error(c, err)
		return
	}
	pkg.Success(c, keys)
}

// CheckPermission handles GET /api/v1/users/:id/permissions/check?action=&resource=.
func (h *Handler) CheckPermission(c *gin.Context) {
	action, res := c.Query("action"), c.Query("resource")
	if !slices.Contains(domain.PermissionActions, action) {
		pkg.Error(c, domain.NewFieldError("action", "action must be one of the permission actions"))
		return
	}
	if !slices.Contains(domain.PermissionResources, res) {
		pkg.Error(c, domain.NewFieldError("resource", "resource must be one of the permission resources"))
		return
	}

	ok, err := h.svc.HasPermission(c.Request.Context(), c.Param("id"), action, res)
	if err != nil {
		pkg.Error(c, err)
		return
	}
	pkg.Success(c, PermissionCheck{Action: action, Resource: res, Allowed: ok})
}
