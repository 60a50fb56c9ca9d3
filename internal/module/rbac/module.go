package rbac

import (
	"github.com/gin-gonic/gin"

	"github.com/simp-lee/rbacflow/internal/module/resource"
)

// Module implements the app.Module interface for users, roles, groups and
// permissions.
type Module struct {
	handler *Handler
	svc     *Service
}

// NewModule creates a new Module over svc. Panics if svc is nil.
func NewModule(svc *Service) *Module {
	return &Module{handler: NewHandler(svc), svc: svc}
}

// RegisterRoutes registers the RBAC API routes.
func (m *Module) RegisterRoutes(api *gin.RouterGroup) {
	h := m.handler

	users := api.Group("/users")
	users.POST("", h.CreateUser)
	users.GET("/by-email/:email", h.UserByEmail)
	users.GET("/by-external-id/:externalId", h.UserByExternalID)
	users.GET("/:id/memberships", h.UserMemberships)
	users.GET("/:id/permissions", h.UserPermissions)
	users.GET("/:id/permissions/check", h.CheckPermission)
	users.PUT("/:id/roles", h.SetUserRoles)
	users.PUT("/:id/groups", h.SetUserGroups)
	resource.NewHandler(m.svc.Users).Register(users)

	roles := api.Group("/roles")
	roles.POST("", h.CreateRole)
	roles.GET("/:id/permissions", h.RolePermissions)
	roles.PUT("/:id/permissions", h.SetRolePermissions)
	resource.NewHandler(m.svc.Roles).Register(roles)

	groups := api.Group("/groups")
	groups.POST("", h.CreateGroup)
	groups.GET("/:id/roles", h.GroupRoles)
	groups.PUT("/:id/roles", h.SetGroupRoles)
	groups.POST("/:id/roles/:roleId", h.AddGroupRole)
	groups.DELETE("/:id/roles/:roleId", h.RemoveGroupRole)
	groups.POST("/:id/users/:userId", h.AddGroupUser)
	groups.DELETE("/:id/users/:userId", h.RemoveGroupUser)
	resource.NewHandler(m.svc.Groups).Register(groups)

	permissions := api.Group("/permissions")
	permissionRes := resource.NewHandler(m.svc.Permissions)
	permissions.POST("", h.CreatePermission)
	permissions.GET("/action/:action", permissionRes.Scoped(resource.ByParam("action", "action")))
	permissions.GET("/resource/:resource", permissionRes.Scoped(resource.ByParam("resource", "resource")))
	permissionRes.Register(permissions)
}
