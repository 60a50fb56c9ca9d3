package rbac

import (
	"github.com/simp-lee/rbacflow/internal/domain"
	"github.com/simp-lee/rbacflow/internal/module/resource"
)

// CreateUserRequest represents the input for creating a user.
type CreateUserRequest struct {
	resource.CommonFields
	ExternalID *string  `json:"externalId" binding:"omitempty,min=1,max=255"`
	Email      string   `json:"email" binding:"required,email,max=255"`
	FirstName  *string  `json:"firstName" binding:"omitempty,max=100"`
	LastName   *string  `json:"lastName" binding:"omitempty,max=100"`
	ImageURL   *string  `json:"imageUrl" binding:"omitempty,url,max=1024"`
	RoleIDs    []string `json:"roleIds"`
	GroupIDs   []string `json:"groupIds"`
}

func (r *CreateUserRequest) user() *domain.User {
	return &domain.User{
		ExternalID: r.ExternalID,
		Email:      r.Email,
		FirstName:  r.FirstName,
		LastName:   r.LastName,
		ImageURL:   r.ImageURL,
	}
}

// CreateRoleRequest represents the input for creating a role.
type CreateRoleRequest struct {
	resource.CommonFields
	Name          string   `json:"name" binding:"required,max=100"`
	Description   *string  `json:"description"`
	PermissionIDs []string `json:"permissionIds"`
}

// CreateGroupRequest represents the input for creating a group.
type CreateGroupRequest struct {
	resource.CommonFields
	Name        string   `json:"name" binding:"required,max=100"`
	Description *string  `json:"description"`
	RoleIDs     []string `json:"roleIds"`
}

// CreatePermissionRequest represents the input for creating a permission.
// Name defaults to "action:resource".
type CreatePermissionRequest struct {
	resource.CommonFields
	Name        string  `json:"name" binding:"max=100"`
	Description *string `json:"description"`
	Action      string  `json:"action" binding:"required,oneof=create read update delete manage"`
	Resource    string  `json:"resource" binding:"required,oneof=user group role permission pattern approval exception claim decision all"`
}

// SetIDsRequest replaces a membership set. An empty list clears it.
type SetIDsRequest struct {
	IDs []string `json:"ids" binding:"required"`
}

// PermissionCheck is the answer to a permission query.
type PermissionCheck struct {
	Action   string `json:"action"`
	Resource string `json:"resource"`
	Allowed  bool   `json:"allowed"`
}
