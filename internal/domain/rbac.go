package domain

// Role groups permissions and is granted to users directly or via groups.
type Role struct {
	BaseModel
	Name        string       `gorm:"size:100;uniqueIndex;not null" json:"name"`
	Description *string      `gorm:"type:text" json:"description"`
	Permissions []Permission `gorm:"many2many:role_permissions" json:"permissions,omitempty"`
}

// Group is a named set of users that inherits roles.
type Group struct {
	BaseModel
	Name        string  `gorm:"size:100;uniqueIndex;not null" json:"name"`
	Description *string `gorm:"type:text" json:"description"`
	Roles       []Role  `gorm:"many2many:group_roles" json:"roles,omitempty"`
	Users       []User  `gorm:"many2many:user_groups" json:"users,omitempty"`
}

// Permission allows one action on one resource kind.
type Permission struct {
	BaseModel
	Name        string  `gorm:"size:100;uniqueIndex;not null" json:"name"`
	Description *string `gorm:"type:text" json:"description"`
	Action      string  `gorm:"size:20;not null" json:"action"`
	Resource    string  `gorm:"size:20;not null" json:"resource"`
}

// Key renders the permission as "action:resource".
func (p *Permission) Key() string {
	return p.Action + ":" + p.Resource
}

// Permission actions.
const (
	ActionCreate = "create"
	ActionRead   = "read"
	ActionUpdate = "update"
	ActionDelete = "delete"
	ActionManage = "manage"
)

// Permission resources.
const (
	ResourceUser       = "user"
	ResourceGroup      = "group"
	ResourceRole       = "role"
	ResourcePermission = "permission"
	ResourcePattern    = "pattern"
	ResourceApproval   = "approval"
	ResourceException  = "exception"
	ResourceClaim      = "claim"
	ResourceDecision   = "decision"
	ResourceAll        = "all"
)

var (
	PermissionActions = []string{ActionCreate, ActionRead, ActionUpdate, ActionDelete, ActionManage}

	PermissionResources = []string{
		ResourceUser, ResourceGroup, ResourceRole, ResourcePermission, ResourcePattern,
		ResourceApproval, ResourceException, ResourceClaim, ResourceDecision, ResourceAll,
	}
)
