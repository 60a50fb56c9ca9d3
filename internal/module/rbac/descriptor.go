package rbac

import (
	"github.com/simp-lee/rbacflow/internal/crud"
	"github.com/simp-lee/rbacflow/internal/domain"
)

// Entity type names carried by change events.
const (
	EntityUser       = "user"
	EntityRole       = "role"
	EntityGroup      = "group"
	EntityPermission = "permission"
)

func userDescriptor() *crud.Descriptor {
	return crud.NewDescriptor(EntityUser,
		crud.Field{Name: "externalId", Column: "external_id", Kind: crud.KindString, Filterable: true, Searchable: true, Mutable: true, Nullable: true, Rules: "min=1,max=255"},
		crud.Field{Name: "email", Column: "email", Kind: crud.KindString, Filterable: true, Searchable: true, Sortable: true, Mutable: true, Rules: "email,max=255"},
		crud.Field{Name: "firstName", Column: "first_name", Kind: crud.KindString, Filterable: true, Searchable: true, Sortable: true, Mutable: true, Nullable: true, Rules: "max=100"},
		crud.Field{Name: "lastName", Column: "last_name", Kind: crud.KindString, Filterable: true, Searchable: true, Sortable: true, Mutable: true, Nullable: true, Rules: "max=100"},
		crud.Field{Name: "imageUrl", Column: "image_url", Kind: crud.KindString, Mutable: true, Nullable: true, Rules: "url,max=1024"},
	)
}

func roleDescriptor() *crud.Descriptor {
	return crud.NewDescriptor(EntityRole, namedFields()...)
}

func groupDescriptor() *crud.Descriptor {
	return crud.NewDescriptor(EntityGroup, namedFields()...)
}

func permissionDescriptor() *crud.Descriptor {
	return crud.NewDescriptor(EntityPermission, append(namedFields(),
		crud.Field{Name: "action", Column: "action", Kind: crud.KindEnum, Enum: domain.PermissionActions, Filterable: true, Searchable: true, Sortable: true, Mutable: true},
		crud.Field{Name: "resource", Column: "resource", Kind: crud.KindEnum, Enum: domain.PermissionResources, Filterable: true, Searchable: true, Sortable: true, Mutable: true},
	)...)
}

// namedFields are shared by roles, groups and permissions.
func namedFields() []crud.Field {
	return []crud.Field{
		{Name: "name", Column: "name", Kind: crud.KindString, Filterable: true, Searchable: true, Sortable: true, Mutable: true, Rules: "min=1,max=100"},
		{Name: "description", Column: "description", Kind: crud.KindString, Searchable: true, Mutable: true, Nullable: true},
	}
}
