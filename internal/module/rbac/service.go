// Package rbac manages users, groups, roles and permissions, their
// memberships, and the effective permission set of a user.
package rbac

import (
	"context"
	"slices"
	"strings"

	"gorm.io/gorm"

	"github.com/simp-lee/rbacflow/internal/crud"
	"github.com/simp-lee/rbacflow/internal/domain"
	"github.com/simp-lee/rbacflow/internal/store"
)

// Service bundles the generic services of the four RBAC entities with the
// membership operations that span them.
type Service struct {
	repo *repository

	Users       *crud.Service[domain.User, *domain.User]
	Roles       *crud.Service[domain.Role, *domain.Role]
	Groups      *crud.Service[domain.Group, *domain.Group]
	Permissions *crud.Service[domain.Permission, *domain.Permission]
}

// NewService creates a Service over db. Panics if db is nil.
func NewService(db *gorm.DB, opts crud.Options) *Service {
	if db == nil {
		panic("rbac.NewService: db must not be nil")
	}
	return &Service{
		repo:        &repository{db: db},
		Users:       crud.NewService[domain.User](store.NewRepository[domain.User](db), userDescriptor(), opts),
		Roles:       crud.NewService[domain.Role](store.NewRepository[domain.Role](db), roleDescriptor(), opts),
		Groups:      crud.NewService[domain.Group](store.NewRepository[domain.Group](db), groupDescriptor(), opts),
		Permissions: crud.NewService[domain.Permission](store.NewRepository[domain.Permission](db), permissionDescriptor(), opts),
	}
}

// Models lists the entities whose tables (and join tables) the service needs.
func Models() []any {
	return []any{&domain.Permission{}, &domain.Role{}, &domain.Group{}, &domain.User{}}
}

// CreateUser creates u and links it to the given roles and groups.
// Unknown ids are rejected before anything is written.
func (s *Service) CreateUser(ctx context.Context, u *domain.User, roleIDs, groupIDs []string, actorID string, opts ...crud.CreateOption) (*domain.User, error) {
	u.Email = strings.TrimSpace(u.Email)
	roleIDs, groupIDs = uniqueIDs(roleIDs), uniqueIDs(groupIDs)
	db := s.repo.db.WithContext(ctx)
	if err := s.repo.checkTargets(db, userRoles, roleIDs); err != nil {
		return nil, err
	}
	if err := s.repo.checkTargets(db, userGroups, groupIDs); err != nil {
		return nil, err
	}

	created, err := s.Users.Create(ctx, u, actorID, opts...)
	if err != nil {
		return nil, err
	}
	if err := s.repo.link(ctx, created.ID, map[link][]string{userRoles: roleIDs, userGroups: groupIDs}); err != nil {
		return nil, err
	}
	return s.repo.userWithMemberships(ctx, created.ID)
}

// CreateRole creates role and grants it the given permissions.
func (s *Service) CreateRole(ctx context.Context, role *domain.Role, permissionIDs []string, actorID string, opts ...crud.CreateOption) (*domain.Role, error) {
	permissionIDs = uniqueIDs(permissionIDs)
	if err := s.repo.checkTargets(s.repo.db.WithContext(ctx), rolePermissions, permissionIDs); err != nil {
		return nil, err
	}

	created, err := s.Roles.Create(ctx, role, actorID, opts...)
	if err != nil {
		return nil, err
	}
	if err := s.repo.link(ctx, created.ID, map[link][]string{rolePermissions: permissionIDs}); err != nil {
		return nil, err
	}
	return s.repo.roleWithPermissions(ctx, created.ID)
}

// CreateGroup creates g and grants it the given roles.
func (s *Service) CreateGroup(ctx context.Context, g *domain.Group, roleIDs []string, actorID string, opts ...crud.CreateOption) (*domain.Group, error) {
	roleIDs = uniqueIDs(roleIDs)
	if err := s.repo.checkTargets(s.repo.db.WithContext(ctx), groupRoles, roleIDs); err != nil {
		return nil, err
	}

	created, err := s.Groups.Create(ctx, g, actorID, opts...)
	if err != nil {
		return nil, err
	}
	if err := s.repo.link(ctx, created.ID, map[link][]string{groupRoles: roleIDs}); err != nil {
		return nil, err
	}
	return s.repo.groupWithRoles(ctx, created.ID)
}

// CreatePermission creates p. An empty name defaults to "action:resource".
func (s *Service) CreatePermission(ctx context.Context, p *domain.Permission, actorID string, opts ...crud.CreateOption) (*domain.Permission, error) {
	p.Name = strings.TrimSpace(p.Name)
	if p.Name == "" {
		p.Name = p.Key()
	}
	return s.Permissions.Create(ctx, p, actorID, opts...)
}

// SetUserRoles replaces the direct roles of a user.
func (s *Service) SetUserRoles(ctx context.Context, userID string, roleIDs []string, actorID string) (*domain.User, error) {
	return s.setUserLinks(ctx, userRoles, userID, roleIDs, actorID)
}

// SetUserGroups replaces the groups a user belongs to.
func (s *Service) SetUserGroups(ctx context.Context, userID string, groupIDs []string, actorID string) (*domain.User, error) {
	return s.setUserLinks(ctx, userGroups, userID, groupIDs, actorID)
}

func (s *Service) setUserLinks(ctx context.Context, l link, userID string, ids []string, actorID string) (*domain.User, error) {
	ids = uniqueIDs(ids)
	if _, err := s.Users.Touch(ctx, userID, actorID, func(ctx context.Context) error {
		return s.repo.replace(ctx, l, userID, ids)
	}); err != nil {
		return nil, err
	}
	return s.repo.userWithMemberships(ctx, userID)
}

// SetRolePermissions replaces the permissions granted to a role.
func (s *Service) SetRolePermissions(ctx context.Context, roleID string, permissionIDs []string, actorID string) (*domain.Role, error) {
	ids := uniqueIDs(permissionIDs)
	if _, err := s.Roles.Touch(ctx, roleID, actorID, func(ctx context.Context) error {
		return s.repo.replace(ctx, rolePermissions, roleID, ids)
	}); err != nil {
		return nil, err
	}
	return s.repo.roleWithPermissions(ctx, roleID)
}

// SetGroupRoles replaces the roles granted to a group.
func (s *Service) SetGroupRoles(ctx context.Context, groupID string, roleIDs []string, actorID string) (*domain.Group, error) {
	ids := uniqueIDs(roleIDs)
	if _, err := s.Groups.Touch(ctx, groupID, actorID, func(ctx context.Context) error {
		return s.repo.replace(ctx, groupRoles, groupID, ids)
	}); err != nil {
		return nil, err
	}
	return s.repo.groupWithRoles(ctx, groupID)
}

// AddGroupUser makes userID a member of groupID. Adding a current member
// leaves the membership as it is.
func (s *Service) AddGroupUser(ctx context.Context, groupID, userID, actorID string) (*domain.Group, error) {
	return s.changeGroup(ctx, groupID, actorID, func(ctx context.Context) error {
		return s.repo.attach(ctx, groupUser, groupID, strings.TrimSpace(userID))
	})
}

// RemoveGroupUser drops userID from groupID. Removing a non-member is a no-op.
func (s *Service) RemoveGroupUser(ctx context.Context, groupID, userID, actorID string) (*domain.Group, error) {
	return s.changeGroup(ctx, groupID, actorID, func(ctx context.Context) error {
		return s.repo.detach(ctx, groupUser, groupID, strings.TrimSpace(userID))
	})
}

// AddGroupRole grants roleID to groupID.
func (s *Service) AddGroupRole(ctx context.Context, groupID, roleID, actorID string) (*domain.Group, error) {
	return s.changeGroup(ctx, groupID, actorID, func(ctx context.Context) error {
		return s.repo.attach(ctx, groupRole, groupID, strings.TrimSpace(roleID))
	})
}

// RemoveGroupRole revokes roleID from groupID.
func (s *Service) RemoveGroupRole(ctx context.Context, groupID, roleID, actorID string) (*domain.Group, error) {
	return s.changeGroup(ctx, groupID, actorID, func(ctx context.Context) error {
		return s.repo.detach(ctx, groupRole, groupID, strings.TrimSpace(roleID))
	})
}

func (s *Service) changeGroup(ctx context.Context, groupID, actorID string, apply func(ctx context.Context) error) (*domain.Group, error) {
	if _, err := s.Groups.Touch(ctx, groupID, actorID, apply); err != nil {
		return nil, err
	}
	return s.repo.groupWithMembers(ctx, groupID)
}

// UserWithMemberships returns a user with its live roles and groups loaded.
func (s *Service) UserWithMemberships(ctx context.Context, id string) (*domain.User, error) {
	return s.repo.userWithMemberships(ctx, id)
}

// RoleWithPermissions returns a role with its live permissions loaded.
func (s *Service) RoleWithPermissions(ctx context.Context, id string) (*domain.Role, error) {
	return s.repo.roleWithPermissions(ctx, id)
}

// GroupWithRoles returns a group with its live roles loaded.
func (s *Service) GroupWithRoles(ctx context.Context, id string) (*domain.Group, error) {
	return s.repo.groupWithRoles(ctx, id)
}

// UserByEmail returns the live user with the given email.
func (s *Service) UserByEmail(ctx context.Context, email string) (*domain.User, error) {
	email = strings.TrimSpace(email)
	if email == "" {
		return nil, domain.ErrNotFound
	}
	return s.Users.FindFirst(ctx, map[string]domain.FilterValue{"email": domain.Eq(email)})
}

// UserByExternalID returns the live user linked to the identity provider
// subject externalID.
func (s *Service) UserByExternalID(ctx context.Context, externalID string) (*domain.User, error) {
	externalID = strings.TrimSpace(externalID)
	if externalID == "" {
		return nil, domain.ErrNotFound
	}
	return s.Users.FindFirst(ctx, map[string]domain.FilterValue{"externalId": domain.Eq(externalID)})
}

// UserPermissions returns the sorted "action:resource" keys the user holds
// through its roles and its groups' roles.
func (s *Service) UserPermissions(ctx context.Context, userID string) ([]string, error) {
	if _, err := s.Users.FindOne(ctx, userID); err != nil {
		return nil, err
	}
	return s.repo.effectivePermissions(ctx, userID)
}

// HasPermission reports whether the user may perform action on resource.
// "manage" covers every action and "all" covers every resource.
func (s *Service) HasPermission(ctx context.Context, userID, action, resource string) (bool, error) {
	keys, err := s.UserPermissions(ctx, userID)
	if err != nil {
		return false, err
	}
	return Grants(keys, action, resource), nil
}

// Grants reports whether any of keys allows action on resource.
func Grants(keys []string, action, resource string) bool {
	for _, a := range []string{action, domain.ActionManage} {
		for _, r := range []string{resource, domain.ResourceAll} {
			if slices.Contains(keys, a+":"+r) {
				return true
			}
		}
	}
	return false
}
