package rbac

import (
	"context"
	"errors"
	"slices"
	"testing"

	"github.com/glebarez/sqlite"
	"gorm.io/gorm"

	"github.com/simp-lee/rbacflow/internal/crud"
	"github.com/simp-lee/rbacflow/internal/domain"
)

func setupTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	if err != nil {
		t.Fatalf("open test db: %v", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("sql db: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)
	if err := db.AutoMigrate(Models()...); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return db
}

func newTestService(t *testing.T) *Service {
	t.Helper()
	return NewService(setupTestDB(t), crud.Options{})
}

func mustPermission(t *testing.T, svc *Service, action, resource string) *domain.Permission {
	t.Helper()
	p, err := svc.CreatePermission(context.Background(), &domain.Permission{Action: action, Resource: resource}, "admin")
	if err != nil {
		t.Fatalf("CreatePermission(%s:%s): %v", action, resource, err)
	}
	return p
}

func mustRole(t *testing.T, svc *Service, name string, perms ...*domain.Permission) *domain.Role {
	t.Helper()
	ids := make([]string, len(perms))
	for i, p := range perms {
		ids[i] = p.ID
	}
	r, err := svc.CreateRole(context.Background(), &domain.Role{Name: name}, ids, "admin")
	if err != nil {
		t.Fatalf("CreateRole(%s): %v", name, err)
	}
	return r
}

func strPtr(s string) *string { return &s }

func TestCreatePermission_DefaultName(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	p := mustPermission(t, svc, domain.ActionRead, domain.ResourceApproval)
	if p.Name != "read:approval" {
		t.Errorf("name = %q, want read:approval", p.Name)
	}

	named, err := svc.CreatePermission(ctx, &domain.Permission{Name: " approvers ", Action: domain.ActionUpdate, Resource: domain.ResourceApproval}, "admin")
	if err != nil {
		t.Fatalf("CreatePermission: %v", err)
	}
	if named.Name != "approvers" {
		t.Errorf("name = %q, want approvers", named.Name)
	}

	_, err = svc.CreatePermission(ctx, &domain.Permission{Action: domain.ActionRead, Resource: domain.ResourceApproval}, "admin")
	if !domain.IsAlreadyExists(err) {
		t.Errorf("duplicate permission: err = %v, want AlreadyExists", err)
	}
}

func TestCreateRole_WithPermissions(t *testing.T) {
	svc := newTestService(t)
	read := mustPermission(t, svc, domain.ActionRead, domain.ResourceClaim)
	update := mustPermission(t, svc, domain.ActionUpdate, domain.ResourceClaim)

	role := mustRole(t, svc, "claimer", read, update, read)
	if len(role.Permissions) != 2 {
		t.Fatalf("permissions = %d, want 2", len(role.Permissions))
	}

	_, err := svc.CreateRole(context.Background(), &domain.Role{Name: "ghost"}, []string{"missing"}, "admin")
	var appErr *domain.AppError
	if !errors.As(err, &appErr) || appErr.Code != domain.CodeValidation {
		t.Fatalf("unknown permission: err = %v, want validation error", err)
	}
	if appErr.Field != "permissionIds" {
		t.Errorf("field = %q, want permissionIds", appErr.Field)
	}
	if _, err := svc.Roles.FindFirst(context.Background(), map[string]domain.FilterValue{"name": domain.Eq("ghost")}); !domain.IsNotFound(err) {
		t.Errorf("role with unknown permission was created: %v", err)
	}
}

func TestCreateUser_WithMemberships(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()
	role := mustRole(t, svc, "reviewer")
	group, err := svc.CreateGroup(ctx, &domain.Group{Name: "finance"}, nil, "admin")
	if err != nil {
		t.Fatalf("CreateGroup: %v", err)
	}

	u, err := svc.CreateUser(ctx, &domain.User{Email: " jane@example.com ", ExternalID: strPtr("idp|1")},
		[]string{role.ID, " ", role.ID}, []string{group.ID}, "admin")
	if err != nil {
		t.Fatalf("CreateUser: %v", err)
	}
	if u.Email != "jane@example.com" {
		t.Errorf("email = %q, want trimmed", u.Email)
	}
	if len(u.Roles) != 1 || u.Roles[0].ID != role.ID {
		t.Errorf("roles = %+v", u.Roles)
	}
	if len(u.Groups) != 1 || u.Groups[0].ID != group.ID {
		t.Errorf("groups = %+v", u.Groups)
	}

	_, err = svc.CreateUser(ctx, &domain.User{Email: "jane@example.com"}, nil, nil, "admin")
	if !domain.IsAlreadyExists(err) {
		t.Errorf("duplicate email: err = %v, want AlreadyExists", err)
	}

	_, err = svc.CreateUser(ctx, &domain.User{Email: "bob@example.com"}, nil, []string{"nope"}, "admin")
	if !domain.IsValidation(err) {
		t.Errorf("unknown group: err = %v, want validation error", err)
	}
	if _, err := svc.UserByEmail(ctx, "bob@example.com"); !domain.IsNotFound(err) {
		t.Errorf("user with unknown group was created: %v", err)
	}
}

func TestSetUserRoles(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()
	a := mustRole(t, svc, "a")
	b := mustRole(t, svc, "b")
	u, err := svc.CreateUser(ctx, &domain.User{Email: "u@example.com"}, []string{a.ID}, nil, "admin")
	if err != nil {
		t.Fatalf("CreateUser: %v", err)
	}

	got, err := svc.SetUserRoles(ctx, u.ID, []string{b.ID, b.ID}, "manager")
	if err != nil {
		t.Fatalf("SetUserRoles: %v", err)
	}
	if len(got.Roles) != 1 || got.Roles[0].ID != b.ID {
		t.Errorf("roles = %+v, want only b", got.Roles)
	}
	if got.Revision != u.Revision+1 {
		t.Errorf("revision = %d, want %d", got.Revision, u.Revision+1)
	}
	if got.UpdatedBy == nil || *got.UpdatedBy != "manager" {
		t.Errorf("updatedBy = %v, want manager", got.UpdatedBy)
	}

	// A failed replacement leaves the previous set intact.
	if _, err := svc.SetUserRoles(ctx, u.ID, []string{a.ID, "missing"}, "manager"); !domain.IsValidation(err) {
		t.Fatalf("unknown role: err = %v, want validation error", err)
	}
	after, err := svc.UserWithMemberships(ctx, u.ID)
	if err != nil {
		t.Fatalf("UserWithMemberships: %v", err)
	}
	if len(after.Roles) != 1 || after.Roles[0].ID != b.ID {
		t.Errorf("roles after failed replace = %+v, want only b", after.Roles)
	}

	cleared, err := svc.SetUserRoles(ctx, u.ID, []string{}, "manager")
	if err != nil {
		t.Fatalf("clear roles: %v", err)
	}
	if len(cleared.Roles) != 0 {
		t.Errorf("roles = %+v, want none", cleared.Roles)
	}

	if _, err := svc.SetUserRoles(ctx, "missing", []string{a.ID}, "manager"); !domain.IsNotFound(err) {
		t.Errorf("missing user: err = %v, want NotFound", err)
	}
}

func TestUserPermissions(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	readApproval := mustPermission(t, svc, domain.ActionRead, domain.ResourceApproval)
	createApproval := mustPermission(t, svc, domain.ActionCreate, domain.ResourceApproval)
	manageClaim := mustPermission(t, svc, domain.ActionManage, domain.ResourceClaim)

	direct := mustRole(t, svc, "viewer", readApproval)
	inherited := mustRole(t, svc, "requester", createApproval, manageClaim, readApproval)
	group, err := svc.CreateGroup(ctx, &domain.Group{Name: "ops"}, []string{inherited.ID}, "admin")
	if err != nil {
		t.Fatalf("CreateGroup: %v", err)
	}
	u, err := svc.CreateUser(ctx, &domain.User{Email: "ops@example.com"}, []string{direct.ID}, []string{group.ID}, "admin")
	if err != nil {
		t.Fatalf("CreateUser: %v", err)
	}

	got, err := svc.UserPermissions(ctx, u.ID)
	if err != nil {
		t.Fatalf("UserPermissions: %v", err)
	}
	want := []string{"create:approval", "manage:claim", "read:approval"}
	if !slices.Equal(got, want) {
		t.Errorf("permissions = %v, want %v", got, want)
	}

	if err := svc.Groups.Remove(ctx, group.ID, "admin"); err != nil {
		t.Fatalf("remove group: %v", err)
	}
	got, err = svc.UserPermissions(ctx, u.ID)
	if err != nil {
		t.Fatalf("UserPermissions: %v", err)
	}
	if !slices.Equal(got, []string{"read:approval"}) {
		t.Errorf("permissions after group removal = %v, want [read:approval]", got)
	}

	if _, err := svc.Permissions.Update(ctx, readApproval.ID, crud.Patch{"isActive": false}, "admin"); err != nil {
		t.Fatalf("deactivate permission: %v", err)
	}
	got, err = svc.UserPermissions(ctx, u.ID)
	if err != nil {
		t.Fatalf("UserPermissions: %v", err)
	}
	if len(got) != 0 {
		t.Errorf("permissions after deactivation = %v, want none", got)
	}

	if _, err := svc.UserPermissions(ctx, "missing"); !domain.IsNotFound(err) {
		t.Errorf("missing user: err = %v, want NotFound", err)
	}
}

func TestHasPermission(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()
	manage := mustPermission(t, svc, domain.ActionManage, domain.ResourceClaim)
	role := mustRole(t, svc, "claims-admin", manage)
	u, err := svc.CreateUser(ctx, &domain.User{Email: "c@example.com"}, []string{role.ID}, nil, "admin")
	if err != nil {
		t.Fatalf("CreateUser: %v", err)
	}

	ok, err := svc.HasPermission(ctx, u.ID, domain.ActionDelete, domain.ResourceClaim)
	if err != nil || !ok {
		t.Errorf("HasPermission(delete:claim) = %v, %v; want true", ok, err)
	}
	ok, err = svc.HasPermission(ctx, u.ID, domain.ActionRead, domain.ResourceApproval)
	if err != nil || ok {
		t.Errorf("HasPermission(read:approval) = %v, %v; want false", ok, err)
	}
}

func TestGrants(t *testing.T) {
	tests := []struct {
		name     string
		keys     []string
		action   string
		resource string
		want     bool
	}{
		{"exact", []string{"read:claim"}, "read", "claim", true},
		{"other action", []string{"read:claim"}, "update", "claim", false},
		{"manage covers actions", []string{"manage:claim"}, "delete", "claim", true},
		{"all covers resources", []string{"read:all"}, "read", "pattern", true},
		{"manage all", []string{"manage:all"}, "create", "user", true},
		{"manage other resource", []string{"manage:role"}, "read", "claim", false},
		{"empty", nil, "read", "claim", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Grants(tt.keys, tt.action, tt.resource); got != tt.want {
				t.Errorf("Grants(%v, %s, %s) = %v, want %v", tt.keys, tt.action, tt.resource, got, tt.want)
			}
		})
	}
}

func TestUserLookups(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()
	u, err := svc.CreateUser(ctx, &domain.User{Email: "x@example.com", ExternalID: strPtr("user_2abc")}, nil, nil, "admin")
	if err != nil {
		t.Fatalf("CreateUser: %v", err)
	}

	tests := []struct {
		name    string
		lookup  func() (*domain.User, error)
		wantHit bool
	}{
		{"by email", func() (*domain.User, error) { return svc.UserByEmail(ctx, "x@example.com") }, true},
		{"by unknown email", func() (*domain.User, error) { return svc.UserByEmail(ctx, "y@example.com") }, false},
		{"by blank email", func() (*domain.User, error) { return svc.UserByEmail(ctx, "  ") }, false},
		{"by external id", func() (*domain.User, error) { return svc.UserByExternalID(ctx, "user_2abc") }, true},
		{"by unknown external id", func() (*domain.User, error) { return svc.UserByExternalID(ctx, "user_zzz") }, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := tt.lookup()
			if tt.wantHit {
				if err != nil || got.ID != u.ID {
					t.Errorf("got %v, %v; want user %s", got, err, u.ID)
				}
				return
			}
			if !domain.IsNotFound(err) {
				t.Errorf("err = %v, want NotFound", err)
			}
		})
	}

	if err := svc.Users.Remove(ctx, u.ID, "admin"); err != nil {
		t.Fatalf("Remove: %v", err)
	}
	if _, err := svc.UserByEmail(ctx, "x@example.com"); !domain.IsNotFound(err) {
		t.Errorf("deleted user still found by email: %v", err)
	}
}
