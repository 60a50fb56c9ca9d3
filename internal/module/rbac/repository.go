package rbac

import (
	"context"
	"fmt"
	"slices"
	"strings"

	"gorm.io/gorm"

	"github.com/simp-lee/rbacflow/internal/domain"
	"github.com/simp-lee/rbacflow/internal/pkg"
	"github.com/simp-lee/rbacflow/internal/store"
)

// link describes one many-to-many join table.
type link struct {
	table        string
	ownerColumn  string
	targetColumn string
	targetTable  string
	// field is the wire name of the id list in requests, e.g. "roleIds".
	field string
}

var (
	userRoles       = link{table: "user_roles", ownerColumn: "user_id", targetColumn: "role_id", targetTable: "roles", field: "roleIds"}
	userGroups      = link{table: "user_groups", ownerColumn: "user_id", targetColumn: "group_id", targetTable: "groups", field: "groupIds"}
	groupRoles      = link{table: "group_roles", ownerColumn: "group_id", targetColumn: "role_id", targetTable: "roles", field: "roleIds"}
	rolePermissions = link{table: "role_permissions", ownerColumn: "role_id", targetColumn: "permission_id", targetTable: "permissions", field: "permissionIds"}

	// Single-member links of a group, keyed by the path parameter.
	groupUser = link{table: "user_groups", ownerColumn: "group_id", targetColumn: "user_id", targetTable: "users", field: "userId"}
	groupRole = link{table: "group_roles", ownerColumn: "group_id", targetColumn: "role_id", targetTable: "roles", field: "roleId"}
)

// repository holds the join-table and read-model queries the generic
// store does not cover.
type repository struct {
	db *gorm.DB
}

// liveOnly is the preload condition that hides soft-deleted associations.
const liveOnly = "deleted_at IS NULL"

// checkTargets verifies that every id names a live row of l.targetTable.
func (r *repository) checkTargets(db *gorm.DB, l link, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	values := make([]any, len(ids))
	for i, id := range ids {
		values[i] = id
	}

	var found []string
	err := db.Table(l.targetTable).
		Scopes(pkg.Where(domain.Predicate{Conditions: []domain.Condition{{Column: "id", Values: values, Set: true}}})).
		Pluck("id", &found).Error
	if err != nil {
		return store.MapError(err)
	}
	if len(found) == len(ids) {
		return nil
	}

	var missing []string
	for _, id := range ids {
		if !slices.Contains(found, id) {
			missing = append(missing, id)
		}
	}
	return domain.NewFieldError(l.field, fmt.Sprintf("unknown %s: %s", l.targetTable, strings.Join(missing, ", ")))
}

// add links ownerID to every id after checking they exist.
func (r *repository) add(db *gorm.DB, l link, ownerID string, ids []string) error {
	if err := r.checkTargets(db, l, ids); err != nil {
		return err
	}
	if len(ids) == 0 {
		return nil
	}
	rows := make([]map[string]any, len(ids))
	for i, id := range ids {
		rows[i] = map[string]any{l.ownerColumn: ownerID, l.targetColumn: id}
	}
	if err := db.Table(l.table).Create(rows).Error; err != nil {
		return store.MapError(err)
	}
	return nil
}

// replace swaps the full link set of ownerID for ids in one transaction.
func (r *repository) replace(ctx context.Context, l link, ownerID string, ids []string) error {
	return pkg.WithTx(ctx, r.db, func(tx *gorm.DB) error {
		if err := tx.Exec("DELETE FROM "+l.table+" WHERE "+l.ownerColumn+" = ?", ownerID).Error; err != nil {
			return store.MapError(err)
		}
		return r.add(tx, l, ownerID, ids)
	})
}

// attach links ownerID to targetID. An existing link is left alone.
func (r *repository) attach(ctx context.Context, l link, ownerID, targetID string) error {
	return pkg.WithTx(ctx, r.db, func(tx *gorm.DB) error {
		if err := r.checkTargets(tx, l, []string{targetID}); err != nil {
			return err
		}
		var n int64
		err := tx.Table(l.table).
			Where(l.ownerColumn+" = ? AND "+l.targetColumn+" = ?", ownerID, targetID).
			Count(&n).Error
		if err != nil {
			return store.MapError(err)
		}
		if n > 0 {
			return nil
		}
		return store.MapError(tx.Table(l.table).Create(map[string]any{l.ownerColumn: ownerID, l.targetColumn: targetID}).Error)
	})
}

// detach removes the link between ownerID and targetID if there is one.
func (r *repository) detach(ctx context.Context, l link, ownerID, targetID string) error {
	err := r.db.WithContext(ctx).
		Exec("DELETE FROM "+l.table+" WHERE "+l.ownerColumn+" = ? AND "+l.targetColumn+" = ?", ownerID, targetID).Error
	return store.MapError(err)
}

// link inserts the initial links of a freshly created owner.
func (r *repository) link(ctx context.Context, ownerID string, sets map[link][]string) error {
	return pkg.WithTx(ctx, r.db, func(tx *gorm.DB) error {
		for l, ids := range sets {
			if err := r.add(tx, l, ownerID, ids); err != nil {
				return err
			}
		}
		return nil
	})
}

// effectivePermissions returns the sorted "action:resource" keys granted to
// userID through direct roles and through group roles. Deleted or inactive
// roles, groups and permissions grant nothing.
func (r *repository) effectivePermissions(ctx context.Context, userID string) ([]string, error) {
	const q = `
SELECT DISTINCT p.action, p.resource
FROM permissions p
JOIN role_permissions rp ON rp.permission_id = p.id
JOIN roles r ON r.id = rp.role_id AND r.deleted_at IS NULL AND r.is_active = ?
WHERE p.deleted_at IS NULL AND p.is_active = ? AND (
	r.id IN (SELECT ur.role_id FROM user_roles ur WHERE ur.user_id = ?)
	OR r.id IN (
		SELECT gr.role_id FROM group_roles gr
		JOIN "groups" g ON g.id = gr.group_id AND g.deleted_at IS NULL AND g.is_active = ?
		JOIN user_groups ug ON ug.group_id = g.id
		WHERE ug.user_id = ?
	)
)
ORDER BY p.action, p.resource`

	var rows []struct {
		Action   string
		Resource string
	}
	if err := r.db.WithContext(ctx).Raw(q, true, true, userID, true, userID).Scan(&rows).Error; err != nil {
		return nil, store.MapError(err)
	}

	keys := make([]string, len(rows))
	for i, row := range rows {
		keys[i] = row.Action + ":" + row.Resource
	}
	slices.Sort(keys)
	return keys, nil
}

func (r *repository) userWithMemberships(ctx context.Context, id string) (*domain.User, error) {
	var u domain.User
	err := r.db.WithContext(ctx).
		Preload("Roles", liveOnly).
		Preload("Groups", liveOnly).
		Scopes(pkg.Where(domain.Predicate{ID: id})).
		Take(&u).Error
	if err != nil {
		return nil, store.MapError(err)
	}
	return &u, nil
}

func (r *repository) roleWithPermissions(ctx context.Context, id string) (*domain.Role, error) {
	var role domain.Role
	err := r.db.WithContext(ctx).
		Preload("Permissions", liveOnly).
		Scopes(pkg.Where(domain.Predicate{ID: id})).
		Take(&role).Error
	if err != nil {
		return nil, store.MapError(err)
	}
	return &role, nil
}

func (r *repository) groupWithRoles(ctx context.Context, id string) (*domain.Group, error) {
	var g domain.Group
	err := r.db.WithContext(ctx).
		Preload("Roles", liveOnly).
		Scopes(pkg.Where(domain.Predicate{ID: id})).
		Take(&g).Error
	if err != nil {
		return nil, store.MapError(err)
	}
	return &g, nil
}

func (r *repository) groupWithMembers(ctx context.Context, id string) (*domain.Group, error) {
	var g domain.Group
	err := r.db.WithContext(ctx).
		Preload("Roles", liveOnly).
		Preload("Users", liveOnly).
		Scopes(pkg.Where(domain.Predicate{ID: id})).
		Take(&g).Error
	if err != nil {
		return nil, store.MapError(err)
	}
	return &g, nil
}

// uniqueIDs trims ids and drops blanks and repeats, keeping first occurrences.
func uniqueIDs(ids []string) []string {
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		id = strings.TrimSpace(id)
		if id != "" && !slices.Contains(out, id) {
			out = append(out, id)
		}
	}
	return out
}
