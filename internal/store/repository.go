// Package store implements the storage capability consumed by the crud layer
// on top of GORM.
package store

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"strings"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/simp-lee/rbacflow/internal/domain"
	"github.com/simp-lee/rbacflow/internal/pkg"
)

// Repository is a generic GORM-backed store for one entity type.
// T must embed domain.BaseModel.
type Repository[T any] struct {
	db *gorm.DB
}

// NewRepository creates a Repository backed by the given GORM database.
func NewRepository[T any](db *gorm.DB) *Repository[T] {
	if db == nil {
		panic("store.NewRepository: db must not be nil")
	}
	return &Repository[T]{db: db}
}

// DB returns the underlying handle for callers that need joins or raw SQL.
func (r *Repository[T]) DB() *gorm.DB {
	return r.db
}

func (r *Repository[T]) scoped(ctx context.Context, p domain.Predicate) *gorm.DB {
	return r.db.WithContext(ctx).Model(new(T)).Scopes(pkg.Where(p))
}

// Count returns the number of rows matching p.
func (r *Repository[T]) Count(ctx context.Context, p domain.Predicate) (int64, error) {
	var total int64
	if err := r.scoped(ctx, p).Count(&total).Error; err != nil {
		return 0, MapError(err)
	}
	return total, nil
}

// FindPage returns one window of rows matching p in the given order.
func (r *Repository[T]) FindPage(ctx context.Context, p domain.Predicate, sort []domain.SortSpec, offset, limit int) ([]T, error) {
	items := make([]T, 0, limit)
	if err := r.scoped(ctx, p).Scopes(
		pkg.Sort(sort),
		pkg.Paginate(offset, limit),
	).Find(&items).Error; err != nil {
		return nil, MapError(err)
	}
	return items, nil
}

// FindOne returns the single row matching p, or a NotFound error.
func (r *Repository[T]) FindOne(ctx context.Context, p domain.Predicate) (*T, error) {
	var item T
	if err := r.scoped(ctx, p).Take(&item).Error; err != nil {
		return nil, MapError(err)
	}
	return &item, nil
}

// Insert persists a new row. Associations are never written here;
// memberships are managed explicitly through their join tables.
func (r *Repository[T]) Insert(ctx context.Context, item *T) error {
	if err := r.db.WithContext(ctx).Omit(clause.Associations).Create(item).Error; err != nil {
		return MapError(err)
	}
	return nil
}

// UpdateFields writes fields to the live row with the given id. When
// expectRevision is positive the row must also carry that revision.
// It reports whether a row matched.
func (r *Repository[T]) UpdateFields(ctx context.Context, id string, expectRevision int64, fields map[string]any) (bool, error) {
	q := r.scoped(ctx, domain.Predicate{ID: id})
	if expectRevision > 0 {
		q = q.Where("revision = ?", expectRevision)
	}
	res := q.Updates(fields)
	if res.Error != nil {
		return false, MapError(res.Error)
	}
	return res.RowsAffected > 0, nil
}

// Merge applies fields, keyed by column, onto item without touching the
// database. Unknown columns are skipped.
func (r *Repository[T]) Merge(ctx context.Context, item *T, fields map[string]any) error {
	stmt := &gorm.Statement{DB: r.db}
	if err := stmt.Parse(item); err != nil {
		return fmt.Errorf("parse schema: %w", err)
	}
	rv := reflect.ValueOf(item).Elem()
	for col, v := range fields {
		f := stmt.Schema.LookUpField(col)
		if f == nil {
			continue
		}
		if err := f.Set(ctx, rv, v); err != nil {
			return fmt.Errorf("set %s: %w", col, err)
		}
	}
	return nil
}

// MarkDeleted soft-deletes the live row with the given id.
// It reports whether a row matched.
func (r *Repository[T]) MarkDeleted(ctx context.Context, id string, stamp domain.AuditStamp) (bool, error) {
	res := r.scoped(ctx, domain.Predicate{ID: id}).Updates(map[string]any{
		"deleted_at": stamp.At,
		"updated_at": stamp.At,
		"updated_by": stamp.Actor,
		"revision":   stamp.Revision,
	})
	if res.Error != nil {
		return false, MapError(res.Error)
	}
	return res.RowsAffected > 0, nil
}

// ClearDeleted restores the soft-deleted row with the given id.
// It reports whether a row matched.
func (r *Repository[T]) ClearDeleted(ctx context.Context, id string, stamp domain.AuditStamp) (bool, error) {
	res := r.scoped(ctx, domain.Predicate{ID: id, OnlyDeleted: true}).Updates(map[string]any{
		"deleted_at": nil,
		"updated_at": stamp.At,
		"updated_by": stamp.Actor,
		"revision":   stamp.Revision,
	})
	if res.Error != nil {
		return false, MapError(res.Error)
	}
	return res.RowsAffected > 0, nil
}

// DistinctValueCounts returns the non-null distinct values of column among
// rows matching p, each with its occurrence count.
func (r *Repository[T]) DistinctValueCounts(ctx context.Context, column string, p domain.Predicate) ([]domain.ValueCount, error) {
	if !pkg.ValidColumn(column) {
		return nil, domain.NewAppError(domain.CodeValidation, fmt.Sprintf("invalid column %q", column), nil)
	}

	rows, err := r.scoped(ctx, p).
		Select(column + " AS val, COUNT(*) AS cnt").
		Where(column + " IS NOT NULL").
		Group(column).
		Rows()
	if err != nil {
		return nil, MapError(err)
	}
	defer rows.Close()

	var out []domain.ValueCount
	for rows.Next() {
		var vc domain.ValueCount
		if err := rows.Scan(&vc.Value, &vc.Count); err != nil {
			return nil, MapError(err)
		}
		out = append(out, vc)
	}
	if err := rows.Err(); err != nil {
		return nil, MapError(err)
	}
	return out, nil
}

// MapError converts GORM errors to domain errors. Callers issuing raw
// queries outside a Repository use it to keep the same error contract.
func MapError(err error) error {
	if err == nil {
		return nil
	}
	var appErr *domain.AppError
	if errors.As(err, &appErr) {
		return appErr
	}
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return domain.ErrNotFound
	}
	if errors.Is(err, gorm.ErrDuplicatedKey) || isDuplicateKeyError(err) {
		return domain.NewAppError(domain.CodeAlreadyExists, "already exists", err)
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return domain.NewAppError(domain.CodeStorage, "database operation cancelled", err)
	}
	return domain.NewAppError(domain.CodeStorage, "database error", err)
}

// isDuplicateKeyError detects unique constraint violations by examining the
// error message. This is needed because not all GORM dialectors translate
// driver-level errors to gorm.ErrDuplicatedKey (e.g. the pure-Go SQLite driver).
func isDuplicateKeyError(err error) bool {
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "unique constraint") ||
		strings.Contains(msg, "duplicate key") ||
		strings.Contains(msg, "duplicate entry")
}
