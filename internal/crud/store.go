package crud

import (
	"context"

	"github.com/simp-lee/rbacflow/internal/domain"
)

// Store is the storage capability the crud layer needs for one entity type.
// Implementations return *domain.AppError values: CodeNotFound from FindOne
// when nothing matches, CodeStorage for backend failures.
type Store[T any] interface {
	Count(ctx context.Context, p domain.Predicate) (int64, error)
	FindPage(ctx context.Context, p domain.Predicate, sort []domain.SortSpec, offset, limit int) ([]T, error)
	FindOne(ctx context.Context, p domain.Predicate) (*T, error)
	Insert(ctx context.Context, item *T) error
	UpdateFields(ctx context.Context, id string, expectRevision int64, fields map[string]any) (bool, error)
	// Merge applies fields, keyed by column, onto item in memory.
	Merge(ctx context.Context, item *T, fields map[string]any) error
	MarkDeleted(ctx context.Context, id string, stamp domain.AuditStamp) (bool, error)
	ClearDeleted(ctx context.Context, id string, stamp domain.AuditStamp) (bool, error)
	DistinctValueCounts(ctx context.Context, column string, p domain.Predicate) ([]domain.ValueCount, error)
}

// Publisher accepts change events for asynchronous delivery.
type Publisher interface {
	Publish(ev domain.Event) error
}

// MutationRecorder observes successful mutations, e.g. for metrics.
type MutationRecorder interface {
	RecordMutation(entityType, op string)
}
