package crud

import (
	"context"
	"fmt"
	"log/slog"
	"maps"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"
	lru "github.com/hashicorp/golang-lru/v2"
	"gorm.io/datatypes"

	"github.com/simp-lee/rbacflow/internal/domain"
	"github.com/simp-lee/rbacflow/internal/pkg"
)

// SchemaMode controls how patch keys unknown to the descriptor are handled.
type SchemaMode string

const (
	// SchemaStrict rejects unknown patch keys with a validation error.
	SchemaStrict SchemaMode = "strict"
	// SchemaPermissive merges unknown patch keys into the metadata bag.
	SchemaPermissive SchemaMode = "permissive"
)

// Mutation names reported to the MutationRecorder.
const (
	OpCreate  = "create"
	OpUpdate  = "update"
	OpDelete  = "delete"
	OpRestore = "restore"
)

const (
	DefaultLimit     = 10
	DefaultMaxLimit  = 100
	DefaultCacheSize = 128
)

// Options configures a Service. Zero values select the defaults.
type Options struct {
	Publisher  Publisher
	Recorder   MutationRecorder
	Logger     *slog.Logger
	SchemaMode SchemaMode

	DefaultLimit int
	MaxLimit     int
	// CacheSize bounds the aggregation cache; a negative value disables it.
	CacheSize int

	Now func() time.Time
}

func (o Options) withDefaults() Options {
	if o.Logger == nil {
		o.Logger = slog.Default()
	}
	if o.SchemaMode == "" {
		o.SchemaMode = SchemaStrict
	}
	if o.DefaultLimit < 1 {
		o.DefaultLimit = DefaultLimit
	}
	if o.MaxLimit < 1 {
		o.MaxLimit = DefaultMaxLimit
	}
	if o.DefaultLimit > o.MaxLimit {
		o.DefaultLimit = o.MaxLimit
	}
	if o.CacheSize == 0 {
		o.CacheSize = DefaultCacheSize
	}
	if o.Now == nil {
		o.Now = time.Now
	}
	return o
}

// Hooks let a resource emit domain events alongside the generic ones.
// Returned events are published after the generic event of the mutation.
type Hooks[PT any] struct {
	AfterCreate func(created PT) []domain.Event
	AfterUpdate func(before, after PT) []domain.Event
}

// Patch is a partial update keyed by wire field names. The "revision" key,
// when present, is an optimistic concurrency precondition.
type Patch map[string]any

// CreateOption adjusts how Create initializes a record.
type CreateOption func(*createConfig)

type createConfig struct {
	inactive bool
}

// Inactive creates the record with isActive=false.
func Inactive() CreateOption {
	return func(c *createConfig) { c.inactive = true }
}

// Service implements listing, aggregation, and audited mutations for one
// entity type T. PT is *T and exposes the embedded domain.BaseModel.
type Service[T any, PT interface {
	*T
	Model() *domain.BaseModel
}] struct {
	store Store[T]
	desc  *Descriptor
	opts  Options
	hooks Hooks[PT]
	locks keyedMutex

	aggMu    sync.Mutex
	aggGen   uint64
	aggCache *lru.Cache[string, domain.FilterAggregation]
}

// NewService creates a Service over store described by desc.
func NewService[T any, PT interface {
	*T
	Model() *domain.BaseModel
}](store Store[T], desc *Descriptor, opts Options) *Service[T, PT] {
	if store == nil {
		panic("crud.NewService: store must not be nil")
	}
	if desc == nil {
		panic("crud.NewService: descriptor must not be nil")
	}
	s := &Service[T, PT]{
		store: store,
		desc:  desc,
		opts:  opts.withDefaults(),
	}
	if s.opts.CacheSize > 0 {
		cache, err := lru.New[string, domain.FilterAggregation](s.opts.CacheSize)
		if err != nil {
			panic(fmt.Sprintf("crud.NewService: %v", err))
		}
		s.aggCache = cache
	}
	return s
}

// SetHooks installs resource-specific event hooks. Call it during wiring,
// before the service is used concurrently.
func (s *Service[T, PT]) SetHooks(h Hooks[PT]) {
	s.hooks = h
}

// EntityType returns the logical type name of the managed entity.
func (s *Service[T, PT]) EntityType() string {
	return s.desc.EntityType()
}

// Descriptor returns the field whitelist of the managed entity.
func (s *Service[T, PT]) Descriptor() *Descriptor {
	return s.desc
}

// FindAll returns one page of live records matching q.
func (s *Service[T, PT]) FindAll(ctx context.Context, q domain.QueryParams) (*domain.PaginatedResult[T], error) {
	rq, err := s.resolveQuery(q)
	if err != nil {
		return nil, err
	}

	total, err := s.store.Count(ctx, rq.pred)
	if err != nil {
		return nil, err
	}

	var items []T
	offset := pkg.Offset(rq.page, rq.limit)
	if total > int64(offset) {
		items, err = s.store.FindPage(ctx, rq.pred, rq.sort, offset, rq.limit)
		if err != nil {
			return nil, err
		}
	}
	return pkg.NewPaginatedResult(items, total, rq.page, rq.limit), nil
}

// FindOne returns the live record with the given id.
func (s *Service[T, PT]) FindOne(ctx context.Context, id string) (PT, error) {
	if id == "" {
		return nil, domain.ErrNotFound
	}
	item, err := s.store.FindOne(ctx, domain.Predicate{ID: id})
	if err != nil {
		return nil, err
	}
	return PT(item), nil
}

// FindFirst returns the first live record (by creation time) matching
// every filter, or a NotFound error.
func (s *Service[T, PT]) FindFirst(ctx context.Context, filters map[string]domain.FilterValue) (PT, error) {
	rq, err := s.resolveQuery(domain.QueryParams{
		Limit:     1,
		SortBy:    FieldCreatedAt,
		SortOrder: domain.SortAsc,
		Filters:   filters,
	})
	if err != nil {
		return nil, err
	}
	items, err := s.store.FindPage(ctx, rq.pred, rq.sort, 0, 1)
	if err != nil {
		return nil, err
	}
	if len(items) == 0 {
		return nil, domain.ErrNotFound
	}
	return PT(&items[0]), nil
}

// Create assigns a fresh id and audit stamp to item, persists it, and
// publishes entity:created. Any id or audit values already set on item are
// overwritten.
func (s *Service[T, PT]) Create(ctx context.Context, item PT, actorID string, opts ...CreateOption) (PT, error) {
	if item == nil {
		return nil, domain.NewAppError(domain.CodeValidation, "record must not be nil", nil)
	}
	var cfg createConfig
	for _, o := range opts {
		o(&cfg)
	}

	m := item.Model()
	m.ID = uuid.NewString()
	now := s.stamp(time.Time{})
	m.CreatedAt = now
	m.UpdatedAt = now
	m.DeletedAt = nil
	m.CreatedBy = actor(actorID)
	m.UpdatedBy = nil
	m.IsActive = !cfg.inactive
	m.Revision = 1

	unlock := s.locks.Lock(m.ID)
	defer unlock()

	if err := s.store.Insert(ctx, (*T)(item)); err != nil {
		return nil, err
	}

	s.committed(OpCreate)
	events := []domain.Event{s.event(domain.EventEntityCreated, m.ID, s.snapshot(item), actorID)}
	if s.hooks.AfterCreate != nil {
		events = append(events, s.hooks.AfterCreate(item)...)
	}
	s.emit(events...)
	return item, nil
}

// Update merges patch onto the live record with the given id, stamps
// updatedAt/updatedBy, and publishes entity:updated.
func (s *Service[T, PT]) Update(ctx context.Context, id string, patch Patch, actorID string) (PT, error) {
	cp, err := s.compilePatch(patch)
	if err != nil {
		return nil, err
	}

	unlock := s.locks.Lock(id)
	defer unlock()

	before, err := s.FindOne(ctx, id)
	if err != nil {
		return nil, err
	}
	bm := before.Model()
	if cp.expectRevision > 0 && bm.Revision != cp.expectRevision {
		return nil, revisionConflict(cp.expectRevision, bm.Revision)
	}

	fields := cp.columns
	if len(cp.extra) > 0 {
		merged := maps.Clone(bm.Metadata)
		if cp.hasMetadata {
			merged = maps.Clone(cp.metadata)
		}
		if merged == nil {
			merged = datatypes.JSONMap{}
		}
		maps.Copy(merged, cp.extra)
		fields["metadata"] = merged
	} else if cp.hasMetadata {
		fields["metadata"] = cp.metadata
	}

	fields["updated_at"] = s.stamp(bm.UpdatedAt)
	fields["updated_by"] = actor(actorID)
	fields["revision"] = bm.Revision + 1

	ok, err := s.store.UpdateFields(ctx, id, cp.expectRevision, fields)
	if err != nil {
		return nil, err
	}
	if !ok {
		if cp.expectRevision > 0 {
			return nil, revisionConflict(cp.expectRevision, 0)
		}
		return nil, domain.ErrNotFound
	}

	return s.afterUpdate(ctx, id, before, fields, actorID)
}

// Touch runs apply (a side mutation such as replacing memberships) for the
// live record with the given id, then stamps the record and publishes
// entity:updated as for Update.
func (s *Service[T, PT]) Touch(ctx context.Context, id, actorID string, apply func(ctx context.Context) error) (PT, error) {
	unlock := s.locks.Lock(id)
	defer unlock()

	before, err := s.FindOne(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := apply(ctx); err != nil {
		return nil, err
	}

	bm := before.Model()
	fields := map[string]any{
		"updated_at": s.stamp(bm.UpdatedAt),
		"updated_by": actor(actorID),
		"revision":   bm.Revision + 1,
	}
	ok, err := s.store.UpdateFields(ctx, id, 0, fields)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, domain.ErrNotFound
	}

	return s.afterUpdate(ctx, id, before, fields, actorID)
}

// afterUpdate publishes entity:updated for a committed write. The record is
// re-read; if that fails, the written fields are merged onto before instead.
func (s *Service[T, PT]) afterUpdate(ctx context.Context, id string, before PT, fields map[string]any, actorID string) (PT, error) {
	s.committed(OpUpdate)

	after, err := s.FindOne(ctx, id)
	if err != nil {
		s.opts.Logger.Warn("re-read after update failed",
			"entity_type", s.desc.EntityType(),
			"entity_id", id,
			"error", err,
		)
		after = s.snapshot(before)
		if mergeErr := s.store.Merge(ctx, (*T)(after), fields); mergeErr != nil {
			s.emit(s.event(domain.EventEntityUpdated, id, fields, actorID))
			return nil, err
		}
	}

	events := []domain.Event{s.event(domain.EventEntityUpdated, id, s.snapshot(after), actorID)}
	if s.hooks.AfterUpdate != nil {
		events = append(events, s.hooks.AfterUpdate(before, after)...)
	}
	s.emit(events...)
	return after, nil
}

// Remove soft-deletes the live record with the given id and publishes
// entity:deleted. Removing a missing or already deleted record is NotFound.
func (s *Service[T, PT]) Remove(ctx context.Context, id, actorID string) error {
	unlock := s.locks.Lock(id)
	defer unlock()

	before, err := s.FindOne(ctx, id)
	if err != nil {
		return err
	}
	bm := before.Model()

	ok, err := s.store.MarkDeleted(ctx, id, domain.AuditStamp{
		At:       s.stamp(bm.UpdatedAt),
		Actor:    actor(actorID),
		Revision: bm.Revision + 1,
	})
	if err != nil {
		return err
	}
	if !ok {
		return domain.ErrNotFound
	}

	s.committed(OpDelete)
	s.emit(s.event(domain.EventEntityDeleted, id, map[string]string{"id": id}, actorID))
	return nil
}

// Restore clears the soft-delete mark of the record with the given id.
// Restoring a missing or live record is NotFound. No event is published.
func (s *Service[T, PT]) Restore(ctx context.Context, id, actorID string) (PT, error) {
	if id == "" {
		return nil, domain.ErrNotFound
	}

	unlock := s.locks.Lock(id)
	defer unlock()

	deleted, err := s.store.FindOne(ctx, domain.Predicate{ID: id, OnlyDeleted: true})
	if err != nil {
		return nil, err
	}
	bm := PT(deleted).Model()

	ok, err := s.store.ClearDeleted(ctx, id, domain.AuditStamp{
		At:       s.stamp(bm.UpdatedAt),
		Actor:    actor(actorID),
		Revision: bm.Revision + 1,
	})
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, domain.ErrNotFound
	}

	s.committed(OpRestore)
	return s.FindOne(ctx, id)
}

// stamp returns the current time in storage precision, strictly after prev.
func (s *Service[T, PT]) stamp(prev time.Time) time.Time {
	now := s.opts.Now().UTC().Truncate(time.Microsecond)
	if !prev.IsZero() && !now.After(prev) {
		now = prev.UTC().Truncate(time.Microsecond).Add(time.Microsecond)
	}
	return now
}

func (s *Service[T, PT]) committed(op string) {
	s.invalidateAggregations()
	if s.opts.Recorder != nil {
		s.opts.Recorder.RecordMutation(s.desc.EntityType(), op)
	}
}

func (s *Service[T, PT]) event(typ domain.EventType, id string, data any, actorID string) domain.Event {
	return domain.Event{
		Type:       typ,
		EntityType: s.desc.EntityType(),
		EntityID:   id,
		Data:       data,
		UserID:     actor(actorID),
		Timestamp:  s.opts.Now().UTC(),
	}
}

// emit hands events to the publisher. The mutation has already committed,
// so publish failures are logged and never returned.
func (s *Service[T, PT]) emit(events ...domain.Event) {
	if s.opts.Publisher == nil {
		return
	}
	for _, ev := range events {
		s.publish(ev)
	}
}

func (s *Service[T, PT]) publish(ev domain.Event) {
	defer func() {
		if r := recover(); r != nil {
			s.opts.Logger.Error("event publisher panicked",
				"event_type", ev.Type,
				"entity_type", ev.EntityType,
				"entity_id", ev.EntityID,
				"panic", r,
			)
		}
	}()
	if err := s.opts.Publisher.Publish(ev); err != nil {
		s.opts.Logger.Warn("event not published",
			"event_type", ev.Type,
			"entity_type", ev.EntityType,
			"entity_id", ev.EntityID,
			"error", err,
		)
	}
}

type compiledPatch struct {
	columns        map[string]any
	extra          map[string]any
	metadata       datatypes.JSONMap
	hasMetadata    bool
	expectRevision int64
}

func (s *Service[T, PT]) compilePatch(p Patch) (compiledPatch, error) {
	cp := compiledPatch{columns: make(map[string]any, len(p)+3)}

	keys := slices.Sorted(maps.Keys(p))
	for _, key := range keys {
		raw := p[key]

		if key == FieldRevision {
			n, ok := toInt64(raw)
			if !ok || n < 1 {
				return cp, domain.NewFieldError(key, "revision must be a positive integer")
			}
			cp.expectRevision = n
			continue
		}
		if isReadOnly(key) {
			return cp, domain.NewFieldError(key, fmt.Sprintf("field %q is read-only", key))
		}

		f, ok := s.desc.Field(key)
		if !ok {
			if s.opts.SchemaMode == SchemaPermissive {
				if cp.extra == nil {
					cp.extra = make(map[string]any)
				}
				cp.extra[key] = raw
				continue
			}
			return cp, domain.NewFieldError(key, fmt.Sprintf("unknown field %q", key))
		}
		if !f.Mutable {
			return cp, domain.NewFieldError(key, fmt.Sprintf("field %q is read-only", key))
		}

		v, err := f.patchValue(raw)
		if err != nil {
			return cp, domain.NewFieldError(key, fmt.Sprintf("%s %v", key, err))
		}
		if err := f.checkRules(v); err != nil {
			return cp, domain.NewFieldError(key, err.Error())
		}
		if f.Name == FieldMetadata {
			cp.hasMetadata = true
			if v != nil {
				cp.metadata = v.(datatypes.JSONMap)
			}
			continue
		}
		cp.columns[f.Column] = v
	}
	return cp, nil
}

func revisionConflict(expected, actual int64) error {
	if actual > 0 {
		return domain.NewAppError(domain.CodeConflict,
			fmt.Sprintf("revision mismatch: expected %d, current %d", expected, actual), nil)
	}
	return domain.NewAppError(domain.CodeConflict,
		fmt.Sprintf("revision mismatch: expected %d", expected), nil)
}

func actor(id string) *string {
	if id == "" {
		return nil
	}
	return &id
}

// snapshot returns a shallow copy of item so that event consumers never
// observe later writes to the caller's value.
func (s *Service[T, PT]) snapshot(item PT) PT {
	cp := *item
	return PT(&cp)
}
