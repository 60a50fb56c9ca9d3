// Package workflow manages approval patterns, approvals and their decisions,
// claimable work items, and exceptions raised during processing.
package workflow

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"time"

	"gorm.io/gorm"

	"github.com/simp-lee/rbacflow/internal/crud"
	"github.com/simp-lee/rbacflow/internal/domain"
	"github.com/simp-lee/rbacflow/internal/store"
)

// Service bundles the generic services of the workflow entities with their
// state transitions.
type Service struct {
	Patterns   *crud.Service[domain.Pattern, *domain.Pattern]
	Approvals  *crud.Service[domain.Approval, *domain.Approval]
	Decisions  *crud.Service[domain.Decision, *domain.Decision]
	Claims     *crud.Service[domain.Claim, *domain.Claim]
	Exceptions *crud.Service[domain.Exception, *domain.Exception]

	now func() time.Time
}

// StatusChange is the payload of status transition events.
type StatusChange struct {
	From   string `json:"from"`
	To     string `json:"to"`
	Record any    `json:"record"`
}

// NewService creates a Service over db. Panics if db is nil.
func NewService(db *gorm.DB, opts crud.Options) *Service {
	if db == nil {
		panic("workflow.NewService: db must not be nil")
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	s := &Service{
		Patterns:   crud.NewService[domain.Pattern](store.NewRepository[domain.Pattern](db), patternDescriptor(), opts),
		Approvals:  crud.NewService[domain.Approval](store.NewRepository[domain.Approval](db), approvalDescriptor(), opts),
		Decisions:  crud.NewService[domain.Decision](store.NewRepository[domain.Decision](db), decisionDescriptor(), opts),
		Claims:     crud.NewService[domain.Claim](store.NewRepository[domain.Claim](db), claimDescriptor(), opts),
		Exceptions: crud.NewService[domain.Exception](store.NewRepository[domain.Exception](db), exceptionDescriptor(), opts),
		now:        now,
	}

	s.Approvals.SetHooks(crud.Hooks[*domain.Approval]{
		AfterUpdate: func(before, after *domain.Approval) []domain.Event {
			if before.Status == after.Status {
				return nil
			}
			return []domain.Event{transition(domain.EventApprovalStatusChanged, EntityApproval, &after.BaseModel,
				StatusChange{From: before.Status, To: after.Status, Record: after})}
		},
	})
	s.Decisions.SetHooks(crud.Hooks[*domain.Decision]{
		AfterCreate: func(d *domain.Decision) []domain.Event {
			by := d.DecidedByID
			return []domain.Event{{
				Type:       domain.EventDecisionMade,
				EntityType: EntityDecision,
				EntityID:   d.ID,
				Data:       d,
				UserID:     &by,
				Timestamp:  d.CreatedAt,
			}}
		},
	})
	s.Claims.SetHooks(crud.Hooks[*domain.Claim]{
		AfterUpdate: func(before, after *domain.Claim) []domain.Event {
			if before.Status == after.Status && equalPtr(before.ClaimedByID, after.ClaimedByID) {
				return nil
			}
			return []domain.Event{transition(domain.EventClaimUpdated, EntityClaim, &after.BaseModel,
				StatusChange{From: before.Status, To: after.Status, Record: after})}
		},
	})
	s.Exceptions.SetHooks(crud.Hooks[*domain.Exception]{
		AfterCreate: func(e *domain.Exception) []domain.Event {
			return []domain.Event{{
				Type:       domain.EventExceptionRaised,
				EntityType: EntityException,
				EntityID:   e.ID,
				Data:       e,
				UserID:     e.CreatedBy,
				Timestamp:  e.CreatedAt,
			}}
		},
	})
	return s
}

// Models lists the entities whose tables the service needs.
func Models() []any {
	return []any{&domain.Pattern{}, &domain.Approval{}, &domain.Decision{}, &domain.Claim{}, &domain.Exception{}}
}

func transition(typ domain.EventType, entityType string, m *domain.BaseModel, change StatusChange) domain.Event {
	return domain.Event{
		Type:       typ,
		EntityType: entityType,
		EntityID:   m.ID,
		Data:       change,
		UserID:     m.UpdatedBy,
		Timestamp:  m.UpdatedAt,
	}
}

func (s *Service) stamp() time.Time {
	return s.now().UTC().Truncate(time.Microsecond)
}

// CreatePattern creates p as a draft at version 1 unless they are set.
func (s *Service) CreatePattern(ctx context.Context, p *domain.Pattern, actorID string, opts ...crud.CreateOption) (*domain.Pattern, error) {
	if p.Status == "" {
		p.Status = domain.PatternDraft
	}
	if p.Version < 1 {
		p.Version = 1
	}
	return s.Patterns.Create(ctx, p, actorID, opts...)
}

// ActivatePattern marks a pattern active.
func (s *Service) ActivatePattern(ctx context.Context, id, actorID string) (*domain.Pattern, error) {
	return s.Patterns.Update(ctx, id, crud.Patch{"status": domain.PatternActive}, actorID)
}

// DeactivatePattern marks a pattern inactive.
func (s *Service) DeactivatePattern(ctx context.Context, id, actorID string) (*domain.Pattern, error) {
	return s.Patterns.Update(ctx, id, crud.Patch{"status": domain.PatternInactive}, actorID)
}

// CreateApproval creates a pending, medium priority approval unless status
// or priority are set. A referenced pattern must exist.
func (s *Service) CreateApproval(ctx context.Context, a *domain.Approval, actorID string, opts ...crud.CreateOption) (*domain.Approval, error) {
	if a.Status == "" {
		a.Status = domain.ApprovalPending
	}
	if a.Priority == "" {
		a.Priority = domain.PriorityMedium
	}
	if a.PatternID != nil {
		if err := exists(ctx, s.Patterns.FindOne, *a.PatternID, "patternId"); err != nil {
			return nil, err
		}
	}
	return s.Approvals.Create(ctx, a, actorID, opts...)
}

// CreateDecision records a decision on an existing approval. The decider
// defaults to the caller and the decision time to now.
func (s *Service) CreateDecision(ctx context.Context, d *domain.Decision, actorID string, opts ...crud.CreateOption) (*domain.Decision, error) {
	if err := exists(ctx, s.Approvals.FindOne, d.ApprovalID, "approvalId"); err != nil {
		return nil, err
	}
	if d.DecidedByID == "" {
		d.DecidedByID = actorID
	}
	if d.DecidedByID == "" {
		return nil, domain.NewFieldError("decidedById", "decidedById is required when the caller is anonymous")
	}
	if d.DecidedAt.IsZero() {
		d.DecidedAt = s.stamp()
	} else {
		d.DecidedAt = d.DecidedAt.UTC().Truncate(time.Microsecond)
	}
	return s.Decisions.Create(ctx, d, actorID, opts...)
}

// CreateClaim creates an open, unclaimed work item.
func (s *Service) CreateClaim(ctx context.Context, c *domain.Claim, actorID string, opts ...crud.CreateOption) (*domain.Claim, error) {
	c.Status = domain.ClaimOpen
	c.ClaimedByID, c.ClaimedAt, c.CompletedAt = nil, nil, nil
	return s.Claims.Create(ctx, c, actorID, opts...)
}

// TakeClaim assigns an open, unclaimed work item to the caller.
func (s *Service) TakeClaim(ctx context.Context, id, actorID string) (*domain.Claim, error) {
	if actorID == "" {
		return nil, errAnonymous
	}
	c, err := s.Claims.FindOne(ctx, id)
	if err != nil {
		return nil, err
	}
	if c.Status != domain.ClaimOpen || c.ClaimedByID != nil {
		return nil, conflict("claim %s is not available", id)
	}
	return s.Claims.Update(ctx, id, crud.Patch{
		"status":      domain.ClaimInProgress,
		"claimedById": actorID,
		"claimedAt":   s.stamp(),
		"revision":    c.Revision,
	}, actorID)
}

// ReleaseClaim hands an in-progress work item back to the pool. Only the
// claimant may release it.
func (s *Service) ReleaseClaim(ctx context.Context, id, actorID string) (*domain.Claim, error) {
	c, err := s.claimedBy(ctx, id, actorID)
	if err != nil {
		return nil, err
	}
	return s.Claims.Update(ctx, id, crud.Patch{
		"status":      domain.ClaimOpen,
		"claimedById": nil,
		"claimedAt":   nil,
		"revision":    c.Revision,
	}, actorID)
}

// CompleteClaim finishes an in-progress work item. Only the claimant may
// complete it.
func (s *Service) CompleteClaim(ctx context.Context, id, actorID string) (*domain.Claim, error) {
	c, err := s.claimedBy(ctx, id, actorID)
	if err != nil {
		return nil, err
	}
	return s.Claims.Update(ctx, id, crud.Patch{
		"status":      domain.ClaimCompleted,
		"completedAt": s.stamp(),
		"revision":    c.Revision,
	}, actorID)
}

func (s *Service) claimedBy(ctx context.Context, id, actorID string) (*domain.Claim, error) {
	if actorID == "" {
		return nil, errAnonymous
	}
	c, err := s.Claims.FindOne(ctx, id)
	if err != nil {
		return nil, err
	}
	if c.Status != domain.ClaimInProgress {
		return nil, conflict("claim %s is %s, not %s", id, c.Status, domain.ClaimInProgress)
	}
	if c.ClaimedByID == nil || *c.ClaimedByID != actorID {
		return nil, conflict("claim %s is held by another user", id)
	}
	return c, nil
}

// CreateException raises an open exception. A referenced approval must exist.
func (s *Service) CreateException(ctx context.Context, e *domain.Exception, actorID string, opts ...crud.CreateOption) (*domain.Exception, error) {
	if e.ApprovalID != nil {
		if err := exists(ctx, s.Approvals.FindOne, *e.ApprovalID, "approvalId"); err != nil {
			return nil, err
		}
	}
	e.Status = domain.ExceptionOpen
	e.ResolvedAt, e.ResolvedBy, e.Resolution = nil, nil, nil
	return s.Exceptions.Create(ctx, e, actorID, opts...)
}

// AcknowledgeException marks an open exception as seen.
func (s *Service) AcknowledgeException(ctx context.Context, id, actorID string) (*domain.Exception, error) {
	e, err := s.Exceptions.FindOne(ctx, id)
	if err != nil {
		return nil, err
	}
	if e.Status != domain.ExceptionOpen {
		return nil, conflict("exception %s is %s, not %s", id, e.Status, domain.ExceptionOpen)
	}
	return s.Exceptions.Update(ctx, id, crud.Patch{
		"status":   domain.ExceptionAcknowledged,
		"revision": e.Revision,
	}, actorID)
}

// ResolveException closes an open or acknowledged exception with a
// resolution note.
func (s *Service) ResolveException(ctx context.Context, id, resolution, actorID string) (*domain.Exception, error) {
	resolution = strings.TrimSpace(resolution)
	if resolution == "" {
		return nil, domain.NewFieldError("resolution", "resolution is required")
	}
	e, err := s.Exceptions.FindOne(ctx, id)
	if err != nil {
		return nil, err
	}
	if !slices.Contains([]string{domain.ExceptionOpen, domain.ExceptionAcknowledged}, e.Status) {
		return nil, conflict("exception %s is already %s", id, e.Status)
	}

	var resolvedBy any
	if actorID != "" {
		resolvedBy = actorID
	}
	return s.Exceptions.Update(ctx, id, crud.Patch{
		"status":     domain.ExceptionResolved,
		"resolution": resolution,
		"resolvedBy": resolvedBy,
		"resolvedAt": s.stamp(),
		"revision":   e.Revision,
	}, actorID)
}

var errAnonymous = domain.NewAppError(domain.CodeValidation, "caller identity is required", nil)

func conflict(format string, args ...any) error {
	return domain.NewAppError(domain.CodeConflict, fmt.Sprintf(format, args...), nil)
}

// exists maps a missing referenced record to a validation error on field.
func exists[PT any](ctx context.Context, find func(context.Context, string) (PT, error), id, field string) error {
	if strings.TrimSpace(id) == "" {
		return domain.NewFieldError(field, field+" is required")
	}
	_, err := find(ctx, id)
	if domain.IsNotFound(err) {
		return domain.NewFieldError(field, fmt.Sprintf("%s %q does not exist", field, id))
	}
	return err
}

func equalPtr(a, b *string) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}
