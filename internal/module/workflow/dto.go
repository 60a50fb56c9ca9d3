package workflow

import (
	"time"

	"gorm.io/datatypes"

	"github.com/simp-lee/rbacflow/internal/domain"
	"github.com/simp-lee/rbacflow/internal/module/resource"
)

// CreatePatternRequest represents the input for creating a pattern.
type CreatePatternRequest struct {
	resource.CommonFields
	Name          string         `json:"name" binding:"required,max=255"`
	Description   *string        `json:"description"`
	Type          string         `json:"type" binding:"required,oneof=sequential parallel conditional escalation"`
	Status        string         `json:"status" binding:"omitempty,oneof=draft active inactive archived"`
	Configuration map[string]any `json:"configuration"`
	Version       int            `json:"version" binding:"omitempty,min=1"`
}

func (r *CreatePatternRequest) pattern() *domain.Pattern {
	return &domain.Pattern{
		Name:          r.Name,
		Description:   r.Description,
		Type:          r.Type,
		Status:        r.Status,
		Configuration: jsonMap(r.Configuration),
		Version:       r.Version,
	}
}

// CreateApprovalRequest represents the input for creating an approval.
type CreateApprovalRequest struct {
	resource.CommonFields
	Title        string         `json:"title" binding:"required,max=255"`
	Description  *string        `json:"description"`
	Status       string         `json:"status" binding:"omitempty,oneof=pending in_progress approved rejected escalated cancelled"`
	Priority     string         `json:"priority" binding:"omitempty,oneof=low medium high critical"`
	DueDate      *time.Time     `json:"dueDate"`
	Payload      map[string]any `json:"payload"`
	PatternID    *string        `json:"patternId"`
	AssignedToID *string        `json:"assignedToId" binding:"omitempty,max=255"`
	CurrentStep  int            `json:"currentStep" binding:"min=0"`
}

func (r *CreateApprovalRequest) approval() *domain.Approval {
	return &domain.Approval{
		Title:        r.Title,
		Description:  r.Description,
		Status:       r.Status,
		Priority:     r.Priority,
		DueDate:      utc(r.DueDate),
		Payload:      jsonMap(r.Payload),
		PatternID:    r.PatternID,
		AssignedToID: r.AssignedToID,
		CurrentStep:  r.CurrentStep,
	}
}

// CreateDecisionRequest represents the input for recording a decision.
// DecidedByID defaults to the caller and DecidedAt to now.
type CreateDecisionRequest struct {
	resource.CommonFields
	ApprovalID  string         `json:"approvalId" binding:"required"`
	DecidedByID string         `json:"decidedById" binding:"omitempty,max=255"`
	Type        string         `json:"type" binding:"required,oneof=approve reject delegate request_info escalate"`
	Comment     *string        `json:"comment"`
	Details     map[string]any `json:"details"`
	DecidedAt   *time.Time     `json:"decidedAt"`
}

func (r *CreateDecisionRequest) decision() *domain.Decision {
	d := &domain.Decision{
		ApprovalID:  r.ApprovalID,
		DecidedByID: r.DecidedByID,
		Type:        r.Type,
		Comment:     r.Comment,
		Details:     jsonMap(r.Details),
	}
	if r.DecidedAt != nil {
		d.DecidedAt = *r.DecidedAt
	}
	return d
}

// CreateClaimRequest represents the input for creating a work item.
type CreateClaimRequest struct {
	resource.CommonFields
	Title         string         `json:"title" binding:"required,max=255"`
	Description   *string        `json:"description"`
	Type          string         `json:"type" binding:"required,oneof=approval_claim work_item task review"`
	Payload       map[string]any `json:"payload"`
	ReferenceType *string        `json:"referenceType" binding:"omitempty,max=100"`
	ReferenceID   *string        `json:"referenceId" binding:"omitempty,max=255"`
}

func (r *CreateClaimRequest) claim() *domain.Claim {
	return &domain.Claim{
		Title:         r.Title,
		Description:   r.Description,
		Type:          r.Type,
		Payload:       jsonMap(r.Payload),
		ReferenceType: r.ReferenceType,
		ReferenceID:   r.ReferenceID,
	}
}

// CreateExceptionRequest represents the input for raising an exception.
type CreateExceptionRequest struct {
	resource.CommonFields
	Title        string         `json:"title" binding:"required,max=255"`
	Description  *string        `json:"description"`
	Type         string         `json:"type" binding:"required,oneof=timeout validation_error business_rule_violation system_error user_escalation other"`
	ErrorMessage *string        `json:"errorMessage"`
	StackTrace   *string        `json:"stackTrace"`
	Context      map[string]any `json:"context"`
	ApprovalID   *string        `json:"approvalId"`
}

func (r *CreateExceptionRequest) exception() *domain.Exception {
	return &domain.Exception{
		Title:        r.Title,
		Description:  r.Description,
		Type:         r.Type,
		ErrorMessage: r.ErrorMessage,
		StackTrace:   r.StackTrace,
		Context:      jsonMap(r.Context),
		ApprovalID:   r.ApprovalID,
	}
}

// ResolveExceptionRequest carries the resolution note of an exception.
type ResolveExceptionRequest struct {
	Resolution string `json:"resolution" binding:"required,max=4000"`
}

func jsonMap(m map[string]any) datatypes.JSONMap {
	if m == nil {
		return nil
	}
	return datatypes.JSONMap(m)
}

func utc(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	u := t.UTC().Truncate(time.Microsecond)
	return &u
}
