package domain

import (
	"time"

	"gorm.io/datatypes"
)

// Pattern is a named approval-flow template. Its configuration (steps,
// conditions, escalation rules, timeouts) is stored verbatim.
type Pattern struct {
	BaseModel
	Name          string            `gorm:"size:255;uniqueIndex;not null" json:"name"`
	Description   *string           `gorm:"type:text" json:"description"`
	Type          string            `gorm:"size:20;not null" json:"type"`
	Status        string            `gorm:"size:20;not null" json:"status"`
	Configuration datatypes.JSONMap `json:"configuration"`
	Version       int               `gorm:"not null" json:"version"`
}

// Approval is a request travelling through a pattern.
type Approval struct {
	BaseModel
	Title        string            `gorm:"size:255;not null" json:"title"`
	Description  *string           `gorm:"type:text" json:"description"`
	Status       string            `gorm:"size:20;not null" json:"status"`
	Priority     string            `gorm:"size:20;not null" json:"priority"`
	DueDate      *time.Time        `json:"dueDate"`
	Payload      datatypes.JSONMap `json:"payload"`
	PatternID    *string           `gorm:"type:varchar(36);index" json:"patternId"`
	AssignedToID *string           `gorm:"type:varchar(36);index" json:"assignedToId"`
	CurrentStep  int               `gorm:"not null" json:"currentStep"`
}

// Decision records one actor's verdict on an approval.
type Decision struct {
	BaseModel
	ApprovalID  string            `gorm:"type:varchar(36);index;not null" json:"approvalId"`
	DecidedByID string            `gorm:"type:varchar(255);not null" json:"decidedById"`
	Type        string            `gorm:"size:20;not null" json:"type"`
	Comment     *string           `gorm:"type:text" json:"comment"`
	Details     datatypes.JSONMap `json:"details"`
	DecidedAt   time.Time         `gorm:"not null" json:"decidedAt"`
}

// Claim is a unit of work that a single user can take ownership of.
type Claim struct {
	BaseModel
	Title         string            `gorm:"size:255;not null" json:"title"`
	Description   *string           `gorm:"type:text" json:"description"`
	Type          string            `gorm:"size:20;not null" json:"type"`
	Status        string            `gorm:"size:20;not null" json:"status"`
	ClaimedByID   *string           `gorm:"type:varchar(255);index" json:"claimedById"`
	ClaimedAt     *time.Time        `json:"claimedAt"`
	CompletedAt   *time.Time        `json:"completedAt"`
	Payload       datatypes.JSONMap `json:"payload"`
	ReferenceType *string           `gorm:"size:100" json:"referenceType"`
	ReferenceID   *string           `gorm:"size:255" json:"referenceId"`
}

// Exception is a problem raised while processing an approval.
type Exception struct {
	BaseModel
	Title        string            `gorm:"size:255;not null" json:"title"`
	Description  *string           `gorm:"type:text" json:"description"`
	Type         string            `gorm:"size:30;not null" json:"type"`
	Status       string            `gorm:"size:20;not null" json:"status"`
	ErrorMessage *string           `gorm:"type:text" json:"errorMessage"`
	StackTrace   *string           `gorm:"type:text" json:"stackTrace"`
	Context      datatypes.JSONMap `json:"context"`
	ApprovalID   *string           `gorm:"type:varchar(36);index" json:"approvalId"`
	ResolvedAt   *time.Time        `json:"resolvedAt"`
	ResolvedBy   *string           `gorm:"size:255" json:"resolvedBy"`
	Resolution   *string           `gorm:"type:text" json:"resolution"`
}

// Pattern types and statuses.
const (
	PatternSequential  = "sequential"
	PatternParallel    = "parallel"
	PatternConditional = "conditional"
	PatternEscalation  = "escalation"

	PatternDraft    = "draft"
	PatternActive   = "active"
	PatternInactive = "inactive"
	PatternArchived = "archived"
)

// Approval statuses and priorities.
const (
	ApprovalPending    = "pending"
	ApprovalInProgress = "in_progress"
	ApprovalApproved   = "approved"
	ApprovalRejected   = "rejected"
	ApprovalEscalated  = "escalated"
	ApprovalCancelled  = "cancelled"

	PriorityLow      = "low"
	PriorityMedium   = "medium"
	PriorityHigh     = "high"
	PriorityCritical = "critical"
)

// Decision types.
const (
	DecisionApprove     = "approve"
	DecisionReject      = "reject"
	DecisionDelegate    = "delegate"
	DecisionRequestInfo = "request_info"
	DecisionEscalate    = "escalate"
)

// Claim types and statuses.
const (
	ClaimApproval = "approval_claim"
	ClaimWorkItem = "work_item"
	ClaimTask     = "task"
	ClaimReview   = "review"

	ClaimOpen       = "open"
	ClaimInProgress = "in_progress"
	ClaimCompleted  = "completed"
	ClaimCancelled  = "cancelled"
)

// Exception types and statuses.
const (
	ExceptionTimeout               = "timeout"
	ExceptionValidationError       = "validation_error"
	ExceptionBusinessRuleViolation = "business_rule_violation"
	ExceptionSystemError           = "system_error"
	ExceptionUserEscalation        = "user_escalation"
	ExceptionOther                 = "other"

	ExceptionOpen         = "open"
	ExceptionAcknowledged = "acknowledged"
	ExceptionResolved     = "resolved"
	ExceptionClosed       = "closed"
)

var (
	PatternTypes    = []string{PatternSequential, PatternParallel, PatternConditional, PatternEscalation}
	PatternStatuses = []string{PatternDraft, PatternActive, PatternInactive, PatternArchived}

	ApprovalStatuses   = []string{ApprovalPending, ApprovalInProgress, ApprovalApproved, ApprovalRejected, ApprovalEscalated, ApprovalCancelled}
	ApprovalPriorities = []string{PriorityLow, PriorityMedium, PriorityHigh, PriorityCritical}

	DecisionTypes = []string{DecisionApprove, DecisionReject, DecisionDelegate, DecisionRequestInfo, DecisionEscalate}

	ClaimTypes    = []string{ClaimApproval, ClaimWorkItem, ClaimTask, ClaimReview}
	ClaimStatuses = []string{ClaimOpen, ClaimInProgress, ClaimCompleted, ClaimCancelled}

	ExceptionTypes = []string{
		ExceptionTimeout, ExceptionValidationError, ExceptionBusinessRuleViolation,
		ExceptionSystemError, ExceptionUserEscalation, ExceptionOther,
	}
	ExceptionStatuses = []string{ExceptionOpen, ExceptionAcknowledged, ExceptionResolved, ExceptionClosed}
)
