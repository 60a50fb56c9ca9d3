package workflow

import (
	"github.com/simp-lee/rbacflow/internal/crud"
	"github.com/simp-lee/rbacflow/internal/domain"
)

// Entity type names carried by change events.
const (
	EntityPattern   = "pattern"
	EntityApproval  = "approval"
	EntityDecision  = "decision"
	EntityClaim     = "claim"
	EntityException = "exception"
)

func patternDescriptor() *crud.Descriptor {
	return crud.NewDescriptor(EntityPattern,
		crud.Field{Name: "name", Column: "name", Kind: crud.KindString, Filterable: true, Searchable: true, Sortable: true, Mutable: true, Rules: "min=1,max=255"},
		description(),
		crud.Field{Name: "type", Column: "type", Kind: crud.KindEnum, Enum: domain.PatternTypes, Filterable: true, Searchable: true, Sortable: true, Mutable: true},
		crud.Field{Name: "status", Column: "status", Kind: crud.KindEnum, Enum: domain.PatternStatuses, Filterable: true, Searchable: true, Sortable: true, Mutable: true},
		crud.Field{Name: "configuration", Column: "configuration", Kind: crud.KindJSON, Mutable: true, Nullable: true},
		crud.Field{Name: "version", Column: "version", Kind: crud.KindInt, Filterable: true, Sortable: true, Mutable: true, Rules: "min=1"},
	)
}

func approvalDescriptor() *crud.Descriptor {
	return crud.NewDescriptor(EntityApproval,
		title(),
		description(),
		crud.Field{Name: "status", Column: "status", Kind: crud.KindEnum, Enum: domain.ApprovalStatuses, Filterable: true, Searchable: true, Sortable: true, Mutable: true},
		crud.Field{Name: "priority", Column: "priority", Kind: crud.KindEnum, Enum: domain.ApprovalPriorities, Filterable: true, Searchable: true, Sortable: true, Mutable: true},
		crud.Field{Name: "dueDate", Column: "due_date", Kind: crud.KindTime, Filterable: true, Sortable: true, Mutable: true, Nullable: true},
		crud.Field{Name: "payload", Column: "payload", Kind: crud.KindJSON, Mutable: true, Nullable: true},
		crud.Field{Name: "patternId", Column: "pattern_id", Kind: crud.KindString, Filterable: true, Mutable: true, Nullable: true},
		crud.Field{Name: "assignedToId", Column: "assigned_to_id", Kind: crud.KindString, Filterable: true, Mutable: true, Nullable: true},
		crud.Field{Name: "currentStep", Column: "current_step", Kind: crud.KindInt, Filterable: true, Sortable: true, Mutable: true, Rules: "min=0"},
	)
}

// Decisions are records of fact: only the comment and details can change.
func decisionDescriptor() *crud.Descriptor {
	return crud.NewDescriptor(EntityDecision,
		crud.Field{Name: "approvalId", Column: "approval_id", Kind: crud.KindString, Filterable: true},
		crud.Field{Name: "decidedById", Column: "decided_by_id", Kind: crud.KindString, Filterable: true},
		crud.Field{Name: "type", Column: "type", Kind: crud.KindEnum, Enum: domain.DecisionTypes, Filterable: true, Searchable: true, Sortable: true},
		crud.Field{Name: "comment", Column: "comment", Kind: crud.KindString, Searchable: true, Mutable: true, Nullable: true},
		crud.Field{Name: "details", Column: "details", Kind: crud.KindJSON, Mutable: true, Nullable: true},
		crud.Field{Name: "decidedAt", Column: "decided_at", Kind: crud.KindTime, Filterable: true, Sortable: true},
	)
}

func claimDescriptor() *crud.Descriptor {
	return crud.NewDescriptor(EntityClaim,
		title(),
		description(),
		crud.Field{Name: "type", Column: "type", Kind: crud.KindEnum, Enum: domain.ClaimTypes, Filterable: true, Searchable: true, Sortable: true, Mutable: true},
		crud.Field{Name: "status", Column: "status", Kind: crud.KindEnum, Enum: domain.ClaimStatuses, Filterable: true, Searchable: true, Sortable: true, Mutable: true},
		crud.Field{Name: "claimedById", Column: "claimed_by_id", Kind: crud.KindString, Filterable: true, Mutable: true, Nullable: true},
		crud.Field{Name: "claimedAt", Column: "claimed_at", Kind: crud.KindTime, Filterable: true, Sortable: true, Mutable: true, Nullable: true},
		crud.Field{Name: "completedAt", Column: "completed_at", Kind: crud.KindTime, Filterable: true, Sortable: true, Mutable: true, Nullable: true},
		crud.Field{Name: "payload", Column: "payload", Kind: crud.KindJSON, Mutable: true, Nullable: true},
		crud.Field{Name: "referenceType", Column: "reference_type", Kind: crud.KindString, Filterable: true, Searchable: true, Mutable: true, Nullable: true, Rules: "max=100"},
		crud.Field{Name: "referenceId", Column: "reference_id", Kind: crud.KindString, Filterable: true, Mutable: true, Nullable: true, Rules: "max=255"},
	)
}

func exceptionDescriptor() *crud.Descriptor {
	return crud.NewDescriptor(EntityException,
		title(),
		description(),
		crud.Field{Name: "type", Column: "type", Kind: crud.KindEnum, Enum: domain.ExceptionTypes, Filterable: true, Searchable: true, Sortable: true, Mutable: true},
		crud.Field{Name: "status", Column: "status", Kind: crud.KindEnum, Enum: domain.ExceptionStatuses, Filterable: true, Searchable: true, Sortable: true, Mutable: true},
		crud.Field{Name: "errorMessage", Column: "error_message", Kind: crud.KindString, Searchable: true, Mutable: true, Nullable: true},
		crud.Field{Name: "stackTrace", Column: "stack_trace", Kind: crud.KindString, Mutable: true, Nullable: true},
		crud.Field{Name: "context", Column: "context", Kind: crud.KindJSON, Mutable: true, Nullable: true},
		crud.Field{Name: "approvalId", Column: "approval_id", Kind: crud.KindString, Filterable: true, Mutable: true, Nullable: true},
		crud.Field{Name: "resolvedAt", Column: "resolved_at", Kind: crud.KindTime, Filterable: true, Sortable: true, Mutable: true, Nullable: true},
		crud.Field{Name: "resolvedBy", Column: "resolved_by", Kind: crud.KindString, Filterable: true, Mutable: true, Nullable: true},
		crud.Field{Name: "resolution", Column: "resolution", Kind: crud.KindString, Searchable: true, Mutable: true, Nullable: true},
	)
}

func title() crud.Field {
	return crud.Field{Name: "title", Column: "title", Kind: crud.KindString, Filterable: true, Searchable: true, Sortable: true, Mutable: true, Rules: "min=1,max=255"}
}

func description() crud.Field {
	return crud.Field{Name: "description", Column: "description", Kind: crud.KindString, Searchable: true, Mutable: true, Nullable: true}
}
