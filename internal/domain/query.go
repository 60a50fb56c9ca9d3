package domain

// SortOrder is the direction of a list ordering.
type SortOrder string

const (
	SortAsc  SortOrder = "ASC"
	SortDesc SortOrder = "DESC"
)

// FilterValue is either a single scalar (exact match) or a set of scalars
// (membership). The zero value is an inactive filter.
type FilterValue struct {
	values []any
	set    bool
	null   bool
}

// Eq returns a filter matching records whose field equals v.
// A nil v yields an inactive filter.
func Eq(v any) FilterValue {
	return FilterValue{values: []any{v}}
}

// In returns a filter matching records whose field is one of vs.
// An empty vs yields an inactive filter.
func In(vs ...any) FilterValue {
	return FilterValue{values: vs, set: true}
}

// IsNull returns a filter matching records whose field is null.
func IsNull() FilterValue {
	return FilterValue{null: true}
}

// MatchesNull reports whether the filter selects null values.
func (f FilterValue) MatchesNull() bool {
	return f.null
}

// IsSet reports whether the filter is a set-membership filter.
func (f FilterValue) IsSet() bool {
	return f.set
}

// Values returns the scalars carried by the filter.
func (f FilterValue) Values() []any {
	return f.values
}

// Active reports whether the filter constrains anything. Nil scalars and
// empty sets are ignored so that absent selections never filter everything out.
func (f FilterValue) Active() bool {
	if f.null {
		return true
	}
	if f.set {
		return len(f.values) > 0
	}
	return len(f.values) == 1 && f.values[0] != nil
}

// QueryParams holds pagination, sorting, search, and filtering parameters
// for list queries. All fields are optional.
type QueryParams struct {
	Page         int
	Limit        int
	SortBy       string
	SortOrder    SortOrder
	Search       string
	SearchFields []string
	Filters      map[string]FilterValue
}

// PaginatedResult is one page of a list query.
type PaginatedResult[T any] struct {
	Data       []T   `json:"data"`
	Total      int64 `json:"total"`
	Page       int   `json:"page"`
	Limit      int   `json:"limit"`
	TotalPages int   `json:"totalPages"`
}

// FilterOption is one distinct value of a field together with its occurrence count.
type FilterOption struct {
	Value any    `json:"value"`
	Label string `json:"label"`
	Count int64  `json:"count"`
}

// FilterAggregation is the value histogram of a single field.
type FilterAggregation struct {
	Field   string         `json:"field"`
	Options []FilterOption `json:"options"`
}

// Predicate is the storage-level selection built by the query layer.
// Column names in a Predicate have already been validated against the
// entity's field whitelist.
type Predicate struct {
	ID             string
	IncludeDeleted bool
	OnlyDeleted    bool
	Search         *SearchClause
	Conditions     []Condition
}

// SearchClause matches when any of Columns contains Term, case-insensitively.
type SearchClause struct {
	Term    string
	Columns []string
}

// Condition is a single column constraint: equality, membership when Set
// is true, or a null check when Null is true.
type Condition struct {
	Column string
	Values []any
	Set    bool
	Null   bool
}

// SortSpec orders results by a single column.
type SortSpec struct {
	Column string
	Desc   bool
}

// ValueCount is one row of a distinct-value histogram as read from storage.
type ValueCount struct {
	Value any
	Count int64
}
