package crud

import (
	"fmt"
	"slices"
	"strings"

	"github.com/simp-lee/rbacflow/internal/domain"
)

const defaultSortBy = FieldCreatedAt

type resolvedQuery struct {
	page  int
	limit int
	pred  domain.Predicate
	sort  []domain.SortSpec
}

// resolveQuery applies defaults to q and validates every field it names
// against the descriptor.
func (s *Service[T, PT]) resolveQuery(q domain.QueryParams) (resolvedQuery, error) {
	rq := resolvedQuery{page: q.Page, limit: q.Limit}
	if rq.page < 1 {
		rq.page = 1
	}
	if rq.limit < 1 {
		rq.limit = s.opts.DefaultLimit
	}
	if rq.limit > s.opts.MaxLimit {
		rq.limit = s.opts.MaxLimit
	}

	sortBy := strings.TrimSpace(q.SortBy)
	if sortBy == "" {
		sortBy = defaultSortBy
	}
	sf, ok := s.desc.Field(sortBy)
	if !ok || !sf.Sortable {
		return rq, domain.NewFieldError("sortBy", fmt.Sprintf("cannot sort by %q", sortBy))
	}
	desc := !strings.EqualFold(string(q.SortOrder), string(domain.SortAsc))
	rq.sort = []domain.SortSpec{{Column: sf.Column, Desc: desc}}
	if sf.Name != FieldID {
		rq.sort = append(rq.sort, domain.SortSpec{Column: "id"})
	}

	if term := strings.TrimSpace(q.Search); term != "" && len(q.SearchFields) > 0 {
		columns := make([]string, 0, len(q.SearchFields))
		for _, name := range q.SearchFields {
			f, ok := s.desc.Field(name)
			if !ok || !f.Searchable {
				return rq, domain.NewFieldError("searchFields", fmt.Sprintf("cannot search %q", name))
			}
			if !slices.Contains(columns, f.Column) {
				columns = append(columns, f.Column)
			}
		}
		rq.pred.Search = &domain.SearchClause{Term: term, Columns: columns}
	}

	names := make([]string, 0, len(q.Filters))
	for name := range q.Filters {
		names = append(names, name)
	}
	slices.Sort(names)

	for _, name := range names {
		f, ok := s.desc.Field(name)
		if !ok || !f.Filterable {
			return rq, domain.NewFieldError(name, fmt.Sprintf("cannot filter by %q", name))
		}
		fv := q.Filters[name]
		if fv.MatchesNull() {
			if !f.Nullable {
				return rq, domain.NewFieldError(name, fmt.Sprintf("%q is never null", name))
			}
			rq.pred.Conditions = append(rq.pred.Conditions, domain.Condition{Column: f.Column, Null: true})
			continue
		}
		if !fv.Active() {
			continue
		}

		values := make([]any, 0, len(fv.Values()))
		for _, raw := range fv.Values() {
			if raw == nil {
				continue
			}
			v, err := f.filterValue(raw)
			if err != nil {
				return rq, domain.NewFieldError(name, fmt.Sprintf("invalid filter value %v: %v", raw, err))
			}
			values = append(values, v)
		}
		if len(values) == 0 {
			continue
		}
		rq.pred.Conditions = append(rq.pred.Conditions, domain.Condition{
			Column: f.Column,
			Values: values,
			Set:    fv.IsSet(),
		})
	}

	return rq, nil
}
