package crud

import (
	"context"
	"fmt"
	"slices"

	"github.com/simp-lee/rbacflow/internal/domain"
)

// FilterAggregations returns, for each requested field in order, the
// distinct non-null values over the whole live collection with their
// counts, most frequent first and ties ordered by value.
func (s *Service[T, PT]) FilterAggregations(ctx context.Context, fields []string) ([]domain.FilterAggregation, error) {
	resolved := make([]Field, 0, len(fields))
	for _, name := range fields {
		f, ok := s.desc.Field(name)
		if !ok || !f.Filterable {
			return nil, domain.NewFieldError(name, fmt.Sprintf("cannot aggregate %q", name))
		}
		resolved = append(resolved, f)
	}

	out := make([]domain.FilterAggregation, 0, len(resolved))
	for _, f := range resolved {
		agg, err := s.aggregate(ctx, f)
		if err != nil {
			return nil, err
		}
		out = append(out, agg)
	}
	return out, nil
}

func (s *Service[T, PT]) aggregate(ctx context.Context, f Field) (domain.FilterAggregation, error) {
	s.aggMu.Lock()
	if s.aggCache != nil {
		if cached, ok := s.aggCache.Get(f.Name); ok {
			s.aggMu.Unlock()
			return cloneAggregation(cached), nil
		}
	}
	gen := s.aggGen
	s.aggMu.Unlock()

	counts, err := s.store.DistinctValueCounts(ctx, f.Column, domain.Predicate{})
	if err != nil {
		return domain.FilterAggregation{}, err
	}

	// Different raw encodings of one value (e.g. time strings) collapse
	// into a single option once normalized.
	byLabel := make(map[string]int, len(counts))
	options := make([]domain.FilterOption, 0, len(counts))
	for _, vc := range counts {
		if vc.Value == nil {
			continue
		}
		v := f.normalize(vc.Value)
		l := label(v)
		if i, ok := byLabel[l]; ok {
			options[i].Count += vc.Count
			continue
		}
		byLabel[l] = len(options)
		options = append(options, domain.FilterOption{Value: v, Label: l, Count: vc.Count})
	}
	slices.SortFunc(options, func(a, b domain.FilterOption) int {
		if a.Count != b.Count {
			if a.Count > b.Count {
				return -1
			}
			return 1
		}
		return compareValues(a.Value, b.Value)
	})

	agg := domain.FilterAggregation{Field: f.Name, Options: options}

	s.aggMu.Lock()
	if s.aggCache != nil && s.aggGen == gen {
		s.aggCache.Add(f.Name, agg)
	}
	s.aggMu.Unlock()

	return cloneAggregation(agg), nil
}

// invalidateAggregations drops every cached histogram. Results computed
// concurrently against the old generation are not cached.
func (s *Service[T, PT]) invalidateAggregations() {
	s.aggMu.Lock()
	s.aggGen++
	if s.aggCache != nil {
		s.aggCache.Purge()
	}
	s.aggMu.Unlock()
}

func cloneAggregation(agg domain.FilterAggregation) domain.FilterAggregation {
	return domain.FilterAggregation{Field: agg.Field, Options: slices.Clone(agg.Options)}
}
