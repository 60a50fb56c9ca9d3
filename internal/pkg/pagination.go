package pkg

import (
	"fmt"
	"math"
	"regexp"
	"strings"

	"gorm.io/gorm"

	"github.com/simp-lee/rbacflow/internal/domain"
)

// validFieldName matches only alphanumeric characters and underscores.
var validFieldName = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)

// likeEscaper escapes LIKE wildcards so the search term matches literally.
var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

// ValidColumn reports whether name is safe to splice into SQL as a column name.
func ValidColumn(name string) bool {
	return validFieldName.MatchString(name)
}

// Where returns a GORM scope that applies a domain.Predicate.
// Column names are re-checked against a strict pattern; an invalid name
// aborts the query with an error instead of being silently dropped, since
// dropping a condition would widen the result set.
func Where(p domain.Predicate) func(db *gorm.DB) *gorm.DB {
	return func(db *gorm.DB) *gorm.DB {
		if p.ID != "" {
			db = db.Where("id = ?", p.ID)
		}

		switch {
		case p.OnlyDeleted:
			db = db.Where("deleted_at IS NOT NULL")
		case !p.IncludeDeleted:
			db = db.Where("deleted_at IS NULL")
		}

		if s := p.Search; s != nil && s.Term != "" && len(s.Columns) > 0 {
			pattern := "%" + likeEscaper.Replace(s.Term) + "%"
			dialect := ""
			if db.Dialector != nil {
				dialect = db.Dialector.Name()
			}
			clauses := make([]string, 0, len(s.Columns))
			args := make([]any, 0, len(s.Columns))
			for _, col := range s.Columns {
				if !ValidColumn(col) {
					db.AddError(fmt.Errorf("invalid search column %q", col))
					return db
				}
				clauses = append(clauses, searchClause(dialect, col))
				args = append(args, pattern)
			}
			db = db.Where("("+strings.Join(clauses, " OR ")+")", args...)
		}

		for _, cond := range p.Conditions {
			if !ValidColumn(cond.Column) {
				db.AddError(fmt.Errorf("invalid filter column %q", cond.Column))
				return db
			}
			if cond.Null {
				db = db.Where(cond.Column + " IS NULL")
			} else if cond.Set {
				db = db.Where(cond.Column+" IN ?", cond.Values)
			} else if len(cond.Values) == 1 {
				db = db.Where(cond.Column+" = ?", cond.Values[0])
			}
		}
		return db
	}
}

// searchClause returns a case-insensitive substring match on col for the
// given dialect. The bound argument is the escaped LIKE pattern.
func searchClause(dialect, col string) string {
	switch dialect {
	case "postgres":
		return col + ` ILIKE ? ESCAPE '\'`
	case "sqlite":
		return UnicodeLowerFunc + "(" + col + ") LIKE " + UnicodeLowerFunc + `(?) ESCAPE '\'`
	default:
		return "LOWER(" + col + `) LIKE LOWER(?) ESCAPE '\'`
	}
}

// Paginate returns a GORM scope that applies LIMIT and OFFSET.
func Paginate(offset, limit int) func(db *gorm.DB) *gorm.DB {
	return func(db *gorm.DB) *gorm.DB {
		return db.Offset(offset).Limit(limit)
	}
}

// Sort returns a GORM scope that applies ORDER BY for each spec in order.
// Specs whose column fails validation are skipped.
func Sort(specs []domain.SortSpec) func(db *gorm.DB) *gorm.DB {
	return func(db *gorm.DB) *gorm.DB {
		for _, s := range specs {
			if !ValidColumn(s.Column) {
				continue
			}
			direction := "ASC"
			if s.Desc {
				direction = "DESC"
			}
			db = db.Order(s.Column + " " + direction)
		}
		return db
	}
}

// Offset converts a 1-based page and page size into a row offset.
func Offset(page, limit int) int {
	if page < 1 || limit < 1 {
		return 0
	}
	return (page - 1) * limit
}

// NewPaginatedResult creates a PaginatedResult with computed TotalPages.
func NewPaginatedResult[T any](items []T, total int64, page, limit int) *domain.PaginatedResult[T] {
	totalPages := 0
	if limit > 0 {
		totalPages = int(math.Ceil(float64(total) / float64(limit)))
	}

	if items == nil {
		items = []T{}
	}

	return &domain.PaginatedResult[T]{
		Data:       items,
		Total:      total,
		Page:       page,
		Limit:      limit,
		TotalPages: totalPages,
	}
}
