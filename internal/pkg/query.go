package pkg

import (
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/simp-lee/rbacflow/internal/domain"
)

const filtersPrefix = "filters["

// ParseQueryParams extracts pagination, sorting, search, and filter parameters
// from the query string:
//
//	?page=2&limit=20&sortBy=name&sortOrder=ASC&search=ac&searchFields=name,email
//	&filters[status]=pending,approved&filters[priority]=high
//
// Malformed page/limit values are left as zero so the query layer applies its
// defaults. A comma-joined or repeated filter becomes a set filter; a single
// value becomes an equality filter; empty values are dropped.
func ParseQueryParams(c *gin.Context) domain.QueryParams {
	page, _ := strconv.Atoi(strings.TrimSpace(c.Query("page")))
	limit, _ := strconv.Atoi(strings.TrimSpace(c.Query("limit")))

	params := domain.QueryParams{
		Page:         page,
		Limit:        limit,
		SortBy:       strings.TrimSpace(c.Query("sortBy")),
		SortOrder:    domain.SortOrder(strings.ToUpper(strings.TrimSpace(c.Query("sortOrder")))),
		Search:       strings.TrimSpace(c.Query("search")),
		SearchFields: SplitList(c.Query("searchFields")),
	}

	for key, raw := range c.Request.URL.Query() {
		if !strings.HasPrefix(key, filtersPrefix) || !strings.HasSuffix(key, "]") {
			continue
		}
		field := strings.TrimSpace(key[len(filtersPrefix) : len(key)-1])
		if field == "" {
			continue
		}

		var values []any
		for _, r := range raw {
			for _, v := range SplitList(r) {
				values = append(values, v)
			}
		}
		if len(values) == 0 {
			continue
		}

		if params.Filters == nil {
			params.Filters = make(map[string]domain.FilterValue)
		}
		if len(values) == 1 {
			params.Filters[field] = domain.Eq(values[0])
		} else {
			params.Filters[field] = domain.In(values...)
		}
	}

	return params
}

// SplitList splits a comma-joined list, trimming blanks and dropping empty items.
func SplitList(s string) []string {
	if strings.TrimSpace(s) == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
