package pkg

import (
	"net/http"
	"net/http/httptest"
	"net/url"
	"reflect"
	"testing"

	"github.com/gin-gonic/gin"

	"github.com/simp-lee/rbacflow/internal/domain"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func newTestContext(queryParams url.Values) *gin.Context {
	req := httptest.NewRequest(http.MethodGet, "/?"+queryParams.Encode(), nil)
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request = req
	return c
}

func TestParseQueryParams_Empty(t *testing.T) {
	c := newTestContext(url.Values{})
	q := ParseQueryParams(c)

	if q.Page != 0 || q.Limit != 0 {
		t.Errorf("expected zero page/limit so defaults apply, got %d/%d", q.Page, q.Limit)
	}
	if q.SortBy != "" || q.SortOrder != "" || q.Search != "" {
		t.Errorf("expected empty sort/search, got %+v", q)
	}
	if q.SearchFields != nil || q.Filters != nil {
		t.Errorf("expected nil searchFields/filters, got %+v", q)
	}
}

func TestParseQueryParams_AllFields(t *testing.T) {
	c := newTestContext(url.Values{
		"page":              {"3"},
		"limit":             {"25"},
		"sortBy":            {"name"},
		"sortOrder":         {"asc"},
		"search":            {" acme "},
		"searchFields":      {"name, email,,"},
		"filters[status]":   {"pending,approved"},
		"filters[priority]": {"high"},
		"filters[empty]":    {""},
		"unrelated":         {"x"},
	})
	q := ParseQueryParams(c)

	if q.Page != 3 || q.Limit != 25 {
		t.Errorf("page/limit = %d/%d, want 3/25", q.Page, q.Limit)
	}
	if q.SortBy != "name" || q.SortOrder != domain.SortAsc {
		t.Errorf("sort = %s %s, want name ASC", q.SortBy, q.SortOrder)
	}
	if q.Search != "acme" {
		t.Errorf("search = %q, want acme", q.Search)
	}
	if !reflect.DeepEqual(q.SearchFields, []string{"name", "email"}) {
		t.Errorf("searchFields = %v", q.SearchFields)
	}

	if len(q.Filters) != 2 {
		t.Fatalf("filters = %v, want 2 entries", q.Filters)
	}
	status := q.Filters["status"]
	if !status.IsSet() || !reflect.DeepEqual(status.Values(), []any{"pending", "approved"}) {
		t.Errorf("status filter = %+v", status)
	}
	priority := q.Filters["priority"]
	if priority.IsSet() || !reflect.DeepEqual(priority.Values(), []any{"high"}) {
		t.Errorf("priority filter = %+v", priority)
	}
	if _, ok := q.Filters["empty"]; ok {
		t.Error("empty filter value should be dropped")
	}
}

func TestParseQueryParams_RepeatedFilterBecomesSet(t *testing.T) {
	c := newTestContext(url.Values{"filters[type]": {"task", "review"}})
	q := ParseQueryParams(c)

	f := q.Filters["type"]
	if !f.IsSet() || !reflect.DeepEqual(f.Values(), []any{"task", "review"}) {
		t.Errorf("type filter = %+v", f)
	}
}

func TestParseQueryParams_MalformedNumbers(t *testing.T) {
	tests := []struct {
		name  string
		page  string
		limit string
	}{
		{"letters", "abc", "xyz"},
		{"floats", "1.5", "2.5"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := newTestContext(url.Values{"page": {tt.page}, "limit": {tt.limit}})
			q := ParseQueryParams(c)
			if q.Page != 0 || q.Limit != 0 {
				t.Errorf("page/limit = %d/%d, want 0/0", q.Page, q.Limit)
			}
		})
	}
}

func TestSplitList(t *testing.T) {
	tests := []struct {
		in   string
		want []string
	}{
		{"", nil},
		{"  ", nil},
		{"a", []string{"a"}},
		{"a, b ,c", []string{"a", "b", "c"}},
		{",,a,,", []string{"a"}},
	}
	for _, tt := range tests {
		if got := SplitList(tt.in); !reflect.DeepEqual(got, tt.want) {
			t.Errorf("SplitList(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}
