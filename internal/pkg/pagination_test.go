package pkg

import (
	"database/sql/driver"
	"testing"

	"github.com/glebarez/sqlite"
	"gorm.io/gorm"
	dbtest "gorm.io/gorm/utils/tests"

	"github.com/simp-lee/rbacflow/internal/domain"
)

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(dbtest.DummyDialector{}, &gorm.Config{})
	if err != nil {
		t.Fatalf("failed to open test db: %v", err)
	}
	return db
}

type scopeRow struct {
	ID        string `gorm:"primaryKey"`
	Name      string
	Status    string
	DeletedAt *string
}

func newSQLiteDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	if err != nil {
		t.Fatalf("open test db: %v", err)
	}
	if err := db.AutoMigrate(&scopeRow{}); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	deleted := "2024-01-01"
	rows := []scopeRow{
		{ID: "1", Name: "Acme Corp", Status: "open"},
		{ID: "2", Name: "acme_labs", Status: "closed"},
		{ID: "3", Name: "Globex 100%", Status: "open"},
		{ID: "4", Name: "Acme Gone", Status: "open", DeletedAt: &deleted},
	}
	if err := db.Create(&rows).Error; err != nil {
		t.Fatalf("seed: %v", err)
	}
	return db
}

func ids(rows []scopeRow) []string {
	out := make([]string, len(rows))
	for i, r := range rows {
		out[i] = r.ID
	}
	return out
}

// --------------- ValidColumn ---------------

func TestValidColumn(t *testing.T) {
	tests := []struct {
		name  string
		valid bool
	}{
		{"name", true},
		{"created_at", true},
		{"_private", true},
		{"field123", true},
		{"123field", false},
		{"name;DROP TABLE users--", false},
		{"name OR 1=1", false},
		{"", false},
		{"a.b", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ValidColumn(tt.name); got != tt.valid {
				t.Errorf("ValidColumn(%q) = %v, want %v", tt.name, got, tt.valid)
			}
		})
	}
}

// --------------- Where scope ---------------

func TestWhere_RejectsInvalidColumns(t *testing.T) {
	tests := []struct {
		name string
		pred domain.Predicate
	}{
		{"search column", domain.Predicate{Search: &domain.SearchClause{Term: "x", Columns: []string{"name OR 1=1"}}}},
		{"filter column", domain.Predicate{Conditions: []domain.Condition{{Column: "status;--", Values: []any{"a"}}}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			db := newTestDB(t)
			result := Where(tt.pred)(db)
			if result.Error == nil {
				t.Error("expected an error for an invalid column")
			}
		})
	}
}

func TestWhere_ExcludesDeletedByDefault(t *testing.T) {
	db := newSQLiteDB(t)

	var rows []scopeRow
	if err := db.Model(&scopeRow{}).Scopes(Where(domain.Predicate{})).Order("id").Find(&rows).Error; err != nil {
		t.Fatalf("find: %v", err)
	}
	if got := ids(rows); len(got) != 3 || got[2] != "3" {
		t.Errorf("ids = %v, want [1 2 3]", got)
	}

	rows = nil
	if err := db.Model(&scopeRow{}).Scopes(Where(domain.Predicate{OnlyDeleted: true})).Find(&rows).Error; err != nil {
		t.Fatalf("find deleted: %v", err)
	}
	if got := ids(rows); len(got) != 1 || got[0] != "4" {
		t.Errorf("deleted ids = %v, want [4]", got)
	}

	rows = nil
	if err := db.Model(&scopeRow{}).Scopes(Where(domain.Predicate{IncludeDeleted: true})).Find(&rows).Error; err != nil {
		t.Fatalf("find all: %v", err)
	}
	if len(rows) != 4 {
		t.Errorf("len = %d, want 4", len(rows))
	}
}

func TestWhere_SearchIsCaseInsensitiveAndLiteral(t *testing.T) {
	db := newSQLiteDB(t)
	if err := db.Create(&scopeRow{ID: "5", Name: "Émile Zola", Status: "open"}).Error; err != nil {
		t.Fatalf("seed: %v", err)
	}

	tests := []struct {
		name string
		term string
		want []string
	}{
		{"case insensitive", "ACME", []string{"1", "2"}},
		{"underscore is literal", "acme_", []string{"2"}},
		{"percent is literal", "100%", []string{"3"}},
		{"no match", "initech", []string{}},
		{"non-ascii exact case", "Émile", []string{"5"}},
		{"non-ascii lower case", "émile", []string{"5"}},
		{"non-ascii upper case", "ÉMILE", []string{"5"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var rows []scopeRow
			pred := domain.Predicate{Search: &domain.SearchClause{Term: tt.term, Columns: []string{"name", "status"}}}
			if err := db.Model(&scopeRow{}).Scopes(Where(pred)).Order("id").Find(&rows).Error; err != nil {
				t.Fatalf("find: %v", err)
			}
			got := ids(rows)
			if len(got) != len(tt.want) {
				t.Fatalf("ids = %v, want %v", got, tt.want)
			}
			for i := range got {
				if got[i] != tt.want[i] {
					t.Errorf("ids = %v, want %v", got, tt.want)
				}
			}
		})
	}
}

func TestSearchClause(t *testing.T) {
	tests := []struct {
		dialect string
		want    string
	}{
		{"postgres", `name ILIKE ? ESCAPE '\'`},
		{"sqlite", `unicode_lower(name) LIKE unicode_lower(?) ESCAPE '\'`},
		{"mysql", `LOWER(name) LIKE LOWER(?) ESCAPE '\'`},
	}
	for _, tt := range tests {
		if got := searchClause(tt.dialect, "name"); got != tt.want {
			t.Errorf("searchClause(%q) = %q, want %q", tt.dialect, got, tt.want)
		}
	}
}

func TestUnicodeLower(t *testing.T) {
	tests := []struct {
		in   any
		want any
	}{
		{"ÉMILE", "émile"},
		{[]byte("ÄÖÜ"), "äöü"},
		{int64(7), int64(7)},
		{nil, nil},
	}
	for _, tt := range tests {
		got, err := unicodeLower(nil, []driver.Value{tt.in})
		if err != nil {
			t.Fatalf("unicodeLower(%v): %v", tt.in, err)
		}
		if got != tt.want {
			t.Errorf("unicodeLower(%v) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestWhere_SearchAndConditionsCombineWithAnd(t *testing.T) {
	db := newSQLiteDB(t)

	pred := domain.Predicate{
		Search: &domain.SearchClause{Term: "acme", Columns: []string{"name"}},
		Conditions: []domain.Condition{
			{Column: "status", Values: []any{"open", "pending"}, Set: true},
		},
	}
	var rows []scopeRow
	if err := db.Model(&scopeRow{}).Scopes(Where(pred)).Find(&rows).Error; err != nil {
		t.Fatalf("find: %v", err)
	}
	if got := ids(rows); len(got) != 1 || got[0] != "1" {
		t.Errorf("ids = %v, want [1]", got)
	}

	rows = nil
	pred = domain.Predicate{Conditions: []domain.Condition{{Column: "status", Values: []any{"closed"}}}}
	if err := db.Model(&scopeRow{}).Scopes(Where(pred)).Find(&rows).Error; err != nil {
		t.Fatalf("find: %v", err)
	}
	if got := ids(rows); len(got) != 1 || got[0] != "2" {
		t.Errorf("ids = %v, want [2]", got)
	}
}

func TestWhere_NullCondition(t *testing.T) {
	db := newSQLiteDB(t)

	pred := domain.Predicate{
		IncludeDeleted: true,
		Conditions:     []domain.Condition{{Column: "deleted_at", Null: true}, {Column: "status", Values: []any{"open"}}},
	}
	var rows []scopeRow
	if err := db.Model(&scopeRow{}).Scopes(Where(pred)).Order("id").Find(&rows).Error; err != nil {
		t.Fatalf("find: %v", err)
	}
	if got := ids(rows); len(got) != 2 || got[0] != "1" || got[1] != "3" {
		t.Errorf("ids = %v, want [1 3]", got)
	}
}

// --------------- Sort scope ---------------

func TestSort(t *testing.T) {
	tests := []struct {
		name    string
		specs   []domain.SortSpec
		applied bool
	}{
		{"single column", []domain.SortSpec{{Column: "name"}}, true},
		{"with tie-break", []domain.SortSpec{{Column: "created_at", Desc: true}, {Column: "id"}}, true},
		{"sql injection in column", []domain.SortSpec{{Column: "name;DROP TABLE users--"}}, false},
		{"empty", nil, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			db := newTestDB(t)
			result := Sort(tt.specs)(db)
			_, hasOrder := result.Statement.Clauses["ORDER BY"]
			if hasOrder != tt.applied {
				t.Errorf("Order clause applied=%v, want %v", hasOrder, tt.applied)
			}
		})
	}
}

// --------------- Paginate scope ---------------

func TestPaginate(t *testing.T) {
	tests := []struct {
		name   string
		offset int
		limit  int
	}{
		{"first page", 0, 10},
		{"second page", 20, 20},
		{"large offset", 4950, 50},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			db := newTestDB(t)
			result := Paginate(tt.offset, tt.limit)(db)
			if _, hasLimit := result.Statement.Clauses["LIMIT"]; !hasLimit {
				t.Error("expected LIMIT clause to be applied")
			}
		})
	}
}

func TestOffset(t *testing.T) {
	tests := []struct {
		page, limit, want int
	}{
		{1, 10, 0},
		{2, 10, 10},
		{5, 3, 12},
		{0, 10, 0},
		{3, 0, 0},
	}
	for _, tt := range tests {
		if got := Offset(tt.page, tt.limit); got != tt.want {
			t.Errorf("Offset(%d, %d) = %d, want %d", tt.page, tt.limit, got, tt.want)
		}
	}
}

// --------------- NewPaginatedResult ---------------

func TestNewPaginatedResult(t *testing.T) {
	tests := []struct {
		name      string
		total     int64
		limit     int
		wantPages int
	}{
		{"exact division", 10, 5, 2},
		{"with remainder", 11, 5, 3},
		{"empty", 0, 10, 0},
		{"single partial page", 3, 10, 1},
		{"zero limit", 5, 0, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := NewPaginatedResult([]string{"a"}, tt.total, 1, tt.limit)
			if r.TotalPages != tt.wantPages {
				t.Errorf("TotalPages = %d, want %d", r.TotalPages, tt.wantPages)
			}
			if r.Total != tt.total || r.Limit != tt.limit || r.Page != 1 {
				t.Errorf("unexpected result %+v", r)
			}
		})
	}
}

func TestNewPaginatedResult_NilItemsBecomesEmptySlice(t *testing.T) {
	r := NewPaginatedResult[string](nil, 0, 1, 10)
	if r.Data == nil {
		t.Fatal("expected non-nil Data slice")
	}
	if len(r.Data) != 0 {
		t.Errorf("expected empty Data, got %v", r.Data)
	}
}
