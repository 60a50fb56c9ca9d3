package pkg

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"

	"github.com/simp-lee/rbacflow/internal/domain"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func newResponseTestContext(body string) (*gin.Context, *httptest.ResponseRecorder) {
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	if body == "" {
		c.Request = httptest.NewRequest(http.MethodGet, "/", nil)
		return c, w
	}
	c.Request = httptest.NewRequest(http.MethodPost, "/", strings.NewReader(body))
	c.Request.Header.Set("Content-Type", "application/json")
	return c, w
}

func decodeResponse[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	if err := json.Unmarshal(w.Body.Bytes(), &out); err != nil {
		t.Fatalf("decode %q: %v", w.Body.String(), err)
	}
	return out
}

func TestSuccessEnvelopes(t *testing.T) {
	page := domain.PaginatedResult[domain.Permission]{
		Data:       []domain.Permission{{Name: "read:claim", Action: "read", Resource: "claim"}},
		Total:      21,
		Page:       2,
		Limit:      10,
		TotalPages: 3,
	}

	tests := []struct {
		name     string
		send     func(c *gin.Context)
		wantCode int
		wantData string
	}{
		{"success", func(c *gin.Context) { Success(c, []string{"read:claim"}) }, http.StatusOK, `["read:claim"]`},
		{"success without data", func(c *gin.Context) { Success(c, nil) }, http.StatusOK, `null`},
		{"created", func(c *gin.Context) { Created(c, map[string]string{"id": "r-1"}) }, http.StatusCreated, `{"id":"r-1"}`},
		{"list", func(c *gin.Context) { List(c, page) }, http.StatusOK, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, w := newResponseTestContext("")
			tt.send(c)

			if w.Code != tt.wantCode {
				t.Fatalf("status = %d, want %d", w.Code, tt.wantCode)
			}
			resp := decodeResponse[struct {
				Code    int             `json:"code"`
				Message string          `json:"message"`
				Data    json.RawMessage `json:"data"`
			}](t, w)
			if resp.Code != tt.wantCode || resp.Message != "success" {
				t.Errorf("envelope = %d/%q, want %d/success", resp.Code, resp.Message, tt.wantCode)
			}
			if tt.wantData != "" && string(resp.Data) != tt.wantData {
				t.Errorf("data = %s, want %s", resp.Data, tt.wantData)
			}
		})
	}
}

func TestList_PageShape(t *testing.T) {
	c, w := newResponseTestContext("")
	List(c, domain.PaginatedResult[domain.Permission]{
		Data:       []domain.Permission{{Action: "read", Resource: "claim"}, {Action: "manage", Resource: "all"}},
		Total:      12,
		Page:       2,
		Limit:      2,
		TotalPages: 6,
	})

	resp := decodeResponse[struct {
		Data struct {
			Data []struct {
				Action   string `json:"action"`
				Resource string `json:"resource"`
			} `json:"data"`
			Total      int64 `json:"total"`
			Page       int   `json:"page"`
			Limit      int   `json:"limit"`
			TotalPages int   `json:"totalPages"`
		} `json:"data"`
	}](t, w)
	got := resp.Data
	if len(got.Data) != 2 || got.Data[1].Action != "manage" || got.Total != 12 || got.Page != 2 || got.Limit != 2 || got.TotalPages != 6 {
		t.Errorf("page = %+v", got)
	}
}

func TestError(t *testing.T) {
	tests := []struct {
		name        string
		err         error
		wantStatus  int
		wantMessage string
		wantField   string
	}{
		{"missing approval", fmt.Errorf("load approval a-1: %w", domain.NewAppError(domain.CodeNotFound, "approval not found", nil)), http.StatusNotFound, "approval not found", ""},
		{"sentinel not found", domain.ErrNotFound, http.StatusNotFound, "not found", ""},
		{"duplicate role name", domain.NewAppError(domain.CodeAlreadyExists, "role name taken", nil), http.StatusConflict, "role name taken", ""},
		{"stale revision", domain.NewAppError(domain.CodeConflict, "revision mismatch", nil), http.StatusConflict, "revision mismatch", ""},
		{"claim already taken", domain.NewAppError(domain.CodeConflict, "claim c-1 is in_progress, not open", nil), http.StatusConflict, "claim c-1 is in_progress, not open", ""},
		{"database down", domain.NewAppError(domain.CodeStorage, "database error", errors.New("connection refused")), http.StatusServiceUnavailable, "database error", ""},
		{"internal", domain.ErrInternal, http.StatusInternalServerError, "internal error", ""},
		{"anonymous caller", domain.NewAppError(domain.CodeValidation, "caller identity is required", nil), http.StatusBadRequest, "caller identity is required", ""},
		{"unknown sort field", domain.NewFieldError("sortBy", "unknown sort field"), http.StatusBadRequest, "unknown sort field", "sortBy"},
		{"unknown role id", domain.NewFieldError("roleId", "unknown roles: r-9"), http.StatusBadRequest, "unknown roles: r-9", "roleId"},
		{"plain error is not leaked", errors.New("pq: password authentication failed"), http.StatusInternalServerError, "internal error", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, w := newResponseTestContext("")
			Error(c, tt.err)

			if w.Code != tt.wantStatus {
				t.Fatalf("status = %d, want %d", w.Code, tt.wantStatus)
			}
			if tt.wantField != "" {
				resp := decodeResponse[ValidationErrorResponse](t, w)
				if resp.Message != "validation error" || resp.Errors[tt.wantField] != tt.wantMessage {
					t.Errorf("validation response = %+v, want %s: %q", resp, tt.wantField, tt.wantMessage)
				}
				return
			}
			resp := decodeResponse[Response](t, w)
			if resp.Code != tt.wantStatus || resp.Message != tt.wantMessage || resp.Data != nil {
				t.Errorf("response = %+v, want code %d message %q and no data", resp, tt.wantStatus, tt.wantMessage)
			}
		})
	}
}

// assignRequest exercises the binding rules used by the create DTOs.
type assignRequest struct {
	Title         string `json:"title" binding:"required,min=3,max=20"`
	Priority      string `json:"priority" binding:"omitempty,oneof=low medium high"`
	ReviewerEmail string `json:"reviewerEmail" binding:"omitempty,email"`
	Step          int    `json:"step" binding:"gte=0,lte=5"`
	Note          string `binding:"omitempty,max=5"`
}

func TestBindAndValidate(t *testing.T) {
	tests := []struct {
		name       string
		body       string
		wantOK     bool
		wantErrors map[string]string
	}{
		{"valid", `{"title":"Quarterly budget","priority":"high","reviewerEmail":"cfo@example.com","step":2}`, true, nil},
		{"malformed json", `{"title":`, false, nil},
		{"missing title", `{"priority":"low"}`, false, map[string]string{"title": "This field is required"}},
		{"short title", `{"title":"ab"}`, false, map[string]string{"title": "Must be at least 3 characters"}},
		{"long title", `{"title":"` + strings.Repeat("x", 21) + `"}`, false, map[string]string{"title": "Must be at most 20 characters"}},
		{"unknown priority", `{"title":"abc","priority":"urgent"}`, false, map[string]string{"priority": "Must be one of: low, medium, high"}},
		{"bad reviewer email", `{"title":"abc","reviewerEmail":"cfo"}`, false, map[string]string{"reviewerEmail": "Must be a valid email address"}},
		{"step out of range", `{"title":"abc","step":9}`, false, map[string]string{"step": "Must be less than or equal to 5"}},
		{"negative step", `{"title":"abc","step":-1}`, false, map[string]string{"step": "Must be greater than or equal to 0"}},
		{"untagged field is lowercased", `{"title":"abc","Note":"too long"}`, false, map[string]string{"note": "Must be at most 5 characters"}},
		{"several fields", `{"title":"","priority":"x"}`, false, map[string]string{"title": "This field is required", "priority": "Must be one of: low, medium, high"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, w := newResponseTestContext(tt.body)
			var req assignRequest
			ok := BindAndValidate(c, &req)

			if ok != tt.wantOK {
				t.Fatalf("BindAndValidate = %v, want %v (body %s)", ok, tt.wantOK, w.Body.String())
			}
			if ok {
				if req.Title != "Quarterly budget" || req.Step != 2 || w.Body.Len() != 0 {
					t.Errorf("bound %+v, body %q", req, w.Body.String())
				}
				return
			}
			if w.Code != http.StatusBadRequest {
				t.Fatalf("status = %d, want 400", w.Code)
			}
			resp := decodeResponse[ValidationErrorResponse](t, w)
			if tt.wantErrors == nil {
				if resp.Message != "bad request" || len(resp.Errors) != 0 {
					t.Errorf("response = %+v, want plain bad request", resp)
				}
				return
			}
			if len(resp.Errors) != len(tt.wantErrors) {
				t.Errorf("errors = %v, want %v", resp.Errors, tt.wantErrors)
			}
			for field, msg := range tt.wantErrors {
				if resp.Errors[field] != msg {
					t.Errorf("errors[%s] = %q, want %q", field, resp.Errors[field], msg)
				}
			}
		})
	}
}

func TestValidationError_WithoutValidatorErrors(t *testing.T) {
	c, w := newResponseTestContext("")
	ValidationError(c, errors.New("unexpected EOF"))

	resp := decodeResponse[Response](t, w)
	if w.Code != http.StatusBadRequest || resp.Message != "bad request" {
		t.Errorf("status = %d, message = %q", w.Code, resp.Message)
	}
}

func TestValidationError_UsesStructFieldNames(t *testing.T) {
	err := validator.New().Struct(struct {
		AssignedToID string `validate:"required"`
	}{})

	c, w := newResponseTestContext("")
	ValidationError(c, err)

	resp := decodeResponse[ValidationErrorResponse](t, w)
	if resp.Errors["assignedtoid"] != "This field is required" {
		t.Errorf("errors = %v, want assignedtoid entry", resp.Errors)
	}
}

func TestFieldErrorMessage(t *testing.T) {
	type rules struct {
		ID    string   `validate:"uuid4"`
		Link  string   `validate:"url"`
		Count int      `validate:"min=2"`
		Tags  []string `validate:"max=1"`
		Code  string   `validate:"len=3"`
		Slug  string   `validate:"alphanum"`
	}
	err := validator.New().Struct(rules{ID: "x", Link: "nope", Count: 1, Tags: []string{"a", "b"}, Code: "ab", Slug: "a-b"})

	var ve validator.ValidationErrors
	if !errors.As(err, &ve) {
		t.Fatalf("error = %v, want ValidationErrors", err)
	}
	got := make(map[string]string, len(ve))
	for _, fe := range ve {
		got[fe.Field()] = FieldErrorMessage(fe)
	}

	want := map[string]string{
		"ID":    "Must be a valid UUID",
		"Link":  "Must be a valid URL",
		"Count": "Must be at least 2",
		"Tags":  "Must be at most 1",
		"Code":  "Failed on len=3",
		"Slug":  "Failed on alphanum",
	}
	for field, msg := range want {
		if got[field] != msg {
			t.Errorf("%s: message = %q, want %q", field, got[field], msg)
		}
	}
}

func TestParseJSONTagName(t *testing.T) {
	tests := []struct {
		tag, want string
	}{
		{"", ""},
		{"-", ""},
		{"-,", ""},
		{",omitempty", ""},
		{"assignedToId", "assignedToId"},
		{"roleIds,omitempty", "roleIds"},
	}
	for _, tt := range tests {
		if got := parseJSONTagName(tt.tag); got != tt.want {
			t.Errorf("parseJSONTagName(%q) = %q, want %q", tt.tag, got, tt.want)
		}
	}
}
