// Package resource exposes a crud.Service over REST: listing with search and
// filters, value aggregations, patch updates, soft delete and restore.
package resource

import (
	"github.com/gin-gonic/gin"

	"github.com/simp-lee/rbacflow/internal/crud"
	"github.com/simp-lee/rbacflow/internal/domain"
	"github.com/simp-lee/rbacflow/internal/middleware"
	"github.com/simp-lee/rbacflow/internal/pkg"
)

// Handler serves the generic endpoints of one resource type.
type Handler[T any, PT interface {
	*T
	Model() *domain.BaseModel
}] struct {
	svc *crud.Service[T, PT]
}

// NewHandler creates a Handler over svc. Panics if svc is nil.
func NewHandler[T any, PT interface {
	*T
	Model() *domain.BaseModel
}](svc *crud.Service[T, PT]) *Handler[T, PT] {
	if svc == nil {
		panic("resource.NewHandler: service must not be nil")
	}
	return &Handler[T, PT]{svc: svc}
}

// Register mounts the generic routes under g. Creation is registered by the
// owning module since it needs a resource-specific request body.
//
//	GET    /                      list
//	GET    /filters/aggregations  value counts per field
//	GET    /:id                   fetch one
//	PATCH  /:id                   partial update
//	PUT    /:id                   partial update
//	DELETE /:id                   soft delete
//	POST   /:id/restore           undo soft delete
func (h *Handler[T, PT]) Register(g *gin.RouterGroup) {
	g.GET("", h.List)
	g.GET("/filters/aggregations", h.Aggregations)
	g.GET("/:id", h.Get)
	g.PATCH("/:id", h.Update)
	g.PUT("/:id", h.Update)
	g.DELETE("/:id", h.Delete)
	g.POST("/:id/restore", h.Restore)
}

// List handles GET /<resource>.
func (h *Handler[T, PT]) List(c *gin.Context) {
	result, err := h.svc.FindAll(c.Request.Context(), pkg.ParseQueryParams(c))
	if err != nil {
		pkg.Error(c, err)
		return
	}
	pkg.List(c, result)
}

// Get handles GET /<resource>/:id.
func (h *Handler[T, PT]) Get(c *gin.Context) {
	item, err := h.svc.FindOne(c.Request.Context(), c.Param("id"))
	if err != nil {
		pkg.Error(c, err)
		return
	}
	pkg.Success(c, item)
}

// Update handles PATCH and PUT /<resource>/:id. The body is a JSON object of
// wire field names; a "revision" key makes the update conditional.
func (h *Handler[T, PT]) Update(c *gin.Context) {
	var patch crud.Patch
	if err := c.ShouldBindJSON(&patch); err != nil {
		pkg.ValidationError(c, err)
		return
	}
	if patch == nil {
		pkg.Error(c, domain.NewAppError(domain.CodeValidation, "request body must be a JSON object", nil))
		return
	}

	item, err := h.svc.Update(c.Request.Context(), c.Param("id"), patch, middleware.GetActorID(c))
	if err != nil {
		pkg.Error(c, err)
		return
	}
	pkg.Success(c, item)
}

// Delete handles DELETE /<resource>/:id.
func (h *Handler[T, PT]) Delete(c *gin.Context) {
	if err := h.svc.Remove(c.Request.Context(), c.Param("id"), middleware.GetActorID(c)); err != nil {
		pkg.Error(c, err)
		return
	}
	pkg.Success(c, nil)
}

// Restore handles POST /<resource>/:id/restore.
func (h *Handler[T, PT]) Restore(c *gin.Context) {
	item, err := h.svc.Restore(c.Request.Context(), c.Param("id"), middleware.GetActorID(c))
	if err != nil {
		pkg.Error(c, err)
		return
	}
	pkg.Success(c, item)
}

// Aggregations handles GET /<resource>/filters/aggregations?fields=a,b.
func (h *Handler[T, PT]) Aggregations(c *gin.Context) {
	fields := pkg.SplitList(c.Query("fields"))
	if len(fields) == 0 {
		pkg.Error(c, domain.NewFieldError("fields", "at least one field is required"))
		return
	}

	aggs, err := h.svc.FilterAggregations(c.Request.Context(), fields)
	if err != nil {
		pkg.Error(c, err)
		return
	}
	pkg.Success(c, aggs)
}

// Scoped serves a list narrowed by extra filters computed from the request,
// e.g. the records assigned to the caller. The request's own filters still
// apply; a scoped key overrides a request filter of the same name.
func (h *Handler[T, PT]) Scoped(scope func(c *gin.Context) (map[string]domain.FilterValue, error)) gin.HandlerFunc {
	return func(c *gin.Context) {
		q := pkg.ParseQueryParams(c)
		extra, err := scope(c)
		if err != nil {
			pkg.Error(c, err)
			return
		}
		if q.Filters == nil {
			q.Filters = make(map[string]domain.FilterValue, len(extra))
		}
		for k, v := range extra {
			q.Filters[k] = v
		}

		result, err := h.svc.FindAll(c.Request.Context(), q)
		if err != nil {
			pkg.Error(c, err)
			return
		}
		pkg.List(c, result)
	}
}

// ByParam scopes a list to records whose field equals the path parameter.
func ByParam(field, param string) func(c *gin.Context) (map[string]domain.FilterValue, error) {
	return func(c *gin.Context) (map[string]domain.FilterValue, error) {
		return map[string]domain.FilterValue{field: domain.Eq(c.Param(param))}, nil
	}
}

// ByCaller scopes a list to records whose field equals the caller id.
func ByCaller(field string) func(c *gin.Context) (map[string]domain.FilterValue, error) {
	return func(c *gin.Context) (map[string]domain.FilterValue, error) {
		id, err := RequireActor(c)
		if err != nil {
			return nil, err
		}
		return map[string]domain.FilterValue{field: domain.Eq(id)}, nil
	}
}

// RequireActor returns the caller id, or a validation error for anonymous
// requests.
func RequireActor(c *gin.Context) (string, error) {
	id := middleware.GetActorID(c)
	if id == "" {
		return "", domain.NewAppError(domain.CodeValidation, "caller identity is required", nil)
	}
	return id, nil
}
