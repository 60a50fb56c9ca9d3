package resource

import (
	"context"

	"github.com/gin-gonic/gin"
	"gorm.io/datatypes"

	"github.com/simp-lee/rbacflow/internal/crud"
	"github.com/simp-lee/rbacflow/internal/domain"
	"github.com/simp-lee/rbacflow/internal/middleware"
	"github.com/simp-lee/rbacflow/internal/pkg"
)

// CommonFields are the optional base attributes accepted when creating any
// resource. Embed it in a create request.
type CommonFields struct {
	IsActive *bool          `json:"isActive"`
	Metadata map[string]any `json:"metadata"`
}

// Common returns the embedded base attributes.
func (f CommonFields) Common() CommonFields {
	return f
}

// Apply copies the metadata onto m and returns the create options implied
// by the request.
func (f CommonFields) Apply(m *domain.BaseModel) []crud.CreateOption {
	if f.Metadata != nil {
		m.Metadata = datatypes.JSONMap(f.Metadata)
	}
	if f.IsActive != nil && !*f.IsActive {
		return []crud.CreateOption{crud.Inactive()}
	}
	return nil
}

// Create returns a POST handler that binds a D, converts it with build and
// persists the result through svc with the caller as creator.
func Create[D interface{ Common() CommonFields }, T any, PT interface {
	*T
	Model() *domain.BaseModel
}](svc *crud.Service[T, PT], build func(req *D) PT) gin.HandlerFunc {
	return CreateWith(build, svc.Create)
}

// CreateWith is Create for resources whose creation goes through a domain
// operation (defaults, reference checks) instead of the bare service.
func CreateWith[D interface{ Common() CommonFields }, PT interface{ Model() *domain.BaseModel }](
	build func(req *D) PT,
	save func(ctx context.Context, item PT, actorID string, opts ...crud.CreateOption) (PT, error),
) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req D
		if !pkg.BindAndValidate(c, &req) {
			return
		}

		item := build(&req)
		opts := req.Common().Apply(item.Model())
		created, err := save(c.Request.Context(), item, middleware.GetActorID(c), opts...)
		if err != nil {
			pkg.Error(c, err)
			return
		}
		pkg.Created(c, created)
	}
}
