package workflow

import (
	"context"

	"github.com/gin-gonic/gin"

	"github.com/simp-lee/rbacflow/internal/domain"
	"github.com/simp-lee/rbacflow/internal/middleware"
	"github.com/simp-lee/rbacflow/internal/pkg"
)

// Handler handles the workflow state transitions that go beyond the
// generic resource routes.
type Handler struct {
	svc *Service
}

// NewHandler creates a new Handler. Panics if svc is nil.
func NewHandler(svc *Service) *Handler {
	if svc == nil {
		panic("workflow.NewHandler: service must not be nil")
	}
	return &Handler{svc: svc}
}

// act adapts a state-changing service call to a handler over /:id.
func act[PT any](op func(ctx context.Context, id, actorID string) (PT, error)) gin.HandlerFunc {
	return func(c *gin.Context) {
		out, err := op(c.Request.Context(), c.Param("id"), middleware.GetActorID(c))
		if err != nil {
			pkg.Error(c, err)
			return
		}
		pkg.Success(c, out)
	}
}

// ResolveException handles POST /api/v1/exceptions/:id/resolve.
func (h *Handler) ResolveException(c *gin.Context) {
	var req ResolveExceptionRequest
	if !pkg.BindAndValidate(c, &req) {
		return
	}
	e, err := h.svc.ResolveException(c.Request.Context(), c.Param("id"), req.Resolution, middleware.GetActorID(c))
	if err != nil {
		pkg.Error(c, err)
		return
	}
	pkg.Success(c, e)
}

// availableClaims scopes a list to open, unclaimed work items.
func availableClaims(*gin.Context) (map[string]domain.FilterValue, error) {
	return map[string]domain.FilterValue{
		"status":      domain.Eq(domain.ClaimOpen),
		"claimedById": domain.IsNull(),
	}, nil
}
