package workflow

import (
	"github.com/gin-gonic/gin"

	"github.com/simp-lee/rbacflow/internal/module/resource"
)

// Module implements the app.Module interface for the workflow entities.
type Module struct {
	handler *Handler
	svc     *Service
}

// NewModule creates a new Module over svc. Panics if svc is nil.
func NewModule(svc *Service) *Module {
	return &Module{handler: NewHandler(svc), svc: svc}
}

// RegisterRoutes registers the workflow API routes.
func (m *Module) RegisterRoutes(api *gin.RouterGroup) {
	svc := m.svc

	patterns := api.Group("/patterns")
	patternRes := resource.NewHandler(svc.Patterns)
	patterns.POST("", resource.CreateWith((*CreatePatternRequest).pattern, svc.CreatePattern))
	patterns.POST("/:id/activate", act(svc.ActivatePattern))
	patterns.POST("/:id/deactivate", act(svc.DeactivatePattern))
	patterns.GET("/status/:status", patternRes.Scoped(resource.ByParam("status", "status")))
	patterns.GET("/type/:type", patternRes.Scoped(resource.ByParam("type", "type")))
	patternRes.Register(patterns)

	approvals := api.Group("/approvals")
	approvalRes := resource.NewHandler(svc.Approvals)
	approvals.POST("", resource.CreateWith((*CreateApprovalRequest).approval, svc.CreateApproval))
	approvals.GET("/my", approvalRes.Scoped(resource.ByCaller("assignedToId")))
	approvals.GET("/status/:status", approvalRes.Scoped(resource.ByParam("status", "status")))
	approvalRes.Register(approvals)

	decisions := api.Group("/decisions")
	decisionRes := resource.NewHandler(svc.Decisions)
	decisions.POST("", resource.CreateWith((*CreateDecisionRequest).decision, svc.CreateDecision))
	decisions.GET("/my", decisionRes.Scoped(resource.ByCaller("decidedById")))
	decisions.GET("/approval/:approvalId", decisionRes.Scoped(resource.ByParam("approvalId", "approvalId")))
	decisions.GET("/user/:userId", decisionRes.Scoped(resource.ByParam("decidedById", "userId")))
	decisions.GET("/type/:type", decisionRes.Scoped(resource.ByParam("type", "type")))
	decisionRes.Register(decisions)

	claims := api.Group("/claims")
	claimRes := resource.NewHandler(svc.Claims)
	claims.POST("", resource.CreateWith((*CreateClaimRequest).claim, svc.CreateClaim))
	claims.GET("/available", claimRes.Scoped(availableClaims))
	claims.GET("/my", claimRes.Scoped(resource.ByCaller("claimedById")))
	claims.GET("/status/:status", claimRes.Scoped(resource.ByParam("status", "status")))
	claims.POST("/:id/claim", act(svc.TakeClaim))
	claims.POST("/:id/release", act(svc.ReleaseClaim))
	claims.POST("/:id/complete", act(svc.CompleteClaim))
	claimRes.Register(claims)

	exceptions := api.Group("/exceptions")
	exceptionRes := resource.NewHandler(svc.Exceptions)
	exceptions.POST("", resource.CreateWith((*CreateExceptionRequest).exception, svc.CreateException))
	exceptions.POST("/:id/acknowledge", act(svc.AcknowledgeException))
	exceptions.POST("/:id/resolve", m.handler.ResolveException)
	exceptions.GET("/status/:status", exceptionRes.Scoped(resource.ByParam("status", "status")))
	exceptions.GET("/type/:type", exceptionRes.Scoped(resource.ByParam("type", "type")))
	exceptionRes.Register(exceptions)
}
