package router

import "github.com/erp/reconciliation/internal/interfaces/http/handler"

// NewReconciliationGroup wires the /reconciliation routes. Static segments
// (statistics, rules, match, auto-match, allocate, exceptions) are matched
// before the :id parameter.
func NewReconciliationGroup(h *handler.ReconciliationHandler) *DomainGroup {
	return NewDomainGroup("reconciliation", "/reconciliation").
		GET("", h.List).
		POST("", h.Create).
		GET("/statistics", h.GetStatistics).
		GET("/rules/list", h.ListRules).
		POST("/rules", h.CreateRule).
		GET("/rules/:id", h.GetRule).
		PUT("/rules/:id", h.UpdateRule).
		DELETE("/rules/:id", h.DeleteRule).
		POST("/match", h.CreateMatch).
		POST("/auto-match", h.AutoMatch).
		POST("/allocate", h.Allocate).
		POST("/exceptions/:id/resolve", h.ResolveException).
		GET("/:id", h.Get).
		PUT("/:id", h.Update).
		POST("/:id/finalize", h.Finalize).
		POST("/:id/cancel", h.Cancel).
		GET("/:id/exceptions", h.FindExceptions).
		POST("/:id/exceptions", h.RaiseException).
		GET("/:id/export", h.Export)
}
