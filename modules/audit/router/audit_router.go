package router

import (
	"github.com/labstack/echo/v4"

	"familycal/core/middleware"
	"familycal/modules/audit/controller"
)

type AuditRouter struct {
	controller *controller.AuditController
}

func NewAuditRouter(controller *controller.AuditController) *AuditRouter {
	return &AuditRouter{
		controller: controller,
	}
}

func (r *AuditRouter) Setup(e *echo.Echo, mw *middleware.Middleware) {
	auditRoutes := e.Group("/api/v1/private/audit-logs")
	auditRoutes.Use(mw.AuthMiddleware())

	auditRoutes.GET("", r.controller.GetHistory)
}
