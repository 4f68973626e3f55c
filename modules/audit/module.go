package audit

import (
	"github.com/labstack/echo/v4"

	"familycal/core/database"
	"familycal/core/middleware"
	"familycal/modules/audit/controller"
	"familycal/modules/audit/repository"
	"familycal/modules/audit/router"
	"familycal/modules/audit/service"
)

// Init wires the audit module and returns the service so other modules can
// record entries through it.
func Init(e *echo.Echo, db database.IDatabase) service.AuditService {
	repo := repository.NewAuditRepository(db)
	svc := service.NewAuditService(repo)
	auditController := controller.NewAuditController(svc)

	mw := middleware.NewMiddleware()
	router.NewAuditRouter(auditController).Setup(e, mw)

	return svc
}
