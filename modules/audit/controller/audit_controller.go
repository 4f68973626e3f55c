package controller

import (
	"strconv"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"familycal/core/controller"
	"familycal/core/errors"
	"familycal/core/middleware"
	"familycal/modules/audit/service"
)

type AuditController struct {
	controller.BaseController
	service service.AuditService
}

func NewAuditController(service service.AuditService) *AuditController {
	return &AuditController{
		BaseController: controller.NewBaseController(),
		service:        service,
	}
}

// GetHistory lists the current user's recent audit entries.
// GET /api/v1/private/audit-logs?limit=50
func (c *AuditController) GetHistory(ctx echo.Context) error {
	userID, ok := ctx.Get(middleware.ContextKeyUserID).(uuid.UUID)
	if !ok || userID == uuid.Nil {
		return c.ErrorResponse(ctx, errors.NewAppError(errors.ErrUnauthorized, "invalid user", nil))
	}

	limit, _ := strconv.Atoi(ctx.QueryParam("limit"))

	logs, appErr := c.service.History(ctx.Request().Context(), userID, limit)
	if appErr != nil {
		return c.ErrorResponse(ctx, appErr)
	}
	return c.SuccessResponse(ctx, logs, "audit history retrieved")
}
