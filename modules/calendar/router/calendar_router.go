package router

import (
	"github.com/labstack/echo/v4"

	"familycal/core/middleware"
	"familycal/modules/calendar/controller"
)

type CalendarRouter struct {
	controller *controller.CalendarController
}

func NewCalendarRouter(controller *controller.CalendarController) *CalendarRouter {
	return &CalendarRouter{
		controller: controller,
	}
}

func (r *CalendarRouter) Setup(e *echo.Echo, mw *middleware.Middleware) {
	v1 := e.Group("/api/v1")

	// The OAuth callback is public: the providers redirect the browser here
	// and the signed state token carries the user identity.
	v1.GET("/calendar/oauth/callback", r.controller.OAuthCallback)

	calendarRoutes := v1.Group("/private/calendar")
	calendarRoutes.Use(mw.AuthMiddleware())

	calendarRoutes.GET("/connections", r.controller.GetConnections)
	calendarRoutes.POST("/connect/:provider", r.controller.ConnectCalendar)
	calendarRoutes.DELETE("/connections/:id", r.controller.DisconnectCalendar)
	calendarRoutes.POST("/connections/:id/sync", r.controller.SyncCalendar)
	calendarRoutes.POST("/sync", r.controller.SyncAllCalendars)
}
