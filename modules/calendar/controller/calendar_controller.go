package controller

import (
	"net/http"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"familycal/core/controller"
	"familycal/core/errors"
	"familycal/core/middleware"
	"familycal/modules/calendar/service"
)

type CalendarController struct {
	controller.BaseController
	service service.CalendarService
}

func NewCalendarController(service service.CalendarService) *CalendarController {
	return &CalendarController{
		BaseController: controller.NewBaseController(),
		service:        service,
	}
}

// GetConnections lists the current user's calendar connections.
// GET /api/v1/private/calendar/connections
func (c *CalendarController) GetConnections(ctx echo.Context) error {
	userID, err := getUserIDFromContext(ctx)
	if err != nil {
		return c.ErrorResponse(ctx, err)
	}

	summaries, appErr := c.service.ListCalendars(ctx.Request().Context(), userID)
	if appErr != nil {
		return c.ErrorResponse(ctx, appErr)
	}
	return c.SuccessResponse(ctx, summaries, "calendar connections retrieved")
}

// ConnectCalendar starts the OAuth flow for a provider.
// POST /api/v1/private/calendar/connect/:provider
func (c *CalendarController) ConnectCalendar(ctx echo.Context) error {
	userID, err := getUserIDFromContext(ctx)
	if err != nil {
		return c.ErrorResponse(ctx, err)
	}

	resp, appErr := c.service.InitiateOAuth(
		ctx.Request().Context(),
		userID,
		ctx.Param("provider"),
		ctx.QueryParam("return_path"),
	)
	if appErr != nil {
		return c.ErrorResponse(ctx, appErr)
	}
	return c.SuccessResponse(ctx, resp, "authorization url generated")
}

// OAuthCallback is the fixed redirect target the providers send the user back
// to. It is unauthenticated; the signed state token identifies the user.
// GET /api/v1/calendar/oauth/callback
func (c *CalendarController) OAuthCallback(ctx echo.Context) error {
	// Providers deliver an error parameter when the user denied consent.
	if providerErr := ctx.QueryParam("error"); providerErr != "" {
		return c.ErrorResponse(ctx, errors.NewAppError(errors.ErrInvalidInput, "authorization was denied: "+providerErr, nil))
	}

	result, appErr := c.service.HandleCallback(
		ctx.Request().Context(),
		ctx.QueryParam("code"),
		ctx.QueryParam("state"),
		ctx.QueryParam("provider"),
	)
	if appErr != nil {
		return c.ErrorResponse(ctx, appErr)
	}

	if result.ReturnPath != "" {
		return ctx.Redirect(http.StatusFound, result.ReturnPath)
	}
	return c.SuccessResponse(ctx, result, "calendar connected")
}

// DisconnectCalendar removes a connection and its synced events.
// DELETE /api/v1/private/calendar/connections/:id
func (c *CalendarController) DisconnectCalendar(ctx echo.Context) error {
	userID, err := getUserIDFromContext(ctx)
	if err != nil {
		return c.ErrorResponse(ctx, err)
	}

	connectionID, err := uuid.Parse(ctx.Param("id"))
	if err != nil {
		return c.ErrorResponse(ctx, errors.NewAppError(errors.ErrInvalidInput, "invalid connection id", err))
	}

	if appErr := c.service.DisconnectCalendar(ctx.Request().Context(), userID, connectionID); appErr != nil {
		return c.ErrorResponse(ctx, appErr)
	}
	return c.SuccessResponse(ctx, nil, "calendar disconnected")
}

// SyncCalendar triggers one sync for one connection.
// POST /api/v1/private/calendar/connections/:id/sync
func (c *CalendarController) SyncCalendar(ctx echo.Context) error {
	userID, err := getUserIDFromContext(ctx)
	if err != nil {
		return c.ErrorResponse(ctx, err)
	}

	connectionID, err := uuid.Parse(ctx.Param("id"))
	if err != nil {
		return c.ErrorResponse(ctx, errors.NewAppError(errors.ErrInvalidInput, "invalid connection id", err))
	}

	result, appErr := c.service.SyncCalendar(ctx.Request().Context(), userID, connectionID)
	if appErr != nil {
		return c.ErrorResponse(ctx, appErr)
	}
	return c.SuccessResponse(ctx, result, "calendar synced")
}

// SyncAllCalendars triggers a sync for every connection of the current user.
// POST /api/v1/private/calendar/sync
func (c *CalendarController) SyncAllCalendars(ctx echo.Context) error {
	userID, err := getUserIDFromContext(ctx)
	if err != nil {
		return c.ErrorResponse(ctx, err)
	}

	results, appErr := c.service.SyncAllCalendars(ctx.Request().Context(), userID)
	if appErr != nil {
		return c.ErrorResponse(ctx, appErr)
	}
	return c.SuccessResponse(ctx, results, "calendar sync completed")
}

func getUserIDFromContext(ctx echo.Context) (uuid.UUID, error) {
	userID, ok := ctx.Get(middleware.ContextKeyUserID).(uuid.UUID)
	if !ok || userID == uuid.Nil {
		return uuid.Nil, errors.NewAppError(errors.ErrUnauthorized, "invalid user", nil)
	}
	return userID, nil
}
