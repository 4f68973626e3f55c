package middleware

import (
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"

	"familycal/core/constants"
	"familycal/core/controller"
	"familycal/core/errors"
	"familycal/core/utils"
)

const ContextKeyUserID = "user_id"

type Middleware struct{}

func NewMiddleware() *Middleware {
	return &Middleware{}
}

// AuthMiddleware validates the bearer token and stores the caller's user id
// in the echo context under ContextKeyUserID.
func (m *Middleware) AuthMiddleware() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			header := c.Request().Header.Get(echo.HeaderAuthorization)
			if header == "" {
				return c.JSON(http.StatusUnauthorized,
					controller.NewErrorResponse(http.StatusUnauthorized, errors.ErrUnauthorized, "missing authorization header"))
			}

			tokenString := strings.TrimPrefix(header, "Bearer ")
			if tokenString == header {
				return c.JSON(http.StatusUnauthorized,
					controller.NewErrorResponse(http.StatusUnauthorized, errors.ErrUnauthorized, "invalid authorization header format"))
			}

			tokenData, err := utils.ValidateAndParseToken(tokenString)
			if err != nil {
				return c.JSON(http.StatusUnauthorized,
					controller.NewErrorResponse(http.StatusUnauthorized, errors.ErrUnauthorized, "invalid or expired token"))
			}
			if tokenData.Scope != constants.ScopeTokenAccess {
				return c.JSON(http.StatusUnauthorized,
					controller.NewErrorResponse(http.StatusUnauthorized, errors.ErrUnauthorized, "invalid token scope"))
			}

			c.Set(ContextKeyUserID, tokenData.UserID)
			return next(c)
		}
	}
}
