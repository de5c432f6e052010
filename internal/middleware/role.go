package middleware

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/confhub/confhub/internal/model"
)

// RequireRole admits callers whose role set intersects the allowed
// roles and rejects everyone else with 403. It assumes JWTAuth has
// already stored the role set in the context; a request that skipped
// authentication is rejected as unauthenticated, not forbidden.
func RequireRole(allowed ...model.Role) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			roles, ok := CallerRoles(c)
			if !ok {
				return c.JSON(http.StatusUnauthorized,
					model.NewAPIError(model.CodeAuthRequired, "authentication required"))
			}
			if !roles.Intersects(allowed...) {
				return c.JSON(http.StatusForbidden,
					model.NewAPIError(model.CodeInsufficient, "insufficient permissions"))
			}
			return next(c)
		}
	}
}
