package middleware

import (
	"context"
	"errors"
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"

	"github.com/confhub/confhub/internal/model"
	"github.com/confhub/confhub/internal/repository"
)

// OwnerLookup resolves the owning user of a resource. Each protected
// route declares its lookup explicitly at registration time, so the
// ownership rule that applies is visible where the route is wired
// instead of being inferred from the request path.
type OwnerLookup func(ctx context.Context, resourceID uint64) (uint64, error)

// RequireOwnership loads the target resource's owner via the declared
// lookup and rejects with 403 unless the caller owns it or holds the
// admin role. It is a separate pass from role checks: a caller can hold
// the right role and still fail here. Runs after JWTAuth.
func RequireOwnership(idParam string, lookup OwnerLookup) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			uid, ok := CallerID(c)
			if !ok {
				return c.JSON(http.StatusUnauthorized,
					model.NewAPIError(model.CodeAuthRequired, "authentication required"))
			}
			resourceID, err := strconv.ParseUint(c.Param(idParam), 10, 64)
			if err != nil {
				return c.JSON(http.StatusBadRequest,
					model.NewAPIError(model.CodeValidation, "invalid resource id"))
			}

			if roles, ok := CallerRoles(c); ok && roles.Has(model.RoleAdmin) {
				return next(c)
			}

			owner, err := lookup(c.Request().Context(), resourceID)
			if err != nil {
				if errors.Is(err, repository.ErrNotFound) {
					return c.JSON(http.StatusNotFound,
						model.NewAPIError(model.CodeNotFound, "resource not found"))
				}
				c.Logger().Errorf("ownership lookup failed: %v", err)
				return c.JSON(http.StatusInternalServerError,
					model.NewAPIError(model.CodeInternal, "authorization check failed"))
			}
			if owner != uid {
				return c.JSON(http.StatusForbidden,
					model.NewAPIError(model.CodeOwnership, "you can only access your own resources"))
			}
			return next(c)
		}
	}
}
