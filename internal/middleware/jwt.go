// Package middleware contains the per-request authorization pipeline:
// bearer-token verification, role gating, ownership checks and rate
// limiting.
package middleware

import (
	"errors"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/confhub/confhub/internal/model"
	"github.com/confhub/confhub/internal/utils"
)

// Context keys populated by JWTAuth for downstream middleware and
// handlers.
const (
	CtxUserID = "user_id"
	CtxRoles  = "roles"
	CtxEmail  = "claims_subject" // raw subject, for logging
)

// JWTAuth verifies the Bearer access token and attaches the decoded
// identity and role set to the request context. Each failure kind
// yields a distinct code: a missing token, a malformed or bad-signature
// token, an expired token (so the client can attempt silent refresh),
// and a refresh token presented as access.
func JWTAuth(secret string) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			auth := c.Request().Header.Get("Authorization")
			if !strings.HasPrefix(auth, "Bearer ") {
				return c.JSON(http.StatusUnauthorized,
					model.NewAPIError(model.CodeAuthRequired, "access token required"))
			}
			raw := strings.TrimPrefix(auth, "Bearer ")

			claims, err := utils.VerifyAccessToken(secret, raw)
			if err != nil {
				switch {
				case errors.Is(err, utils.ErrTokenExpired):
					return c.JSON(http.StatusUnauthorized,
						model.NewAPIError(model.CodeTokenExpired, "token expired"))
				case errors.Is(err, utils.ErrWrongTokenType):
					return c.JSON(http.StatusUnauthorized,
						model.NewAPIError(model.CodeWrongType, "invalid token type"))
				default:
					return c.JSON(http.StatusUnauthorized,
						model.NewAPIError(model.CodeInvalidToken, "invalid token"))
				}
			}

			uid, err := claims.UserID()
			if err != nil {
				return c.JSON(http.StatusUnauthorized,
					model.NewAPIError(model.CodeInvalidToken, "invalid token"))
			}
			roles, err := model.ParseRoleNames(claims.Roles)
			if err != nil {
				return c.JSON(http.StatusUnauthorized,
					model.NewAPIError(model.CodeInvalidToken, "invalid token"))
			}

			c.Set(CtxUserID, uid)
			c.Set(CtxRoles, roles)
			c.Set(CtxEmail, claims.Subject)
			return next(c)
		}
	}
}

// CallerID returns the authenticated user ID stored by JWTAuth.
func CallerID(c echo.Context) (uint64, bool) {
	uid, ok := c.Get(CtxUserID).(uint64)
	return uid, ok
}

// CallerRoles returns the authenticated role set stored by JWTAuth.
func CallerRoles(c echo.Context) (model.RoleSet, bool) {
	roles, ok := c.Get(CtxRoles).(model.RoleSet)
	return roles, ok
}
