// Package router wires HTTP routes to handlers and declares, per
// route, which authorization middleware applies.
package router

import (
	"github.com/labstack/echo/v4"

	"github.com/confhub/confhub/internal/handler"
	"github.com/confhub/confhub/internal/middleware"
	"github.com/confhub/confhub/internal/model"
)

// RegisterRoutes registers routes that need no authentication.
func RegisterRoutes(e *echo.Echo) {
	e.GET("/healthz", handler.Health)
}

// RegisterAuth registers the auth endpoints. Credential-accepting
// routes (register, the login variants, refresh) sit behind the rate
// limiter; logout stays unthrottled so a user can always end a session.
// Protected routes under /v1 run the JWT middleware.
func RegisterAuth(e *echo.Echo, a *handler.AuthHandler, limiter echo.MiddlewareFunc, jwtSecret string) {
	g := e.Group("/v1/auth")
	g.POST("/register", a.Register, limiter)
	g.POST("/login", a.Login, limiter)
	g.POST("/login/attendee", a.LoginAttendee, limiter)
	g.POST("/login/organizer", a.LoginOrganizer, limiter)
	g.POST("/refresh", a.Refresh, limiter)
	g.POST("/logout", a.Logout)
	// Role updates require a valid access token; the handler enforces
	// the admin / onboarding policy itself.
	g.PATCH("/update-role", a.UpdateRole, middleware.JWTAuth(jwtSecret))

	auth := e.Group("/v1")
	auth.Use(middleware.JWTAuth(jwtSecret))
	auth.GET("/me", a.Me)
}

// RegisterConferences registers the owner-gated conference surface.
// Each route declares its ownership lookup explicitly, so the rule in
// force is readable here rather than inferred from the request path.
func RegisterConferences(e *echo.Echo, h *handler.ConferenceHandler, jwtSecret string) {
	g := e.Group("/v1/conferences")
	g.Use(middleware.JWTAuth(jwtSecret))
	g.POST("", h.CreateConference,
		middleware.RequireRole(model.RoleOrganizer, model.RoleAdmin))
	g.GET("/:id", h.GetConference,
		middleware.RequireRole(model.RoleOrganizer, model.RoleAdmin),
		middleware.RequireOwnership("id", h.Confs.OwnerID))
}
