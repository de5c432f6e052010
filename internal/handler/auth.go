package handler

import (
	"context"
	"database/sql"
	"errors"
	"net/http"
	"net/mail"
	"strings"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/confhub/confhub/internal/config"
	"github.com/confhub/confhub/internal/middleware"
	"github.com/confhub/confhub/internal/model"
	"github.com/confhub/confhub/internal/queue"
	"github.com/confhub/confhub/internal/repository"
	"github.com/confhub/confhub/internal/service"
	"github.com/confhub/confhub/internal/utils"
)

// RefreshCookieName is the HttpOnly cookie carrying the raw refresh
// token. Client-side script never sees the value.
const RefreshCookieName = "jid"

const dbTimeout = 5 * time.Second

// AuthHandler bundles dependencies for the auth endpoints.
type AuthHandler struct {
	Cfg      config.Config
	Users    *repository.UserRepo
	Sessions *service.SessionService
	Audit    service.AuditFunc
}

func NewAuthHandler(cfg config.Config, users *repository.UserRepo, sessions *service.SessionService, audit service.AuditFunc) *AuthHandler {
	return &AuthHandler{Cfg: cfg, Users: users, Sessions: sessions, Audit: audit}
}

// ----- DTOs -----

type registerReq struct {
	Email    string `json:"email"`
	Password string `json:"password"`
	Name     string `json:"name"`
	Role     string `json:"role"`
}
type loginReq struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}
type updateRoleReq struct {
	Role   string `json:"role"`
	UserID uint64 `json:"user_id"` // admin only; zero means "self"
}

type userPart struct {
	ID          uint64    `json:"id"`
	Email       string    `json:"email"`
	Name        string    `json:"name"`
	Roles       []string  `json:"roles"`
	PrimaryRole string    `json:"primaryRole"` // display only
	CreatedAt   time.Time `json:"createdAt"`
}

func userView(u model.User) userPart {
	return userPart{
		ID:          u.ID,
		Email:       u.Email,
		Name:        u.Name,
		Roles:       u.Roles.Names(),
		PrimaryRole: string(u.Roles.Primary()),
		CreatedAt:   u.CreatedAt,
	}
}

// ----- endpoints -----

// Register creates a user and opens a session immediately: access token
// in the body, refresh token as the jid cookie. Registration without an
// explicit role starts in pending until onboarding resolves it.
func (h *AuthHandler) Register(c echo.Context) error {
	var req registerReq
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, model.NewAPIError(model.CodeValidation, "invalid request body"))
	}
	req.Email = strings.ToLower(strings.TrimSpace(req.Email))
	req.Name = strings.TrimSpace(req.Name)

	if msg := validateRegistration(req); msg != "" {
		return c.JSON(http.StatusUnprocessableEntity, model.NewAPIError(model.CodeValidation, msg))
	}
	roles, ok := registrationRoles(req.Role)
	if !ok {
		return c.JSON(http.StatusUnprocessableEntity, model.NewAPIError(model.CodeValidation, "role must be attendee, presenter or organizer"))
	}

	ctx, cancel := context.WithTimeout(c.Request().Context(), dbTimeout)
	defer cancel()

	uid, err := h.Users.Create(ctx, req.Email, req.Name, req.Password, roles, h.Cfg.BcryptCost)
	if err != nil {
		if errors.Is(err, repository.ErrEmailExists) {
			return c.JSON(http.StatusConflict, model.NewAPIError(model.CodeEmailExists, "user already exists with this email"))
		}
		c.Logger().Errorf("register: create user failed: %v", err)
		return c.JSON(http.StatusInternalServerError, model.NewAPIError(model.CodeInternal, "internal server error"))
	}

	u := model.User{ID: uid, Email: req.Email, Name: req.Name, Roles: roles, CreatedAt: time.Now().UTC()}
	access, err := h.openSession(ctx, c, u)
	if err != nil {
		c.Logger().Errorf("register: open session failed: %v", err)
		return c.JSON(http.StatusInternalServerError, model.NewAPIError(model.CodeInternal, "internal server error"))
	}

	h.audit(c, queue.AuthEvent{Type: queue.EventUserRegistered, UserID: uid, Email: u.Email})
	return c.JSON(http.StatusCreated, echo.Map{
		"success":     true,
		"user":        userView(u),
		"accessToken": access,
	})
}

// Login verifies credentials and opens a session. Unknown email and
// wrong password collapse into one generic response so the endpoint
// cannot be used to enumerate users.
func (h *AuthHandler) Login(c echo.Context) error { return h.login(c, "") }

// LoginAttendee is the role-scoped login used by the attendee entry
// point; the account must hold the attendee (or admin) role.
func (h *AuthHandler) LoginAttendee(c echo.Context) error { return h.login(c, model.RoleAttendee) }

// LoginOrganizer is the role-scoped login for the organizer dashboard.
func (h *AuthHandler) LoginOrganizer(c echo.Context) error { return h.login(c, model.RoleOrganizer) }

func (h *AuthHandler) login(c echo.Context, required model.Role) error {
	var req loginReq
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, model.NewAPIError(model.CodeValidation, "invalid request body"))
	}
	req.Email = strings.ToLower(strings.TrimSpace(req.Email))
	if req.Email == "" || req.Password == "" {
		return c.JSON(http.StatusUnprocessableEntity, model.NewAPIError(model.CodeValidation, "email and password are required"))
	}

	ctx, cancel := context.WithTimeout(c.Request().Context(), dbTimeout)
	defer cancel()

	u, err := h.Users.GetByEmail(ctx, req.Email)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			h.audit(c, queue.AuthEvent{Type: queue.EventUserLoginFailed, Email: req.Email, Detail: "unknown email"})
			return c.JSON(http.StatusUnauthorized, model.NewAPIError(model.CodeInvalidCreds, "invalid credentials"))
		}
		c.Logger().Errorf("login: query failed: %v", err)
		return c.JSON(http.StatusInternalServerError, model.NewAPIError(model.CodeInternal, "internal server error"))
	}
	if !utils.VerifyPassword(u.PasswordHash, req.Password) {
		h.audit(c, queue.AuthEvent{Type: queue.EventUserLoginFailed, UserID: u.ID, Email: u.Email, Detail: "bad password"})
		return c.JSON(http.StatusUnauthorized, model.NewAPIError(model.CodeInvalidCreds, "invalid credentials"))
	}
	if required != "" && !u.Roles.Intersects(required, model.RoleAdmin) {
		h.audit(c, queue.AuthEvent{Type: queue.EventUserLoginFailed, UserID: u.ID, Email: u.Email, Detail: "role mismatch: " + string(required)})
		return c.JSON(http.StatusForbidden, model.NewAPIError(model.CodeRoleMismatch, "account does not hold the required role"))
	}

	access, err := h.openSession(ctx, c, u)
	if err != nil {
		c.Logger().Errorf("login: open session failed: %v", err)
		return c.JSON(http.StatusInternalServerError, model.NewAPIError(model.CodeInternal, "internal server error"))
	}

	h.audit(c, queue.AuthEvent{Type: queue.EventUserLogin, UserID: u.ID, Email: u.Email})
	return c.JSON(http.StatusOK, echo.Map{
		"success":     true,
		"user":        userView(u),
		"accessToken": access,
	})
}

// Refresh exchanges the jid cookie for a new access token and a rotated
// refresh cookie. Any invalid, expired or replayed cookie yields the
// same 401 and clears the cookie.
func (h *AuthHandler) Refresh(c echo.Context) error {
	cookie, err := c.Cookie(RefreshCookieName)
	if err != nil || strings.TrimSpace(cookie.Value) == "" {
		h.clearRefreshCookie(c)
		return c.JSON(http.StatusUnauthorized, model.NewAPIError(model.CodeInvalidRefr, "refresh token required"))
	}

	ctx, cancel := context.WithTimeout(c.Request().Context(), dbTimeout)
	defer cancel()

	res, err := h.Sessions.Rotate(ctx, cookie.Value)
	if err != nil {
		if errors.Is(err, service.ErrInvalidRefresh) {
			h.clearRefreshCookie(c)
			return c.JSON(http.StatusUnauthorized, model.NewAPIError(model.CodeInvalidRefr, "invalid refresh token"))
		}
		c.Logger().Errorf("refresh: rotation failed: %v", err)
		return c.JSON(http.StatusInternalServerError, model.NewAPIError(model.CodeInternal, "internal server error"))
	}

	access, err := utils.NewAccessToken(h.Cfg.JWTSecret, res.User.ID, res.User.Roles.Names(), h.Cfg.AccessTTLMin)
	if err != nil {
		c.Logger().Errorf("refresh: issue access failed: %v", err)
		return c.JSON(http.StatusInternalServerError, model.NewAPIError(model.CodeInternal, "internal server error"))
	}
	h.setRefreshCookie(c, res.NewRefresh.Raw, res.NewRefresh.Exp)

	return c.JSON(http.StatusOK, echo.Map{
		"success":     true,
		"accessToken": access.Token,
	})
}

// Logout revokes the presented refresh token and clears the cookie.
// Idempotent: it succeeds even when the cookie is absent or the token
// is already invalid.
func (h *AuthHandler) Logout(c echo.Context) error {
	if cookie, err := c.Cookie(RefreshCookieName); err == nil && strings.TrimSpace(cookie.Value) != "" {
		ctx, cancel := context.WithTimeout(c.Request().Context(), dbTimeout)
		defer cancel()
		if err := h.Sessions.Revoke(ctx, cookie.Value); err != nil {
			c.Logger().Errorf("logout: revoke failed: %v", err)
		} else {
			h.audit(c, queue.AuthEvent{Type: queue.EventUserLogout})
		}
	}
	h.clearRefreshCookie(c)
	return c.JSON(http.StatusOK, echo.Map{"success": true})
}

// UpdateRole mutates a user's role set. Admins may set any user's role;
// a non-admin may only resolve their own pending onboarding state, once,
// to attendee, presenter or organizer.
func (h *AuthHandler) UpdateRole(c echo.Context) error {
	callerID, ok := middleware.CallerID(c)
	if !ok {
		return c.JSON(http.StatusUnauthorized, model.NewAPIError(model.CodeAuthRequired, "authentication required"))
	}
	callerRoles, _ := middleware.CallerRoles(c)
	isAdmin := callerRoles.Has(model.RoleAdmin)

	var req updateRoleReq
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, model.NewAPIError(model.CodeValidation, "invalid request body"))
	}
	role, ok := model.ParseRole(req.Role)
	if !ok || role == model.RolePending || (role == model.RoleAdmin && !isAdmin) {
		return c.JSON(http.StatusUnprocessableEntity, model.NewAPIError(model.CodeValidation, "valid role is required"))
	}

	targetID := req.UserID
	if targetID == 0 {
		targetID = callerID
	}
	if targetID != callerID && !isAdmin {
		return c.JSON(http.StatusForbidden, model.NewAPIError(model.CodeInsufficient, "insufficient permissions"))
	}

	ctx, cancel := context.WithTimeout(c.Request().Context(), dbTimeout)
	defer cancel()

	target, err := h.Users.GetByID(ctx, targetID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return c.JSON(http.StatusNotFound, model.NewAPIError(model.CodeNotFound, "user not found"))
		}
		c.Logger().Errorf("update-role: load user failed: %v", err)
		return c.JSON(http.StatusInternalServerError, model.NewAPIError(model.CodeInternal, "internal server error"))
	}

	// The self-service path exists only to leave onboarding; the role
	// snapshot in the token is not trusted for this check.
	if !isAdmin && !target.Roles.OnboardingPending() {
		return c.JSON(http.StatusForbidden, model.NewAPIError(model.CodeInsufficient, "insufficient permissions"))
	}

	newRoles := model.NewRoleSet(role)
	if err := h.Users.UpdateRoles(ctx, target.ID, newRoles); err != nil {
		c.Logger().Errorf("update-role: update failed: %v", err)
		return c.JSON(http.StatusInternalServerError, model.NewAPIError(model.CodeInternal, "internal server error"))
	}
	target.Roles = newRoles

	h.audit(c, queue.AuthEvent{
		Type:   queue.EventRoleUpdated,
		UserID: target.ID,
		Email:  target.Email,
		Detail: "roles set to " + newRoles.String(),
	})
	return c.JSON(http.StatusOK, echo.Map{
		"success": true,
		"user":    userView(target),
	})
}

// Me returns the authenticated user's current record.
func (h *AuthHandler) Me(c echo.Context) error {
	uid, ok := middleware.CallerID(c)
	if !ok {
		return c.JSON(http.StatusUnauthorized, model.NewAPIError(model.CodeAuthRequired, "authentication required"))
	}
	ctx, cancel := context.WithTimeout(c.Request().Context(), dbTimeout)
	defer cancel()
	u, err := h.Users.GetByID(ctx, uid)
	if err != nil {
		c.Logger().Errorf("me: load user failed: %v", err)
		return c.JSON(http.StatusInternalServerError, model.NewAPIError(model.CodeInternal, "internal server error"))
	}
	return c.JSON(http.StatusOK, echo.Map{"success": true, "user": userView(u)})
}

// ----- helpers -----

// openSession issues the access token and the refresh cookie for a
// verified user, returning the signed access token.
func (h *AuthHandler) openSession(ctx context.Context, c echo.Context, u model.User) (string, error) {
	access, err := utils.NewAccessToken(h.Cfg.JWTSecret, u.ID, u.Roles.Names(), h.Cfg.AccessTTLMin)
	if err != nil {
		return "", err
	}
	refresh, err := h.Sessions.Issue(ctx, u.ID)
	if err != nil {
		return "", err
	}
	h.setRefreshCookie(c, refresh.Raw, refresh.Exp)
	return access.Token, nil
}

func (h *AuthHandler) setRefreshCookie(c echo.Context, raw string, exp time.Time) {
	c.SetCookie(&http.Cookie{
		Name:     RefreshCookieName,
		Value:    raw,
		Expires:  exp,
		Path:     "/",
		Domain:   h.Cfg.CookieDomain,
		HttpOnly: true,
		Secure:   h.Cfg.SecureCookies(),
		SameSite: http.SameSiteLaxMode,
	})
}

func (h *AuthHandler) clearRefreshCookie(c echo.Context) {
	c.SetCookie(&http.Cookie{
		Name:     RefreshCookieName,
		Value:    "",
		MaxAge:   -1,
		Path:     "/",
		Domain:   h.Cfg.CookieDomain,
		HttpOnly: true,
		Secure:   h.Cfg.SecureCookies(),
		SameSite: http.SameSiteLaxMode,
	})
}

func (h *AuthHandler) audit(c echo.Context, ev queue.AuthEvent) {
	if h.Audit == nil {
		return
	}
	ev.ClientIP = c.RealIP()
	h.Audit(c.Request().Context(), ev)
}

func validateRegistration(req registerReq) string {
	if req.Email == "" || !validEmail(req.Email) {
		return "invalid email format"
	}
	if len(req.Password) < 8 {
		return "password must be at least 8 characters"
	}
	if len(req.Password) > 72 { // bcrypt input bound
		return "password must be at most 72 characters"
	}
	if len([]rune(req.Name)) < 2 {
		return "name must be at least 2 characters"
	}
	return ""
}

func validEmail(s string) bool {
	addr, err := mail.ParseAddress(s)
	return err == nil && addr.Address == s
}

// registrationRoles maps the optional role selection to the initial
// role set. No selection starts onboarding in pending; admin cannot be
// self-assigned.
func registrationRoles(role string) (model.RoleSet, bool) {
	if strings.TrimSpace(role) == "" {
		return model.NewRoleSet(model.RolePending), true
	}
	r, ok := model.ParseRole(role)
	if !ok || r == model.RoleAdmin || r == model.RolePending {
		return nil, false
	}
	return model.NewRoleSet(r), true
}
