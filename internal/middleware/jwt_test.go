package middleware

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/labstack/echo/v4"

	"github.com/confhub/confhub/internal/model"
	"github.com/confhub/confhub/internal/repository"
	"github.com/confhub/confhub/internal/utils"
)

const testSecret = "middleware-test-secret"

// run sends a GET through the given middleware chain to a handler that
// records whether it was reached.
func run(t *testing.T, req *http.Request, handlerReached *bool, mws ...echo.MiddlewareFunc) *httptest.ResponseRecorder {
	t.Helper()
	e := echo.New()
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	h := func(c echo.Context) error {
		*handlerReached = true
		return c.NoContent(http.StatusOK)
	}
	for i := len(mws) - 1; i >= 0; i-- {
		h = mws[i](h)
	}
	if err := h(c); err != nil {
		t.Fatalf("handler error = %v", err)
	}
	return rec
}

func decodeCode(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()
	var apiErr model.APIError
	if err := json.Unmarshal(rec.Body.Bytes(), &apiErr); err != nil {
		t.Fatalf("decode error body: %v", err)
	}
	return apiErr.Code
}

func bearerReq(token string) *http.Request {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	return req
}

func TestJWTAuth_MissingToken(t *testing.T) {
	var reached bool
	rec := run(t, httptest.NewRequest(http.MethodGet, "/", nil), &reached, JWTAuth(testSecret))
	if reached {
		t.Fatal("handler reached without a token")
	}
	if rec.Code != http.StatusUnauthorized || decodeCode(t, rec) != model.CodeAuthRequired {
		t.Errorf("got %d %s, want 401 %s", rec.Code, decodeCode(t, rec), model.CodeAuthRequired)
	}
}

func TestJWTAuth_GarbageToken(t *testing.T) {
	var reached bool
	rec := run(t, bearerReq("not.a.jwt"), &reached, JWTAuth(testSecret))
	if reached {
		t.Fatal("handler reached with a garbage token")
	}
	if rec.Code != http.StatusUnauthorized || decodeCode(t, rec) != model.CodeInvalidToken {
		t.Errorf("got %d %s, want 401 %s", rec.Code, decodeCode(t, rec), model.CodeInvalidToken)
	}
}

func TestJWTAuth_ExpiredToken(t *testing.T) {
	tok, err := utils.NewAccessToken(testSecret, 7, []string{"attendee"}, -1)
	if err != nil {
		t.Fatal(err)
	}
	var reached bool
	rec := run(t, bearerReq(tok.Token), &reached, JWTAuth(testSecret))
	if reached {
		t.Fatal("handler reached with an expired token")
	}
	// TOKEN_EXPIRED is distinct from INVALID_TOKEN so clients know to
	// attempt a silent refresh rather than drop the session.
	if rec.Code != http.StatusUnauthorized || decodeCode(t, rec) != model.CodeTokenExpired {
		t.Errorf("got %d %s, want 401 %s", rec.Code, decodeCode(t, rec), model.CodeTokenExpired)
	}
}

func TestJWTAuth_RefreshTokenRejected(t *testing.T) {
	claims := jwt.MapClaims{
		"sub": "7",
		"typ": utils.TokenTypeRefresh,
		"exp": time.Now().Add(time.Hour).Unix(),
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(testSecret))
	if err != nil {
		t.Fatal(err)
	}

	var reached bool
	rec := run(t, bearerReq(signed), &reached, JWTAuth(testSecret))
	if reached {
		t.Fatal("handler reached with a refresh-typed token")
	}
	if rec.Code != http.StatusUnauthorized || decodeCode(t, rec) != model.CodeWrongType {
		t.Errorf("got %d %s, want 401 %s", rec.Code, decodeCode(t, rec), model.CodeWrongType)
	}
}

func TestJWTAuth_SetsIdentity(t *testing.T) {
	tok, err := utils.NewAccessToken(testSecret, 42, []string{"organizer", "admin"}, 15)
	if err != nil {
		t.Fatal(err)
	}

	e := echo.New()
	rec := httptest.NewRecorder()
	c := e.NewContext(bearerReq(tok.Token), rec)

	var gotID uint64
	var gotRoles model.RoleSet
	h := JWTAuth(testSecret)(func(c echo.Context) error {
		gotID, _ = CallerID(c)
		gotRoles, _ = CallerRoles(c)
		return c.NoContent(http.StatusOK)
	})
	if err := h(c); err != nil {
		t.Fatal(err)
	}
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}
	if gotID != 42 {
		t.Errorf("CallerID = %d, want 42", gotID)
	}
	if !gotRoles.Has(model.RoleOrganizer) || !gotRoles.Has(model.RoleAdmin) {
		t.Errorf("CallerRoles = %v, want organizer+admin", gotRoles)
	}
}

func TestRequireRole(t *testing.T) {
	cases := []struct {
		name     string
		roles    []string
		allowed  []model.Role
		wantCode int
	}{
		{"direct match", []string{"organizer"}, []model.Role{model.RoleOrganizer}, http.StatusOK},
		{"one of several suffices", []string{"attendee", "presenter"}, []model.Role{model.RolePresenter, model.RoleAdmin}, http.StatusOK},
		{"no overlap", []string{"attendee"}, []model.Role{model.RoleOrganizer, model.RoleAdmin}, http.StatusForbidden},
		{"admin is not implicit here", []string{"pending"}, []model.Role{model.RoleAttendee}, http.StatusForbidden},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			tok, err := utils.NewAccessToken(testSecret, 9, tc.roles, 15)
			if err != nil {
				t.Fatal(err)
			}
			var reached bool
			rec := run(t, bearerReq(tok.Token), &reached, JWTAuth(testSecret), RequireRole(tc.allowed...))
			if rec.Code != tc.wantCode {
				t.Fatalf("status = %d, want %d (body %s)", rec.Code, tc.wantCode, rec.Body.String())
			}
			if tc.wantCode == http.StatusOK && !reached {
				t.Error("handler not reached")
			}
			if tc.wantCode == http.StatusForbidden && decodeCode(t, rec) != model.CodeInsufficient {
				t.Errorf("code = %s, want %s", decodeCode(t, rec), model.CodeInsufficient)
			}
		})
	}
}

func TestRequireRole_Unauthenticated(t *testing.T) {
	var reached bool
	rec := run(t, httptest.NewRequest(http.MethodGet, "/", nil), &reached, RequireRole(model.RoleAdmin))
	if rec.Code != http.StatusUnauthorized || decodeCode(t, rec) != model.CodeAuthRequired {
		t.Errorf("got %d %s, want 401 %s", rec.Code, decodeCode(t, rec), model.CodeAuthRequired)
	}
}

func ownershipCtx(t *testing.T, userID uint64, roles []string, resourceID string) (echo.Context, *httptest.ResponseRecorder) {
	t.Helper()
	e := echo.New()
	rec := httptest.NewRecorder()
	c := e.NewContext(httptest.NewRequest(http.MethodGet, "/", nil), rec)
	c.SetParamNames("id")
	c.SetParamValues(resourceID)
	rs, err := model.ParseRoleNames(roles)
	if err != nil {
		t.Fatal(err)
	}
	c.Set(CtxUserID, userID)
	c.Set(CtxRoles, rs)
	return c, rec
}

func TestRequireOwnership(t *testing.T) {
	ownerOf := func(owner uint64, lookupErr error) OwnerLookup {
		return func(_ context.Context, _ uint64) (uint64, error) { return owner, lookupErr }
	}

	t.Run("owner passes", func(t *testing.T) {
		c, rec := ownershipCtx(t, 5, []string{"organizer"}, "30")
		var reached bool
		h := RequireOwnership("id", ownerOf(5, nil))(func(c echo.Context) error {
			reached = true
			return c.NoContent(http.StatusOK)
		})
		if err := h(c); err != nil {
			t.Fatal(err)
		}
		if !reached || rec.Code != http.StatusOK {
			t.Errorf("status = %d, reached = %v", rec.Code, reached)
		}
	})

	t.Run("admin bypasses without a lookup", func(t *testing.T) {
		c, rec := ownershipCtx(t, 99, []string{"admin"}, "30")
		lookupCalled := false
		lookup := func(_ context.Context, _ uint64) (uint64, error) {
			lookupCalled = true
			return 5, nil
		}
		h := RequireOwnership("id", lookup)(func(c echo.Context) error {
			return c.NoContent(http.StatusOK)
		})
		if err := h(c); err != nil {
			t.Fatal(err)
		}
		if rec.Code != http.StatusOK {
			t.Errorf("status = %d, want 200", rec.Code)
		}
		if lookupCalled {
			t.Error("owner lookup ran for an admin caller")
		}
	})

	t.Run("right role, wrong owner", func(t *testing.T) {
		c, rec := ownershipCtx(t, 5, []string{"organizer"}, "30")
		h := RequireOwnership("id", ownerOf(8, nil))(func(c echo.Context) error {
			return c.NoContent(http.StatusOK)
		})
		if err := h(c); err != nil {
			t.Fatal(err)
		}
		if rec.Code != http.StatusForbidden || decodeCode(t, rec) != model.CodeOwnership {
			t.Errorf("got %d %s, want 403 %s", rec.Code, decodeCode(t, rec), model.CodeOwnership)
		}
	})

	t.Run("resource missing", func(t *testing.T) {
		c, rec := ownershipCtx(t, 5, []string{"organizer"}, "30")
		h := RequireOwnership("id", ownerOf(0, repository.ErrNotFound))(func(c echo.Context) error {
			return c.NoContent(http.StatusOK)
		})
		if err := h(c); err != nil {
			t.Fatal(err)
		}
		if rec.Code != http.StatusNotFound || decodeCode(t, rec) != model.CodeNotFound {
			t.Errorf("got %d %s, want 404 %s", rec.Code, decodeCode(t, rec), model.CodeNotFound)
		}
	})

	t.Run("non-numeric id", func(t *testing.T) {
		c, rec := ownershipCtx(t, 5, []string{"organizer"}, "abc")
		h := RequireOwnership("id", ownerOf(5, nil))(func(c echo.Context) error {
			return c.NoContent(http.StatusOK)
		})
		if err := h(c); err != nil {
			t.Fatal(err)
		}
		if rec.Code != http.StatusBadRequest || decodeCode(t, rec) != model.CodeValidation {
			t.Errorf("got %d %s, want 400 %s", rec.Code, decodeCode(t, rec), model.CodeValidation)
		}
	})
}
