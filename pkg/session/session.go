// Package session is the client-side session manager for the confhub
// API. It holds the current access token in memory, carries the
// HttpOnly refresh cookie in its cookie jar, refreshes proactively when
// the token has expired locally, and retries a request exactly once
// after a 401. UI code issues requests through it and never manages
// tokens directly.
package session

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/cookiejar"
	"strings"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/sync/singleflight"
)

// ErrSessionExpired is returned when a refresh fails or a retried
// request is rejected again; local session state has been cleared and
// the user must log in again.
var ErrSessionExpired = errors.New("session expired")

// User is the client-side snapshot of the authenticated user.
type User struct {
	ID          uint64   `json:"id"`
	Email       string   `json:"email"`
	Name        string   `json:"name"`
	Roles       []string `json:"roles"`
	PrimaryRole string   `json:"primaryRole"`
}

// APIError is a decoded error envelope. Callers branch on Code.
type APIError struct {
	StatusCode int
	Code       string `json:"code"`
	Message    string `json:"message"`
}

func (e *APIError) Error() string {
	return fmt.Sprintf("api error %d: %s (%s)", e.StatusCode, e.Message, e.Code)
}

// Manager is the session object injected into UI code. Constructed at
// app start, hydrated from its durable store once, torn down on logout.
type Manager struct {
	baseURL string
	hc      *http.Client
	store   Store

	mu       sync.Mutex
	access   string
	user     *User
	remember bool

	refreshGroup singleflight.Group
}

// Option configures a Manager.
type Option func(*Manager)

// WithStore attaches a durable store; the session persists there when
// the user logs in with remember=true and is hydrated from it once at
// construction.
func WithStore(s Store) Option { return func(m *Manager) { m.store = s } }

// WithHTTPClient replaces the underlying HTTP client. A cookie jar is
// installed if the client has none, since the refresh cookie lives
// there.
func WithHTTPClient(hc *http.Client) Option { return func(m *Manager) { m.hc = hc } }

// New builds a Manager for the API at baseURL.
func New(baseURL string, opts ...Option) (*Manager, error) {
	m := &Manager{baseURL: strings.TrimRight(baseURL, "/")}
	for _, opt := range opts {
		opt(m)
	}
	if m.hc == nil {
		m.hc = &http.Client{Timeout: 30 * time.Second}
	}
	if m.hc.Jar == nil {
		jar, err := cookiejar.New(nil)
		if err != nil {
			return nil, err
		}
		m.hc.Jar = jar
	}
	if m.store != nil {
		if st, ok := m.store.Load(); ok {
			m.access = st.AccessToken
			m.user = st.User
			m.remember = true
		}
	}
	return m, nil
}

// User returns the current user snapshot, or nil when logged out.
func (m *Manager) User() *User {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.user
}

// AccessToken returns the currently held access token.
func (m *Manager) AccessToken() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.access
}

// Register creates an account and opens a session. An empty role starts
// onboarding in the pending state.
func (m *Manager) Register(ctx context.Context, email, password, name, role string) (*User, error) {
	body := map[string]string{"email": email, "password": password, "name": name}
	if role != "" {
		body["role"] = role
	}
	return m.authenticate(ctx, "/v1/auth/register", body, false)
}

// Login authenticates with email and password. remember controls
// whether the session survives into the durable store.
func (m *Manager) Login(ctx context.Context, email, password string, remember bool) (*User, error) {
	return m.authenticate(ctx, "/v1/auth/login",
		map[string]string{"email": email, "password": password}, remember)
}

// LoginWithRole uses a role-scoped login endpoint ("attendee" or
// "organizer"); the account must hold that role.
func (m *Manager) LoginWithRole(ctx context.Context, role, email, password string, remember bool) (*User, error) {
	return m.authenticate(ctx, "/v1/auth/login/"+role,
		map[string]string{"email": email, "password": password}, remember)
}

// Logout revokes the refresh token server-side and clears all local
// session state. Errors from the server are ignored; local state is
// cleared regardless.
func (m *Manager) Logout(ctx context.Context) error {
	req, err := m.NewRequest(ctx, http.MethodPost, "/v1/auth/logout", nil)
	if err != nil {
		return err
	}
	if resp, err := m.hc.Do(req); err == nil {
		_ = resp.Body.Close()
	}
	m.clearState()
	return nil
}

// NewRequest builds a JSON API request relative to the base URL. Bodies
// built here are replayable, which the 401 retry depends on.
func (m *Manager) NewRequest(ctx context.Context, method, path string, body any) (*http.Request, error) {
	var rd io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return nil, err
		}
		rd = bytes.NewReader(b)
	}
	req, err := http.NewRequestWithContext(ctx, method, m.baseURL+path, rd)
	if err != nil {
		return nil, err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	return req, nil
}

// Do sends a request with the access token attached. If the held token
// has already expired locally it refreshes first, without a wasted
// round trip. If the server still answers 401 (clock drift, revocation)
// it refreshes and retries the original request exactly once; a second
// 401 clears the session and surfaces ErrSessionExpired. The refresh
// call itself never re-enters this logic.
func (m *Manager) Do(req *http.Request) (*http.Response, error) {
	m.mu.Lock()
	token := m.access
	m.mu.Unlock()

	if token != "" && tokenExpired(token) {
		if err := m.refresh(req.Context()); err != nil {
			return nil, err
		}
		m.mu.Lock()
		token = m.access
		m.mu.Unlock()
	}

	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := m.hc.Do(req)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusUnauthorized {
		return resp, nil
	}

	// One retry after refresh, and only if the body can be replayed.
	if req.Body != nil && req.GetBody == nil {
		return resp, nil
	}
	_ = resp.Body.Close()

	if err := m.refresh(req.Context()); err != nil {
		return nil, err
	}

	retry := req.Clone(req.Context())
	if req.GetBody != nil {
		rb, err := req.GetBody()
		if err != nil {
			return nil, err
		}
		retry.Body = rb
	}
	m.mu.Lock()
	retry.Header.Set("Authorization", "Bearer "+m.access)
	m.mu.Unlock()

	resp, err = m.hc.Do(retry)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode == http.StatusUnauthorized {
		_ = resp.Body.Close()
		m.clearState()
		return nil, ErrSessionExpired
	}
	return resp, nil
}

// refresh exchanges the refresh cookie for a new access token.
// Concurrent callers are coalesced into a single in-flight exchange so
// racing requests do not invalidate each other's freshly rotated
// token.
func (m *Manager) refresh(ctx context.Context) error {
	_, err, _ := m.refreshGroup.Do("refresh", func() (any, error) {
		req, err := m.NewRequest(ctx, http.MethodPost, "/v1/auth/refresh", nil)
		if err != nil {
			return nil, err
		}
		resp, err := m.hc.Do(req)
		if err != nil {
			return nil, err
		}
		defer resp.Body.Close()

		if resp.StatusCode != http.StatusOK {
			m.clearState()
			return nil, ErrSessionExpired
		}
		var out struct {
			AccessToken string `json:"accessToken"`
		}
		if err := json.NewDecoder(resp.Body).Decode(&out); err != nil || out.AccessToken == "" {
			m.clearState()
			return nil, ErrSessionExpired
		}

		m.mu.Lock()
		m.access = out.AccessToken
		user, remember := m.user, m.remember
		m.mu.Unlock()
		m.persist(out.AccessToken, user, remember)
		return nil, nil
	})
	return err
}

func (m *Manager) authenticate(ctx context.Context, path string, body map[string]string, remember bool) (*User, error) {
	req, err := m.NewRequest(ctx, http.MethodPost, path, body)
	if err != nil {
		return nil, err
	}
	resp, err := m.hc.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		return nil, decodeAPIError(resp)
	}
	var out struct {
		User        *User  `json:"user"`
		AccessToken string `json:"accessToken"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, err
	}

	m.mu.Lock()
	m.access = out.AccessToken
	m.user = out.User
	m.remember = remember
	m.mu.Unlock()
	m.persist(out.AccessToken, out.User, remember)
	return out.User, nil
}

func (m *Manager) persist(access string, user *User, remember bool) {
	if m.store == nil {
		return
	}
	if !remember {
		_ = m.store.Clear()
		return
	}
	_ = m.store.Save(State{AccessToken: access, User: user})
}

func (m *Manager) clearState() {
	m.mu.Lock()
	m.access = ""
	m.user = nil
	m.remember = false
	m.mu.Unlock()
	if m.store != nil {
		_ = m.store.Clear()
	}
}

// tokenExpired decodes the exp claim locally, without verifying the
// signature; the server remains the authority, this only avoids a
// round trip that is known to fail. Undecodable tokens count as
// expired.
func tokenExpired(token string) bool {
	parsed, _, err := jwt.NewParser().ParseUnverified(token, jwt.MapClaims{})
	if err != nil {
		return true
	}
	exp, err := parsed.Claims.GetExpirationTime()
	if err != nil || exp == nil {
		return true
	}
	return exp.Time.Before(time.Now())
}

func decodeAPIError(resp *http.Response) error {
	apiErr := &APIError{StatusCode: resp.StatusCode}
	if err := json.NewDecoder(resp.Body).Decode(apiErr); err != nil || apiErr.Code == "" {
		apiErr.Code = "UNKNOWN"
		apiErr.Message = resp.Status
	}
	return apiErr
}
