package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"

	"github.com/arklim/octopis-auth/internal/core/domain"
	"github.com/arklim/octopis-auth/internal/transport/http/middleware"
	"github.com/arklim/octopis-auth/internal/usecase"
)

type fakeAuthService struct {
	registerUser *domain.User
	registerErr  error
	registered   usecase.RegisterInput

	loginPair domain.TokenPair
	loginErr  error
	loggedIn  usecase.LoginInput

	refreshPair domain.TokenPair
	refreshErr  error

	logoutErr   error
	loggedOut   string
	logoutCalls int

	meUser  *domain.User
	meErr   error
	meToken string
}

func (f *fakeAuthService) Register(_ context.Context, in usecase.RegisterInput) (*domain.User, error) {
	f.registered = in
	return f.registerUser, f.registerErr
}

func (f *fakeAuthService) Login(_ context.Context, in usecase.LoginInput) (domain.TokenPair, error) {
	f.loggedIn = in
	return f.loginPair, f.loginErr
}

func (f *fakeAuthService) Refresh(_ context.Context, _ string) (domain.TokenPair, error) {
	return f.refreshPair, f.refreshErr
}

func (f *fakeAuthService) Logout(_ context.Context, token string) error {
	f.logoutCalls++
	f.loggedOut = token
	return f.logoutErr
}

func (f *fakeAuthService) Me(_ context.Context, token string) (*domain.User, error) {
	f.meToken = token
	return f.meUser, f.meErr
}

func newAuthRouter(svc AuthService) *gin.Engine {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	router.Use(middleware.RequestID())
	NewAuthHandler(svc).RegisterRoutes(router.Group("/auth"))
	return router
}

func postJSON(router http.Handler, path, body string, mutate func(*http.Request)) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	if mutate != nil {
		mutate(req)
	}
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)
	return rr
}

func decodeEnvelope(t *testing.T, rr *httptest.ResponseRecorder) middleware.ErrorBody {
	t.Helper()
	var env middleware.ErrorEnvelope
	if err := json.Unmarshal(rr.Body.Bytes(), &env); err != nil {
		t.Fatalf("decode error envelope: %v (body %s)", err, rr.Body.String())
	}
	return env.Error
}

func TestRegisterReturnsPublicUser(t *testing.T) {
	username := "ada"
	svc := &fakeAuthService{registerUser: &domain.User{ID: 7, Email: "ada@example.com", Username: &username, PasswordHash: "secret-hash"}}
	router := newAuthRouter(svc)

	rr := postJSON(router, "/auth/register", `{"email":"ada@example.com","password":"correct horse","username":"ada"}`, nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rr.Code, rr.Body.String())
	}
	if strings.Contains(rr.Body.String(), "secret-hash") || strings.Contains(rr.Body.String(), "password") {
		t.Fatalf("response leaked credential material: %s", rr.Body.String())
	}

	var got UserResponse
	if err := json.Unmarshal(rr.Body.Bytes(), &got); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got.ID != 7 || got.Email != "ada@example.com" || got.Username == nil || *got.Username != "ada" {
		t.Fatalf("unexpected user response %+v", got)
	}
	if svc.registered.Password != "correct horse" {
		t.Fatalf("expected password to reach the service")
	}
}

func TestRegisterDuplicateEmail(t *testing.T) {
	router := newAuthRouter(&fakeAuthService{registerErr: usecase.ErrEmailTaken})

	rr := postJSON(router, "/auth/register", `{"email":"ada@example.com","password":"correct horse"}`, nil)
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rr.Code)
	}
	body := decodeEnvelope(t, rr)
	if body.Code != "bad_request" || body.Message != "Email already registered" {
		t.Fatalf("unexpected envelope %+v", body)
	}
}

func TestRegisterValidationErrors(t *testing.T) {
	svc := &fakeAuthService{}
	router := newAuthRouter(svc)

	cases := []struct {
		name  string
		body  string
		field string
	}{
		{name: "short password", body: `{"email":"ada@example.com","password":"short"}`, field: "password"},
		{name: "long password", body: `{"email":"ada@example.com","password":"` + strings.Repeat("x", 73) + `"}`, field: "password"},
		{name: "bad email", body: `{"email":"not-an-email","password":"correct horse"}`, field: "email"},
		{name: "missing email", body: `{"password":"correct horse"}`, field: "email"},
		{name: "long username", body: `{"email":"ada@example.com","password":"correct horse","username":"` + strings.Repeat("u", 129) + `"}`, field: "username"},
		{name: "malformed json", body: `{"email":`, field: "body"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rr := postJSON(router, "/auth/register", tc.body, nil)
			if rr.Code != http.StatusUnprocessableEntity {
				t.Fatalf("expected 422, got %d", rr.Code)
			}

			var env struct {
				Error struct {
					Code    string       `json:"code"`
					Message string       `json:"message"`
					Details []FieldError `json:"details"`
				} `json:"error"`
			}
			if err := json.Unmarshal(rr.Body.Bytes(), &env); err != nil {
				t.Fatalf("decode: %v", err)
			}
			if env.Error.Code != "validation_error" || env.Error.Message != "Validation failed" {
				t.Fatalf("unexpected envelope %+v", env.Error)
			}
			if len(env.Error.Details) == 0 || env.Error.Details[0].Field != tc.field {
				t.Fatalf("expected first detail for %q, got %+v", tc.field, env.Error.Details)
			}
		})
	}

	if svc.registered.Email != "" {
		t.Fatalf("service must not be called for invalid payloads")
	}
}

func TestRegisterAcceptsUsernameAtColumnWidth(t *testing.T) {
	svc := &fakeAuthService{registerUser: &domain.User{ID: 1, Email: "ada@example.com"}}
	router := newAuthRouter(svc)

	name := strings.Repeat("u", 128)
	rr := postJSON(router, "/auth/register", `{"email":"ada@example.com","password":"correct horse","username":"`+name+`"}`, nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rr.Code, rr.Body.String())
	}
	if svc.registered.Username == nil || len(*svc.registered.Username) != 128 {
		t.Fatalf("expected the 128 character username to reach the service")
	}
}

func TestLoginSuccessUsesForwardedClient(t *testing.T) {
	svc := &fakeAuthService{loginPair: domain.TokenPair{AccessToken: "access", RefreshToken: "refresh"}}
	router := newAuthRouter(svc)

	rr := postJSON(router, "/auth/login", `{"email":"ada@example.com","password":"correct horse"}`, func(r *http.Request) {
		r.Header.Set("X-Forwarded-For", "203.0.113.9, 10.0.0.1")
	})
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}

	var got TokenResponse
	if err := json.Unmarshal(rr.Body.Bytes(), &got); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got.AccessToken != "access" || got.RefreshToken != "refresh" || got.TokenType != "bearer" {
		t.Fatalf("unexpected token response %+v", got)
	}
	if svc.loggedIn.ClientIP != "203.0.113.9" {
		t.Fatalf("expected client ip 203.0.113.9, got %q", svc.loggedIn.ClientIP)
	}
}

func TestLoginInvalidCredentials(t *testing.T) {
	router := newAuthRouter(&fakeAuthService{loginErr: usecase.ErrInvalidCredential})

	rr := postJSON(router, "/auth/login", `{"email":"ada@example.com","password":"wrong"}`, nil)
	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rr.Code)
	}
	if body := decodeEnvelope(t, rr); body.Message != "Invalid credentials" || body.Code != "unauthorized" {
		t.Fatalf("unexpected envelope %+v", body)
	}
}

func TestLoginUnexpectedErrorIsOpaque500(t *testing.T) {
	router := newAuthRouter(&fakeAuthService{loginErr: errors.New("pq: connection refused")})

	rr := postJSON(router, "/auth/login", `{"email":"ada@example.com","password":"whatever"}`, nil)
	if rr.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500, got %d", rr.Code)
	}
	if strings.Contains(rr.Body.String(), "connection refused") {
		t.Fatalf("internal error leaked: %s", rr.Body.String())
	}
}

func TestRefreshReturnsSameRefreshToken(t *testing.T) {
	router := newAuthRouter(&fakeAuthService{refreshPair: domain.TokenPair{AccessToken: "new-access", RefreshToken: "r1"}})

	rr := postJSON(router, "/auth/refresh", `{"refresh_token":"r1"}`, nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}
	var got TokenResponse
	if err := json.Unmarshal(rr.Body.Bytes(), &got); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got.RefreshToken != "r1" || got.AccessToken != "new-access" {
		t.Fatalf("unexpected token response %+v", got)
	}
}

func TestTokenFailuresAreOpaque(t *testing.T) {
	for _, err := range []error{usecase.ErrInvalidCredential, usecase.ErrPrincipalNotFound} {
		svc := &fakeAuthService{refreshErr: err, logoutErr: err, meErr: err}
		router := newAuthRouter(svc)

		refresh := postJSON(router, "/auth/refresh", `{"refresh_token":"r1"}`, nil)
		logout := postJSON(router, "/auth/logout", `{"refresh_token":"r1"}`, nil)

		req := httptest.NewRequest(http.MethodGet, "/auth/me", nil)
		req.Header.Set("Authorization", "Bearer a1")
		me := httptest.NewRecorder()
		router.ServeHTTP(me, req)

		for name, rr := range map[string]*httptest.ResponseRecorder{"refresh": refresh, "logout": logout, "me": me} {
			if rr.Code != http.StatusUnauthorized {
				t.Fatalf("%s with %v: expected 401, got %d", name, err, rr.Code)
			}
			if body := decodeEnvelope(t, rr); body.Message != "Could not validate credentials" {
				t.Fatalf("%s with %v: unexpected message %q", name, err, body.Message)
			}
		}
	}
}

func TestLogoutRevokesToken(t *testing.T) {
	svc := &fakeAuthService{}
	router := newAuthRouter(svc)

	rr := postJSON(router, "/auth/logout", `{"refresh_token":"r1"}`, nil)
	if rr.Code != http.StatusNoContent {
		t.Fatalf("expected 204, got %d", rr.Code)
	}
	if svc.logoutCalls != 1 || svc.loggedOut != "r1" {
		t.Fatalf("expected logout of r1, got %d calls with %q", svc.logoutCalls, svc.loggedOut)
	}
}

func TestMeReturnsPrincipal(t *testing.T) {
	svc := &fakeAuthService{meUser: &domain.User{ID: 3, Email: "grace@example.com"}}
	router := newAuthRouter(svc)

	req := httptest.NewRequest(http.MethodGet, "/auth/me", nil)
	req.Header.Set("Authorization", "Bearer access-123")
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}
	if svc.meToken != "access-123" {
		t.Fatalf("expected bearer token to reach the service, got %q", svc.meToken)
	}
	var got UserResponse
	if err := json.Unmarshal(rr.Body.Bytes(), &got); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got.ID != 3 || got.Email != "grace@example.com" || got.Username != nil {
		t.Fatalf("unexpected user response %+v", got)
	}
}

func TestMeWithoutBearer(t *testing.T) {
	svc := &fakeAuthService{}
	router := newAuthRouter(svc)

	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/auth/me", nil))

	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rr.Code)
	}
	if svc.meToken != "" {
		t.Fatalf("service must not be called without a bearer token")
	}
}
