package middleware

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/axiagw/gateway/auth"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
)

type fakeUsers struct{}

func (fakeUsers) FindByUsername(_ context.Context, username string) (string, []auth.Role, string, bool) {
	if username != "u" {
		return "", nil, "", false
	}
	hash, _ := auth.HashPassword("Correct-Horse-1!")
	return "user-1", []auth.Role{auth.RoleAnalyst}, hash, true
}

type noopAudit struct{}

func (noopAudit) LoginFailure(context.Context, string, bool, time.Time) {}

func newTestAuthService(t *testing.T) *auth.Service {
	t.Helper()
	return auth.NewService(zerolog.New(io.Discard), fakeUsers{}, noopAudit{}, auth.Config{
		SecretKey:        "test-secret",
		PasswordMinLen:   12,
		MaxLoginAttempts: 5,
		LockoutMinutes:   30,
		IdleTimeout:      30 * time.Minute,
	})
}

func TestAuthMiddlewareRejectsMissingToken(t *testing.T) {
	svc := newTestAuthService(t)
	am := NewAuthMiddleware(zerolog.New(io.Discard), svc)

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/api/v1/chat", nil)
	am.Handler(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("handler should not run")
	})).ServeHTTP(rec, req)

	require.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestAuthMiddlewareAcceptsValidBearerToken(t *testing.T) {
	svc := newTestAuthService(t)
	result, err := svc.Login(context.Background(), "u", "Correct-Horse-1!", "127.0.0.1", "test-agent")
	require.NoError(t, err)

	am := NewAuthMiddleware(zerolog.New(io.Discard), svc)

	var gotUserID string
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/api/v1/chat", nil)
	req.Header.Set("Authorization", "Bearer "+result.AccessToken)

	am.Handler(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotUserID = GetUserID(r.Context())
		w.WriteHeader(http.StatusOK)
	})).ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "user-1", gotUserID)
}

func TestAuthMiddlewareAcceptsTokenFromQueryParam(t *testing.T) {
	svc := newTestAuthService(t)
	result, err := svc.Login(context.Background(), "u", "Correct-Horse-1!", "127.0.0.1", "test-agent")
	require.NoError(t, err)

	am := NewAuthMiddleware(zerolog.New(io.Discard), svc)

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/ws/chat?token="+result.AccessToken, nil)

	am.Handler(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})).ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
}

func TestRequirePermissionRejectsWithoutGrant(t *testing.T) {
	claims := &auth.Claims{UserID: "user-1", Permissions: []auth.Permission{auth.PermRead}}
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/api/v1/audit/events", nil)
	req = req.WithContext(context.WithValue(req.Context(), ClaimsContextKey, claims))

	RequirePermission(auth.PermAuditView)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("handler should not run")
	})).ServeHTTP(rec, req)

	require.Equal(t, http.StatusForbidden, rec.Code)
}

func TestRequirePermissionAllowsWithGrant(t *testing.T) {
	claims := &auth.Claims{UserID: "user-1", Permissions: []auth.Permission{auth.PermRead, auth.PermAuditView}}
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/api/v1/audit/events", nil)
	req = req.WithContext(context.WithValue(req.Context(), ClaimsContextKey, claims))

	RequirePermission(auth.PermAuditView)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})).ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
}
