package middleware

import (
	"context"
	"net/http"
	"strings"

	"github.com/axiagw/gateway/auth"
	"github.com/rs/zerolog"
)

type contextKey string

const (
	// ClaimsContextKey stores the decoded *auth.Claims in request context.
	ClaimsContextKey contextKey = "auth_claims"
	// SessionContextKey stores the validated *auth.Session in request context.
	SessionContextKey contextKey = "auth_session"
	// UserIDContextKey stores the authenticated user ID in request context.
	UserIDContextKey contextKey = "user_id"
)

// AuthMiddleware validates bearer access tokens on incoming requests
// against the auth service, extending the underlying session's
// activity window on every call.
type AuthMiddleware struct {
	logger  zerolog.Logger
	service *auth.Service
}

// NewAuthMiddleware creates a new authentication middleware.
func NewAuthMiddleware(logger zerolog.Logger, service *auth.Service) *AuthMiddleware {
	return &AuthMiddleware{
		logger:  logger.With().Str("component", "auth_middleware").Logger(),
		service: service,
	}
}

// Handler returns the middleware handler function. It expects a Bearer
// token in the Authorization header, or in the "token" query parameter
// for the websocket upgrade path where browsers can't set headers.
func (am *AuthMiddleware) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token := bearerToken(r)
		if token == "" {
			http.Error(w, `{"error":"missing authentication","message":"bearer token required"}`, http.StatusUnauthorized)
			return
		}

		claims, sess, err := am.service.Authenticate(r.Context(), token)
		if err != nil {
			am.logger.Debug().Err(err).Msg("token validation failed")
			http.Error(w, `{"error":"invalid authentication","message":"token is invalid or expired"}`, http.StatusUnauthorized)
			return
		}

		ctx := context.WithValue(r.Context(), ClaimsContextKey, claims)
		ctx = context.WithValue(ctx, SessionContextKey, sess)
		ctx = context.WithValue(ctx, UserIDContextKey, claims.UserID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// RequirePermission returns a middleware that 403s unless the
// authenticated caller's token carries perm. Must run after Handler.
func RequirePermission(perm auth.Permission) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			claims := GetClaims(r.Context())
			if claims == nil || !auth.HasPermission(claims.Permissions, perm) {
				http.Error(w, `{"error":"forbidden","message":"missing required permission"}`, http.StatusForbidden)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// RequireRole returns a middleware that 403s unless the authenticated
// caller holds role.
func RequireRole(role auth.Role) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			claims := GetClaims(r.Context())
			if claims == nil {
				http.Error(w, `{"error":"forbidden","message":"missing required role"}`, http.StatusForbidden)
				return
			}
			for _, r2 := range claims.Roles {
				if r2 == role {
					next.ServeHTTP(w, r)
					return
				}
			}
			http.Error(w, `{"error":"forbidden","message":"missing required role"}`, http.StatusForbidden)
		})
	}
}

func bearerToken(r *http.Request) string {
	authHeader := r.Header.Get("Authorization")
	if authHeader != "" {
		if strings.HasPrefix(strings.ToLower(authHeader), "bearer ") {
			return strings.TrimSpace(authHeader[7:])
		}
		return strings.TrimSpace(authHeader)
	}
	return r.URL.Query().Get("token")
}

// GetClaims extracts the validated claims from the request context.
func GetClaims(ctx context.Context) *auth.Claims {
	if v, ok := ctx.Value(ClaimsContextKey).(*auth.Claims); ok {
		return v
	}
	return nil
}

// GetSession extracts the validated session from the request context.
func GetSession(ctx context.Context) *auth.Session {
	if v, ok := ctx.Value(SessionContextKey).(*auth.Session); ok {
		return v
	}
	return nil
}

// GetUserID extracts the authenticated user ID from the request context.
func GetUserID(ctx context.Context) string {
	if v, ok := ctx.Value(UserIDContextKey).(string); ok {
		return v
	}
	return ""
}
