// Package router assembles the gateway's chi route tree: the full
// middleware chain (CORS, security headers, request id, recovery,
// logging, body limits, auth, rate limiting, timeouts, concurrency)
// plus every HTTP and websocket route the handler package exposes.
package router

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"

	"github.com/axiagw/gateway/analyticsclient"
	"github.com/axiagw/gateway/audit"
	"github.com/axiagw/gateway/auth"
	"github.com/axiagw/gateway/cache"
	"github.com/axiagw/gateway/config"
	"github.com/axiagw/gateway/handler"
	gwmw "github.com/axiagw/gateway/middleware"
	"github.com/axiagw/gateway/modelrouter"
	"github.com/axiagw/gateway/policy"
	"github.com/axiagw/gateway/provider"
	"github.com/axiagw/gateway/stream"
	"github.com/axiagw/gateway/workflow"
)

// Dependencies bundles every collaborator the route tree wires into
// its handlers. All fields are required except WorkflowSignKey,
// which defaults to an empty key (callback verification will then
// always fail, which is the safe default when unconfigured).
type Dependencies struct {
	AuthService     *auth.Service
	AuditEngine     *audit.Engine
	CacheEngine     *cache.Engine
	ModelRouter     *modelrouter.Router
	PolicyClient    *policy.OPAClient
	AnalyticsClient *analyticsclient.Client
	StreamHub       *stream.Hub
	Orchestrator    *workflow.Orchestrator
	HealthPoller    *provider.HealthPoller
	WorkflowSignKey []byte
}

// New returns a configured chi Router with the full middleware chain
// and every route mounted.
func New(cfg *config.Config, appLogger zerolog.Logger, deps Dependencies) http.Handler {
	r := chi.NewRouter()

	// --- Middleware chain (order matters) ---
	// 1. Trusted host — reject before a request gets a CORS-shaped response.
	r.Use(gwmw.TrustedHostMiddleware(cfg.AllowedHosts))
	// 2. CORS — must run before any other response is written.
	r.Use(gwmw.CORSMiddleware(cfg.CORSOrigins))
	// 3. Security headers.
	r.Use(gwmw.SecurityHeadersMiddleware)
	// 4. Request ID injection (chi built-in) + echo it back to the client.
	r.Use(chimw.RequestID)
	r.Use(gwmw.ResponseIDMiddleware)
	// 5. Panic recovery.
	r.Use(chimw.Recoverer)
	// 6. Request logger.
	r.Use(requestLogger(appLogger))
	// 7. Body size + content-type limits.
	r.Use(gwmw.BodyLimitMiddleware(cfg.MaxBodyBytes))

	mountPublicRoutes(r, deps, appLogger)
	mountProtectedRoutes(r, cfg, deps, appLogger)

	return r
}

func mountPublicRoutes(r chi.Router, deps Dependencies, appLogger zerolog.Logger) {
	healthHandler := handler.NewHealthHandler(deps.HealthPoller, appLogger)
	authHandler := handler.NewAuthHandler(deps.AuthService, appLogger)

	r.Get("/", healthHandler.Identity)
	r.Get("/healthz", healthHandler.Liveness)
	r.Get("/openapi.json", handler.OpenAPIHandler())
	r.Get("/docs", handler.SwaggerUIHandler())
	r.Post("/api/v1/auth/login", authHandler.Login)
	r.Post("/api/v1/auth/refresh", authHandler.Refresh)

	// The workflow service's async callback is authenticated by HMAC
	// signature, not a bearer session, so it lives outside the auth
	// middleware stack.
	workflowHandler := handler.NewWorkflowHandler(deps.Orchestrator, deps.WorkflowSignKey, appLogger)
	r.Post("/api/v1/workflows/callback/{executionId}", workflowHandler.Callback)
}

func mountProtectedRoutes(r chi.Router, cfg *config.Config, deps Dependencies, appLogger zerolog.Logger) {
	authMW := gwmw.NewAuthMiddleware(appLogger, deps.AuthService)
	rateLimiter := gwmw.NewRateLimiter(appLogger, cfg.RateLimitEnabled, cfg.RateLimitRPM, cfg.RateLimitRPH, cfg.RateLimitBurst)
	headerNorm := gwmw.NewHeaderNormalization(appLogger)
	timeoutMW := gwmw.NewTimeoutMiddleware(appLogger, cfg)
	concurrencyGuard := gwmw.NewConcurrencyGuard(8, cfg.DefaultTimeout, appLogger)

	chatHandler := handler.NewChatHandler(appLogger, deps.ModelRouter)
	variantHandler := handler.NewVariantHandler(appLogger, deps.ModelRouter)
	cacheHandler := handler.NewCacheHandler(deps.CacheEngine, appLogger)
	policyHandler := handler.NewPolicyHandler(deps.PolicyClient, appLogger)
	analyticsHandler := handler.NewAnalyticsHandler(deps.AnalyticsClient, appLogger)
	auditHandler := handler.NewAuditHandler(deps.AuditEngine, appLogger)
	authHandler := handler.NewAuthHandler(deps.AuthService, appLogger)
	healthHandler := handler.NewHealthHandler(deps.HealthPoller, appLogger)
	workflowHandler := handler.NewWorkflowHandler(deps.Orchestrator, deps.WorkflowSignKey, appLogger)
	streamHandler := handler.NewStreamHandler(deps.StreamHub, deps.ModelRouter, deps.AnalyticsClient, cfg.CORSOrigins, appLogger)

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(rateLimiter.Handler)
		r.Use(authMW.Handler)
		r.Use(headerNorm.Handler)
		r.Use(timeoutMW.Handler)
		r.Use(concurrencyGuard.Middleware)

		r.Post("/auth/logout", authHandler.Logout)

		r.Post("/chat", chatHandler.Chat)
		r.Post("/cost/estimate", chatHandler.CostEstimate)

		r.Get("/variants", variantHandler.ListVariants)
		r.Get("/variants/{name}", variantHandler.GetVariant)
		r.Get("/variants/health", variantHandler.BackendHealth)

		r.Get("/cache/stats", cacheHandler.Stats)
		r.Delete("/cache/groups/{group}", cacheHandler.InvalidateGroup)
		r.Delete("/cache/{namespace}/{key}", cacheHandler.DeleteEntry)

		r.Get("/policies", policyHandler.ListPolicies)
		r.Post("/policies", policyHandler.CreatePolicy)
		r.Get("/policies/templates", policyHandler.ListTemplates)
		r.Get("/policies/evaluations", policyHandler.GetEvaluationLog)
		r.Post("/policies/evaluate", policyHandler.EvaluatePolicy)
		r.Get("/policies/{id}", policyHandler.GetPolicy)
		r.Put("/policies/{id}", policyHandler.UpdatePolicy)
		r.Delete("/policies/{id}", policyHandler.DeletePolicy)

		r.Post("/analytics/query", analyticsHandler.Query)
		r.Post("/analytics/query/natural", analyticsHandler.QueryNatural)
		r.Post("/analytics/refresh", analyticsHandler.Refresh)

		r.With(gwmw.RequirePermission(auth.PermAuditView)).Get("/audit/events", auditHandler.ListEvents)
		r.With(gwmw.RequirePermission(auth.PermAuditView)).Get("/audit/verify", auditHandler.VerifyIntegrity)
		r.With(gwmw.RequirePermission(auth.PermExport)).Get("/compliance/report/{standard}", auditHandler.ComplianceReport)

		r.Get("/providers/health", healthHandler.BackendHealth)
		r.Get("/health", healthHandler.Liveness)

		r.Post("/workflows", workflowHandler.RegisterDefinition)
		r.Post("/workflows/{id}/trigger", workflowHandler.Trigger)
		r.Get("/workflows/executions/{id}", workflowHandler.GetExecution)
	})

	// The websocket upgrade carries its own auth (bearer token in the
	// "token" query parameter, since browsers can't set headers on the
	// handshake request). It is wrapped in the rate limiter and the auth
	// middleware here and gets CORS origin enforcement from the outer
	// chain.
	r.With(rateLimiter.Handler, authMW.Handler).Get("/ws/chat", streamHandler.Chat)
}

func requestLogger(appLogger zerolog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			rw := chimw.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(rw, r)
			appLogger.Info().
				Str("method", r.Method).
				Str("path", r.URL.Path).
				Str("req_id", chimw.GetReqID(r.Context())).
				Int("status", rw.Status()).
				Dur("duration", time.Since(start)).
				Msg("request completed")
		})
	}
}
