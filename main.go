package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"github.com/axiagw/gateway/analyticsclient"
	"github.com/axiagw/gateway/audit"
	"github.com/axiagw/gateway/auth"
	"github.com/axiagw/gateway/cache"
	"github.com/axiagw/gateway/config"
	"github.com/axiagw/gateway/logger"
	"github.com/axiagw/gateway/modelrouter"
	"github.com/axiagw/gateway/policy"
	"github.com/axiagw/gateway/provider"
	"github.com/axiagw/gateway/redisclient"
	"github.com/axiagw/gateway/router"
	"github.com/axiagw/gateway/stream"
	"github.com/axiagw/gateway/workflow"
)

func main() {
	cfg := config.Load()
	log := logger.New(cfg)

	log.Info().Str("env", cfg.Env).Msg("gateway starting")

	rc, err := redisclient.New(cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("redis init failed")
	}
	if err := rc.Ping(); err != nil {
		log.Warn().Err(err).Msg("redis ping failed — continuing, cache reads will miss")
	} else {
		log.Info().Msg("redis connected")
	}

	cacheEngine := cache.NewEngine(log, &cache.RedisStore{Client: rc.Raw()}, cfg.CacheTTLDefault, cfg.CompressionThreshold)

	auditSink := audit.Sink(nil)
	auditEngine := audit.NewEngine(log, auditSink, audit.Config{
		BatchSize:     cfg.AuditBatchSize,
		RetentionDays: cfg.AuditRetentionDays,
	})

	authService := auth.NewService(log, buildUserLookup(cfg, log), &audit.AuthAdapter{Engine: auditEngine}, auth.Config{
		SecretKey:        cfg.SecretKey,
		PasswordMinLen:   cfg.PasswordMinLen,
		MaxLoginAttempts: cfg.MaxLoginAttempts,
		LockoutMinutes:   cfg.LockoutMinutes,
		IdleTimeout:      time.Duration(cfg.IdleMinutes) * time.Minute,
	})

	httpClient := &http.Client{Timeout: cfg.DefaultTimeout}

	llmClient := provider.NewClient(cfg.LLMBackendURL, httpClient)
	analyticsClient := analyticsclient.NewClient(context.Background(), analyticsclient.Config{
		BaseURL:      cfg.AnalyticsServiceURL,
		ClientID:     cfg.AnalyticsClientID,
		ClientSecret: cfg.AnalyticsClientSecret,
		TokenURL:     cfg.AnalyticsTokenURL,
	})
	workflowClient := workflow.NewClient(cfg.WorkflowServiceURL, httpClient)

	healthPoller := provider.NewHealthPoller([]provider.Checker{llmClient, analyticsClient, workflowClient}, log, 30*time.Second)
	healthPoller.OnStatusChange(func(name string, healthy bool, status provider.HealthStatus) {
		if healthy {
			log.Info().Str("backend", name).Msg("backend recovered")
		} else {
			log.Error().Str("backend", name).Str("error", status.Error).Msg("backend degraded")
		}
	})
	healthPoller.Start()

	modelRouter := modelrouter.NewRouter(log, llmClient, cacheEngine, modelrouter.DefaultRegistry())

	streamHub := stream.NewHub(log, cfg.MaxConnections)

	webhooks := workflow.NewWebhookDispatcher(log, httpClient)
	orchestrator := workflow.NewOrchestrator(log, workflowClient, webhooks)
	orchestrator.Start()

	policyClient := policy.NewOPAClient(policy.OPAConfig{
		Enabled:    false,
		LogEnabled: true,
	})
	for _, p := range policy.BuiltInPolicies() {
		if err := policyClient.CreatePolicy(p); err != nil {
			log.Warn().Err(err).Str("policy", p.ID).Msg("failed to seed built-in policy")
		}
	}

	r := router.New(cfg, log, router.Dependencies{
		AuthService:     authService,
		AuditEngine:     auditEngine,
		CacheEngine:     cacheEngine,
		ModelRouter:     modelRouter,
		PolicyClient:    policyClient,
		AnalyticsClient: analyticsClient,
		StreamHub:       streamHub,
		Orchestrator:    orchestrator,
		HealthPoller:    healthPoller,
		WorkflowSignKey: []byte(cfg.WorkflowSigningKey),
	})

	srv := &http.Server{
		Addr:         cfg.Addr,
		Handler:      r,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: cfg.DefaultTimeout + 10*time.Second,
		IdleTimeout:  120 * time.Second,
	}

	done := make(chan os.Signal, 1)
	signal.Notify(done, os.Interrupt, syscall.SIGTERM)

	go func() {
		log.Info().Str("addr", cfg.Addr).Msg("gateway listening")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("server failed")
		}
	}()

	<-done
	log.Info().Msg("shutdown signal received")

	healthPoller.Stop()
	orchestrator.Stop()

	ctx, cancel := context.WithTimeout(context.Background(), cfg.GracefulTimeout)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		log.Error().Err(err).Msg("graceful shutdown failed")
	} else {
		log.Info().Msg("gateway stopped gracefully")
	}
}

// buildUserLookup seeds the gateway's single admin account from config.
// There is no user directory service in scope; operators provision the
// seed account's bcrypt hash out of band (e.g. via auth.HashPassword in
// a one-off script) and set it as GATEWAY_ADMIN_PASSWORD_HASH.
func buildUserLookup(cfg *config.Config, log zerolog.Logger) *auth.StaticUserLookup {
	if cfg.AdminPasswordHash == "" {
		log.Warn().Msg("GATEWAY_ADMIN_PASSWORD_HASH not set — admin login will always fail")
	}
	return auth.NewStaticUserLookup(map[string]auth.StaticUser{
		cfg.AdminUsername: {
			UserID:       "seed-admin",
			Roles:        []auth.Role{auth.RoleAdmin},
			PasswordHash: cfg.AdminPasswordHash,
		},
	})
}
