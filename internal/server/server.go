package server

import (
	"context"
	"net/http"
	"time"

	"github.com/aman-churiwal/storyforge/internal/config"
	"github.com/aman-churiwal/storyforge/internal/handler"
	"github.com/aman-churiwal/storyforge/internal/healthcheck"
	"github.com/aman-churiwal/storyforge/internal/identity"
	"github.com/aman-churiwal/storyforge/internal/logger"
	"github.com/aman-churiwal/storyforge/internal/middleware"
	"github.com/aman-churiwal/storyforge/internal/ratelimit"
	"github.com/aman-churiwal/storyforge/internal/service"
	"github.com/aman-churiwal/storyforge/internal/usage"
	"github.com/gin-gonic/gin"
	"github.com/go-redis/redis_rate/v10"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Gateway is the completion client plus its breaker state.
type Gateway interface {
	handler.Gateway
	handler.BreakerReporter
}

// Dependencies are built in main from the configured backends.
type Dependencies struct {
	Config  *config.Store
	Limiter ratelimit.Limiter
	Gateway Gateway
	Usage   usage.Store
	Users   service.UserRepository
	Health  *healthcheck.Checker
	// AbuseLimiter is nil when Redis is disabled.
	AbuseLimiter *redis_rate.Limiter
	// Tokens is nil unless prompt token counting is enabled.
	Tokens handler.TokenCounter
}

type Server struct {
	router           *gin.Engine
	config           *config.Store
	deps             Dependencies
	authService      *service.AuthService
	functionsHandler *handler.FunctionsHandler
	usageHandler     *handler.UsageHandler
	analyticsHandler *handler.AnalyticsHandler
	authHandler      *handler.AuthHandler
	systemHandler    *handler.SystemHandler
	httpServer       *http.Server
}

func New(deps Dependencies) *Server {
	cfg := deps.Config.Get()
	if cfg.Server.Environment == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()

	recorder := usage.NewRecorder(deps.Usage, cfg.Usage.WriteTimeout)
	functionsHandler := handler.NewFunctionsHandler(deps.Limiter, deps.Gateway, recorder, deps.Config)
	if deps.Tokens != nil {
		functionsHandler.WithTokenCounter(deps.Tokens)
	}

	analyticsService := service.NewAnalyticsService(deps.Usage)
	authService := service.NewAuthService(deps.Users, cfg.Admin.JWTSecret, cfg.Admin.TokenExpiryHours)

	s := &Server{
		router:           router,
		config:           deps.Config,
		deps:             deps,
		authService:      authService,
		functionsHandler: functionsHandler,
		usageHandler:     handler.NewUsageHandler(analyticsService, deps.Config),
		analyticsHandler: handler.NewAnalyticsHandler(analyticsService),
		authHandler:      handler.NewAuthHandler(authService),
		systemHandler:    handler.NewSystemHandler(deps.Gateway),
	}

	// Setup middleware
	s.setupMiddleware()

	// Setup routes
	s.setupRoutes(cfg)

	return s
}

// AuthService is exposed so main can bootstrap the first admin.
func (s *Server) AuthService() *service.AuthService {
	return s.authService
}

func (s *Server) setupMiddleware() {
	s.router.Use(middleware.Recovery())
	s.router.Use(middleware.RequestID())
	s.router.Use(middleware.Logger())
	s.router.Use(middleware.CORS())
}

func (s *Server) setupRoutes(cfg *config.Config) {
	s.router.GET("/health", s.healthCheck)
	if cfg.Metrics.Enabled {
		s.router.GET("/metrics", gin.WrapH(promhttp.Handler()))
	}

	functions := s.router.Group("/functions/v1")
	if cfg.AbuseGuard.Enabled && s.deps.AbuseLimiter != nil {
		functions.Use(middleware.AbuseGuard(s.deps.AbuseLimiter, cfg.AbuseGuard.PerMinute))
	}
	functions.Use(middleware.Identity(identity.FromConfig(cfg.Identity)))
	{
		functions.POST("/generate-story", s.functionsHandler.GenerateStory)
		functions.POST("/generate-image", s.functionsHandler.GenerateImage)
		functions.POST("/chat", s.functionsHandler.Chat)
		functions.GET("/usage", s.usageHandler.GetOwnUsage)

		// Preflight is answered by the CORS middleware; these keep the routes explicit.
		functions.OPTIONS("/generate-story", preflight)
		functions.OPTIONS("/generate-image", preflight)
		functions.OPTIONS("/chat", preflight)
	}

	if cfg.Admin.JWTSecret == "" {
		logger.Warn("admin.jwt_secret is empty, admin routes are disabled")
		return
	}

	s.router.POST("/admin/login", s.authHandler.Login)

	adminIdentity := identity.HeaderVerifier{Header: cfg.Identity.Header}
	admin := s.router.Group("/admin")
	admin.Use(middleware.RequireAuth(s.authService), middleware.Identity(adminIdentity.Required()))
	{
		admin.GET("/usage/summary", s.analyticsHandler.GetSummary)
		admin.GET("/usage/logs", s.analyticsHandler.GetLogs)
		admin.GET("/usage/hourly", s.analyticsHandler.GetTimeSeries)
		admin.GET("/usage/users/:id", s.analyticsHandler.GetUserStats)
		admin.GET("/system/breaker", s.systemHandler.CircuitBreakerStatus)
	}
}

func preflight(c *gin.Context) {
	c.Status(http.StatusNoContent)
}

func (s *Server) healthCheck(c *gin.Context) {
	overall := healthcheck.Healthy
	checks := gin.H{}
	if s.deps.Health != nil {
		overall = s.deps.Health.OverallHealth()
		for name, status := range s.deps.Health.GetAllStatus() {
			checks[name] = status.IsHealthy
		}
	}

	statusCode := http.StatusOK
	if overall != healthcheck.Healthy {
		statusCode = http.StatusServiceUnavailable
	}

	c.JSON(statusCode, gin.H{
		"status":             overall.String(),
		"service":            "storyforge",
		"version":            "1.0.0",
		"timestamp":          time.Now().Unix(),
		"uptime":             time.Since(startTime).Seconds(),
		"checks":             checks,
		"completion_breaker": s.deps.Gateway.BreakerState(),
	})
}

func (s *Server) Run(addr string) error {
	cfg := s.config.Get()
	s.httpServer = &http.Server{
		Addr:         addr,
		Handler:      s.router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	logger.Info("starting storyforge", "addr", addr, "environment", cfg.Server.Environment)

	return s.httpServer.ListenAndServe()
}

func (s *Server) Shutdown(ctx context.Context) error {
	logger.Info("shutting down server")

	if s.httpServer != nil {
		return s.httpServer.Shutdown(ctx)
	}

	return nil
}

func (s *Server) GetRouter() *gin.Engine {
	return s.router
}

var startTime = time.Now()
