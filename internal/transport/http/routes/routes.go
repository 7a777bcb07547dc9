package routes

import (
	"context"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/arklim/lead-platform-stepup/internal/infra/config"
	"github.com/arklim/lead-platform-stepup/internal/transport/http/handlers"
	"github.com/arklim/lead-platform-stepup/internal/transport/http/middleware"
	"github.com/arklim/lead-platform-stepup/internal/usecase"
)

// ServiceSet groups the services the HTTP layer depends on.
type ServiceSet struct {
	Challenges *usecase.ChallengeService
	Deletions  *usecase.DeletionService
	Merge      *usecase.MergeService
}

// Dependencies encapsulates the objects required to register routes.
type Dependencies struct {
	Config      *config.AppConfig
	Logger      *zap.Logger
	RateLimiter *middleware.RateLimiter
	Metrics     *middleware.HTTPMetrics
	GatewayAuth *middleware.GatewayAuth
	Services    ServiceSet
	Database    DatabaseChecker
	Cache       CacheChecker
}

// DatabaseChecker exposes readiness behaviour for database connections.
type DatabaseChecker interface {
	Ping(ctx context.Context) error
}

// CacheChecker exposes readiness behaviour for cache backends.
type CacheChecker interface {
	HealthCheck(ctx context.Context) error
}

// Register configures the Gin engine with routes and middleware.
func Register(deps Dependencies) *gin.Engine {
	if deps.Config.App.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(middleware.EnrichContext())
	r.Use(middleware.RequestID())
	r.Use(middleware.Logger(deps.Logger))

	if len(deps.Config.App.CORSAllowedOrigins) > 0 {
		r.Use(middleware.CORS(deps.Config.App.CORSAllowedOrigins))
	}

	if deps.Metrics != nil {
		r.Use(deps.Metrics.Handler())
	}

	healthOptions := make([]handlers.HealthOption, 0, 2)

	if deps.Database != nil {
		healthOptions = append(healthOptions, handlers.WithReadinessCheck("database", deps.Database.Ping))
	}

	if deps.Cache != nil {
		healthOptions = append(healthOptions, handlers.WithReadinessCheck("redis", deps.Cache.HealthCheck))
	}

	healthHandler := handlers.NewHealthHandler(healthOptions...)

	r.GET("/healthz", healthHandler.Status)
	r.GET("/readyz", healthHandler.Readiness)

	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	api := r.Group("/api/v1")
	{
		var authMiddleware gin.HandlerFunc
		if deps.GatewayAuth != nil {
			authMiddleware = deps.GatewayAuth.RequireSubject()
		} else {
			authMiddleware = func(c *gin.Context) { c.Next() }
		}

		challengeHandler := handlers.NewChallengeHandler(deps.Services.Challenges)
		challengeGroup := api.Group("/challenges")
		challengeGroup.Use(authMiddleware)
		challengeHandler.RegisterRoutes(challengeGroup)

		passwordHandler := handlers.NewPasswordHandler(deps.Services.Challenges)
		passwordGroup := api.Group("/password")
		passwordGroup.Use(authMiddleware)
		passwordHandler.RegisterRoutes(passwordGroup)

		accountHandler := handlers.NewAccountHandler(deps.Services.Deletions)
		accountGroup := api.Group("/account")
		accountGroup.Use(authMiddleware)
		accountHandler.RegisterRoutes(accountGroup)

		mergeHandler := handlers.NewMergeHandler(deps.Services.Merge)
		mergeGroup := api.Group("/merge")
		mergeMiddlewares := buildMergeMiddlewares(deps)
		if len(mergeMiddlewares) > 0 {
			mergeGroup.Use(mergeMiddlewares...)
		}
		mergeHandler.RegisterRoutes(mergeGroup, authMiddleware)
	}

	handlers.RegisterSwagger(r)

	return r
}

// buildMergeMiddlewares limits unauthenticated merge endpoints by client IP.
func buildMergeMiddlewares(deps Dependencies) []gin.HandlerFunc {
	if deps.RateLimiter == nil || deps.Config == nil {
		return nil
	}

	limit := deps.Config.RateLimit.IssueMaxAttempts
	if limit <= 0 {
		return nil
	}

	window := deps.Config.RateLimit.WindowDuration
	if window <= 0 {
		window = 15 * time.Minute
	}

	rule := middleware.RateLimitRule{
		Name:       "merge_ip",
		Limit:      limit,
		Window:     window,
		Identifier: middleware.ClientIPIdentifier(),
	}

	return []gin.HandlerFunc{deps.RateLimiter.RateLimit(rule)}
}
