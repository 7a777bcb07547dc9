package app

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/arklim/lead-platform-stepup/internal/core/port"
	"github.com/arklim/lead-platform-stepup/internal/infra/config"
	"github.com/arklim/lead-platform-stepup/internal/infra/database"
	kafkainfra "github.com/arklim/lead-platform-stepup/internal/infra/kafka"
	"github.com/arklim/lead-platform-stepup/internal/infra/logger"
	"github.com/arklim/lead-platform-stepup/internal/infra/notify"
	redisinfra "github.com/arklim/lead-platform-stepup/internal/infra/redis"
	"github.com/arklim/lead-platform-stepup/internal/infra/security"
	"github.com/arklim/lead-platform-stepup/internal/infra/telemetry"
	postgresrepo "github.com/arklim/lead-platform-stepup/internal/repository/postgres"
	redisrepo "github.com/arklim/lead-platform-stepup/internal/repository/redis"
	"github.com/arklim/lead-platform-stepup/internal/transport/http/middleware"
	"github.com/arklim/lead-platform-stepup/internal/transport/http/routes"
	"github.com/arklim/lead-platform-stepup/internal/usecase"
)

type Application struct {
	cfg    *config.AppConfig
	engine *gin.Engine
	logger *zap.Logger
	pool   *pgxpool.Pool
	redis  *redisinfra.Client
	tracer *telemetry.TracerProvider
}

func New(ctx context.Context, cfg *config.AppConfig) (*Application, error) {
	log, err := logger.New(cfg.App.Env)
	if err != nil {
		return nil, fmt.Errorf("init logger: %w", err)
	}

	tracer, err := telemetry.NewTracerProvider(ctx, cfg.Telemetry, log)
	if err != nil {
		return nil, fmt.Errorf("init telemetry: %w", err)
	}

	pool, err := database.NewPostgresPool(ctx, cfg.Postgres, log)
	if err != nil {
		return nil, fmt.Errorf("init postgres: %w", err)
	}

	argonCfg := security.Argon2Config{
		Memory:      cfg.Argon2.Memory,
		Iterations:  cfg.Argon2.Iterations,
		Parallelism: cfg.Argon2.Parallelism,
		SaltLength:  cfg.Argon2.SaltLength,
		KeyLength:   cfg.Argon2.KeyLength,
	}
	if err := security.ConfigureArgon2(argonCfg); err != nil {
		return nil, fmt.Errorf("configure argon2: %w", err)
	}

	mergeSigner, err := security.NewMergeTokenSigner(cfg.Signing.MergeSecret, cfg.Signing.MergeTokenTTL)
	if err != nil {
		return nil, fmt.Errorf("init merge token signer: %w", err)
	}

	redisClient, err := redisinfra.NewClient(cfg.Redis, log)
	if err != nil {
		return nil, fmt.Errorf("init redis: %w", err)
	}

	repos := postgresrepo.NewRepositories(pool)

	codeStore := redisrepo.NewCodeRepository(redisClient.Client(), cfg.Redis.CodePrefix)
	challengeStore := redisrepo.NewChallengeRepository(redisClient.Client(), cfg.Redis.ChallengePrefix)
	redemptionStore := redisrepo.NewMergeRedemptionRepository(redisClient.Client(), cfg.Redis.MergePrefix)

	rateLimitWindow := cfg.RateLimit.WindowDuration
	if rateLimitWindow <= 0 {
		rateLimitWindow = 15 * time.Minute
	}
	rateLimitStore := redisrepo.NewRateLimitRepository(redisClient.Client(), redisrepo.SlidingWindowConfig{
		KeyPrefix: cfg.Redis.RateLimitPrefix,
		TTL:       rateLimitWindow * 2,
	})

	rateLimiter := middleware.NewRateLimiter(rateLimitStore, log)

	var eventPublisher port.EventPublisher
	if len(cfg.Kafka.Brokers) > 0 {
		kafkaProducer, err := kafkainfra.NewProducer(cfg.Kafka, log)
		if err != nil {
			log.Warn("failed to init kafka producer, using stub publisher", zap.Error(err))
			eventPublisher = kafkainfra.NewStubPublisher(log)
		} else {
			eventPublisher = kafkainfra.NewEventPublisher(kafkaProducer, cfg.App, log)
			log.Info("kafka event publisher initialized", zap.Strings("brokers", cfg.Kafka.Brokers))
		}
	} else {
		log.Info("kafka brokers not configured, using stub publisher")
		eventPublisher = kafkainfra.NewStubPublisher(log)
	}

	hasher := security.NewArgon2Hasher()
	passwordValidator := security.DefaultPasswordValidator()
	notifier := notify.NewLoggingNotifier(log)

	codeService := usecase.NewCodeService(cfg, repos.Subjects, codeStore, rateLimitStore, notifier, eventPublisher, log)
	verifier := usecase.NewCredentialVerifier(repos.Subjects, hasher, codeService, log)
	challengeService := usecase.NewChallengeService(cfg, repos.Subjects, challengeStore, codeService, verifier, hasher, passwordValidator, eventPublisher, log)
	mergeService := usecase.NewMergeService(repos.Subjects, mergeSigner, redemptionStore, verifier, codeService, eventPublisher, log)
	deletionService := usecase.NewDeletionService(repos.Subjects, repos.Deletions, codeService, eventPublisher, log)

	metrics, err := middleware.NewHTTPMetrics(middleware.HTTPMetricsOptions{})
	if err != nil {
		_ = redisClient.Close()
		return nil, fmt.Errorf("init http metrics: %w", err)
	}

	engine := routes.Register(routes.Dependencies{
		Config:      cfg,
		Logger:      log,
		RateLimiter: rateLimiter,
		Metrics:     metrics,
		GatewayAuth: middleware.NewGatewayAuth(cfg.Signing.GatewaySecret),
		Database:    pool,
		Cache:       redisClient,
		Services: routes.ServiceSet{
			Challenges: challengeService,
			Deletions:  deletionService,
			Merge:      mergeService,
		},
	})

	return &Application{
		cfg:    cfg,
		engine: engine,
		logger: log,
		pool:   pool,
		redis:  redisClient,
		tracer: tracer,
	}, nil
}

func (a *Application) Run(ctx context.Context) error {
	defer func() {
		_ = a.logger.Sync()
	}()
	defer func() {
		if a.pool != nil {
			a.pool.Close()
		}
	}()
	defer func() {
		if a.redis != nil {
			_ = a.redis.Close()
		}
	}()
	defer func() {
		if a.tracer != nil {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = a.tracer.Shutdown(shutdownCtx)
		}
	}()

	srv := &http.Server{
		Addr:              fmt.Sprintf("%s:%d", a.cfg.App.Host, a.cfg.App.Port),
		Handler:           a.engine,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	a.logger.Info("starting step-up API",
		zap.String("env", a.cfg.App.Env),
		zap.String("address", srv.Addr),
	)

	serverErrCh := make(chan error, 1)
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			serverErrCh <- fmt.Errorf("run server: %w", err)
		}
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("shutdown server: %w", err)
		}
		return nil
	case err := <-serverErrCh:
		return err
	}
}
