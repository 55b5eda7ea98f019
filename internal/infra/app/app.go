package app

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/quindo/portal-auth/internal/core/port"
	"github.com/quindo/portal-auth/internal/infra/config"
	"github.com/quindo/portal-auth/internal/infra/database"
	kafkainfra "github.com/quindo/portal-auth/internal/infra/kafka"
	"github.com/quindo/portal-auth/internal/infra/logger"
	redisinfra "github.com/quindo/portal-auth/internal/infra/redis"
	"github.com/quindo/portal-auth/internal/infra/security"
	"github.com/quindo/portal-auth/internal/infra/telemetry"
	postgresrepo "github.com/quindo/portal-auth/internal/repository/postgres"
	redisrepo "github.com/quindo/portal-auth/internal/repository/redis"
	"github.com/quindo/portal-auth/internal/usecase"
)

// Application wires configuration, storage, and the authentication services
// together. It is the single composition root; both the CLI and any future
// transport build on it.
type Application struct {
	Auth     *usecase.AuthService
	Sessions *usecase.SessionService
	Tokens   *usecase.TokenService
	Admin    *usecase.AdminService

	cfg      *config.AppConfig
	logger   *zap.Logger
	pool     *pgxpool.Pool
	redis    *redisinfra.Client
	producer *kafkainfra.Producer
	tracer   *telemetry.TracerProvider
}

func New(ctx context.Context, cfg *config.AppConfig) (*Application, error) {
	log, err := logger.New(cfg.App.Env)
	if err != nil {
		return nil, fmt.Errorf("init logger: %w", err)
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

	pool, err := database.NewPostgresPool(ctx, cfg.Postgres, log)
	if err != nil {
		return nil, fmt.Errorf("init postgres: %w", err)
	}

	redisClient, err := redisinfra.NewClient(cfg.Redis, log)
	if err != nil {
		pool.Close()
		return nil, fmt.Errorf("init redis: %w", err)
	}

	var tracer *telemetry.TracerProvider
	if cfg.Telemetry.OTLPEndpoint != "" {
		tracer, err = telemetry.NewTracerProvider(ctx, cfg.Telemetry, log)
		if err != nil {
			log.Warn("failed to init tracer provider, continuing without tracing", zap.Error(err))
		}
	}

	var (
		publisher port.AuditPublisher
		producer  *kafkainfra.Producer
	)
	if len(cfg.Kafka.Brokers) > 0 {
		producer, err = kafkainfra.NewProducer(cfg.Kafka, log)
		if err != nil {
			log.Warn("failed to init kafka producer, using stub publisher", zap.Error(err))
			publisher = kafkainfra.NewStubPublisher(log)
		} else {
			publisher = kafkainfra.NewAuditPublisher(producer, cfg.App, log)
			log.Info("kafka audit mirror initialized", zap.Strings("brokers", cfg.Kafka.Brokers))
		}
	} else {
		publisher = kafkainfra.NewStubPublisher(log)
	}

	metrics := telemetry.NewMetrics(nil)

	store := postgresrepo.NewStore(pool)
	reporting := postgresrepo.NewReportingRepository(pool)
	challenges := redisrepo.NewChallengeStore(redisClient.Client(), cfg.Redis.ChallengePrefix)

	tokenService := usecase.NewTokenService(store, cfg.Auth, log).WithMetrics(metrics)
	sessionService := usecase.NewSessionService(store, publisher, log).WithMetrics(metrics)
	if cfg.Auth.SessionTTL > 0 {
		sessionService.WithTTL(cfg.Auth.SessionTTL)
	}
	authService := usecase.NewAuthService(store, challenges, tokenService, sessionService, publisher, cfg.Auth, log).WithMetrics(metrics)
	adminService := usecase.NewAdminService(store, reporting, log)

	return &Application{
		Auth:     authService,
		Sessions: sessionService,
		Tokens:   tokenService,
		Admin:    adminService,
		cfg:      cfg,
		logger:   log,
		pool:     pool,
		redis:    redisClient,
		producer: producer,
		tracer:   tracer,
	}, nil
}

// Logger exposes the application logger.
func (a *Application) Logger() *zap.Logger {
	return a.logger
}

// ServeMetrics blocks serving the Prometheus scrape endpoint until ctx is
// cancelled.
func (a *Application) ServeMetrics(ctx context.Context) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", a.cfg.Telemetry.MetricsPort),
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- fmt.Errorf("run metrics server: %w", err)
		}
	}()

	a.logger.Info("metrics endpoint listening", zap.String("address", srv.Addr))

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	case err := <-errCh:
		return err
	}
}

// Close releases the pool, the Redis client, and the Kafka producer.
func (a *Application) Close() {
	if a.tracer != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		if err := a.tracer.Shutdown(shutdownCtx); err != nil {
			a.logger.Warn("tracer shutdown failed", zap.Error(err))
		}
		cancel()
	}
	if a.producer != nil {
		if err := a.producer.Close(); err != nil {
			a.logger.Warn("kafka producer close failed", zap.Error(err))
		}
	}
	if a.redis != nil {
		_ = a.redis.Close()
	}
	if a.pool != nil {
		a.pool.Close()
	}
	_ = a.logger.Sync()
}
