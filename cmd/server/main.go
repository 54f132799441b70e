package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"google.golang.org/grpc"

	grpcServer "github.com/iho/microloan/internal/adapter/grpc/server"
	httpAdapter "github.com/iho/microloan/internal/adapter/http"
	"github.com/iho/microloan/internal/adapter/http/handler"
	"github.com/iho/microloan/internal/adapter/http/middleware"
	postgresRepo "github.com/iho/microloan/internal/adapter/repository/postgres"
	redisRepo "github.com/iho/microloan/internal/adapter/repository/redis"
	"github.com/iho/microloan/internal/domain"
	"github.com/iho/microloan/internal/infrastructure/auth"
	"github.com/iho/microloan/internal/infrastructure/config"
	"github.com/iho/microloan/internal/infrastructure/eventpublisher"
	"github.com/iho/microloan/internal/infrastructure/latefee"
	"github.com/iho/microloan/internal/infrastructure/logger"
	"github.com/iho/microloan/internal/infrastructure/metrics"
	"github.com/iho/microloan/internal/infrastructure/postgres"
	"github.com/iho/microloan/internal/infrastructure/redis"
	"github.com/iho/microloan/internal/infrastructure/scheduler"
	"github.com/iho/microloan/internal/usecase"
)

const rateLimitIdle = 30 * time.Minute

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	log := logger.New(logger.Config{Level: cfg.LogLevel, Format: cfg.LogFormat})

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, log); err != nil {
		log.Fatal().Err(err).Msg("server failed")
	}
	log.Info().Msg("server stopped")
}

func run(ctx context.Context, cfg *config.Config, log zerolog.Logger) error {
	if cfg.AutoMigrate {
		if err := postgres.NewMigrator(cfg.DatabaseURL, cfg.MigrationsPath, log).Up(); err != nil {
			return fmt.Errorf("migrate: %w", err)
		}
	}

	pool, err := postgres.NewPoolWithConfig(ctx, postgres.PoolConfig{
		DatabaseURL:    cfg.DatabaseURL,
		MaxConns:       cfg.DatabaseMaxConns,
		MinConns:       cfg.DatabaseMinConns,
		ConnectTimeout: cfg.DatabaseTimeout,
	})
	if err != nil {
		return fmt.Errorf("connect to postgres: %w", err)
	}
	defer pool.Close()
	log.Info().Msg("connected to postgres")

	redisClient, err := redis.NewClient(ctx, redis.Options{
		URL:         cfg.RedisURL,
		PoolSize:    cfg.RedisPoolSize,
		DialTimeout: cfg.RedisDialTimeout,
	})
	if err != nil {
		return fmt.Errorf("connect to redis: %w", err)
	}
	defer redisClient.Close()
	log.Info().Msg("connected to redis")

	m := metrics.New()
	clock := domain.SystemClock{}
	ledger := domain.NewLedger(clock, latefee.FromConfig(cfg.LateFee))

	// Repositories
	txManager := postgresRepo.NewTxManager(pool)
	loanRepo := postgresRepo.NewLoanRepository(pool)
	groupRepo := postgresRepo.NewLoanGroupRepository(pool)
	proofRepo := postgresRepo.NewProofRepository(pool)
	outboxRepo := postgresRepo.NewOutboxRepository(pool)
	auditRepo := postgresRepo.NewAuditRepository(pool)
	idGen := postgresRepo.NewULIDGenerator(clock)
	retrier := postgresRepo.NewRetrier(postgresRepo.RetrierConfig{MaxRetries: cfg.RetryMaxRetries}, log)
	locker := redisRepo.NewLoanLocker(redisClient)
	idempotencyStore := redisRepo.NewIdempotencyStore(redisClient)

	// Use cases
	loanUC := usecase.NewLoanUseCase(txManager, loanRepo, groupRepo, outboxRepo, auditRepo, idGen, ledger, m)
	paymentUC := usecase.NewPaymentUseCase(txManager, loanRepo, proofRepo, outboxRepo, auditRepo, locker, retrier, idGen, ledger, m, cfg.LoanLockTTL)
	proofUC := usecase.NewProofUseCase(proofRepo, loanRepo, idGen, clock)
	overdueUC := usecase.NewOverdueUseCase(txManager, loanRepo, outboxRepo, locker, idGen, ledger, m, log)
	reconUC := usecase.NewReconciliationUseCase(loanRepo, clock)

	rateLimiter := middleware.NewRateLimiter(cfg.RateLimitRPS, cfg.RateLimitBurst, m)

	routerCfg := httpAdapter.RouterConfig{
		LoanHandler:        handler.NewLoanHandler(loanUC),
		PaymentHandler:     handler.NewPaymentHandler(paymentUC),
		ProofHandler:       handler.NewProofHandler(proofUC),
		MaintenanceHandler: handler.NewMaintenanceHandler(overdueUC, reconUC),
		HealthHandler: handler.NewHealthHandler(
			pool,
			handler.PingFunc(redis.Healthcheck(redisClient)),
		),
		IdempotencyStore: idempotencyStore,
		RateLimiter:      rateLimiter,
		Metrics:          m,
		Logger:           log,
	}
	if cfg.AuthEnabled {
		if cfg.JWTSecret == "" {
			return errors.New("AUTH_ENABLED requires JWT_SECRET")
		}
		routerCfg.Authenticator = auth.NewJWTManager(cfg.JWTSecret, cfg.JWTExpiration)
	}

	var rpc *grpc.Server
	if cfg.GRPCEnabled {
		rpc = grpcServer.NewServer(grpcServer.NewLoanServer(loanUC, paymentUC, reconUC), grpcServer.Config{
			Authenticator:    routerCfg.Authenticator,
			IdempotencyStore: idempotencyStore,
			Logger:           log,
		})
	}

	publisher, closePublisher := newPublisher(cfg, log)
	defer closePublisher()

	outbox := eventpublisher.NewEventPublisher(eventpublisher.Config{
		OutboxRepo: outboxRepo,
		Publisher:  publisher,
		Metrics:    m,
		Logger:     log,
		Clock:      clock,
		BatchSize:  cfg.OutboxBatchSize,
		Interval:   cfg.OutboxPollInterval,
		Retention:  cfg.OutboxRetention,
	})

	sched, err := newScheduler(cfg, log, overdueUC, rateLimiter)
	if err != nil {
		return err
	}

	server := &http.Server{
		Addr:         ":" + cfg.HTTPPort,
		Handler:      httpAdapter.NewRouter(routerCfg),
		ReadTimeout:  cfg.HTTPReadTimeout,
		WriteTimeout: cfg.HTTPWriteTimeout,
		IdleTimeout:  cfg.HTTPIdleTimeout,
	}

	workerCtx, cancelWorkers := context.WithCancel(context.Background())
	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		_ = outbox.Start(workerCtx)
	}()
	go func() {
		defer wg.Done()
		_ = sched.Start(workerCtx)
	}()

	serveErr := make(chan error, 1)
	go func() {
		log.Info().Str("port", cfg.HTTPPort).Msg("starting server")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	if rpc != nil {
		lis, err := net.Listen("tcp", ":"+cfg.GRPCPort)
		if err != nil {
			cancelWorkers()
			wg.Wait()
			_ = server.Close()
			return fmt.Errorf("listen grpc: %w", err)
		}
		go func() {
			log.Info().Str("port", cfg.GRPCPort).Msg("starting grpc server")
			if err := rpc.Serve(lis); err != nil {
				log.Error().Err(err).Msg("grpc server stopped")
			}
		}()
	}

	var runErr error
	select {
	case <-ctx.Done():
		log.Info().Msg("shutting down server...")
	case runErr = <-serveErr:
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.HTTPShutdownTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("server forced to shutdown")
	}
	if rpc != nil {
		rpc.GracefulStop()
	}

	cancelWorkers()
	wg.Wait()

	return runErr
}

// newPublisher picks Kafka when brokers are configured and falls back to
// logging events otherwise.
func newPublisher(cfg *config.Config, log zerolog.Logger) (eventpublisher.Publisher, func()) {
	if len(cfg.KafkaBrokers) == 0 {
		log.Warn().Msg("KAFKA_BROKERS not set, outbox events will only be logged")
		return eventpublisher.NewLogPublisher(log), func() {}
	}

	kp := eventpublisher.NewKafkaPublisher(cfg.KafkaBrokers, cfg.KafkaTopic)
	return kp, func() {
		if err := kp.Close(); err != nil {
			log.Warn().Err(err).Msg("failed to close kafka writer")
		}
	}
}

func newScheduler(cfg *config.Config, log zerolog.Logger, overdueUC *usecase.OverdueUseCase, rl *middleware.RateLimiter) (*scheduler.Scheduler, error) {
	sched := scheduler.New(log, time.Hour)

	if cfg.SweepEnabled {
		err := sched.Add("overdue-sweep", cfg.SweepSchedule, func(ctx context.Context) error {
			_, err := overdueUC.RefreshAll(ctx)
			return err
		})
		if err != nil {
			return nil, err
		}
	}

	err := sched.Add("rate-limit-cleanup", "@every 10m", func(context.Context) error {
		if n := rl.CleanupLimiters(rateLimitIdle); n > 0 {
			log.Debug().Int("removed", n).Msg("rate limiters cleaned up")
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	return sched, nil
}
