package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	httpAdapter "github.com/sovrhq/clearing/internal/adapter/http"
	"github.com/sovrhq/clearing/internal/adapter/http/handler"
	ledgerauth "github.com/sovrhq/clearing/internal/adapter/ledgerauth/postgres"
	postgresRepo "github.com/sovrhq/clearing/internal/adapter/repository/postgres"
	redisRepo "github.com/sovrhq/clearing/internal/adapter/repository/redis"
	"github.com/sovrhq/clearing/internal/domain"
	"github.com/sovrhq/clearing/internal/infrastructure/config"
	"github.com/sovrhq/clearing/internal/infrastructure/logger"
	"github.com/sovrhq/clearing/internal/infrastructure/metrics"
	"github.com/sovrhq/clearing/internal/infrastructure/mirrorworker"
	"github.com/sovrhq/clearing/internal/infrastructure/postgres"
	"github.com/sovrhq/clearing/internal/infrastructure/redis"
	"github.com/sovrhq/clearing/internal/usecase"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load configuration")
	}

	// Setup logger
	appLogger := logger.New(logger.Config{Level: cfg.LogLevel, Format: cfg.LogFormat})
	log.Logger = appLogger

	// Run migrations
	if err := postgres.RunMigrations(cfg.DatabaseURL, cfg.MigrationsPath); err != nil {
		log.Fatal().Err(err).Msg("failed to run migrations")
	}

	ctx := context.Background()

	// Connect to PostgreSQL
	pool, err := postgres.NewPool(ctx, cfg.DatabaseURL, cfg.DatabaseMaxConns, cfg.DatabaseMinConns, cfg.DatabaseTimeout)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to postgres")
	}
	defer pool.Close()
	log.Info().Msg("connected to postgres")

	// Connect to Redis
	redisClient, err := redis.NewClient(ctx, cfg.RedisURL)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to redis")
	}
	defer redisClient.Close()
	log.Info().Msg("connected to redis")

	m := metrics.New()

	// Initialize repositories
	txManager := postgresRepo.NewTxManager(pool)
	accountRepo := postgresRepo.NewAccountRepository(pool)
	finalityRepo := postgresRepo.NewFinalityRepository(pool, cfg.ClaimStaleAfter)
	narrativeRepo := postgresRepo.NewNarrativeRepository(pool)
	outboxRepo := postgresRepo.NewOutboxRepository(pool)
	resultCache := redisRepo.NewCache(redisClient)
	reservations := redisRepo.NewReservationManager(redisClient)
	idGen := postgresRepo.NewULIDGenerator()

	// The deterministic ledger authority. Every commit decision lives
	// behind this boundary; the engine never mutates balances itself.
	authority := ledgerauth.NewAuthority(pool, idGen, appLogger)

	// Initialize use cases
	validator := usecase.NewEntryValidator(accountRepo, finalityRepo, authority, usecase.ValidationLimits{
		MaxLineAmount:    cfg.MaxLineAmount,
		CurrencyExponent: cfg.CurrencyExponent,
		MaxDecimalPlaces: cfg.MaxDecimalPlaces,
		MaxBatchEntries:  cfg.MaxBatchEntries,
	})
	protocol := usecase.NewClearingProtocol(
		validator, finalityRepo, authority, txManager, outboxRepo,
		resultCache, idGen, m, appLogger, cfg.CurrencyExponent,
	).
		WithTimeouts(cfg.AuthorityTimeout, cfg.InFlightWait).
		WithResultCacheTTL(cfg.IdempotencyCacheTTL)
	protocol.Subscribe(&honorSignal{logger: appLogger})

	batchManager := usecase.NewBatchManager(protocol, validator, reservations, idGen, m, appLogger).
		WithReservationTTL(cfg.ReservationTTL)
	accountService := usecase.NewAccountService(accountRepo, authority, authority, idGen, m)
	narrativeService := usecase.NewNarrativeService(narrativeRepo, finalityRepo)
	consistencyChecker := usecase.NewConsistencyChecker(finalityRepo, authority, narrativeRepo, outboxRepo)

	// Initialize handlers
	clearingHandler := handler.NewClearingHandler(protocol, batchManager)
	accountHandler := handler.NewAccountHandler(accountService)
	narrativeHandler := handler.NewNarrativeHandler(narrativeService)
	consistencyHandler := handler.NewConsistencyHandler(consistencyChecker)
	healthHandler := handler.NewHealthHandler(pool, redisClient)

	// Mirror worker
	worker := mirrorworker.New(mirrorworker.Config{
		OutboxRepo: outboxRepo,
		Mirror:     narrativeRepo,
		Metrics:    m,
		Logger:     appLogger,
		BatchSize:  cfg.MirrorWorkerBatchSize,
		Interval:   cfg.MirrorWorkerInterval,
		MaxElapsed: cfg.MirrorPublishMaxElapsed,
	})

	// Create router
	router := httpAdapter.NewRouter(httpAdapter.RouterConfig{
		ClearingHandler:    clearingHandler,
		AccountHandler:     accountHandler,
		NarrativeHandler:   narrativeHandler,
		ConsistencyHandler: consistencyHandler,
		HealthHandler:      healthHandler,
		Logger:             appLogger,
		Metrics:            m,
		RateLimitRPS:       cfg.RateLimitRPS,
		RateLimitBurst:     cfg.RateLimitBurst,
		CORSAllowedOrigins: cfg.CORSAllowedOrigins,
		MetricsEnabled:     cfg.MetricsEnabled,
	})

	// Create server
	server := &http.Server{
		Addr:         fmt.Sprintf(":%s", cfg.HTTPPort),
		Handler:      router,
		ReadTimeout:  cfg.HTTPReadTimeout,
		WriteTimeout: cfg.HTTPWriteTimeout,
		IdleTimeout:  cfg.HTTPIdleTimeout,
	}

	runCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	group, groupCtx := errgroup.WithContext(runCtx)

	group.Go(func() error {
		log.Info().Str("port", cfg.HTTPPort).Msg("starting server")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server failed: %w", err)
		}
		return nil
	})

	group.Go(func() error {
		log.Info().Dur("interval", cfg.MirrorWorkerInterval).Msg("starting mirror worker")
		if err := worker.Start(groupCtx); err != nil && !errors.Is(err, context.Canceled) {
			return fmt.Errorf("mirror worker failed: %w", err)
		}
		return nil
	})

	group.Go(func() error {
		<-groupCtx.Done()
		log.Info().Msg("shutting down server...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.HTTPShutdownTimeout)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	})

	if err := group.Wait(); err != nil {
		log.Fatal().Err(err).Msg("shutdown with error")
	}

	log.Info().Msg("server stopped")
}

// honorSignal logs the post-finality moment downstream fulfillment keys on.
// Goods and services move only after this line appears.
type honorSignal struct {
	logger zerolog.Logger
}

func (h *honorSignal) OnClearingFinalized(ctx context.Context, entry *domain.Entry, result *domain.ClearingResult) {
	h.logger.Info().
		Str("intent_id", result.IntentID).
		Str("entry_id", result.EntryID).
		Str("ledger_transfer_id", result.LedgerTransferID).
		Uint64("amount", entry.DebitTotal()).
		Msg("clearing finalized, honoring unblocked")
}

var _ usecase.FinalityListener = (*honorSignal)(nil)
