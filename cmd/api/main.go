package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"savings-lockbox/config"
	httpHandler "savings-lockbox/internal/adapter/http/handler"
	"savings-lockbox/internal/adapter/metrics"
	memStorage "savings-lockbox/internal/adapter/storage/memory"
	pgStorage "savings-lockbox/internal/adapter/storage/postgres"
	redisStorage "savings-lockbox/internal/adapter/storage/redis"
	"savings-lockbox/internal/core/domain"
	"savings-lockbox/internal/core/ports"
	"savings-lockbox/internal/core/vault"
	"savings-lockbox/internal/service"
	"savings-lockbox/pkg/logger"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
)

// storage bundles the repositories of one storage driver.
type storage struct {
	lockboxes   ports.LockBoxRepository
	ledger      ports.LedgerRepository
	movements   ports.MovementRepository
	idempotency ports.IdempotencyRepository
	audit       ports.AuditRepository
	transactor  ports.DBTransactor
	health      ports.HealthChecker
	close       func()
}

func main() {
	cfg, err := config.Load(os.Getenv("LBX_CONFIG"))
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	log := logger.New(cfg.Log.Level, cfg.Log.Pretty)

	if err := run(cfg, log); err != nil {
		log.Fatal().Err(err).Msg("LockBox API stopped with error")
	}
	log.Info().Msg("Server exited")
}

func run(cfg *config.Config, log zerolog.Logger) error {
	log.Info().
		Str("mode", cfg.Server.Mode).
		Int("port", cfg.Server.Port).
		Str("storage", cfg.Storage.Driver).
		Msg("Starting LockBox API")

	if cfg.JWT.Secret == "" {
		return errors.New("jwt.secret must be set (LBX_JWT_SECRET)")
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	store, err := openStorage(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer store.close()

	rdb, err := redisStorage.NewClient(ctx, cfg.Redis, log)
	if err != nil {
		return fmt.Errorf("connect to redis: %w", err)
	}
	defer rdb.Close()
	log.Info().Msg("Redis connected")

	programID, err := cfg.Vault.ProgramIDBytes()
	if err != nil {
		return err
	}
	program := vault.NewProgram(domain.Address(programID))

	var m *metrics.Metrics
	if cfg.Metrics.Enabled {
		m = metrics.New(nil)
	}

	sigSvc := service.NewSignatureService()
	tokenSvc := service.NewJWTTokenService(cfg.JWT.Secret, cfg.JWT.Expiry, cfg.JWT.Issuer)
	auditSvc := service.NewAuditService(store.audit, logger.Component(log, "audit"))

	var notifier ports.NotificationService
	if cfg.Vault.WebhookURL != "" {
		notifier = service.NewWebhookService(
			cfg.Vault.WebhookURL,
			cfg.Vault.WebhookSecret,
			sigSvc,
			&http.Client{Timeout: 10 * time.Second},
			logger.Component(log, "webhook"),
		)
	}

	opts := service.LockBoxOptions{
		Policy:         domain.EmergencyPolicy(cfg.Vault.EmergencyPolicy),
		IdempotencyTTL: cfg.Vault.IdempotencyTTL,
		Notifier:       notifier,
	}
	if m != nil {
		opts.Metrics = m
	}
	lockboxSvc := service.NewLockBoxService(
		program,
		store.lockboxes,
		store.ledger,
		store.movements,
		store.idempotency,
		redisStorage.NewIdempotencyCache(rdb),
		store.transactor,
		opts,
		logger.Component(log, "lockbox"),
	)

	authSvc := service.NewAuthService(
		sigSvc,
		redisStorage.NewNonceStore(rdb),
		tokenSvc,
		auditSvc,
		cfg.Auth.MaxClockDrift,
		cfg.Auth.NonceTTL,
		logger.Component(log, "auth"),
	)

	var faucetSvc ports.FaucetService
	if cfg.Vault.FaucetEnabled {
		faucetSvc = service.NewFaucetService(store.ledger, true, cfg.Vault.FaucetMaxAmount, logger.Component(log, "faucet"))
		log.Warn().Uint64("max_amount", cfg.Vault.FaucetMaxAmount).Msg("Faucet enabled, do not run this in production")
	}

	if specBytes, err := os.ReadFile("docs/api/openapi.yaml"); err == nil {
		httpHandler.SetSwaggerSpec(specBytes)
		log.Info().Msg("OpenAPI spec loaded for Swagger UI at /swagger")
	} else {
		log.Warn().Err(err).Msg("OpenAPI spec not found, Swagger UI will be unavailable")
	}

	deps := httpHandler.RouterDeps{
		LockBoxSvc:     lockboxSvc,
		AuthSvc:        authSvc,
		FaucetSvc:      faucetSvc,
		TokenSvc:       tokenSvc,
		RateLimitStore: redisStorage.NewRateLimitStore(rdb),
		HealthCheckers: []ports.HealthChecker{store.health, redisStorage.NewHealthCheck(rdb)},
		AuditSvc:       auditSvc,
		Logger:         log,
	}
	if m != nil {
		deps.Metrics = m
	}
	router := httpHandler.SetupRouter(deps)
	if m != nil {
		router.GET(cfg.Metrics.Path, gin.WrapH(promhttp.Handler()))
	}

	srv := &http.Server{
		Addr:              cfg.Server.Addr(),
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info().Str("addr", srv.Addr).Msg("HTTP server listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		log.Info().Msg("Shutting down server...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			log.Error().Err(err).Msg("Server forced to shutdown")
			return err
		}
		return nil
	})

	return g.Wait()
}

func openStorage(ctx context.Context, cfg *config.Config, log zerolog.Logger) (*storage, error) {
	switch cfg.Storage.Driver {
	case "memory":
		mem := memStorage.NewStore()
		log.Warn().Msg("Using in-memory storage, state is lost on restart")
		return &storage{
			lockboxes:   memStorage.NewLockBoxRepo(mem),
			ledger:      memStorage.NewLedgerRepo(mem),
			movements:   memStorage.NewMovementRepo(mem),
			idempotency: memStorage.NewIdempotencyRepo(mem),
			audit:       memStorage.NewAuditRepo(mem),
			transactor:  memStorage.NewTransactor(mem),
			health:      memStorage.HealthCheck{},
			close:       func() {},
		}, nil
	default:
		pool, err := pgStorage.NewPool(ctx, cfg.Database, log)
		if err != nil {
			return nil, fmt.Errorf("connect to postgres: %w", err)
		}
		log.Info().Msg("PostgreSQL connected")

		if cfg.Database.AutoMigrate {
			if err := pgStorage.EnsureSchema(ctx, pool); err != nil {
				pool.Close()
				return nil, fmt.Errorf("apply schema: %w", err)
			}
			log.Info().Msg("PostgreSQL schema applied")
		}

		return &storage{
			lockboxes:   pgStorage.NewLockBoxRepo(pool),
			ledger:      pgStorage.NewLedgerRepo(pool),
			movements:   pgStorage.NewMovementRepo(pool),
			idempotency: pgStorage.NewIdempotencyRepo(pool),
			audit:       pgStorage.NewAuditRepo(pool),
			transactor:  pgStorage.NewTransactor(pool),
			health:      pgStorage.NewHealthCheck(pool),
			close:       pool.Close,
		}, nil
	}
}
