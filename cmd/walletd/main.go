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

	"custodial-wallet-engine/config"
	"custodial-wallet-engine/internal/adapter/aggregator"
	"custodial-wallet-engine/internal/adapter/chain"
	httpHandler "custodial-wallet-engine/internal/adapter/http/handler"
	"custodial-wallet-engine/internal/adapter/lock"
	"custodial-wallet-engine/internal/adapter/metrics"
	"custodial-wallet-engine/internal/adapter/notify"
	pgStorage "custodial-wallet-engine/internal/adapter/storage/postgres"
	redisStorage "custodial-wallet-engine/internal/adapter/storage/redis"
	"custodial-wallet-engine/internal/adapter/tokeninfo"
	"custodial-wallet-engine/internal/core/ports"
	"custodial-wallet-engine/internal/service"
	"custodial-wallet-engine/migrations"
	"custodial-wallet-engine/pkg/logger"

	"github.com/joho/godotenv"
	goredis "github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

func main() {
	// A local .env is optional; real deployments set the environment directly.
	_ = godotenv.Load()

	cfg, err := config.Load(os.Getenv("CWE_CONFIG_FILE"))
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	log := logger.New(cfg.Log.Level, cfg.Log.Pretty)

	log.Info().
		Str("mode", cfg.Server.Mode).
		Int("port", cfg.Server.Port).
		Str("rpc", cfg.Solana.RPCURL).
		Msg("Starting custodial wallet engine")

	if cfg.Gateway.Secret == "" {
		log.Fatal().Msg("gateway.secret is required")
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// PostgreSQL
	pool, err := pgStorage.NewPool(ctx, cfg.Database, log)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to PostgreSQL")
	}
	defer pool.Close()
	log.Info().Msg("PostgreSQL connected")

	if cfg.Database.AutoMigrate {
		if err := pgStorage.Migrate(ctx, pool, migrations.Files, log); err != nil {
			log.Fatal().Err(err).Msg("Failed to apply migrations")
		}
	}

	// Redis
	rdb, err := redisStorage.NewClient(ctx, cfg.Redis, log)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to Redis")
	}
	defer rdb.Close()
	log.Info().Msg("Redis connected")

	// Repositories
	walletRepo := pgStorage.NewWalletRepo(pool)
	transferRepo := pgStorage.NewTransferRepo(pool)
	swapRepo := pgStorage.NewSwapRepo(pool)
	auditRepo := pgStorage.NewAuditRepo(pool)
	transactor := pgStorage.NewTransactor(pool)

	// Core services
	encSvc, err := service.NewAESEncryptionService(cfg.AES.Key)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize encryption service")
	}
	sigSvc := service.NewHMACSignatureService()
	custody := service.NewCustodyService(encSvc)
	auditSvc := service.NewAuditService(auditRepo, log)
	locker := newUserLocker(cfg.Lock, rdb, log)

	// External collaborators
	chainClient := chain.NewClient(cfg.Solana)
	jupiter := aggregator.NewJupiter(cfg.Jupiter)
	dextools := tokeninfo.NewDEXTools(cfg.DEXTools, redisStorage.NewTokenCache(rdb), log)

	notifier, err := notify.New(cfg.Notify, cfg.Gateway.Secret, sigSvc, log)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize notifier")
	}

	// Business services
	reconciler := service.NewReconciler(chainClient, walletRepo, log)
	walletSvc := service.NewWalletService(walletRepo, custody, reconciler, locker, auditSvc, log)
	feeSvc, err := service.NewFeeService(cfg.Fee.Tiers, walletRepo, locker, auditSvc, log)
	if err != nil {
		log.Fatal().Err(err).Msg("Invalid fee tiers")
	}
	transferSvc := service.NewTransferService(walletRepo, transferRepo, transactor, custody, chainClient, locker, auditSvc,
		service.TransferConfig{
			VerifyOnchainBalance: cfg.Transfer.VerifyOnchainBalance,
			SubmitTimeout:        cfg.Transfer.SubmitTimeout,
			Confirm:              service.ConfirmPolicy{Attempts: cfg.Solana.ConfirmAttempts, Interval: cfg.Solana.ConfirmInterval},
		}, log)
	swapSvc := service.NewSwapService(walletRepo, swapRepo, custody, chainClient, jupiter, notifier, auditSvc,
		service.SwapConfig{
			SubmitTimeout: cfg.Swap.SubmitTimeout,
			Confirm:       service.ConfirmPolicy{Attempts: cfg.Swap.ConfirmAttempts, Interval: cfg.Swap.ConfirmInterval},
		}, log)
	portfolioSvc := service.NewPortfolioService(dextools, log)
	dispatcher := service.NewDispatcher(walletSvc, feeSvc, transferSvc, swapSvc, portfolioSvc, notifier, log)

	// Load OpenAPI spec for Swagger UI
	if specBytes, err := os.ReadFile("docs/api/openapi.yaml"); err == nil {
		httpHandler.SetSwaggerSpec(specBytes)
	} else {
		log.Warn().Err(err).Msg("OpenAPI spec not found, Swagger UI will be unavailable")
	}

	deps := httpHandler.RouterDeps{
		Dispatcher:    dispatcher,
		SigSvc:        sigSvc,
		NonceStore:    redisStorage.NewNonceStore(rdb),
		GatewaySecret: cfg.Gateway.Secret,
		Gateway: httpHandler.GatewayLimits{
			TimestampWindow: cfg.Gateway.TimestampWindow,
			CommandsPerMin:  cfg.Gateway.CommandsPerMin,
		},
		RateLimitStore: redisStorage.NewRateLimitStore(rdb),
		AuditSvc:       auditSvc,
		HealthCheckers: []ports.HealthChecker{
			pgStorage.NewHealthCheck(pool),
			redisStorage.NewHealthCheck(rdb),
			chainClient,
		},
		Mode:   cfg.Server.Mode,
		Logger: log,
	}
	if cfg.Metrics.Enabled {
		deps.MetricsHandler = metrics.Handler()
		deps.MetricsPath = cfg.Metrics.Path
	}
	router := httpHandler.SetupRouter(deps)

	// Settle transfers left PENDING by an earlier crash or a slow confirmation.
	recoveryDone := make(chan struct{})
	go func() {
		defer close(recoveryDone)
		runRecovery(ctx, transferSvc, cfg.Transfer, log)
	}()

	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	srv := &http.Server{
		Addr:              addr,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		log.Info().Str("addr", addr).Msg("HTTP server listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("HTTP server failed")
		}
	}()

	<-ctx.Done()
	log.Info().Msg("Shutting down server...")

	// Withdrawals in flight run on a detached context bounded by the submit timeout.
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Transfer.SubmitTimeout+10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Server forced to shutdown")
	}
	<-recoveryDone

	if c, ok := notifier.(notify.Closer); ok {
		if err := c.Close(); err != nil {
			log.Error().Err(err).Msg("Notifier close failed")
		}
	}

	log.Info().Msg("Server exited")
}

func newUserLocker(cfg config.LockConfig, rdb goredis.UniversalClient, log zerolog.Logger) ports.UserLocker {
	switch cfg.Backend {
	case "redis":
		log.Info().Dur("ttl", cfg.TTL).Msg("Using Redis user lock")
		return redisStorage.NewUserLock(rdb, cfg.TTL, cfg.WaitTimeout, log)
	default:
		if cfg.Backend != "memory" {
			log.Warn().Str("backend", cfg.Backend).Msg("Unknown lock backend, using memory")
		}
		return lock.NewMemoryLock(cfg.WaitTimeout)
	}
}

func runRecovery(ctx context.Context, transfers *service.TransferServiceImpl, cfg config.TransferConfig, log zerolog.Logger) {
	if cfg.RecoverInterval <= 0 {
		return
	}
	ticker := time.NewTicker(cfg.RecoverInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			settled, err := transfers.RecoverPending(ctx, cfg.RecoverAfter)
			if err != nil {
				log.Error().Err(err).Msg("pending transfer recovery failed")
				continue
			}
			if settled > 0 {
				log.Info().Int("settled", settled).Msg("pending transfers settled")
			}
		}
	}
}
