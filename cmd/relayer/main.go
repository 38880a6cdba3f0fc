package main

import (
	"context"
	"math/big"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/vaultline/aa-relayer-go/internal/config"
	"github.com/vaultline/aa-relayer-go/internal/database"
	"github.com/vaultline/aa-relayer-go/internal/handler"
	"github.com/vaultline/aa-relayer-go/internal/jobs"
	"github.com/vaultline/aa-relayer-go/internal/model"
	"github.com/vaultline/aa-relayer-go/internal/redis"
	"github.com/vaultline/aa-relayer-go/internal/relay"
	"github.com/vaultline/aa-relayer-go/internal/repository"
	"github.com/vaultline/aa-relayer-go/internal/service"
	"github.com/vaultline/aa-relayer-go/internal/signer"
	"github.com/vaultline/aa-relayer-go/internal/sponsor"
	"github.com/vaultline/aa-relayer-go/internal/userop"
	"github.com/vaultline/aa-relayer-go/internal/worker"
)

func main() {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})

	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load config")
	}

	setLogLevel(cfg.LogLevel)

	isProduction := os.Getenv("APP_ENV") == "production"
	if err := cfg.Validate(isProduction); err != nil {
		log.Fatal().Err(err).Msg("invalid config")
	}

	db, err := database.Connect(cfg.DatabaseURL)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to database")
	}
	defer db.Close()

	ctx, cancel := context.WithTimeout(context.Background(), config.DBPingTimeout)
	if err := db.Ping(ctx); err != nil {
		log.Fatal().Err(err).Msg("failed to ping database")
	}
	cancel()
	log.Info().Msg("database connected")

	redisClient, err := redis.NewClient(cfg.RedisURL)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to redis")
	}
	defer redisClient.Close()
	log.Info().Msg("redis connected")

	ethClient, err := ethclient.Dial(cfg.RPCURL)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to rpc node")
	}
	defer ethClient.Close()

	bundler, err := relay.Dial(cfg.BundlerURL)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to bundler")
	}
	defer bundler.Close()
	log.Info().Str("entry_point", cfg.EntryPointAddress).Msg("chain access ready")

	holdRepo := repository.NewHoldRepository(db.DB)
	ledgerRepo := repository.NewLedgerRepository(db.DB)
	discrepancyRepo := repository.NewDiscrepancyRepository(db)
	sessionKeyRepo := repository.NewSessionKeyRepository(db.DB)

	var providers []sponsor.Provider
	for i, name := range cfg.SponsorOrder {
		apiKey := ""
		if i < len(cfg.SponsorAPIKeys) {
			apiKey = cfg.SponsorAPIKeys[i]
		}
		providers = append(providers, sponsor.NewRPCProvider(name, cfg.SponsorURLs[i], apiKey))
	}
	gateway := sponsor.NewGateway(providers...)

	chainID := big.NewInt(cfg.ChainID)
	txSigner, err := buildSigner(cfg, ethClient, bundler, gateway, chainID)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to build signer")
	}

	settlementClient := service.NewSettlementClient(cfg.SettlementURL, cfg.SettlementSecret)
	relayerService := service.NewRelayerService(txSigner, settlementClient)
	sessionKeyService := service.NewSessionKeyService(sessionKeyRepo, cfg.SessionKeySecret)

	captureContract := cfg.CaptureContract()
	buildTx := func(hold model.Hold) (signer.TxRequest, error) {
		data, err := userop.PackCapture(common.HexToHash(hold.ParamsHash), hold.Amount.BigInt())
		if err != nil {
			return signer.TxRequest{}, err
		}
		return signer.TxRequest{To: captureContract, Data: data}, nil
	}

	relayerWorker := worker.NewRelayerWorker(
		holdRepo,
		redis.NewLockStore(redisClient),
		relayerService,
		buildTx,
		cfg.WorkerPollInterval(),
		cfg.WorkerBatchSize,
		cfg.LockTTL(),
		cfg.SettleMaxAttempts,
	)
	relayerWorker.Start()
	defer relayerWorker.Stop()

	reconciler := jobs.NewLedgerReconciler(holdRepo, ledgerRepo, discrepancyRepo, cfg.ReconcilerInterval())
	reconciler.Start()
	defer reconciler.Stop()

	cleanupJob := jobs.NewCleanupJob(sessionKeyRepo, config.SessionKeySweepInterval)
	cleanupJob.Start()
	defer cleanupJob.Stop()

	healthHandler := handler.NewHealthHandler(db, redisClient, gateway)
	sessionKeyHandler := handler.NewSessionKeyHandler(sessionKeyService)

	r := chi.NewRouter()
	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(chimiddleware.Recoverer)
	r.Use(chimiddleware.Timeout(config.ServerRequestTimeout))
	r.Mount("/health", healthHandler.Routes())
	r.Mount("/internal/session-keys", sessionKeyHandler.Routes())

	server := &http.Server{
		Addr:         cfg.Addr(),
		Handler:      r,
		ReadTimeout:  config.ServerReadTimeout,
		WriteTimeout: 0,
		IdleTimeout:  config.ServerIdleTimeout,
	}

	go func() {
		log.Info().Str("addr", cfg.Addr()).Msg("starting server")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("server error")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info().Msg("shutting down")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), config.ServerShutdownTimeout)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("server forced to shutdown")
	}

	log.Info().Msg("stopped")
}

// buildSigner picks the transaction path: sponsored user operations through
// a smart account when SMART_ACCOUNT_ADDRESS is set, a direct EOA broadcast
// otherwise, or the custody backend.
func buildSigner(
	cfg *config.Config,
	ethClient *ethclient.Client,
	bundler *relay.Client,
	gateway *sponsor.Gateway,
	chainID *big.Int,
) (signer.Signer, error) {
	if cfg.SignerBackend == "custody" {
		return signer.NewCustodySigner(cfg.CustodyEndpoint), nil
	}
	if cfg.SmartAccountAddress != "" {
		return service.NewUserOpSender(
			bundler,
			gateway,
			cfg.RelayerPrivateKey,
			common.HexToAddress(cfg.SmartAccountAddress),
			cfg.EntryPoint(),
			chainID,
			cfg.ReceiptPollAttempts,
		)
	}
	return signer.NewLocalSigner(ethClient, cfg.RelayerPrivateKey, chainID)
}

func setLogLevel(level string) {
	switch level {
	case "debug":
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	case "info":
		zerolog.SetGlobalLevel(zerolog.InfoLevel)
	case "warn":
		zerolog.SetGlobalLevel(zerolog.WarnLevel)
	case "error":
		zerolog.SetGlobalLevel(zerolog.ErrorLevel)
	default:
		zerolog.SetGlobalLevel(zerolog.InfoLevel)
	}
}
