package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"zenmode/internal/clients/chain"
	"zenmode/internal/clients/oracle"
	"zenmode/internal/config"
	"zenmode/internal/database"
	"zenmode/internal/engine"
	"zenmode/internal/events"
	"zenmode/internal/fulfillment"
	"zenmode/internal/locking"
	"zenmode/internal/modules/enrollment"
	"zenmode/internal/modules/orders"
	"zenmode/internal/scheduler"
	"zenmode/internal/server"
	"zenmode/internal/signing"
	"zenmode/pkg/logger"
)

func main() {
	// Load configuration first; the log level comes from it
	cfg, err := config.Load()
	if err != nil {
		bootLog := logger.New(logger.Config{Level: "info", Pretty: true})
		bootLog.Fatal().Err(err).Msg("Failed to load configuration")
	}

	log := logger.New(logger.Config{
		Level:  cfg.LogLevel,
		Pretty: cfg.DevMode,
	})
	log.Info().Msg("Starting Zen Mode")

	// Database
	db, err := database.New(cfg.DatabasePath())
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize database")
	}
	defer db.Close()

	if err := db.Migrate(); err != nil {
		log.Fatal().Err(err).Msg("Failed to run migrations")
	}

	// Shared infrastructure
	eventManager := events.NewManager(log)
	lockManager := locking.NewManager()

	// Repositories
	enrollmentRepo := enrollment.NewRepository(db.Conn(), log)
	orderRepo := orders.NewRepository(db.Conn(), log)

	// Order signing
	signingDomain := signing.NewDomain(cfg.ChainID, cfg.ProtocolAddress)
	signer, err := signing.NewLocalSigner(cfg.MakerSignerKey, signingDomain)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize order signer")
	}
	log.Info().Str("maker", signer.Address()).Msg("Order signer ready")

	// Oracle
	oracleClient := oracle.NewClient(cfg.OracleURL, cfg.OracleTimeout, log)

	// Monitoring engine
	builder := engine.NewBuilder(signer, cfg.FeeNumerator, cfg.FeeDenominator, cfg.OrderTTL, log)
	policy := engine.All{
		engine.IntervalPolicy{Window: cfg.PolicyWindow},
		engine.BalancePolicy{},
	}
	monitor := engine.NewMonitor(engine.MonitorConfig{
		Store:      enrollmentRepo,
		Orders:     orderRepo,
		Oracle:     oracleClient,
		Policy:     policy,
		Builder:    builder,
		Events:     eventManager,
		Interval:   cfg.TickInterval,
		OracleTime: cfg.OracleTimeout,
		Log:        log,
	})
	monitor.Start()
	defer monitor.Stop()

	// Fulfillment is optional: without an RPC endpoint the service still
	// monitors and builds orders, it just cannot execute them itself
	var fulfiller orders.Fulfiller
	if cfg.RPCURL != "" && cfg.TakerKey != "" {
		venue, err := chain.NewVenue(cfg.RPCURL, cfg.ChainID, cfg.ProtocolAddress, cfg.TakerKey, log)
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to initialize submission venue")
		}
		defer venue.Close()
		fulfiller = fulfillment.NewExecutor(orderRepo, venue, lockManager, eventManager, cfg.SubmitTimeout, log)
	} else {
		log.Warn().Msg("No RPC endpoint configured, fulfillment disabled")
	}

	// Background maintenance
	sched := scheduler.New(log)
	if err := registerJobs(sched, db, orderRepo, lockManager, eventManager, log); err != nil {
		log.Fatal().Err(err).Msg("Failed to register jobs")
	}
	sched.Start()
	defer sched.Stop()

	// HTTP server
	srv := server.New(server.Config{
		Port:               cfg.Port,
		Log:                log,
		DB:                 db,
		DevMode:            cfg.DevMode,
		Monitor:            monitor,
		EnrollmentRepo:     enrollmentRepo,
		EnrollmentHandlers: enrollment.NewHandler(enrollmentRepo, monitor, eventManager, log),
		OrderHandlers:      orders.NewHandler(orderRepo, fulfiller, log),
	})

	go func() {
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("Failed to start server")
		}
	}()
	log.Info().Int("port", cfg.Port).Msg("Server started successfully")

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("Shutting down...")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		log.Error().Err(err).Msg("Server forced to shutdown")
	}

	log.Info().Msg("Server stopped")
}

func registerJobs(
	sched *scheduler.Scheduler,
	db *database.DB,
	orderRepo *orders.Repository,
	locks *locking.Manager,
	eventManager *events.Manager,
	log zerolog.Logger,
) error {
	// Sweep expired orders every 10 minutes
	if err := sched.AddJob("0 */10 * * * *", scheduler.NewExpirySweepJob(orderRepo, locks, eventManager, log)); err != nil {
		return err
	}

	// Checkpoint the WAL hourly
	return sched.AddJob("@hourly", scheduler.NewWALCheckpointJob(db, locks, log))
}
