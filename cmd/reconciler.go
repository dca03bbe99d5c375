package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	applicationpostgres "github.com/fanmate/platform/internal/application/postgres"
	"github.com/fanmate/platform/internal/core/events"
	"github.com/fanmate/platform/internal/gateway"
	"github.com/fanmate/platform/internal/intent"
	intentpostgres "github.com/fanmate/platform/internal/intent/postgres"
	"github.com/fanmate/platform/internal/party"
	partypostgres "github.com/fanmate/platform/internal/party/postgres"
	"github.com/fanmate/platform/pkg/logger"
)

var (
	reconcilerCmd = &cobra.Command{
		Use:   "reconciler",
		Short: "Drain stuck payment intents",
		Long: `Scan for intents stalled in CONFIRMED, CANCEL_REQUESTED or CANCEL_FAILED
and finish them: heal to APPLICATION_CREATED when the application exists,
otherwise refund through the gateway.`,
		RunE: runReconciler,
	}
	reconcileOnce     bool
	reconcileInterval time.Duration
	reconcileBatch    int
)

func init() {
	reconcilerCmd.Flags().BoolVar(&reconcileOnce, "once", false, "run a single sweep and exit")
	reconcilerCmd.Flags().DurationVar(&reconcileInterval, "interval", time.Minute, "time between sweeps")
	reconcilerCmd.Flags().IntVar(&reconcileBatch, "batch", 100, "max intents per sweep")
}

func runReconciler(_ *cobra.Command, _ []string) error {
	config, err := loadConfig(".")
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	logger.Init(os.Getenv("APP_ENV"))
	log := logger.L()

	db, err := initDB(config.Database)
	if err != nil {
		return fmt.Errorf("failed to initialize database: %w", err)
	}
	defer db.Close()

	gormDB, err := initGorm(db)
	if err != nil {
		return fmt.Errorf("failed to initialize orm: %w", err)
	}

	intentRepo := intentpostgres.NewIntentRepository(gormDB)
	applicationRepo := applicationpostgres.NewApplicationRepository(gormDB)
	partyRepo := partypostgres.NewPartyRepository(gormDB)
	pricing := party.NewPricingService(partyRepo, config.Payment.DepositAmount, log)

	gatewayClient := gateway.NewClient(gateway.Config{
		BaseURL:        config.Gateway.BaseURL,
		SecretKey:      config.Gateway.SecretKey,
		ConfirmTimeout: config.Gateway.ConfirmTimeout,
	}, log)

	engine := intent.NewService(intentRepo, applicationRepo, gatewayClient, pricing,
		events.NewEventBus(log), config.Payment, log)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigChan
		log.Info("reconciler shutting down")
		cancel()
	}()

	sweep := func() {
		if _, err := engine.ReconcileStuckIntents(ctx, reconcileBatch); err != nil {
			log.Error("reconciliation sweep failed", "error", err)
		}
	}

	sweep()
	if reconcileOnce {
		return nil
	}

	ticker := time.NewTicker(reconcileInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			sweep()
		}
	}
}
