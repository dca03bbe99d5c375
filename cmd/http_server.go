package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/jmoiron/sqlx"
	"github.com/spf13/cobra"
	gormpostgres "gorm.io/driver/postgres"
	"gorm.io/gorm"

	"github.com/fanmate/platform/internal"
	"github.com/fanmate/platform/internal/application"
	applicationpostgres "github.com/fanmate/platform/internal/application/postgres"
	"github.com/fanmate/platform/internal/auth"
	"github.com/fanmate/platform/internal/core/events"
	"github.com/fanmate/platform/internal/gateway"
	"github.com/fanmate/platform/internal/intent"
	intentpostgres "github.com/fanmate/platform/internal/intent/postgres"
	"github.com/fanmate/platform/internal/party"
	partypostgres "github.com/fanmate/platform/internal/party/postgres"
	"github.com/fanmate/platform/internal/payment"
	"github.com/fanmate/platform/internal/settlement"
	settlementpostgres "github.com/fanmate/platform/internal/settlement/postgres"
	"github.com/fanmate/platform/internal/transport/rest"
	"github.com/fanmate/platform/pkg/logger"
)

var httpServerCmd = &cobra.Command{
	Use:   "server",
	Short: "Start HTTP server",
	Long:  `Start the HTTP server to handle payment API requests`,
	Run: func(cmd *cobra.Command, args []string) {
		startHTTPServer()
	},
}

type Dependencies struct {
	Config *internal.Config
	DB     *sqlx.DB
	GormDB *gorm.DB
	Router *chi.Mux
	Logger *slog.Logger
}

func startHTTPServer() {
	deps, err := initializeDependencies()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize dependencies: %v\n", err)
		os.Exit(1)
	}

	addr := fmt.Sprintf(":%d", deps.Config.Server.Port)
	deps.Logger.Info("starting HTTP server", "address", addr)

	server := &http.Server{
		Addr:              addr,
		Handler:           deps.Router,
		ReadHeaderTimeout: deps.Config.Server.ReadHeaderTimeout,
		ReadTimeout:       deps.Config.Server.ReadTimeout,
		WriteTimeout:      deps.Config.Server.WriteTimeout,
		IdleTimeout:       deps.Config.Server.IdleTimeout,
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	serverErrChan := make(chan error, 1)
	go func() {
		serverErrChan <- server.ListenAndServe()
	}()

	select {
	case sig := <-sigChan:
		deps.Logger.Info("received signal, shutting down", "signal", sig.String())
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := server.Shutdown(ctx); err != nil {
			deps.Logger.Error("server shutdown error", "error", err)
		}
		if err := deps.DB.Close(); err != nil {
			deps.Logger.Error("database close error", "error", err)
		}
	case err := <-serverErrChan:
		if err != nil && err != http.ErrServerClosed {
			deps.Logger.Error("server failed to start", "error", err)
			os.Exit(1)
		}
	}

	deps.Logger.Info("server stopped")
}

func initializeDependencies() (*Dependencies, error) {
	config, err := loadConfig(".")
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	logger.Init(os.Getenv("APP_ENV"))
	log := logger.L()

	db, err := initDB(config.Database)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}

	gormDB, err := initGorm(db)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize orm: %w", err)
	}

	router := chi.NewRouter()
	deps := &Dependencies{
		Config: config,
		DB:     db,
		GormDB: gormDB,
		Router: router,
		Logger: log,
	}

	wirePaymentCore(deps)
	return deps, nil
}

// wirePaymentCore builds the payment service graph and registers its routes.
func wirePaymentCore(deps *Dependencies) {
	log := deps.Logger
	config := deps.Config

	eventBus := events.NewEventBus(log)

	partyRepo := partypostgres.NewPartyRepository(deps.GormDB)
	intentRepo := intentpostgres.NewIntentRepository(deps.GormDB)
	applicationRepo := applicationpostgres.NewApplicationRepository(deps.GormDB)
	settlementRepo := settlementpostgres.NewSettlementRepository(deps.GormDB)

	pricing := party.NewPricingService(partyRepo, config.Payment.DepositAmount, log)

	gatewayClient := gateway.NewClient(gateway.Config{
		BaseURL:        config.Gateway.BaseURL,
		SecretKey:      config.Gateway.SecretKey,
		ConfirmTimeout: config.Gateway.ConfirmTimeout,
	}, log)

	intentEngine := intent.NewService(intentRepo, applicationRepo, gatewayClient, pricing, eventBus, config.Payment, log)
	materializer := application.NewService(applicationRepo, log)
	payoutRequester := settlement.NewLoggingPayoutRequester(log)
	settlementLinker := settlement.NewService(settlementRepo, partyRepo, payoutRequester, eventBus, log)

	paymentService := payment.NewService(intentEngine, gatewayClient, materializer, settlementLinker, eventBus, log)
	paymentHandler := payment.NewHandler(paymentService, log)

	tokenValidator := auth.NewTokenValidator(config.Security.JWTSigningKey)
	authMiddleware := auth.NewMiddleware(tokenValidator, log)

	rest.RegisterAllRoutes(
		deps.Router,
		deps.DB.DB,
		authMiddleware,
		paymentHandler,
		config.Observability.Metrics.Enabled,
		config.Observability.Metrics.Path,
		log,
	)
}

// initDB initializes the database connection
func initDB(cfg internal.DatabaseConfig) (*sqlx.DB, error) {
	const driver = "pgx"

	dbConn, err := sqlx.Connect(driver, cfg.Source)
	if err != nil {
		return nil, fmt.Errorf("failed to open db connection: %w", err)
	}

	dbConn.SetMaxIdleConns(cfg.MaxIdleConns)
	dbConn.SetMaxOpenConns(cfg.MaxOpenConns)
	dbConn.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	dbConn.SetConnMaxIdleTime(cfg.ConnMaxIdleTime)

	if err := dbConn.Ping(); err != nil {
		_ = dbConn.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return dbConn, nil
}

// initGorm wraps the existing connection pool. TranslateError is required:
// the materializer relies on unique violations surfacing as
// gorm.ErrDuplicatedKey.
func initGorm(db *sqlx.DB) (*gorm.DB, error) {
	return gorm.Open(gormpostgres.New(gormpostgres.Config{Conn: db.DB}), &gorm.Config{
		TranslateError: true,
	})
}
