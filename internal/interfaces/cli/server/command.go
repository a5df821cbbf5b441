package server

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"

	"github.com/moneta-pay/moneta/internal/application/listener"
	"github.com/moneta-pay/moneta/internal/domain/shared/events"
	"github.com/moneta-pay/moneta/internal/infrastructure/cache"
	"github.com/moneta-pay/moneta/internal/infrastructure/config"
	"github.com/moneta-pay/moneta/internal/infrastructure/database"
	"github.com/moneta-pay/moneta/internal/infrastructure/migration"
	"github.com/moneta-pay/moneta/internal/infrastructure/repository"
	"github.com/moneta-pay/moneta/internal/infrastructure/walletrpc"
	httpRouter "github.com/moneta-pay/moneta/internal/interfaces/http"
	"github.com/moneta-pay/moneta/internal/shared/logger"
)

var (
	env         string
	autoMigrate bool
)

func NewCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "server",
		Short: "Start the payment listener",
		Long:  `Start the Moneta payment listener with HTTP callback endpoints.`,
		RunE:  run,
	}

	cmd.Flags().StringVarP(&env, "env", "e", "development", "Environment (development, test, production)")
	cmd.Flags().BoolVar(&autoMigrate, "auto-migrate", false, "Automatically run database migrations on startup (not recommended for production)")

	return cmd
}

func run(cmd *cobra.Command, args []string) error {
	if envVar := os.Getenv("ENV"); envVar != "" {
		env = envVar
	}

	cfg, err := config.Load(env)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	cfg.Server.Mode = mapEnvToGinMode(env)

	if err := logger.Init(&cfg.Logger); err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	defer logger.Sync()

	log := logger.NewLogger()

	log.Infow("starting listener",
		"environment", env,
		"currencies", cfg.Listener.Currencies(),
		"auto_migrate", autoMigrate,
	)

	gin.SetMode(cfg.Server.Mode)
	gin.DefaultWriter = io.Discard
	gin.DebugPrintRouteFunc = func(httpMethod, absolutePath, handlerName string, nuHandlers int) {
	}

	if err := database.Init(&cfg.Database); err != nil {
		return fmt.Errorf("failed to initialize database: %w", err)
	}
	defer database.Close()

	if autoMigrate {
		if env == "production" {
			log.Warnw("auto-migration is enabled in production environment - this is not recommended!")
		}
		migrationManager := migration.NewManager(env)
		if err := migrationManager.Migrate(database.Get(), migration.AutoMigrateModels()...); err != nil {
			return fmt.Errorf("auto-migration failed: %w", err)
		}
	}

	redisClient := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.GetAddr(),
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	defer redisClient.Close()

	dispatcher := events.NewInMemoryEventDispatcher(100, log)
	if err := dispatcher.Start(); err != nil {
		return fmt.Errorf("failed to start event dispatcher: %w", err)
	}
	defer func() {
		if err := dispatcher.Stop(); err != nil {
			log.Errorw("failed to stop event dispatcher", "error", err)
		}
	}()

	if err := listener.RegisterEventLogging(dispatcher, log); err != nil {
		return fmt.Errorf("failed to register event handlers: %w", err)
	}

	invoiceRepo := repository.NewInvoiceRepository(database.Get())
	paymentRepo := repository.NewPaymentRepository(database.Get())

	locks := cache.NewReconcileLock(redisClient,
		time.Duration(cfg.Listener.LockTTL)*time.Second,
		log.With("component", "reconcile_lock"))

	wallets := walletrpc.NewProvider(&cfg.Listener, log.With("component", "wallet_provider"))

	reconciler := listener.NewReconciler(wallets, invoiceRepo, paymentRepo, dispatcher, locks,
		log.With("component", "reconciler"))
	scanner := listener.NewScanner(reconciler, invoiceRepo, dispatcher, cfg.Listener.SignalBuffer,
		log.With("component", "scanner"))

	wallets.SetOnAvailabilityChange(func(currency string, available bool) {
		scanner.Notify(listener.Signal{
			Kind:      listener.SignalDaemonAvailability,
			Currency:  currency,
			Available: available,
		})
	})

	ctx := context.Background()
	scanner.Start(ctx)
	defer scanner.Stop()
	wallets.Start(ctx)
	defer wallets.Stop()

	router := httpRouter.NewRouter(scanner, wallets, log.With("component", "http"))
	router.SetupRoutes()

	srv := &http.Server{
		Addr:         cfg.Server.GetAddr(),
		Handler:      router.GetEngine(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.Infow("server starting",
			"address", cfg.Server.GetAddr(),
			"mode", cfg.Server.Mode,
		)

		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("failed to start server", "error", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Infow("shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Errorw("server forced to shutdown", "error", err)
		return err
	}

	log.Infow("server exited gracefully")
	return nil
}

func mapEnvToGinMode(environment string) string {
	switch environment {
	case "production", "prod":
		return "release"
	case "development", "dev":
		return "debug"
	case "test", "testing":
		return "test"
	case "release":
		return "release"
	default:
		return "debug"
	}
}
