package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/joho/godotenv"

	"github.com/skillstore/jobengine/internal/config"
	"github.com/skillstore/jobengine/internal/jobs"
	"github.com/skillstore/jobengine/internal/migrations"
	"github.com/skillstore/jobengine/internal/outbox"
	"github.com/skillstore/jobengine/internal/schedules"
	"github.com/skillstore/jobengine/internal/worker"
	"github.com/skillstore/jobengine/shared/logger"
	"github.com/skillstore/jobengine/shared/postgresql"
	"github.com/skillstore/jobengine/shared/rabbitmq"
)

func main() {
	if err := run(); err != nil {
		log.Fatal(err)
	}
}

func run() error {
	// Load .env file if it exists
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using environment variables or flags")
	}

	// Parse command-line flags
	defaultConfigPath := os.Getenv("WORKER_SERVICE_CONFIG_PATH")
	if defaultConfigPath == "" {
		defaultConfigPath = "configs/worker-service/config.yaml"
	}
	configPath := flag.String("config", defaultConfigPath, "Path to configuration file")
	flag.Parse()

	// Load configuration
	cfg, err := config.Load(*configPath)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	if err := cfg.ValidateWorkerConfig(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	// Initialize logger
	appLogger, err := initLogger(&cfg.Logging)
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}

	appLogger.Info("Starting worker service",
		slog.String("app", cfg.App.Name),
		slog.String("version", cfg.App.Version),
		slog.String("environment", cfg.App.Environment),
	)

	// Initialize PostgreSQL client
	dbClient, err := initPostgreSQL(&cfg.Database, appLogger.Logger)
	if err != nil {
		return fmt.Errorf("failed to initialize database: %w", err)
	}

	appLogger.Info("Database connection established")

	// Apply pending migrations
	if err := migrations.Up(dbClient.GetDB().DB); err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}

	// The nudge channel is optional. Without it the engine runs on
	// database polling alone.
	var rabbitClient *rabbitmq.Client
	if cfg.RabbitMQ.Enabled {
		rabbitClient, err = initRabbitMQ(&cfg.RabbitMQ, appLogger.Logger)
		if err != nil {
			return fmt.Errorf("failed to initialize RabbitMQ: %w", err)
		}
		appLogger.Info("RabbitMQ connection established")
	} else {
		appLogger.Info("RabbitMQ disabled, relying on polling")
	}

	db := dbClient.GetDB()
	jobStore := jobs.NewStore(db, appLogger.Logger)
	scheduleStore := schedules.NewStore(db, appLogger.Logger)
	outboxStore := outbox.NewStore(db, appLogger.Logger)

	// Register job handlers
	providerCfg := worker.ProviderConfig{
		EmailEndpoint:     cfg.Providers.EmailEndpoint,
		EmbeddingEndpoint: cfg.Providers.EmbeddingEndpoint,
		Token:             cfg.Providers.Token,
		RequestTimeout:    cfg.Providers.RequestTimeout,
	}

	registry := worker.NewRegistry()
	for kind, h := range map[string]worker.Handler{
		jobs.KindEmailSend:        worker.NewEmailHandler(providerCfg),
		jobs.KindEmbeddingGen:     worker.NewEmbeddingHandler(providerCfg),
		jobs.KindScheduledProcess: worker.NewScheduledProcessHandler(providerCfg),
	} {
		if err := registry.Register(kind, h); err != nil {
			return fmt.Errorf("failed to register handler: %w", err)
		}
	}

	workerID := fmt.Sprintf("worker-%s", uuid.New().String()[:8])

	// Create worker instance
	workerInstance := worker.New(&worker.Config{
		Logger:        appLogger.Logger,
		Store:         jobStore,
		Registry:      registry,
		WorkerID:      workerID,
		Concurrency:   cfg.Worker.Concurrency,
		PollInterval:  cfg.Worker.PollInterval,
		ClaimBatch:    cfg.Worker.ClaimBatch,
		JobTimeout:    cfg.Worker.JobTimeout,
		LeaseDuration: cfg.Worker.LeaseDuration,
	})

	// Create context for graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	workerInstance.Start(ctx)

	appLogger.Info("Worker started",
		slog.String("worker_id", workerID),
		slog.Int("concurrency", cfg.Worker.Concurrency),
	)

	// Cron scheduler tick loop
	scheduler := schedules.NewScheduler(&schedules.Config{
		Logger:       appLogger.Logger,
		Store:        scheduleStore,
		Enqueuer:     jobStore,
		TickInterval: cfg.Scheduler.TickInterval,
		TickBatch:    cfg.Scheduler.TickBatch,
	})
	go scheduler.Run(ctx)

	// Webhook outbox dispatcher
	gateway := outbox.NewGateway(cfg.Outbox.GatewayBaseURL, cfg.Outbox.GatewayToken, cfg.Outbox.RequestTimeout)
	dispatcher := outbox.NewDispatcher(outbox.DispatcherConfig{
		Logger:   appLogger.Logger,
		Store:    outboxStore,
		Gateway:  gateway,
		Interval: cfg.Outbox.ProcessInterval,
		Batch:    cfg.Outbox.ProcessBatch,
	})
	go dispatcher.Run(ctx)

	// Optional job-ready nudges cut claim latency below the poll
	// interval.
	if rabbitClient != nil {
		consumer := worker.NewNudgeConsumer(rabbitClient, workerInstance, appLogger.Logger)
		if err := consumer.Start(ctx, workerID); err != nil {
			appLogger.Warn("Failed to start nudge consumer, polling only",
				slog.Any("error", err),
			)
		}
	}

	appLogger.Info("Worker service started successfully")

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	sig := <-quit
	appLogger.Info("Received signal, shutting down gracefully",
		slog.String("signal", sig.String()),
	)

	// Cancel context to stop the scheduler and dispatcher loops
	cancel()

	// Give worker time to shutdown gracefully
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Worker.ShutdownTimeout)
	defer shutdownCancel()

	// Stop worker
	done := make(chan struct{})
	go func() {
		workerInstance.Stop()
		close(done)
	}()

	select {
	case <-done:
		appLogger.Info("Worker stopped gracefully")
	case <-shutdownCtx.Done():
		appLogger.Warn("Worker shutdown timeout exceeded, forcing exit")
	}

	// Cleanup function to close all resources
	cleanup := func() {
		if dbClient != nil {
			dbClient.Close()
		}
		if rabbitClient != nil {
			rabbitClient.Close()
		}
	}
	cleanup()

	appLogger.Info("Worker service shutdown complete")
	return nil
}

// initLogger initializes and configures the application logger
func initLogger(cfg *config.LoggingConfig) (*logger.Logger, error) {
	loggerCfg := &logger.Config{
		Level:        cfg.Level,
		Format:       cfg.Format,
		Output:       cfg.Output,
		EnableSource: cfg.EnableCaller,
		TimeFormat:   time.RFC3339,
	}

	return logger.New(loggerCfg)
}

// initPostgreSQL initializes the PostgreSQL database client
func initPostgreSQL(cfg *config.DatabaseConfig, logger *slog.Logger) (*postgresql.Client, error) {
	dbConfig := &postgresql.Config{
		Host:            cfg.Host,
		Port:            cfg.Port,
		User:            cfg.User,
		Password:        cfg.Password,
		Database:        cfg.Database,
		SSLMode:         cfg.SSLMode,
		MaxOpenConns:    cfg.MaxOpenConns,
		MaxIdleConns:    cfg.MaxIdleConns,
		ConnMaxLifetime: cfg.ConnMaxLifetime,
		ConnMaxIdleTime: cfg.ConnMaxIdleTime,
	}

	return postgresql.NewClient(dbConfig, logger)
}

// initRabbitMQ initializes the RabbitMQ client
func initRabbitMQ(cfg *config.RabbitMQConfig, logger *slog.Logger) (*rabbitmq.Client, error) {
	rabbitConfig := &rabbitmq.Config{
		Host:               cfg.Host,
		Port:               cfg.Port,
		User:               cfg.User,
		Password:           cfg.Password,
		VHost:              cfg.VHost,
		ExchangeName:       cfg.Exchange.Name,
		ExchangeType:       cfg.Exchange.Type,
		ExchangeDurable:    cfg.Exchange.Durable,
		ExchangeAutoDelete: cfg.Exchange.AutoDelete,
		QueueName:          cfg.Queue.Name,
		QueueDurable:       cfg.Queue.Durable,
		QueueAutoDelete:    cfg.Queue.AutoDelete,
		QueueExclusive:     cfg.Queue.Exclusive,
		RoutingKey:         cfg.RoutingKey,
		RetryAttempts:      cfg.Connection.RetryAttempts,
		RetryInterval:      cfg.Connection.RetryInterval,
		Heartbeat:          cfg.Connection.Heartbeat,
		ConnectionTimeout:  cfg.Connection.ConnectionTimeout,
	}

	return rabbitmq.NewClient(rabbitConfig, logger)
}
