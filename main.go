package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/jmoiron/sqlx"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	goredis "github.com/redis/go-redis/v9"

	infraconfig "github.com/jonesrussell/north-cloud/visitor-analytics/infrastructure/config"
	"github.com/jonesrussell/north-cloud/visitor-analytics/infrastructure/logger"
	"github.com/jonesrussell/north-cloud/visitor-analytics/infrastructure/profiling"
	infraredis "github.com/jonesrussell/north-cloud/visitor-analytics/infrastructure/redis"
	"github.com/jonesrussell/north-cloud/visitor-analytics/internal/api"
	"github.com/jonesrussell/north-cloud/visitor-analytics/internal/cache"
	"github.com/jonesrussell/north-cloud/visitor-analytics/internal/config"
	"github.com/jonesrussell/north-cloud/visitor-analytics/internal/handler"
	"github.com/jonesrussell/north-cloud/visitor-analytics/internal/service"
	"github.com/jonesrussell/north-cloud/visitor-analytics/internal/storage"
	"github.com/jonesrussell/north-cloud/visitor-analytics/internal/telemetry"
)

func main() {
	os.Exit(run())
}

func run() int {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Load configuration
	cfg, err := loadConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		return 1
	}

	// Initialize logger
	log, err := createLogger(cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to create logger: %v\n", err)
		return 1
	}
	defer func() { _ = log.Sync() }()

	profiling.StartPprofServer(log)
	profiler, err := profiling.StartPyroscope(cfg.Service.Name, cfg.Service.Version, log)
	if err != nil {
		log.Warn("Continuous profiling disabled", logger.Error(err))
	}
	defer func() { _ = profiler.Stop() }()

	// Connect to database
	db, err := storage.Connect(ctx, &cfg.Database)
	if err != nil {
		log.Error("Failed to connect to database", logger.Error(err))
		return 1
	}
	defer func() { _ = db.Close() }()

	log.Info("Database connected",
		logger.String("host", cfg.Database.Host),
		logger.Int("port", cfg.Database.Port),
		logger.String("database", cfg.Database.Database),
	)

	redisClient := connectRedis(ctx, cfg, log)
	if redisClient != nil {
		defer func() { _ = redisClient.Close() }()
	}

	return runServer(ctx, cfg, log, db, redisClient)
}

// loadConfig loads and validates configuration.
func loadConfig() (*config.Config, error) {
	configPath := infraconfig.GetConfigPath("config.yml")
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	if validationErr := cfg.Validate(); validationErr != nil {
		return nil, fmt.Errorf("validate config: %w", validationErr)
	}
	return cfg, nil
}

// createLogger creates a logger instance from configuration.
func createLogger(cfg *config.Config) (logger.Logger, error) {
	log, err := logger.New(logger.Config{
		Level:       cfg.Logging.Level,
		Format:      cfg.Logging.Format,
		Development: cfg.Service.Debug,
	})
	if err != nil {
		return nil, fmt.Errorf("create logger: %w", err)
	}
	return log.With(logger.String("service", cfg.Service.Name)), nil
}

// connectRedis returns nil when Redis is not configured or unreachable;
// the dashboard then recomputes on every request.
func connectRedis(ctx context.Context, cfg *config.Config, log logger.Logger) *goredis.Client {
	if cfg.Redis.Address == "" {
		log.Info("Redis not configured, metrics cache disabled")
		return nil
	}

	client, err := infraredis.NewClient(ctx, infraredis.Config{
		Address:  cfg.Redis.Address,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	if err != nil {
		log.Warn("Redis unavailable, metrics cache disabled",
			logger.String("address", cfg.Redis.Address),
			logger.Error(err),
		)
		return nil
	}
	return client
}

// runServer creates all dependencies and runs the HTTP server until ctx is
// cancelled.
func runServer(
	ctx context.Context,
	cfg *config.Config,
	log logger.Logger,
	db *sqlx.DB,
	redisClient *goredis.Client,
) int {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	metrics := telemetry.New(reg)

	repo := storage.NewRepository(db)

	// Event buffer drains into PostgreSQL in the background
	buffer := storage.NewEventBuffer(cfg.Service.BufferSize)
	writer := storage.NewEventWriter(repo, buffer, log, metrics, cfg.Service.FlushInterval, cfg.Service.FlushThreshold)
	writer.Start()
	defer writer.Stop()

	var metricsCache service.MetricsCache
	checks := api.HealthChecks{
		Database: func() error { return repo.Ping(context.Background()) },
	}
	if redisClient != nil {
		metricsCache = cache.NewMetricsCache(redisClient, cfg.Cache.TTL)
		checks.Redis = func() error { return redisClient.Ping(context.Background()).Err() }
	}

	ingest := service.NewIngest(repo, buffer, nil, log, metrics)
	dashboard := service.NewDashboard(repo, metricsCache, nil, log, metrics)

	server := api.NewServer(cfg, api.Handlers{
		Track:       handler.NewTrackHandler(ingest, log),
		Dashboard:   handler.NewDashboardHandler(dashboard, service.NewAdmins(cfg.Auth.AdminSubjects), log),
		Metrics:     metrics.Handler(),
		BufferDepth: buffer.Len,
	}, checks, log)

	log.Info("Visitor analytics starting",
		logger.Int("port", cfg.Service.Port),
		logger.Bool("metrics_cache", redisClient != nil),
	)

	if err := server.Run(ctx); err != nil {
		log.Error("Server error", logger.Error(err))
		return 1
	}

	log.Info("Visitor analytics exited cleanly")
	return 0
}
