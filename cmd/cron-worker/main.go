package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/angelmondragon/stocksync-backend/internal/app"
	"github.com/angelmondragon/stocksync-backend/internal/cron"
	"github.com/angelmondragon/stocksync-backend/pkg/bigquery"
	"github.com/angelmondragon/stocksync-backend/pkg/config"
	"github.com/angelmondragon/stocksync-backend/pkg/db"
	"github.com/angelmondragon/stocksync-backend/pkg/instance"
	"github.com/angelmondragon/stocksync-backend/pkg/logger"
	"github.com/angelmondragon/stocksync-backend/pkg/metrics"
	"github.com/angelmondragon/stocksync-backend/pkg/migrate"
	"github.com/angelmondragon/stocksync-backend/pkg/outbox"
	"github.com/angelmondragon/stocksync-backend/pkg/redis"
)

func main() {
	logg := logger.New(logger.Options{ServiceName: "cron-worker"})

	if err := godotenv.Load(); err != nil {
		logg.Warn(context.Background(), ".env file not found, relying on environment")
	}

	cfg, err := config.Load()
	if err != nil {
		logg.Error(context.Background(), "failed to load config", err)
		os.Exit(1)
	}

	cfg.Service.Kind = "cron-worker"

	logg = logger.New(logger.Options{
		ServiceName: "cron-worker",
		Level:       logger.ParseLevel(cfg.App.LogLevel),
		WarnStack:   cfg.App.LogWarnStack,
		Format:      cfg.App.LogFormat,
	})

	dbClient, err := db.New(context.Background(), cfg.DB, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to bootstrap database", err)
		os.Exit(1)
	}
	defer func() {
		if err := dbClient.Close(); err != nil {
			logg.Error(context.Background(), "error closing database", err)
		}
	}()

	if err := migrate.MaybeRunDev(context.Background(), cfg, logg, dbClient); err != nil {
		logg.Error(context.Background(), "failed to run dev migrations", err)
		os.Exit(1)
	}

	redisClient, err := redis.New(context.Background(), cfg.Redis, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to bootstrap redis", err)
		os.Exit(1)
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logg.Error(context.Background(), "error closing redis", err)
		}
	}()

	services, err := app.NewServices(app.Params{
		Config:   cfg,
		Logger:   logg,
		DB:       dbClient,
		Store:    redisClient,
		WorkerID: instance.GetID(),
	})
	if err != nil {
		logg.Error(context.Background(), "failed to wire services", err)
		os.Exit(1)
	}

	registry, closeJobs, err := buildRegistry(context.Background(), cfg, logg, dbClient, services)
	if err != nil {
		logg.Error(context.Background(), "failed to register cron jobs", err)
		os.Exit(1)
	}
	defer closeJobs()

	lock, err := cron.NewRedisLock(redisClient, redisClient.LockKey("cron-worker:"+envName(cfg.App.Env)), instance.GetID(), cfg.Cron.LockTTL)
	if err != nil {
		logg.Error(context.Background(), "failed to create cron lock", err)
		os.Exit(1)
	}

	service, err := cron.NewService(cron.ServiceParams{
		Logger:   logg,
		Registry: registry,
		Lock:     lock,
		Metrics:  metrics.NewCronJobMetrics(prometheus.DefaultRegisterer),
		Interval: cfg.Cron.Tick,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create cron service", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx = logg.WithFields(ctx, map[string]any{
		"env":         cfg.App.Env,
		"serviceKind": cfg.Service.Kind,
		"jobs":        len(registry.Jobs()),
	})
	logg.Info(ctx, "starting cron worker")

	if err := service.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logg.Error(ctx, "cron worker stopped unexpectedly", err)
		os.Exit(1)
	}

	logg.Info(ctx, "cron worker shutting down gracefully")
}

// buildRegistry registers every maintenance job on its configured cadence.
// The inventory snapshot job only runs when BigQuery is configured.
func buildRegistry(ctx context.Context, cfg *config.Config, logg *logger.Logger, dbClient *db.Client, services *app.Services) (*cron.Registry, func(), error) {
	registry := cron.NewRegistry()
	closer := func() {}

	syncJobs, err := cron.NewSyncJobs(cron.SyncJobsParams{
		Logger:           logg,
		Queue:            services.SyncQueue,
		CleanupAfterDays: cfg.Sync.CleanupAfterDays,
		StuckLease:       cfg.Sync.StuckAfter,
	})
	if err != nil {
		return nil, closer, err
	}
	registry.Register(cron.Every(syncJobs.Retry, cfg.Cron.SyncRetryEvery))
	registry.Register(cron.Every(syncJobs.Stuck, cfg.Cron.StuckEvery))
	registry.Register(cron.Every(syncJobs.Cleanup, cfg.Cron.CleanupEvery))

	lowStock, err := cron.NewLowStockReportJob(cron.LowStockReportJobParams{
		Logger:    logg,
		DB:        dbClient,
		Inventory: services.Inventory,
		Outbox:    services.Outbox,
		Recent:    services.OutboxRepo,
	})
	if err != nil {
		return nil, closer, err
	}
	registry.Register(cron.Every(lowStock, cfg.Cron.LowStockEvery))

	retention, err := cron.NewOutboxRetentionJob(cron.OutboxRetentionJobParams{
		Logger:         logg,
		DB:             dbClient,
		Events:         services.OutboxRepo,
		DLQ:            outbox.NewDLQRepository(dbClient.DB()),
		EventRetention: cfg.Outbox.Retention,
		DLQRetention:   cfg.Outbox.DLQRetention,
	})
	if err != nil {
		return nil, closer, err
	}
	registry.Register(cron.Every(retention, cfg.Cron.RetentionEvery))

	if !cfg.BigQuery.Enabled(cfg.GCP) {
		logg.Info(ctx, "bigquery not configured; inventory snapshots disabled")
		return registry, closer, nil
	}
	bq, err := bigquery.NewClient(ctx, cfg.GCP, cfg.BigQuery, logg)
	if err != nil {
		return nil, closer, err
	}
	closer = func() {
		if err := bq.Close(); err != nil {
			logg.Error(context.Background(), "error closing bigquery", err)
		}
	}
	snapshot, err := cron.NewInventorySnapshotJob(cron.InventorySnapshotJobParams{
		Logger:    logg,
		Inventory: services.Inventory,
		Sink:      bq,
	})
	if err != nil {
		closer()
		return nil, func() {}, err
	}
	registry.Register(cron.Every(snapshot, cfg.Cron.SnapshotEvery))
	return registry, closer, nil
}

func envName(env string) string {
	if env == "" {
		return "local"
	}
	return env
}
