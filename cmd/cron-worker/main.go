package main

import (
	"context"
	"errors"
	"flag"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/angelmondragon/lessongate-backend/internal/audit"
	"github.com/angelmondragon/lessongate-backend/internal/cron"
	"github.com/angelmondragon/lessongate-backend/internal/discord"
	"github.com/angelmondragon/lessongate-backend/internal/ledger"
	"github.com/angelmondragon/lessongate-backend/internal/users"
	"github.com/angelmondragon/lessongate-backend/pkg/config"
	"github.com/angelmondragon/lessongate-backend/pkg/db"
	pkgdiscord "github.com/angelmondragon/lessongate-backend/pkg/discord"
	"github.com/angelmondragon/lessongate-backend/pkg/logger"
	"github.com/angelmondragon/lessongate-backend/pkg/metrics"
	"github.com/angelmondragon/lessongate-backend/pkg/migrate"
	"github.com/angelmondragon/lessongate-backend/pkg/redis"
)

const lockName = "cron-worker"

func main() {
	once := flag.String("once", "", "run the named jobs (comma separated, or \"all\") once and exit")
	flag.Parse()

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

	logg = logger.ForApp("cron-worker", cfg.App)

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

	jobs, err := buildJobs(cfg, logg, dbClient)
	if err != nil {
		logg.Error(context.Background(), "failed to build cron jobs", err)
		os.Exit(1)
	}

	lock, err := cron.NewRedisLock(redisClient, lockName, cfg.Cron.LockTTL)
	if err != nil {
		logg.Error(context.Background(), "failed to create cron lock", err)
		os.Exit(1)
	}

	service, err := cron.NewService(cron.ServiceParams{
		Logger:     logg,
		Registry:   cron.NewRegistry(jobs...),
		Lock:       lock,
		Metrics:    metrics.NewCronJobMetrics(prometheus.DefaultRegisterer),
		Interval:   cfg.Cron.Interval,
		JobTimeout: cfg.Cron.JobTimeout,
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
	})

	if *once != "" {
		if err := service.RunOnce(ctx, jobNames(*once)...); err != nil {
			logg.Error(ctx, "cron run failed", err)
			os.Exit(1)
		}
		return
	}

	logg.Info(ctx, "starting cron worker")
	if err := service.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logg.Error(ctx, "cron worker stopped unexpectedly", err)
		os.Exit(1)
	}

	logg.Info(ctx, "cron worker shutting down gracefully")
}

func buildJobs(cfg *config.Config, logg *logger.Logger, dbClient *db.Client) ([]cron.Job, error) {
	gdb := dbClient.DB()

	retention, err := cron.NewLedgerRetentionJob(cron.LedgerRetentionJobParams{
		Logger:    logg,
		Ledger:    ledger.New(gdb),
		Retention: cfg.Cron.LedgerRetention,
		Batch:     cfg.Cron.LedgerPruneBatch,
	})
	if err != nil {
		return nil, err
	}
	jobs := []cron.Job{retention}

	userSvc, err := users.NewService(users.ServiceParams{
		Repo:   users.NewRepository(gdb),
		Audit:  audit.NewWriter(audit.NewRepository(gdb), logg),
		Logger: logg,
	})
	if err != nil {
		return nil, err
	}

	client, err := pkgdiscord.NewClient(cfg.Discord, metrics.NewBreakerMetrics(prometheus.DefaultRegisterer), logg)
	if err != nil {
		logg.Warn(context.Background(), "discord not configured; role reconcile job disabled")
		return jobs, nil
	}
	roles, err := discord.NewService(discord.ServiceParams{
		Client:           client,
		Users:            userSvc,
		GuildID:          cfg.Discord.GuildID,
		SubscriberRoleID: cfg.Discord.SubscriberRoleID,
		Logger:           logg,
	})
	if err != nil {
		return nil, err
	}
	reconcile, err := cron.NewRoleReconcileJob(cron.RoleReconcileJobParams{
		Logger:   logg,
		Users:    userSvc,
		Syncer:   roles,
		PageSize: cfg.Cron.RoleReconcileLimit,
	})
	if err != nil {
		return nil, err
	}
	return append(jobs, reconcile), nil
}

func jobNames(raw string) []string {
	if strings.EqualFold(strings.TrimSpace(raw), "all") {
		return nil
	}
	var names []string
	for _, name := range strings.Split(raw, ",") {
		if name = strings.TrimSpace(name); name != "" {
			names = append(names, name)
		}
	}
	return names
}
