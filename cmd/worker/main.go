package main

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/hibiken/asynq"
	"github.com/redis/go-redis/v9"

	"github.com/velanet/velanet-crm/internal/app"
	"github.com/velanet/velanet-crm/internal/billing"
	"github.com/velanet/velanet-crm/internal/observability"
	"github.com/velanet/velanet-crm/internal/platform/db"
	"github.com/velanet/velanet-crm/jobs"
)

func main() {
	if app.InTestMode() {
		slog.Default().Info("test mode detected, skipping worker startup")
		return
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := app.LoadConfig()
	if err != nil {
		slog.Default().Error("load config", slog.Any("error", err))
		os.Exit(1)
	}

	logger := app.NewLogger(cfg)

	pool, err := db.New(ctx, cfg.PGDSN)
	if err != nil {
		logger.Error("connect postgres", slog.Any("error", err))
		os.Exit(1)
	}
	defer pool.Close()

	redisClient := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
	defer func() {
		if err := redisClient.Close(); err != nil {
			logger.Warn("redis close", slog.Any("error", err))
		}
	}()
	if err := redisClient.Ping(ctx).Err(); err != nil {
		logger.Warn("redis ping", slog.Any("error", err))
	}

	metrics := observability.NewMetrics()

	billingRepo := billing.NewRepository(pool)
	summaryCache := billing.NewSummaryCache(redisClient, cfg.SummaryCacheTTL)
	billingService := billing.NewService(billingRepo, summaryCache)

	monthlyRun := jobs.NewMonthlyRunJob(billingService, redisClient, metrics, logger)
	reminders := jobs.NewPaymentRemindersJob(billingService, jobs.LogNotifier{Logger: logger}, metrics, logger, cfg.OverdueGrace)

	monthlyTask, err := jobs.NewMonthlyRunTask(jobs.MonthlyRunPayload{})
	if err != nil {
		logger.Error("build monthly run task", slog.Any("error", err))
		os.Exit(1)
	}

	worker, err := jobs.NewWorker(jobs.WorkerConfig{
		RedisOpts: asynq.RedisClientOpt{Addr: cfg.RedisAddr},
		Logger:    logger,
		Handlers: []jobs.TaskHandler{
			{Type: jobs.TaskBillingMonthlyRun, Handler: monthlyRun.Handle},
			{Type: jobs.TaskPaymentReminders, Handler: reminders.Handle},
		},
		Cron: []jobs.CronRegistration{
			{Spec: "10 0 * * *", Task: monthlyTask, Options: []asynq.Option{asynq.MaxRetry(3)}},
			{Spec: "0 9 * * *", Task: jobs.NewPaymentRemindersTask(), Options: []asynq.Option{asynq.MaxRetry(3)}},
		},
	})
	if err != nil {
		logger.Error("init worker", slog.Any("error", err))
		os.Exit(1)
	}

	if err := worker.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("worker run", slog.Any("error", err))
		os.Exit(1)
	}
}
