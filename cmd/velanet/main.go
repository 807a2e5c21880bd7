package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hibiken/asynq"

	"github.com/velanet/velanet-crm/cmd/velanet/cli"
	"github.com/velanet/velanet-crm/internal/app"
	"github.com/velanet/velanet-crm/internal/billing"
	"github.com/velanet/velanet-crm/internal/clients"
	"github.com/velanet/velanet-crm/internal/equipment"
	"github.com/velanet/velanet-crm/internal/observability"
	"github.com/velanet/velanet-crm/internal/platform/cache"
	"github.com/velanet/velanet-crm/internal/platform/db"
	"github.com/velanet/velanet-crm/internal/scheduling"
	"github.com/velanet/velanet-crm/internal/shared"
	"github.com/velanet/velanet-crm/jobs"
)

func main() {
	if app.InTestMode() {
		slog.Default().Info("test mode detected, skipping runtime startup")
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

	if len(os.Args) > 1 {
		os.Exit(runCLI(ctx, cfg, logger, os.Args[1:]))
	}

	pool, err := db.New(ctx, cfg.PGDSN)
	if err != nil {
		logger.Error("connect postgres", slog.Any("error", err))
		os.Exit(1)
	}
	defer pool.Close()

	redisClient, err := cache.New(ctx, cfg.RedisAddr)
	if err != nil {
		logger.Warn("redis unavailable, summary cache disabled", slog.Any("error", err))
		redisClient = nil
	}
	defer func() {
		if redisClient != nil {
			if err := redisClient.Close(); err != nil {
				logger.Warn("redis close", slog.Any("error", err))
			}
		}
	}()

	metrics := observability.NewMetrics()

	billingRepo := billing.NewRepository(pool)
	summaryCache := billing.NewSummaryCache(redisClient, cfg.SummaryCacheTTL)
	billingService := billing.NewService(billingRepo, summaryCache)
	idemStore := shared.NewIdempotencyStore(pool)
	billingHandler := billing.NewHandler(logger, billingService, idemStore)

	clientsService := clients.NewService(clients.NewRepository(pool), billingService)
	clientsHandler := clients.NewHandler(logger, clientsService)

	equipmentService := equipment.NewService(equipment.NewRepository(pool), billingService)
	equipmentHandler := equipment.NewHandler(logger, equipmentService)

	schedulingService := scheduling.NewService(scheduling.NewRepository(pool), billingService)
	schedulingHandler := scheduling.NewHandler(logger, schedulingService)

	jobsInspector := asynq.NewInspector(asynq.RedisClientOpt{Addr: cfg.RedisAddr})
	defer func() { _ = jobsInspector.Close() }()
	jobsHandler := jobs.NewHandler(jobsInspector, logger)

	router := app.NewRouter(app.RouterParams{
		Logger:            logger,
		Config:            cfg,
		Pool:              pool,
		Metrics:           metrics,
		BillingHandler:    billingHandler,
		ClientsHandler:    clientsHandler,
		EquipmentHandler:  equipmentHandler,
		SchedulingHandler: schedulingHandler,
		JobsHandler:       jobsHandler,
	})

	server := &http.Server{
		Addr:         cfg.AppAddr,
		Handler:      router,
		ReadTimeout:  cfg.AppReadTimeout,
		WriteTimeout: cfg.AppWriteTimeout,
	}

	go func() {
		logger.Info("http server listening", slog.String("addr", cfg.AppAddr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server", slog.Any("error", err))
			stop()
		}
	}()

	<-ctx.Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("shutdown", slog.Any("error", err))
	}
	logger.Info("server stopped")
}

// runCLI handles ops subcommands: `velanet trigger <task> [as-of]`,
// `velanet queue` and `velanet queue scheduled`.
func runCLI(ctx context.Context, cfg *app.Config, logger *slog.Logger, args []string) int {
	jobsCLI, err := cli.NewJobsCLI(cfg.RedisAddr)
	if err != nil {
		logger.Error("init jobs cli", slog.Any("error", err))
		return 1
	}
	defer func() { _ = jobsCLI.Close() }()

	switch args[0] {
	case "trigger":
		if len(args) < 2 {
			fmt.Fprintln(os.Stderr, "usage: velanet trigger <task> [as-of]")
			return 2
		}
		asOf := ""
		if len(args) > 2 {
			asOf = args[2]
		}
		info, err := jobsCLI.Trigger(ctx, args[1], asOf)
		if err != nil {
			logger.Error("trigger job", slog.Any("error", err))
			return 1
		}
		fmt.Printf("enqueued %s id=%s queue=%s\n", args[1], info.ID, info.Queue)
		return 0
	case "queue":
		if len(args) > 1 && args[1] == "scheduled" {
			tasks, err := jobsCLI.ListScheduled(ctx, 20)
			if err != nil {
				logger.Error("list scheduled", slog.Any("error", err))
				return 1
			}
			for _, task := range tasks {
				fmt.Printf("id=%s type=%s next=%s\n",
					task.ID, task.Type, task.NextProcessAt.Format(time.RFC3339))
			}
			return 0
		}
		stats, err := jobsCLI.InspectQueue(ctx)
		if err != nil {
			logger.Error("inspect queue", slog.Any("error", err))
			return 1
		}
		fmt.Printf("queue=%s pending=%d active=%d scheduled=%d retry=%d\n",
			stats.Queue, stats.Pending, stats.Active, stats.Scheduled, stats.Retry)
		return 0
	default:
		fmt.Fprintf(os.Stderr, "unknown command %q\n", args[0])
		return 2
	}
}
