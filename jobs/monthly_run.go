package jobs

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"
	"github.com/redis/go-redis/v9"

	"github.com/velanet/velanet-crm/internal/billing"
	"github.com/velanet/velanet-crm/internal/observability"
	"github.com/velanet/velanet-crm/internal/shared"
)

// MonthlyRunJob creates the recurring monthly charges for accounts
// whose billing day is today. The billing service is idempotent per
// (profile, period), and a Redis lock keeps concurrent workers from
// racing the same run.
type MonthlyRunJob struct {
	billing *billing.Service
	redis   *redis.Client
	metrics *observability.Metrics
	logger  *slog.Logger
}

// NewMonthlyRunJob constructs the job.
func NewMonthlyRunJob(billingSvc *billing.Service, redisClient *redis.Client, metrics *observability.Metrics, logger *slog.Logger) *MonthlyRunJob {
	return &MonthlyRunJob{billing: billingSvc, redis: redisClient, metrics: metrics, logger: logger}
}

const monthlyRunLockTTL = 10 * time.Minute

// Handle processes TaskBillingMonthlyRun tasks.
func (j *MonthlyRunJob) Handle(ctx context.Context, t *asynq.Task) error {
	var payload MonthlyRunPayload
	if len(t.Payload()) > 0 {
		if err := json.Unmarshal(t.Payload(), &payload); err != nil {
			return asynq.SkipRetry
		}
	}
	asOf, err := parseAsOf(payload.AsOf)
	if err != nil {
		j.logger.Error("monthly run: bad as_of", slog.Any("error", err))
		return asynq.SkipRetry
	}

	lockKey := shared.BillingRunLockKey(asOf.Format("2006-01-02"))
	acquired, err := shared.AcquireLock(ctx, j.redis, lockKey, monthlyRunLockTTL)
	if err != nil {
		return err
	}
	if !acquired {
		j.logger.Info("monthly run: already in progress", slog.String("lock", lockKey))
		return nil
	}
	defer func() { _ = shared.ReleaseLock(ctx, j.redis, lockKey) }()

	count, err := j.billing.RunMonthlyBilling(ctx, asOf)
	j.metrics.ObserveJob(TaskBillingMonthlyRun, err)
	if err != nil {
		j.logger.Error("monthly run failed", slog.Any("error", err), slog.String("as_of", asOf.Format("2006-01-02")))
		return err
	}
	j.metrics.AddMonthlyCharges(count)
	j.logger.Info("monthly run finished",
		slog.String("as_of", asOf.Format("2006-01-02")),
		slog.Int("charges_created", count))
	return nil
}
