package jobs

import (
	"context"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"

	"github.com/velanet/velanet-crm/internal/billing"
	"github.com/velanet/velanet-crm/internal/observability"
)

// Notifier delivers a reminder to a client. The production wiring logs
// the message; an SMS or email gateway satisfies the same interface.
type Notifier interface {
	NotifyClient(ctx context.Context, clientID int64, message string) error
}

// LogNotifier writes reminders to the log. Stand-in until a messaging
// gateway is configured.
type LogNotifier struct {
	Logger *slog.Logger
}

// NotifyClient logs the reminder.
func (n LogNotifier) NotifyClient(_ context.Context, clientID int64, message string) error {
	n.Logger.Info("payment reminder", slog.Int64("client_id", clientID), slog.String("message", message))
	return nil
}

// PaymentRemindersJob sweeps accounts whose pending charges are older
// than the grace period and sends each one a reminder.
type PaymentRemindersJob struct {
	billing  *billing.Service
	notifier Notifier
	metrics  *observability.Metrics
	logger   *slog.Logger
	grace    time.Duration
}

// NewPaymentRemindersJob constructs the job.
func NewPaymentRemindersJob(billingSvc *billing.Service, notifier Notifier, metrics *observability.Metrics, logger *slog.Logger, grace time.Duration) *PaymentRemindersJob {
	return &PaymentRemindersJob{billing: billingSvc, notifier: notifier, metrics: metrics, logger: logger, grace: grace}
}

// Handle processes TaskPaymentReminders tasks.
func (j *PaymentRemindersJob) Handle(ctx context.Context, _ *asynq.Task) error {
	overdue, err := j.billing.ListOverdueAccounts(ctx, time.Now().UTC(), j.grace)
	j.metrics.ObserveJob(TaskPaymentReminders, err)
	if err != nil {
		j.logger.Error("reminder sweep failed", slog.Any("error", err))
		return err
	}

	sent := 0
	for _, acc := range overdue {
		msg := "You have " + billing.FormatAmount(acc.PendingTotal) +
			" outstanding since " + acc.OldestCharge.Format("2006-01-02") +
			". Please settle your balance to keep your connection active."
		if err := j.notifier.NotifyClient(ctx, acc.ClientID, msg); err != nil {
			j.logger.Warn("reminder delivery failed",
				slog.Int64("client_id", acc.ClientID), slog.Any("error", err))
			continue
		}
		sent++
	}
	j.logger.Info("reminder sweep finished",
		slog.Int("overdue_accounts", len(overdue)),
		slog.Int("reminders_sent", sent))
	return nil
}
