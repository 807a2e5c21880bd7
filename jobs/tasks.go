package jobs

import (
	"encoding/json"
	"time"

	"github.com/hibiken/asynq"
)

const (
	// QueueDefault is the default queue name for background jobs.
	QueueDefault = "default"
	// TaskBillingMonthlyRun creates the recurring charges due today.
	TaskBillingMonthlyRun = "billing:monthly_run"
	// TaskPaymentReminders notifies accounts with aged pending charges.
	TaskPaymentReminders = "billing:payment_reminders"
)

// MonthlyRunPayload parameterises a billing run. AsOf empty means "today".
type MonthlyRunPayload struct {
	AsOf string `json:"as_of,omitempty"`
}

// NewMonthlyRunTask constructs the recurring billing task.
func NewMonthlyRunTask(payload MonthlyRunPayload) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskBillingMonthlyRun, data), nil
}

// NewPaymentRemindersTask constructs the reminder sweep task.
func NewPaymentRemindersTask() *asynq.Task {
	return asynq.NewTask(TaskPaymentReminders, nil)
}

// parseAsOf resolves the payload date, defaulting to the current day.
func parseAsOf(raw string) (time.Time, error) {
	if raw == "" {
		return time.Now().UTC(), nil
	}
	return time.Parse("2006-01-02", raw)
}
