package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"

	jobmetrics "github.com/harborline/ibs/internal/jobs"
	"github.com/harborline/ibs/internal/periods"
	"github.com/harborline/ibs/internal/shared"
)

// PeriodCloser is satisfied by *periods.Service.
type PeriodCloser interface {
	Close(ctx context.Context, in periods.CloseInput) (periods.CloseResult, error)
}

// Notifier is satisfied by *notifications.Service.
type Notifier interface {
	Notify(ctx context.Context, recipient, message, link string) error
}

// PeriodCloseJob closes periods queued from the API or the scheduler.
type PeriodCloseJob struct {
	closer   PeriodCloser
	notifier Notifier
	logger   *slog.Logger
	metrics  *jobmetrics.Metrics
}

// NewPeriodCloseJob initialises the period close handler.
func NewPeriodCloseJob(closer PeriodCloser, notifier Notifier, logger *slog.Logger, metrics *jobmetrics.Metrics) *PeriodCloseJob {
	if logger == nil {
		logger = slog.Default()
	}
	return &PeriodCloseJob{closer: closer, notifier: notifier, logger: logger, metrics: metrics}
}

// Handle processes TaskPeriodClose tasks. A month that is already closed is not
// retried.
func (j *PeriodCloseJob) Handle(ctx context.Context, t *asynq.Task) (err error) {
	var payload PeriodClosePayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return fmt.Errorf("period close: decode payload: %v: %w", err, asynq.SkipRetry)
	}
	month, err := time.Parse(monthLayout, payload.Month)
	if err != nil {
		return fmt.Errorf("period close: month %q: %w", payload.Month, asynq.SkipRetry)
	}
	module, err := periods.ParseModule(payload.Module)
	if err != nil {
		return fmt.Errorf("%v: %w", err, asynq.SkipRetry)
	}

	tracker := j.metrics.Track(TaskPeriodClose)
	defer func() { err = tracker.End(err) }()

	logger := j.logger.With(
		slog.String("job", TaskPeriodClose),
		slog.String("company", payload.Company),
		slog.String("module", string(module)),
		slog.String("month", payload.Month),
	)
	_, err = j.closer.Close(ctx, periods.CloseInput{
		Company: payload.Company,
		Module:  module,
		Month:   month,
		Actor:   shared.Actor{ID: payload.ActorID, Role: shared.RoleAccounting},
	})
	if errors.Is(err, periods.ErrPeriodClosed) {
		logger.Info("period already closed")
		return nil
	}
	if err != nil {
		logger.Error("close period", slog.Any("error", err))
		if errors.Is(err, shared.ErrInvalidInput) || errors.Is(err, shared.ErrForbidden) {
			return fmt.Errorf("%v: %w", err, asynq.SkipRetry)
		}
		return err
	}
	logger.Info("period closed")
	if j.notifier != nil && payload.ActorID != "" {
		msg := fmt.Sprintf("Period %s %s is now closed", module, month.Format("January 2006"))
		if nerr := j.notifier.Notify(ctx, payload.ActorID, msg, "/periods?company="+payload.Company); nerr != nil {
			logger.Warn("notify period close", slog.Any("error", nerr))
		}
	}
	return nil
}
