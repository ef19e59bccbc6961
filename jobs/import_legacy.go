package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/hibiken/asynq"

	"github.com/harborline/ibs/internal/importer"
	jobmetrics "github.com/harborline/ibs/internal/jobs"
	"github.com/harborline/ibs/internal/shared"
)

// LegacyImporter is satisfied by *importer.Importer.
type LegacyImporter interface {
	Run(ctx context.Context, req importer.Request) (importer.Result, error)
}

// ImportJob runs the legacy import in the worker.
type ImportJob struct {
	importer LegacyImporter
	notifier Notifier
	logger   *slog.Logger
	metrics  *jobmetrics.Metrics
}

// NewImportJob initialises the import handler.
func NewImportJob(imp LegacyImporter, notifier Notifier, logger *slog.Logger, metrics *jobmetrics.Metrics) *ImportJob {
	if logger == nil {
		logger = slog.Default()
	}
	return &ImportJob{importer: imp, notifier: notifier, logger: logger, metrics: metrics}
}

// Handle processes TaskImportLegacy tasks. Bad files are not retried.
func (j *ImportJob) Handle(ctx context.Context, t *asynq.Task) (err error) {
	var req importer.Request
	if err := json.Unmarshal(t.Payload(), &req); err != nil {
		return fmt.Errorf("import: decode payload: %v: %w", err, asynq.SkipRetry)
	}
	tracker := j.metrics.Track(TaskImportLegacy)
	defer func() { err = tracker.End(err) }()

	result, err := j.importer.Run(ctx, req)
	message := fmt.Sprintf("Legacy import finished: %d accounts, %d entries posted, %d skipped", result.Accounts, result.Entries, result.Skipped)
	if err != nil {
		message = "Legacy import failed: " + shared.UserSafeMessage(err)
	}
	if j.notifier != nil && req.ActorID != "" {
		if nerr := j.notifier.Notify(ctx, req.ActorID, message, ""); nerr != nil {
			j.logger.Warn("notify import result", slog.String("job", TaskImportLegacy), slog.Any("error", nerr))
		}
	}
	if errors.Is(err, shared.ErrInvalidInput) || errors.Is(err, importer.ErrDirNotConfigured) {
		return fmt.Errorf("%v: %w", err, asynq.SkipRetry)
	}
	return err
}
