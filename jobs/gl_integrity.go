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
	"github.com/harborline/ibs/internal/ledger"
	"github.com/harborline/ibs/internal/periods"
)

// LedgerSource reads the ledger for the integrity check.
type LedgerSource interface {
	Companies(ctx context.Context) ([]string, error)
	LinesByRange(ctx context.Context, company string, from, to time.Time) ([]ledger.Line, error)
}

// IntegrityFinding lists the unbalanced references of one company.
type IntegrityFinding struct {
	Company    string
	Month      time.Time
	References []string
}

// GLIntegrityJob verifies that every reference in a month balances.
type GLIntegrityJob struct {
	source  LedgerSource
	logger  *slog.Logger
	metrics *jobmetrics.Metrics
	clock   func() time.Time
}

// NewGLIntegrityJob initialises the integrity handler.
func NewGLIntegrityJob(source LedgerSource, logger *slog.Logger, metrics *jobmetrics.Metrics) *GLIntegrityJob {
	if logger == nil {
		logger = slog.Default()
	}
	return &GLIntegrityJob{source: source, logger: logger, metrics: metrics, clock: func() time.Time { return time.Now().UTC() }}
}

// Handle processes TaskGLIntegrity tasks.
func (j *GLIntegrityJob) Handle(ctx context.Context, t *asynq.Task) error {
	var payload GLIntegrityPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return fmt.Errorf("gl integrity: decode payload: %v: %w", err, asynq.SkipRetry)
	}
	_, err := j.Run(ctx, payload)
	return err
}

// Run checks the selected month and logs every unbalanced reference.
func (j *GLIntegrityJob) Run(ctx context.Context, payload GLIntegrityPayload) (findings []IntegrityFinding, err error) {
	if j == nil || j.source == nil {
		return nil, errors.New("gl integrity: handler not configured")
	}
	tracker := j.metrics.Track(TaskGLIntegrity)
	defer func() { err = tracker.End(err) }()

	month := periods.MonthStart(j.clock().AddDate(0, -1, 0))
	if payload.Month != "" {
		parsed, perr := time.Parse(monthLayout, payload.Month)
		if perr != nil {
			return nil, fmt.Errorf("gl integrity: month %q: %w", payload.Month, asynq.SkipRetry)
		}
		month = parsed
	}
	companies := []string{payload.Company}
	if payload.Company == "" {
		if companies, err = j.source.Companies(ctx); err != nil {
			return nil, err
		}
	}

	logger := j.logger.With(slog.String("job", TaskGLIntegrity), slog.String("month", month.Format(monthLayout)))
	logger.Info("starting gl integrity check", slog.Int("companies", len(companies)))
	for _, company := range companies {
		lines, err := j.source.LinesByRange(ctx, company, month, periods.MonthEnd(month))
		if err != nil {
			return findings, fmt.Errorf("gl integrity: %s: %w", company, err)
		}
		refs := ledger.UnbalancedReferences(lines)
		if len(refs) == 0 {
			continue
		}
		for _, ref := range refs {
			logger.Warn("unbalanced ledger reference", slog.String("company", company), slog.String("reference", ref))
		}
		j.metrics.AddUnbalanced(company, len(refs))
		findings = append(findings, IntegrityFinding{Company: company, Month: month, References: refs})
	}
	logger.Info("completed gl integrity check", slog.Int("findings", len(findings)))
	return findings, nil
}
