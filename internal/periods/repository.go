package periods

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/harborline/ibs/internal/ledger"
	"github.com/harborline/ibs/internal/platform/db"
	"github.com/harborline/ibs/internal/reports"
	"github.com/harborline/ibs/internal/shared"
)

// Querier is satisfied by *pgxpool.Pool and pgx.Tx.
type Querier interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

// IsPeriodPosted reports whether the month containing date is closed for module.
// Document repositories call it inside their own transactions.
func IsPeriodPosted(ctx context.Context, q Querier, company string, module ledger.Module, date time.Time) (bool, error) {
	var closed bool
	err := q.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM period_closures WHERE company=$1 AND module=$2 AND month=$3)`,
		company, string(module), MonthStart(date)).Scan(&closed)
	return closed, err
}

// Repository persists period closures and summaries.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs the repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// WithTx runs fn inside a repeatable-read transaction.
func (r *Repository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	return db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		return fn(ctx, &txRepository{tx: tx, TxStore: ledger.NewTxStore(tx)})
	})
}

// IsPeriodPosted implements Checker outside of a transaction.
func (r *Repository) IsPeriodPosted(ctx context.Context, company string, module ledger.Module, date time.Time) (bool, error) {
	return IsPeriodPosted(ctx, r.pool, company, module, date)
}

// List returns the closed months of a year, newest first.
func (r *Repository) List(ctx context.Context, company string, year int) ([]Period, error) {
	from := time.Date(year, time.January, 1, 0, 0, 0, 0, time.UTC)
	rows, err := r.pool.Query(ctx, `SELECT company, module, month, closed_by, closed_at FROM period_closures
WHERE company=$1 AND month >= $2 AND month < $3 ORDER BY month DESC, module`, company, from, from.AddDate(1, 0, 0))
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Period
	for rows.Next() {
		var (
			p        Period
			module   string
			closedAt time.Time
		)
		if err := rows.Scan(&p.Company, &module, &p.Month, &p.ClosedBy, &closedAt); err != nil {
			return nil, err
		}
		p.Module = ledger.Module(module)
		p.IsClosed = true
		p.ClosedAt = &closedAt
		out = append(out, p)
	}
	return out, rows.Err()
}

// Summary implements reports.SummarySource.
func (r *Repository) Summary(ctx context.Context, company string, month time.Time) (*reports.PeriodSummary, error) {
	return loadSummary(ctx, r.pool, company, month)
}

func loadSummary(ctx context.Context, q Querier, company string, month time.Time) (*reports.PeriodSummary, error) {
	var s reports.PeriodSummary
	err := q.QueryRow(ctx, `SELECT company, month, beginning_retained_earnings, net_income, prior_period_adjustment,
ending_retained_earnings, computed_at FROM period_summaries WHERE company=$1 AND month=$2`, company, MonthStart(month)).
		Scan(&s.Company, &s.Month, &s.BeginningRetainedEarnings, &s.NetIncome, &s.PriorPeriodAdjustment, &s.EndingRetainedEarnings, &s.ComputedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &s, nil
}

type txRepository struct {
	tx pgx.Tx
	*ledger.TxStore
}

func (r *txRepository) IsPeriodPosted(ctx context.Context, company string, module ledger.Module, date time.Time) (bool, error) {
	return IsPeriodPosted(ctx, r.tx, company, module, date)
}

func (r *txRepository) MarkClosed(ctx context.Context, p Period) error {
	_, err := r.tx.Exec(ctx, `INSERT INTO period_closures (company, module, month, closed_by, closed_at) VALUES ($1, $2, $3, $4, $5)`,
		p.Company, string(p.Module), MonthStart(p.Month), p.ClosedBy, p.ClosedAt)
	return err
}

func (r *txRepository) Reopen(ctx context.Context, company string, module ledger.Module, month time.Time) (bool, error) {
	cmd, err := r.tx.Exec(ctx, `DELETE FROM period_closures WHERE company=$1 AND module=$2 AND month=$3`, company, string(module), MonthStart(month))
	if err != nil {
		return false, err
	}
	return cmd.RowsAffected() > 0, nil
}

func (r *txRepository) Summary(ctx context.Context, company string, month time.Time) (*reports.PeriodSummary, error) {
	return loadSummary(ctx, r.tx, company, month)
}

func (r *txRepository) UpsertSummary(ctx context.Context, s reports.PeriodSummary) error {
	_, err := r.tx.Exec(ctx, `INSERT INTO period_summaries (company, month, beginning_retained_earnings, net_income, prior_period_adjustment, ending_retained_earnings, computed_at)
VALUES ($1, $2, $3, $4, $5, $6, $7)
ON CONFLICT (company, month) DO UPDATE SET beginning_retained_earnings=EXCLUDED.beginning_retained_earnings, net_income=EXCLUDED.net_income,
prior_period_adjustment=EXCLUDED.prior_period_adjustment, ending_retained_earnings=EXCLUDED.ending_retained_earnings, computed_at=EXCLUDED.computed_at`,
		s.Company, MonthStart(s.Month), s.BeginningRetainedEarnings, s.NetIncome, s.PriorPeriodAdjustment, s.EndingRetainedEarnings, s.ComputedAt)
	return err
}

func (r *txRepository) DeleteSummary(ctx context.Context, company string, month time.Time) error {
	_, err := r.tx.Exec(ctx, `DELETE FROM period_summaries WHERE company=$1 AND month=$2`, company, MonthStart(month))
	return err
}

func (r *txRepository) RecordAudit(ctx context.Context, log shared.AuditLog) error {
	return shared.InsertAudit(ctx, r.tx, log)
}
