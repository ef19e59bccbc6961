package periods

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/harborline/ibs/internal/ledger"
	"github.com/harborline/ibs/internal/reports"
	"github.com/harborline/ibs/internal/shared"
)

type memoryPeriodRepo struct {
	closed    map[string]Period
	summaries map[string]reports.PeriodSummary
	titles    []ledger.AccountTitle
	lines     []ledger.Line
	audits    []shared.AuditLog
}

func newMemoryPeriodRepo() *memoryPeriodRepo {
	return &memoryPeriodRepo{closed: map[string]Period{}, summaries: map[string]reports.PeriodSummary{}}
}

func closureKey(company string, module ledger.Module, month time.Time) string {
	return company + ":" + string(module) + ":" + MonthStart(month).Format("2006-01")
}

func (r *memoryPeriodRepo) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	closed := make(map[string]Period, len(r.closed))
	for k, v := range r.closed {
		closed[k] = v
	}
	summaries := make(map[string]reports.PeriodSummary, len(r.summaries))
	for k, v := range r.summaries {
		summaries[k] = v
	}
	audits := len(r.audits)
	if err := fn(ctx, r); err != nil {
		r.closed, r.summaries, r.audits = closed, summaries, r.audits[:audits]
		return err
	}
	return nil
}

func (r *memoryPeriodRepo) List(ctx context.Context, company string, year int) ([]Period, error) {
	var out []Period
	for _, p := range r.closed {
		if p.Company == company && p.Month.Year() == year {
			out = append(out, p)
		}
	}
	return out, nil
}

func (r *memoryPeriodRepo) Summary(ctx context.Context, company string, month time.Time) (*reports.PeriodSummary, error) {
	s, ok := r.summaries[company+":"+MonthStart(month).Format("2006-01")]
	if !ok {
		return nil, nil
	}
	return &s, nil
}

func (r *memoryPeriodRepo) IsPeriodPosted(ctx context.Context, company string, module ledger.Module, date time.Time) (bool, error) {
	_, ok := r.closed[closureKey(company, module, date)]
	return ok, nil
}

func (r *memoryPeriodRepo) ListAccountTitles(ctx context.Context, company string) ([]ledger.AccountTitle, error) {
	return r.titles, nil
}

func (r *memoryPeriodRepo) LinesByRange(ctx context.Context, company string, from, to time.Time) ([]ledger.Line, error) {
	var out []ledger.Line
	for _, l := range r.lines {
		if !l.Date.Before(from) && !l.Date.After(to) {
			out = append(out, l)
		}
	}
	return out, nil
}

func (r *memoryPeriodRepo) MarkClosed(ctx context.Context, p Period) error {
	r.closed[closureKey(p.Company, p.Module, p.Month)] = p
	return nil
}

func (r *memoryPeriodRepo) Reopen(ctx context.Context, company string, module ledger.Module, month time.Time) (bool, error) {
	key := closureKey(company, module, month)
	_, ok := r.closed[key]
	delete(r.closed, key)
	return ok, nil
}

func (r *memoryPeriodRepo) UpsertSummary(ctx context.Context, s reports.PeriodSummary) error {
	r.summaries[s.Company+":"+s.Month.Format("2006-01")] = s
	return nil
}

func (r *memoryPeriodRepo) DeleteSummary(ctx context.Context, company string, month time.Time) error {
	delete(r.summaries, company+":"+MonthStart(month).Format("2006-01"))
	return nil
}

func (r *memoryPeriodRepo) RecordAudit(ctx context.Context, log shared.AuditLog) error {
	r.audits = append(r.audits, log)
	return nil
}

type countingCache struct{ bumps int }

func (c *countingCache) Bump(ctx context.Context) error {
	c.bumps++
	return nil
}

func chartWithIncome() ([]ledger.AccountTitle, []ledger.Line) {
	titles := []ledger.AccountTitle{
		{Number: "1010101", Name: "Cash", Type: ledger.AccountTypeAsset, NormalBalance: ledger.NormalDebit},
		{Number: "3010301", Name: "Retained Earnings", Type: ledger.AccountTypeEquity, NormalBalance: ledger.NormalCredit},
		{Number: "4010101", Name: "Service Revenue", Type: ledger.AccountTypeRevenue, NormalBalance: ledger.NormalCredit},
	}
	on := time.Date(2024, time.March, 10, 0, 0, 0, 0, time.UTC)
	amount := decimal.NewFromInt(750)
	lines := []ledger.Line{
		{Reference: "SV1", Date: on, AccountNumber: "1010101", Debit: amount, Credit: decimal.Zero},
		{Reference: "SV1", Date: on, AccountNumber: "4010101", Debit: decimal.Zero, Credit: amount},
	}
	return titles, lines
}

var (
	march      = time.Date(2024, time.March, 1, 0, 0, 0, 0, time.UTC)
	accounting = shared.Actor{ID: "acct", Role: shared.RoleAccounting}
	root       = shared.Actor{ID: "root", Role: shared.RoleAdmin}
)

func TestCloseGLStoresSummary(t *testing.T) {
	repo := newMemoryPeriodRepo()
	repo.titles, repo.lines = chartWithIncome()
	repo.summaries["ACME:2024-02"] = reports.PeriodSummary{Company: "ACME", Month: march.AddDate(0, -1, 0), EndingRetainedEarnings: decimal.NewFromInt(1000)}
	cache := &countingCache{}
	svc := NewService(repo, cache)

	result, err := svc.Close(context.Background(), CloseInput{Company: "ACME", Module: ledger.ModuleGL, Month: march.AddDate(0, 0, 14), Actor: accounting})
	require.NoError(t, err)
	require.NotNil(t, result.Summary)
	require.True(t, result.Summary.BeginningRetainedEarnings.Equal(decimal.NewFromInt(1000)))
	require.True(t, result.Summary.NetIncome.Equal(decimal.NewFromInt(750)))
	require.True(t, result.Summary.EndingRetainedEarnings.Equal(decimal.NewFromInt(1750)))
	require.Equal(t, march, result.Period.Month)
	require.Equal(t, 1, cache.bumps)
	require.Equal(t, "period.close", repo.audits[0].Action)

	_, err = svc.Close(context.Background(), CloseInput{Company: "ACME", Module: ledger.ModuleGL, Month: march, Actor: accounting})
	require.ErrorIs(t, err, ErrPeriodClosed)

	stored, err := svc.Summary(context.Background(), "ACME", march)
	require.NoError(t, err)
	require.True(t, stored.EndingRetainedEarnings.Equal(decimal.NewFromInt(1750)))
}

func TestCloseSubledgerSkipsSummary(t *testing.T) {
	repo := newMemoryPeriodRepo()
	svc := NewService(repo, nil)
	result, err := svc.Close(context.Background(), CloseInput{Company: "ACME", Module: ledger.ModuleAR, Month: march, Actor: accounting})
	require.NoError(t, err)
	require.Nil(t, result.Summary)

	closed, err := repo.IsPeriodPosted(context.Background(), "ACME", ledger.ModuleAR, march.AddDate(0, 0, 27))
	require.NoError(t, err)
	require.True(t, closed)
	require.Error(t, EnsureOpen(context.Background(), repo, "ACME", ledger.ModuleAR, march.AddDate(0, 0, 27)))
	require.NoError(t, EnsureOpen(context.Background(), repo, "ACME", ledger.ModuleAP, march))

	_, err = svc.Close(context.Background(), CloseInput{Company: "ACME", Module: "HR", Month: march, Actor: accounting})
	require.ErrorIs(t, err, ErrInvalidModule)
}

func TestReopenIsAdminOnly(t *testing.T) {
	repo := newMemoryPeriodRepo()
	repo.titles, repo.lines = chartWithIncome()
	svc := NewService(repo, nil)
	in := CloseInput{Company: "ACME", Module: ledger.ModuleGL, Month: march, Actor: accounting}
	_, err := svc.Close(context.Background(), in)
	require.NoError(t, err)

	require.ErrorIs(t, svc.Reopen(context.Background(), in), shared.ErrForbidden)

	in.Actor = root
	require.NoError(t, svc.Reopen(context.Background(), in))
	require.Empty(t, repo.summaries)
	require.ErrorIs(t, svc.Reopen(context.Background(), in), ErrPeriodNotClosed)

	_, err = svc.Summary(context.Background(), "ACME", march)
	require.ErrorIs(t, err, shared.ErrNotFound)
}

func TestEnsureOpenMessage(t *testing.T) {
	repo := newMemoryPeriodRepo()
	repo.closed[closureKey("ACME", ledger.ModuleDispatch, march)] = Period{}
	err := EnsureOpen(context.Background(), repo, "ACME", ledger.ModuleDispatch, march.AddDate(0, 0, 3))
	require.ErrorIs(t, err, ErrPeriodClosed)
	require.Equal(t, "period already closed: DISPATCH March 2024", err.Error())
	require.ErrorIs(t, err, shared.ErrConflict)

	_, err = ParseModule("FX")
	require.ErrorIs(t, err, shared.ErrInvalidInput)
}

func TestMonthBoundaries(t *testing.T) {
	require.Equal(t, time.Date(2024, time.February, 29, 0, 0, 0, 0, time.UTC), MonthEnd(time.Date(2024, time.February, 10, 13, 0, 0, 0, time.UTC)))
	m, err := ParseModule("DISPATCH")
	require.NoError(t, err)
	require.Equal(t, ledger.ModuleDispatch, m)
}
