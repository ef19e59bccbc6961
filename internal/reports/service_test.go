package reports

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"github.com/harborline/ibs/internal/ledger"
)

type stubReader struct {
	titles []ledger.AccountTitle
	lines  []ledger.Line
	calls  atomic.Int32
}

func (s *stubReader) ListAccountTitles(ctx context.Context, company string) ([]ledger.AccountTitle, error) {
	return s.titles, nil
}

func (s *stubReader) LinesByRange(ctx context.Context, company string, from, to time.Time) ([]ledger.Line, error) {
	s.calls.Add(1)
	var out []ledger.Line
	for _, line := range s.lines {
		if !line.Date.Before(from) && !line.Date.After(to) {
			out = append(out, line)
		}
	}
	return out, nil
}

type stubSummaries map[string]PeriodSummary

func (s stubSummaries) Summary(ctx context.Context, company string, month time.Time) (*PeriodSummary, error) {
	summary, ok := s[month.Format("2006-01")]
	if !ok {
		return nil, nil
	}
	return &summary, nil
}

func newCachedService(t *testing.T, reader *stubReader, summaries SummarySource) *Service {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return NewService(reader, summaries, NewCache(client, time.Minute))
}

func TestServiceCachesUntilBump(t *testing.T) {
	ctx := context.Background()
	reader := &stubReader{titles: sampleChart(), lines: januaryLines()}
	svc := newCachedService(t, reader, nil)
	from, to := date(2024, time.January, 1), date(2024, time.January, 31)

	first, err := svc.TrialBalance(ctx, "ACME", from, to)
	require.NoError(t, err)
	second, err := svc.TrialBalance(ctx, "ACME", from, to)
	require.NoError(t, err)
	require.EqualValues(t, 1, reader.calls.Load())
	require.True(t, first.TotalDebit.Equal(second.TotalDebit))
	require.Equal(t, len(first.Rows), len(second.Rows))

	require.NoError(t, svc.Bump(ctx))
	_, err = svc.TrialBalance(ctx, "ACME", from, to)
	require.NoError(t, err)
	require.EqualValues(t, 2, reader.calls.Load())
}

func TestServiceRejectsInvertedRange(t *testing.T) {
	svc := NewService(&stubReader{}, nil, nil)
	_, err := svc.ProfitAndLoss(context.Background(), "ACME", date(2024, 2, 1), date(2024, 1, 1))
	require.ErrorIs(t, err, ErrInvalidRange)
}

func TestServiceBalanceSheetUsesStoredSummary(t *testing.T) {
	reader := &stubReader{titles: sampleChart(), lines: januaryLines()}
	stored := stubSummaries{"2024-01": {
		Company:                   "ACME",
		Month:                     date(2024, time.January, 1),
		BeginningRetainedEarnings: d("0"),
		NetIncome:                 d("2700"),
		PriorPeriodAdjustment:     d("0"),
		EndingRetainedEarnings:    d("2700"),
	}}
	svc := NewService(reader, stored, nil)

	bs, err := svc.BalanceSheet(context.Background(), "ACME", date(2024, time.January, 31))
	require.NoError(t, err)
	require.True(t, bs.Balanced)
	require.Equal(t, "ACME", bs.Company)

	st, err := svc.RetainedEarnings(context.Background(), "ACME", date(2024, time.January, 20))
	require.NoError(t, err)
	require.True(t, st.Ending.Equal(d("2700")))
}

func TestServiceBalanceSheetMidMonthIgnoresStoredSummary(t *testing.T) {
	reader := &stubReader{titles: sampleChart(), lines: januaryLines()}
	stored := stubSummaries{"2024-01": {
		Company:                   "ACME",
		Month:                     date(2024, time.January, 1),
		BeginningRetainedEarnings: d("0"),
		NetIncome:                 d("2700"),
		PriorPeriodAdjustment:     d("0"),
		EndingRetainedEarnings:    d("2700"),
	}}
	svc := NewService(reader, stored, nil)

	bs, err := svc.BalanceSheet(context.Background(), "ACME", date(2024, time.January, 12))
	require.NoError(t, err)
	require.True(t, bs.Balanced)
	last := bs.Equity.Rows[len(bs.Equity.Rows)-1]
	require.Equal(t, NetIncomeRowName, last.Name)
	require.True(t, last.Amount.Equal(d("3500")), last.Amount.String())
}

func TestServiceDerivesSummaryForOpenMonth(t *testing.T) {
	reader := &stubReader{titles: sampleChart(), lines: januaryLines()}
	svc := NewService(reader, stubSummaries{}, nil)

	st, err := svc.RetainedEarnings(context.Background(), "ACME", date(2024, time.January, 1))
	require.NoError(t, err)
	require.True(t, st.Beginning.IsZero())
	require.True(t, st.NetIncome.Equal(d("2700")))
	require.True(t, st.Ending.Equal(d("2700")))

	pl, err := svc.ProfitAndLoss(context.Background(), "ACME", date(2024, time.January, 1), date(2024, time.January, 31))
	require.NoError(t, err)
	require.True(t, pl.NetIncomeBeforeTax.Equal(d("2700")))
}
