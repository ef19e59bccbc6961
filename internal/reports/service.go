package reports

import (
	"context"
	"errors"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"

	"github.com/harborline/ibs/internal/ledger"
)

// ErrInvalidRange indicates a from date after the to date.
var ErrInvalidRange = errors.New("reports: from date is after to date")

// ledgerEpoch is the lower bound used for cumulative statements.
var ledgerEpoch = time.Date(1900, 1, 1, 0, 0, 0, 0, time.UTC)

// Service builds statements from the ledger, caching the results.
type Service struct {
	ledger    ledger.Reader
	summaries SummarySource
	cache     *Cache
	group     singleflight.Group
}

// NewService constructs the reports service.
func NewService(reader ledger.Reader, summaries SummarySource, cache *Cache) *Service {
	return &Service{ledger: reader, summaries: summaries, cache: cache}
}

// Invalidate drops every cached statement.
func (s *Service) Invalidate(ctx context.Context) error {
	return s.cache.Bump(ctx)
}

// Bump implements the document workflows' cache invalidation hook.
func (s *Service) Bump(ctx context.Context) error {
	return s.Invalidate(ctx)
}

// TrialBalance lists the net movement per account for [from, to].
func (s *Service) TrialBalance(ctx context.Context, company string, from, to time.Time) (TrialBalance, error) {
	if from.After(to) {
		return TrialBalance{}, ErrInvalidRange
	}
	return fetch(ctx, s, []string{"tb", company, day(from), day(to)}, func(ctx context.Context) (TrialBalance, error) {
		titles, lines, err := s.load(ctx, company, from, to)
		if err != nil {
			return TrialBalance{}, err
		}
		tree, err := Rollup(titles, lines, nil)
		if err != nil {
			return TrialBalance{}, err
		}
		tb := BuildTrialBalance(tree)
		tb.Company, tb.From, tb.To = company, from, to
		return tb, nil
	})
}

// ProfitAndLoss builds the income statement for [from, to].
func (s *Service) ProfitAndLoss(ctx context.Context, company string, from, to time.Time) (ProfitAndLoss, error) {
	if from.After(to) {
		return ProfitAndLoss{}, ErrInvalidRange
	}
	return fetch(ctx, s, []string{"pl", company, day(from), day(to)}, func(ctx context.Context) (ProfitAndLoss, error) {
		titles, lines, err := s.load(ctx, company, from, to)
		if err != nil {
			return ProfitAndLoss{}, err
		}
		tree, err := Rollup(titles, lines, nil)
		if err != nil {
			return ProfitAndLoss{}, err
		}
		pl := BuildProfitAndLoss(tree)
		pl.Company, pl.From, pl.To = company, from, to
		return pl, nil
	})
}

// BalanceSheet builds the cumulative position as of a date, substituting the
// retained earnings accounts from the month's period summary. A stored summary
// only applies when asOf is the last day of its month.
func (s *Service) BalanceSheet(ctx context.Context, company string, asOf time.Time) (BalanceSheet, error) {
	return fetch(ctx, s, []string{"bs", company, day(asOf)}, func(ctx context.Context) (BalanceSheet, error) {
		titles, lines, err := s.load(ctx, company, ledgerEpoch, asOf)
		if err != nil {
			return BalanceSheet{}, err
		}
		summary, err := s.summaryFor(ctx, company, asOf, titles, lines)
		if err != nil {
			return BalanceSheet{}, err
		}
		tree, err := Rollup(titles, lines, &summary)
		if err != nil {
			return BalanceSheet{}, err
		}
		bs := BuildBalanceSheet(tree)
		bs.Company, bs.AsOf = company, asOf
		return bs, nil
	})
}

// RetainedEarnings renders the roll-forward of one month.
func (s *Service) RetainedEarnings(ctx context.Context, company string, month time.Time) (RetainedEarningsStatement, error) {
	month = monthStart(month)
	return fetch(ctx, s, []string{"re", company, month.Format("2006-01")}, func(ctx context.Context) (RetainedEarningsStatement, error) {
		end := monthEnd(month)
		titles, lines, err := s.load(ctx, company, ledgerEpoch, end)
		if err != nil {
			return RetainedEarningsStatement{}, err
		}
		summary, err := s.summaryFor(ctx, company, end, titles, lines)
		if err != nil {
			return RetainedEarningsStatement{}, err
		}
		return BuildRetainedEarnings(summary), nil
	})
}

// summaryFor covers the month of through up to and including through. It prefers
// the stored summary of a closed month when through is the month end and derives
// one from the lines otherwise.
func (s *Service) summaryFor(ctx context.Context, company string, through time.Time, titles []ledger.AccountTitle, lines []ledger.Line) (PeriodSummary, error) {
	month := monthStart(through)
	var previous *PeriodSummary
	if s.summaries != nil {
		if day(through) == day(monthEnd(through)) {
			stored, err := s.summaries.Summary(ctx, company, month)
			if err != nil {
				return PeriodSummary{}, err
			}
			if stored != nil {
				return *stored, nil
			}
		}
		var err error
		previous, err = s.summaries.Summary(ctx, company, month.AddDate(0, -1, 0))
		if err != nil {
			return PeriodSummary{}, err
		}
	}
	return DeriveSummary(company, titles, lines, month, previous)
}

func (s *Service) load(ctx context.Context, company string, from, to time.Time) ([]ledger.AccountTitle, []ledger.Line, error) {
	var (
		titles []ledger.AccountTitle
		lines  []ledger.Line
	)
	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		titles, err = s.ledger.ListAccountTitles(ctx, company)
		return err
	})
	g.Go(func() error {
		var err error
		lines, err = s.ledger.LinesByRange(ctx, company, from, to)
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, nil, err
	}
	return titles, lines, nil
}

// fetch serves a statement from the cache, building it once per key even when
// several requests arrive together.
func fetch[T any](ctx context.Context, s *Service, parts []string, build func(context.Context) (T, error)) (T, error) {
	var zero T
	key, err := s.cache.BuildKey(ctx, parts...)
	if err != nil {
		return zero, err
	}
	resultChan := s.group.DoChan(key, func() (any, error) {
		var value T
		err := s.cache.FetchJSON(ctx, key, &value, func(ctx context.Context) (any, error) {
			return build(ctx)
		})
		return value, err
	})
	select {
	case <-ctx.Done():
		return zero, ctx.Err()
	case res := <-resultChan:
		if res.Err != nil {
			return zero, res.Err
		}
		return res.Val.(T), nil
	}
}

func day(t time.Time) string {
	return t.Format("2006-01-02")
}
