package reports

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"github.com/harborline/ibs/internal/ledger"
)

// PeriodSummary is the retained earnings roll-forward stored when a GL month closes.
type PeriodSummary struct {
	Company                   string          `json:"company"`
	Month                     time.Time       `json:"month"`
	BeginningRetainedEarnings decimal.Decimal `json:"beginning_retained_earnings"`
	NetIncome                 decimal.Decimal `json:"net_income"`
	PriorPeriodAdjustment     decimal.Decimal `json:"prior_period_adjustment"`
	EndingRetainedEarnings    decimal.Decimal `json:"ending_retained_earnings"`
	ComputedAt                time.Time       `json:"computed_at"`
}

// SummarySource loads stored period summaries. A missing month yields nil, nil.
type SummarySource interface {
	Summary(ctx context.Context, company string, month time.Time) (*PeriodSummary, error)
}

func monthStart(t time.Time) time.Time {
	y, m, _ := t.Date()
	return time.Date(y, m, 1, 0, 0, 0, 0, time.UTC)
}

func monthEnd(t time.Time) time.Time {
	return monthStart(t).AddDate(0, 1, -1)
}

// DeriveSummary computes the roll-forward for month from raw ledger lines. lines
// must cover everything up to the end of month. When previous is set its ending
// balance becomes the beginning balance. Otherwise the beginning balance is rebuilt
// from every earlier line: retained earnings, adjustments and the unclosed income.
func DeriveSummary(company string, titles []ledger.AccountTitle, lines []ledger.Line, month time.Time, previous *PeriodSummary) (PeriodSummary, error) {
	start := monthStart(month)
	var before, within []ledger.Line
	for _, line := range lines {
		if line.Date.Before(start) {
			before = append(before, line)
		} else {
			within = append(within, line)
		}
	}

	summary := PeriodSummary{Company: company, Month: start}
	if previous != nil {
		summary.BeginningRetainedEarnings = previous.EndingRetainedEarnings
	} else {
		opening, err := Rollup(titles, before, nil)
		if err != nil {
			return PeriodSummary{}, err
		}
		summary.BeginningRetainedEarnings = opening.RoleTotal(ledger.RoleRetainedEarnings).
			Add(opening.RoleTotal(ledger.RolePriorPeriodAdjustment)).
			Add(BuildProfitAndLoss(opening).NetIncomeBeforeTax)
	}

	current, err := Rollup(titles, within, nil)
	if err != nil {
		return PeriodSummary{}, err
	}
	summary.NetIncome = BuildProfitAndLoss(current).NetIncomeBeforeTax
	summary.PriorPeriodAdjustment = current.RoleTotal(ledger.RolePriorPeriodAdjustment)
	summary.EndingRetainedEarnings = summary.BeginningRetainedEarnings.
		Add(summary.NetIncome).
		Add(summary.PriorPeriodAdjustment)
	return summary, nil
}
