package periods

import (
	"context"
	"fmt"
	"time"

	"github.com/harborline/ibs/internal/ledger"
	"github.com/harborline/ibs/internal/shared"
)

// Period marks a month of one module as closed for a company.
type Period struct {
	Company  string
	Module   ledger.Module
	Month    time.Time
	IsClosed bool
	ClosedBy string
	ClosedAt *time.Time
}

// ErrPeriodClosed is returned when a document falls inside a closed month.
var ErrPeriodClosed = shared.NewClassError(shared.ErrConflict, "period already closed")

// ErrInvalidModule indicates an unknown module tag.
var ErrInvalidModule = shared.NewClassError(shared.ErrInvalidInput, "periods: unknown module")

// Checker answers whether a month is closed for a module.
type Checker interface {
	IsPeriodPosted(ctx context.Context, company string, module ledger.Module, date time.Time) (bool, error)
}

// EnsureOpen fails with ErrPeriodClosed when the document date lies in a closed month.
func EnsureOpen(ctx context.Context, checker Checker, company string, module ledger.Module, date time.Time) error {
	closed, err := checker.IsPeriodPosted(ctx, company, module, date)
	if err != nil {
		return err
	}
	if closed {
		return fmt.Errorf("%w: %s %s", ErrPeriodClosed, module, date.Format("January 2006"))
	}
	return nil
}

// MonthStart truncates a date to the first day of its month.
func MonthStart(date time.Time) time.Time {
	y, m, _ := date.Date()
	return time.Date(y, m, 1, 0, 0, 0, 0, time.UTC)
}

// MonthEnd returns the last day of the month containing date.
func MonthEnd(date time.Time) time.Time {
	return MonthStart(date).AddDate(0, 1, -1)
}

// ParseModule validates a module tag.
func ParseModule(raw string) (ledger.Module, error) {
	switch m := ledger.Module(raw); m {
	case ledger.ModuleAR, ledger.ModuleAP, ledger.ModuleDispatch, ledger.ModuleGL:
		return m, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrInvalidModule, raw)
	}
}
