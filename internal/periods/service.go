package periods

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/harborline/ibs/internal/ledger"
	"github.com/harborline/ibs/internal/reports"
	"github.com/harborline/ibs/internal/shared"
)

// ErrPeriodNotClosed is returned when reopening a month that is still open.
var ErrPeriodNotClosed = fmt.Errorf("%w: period is not closed", shared.ErrConflict)

// ledgerEpoch bounds the cumulative ledger read used for the GL summary.
var ledgerEpoch = time.Date(1900, 1, 1, 0, 0, 0, 0, time.UTC)

// RepositoryPort describes persistence required by the service.
type RepositoryPort interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
	List(ctx context.Context, company string, year int) ([]Period, error)
	Summary(ctx context.Context, company string, month time.Time) (*reports.PeriodSummary, error)
}

// TxRepository exposes transactional operations.
type TxRepository interface {
	Checker
	ledger.Reader
	MarkClosed(ctx context.Context, p Period) error
	Reopen(ctx context.Context, company string, module ledger.Module, month time.Time) (bool, error)
	Summary(ctx context.Context, company string, month time.Time) (*reports.PeriodSummary, error)
	UpsertSummary(ctx context.Context, summary reports.PeriodSummary) error
	DeleteSummary(ctx context.Context, company string, month time.Time) error
	RecordAudit(ctx context.Context, log shared.AuditLog) error
}

// Invalidator drops cached statements after the summaries change.
type Invalidator interface {
	Bump(ctx context.Context) error
}

// Service closes and reopens monthly periods.
type Service struct {
	repo  RepositoryPort
	cache Invalidator
	now   func() time.Time
}

// NewService constructs the period service.
func NewService(repo RepositoryPort, cache Invalidator) *Service {
	return &Service{repo: repo, cache: cache, now: time.Now}
}

// WithNow overrides the clock, used by tests.
func (s *Service) WithNow(now func() time.Time) *Service {
	s.now = now
	return s
}

// CloseInput describes a close request.
type CloseInput struct {
	Company string
	Module  ledger.Module
	Month   time.Time
	Actor   shared.Actor
}

// CloseResult reports the closed period and, for GL, the stored summary.
type CloseResult struct {
	Period  Period                 `json:"period"`
	Summary *reports.PeriodSummary `json:"summary,omitempty"`
}

// Close marks the month closed for the module. Closing GL also computes and
// stores the retained earnings roll-forward used by the balance sheet.
func (s *Service) Close(ctx context.Context, in CloseInput) (CloseResult, error) {
	if _, err := ParseModule(string(in.Module)); err != nil {
		return CloseResult{}, err
	}
	month := MonthStart(in.Month)
	now := s.now().UTC()
	var result CloseResult
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		closed, err := tx.IsPeriodPosted(ctx, in.Company, in.Module, month)
		if err != nil {
			return err
		}
		if closed {
			return fmt.Errorf("%w: %s %s", ErrPeriodClosed, in.Module, month.Format("January 2006"))
		}
		if in.Module == ledger.ModuleGL {
			summary, err := s.computeSummary(ctx, tx, in.Company, month, now)
			if err != nil {
				return err
			}
			if err := tx.UpsertSummary(ctx, summary); err != nil {
				return err
			}
			result.Summary = &summary
		}
		result.Period = Period{
			Company:  in.Company,
			Module:   in.Module,
			Month:    month,
			IsClosed: true,
			ClosedBy: in.Actor.ID,
			ClosedAt: &now,
		}
		if err := tx.MarkClosed(ctx, result.Period); err != nil {
			return err
		}
		meta := map[string]any{"module": in.Module, "month": month.Format("2006-01")}
		if result.Summary != nil {
			meta["ending_retained_earnings"] = result.Summary.EndingRetainedEarnings.StringFixed(2)
		}
		return tx.RecordAudit(ctx, shared.AuditLog{
			Company:  in.Company,
			ActorID:  in.Actor.ID,
			Action:   "period.close",
			Entity:   "period",
			EntityID: string(in.Module) + ":" + month.Format("2006-01"),
			Meta:     meta,
			At:       now,
		})
	})
	if err != nil {
		return CloseResult{}, err
	}
	if result.Summary != nil {
		s.invalidate(ctx)
	}
	return result, nil
}

func (s *Service) computeSummary(ctx context.Context, tx TxRepository, company string, month, now time.Time) (reports.PeriodSummary, error) {
	titles, err := tx.ListAccountTitles(ctx, company)
	if err != nil {
		return reports.PeriodSummary{}, err
	}
	lines, err := tx.LinesByRange(ctx, company, ledgerEpoch, MonthEnd(month))
	if err != nil {
		return reports.PeriodSummary{}, err
	}
	previous, err := tx.Summary(ctx, company, month.AddDate(0, -1, 0))
	if err != nil {
		return reports.PeriodSummary{}, err
	}
	summary, err := reports.DeriveSummary(company, titles, lines, month, previous)
	if err != nil {
		return reports.PeriodSummary{}, err
	}
	summary.ComputedAt = now
	return summary, nil
}

// Reopen clears the closed marker. Only admins may reopen; the GL summary is
// dropped so it is recomputed on the next close.
func (s *Service) Reopen(ctx context.Context, in CloseInput) error {
	if !in.Actor.IsAdmin() {
		return shared.ErrForbidden
	}
	if _, err := ParseModule(string(in.Module)); err != nil {
		return err
	}
	month := MonthStart(in.Month)
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		reopened, err := tx.Reopen(ctx, in.Company, in.Module, month)
		if err != nil {
			return err
		}
		if !reopened {
			return ErrPeriodNotClosed
		}
		if in.Module == ledger.ModuleGL {
			if err := tx.DeleteSummary(ctx, in.Company, month); err != nil {
				return err
			}
		}
		return tx.RecordAudit(ctx, shared.AuditLog{
			Company:  in.Company,
			ActorID:  in.Actor.ID,
			Action:   "period.reopen",
			Entity:   "period",
			EntityID: string(in.Module) + ":" + month.Format("2006-01"),
			At:       s.now().UTC(),
		})
	})
	if err != nil {
		return err
	}
	if in.Module == ledger.ModuleGL {
		s.invalidate(ctx)
	}
	return nil
}

// invalidate is best effort: a stale cache entry expires with its TTL.
func (s *Service) invalidate(ctx context.Context) {
	if s.cache != nil {
		_ = s.cache.Bump(ctx)
	}
}

// List returns the closed markers of a year.
func (s *Service) List(ctx context.Context, company string, year int) ([]Period, error) {
	if company == "" {
		return nil, errors.New("periods: company required")
	}
	return s.repo.List(ctx, company, year)
}

// Summary returns the stored roll-forward of a closed GL month.
func (s *Service) Summary(ctx context.Context, company string, month time.Time) (*reports.PeriodSummary, error) {
	summary, err := s.repo.Summary(ctx, company, MonthStart(month))
	if err != nil {
		return nil, err
	}
	if summary == nil {
		return nil, shared.ErrNotFound
	}
	return summary, nil
}
