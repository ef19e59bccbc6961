package memos

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"github.com/harborline/ibs/internal/documents"
	"github.com/harborline/ibs/internal/ledger"
	"github.com/harborline/ibs/internal/periods"
	"github.com/harborline/ibs/internal/shared"
)

// RepositoryPort describes persistence required by the service.
type RepositoryPort interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
	Get(ctx context.Context, company string, kind Kind, number string) (*Memo, error)
	List(ctx context.Context, filter ListFilter) ([]Memo, error)
}

// TxRepository exposes transactional operations.
type TxRepository interface {
	documents.Tx
	NextNumber(ctx context.Context, company string, kind Kind) (string, error)
	Source(ctx context.Context, company string, typ SourceType, id int64) (Source, error)
	HasPendingForSource(ctx context.Context, company string, kind Kind, typ SourceType, sourceID, excludeID int64) (bool, error)
	Insert(ctx context.Context, m *Memo) error
	UpdateContent(ctx context.Context, m *Memo) error
	Lock(ctx context.Context, company string, kind Kind, number string) (*Memo, error)
	SaveStatus(ctx context.Context, m *Memo) error
}

// ListFilter narrows memo listings.
type ListFilter struct {
	Company string
	Kind    Kind
	Status  documents.Status
	From    time.Time
	To      time.Time
	Limit   int
}

// Config carries posting parameters.
type Config struct {
	Accounts ledger.AccountMap
	VATRate  decimal.Decimal
}

// Service orchestrates memo workflows.
type Service struct {
	repo  RepositoryPort
	cfg   Config
	hooks documents.Hooks
	now   func() time.Time
}

// NewService constructs the memo service.
func NewService(repo RepositoryPort, cfg Config, hooks documents.Hooks) *Service {
	if cfg.Accounts == nil {
		cfg.Accounts = ledger.DefaultAccountMap()
	}
	if cfg.VATRate.IsZero() {
		cfg.VATRate = ledger.DefaultVATRate
	}
	return &Service{repo: repo, cfg: cfg, hooks: hooks, now: time.Now}
}

// WithNow overrides the clock, used by tests.
func (s *Service) WithNow(now func() time.Time) *Service {
	s.now = now
	return s
}

// CreateInput describes a new memo.
type CreateInput struct {
	Company       string
	Kind          Kind
	Date          time.Time
	SourceType    SourceType
	SourceID      int64
	Description   string
	Remarks       string
	AdjustedPrice decimal.Decimal
	Quantity      decimal.Decimal
	Amount        decimal.Decimal
	Actor         shared.Actor
}

// Create validates the source invoice and stores a pending memo. Only one
// pending memo of a kind may exist per source invoice.
func (s *Service) Create(ctx context.Context, in CreateInput) (*Memo, error) {
	total, err := ComputeTotal(in.SourceType, in.AdjustedPrice, in.Quantity, in.Amount)
	if err != nil {
		return nil, err
	}
	now := s.now().UTC()
	var memo *Memo
	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		source, err := tx.Source(ctx, in.Company, in.SourceType, in.SourceID)
		if err != nil {
			return err
		}
		if !source.Posted {
			return ErrSourceNotPosted
		}
		pending, err := tx.HasPendingForSource(ctx, in.Company, in.Kind, in.SourceType, in.SourceID, 0)
		if err != nil {
			return err
		}
		if pending {
			return documents.ErrPendingSiblingExists
		}
		memo = &Memo{
			Header: documents.Header{
				Company:   in.Company,
				Date:      in.Date,
				Status:    documents.StatusPending,
				Remarks:   in.Remarks,
				CreatedBy: in.Actor.ID,
				CreatedAt: now,
			},
			Kind:          in.Kind,
			SourceType:    in.SourceType,
			SourceID:      source.ID,
			SourceNumber:  source.Number,
			CustomerID:    source.CustomerID,
			Description:   in.Description,
			AdjustedPrice: in.AdjustedPrice,
			Quantity:      in.Quantity,
			Amount:        in.Amount,
			Total:         total,
			Tax:           source.Tax,
		}
		if memo.Number, err = tx.NextNumber(ctx, in.Company, in.Kind); err != nil {
			return err
		}
		if err := documents.Record(ctx, tx, memo.Subject(), documents.ActionCreate, in.Actor, now); err != nil {
			return err
		}
		return tx.Insert(ctx, memo)
	})
	if err != nil {
		return nil, err
	}
	s.hooks.Finish(ctx, documents.NewEvent(memo.Subject(), documents.ActionCreate, in.Actor, now), nil)
	return memo, nil
}

// EditInput carries the editable memo fields.
type EditInput struct {
	Company       string
	Kind          Kind
	Number        string
	Version       int64
	Date          time.Time
	Description   string
	Remarks       string
	AdjustedPrice decimal.Decimal
	Quantity      decimal.Decimal
	Amount        decimal.Decimal
	Actor         shared.Actor
}

// Edit changes a pending memo. Both the old and the new date must fall in open periods.
func (s *Service) Edit(ctx context.Context, in EditInput) (*Memo, error) {
	now := s.now().UTC()
	var memo *Memo
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		var err error
		if memo, err = s.lock(ctx, tx, in.Company, in.Kind, in.Number, in.Version); err != nil {
			return err
		}
		if err := memo.EnsureEditable(); err != nil {
			return err
		}
		if err := periods.EnsureOpen(ctx, tx, memo.Company, ledger.ModuleAR, memo.Date); err != nil {
			return err
		}
		total, err := ComputeTotal(memo.SourceType, in.AdjustedPrice, in.Quantity, in.Amount)
		if err != nil {
			return err
		}
		memo.Date = in.Date
		memo.Description = in.Description
		memo.Remarks = in.Remarks
		memo.AdjustedPrice, memo.Quantity, memo.Amount, memo.Total = in.AdjustedPrice, in.Quantity, in.Amount, total
		if err := memo.MarkEdited(in.Actor.ID, now); err != nil {
			return err
		}
		if err := documents.Record(ctx, tx, memo.Subject(), documents.ActionEdit, in.Actor, now); err != nil {
			return err
		}
		return tx.UpdateContent(ctx, memo)
	})
	if err != nil {
		return nil, err
	}
	s.hooks.Finish(ctx, documents.NewEvent(memo.Subject(), documents.ActionEdit, in.Actor, now), nil)
	return memo, nil
}

// Post books the memo's journal entry and marks it posted in one transaction.
func (s *Service) Post(ctx context.Context, company string, kind Kind, number string, version int64, actor shared.Actor) (*Memo, error) {
	return s.transition(ctx, company, kind, number, version, actor, documents.ActionPost, func(ctx context.Context, tx TxRepository, m *Memo, now time.Time) error {
		entry := Journal(m, s.cfg.Accounts, s.cfg.VATRate)
		_, err := documents.Post(ctx, tx, m.Subject(), &entry, actor, now)
		return err
	})
}

// Void reverses a posted memo. Admin only.
func (s *Service) Void(ctx context.Context, company string, kind Kind, number string, version int64, actor shared.Actor) (*Memo, error) {
	return s.transition(ctx, company, kind, number, version, actor, documents.ActionVoid, func(ctx context.Context, tx TxRepository, m *Memo, now time.Time) error {
		_, err := documents.Void(ctx, tx, m.Subject(), actor, now)
		return err
	})
}

// Cancel closes a pending memo without touching the ledger.
func (s *Service) Cancel(ctx context.Context, company string, kind Kind, number string, version int64, reason string, actor shared.Actor) (*Memo, error) {
	return s.transition(ctx, company, kind, number, version, actor, documents.ActionCancel, func(ctx context.Context, tx TxRepository, m *Memo, now time.Time) error {
		return documents.Cancel(ctx, tx, m.Subject(), actor, reason, now)
	})
}

func (s *Service) transition(ctx context.Context, company string, kind Kind, number string, version int64, actor shared.Actor, action string,
	apply func(context.Context, TxRepository, *Memo, time.Time) error) (*Memo, error) {
	now := s.now().UTC()
	var memo *Memo
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		var err error
		if memo, err = s.lock(ctx, tx, company, kind, number, version); err != nil {
			return err
		}
		if err := apply(ctx, tx, memo, now); err != nil {
			return err
		}
		return tx.SaveStatus(ctx, memo)
	})
	event := documents.Event{Entity: kind.Entity(), Module: ledger.ModuleAR, Action: action, Company: company, Number: number, ActorID: actor.ID, At: now}
	if memo != nil {
		event = documents.NewEvent(memo.Subject(), action, actor, now)
	}
	s.hooks.Finish(ctx, event, err)
	if err != nil {
		return nil, err
	}
	return memo, nil
}

// lock loads the memo for update and checks the caller saw the current version.
// A zero version skips the check.
func (s *Service) lock(ctx context.Context, tx TxRepository, company string, kind Kind, number string, version int64) (*Memo, error) {
	memo, err := tx.Lock(ctx, company, kind, number)
	if err != nil {
		return nil, err
	}
	if version != 0 && memo.Version != version {
		return nil, documents.ErrConcurrentUpdate
	}
	return memo, nil
}

// Get returns a memo by number.
func (s *Service) Get(ctx context.Context, company string, kind Kind, number string) (*Memo, error) {
	return s.repo.Get(ctx, company, kind, number)
}

// List returns memos matching the filter.
func (s *Service) List(ctx context.Context, filter ListFilter) ([]Memo, error) {
	if filter.Limit <= 0 || filter.Limit > 200 {
		filter.Limit = 50
	}
	return s.repo.List(ctx, filter)
}

// Preview returns the journal lines a memo would post, without writing them.
func (s *Service) Preview(ctx context.Context, company string, kind Kind, number string) ([]ledger.Line, error) {
	var lines []ledger.Line
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		memo, err := tx.Lock(ctx, company, kind, number)
		if err != nil {
			return err
		}
		entry := Journal(memo, s.cfg.Accounts, s.cfg.VATRate)
		entry.Company, entry.Reference, entry.Date, entry.Module = memo.Company, memo.Number, memo.Date, ledger.ModuleAR
		titles, err := tx.AccountTitles(ctx, company, entry.AccountNumbers())
		if err != nil {
			return err
		}
		lines, err = ledger.Build(entry, titles, s.now().UTC())
		return err
	})
	return lines, err
}
