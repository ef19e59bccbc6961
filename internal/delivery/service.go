package delivery

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
	Get(ctx context.Context, company, number string) (*Receipt, error)
	List(ctx context.Context, filter ListFilter) ([]Receipt, error)
}

// TxRepository exposes transactional operations.
type TxRepository interface {
	documents.Tx
	NextNumber(ctx context.Context, company string) (string, error)
	LockOrder(ctx context.Context, company string, id int64) (Order, error)
	AddDelivered(ctx context.Context, orderID int64, delta decimal.Decimal) error
	Insert(ctx context.Context, r *Receipt) error
	UpdateContent(ctx context.Context, r *Receipt) error
	Lock(ctx context.Context, company, number string) (*Receipt, error)
	SaveStatus(ctx context.Context, r *Receipt) error
}

// ListFilter narrows receipt listings.
type ListFilter struct {
	Company    string
	CustomerID int64
	Status     documents.Status
	From       time.Time
	To         time.Time
	Limit      int
}

// Config carries posting parameters.
type Config struct {
	Accounts ledger.AccountMap
	VATRate  decimal.Decimal
}

// Service orchestrates delivery receipts.
type Service struct {
	repo  RepositoryPort
	cfg   Config
	hooks documents.Hooks
	now   func() time.Time
}

// NewService constructs the service.
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

// CreateInput describes a new receipt.
type CreateInput struct {
	Company  string
	Date     time.Time
	OrderID  int64
	Quantity decimal.Decimal
	Freight  decimal.Decimal
	UnitCost decimal.Decimal
	Remarks  string
	Actor    shared.Actor
}

// Create stores a pending receipt priced from the customer order.
func (s *Service) Create(ctx context.Context, in CreateInput) (*Receipt, error) {
	if err := validateAmounts(in.Quantity, in.Freight, in.UnitCost); err != nil {
		return nil, err
	}
	now := s.now().UTC()
	var receipt *Receipt
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		order, err := tx.LockOrder(ctx, in.Company, in.OrderID)
		if err != nil {
			return err
		}
		if !order.Posted {
			return ErrOrderNotPosted
		}
		if err := checkRemaining(order, in.Quantity); err != nil {
			return err
		}
		receipt = &Receipt{
			Header: documents.Header{
				Company:   in.Company,
				Date:      in.Date,
				Status:    documents.StatusPending,
				Remarks:   in.Remarks,
				CreatedBy: in.Actor.ID,
				CreatedAt: now,
			},
			OrderID:     order.ID,
			OrderNumber: order.Number,
			CustomerID:  order.CustomerID,
			ProductID:   order.ProductID,
			Quantity:    in.Quantity,
			UnitPrice:   order.UnitPrice,
			Freight:     ledger.Round2(in.Freight),
			UnitCost:    in.UnitCost,
			Tax:         order.Tax,
		}
		if receipt.Number, err = tx.NextNumber(ctx, in.Company); err != nil {
			return err
		}
		if err := documents.Record(ctx, tx, receipt.Subject(), documents.ActionCreate, in.Actor, now); err != nil {
			return err
		}
		return tx.Insert(ctx, receipt)
	})
	if err != nil {
		return nil, err
	}
	s.hooks.Finish(ctx, documents.NewEvent(receipt.Subject(), documents.ActionCreate, in.Actor, now), nil)
	return receipt, nil
}

// EditInput carries the editable receipt fields.
type EditInput struct {
	Company  string
	Number   string
	Version  int64
	Date     time.Time
	Quantity decimal.Decimal
	Freight  decimal.Decimal
	UnitCost decimal.Decimal
	Remarks  string
	Actor    shared.Actor
}

// Edit changes a pending receipt.
func (s *Service) Edit(ctx context.Context, in EditInput) (*Receipt, error) {
	if err := validateAmounts(in.Quantity, in.Freight, in.UnitCost); err != nil {
		return nil, err
	}
	now := s.now().UTC()
	var receipt *Receipt
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		var err error
		if receipt, err = s.lock(ctx, tx, in.Company, in.Number, in.Version); err != nil {
			return err
		}
		if err := receipt.EnsureEditable(); err != nil {
			return err
		}
		if err := periods.EnsureOpen(ctx, tx, receipt.Company, ledger.ModuleAR, receipt.Date); err != nil {
			return err
		}
		order, err := tx.LockOrder(ctx, in.Company, receipt.OrderID)
		if err != nil {
			return err
		}
		if err := checkRemaining(order, in.Quantity); err != nil {
			return err
		}
		receipt.Date = in.Date
		receipt.Quantity = in.Quantity
		receipt.Freight = ledger.Round2(in.Freight)
		receipt.UnitCost = in.UnitCost
		receipt.Remarks = in.Remarks
		if err := receipt.MarkEdited(in.Actor.ID, now); err != nil {
			return err
		}
		if err := documents.Record(ctx, tx, receipt.Subject(), documents.ActionEdit, in.Actor, now); err != nil {
			return err
		}
		return tx.UpdateContent(ctx, receipt)
	})
	if err != nil {
		return nil, err
	}
	s.hooks.Finish(ctx, documents.NewEvent(receipt.Subject(), documents.ActionEdit, in.Actor, now), nil)
	return receipt, nil
}

// Post books the receipt and adds its quantity to the order's delivered total.
// The remaining balance is re-checked because other receipts may have posted
// since this one was created.
func (s *Service) Post(ctx context.Context, company, number string, version int64, actor shared.Actor) (*Receipt, error) {
	return s.transition(ctx, company, number, version, actor, documents.ActionPost, func(ctx context.Context, tx TxRepository, r *Receipt, now time.Time) error {
		order, err := tx.LockOrder(ctx, company, r.OrderID)
		if err != nil {
			return err
		}
		if err := checkRemaining(order, r.Quantity); err != nil {
			return err
		}
		entry := Journal(r, s.cfg.Accounts, s.cfg.VATRate)
		if _, err := documents.Post(ctx, tx, r.Subject(), &entry, actor, now); err != nil {
			return err
		}
		return tx.AddDelivered(ctx, r.OrderID, r.Quantity)
	})
}

// Void reverses a posted receipt and releases its quantity on the order. Admin only.
func (s *Service) Void(ctx context.Context, company, number string, version int64, actor shared.Actor) (*Receipt, error) {
	return s.transition(ctx, company, number, version, actor, documents.ActionVoid, func(ctx context.Context, tx TxRepository, r *Receipt, now time.Time) error {
		if _, err := documents.Void(ctx, tx, r.Subject(), actor, now); err != nil {
			return err
		}
		return tx.AddDelivered(ctx, r.OrderID, r.Quantity.Neg())
	})
}

// Cancel closes a pending receipt.
func (s *Service) Cancel(ctx context.Context, company, number string, version int64, reason string, actor shared.Actor) (*Receipt, error) {
	return s.transition(ctx, company, number, version, actor, documents.ActionCancel, func(ctx context.Context, tx TxRepository, r *Receipt, now time.Time) error {
		return documents.Cancel(ctx, tx, r.Subject(), actor, reason, now)
	})
}

func (s *Service) transition(ctx context.Context, company, number string, version int64, actor shared.Actor, action string,
	apply func(context.Context, TxRepository, *Receipt, time.Time) error) (*Receipt, error) {
	now := s.now().UTC()
	var receipt *Receipt
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		var err error
		if receipt, err = s.lock(ctx, tx, company, number, version); err != nil {
			return err
		}
		if err := apply(ctx, tx, receipt, now); err != nil {
			return err
		}
		return tx.SaveStatus(ctx, receipt)
	})
	event := documents.Event{Entity: entity, Module: ledger.ModuleAR, Action: action, Company: company, Number: number, ActorID: actor.ID, At: now}
	if receipt != nil {
		event = documents.NewEvent(receipt.Subject(), action, actor, now)
	}
	s.hooks.Finish(ctx, event, err)
	if err != nil {
		return nil, err
	}
	return receipt, nil
}

func (s *Service) lock(ctx context.Context, tx TxRepository, company, number string, version int64) (*Receipt, error) {
	receipt, err := tx.Lock(ctx, company, number)
	if err != nil {
		return nil, err
	}
	if version != 0 && receipt.Version != version {
		return nil, documents.ErrConcurrentUpdate
	}
	return receipt, nil
}

// Get returns a receipt by number.
func (s *Service) Get(ctx context.Context, company, number string) (*Receipt, error) {
	return s.repo.Get(ctx, company, number)
}

// List returns receipts matching the filter.
func (s *Service) List(ctx context.Context, filter ListFilter) ([]Receipt, error) {
	if filter.Limit <= 0 || filter.Limit > 200 {
		filter.Limit = 50
	}
	return s.repo.List(ctx, filter)
}
