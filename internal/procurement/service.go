package procurement

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
	GetPO(ctx context.Context, company, number string) (*PurchaseOrder, error)
	ListPOs(ctx context.Context, filter ListFilter) ([]PurchaseOrder, error)
	GetRR(ctx context.Context, company, number string) (*ReceivingReport, error)
	ListRRs(ctx context.Context, filter ListFilter) ([]ReceivingReport, error)
}

// TxRepository exposes transactional operations.
type TxRepository interface {
	documents.Tx
	NextNumber(ctx context.Context, company, entity, prefix string) (string, error)
	SupplierTax(ctx context.Context, company string, supplierID int64) (ledger.TaxProfile, error)
	HasPendingPO(ctx context.Context, company string, supplierID, productID, excludeID int64) (bool, error)
	InsertPO(ctx context.Context, po *PurchaseOrder) error
	UpdatePO(ctx context.Context, po *PurchaseOrder) error
	LockPO(ctx context.Context, company, number string) (*PurchaseOrder, error)
	LockPOByID(ctx context.Context, company string, id int64) (*PurchaseOrder, error)
	SavePOStatus(ctx context.Context, po *PurchaseOrder) error
	AddReceived(ctx context.Context, poID int64, delta decimal.Decimal) error
	InsertRR(ctx context.Context, rr *ReceivingReport) error
	UpdateRR(ctx context.Context, rr *ReceivingReport) error
	LockRR(ctx context.Context, company, number string) (*ReceivingReport, error)
	SaveRRStatus(ctx context.Context, rr *ReceivingReport) error
}

// ListFilter narrows listings of either document.
type ListFilter struct {
	Company    string
	SupplierID int64
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

// Service orchestrates purchase orders and receiving reports.
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

// POInput describes a purchase order create or edit.
type POInput struct {
	Company    string
	Number     string
	Version    int64
	Date       time.Time
	SupplierID int64
	ProductID  int64
	Quantity   decimal.Decimal
	UnitCost   decimal.Decimal
	Terms      string
	Remarks    string
	Actor      shared.Actor
}

// CreatePO stores a pending purchase order. Only one pending PO may exist per
// supplier and product.
func (s *Service) CreatePO(ctx context.Context, in POInput) (*PurchaseOrder, error) {
	if err := validateLine(in.Quantity, in.UnitCost); err != nil {
		return nil, err
	}
	now := s.now().UTC()
	var po *PurchaseOrder
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		tax, err := tx.SupplierTax(ctx, in.Company, in.SupplierID)
		if err != nil {
			return err
		}
		pending, err := tx.HasPendingPO(ctx, in.Company, in.SupplierID, in.ProductID, 0)
		if err != nil {
			return err
		}
		if pending {
			return documents.ErrPendingSiblingExists
		}
		po = &PurchaseOrder{
			Header: documents.Header{
				Company:   in.Company,
				Date:      in.Date,
				Status:    documents.StatusPending,
				Remarks:   in.Remarks,
				CreatedBy: in.Actor.ID,
				CreatedAt: now,
			},
			SupplierID: in.SupplierID,
			ProductID:  in.ProductID,
			Quantity:   in.Quantity,
			Received:   decimal.Zero,
			UnitCost:   in.UnitCost,
			Terms:      in.Terms,
			Tax:        tax,
		}
		if po.Number, err = tx.NextNumber(ctx, in.Company, poEntity, poPrefix); err != nil {
			return err
		}
		if err := documents.Record(ctx, tx, po.Subject(), documents.ActionCreate, in.Actor, now); err != nil {
			return err
		}
		return tx.InsertPO(ctx, po)
	})
	if err != nil {
		return nil, err
	}
	s.hooks.Finish(ctx, documents.NewEvent(po.Subject(), documents.ActionCreate, in.Actor, now), nil)
	return po, nil
}

// EditPO changes a pending purchase order. Supplier and product stay fixed.
func (s *Service) EditPO(ctx context.Context, in POInput) (*PurchaseOrder, error) {
	if err := validateLine(in.Quantity, in.UnitCost); err != nil {
		return nil, err
	}
	now := s.now().UTC()
	var po *PurchaseOrder
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		var err error
		if po, err = tx.LockPO(ctx, in.Company, in.Number); err != nil {
			return err
		}
		if err := checkVersion(po.Version, in.Version); err != nil {
			return err
		}
		if err := po.EnsureEditable(); err != nil {
			return err
		}
		if err := periods.EnsureOpen(ctx, tx, po.Company, ledger.ModuleAP, po.Date); err != nil {
			return err
		}
		po.Date = in.Date
		po.Quantity = in.Quantity
		po.UnitCost = in.UnitCost
		po.Terms = in.Terms
		po.Remarks = in.Remarks
		if err := po.MarkEdited(in.Actor.ID, now); err != nil {
			return err
		}
		if err := documents.Record(ctx, tx, po.Subject(), documents.ActionEdit, in.Actor, now); err != nil {
			return err
		}
		return tx.UpdatePO(ctx, po)
	})
	if err != nil {
		return nil, err
	}
	s.hooks.Finish(ctx, documents.NewEvent(po.Subject(), documents.ActionEdit, in.Actor, now), nil)
	return po, nil
}

// PostPO approves the order. The period guard and audit still run although no
// lines are booked.
func (s *Service) PostPO(ctx context.Context, company, number string, version int64, actor shared.Actor) (*PurchaseOrder, error) {
	return s.transitionPO(ctx, company, number, version, actor, documents.ActionPost, func(ctx context.Context, tx TxRepository, po *PurchaseOrder, now time.Time) error {
		_, err := documents.Post(ctx, tx, po.Subject(), nil, actor, now)
		return err
	})
}

// VoidPO withdraws a posted order that has nothing received against it. Admin only.
func (s *Service) VoidPO(ctx context.Context, company, number string, version int64, actor shared.Actor) (*PurchaseOrder, error) {
	return s.transitionPO(ctx, company, number, version, actor, documents.ActionVoid, func(ctx context.Context, tx TxRepository, po *PurchaseOrder, now time.Time) error {
		if po.Received.IsPositive() {
			return ErrPOHasReceipts
		}
		_, err := documents.Void(ctx, tx, po.Subject(), actor, now)
		return err
	})
}

// CancelPO closes a pending order.
func (s *Service) CancelPO(ctx context.Context, company, number string, version int64, reason string, actor shared.Actor) (*PurchaseOrder, error) {
	return s.transitionPO(ctx, company, number, version, actor, documents.ActionCancel, func(ctx context.Context, tx TxRepository, po *PurchaseOrder, now time.Time) error {
		return documents.Cancel(ctx, tx, po.Subject(), actor, reason, now)
	})
}

func (s *Service) transitionPO(ctx context.Context, company, number string, version int64, actor shared.Actor, action string,
	apply func(context.Context, TxRepository, *PurchaseOrder, time.Time) error) (*PurchaseOrder, error) {
	now := s.now().UTC()
	var po *PurchaseOrder
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		var err error
		if po, err = tx.LockPO(ctx, company, number); err != nil {
			return err
		}
		if err := checkVersion(po.Version, version); err != nil {
			return err
		}
		if err := apply(ctx, tx, po, now); err != nil {
			return err
		}
		return tx.SavePOStatus(ctx, po)
	})
	s.finish(ctx, poEntity, company, number, action, actor, now, subjectOf(po), err)
	if err != nil {
		return nil, err
	}
	return po, nil
}

// RRInput describes a receiving report create or edit.
type RRInput struct {
	Company  string
	Number   string
	Version  int64
	Date     time.Time
	POID     int64
	Quantity decimal.Decimal
	Remarks  string
	Actor    shared.Actor
}

// CreateRR stores a pending receiving report against a posted PO.
func (s *Service) CreateRR(ctx context.Context, in RRInput) (*ReceivingReport, error) {
	if err := validateQuantity(in.Quantity); err != nil {
		return nil, err
	}
	now := s.now().UTC()
	var rr *ReceivingReport
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		po, err := tx.LockPOByID(ctx, in.Company, in.POID)
		if err != nil {
			return err
		}
		if po.Status != documents.StatusPosted {
			return ErrPONotPosted
		}
		if err := checkRemaining(po, in.Quantity); err != nil {
			return err
		}
		rr = &ReceivingReport{
			Header: documents.Header{
				Company:   in.Company,
				Date:      in.Date,
				Status:    documents.StatusPending,
				Remarks:   in.Remarks,
				CreatedBy: in.Actor.ID,
				CreatedAt: now,
			},
			POID:       po.ID,
			PONumber:   po.Number,
			SupplierID: po.SupplierID,
			ProductID:  po.ProductID,
			Quantity:   in.Quantity,
			UnitCost:   po.UnitCost,
			Tax:        po.Tax,
		}
		if rr.Number, err = tx.NextNumber(ctx, in.Company, rrEntity, rrPrefix); err != nil {
			return err
		}
		if err := documents.Record(ctx, tx, rr.Subject(), documents.ActionCreate, in.Actor, now); err != nil {
			return err
		}
		return tx.InsertRR(ctx, rr)
	})
	if err != nil {
		return nil, err
	}
	s.hooks.Finish(ctx, documents.NewEvent(rr.Subject(), documents.ActionCreate, in.Actor, now), nil)
	return rr, nil
}

// EditRR changes the date, quantity or remarks of a pending receiving report.
func (s *Service) EditRR(ctx context.Context, in RRInput) (*ReceivingReport, error) {
	if err := validateQuantity(in.Quantity); err != nil {
		return nil, err
	}
	now := s.now().UTC()
	var rr *ReceivingReport
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		var err error
		if rr, err = tx.LockRR(ctx, in.Company, in.Number); err != nil {
			return err
		}
		if err := checkVersion(rr.Version, in.Version); err != nil {
			return err
		}
		if err := rr.EnsureEditable(); err != nil {
			return err
		}
		po, err := tx.LockPOByID(ctx, in.Company, rr.POID)
		if err != nil {
			return err
		}
		if err := checkRemaining(po, in.Quantity); err != nil {
			return err
		}
		if err := periods.EnsureOpen(ctx, tx, rr.Company, ledger.ModuleAP, rr.Date); err != nil {
			return err
		}
		rr.Date = in.Date
		rr.Quantity = in.Quantity
		rr.Remarks = in.Remarks
		if err := rr.MarkEdited(in.Actor.ID, now); err != nil {
			return err
		}
		if err := documents.Record(ctx, tx, rr.Subject(), documents.ActionEdit, in.Actor, now); err != nil {
			return err
		}
		return tx.UpdateRR(ctx, rr)
	})
	if err != nil {
		return nil, err
	}
	s.hooks.Finish(ctx, documents.NewEvent(rr.Subject(), documents.ActionEdit, in.Actor, now), nil)
	return rr, nil
}

// PostRR books the receipt and adds the quantity to the PO's received total.
func (s *Service) PostRR(ctx context.Context, company, number string, version int64, actor shared.Actor) (*ReceivingReport, error) {
	return s.transitionRR(ctx, company, number, version, actor, documents.ActionPost, func(ctx context.Context, tx TxRepository, rr *ReceivingReport, now time.Time) error {
		po, err := tx.LockPOByID(ctx, company, rr.POID)
		if err != nil {
			return err
		}
		if po.Status != documents.StatusPosted {
			return ErrPONotPosted
		}
		if err := checkRemaining(po, rr.Quantity); err != nil {
			return err
		}
		entry := Journal(rr, s.cfg.Accounts, s.cfg.VATRate)
		if _, err := documents.Post(ctx, tx, rr.Subject(), &entry, actor, now); err != nil {
			return err
		}
		return tx.AddReceived(ctx, rr.POID, rr.Quantity)
	})
}

// VoidRR reverses a posted receipt and gives the quantity back to the PO. Admin only.
func (s *Service) VoidRR(ctx context.Context, company, number string, version int64, actor shared.Actor) (*ReceivingReport, error) {
	return s.transitionRR(ctx, company, number, version, actor, documents.ActionVoid, func(ctx context.Context, tx TxRepository, rr *ReceivingReport, now time.Time) error {
		if _, err := documents.Void(ctx, tx, rr.Subject(), actor, now); err != nil {
			return err
		}
		return tx.AddReceived(ctx, rr.POID, rr.Quantity.Neg())
	})
}

// CancelRR closes a pending receipt.
func (s *Service) CancelRR(ctx context.Context, company, number string, version int64, reason string, actor shared.Actor) (*ReceivingReport, error) {
	return s.transitionRR(ctx, company, number, version, actor, documents.ActionCancel, func(ctx context.Context, tx TxRepository, rr *ReceivingReport, now time.Time) error {
		return documents.Cancel(ctx, tx, rr.Subject(), actor, reason, now)
	})
}

func (s *Service) transitionRR(ctx context.Context, company, number string, version int64, actor shared.Actor, action string,
	apply func(context.Context, TxRepository, *ReceivingReport, time.Time) error) (*ReceivingReport, error) {
	now := s.now().UTC()
	var rr *ReceivingReport
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		var err error
		if rr, err = tx.LockRR(ctx, company, number); err != nil {
			return err
		}
		if err := checkVersion(rr.Version, version); err != nil {
			return err
		}
		if err := apply(ctx, tx, rr, now); err != nil {
			return err
		}
		return tx.SaveRRStatus(ctx, rr)
	})
	var subject *documents.Subject
	if rr != nil {
		sub := rr.Subject()
		subject = &sub
	}
	s.finish(ctx, rrEntity, company, number, action, actor, now, subject, err)
	if err != nil {
		return nil, err
	}
	return rr, nil
}

func (s *Service) finish(ctx context.Context, entity, company, number, action string, actor shared.Actor, now time.Time, subject *documents.Subject, err error) {
	event := documents.Event{Entity: entity, Module: ledger.ModuleAP, Action: action, Company: company, Number: number, ActorID: actor.ID, At: now}
	if subject != nil {
		event = documents.NewEvent(*subject, action, actor, now)
	}
	s.hooks.Finish(ctx, event, err)
}

func subjectOf(po *PurchaseOrder) *documents.Subject {
	if po == nil {
		return nil
	}
	sub := po.Subject()
	return &sub
}

// checkVersion rejects stale writes. A zero expected version skips the check.
func checkVersion(current, expected int64) error {
	if expected != 0 && current != expected {
		return documents.ErrConcurrentUpdate
	}
	return nil
}

// GetPO returns a purchase order by number.
func (s *Service) GetPO(ctx context.Context, company, number string) (*PurchaseOrder, error) {
	return s.repo.GetPO(ctx, company, number)
}

// ListPOs returns purchase orders matching the filter.
func (s *Service) ListPOs(ctx context.Context, filter ListFilter) ([]PurchaseOrder, error) {
	return s.repo.ListPOs(ctx, clampLimit(filter))
}

// GetRR returns a receiving report by number.
func (s *Service) GetRR(ctx context.Context, company, number string) (*ReceivingReport, error) {
	return s.repo.GetRR(ctx, company, number)
}

// ListRRs returns receiving reports matching the filter.
func (s *Service) ListRRs(ctx context.Context, filter ListFilter) ([]ReceivingReport, error) {
	return s.repo.ListRRs(ctx, clampLimit(filter))
}

func clampLimit(filter ListFilter) ListFilter {
	if filter.Limit <= 0 || filter.Limit > 200 {
		filter.Limit = 50
	}
	return filter
}
