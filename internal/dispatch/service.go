package dispatch

import (
	"context"
	"sort"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/harborline/ibs/internal/documents"
	"github.com/harborline/ibs/internal/ledger"
	"github.com/harborline/ibs/internal/periods"
	"github.com/harborline/ibs/internal/shared"
)

const (
	ticketEntity = "dispatch_ticket"
	ticketPrefix = "DT"
)

// Customer carries the billing attributes of a dispatch customer.
type Customer struct {
	ID   int64
	Type string
	Tax  ledger.TaxProfile
}

// RepositoryPort describes persistence required by the service.
type RepositoryPort interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
	GetTicket(ctx context.Context, company, number string) (*Ticket, error)
	ListTickets(ctx context.Context, filter TicketFilter) ([]Ticket, error)
	GetBilling(ctx context.Context, company, number string) (*Billing, error)
	ListBillings(ctx context.Context, filter BillingFilter) ([]Billing, error)
	ListTariffs(ctx context.Context, company string) ([]Tariff, error)
}

// TxRepository exposes transactional operations.
type TxRepository interface {
	documents.Tx
	NextNumber(ctx context.Context, company, entity, prefix string) (string, error)
	Customer(ctx context.Context, company string, id int64) (Customer, error)
	Tariff(ctx context.Context, company, terminal, customerType string) (Tariff, error)
	UpsertTariff(ctx context.Context, t Tariff) error
	InsertTicket(ctx context.Context, t *Ticket) error
	LockTickets(ctx context.Context, company string, ids []int64) ([]Ticket, error)
	AssignTickets(ctx context.Context, billingID int64, ids []int64) error
	ReleaseTickets(ctx context.Context, billingID int64) error
	InsertBilling(ctx context.Context, b *Billing) error
	UpdateBilling(ctx context.Context, b *Billing) error
	LockBilling(ctx context.Context, company, number string) (*Billing, error)
	SaveStatus(ctx context.Context, b *Billing) error
}

// TicketFilter narrows ticket listings.
type TicketFilter struct {
	Company    string
	CustomerID int64
	Unbilled   bool
	From       time.Time
	To         time.Time
	Limit      int
}

// BillingFilter narrows billing listings.
type BillingFilter struct {
	Company    string
	CustomerID int64
	Status     documents.Status
	Limit      int
}

// Config carries posting parameters.
type Config struct {
	Accounts ledger.AccountMap
	VATRate  decimal.Decimal
}

// Service prices tickets and runs the billing workflow.
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

// SaveTariff creates or replaces the rates for a terminal and customer type.
func (s *Service) SaveTariff(ctx context.Context, t Tariff, actor shared.Actor) error {
	if t.DispatchRate.IsNegative() || t.BAFRate.IsNegative() || strings.TrimSpace(t.Terminal) == "" || strings.TrimSpace(t.CustomerType) == "" {
		return shared.ErrInvalidInput
	}
	return s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		if err := tx.UpsertTariff(ctx, t); err != nil {
			return err
		}
		return tx.RecordAudit(ctx, shared.AuditLog{
			Company:  t.Company,
			ActorID:  actor.ID,
			Action:   "dispatch_tariff.save",
			Entity:   "dispatch_tariff",
			EntityID: t.Terminal + "/" + t.CustomerType,
			Meta:     map[string]any{"dispatch_rate": t.DispatchRate.String(), "baf_rate": t.BAFRate.String()},
			At:       s.now().UTC(),
		})
	})
}

// ListTariffs returns the company's tariffs.
func (s *Service) ListTariffs(ctx context.Context, company string) ([]Tariff, error) {
	return s.repo.ListTariffs(ctx, company)
}

// TicketInput describes a new dispatch ticket.
type TicketInput struct {
	Company             string
	CustomerID          int64
	Vessel              string
	Terminal            string
	DateLeft            time.Time
	DateArrived         time.Time
	DispatchDiscountPct decimal.Decimal
	BAFDiscountPct      decimal.Decimal
	Actor               shared.Actor
}

// CreateTicket prices and stores a ticket using the tariff for the terminal and
// the customer's type.
func (s *Service) CreateTicket(ctx context.Context, in TicketInput) (*Ticket, error) {
	now := s.now().UTC()
	var ticket *Ticket
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		customer, err := tx.Customer(ctx, in.Company, in.CustomerID)
		if err != nil {
			return err
		}
		tariff, err := tx.Tariff(ctx, in.Company, in.Terminal, customer.Type)
		if err != nil {
			return err
		}
		ticket = &Ticket{
			Company:             in.Company,
			CustomerID:          customer.ID,
			CustomerType:        customer.Type,
			Vessel:              in.Vessel,
			Terminal:            in.Terminal,
			DateLeft:            in.DateLeft,
			DateArrived:         in.DateArrived,
			DispatchDiscountPct: in.DispatchDiscountPct,
			BAFDiscountPct:      in.BAFDiscountPct,
			CreatedBy:           in.Actor.ID,
			CreatedAt:           now,
		}
		if ticket.Charges, err = ComputeCharges(*ticket, tariff); err != nil {
			return err
		}
		if ticket.Number, err = tx.NextNumber(ctx, in.Company, ticketEntity, ticketPrefix); err != nil {
			return err
		}
		if err := tx.InsertTicket(ctx, ticket); err != nil {
			return err
		}
		return tx.RecordAudit(ctx, shared.AuditLog{
			Company:  in.Company,
			ActorID:  in.Actor.ID,
			Action:   ticketEntity + "." + documents.ActionCreate,
			Entity:   ticketEntity,
			EntityID: ticket.Number,
			Meta:     map[string]any{"net_billing": ticket.NetBilling.StringFixed(2)},
			At:       now,
		})
	})
	if err != nil {
		return nil, err
	}
	return ticket, nil
}

// GetTicket returns a ticket by number.
func (s *Service) GetTicket(ctx context.Context, company, number string) (*Ticket, error) {
	return s.repo.GetTicket(ctx, company, number)
}

// ListTickets returns tickets matching the filter.
func (s *Service) ListTickets(ctx context.Context, filter TicketFilter) ([]Ticket, error) {
	if filter.Limit <= 0 || filter.Limit > 500 {
		filter.Limit = 100
	}
	return s.repo.ListTickets(ctx, filter)
}

// BillingInput describes a billing create or edit.
type BillingInput struct {
	Company    string
	Number     string
	Version    int64
	Date       time.Time
	CustomerID int64
	TicketIDs  []int64
	Remarks    string
	Actor      shared.Actor
}

// CreateBilling groups unbilled tickets of one customer into a pending billing.
func (s *Service) CreateBilling(ctx context.Context, in BillingInput) (*Billing, error) {
	ids := normalizeIDs(in.TicketIDs)
	if len(ids) == 0 {
		return nil, ErrNoTickets
	}
	now := s.now().UTC()
	var billing *Billing
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		customer, err := tx.Customer(ctx, in.Company, in.CustomerID)
		if err != nil {
			return err
		}
		tickets, err := s.claimable(ctx, tx, in.Company, customer.ID, ids, 0)
		if err != nil {
			return err
		}
		billing = &Billing{
			Header: documents.Header{
				Company:   in.Company,
				Date:      in.Date,
				Status:    documents.StatusPending,
				Remarks:   in.Remarks,
				CreatedBy: in.Actor.ID,
				CreatedAt: now,
			},
			CustomerID: customer.ID,
			TicketIDs:  ids,
			Amount:     Total(tickets),
			Tax:        customer.Tax,
		}
		if billing.Number, err = tx.NextNumber(ctx, in.Company, entity, prefix); err != nil {
			return err
		}
		if err := documents.Record(ctx, tx, billing.Subject(), documents.ActionCreate, in.Actor, now); err != nil {
			return err
		}
		if err := tx.InsertBilling(ctx, billing); err != nil {
			return err
		}
		return tx.AssignTickets(ctx, billing.ID, ids)
	})
	if err != nil {
		return nil, err
	}
	s.hooks.Finish(ctx, documents.NewEvent(billing.Subject(), documents.ActionCreate, in.Actor, now), nil)
	return billing, nil
}

// EditBilling replaces the ticket set, date or remarks of a pending billing.
func (s *Service) EditBilling(ctx context.Context, in BillingInput) (*Billing, error) {
	ids := normalizeIDs(in.TicketIDs)
	if len(ids) == 0 {
		return nil, ErrNoTickets
	}
	now := s.now().UTC()
	var billing *Billing
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		var err error
		if billing, err = s.lock(ctx, tx, in.Company, in.Number, in.Version); err != nil {
			return err
		}
		if err := billing.EnsureEditable(); err != nil {
			return err
		}
		if err := periods.EnsureOpen(ctx, tx, billing.Company, ledger.ModuleDispatch, billing.Date); err != nil {
			return err
		}
		tickets, err := s.claimable(ctx, tx, in.Company, billing.CustomerID, ids, billing.ID)
		if err != nil {
			return err
		}
		billing.Date = in.Date
		billing.Remarks = in.Remarks
		billing.TicketIDs = ids
		billing.Amount = Total(tickets)
		if err := billing.MarkEdited(in.Actor.ID, now); err != nil {
			return err
		}
		if err := documents.Record(ctx, tx, billing.Subject(), documents.ActionEdit, in.Actor, now); err != nil {
			return err
		}
		if err := tx.UpdateBilling(ctx, billing); err != nil {
			return err
		}
		if err := tx.ReleaseTickets(ctx, billing.ID); err != nil {
			return err
		}
		return tx.AssignTickets(ctx, billing.ID, ids)
	})
	if err != nil {
		return nil, err
	}
	s.hooks.Finish(ctx, documents.NewEvent(billing.Subject(), documents.ActionEdit, in.Actor, now), nil)
	return billing, nil
}

// claimable locks the tickets and checks they belong to the customer and are
// not held by another billing.
func (s *Service) claimable(ctx context.Context, tx TxRepository, company string, customerID int64, ids []int64, billingID int64) ([]Ticket, error) {
	tickets, err := tx.LockTickets(ctx, company, ids)
	if err != nil {
		return nil, err
	}
	if len(tickets) != len(ids) {
		return nil, ErrTicketNotFound
	}
	for _, t := range tickets {
		if t.CustomerID != customerID {
			return nil, ErrMixedCustomers
		}
		if t.BillingID != nil && *t.BillingID != billingID {
			return nil, ErrTicketAlreadyBilled
		}
	}
	return tickets, nil
}

// PostBilling books the receivable and revenue.
func (s *Service) PostBilling(ctx context.Context, company, number string, version int64, actor shared.Actor) (*Billing, error) {
	return s.transition(ctx, company, number, version, actor, documents.ActionPost, func(ctx context.Context, tx TxRepository, b *Billing, now time.Time) error {
		entry := Journal(b, s.cfg.Accounts, s.cfg.VATRate)
		_, err := documents.Post(ctx, tx, b.Subject(), &entry, actor, now)
		return err
	})
}

// VoidBilling reverses a posted billing and frees its tickets for rebilling. Admin only.
func (s *Service) VoidBilling(ctx context.Context, company, number string, version int64, actor shared.Actor) (*Billing, error) {
	return s.transition(ctx, company, number, version, actor, documents.ActionVoid, func(ctx context.Context, tx TxRepository, b *Billing, now time.Time) error {
		if _, err := documents.Void(ctx, tx, b.Subject(), actor, now); err != nil {
			return err
		}
		return tx.ReleaseTickets(ctx, b.ID)
	})
}

// CancelBilling closes a pending billing and frees its tickets.
func (s *Service) CancelBilling(ctx context.Context, company, number string, version int64, reason string, actor shared.Actor) (*Billing, error) {
	return s.transition(ctx, company, number, version, actor, documents.ActionCancel, func(ctx context.Context, tx TxRepository, b *Billing, now time.Time) error {
		if err := documents.Cancel(ctx, tx, b.Subject(), actor, reason, now); err != nil {
			return err
		}
		return tx.ReleaseTickets(ctx, b.ID)
	})
}

func (s *Service) transition(ctx context.Context, company, number string, version int64, actor shared.Actor, action string,
	apply func(context.Context, TxRepository, *Billing, time.Time) error) (*Billing, error) {
	now := s.now().UTC()
	var billing *Billing
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		var err error
		if billing, err = s.lock(ctx, tx, company, number, version); err != nil {
			return err
		}
		if err := apply(ctx, tx, billing, now); err != nil {
			return err
		}
		return tx.SaveStatus(ctx, billing)
	})
	event := documents.Event{Entity: entity, Module: ledger.ModuleDispatch, Action: action, Company: company, Number: number, ActorID: actor.ID, At: now}
	if billing != nil {
		event = documents.NewEvent(billing.Subject(), action, actor, now)
	}
	s.hooks.Finish(ctx, event, err)
	if err != nil {
		return nil, err
	}
	return billing, nil
}

func (s *Service) lock(ctx context.Context, tx TxRepository, company, number string, version int64) (*Billing, error) {
	billing, err := tx.LockBilling(ctx, company, number)
	if err != nil {
		return nil, err
	}
	if version != 0 && billing.Version != version {
		return nil, documents.ErrConcurrentUpdate
	}
	return billing, nil
}

// GetBilling returns a billing by number.
func (s *Service) GetBilling(ctx context.Context, company, number string) (*Billing, error) {
	return s.repo.GetBilling(ctx, company, number)
}

// ListBillings returns billings matching the filter.
func (s *Service) ListBillings(ctx context.Context, filter BillingFilter) ([]Billing, error) {
	if filter.Limit <= 0 || filter.Limit > 200 {
		filter.Limit = 50
	}
	return s.repo.ListBillings(ctx, filter)
}

func normalizeIDs(ids []int64) []int64 {
	seen := make(map[int64]struct{}, len(ids))
	out := make([]int64, 0, len(ids))
	for _, id := range ids {
		if _, ok := seen[id]; ok || id <= 0 {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}
