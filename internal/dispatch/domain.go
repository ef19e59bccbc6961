// Package dispatch prices tug dispatch tickets from terminal tariffs and bills
// them to customers.
package dispatch

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/harborline/ibs/internal/documents"
	"github.com/harborline/ibs/internal/ledger"
	"github.com/harborline/ibs/internal/shared"
)

const (
	entity = "dispatch_billing"
	prefix = "DSB"
)

// MinimumBillableHours is the least time charged for any dispatch.
var MinimumBillableHours = decimal.NewFromInt(1)

var quarterHour = decimal.RequireFromString("0.25")

// Tariff holds the hourly rates for a terminal and customer type.
type Tariff struct {
	Company      string          `json:"company"`
	Terminal     string          `json:"terminal"`
	CustomerType string          `json:"customer_type"`
	DispatchRate decimal.Decimal `json:"dispatch_rate"`
	BAFRate      decimal.Decimal `json:"baf_rate"`
}

// Charges is the priced result of a ticket.
type Charges struct {
	BillableHours    decimal.Decimal `json:"billable_hours"`
	DispatchCharge   decimal.Decimal `json:"dispatch_charge"`
	BAFCharge        decimal.Decimal `json:"baf_charge"`
	DispatchDiscount decimal.Decimal `json:"dispatch_discount"`
	BAFDiscount      decimal.Decimal `json:"baf_discount"`
	NetBilling       decimal.Decimal `json:"net_billing"`
}

// Ticket records one tug dispatch.
type Ticket struct {
	ID                  int64           `json:"id"`
	Number              string          `json:"number"`
	Company             string          `json:"company"`
	CustomerID          int64           `json:"customer_id"`
	CustomerType        string          `json:"customer_type"`
	Vessel              string          `json:"vessel"`
	Terminal            string          `json:"terminal"`
	DateLeft            time.Time       `json:"date_left"`
	DateArrived         time.Time       `json:"date_arrived"`
	DispatchDiscountPct decimal.Decimal `json:"dispatch_discount_pct"`
	BAFDiscountPct      decimal.Decimal `json:"baf_discount_pct"`
	Charges
	BillingID *int64    `json:"billing_id,omitempty"`
	CreatedBy string    `json:"created_by"`
	CreatedAt time.Time `json:"created_at"`
}

// Billed reports whether the ticket belongs to an active billing.
func (t Ticket) Billed() bool {
	return t.BillingID != nil
}

// Billing groups tickets of one customer into a receivable document.
type Billing struct {
	documents.Header
	CustomerID int64             `json:"customer_id"`
	TicketIDs  []int64           `json:"ticket_ids"`
	Amount     decimal.Decimal   `json:"amount"`
	Tax        ledger.TaxProfile `json:"tax"`
}

// Subject returns the workflow subject.
func (b *Billing) Subject() documents.Subject {
	return documents.Subject{Entity: entity, Module: ledger.ModuleDispatch, Header: &b.Header}
}

var (
	// ErrTariffNotFound indicates no tariff for the terminal and customer type.
	ErrTariffNotFound = fmt.Errorf("%w: no tariff for terminal and customer type", shared.ErrNotFound)
	// ErrTicketNotFound indicates a missing ticket.
	ErrTicketNotFound = fmt.Errorf("%w: dispatch ticket not found", shared.ErrNotFound)
	// ErrInvalidSchedule indicates the vessel arrived before it left.
	ErrInvalidSchedule = fmt.Errorf("%w: date arrived must be after date left", shared.ErrInvalidInput)
	// ErrInvalidDiscount indicates a discount outside 0..100 percent.
	ErrInvalidDiscount = fmt.Errorf("%w: discount must be between 0 and 100 percent", shared.ErrInvalidInput)
	// ErrNoTickets indicates an empty billing.
	ErrNoTickets = fmt.Errorf("%w: billing needs at least one ticket", shared.ErrInvalidInput)
	// ErrMixedCustomers indicates tickets of different customers in one billing.
	ErrMixedCustomers = fmt.Errorf("%w: all tickets must belong to the billing customer", shared.ErrInvalidInput)
	// ErrTicketAlreadyBilled indicates a ticket held by another active billing.
	ErrTicketAlreadyBilled = fmt.Errorf("%w: ticket is already billed", shared.ErrConflict)
)

// BillableHours rounds elapsed time up to the next quarter hour, never below
// MinimumBillableHours.
func BillableHours(left, arrived time.Time) (decimal.Decimal, error) {
	if !arrived.After(left) {
		return decimal.Zero, ErrInvalidSchedule
	}
	hours := decimal.NewFromInt(int64(arrived.Sub(left) / time.Second)).Div(decimal.NewFromInt(3600))
	quarters := hours.Div(quarterHour).Ceil()
	billable := quarters.Mul(quarterHour)
	if billable.LessThan(MinimumBillableHours) {
		billable = MinimumBillableHours
	}
	return billable, nil
}

// ComputeCharges prices a ticket: hourly dispatch and bunker adjustment charges
// less their percentage discounts.
func ComputeCharges(t Ticket, tariff Tariff) (Charges, error) {
	for _, pct := range []decimal.Decimal{t.DispatchDiscountPct, t.BAFDiscountPct} {
		if pct.IsNegative() || pct.GreaterThan(decimal.NewFromInt(100)) {
			return Charges{}, ErrInvalidDiscount
		}
	}
	hours, err := BillableHours(t.DateLeft, t.DateArrived)
	if err != nil {
		return Charges{}, err
	}
	hundred := decimal.NewFromInt(100)
	c := Charges{
		BillableHours:  hours,
		DispatchCharge: ledger.Round2(hours.Mul(tariff.DispatchRate)),
		BAFCharge:      ledger.Round2(hours.Mul(tariff.BAFRate)),
	}
	c.DispatchDiscount = ledger.Round2(c.DispatchCharge.Mul(t.DispatchDiscountPct).Div(hundred))
	c.BAFDiscount = ledger.Round2(c.BAFCharge.Mul(t.BAFDiscountPct).Div(hundred))
	c.NetBilling = c.DispatchCharge.Sub(c.DispatchDiscount).Add(c.BAFCharge).Sub(c.BAFDiscount)
	return c, nil
}

// Total sums the net billing of tickets.
func Total(tickets []Ticket) decimal.Decimal {
	total := decimal.Zero
	for _, t := range tickets {
		total = total.Add(t.NetBilling)
	}
	return total
}
