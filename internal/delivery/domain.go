// Package delivery records delivery receipts issued against customer orders and
// books the sale, the freight charged and the cost of goods delivered.
package delivery

import (
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/harborline/ibs/internal/documents"
	"github.com/harborline/ibs/internal/ledger"
	"github.com/harborline/ibs/internal/shared"
)

const (
	entity = "delivery_receipt"
	prefix = "DR"
)

// Order is the customer order a receipt delivers against.
type Order struct {
	ID         int64
	Number     string
	Company    string
	CustomerID int64
	ProductID  int64
	Quantity   decimal.Decimal
	Delivered  decimal.Decimal
	UnitPrice  decimal.Decimal
	Posted     bool
	Tax        ledger.TaxProfile
}

// Remaining is the undelivered quantity.
func (o Order) Remaining() decimal.Decimal {
	return o.Quantity.Sub(o.Delivered)
}

// Receipt is a delivery receipt.
type Receipt struct {
	documents.Header
	OrderID     int64             `json:"order_id"`
	OrderNumber string            `json:"order_number"`
	CustomerID  int64             `json:"customer_id"`
	ProductID   int64             `json:"product_id"`
	Quantity    decimal.Decimal   `json:"quantity"`
	UnitPrice   decimal.Decimal   `json:"unit_price"`
	Freight     decimal.Decimal   `json:"freight"`
	UnitCost    decimal.Decimal   `json:"unit_cost"`
	Tax         ledger.TaxProfile `json:"tax"`
}

// Gross is quantity times unit price, rounded to centavos.
func (r *Receipt) Gross() decimal.Decimal {
	return ledger.Round2(r.Quantity.Mul(r.UnitPrice))
}

// Cost is the inventory cost of the goods delivered.
func (r *Receipt) Cost() decimal.Decimal {
	return ledger.Round2(r.Quantity.Mul(r.UnitCost))
}

// Subject returns the workflow subject.
func (r *Receipt) Subject() documents.Subject {
	return documents.Subject{Entity: entity, Module: ledger.ModuleAR, Header: &r.Header}
}

var (
	// ErrOrderNotFound indicates the customer order is missing.
	ErrOrderNotFound = fmt.Errorf("%w: customer order not found", shared.ErrNotFound)
	// ErrOrderNotPosted indicates the order has not been approved.
	ErrOrderNotPosted = fmt.Errorf("%w: customer order is not posted", shared.ErrInvalidInput)
	// ErrOverDelivery indicates the receipt exceeds the undelivered quantity.
	ErrOverDelivery = fmt.Errorf("%w: quantity exceeds the undelivered balance of the order", shared.ErrConflict)
	// ErrInvalidQuantity indicates a non-positive quantity or negative charges.
	ErrInvalidQuantity = fmt.Errorf("%w: quantity must be greater than zero and charges cannot be negative", shared.ErrInvalidInput)
)

// validateAmounts checks the receipt figures before any lookup.
func validateAmounts(quantity, freight, unitCost decimal.Decimal) error {
	if !quantity.IsPositive() || freight.IsNegative() || unitCost.IsNegative() {
		return ErrInvalidQuantity
	}
	return nil
}

// checkRemaining fails with ErrOverDelivery when quantity exceeds the order balance.
func checkRemaining(order Order, quantity decimal.Decimal) error {
	if quantity.GreaterThan(order.Remaining()) {
		return fmt.Errorf("%w: requested %s, remaining %s", ErrOverDelivery, quantity.String(), order.Remaining().String())
	}
	return nil
}
