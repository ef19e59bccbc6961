// Package procurement handles purchase orders and the receiving reports that
// book goods received against them.
package procurement

import (
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/harborline/ibs/internal/documents"
	"github.com/harborline/ibs/internal/ledger"
	"github.com/harborline/ibs/internal/shared"
)

const (
	poEntity = "purchase_order"
	poPrefix = "PO"
	rrEntity = "receiving_report"
	rrPrefix = "RR"
)

// PurchaseOrder commits to buy a quantity of one product from a supplier.
// Posting it has no ledger effect.
type PurchaseOrder struct {
	documents.Header
	SupplierID int64             `json:"supplier_id"`
	ProductID  int64             `json:"product_id"`
	Quantity   decimal.Decimal   `json:"quantity"`
	Received   decimal.Decimal   `json:"received"`
	UnitCost   decimal.Decimal   `json:"unit_cost"`
	Terms      string            `json:"terms,omitempty"`
	Tax        ledger.TaxProfile `json:"tax"`
}

// Remaining is the quantity not yet received.
func (po *PurchaseOrder) Remaining() decimal.Decimal {
	return po.Quantity.Sub(po.Received)
}

// Subject returns the workflow subject.
func (po *PurchaseOrder) Subject() documents.Subject {
	return documents.Subject{Entity: poEntity, Module: ledger.ModuleAP, Header: &po.Header}
}

// ReceivingReport records goods received against a posted purchase order.
type ReceivingReport struct {
	documents.Header
	POID       int64             `json:"po_id"`
	PONumber   string            `json:"po_number"`
	SupplierID int64             `json:"supplier_id"`
	ProductID  int64             `json:"product_id"`
	Quantity   decimal.Decimal   `json:"quantity"`
	UnitCost   decimal.Decimal   `json:"unit_cost"`
	Tax        ledger.TaxProfile `json:"tax"`
}

// Gross is quantity times unit cost, rounded to centavos.
func (rr *ReceivingReport) Gross() decimal.Decimal {
	return ledger.Round2(rr.Quantity.Mul(rr.UnitCost))
}

// Subject returns the workflow subject.
func (rr *ReceivingReport) Subject() documents.Subject {
	return documents.Subject{Entity: rrEntity, Module: ledger.ModuleAP, Header: &rr.Header}
}

var (
	// ErrOverReceipt indicates a receipt above the PO's remaining quantity.
	ErrOverReceipt = fmt.Errorf("%w: quantity received exceeds the remaining quantity of the purchase order", shared.ErrConflict)
	// ErrPONotPosted indicates a receipt against an unposted PO.
	ErrPONotPosted = fmt.Errorf("%w: purchase order is not posted", shared.ErrInvalidInput)
	// ErrPOHasReceipts indicates a void attempt on a PO with posted receipts.
	ErrPOHasReceipts = fmt.Errorf("%w: purchase order has posted receiving reports", shared.ErrConflict)
	// ErrInvalidQuantity indicates a non-positive quantity or unit cost.
	ErrInvalidQuantity = fmt.Errorf("%w: quantity and unit cost must be greater than zero", shared.ErrInvalidInput)
	// ErrSupplierNotFound indicates an unknown supplier.
	ErrSupplierNotFound = fmt.Errorf("%w: supplier not found", shared.ErrNotFound)
)

// validateLine checks a PO line. A zero cost would leave receipts with no journal to post.
func validateLine(quantity, unitCost decimal.Decimal) error {
	if !unitCost.IsPositive() {
		return ErrInvalidQuantity
	}
	return validateQuantity(quantity)
}

func validateQuantity(quantity decimal.Decimal) error {
	if !quantity.IsPositive() {
		return ErrInvalidQuantity
	}
	return nil
}

func checkRemaining(po *PurchaseOrder, quantity decimal.Decimal) error {
	if quantity.GreaterThan(po.Remaining()) {
		return fmt.Errorf("%w: requested %s, remaining %s", ErrOverReceipt, quantity.String(), po.Remaining().String())
	}
	return nil
}
