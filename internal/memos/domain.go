// Package memos implements debit and credit memos raised against posted sales
// and service invoices.
package memos

import (
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/harborline/ibs/internal/documents"
	"github.com/harborline/ibs/internal/ledger"
	"github.com/harborline/ibs/internal/shared"
)

// Kind distinguishes debit from credit memos.
type Kind string

const (
	KindDebit  Kind = "DEBIT"
	KindCredit Kind = "CREDIT"
)

// Prefix returns the document number prefix.
func (k Kind) Prefix() string {
	if k == KindCredit {
		return "CM"
	}
	return "DM"
}

// Entity returns the audit entity name.
func (k Kind) Entity() string {
	if k == KindCredit {
		return "credit_memo"
	}
	return "debit_memo"
}

// ParseKind validates a memo kind.
func ParseKind(raw string) (Kind, error) {
	switch k := Kind(raw); k {
	case KindDebit, KindCredit:
		return k, nil
	default:
		return "", fmt.Errorf("%w: unknown memo kind %q", shared.ErrInvalidInput, raw)
	}
}

// SourceType is the invoice a memo adjusts.
type SourceType string

const (
	SourceSalesInvoice   SourceType = "SI"
	SourceServiceInvoice SourceType = "SV"
)

// Source is the invoice data a memo needs.
type Source struct {
	ID         int64
	Type       SourceType
	Number     string
	Company    string
	CustomerID int64
	Posted     bool
	Tax        ledger.TaxProfile
}

// Memo is a debit or credit memo.
type Memo struct {
	documents.Header
	Kind          Kind              `json:"kind"`
	SourceType    SourceType        `json:"source_type"`
	SourceID      int64             `json:"source_id"`
	SourceNumber  string            `json:"source_number"`
	CustomerID    int64             `json:"customer_id"`
	Description   string            `json:"description"`
	AdjustedPrice decimal.Decimal   `json:"adjusted_price"`
	Quantity      decimal.Decimal   `json:"quantity"`
	Amount        decimal.Decimal   `json:"amount"`
	Total         decimal.Decimal   `json:"total"`
	Tax           ledger.TaxProfile `json:"tax"`
}

var (
	// ErrSourceNotFound indicates the referenced invoice is missing.
	ErrSourceNotFound = fmt.Errorf("%w: source invoice not found", shared.ErrNotFound)
	// ErrSourceNotPosted indicates the referenced invoice is still unposted.
	ErrSourceNotPosted = fmt.Errorf("%w: source invoice is not posted", shared.ErrInvalidInput)
	// ErrInvalidAmount indicates a memo total that is not positive.
	ErrInvalidAmount = fmt.Errorf("%w: memo amount must be greater than zero", shared.ErrInvalidInput)
	// ErrInvalidSourceType indicates an unknown source type.
	ErrInvalidSourceType = shared.NewClassError(shared.ErrInvalidInput, "memos: source type must be SI or SV")
)

// ComputeTotal applies the memo amount rule: sales invoices adjust price times
// quantity, service invoices carry a flat amount.
func ComputeTotal(source SourceType, adjustedPrice, quantity, amount decimal.Decimal) (decimal.Decimal, error) {
	var total decimal.Decimal
	switch source {
	case SourceSalesInvoice:
		total = adjustedPrice.Mul(quantity)
	case SourceServiceInvoice:
		total = amount
	default:
		return decimal.Zero, ErrInvalidSourceType
	}
	total = ledger.Round2(total)
	if !total.IsPositive() {
		return decimal.Zero, ErrInvalidAmount
	}
	return total, nil
}

// Subject returns the workflow subject for the memo.
func (m *Memo) Subject() documents.Subject {
	return documents.Subject{Entity: m.Kind.Entity(), Module: ledger.ModuleAR, Header: &m.Header}
}
