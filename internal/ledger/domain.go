package ledger

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/harborline/ibs/internal/shared"
)

// NormalBalance is the side on which an account naturally increases.
type NormalBalance string

const (
	NormalDebit  NormalBalance = "DEBIT"
	NormalCredit NormalBalance = "CREDIT"
)

// AccountType enumerates chart of accounts categories.
type AccountType string

const (
	AccountTypeAsset     AccountType = "ASSET"
	AccountTypeLiability AccountType = "LIABILITY"
	AccountTypeEquity    AccountType = "EQUITY"
	AccountTypeRevenue   AccountType = "REVENUE"
	AccountTypeExpense   AccountType = "EXPENSE"
)

// MaxLevel is the deepest level of the chart of accounts.
const MaxLevel = 5

// Module tags the originating book of a ledger line.
type Module string

const (
	ModuleAR       Module = "AR"
	ModuleAP       Module = "AP"
	ModuleDispatch Module = "DISPATCH"
	ModuleGL       Module = "GL"
)

// SubsidiaryType identifies the sub-ledger a line belongs to.
type SubsidiaryType string

const (
	SubsidiaryNone     SubsidiaryType = ""
	SubsidiaryCustomer SubsidiaryType = "CUSTOMER"
	SubsidiarySupplier SubsidiaryType = "SUPPLIER"
)

// AccountTitle models a chart of accounts node.
type AccountTitle struct {
	ID            int64
	Company       string
	Number        string
	Name          string
	Type          AccountType
	NormalBalance NormalBalance
	Level         int
	ParentNumber  string
	IsMain        bool
	Role          AccountRole
	CreatedAt     time.Time
}

// EffectiveRole returns the explicit role or the one derived from the name.
func (a AccountTitle) EffectiveRole() AccountRole {
	if a.Role != RoleNone {
		return a.Role
	}
	return ClassifyRole(a.Name)
}

// Balance applies the normal balance rule to the supplied movement.
func (a AccountTitle) Balance(debit, credit decimal.Decimal) decimal.Decimal {
	if a.NormalBalance == NormalCredit {
		return credit.Sub(debit)
	}
	return debit.Sub(credit)
}

// Line is a single general ledger book row.
type Line struct {
	ID             int64           `json:"id"`
	BatchID        uuid.UUID       `json:"batch_id"`
	Company        string          `json:"company"`
	Date           time.Time       `json:"date"`
	Reference      string          `json:"reference"`
	AccountNumber  string          `json:"account_number"`
	AccountTitle   string          `json:"account_title"`
	Description    string          `json:"description"`
	Debit          decimal.Decimal `json:"debit"`
	Credit         decimal.Decimal `json:"credit"`
	SubsidiaryType SubsidiaryType  `json:"subsidiary_type,omitempty"`
	SubsidiaryID   int64           `json:"subsidiary_id,omitempty"`
	Module         Module          `json:"module"`
	CreatedBy      string          `json:"created_by"`
	CreatedAt      time.Time       `json:"created_at"`
}

// Leg is a requested debit or credit against an account before title resolution.
type Leg struct {
	AccountNumber  string
	Debit          decimal.Decimal
	Credit         decimal.Decimal
	SubsidiaryType SubsidiaryType
	SubsidiaryID   int64
}

// DebitLeg builds a debit leg.
func DebitLeg(account string, amount decimal.Decimal) Leg {
	return Leg{AccountNumber: account, Debit: amount, Credit: decimal.Zero}
}

// CreditLeg builds a credit leg.
func CreditLeg(account string, amount decimal.Decimal) Leg {
	return Leg{AccountNumber: account, Debit: decimal.Zero, Credit: amount}
}

// WithSubsidiary tags the leg with a sub-ledger reference.
func (l Leg) WithSubsidiary(kind SubsidiaryType, id int64) Leg {
	l.SubsidiaryType = kind
	l.SubsidiaryID = id
	return l
}

// IsZero reports whether the leg carries no amount on either side.
func (l Leg) IsZero() bool {
	return l.Debit.IsZero() && l.Credit.IsZero()
}

// Entry groups the legs generated by one document posting.
type Entry struct {
	Company     string
	Reference   string
	Date        time.Time
	Module      Module
	Description string
	CreatedBy   string
	Legs        []Leg
}

var (
	// ErrUnbalanced indicates debit != credit.
	ErrUnbalanced = shared.NewClassError(shared.ErrUnprocessable, "Debit and Credit is not equal, check your entries")
	// ErrEmptyEntry indicates no non-zero legs were produced.
	ErrEmptyEntry = shared.NewClassError(shared.ErrUnprocessable, "ledger: entry has no lines")
	// ErrReferenceRequired indicates a missing document reference.
	ErrReferenceRequired = shared.NewClassError(shared.ErrUnprocessable, "ledger: reference required")
	// ErrNegativeAmount indicates a leg with a negative amount.
	ErrNegativeAmount = shared.NewClassError(shared.ErrUnprocessable, "ledger: negative amount")
)

// AccountTitleNotFoundError is returned when a required account is missing.
type AccountTitleNotFoundError struct {
	Number string
}

func (e *AccountTitleNotFoundError) Error() string {
	return fmt.Sprintf("Account title '%s' not found", e.Number)
}

// Unwrap classifies the error as unprocessable.
func (e *AccountTitleNotFoundError) Unwrap() error { return shared.ErrUnprocessable }

// IsAccountTitleNotFound reports whether err carries a missing account title.
func IsAccountTitleNotFound(err error) bool {
	var target *AccountTitleNotFoundError
	return errors.As(err, &target)
}
