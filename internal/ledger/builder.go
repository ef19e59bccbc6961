package ledger

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Build converts an entry into ledger lines using the supplied title lookup.
// Zero legs are dropped; legs are kept in request order.
func Build(entry Entry, titles map[string]AccountTitle, now time.Time) ([]Line, error) {
	if strings.TrimSpace(entry.Reference) == "" {
		return nil, ErrReferenceRequired
	}
	batch := uuid.New()
	lines := make([]Line, 0, len(entry.Legs))
	for idx, leg := range entry.Legs {
		if leg.Debit.IsNegative() || leg.Credit.IsNegative() {
			return nil, fmt.Errorf("%w: line %d", ErrNegativeAmount, idx)
		}
		if leg.IsZero() {
			continue
		}
		title, ok := titles[leg.AccountNumber]
		if !ok {
			return nil, &AccountTitleNotFoundError{Number: leg.AccountNumber}
		}
		lines = append(lines, Line{
			BatchID:        batch,
			Company:        entry.Company,
			Date:           entry.Date,
			Reference:      entry.Reference,
			AccountNumber:  title.Number,
			AccountTitle:   title.Name,
			Description:    entry.Description,
			Debit:          Round2(leg.Debit),
			Credit:         Round2(leg.Credit),
			SubsidiaryType: leg.SubsidiaryType,
			SubsidiaryID:   leg.SubsidiaryID,
			Module:         entry.Module,
			CreatedBy:      entry.CreatedBy,
			CreatedAt:      now,
		})
	}
	if len(lines) == 0 {
		return nil, ErrEmptyEntry
	}
	return lines, nil
}

// AccountNumbers lists the distinct accounts referenced by non-zero legs.
func (e Entry) AccountNumbers() []string {
	seen := make(map[string]struct{}, len(e.Legs))
	out := make([]string, 0, len(e.Legs))
	for _, leg := range e.Legs {
		if leg.IsZero() {
			continue
		}
		if _, ok := seen[leg.AccountNumber]; ok {
			continue
		}
		seen[leg.AccountNumber] = struct{}{}
		out = append(out, leg.AccountNumber)
	}
	return out
}

// Totals sums the debit and credit columns.
func Totals(lines []Line) (debit, credit decimal.Decimal) {
	debit, credit = decimal.Zero, decimal.Zero
	for _, line := range lines {
		debit = debit.Add(line.Debit)
		credit = credit.Add(line.Credit)
	}
	return debit, credit
}

// IsBalanced reports whether the batch debits equal its credits.
func IsBalanced(lines []Line) bool {
	debit, credit := Totals(lines)
	return debit.Equal(credit)
}

// ValidateBalance returns ErrUnbalanced when the batch does not net to zero.
func ValidateBalance(lines []Line) error {
	if !IsBalanced(lines) {
		debit, credit := Totals(lines)
		return fmt.Errorf("%w (debit %s, credit %s)", ErrUnbalanced, debit.StringFixed(2), credit.StringFixed(2))
	}
	return nil
}

// UnbalancedReferences groups lines by reference and returns the references whose
// debits and credits differ.
func UnbalancedReferences(lines []Line) []string {
	type sums struct{ debit, credit decimal.Decimal }
	byRef := make(map[string]*sums)
	order := make([]string, 0)
	for _, line := range lines {
		s, ok := byRef[line.Reference]
		if !ok {
			s = &sums{debit: decimal.Zero, credit: decimal.Zero}
			byRef[line.Reference] = s
			order = append(order, line.Reference)
		}
		s.debit = s.debit.Add(line.Debit)
		s.credit = s.credit.Add(line.Credit)
	}
	var out []string
	for _, ref := range order {
		if s := byRef[ref]; !s.debit.Equal(s.credit) {
			out = append(out, ref)
		}
	}
	return out
}
