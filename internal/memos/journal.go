package memos

import (
	"github.com/shopspring/decimal"

	"github.com/harborline/ibs/internal/ledger"
)

// Journal builds the memo's ledger entry. A debit memo raises the receivable
// (net of withholding) and the withheld taxes against revenue and output VAT; a
// credit memo books the mirror image.
func Journal(m *Memo, accounts ledger.AccountMap, vatRate decimal.Decimal) ledger.Entry {
	tax := ledger.ComputeTaxes(m.Total, m.Tax, vatRate)

	receivable, revenue := ledger.AcctARTrade, ledger.AcctSales
	if m.SourceType == SourceServiceInvoice {
		receivable, revenue = ledger.AcctARNonTrade, ledger.AcctServiceRevenue
	}

	debits := []ledger.Leg{
		ledger.DebitLeg(accounts.Number(receivable), tax.Receivable).WithSubsidiary(ledger.SubsidiaryCustomer, m.CustomerID),
		ledger.DebitLeg(accounts.Number(ledger.AcctCreditableEWT), tax.EWT),
		ledger.DebitLeg(accounts.Number(ledger.AcctCreditableWVAT), tax.WVAT),
	}
	credits := []ledger.Leg{
		ledger.CreditLeg(accounts.Number(revenue), tax.NetOfVAT),
		ledger.CreditLeg(accounts.Number(ledger.AcctVATOutput), tax.VAT),
	}

	entry := ledger.Entry{Description: m.Description}
	if m.Kind == KindCredit {
		entry.Legs = append(entry.Legs, flip(credits)...)
		entry.Legs = append(entry.Legs, flip(debits)...)
		return entry
	}
	entry.Legs = append(entry.Legs, debits...)
	entry.Legs = append(entry.Legs, credits...)
	return entry
}

func flip(legs []ledger.Leg) []ledger.Leg {
	out := make([]ledger.Leg, len(legs))
	for i, leg := range legs {
		leg.Debit, leg.Credit = leg.Credit, leg.Debit
		out[i] = leg
	}
	return out
}
