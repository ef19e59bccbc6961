package dispatch

import (
	"github.com/shopspring/decimal"

	"github.com/harborline/ibs/internal/ledger"
)

// Journal builds the billing entry against the non-trade receivable.
func Journal(b *Billing, accounts ledger.AccountMap, vatRate decimal.Decimal) ledger.Entry {
	tax := ledger.ComputeTaxes(b.Amount, b.Tax, vatRate)
	return ledger.Entry{
		Description: "Dispatch billing",
		Legs: []ledger.Leg{
			ledger.DebitLeg(accounts.Number(ledger.AcctARNonTrade), tax.Receivable).
				WithSubsidiary(ledger.SubsidiaryCustomer, b.CustomerID),
			ledger.DebitLeg(accounts.Number(ledger.AcctCreditableEWT), tax.EWT),
			ledger.DebitLeg(accounts.Number(ledger.AcctCreditableWVAT), tax.WVAT),
			ledger.CreditLeg(accounts.Number(ledger.AcctServiceRevenue), tax.NetOfVAT),
			ledger.CreditLeg(accounts.Number(ledger.AcctVATOutput), tax.VAT),
		},
	}
}
