package procurement

import (
	"github.com/shopspring/decimal"

	"github.com/harborline/ibs/internal/ledger"
)

// Journal builds the receiving entry: inventory at net cost and input VAT against
// the supplier payable, less expanded withholding tax owed to the government.
func Journal(rr *ReceivingReport, accounts ledger.AccountMap, vatRate decimal.Decimal) ledger.Entry {
	profile := rr.Tax
	profile.HasWVAT = false
	tax := ledger.ComputeTaxes(rr.Gross(), profile, vatRate)

	return ledger.Entry{
		Description: "Receipt against " + rr.PONumber,
		Legs: []ledger.Leg{
			ledger.DebitLeg(accounts.Number(ledger.AcctInventory), tax.NetOfVAT),
			ledger.DebitLeg(accounts.Number(ledger.AcctVATInput), tax.VAT),
			ledger.CreditLeg(accounts.Number(ledger.AcctAPTrade), tax.Gross.Sub(tax.EWT)).
				WithSubsidiary(ledger.SubsidiarySupplier, rr.SupplierID),
			ledger.CreditLeg(accounts.Number(ledger.AcctEWTPayable), tax.EWT),
		},
	}
}
