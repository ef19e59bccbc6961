package delivery

import (
	"github.com/shopspring/decimal"

	"github.com/harborline/ibs/internal/ledger"
)

// Journal builds the receipt entry. Goods and freight are netted separately so
// each revenue account carries its own net of VAT; the cost side moves inventory
// to cost of goods sold.
func Journal(r *Receipt, accounts ledger.AccountMap, vatRate decimal.Decimal) ledger.Entry {
	goods := ledger.ComputeTaxes(r.Gross(), r.Tax, vatRate)
	freight := ledger.ComputeTaxes(r.Freight, r.Tax, vatRate)
	cost := r.Cost()

	return ledger.Entry{
		Description: "Delivery " + r.OrderNumber,
		Legs: []ledger.Leg{
			ledger.DebitLeg(accounts.Number(ledger.AcctARTrade), goods.Receivable.Add(freight.Receivable)).
				WithSubsidiary(ledger.SubsidiaryCustomer, r.CustomerID),
			ledger.DebitLeg(accounts.Number(ledger.AcctCreditableEWT), goods.EWT.Add(freight.EWT)),
			ledger.DebitLeg(accounts.Number(ledger.AcctCreditableWVAT), goods.WVAT.Add(freight.WVAT)),
			ledger.CreditLeg(accounts.Number(ledger.AcctSales), goods.NetOfVAT),
			ledger.CreditLeg(accounts.Number(ledger.AcctFreightIncome), freight.NetOfVAT),
			ledger.CreditLeg(accounts.Number(ledger.AcctVATOutput), goods.VAT.Add(freight.VAT)),
			ledger.DebitLeg(accounts.Number(ledger.AcctCostOfGoodsSold), cost),
			ledger.CreditLeg(accounts.Number(ledger.AcctInventory), cost),
		},
	}
}
