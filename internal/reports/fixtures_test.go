package reports

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/harborline/ibs/internal/ledger"
)

func d(v string) decimal.Decimal { return decimal.RequireFromString(v) }

func date(y int, m time.Month, day int) time.Time {
	return time.Date(y, m, day, 0, 0, 0, 0, time.UTC)
}

func title(number, name, parent string, typ ledger.AccountType, level int) ledger.AccountTitle {
	normal := ledger.NormalDebit
	if typ == ledger.AccountTypeLiability || typ == ledger.AccountTypeEquity || typ == ledger.AccountTypeRevenue {
		normal = ledger.NormalCredit
	}
	return ledger.AccountTitle{
		Company:       "ACME",
		Number:        number,
		Name:          name,
		Type:          typ,
		NormalBalance: normal,
		Level:         level,
		ParentNumber:  parent,
		IsMain:        parent == "",
	}
}

func sampleChart() []ledger.AccountTitle {
	returns := title("4010102", "Sales Returns", "4000000", ledger.AccountTypeRevenue, 2)
	returns.NormalBalance = ledger.NormalDebit
	return []ledger.AccountTitle{
		title("1000000", "Assets", "", ledger.AccountTypeAsset, 1),
		title("1010000", "Current Assets", "1000000", ledger.AccountTypeAsset, 2),
		title("1010101", "Cash on Hand", "1010000", ledger.AccountTypeAsset, 3),
		title("1010201", "AR-Trade Receivable", "1010000", ledger.AccountTypeAsset, 3),
		title("1010401", "Inventory", "1010000", ledger.AccountTypeAsset, 3),
		title("2000000", "Liabilities", "", ledger.AccountTypeLiability, 1),
		title("2010101", "AP-Trade Payable", "2000000", ledger.AccountTypeLiability, 2),
		title("2010301", "Vat Output", "2000000", ledger.AccountTypeLiability, 2),
		title("3000000", "Equity", "", ledger.AccountTypeEquity, 1),
		title("3010101", "Capital Stock", "3000000", ledger.AccountTypeEquity, 2),
		title("3010301", "Retained Earnings", "3000000", ledger.AccountTypeEquity, 2),
		title("3010302", "Retained Earnings - Prior Period Adjustment", "3000000", ledger.AccountTypeEquity, 2),
		title("4000000", "Revenue", "", ledger.AccountTypeRevenue, 1),
		title("4010101", "Sales", "4000000", ledger.AccountTypeRevenue, 2),
		returns,
		title("5000000", "Cost of Goods Sold", "", ledger.AccountTypeExpense, 1),
		title("5010101", "Cost of Goods Sold - Fuel", "5000000", ledger.AccountTypeExpense, 2),
		title("6000000", "Operating Expenses", "", ledger.AccountTypeExpense, 1),
		title("6010101", "Salaries and Wages", "6000000", ledger.AccountTypeExpense, 2),
		title("7000000", "Other Income", "", ledger.AccountTypeRevenue, 1),
		title("7010101", "Interest Income", "7000000", ledger.AccountTypeRevenue, 2),
	}
}

func pair(ref string, on time.Time, debitAcct, creditAcct, amount string) []ledger.Line {
	return []ledger.Line{
		{Company: "ACME", Reference: ref, Date: on, AccountNumber: debitAcct, Debit: d(amount), Credit: decimal.Zero},
		{Company: "ACME", Reference: ref, Date: on, AccountNumber: creditAcct, Debit: decimal.Zero, Credit: d(amount)},
	}
}

// januaryLines books capital in December and a month of trading in January 2024:
// revenue 9,500 net of returns, COGS 6,000, salaries 1,000, interest 200.
func januaryLines() []ledger.Line {
	jan := func(day int) time.Time { return date(2024, time.January, day) }
	var lines []ledger.Line
	lines = append(lines, pair("OB1", date(2023, time.December, 31), "1010101", "3010101", "100000")...)
	lines = append(lines, pair("RR1", jan(5), "1010401", "2010101", "8000")...)
	lines = append(lines,
		ledger.Line{Company: "ACME", Reference: "DR1", Date: jan(10), AccountNumber: "1010201", Debit: d("11200"), Credit: decimal.Zero},
		ledger.Line{Company: "ACME", Reference: "DR1", Date: jan(10), AccountNumber: "4010101", Debit: decimal.Zero, Credit: d("10000")},
		ledger.Line{Company: "ACME", Reference: "DR1", Date: jan(10), AccountNumber: "2010301", Debit: decimal.Zero, Credit: d("1200")},
	)
	lines = append(lines, pair("DR1-COGS", jan(10), "5010101", "1010401", "6000")...)
	lines = append(lines, pair("CM1", jan(12), "4010102", "1010201", "500")...)
	lines = append(lines, pair("JV1", jan(25), "6010101", "1010101", "1000")...)
	lines = append(lines, pair("JV2", jan(31), "1010101", "7010101", "200")...)
	return lines
}
