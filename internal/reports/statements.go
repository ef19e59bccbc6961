package reports

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/harborline/ibs/internal/ledger"
)

// Row is one rendered statement line.
type Row struct {
	Number      string          `json:"number"`
	Name        string          `json:"name"`
	Level       int             `json:"level"`
	Amount      decimal.Decimal `json:"amount"`
	Display     string          `json:"display"`
	Substituted bool            `json:"substituted,omitempty"`
}

func newRow(n *Node, level int) Row {
	return Row{
		Number:      n.Title.Number,
		Name:        n.Title.Name,
		Level:       level,
		Amount:      n.Total,
		Display:     FormatAmount(n.Total),
		Substituted: n.Substituted,
	}
}

// Section groups statement rows under a heading with their total.
type Section struct {
	Title        string          `json:"title"`
	Rows         []Row           `json:"rows"`
	Total        decimal.Decimal `json:"total"`
	TotalDisplay string          `json:"total_display"`
}

func (s *Section) add(n *Node, depth int) {
	s.Total = s.Total.Add(n.Total)
	s.Rows = append(s.Rows, subtreeRows(n, depth)...)
}

// addOwn books only the node's own balance, for parents that were posted to directly.
func (s *Section) addOwn(n *Node, depth int) {
	s.Total = s.Total.Add(n.Own)
	s.Rows = append(s.Rows, Row{
		Number:      n.Title.Number,
		Name:        n.Title.Name,
		Level:       depth,
		Amount:      n.Own,
		Display:     FormatAmount(n.Own),
		Substituted: n.Substituted,
	})
}

func (s *Section) finish() {
	s.TotalDisplay = FormatAmount(s.Total)
}

func subtreeRows(n *Node, depth int) []Row {
	rows := []Row{newRow(n, depth)}
	for _, child := range n.Children {
		rows = append(rows, subtreeRows(child, depth+1)...)
	}
	return rows
}

func newSection(title string) Section {
	return Section{Title: title, Total: decimal.Zero}
}

// TrialBalanceRow lists the net movement of one account on its debit or credit side.
type TrialBalanceRow struct {
	Number string          `json:"number"`
	Name   string          `json:"name"`
	Debit  decimal.Decimal `json:"debit"`
	Credit decimal.Decimal `json:"credit"`
}

// TrialBalance lists every account with movement in the range.
type TrialBalance struct {
	Company     string            `json:"company"`
	From        time.Time         `json:"from"`
	To          time.Time         `json:"to"`
	Rows        []TrialBalanceRow `json:"rows"`
	TotalDebit  decimal.Decimal   `json:"total_debit"`
	TotalCredit decimal.Decimal   `json:"total_credit"`
	Balanced    bool              `json:"balanced"`
}

// BuildTrialBalance nets the raw movements of every account. Substitutions do not
// apply: the trial balance always reflects the ledger as booked.
func BuildTrialBalance(tree *Tree) TrialBalance {
	tb := TrialBalance{TotalDebit: decimal.Zero, TotalCredit: decimal.Zero}
	addRow := func(n *Node) {
		if n.Debit.IsZero() && n.Credit.IsZero() {
			return
		}
		row := TrialBalanceRow{Number: n.Title.Number, Name: n.Title.Name, Debit: decimal.Zero, Credit: decimal.Zero}
		net := n.Debit.Sub(n.Credit)
		if net.IsNegative() {
			row.Credit = net.Neg()
		} else {
			row.Debit = net
		}
		tb.TotalDebit = tb.TotalDebit.Add(row.Debit)
		tb.TotalCredit = tb.TotalCredit.Add(row.Credit)
		tb.Rows = append(tb.Rows, row)
	}
	tree.Walk(func(n *Node, _ int) bool {
		addRow(n)
		return true
	})
	for _, n := range tree.Unmapped {
		addRow(n)
	}
	tb.Balanced = tb.TotalDebit.Equal(tb.TotalCredit)
	return tb
}

// ProfitAndLoss is the income statement for a range.
type ProfitAndLoss struct {
	Company                   string          `json:"company"`
	From                      time.Time       `json:"from"`
	To                        time.Time       `json:"to"`
	Revenue                   Section         `json:"revenue"`
	CostOfGoodsSold           Section         `json:"cost_of_goods_sold"`
	GrossMargin               decimal.Decimal `json:"gross_margin"`
	GrossMarginPercent        decimal.Decimal `json:"gross_margin_percent"`
	OtherIncome               Section         `json:"other_income"`
	Expenses                  Section         `json:"expenses"`
	NetIncomeBeforeTax        decimal.Decimal `json:"net_income_before_tax"`
	NetIncomeBeforeTaxDisplay string          `json:"net_income_before_tax_display"`
}

// BuildProfitAndLoss sorts revenue and expense accounts into sections. An account
// with the revenue or cost of goods sold role claims its whole subtree; other
// branches are descended and their leaves land in other income or expenses by
// account type. A parent's own balance lands there too.
func BuildProfitAndLoss(tree *Tree) ProfitAndLoss {
	pl := ProfitAndLoss{
		Revenue:         newSection("Revenue"),
		CostOfGoodsSold: newSection("Cost of Goods Sold"),
		OtherIncome:     newSection("Other Income"),
		Expenses:        newSection("Expenses"),
	}
	sectionFor := func(typ ledger.AccountType) *Section {
		switch typ {
		case ledger.AccountTypeRevenue:
			return &pl.OtherIncome
		case ledger.AccountTypeExpense:
			return &pl.Expenses
		}
		return nil
	}
	var classify func(n *Node, depth int)
	classify = func(n *Node, depth int) {
		switch n.Title.EffectiveRole() {
		case ledger.RoleRevenue:
			pl.Revenue.add(n, depth)
			return
		case ledger.RoleCostOfGoodsSold:
			pl.CostOfGoodsSold.add(n, depth)
			return
		}
		section := sectionFor(n.Title.Type)
		if !n.IsLeaf() {
			if section != nil && !n.Own.IsZero() {
				section.addOwn(n, depth)
			}
			for _, child := range n.Children {
				classify(child, depth+1)
			}
			return
		}
		if section != nil {
			section.add(n, depth)
		}
	}
	for _, root := range tree.Roots {
		if root.Title.Type == ledger.AccountTypeRevenue || root.Title.Type == ledger.AccountTypeExpense {
			classify(root, 1)
		}
	}
	pl.Revenue.finish()
	pl.CostOfGoodsSold.finish()
	pl.OtherIncome.finish()
	pl.Expenses.finish()

	pl.GrossMargin = pl.Revenue.Total.Sub(pl.CostOfGoodsSold.Total)
	pl.GrossMarginPercent = decimal.Zero
	if !pl.Revenue.Total.IsZero() {
		pl.GrossMarginPercent = ledger.Round2(pl.GrossMargin.Div(pl.Revenue.Total).Mul(decimal.NewFromInt(100)))
	}
	pl.NetIncomeBeforeTax = pl.GrossMargin.Add(pl.OtherIncome.Total).Sub(pl.Expenses.Total)
	pl.NetIncomeBeforeTaxDisplay = FormatAmount(pl.NetIncomeBeforeTax)
	return pl
}

// NetIncomeRowName labels the synthetic equity line added when the chart has no
// net income account.
const NetIncomeRowName = "Net Income for the Period"

// BalanceSheet is the statement of financial position as of a date.
type BalanceSheet struct {
	Company                   string          `json:"company"`
	AsOf                      time.Time       `json:"as_of"`
	Assets                    Section         `json:"assets"`
	Liabilities               Section         `json:"liabilities"`
	Equity                    Section         `json:"equity"`
	TotalLiabilitiesAndEquity decimal.Decimal `json:"total_liabilities_and_equity"`
	Balanced                  bool            `json:"balanced"`
}

// BuildBalanceSheet lays out the asset, liability and equity roots. Equity always
// carries the period's net income: from the substituted net income account when
// there is one, otherwise from a synthetic row. Without a summary the income is
// taken from the unclosed revenue and expense accounts.
func BuildBalanceSheet(tree *Tree) BalanceSheet {
	bs := BalanceSheet{
		Assets:      newSection("Assets"),
		Liabilities: newSection("Liabilities"),
		Equity:      newSection("Equity"),
	}
	for _, root := range tree.Roots {
		switch root.Title.Type {
		case ledger.AccountTypeAsset:
			bs.Assets.add(root, 1)
		case ledger.AccountTypeLiability:
			bs.Liabilities.add(root, 1)
		case ledger.AccountTypeEquity:
			bs.Equity.add(root, 1)
		}
	}

	if tree.Summary == nil || !tree.HasRole(ledger.RoleNetIncome) {
		income := BuildProfitAndLoss(tree).NetIncomeBeforeTax
		if tree.Summary != nil {
			income = tree.Summary.NetIncome
		}
		bs.Equity.Rows = append(bs.Equity.Rows, Row{Name: NetIncomeRowName, Level: 1, Amount: income, Display: FormatAmount(income)})
		bs.Equity.Total = bs.Equity.Total.Add(income)
	}
	bs.Assets.finish()
	bs.Liabilities.finish()
	bs.Equity.finish()

	bs.TotalLiabilitiesAndEquity = bs.Liabilities.Total.Add(bs.Equity.Total)
	bs.Balanced = bs.Assets.Total.Equal(bs.TotalLiabilitiesAndEquity)
	return bs
}

// RetainedEarningsStatement rolls retained earnings forward across one month.
type RetainedEarningsStatement struct {
	Company               string          `json:"company"`
	Month                 time.Time       `json:"month"`
	Beginning             decimal.Decimal `json:"beginning"`
	NetIncome             decimal.Decimal `json:"net_income"`
	PriorPeriodAdjustment decimal.Decimal `json:"prior_period_adjustment"`
	Ending                decimal.Decimal `json:"ending"`
	Rows                  []Row           `json:"rows"`
}

// BuildRetainedEarnings renders the roll-forward held in a period summary.
func BuildRetainedEarnings(summary PeriodSummary) RetainedEarningsStatement {
	st := RetainedEarningsStatement{
		Company:               summary.Company,
		Month:                 summary.Month,
		Beginning:             summary.BeginningRetainedEarnings,
		NetIncome:             summary.NetIncome,
		PriorPeriodAdjustment: summary.PriorPeriodAdjustment,
		Ending:                summary.EndingRetainedEarnings,
	}
	for _, item := range []struct {
		name   string
		amount decimal.Decimal
	}{
		{"Retained Earnings, beginning", st.Beginning},
		{NetIncomeRowName, st.NetIncome},
		{"Prior Period Adjustment", st.PriorPeriodAdjustment},
		{"Retained Earnings, ending", st.Ending},
	} {
		st.Rows = append(st.Rows, Row{Name: item.name, Level: 1, Amount: item.amount, Display: FormatAmount(item.amount)})
	}
	return st
}
