package reports

import (
	"encoding/csv"
	"io"
)

// WriteTrialBalanceCSV serialises a trial balance with a totals row.
func WriteTrialBalanceCSV(w io.Writer, tb TrialBalance) error {
	writer := csv.NewWriter(w)
	if err := writer.Write([]string{"Account Number", "Account Title", "Debit", "Credit"}); err != nil {
		return err
	}
	for _, row := range tb.Rows {
		if err := writer.Write([]string{row.Number, row.Name, row.Debit.StringFixed(2), row.Credit.StringFixed(2)}); err != nil {
			return err
		}
	}
	if err := writer.Write([]string{"", "Total", tb.TotalDebit.StringFixed(2), tb.TotalCredit.StringFixed(2)}); err != nil {
		return err
	}
	writer.Flush()
	return writer.Error()
}
