package importer

import (
	"context"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/harborline/ibs/internal/documents/doctest"
	"github.com/harborline/ibs/internal/ledger"
	"github.com/harborline/ibs/internal/periods"
	"github.com/harborline/ibs/internal/shared"
)

const chartCSV = "\uFEFFnumber,name,type,normal_balance,level,parent_number,is_main,role\n" +
	"1000000,Assets,asset,,1,,true,\n" +
	"1010000,Cash,ASSET,,2,1000000,false,\n" +
	"1010201,AR-Trade Receivable,ASSET,DEBIT,2,1000000,false,\n" +
	"3000000,Equity,EQUITY,,1,,true,\n" +
	"3010000,Retained Earnings,EQUITY,,2,3000000,false,\n" +
	"\n" +
	"3020000,Opening Balance Equity,EQUITY,CREDIT,2,3000000,false,NONE\n"

const balancesCSV = "reference,date,account_number,debit,credit,subsidiary_type,subsidiary_id,description\n" +
	"OB-2023,2023-12-31,1010000,\"150,000.00\",,,,Opening cash\n" +
	"OB-2023,2023-12-31,1010201,50000,,customer,7,\n" +
	"OB-2023,2023-12-31,3020000,,200000,,,\n" +
	"OB-RE,2023-12-31,3020000,25000,,,,Retained earnings\n" +
	"OB-RE,2023-12-31,3010000,,25000,,,\n"

type memoryTx struct {
	*doctest.Ledger
}

func (m *memoryTx) UpsertAccountTitle(ctx context.Context, title ledger.AccountTitle) error {
	m.Titles[title.Number] = title
	return nil
}

func (m *memoryTx) ReferenceExists(ctx context.Context, company, reference string) (bool, error) {
	return len(m.LinesFor(reference)) > 0, nil
}

type memoryStore struct {
	tx *memoryTx
}

func (m *memoryStore) WithTx(ctx context.Context, fn func(context.Context, Tx) error) error {
	rollback := m.tx.Snapshot()
	titles := make(map[string]ledger.AccountTitle, len(m.tx.Titles))
	for k, v := range m.tx.Titles {
		titles[k] = v
	}
	if err := fn(ctx, m.tx); err != nil {
		rollback()
		m.tx.Titles = titles
		return err
	}
	return nil
}

func newStore() *memoryStore {
	l := doctest.NewLedger()
	l.Titles = map[string]ledger.AccountTitle{}
	return &memoryStore{tx: &memoryTx{Ledger: l}}
}

func writeFiles(t *testing.T, files map[string]string) string {
	t.Helper()
	dir := t.TempDir()
	for name, content := range files {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(content), 0o600))
	}
	return dir
}

func quiet() *slog.Logger { return slog.New(slog.NewTextHandler(io.Discard, nil)) }

func TestParseChart(t *testing.T) {
	titles, err := ParseChart("ACME", strings.NewReader(chartCSV))
	require.NoError(t, err)
	require.Len(t, titles, 6)
	require.Equal(t, ledger.AccountTypeAsset, titles[0].Type)
	require.Equal(t, ledger.NormalDebit, titles[0].NormalBalance)
	require.True(t, titles[0].IsMain)
	require.Equal(t, "1000000", titles[1].ParentNumber)
	require.Equal(t, ledger.NormalCredit, titles[4].NormalBalance)
	require.Equal(t, ledger.RoleRetainedEarnings, titles[4].EffectiveRole())
	require.Equal(t, "ACME", titles[5].Company)
}

func TestParseChartRejectsBadRows(t *testing.T) {
	cases := map[string]string{
		"missing column": "number,name,type\n1,Cash,ASSET\n",
		"bad type":       "number,name,type,level\n1,Cash,STUFF,1\n",
		"bad level":      "number,name,type,level\n1,Cash,ASSET,6\n",
		"orphan":         "number,name,type,level,parent_number\n11,Cash,ASSET,2,1\n",
		"duplicate":      "number,name,type,level\n1,Cash,ASSET,1\n1,Bank,ASSET,1\n",
	}
	for name, content := range cases {
		_, err := ParseChart("ACME", strings.NewReader(content))
		require.Error(t, err, name)
		require.ErrorIs(t, err, shared.ErrInvalidInput, name)
	}
}

func TestParseOpeningBalancesGroupsByReference(t *testing.T) {
	entries, err := ParseOpeningBalances("ACME", "importer", strings.NewReader(balancesCSV))
	require.NoError(t, err)
	require.Len(t, entries, 2)
	require.Equal(t, "OB-2023", entries[0].Reference)
	require.Equal(t, "Opening cash", entries[0].Description)
	require.Len(t, entries[0].Legs, 3)
	require.True(t, entries[0].Legs[0].Debit.Equal(decimal.NewFromInt(150000)))
	require.Equal(t, ledger.SubsidiaryCustomer, entries[0].Legs[1].SubsidiaryType)
	require.EqualValues(t, 7, entries[0].Legs[1].SubsidiaryID)
	require.Equal(t, ledger.ModuleGL, entries[1].Module)

	_, err = ParseOpeningBalances("ACME", "importer", strings.NewReader("reference,date,account_number,debit,credit\nX,2023-12-31,1,5,5\n"))
	require.ErrorIs(t, err, ErrInvalidRow)
	_, err = ParseOpeningBalances("ACME", "importer", strings.NewReader("reference,date,account_number,debit,credit\nX,2023-12-31,1,5,\nX,2024-01-01,2,,5\n"))
	require.ErrorIs(t, err, ErrInvalidRow)
}

func TestRunImportsAndSkipsExistingReferences(t *testing.T) {
	dir := writeFiles(t, map[string]string{ChartFile: chartCSV, OpeningBalancesFile: balancesCSV})
	store := newStore()
	imp := New(store, dir, quiet())

	result, err := imp.Run(context.Background(), Request{Company: "ACME", ActorID: "importer"})
	require.NoError(t, err)
	require.Equal(t, 6, result.Accounts)
	require.Equal(t, 2, result.Entries)
	require.Zero(t, result.Skipped)

	lines := store.tx.LinesFor("OB-2023")
	require.Len(t, lines, 3)
	require.NoError(t, ledger.ValidateBalance(lines))
	require.Equal(t, "Cash", lines[0].AccountTitle)
	require.Equal(t, "import.run", store.tx.Audits[len(store.tx.Audits)-1].Action)

	again, err := imp.Run(context.Background(), Request{Company: "ACME", ActorID: "importer"})
	require.NoError(t, err)
	require.Equal(t, 2, again.Skipped)
	require.Zero(t, again.Entries)
	require.Len(t, store.tx.Lines, 5)
}

func TestRunRollsBackUnbalancedReference(t *testing.T) {
	unbalanced := balancesCSV + "OB-BAD,2023-12-31,1010000,10,,,,\nOB-BAD,2023-12-31,3020000,,9,,,\n"
	dir := writeFiles(t, map[string]string{ChartFile: chartCSV, OpeningBalancesFile: unbalanced})
	store := newStore()

	_, err := New(store, dir, quiet()).Run(context.Background(), Request{Company: "ACME", ActorID: "importer"})
	require.ErrorIs(t, err, ledger.ErrUnbalanced)
	require.Contains(t, err.Error(), "OB-BAD")
	require.Empty(t, store.tx.Lines)
	require.Empty(t, store.tx.Titles)
}

func TestRunRespectsClosedPeriod(t *testing.T) {
	dir := writeFiles(t, map[string]string{ChartFile: chartCSV, OpeningBalancesFile: balancesCSV})
	store := newStore()
	store.tx.CloseMonth(ledger.ModuleGL, time.Date(2023, 12, 1, 0, 0, 0, 0, time.UTC))

	_, err := New(store, dir, quiet()).Run(context.Background(), Request{Company: "ACME", ActorID: "importer"})
	require.ErrorIs(t, err, periods.ErrPeriodClosed)
}

func TestRunChartOnly(t *testing.T) {
	dir := writeFiles(t, map[string]string{ChartFile: chartCSV})
	result, err := New(newStore(), dir, quiet()).Run(context.Background(), Request{Company: "ACME", ActorID: "importer"})
	require.NoError(t, err)
	require.Equal(t, 6, result.Accounts)
	require.Zero(t, result.Entries)

	_, err = New(newStore(), "", quiet()).Run(context.Background(), Request{Company: "ACME", ActorID: "importer"})
	require.ErrorIs(t, err, ErrDirNotConfigured)
}
