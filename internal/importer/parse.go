package importer

import (
	"bufio"
	"bytes"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/harborline/ibs/internal/ledger"
	"github.com/harborline/ibs/internal/shared"
)

const (
	// ChartFile lists the chart of accounts.
	ChartFile = "chart_of_accounts.csv"
	// OpeningBalancesFile lists opening balance lines grouped by reference.
	OpeningBalancesFile = "opening_balances.csv"

	dateLayout = "2006-01-02"
)

var (
	// ErrMissingColumn indicates a required header is absent.
	ErrMissingColumn = fmt.Errorf("%w: missing column", shared.ErrInvalidInput)
	// ErrInvalidRow indicates a row that cannot be converted.
	ErrInvalidRow = fmt.Errorf("%w: invalid row", shared.ErrInvalidInput)
)

var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

// table reads a headed CSV and exposes rows by column name.
type table struct {
	name    string
	reader  *csv.Reader
	columns map[string]int
	line    int
}

func newTable(name string, r io.Reader, required ...string) (*table, error) {
	br := bufio.NewReader(r)
	if head, err := br.Peek(len(utf8BOM)); err == nil && bytes.Equal(head, utf8BOM) {
		_, _ = br.Discard(len(utf8BOM))
	}
	reader := csv.NewReader(br)
	reader.TrimLeadingSpace = true
	reader.FieldsPerRecord = -1
	header, err := reader.Read()
	if err != nil {
		return nil, fmt.Errorf("importer: %s header: %w", name, err)
	}
	t := &table{name: name, reader: reader, columns: make(map[string]int, len(header)), line: 1}
	for i, col := range header {
		t.columns[strings.ToLower(strings.TrimSpace(col))] = i
	}
	for _, col := range required {
		if _, ok := t.columns[col]; !ok {
			return nil, fmt.Errorf("%w %q in %s", ErrMissingColumn, col, name)
		}
	}
	return t, nil
}

type row struct {
	table  *table
	fields []string
}

// next returns the following non-blank row or io.EOF.
func (t *table) next() (row, error) {
	for {
		fields, err := t.reader.Read()
		if err != nil {
			return row{}, err
		}
		t.line, _ = t.reader.FieldPos(0)
		if strings.TrimSpace(strings.Join(fields, "")) != "" {
			return row{table: t, fields: fields}, nil
		}
	}
}

func (r row) get(col string) string {
	idx, ok := r.table.columns[col]
	if !ok || idx >= len(r.fields) {
		return ""
	}
	return strings.TrimSpace(r.fields[idx])
}

func (r row) fail(format string, args ...any) error {
	return fmt.Errorf("%w: %s line %d: %s", ErrInvalidRow, r.table.name, r.table.line, fmt.Sprintf(format, args...))
}

func (r row) decimal(col string) (decimal.Decimal, error) {
	raw := strings.ReplaceAll(r.get(col), ",", "")
	if raw == "" {
		return decimal.Zero, nil
	}
	v, err := decimal.NewFromString(raw)
	if err != nil {
		return decimal.Zero, r.fail("%s %q is not a number", col, raw)
	}
	if v.IsNegative() {
		return decimal.Zero, r.fail("%s must not be negative", col)
	}
	return v, nil
}

// ParseChart reads chart_of_accounts.csv:
// number,name,type,normal_balance,level,parent_number,is_main,role
func ParseChart(company string, r io.Reader) ([]ledger.AccountTitle, error) {
	t, err := newTable(ChartFile, r, "number", "name", "type", "level")
	if err != nil {
		return nil, err
	}
	seen := make(map[string]struct{})
	var titles []ledger.AccountTitle
	for {
		rec, err := t.next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("importer: %s: %w", ChartFile, err)
		}
		title, err := parseTitle(company, rec)
		if err != nil {
			return nil, err
		}
		if _, dup := seen[title.Number]; dup {
			return nil, rec.fail("duplicate account %s", title.Number)
		}
		seen[title.Number] = struct{}{}
		titles = append(titles, title)
	}
	for _, title := range titles {
		if title.ParentNumber == "" {
			continue
		}
		if _, ok := seen[title.ParentNumber]; !ok {
			return nil, fmt.Errorf("%w: %s: parent %s of account %s is not in the file", ErrInvalidRow, ChartFile, title.ParentNumber, title.Number)
		}
	}
	return titles, nil
}

func parseTitle(company string, rec row) (ledger.AccountTitle, error) {
	title := ledger.AccountTitle{
		Company:      company,
		Number:       rec.get("number"),
		Name:         rec.get("name"),
		Type:         ledger.AccountType(strings.ToUpper(rec.get("type"))),
		ParentNumber: rec.get("parent_number"),
		Role:         ledger.ParseRole(rec.get("role")),
	}
	if title.Number == "" || title.Name == "" {
		return title, rec.fail("number and name are required")
	}
	switch title.Type {
	case ledger.AccountTypeAsset, ledger.AccountTypeExpense:
		title.NormalBalance = ledger.NormalDebit
	case ledger.AccountTypeLiability, ledger.AccountTypeEquity, ledger.AccountTypeRevenue:
		title.NormalBalance = ledger.NormalCredit
	default:
		return title, rec.fail("unknown account type %q", title.Type)
	}
	if raw := strings.ToUpper(rec.get("normal_balance")); raw != "" {
		switch nb := ledger.NormalBalance(raw); nb {
		case ledger.NormalDebit, ledger.NormalCredit:
			title.NormalBalance = nb
		default:
			return title, rec.fail("unknown normal balance %q", raw)
		}
	}
	level, err := strconv.Atoi(rec.get("level"))
	if err != nil || level < 1 || level > ledger.MaxLevel {
		return title, rec.fail("level must be between 1 and %d", ledger.MaxLevel)
	}
	title.Level = level
	if level > 1 && title.ParentNumber == "" {
		return title, rec.fail("account %s at level %d needs a parent", title.Number, level)
	}
	if raw := rec.get("is_main"); raw != "" {
		if title.IsMain, err = strconv.ParseBool(raw); err != nil {
			return title, rec.fail("is_main %q is not a boolean", raw)
		}
	}
	return title, nil
}

// ParseOpeningBalances reads opening_balances.csv and groups the rows into one
// entry per reference, in first-seen order:
// reference,date,account_number,debit,credit,subsidiary_type,subsidiary_id,description
func ParseOpeningBalances(company, actor string, r io.Reader) ([]ledger.Entry, error) {
	t, err := newTable(OpeningBalancesFile, r, "reference", "date", "account_number", "debit", "credit")
	if err != nil {
		return nil, err
	}
	index := make(map[string]int)
	var entries []ledger.Entry
	for {
		rec, err := t.next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("importer: %s: %w", OpeningBalancesFile, err)
		}
		reference := rec.get("reference")
		if reference == "" {
			return nil, rec.fail("reference is required")
		}
		date, err := time.Parse(dateLayout, rec.get("date"))
		if err != nil {
			return nil, rec.fail("date %q must be YYYY-MM-DD", rec.get("date"))
		}
		leg, err := parseLeg(rec)
		if err != nil {
			return nil, err
		}
		i, ok := index[reference]
		if !ok {
			index[reference] = len(entries)
			entries = append(entries, ledger.Entry{
				Company:     company,
				Reference:   reference,
				Date:        date,
				Module:      ledger.ModuleGL,
				Description: rec.get("description"),
				CreatedBy:   actor,
			})
			i = len(entries) - 1
		}
		entry := &entries[i]
		if !entry.Date.Equal(date) {
			return nil, rec.fail("reference %s has more than one date", reference)
		}
		if entry.Description == "" {
			entry.Description = rec.get("description")
		}
		entry.Legs = append(entry.Legs, leg)
	}
	return entries, nil
}

func parseLeg(rec row) (ledger.Leg, error) {
	account := rec.get("account_number")
	if account == "" {
		return ledger.Leg{}, rec.fail("account_number is required")
	}
	debit, err := rec.decimal("debit")
	if err != nil {
		return ledger.Leg{}, err
	}
	credit, err := rec.decimal("credit")
	if err != nil {
		return ledger.Leg{}, err
	}
	if !debit.IsZero() && !credit.IsZero() {
		return ledger.Leg{}, rec.fail("a line is either a debit or a credit")
	}
	leg := ledger.Leg{AccountNumber: account, Debit: debit, Credit: credit}
	switch kind := ledger.SubsidiaryType(strings.ToUpper(rec.get("subsidiary_type"))); kind {
	case ledger.SubsidiaryNone:
	case ledger.SubsidiaryCustomer, ledger.SubsidiarySupplier:
		id, err := strconv.ParseInt(rec.get("subsidiary_id"), 10, 64)
		if err != nil || id <= 0 {
			return ledger.Leg{}, rec.fail("subsidiary_id must be a positive number")
		}
		leg = leg.WithSubsidiary(kind, id)
	default:
		return ledger.Leg{}, rec.fail("unknown subsidiary type %q", kind)
	}
	return leg, nil
}
