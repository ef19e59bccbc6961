// Package doctest provides an in-memory unit of work for document workflow tests.
package doctest

import (
	"context"
	"sort"
	"time"

	"github.com/harborline/ibs/internal/ledger"
	"github.com/harborline/ibs/internal/periods"
	"github.com/harborline/ibs/internal/shared"
)

// Ledger is an in-memory ledger store plus period markers and audit sink.
type Ledger struct {
	Titles  map[string]ledger.AccountTitle
	Lines   []ledger.Line
	Closed  map[string]bool
	Audits  []shared.AuditLog
	Inserts int
}

// NewLedger seeds every account of the default posting map.
func NewLedger() *Ledger {
	titles := make(map[string]ledger.AccountTitle)
	for acct, number := range ledger.DefaultAccountMap() {
		titles[number] = ledger.AccountTitle{Number: number, Name: string(acct), NormalBalance: ledger.NormalDebit}
	}
	return &Ledger{Titles: titles, Closed: make(map[string]bool)}
}

// CloseMonth marks the month of date closed for module.
func (l *Ledger) CloseMonth(module ledger.Module, date time.Time) {
	l.Closed[key(module, date)] = true
}

func key(module ledger.Module, date time.Time) string {
	return string(module) + ":" + periods.MonthStart(date).Format("2006-01")
}

// Snapshot copies the mutable state so a failed transaction can be rolled back.
func (l *Ledger) Snapshot() func() {
	lines := append([]ledger.Line(nil), l.Lines...)
	audits := append([]shared.AuditLog(nil), l.Audits...)
	return func() {
		l.Lines = lines
		l.Audits = audits
	}
}

// AccountTitles implements ledger.Store.
func (l *Ledger) AccountTitles(ctx context.Context, company string, numbers []string) (map[string]ledger.AccountTitle, error) {
	out := make(map[string]ledger.AccountTitle)
	for _, n := range numbers {
		if t, ok := l.Titles[n]; ok {
			out[n] = t
		}
	}
	return out, nil
}

// InsertLines implements ledger.Store.
func (l *Ledger) InsertLines(ctx context.Context, lines []ledger.Line) error {
	l.Inserts++
	l.Lines = append(l.Lines, lines...)
	return nil
}

// DeleteLinesByReference implements ledger.Store.
func (l *Ledger) DeleteLinesByReference(ctx context.Context, company, reference string) (int64, error) {
	var kept []ledger.Line
	var n int64
	for _, line := range l.Lines {
		if line.Company == company && line.Reference == reference {
			n++
			continue
		}
		kept = append(kept, line)
	}
	l.Lines = kept
	return n, nil
}

// IsPeriodPosted implements periods.Checker.
func (l *Ledger) IsPeriodPosted(ctx context.Context, company string, module ledger.Module, date time.Time) (bool, error) {
	return l.Closed[key(module, date)], nil
}

// RecordAudit implements documents.Tx.
func (l *Ledger) RecordAudit(ctx context.Context, log shared.AuditLog) error {
	l.Audits = append(l.Audits, log)
	return nil
}

// LinesFor returns the lines booked under a reference.
func (l *Ledger) LinesFor(reference string) []ledger.Line {
	var out []ledger.Line
	for _, line := range l.Lines {
		if line.Reference == reference {
			out = append(out, line)
		}
	}
	return out
}

// UpsertAccountTitle stores or replaces a title.
func (l *Ledger) UpsertAccountTitle(ctx context.Context, title ledger.AccountTitle) error {
	l.Titles[title.Number] = title
	return nil
}

// ReferenceExists reports whether any line carries the reference.
func (l *Ledger) ReferenceExists(ctx context.Context, company, reference string) (bool, error) {
	for _, line := range l.Lines {
		if line.Company == company && line.Reference == reference {
			return true, nil
		}
	}
	return false, nil
}

// ListAccountTitles implements ledger.Reader. Titles are not company scoped.
func (l *Ledger) ListAccountTitles(ctx context.Context, company string) ([]ledger.AccountTitle, error) {
	out := make([]ledger.AccountTitle, 0, len(l.Titles))
	for _, t := range l.Titles {
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Number < out[j].Number })
	return out, nil
}

// LinesByRange implements ledger.Reader with inclusive bounds.
func (l *Ledger) LinesByRange(ctx context.Context, company string, from, to time.Time) ([]ledger.Line, error) {
	var out []ledger.Line
	for _, line := range l.Lines {
		if line.Company == company && !line.Date.Before(from) && !line.Date.After(to) {
			out = append(out, line)
		}
	}
	return out, nil
}

// Companies lists the companies that have ledger lines.
func (l *Ledger) Companies(ctx context.Context) ([]string, error) {
	seen := make(map[string]bool)
	var out []string
	for _, line := range l.Lines {
		if !seen[line.Company] {
			seen[line.Company] = true
			out = append(out, line.Company)
		}
	}
	sort.Strings(out)
	return out, nil
}
