package ledger

import (
	"context"
	"time"
)

// Store exposes the ledger operations a posting workflow needs inside its transaction.
type Store interface {
	AccountTitles(ctx context.Context, company string, numbers []string) (map[string]AccountTitle, error)
	InsertLines(ctx context.Context, lines []Line) error
	DeleteLinesByReference(ctx context.Context, company, reference string) (int64, error)
}

// Reader exposes read-only ledger queries used by reports and integrity checks.
type Reader interface {
	ListAccountTitles(ctx context.Context, company string) ([]AccountTitle, error)
	LinesByRange(ctx context.Context, company string, from, to time.Time) ([]Line, error)
}

// Post resolves account titles, builds the lines, validates the balance and persists
// them. Nothing is written when any step fails.
func Post(ctx context.Context, store Store, entry Entry, now time.Time) ([]Line, error) {
	titles, err := store.AccountTitles(ctx, entry.Company, entry.AccountNumbers())
	if err != nil {
		return nil, err
	}
	lines, err := Build(entry, titles, now)
	if err != nil {
		return nil, err
	}
	if err := ValidateBalance(lines); err != nil {
		return nil, err
	}
	if err := store.InsertLines(ctx, lines); err != nil {
		return nil, err
	}
	return lines, nil
}

// Reverse removes every line booked under the reference.
func Reverse(ctx context.Context, store Store, company, reference string) (int64, error) {
	if reference == "" {
		return 0, ErrReferenceRequired
	}
	return store.DeleteLinesByReference(ctx, company, reference)
}
