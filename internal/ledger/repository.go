package ledger

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/harborline/ibs/internal/platform/db"
)

// Querier is satisfied by both *pgxpool.Pool and pgx.Tx.
type Querier interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Repository reads the general ledger outside of posting transactions.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs Repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// TxStore implements Store on top of a pgx transaction.
type TxStore struct {
	tx pgx.Tx
}

// NewTxStore binds the ledger store to an open transaction.
func NewTxStore(tx pgx.Tx) *TxStore {
	return &TxStore{tx: tx}
}

const accountTitleColumns = `id, company, number, name, type, normal_balance, level, COALESCE(parent_number, ''), is_main, COALESCE(role, ''), created_at`

func scanAccountTitle(row pgx.Row) (AccountTitle, error) {
	var (
		a    AccountTitle
		role string
	)
	err := row.Scan(&a.ID, &a.Company, &a.Number, &a.Name, &a.Type, &a.NormalBalance, &a.Level, &a.ParentNumber, &a.IsMain, &role, &a.CreatedAt)
	a.Role = ParseRole(role)
	return a, err
}

// AccountTitles loads the requested account titles keyed by number.
func (s *TxStore) AccountTitles(ctx context.Context, company string, numbers []string) (map[string]AccountTitle, error) {
	out := make(map[string]AccountTitle, len(numbers))
	if len(numbers) == 0 {
		return out, nil
	}
	rows, err := s.tx.Query(ctx, `SELECT `+accountTitleColumns+` FROM account_titles WHERE company=$1 AND number = ANY($2)`, company, numbers)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	for rows.Next() {
		title, err := scanAccountTitle(rows)
		if err != nil {
			return nil, err
		}
		out[title.Number] = title
	}
	return out, rows.Err()
}

// InsertLines writes the lines in a single pgx batch.
func (s *TxStore) InsertLines(ctx context.Context, lines []Line) error {
	batch := &pgx.Batch{}
	for _, line := range lines {
		batch.Queue(`INSERT INTO general_ledger_books (batch_id, company, date, reference, account_number, account_title, description, debit, credit, subsidiary_type, subsidiary_id, module, created_by, created_at)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,NULLIF($10,''),NULLIF($11,0),$12,$13,$14)`,
			line.BatchID, line.Company, line.Date, line.Reference, line.AccountNumber, line.AccountTitle, line.Description,
			line.Debit, line.Credit, string(line.SubsidiaryType), line.SubsidiaryID, string(line.Module), line.CreatedBy, line.CreatedAt)
	}
	results := s.tx.SendBatch(ctx, batch)
	for range lines {
		if _, err := results.Exec(); err != nil {
			_ = results.Close()
			return err
		}
	}
	return results.Close()
}

// DeleteLinesByReference removes the lines posted for a document.
func (s *TxStore) DeleteLinesByReference(ctx context.Context, company, reference string) (int64, error) {
	cmd, err := s.tx.Exec(ctx, `DELETE FROM general_ledger_books WHERE company=$1 AND reference=$2`, company, reference)
	if err != nil {
		return 0, err
	}
	return cmd.RowsAffected(), nil
}

// ReferenceExists reports whether any line is booked under the reference.
func (s *TxStore) ReferenceExists(ctx context.Context, company, reference string) (bool, error) {
	var exists bool
	err := s.tx.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM general_ledger_books WHERE company=$1 AND reference=$2)`, company, reference).Scan(&exists)
	return exists, err
}

// UpsertAccountTitle inserts or refreshes a chart of accounts node.
func (s *TxStore) UpsertAccountTitle(ctx context.Context, title AccountTitle) error {
	_, err := s.tx.Exec(ctx, `INSERT INTO account_titles (company, number, name, type, normal_balance, level, parent_number, is_main, role)
VALUES ($1,$2,$3,$4,$5,$6,NULLIF($7,''),$8,NULLIF($9,''))
ON CONFLICT (company, number) DO UPDATE SET name=EXCLUDED.name, type=EXCLUDED.type, normal_balance=EXCLUDED.normal_balance,
level=EXCLUDED.level, parent_number=EXCLUDED.parent_number, is_main=EXCLUDED.is_main, role=EXCLUDED.role`,
		title.Company, title.Number, title.Name, title.Type, title.NormalBalance, title.Level, title.ParentNumber, title.IsMain, string(title.Role))
	return err
}

// ListAccountTitles returns the company's chart of accounts ordered by number.
func (r *Repository) ListAccountTitles(ctx context.Context, company string) ([]AccountTitle, error) {
	return listAccountTitles(ctx, r.pool, company)
}

// ListAccountTitles is available inside a transaction as well.
func (s *TxStore) ListAccountTitles(ctx context.Context, company string) ([]AccountTitle, error) {
	return listAccountTitles(ctx, s.tx, company)
}

func listAccountTitles(ctx context.Context, q Querier, company string) ([]AccountTitle, error) {
	rows, err := q.Query(ctx, `SELECT `+accountTitleColumns+` FROM account_titles WHERE company=$1 ORDER BY number`, company)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var titles []AccountTitle
	for rows.Next() {
		title, err := scanAccountTitle(rows)
		if err != nil {
			return nil, err
		}
		titles = append(titles, title)
	}
	return titles, rows.Err()
}

// Companies lists every company with a chart of accounts.
func (r *Repository) Companies(ctx context.Context) ([]string, error) {
	rows, err := r.pool.Query(ctx, `SELECT DISTINCT company FROM account_titles ORDER BY company`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []string
	for rows.Next() {
		var company string
		if err := rows.Scan(&company); err != nil {
			return nil, err
		}
		out = append(out, company)
	}
	return out, rows.Err()
}

// LinesByRange returns ledger lines dated within [from, to] inclusive.
func (r *Repository) LinesByRange(ctx context.Context, company string, from, to time.Time) ([]Line, error) {
	return linesByRange(ctx, r.pool, company, from, to)
}

// LinesByRange is available inside a transaction as well.
func (s *TxStore) LinesByRange(ctx context.Context, company string, from, to time.Time) ([]Line, error) {
	return linesByRange(ctx, s.tx, company, from, to)
}

func linesByRange(ctx context.Context, q Querier, company string, from, to time.Time) ([]Line, error) {
	rows, err := q.Query(ctx, `SELECT id, batch_id, company, date, reference, account_number, account_title, COALESCE(description, ''), debit, credit,
COALESCE(subsidiary_type, ''), COALESCE(subsidiary_id, 0), module, created_by, created_at
FROM general_ledger_books WHERE company=$1 AND date BETWEEN $2 AND $3 ORDER BY date, reference, id`, company, from, to)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var lines []Line
	for rows.Next() {
		var line Line
		if err := rows.Scan(&line.ID, &line.BatchID, &line.Company, &line.Date, &line.Reference, &line.AccountNumber, &line.AccountTitle, &line.Description,
			&line.Debit, &line.Credit, &line.SubsidiaryType, &line.SubsidiaryID, &line.Module, &line.CreatedBy, &line.CreatedAt); err != nil {
			return nil, err
		}
		lines = append(lines, line)
	}
	return lines, rows.Err()
}

// ErrRepositoryNotInitialised is returned when the pool is missing.
var ErrRepositoryNotInitialised = errors.New("ledger repository not initialised")

// WithTx runs fn inside a repeatable-read transaction bound to a TxStore.
func (r *Repository) WithTx(ctx context.Context, fn func(context.Context, *TxStore) error) error {
	if r == nil || r.pool == nil {
		return ErrRepositoryNotInitialised
	}
	return db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		return fn(ctx, NewTxStore(tx))
	})
}
