package memos

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/harborline/ibs/internal/documents"
	"github.com/harborline/ibs/internal/ledger"
	"github.com/harborline/ibs/internal/periods"
	"github.com/harborline/ibs/internal/platform/db"
	"github.com/harborline/ibs/internal/shared"
)

const (
	table = "memos"
	// pendingSourceIndex backs the one-pending-memo-per-invoice rule.
	pendingSourceIndex = "memos_pending_source_uniq"
)

const memoColumns = documents.HeaderColumns + `, kind, source_type, source_id, source_number, customer_id,
COALESCE(description, ''), adjusted_price, quantity, amount, total, vat_type, has_ewt, has_wvat`

// Repository implements RepositoryPort on PostgreSQL.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs the repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// WithTx runs fn inside a repeatable-read transaction.
func (r *Repository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	return db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		return fn(ctx, &txRepository{tx: tx, TxStore: ledger.NewTxStore(tx)})
	})
}

// Get loads a memo by number.
func (r *Repository) Get(ctx context.Context, company string, kind Kind, number string) (*Memo, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+memoColumns+` FROM memos WHERE company=$1 AND kind=$2 AND number=$3`, company, string(kind), number)
	return scanMemo(row)
}

// List returns memos matching the filter, newest first.
func (r *Repository) List(ctx context.Context, filter ListFilter) ([]Memo, error) {
	var (
		clauses = []string{"company=$1"}
		args    = []any{filter.Company}
	)
	add := func(clause string, v any) {
		args = append(args, v)
		clauses = append(clauses, fmt.Sprintf(clause, len(args)))
	}
	if filter.Kind != "" {
		add("kind=$%d", string(filter.Kind))
	}
	if filter.Status != "" {
		add("status=$%d", string(filter.Status))
	}
	if !filter.From.IsZero() {
		add("date >= $%d", filter.From)
	}
	if !filter.To.IsZero() {
		add("date <= $%d", filter.To)
	}
	args = append(args, filter.Limit)
	query := fmt.Sprintf(`SELECT %s FROM memos WHERE %s ORDER BY date DESC, id DESC LIMIT $%d`,
		memoColumns, strings.Join(clauses, " AND "), len(args))
	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Memo
	for rows.Next() {
		m, err := scanMemo(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *m)
	}
	return out, rows.Err()
}

func scanMemo(row pgx.Row) (*Memo, error) {
	var (
		m       Memo
		kind    string
		srcType string
		vatType string
	)
	targets := append(m.Header.ScanTargets(), &kind, &srcType, &m.SourceID, &m.SourceNumber, &m.CustomerID,
		&m.Description, &m.AdjustedPrice, &m.Quantity, &m.Amount, &m.Total, &vatType, &m.Tax.HasEWT, &m.Tax.HasWVAT)
	if err := row.Scan(targets...); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, documents.ErrNotFound
		}
		return nil, err
	}
	m.Kind = Kind(kind)
	m.SourceType = SourceType(srcType)
	m.Tax.VatType = ledger.ParseVatType(vatType)
	return &m, nil
}

type txRepository struct {
	tx pgx.Tx
	*ledger.TxStore
}

func (r *txRepository) IsPeriodPosted(ctx context.Context, company string, module ledger.Module, date time.Time) (bool, error) {
	return periods.IsPeriodPosted(ctx, r.tx, company, module, date)
}

func (r *txRepository) RecordAudit(ctx context.Context, log shared.AuditLog) error {
	return shared.InsertAudit(ctx, r.tx, log)
}

func (r *txRepository) NextNumber(ctx context.Context, company string, kind Kind) (string, error) {
	seq, err := documents.NextSequence(ctx, r.tx, company, kind.Entity())
	if err != nil {
		return "", err
	}
	return documents.FormatNumber(kind.Prefix(), seq), nil
}

// Source reads the invoice header and the customer's tax flags.
func (r *txRepository) Source(ctx context.Context, company string, typ SourceType, id int64) (Source, error) {
	var invoiceTable string
	switch typ {
	case SourceSalesInvoice:
		invoiceTable = "sales_invoices"
	case SourceServiceInvoice:
		invoiceTable = "service_invoices"
	default:
		return Source{}, ErrInvalidSourceType
	}
	var (
		src     = Source{Type: typ}
		status  string
		vatType string
	)
	err := r.tx.QueryRow(ctx, `SELECT i.id, i.number, i.company, i.customer_id, i.status, i.vat_type, c.has_ewt, c.has_wvat
FROM `+invoiceTable+` i JOIN customers c ON c.id = i.customer_id WHERE i.company=$1 AND i.id=$2`, company, id).
		Scan(&src.ID, &src.Number, &src.Company, &src.CustomerID, &status, &vatType, &src.Tax.HasEWT, &src.Tax.HasWVAT)
	if errors.Is(err, pgx.ErrNoRows) {
		return Source{}, ErrSourceNotFound
	}
	if err != nil {
		return Source{}, err
	}
	src.Posted = documents.Status(status) == documents.StatusPosted
	src.Tax.VatType = ledger.ParseVatType(vatType)
	return src, nil
}

func (r *txRepository) HasPendingForSource(ctx context.Context, company string, kind Kind, typ SourceType, sourceID, excludeID int64) (bool, error) {
	var exists bool
	err := r.tx.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM memos WHERE company=$1 AND kind=$2 AND source_type=$3 AND source_id=$4
AND status=$5 AND id <> $6)`, company, string(kind), string(typ), sourceID, string(documents.StatusPending), excludeID).Scan(&exists)
	return exists, err
}

func (r *txRepository) Insert(ctx context.Context, m *Memo) error {
	err := r.tx.QueryRow(ctx, `INSERT INTO memos (number, company, date, status, version, remarks, created_by, created_at,
kind, source_type, source_id, source_number, customer_id, description, adjusted_price, quantity, amount, total, vat_type, has_ewt, has_wvat)
VALUES ($1, $2, $3, $4, 1, NULLIF($5,''), $6, $7, $8, $9, $10, $11, $12, NULLIF($13,''), $14, $15, $16, $17, $18, $19, $20)
RETURNING id, version`,
		m.Number, m.Company, m.Date, string(m.Status), m.Remarks, m.CreatedBy, m.CreatedAt,
		string(m.Kind), string(m.SourceType), m.SourceID, m.SourceNumber, m.CustomerID, m.Description,
		m.AdjustedPrice, m.Quantity, m.Amount, m.Total, string(m.Tax.VatType), m.Tax.HasEWT, m.Tax.HasWVAT).
		Scan(&m.ID, &m.Version)
	if documents.IsUniqueViolation(err, pendingSourceIndex) {
		return documents.ErrPendingSiblingExists
	}
	return err
}

func (r *txRepository) UpdateContent(ctx context.Context, m *Memo) error {
	cmd, err := r.tx.Exec(ctx, `UPDATE memos SET date=$3, description=NULLIF($4,''), remarks=NULLIF($5,''), adjusted_price=$6,
quantity=$7, amount=$8, total=$9, edited_by=$10, edited_at=$11, version=version+1 WHERE id=$1 AND version=$2`,
		m.ID, m.Version, m.Date, m.Description, m.Remarks, m.AdjustedPrice, m.Quantity, m.Amount, m.Total, m.EditedBy, m.EditedAt)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return documents.ErrConcurrentUpdate
	}
	m.Version++
	return nil
}

func (r *txRepository) Lock(ctx context.Context, company string, kind Kind, number string) (*Memo, error) {
	row := r.tx.QueryRow(ctx, `SELECT `+memoColumns+` FROM memos WHERE company=$1 AND kind=$2 AND number=$3 FOR UPDATE`,
		company, string(kind), number)
	return scanMemo(row)
}

func (r *txRepository) SaveStatus(ctx context.Context, m *Memo) error {
	return documents.SaveStatus(ctx, r.tx, table, &m.Header)
}
