package delivery

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/harborline/ibs/internal/documents"
	"github.com/harborline/ibs/internal/ledger"
	"github.com/harborline/ibs/internal/periods"
	"github.com/harborline/ibs/internal/platform/db"
	"github.com/harborline/ibs/internal/shared"
)

const table = "delivery_receipts"

const receiptColumns = documents.HeaderColumns + `, order_id, order_number, customer_id, product_id, quantity,
unit_price, freight, unit_cost, vat_type, has_ewt, has_wvat`

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

// Get loads a receipt by number.
func (r *Repository) Get(ctx context.Context, company, number string) (*Receipt, error) {
	return scanReceipt(r.pool.QueryRow(ctx, `SELECT `+receiptColumns+` FROM delivery_receipts WHERE company=$1 AND number=$2`, company, number))
}

// List returns receipts matching the filter, newest first.
func (r *Repository) List(ctx context.Context, filter ListFilter) ([]Receipt, error) {
	var (
		clauses = []string{"company=$1"}
		args    = []any{filter.Company}
	)
	add := func(clause string, v any) {
		args = append(args, v)
		clauses = append(clauses, fmt.Sprintf(clause, len(args)))
	}
	if filter.CustomerID > 0 {
		add("customer_id=$%d", filter.CustomerID)
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
	rows, err := r.pool.Query(ctx, fmt.Sprintf(`SELECT %s FROM delivery_receipts WHERE %s ORDER BY date DESC, id DESC LIMIT $%d`,
		receiptColumns, strings.Join(clauses, " AND "), len(args)), args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Receipt
	for rows.Next() {
		receipt, err := scanReceipt(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *receipt)
	}
	return out, rows.Err()
}

func scanReceipt(row pgx.Row) (*Receipt, error) {
	var (
		rc      Receipt
		vatType string
	)
	targets := append(rc.Header.ScanTargets(), &rc.OrderID, &rc.OrderNumber, &rc.CustomerID, &rc.ProductID, &rc.Quantity,
		&rc.UnitPrice, &rc.Freight, &rc.UnitCost, &vatType, &rc.Tax.HasEWT, &rc.Tax.HasWVAT)
	if err := row.Scan(targets...); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, documents.ErrNotFound
		}
		return nil, err
	}
	rc.Tax.VatType = ledger.ParseVatType(vatType)
	return &rc, nil
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

func (r *txRepository) NextNumber(ctx context.Context, company string) (string, error) {
	seq, err := documents.NextSequence(ctx, r.tx, company, entity)
	if err != nil {
		return "", err
	}
	return documents.FormatNumber(prefix, seq), nil
}

func (r *txRepository) LockOrder(ctx context.Context, company string, id int64) (Order, error) {
	var (
		o       Order
		status  string
		vatType string
	)
	err := r.tx.QueryRow(ctx, `SELECT o.id, o.number, o.company, o.customer_id, o.product_id, o.quantity, o.delivered_quantity,
o.unit_price, o.status, o.vat_type, c.has_ewt, c.has_wvat
FROM customer_orders o JOIN customers c ON c.id = o.customer_id WHERE o.company=$1 AND o.id=$2 FOR UPDATE OF o`, company, id).
		Scan(&o.ID, &o.Number, &o.Company, &o.CustomerID, &o.ProductID, &o.Quantity, &o.Delivered, &o.UnitPrice, &status, &vatType,
			&o.Tax.HasEWT, &o.Tax.HasWVAT)
	if errors.Is(err, pgx.ErrNoRows) {
		return Order{}, ErrOrderNotFound
	}
	if err != nil {
		return Order{}, err
	}
	o.Posted = documents.Status(status) == documents.StatusPosted
	o.Tax.VatType = ledger.ParseVatType(vatType)
	return o, nil
}

func (r *txRepository) AddDelivered(ctx context.Context, orderID int64, delta decimal.Decimal) error {
	_, err := r.tx.Exec(ctx, `UPDATE customer_orders SET delivered_quantity = delivered_quantity + $2 WHERE id=$1`, orderID, delta)
	return err
}

func (r *txRepository) Insert(ctx context.Context, rc *Receipt) error {
	return r.tx.QueryRow(ctx, `INSERT INTO delivery_receipts (number, company, date, status, version, remarks, created_by, created_at,
order_id, order_number, customer_id, product_id, quantity, unit_price, freight, unit_cost, vat_type, has_ewt, has_wvat)
VALUES ($1, $2, $3, $4, 1, NULLIF($5,''), $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18) RETURNING id, version`,
		rc.Number, rc.Company, rc.Date, string(rc.Status), rc.Remarks, rc.CreatedBy, rc.CreatedAt,
		rc.OrderID, rc.OrderNumber, rc.CustomerID, rc.ProductID, rc.Quantity, rc.UnitPrice, rc.Freight, rc.UnitCost,
		string(rc.Tax.VatType), rc.Tax.HasEWT, rc.Tax.HasWVAT).Scan(&rc.ID, &rc.Version)
}

func (r *txRepository) UpdateContent(ctx context.Context, rc *Receipt) error {
	cmd, err := r.tx.Exec(ctx, `UPDATE delivery_receipts SET date=$3, quantity=$4, freight=$5, unit_cost=$6, remarks=NULLIF($7,''),
edited_by=$8, edited_at=$9, version=version+1 WHERE id=$1 AND version=$2`,
		rc.ID, rc.Version, rc.Date, rc.Quantity, rc.Freight, rc.UnitCost, rc.Remarks, rc.EditedBy, rc.EditedAt)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return documents.ErrConcurrentUpdate
	}
	rc.Version++
	return nil
}

func (r *txRepository) Lock(ctx context.Context, company, number string) (*Receipt, error) {
	return scanReceipt(r.tx.QueryRow(ctx, `SELECT `+receiptColumns+` FROM delivery_receipts WHERE company=$1 AND number=$2 FOR UPDATE`, company, number))
}

func (r *txRepository) SaveStatus(ctx context.Context, rc *Receipt) error {
	return documents.SaveStatus(ctx, r.tx, table, &rc.Header)
}
