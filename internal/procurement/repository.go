package procurement

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

const (
	poTable = "purchase_orders"
	rrTable = "receiving_reports"
	// pendingPOIndex backs the one-pending-PO-per-supplier-and-product rule.
	pendingPOIndex = "purchase_orders_pending_uniq"
)

const poColumns = documents.HeaderColumns + `, supplier_id, product_id, quantity, received_quantity, unit_cost,
COALESCE(terms, ''), vat_type, has_ewt`

const rrColumns = documents.HeaderColumns + `, po_id, po_number, supplier_id, product_id, quantity, unit_cost, vat_type, has_ewt`

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

// GetPO loads a purchase order by number.
func (r *Repository) GetPO(ctx context.Context, company, number string) (*PurchaseOrder, error) {
	return scanPO(r.pool.QueryRow(ctx, `SELECT `+poColumns+` FROM purchase_orders WHERE company=$1 AND number=$2`, company, number))
}

// GetRR loads a receiving report by number.
func (r *Repository) GetRR(ctx context.Context, company, number string) (*ReceivingReport, error) {
	return scanRR(r.pool.QueryRow(ctx, `SELECT `+rrColumns+` FROM receiving_reports WHERE company=$1 AND number=$2`, company, number))
}

// ListPOs returns purchase orders matching the filter, newest first.
func (r *Repository) ListPOs(ctx context.Context, filter ListFilter) ([]PurchaseOrder, error) {
	query, args := listQuery(poColumns, poTable, filter)
	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []PurchaseOrder
	for rows.Next() {
		po, err := scanPO(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *po)
	}
	return out, rows.Err()
}

// ListRRs returns receiving reports matching the filter, newest first.
func (r *Repository) ListRRs(ctx context.Context, filter ListFilter) ([]ReceivingReport, error) {
	query, args := listQuery(rrColumns, rrTable, filter)
	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []ReceivingReport
	for rows.Next() {
		rr, err := scanRR(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *rr)
	}
	return out, rows.Err()
}

func listQuery(columns, table string, filter ListFilter) (string, []any) {
	var (
		clauses = []string{"company=$1"}
		args    = []any{filter.Company}
	)
	add := func(clause string, v any) {
		args = append(args, v)
		clauses = append(clauses, fmt.Sprintf(clause, len(args)))
	}
	if filter.SupplierID > 0 {
		add("supplier_id=$%d", filter.SupplierID)
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
	return fmt.Sprintf(`SELECT %s FROM %s WHERE %s ORDER BY date DESC, id DESC LIMIT $%d`,
		columns, table, strings.Join(clauses, " AND "), len(args)), args
}

func scanPO(row pgx.Row) (*PurchaseOrder, error) {
	var (
		po      PurchaseOrder
		vatType string
	)
	targets := append(po.Header.ScanTargets(), &po.SupplierID, &po.ProductID, &po.Quantity, &po.Received, &po.UnitCost,
		&po.Terms, &vatType, &po.Tax.HasEWT)
	if err := row.Scan(targets...); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, documents.ErrNotFound
		}
		return nil, err
	}
	po.Tax.VatType = ledger.ParseVatType(vatType)
	return &po, nil
}

func scanRR(row pgx.Row) (*ReceivingReport, error) {
	var (
		rr      ReceivingReport
		vatType string
	)
	targets := append(rr.Header.ScanTargets(), &rr.POID, &rr.PONumber, &rr.SupplierID, &rr.ProductID, &rr.Quantity, &rr.UnitCost,
		&vatType, &rr.Tax.HasEWT)
	if err := row.Scan(targets...); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, documents.ErrNotFound
		}
		return nil, err
	}
	rr.Tax.VatType = ledger.ParseVatType(vatType)
	return &rr, nil
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

func (r *txRepository) NextNumber(ctx context.Context, company, entity, prefix string) (string, error) {
	seq, err := documents.NextSequence(ctx, r.tx, company, entity)
	if err != nil {
		return "", err
	}
	return documents.FormatNumber(prefix, seq), nil
}

func (r *txRepository) SupplierTax(ctx context.Context, company string, supplierID int64) (ledger.TaxProfile, error) {
	var (
		profile ledger.TaxProfile
		vatType string
	)
	err := r.tx.QueryRow(ctx, `SELECT vat_type, has_ewt FROM suppliers WHERE company=$1 AND id=$2`, company, supplierID).
		Scan(&vatType, &profile.HasEWT)
	if errors.Is(err, pgx.ErrNoRows) {
		return ledger.TaxProfile{}, ErrSupplierNotFound
	}
	if err != nil {
		return ledger.TaxProfile{}, err
	}
	profile.VatType = ledger.ParseVatType(vatType)
	return profile, nil
}

func (r *txRepository) HasPendingPO(ctx context.Context, company string, supplierID, productID, excludeID int64) (bool, error) {
	var exists bool
	err := r.tx.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM purchase_orders WHERE company=$1 AND supplier_id=$2 AND product_id=$3
AND status=$4 AND id <> $5)`, company, supplierID, productID, string(documents.StatusPending), excludeID).Scan(&exists)
	return exists, err
}

func (r *txRepository) InsertPO(ctx context.Context, po *PurchaseOrder) error {
	err := r.tx.QueryRow(ctx, `INSERT INTO purchase_orders (number, company, date, status, version, remarks, created_by, created_at,
supplier_id, product_id, quantity, received_quantity, unit_cost, terms, vat_type, has_ewt)
VALUES ($1, $2, $3, $4, 1, NULLIF($5,''), $6, $7, $8, $9, $10, 0, $11, NULLIF($12,''), $13, $14) RETURNING id, version`,
		po.Number, po.Company, po.Date, string(po.Status), po.Remarks, po.CreatedBy, po.CreatedAt,
		po.SupplierID, po.ProductID, po.Quantity, po.UnitCost, po.Terms, string(po.Tax.VatType), po.Tax.HasEWT).
		Scan(&po.ID, &po.Version)
	if documents.IsUniqueViolation(err, pendingPOIndex) {
		return documents.ErrPendingSiblingExists
	}
	return err
}

func (r *txRepository) UpdatePO(ctx context.Context, po *PurchaseOrder) error {
	return r.bumpVersion(ctx, &po.Header, `UPDATE purchase_orders SET date=$3, quantity=$4, unit_cost=$5, terms=NULLIF($6,''),
remarks=NULLIF($7,''), edited_by=$8, edited_at=$9, version=version+1 WHERE id=$1 AND version=$2`,
		po.ID, po.Version, po.Date, po.Quantity, po.UnitCost, po.Terms, po.Remarks, po.EditedBy, po.EditedAt)
}

func (r *txRepository) LockPO(ctx context.Context, company, number string) (*PurchaseOrder, error) {
	return scanPO(r.tx.QueryRow(ctx, `SELECT `+poColumns+` FROM purchase_orders WHERE company=$1 AND number=$2 FOR UPDATE`, company, number))
}

func (r *txRepository) LockPOByID(ctx context.Context, company string, id int64) (*PurchaseOrder, error) {
	return scanPO(r.tx.QueryRow(ctx, `SELECT `+poColumns+` FROM purchase_orders WHERE company=$1 AND id=$2 FOR UPDATE`, company, id))
}

func (r *txRepository) SavePOStatus(ctx context.Context, po *PurchaseOrder) error {
	return documents.SaveStatus(ctx, r.tx, poTable, &po.Header)
}

func (r *txRepository) AddReceived(ctx context.Context, poID int64, delta decimal.Decimal) error {
	_, err := r.tx.Exec(ctx, `UPDATE purchase_orders SET received_quantity = received_quantity + $2 WHERE id=$1`, poID, delta)
	return err
}

func (r *txRepository) InsertRR(ctx context.Context, rr *ReceivingReport) error {
	return r.tx.QueryRow(ctx, `INSERT INTO receiving_reports (number, company, date, status, version, remarks, created_by, created_at,
po_id, po_number, supplier_id, product_id, quantity, unit_cost, vat_type, has_ewt)
VALUES ($1, $2, $3, $4, 1, NULLIF($5,''), $6, $7, $8, $9, $10, $11, $12, $13, $14, $15) RETURNING id, version`,
		rr.Number, rr.Company, rr.Date, string(rr.Status), rr.Remarks, rr.CreatedBy, rr.CreatedAt,
		rr.POID, rr.PONumber, rr.SupplierID, rr.ProductID, rr.Quantity, rr.UnitCost, string(rr.Tax.VatType), rr.Tax.HasEWT).
		Scan(&rr.ID, &rr.Version)
}

func (r *txRepository) UpdateRR(ctx context.Context, rr *ReceivingReport) error {
	return r.bumpVersion(ctx, &rr.Header, `UPDATE receiving_reports SET date=$3, quantity=$4, remarks=NULLIF($5,''),
edited_by=$6, edited_at=$7, version=version+1 WHERE id=$1 AND version=$2`,
		rr.ID, rr.Version, rr.Date, rr.Quantity, rr.Remarks, rr.EditedBy, rr.EditedAt)
}

func (r *txRepository) LockRR(ctx context.Context, company, number string) (*ReceivingReport, error) {
	return scanRR(r.tx.QueryRow(ctx, `SELECT `+rrColumns+` FROM receiving_reports WHERE company=$1 AND number=$2 FOR UPDATE`, company, number))
}

func (r *txRepository) SaveRRStatus(ctx context.Context, rr *ReceivingReport) error {
	return documents.SaveStatus(ctx, r.tx, rrTable, &rr.Header)
}

func (r *txRepository) bumpVersion(ctx context.Context, h *documents.Header, sql string, args ...any) error {
	cmd, err := r.tx.Exec(ctx, sql, args...)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return documents.ErrConcurrentUpdate
	}
	h.Version++
	return nil
}
