package dispatch

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

const table = "dispatch_billings"

const ticketColumns = `id, number, company, customer_id, customer_type, vessel, terminal, date_left, date_arrived,
dispatch_discount_pct, baf_discount_pct, billable_hours, dispatch_charge, baf_charge, dispatch_discount, baf_discount,
net_billing, billing_id, created_by, created_at`

const billingColumns = documents.HeaderColumns + `, customer_id, ticket_ids, amount, vat_type, has_ewt, has_wvat`

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

// GetTicket loads a ticket by number.
func (r *Repository) GetTicket(ctx context.Context, company, number string) (*Ticket, error) {
	t, err := scanTicket(r.pool.QueryRow(ctx, `SELECT `+ticketColumns+` FROM dispatch_tickets WHERE company=$1 AND number=$2`, company, number))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrTicketNotFound
	}
	return t, err
}

// ListTickets returns tickets matching the filter, most recent departure first.
func (r *Repository) ListTickets(ctx context.Context, filter TicketFilter) ([]Ticket, error) {
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
	if filter.Unbilled {
		clauses = append(clauses, "billing_id IS NULL")
	}
	if !filter.From.IsZero() {
		add("date_left >= $%d", filter.From)
	}
	if !filter.To.IsZero() {
		add("date_left < $%d", filter.To.AddDate(0, 0, 1))
	}
	args = append(args, filter.Limit)
	rows, err := r.pool.Query(ctx, fmt.Sprintf(`SELECT %s FROM dispatch_tickets WHERE %s ORDER BY date_left DESC, id DESC LIMIT $%d`,
		ticketColumns, strings.Join(clauses, " AND "), len(args)), args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectTickets(rows)
}

// GetBilling loads a billing by number.
func (r *Repository) GetBilling(ctx context.Context, company, number string) (*Billing, error) {
	return scanBilling(r.pool.QueryRow(ctx, `SELECT `+billingColumns+` FROM dispatch_billings WHERE company=$1 AND number=$2`, company, number))
}

// ListBillings returns billings matching the filter, newest first.
func (r *Repository) ListBillings(ctx context.Context, filter BillingFilter) ([]Billing, error) {
	var (
		clauses = []string{"company=$1"}
		args    = []any{filter.Company}
	)
	if filter.CustomerID > 0 {
		args = append(args, filter.CustomerID)
		clauses = append(clauses, fmt.Sprintf("customer_id=$%d", len(args)))
	}
	if filter.Status != "" {
		args = append(args, string(filter.Status))
		clauses = append(clauses, fmt.Sprintf("status=$%d", len(args)))
	}
	args = append(args, filter.Limit)
	rows, err := r.pool.Query(ctx, fmt.Sprintf(`SELECT %s FROM dispatch_billings WHERE %s ORDER BY date DESC, id DESC LIMIT $%d`,
		billingColumns, strings.Join(clauses, " AND "), len(args)), args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Billing
	for rows.Next() {
		b, err := scanBilling(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *b)
	}
	return out, rows.Err()
}

// ListTariffs returns the company's tariffs ordered by terminal.
func (r *Repository) ListTariffs(ctx context.Context, company string) ([]Tariff, error) {
	rows, err := r.pool.Query(ctx, `SELECT company, terminal, customer_type, dispatch_rate, baf_rate FROM dispatch_tariffs
WHERE company=$1 ORDER BY terminal, customer_type`, company)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Tariff
	for rows.Next() {
		var t Tariff
		if err := rows.Scan(&t.Company, &t.Terminal, &t.CustomerType, &t.DispatchRate, &t.BAFRate); err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

func scanTicket(row pgx.Row) (*Ticket, error) {
	var t Ticket
	err := row.Scan(&t.ID, &t.Number, &t.Company, &t.CustomerID, &t.CustomerType, &t.Vessel, &t.Terminal, &t.DateLeft, &t.DateArrived,
		&t.DispatchDiscountPct, &t.BAFDiscountPct, &t.BillableHours, &t.DispatchCharge, &t.BAFCharge, &t.DispatchDiscount, &t.BAFDiscount,
		&t.NetBilling, &t.BillingID, &t.CreatedBy, &t.CreatedAt)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

func collectTickets(rows pgx.Rows) ([]Ticket, error) {
	var out []Ticket
	for rows.Next() {
		t, err := scanTicket(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *t)
	}
	return out, rows.Err()
}

func scanBilling(row pgx.Row) (*Billing, error) {
	var (
		b       Billing
		vatType string
	)
	targets := append(b.Header.ScanTargets(), &b.CustomerID, &b.TicketIDs, &b.Amount, &vatType, &b.Tax.HasEWT, &b.Tax.HasWVAT)
	if err := row.Scan(targets...); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, documents.ErrNotFound
		}
		return nil, err
	}
	b.Tax.VatType = ledger.ParseVatType(vatType)
	return &b, nil
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

func (r *txRepository) Customer(ctx context.Context, company string, id int64) (Customer, error) {
	var (
		c       = Customer{ID: id}
		vatType string
	)
	err := r.tx.QueryRow(ctx, `SELECT customer_type, vat_type, has_ewt, has_wvat FROM customers WHERE company=$1 AND id=$2`, company, id).
		Scan(&c.Type, &vatType, &c.Tax.HasEWT, &c.Tax.HasWVAT)
	if errors.Is(err, pgx.ErrNoRows) {
		return Customer{}, fmt.Errorf("%w: customer %d", shared.ErrNotFound, id)
	}
	if err != nil {
		return Customer{}, err
	}
	c.Tax.VatType = ledger.ParseVatType(vatType)
	return c, nil
}

func (r *txRepository) Tariff(ctx context.Context, company, terminal, customerType string) (Tariff, error) {
	t := Tariff{Company: company, Terminal: terminal, CustomerType: customerType}
	err := r.tx.QueryRow(ctx, `SELECT dispatch_rate, baf_rate FROM dispatch_tariffs WHERE company=$1 AND terminal=$2 AND customer_type=$3`,
		company, terminal, customerType).Scan(&t.DispatchRate, &t.BAFRate)
	if errors.Is(err, pgx.ErrNoRows) {
		return Tariff{}, ErrTariffNotFound
	}
	return t, err
}

func (r *txRepository) UpsertTariff(ctx context.Context, t Tariff) error {
	_, err := r.tx.Exec(ctx, `INSERT INTO dispatch_tariffs (company, terminal, customer_type, dispatch_rate, baf_rate) VALUES ($1, $2, $3, $4, $5)
ON CONFLICT (company, terminal, customer_type) DO UPDATE SET dispatch_rate=EXCLUDED.dispatch_rate, baf_rate=EXCLUDED.baf_rate`,
		t.Company, t.Terminal, t.CustomerType, t.DispatchRate, t.BAFRate)
	return err
}

func (r *txRepository) InsertTicket(ctx context.Context, t *Ticket) error {
	return r.tx.QueryRow(ctx, `INSERT INTO dispatch_tickets (number, company, customer_id, customer_type, vessel, terminal, date_left,
date_arrived, dispatch_discount_pct, baf_discount_pct, billable_hours, dispatch_charge, baf_charge, dispatch_discount, baf_discount,
net_billing, created_by, created_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18) RETURNING id`,
		t.Number, t.Company, t.CustomerID, t.CustomerType, t.Vessel, t.Terminal, t.DateLeft, t.DateArrived,
		t.DispatchDiscountPct, t.BAFDiscountPct, t.BillableHours, t.DispatchCharge, t.BAFCharge, t.DispatchDiscount, t.BAFDiscount,
		t.NetBilling, t.CreatedBy, t.CreatedAt).Scan(&t.ID)
}

func (r *txRepository) LockTickets(ctx context.Context, company string, ids []int64) ([]Ticket, error) {
	rows, err := r.tx.Query(ctx, `SELECT `+ticketColumns+` FROM dispatch_tickets WHERE company=$1 AND id = ANY($2) ORDER BY id FOR UPDATE`, company, ids)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectTickets(rows)
}

func (r *txRepository) AssignTickets(ctx context.Context, billingID int64, ids []int64) error {
	_, err := r.tx.Exec(ctx, `UPDATE dispatch_tickets SET billing_id=$1 WHERE id = ANY($2)`, billingID, ids)
	return err
}

func (r *txRepository) ReleaseTickets(ctx context.Context, billingID int64) error {
	_, err := r.tx.Exec(ctx, `UPDATE dispatch_tickets SET billing_id=NULL WHERE billing_id=$1`, billingID)
	return err
}

func (r *txRepository) InsertBilling(ctx context.Context, b *Billing) error {
	return r.tx.QueryRow(ctx, `INSERT INTO dispatch_billings (number, company, date, status, version, remarks, created_by, created_at,
customer_id, ticket_ids, amount, vat_type, has_ewt, has_wvat)
VALUES ($1, $2, $3, $4, 1, NULLIF($5,''), $6, $7, $8, $9, $10, $11, $12, $13) RETURNING id, version`,
		b.Number, b.Company, b.Date, string(b.Status), b.Remarks, b.CreatedBy, b.CreatedAt,
		b.CustomerID, b.TicketIDs, b.Amount, string(b.Tax.VatType), b.Tax.HasEWT, b.Tax.HasWVAT).Scan(&b.ID, &b.Version)
}

func (r *txRepository) UpdateBilling(ctx context.Context, b *Billing) error {
	cmd, err := r.tx.Exec(ctx, `UPDATE dispatch_billings SET date=$3, remarks=NULLIF($4,''), ticket_ids=$5, amount=$6, edited_by=$7,
edited_at=$8, version=version+1 WHERE id=$1 AND version=$2`,
		b.ID, b.Version, b.Date, b.Remarks, b.TicketIDs, b.Amount, b.EditedBy, b.EditedAt)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return documents.ErrConcurrentUpdate
	}
	b.Version++
	return nil
}

func (r *txRepository) LockBilling(ctx context.Context, company, number string) (*Billing, error) {
	return scanBilling(r.tx.QueryRow(ctx, `SELECT `+billingColumns+` FROM dispatch_billings WHERE company=$1 AND number=$2 FOR UPDATE`, company, number))
}

func (r *txRepository) SaveStatus(ctx context.Context, b *Billing) error {
	return documents.SaveStatus(ctx, r.tx, table, &b.Header)
}
