package documents

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// Execer is satisfied by pgx.Tx.
type Execer interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// HeaderColumns lists the header columns every document table shares, in ScanTargets order.
const HeaderColumns = `id, number, company, date, status, version, COALESCE(remarks, ''), created_by, created_at,
COALESCE(edited_by, ''), edited_at, COALESCE(posted_by, ''), posted_at, COALESCE(voided_by, ''), voided_at,
COALESCE(canceled_by, ''), canceled_at, COALESCE(cancel_reason, '')`

// ScanTargets returns pointers matching HeaderColumns.
func (h *Header) ScanTargets() []any {
	return []any{
		&h.ID, &h.Number, &h.Company, &h.Date, &h.Status, &h.Version, &h.Remarks, &h.CreatedBy, &h.CreatedAt,
		&h.EditedBy, &h.EditedAt, &h.PostedBy, &h.PostedAt, &h.VoidedBy, &h.VoidedAt,
		&h.CanceledBy, &h.CanceledAt, &h.CancelReason,
	}
}

// NextSequence increments and returns the company-scoped counter for a document type.
func NextSequence(ctx context.Context, db Execer, company, docType string) (int64, error) {
	var seq int64
	err := db.QueryRow(ctx, `INSERT INTO document_sequences (company, doc_type, last_value) VALUES ($1, $2, 1)
ON CONFLICT (company, doc_type) DO UPDATE SET last_value = document_sequences.last_value + 1
RETURNING last_value`, company, docType).Scan(&seq)
	if err != nil {
		return 0, fmt.Errorf("documents: next sequence: %w", err)
	}
	return seq, nil
}

// SaveStatus persists the lifecycle columns guarded by the row version read earlier.
// table is always a package constant, never user input.
func SaveStatus(ctx context.Context, db Execer, table string, h *Header) error {
	cmd, err := db.Exec(ctx, `UPDATE `+table+` SET status=$3, remarks=$4, edited_by=NULLIF($5,''), edited_at=$6,
posted_by=NULLIF($7,''), posted_at=$8, voided_by=NULLIF($9,''), voided_at=$10, canceled_by=NULLIF($11,''), canceled_at=$12,
cancel_reason=NULLIF($13,''), version=version+1 WHERE id=$1 AND version=$2`,
		h.ID, h.Version, h.Status, h.Remarks, h.EditedBy, h.EditedAt, h.PostedBy, h.PostedAt, h.VoidedBy, h.VoidedAt,
		h.CanceledBy, h.CanceledAt, h.CancelReason)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return ErrConcurrentUpdate
	}
	h.Version++
	return nil
}
