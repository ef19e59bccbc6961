package documents

import (
	"context"
	"time"

	"github.com/harborline/ibs/internal/ledger"
	"github.com/harborline/ibs/internal/periods"
	"github.com/harborline/ibs/internal/shared"
)

// Tx is the unit of work every document transaction exposes to the shared workflow.
type Tx interface {
	ledger.Store
	periods.Checker
	RecordAudit(ctx context.Context, log shared.AuditLog) error
}

// Action names used in audit rows and notifications.
const (
	ActionCreate = "create"
	ActionEdit   = "edit"
	ActionPost   = "post"
	ActionVoid   = "void"
	ActionCancel = "cancel"
)

// Subject describes the document a workflow step operates on.
type Subject struct {
	Entity string
	Module ledger.Module
	Header *Header
}

func (s Subject) audit(action string, actor shared.Actor, at time.Time, meta map[string]any) shared.AuditLog {
	return shared.AuditLog{
		Company:  s.Header.Company,
		ActorID:  actor.ID,
		Action:   s.Entity + "." + action,
		Entity:   s.Entity,
		EntityID: s.Header.Number,
		Meta:     meta,
		At:       at,
	}
}

// Post checks the period, marks the header posted, books the entry (when not nil)
// and records the audit row. The caller persists the header and commits.
func Post(ctx context.Context, tx Tx, subject Subject, entry *ledger.Entry, actor shared.Actor, now time.Time) ([]ledger.Line, error) {
	h := subject.Header
	if err := periods.EnsureOpen(ctx, tx, h.Company, subject.Module, h.Date); err != nil {
		return nil, err
	}
	if err := h.Post(actor.ID, now); err != nil {
		return nil, err
	}
	var lines []ledger.Line
	if entry != nil {
		entry.Company = h.Company
		entry.Reference = h.Number
		entry.Date = h.Date
		entry.Module = subject.Module
		entry.CreatedBy = actor.ID
		var err error
		lines, err = ledger.Post(ctx, tx, *entry, now)
		if err != nil {
			return nil, err
		}
	}
	debit, _ := ledger.Totals(lines)
	if err := tx.RecordAudit(ctx, subject.audit(ActionPost, actor, now, map[string]any{
		"lines":  len(lines),
		"amount": debit.StringFixed(2),
	})); err != nil {
		return nil, err
	}
	return lines, nil
}

// Void is admin-only. It removes the lines booked under the document number and
// records the audit row.
func Void(ctx context.Context, tx Tx, subject Subject, actor shared.Actor, now time.Time) (int64, error) {
	if !actor.IsAdmin() {
		return 0, shared.ErrForbidden
	}
	h := subject.Header
	if err := periods.EnsureOpen(ctx, tx, h.Company, subject.Module, h.Date); err != nil {
		return 0, err
	}
	if err := h.Void(actor.ID, now); err != nil {
		return 0, err
	}
	removed, err := ledger.Reverse(ctx, tx, h.Company, h.Number)
	if err != nil {
		return 0, err
	}
	if err := tx.RecordAudit(ctx, subject.audit(ActionVoid, actor, now, map[string]any{"lines_removed": removed})); err != nil {
		return 0, err
	}
	return removed, nil
}

// Cancel marks a pending document canceled. No ledger lines exist to reverse.
func Cancel(ctx context.Context, tx Tx, subject Subject, actor shared.Actor, reason string, now time.Time) error {
	if err := subject.Header.Cancel(actor.ID, reason, now); err != nil {
		return err
	}
	return tx.RecordAudit(ctx, subject.audit(ActionCancel, actor, now, map[string]any{"reason": reason}))
}

// Record writes a create or edit audit row after the period guard passes.
func Record(ctx context.Context, tx Tx, subject Subject, action string, actor shared.Actor, now time.Time) error {
	if err := periods.EnsureOpen(ctx, tx, subject.Header.Company, subject.Module, subject.Header.Date); err != nil {
		return err
	}
	return tx.RecordAudit(ctx, subject.audit(action, actor, now, nil))
}
